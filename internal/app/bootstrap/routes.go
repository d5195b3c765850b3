// internal/app/bootstrap/routes.go
package bootstrap

import (
	"fmt"
	"net/http"

	boardfeature "github.com/dalemusser/juntos/internal/app/features/board"
	communitiesfeature "github.com/dalemusser/juntos/internal/app/features/communities"
	healthfeature "github.com/dalemusser/juntos/internal/app/features/health"
	loginfeature "github.com/dalemusser/juntos/internal/app/features/login"
	logoutfeature "github.com/dalemusser/juntos/internal/app/features/logout"
	"github.com/dalemusser/juntos/internal/app/system/auth"
	"github.com/dalemusser/juntos/internal/app/system/localcache"
	"github.com/dalemusser/waffle/config"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// BuildHandler constructs the root HTTP handler (router) for this WAFFLE app.
//
// WAFFLE calls this after configuration, DB connections, schema setup and
// Startup have completed. Every route except /health runs inside a client
// session resolved from the session cookie.
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	if deps.Runtime == nil || deps.Runtime.Registry == nil {
		return nil, fmt.Errorf("build handler: client session registry not started")
	}

	// Secure cookies are enabled in production mode.
	secure := coreCfg.Env == "prod"
	sessionMgr, err := auth.NewSessionManager(auth.SessionConfig{
		Key:    appCfg.SessionKey,
		Name:   appCfg.SessionName,
		Domain: appCfg.SessionDomain,
		Secure: secure,
	}, deps.Runtime.Registry, logger)
	if err != nil {
		logger.Error("session manager init failed", zap.Error(err))
		return nil, err
	}

	r := chi.NewRouter()

	// Health check endpoint for load balancers and orchestrators
	var cachePinger healthfeature.Pinger
	if rc, ok := deps.Cache.(*localcache.Redis); ok {
		cachePinger = rc
	}
	healthHandler := healthfeature.NewHandler(deps.Docs, cachePinger, logger)
	r.Mount("/health", healthfeature.Routes(healthHandler))

	r.Group(func(r chi.Router) {
		r.Use(sessionMgr.LoadClientSession)

		// Authentication
		loginHandler := loginfeature.NewHandler(logger)
		r.Mount("/login", loginfeature.Routes(loginHandler))
		r.Mount("/register", loginfeature.RegisterRoutes(loginHandler))
		r.Mount("/session", loginfeature.SessionRoutes(loginHandler))

		logoutHandler := logoutfeature.NewHandler(sessionMgr, logger)
		r.Mount("/logout", logoutfeature.Routes(logoutHandler, sessionMgr))

		// Communities and the active community's board
		communitiesHandler := communitiesfeature.NewHandler(logger)
		r.Mount("/communities", communitiesfeature.Routes(communitiesHandler, sessionMgr))

		boardHandler := boardfeature.NewHandler(logger)
		r.Mount("/board", boardfeature.Routes(boardHandler, sessionMgr))
	})

	return r, nil
}
