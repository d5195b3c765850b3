// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/dalemusser/juntos/internal/app/system/clientsession"
	"github.com/dalemusser/juntos/internal/app/system/profilesync"
	"github.com/dalemusser/juntos/internal/app/system/ratelimit"
	"github.com/dalemusser/juntos/internal/app/system/timeouts"
	"github.com/dalemusser/juntos/internal/app/system/workers"
	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// Startup runs one-time application initialization after DB connections and
// schema setup are complete, but before the HTTP handler is built. It builds
// the client session registry and starts the idle-session sweeper.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	if deps.Runtime == nil {
		return fmt.Errorf("startup: runtime not allocated by ConnectDB")
	}
	if n := timeouts.ConfigureFromEnv(); n > 0 {
		logger.Info("operation timeouts overridden from environment",
			zap.Int("overrides", n),
			zap.Duration("short", timeouts.Short()),
			zap.Duration("medium", timeouts.Medium()),
			zap.Duration("long", timeouts.Long()))
	}

	loc, err := time.LoadLocation(appCfg.GratitudeTimezone)
	if err != nil {
		return fmt.Errorf("load gratitude timezone: %w", err)
	}

	rt := deps.Runtime
	rt.Limiter = ratelimit.New(appCfg.SigninAttemptLimit, appCfg.SigninAttemptWindow)
	rt.Registry = clientsession.NewRegistry(deps.Docs, deps.Cache, rt.Limiter, registryConfig(appCfg, loc), logger)
	rt.Cleanup = workers.NewSessionCleanup(rt.Registry, logger, appCfg.SessionCleanupInterval, appCfg.SessionIdleTimeout)
	rt.Cleanup.Start()
	return nil
}

func registryConfig(appCfg AppConfig, loc *time.Location) clientsession.Config {
	return clientsession.Config{
		ProfileFetch: profilesync.Config{
			FetchAttempts: appCfg.ProfileFetchAttempts,
			FetchDelay:    appCfg.ProfileFetchDelay,
		},
		LatestLimit: appCfg.LatestItemsLimit,
		Location:    loc,
	}
}
