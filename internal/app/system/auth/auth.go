// Package auth binds browser sessions to client sessions. The cookie holds
// only the client session id; identity, profile and content state live in
// the clientsession registry.
package auth

import (
	"context"
	"fmt"
	"net/http"

	"github.com/dalemusser/juntos/internal/app/system/apperr"
	"github.com/dalemusser/juntos/internal/app/system/clientsession"
	"github.com/dalemusser/juntos/internal/app/system/httpx"
	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"go.uber.org/zap"
)

const (
	// DefaultSessionName is the cookie name used when none is configured.
	DefaultSessionName = "juntos-session"

	clientSessionKey = "client_session_id"
)

type ctxKey string

const clientSessionCtxKey ctxKey = "clientSession"

// SessionConfig configures the session cookie.
type SessionConfig struct {
	Key    string
	Name   string
	Domain string
	Secure bool
}

// SessionManager reads and writes the session cookie and resolves it to a
// client session.
type SessionManager struct {
	store    *sessions.CookieStore
	name     string
	registry *clientsession.Registry
	log      *zap.Logger
}

// NewSessionManager builds the cookie store. An empty key is replaced by a
// random one, which invalidates cookies on every restart.
//
// In production (Secure=true), cookies are Secure + SameSite=None.
// Over plain http in development, use Secure=false so cookies are accepted.
func NewSessionManager(cfg SessionConfig, registry *clientsession.Registry, logger *zap.Logger) (*SessionManager, error) {
	key := []byte(cfg.Key)
	if len(key) == 0 {
		key = securecookie.GenerateRandomKey(32)
		if key == nil {
			return nil, fmt.Errorf("generate session key: random source unavailable")
		}
		logger.Warn("session key not configured; using a random key for this process")
	} else if len(key) < 32 {
		logger.Warn("session key is short; 32+ chars recommended", zap.Int("length", len(key)))
	}

	name := cfg.Name
	if name == "" {
		name = DefaultSessionName
	}

	store := sessions.NewCookieStore(key)
	store.Options = &sessions.Options{
		Domain:   cfg.Domain,
		Path:     "/",
		Secure:   cfg.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	if cfg.Secure {
		store.Options.SameSite = http.SameSiteNoneMode
	}

	logger.Info("session store initialized",
		zap.String("name", name),
		zap.Bool("secure", cfg.Secure),
		zap.String("domain", cfg.Domain))

	return &SessionManager{store: store, name: name, registry: registry, log: logger}, nil
}

// Store exposes the cookie store.
func (m *SessionManager) Store() *sessions.CookieStore { return m.store }

// GetSession returns the decoded cookie session. A cookie that fails to
// decode yields a fresh session together with the error.
func (m *SessionManager) GetSession(r *http.Request) (*sessions.Session, error) {
	return m.store.Get(r, m.name)
}

// LoadClientSession resolves the cookie to a client session, creating one
// (and setting the cookie) when the cookie is missing, invalid, or points
// to a session that no longer exists.
func (m *SessionManager) LoadClientSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := m.GetSession(r)
		if err != nil {
			m.log.Debug("session cookie rejected; starting a new one", zap.Error(err))
		}

		id, _ := sess.Values[clientSessionKey].(string)
		cs, ok := m.registry.Get(id)
		if !ok {
			cs = m.registry.Create()
			sess.Values[clientSessionKey] = cs.ID
			if err := sess.Save(r, w); err != nil {
				m.log.Error("save session cookie", zap.Error(err))
			}
		}

		next.ServeHTTP(w, r.WithContext(WithClientSession(r.Context(), cs)))
	})
}

// RequireSignedIn rejects requests whose client session has no identity.
func (m *SessionManager) RequireSignedIn(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cs, ok := ClientSession(r)
		if !ok || cs.Manager.Identity() == nil {
			httpx.Error(w, m.log, apperr.ErrUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Destroy disposes the request's client session and expires the cookie.
func (m *SessionManager) Destroy(w http.ResponseWriter, r *http.Request) {
	if cs, ok := ClientSession(r); ok {
		m.registry.Close(cs.ID)
	}

	sess, err := m.GetSession(r)
	if err != nil {
		m.log.Warn("session decode failed during destroy", zap.Error(err))
	}
	delete(sess.Values, clientSessionKey)
	sess.Options = &sessions.Options{
		Domain:   m.store.Options.Domain,
		Path:     m.store.Options.Path,
		Secure:   m.store.Options.Secure,
		HttpOnly: m.store.Options.HttpOnly,
		SameSite: m.store.Options.SameSite,
		MaxAge:   -1,
	}
	if err := sess.Save(r, w); err != nil {
		m.log.Error("expire session cookie", zap.Error(err))
	}
}

// WithClientSession stores cs in ctx.
func WithClientSession(ctx context.Context, cs *clientsession.Session) context.Context {
	return context.WithValue(ctx, clientSessionCtxKey, cs)
}

// ClientSession returns the client session loaded by LoadClientSession.
func ClientSession(r *http.Request) (*clientsession.Session, bool) {
	cs, ok := r.Context().Value(clientSessionCtxKey).(*clientsession.Session)
	return cs, ok && cs != nil
}
