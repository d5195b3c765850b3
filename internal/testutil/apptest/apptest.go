// Package apptest builds an in-memory client session and router for
// feature handler tests.
package apptest

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dalemusser/juntos/internal/app/system/auth"
	"github.com/dalemusser/juntos/internal/app/system/clientsession"
	"github.com/dalemusser/juntos/internal/app/system/docstore/memdocs"
	"github.com/dalemusser/juntos/internal/app/system/localcache"
	"github.com/dalemusser/juntos/internal/app/system/profilesync"
	"github.com/dalemusser/juntos/internal/app/system/registration"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Env is one client session bound to a router. Every request served by
// Router runs as Session.
type Env struct {
	Docs       *memdocs.Store
	Registry   *clientsession.Registry
	SessionMgr *auth.SessionManager
	Session    *clientsession.Session
	Router     chi.Router
}

// New builds an Env with a signed-out session.
func New(t *testing.T) *Env {
	t.Helper()
	logger := zap.NewNop()
	docs := memdocs.New()
	reg := clientsession.NewRegistry(docs, localcache.NewMemory(), nil, clientsession.Config{
		ProfileFetch: profilesync.Config{FetchAttempts: 1},
		BcryptCost:   bcrypt.MinCost,
	}, logger)
	t.Cleanup(func() { reg.CloseAll(context.Background()) })

	sm, err := auth.NewSessionManager(auth.SessionConfig{
		Key:  "test-session-key-must-be-32-chars-long",
		Name: "test-session",
	}, reg, logger)
	if err != nil {
		t.Fatalf("session manager: %v", err)
	}

	env := &Env{Docs: docs, Registry: reg, SessionMgr: sm, Session: reg.Create()}
	env.Router = chi.NewRouter()
	env.Router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(auth.WithClientSession(r.Context(), env.Session)))
		})
	})
	return env
}

// SignUp registers an account for the env's session and establishes it.
func (e *Env) SignUp(t *testing.T, email, username string) {
	t.Helper()
	ctx := context.Background()
	id, err := e.Session.Registration.Register(ctx, registration.Form{
		FirstName: "Test",
		LastName:  username,
		Username:  username,
		Email:     email,
		Password:  "secret123",
	})
	if err != nil {
		t.Fatalf("register %s: %v", email, err)
	}
	e.Session.Manager.EstablishSession(ctx, id)
	if e.Session.Manager.Profile() == nil {
		t.Fatalf("profile for %s not loaded", email)
	}
}

// Do serves one request. body, when non-nil, is sent as JSON.
func (e *Env) Do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.Router.ServeHTTP(rec, req)
	return rec
}

// DecodeJSON unmarshals a recorded response body into v.
func DecodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}
