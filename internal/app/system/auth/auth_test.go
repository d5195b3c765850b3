package auth_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dalemusser/juntos/internal/app/system/auth"
	"github.com/dalemusser/juntos/internal/app/system/clientsession"
	"github.com/dalemusser/juntos/internal/app/system/docstore/memdocs"
	"github.com/dalemusser/juntos/internal/app/system/localcache"
	"github.com/dalemusser/juntos/internal/domain/models"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

func newTestSessionManager(t *testing.T) (*auth.SessionManager, *clientsession.Registry) {
	t.Helper()
	logger := zap.NewNop()
	reg := clientsession.NewRegistry(memdocs.New(), localcache.NewMemory(), nil,
		clientsession.Config{BcryptCost: bcrypt.MinCost}, logger)
	t.Cleanup(func() { reg.CloseAll(t.Context()) })

	sm, err := auth.NewSessionManager(auth.SessionConfig{
		Key:  "test-session-key-must-be-32-chars-long",
		Name: "test-session",
	}, reg, logger)
	if err != nil {
		t.Fatalf("failed to create session manager: %v", err)
	}
	return sm, reg
}

func captureSession(seen **clientsession.Session) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cs, ok := auth.ClientSession(r)
		if ok {
			*seen = cs
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestLoadClientSession_CreatesAndReuses(t *testing.T) {
	sm, reg := newTestSessionManager(t)

	var first *clientsession.Session
	rec := httptest.NewRecorder()
	sm.LoadClientSession(captureSession(&first)).ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	if first == nil {
		t.Fatal("expected a client session in context")
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != "test-session" {
		t.Fatalf("expected one session cookie, got %v", cookies)
	}

	var second *clientsession.Session
	req := httptest.NewRequest("GET", "/", nil)
	req.AddCookie(cookies[0])
	rec = httptest.NewRecorder()
	sm.LoadClientSession(captureSession(&second)).ServeHTTP(rec, req)

	if second != first {
		t.Errorf("expected the same client session on the second request")
	}
	if got := len(rec.Result().Cookies()); got != 0 {
		t.Errorf("expected no new cookie, got %d", got)
	}
	if reg.Len() != 1 {
		t.Errorf("expected 1 registered session, got %d", reg.Len())
	}
}

func TestLoadClientSession_UnknownSessionIsReplaced(t *testing.T) {
	sm, reg := newTestSessionManager(t)

	var first *clientsession.Session
	rec := httptest.NewRecorder()
	sm.LoadClientSession(captureSession(&first)).ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	cookie := rec.Result().Cookies()[0]
	reg.Close(first.ID)

	var second *clientsession.Session
	req := httptest.NewRequest("GET", "/", nil)
	req.AddCookie(cookie)
	rec = httptest.NewRecorder()
	sm.LoadClientSession(captureSession(&second)).ServeHTTP(rec, req)

	if second == nil || second.ID == first.ID {
		t.Fatalf("expected a replacement client session")
	}
	if len(rec.Result().Cookies()) != 1 {
		t.Errorf("expected the cookie to be rewritten")
	}
}

func TestRequireSignedIn(t *testing.T) {
	sm, _ := newTestSessionManager(t)

	protected := sm.LoadClientSession(sm.RequireSignedIn(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))

	rec := httptest.NewRecorder()
	protected.ServeHTTP(rec, httptest.NewRequest("GET", "/api/data", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected status %d, got %d", http.StatusUnauthorized, rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected JSON error, got %q", ct)
	}
}

func TestRequireSignedIn_WithIdentity(t *testing.T) {
	sm, reg := newTestSessionManager(t)
	cs := reg.Create()
	cs.Manager.EstablishSession(t.Context(), &models.Identity{ID: "u1"})

	handler := sm.RequireSignedIn(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	req := httptest.NewRequest("GET", "/", nil)
	req = req.WithContext(auth.WithClientSession(req.Context(), cs))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("expected status %d, got %d", http.StatusNoContent, rec.Code)
	}
}

func TestDestroy_ExpiresCookieAndClosesSession(t *testing.T) {
	sm, reg := newTestSessionManager(t)

	handler := sm.LoadClientSession(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sm.Destroy(w, r)
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("POST", "/logout", nil))

	if reg.Len() != 0 {
		t.Errorf("expected session to be closed, %d left", reg.Len())
	}
	var expired bool
	for _, c := range rec.Result().Cookies() {
		if c.Name == "test-session" && c.MaxAge < 0 {
			expired = true
		}
	}
	if !expired {
		t.Errorf("expected an expired session cookie")
	}
}

func TestNewSessionManager_RandomKeyWhenEmpty(t *testing.T) {
	reg := clientsession.NewRegistry(memdocs.New(), localcache.NewMemory(), nil, clientsession.Config{}, zap.NewNop())
	sm, err := auth.NewSessionManager(auth.SessionConfig{}, reg, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sm.Store() == nil {
		t.Fatal("expected a cookie store")
	}
}
