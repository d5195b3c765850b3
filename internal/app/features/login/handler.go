// internal/app/features/login/handler.go
package login

import (
	"net/http"

	"github.com/dalemusser/juntos/internal/app/system/apperr"
	"github.com/dalemusser/juntos/internal/app/system/auth"
	"github.com/dalemusser/juntos/internal/app/system/clientsession"
	"github.com/dalemusser/juntos/internal/app/system/httpx"
	"github.com/dalemusser/juntos/internal/app/system/normalize"
	"github.com/dalemusser/juntos/internal/app/system/ratelimit"
	"github.com/dalemusser/juntos/internal/app/system/registration"
	"github.com/dalemusser/juntos/internal/app/system/timeouts"
	"github.com/dalemusser/juntos/internal/domain/models"
	"go.uber.org/zap"
)

type Handler struct {
	Log *zap.Logger
}

func NewHandler(logger *zap.Logger) *Handler {
	return &Handler{Log: logger}
}

// SessionView is what the client sees of its session.
type SessionView struct {
	SignedIn bool             `json:"signed_in"`
	Identity *models.Identity `json:"identity,omitempty"`
	Profile  *models.Profile  `json:"profile,omitempty"`

	// ProfileCached is set when Profile comes from the local mirror because
	// the remote profile could not be loaded.
	ProfileCached       bool `json:"profile_cached,omitempty"`
	NeedsCommunitySetup bool `json:"needs_community_setup"`
}

// ViewOf snapshots cs for a response.
func ViewOf(cs *clientsession.Session) SessionView {
	id := cs.Manager.Identity()
	return SessionView{
		SignedIn: id != nil,
		Identity: id,
		Profile:  cs.Manager.Profile(),
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleLogin handles POST /login.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	cs, ok := auth.ClientSession(r)
	if !ok {
		httpx.Error(w, h.Log, apperr.ErrUnauthorized)
		return
	}

	var req loginRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, h.Log, err)
		return
	}
	email := normalize.Email(req.Email)
	if email == "" || req.Password == "" {
		httpx.Error(w, h.Log, apperr.Validation("Email and password are required."))
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "login")
	defer cancel()

	ident, err := cs.Registration.Login(ctx, email, req.Password)
	if err != nil {
		h.Log.Info("login failed",
			zap.String("email", email),
			zap.String("ip", ratelimit.ClientIP(r)),
			zap.String("code", string(apperr.CodeOf(err))))
		httpx.Error(w, h.Log, err)
		return
	}

	cs.Manager.EstablishSession(ctx, ident)
	h.Log.Info("login succeeded", zap.String("user_id", ident.ID))
	httpx.JSON(w, http.StatusOK, ViewOf(cs))
}

// HandleRegister handles POST /register.
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	cs, ok := auth.ClientSession(r)
	if !ok {
		httpx.Error(w, h.Log, apperr.ErrUnauthorized)
		return
	}

	var form registration.Form
	if err := httpx.Decode(r, &form); err != nil {
		httpx.Error(w, h.Log, err)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Long(), h.Log, "register")
	defer cancel()

	ident, err := cs.Registration.Register(ctx, form)
	if err != nil {
		httpx.Error(w, h.Log, err)
		return
	}

	cs.Manager.EstablishSession(ctx, ident)
	httpx.JSON(w, http.StatusCreated, ViewOf(cs))
}

// ServeSession handles GET /session. The session is re-established from
// the provider first; a signed-in user without an active community is
// flagged for community setup.
func (h *Handler) ServeSession(w http.ResponseWriter, r *http.Request) {
	cs, ok := auth.ClientSession(r)
	if !ok {
		httpx.JSON(w, http.StatusOK, SessionView{})
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "refresh session")
	defer cancel()

	needsSetup := cs.Manager.RefreshSessionFromProvider(ctx)
	view := ViewOf(cs)
	view.NeedsCommunitySetup = needsSetup
	if view.SignedIn && view.Profile == nil {
		if p, ok := cs.Manager.CachedProfile(ctx); ok && p.UserID == view.Identity.ID {
			view.Profile = p
			view.ProfileCached = true
		}
	}
	httpx.JSON(w, http.StatusOK, view)
}
