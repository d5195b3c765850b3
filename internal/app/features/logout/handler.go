// internal/app/features/logout/handler.go
package logout

import (
	"net/http"

	"github.com/dalemusser/juntos/internal/app/system/auth"
	"github.com/dalemusser/juntos/internal/app/system/httpx"
	"github.com/dalemusser/juntos/internal/app/system/timeouts"
	"go.uber.org/zap"
)

type Handler struct {
	Log        *zap.Logger
	SessionMgr *auth.SessionManager
}

func NewHandler(sessionMgr *auth.SessionManager, logger *zap.Logger) *Handler {
	return &Handler{
		Log:        logger,
		SessionMgr: sessionMgr,
	}
}

// HandleLogout handles POST /logout. Local state is cleared and the cookie
// expired even when the provider sign-out fails; the failure is still
// reported so the client can tell the user.
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	cs, ok := auth.ClientSession(r)
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "logout")
	defer cancel()

	signOutErr := cs.Manager.EndSession(ctx)
	h.SessionMgr.Destroy(w, r)

	if signOutErr != nil {
		httpx.Error(w, h.Log, signOutErr)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
