// internal/app/features/communities/routes.go
package communities

import (
	"github.com/dalemusser/juntos/internal/app/system/auth"
	"github.com/go-chi/chi/v5"
)

func Routes(h *Handler, sm *auth.SessionManager) chi.Router {
	r := chi.NewRouter()
	r.Use(sm.RequireSignedIn)

	r.Get("/", h.ServeList)
	r.Post("/", h.HandleCreate)
	r.Post("/{id}/join", h.HandleJoin)
	r.Post("/{id}/switch", h.HandleSwitch)
	return r
}
