// internal/app/features/board/routes.go
package board

import (
	"github.com/dalemusser/juntos/internal/app/system/auth"
	"github.com/go-chi/chi/v5"
)

func Routes(h *Handler, sm *auth.SessionManager) chi.Router {
	r := chi.NewRouter()
	r.Use(sm.RequireSignedIn)

	r.Route("/entries", func(r chi.Router) {
		r.Get("/", h.ServeEntries)
		r.Post("/", h.HandleCreateEntry)
		r.Get("/latest", h.ServeLatest)

		r.Route("/{entryID}", func(r chi.Router) {
			r.Get("/", h.ServeEntry)
			r.Get("/comments", h.ServeComments)
			r.Post("/comments", h.HandleAddComment)
			r.Get("/votes", h.ServeVotes)
			r.Put("/votes/mine", h.HandleCastVote)
			r.Post("/gratitude", h.HandleAddGratitude)
			r.Get("/check-ins", h.ServeCheckIns)
			r.Post("/check-ins", h.HandleAddCheckIn)
		})
	})

	r.Delete("/votes/{voteID}", h.HandleRemoveVote)
	r.Get("/gratitude", h.ServeGratitude)
	r.Delete("/gratitude/{gratitudeID}", h.HandleRemoveGratitude)
	r.Delete("/check-ins/{checkInID}", h.HandleRemoveCheckIn)
	return r
}
