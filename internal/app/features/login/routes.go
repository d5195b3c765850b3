// internal/app/features/login/routes.go
package login

import "github.com/go-chi/chi/v5"

// Routes serves /login.
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.HandleLogin)
	return r
}

// RegisterRoutes serves /register.
func RegisterRoutes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.HandleRegister)
	return r
}

// SessionRoutes serves /session.
func SessionRoutes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.ServeSession)
	return r
}
