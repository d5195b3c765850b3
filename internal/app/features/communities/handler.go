// internal/app/features/communities/handler.go
package communities

import (
	"net/http"

	"github.com/dalemusser/juntos/internal/app/system/apperr"
	"github.com/dalemusser/juntos/internal/app/system/auth"
	"github.com/dalemusser/juntos/internal/app/system/httpx"
	"github.com/dalemusser/juntos/internal/app/system/timeouts"
	"github.com/dalemusser/juntos/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Handler serves community listing, creation, joining and switching for
// the signed-in user of the request's client session.
type Handler struct {
	Log *zap.Logger
}

func NewHandler(logger *zap.Logger) *Handler {
	return &Handler{Log: logger}
}

type listResponse struct {
	Communities       []models.Community `json:"communities"`
	ActiveCommunityID string             `json:"active_community_id,omitempty"`
}

type createRequest struct {
	Name string `json:"name"`
}

// ServeList handles GET /communities.
func (h *Handler) ServeList(w http.ResponseWriter, r *http.Request) {
	cs, _ := auth.ClientSession(r)
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "list communities")
	defer cancel()

	list, err := cs.Membership.ListCommunities(ctx, cs.Manager)
	if err != nil {
		httpx.Error(w, h.Log, err)
		return
	}
	resp := listResponse{Communities: list}
	if p := cs.Manager.Profile(); p != nil {
		resp.ActiveCommunityID = p.CurrentCommunityID
	}
	httpx.JSON(w, http.StatusOK, resp)
}

// HandleCreate handles POST /communities.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	cs, _ := auth.ClientSession(r)

	var req createRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, h.Log, err)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "create community")
	defer cancel()

	c, err := cs.Membership.CreateCommunity(ctx, cs.Manager, req.Name)
	if err != nil {
		httpx.Error(w, h.Log, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, c)
}

// HandleJoin handles POST /communities/{id}/join.
func (h *Handler) HandleJoin(w http.ResponseWriter, r *http.Request) {
	cs, _ := auth.ClientSession(r)
	id := chi.URLParam(r, "id")

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "join community")
	defer cancel()

	if err := cs.Membership.JoinCommunity(ctx, cs.Manager, id); err != nil {
		httpx.Error(w, h.Log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, cs.Manager.Profile())
}

// HandleSwitch handles POST /communities/{id}/switch.
func (h *Handler) HandleSwitch(w http.ResponseWriter, r *http.Request) {
	cs, _ := auth.ClientSession(r)
	id := chi.URLParam(r, "id")
	if id == "" {
		httpx.Error(w, h.Log, apperr.Validation("Invalid community ID."))
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "switch community")
	defer cancel()

	if err := cs.Membership.SwitchActiveCommunity(ctx, cs.Manager, id); err != nil {
		httpx.Error(w, h.Log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, cs.Manager.Profile())
}
