package board

import (
	"net/http"

	"github.com/dalemusser/juntos/internal/app/system/httpx"
	"github.com/dalemusser/juntos/internal/app/system/timeouts"
	"github.com/dalemusser/juntos/internal/domain/models"
	"github.com/go-chi/chi/v5"
)

type entryRequest struct {
	StageID            string         `json:"stage_id"`
	Visibility         string         `json:"visibility"`
	ObservationPrivate bool           `json:"observation_private"`
	Payload            map[string]any `json:"payload"`
}

// ServeEntries handles GET /board/entries?view=member|leader. Without a
// view the user's own role decides; leaders may ask for the member view.
func (h *Handler) ServeEntries(w http.ResponseWriter, r *http.Request) {
	sc, err := scopeOf(r)
	if err != nil {
		httpx.Error(w, h.Log, err)
		return
	}
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "fetch entries")
	defer cancel()

	role, err := sc.role(ctx)
	if err != nil {
		httpx.Error(w, h.Log, err)
		return
	}
	switch r.URL.Query().Get("view") {
	case "member":
		role = models.RoleMember
	case "leader":
		if role != models.RoleLeader {
			httpx.Error(w, h.Log, errLeadersOnly)
			return
		}
	}

	view, err := sc.cs.Entries.FetchForRole(ctx, sc.communityID, role)
	if err != nil {
		httpx.Error(w, h.Log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

// ServeLatest handles GET /board/entries/latest: the newest entries every
// member can see.
func (h *Handler) ServeLatest(w http.ResponseWriter, r *http.Request) {
	sc, err := scopeOf(r)
	if err != nil {
		httpx.Error(w, h.Log, err)
		return
	}
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "fetch latest entries")
	defer cancel()

	if _, err := sc.cs.Entries.FetchMemberEntries(ctx, sc.communityID); err != nil {
		httpx.Error(w, h.Log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": sc.cs.Entries.CombinedLatestItems()})
}

// ServeEntry handles GET /board/entries/{entryID}.
func (h *Handler) ServeEntry(w http.ResponseWriter, r *http.Request) {
	sc, err := scopeOf(r)
	if err != nil {
		httpx.Error(w, h.Log, err)
		return
	}
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "get entry")
	defer cancel()

	e, err := sc.entry(ctx, chi.URLParam(r, "entryID"))
	if err != nil {
		httpx.Error(w, h.Log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, e)
}

// HandleCreateEntry handles POST /board/entries.
func (h *Handler) HandleCreateEntry(w http.ResponseWriter, r *http.Request) {
	sc, err := scopeOf(r)
	if err != nil {
		httpx.Error(w, h.Log, err)
		return
	}
	var req entryRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, h.Log, err)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "add entry")
	defer cancel()

	e, err := sc.cs.Entries.Add(ctx, models.Entry{
		CommunityID:        sc.communityID,
		UserID:             sc.userID(),
		StageID:            req.StageID,
		Visibility:         req.Visibility,
		ObservationPrivate: req.ObservationPrivate,
		Payload:            req.Payload,
	})
	if err != nil {
		httpx.Error(w, h.Log, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, e)
}
