package board

import (
	"net/http"
	"time"

	checkinstore "github.com/dalemusser/juntos/internal/app/store/checkins"
	gratitudestore "github.com/dalemusser/juntos/internal/app/store/gratitude"
	"github.com/dalemusser/juntos/internal/app/system/apperr"
	"github.com/dalemusser/juntos/internal/app/system/httpx"
	"github.com/dalemusser/juntos/internal/app/system/timeouts"
	"github.com/dalemusser/juntos/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type votesResponse struct {
	Votes  []models.Vote           `json:"votes"`
	Counts map[models.VoteType]int `json:"counts"`
	Mine   *models.Vote            `json:"mine,omitempty"`
}

type voteRequest struct {
	VoteType models.VoteType `json:"vote_type"`
}

type gratitudeResponse struct {
	Votes         []models.GratitudeVote          `json:"votes"`
	IntervalStart time.Time                       `json:"interval_start"`
	IntervalEnd   time.Time                       `json:"interval_end"`
	Stats         map[string]gratitudestore.Stats `json:"stats"`
	// HasVoted reports, per entry, whether the caller voted today.
	HasVoted map[string]bool `json:"has_voted"`
}

type checkInsResponse struct {
	CheckIns []models.CheckIn   `json:"check_ins"`
	Stats    checkinstore.Stats `json:"stats"`
}

// ServeVotes handles GET /board/entries/{entryID}/votes.
func (h *Handler) ServeVotes(w http.ResponseWriter, r *http.Request) {
	sc, err := scopeOf(r)
	if err != nil {
		httpx.Error(w, h.Log, err)
		return
	}
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "fetch votes")
	defer cancel()

	e, err := sc.entry(ctx, chi.URLParam(r, "entryID"))
	if err != nil {
		httpx.Error(w, h.Log, err)
		return
	}
	votes, err := sc.cs.Votes.FetchForEntry(ctx, e.ID)
	if err != nil {
		httpx.Error(w, h.Log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, votesResponse{
		Votes:  votes,
		Counts: sc.cs.Votes.Counts(e.ID),
		Mine:   sc.cs.Votes.UserVote(e.ID, sc.userID()),
	})
}

// HandleCastVote handles PUT /board/entries/{entryID}/votes/mine. The
// user's existing vote is changed; otherwise one is added.
func (h *Handler) HandleCastVote(w http.ResponseWriter, r *http.Request) {
	sc, err := scopeOf(r)
	if err != nil {
		httpx.Error(w, h.Log, err)
		return
	}
	var req voteRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, h.Log, err)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "cast vote")
	defer cancel()

	e, err := sc.entry(ctx, chi.URLParam(r, "entryID"))
	if err != nil {
		httpx.Error(w, h.Log, err)
		return
	}
	// Load first so an earlier vote from another session is updated, not duplicated.
	if _, err := sc.cs.Votes.FetchForEntry(ctx, e.ID); err != nil {
		httpx.Error(w, h.Log, err)
		return
	}
	v, err := sc.cs.Votes.Cast(ctx, e.ID, sc.userID(), req.VoteType)
	if err != nil {
		httpx.Error(w, h.Log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, v)
}

// HandleRemoveVote handles DELETE /board/votes/{voteID}. Only the user's
// own, already loaded votes can be removed.
func (h *Handler) HandleRemoveVote(w http.ResponseWriter, r *http.Request) {
	sc, err := scopeOf(r)
	if err != nil {
		httpx.Error(w, h.Log, err)
		return
	}
	v := sc.cs.Votes.Find(chi.URLParam(r, "voteID"))
	if v == nil || v.UserID != sc.userID() {
		httpx.Error(w, h.Log, apperr.New(apperr.CodeNotFound, "Vote not found."))
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "remove vote")
	defer cancel()

	if err := sc.cs.Votes.Remove(ctx, v.ID); err != nil {
		httpx.Error(w, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ServeGratitude handles GET /board/gratitude.
func (h *Handler) ServeGratitude(w http.ResponseWriter, r *http.Request) {
	sc, err := scopeOf(r)
	if err != nil {
		httpx.Error(w, h.Log, err)
		return
	}
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "fetch gratitude")
	defer cancel()

	votes, err := sc.cs.Gratitude.FetchForCommunity(ctx, sc.communityID)
	if err != nil {
		httpx.Error(w, h.Log, err)
		return
	}
	stats := make(map[string]gratitudestore.Stats)
	hasVoted := make(map[string]bool)
	for _, g := range votes {
		if _, done := stats[g.EntryID]; !done {
			stats[g.EntryID] = sc.cs.Gratitude.Stats(g.EntryID)
			hasVoted[g.EntryID] = sc.cs.Gratitude.HasVoted(g.EntryID, sc.profile.UserID)
		}
	}
	start, end := sc.cs.Gratitude.Interval()
	httpx.JSON(w, http.StatusOK, gratitudeResponse{
		Votes:         votes,
		IntervalStart: start,
		IntervalEnd:   end,
		Stats:         stats,
		HasVoted:      hasVoted,
	})
}

// HandleAddGratitude handles POST /board/entries/{entryID}/gratitude.
func (h *Handler) HandleAddGratitude(w http.ResponseWriter, r *http.Request) {
	sc, err := scopeOf(r)
	if err != nil {
		httpx.Error(w, h.Log, err)
		return
	}
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "add gratitude")
	defer cancel()

	e, err := sc.entry(ctx, chi.URLParam(r, "entryID"))
	if err != nil {
		httpx.Error(w, h.Log, err)
		return
	}
	g, err := sc.cs.Gratitude.Add(ctx, e.ID, sc.userID(), sc.communityID)
	if err != nil {
		httpx.Error(w, h.Log, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, g)
}

// HandleRemoveGratitude handles DELETE /board/gratitude/{gratitudeID}.
func (h *Handler) HandleRemoveGratitude(w http.ResponseWriter, r *http.Request) {
	sc, err := scopeOf(r)
	if err != nil {
		httpx.Error(w, h.Log, err)
		return
	}
	id := chi.URLParam(r, "gratitudeID")
	if !ownGratitude(sc.cs.Gratitude.Votes(), id, sc.userID()) {
		httpx.Error(w, h.Log, apperr.New(apperr.CodeNotFound, "Gratitude vote not found."))
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "remove gratitude")
	defer cancel()

	if err := sc.cs.Gratitude.Remove(ctx, id); err != nil {
		httpx.Error(w, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ServeCheckIns handles GET /board/entries/{entryID}/check-ins.
func (h *Handler) ServeCheckIns(w http.ResponseWriter, r *http.Request) {
	sc, err := scopeOf(r)
	if err != nil {
		httpx.Error(w, h.Log, err)
		return
	}
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "fetch check-ins")
	defer cancel()

	e, err := sc.entry(ctx, chi.URLParam(r, "entryID"))
	if err != nil {
		httpx.Error(w, h.Log, err)
		return
	}
	list, err := sc.cs.CheckIns.Fetch(ctx, e.ID, sc.communityID)
	if err != nil {
		httpx.Error(w, h.Log, err)
		return
	}
	c, err := sc.cs.Communities.Get(ctx, sc.communityID)
	if err != nil {
		h.Log.Error("load community for check-in stats failed",
			zap.String("community_id", sc.communityID), zap.Error(err))
		httpx.Error(w, h.Log, apperr.Remote("", err))
		return
	}
	httpx.JSON(w, http.StatusOK, checkInsResponse{
		CheckIns: list,
		Stats:    sc.cs.CheckIns.Stats(e.ID, len(c.Members)),
	})
}

// HandleAddCheckIn handles POST /board/entries/{entryID}/check-ins.
func (h *Handler) HandleAddCheckIn(w http.ResponseWriter, r *http.Request) {
	sc, err := scopeOf(r)
	if err != nil {
		httpx.Error(w, h.Log, err)
		return
	}
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "add check-in")
	defer cancel()

	e, err := sc.entry(ctx, chi.URLParam(r, "entryID"))
	if err != nil {
		httpx.Error(w, h.Log, err)
		return
	}
	c, err := sc.cs.CheckIns.Add(ctx, sc.userID(), e.ID, sc.communityID)
	if err != nil {
		httpx.Error(w, h.Log, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, c)
}

// HandleRemoveCheckIn handles DELETE /board/check-ins/{checkInID}.
func (h *Handler) HandleRemoveCheckIn(w http.ResponseWriter, r *http.Request) {
	sc, err := scopeOf(r)
	if err != nil {
		httpx.Error(w, h.Log, err)
		return
	}
	id := chi.URLParam(r, "checkInID")
	if !ownCheckIn(sc.cs.CheckIns.CheckIns(), id, sc.userID()) {
		httpx.Error(w, h.Log, apperr.New(apperr.CodeNotFound, "Check-in not found."))
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "remove check-in")
	defer cancel()

	if err := sc.cs.CheckIns.Remove(ctx, id); err != nil {
		httpx.Error(w, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func ownGratitude(list []models.GratitudeVote, id, userID string) bool {
	for _, g := range list {
		if g.ID == id {
			return g.UserID == userID
		}
	}
	return false
}

func ownCheckIn(list []models.CheckIn, id, userID string) bool {
	for _, c := range list {
		if c.ID == id {
			return c.UserID == userID
		}
	}
	return false
}
