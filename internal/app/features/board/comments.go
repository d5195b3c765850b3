package board

import (
	"net/http"

	commentstore "github.com/dalemusser/juntos/internal/app/store/comments"
	"github.com/dalemusser/juntos/internal/app/system/httpx"
	"github.com/dalemusser/juntos/internal/app/system/timeouts"
	"github.com/go-chi/chi/v5"
)

type commentRequest struct {
	Text            string `json:"text"`
	ParentCommentID string `json:"parent_comment_id"`
}

// ServeComments handles GET /board/entries/{entryID}/comments and returns
// the comments as threads.
func (h *Handler) ServeComments(w http.ResponseWriter, r *http.Request) {
	sc, err := scopeOf(r)
	if err != nil {
		httpx.Error(w, h.Log, err)
		return
	}
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "fetch comments")
	defer cancel()

	e, err := sc.entry(ctx, chi.URLParam(r, "entryID"))
	if err != nil {
		httpx.Error(w, h.Log, err)
		return
	}
	if _, err := sc.cs.Comments.FetchByEntryID(ctx, e.ID); err != nil {
		httpx.Error(w, h.Log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"comments": sc.cs.Comments.Thread(e.ID)})
}

// HandleAddComment handles POST /board/entries/{entryID}/comments.
func (h *Handler) HandleAddComment(w http.ResponseWriter, r *http.Request) {
	sc, err := scopeOf(r)
	if err != nil {
		httpx.Error(w, h.Log, err)
		return
	}
	var req commentRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, h.Log, err)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "add comment")
	defer cancel()

	e, err := sc.entry(ctx, chi.URLParam(r, "entryID"))
	if err != nil {
		httpx.Error(w, h.Log, err)
		return
	}
	c, err := sc.cs.Comments.Add(ctx, commentstore.NewComment{
		EntryID:         e.ID,
		UserID:          sc.userID(),
		Username:        sc.profile.Username,
		Text:            req.Text,
		ParentCommentID: req.ParentCommentID,
	})
	if err != nil {
		httpx.Error(w, h.Log, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, c)
}
