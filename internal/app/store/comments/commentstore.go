// internal/app/store/comments/commentstore.go
package commentstore

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	profilestore "github.com/dalemusser/juntos/internal/app/store/profiles"
	"github.com/dalemusser/juntos/internal/app/system/apperr"
	"github.com/dalemusser/juntos/internal/app/system/docstore"
	"github.com/dalemusser/juntos/internal/app/system/generation"
	"github.com/dalemusser/juntos/internal/app/system/htmlsanitize"
	"github.com/dalemusser/juntos/internal/domain/models"
	"go.uber.org/zap"
)

const genComments = "comments"

var errParentNotFound = apperr.Validation("The comment you are replying to was not found.")

// NewComment is the input to Add.
type NewComment struct {
	EntryID         string
	UserID          string
	Username        string
	Text            string
	ParentCommentID string
}

// Store holds the comments of the entry most recently fetched.
type Store struct {
	docs     docstore.Service
	profiles *profilestore.Store
	log      *zap.Logger
	gens     generation.Counter

	mu       sync.RWMutex
	comments []models.Comment
}

func New(docs docstore.Service, profiles *profilestore.Store, logger *zap.Logger) *Store {
	return &Store{docs: docs, profiles: profiles, log: logger}
}

// checkParent requires parentID to be a comment on entryID. The local list
// is consulted first; otherwise the document is read.
func (s *Store) checkParent(ctx context.Context, entryID, parentID string) error {
	s.mu.RLock()
	for _, c := range s.comments {
		if c.ID == parentID {
			s.mu.RUnlock()
			if c.EntryID != entryID {
				return errParentNotFound
			}
			return nil
		}
	}
	s.mu.RUnlock()

	snap, err := s.docs.Get(ctx, docstore.Comments, parentID)
	if errors.Is(err, docstore.ErrNotFound) {
		return errParentNotFound
	}
	if err != nil {
		s.log.Error("load parent comment failed", zap.String("comment_id", parentID), zap.Error(err))
		return apperr.Remote("Failed to add comment.", err)
	}
	if owner, _ := snap.Data["entry_id"].(string); owner != entryID {
		return errParentNotFound
	}
	return nil
}

// FetchByEntryID replaces the local comments with those of entryID, each
// enriched with its author's full name and role, and returns the top-level
// ones.
func (s *Store) FetchByEntryID(ctx context.Context, entryID string) ([]models.Comment, error) {
	if entryID == "" {
		return nil, apperr.Validation("Invalid entry ID.")
	}
	gen := s.gens.Begin(genComments)

	snaps, err := s.docs.Query(ctx, docstore.Comments, docstore.Where("entry_id", entryID))
	if err != nil {
		s.log.Error("fetch comments failed", zap.String("entry_id", entryID), zap.Error(err))
		return nil, apperr.Remote("Failed to fetch comments.", err)
	}

	list := make([]models.Comment, 0, len(snaps))
	for _, snap := range snaps {
		var c models.Comment
		if err := docstore.DecodeSnapshot(snap, &c); err != nil {
			s.log.Warn("skipping malformed comment", zap.String("comment_id", snap.ID), zap.Error(err))
			continue
		}
		c.ID = snap.ID
		if err := c.Validate(); err != nil {
			s.log.Warn("skipping malformed comment", zap.String("comment_id", snap.ID), zap.Error(err))
			continue
		}
		s.enrich(ctx, &c)
		list = append(list, c)
	}
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})

	s.mu.Lock()
	if !s.gens.Current(genComments, gen) {
		s.mu.Unlock()
		s.log.Debug("discarding stale comment fetch", zap.String("entry_id", entryID))
		return topLevel(list, entryID), nil
	}
	s.comments = list
	s.mu.Unlock()

	return topLevel(list, entryID), nil
}

// Add stores a comment (text reduced to plain text) and appends it locally.
func (s *Store) Add(ctx context.Context, in NewComment) (*models.Comment, error) {
	text := htmlsanitize.PlainText(in.Text)
	if text == "" {
		return nil, apperr.Validation("Comment text is required.")
	}
	c := models.Comment{
		EntryID:         in.EntryID,
		UserID:          in.UserID,
		Username:        in.Username,
		Text:            text,
		ParentCommentID: in.ParentCommentID,
		CreatedAt:       time.Now().UTC(),
	}
	if err := c.Validate(); err != nil {
		return nil, apperr.Validation("Invalid comment.")
	}
	if c.ParentCommentID != "" {
		if err := s.checkParent(ctx, c.EntryID, c.ParentCommentID); err != nil {
			return nil, err
		}
	}

	id, err := s.docs.Add(ctx, docstore.Comments, c.ToDocument())
	if err != nil {
		s.log.Error("add comment failed", zap.String("entry_id", c.EntryID), zap.Error(err))
		return nil, apperr.Remote("Failed to add comment.", err)
	}
	c.ID = id
	s.enrich(ctx, &c)

	s.mu.Lock()
	s.comments = append(s.comments, c)
	s.mu.Unlock()
	return &c, nil
}

// All returns a copy of every locally held comment.
func (s *Store) All() []models.Comment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Comment(nil), s.comments...)
}

// TopLevel returns the local comments on entryID that are not replies.
func (s *Store) TopLevel(entryID string) []models.Comment {
	return topLevel(s.All(), entryID)
}

// Replies returns the local replies to commentID.
func (s *Store) Replies(commentID string) []models.Comment {
	var out []models.Comment
	for _, c := range s.All() {
		if c.ParentCommentID == commentID {
			out = append(out, c)
		}
	}
	return out
}

// Thread arranges the local comments on entryID into reply trees.
func (s *Store) Thread(entryID string) []models.CommentThread {
	all := s.All()
	children := make(map[string][]models.Comment)
	for _, c := range all {
		if c.EntryID == entryID && !c.IsTopLevel() {
			children[c.ParentCommentID] = append(children[c.ParentCommentID], c)
		}
	}
	var build func(c models.Comment, seen map[string]bool) models.CommentThread
	build = func(c models.Comment, seen map[string]bool) models.CommentThread {
		seen[c.ID] = true
		t := models.CommentThread{Comment: c}
		for _, r := range children[c.ID] {
			if seen[r.ID] {
				continue
			}
			t.Replies = append(t.Replies, build(r, seen))
		}
		return t
	}

	seen := make(map[string]bool)
	var out []models.CommentThread
	for _, c := range topLevel(all, entryID) {
		out = append(out, build(c, seen))
	}
	return out
}

func (s *Store) enrich(ctx context.Context, c *models.Comment) {
	pub, err := s.profiles.GetPublic(ctx, c.UserID)
	if err != nil {
		c.FullName = models.UnknownAuthorName
		c.AuthorRole = models.RoleMember
		return
	}
	c.FullName = pub.FullName
	c.AuthorRole = pub.Role
	if c.AuthorRole == "" {
		c.AuthorRole = models.RoleMember
	}
}

func topLevel(list []models.Comment, entryID string) []models.Comment {
	var out []models.Comment
	for _, c := range list {
		if c.EntryID == entryID && c.IsTopLevel() {
			out = append(out, c)
		}
	}
	return out
}
