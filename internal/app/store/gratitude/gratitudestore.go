// internal/app/store/gratitude/gratitudestore.go
package gratitudestore

import (
	"context"
	"sync"
	"time"

	"github.com/dalemusser/juntos/internal/app/system/apperr"
	"github.com/dalemusser/juntos/internal/app/system/docstore"
	"github.com/dalemusser/juntos/internal/app/system/generation"
	"github.com/dalemusser/juntos/internal/domain/models"
	"go.uber.org/zap"
)

const genGratitude = "gratitude"

// Stats summarizes gratitude on one entry.
type Stats struct {
	TotalVotes    int `json:"total_votes"`
	IntervalVotes int `json:"interval_votes"`
}

// Store holds the gratitude votes of one community. A user can thank an
// entry once per calendar day; a second vote in the same day overwrites
// the first.
type Store struct {
	docs docstore.Service
	log  *zap.Logger
	loc  *time.Location
	now  func() time.Time
	gens generation.Counter

	mu    sync.RWMutex
	votes []models.GratitudeVote
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New builds a store whose day boundaries fall at midnight in loc (UTC
// when nil).
func New(docs docstore.Service, logger *zap.Logger, loc *time.Location, opts ...Option) *Store {
	if loc == nil {
		loc = time.UTC
	}
	s := &Store{docs: docs, log: logger, loc: loc, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Interval returns the current day's [start, end] bounds.
func (s *Store) Interval() (start, end time.Time) {
	t := s.now().In(s.loc)
	start = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, s.loc)
	end = start.AddDate(0, 0, 1).Add(-time.Millisecond)
	return start, end
}

// FetchForCommunity replaces the local votes with those of communityID.
func (s *Store) FetchForCommunity(ctx context.Context, communityID string) ([]models.GratitudeVote, error) {
	if communityID == "" {
		return nil, apperr.Validation("Invalid community ID.")
	}
	gen := s.gens.Begin(genGratitude)

	snaps, err := s.docs.Query(ctx, docstore.GratitudeVotes, docstore.Where("community_id", communityID))
	if err != nil {
		s.log.Error("fetch gratitude votes failed", zap.String("community_id", communityID), zap.Error(err))
		return nil, apperr.Remote("Failed to fetch gratitude votes.", err)
	}
	list := make([]models.GratitudeVote, 0, len(snaps))
	for _, snap := range snaps {
		var g models.GratitudeVote
		if err := docstore.DecodeSnapshot(snap, &g); err != nil {
			s.log.Warn("skipping malformed gratitude vote", zap.String("gratitude_id", snap.ID), zap.Error(err))
			continue
		}
		g.ID = snap.ID
		list = append(list, g)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gens.Current(genGratitude, gen) {
		s.votes = list
	} else {
		s.log.Debug("discarding stale gratitude fetch", zap.String("community_id", communityID))
	}
	return append([]models.GratitudeVote(nil), list...), nil
}

// Add records userID's gratitude for entryID today. The document id is
// derived from (entry, user, day), so repeating it overwrites.
func (s *Store) Add(ctx context.Context, entryID, userID, communityID string) (*models.GratitudeVote, error) {
	if entryID == "" || userID == "" || communityID == "" {
		return nil, apperr.Validation("Invalid gratitude vote.")
	}
	start, end := s.Interval()
	g := models.GratitudeVote{
		ID:            models.GratitudeKey(entryID, userID, start),
		EntryID:       entryID,
		UserID:        userID,
		CommunityID:   communityID,
		IntervalStart: start.UTC(),
		IntervalEnd:   end.UTC(),
		CreatedAt:     s.now().UTC(),
	}

	if err := s.docs.Set(ctx, docstore.GratitudeVotes, g.ID, g.ToDocument()); err != nil {
		s.log.Error("add gratitude vote failed", zap.String("entry_id", entryID), zap.Error(err))
		return nil, apperr.Remote("Failed to add gratitude vote.", err)
	}

	s.mu.Lock()
	replaced := false
	for i := range s.votes {
		if s.votes[i].ID == g.ID {
			s.votes[i] = g
			replaced = true
			break
		}
	}
	if !replaced {
		s.votes = append(s.votes, g)
	}
	s.mu.Unlock()
	return &g, nil
}

// Remove deletes a gratitude vote remotely, then locally.
func (s *Store) Remove(ctx context.Context, gratitudeID string) error {
	if err := s.docs.Delete(ctx, docstore.GratitudeVotes, gratitudeID); err != nil {
		s.log.Error("remove gratitude vote failed", zap.String("gratitude_id", gratitudeID), zap.Error(err))
		return apperr.Remote("Failed to remove gratitude vote.", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.votes[:0:0]
	for _, g := range s.votes {
		if g.ID != gratitudeID {
			kept = append(kept, g)
		}
	}
	s.votes = kept
	return nil
}

// Votes returns a copy of the local votes.
func (s *Store) Votes() []models.GratitudeVote {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.GratitudeVote(nil), s.votes...)
}

// HasVoted reports whether userID thanked entryID today.
func (s *Store) HasVoted(entryID, userID string) bool {
	start, _ := s.Interval()
	for _, g := range s.Votes() {
		if g.EntryID == entryID && g.UserID == userID && g.IntervalStart.Equal(start) {
			return true
		}
	}
	return false
}

// Stats counts all local votes on entryID and those cast today.
func (s *Store) Stats(entryID string) Stats {
	start, _ := s.Interval()
	var st Stats
	for _, g := range s.Votes() {
		if g.EntryID != entryID {
			continue
		}
		st.TotalVotes++
		if g.IntervalStart.Equal(start) {
			st.IntervalVotes++
		}
	}
	return st
}
