// internal/app/store/checkins/checkinstore.go
package checkinstore

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

const genCheckIns = "check_ins"

// Stats is attendance for one entry against the community size.
type Stats struct {
	CurrentCheckIns int `json:"current_check_ins"`
	TotalMembers    int `json:"total_members"`
}

// Store holds the check-ins of the entry most recently fetched.
type Store struct {
	docs docstore.Service
	log  *zap.Logger
	loc  *time.Location
	now  func() time.Time
	gens generation.Counter

	mu       sync.RWMutex
	checkIns []models.CheckIn
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New builds a store that dates check-ins in loc (UTC when nil).
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

// Fetch replaces the local check-ins with those of entryID in communityID.
func (s *Store) Fetch(ctx context.Context, entryID, communityID string) ([]models.CheckIn, error) {
	if entryID == "" || communityID == "" {
		return nil, apperr.Validation("Invalid entry or community ID.")
	}
	gen := s.gens.Begin(genCheckIns)

	snaps, err := s.docs.Query(ctx, docstore.CheckIns,
		docstore.Where("entry_id", entryID),
		docstore.Where("community_id", communityID))
	if err != nil {
		s.log.Error("fetch check-ins failed",
			zap.String("entry_id", entryID),
			zap.String("community_id", communityID),
			zap.Error(err))
		return nil, apperr.Remote("Failed to fetch check-ins.", err)
	}
	list := make([]models.CheckIn, 0, len(snaps))
	for _, snap := range snaps {
		var c models.CheckIn
		if err := docstore.DecodeSnapshot(snap, &c); err != nil {
			s.log.Warn("skipping malformed check-in", zap.String("check_in_id", snap.ID), zap.Error(err))
			continue
		}
		c.ID = snap.ID
		list = append(list, c)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gens.Current(genCheckIns, gen) {
		s.checkIns = list
	}
	return append([]models.CheckIn(nil), list...), nil
}

// Add records a confirmed check-in for today.
func (s *Store) Add(ctx context.Context, userID, entryID, communityID string) (*models.CheckIn, error) {
	c := models.CheckIn{
		UserID:      userID,
		EntryID:     entryID,
		CommunityID: communityID,
		CheckInDate: s.now().In(s.loc).Format(models.CheckInDateLayout),
		Status:      models.CheckInStatusConfirmed,
		Score:       1,
	}
	if err := c.Validate(); err != nil {
		return nil, apperr.Validation("Invalid check-in.")
	}

	id, err := s.docs.Add(ctx, docstore.CheckIns, c.ToDocument())
	if err != nil {
		s.log.Error("add check-in failed", zap.String("entry_id", entryID), zap.Error(err))
		return nil, apperr.Remote("Failed to add check-in.", err)
	}
	c.ID = id

	s.mu.Lock()
	s.checkIns = append(s.checkIns, c)
	s.mu.Unlock()
	return &c, nil
}

// Remove deletes a check-in remotely, then locally.
func (s *Store) Remove(ctx context.Context, checkInID string) error {
	if err := s.docs.Delete(ctx, docstore.CheckIns, checkInID); err != nil {
		s.log.Error("remove check-in failed", zap.String("check_in_id", checkInID), zap.Error(err))
		return apperr.Remote("Failed to remove check-in.", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.checkIns[:0:0]
	for _, c := range s.checkIns {
		if c.ID != checkInID {
			kept = append(kept, c)
		}
	}
	s.checkIns = kept
	return nil
}

// CheckIns returns a copy of the local check-ins.
func (s *Store) CheckIns() []models.CheckIn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.CheckIn(nil), s.checkIns...)
}

// Stats counts the local check-ins on entryID.
func (s *Store) Stats(entryID string, membersCount int) Stats {
	st := Stats{TotalMembers: membersCount}
	for _, c := range s.CheckIns() {
		if c.EntryID == entryID {
			st.CurrentCheckIns++
		}
	}
	return st
}
