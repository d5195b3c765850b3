// internal/app/store/votes/votestore.go
package votestore

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

var errInvalidVoteType = apperr.Validation("Invalid vote type.")

// Store holds votes per entry. One vote per (entry, user) is the caller's
// responsibility: check UserVote before Add.
type Store struct {
	docs docstore.Service
	log  *zap.Logger
	gens generation.Counter

	mu    sync.RWMutex
	votes map[string][]models.Vote // by entry id
}

func New(docs docstore.Service, logger *zap.Logger) *Store {
	return &Store{docs: docs, log: logger, votes: make(map[string][]models.Vote)}
}

// FetchForEntry replaces the local votes of entryID.
func (s *Store) FetchForEntry(ctx context.Context, entryID string) ([]models.Vote, error) {
	if entryID == "" {
		return nil, apperr.Validation("Invalid entry ID.")
	}
	gen := s.gens.Begin(entryID)

	snaps, err := s.docs.Query(ctx, docstore.Votes, docstore.Where("entry_id", entryID))
	if err != nil {
		s.log.Error("fetch votes failed", zap.String("entry_id", entryID), zap.Error(err))
		return nil, apperr.Remote("Failed to fetch votes.", err)
	}
	list := make([]models.Vote, 0, len(snaps))
	for _, snap := range snaps {
		var v models.Vote
		if err := docstore.DecodeSnapshot(snap, &v); err != nil {
			s.log.Warn("skipping malformed vote", zap.String("vote_id", snap.ID), zap.Error(err))
			continue
		}
		v.ID = snap.ID
		if err := v.Validate(); err != nil {
			s.log.Warn("skipping malformed vote", zap.String("vote_id", snap.ID), zap.Error(err))
			continue
		}
		list = append(list, v)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gens.Current(entryID, gen) {
		s.votes[entryID] = list
	}
	return append([]models.Vote(nil), list...), nil
}

// VotesForEntry returns the local votes of entryID.
func (s *Store) VotesForEntry(entryID string) []models.Vote {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Vote(nil), s.votes[entryID]...)
}

// Counts tallies the local votes of entryID. Every vote type is present.
func (s *Store) Counts(entryID string) map[models.VoteType]int {
	counts := make(map[models.VoteType]int, len(models.VoteTypes))
	for _, t := range models.VoteTypes {
		counts[t] = 0
	}
	for _, v := range s.VotesForEntry(entryID) {
		counts[v.VoteType]++
	}
	return counts
}

// UserVote returns userID's local vote on entryID, or nil.
func (s *Store) UserVote(entryID, userID string) *models.Vote {
	for _, v := range s.VotesForEntry(entryID) {
		if v.UserID == userID {
			return &v
		}
	}
	return nil
}

// Add stores a vote and appends it locally.
func (s *Store) Add(ctx context.Context, entryID, userID string, voteType models.VoteType) (*models.Vote, error) {
	v := models.Vote{EntryID: entryID, UserID: userID, VoteType: voteType, CreatedAt: time.Now().UTC()}
	if !voteType.Valid() {
		return nil, errInvalidVoteType
	}
	if err := v.Validate(); err != nil {
		return nil, apperr.Validation("Invalid vote.")
	}

	id, err := s.docs.Add(ctx, docstore.Votes, v.ToDocument())
	if err != nil {
		s.log.Error("add vote failed", zap.String("entry_id", entryID), zap.Error(err))
		return nil, apperr.Remote("Failed to add vote.", err)
	}
	v.ID = id

	s.mu.Lock()
	s.votes[entryID] = append(s.votes[entryID], v)
	s.mu.Unlock()
	return &v, nil
}

// Find returns the locally held vote with voteID.
func (s *Store) Find(voteID string) *models.Vote {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, list := range s.votes {
		for i := range list {
			if list[i].ID == voteID {
				v := list[i]
				return &v
			}
		}
	}
	return nil
}

// Remove deletes a vote remotely and from every local entry list.
func (s *Store) Remove(ctx context.Context, voteID string) error {
	if err := s.docs.Delete(ctx, docstore.Votes, voteID); err != nil {
		s.log.Error("remove vote failed", zap.String("vote_id", voteID), zap.Error(err))
		return apperr.Remote("Failed to remove vote.", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for entryID, list := range s.votes {
		kept := list[:0:0]
		for _, v := range list {
			if v.ID != voteID {
				kept = append(kept, v)
			}
		}
		s.votes[entryID] = kept
	}
	return nil
}

// Update changes the type of an existing vote.
func (s *Store) Update(ctx context.Context, voteID string, voteType models.VoteType) error {
	if !voteType.Valid() {
		return errInvalidVoteType
	}
	err := s.docs.Update(ctx, docstore.Votes, voteID, docstore.Document{"vote_type": string(voteType)})
	if err != nil {
		s.log.Error("update vote failed", zap.String("vote_id", voteID), zap.Error(err))
		return apperr.Remote("Failed to update vote.", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, list := range s.votes {
		for i := range list {
			if list[i].ID == voteID {
				list[i].VoteType = voteType
			}
		}
	}
	return nil
}

// Cast records userID's vote on entryID: the existing local vote is
// updated, otherwise a new one is added.
func (s *Store) Cast(ctx context.Context, entryID, userID string, voteType models.VoteType) (*models.Vote, error) {
	if existing := s.UserVote(entryID, userID); existing != nil {
		if err := s.Update(ctx, existing.ID, voteType); err != nil {
			return nil, err
		}
		existing.VoteType = voteType
		return existing, nil
	}
	return s.Add(ctx, entryID, userID, voteType)
}
