// internal/app/store/profiles/profilestore.go
package profilestore

import (
	"context"
	"sync"
	"time"

	"github.com/dalemusser/juntos/internal/app/system/docstore"
	"github.com/dalemusser/juntos/internal/domain/models"
)

// Store reads and writes profile documents, keyed by user id.
type Store struct {
	docs docstore.Service

	mu      sync.RWMutex
	publics map[string]models.PublicProfile
}

func New(docs docstore.Service) *Store {
	return &Store{docs: docs, publics: make(map[string]models.PublicProfile)}
}

// Get loads a profile. Missing profiles report docstore.ErrNotFound.
func (s *Store) Get(ctx context.Context, userID string) (*models.Profile, error) {
	snap, err := s.docs.Get(ctx, docstore.Profiles, userID)
	if err != nil {
		return nil, err
	}
	return Decode(snap)
}

// Decode turns a profile snapshot into a validated Profile.
func Decode(snap docstore.Snapshot) (*models.Profile, error) {
	var p models.Profile
	if err := docstore.DecodeSnapshot(snap, &p); err != nil {
		return nil, err
	}
	if p.UserID == "" {
		p.UserID = snap.ID
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Create writes a new profile and its public projection.
func (s *Store) Create(ctx context.Context, p *models.Profile) error {
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	if err := s.docs.Set(ctx, docstore.Profiles, p.UserID, p.ToDocument()); err != nil {
		return err
	}
	pub := models.PublicProfile{UserID: p.UserID, Username: p.Username, FullName: p.FullName, Role: p.Role}
	return s.docs.Set(ctx, docstore.PublicProfiles, p.UserID, docstore.Document{
		"user_id":   pub.UserID,
		"username":  pub.Username,
		"full_name": pub.FullName,
		"role":      string(pub.Role),
	})
}

// SetActiveCommunity updates current_community_id only.
// Delete removes the profile and its public projection.
func (s *Store) Delete(ctx context.Context, userID string) error {
	if err := s.docs.Delete(ctx, docstore.PublicProfiles, userID); err != nil {
		return err
	}
	return s.docs.Delete(ctx, docstore.Profiles, userID)
}

func (s *Store) SetActiveCommunity(ctx context.Context, userID, communityID string) error {
	return s.docs.Update(ctx, docstore.Profiles, userID, docstore.Document{
		"current_community_id": communityID,
		"updated_at":           time.Now().UTC(),
	})
}

// AddCommunity appends communityID to the membership set (no duplicates)
// and makes it the active community in the same write.
func (s *Store) AddCommunity(ctx context.Context, userID, communityID string) error {
	return s.docs.Update(ctx, docstore.Profiles, userID, docstore.Document{
		"community_ids":        docstore.ArrayUnion(communityID),
		"current_community_id": communityID,
		"updated_at":           time.Now().UTC(),
	})
}

// Subscribe watches one profile document.
func (s *Store) Subscribe(ctx context.Context, userID string, fn docstore.SubscribeFunc) (docstore.Subscription, error) {
	return s.docs.Subscribe(ctx, docstore.Profiles, userID, fn)
}

// GetPublic returns another user's public profile. Results are cached for
// the lifetime of the Store.
func (s *Store) GetPublic(ctx context.Context, userID string) (models.PublicProfile, error) {
	s.mu.RLock()
	pub, ok := s.publics[userID]
	s.mu.RUnlock()
	if ok {
		return pub, nil
	}

	snap, err := s.docs.Get(ctx, docstore.PublicProfiles, userID)
	if err != nil {
		return models.PublicProfile{}, err
	}
	if err := docstore.DecodeSnapshot(snap, &pub); err != nil {
		return models.PublicProfile{}, err
	}
	if pub.UserID == "" {
		pub.UserID = userID
	}

	s.mu.Lock()
	s.publics[userID] = pub
	s.mu.Unlock()
	return pub, nil
}
