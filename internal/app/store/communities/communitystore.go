// internal/app/store/communities/communitystore.go
package communitystore

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/juntos/internal/app/system/docstore"
	"github.com/dalemusser/juntos/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/text"
)

// ErrDuplicateCommunity is returned when the name (case-folded) is taken.
var ErrDuplicateCommunity = errors.New("a community with this name already exists")

type Store struct {
	docs docstore.Service
}

func New(docs docstore.Service) *Store {
	return &Store{docs: docs}
}

// Get loads a community. Missing communities report docstore.ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*models.Community, error) {
	snap, err := s.docs.Get(ctx, docstore.Communities, id)
	if err != nil {
		return nil, err
	}
	var c models.Community
	if err := docstore.DecodeSnapshot(snap, &c); err != nil {
		return nil, err
	}
	c.ID = snap.ID
	return &c, nil
}

// Exists reports whether a community with this id exists.
func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	_, err := s.docs.Get(ctx, docstore.Communities, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// ExistsByName checks for a community with the same case-folded name.
func (s *Store) ExistsByName(ctx context.Context, name string) (bool, error) {
	snaps, err := s.docs.Query(ctx, docstore.Communities, docstore.Where("name_ci", text.Fold(name)))
	if err != nil {
		return false, err
	}
	return len(snaps) > 0, nil
}

// Create stores c under c.ID, filling name_ci and timestamps. A unique
// index violation on name_ci is reported as ErrDuplicateCommunity.
func (s *Store) Create(ctx context.Context, c *models.Community) error {
	now := time.Now().UTC()
	c.NameCI = text.Fold(c.Name)
	c.CreatedAt = now
	c.UpdatedAt = now
	err := s.docs.Set(ctx, docstore.Communities, c.ID, c.ToDocument())
	if errors.Is(err, docstore.ErrDuplicate) {
		return ErrDuplicateCommunity
	}
	return err
}

// AddMember appends a member entry. The document service's array union
// makes repeating the same entry a no-op.
func (s *Store) AddMember(ctx context.Context, id string, m models.CommunityMember) error {
	return s.docs.Update(ctx, docstore.Communities, id, docstore.Document{
		"members":    docstore.ArrayUnion(m.ToDocument()),
		"updated_at": time.Now().UTC(),
	})
}

// Delete removes a community document.
func (s *Store) Delete(ctx context.Context, id string) error {
	return s.docs.Delete(ctx, docstore.Communities, id)
}

// GetMany loads the given communities, skipping ids that do not resolve.
func (s *Store) GetMany(ctx context.Context, ids []string) ([]models.Community, error) {
	out := make([]models.Community, 0, len(ids))
	for _, id := range ids {
		c, err := s.Get(ctx, id)
		if errors.Is(err, docstore.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, nil
}
