package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/dalemusser/juntos/internal/app/system/docstore"
	"github.com/dalemusser/juntos/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/text"
	"github.com/google/uuid"
)

// Fixtures provides helper methods for creating test data.
type Fixtures struct {
	docs docstore.Service
	t    *testing.T
}

// NewFixtures creates a new Fixtures instance over the given document service.
func NewFixtures(t *testing.T, docs docstore.Service) *Fixtures {
	t.Helper()
	return &Fixtures{docs: docs, t: t}
}

// Docs returns the underlying document service for direct access in tests.
func (f *Fixtures) Docs() docstore.Service {
	return f.docs
}

// CreateProfile stores a member profile belonging to the given communities.
// The first community, if any, becomes the active one.
func (f *Fixtures) CreateProfile(ctx context.Context, userID, fullName string, communityIDs ...string) models.Profile {
	f.t.Helper()

	now := time.Now().UTC()
	p := models.Profile{
		UserID:       userID,
		Username:     userID,
		FullName:     fullName,
		Email:        userID + "@test.com",
		Role:         models.RoleMember,
		CommunityIDs: append([]string{}, communityIDs...),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if len(communityIDs) > 0 {
		p.CurrentCommunityID = communityIDs[0]
	}
	if err := f.docs.Set(ctx, docstore.Profiles, userID, p.ToDocument()); err != nil {
		f.t.Fatalf("failed to create test profile: %v", err)
	}
	return p
}

// CreateCommunity stores a community led by leaderID. Extra members join
// with the member role.
func (f *Fixtures) CreateCommunity(ctx context.Context, id, name, leaderID string, memberIDs ...string) models.Community {
	f.t.Helper()

	now := time.Now().UTC()
	c := models.Community{
		ID:        id,
		Name:      name,
		NameCI:    text.Fold(name),
		CreatedBy: leaderID,
		Members:   []models.CommunityMember{{UserID: leaderID, Role: models.RoleLeader}},
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, m := range memberIDs {
		c.Members = append(c.Members, models.CommunityMember{UserID: m, Role: models.RoleMember})
	}
	if err := f.docs.Set(ctx, docstore.Communities, id, c.ToDocument()); err != nil {
		f.t.Fatalf("failed to create test community: %v", err)
	}
	return c
}

// CreateEntry stores an entry under e.ID, or a fresh id when empty.
func (f *Fixtures) CreateEntry(ctx context.Context, e models.Entry) models.Entry {
	f.t.Helper()

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Status == "" {
		e.Status = models.EntryStatusVisible
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if err := f.docs.Set(ctx, docstore.Entries, e.ID, e.ToDocument()); err != nil {
		f.t.Fatalf("failed to create test entry: %v", err)
	}
	return e
}
