package profilestore

import (
	"context"
	"testing"

	"github.com/dalemusser/juntos/internal/app/system/docstore"
	"github.com/dalemusser/juntos/internal/app/system/docstore/memdocs"
	"github.com/dalemusser/juntos/internal/domain/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndGet(t *testing.T) {
	ctx := context.Background()
	s := New(memdocs.New())

	require.NoError(t, s.Create(ctx, &models.Profile{UserID: "u1", Username: "ana", FullName: "Ana Lopez", Role: models.RoleMember}))

	p, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "ana", p.Username)
	assert.Empty(t, p.CommunityIDs)
	assert.False(t, p.CreatedAt.IsZero())

	pub, err := s.GetPublic(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Ana Lopez", pub.FullName)
}

func TestGet_Missing(t *testing.T) {
	_, err := New(memdocs.New()).Get(context.Background(), "ghost")
	assert.ErrorIs(t, err, docstore.ErrNotFound)
}

func TestAddCommunity_SetsActiveWithoutDuplicates(t *testing.T) {
	ctx := context.Background()
	s := New(memdocs.New())
	require.NoError(t, s.Create(ctx, &models.Profile{UserID: "u1", Role: models.RoleMember}))

	require.NoError(t, s.AddCommunity(ctx, "u1", "c1"))
	require.NoError(t, s.AddCommunity(ctx, "u1", "c1"))
	require.NoError(t, s.AddCommunity(ctx, "u1", "c2"))

	p, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"c1", "c2"}, p.CommunityIDs)
	assert.Equal(t, "c2", p.CurrentCommunityID)
	assert.NoError(t, p.CheckInvariant())

	require.NoError(t, s.SetActiveCommunity(ctx, "u1", "c1"))
	p, _ = s.Get(ctx, "u1")
	assert.Equal(t, "c1", p.CurrentCommunityID)
}

func TestDecode_RejectsUnknownRole(t *testing.T) {
	_, err := Decode(docstore.Snapshot{ID: "u1", Exists: true, Data: docstore.Document{"role": "superadmin"}})
	assert.Error(t, err)
}

func TestGetPublic_Cached(t *testing.T) {
	ctx := context.Background()
	docs := memdocs.New()
	s := New(docs)
	require.NoError(t, s.Create(ctx, &models.Profile{UserID: "u1", FullName: "Ana", Role: models.RoleLeader}))

	_, err := s.GetPublic(ctx, "u1")
	require.NoError(t, err)
	require.NoError(t, docs.Delete(ctx, docstore.PublicProfiles, "u1"))

	pub, err := s.GetPublic(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.RoleLeader, pub.Role)
}
