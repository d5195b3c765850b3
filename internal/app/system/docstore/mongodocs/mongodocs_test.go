package mongodocs

import (
	"errors"
	"testing"
	"time"

	"github.com/dalemusser/juntos/internal/app/system/docstore"
	"github.com/dalemusser/juntos/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

func TestFromBSON_Conversions(t *testing.T) {
	ts := time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)
	oid := primitive.NewObjectID()

	got := fromBSON(primitive.M{
		"when":    primitive.NewDateTimeFromTime(ts),
		"members": primitive.A{primitive.M{"user_id": "u1"}, primitive.D{{Key: "role", Value: "leader"}}},
		"ref":     oid,
		"n":       int32(3),
	}).(map[string]any)

	assert.Equal(t, ts, got["when"])
	assert.Equal(t, []any{map[string]any{"user_id": "u1"}, map[string]any{"role": "leader"}}, got["members"])
	assert.Equal(t, oid.Hex(), got["ref"])
	assert.Equal(t, int64(3), got["n"])
}

func TestToBSON_SortsEmbeddedKeys(t *testing.T) {
	got := toBSON([]any{map[string]any{"user_id": "u1", "role": "member"}}).(primitive.A)
	doc := got[0].(primitive.D)
	require.Len(t, doc, 2)
	assert.Equal(t, "role", doc[0].Key)
	assert.Equal(t, "user_id", doc[1].Key)
}

func TestStore_RoundTrip(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	s := New(db, zap.NewNop())

	require.NoError(t, s.Set(ctx, "profiles", "u1", docstore.Document{
		"username":      "ana",
		"community_ids": []string{"a"},
	}))
	require.NoError(t, s.Update(ctx, "profiles", "u1", docstore.Document{
		"community_ids":        docstore.ArrayUnion("a", "b"),
		"current_community_id": "b",
	}))

	snap, err := s.Get(ctx, "profiles", "u1")
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b"}, snap.Data["community_ids"])
	assert.Equal(t, "b", snap.Data["current_community_id"])

	_, err = s.Get(ctx, "profiles", "missing")
	assert.ErrorIs(t, err, docstore.ErrNotFound)

	err = s.Update(ctx, "profiles", "missing", docstore.Document{"x": 1})
	assert.True(t, errors.Is(err, docstore.ErrNotFound))
}

func TestStore_QueryAndAdd(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	s := New(db, zap.NewNop())

	id, err := s.Add(ctx, "entries", docstore.Document{"community_id": "c1", "status": "visible"})
	require.NoError(t, err)
	_, err = s.Add(ctx, "entries", docstore.Document{"community_id": "c2", "status": "visible"})
	require.NoError(t, err)

	got, err := s.Query(ctx, "entries", docstore.Where("community_id", "c1"))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, id, got[0].ID)

	require.NoError(t, s.Delete(ctx, "entries", id))
	require.NoError(t, s.Delete(ctx, "entries", id))
}
