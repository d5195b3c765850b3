package memdocs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dalemusser/juntos/internal/app/system/docstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGet_Missing(t *testing.T) {
	s := New()
	_, err := s.Get(context.Background(), "profiles", "nope")
	assert.ErrorIs(t, err, docstore.ErrNotFound)
}

func TestSetGet_CopiesData(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.Set(ctx, "profiles", "u1", docstore.Document{
		"community_ids": []string{"a", "b"},
	}))

	snap, err := s.Get(ctx, "profiles", "u1")
	require.NoError(t, err)
	assert.True(t, snap.Exists)
	assert.Equal(t, []any{"a", "b"}, snap.Data["community_ids"])

	// Mutating the returned snapshot must not leak into the store.
	snap.Data["community_ids"].([]any)[0] = "zzz"
	again, _ := s.Get(ctx, "profiles", "u1")
	assert.Equal(t, []any{"a", "b"}, again.Data["community_ids"])
}

func TestQuery_Equality(t *testing.T) {
	ctx := context.Background()
	s := New()
	_ = s.Set(ctx, "entries", "e1", docstore.Document{"community_id": "c1", "status": "visible"})
	_ = s.Set(ctx, "entries", "e2", docstore.Document{"community_id": "c1", "status": "archived"})
	_ = s.Set(ctx, "entries", "e3", docstore.Document{"community_id": "c2", "status": "visible"})

	got, err := s.Query(ctx, "entries", docstore.Where("community_id", "c1"), docstore.Where("status", "visible"))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "e1", got[0].ID)
}

func TestUpdate_ArrayUnion(t *testing.T) {
	ctx := context.Background()
	s := New()
	_ = s.Set(ctx, "profiles", "u1", docstore.Document{"community_ids": []string{"a"}})

	err := s.Update(ctx, "profiles", "u1", docstore.Document{
		"community_ids":        docstore.ArrayUnion("a", "b"),
		"current_community_id": "b",
	})
	require.NoError(t, err)

	snap, _ := s.Get(ctx, "profiles", "u1")
	assert.Equal(t, []any{"a", "b"}, snap.Data["community_ids"])
	assert.Equal(t, "b", snap.Data["current_community_id"])
}

func TestUpdate_ArrayUnionOfObjects(t *testing.T) {
	ctx := context.Background()
	s := New()
	_ = s.Set(ctx, "communities", "c1", docstore.Document{
		"members": []map[string]any{{"user_id": "u1", "role": "leader"}},
	})

	member := map[string]any{"user_id": "u2", "role": "member"}
	require.NoError(t, s.Update(ctx, "communities", "c1", docstore.Document{"members": docstore.ArrayUnion(member)}))
	require.NoError(t, s.Update(ctx, "communities", "c1", docstore.Document{"members": docstore.ArrayUnion(member)}))

	snap, _ := s.Get(ctx, "communities", "c1")
	assert.Len(t, snap.Data["members"], 2)
}

func TestUpdate_Missing(t *testing.T) {
	s := New()
	err := s.Update(context.Background(), "profiles", "ghost", docstore.Document{"x": 1})
	assert.ErrorIs(t, err, docstore.ErrNotFound)
}

func TestAdd_GeneratesID(t *testing.T) {
	s := New()
	id, err := s.Add(context.Background(), "comments", docstore.Document{"text": "hi"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, 1, s.Len("comments"))
}

func TestSubscribe_InitialThenChanges(t *testing.T) {
	ctx := context.Background()
	s := New()
	_ = s.Set(ctx, "profiles", "u1", docstore.Document{"username": "ana"})

	var seen []docstore.Snapshot
	sub, err := s.Subscribe(ctx, "profiles", "u1", func(snap docstore.Snapshot) {
		seen = append(seen, snap)
	})
	require.NoError(t, err)

	_ = s.Update(ctx, "profiles", "u1", docstore.Document{"username": "ana2"})
	_ = s.Delete(ctx, "profiles", "u1")

	require.Len(t, seen, 3)
	assert.Equal(t, "ana", seen[0].Data["username"])
	assert.Equal(t, "ana2", seen[1].Data["username"])
	assert.False(t, seen[2].Exists)

	sub.Unsubscribe()
	sub.Unsubscribe()
	assert.Equal(t, 0, s.Listeners("profiles", "u1"))

	_ = s.Set(ctx, "profiles", "u1", docstore.Document{"username": "later"})
	assert.Len(t, seen, 3)
}

func TestFailNext(t *testing.T) {
	s := New()
	boom := errors.New("unavailable")
	s.FailNext("get", boom)

	_, err := s.Get(context.Background(), "x", "y")
	assert.ErrorIs(t, err, boom)

	_, err = s.Get(context.Background(), "x", "y")
	assert.ErrorIs(t, err, docstore.ErrNotFound)
}

func TestFailNext_AddAndSetQueuesAreSeparate(t *testing.T) {
	ctx := context.Background()
	s := New()
	boom := errors.New("unavailable")
	s.FailNext("add", boom)

	id, err := s.Add(ctx, "comments", docstore.Document{"text": "hi"})
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, id)
	assert.Equal(t, 0, s.Len("comments"))

	// A queued set failure is not consumed by Add.
	s.FailNext("set", boom)
	_, err = s.Add(ctx, "comments", docstore.Document{"text": "hi"})
	require.NoError(t, err)
	assert.ErrorIs(t, s.Set(ctx, "comments", "c1", docstore.Document{"text": "x"}), boom)
	assert.Equal(t, 1, s.Len("comments"))
}

func TestNormalize_TimesAndNumbers(t *testing.T) {
	ctx := context.Background()
	s := New()
	loc := time.FixedZone("X", 3600)
	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, loc)

	_ = s.Set(ctx, "check_ins", "k", docstore.Document{"score": 1, "created_at": ts})
	snap, _ := s.Get(ctx, "check_ins", "k")

	assert.Equal(t, int64(1), snap.Data["score"])
	assert.Equal(t, ts.UTC(), snap.Data["created_at"])
}
