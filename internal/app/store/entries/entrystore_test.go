package entrystore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dalemusser/juntos/internal/app/system/apperr"
	"github.com/dalemusser/juntos/internal/app/system/docstore"
	"github.com/dalemusser/juntos/internal/app/system/docstore/memdocs"
	"github.com/dalemusser/juntos/internal/domain/models"
	"github.com/dalemusser/juntos/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func ids(entries []models.Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Payload["title"].(string))
	}
	return out
}

func seedVisibilityEntries(t *testing.T, fx *testutil.Fixtures) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	fx.CreateEntry(ctx, models.Entry{
		CommunityID: "c1", UserID: "u1", StageID: models.StageAwareness,
		Visibility: models.VisibilityPublic, Status: models.EntryStatusVisible,
		ObservationPrivate: true, CreatedAt: base,
		Payload: map[string]any{"title": "A"},
	})
	fx.CreateEntry(ctx, models.Entry{
		CommunityID: "c1", UserID: "u1", StageID: models.StageAwareness,
		Visibility: models.VisibilityPrivate, Status: models.EntryStatusVisible,
		ObservationPrivate: true, CreatedAt: base.Add(time.Minute),
		Payload: map[string]any{"title": "B"},
	})
	fx.CreateEntry(ctx, models.Entry{
		CommunityID: "c1", UserID: "u1", StageID: "support",
		Visibility: models.VisibilityPrivate, Status: models.EntryStatusVisible,
		ObservationPrivate: true, CreatedAt: base.Add(2 * time.Minute),
		Payload: map[string]any{"title": "C"},
	})
	fx.CreateEntry(ctx, models.Entry{
		CommunityID: "c1", UserID: "u1", StageID: "support",
		Visibility: models.VisibilityPublic, Status: models.EntryStatusArchived,
		CreatedAt: base.Add(3 * time.Minute),
		Payload:   map[string]any{"title": "D"},
	})
	fx.CreateEntry(ctx, models.Entry{
		CommunityID: "c2", UserID: "u1", StageID: "support",
		Visibility: models.VisibilityPublic, Status: models.EntryStatusVisible,
		CreatedAt: base, Payload: map[string]any{"title": "other community"},
	})
}

func TestFetch_VisibilityByRole(t *testing.T) {
	ctx := context.Background()
	docs := memdocs.New()
	seedVisibilityEntries(t, testutil.NewFixtures(t, docs))
	s := New(docs, zap.NewNop(), 0)

	member, err := s.FetchMemberEntries(ctx, "c1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"A", "C"}, ids(member))

	leader, err := s.FetchForRole(ctx, "c1", models.RoleLeader)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"A", "B", "C"}, ids(leader.Visible))
	assert.ElementsMatch(t, []string{"D"}, ids(leader.Archived))

	view, err := s.FetchForRole(ctx, "c1", models.RoleMember)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"A", "C"}, ids(view.Visible))
	assert.Empty(t, view.Archived)

	assert.Len(t, s.MemberEntries(), 2)
	assert.Len(t, s.LeaderVisibleEntries(), 3)
	assert.Len(t, s.LeaderArchivedEntries(), 1)
}

func TestFetch_ReplacesLocalList(t *testing.T) {
	ctx := context.Background()
	docs := memdocs.New()
	seedVisibilityEntries(t, testutil.NewFixtures(t, docs))
	s := New(docs, zap.NewNop(), 0)

	_, err := s.FetchMemberEntries(ctx, "c1")
	require.NoError(t, err)
	_, err = s.FetchMemberEntries(ctx, "c2")
	require.NoError(t, err)

	assert.Equal(t, []string{"other community"}, ids(s.MemberEntries()))
}

func TestFetch_EmptyCommunityID(t *testing.T) {
	s := New(memdocs.New(), zap.NewNop(), 0)
	_, err := s.FetchMemberEntries(context.Background(), "")
	assert.Equal(t, apperr.CodeValidationFailed, apperr.CodeOf(err))
	_, err = s.FetchLeaderArchivedEntries(context.Background(), "")
	assert.Equal(t, apperr.CodeValidationFailed, apperr.CodeOf(err))
}

func TestFetch_RemoteFailure(t *testing.T) {
	docs := memdocs.New()
	docs.FailNext("query", errors.New("rpc error: unavailable"))
	s := New(docs, zap.NewNop(), 0)

	_, err := s.FetchLeaderVisibleEntries(context.Background(), "c1")
	require.Error(t, err)
	assert.Equal(t, apperr.CodeRemoteOperationFailed, apperr.CodeOf(err))
	assert.Equal(t, "Failed to fetch leader visible entries.", err.Error())
}

// gatedQuery blocks entry queries for one community until released.
type gatedQuery struct {
	docstore.Service
	community string
	entered   chan struct{}
	release   chan struct{}
	once      sync.Once
}

func (g *gatedQuery) Query(ctx context.Context, coll string, filters ...docstore.Filter) ([]docstore.Snapshot, error) {
	for _, f := range filters {
		if f.Field == "community_id" && f.Value == g.community {
			g.once.Do(func() { close(g.entered) })
			<-g.release
		}
	}
	return g.Service.Query(ctx, coll, filters...)
}

func TestFetch_StaleResponseDiscarded(t *testing.T) {
	ctx := context.Background()
	docs := memdocs.New()
	seedVisibilityEntries(t, testutil.NewFixtures(t, docs))
	gate := &gatedQuery{Service: docs, community: "c1", entered: make(chan struct{}), release: make(chan struct{})}
	s := New(gate, zap.NewNop(), 0)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = s.FetchMemberEntries(ctx, "c1")
	}()
	<-gate.entered

	_, err := s.FetchMemberEntries(ctx, "c2")
	require.NoError(t, err)
	close(gate.release)
	<-done

	assert.Equal(t, []string{"other community"}, ids(s.MemberEntries()))
}

func TestGetByID(t *testing.T) {
	ctx := context.Background()
	docs := memdocs.New()
	s := New(docs, zap.NewNop(), 0)

	created, err := s.Add(ctx, models.Entry{
		CommunityID: "c1", UserID: "u1", StageID: "support",
		Visibility: models.VisibilityPublic,
		Payload:    map[string]any{"title": "Hello"},
	})
	require.NoError(t, err)

	got, err := s.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Hello", got.Payload["title"])
	assert.Equal(t, models.EntryStatusVisible, got.Status)

	_, err = s.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Equal(t, "Entry not found.", err.Error())
}

func TestAdd_SanitizesAndUpdatesLists(t *testing.T) {
	ctx := context.Background()
	docs := memdocs.New()
	s := New(docs, zap.NewNop(), 0)

	e, err := s.Add(ctx, models.Entry{
		CommunityID: "c1", UserID: "u1", StageID: models.StageAwareness,
		Visibility: models.VisibilityPrivate, ObservationPrivate: true,
		Payload: map[string]any{"title": `<b>Hi</b><script>alert(1)</script>`, "mood": 3},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, e.ID)
	assert.NotContains(t, e.Payload["title"], "script")
	assert.Equal(t, 3, e.Payload["mood"])

	// Private awareness observation: leader list only.
	assert.Len(t, s.LeaderVisibleEntries(), 1)
	assert.Empty(t, s.MemberEntries())
	assert.Equal(t, 1, docs.Len(docstore.Entries))
}

func TestAdd_RemoteFailureLeavesLocalState(t *testing.T) {
	docs := memdocs.New()
	docs.FailNext("add", errors.New("quota exceeded"))
	s := New(docs, zap.NewNop(), 0)

	_, err := s.Add(context.Background(), models.Entry{CommunityID: "c1", UserID: "u1"})
	assert.Equal(t, apperr.CodeRemoteOperationFailed, apperr.CodeOf(err))
	assert.Empty(t, s.LeaderVisibleEntries())
	assert.Equal(t, 0, docs.Len(docstore.Entries))
}

func TestAdd_Validation(t *testing.T) {
	s := New(memdocs.New(), zap.NewNop(), 0)
	_, err := s.Add(context.Background(), models.Entry{UserID: "u1"})
	assert.Equal(t, apperr.CodeValidationFailed, apperr.CodeOf(err))
}

func TestLatestItems_TopFifteenDescending(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var entries []models.Entry
	for i := 1; i <= 20; i++ {
		entries = append(entries, models.Entry{ID: fmt.Sprintf("t%d", i), CreatedAt: base.Add(time.Duration(i) * time.Hour)})
	}
	// Shuffle deterministically.
	entries[0], entries[19] = entries[19], entries[0]
	entries[5], entries[12] = entries[12], entries[5]

	got := LatestItems(entries, DefaultLatestLimit)

	require.Len(t, got, 15)
	for i, e := range got {
		assert.Equal(t, fmt.Sprintf("t%d", 20-i), e.ID)
	}
	assert.Equal(t, "t20", entries[0].ID, "input untouched")
}

func TestCombinedLatestItems_UsesMemberList(t *testing.T) {
	ctx := context.Background()
	docs := memdocs.New()
	seedVisibilityEntries(t, testutil.NewFixtures(t, docs))
	s := New(docs, zap.NewNop(), 1)

	_, err := s.FetchMemberEntries(ctx, "c1")
	require.NoError(t, err)

	latest := s.CombinedLatestItems()
	require.Len(t, latest, 1)
	assert.Equal(t, "C", latest[0].Payload["title"])
}

func TestCombineWithComments(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	entries := []models.Entry{
		{ID: "e1", StageID: "support", CreatedAt: base},
		{ID: "e2", StageID: models.StageAwareness, CreatedAt: base.Add(2 * time.Hour)},
	}
	comments := []models.Comment{
		{ID: "k1", EntryID: "e1", CreatedAt: base.Add(time.Hour)},
		{ID: "k2", EntryID: "gone", CreatedAt: base.Add(3 * time.Hour)},
	}

	got := CombineWithComments(entries, comments, 3)

	require.Len(t, got, 3)
	assert.Equal(t, "k2", got[0].ID)
	assert.Equal(t, models.ContentComment, got[0].ContentCategory)
	assert.Empty(t, got[0].StageID)
	assert.Equal(t, "e2", got[1].ID)
	assert.Equal(t, models.ContentEntry, got[1].ContentCategory)
	assert.Equal(t, "k1", got[2].ID)
	assert.Equal(t, "support", got[2].StageID)
}
