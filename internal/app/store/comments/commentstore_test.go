package commentstore

import (
	"context"
	"errors"
	"testing"

	profilestore "github.com/dalemusser/juntos/internal/app/store/profiles"
	"github.com/dalemusser/juntos/internal/app/system/apperr"
	"github.com/dalemusser/juntos/internal/app/system/docstore"
	"github.com/dalemusser/juntos/internal/app/system/docstore/memdocs"
	"github.com/dalemusser/juntos/internal/domain/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newStore(t *testing.T) (*Store, *memdocs.Store) {
	t.Helper()
	docs := memdocs.New()
	profiles := profilestore.New(docs)
	require.NoError(t, profiles.Create(context.Background(), &models.Profile{
		UserID: "lead", Username: "lead", FullName: "Lena Leader", Role: models.RoleLeader,
	}))
	return New(docs, profiles, zap.NewNop()), docs
}

func TestAddAndFetch_EnrichesAuthors(t *testing.T) {
	ctx := context.Background()
	s, docs := newStore(t)

	_, err := s.Add(ctx, NewComment{EntryID: "e1", UserID: "lead", Username: "lead", Text: "Welcome"})
	require.NoError(t, err)
	_, err = s.Add(ctx, NewComment{EntryID: "e1", UserID: "ghost", Username: "ghost", Text: "Hi"})
	require.NoError(t, err)
	_, err = s.Add(ctx, NewComment{EntryID: "e2", UserID: "lead", Text: "Elsewhere"})
	require.NoError(t, err)

	fresh := New(docs, profilestore.New(docs), zap.NewNop())
	top, err := fresh.FetchByEntryID(ctx, "e1")
	require.NoError(t, err)
	require.Len(t, top, 2)

	byUser := map[string]models.Comment{}
	for _, c := range top {
		byUser[c.UserID] = c
	}
	assert.Equal(t, "Lena Leader", byUser["lead"].FullName)
	assert.Equal(t, models.RoleLeader, byUser["lead"].AuthorRole)
	assert.Equal(t, models.UnknownAuthorName, byUser["ghost"].FullName)
	assert.Equal(t, models.RoleMember, byUser["ghost"].AuthorRole)

	assert.Len(t, fresh.All(), 2, "fetch replaces, scoped to the entry")
}

func TestRepliesAndThread(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)

	root, err := s.Add(ctx, NewComment{EntryID: "e1", UserID: "lead", Text: "root"})
	require.NoError(t, err)
	reply, err := s.Add(ctx, NewComment{EntryID: "e1", UserID: "u2", Text: "reply", ParentCommentID: root.ID})
	require.NoError(t, err)
	_, err = s.Add(ctx, NewComment{EntryID: "e1", UserID: "u3", Text: "nested", ParentCommentID: reply.ID})
	require.NoError(t, err)

	assert.Len(t, s.TopLevel("e1"), 1)
	replies := s.Replies(root.ID)
	require.Len(t, replies, 1)
	assert.Equal(t, "reply", replies[0].Text)

	thread := s.Thread("e1")
	require.Len(t, thread, 1)
	require.Len(t, thread[0].Replies, 1)
	require.Len(t, thread[0].Replies[0].Replies, 1)
	assert.Equal(t, "nested", thread[0].Replies[0].Replies[0].Text)
}

func TestAdd_ReplyParentMustBelongToEntry(t *testing.T) {
	ctx := context.Background()
	s, docs := newStore(t)

	other, err := s.Add(ctx, NewComment{EntryID: "e2", UserID: "lead", Text: "other entry"})
	require.NoError(t, err)

	_, err = s.Add(ctx, NewComment{EntryID: "e1", UserID: "u2", Text: "reply", ParentCommentID: "missing"})
	assert.Equal(t, apperr.CodeValidationFailed, apperr.CodeOf(err))

	_, err = s.Add(ctx, NewComment{EntryID: "e1", UserID: "u2", Text: "reply", ParentCommentID: other.ID})
	assert.Equal(t, apperr.CodeValidationFailed, apperr.CodeOf(err))

	// A parent not in the local list is read from the document service.
	fresh := New(docs, profilestore.New(docs), zap.NewNop())
	reply, err := fresh.Add(ctx, NewComment{EntryID: "e2", UserID: "u2", Text: "reply", ParentCommentID: other.ID})
	require.NoError(t, err)
	assert.Equal(t, other.ID, reply.ParentCommentID)
	assert.Equal(t, 2, docs.Len(docstore.Comments))
}

func TestAdd_SanitizesToPlainText(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)

	c, err := s.Add(ctx, NewComment{EntryID: "e1", UserID: "lead", Text: "<b>bold</b> move"})
	require.NoError(t, err)
	assert.Equal(t, "bold move", c.Text)

	_, err = s.Add(ctx, NewComment{EntryID: "e1", UserID: "lead", Text: "<script></script>  "})
	assert.Equal(t, apperr.CodeValidationFailed, apperr.CodeOf(err))
}

func TestAdd_RemoteFailure(t *testing.T) {
	ctx := context.Background()
	s, docs := newStore(t)
	docs.FailNext("add", errors.New("permission denied"))

	_, err := s.Add(ctx, NewComment{EntryID: "e1", UserID: "lead", Text: "hello"})

	assert.Equal(t, "Failed to add comment.", apperr.Message(err))
	assert.Empty(t, s.All())
	assert.Equal(t, 0, docs.Len(docstore.Comments))
}

func TestFetch_EmptyEntryID(t *testing.T) {
	s, _ := newStore(t)
	_, err := s.FetchByEntryID(context.Background(), "")
	assert.Equal(t, apperr.CodeValidationFailed, apperr.CodeOf(err))
}
