package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/trustcore/internal/model"
	"github.com/d60-Lab/trustcore/internal/testutil"
)

func TestEnqueue_IdempotentWhileOpen(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	author := h.user(t, "author")
	c := testutil.CreateContent(t, h.db, author.ID, model.ContentComment, "questionable")

	first, created, err := h.queue.Enqueue(ctx, c.ID, model.SourceManual, "reported")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, model.QueuePending, first.Status)
	assert.Equal(t, "questionable", first.SnapshotBody)

	second, created, err := h.queue.Enqueue(ctx, c.ID, model.SourceManual, "reported again")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	n, err := h.queueRepo.CountByContent(ctx, c.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	live, err := h.contents.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, live.Flagged)
	assert.Equal(t, 1, live.FlagCount)
}

func TestEnqueue_UnknownContent(t *testing.T) {
	h := newHarness(t)
	_, _, err := h.queue.Enqueue(context.Background(), "nope", model.SourceManual, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolve_RestoreClearsFlags(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	admin := h.user(t, "admin", testutil.Admin())
	author := h.user(t, "author")
	c := testutil.CreateContent(t, h.db, author.ID, model.ContentDiscussion, "fine after all")

	entry, _, err := h.queue.Enqueue(ctx, c.ID, model.SourceReactions, "4 danger reactions")
	require.NoError(t, err)

	resolved, err := h.queue.Resolve(ctx, admin.ID, entry.ID, DecisionRestore, "false alarm")
	require.NoError(t, err)
	assert.Equal(t, model.QueueApproved, resolved.Status)

	live, err := h.contents.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.False(t, live.Flagged)
	assert.Zero(t, live.FlagCount)

	actions, err := h.auditRepo.ListByTarget(ctx, "content", c.ID)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, model.ActionRestore, actions[0].Action)
	assert.Equal(t, admin.ID, actions[0].AdminID)
	assert.Equal(t, entry.ID, actions[0].Metadata["queue_entry_id"])
}

func TestResolve_PurgeKeepsSnapshot(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	admin := h.user(t, "admin", testutil.Admin())
	author := h.user(t, "author")
	c := testutil.CreateContent(t, h.db, author.ID, model.ContentComment, "spam spam spam")

	entry, _, err := h.queue.Enqueue(ctx, c.ID, model.SourceClassifier, "spam")
	require.NoError(t, err)
	_, err = h.queue.Resolve(ctx, admin.ID, entry.ID, DecisionPurge, "spam")
	require.NoError(t, err)

	_, err = h.contents.Get(ctx, c.ID)
	assert.Error(t, err, "purged content leaves public reads")

	stored, err := h.queue.Get(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, model.QueueRejected, stored.Status)
	assert.Equal(t, "spam spam spam", stored.SnapshotBody)
	assert.Nil(t, stored.OpenKey)
	require.NotNil(t, stored.ResolvedBy)
	assert.Equal(t, admin.ID, *stored.ResolvedBy)
}

func TestResolve_Terminal(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	admin := h.user(t, "admin", testutil.Admin())
	author := h.user(t, "author")
	c := testutil.CreateContent(t, h.db, author.ID, model.ContentReview, "meh")

	entry, _, err := h.queue.Enqueue(ctx, c.ID, model.SourceManual, "")
	require.NoError(t, err)
	_, err = h.queue.Resolve(ctx, admin.ID, entry.ID, DecisionRestore, "")
	require.NoError(t, err)

	_, err = h.queue.Resolve(ctx, admin.ID, entry.ID, DecisionPurge, "")
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = h.queue.Resolve(ctx, admin.ID, entry.ID, DecisionRestore, "")
	assert.ErrorIs(t, err, ErrInvalidState)

	// 再次标记开新条目，旧条目不重开
	next, created, err := h.queue.Enqueue(ctx, c.ID, model.SourceManual, "flagged again")
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, entry.ID, next.ID)

	old, err := h.queue.Get(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, model.QueueApproved, old.Status)

	pending, err := h.queue.ListPending(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, next.ID, pending[0].ID)
}

func TestResolve_RestoreRecreatesDeletedContent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	admin := h.user(t, "admin", testutil.Admin())
	author := h.user(t, "author")
	c := testutil.CreateContent(t, h.db, author.ID, model.ContentDiscussion, "original body")

	entry, _, err := h.queue.Enqueue(ctx, c.ID, model.SourceManual, "")
	require.NoError(t, err)
	require.NoError(t, h.db.Unscoped().Delete(&model.Content{}, "id = ?", c.ID).Error)

	_, err = h.queue.Resolve(ctx, admin.ID, entry.ID, DecisionRestore, "")
	require.NoError(t, err)

	live, err := h.contents.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "original body", live.Body)
	assert.Equal(t, author.ID, live.AuthorID)
	assert.False(t, live.Flagged)
}

func TestResolve_RequiresAdmin(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	author := h.user(t, "author")
	c := testutil.CreateContent(t, h.db, author.ID, model.ContentComment, "x")
	entry, _, err := h.queue.Enqueue(ctx, c.ID, model.SourceManual, "")
	require.NoError(t, err)

	_, err = h.queue.Resolve(ctx, author.ID, entry.ID, DecisionPurge, "")
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = h.queue.Resolve(ctx, "", entry.ID, DecisionPurge, "")
	assert.ErrorIs(t, err, ErrUnauthorized)

	admin := h.user(t, "admin", testutil.Admin())
	_, err = h.queue.Resolve(ctx, admin.ID, entry.ID, Decision("archive"), "")
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = h.queue.Resolve(ctx, admin.ID, "missing", DecisionPurge, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

type failingAudit struct{}

func (failingAudit) Create(context.Context, *model.AdminAction) error {
	return assert.AnError
}

func (failingAudit) List(context.Context, int, int) ([]*model.AdminAction, error) {
	return nil, assert.AnError
}

func (failingAudit) ListByTarget(context.Context, string, string) ([]*model.AdminAction, error) {
	return nil, assert.AnError
}

func TestAuditFailureDoesNotBlockAction(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	admin := h.user(t, "admin", testutil.Admin())
	target := h.user(t, "target", testutil.WithReputation(100))

	svc := NewAdminService(h.users, h.contents, h.blacklist, nil, nil, NewAuditLogger(failingAudit{}, h.clock), h.clock)
	require.NoError(t, svc.BanMessaging(ctx, admin.ID, target.ID, "spam", nil))
	assert.True(t, h.reload(t, target.ID).MessagingBanned)
}

func TestResolve_RestoreRevertsUnreviewedEdit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	admin := h.user(t, "admin", testutil.Admin())
	author := h.user(t, "author")
	c := testutil.CreateContent(t, h.db, author.ID, model.ContentComment, "reviewed wording")

	entry, _, err := h.queue.Enqueue(ctx, c.ID, model.SourceManual, "")
	require.NoError(t, err)
	require.NoError(t, h.contents.Update(ctx, c.ID, map[string]any{"body": "edited after flagging"}))

	_, err = h.queue.Resolve(ctx, admin.ID, entry.ID, DecisionRestore, "")
	require.NoError(t, err)

	live, err := h.contents.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "reviewed wording", live.Body)
	assert.False(t, live.Flagged)
}
