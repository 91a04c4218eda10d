package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/trustcore/internal/model"
	"github.com/d60-Lab/trustcore/internal/testutil"
)

func seedEscalation(t *testing.T, h *harness, contentID, authorID string) *model.Escalation {
	t.Helper()
	e := &model.Escalation{
		ID:        uuid.New().String(),
		ContentID: contentID,
		AuthorID:  authorID,
		Threshold: 10,
		Count:     10,
		Status:    model.EscalationPending,
		CreatedAt: h.clock.Now(),
	}
	require.NoError(t, h.escalations.Create(context.Background(), e))
	return e
}

func TestDrainPending(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	author := h.user(t, "author")
	h.user(t, "e1", testutil.Expert())
	h.user(t, "e2", testutil.Expert(), testutil.Banned())
	c := testutil.CreateContent(t, h.db, author.ID, model.ContentDiscussion, "help")

	first := seedEscalation(t, h, c.ID, author.ID)
	second := seedEscalation(t, h, c.ID, author.ID)

	n, err := h.dispatcher.DrainPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for _, id := range []string{first.ID, second.ID} {
		e, err := h.escalations.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, model.EscalationDone, e.Status)
		assert.EqualValues(t, 1, e.FanoutCount, "banned expert is skipped")
		assert.NotNil(t, e.ProcessedAt)
	}

	n, err = h.dispatcher.DrainPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	// 已完成的不会再次扇出
	written, err := h.dispatcher.Dispatch(ctx, first.ID)
	require.NoError(t, err)
	assert.Zero(t, written)
}

type failingNotifier struct{}

func (failingNotifier) Notify(context.Context, ...Notice) (int64, error) { return 0, assert.AnError }

func TestDispatch_FailureReleasesForRetry(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	author := h.user(t, "author")
	h.user(t, "e1", testutil.Expert())
	c := testutil.CreateContent(t, h.db, author.ID, model.ContentDiscussion, "help")
	e := seedEscalation(t, h, c.ID, author.ID)

	broken := NewEscalationDispatcher(h.escalations, h.users, failingNotifier{}, EscalationOptions{}, h.clock)
	_, err := broken.Dispatch(ctx, e.ID)
	require.Error(t, err)

	stored, err := h.escalations.Get(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, model.EscalationPending, stored.Status)

	n, err := h.dispatcher.DrainPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStoreNotifier_IdempotentPerSource(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u := h.user(t, "u")
	n := NewStoreNotifier(h.notifications, h.clock)

	notice := Notice{UserID: u.ID, Title: "t", Message: "m", Severity: SeverityInfo, SourceKey: "escalation:1"}
	written, err := n.Notify(ctx, notice)
	require.NoError(t, err)
	assert.EqualValues(t, 1, written)

	written, err = n.Notify(ctx, notice)
	require.NoError(t, err)
	assert.Zero(t, written)

	list, err := h.notifications.ListForUser(ctx, u.ID, 0, 10)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestAsyncNotifier_DeliversBeforeStop(t *testing.T) {
	h := newHarness(t)
	u := h.user(t, "u")
	async := NewAsyncNotifier(NewStoreNotifier(h.notifications, h.clock), 8)
	stop := async.Start(1)

	for i := 0; i < 3; i++ {
		n, err := async.Notify(context.Background(), Notice{UserID: u.ID, Title: "hi", SourceKey: uuid.New().String()})
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, stop(ctx))

	list, err := h.notifications.ListForUser(context.Background(), u.ID, 0, 10)
	require.NoError(t, err)
	assert.Len(t, list, 3)
}

func TestDrainPending_ReclaimsStrandedProcessing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	author := h.user(t, "author")
	h.user(t, "e1", testutil.Expert())
	c := testutil.CreateContent(t, h.db, author.ID, model.ContentDiscussion, "help")
	e := seedEscalation(t, h, c.ID, author.ID)

	// 领取后进程退出，行停留在 processing
	ok, err := h.escalations.Claim(ctx, e.ID, h.clock.Now())
	require.NoError(t, err)
	require.True(t, ok)

	n, err := h.dispatcher.DrainPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "lease still held")

	h.clock.Advance(time.Minute)
	n, err = h.dispatcher.DrainPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stored, err := h.escalations.Get(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, model.EscalationDone, stored.Status)
	assert.EqualValues(t, 1, stored.FanoutCount)

	var notes int64
	require.NoError(t, h.db.Model(&model.Notification{}).Where("source_key = ?", "escalation:"+e.ID).Count(&notes).Error)
	assert.EqualValues(t, 1, notes)
}
