package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/trustcore/internal/model"
	"github.com/d60-Lab/trustcore/internal/semantic"
	"github.com/d60-Lab/trustcore/internal/testutil"
)

func TestPublish_SafeContentPersistsAndScores(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	author := h.user(t, "author")

	post, err := h.publisher.Publish(ctx, PublishRequest{AuthorID: author.ID, Kind: model.ContentDiscussion, Body: "How do you size a heat pump?"})
	require.NoError(t, err)

	reply, err := h.publisher.Publish(ctx, PublishRequest{AuthorID: author.ID, Kind: model.ContentComment, Body: "Start with a load calc.", ParentID: &post.ID})
	require.NoError(t, err)
	assert.Equal(t, post.ID, *reply.ParentID)

	stored := h.reload(t, author.ID)
	assert.Equal(t, 15, stored.Reputation)
}

func TestPublish_RejectedContentNeverPersists(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	author := h.user(t, "author")
	h.semantic.res = semantic.Result{Safe: false, Reason: "promotional"}

	_, err := h.publisher.Publish(ctx, PublishRequest{AuthorID: author.ID, Kind: model.ContentDiscussion, Body: "Buy my course", Profile: semantic.ProfileGuest})
	var rej *RejectError
	require.True(t, errors.As(err, &rej))
	assert.ErrorIs(t, err, ErrContentRejected)
	assert.Equal(t, "promotional", rej.Reason)

	h.semantic.res = semantic.Result{}
	h.semantic.err = errors.New("connection refused")
	_, err = h.publisher.Publish(ctx, PublishRequest{AuthorID: author.ID, Kind: model.ContentDiscussion, Body: "anything"})
	require.ErrorIs(t, err, ErrContentRejected)
	assert.Contains(t, err.Error(), SafetyBlockedReason)

	var n int64
	require.NoError(t, h.db.Model(&model.Content{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestPublish_Validation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	author := h.user(t, "author")

	_, err := h.publisher.Publish(ctx, PublishRequest{Kind: model.ContentDiscussion, Body: "x"})
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = h.publisher.Publish(ctx, PublishRequest{AuthorID: author.ID, Kind: "poll", Body: "x"})
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = h.publisher.Publish(ctx, PublishRequest{AuthorID: author.ID, Kind: model.ContentComment, Body: "x"})
	assert.ErrorIs(t, err, ErrInvalidArgument)
	missing := "missing"
	_, err = h.publisher.Publish(ctx, PublishRequest{AuthorID: author.ID, Kind: model.ContentReview, Body: "x", ParentID: &missing})
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = h.publisher.Publish(ctx, PublishRequest{AuthorID: author.ID, Kind: model.ContentDiscussion, Body: "x", Profile: "strict"})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestRecheck_FlagsAndQueuesWithoutDeleting(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	author := h.user(t, "author")
	c := testutil.CreateContent(t, h.db, author.ID, model.ContentComment, "borderline")

	res, err := h.publisher.Recheck(ctx, c.ID, "")
	require.NoError(t, err)
	assert.True(t, res.Verdict.Safe)
	assert.False(t, res.Queued)

	h.semantic.err = errors.New("503")
	res, err = h.publisher.Recheck(ctx, c.ID, semantic.ProfileGeneral)
	require.NoError(t, err)
	assert.False(t, res.Verdict.Safe)
	assert.True(t, res.Queued)
	require.NotNil(t, res.Entry)
	assert.Equal(t, model.SourceClassifier, res.Entry.Source)

	live, err := h.contents.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, live.Flagged)
	assert.Equal(t, 1, live.FlagCount)

	again, err := h.publisher.Recheck(ctx, c.ID, semantic.ProfileGeneral)
	require.NoError(t, err)
	assert.False(t, again.Queued)
	assert.Equal(t, res.Entry.ID, again.Entry.ID)
}
