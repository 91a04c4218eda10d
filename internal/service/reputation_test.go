package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/trustcore/internal/model"
	"github.com/d60-Lab/trustcore/internal/testutil"
)

func TestTierFor(t *testing.T) {
	cases := []struct {
		score int
		level int
	}{
		{0, 1}, {24, 1}, {25, 2}, {99, 2}, {100, 3}, {249, 3},
		{250, 4}, {499, 4}, {500, 5}, {999, 5}, {1000, 6}, {1 << 20, 6},
	}
	for _, c := range cases {
		assert.Equal(t, c.level, TierFor(c.score).Level, "score %d", c.score)
	}
	assert.Equal(t, "Contributor", TierByLevel(3).Name)
}

func TestCompute_TwentyComments(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u := h.user(t, "writer")
	for i := 0; i < 20; i++ {
		testutil.CreateContent(t, h.db, u.ID, model.ContentComment, fmt.Sprintf("comment %d", i))
	}

	s, err := h.reputation.Compute(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, s.Score)
	assert.Equal(t, 3, s.Tier.Level)
	assert.Zero(t, s.ExpertBonus)

	again, err := h.reputation.Compute(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, s, again)

	// Compute 不写库
	assert.Zero(t, h.reload(t, u.ID).Reputation)
}

func TestCompute_WeightsAndExpertBonus(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u := h.user(t, "expert", testutil.Expert())
	testutil.CreateContent(t, h.db, u.ID, model.ContentDiscussion, "d")
	testutil.CreateContent(t, h.db, u.ID, model.ContentReview, "r")
	testutil.CreateContent(t, h.db, u.ID, model.ContentComment, "c")

	s, err := h.reputation.Compute(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 10+15+5+ExpertBonus, s.Score)
	assert.Equal(t, ExpertBonus, s.ExpertBonus)
	require.Len(t, s.Breakdown, 3)
}

func TestCompute_UnknownActor(t *testing.T) {
	h := newHarness(t)
	_, err := h.reputation.Compute(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = h.reputation.Recompute(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRecompute_PersistsAndReportsChange(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u := h.user(t, "writer")
	for i := 0; i < 20; i++ {
		testutil.CreateContent(t, h.db, u.ID, model.ContentComment, fmt.Sprintf("comment %d", i))
	}

	ch, err := h.reputation.Recompute(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, Change{ActorID: u.ID, OldScore: 0, NewScore: 100, OldTier: 1, NewTier: 3}, *ch)

	stored := h.reload(t, u.ID)
	assert.Equal(t, 100, stored.Reputation)
	assert.Equal(t, 3, stored.Tier)
	assert.EqualValues(t, 1, stored.Version)

	notes, err := h.notifications.ListForUser(ctx, u.ID, 0, 10)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Contains(t, notes[0].Message, "Contributor")

	// 无变化时不写库
	ch, err = h.reputation.Recompute(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, ch.OldScore, ch.NewScore)
	assert.EqualValues(t, 1, h.reload(t, u.ID).Version)
}

func TestRecompute_PromotionAndDemotion(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u := h.user(t, "prolific")
	for i := 0; i < 34; i++ {
		testutil.CreateContent(t, h.db, u.ID, model.ContentReview, fmt.Sprintf("review %d", i))
	}

	ch, err := h.reputation.Recompute(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 510, ch.NewScore)
	assert.True(t, ch.Promoted)

	var victim model.Content
	require.NoError(t, h.db.Where("author_id = ?", u.ID).First(&victim).Error)
	require.NoError(t, h.contents.SoftDelete(ctx, victim.ID))
	ch, err = h.reputation.Recompute(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 495, ch.NewScore)
	assert.True(t, ch.Demoted)
	assert.Equal(t, 4, ch.NewTier)
}

func TestRecomputeAll(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		u := h.user(t, fmt.Sprintf("u%d", i))
		for j := 0; j <= i; j++ {
			testutil.CreateContent(t, h.db, u.ID, model.ContentDiscussion, "d")
		}
	}

	sum, err := h.reputation.RecomputeAll(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, sum.Processed)
	assert.Equal(t, 5, sum.Changed)
	assert.Zero(t, sum.Failed)
}

func TestResetReputation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	admin := h.user(t, "admin", testutil.Admin())
	u := h.user(t, "u", testutil.WithReputation(300))

	require.NoError(t, h.admin.ResetReputation(ctx, admin.ID, u.ID, "abuse"))
	stored := h.reload(t, u.ID)
	assert.Zero(t, stored.Reputation)
	assert.Equal(t, 1, stored.Tier)
	assert.EqualValues(t, 1, stored.Version)
	assert.ErrorIs(t, h.admin.ResetReputation(ctx, admin.ID, "ghost", ""), ErrNotFound)
}

func TestGrantExpertRecomputes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	admin := h.user(t, "admin", testutil.Admin())
	u := h.user(t, "u")

	require.NoError(t, h.admin.GrantExpert(ctx, admin.ID, u.ID, "verified"))
	stored := h.reload(t, u.ID)
	assert.True(t, stored.IsExpert)
	assert.Equal(t, ExpertBonus, stored.Reputation)

	require.NoError(t, h.admin.RevokeExpert(ctx, admin.ID, u.ID, "expired"))
	stored = h.reload(t, u.ID)
	assert.False(t, stored.IsExpert)
	assert.Zero(t, stored.Reputation)
}
