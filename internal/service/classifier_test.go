package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/trustcore/internal/cache"
	"github.com/d60-Lab/trustcore/internal/semantic"
	"github.com/d60-Lab/trustcore/internal/testutil"
)

type staticKeywords struct {
	list []cache.Keyword
	err  error
}

func (s staticKeywords) Active(context.Context) ([]cache.Keyword, error) { return s.list, s.err }

type panicSemantic struct{}

func (panicSemantic) Classify(context.Context, string, semantic.Profile) (semantic.Result, error) {
	panic("boom")
}

func TestClassify_BlacklistMatchesAllKeywords(t *testing.T) {
	sem := &stubSemantic{res: semantic.Result{Safe: true, Reason: "ok"}}
	c := NewContentClassifier(staticKeywords{list: []cache.Keyword{
		{Keyword: "casino", Reason: "gambling spam"},
		{Keyword: "Miracle Cure", Reason: "health misinformation"},
		{Keyword: "unrelated"},
	}}, sem)

	v := c.Classify(context.Background(), "Try this MIRACLE cure at our CASINO", semantic.ProfileGeneral)
	assert.False(t, v.Safe)
	assert.Equal(t, StageBlacklist, v.Stage)
	assert.ElementsMatch(t, []string{"casino", "Miracle Cure"}, v.Keywords)
	assert.Contains(t, v.Reason, "gambling spam")
	assert.Contains(t, v.Reason, "health misinformation")
	assert.Zero(t, sem.calls, "blacklist hit must not call the semantic classifier")
}

func TestClassify_SemanticVerdict(t *testing.T) {
	sem := &stubSemantic{res: semantic.Result{Safe: false, Reason: "personal attack"}}
	c := NewContentClassifier(staticKeywords{}, sem)

	v := c.Classify(context.Background(), "you are an idiot", semantic.ProfileGeneral)
	assert.False(t, v.Safe)
	assert.Equal(t, "personal attack", v.Reason)
	assert.Equal(t, StageSemantic, v.Stage)

	sem.res = semantic.Result{Safe: true, Reason: "constructive"}
	v = c.Classify(context.Background(), "thanks for the detailed answer", semantic.ProfileGuest)
	assert.True(t, v.Safe)
	assert.NoError(t, c.Check(context.Background(), "thanks", semantic.ProfileGuest))
}

func TestClassify_FailsClosed(t *testing.T) {
	cases := map[string]ContentClassifier{
		"keyword store error": NewContentClassifier(staticKeywords{err: errors.New("db down")}, &stubSemantic{res: semantic.Result{Safe: true}}),
		"semantic error":      NewContentClassifier(staticKeywords{}, &stubSemantic{err: errors.New("timeout")}),
		"malformed response":  NewContentClassifier(staticKeywords{}, &stubSemantic{err: semantic.ErrMalformed}),
		"not configured":      NewContentClassifier(staticKeywords{}, nil),
		"panic":               NewContentClassifier(staticKeywords{}, panicSemantic{}),
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			for _, text := range []string{"", "hello", "a perfectly fine post"} {
				v := c.Classify(context.Background(), text, semantic.ProfileGeneral)
				assert.False(t, v.Safe)
				assert.Equal(t, SafetyBlockedReason, v.Reason)
			}

			err := c.Check(context.Background(), "hello", semantic.ProfileGeneral)
			require.ErrorIs(t, err, ErrContentRejected)
			assert.NotErrorIs(t, err, ErrDependencyFailure)
			assert.NotContains(t, err.Error(), "db down")
			assert.NotContains(t, err.Error(), "timeout")
		})
	}
}

func TestCheck_RejectCarriesKeywords(t *testing.T) {
	c := NewContentClassifier(staticKeywords{list: []cache.Keyword{{Keyword: "spam", Reason: "spam"}}}, &stubSemantic{})
	err := c.Check(context.Background(), "buy SPAM now", semantic.ProfileGeneral)
	var rej *RejectError
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, []string{"spam"}, rej.Keywords)
	assert.Equal(t, StageBlacklist, rej.Rule)
}

func TestClassify_UsesStoredBlacklist(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	admin := h.user(t, "admin", testutil.Admin())

	assert.True(t, h.classifier.Classify(ctx, "visit our crypto giveaway", semantic.ProfileGeneral).Safe)

	k, err := h.admin.AddKeyword(ctx, admin.ID, "Crypto Giveaway", "scam")
	require.NoError(t, err)
	v := h.classifier.Classify(ctx, "visit our crypto giveaway", semantic.ProfileGeneral)
	assert.False(t, v.Safe)
	assert.Equal(t, []string{"crypto giveaway"}, v.Keywords)

	require.NoError(t, h.admin.RemoveKeyword(ctx, admin.ID, k.ID, "false positive"))
	assert.True(t, h.classifier.Classify(ctx, "visit our crypto giveaway", semantic.ProfileGeneral).Safe)
}
