package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/d60-Lab/trustcore/internal/model"
	"github.com/d60-Lab/trustcore/internal/repository"
	"github.com/d60-Lab/trustcore/pkg/logger"
	"github.com/d60-Lab/trustcore/pkg/metrics"
)

// 各类贡献的权重
var contributionWeights = map[model.ContentKind]int{
	model.ContentDiscussion: 10,
	model.ContentComment:    5,
	model.ContentReview:     15,
}

// ExpertBonus 已认证专家的固定加分
const ExpertBonus = 50

// ExpertEligibleTier 达到该等级即具备专家资格
const ExpertEligibleTier = 5

// Tier 等级阶梯中的一级
type Tier struct {
	Threshold int    `json:"threshold"`
	Level     int    `json:"level"`
	Name      string `json:"name"`
}

// tierLadder 按阈值升序，首项阈值为 0 保证任意分数都能命中
var tierLadder = []Tier{
	{Threshold: 0, Level: 1, Name: "Newcomer"},
	{Threshold: 25, Level: 2, Name: "Member"},
	{Threshold: 100, Level: 3, Name: "Contributor"},
	{Threshold: 250, Level: 4, Name: "Trusted"},
	{Threshold: 500, Level: 5, Name: "Expert"},
	{Threshold: 1000, Level: 6, Name: "Luminary"},
}

// TierFor 返回阈值不超过 score 的最高等级
func TierFor(score int) Tier {
	t := tierLadder[0]
	for _, step := range tierLadder[1:] {
		if score < step.Threshold {
			break
		}
		t = step
	}
	return t
}

// TierByLevel 按等级号查找，未知等级返回首级
func TierByLevel(level int) Tier {
	for _, t := range tierLadder {
		if t.Level == level {
			return t
		}
	}
	return tierLadder[0]
}

// Contribution 分数明细中的一项
type Contribution struct {
	Kind   model.ContentKind `json:"kind"`
	Count  int64             `json:"count"`
	Weight int               `json:"weight"`
	Points int               `json:"points"`
}

// Score 信誉计算结果
type Score struct {
	ActorID     string         `json:"actor_id"`
	Score       int            `json:"score"`
	Tier        Tier           `json:"tier"`
	Breakdown   []Contribution `json:"breakdown"`
	ExpertBonus int            `json:"expert_bonus"`
}

// Change 重算前后的对比
type Change struct {
	ActorID  string `json:"actor_id"`
	OldScore int    `json:"old_score"`
	NewScore int    `json:"new_score"`
	OldTier  int    `json:"old_tier"`
	NewTier  int    `json:"new_tier"`
	Promoted bool   `json:"promoted"`
	Demoted  bool   `json:"demoted"`
}

// RecomputeSummary 全量重算统计
type RecomputeSummary struct {
	Processed int `json:"processed"`
	Changed   int `json:"changed"`
	Failed    int `json:"failed"`
}

// ReputationEngine 贡献计数 -> 分数 -> 等级
type ReputationEngine interface {
	// Compute 只读，不产生副作用
	Compute(ctx context.Context, actorID string) (*Score, error)
	Recompute(ctx context.Context, actorID string) (*Change, error)
	RecomputeAll(ctx context.Context, batch int) (RecomputeSummary, error)
}

type reputationEngine struct {
	users    repository.UserRepository
	contents repository.ContentRepository
	notifier Notifier
}

func NewReputationEngine(users repository.UserRepository, contents repository.ContentRepository, notifier Notifier) ReputationEngine {
	return &reputationEngine{users: users, contents: contents, notifier: notifier}
}

func (e *reputationEngine) Compute(ctx context.Context, actorID string) (*Score, error) {
	u, err := e.users.Get(ctx, actorID)
	if err != nil {
		return nil, notFound(err, "actor")
	}
	return e.score(ctx, u)
}

func (e *reputationEngine) score(ctx context.Context, u *model.User) (*Score, error) {
	counts, err := e.contents.CountByKind(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	s := &Score{ActorID: u.ID}
	for _, kind := range []model.ContentKind{model.ContentDiscussion, model.ContentComment, model.ContentReview} {
		w := contributionWeights[kind]
		n := counts[kind]
		pts := w * int(n)
		s.Breakdown = append(s.Breakdown, Contribution{Kind: kind, Count: n, Weight: w, Points: pts})
		s.Score += pts
	}
	if u.IsExpert {
		s.ExpertBonus = ExpertBonus
		s.Score += ExpertBonus
	}
	s.Tier = TierFor(s.Score)
	return s, nil
}

func (e *reputationEngine) Recompute(ctx context.Context, actorID string) (*Change, error) {
	ch, err := retryOnConflict(ctx, func() (*Change, error) {
		return e.recomputeOnce(ctx, actorID)
	})
	if err != nil {
		return nil, err
	}
	if ch.NewTier != ch.OldTier {
		e.announce(ctx, ch)
	}
	return ch, nil
}

func (e *reputationEngine) recomputeOnce(ctx context.Context, actorID string) (*Change, error) {
	u, err := e.users.Get(ctx, actorID)
	if err != nil {
		return nil, notFound(err, "actor")
	}
	s, err := e.score(ctx, u)
	if err != nil {
		return nil, err
	}
	ch := &Change{
		ActorID:  u.ID,
		OldScore: u.Reputation,
		NewScore: s.Score,
		OldTier:  u.Tier,
		NewTier:  s.Tier.Level,
	}
	ch.Promoted = ch.OldTier < ExpertEligibleTier && ch.NewTier >= ExpertEligibleTier
	ch.Demoted = ch.OldTier >= ExpertEligibleTier && ch.NewTier < ExpertEligibleTier
	if ch.OldScore == ch.NewScore && ch.OldTier == ch.NewTier {
		return ch, nil
	}
	ok, err := e.users.UpdateReputation(ctx, u.ID, u.Version, s.Score, s.Tier.Level)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConflict
	}
	return ch, nil
}

func (e *reputationEngine) announce(ctx context.Context, ch *Change) {
	direction := "up"
	if ch.NewTier < ch.OldTier {
		direction = "down"
	}
	metrics.ReputationChanges.WithLabelValues(direction).Inc()
	if e.notifier == nil {
		return
	}
	tier := TierByLevel(ch.NewTier)
	msg := fmt.Sprintf("Your reputation is now %d. You reached the %s tier.", ch.NewScore, tier.Name)
	if direction == "down" {
		msg = fmt.Sprintf("Your reputation is now %d. Your tier changed to %s.", ch.NewScore, tier.Name)
	}
	if ch.Promoted {
		msg += " You are now eligible for expert status."
	}
	_, err := e.notifier.Notify(ctx, Notice{
		UserID:    ch.ActorID,
		Title:     "Reputation tier changed",
		Message:   msg,
		Severity:  SeverityInfo,
		Link:      "/reputation/" + ch.ActorID,
		SourceKey: fmt.Sprintf("tier:%d:%d:%d", ch.OldTier, ch.NewTier, ch.NewScore),
	})
	if err != nil {
		logger.Warn("tier change notification failed", zap.String("actor", ch.ActorID), zap.Error(err))
	}
}

func (e *reputationEngine) RecomputeAll(ctx context.Context, batch int) (RecomputeSummary, error) {
	if batch <= 0 {
		batch = 200
	}
	var sum RecomputeSummary
	for offset := 0; ; offset += batch {
		ids, err := e.users.ListIDs(ctx, offset, batch)
		if err != nil {
			return sum, err
		}
		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				return sum, err
			}
			sum.Processed++
			ch, err := e.Recompute(ctx, id)
			if err != nil {
				sum.Failed++
				logger.Warn("recompute failed", zap.String("actor", id), zap.Error(err))
				continue
			}
			if ch.OldScore != ch.NewScore || ch.OldTier != ch.NewTier {
				sum.Changed++
			}
		}
		if len(ids) < batch {
			return sum, nil
		}
	}
}
