package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/d60-Lab/trustcore/config"
	"github.com/d60-Lab/trustcore/internal/model"
	"github.com/d60-Lab/trustcore/internal/repository"
	"github.com/d60-Lab/trustcore/pkg/logger"
	"github.com/d60-Lab/trustcore/pkg/metrics"
)

// TrendingKey 热门内容的 redis 有序集合，score 为举手数
const TrendingKey = "trending:contents"

// SignalThresholds 信号阈值
type SignalThresholds struct {
	Trending int // 举手数达到即标记热门
	Urgent   int // 举手数达到即通知专家
	Concern  int // 关注类反应超过即送审
}

// DefaultSignalThresholds 默认阈值
func DefaultSignalThresholds() SignalThresholds {
	return SignalThresholds{Trending: 5, Urgent: 10, Concern: 3}
}

// SignalThresholdsFromConfig 未配置项使用默认值
func SignalThresholdsFromConfig(cfg config.EscalationConfig) SignalThresholds {
	t := DefaultSignalThresholds()
	if cfg.TrendingThreshold > 0 {
		t.Trending = cfg.TrendingThreshold
	}
	if cfg.UrgentThreshold > 0 {
		t.Urgent = cfg.UrgentThreshold
	}
	if cfg.ConcernThreshold > 0 {
		t.Concern = cfg.ConcernThreshold
	}
	return t
}

// RaiseHandResult 举手切换结果
type RaiseHandResult struct {
	Signaled  bool `json:"signaled"`
	Count     int  `json:"count"`
	Trending  bool `json:"trending"`
	Escalated bool `json:"escalated"`
}

// ReactionResult 反应切换结果
type ReactionResult struct {
	Kind   model.ReactionKind `json:"kind"`
	Active bool               `json:"active"`
	Count  int                `json:"count"`
	Queued bool               `json:"queued"`
}

// VoteResult 投票切换结果，VoteState 为 -1/0/+1
type VoteResult struct {
	VoteState int `json:"vote_state"`
	Score     int `json:"score"`
}

// TrendingItem 热门内容
type TrendingItem struct {
	ContentID string `json:"content_id"`
	Count     int    `json:"count"`
}

// SignalService 举手/反应/投票，均为按 (actor, content, kind) 的切换
type SignalService interface {
	ToggleRaiseHand(ctx context.Context, actorID, contentID string) (*RaiseHandResult, error)
	ToggleReaction(ctx context.Context, actorID, contentID string, kind model.ReactionKind) (*ReactionResult, error)
	ToggleVote(ctx context.Context, actorID, contentID string, value int) (*VoteResult, error)
	Trending(ctx context.Context, limit int) ([]TrendingItem, error)
}

type signalService struct {
	db          *gorm.DB
	users       repository.UserRepository
	contents    repository.ContentRepository
	signals     repository.SignalRepository
	queue       repository.QueueRepository
	escalations repository.EscalationRepository
	dispatcher  *EscalationDispatcher
	rdb         *redis.Client
	limits      SignalThresholds
	clock       Clock
}

// SignalDeps 信号服务依赖；Redis 与 Dispatcher 可为空
type SignalDeps struct {
	DB          *gorm.DB
	Users       repository.UserRepository
	Contents    repository.ContentRepository
	Signals     repository.SignalRepository
	Queue       repository.QueueRepository
	Escalations repository.EscalationRepository
	Dispatcher  *EscalationDispatcher
	Redis       *redis.Client
	Limits      SignalThresholds
	Clock       Clock
}

func NewSignalService(d SignalDeps) SignalService {
	if d.Clock == nil {
		d.Clock = SystemClock
	}
	return &signalService{
		db:          d.DB,
		users:       d.Users,
		contents:    d.Contents,
		signals:     d.Signals,
		queue:       d.Queue,
		escalations: d.Escalations,
		dispatcher:  d.Dispatcher,
		rdb:         d.Redis,
		limits:      d.Limits,
		clock:       d.Clock,
	}
}

func (s *signalService) requireActor(ctx context.Context, actorID string) error {
	if actorID == "" {
		return ErrUnauthorized
	}
	u, err := s.users.Get(ctx, actorID)
	if err != nil {
		if repository.IsNotFound(err) {
			return ErrUnauthorized
		}
		return err
	}
	if u.Deactivated {
		return ErrUnauthorized
	}
	return nil
}

func (s *signalService) ToggleRaiseHand(ctx context.Context, actorID, contentID string) (*RaiseHandResult, error) {
	if err := s.requireActor(ctx, actorID); err != nil {
		return nil, err
	}
	now := s.clock.Now()
	res := &RaiseHandResult{}
	var (
		escalationID  string
		trendingMoved bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		contents := s.contents.WithTx(tx)
		signals := s.signals.WithTx(tx)

		// 内容行锁：计数的前后值与阈值判断来自同一次读取
		c, err := contents.GetForUpdate(ctx, contentID)
		if err != nil {
			return notFound(err, "content")
		}
		before := c.RaiseHandCount
		after := before

		existing, err := signals.FindRaiseHand(ctx, actorID, contentID)
		switch {
		case err == nil:
			if err := signals.DeleteRaiseHand(ctx, existing.ID); err != nil {
				return err
			}
			after = max(before-1, 0)
		case repository.IsNotFound(err):
			if err := signals.CreateRaiseHand(ctx, actorID, contentID, now); err != nil {
				return err
			}
			after = before + 1
			res.Signaled = true
		default:
			return err
		}

		trending := c.Trending
		if before < s.limits.Trending && after >= s.limits.Trending {
			trending = true
		} else if before >= s.limits.Trending && after < s.limits.Trending {
			trending = false
		}
		trendingMoved = trending || c.Trending

		if err := contents.Update(ctx, c.ID, map[string]any{
			"raise_hand_count": after,
			"trending":         trending,
			"updated_at":       now,
		}); err != nil {
			return err
		}

		// 只在恰好越过阈值的这一次写外发盒
		if before < s.limits.Urgent && after >= s.limits.Urgent {
			esc := &model.Escalation{
				ID:        uuid.New().String(),
				ContentID: c.ID,
				AuthorID:  c.AuthorID,
				Threshold: s.limits.Urgent,
				Count:     after,
				Status:    model.EscalationPending,
				CreatedAt: now,
			}
			if err := s.escalations.WithTx(tx).Create(ctx, esc); err != nil {
				return err
			}
			escalationID = esc.ID
			res.Escalated = true
		}
		res.Count = after
		res.Trending = trending
		return nil
	})
	if err != nil {
		return nil, err
	}

	// 提交之后的副作用不受调用方取消影响
	bg := context.WithoutCancel(ctx)
	if trendingMoved {
		s.mirrorTrending(bg, contentID, res.Count, res.Trending)
	}
	if escalationID != "" {
		metrics.EscalationsFired.Inc()
		if s.dispatcher != nil {
			if _, err := s.dispatcher.Dispatch(bg, escalationID); err != nil {
				logger.Warn("escalation dispatch deferred", zap.String("escalation", escalationID), zap.Error(err))
			}
		}
	}
	return res, nil
}

func (s *signalService) mirrorTrending(ctx context.Context, contentID string, count int, trending bool) {
	if s.rdb == nil {
		return
	}
	var err error
	if trending {
		err = s.rdb.ZAdd(ctx, TrendingKey, redis.Z{Score: float64(count), Member: contentID}).Err()
	} else {
		err = s.rdb.ZRem(ctx, TrendingKey, contentID).Err()
	}
	if err != nil {
		logger.Warn("trending mirror failed", zap.String("content", contentID), zap.Error(err))
	}
}

func (s *signalService) Trending(ctx context.Context, limit int) ([]TrendingItem, error) {
	if s.rdb == nil {
		return []TrendingItem{}, nil
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	zs, err := s.rdb.ZRevRangeWithScores(ctx, TrendingKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]TrendingItem, 0, len(zs))
	for _, z := range zs {
		id, _ := z.Member.(string)
		out = append(out, TrendingItem{ContentID: id, Count: int(z.Score)})
	}
	return out, nil
}

func (s *signalService) ToggleReaction(ctx context.Context, actorID, contentID string, kind model.ReactionKind) (*ReactionResult, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown reaction %q", ErrInvalidArgument, kind)
	}
	if err := s.requireActor(ctx, actorID); err != nil {
		return nil, err
	}
	now := s.clock.Now()
	res := &ReactionResult{Kind: kind}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		contents := s.contents.WithTx(tx)
		signals := s.signals.WithTx(tx)

		c, err := contents.GetForUpdate(ctx, contentID)
		if err != nil {
			return notFound(err, "content")
		}

		delta := 1
		existing, err := signals.FindReaction(ctx, actorID, contentID, kind)
		switch {
		case err == nil:
			if err := signals.DeleteReaction(ctx, existing.ID); err != nil {
				return err
			}
			delta = -1
		case repository.IsNotFound(err):
			if err := signals.CreateReaction(ctx, actorID, contentID, kind, now); err != nil {
				return err
			}
			res.Active = true
		default:
			return err
		}

		count, err := signals.AdjustReactionCount(ctx, contentID, kind, delta, now)
		if err != nil {
			return err
		}
		res.Count = count

		if res.Active && kind.Concern() && count > s.limits.Concern {
			reason := fmt.Sprintf("%d %s reactions", count, kind)
			_, created, err := flagAndEnqueue(ctx, contents, s.queue.WithTx(tx), c, model.SourceReactions, reason, now)
			if err != nil {
				return err
			}
			res.Queued = created
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *signalService) ToggleVote(ctx context.Context, actorID, contentID string, value int) (*VoteResult, error) {
	if value != 1 && value != -1 {
		return nil, fmt.Errorf("%w: vote must be +1 or -1", ErrInvalidArgument)
	}
	if err := s.requireActor(ctx, actorID); err != nil {
		return nil, err
	}
	now := s.clock.Now()
	res := &VoteResult{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		contents := s.contents.WithTx(tx)
		signals := s.signals.WithTx(tx)

		c, err := contents.GetForUpdate(ctx, contentID)
		if err != nil {
			return notFound(err, "content")
		}

		var delta int
		existing, err := signals.FindVote(ctx, actorID, contentID)
		switch {
		case repository.IsNotFound(err):
			if err := signals.CreateVote(ctx, actorID, contentID, value, now); err != nil {
				return err
			}
			delta = value
			res.VoteState = value
		case err != nil:
			return err
		case existing.Value == value:
			if err := signals.DeleteVote(ctx, existing.ID); err != nil {
				return err
			}
			delta = -value
		default:
			if err := signals.UpdateVote(ctx, existing.ID, value, now); err != nil {
				return err
			}
			delta = 2 * value
			res.VoteState = value
		}

		res.Score = c.VoteScore + delta
		return contents.Update(ctx, c.ID, map[string]any{"vote_score": res.Score, "updated_at": now})
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}
