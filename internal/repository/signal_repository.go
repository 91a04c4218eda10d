package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/trustcore/internal/model"
)

// SignalRepository 举手/反应/投票的集合成员关系，均以唯一索引保证每个 actor 最多一条
type SignalRepository interface {
	FindRaiseHand(ctx context.Context, actorID, contentID string) (*model.RaiseHand, error)
	CreateRaiseHand(ctx context.Context, actorID, contentID string, at time.Time) error
	DeleteRaiseHand(ctx context.Context, id string) error

	FindReaction(ctx context.Context, actorID, contentID string, kind model.ReactionKind) (*model.Reaction, error)
	CreateReaction(ctx context.Context, actorID, contentID string, kind model.ReactionKind, at time.Time) error
	DeleteReaction(ctx context.Context, id string) error
	// AdjustReactionCount 修改计数并返回新值，不低于 0
	AdjustReactionCount(ctx context.Context, contentID string, kind model.ReactionKind, delta int, at time.Time) (int, error)
	ReactionCounts(ctx context.Context, contentID string) (map[model.ReactionKind]int, error)

	FindVote(ctx context.Context, actorID, contentID string) (*model.Vote, error)
	CreateVote(ctx context.Context, actorID, contentID string, value int, at time.Time) error
	UpdateVote(ctx context.Context, id string, value int, at time.Time) error
	DeleteVote(ctx context.Context, id string) error

	WithTx(tx *gorm.DB) SignalRepository
}

type signalRepository struct{ db *gorm.DB }

func NewSignalRepository(db *gorm.DB) SignalRepository { return &signalRepository{db: db} }

func (r *signalRepository) WithTx(tx *gorm.DB) SignalRepository { return &signalRepository{db: tx} }

func (r *signalRepository) FindRaiseHand(ctx context.Context, actorID, contentID string) (*model.RaiseHand, error) {
	var rh model.RaiseHand
	err := r.db.WithContext(ctx).Where("actor_id = ? AND content_id = ?", actorID, contentID).First(&rh).Error
	if err != nil {
		return nil, err
	}
	return &rh, nil
}

func (r *signalRepository) CreateRaiseHand(ctx context.Context, actorID, contentID string, at time.Time) error {
	return r.db.WithContext(ctx).Create(&model.RaiseHand{ID: uuid.New().String(), ActorID: actorID, ContentID: contentID, CreatedAt: at}).Error
}

func (r *signalRepository) DeleteRaiseHand(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.RaiseHand{}).Error
}

func (r *signalRepository) FindReaction(ctx context.Context, actorID, contentID string, kind model.ReactionKind) (*model.Reaction, error) {
	var re model.Reaction
	err := r.db.WithContext(ctx).
		Where("actor_id = ? AND content_id = ? AND kind = ?", actorID, contentID, kind).
		First(&re).Error
	if err != nil {
		return nil, err
	}
	return &re, nil
}

func (r *signalRepository) CreateReaction(ctx context.Context, actorID, contentID string, kind model.ReactionKind, at time.Time) error {
	return r.db.WithContext(ctx).Create(&model.Reaction{ID: uuid.New().String(), ActorID: actorID, ContentID: contentID, Kind: kind, CreatedAt: at}).Error
}

func (r *signalRepository) DeleteReaction(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Reaction{}).Error
}

func (r *signalRepository) AdjustReactionCount(ctx context.Context, contentID string, kind model.ReactionKind, delta int, at time.Time) (int, error) {
	db := r.db.WithContext(ctx)
	// 计数行不存在时先以 0 创建
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.ReactionCount{ContentID: contentID, Kind: kind, Count: 0, UpdatedAt: at}).Error; err != nil {
		return 0, err
	}
	var rc model.ReactionCount
	if err := forUpdate(db).Where("content_id = ? AND kind = ?", contentID, kind).First(&rc).Error; err != nil {
		return 0, err
	}
	next := max(rc.Count+delta, 0)
	if err := db.Model(&model.ReactionCount{}).
		Where("content_id = ? AND kind = ?", contentID, kind).
		Updates(map[string]any{"count": next, "updated_at": at}).Error; err != nil {
		return 0, err
	}
	return next, nil
}

func (r *signalRepository) ReactionCounts(ctx context.Context, contentID string) (map[model.ReactionKind]int, error) {
	var rows []model.ReactionCount
	if err := r.db.WithContext(ctx).Where("content_id = ?", contentID).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[model.ReactionKind]int, len(rows))
	for _, rc := range rows {
		out[rc.Kind] = rc.Count
	}
	return out, nil
}

func (r *signalRepository) FindVote(ctx context.Context, actorID, contentID string) (*model.Vote, error) {
	var v model.Vote
	err := r.db.WithContext(ctx).Where("actor_id = ? AND content_id = ?", actorID, contentID).First(&v).Error
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *signalRepository) CreateVote(ctx context.Context, actorID, contentID string, value int, at time.Time) error {
	return r.db.WithContext(ctx).Create(&model.Vote{ID: uuid.New().String(), ActorID: actorID, ContentID: contentID, Value: value, CreatedAt: at, UpdatedAt: at}).Error
}

func (r *signalRepository) UpdateVote(ctx context.Context, id string, value int, at time.Time) error {
	return r.db.WithContext(ctx).Model(&model.Vote{}).Where("id = ?", id).
		Updates(map[string]any{"value": value, "updated_at": at}).Error
}

func (r *signalRepository) DeleteVote(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Vote{}).Error
}
