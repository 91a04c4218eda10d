package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/d60-Lab/trustcore/internal/model"
)

type EscalationRepository interface {
	Create(ctx context.Context, e *model.Escalation) error
	Get(ctx context.Context, id string) (*model.Escalation, error)
	// Claim pending -> processing，只有一个调用方能成功
	Claim(ctx context.Context, id string, at time.Time) (bool, error)
	// ClaimPending 批量领取 pending 以及租约早于 staleBefore 的 processing（postgres 下 SKIP LOCKED）
	ClaimPending(ctx context.Context, limit int, at, staleBefore time.Time) ([]model.Escalation, error)
	MarkDone(ctx context.Context, id string, fanout int64, at time.Time) error
	Release(ctx context.Context, id string) error
	CountByContent(ctx context.Context, contentID string) (int64, error)
	WithTx(tx *gorm.DB) EscalationRepository
}

type escalationRepository struct{ db *gorm.DB }

func NewEscalationRepository(db *gorm.DB) EscalationRepository {
	return &escalationRepository{db: db}
}

func (r *escalationRepository) WithTx(tx *gorm.DB) EscalationRepository {
	return &escalationRepository{db: tx}
}

func (r *escalationRepository) Create(ctx context.Context, e *model.Escalation) error {
	return r.db.WithContext(ctx).Create(e).Error
}

func (r *escalationRepository) Get(ctx context.Context, id string) (*model.Escalation, error) {
	var e model.Escalation
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&e).Error; err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *escalationRepository) Claim(ctx context.Context, id string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Escalation{}).
		Where("id = ? AND status = ?", id, model.EscalationPending).
		Updates(map[string]any{"status": model.EscalationProcessing, "claimed_at": at})
	return res.RowsAffected == 1, res.Error
}

func (r *escalationRepository) ClaimPending(ctx context.Context, limit int, at, staleBefore time.Time) ([]model.Escalation, error) {
	var batch []model.Escalation
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 领取后进程崩溃会留下 processing 行，租约过期后重新领取；通知按 source_key 去重，重放安全
		if err := skipLocked(tx).
			Where("status = ? OR (status = ? AND (claimed_at IS NULL OR claimed_at < ?))",
				model.EscalationPending, model.EscalationProcessing, staleBefore).
			Order("created_at").
			Limit(limit).
			Find(&batch).Error; err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}
		ids := make([]string, len(batch))
		for i := range batch {
			ids[i] = batch[i].ID
			batch[i].Status = model.EscalationProcessing
			batch[i].ClaimedAt = &at
		}
		return tx.Model(&model.Escalation{}).Where("id IN ?", ids).
			Updates(map[string]any{"status": model.EscalationProcessing, "claimed_at": at}).Error
	})
	if err != nil {
		return nil, err
	}
	return batch, nil
}

func (r *escalationRepository) MarkDone(ctx context.Context, id string, fanout int64, at time.Time) error {
	return r.db.WithContext(ctx).Model(&model.Escalation{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": model.EscalationDone, "processed_at": at, "fanout_count": fanout}).Error
}

func (r *escalationRepository) Release(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&model.Escalation{}).
		Where("id = ? AND status = ?", id, model.EscalationProcessing).
		Updates(map[string]any{"status": model.EscalationPending, "claimed_at": nil}).Error
}

func (r *escalationRepository) CountByContent(ctx context.Context, contentID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Escalation{}).Where("content_id = ?", contentID).Count(&n).Error
	return n, err
}
