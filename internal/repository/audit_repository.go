package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/d60-Lab/trustcore/internal/model"
)

// AuditRepository 只追加：没有更新和删除方法
type AuditRepository interface {
	Create(ctx context.Context, a *model.AdminAction) error
	List(ctx context.Context, offset, limit int) ([]*model.AdminAction, error)
	ListByTarget(ctx context.Context, targetType, targetID string) ([]*model.AdminAction, error)
}

type auditRepository struct{ db *gorm.DB }

func NewAuditRepository(db *gorm.DB) AuditRepository { return &auditRepository{db: db} }

func (r *auditRepository) Create(ctx context.Context, a *model.AdminAction) error {
	return r.db.WithContext(ctx).Create(a).Error
}

func (r *auditRepository) List(ctx context.Context, offset, limit int) ([]*model.AdminAction, error) {
	var res []*model.AdminAction
	err := r.db.WithContext(ctx).Order("created_at DESC").Offset(offset).Limit(limit).Find(&res).Error
	return res, err
}

func (r *auditRepository) ListByTarget(ctx context.Context, targetType, targetID string) ([]*model.AdminAction, error) {
	var res []*model.AdminAction
	err := r.db.WithContext(ctx).
		Where("target_type = ? AND target_id = ?", targetType, targetID).
		Order("created_at ASC").
		Find(&res).Error
	return res, err
}
