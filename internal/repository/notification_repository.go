package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/trustcore/internal/model"
)

type NotificationRepository interface {
	// CreateBatch 忽略 (user_id, source_key) 重复，返回实际写入条数
	CreateBatch(ctx context.Context, items []model.Notification) (int64, error)
	ListForUser(ctx context.Context, userID string, offset, limit int) ([]*model.Notification, error)
}

type notificationRepository struct{ db *gorm.DB }

func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) CreateBatch(ctx context.Context, items []model.Notification) (int64, error) {
	if len(items) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&items)
	return res.RowsAffected, res.Error
}

func (r *notificationRepository) ListForUser(ctx context.Context, userID string, offset, limit int) ([]*model.Notification, error) {
	var res []*model.Notification
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC, id DESC").Offset(offset).Limit(limit).Find(&res).Error
	return res, err
}
