package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/trustcore/internal/model"
)

// QueueRepository 审核队列仓储接口
type QueueRepository interface {
	// InsertIfNoOpen 该内容没有未决条目时插入，返回是否插入
	InsertIfNoOpen(ctx context.Context, e *model.QueueEntry) (bool, error)

	// GetOpenByContent 查询内容当前的未决条目
	GetOpenByContent(ctx context.Context, contentID string) (*model.QueueEntry, error)

	// Get 根据ID查询条目
	Get(ctx context.Context, id string) (*model.QueueEntry, error)

	// Resolve 仅当条目仍为 pending 时写入终态，返回是否成功
	Resolve(ctx context.Context, id string, status model.QueueStatus, adminID, reason string, at time.Time) (bool, error)

	// ListByStatus 按状态分页查询
	ListByStatus(ctx context.Context, status model.QueueStatus, offset, limit int) ([]*model.QueueEntry, error)

	// CountByContent 统计某内容的历史条目数
	CountByContent(ctx context.Context, contentID string) (int64, error)

	WithTx(tx *gorm.DB) QueueRepository
}

type queueRepository struct {
	db *gorm.DB
}

// NewQueueRepository 创建审核队列仓储
func NewQueueRepository(db *gorm.DB) QueueRepository {
	return &queueRepository{db: db}
}

func (r *queueRepository) WithTx(tx *gorm.DB) QueueRepository { return &queueRepository{db: tx} }

func (r *queueRepository) InsertIfNoOpen(ctx context.Context, e *model.QueueEntry) (bool, error) {
	key := e.ContentID
	e.OpenKey = &key
	e.Status = model.QueuePending
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "open_key"}}, DoNothing: true}).
		Create(e)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *queueRepository) GetOpenByContent(ctx context.Context, contentID string) (*model.QueueEntry, error) {
	var e model.QueueEntry
	err := r.db.WithContext(ctx).Where("open_key = ?", contentID).First(&e).Error
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *queueRepository) Get(ctx context.Context, id string) (*model.QueueEntry, error) {
	var e model.QueueEntry
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&e).Error; err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *queueRepository) Resolve(ctx context.Context, id string, status model.QueueStatus, adminID, reason string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.QueueEntry{}).
		Where("id = ? AND status = ?", id, model.QueuePending).
		Updates(map[string]any{
			"status":            status,
			"open_key":          nil,
			"resolved_by":       adminID,
			"resolution_reason": reason,
			"resolved_at":       at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *queueRepository) ListByStatus(ctx context.Context, status model.QueueStatus, offset, limit int) ([]*model.QueueEntry, error) {
	var entries []*model.QueueEntry
	err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at ASC").
		Offset(offset).Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *queueRepository) CountByContent(ctx context.Context, contentID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.QueueEntry{}).Where("content_id = ?", contentID).Count(&count).Error
	return count, err
}
