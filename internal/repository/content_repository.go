package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/d60-Lab/trustcore/internal/model"
)

type ContentRepository interface {
	Create(ctx context.Context, c *model.Content) error
	Get(ctx context.Context, id string) (*model.Content, error)
	// GetForUpdate 锁定内容行，用于信号计数与送审的读-改-写
	GetForUpdate(ctx context.Context, id string) (*model.Content, error)
	// GetUnscoped 包括已软删除的内容
	GetUnscoped(ctx context.Context, id string) (*model.Content, error)
	Update(ctx context.Context, id string, fields map[string]any) error
	SoftDelete(ctx context.Context, id string) error
	Undelete(ctx context.Context, id string) error
	// CountByKind 统计作者各类型内容数量（不含已清除内容）
	CountByKind(ctx context.Context, authorID string) (map[model.ContentKind]int64, error)
	WithTx(tx *gorm.DB) ContentRepository
}

type contentRepository struct {
	db *gorm.DB
}

func NewContentRepository(db *gorm.DB) ContentRepository { return &contentRepository{db: db} }

func (r *contentRepository) WithTx(tx *gorm.DB) ContentRepository { return &contentRepository{db: tx} }

func (r *contentRepository) Create(ctx context.Context, c *model.Content) error {
	return r.db.WithContext(ctx).Create(c).Error
}

func (r *contentRepository) Get(ctx context.Context, id string) (*model.Content, error) {
	var c model.Content
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *contentRepository) GetForUpdate(ctx context.Context, id string) (*model.Content, error) {
	var c model.Content
	if err := forUpdate(r.db.WithContext(ctx)).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *contentRepository) GetUnscoped(ctx context.Context, id string) (*model.Content, error) {
	var c model.Content
	if err := r.db.WithContext(ctx).Unscoped().Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *contentRepository) Update(ctx context.Context, id string, fields map[string]any) error {
	res := r.db.WithContext(ctx).Model(&model.Content{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *contentRepository) SoftDelete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Content{}).Error
}

func (r *contentRepository) Undelete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Unscoped().Model(&model.Content{}).
		Where("id = ?", id).
		Update("deleted_at", nil).Error
}

func (r *contentRepository) CountByKind(ctx context.Context, authorID string) (map[model.ContentKind]int64, error) {
	type row struct {
		Kind  model.ContentKind
		Total int64
	}
	var rows []row
	err := r.db.WithContext(ctx).Model(&model.Content{}).
		Select("kind, COUNT(*) AS total").
		Where("author_id = ?", authorID).
		Group("kind").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[model.ContentKind]int64, len(rows))
	for _, r := range rows {
		out[r.Kind] = r.Total
	}
	return out, nil
}
