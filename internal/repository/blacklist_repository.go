package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/d60-Lab/trustcore/internal/model"
)

type BlacklistRepository interface {
	ListActive(ctx context.Context) ([]model.BlacklistKeyword, error)
	Get(ctx context.Context, id string) (*model.BlacklistKeyword, error)
	// Upsert 按关键词插入或重新启用
	Upsert(ctx context.Context, k *model.BlacklistKeyword) error
	Deactivate(ctx context.Context, id string) error
}

type blacklistRepository struct{ db *gorm.DB }

func NewBlacklistRepository(db *gorm.DB) BlacklistRepository { return &blacklistRepository{db: db} }

func (r *blacklistRepository) ListActive(ctx context.Context) ([]model.BlacklistKeyword, error) {
	var res []model.BlacklistKeyword
	err := r.db.WithContext(ctx).Where("active = ?", true).Order("keyword").Find(&res).Error
	return res, err
}

func (r *blacklistRepository) Get(ctx context.Context, id string) (*model.BlacklistKeyword, error) {
	var k model.BlacklistKeyword
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&k).Error; err != nil {
		return nil, err
	}
	return &k, nil
}

func (r *blacklistRepository) Upsert(ctx context.Context, k *model.BlacklistKeyword) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing model.BlacklistKeyword
		err := tx.Where("keyword = ?", k.Keyword).First(&existing).Error
		switch {
		case err == nil:
			k.ID = existing.ID
			k.CreatedAt = existing.CreatedAt
			return tx.Model(&existing).Updates(map[string]any{"reason": k.Reason, "active": true}).Error
		case IsNotFound(err):
			k.Active = true
			return tx.Create(k).Error
		default:
			return err
		}
	})
}

func (r *blacklistRepository) Deactivate(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Model(&model.BlacklistKeyword{}).Where("id = ?", id).Update("active", false)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
