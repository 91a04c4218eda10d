package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/d60-Lab/trustcore/internal/model"
)

type UserRepository interface {
	Create(ctx context.Context, u *model.User) error
	Get(ctx context.Context, id string) (*model.User, error)
	// GetForUpdate 在事务内锁定用户行
	GetForUpdate(ctx context.Context, id string) (*model.User, error)
	Update(ctx context.Context, id string, fields map[string]any) error
	// UpdateReputation 按 version 做 CAS，返回是否写入
	UpdateReputation(ctx context.Context, id string, version int64, score, tier int) (bool, error)
	ListExperts(ctx context.Context, excludeID string, offset, limit int) ([]*model.User, error)
	ListIDs(ctx context.Context, offset, limit int) ([]string, error)
	WithTx(tx *gorm.DB) UserRepository
}

type userRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) UserRepository { return &userRepository{db: db} }

func (r *userRepository) WithTx(tx *gorm.DB) UserRepository { return &userRepository{db: tx} }

func (r *userRepository) Create(ctx context.Context, u *model.User) error {
	return r.db.WithContext(ctx).Create(u).Error
}

func (r *userRepository) Get(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *userRepository) GetForUpdate(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	if err := forUpdate(r.db.WithContext(ctx)).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *userRepository) Update(ctx context.Context, id string, fields map[string]any) error {
	res := r.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *userRepository) UpdateReputation(ctx context.Context, id string, version int64, score, tier int) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.User{}).
		Where("id = ? AND version = ?", id, version).
		Updates(map[string]any{"reputation": score, "tier": tier, "version": version + 1})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ListExperts 分页列出可接收升级通知的专家
func (r *userRepository) ListExperts(ctx context.Context, excludeID string, offset, limit int) ([]*model.User, error) {
	var res []*model.User
	err := r.db.WithContext(ctx).
		Where("is_expert = ? AND deactivated = ? AND id <> ?", true, false, excludeID).
		Order("reputation DESC, id").
		Offset(offset).Limit(limit).
		Find(&res).Error
	return res, err
}

func (r *userRepository) ListIDs(ctx context.Context, offset, limit int) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&model.User{}).
		Where("deactivated = ?", false).
		Order("id").Offset(offset).Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}
