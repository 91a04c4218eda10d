package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/trustcore/internal/model"
)

type ConversationRepository interface {
	Create(ctx context.Context, senderID, recipientID string, at time.Time) error
	Exists(ctx context.Context, senderID, recipientID string) (bool, error)
	ListRecipients(ctx context.Context, senderID string, offset, limit int) ([]*model.Conversation, error)
	WithTx(tx *gorm.DB) ConversationRepository
}

type conversationRepository struct {
	db *gorm.DB
}

func NewConversationRepository(db *gorm.DB) ConversationRepository {
	return &conversationRepository{db: db}
}

func (r *conversationRepository) WithTx(tx *gorm.DB) ConversationRepository {
	return &conversationRepository{db: tx}
}

func (r *conversationRepository) Create(ctx context.Context, senderID, recipientID string, at time.Time) error {
	c := &model.Conversation{ID: uuid.New().String(), SenderID: senderID, RecipientID: recipientID, CreatedAt: at}
	// 幂等：已存在的会话不报错
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(c).Error
}

func (r *conversationRepository) Exists(ctx context.Context, senderID, recipientID string) (bool, error) {
	var cnt int64
	if err := r.db.WithContext(ctx).
		Model(&model.Conversation{}).
		Where("sender_id = ? AND recipient_id = ?", senderID, recipientID).
		Count(&cnt).Error; err != nil {
		return false, err
	}
	return cnt > 0, nil
}

func (r *conversationRepository) ListRecipients(ctx context.Context, senderID string, offset, limit int) ([]*model.Conversation, error) {
	var res []*model.Conversation
	err := r.db.WithContext(ctx).Where("sender_id = ?", senderID).Order("created_at DESC").Offset(offset).Limit(limit).Find(&res).Error
	return res, err
}
