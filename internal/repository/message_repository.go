package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/d60-Lab/trustcore/internal/model"
)

type MessageRepository interface {
	Create(ctx context.Context, m *model.Message) error
	Get(ctx context.Context, id string) (*model.Message, error)
	// MarkRead 仅接收方可标记，返回是否发生状态变化
	MarkRead(ctx context.Context, id, recipientID string, at time.Time) (bool, error)
	// CountDistinctRecipientsSince 统计 since 之后该发送方私信过的不同接收方数量
	CountDistinctRecipientsSince(ctx context.Context, senderID string, since time.Time) (int64, error)
	// CountIdenticalSince 统计 since 之后该发送方发送相同内容的次数
	CountIdenticalSince(ctx context.Context, senderID, contentHash string, since time.Time) (int64, error)
	WithTx(tx *gorm.DB) MessageRepository
}

type messageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) MessageRepository { return &messageRepository{db: db} }

func (r *messageRepository) WithTx(tx *gorm.DB) MessageRepository { return &messageRepository{db: tx} }

func (r *messageRepository) Create(ctx context.Context, m *model.Message) error {
	return r.db.WithContext(ctx).Create(m).Error
}

func (r *messageRepository) Get(ctx context.Context, id string) (*model.Message, error) {
	var m model.Message
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *messageRepository) MarkRead(ctx context.Context, id, recipientID string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Message{}).
		Where("id = ? AND recipient_id = ? AND read = ?", id, recipientID, false).
		Updates(map[string]any{"read": true, "read_at": at})
	return res.RowsAffected > 0, res.Error
}

func (r *messageRepository) CountDistinctRecipientsSince(ctx context.Context, senderID string, since time.Time) (int64, error) {
	var cnt int64
	err := r.db.WithContext(ctx).Model(&model.Message{}).
		Where("sender_id = ? AND created_at >= ?", senderID, since).
		Distinct("recipient_id").
		Count(&cnt).Error
	return cnt, err
}

func (r *messageRepository) CountIdenticalSince(ctx context.Context, senderID, contentHash string, since time.Time) (int64, error) {
	var cnt int64
	err := r.db.WithContext(ctx).Model(&model.Message{}).
		Where("sender_id = ? AND content_hash = ? AND created_at >= ?", senderID, contentHash, since).
		Count(&cnt).Error
	return cnt, err
}
