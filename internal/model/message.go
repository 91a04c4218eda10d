package model

import "time"

// Message 私信，创建后仅 read 标记可变
type Message struct {
	ID          string    `gorm:"primaryKey;type:varchar(36)"`
	SenderID    string    `gorm:"type:varchar(36);not null;index:idx_msg_sender_created;index:idx_msg_sender_hash"`
	RecipientID string    `gorm:"type:varchar(36);not null;index"`
	Content     string    `gorm:"type:text;not null"`
	ContentHash string    `gorm:"type:varchar(64);not null;index:idx_msg_sender_hash"`
	Read        bool      `gorm:"not null;default:false"`
	ReadAt      *time.Time
	CreatedAt   time.Time `gorm:"not null;index:idx_msg_sender_created;index:idx_msg_sender_hash"`
}

func (Message) TableName() string { return "messages" }
