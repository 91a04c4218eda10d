package model

import "time"

// Conversation 发送方曾向接收方发过私信（A -> B）
type Conversation struct {
	ID          string `gorm:"primaryKey;type:varchar(36)"`
	SenderID    string `gorm:"type:varchar(36);index:idx_conv_pair,unique;not null"`
	RecipientID string `gorm:"type:varchar(36);index:idx_conv_pair,unique;not null"`
	// 复合唯一键，首次发信时写入
	// idx_conv_pair = (sender_id, recipient_id)
	CreatedAt time.Time
}

func (Conversation) TableName() string { return "conversations" }
