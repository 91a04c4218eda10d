package model

import "time"

// Notification 站内通知（按 user_id 读取）
type Notification struct {
	ID        string `gorm:"primaryKey;type:varchar(36)"`
	UserID    string `gorm:"type:varchar(36);index:idx_notif_user;uniqueIndex:ux_notif_user_source"`
	SourceKey string `gorm:"type:varchar(96);uniqueIndex:ux_notif_user_source"`
	// 复合唯一键，同一来源对同一用户只通知一次
	// ux_notif_user_source = (user_id, source_key)
	Title     string    `gorm:"type:varchar(200)"`
	Message   string    `gorm:"type:text"`
	Severity  string    `gorm:"type:varchar(16)"`
	Link      string    `gorm:"type:varchar(512)"`
	Read      bool      `gorm:"not null;default:false"`
	CreatedAt time.Time `gorm:"index:idx_notif_user"`
}

func (Notification) TableName() string { return "notifications" }
