package model

import "time"

// User 平台用户（信誉、专家身份、私信封禁状态）
type User struct {
	ID               string `gorm:"primaryKey;type:varchar(36)"`
	Username         string `gorm:"type:varchar(64);uniqueIndex;not null"`
	Email            string `gorm:"type:varchar(128)"`
	Reputation       int    `gorm:"not null;default:0;index"`
	Tier             int    `gorm:"not null;default:1"`
	IsExpert         bool   `gorm:"not null;default:false;index"`
	IsAdmin          bool   `gorm:"not null;default:false"`
	ExpertsOnlyInbox bool   `gorm:"not null;default:false"`
	MessagingBanned  bool   `gorm:"not null;default:false"`
	SuspendedUntil   *time.Time
	Deactivated      bool  `gorm:"not null;default:false"`
	Version          int64 `gorm:"not null;default:0"` // 乐观锁，信誉重算时 CAS
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (User) TableName() string { return "users" }

// Suspended 判断在 now 时刻是否禁止发私信
func (u *User) Suspended(now time.Time) bool {
	if u.MessagingBanned {
		return true
	}
	return u.SuspendedUntil != nil && u.SuspendedUntil.After(now)
}
