package model

import "time"

// BlacklistKeyword 关键词黑名单，仅通过管理操作变更
type BlacklistKeyword struct {
	ID        string `gorm:"primaryKey;type:varchar(36)"`
	Keyword   string `gorm:"type:varchar(128);uniqueIndex;not null"`
	Reason    string `gorm:"type:text"`
	Active    bool   `gorm:"not null;default:true;index"`
	CreatedBy string `gorm:"type:varchar(36)"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (BlacklistKeyword) TableName() string { return "blacklist_keywords" }
