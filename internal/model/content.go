package model

import (
	"time"

	"gorm.io/gorm"
)

// ContentKind 可审核内容类型
type ContentKind string

const (
	ContentDiscussion ContentKind = "discussion"
	ContentComment    ContentKind = "comment"
	ContentReview     ContentKind = "review"
)

// Valid 是否为已知类型
func (k ContentKind) Valid() bool {
	switch k {
	case ContentDiscussion, ContentComment, ContentReview:
		return true
	}
	return false
}

// Content 用户生成内容；被清除时软删除，审核快照保留原文
type Content struct {
	ID             string      `gorm:"primaryKey;type:varchar(36)"`
	AuthorID       string      `gorm:"type:varchar(36);not null;index:idx_content_author_kind"`
	Kind           ContentKind `gorm:"type:varchar(16);not null;index:idx_content_author_kind"`
	ParentID       *string     `gorm:"type:varchar(36);index"`
	Body           string      `gorm:"type:text;not null"`
	Flagged        bool        `gorm:"not null;default:false;index"`
	FlagCount      int         `gorm:"not null;default:0"`
	RaiseHandCount int         `gorm:"not null;default:0"`
	VoteScore      int         `gorm:"not null;default:0"`
	Trending       bool        `gorm:"not null;default:false"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DeletedAt      gorm.DeletedAt `gorm:"index"`
}

func (Content) TableName() string { return "contents" }
