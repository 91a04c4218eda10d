package model

import (
	"time"
)

// QueueStatus 审核队列状态
type QueueStatus string

const (
	QueuePending  QueueStatus = "pending"
	QueueApproved QueueStatus = "approved" // restore
	QueueRejected QueueStatus = "rejected" // purge
)

// QueueSource 进入队列的原因来源
type QueueSource string

const (
	SourceClassifier QueueSource = "classifier"
	SourceReactions  QueueSource = "reactions"
	SourceManual     QueueSource = "manual"
)

// QueueEntry 待人工处理的内容快照，终态后不可重开
type QueueEntry struct {
	ID        string      `gorm:"primaryKey;type:varchar(36)"`
	ContentID string      `gorm:"type:varchar(36);not null;index"`
	// OpenKey 在 pending 期间等于 ContentID，终态置 NULL；唯一索引保证同一内容最多一条未决条目
	OpenKey *string     `gorm:"type:varchar(36);uniqueIndex:ux_queue_open"`
	Status  QueueStatus `gorm:"type:varchar(16);not null;index"`
	Source  QueueSource `gorm:"type:varchar(16);not null"`
	Reason  string      `gorm:"type:text"`

	SnapshotAuthorID  string      `gorm:"type:varchar(36)"`
	SnapshotKind      ContentKind `gorm:"type:varchar(16)"`
	SnapshotParentID  *string     `gorm:"type:varchar(36)"`
	SnapshotBody      string      `gorm:"type:text"`
	SnapshotFlagCount int

	ResolvedBy       *string `gorm:"type:varchar(36)"`
	ResolutionReason string  `gorm:"type:text"`
	ResolvedAt       *time.Time
	CreatedAt        time.Time `gorm:"index"`
	UpdatedAt        time.Time
}

func (QueueEntry) TableName() string { return "moderation_queue" }
