package model

import "time"

// 外发状态
const (
	EscalationPending    = "pending"
	EscalationProcessing = "processing"
	EscalationDone       = "done"
)

// Escalation 举手阈值越过事件（与计数更新同事务写入的外发盒）
type Escalation struct {
	ID          string     `gorm:"primaryKey;type:varchar(36)"`
	ContentID   string     `gorm:"type:varchar(36);index;not null"`
	AuthorID    string     `gorm:"type:varchar(36)"`
	Threshold   int        `gorm:"not null"`
	Count       int        `gorm:"not null"`
	Status      string     `gorm:"type:varchar(16);index"` // pending, processing, done
	CreatedAt   time.Time  `gorm:"index"`
	ClaimedAt   *time.Time // processing 租约起点
	ProcessedAt *time.Time
	FanoutCount int64
}

func (Escalation) TableName() string { return "escalations" }
