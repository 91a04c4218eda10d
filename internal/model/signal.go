package model

import "time"

// RaiseHand 举手，(actor, content) 唯一，重复操作即撤销
type RaiseHand struct {
	ID        string `gorm:"primaryKey;type:varchar(36)"`
	ActorID   string `gorm:"type:varchar(36);not null;index:idx_raise_pair,unique"`
	ContentID string `gorm:"type:varchar(36);not null;index:idx_raise_pair,unique"`
	CreatedAt time.Time
}

func (RaiseHand) TableName() string { return "raise_hands" }

// ReactionKind 表情反应类型
type ReactionKind string

const (
	ReactionHelpful    ReactionKind = "helpful"
	ReactionInsightful ReactionKind = "insightful"
	ReactionLove       ReactionKind = "love"
	ReactionCurious    ReactionKind = "curious"
	ReactionDanger     ReactionKind = "danger"
)

// ReactionKinds 全部合法类型
var ReactionKinds = []ReactionKind{ReactionHelpful, ReactionInsightful, ReactionLove, ReactionCurious, ReactionDanger}

// Valid 是否为已知类型
func (k ReactionKind) Valid() bool {
	for _, v := range ReactionKinds {
		if v == k {
			return true
		}
	}
	return false
}

// Concern 关注类反应，计数超过阈值会送审
func (k ReactionKind) Concern() bool {
	return k == ReactionCurious || k == ReactionDanger
}

// Reaction (actor, content, kind) 唯一
type Reaction struct {
	ID        string       `gorm:"primaryKey;type:varchar(36)"`
	ActorID   string       `gorm:"type:varchar(36);not null;index:idx_reaction_triple,unique"`
	ContentID string       `gorm:"type:varchar(36);not null;index:idx_reaction_triple,unique"`
	Kind      ReactionKind `gorm:"type:varchar(16);not null;index:idx_reaction_triple,unique"`
	CreatedAt time.Time
}

func (Reaction) TableName() string { return "reactions" }

// ReactionCount 每个内容每种反应的计数
type ReactionCount struct {
	ContentID string       `gorm:"primaryKey;type:varchar(36)"`
	Kind      ReactionKind `gorm:"primaryKey;type:varchar(16)"`
	Count     int          `gorm:"not null;default:0"`
	UpdatedAt time.Time
}

func (ReactionCount) TableName() string { return "reaction_counts" }

// Vote (actor, content) 唯一，Value 为 +1 或 -1
type Vote struct {
	ID        string `gorm:"primaryKey;type:varchar(36)"`
	ActorID   string `gorm:"type:varchar(36);not null;index:idx_vote_pair,unique"`
	ContentID string `gorm:"type:varchar(36);not null;index:idx_vote_pair,unique"`
	Value     int    `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Vote) TableName() string { return "votes" }
