package model

import "time"

// ActionKind 管理操作类型
type ActionKind string

const (
	ActionRestore         ActionKind = "restore"
	ActionPurge           ActionKind = "purge"
	ActionBan             ActionKind = "ban"
	ActionUnban           ActionKind = "unban"
	ActionBlacklistAdd    ActionKind = "blacklist-add"
	ActionBlacklistRemove ActionKind = "blacklist-remove"
	ActionGrantExpert     ActionKind = "grant-expert"
	ActionRevokeExpert    ActionKind = "revoke-expert"
	ActionResetReputation ActionKind = "reset-reputation"
	ActionClearFlags      ActionKind = "clear-flags"
)

// AdminAction 只追加的审计记录
type AdminAction struct {
	ID         string         `gorm:"primaryKey;type:varchar(36)"`
	AdminID    string         `gorm:"type:varchar(36);not null;index"`
	Action     ActionKind     `gorm:"type:varchar(32);not null;index"`
	TargetType string         `gorm:"type:varchar(32);not null;index:idx_audit_target"`
	TargetID   string         `gorm:"type:varchar(64);not null;index:idx_audit_target"`
	Reason     string         `gorm:"type:text"`
	Metadata   map[string]any `gorm:"serializer:json;type:text"`
	CreatedAt  time.Time      `gorm:"index"`
}

func (AdminAction) TableName() string { return "admin_actions" }
