package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/d60-Lab/trustcore/internal/model"
	"github.com/d60-Lab/trustcore/internal/repository"
	"github.com/d60-Lab/trustcore/pkg/logger"
)

type adminGate struct {
	users repository.UserRepository
}

// require 校验操作者是管理员；不存在或无权限都视为未授权
func (g *adminGate) require(ctx context.Context, adminID string) (*model.User, error) {
	if adminID == "" {
		return nil, ErrUnauthorized
	}
	u, err := g.users.Get(ctx, adminID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}
	if !u.IsAdmin || u.Deactivated {
		return nil, &RejectError{Kind: ErrUnauthorized, Reason: "admin privileges required"}
	}
	return u, nil
}

// KeywordInvalidator 黑名单变更后让缓存失效
type KeywordInvalidator interface {
	Invalidate(ctx context.Context) error
}

// AdminService 管理操作，每个操作都写审计记录（尽力而为）
type AdminService interface {
	BanMessaging(ctx context.Context, adminID, actorID, reason string, until *time.Time) error
	UnbanMessaging(ctx context.Context, adminID, actorID, reason string) error
	AddKeyword(ctx context.Context, adminID, keyword, reason string) (*model.BlacklistKeyword, error)
	RemoveKeyword(ctx context.Context, adminID, keywordID, reason string) error
	GrantExpert(ctx context.Context, adminID, actorID, reason string) error
	RevokeExpert(ctx context.Context, adminID, actorID, reason string) error
	ResetReputation(ctx context.Context, adminID, actorID, reason string) error
	ClearFlags(ctx context.Context, adminID, contentID, reason string) error
	ListAuditLog(ctx context.Context, adminID string, page, pageSize int) ([]*model.AdminAction, error)
}

type adminService struct {
	gate       *adminGate
	users      repository.UserRepository
	contents   repository.ContentRepository
	blacklist  repository.BlacklistRepository
	keywords   KeywordInvalidator
	reputation ReputationEngine
	audit      *AuditLogger
	clock      Clock
}

func NewAdminService(users repository.UserRepository, contents repository.ContentRepository, blacklist repository.BlacklistRepository, keywords KeywordInvalidator, reputation ReputationEngine, audit *AuditLogger, clock Clock) AdminService {
	if clock == nil {
		clock = SystemClock
	}
	return &adminService{
		gate:       &adminGate{users: users},
		users:      users,
		contents:   contents,
		blacklist:  blacklist,
		keywords:   keywords,
		reputation: reputation,
		audit:      audit,
		clock:      clock,
	}
}

func (s *adminService) updateActor(ctx context.Context, actorID string, fields map[string]any) error {
	fields["updated_at"] = s.clock.Now()
	if err := s.users.Update(ctx, actorID, fields); err != nil {
		return notFound(err, "actor")
	}
	return nil
}

func (s *adminService) BanMessaging(ctx context.Context, adminID, actorID, reason string, until *time.Time) error {
	if _, err := s.gate.require(ctx, adminID); err != nil {
		return err
	}
	meta := map[string]any{"permanent": until == nil}
	fields := map[string]any{"messaging_banned": until == nil, "suspended_until": nil}
	if until != nil {
		u := until.UTC()
		if !u.After(s.clock.Now()) {
			return fmt.Errorf("%w: suspension must end in the future", ErrInvalidArgument)
		}
		fields["suspended_until"] = u
		meta["until"] = u.Format(time.RFC3339)
	}
	if err := s.updateActor(ctx, actorID, fields); err != nil {
		return err
	}
	s.audit.Record(ctx, AuditEntry{AdminID: adminID, Action: model.ActionBan, TargetType: "actor", TargetID: actorID, Reason: reason, Metadata: meta})
	return nil
}

func (s *adminService) UnbanMessaging(ctx context.Context, adminID, actorID, reason string) error {
	if _, err := s.gate.require(ctx, adminID); err != nil {
		return err
	}
	if err := s.updateActor(ctx, actorID, map[string]any{"messaging_banned": false, "suspended_until": nil}); err != nil {
		return err
	}
	s.audit.Record(ctx, AuditEntry{AdminID: adminID, Action: model.ActionUnban, TargetType: "actor", TargetID: actorID, Reason: reason})
	return nil
}

func (s *adminService) AddKeyword(ctx context.Context, adminID, keyword, reason string) (*model.BlacklistKeyword, error) {
	if _, err := s.gate.require(ctx, adminID); err != nil {
		return nil, err
	}
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil, fmt.Errorf("%w: keyword is empty", ErrInvalidArgument)
	}
	now := s.clock.Now()
	k := &model.BlacklistKeyword{
		ID:        uuid.New().String(),
		Keyword:   strings.ToLower(keyword),
		Reason:    reason,
		CreatedBy: adminID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.blacklist.Upsert(ctx, k); err != nil {
		return nil, err
	}
	s.invalidateKeywords(ctx)
	s.audit.Record(ctx, AuditEntry{AdminID: adminID, Action: model.ActionBlacklistAdd, TargetType: "keyword", TargetID: k.ID, Reason: reason, Metadata: map[string]any{"keyword": k.Keyword}})
	return k, nil
}

func (s *adminService) RemoveKeyword(ctx context.Context, adminID, keywordID, reason string) error {
	if _, err := s.gate.require(ctx, adminID); err != nil {
		return err
	}
	k, err := s.blacklist.Get(ctx, keywordID)
	if err != nil {
		return notFound(err, "keyword")
	}
	if err := s.blacklist.Deactivate(ctx, keywordID); err != nil {
		return notFound(err, "keyword")
	}
	s.invalidateKeywords(ctx)
	s.audit.Record(ctx, AuditEntry{AdminID: adminID, Action: model.ActionBlacklistRemove, TargetType: "keyword", TargetID: keywordID, Reason: reason, Metadata: map[string]any{"keyword": k.Keyword}})
	return nil
}

func (s *adminService) invalidateKeywords(ctx context.Context) {
	if s.keywords == nil {
		return
	}
	// 失败时依赖 TTL 过期
	if err := s.keywords.Invalidate(ctx); err != nil {
		logger.Warn("keyword cache invalidate failed", zap.Error(err))
	}
}

func (s *adminService) GrantExpert(ctx context.Context, adminID, actorID, reason string) error {
	return s.setExpert(ctx, adminID, actorID, reason, true)
}

func (s *adminService) RevokeExpert(ctx context.Context, adminID, actorID, reason string) error {
	return s.setExpert(ctx, adminID, actorID, reason, false)
}

func (s *adminService) setExpert(ctx context.Context, adminID, actorID, reason string, expert bool) error {
	if _, err := s.gate.require(ctx, adminID); err != nil {
		return err
	}
	if err := s.updateActor(ctx, actorID, map[string]any{"is_expert": expert}); err != nil {
		return err
	}
	action := model.ActionGrantExpert
	if !expert {
		action = model.ActionRevokeExpert
	}
	s.audit.Record(ctx, AuditEntry{AdminID: adminID, Action: action, TargetType: "actor", TargetID: actorID, Reason: reason})
	// 专家加分随身份变化，立即重算
	if s.reputation != nil {
		if _, err := s.reputation.Recompute(ctx, actorID); err != nil {
			logger.Warn("recompute after expert change failed", zap.String("actor", actorID), zap.Error(err))
		}
	}
	return nil
}

func (s *adminService) ResetReputation(ctx context.Context, adminID, actorID, reason string) error {
	if _, err := s.gate.require(ctx, adminID); err != nil {
		return err
	}
	if err := s.updateActor(ctx, actorID, map[string]any{
		"reputation": 0,
		"tier":       TierFor(0).Level,
		"version":    gorm.Expr("version + 1"),
	}); err != nil {
		return err
	}
	s.audit.Record(ctx, AuditEntry{AdminID: adminID, Action: model.ActionResetReputation, TargetType: "actor", TargetID: actorID, Reason: reason})
	return nil
}

func (s *adminService) ClearFlags(ctx context.Context, adminID, contentID, reason string) error {
	if _, err := s.gate.require(ctx, adminID); err != nil {
		return err
	}
	err := s.contents.Update(ctx, contentID, map[string]any{
		"flagged":    false,
		"flag_count": 0,
		"updated_at": s.clock.Now(),
	})
	if err != nil {
		return notFound(err, "content")
	}
	s.audit.Record(ctx, AuditEntry{AdminID: adminID, Action: model.ActionClearFlags, TargetType: "content", TargetID: contentID, Reason: reason})
	return nil
}

func (s *adminService) ListAuditLog(ctx context.Context, adminID string, page, pageSize int) ([]*model.AdminAction, error) {
	if _, err := s.gate.require(ctx, adminID); err != nil {
		return nil, err
	}
	return s.audit.List(ctx, page, pageSize)
}
