package service

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"
	"gorm.io/gorm"

	"github.com/d60-Lab/trustcore/config"
	"github.com/d60-Lab/trustcore/internal/model"
	"github.com/d60-Lab/trustcore/internal/repository"
	"github.com/d60-Lab/trustcore/internal/semantic"
	"github.com/d60-Lab/trustcore/pkg/logger"
	"github.com/d60-Lab/trustcore/pkg/metrics"
)

// GuardLimits 私信反滥用阈值
type GuardLimits struct {
	LowReputation         int
	NewConversationCap    int
	NewConversationWindow time.Duration
	DuplicateCap          int
	DuplicateWindow       time.Duration
	RestrictedInboundMin  int
}

// DefaultGuardLimits 默认阈值
func DefaultGuardLimits() GuardLimits {
	return GuardLimits{
		LowReputation:         10,
		NewConversationCap:    3,
		NewConversationWindow: time.Hour,
		DuplicateCap:          5,
		DuplicateWindow:       2 * time.Minute,
		RestrictedInboundMin:  50,
	}
}

// GuardLimitsFromConfig 从配置构造阈值，未配置项使用默认值
func GuardLimitsFromConfig(cfg config.GuardConfig) GuardLimits {
	l := DefaultGuardLimits()
	if cfg.LowReputation > 0 {
		l.LowReputation = cfg.LowReputation
	}
	if cfg.NewConversationCap > 0 {
		l.NewConversationCap = cfg.NewConversationCap
	}
	if cfg.NewConversationWindow > 0 {
		l.NewConversationWindow = cfg.NewConversationWindow
	}
	if cfg.DuplicateCap > 0 {
		l.DuplicateCap = cfg.DuplicateCap
	}
	if cfg.DuplicateWindow > 0 {
		l.DuplicateWindow = cfg.DuplicateWindow
	}
	if cfg.RestrictedInboundMin > 0 {
		l.RestrictedInboundMin = cfg.RestrictedInboundMin
	}
	return l
}

// SendMessageRequest 私信发送请求；Honeypot 为表单隐藏字段
type SendMessageRequest struct {
	SenderID    string
	RecipientID string
	Content     string
	Honeypot    string
}

// MessageService 私信服务，发送前依次执行反滥用检查和内容审核
type MessageService interface {
	SendMessage(ctx context.Context, req SendMessageRequest) (*model.Message, error)
	MarkRead(ctx context.Context, readerID, messageID string) error
}

type messageService struct {
	db         *gorm.DB
	users      repository.UserRepository
	messages   repository.MessageRepository
	convs      repository.ConversationRepository
	classifier ContentClassifier
	limits     GuardLimits
	clock      Clock
}

func NewMessageService(db *gorm.DB, users repository.UserRepository, messages repository.MessageRepository, convs repository.ConversationRepository, classifier ContentClassifier, limits GuardLimits, clock Clock) MessageService {
	if clock == nil {
		clock = SystemClock
	}
	return &messageService{db: db, users: users, messages: messages, convs: convs, classifier: classifier, limits: limits, clock: clock}
}

// ContentFingerprint 相同内容的摘要，用于重复群发检测
func ContentFingerprint(content string) string {
	sum := blake2b.Sum256([]byte(strings.TrimSpace(content)))
	return hex.EncodeToString(sum[:])
}

// guardRepos 一次检查使用的仓储，事务内外各一份
type guardRepos struct {
	users    repository.UserRepository
	messages repository.MessageRepository
	convs    repository.ConversationRepository
}

func (s *messageService) SendMessage(ctx context.Context, req SendMessageRequest) (*model.Message, error) {
	if req.Honeypot != "" {
		return nil, s.reject(req, RuleHoneypot, "request rejected")
	}
	if req.SenderID == "" {
		return nil, ErrUnauthorized
	}
	if req.SenderID == req.RecipientID {
		return nil, fmt.Errorf("%w: cannot message self", ErrInvalidArgument)
	}
	if strings.TrimSpace(req.Content) == "" {
		return nil, fmt.Errorf("%w: empty message", ErrInvalidArgument)
	}

	now := s.clock.Now()
	hash := ContentFingerprint(req.Content)

	// 先做一遍无锁检查，被拦截的请求不调用外部审核
	if _, _, err := s.screen(ctx, guardRepos{s.users, s.messages, s.convs}, req, hash, now, false); err != nil {
		return nil, err
	}
	// 外部审核在事务之外，避免持锁等待网络
	if err := s.classifier.Check(ctx, req.Content, semantic.ProfileGeneral); err != nil {
		var rej *RejectError
		if errors.As(err, &rej) {
			metrics.GuardRejections.WithLabelValues(rej.Rule).Inc()
		}
		logger.Info("message content rejected",
			zap.String("sender", req.SenderID),
			zap.String("recipient", req.RecipientID),
			zap.Error(err))
		return nil, err
	}

	var msg *model.Message
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repos := guardRepos{s.users.WithTx(tx), s.messages.WithTx(tx), s.convs.WithTx(tx)}
		// 锁定发送方后重新检查：审核期间的并发发送可能已改变窗口计数
		sender, recipient, err := s.screen(ctx, repos, req, hash, now, true)
		if err != nil {
			return err
		}
		msg = &model.Message{
			ID:          uuid.New().String(),
			SenderID:    sender.ID,
			RecipientID: recipient.ID,
			Content:     req.Content,
			ContentHash: hash,
			CreatedAt:   now,
		}
		if err := repos.messages.Create(ctx, msg); err != nil {
			return err
		}
		return repos.convs.Create(ctx, sender.ID, recipient.ID, now)
	})
	if err != nil {
		return nil, err
	}
	metrics.MessagesSent.Inc()
	return msg, nil
}

// screen 按顺序执行反滥用检查；lock 为真时锁定发送方行，同一发送方的并发发送串行执行
func (s *messageService) screen(ctx context.Context, r guardRepos, req SendMessageRequest, hash string, now time.Time, lock bool) (*model.User, *model.User, error) {
	var sender *model.User
	var err error
	if lock {
		sender, err = r.users.GetForUpdate(ctx, req.SenderID)
	} else {
		sender, err = r.users.Get(ctx, req.SenderID)
	}
	if err != nil {
		return nil, nil, notFound(err, "sender")
	}
	if sender.Deactivated {
		return nil, nil, &RejectError{Kind: ErrNotFound, Reason: "sender not found"}
	}
	recipient, err := r.users.Get(ctx, req.RecipientID)
	if err != nil {
		return nil, nil, notFound(err, "recipient")
	}
	if recipient.Deactivated {
		return nil, nil, &RejectError{Kind: ErrNotFound, Reason: "recipient not found"}
	}

	if sender.Suspended(now) {
		return nil, nil, s.reject(req, RuleSuspended, "messaging is suspended for this account")
	}

	known, err := r.convs.Exists(ctx, sender.ID, recipient.ID)
	if err != nil {
		return nil, nil, err
	}
	if !known && sender.Reputation < s.limits.LowReputation && !sender.IsExpert {
		// 统计窗口内全部不同接收方（不只是新会话），偏保守
		n, err := r.messages.CountDistinctRecipientsSince(ctx, sender.ID, now.Add(-s.limits.NewConversationWindow))
		if err != nil {
			return nil, nil, err
		}
		if n >= int64(s.limits.NewConversationCap) {
			return nil, nil, s.reject(req, RuleNewConversation, "too many new conversations, try again later")
		}
	}

	dup, err := r.messages.CountIdenticalSince(ctx, sender.ID, hash, now.Add(-s.limits.DuplicateWindow))
	if err != nil {
		return nil, nil, err
	}
	if dup+1 >= int64(s.limits.DuplicateCap) {
		return nil, nil, s.reject(req, RuleDuplicate, "identical message sent too many times")
	}

	if recipient.ExpertsOnlyInbox && !sender.IsExpert && sender.Reputation < s.limits.RestrictedInboundMin {
		return nil, nil, s.reject(req, RuleRecipientPrefs, "recipient only accepts messages from experts")
	}
	return sender, recipient, nil
}

func (s *messageService) reject(req SendMessageRequest, rule, reason string) error {
	metrics.GuardRejections.WithLabelValues(rule).Inc()
	logger.Info("message rejected",
		zap.String("rule", rule),
		zap.String("sender", req.SenderID),
		zap.String("recipient", req.RecipientID))
	return rateLimited(rule, reason)
}

func (s *messageService) MarkRead(ctx context.Context, readerID, messageID string) error {
	if readerID == "" {
		return ErrUnauthorized
	}
	msg, err := s.messages.Get(ctx, messageID)
	if err != nil {
		return notFound(err, "message")
	}
	if msg.RecipientID != readerID {
		return &RejectError{Kind: ErrNotFound, Reason: "message not found"}
	}
	if msg.Read {
		return nil
	}
	_, err = s.messages.MarkRead(ctx, messageID, readerID, s.clock.Now())
	return err
}
