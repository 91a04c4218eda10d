package service

import (
	"context"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/d60-Lab/trustcore/internal/model"
	"github.com/d60-Lab/trustcore/internal/repository"
	"github.com/d60-Lab/trustcore/pkg/logger"
	"github.com/d60-Lab/trustcore/pkg/metrics"
)

// AuditLogger writes admin actions best-effort: a failed write never fails
// the primary action, it is reported to logs, sentry and metrics instead.
type AuditLogger struct {
	repo  repository.AuditRepository
	clock Clock
}

func NewAuditLogger(repo repository.AuditRepository, clock Clock) *AuditLogger {
	if clock == nil {
		clock = SystemClock
	}
	return &AuditLogger{repo: repo, clock: clock}
}

// AuditEntry describes one admin action.
type AuditEntry struct {
	AdminID    string
	Action     model.ActionKind
	TargetType string
	TargetID   string
	Reason     string
	Metadata   map[string]any
}

// Record appends the entry and returns whether the write succeeded.
func (a *AuditLogger) Record(ctx context.Context, e AuditEntry) bool {
	rec := &model.AdminAction{
		ID:         uuid.New().String(),
		AdminID:    e.AdminID,
		Action:     e.Action,
		TargetType: e.TargetType,
		TargetID:   e.TargetID,
		Reason:     e.Reason,
		Metadata:   e.Metadata,
		CreatedAt:  a.clock.Now(),
	}
	// detached from request cancellation: the primary change has already happened
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := a.repo.Create(wctx, rec); err != nil {
		metrics.AuditWriteFailures.Inc()
		logger.Error("audit write failed",
			zap.String("admin", e.AdminID),
			zap.String("action", string(e.Action)),
			zap.String("target_type", e.TargetType),
			zap.String("target", e.TargetID),
			zap.Error(err))
		sentry.WithScope(func(scope *sentry.Scope) {
			scope.SetTag("audit_action", string(e.Action))
			scope.SetExtra("target", e.TargetType+"/"+e.TargetID)
			sentry.CaptureException(err)
		})
		return false
	}
	return true
}

// List returns the most recent audit records.
func (a *AuditLogger) List(ctx context.Context, page, pageSize int) ([]*model.AdminAction, error) {
	offset, limit := pageBounds(page, pageSize)
	return a.repo.List(ctx, offset, limit)
}

func pageBounds(page, pageSize int) (offset, limit int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 200 {
		pageSize = 200
	}
	return (page - 1) * pageSize, pageSize
}
