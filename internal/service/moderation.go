package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/d60-Lab/trustcore/internal/model"
	"github.com/d60-Lab/trustcore/internal/repository"
	"github.com/d60-Lab/trustcore/pkg/metrics"
)

// Decision 审核结论
type Decision string

const (
	DecisionRestore Decision = "restore"
	DecisionPurge   Decision = "purge"
)

// Valid 是否为合法结论
func (d Decision) Valid() bool { return d == DecisionRestore || d == DecisionPurge }

// ModerationQueue 审核队列：pending -> approved | rejected，终态不可重开
type ModerationQueue interface {
	// Enqueue 标记内容并送审；已有未决条目时返回该条目且 created=false
	Enqueue(ctx context.Context, contentID string, source model.QueueSource, reason string) (entry *model.QueueEntry, created bool, err error)
	Resolve(ctx context.Context, adminID, entryID string, decision Decision, reason string) (*model.QueueEntry, error)
	Get(ctx context.Context, entryID string) (*model.QueueEntry, error)
	ListPending(ctx context.Context, page, pageSize int) ([]*model.QueueEntry, error)
}

type moderationQueue struct {
	db       *gorm.DB
	queue    repository.QueueRepository
	contents repository.ContentRepository
	admins   *adminGate
	audit    *AuditLogger
	clock    Clock
}

func NewModerationQueue(db *gorm.DB, queue repository.QueueRepository, contents repository.ContentRepository, users repository.UserRepository, audit *AuditLogger, clock Clock) ModerationQueue {
	if clock == nil {
		clock = SystemClock
	}
	return &moderationQueue{
		db:       db,
		queue:    queue,
		contents: contents,
		admins:   &adminGate{users: users},
		audit:    audit,
		clock:    clock,
	}
}

func (m *moderationQueue) Enqueue(ctx context.Context, contentID string, source model.QueueSource, reason string) (*model.QueueEntry, bool, error) {
	var (
		entry   *model.QueueEntry
		created bool
	)
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		contents := m.contents.WithTx(tx)
		c, err := contents.GetForUpdate(ctx, contentID)
		if err != nil {
			return notFound(err, "content")
		}
		entry, created, err = flagAndEnqueue(ctx, contents, m.queue.WithTx(tx), c, source, reason, m.clock.Now())
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return entry, created, nil
}

// flagAndEnqueue 调用方须已锁定内容行。只有新建条目时才累加 flag 计数
func flagAndEnqueue(ctx context.Context, contents repository.ContentRepository, queue repository.QueueRepository, c *model.Content, source model.QueueSource, reason string, now time.Time) (*model.QueueEntry, bool, error) {
	entry := &model.QueueEntry{
		ID:                uuid.New().String(),
		ContentID:         c.ID,
		Source:            source,
		Reason:            reason,
		SnapshotAuthorID:  c.AuthorID,
		SnapshotKind:      c.Kind,
		SnapshotParentID:  c.ParentID,
		SnapshotBody:      c.Body,
		SnapshotFlagCount: c.FlagCount + 1,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	inserted, err := queue.InsertIfNoOpen(ctx, entry)
	if err != nil {
		return nil, false, err
	}
	if !inserted {
		open, err := queue.GetOpenByContent(ctx, c.ID)
		if err != nil {
			return nil, false, err
		}
		return open, false, nil
	}
	c.Flagged = true
	c.FlagCount++
	if err := contents.Update(ctx, c.ID, map[string]any{
		"flagged":    true,
		"flag_count": c.FlagCount,
		"updated_at": now,
	}); err != nil {
		return nil, false, err
	}
	metrics.QueueTransitions.WithLabelValues(string(model.QueuePending)).Inc()
	return entry, true, nil
}

func (m *moderationQueue) Resolve(ctx context.Context, adminID, entryID string, decision Decision, reason string) (*model.QueueEntry, error) {
	if !decision.Valid() {
		return nil, fmt.Errorf("%w: decision must be restore or purge", ErrInvalidArgument)
	}
	if _, err := m.admins.require(ctx, adminID); err != nil {
		return nil, err
	}
	entry, err := retryOnConflict(ctx, func() (*model.QueueEntry, error) {
		return m.resolveOnce(ctx, adminID, entryID, decision, reason)
	})
	if err != nil {
		return nil, err
	}
	metrics.QueueTransitions.WithLabelValues(string(entry.Status)).Inc()

	action := model.ActionRestore
	if decision == DecisionPurge {
		action = model.ActionPurge
	}
	m.audit.Record(ctx, AuditEntry{
		AdminID:    adminID,
		Action:     action,
		TargetType: "content",
		TargetID:   entry.ContentID,
		Reason:     reason,
		Metadata:   map[string]any{"queue_entry_id": entry.ID, "source": string(entry.Source)},
	})
	return entry, nil
}

func (m *moderationQueue) resolveOnce(ctx context.Context, adminID, entryID string, decision Decision, reason string) (*model.QueueEntry, error) {
	status := model.QueueApproved
	if decision == DecisionPurge {
		status = model.QueueRejected
	}
	now := m.clock.Now()
	var entry *model.QueueEntry
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		queue := m.queue.WithTx(tx)
		contents := m.contents.WithTx(tx)

		e, err := queue.Get(ctx, entryID)
		if err != nil {
			return notFound(err, "queue entry")
		}
		if e.Status != model.QueuePending {
			return &RejectError{Kind: ErrInvalidState, Reason: "queue entry already " + string(e.Status)}
		}
		ok, err := queue.Resolve(ctx, e.ID, status, adminID, reason, now)
		if err != nil {
			return err
		}
		if !ok {
			// 读到 pending 之后被并发处理
			return ErrConflict
		}
		if decision == DecisionRestore {
			err = restoreContent(ctx, contents, e, now)
		} else {
			err = contents.SoftDelete(ctx, e.ContentID)
		}
		if err != nil {
			return err
		}
		e.Status = status
		e.OpenKey = nil
		e.ResolvedBy = &adminID
		e.ResolutionReason = reason
		e.ResolvedAt = &now
		entry = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// restoreContent 恢复可见并清除标记，正文回到审核时的快照；记录已被物理删除时按快照重建
func restoreContent(ctx context.Context, contents repository.ContentRepository, e *model.QueueEntry, now time.Time) error {
	live, err := contents.GetUnscoped(ctx, e.ContentID)
	switch {
	case repository.IsNotFound(err):
		err = contents.Create(ctx, &model.Content{
			ID:        e.ContentID,
			AuthorID:  e.SnapshotAuthorID,
			Kind:      e.SnapshotKind,
			ParentID:  e.SnapshotParentID,
			Body:      e.SnapshotBody,
			CreatedAt: e.CreatedAt,
			UpdatedAt: now,
		})
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrConflict
		}
		return err
	case err != nil:
		return err
	}
	if err := contents.Undelete(ctx, e.ContentID); err != nil {
		return err
	}
	fields := map[string]any{
		"flagged":    false,
		"flag_count": 0,
		"updated_at": now,
	}
	// 标记后被编辑的内容未经审核，批准的是快照版本
	if e.SnapshotBody != "" && live.Body != e.SnapshotBody {
		fields["body"] = e.SnapshotBody
	}
	return contents.Update(ctx, e.ContentID, fields)
}

func (m *moderationQueue) Get(ctx context.Context, entryID string) (*model.QueueEntry, error) {
	e, err := m.queue.Get(ctx, entryID)
	if err != nil {
		return nil, notFound(err, "queue entry")
	}
	return e, nil
}

func (m *moderationQueue) ListPending(ctx context.Context, page, pageSize int) ([]*model.QueueEntry, error) {
	offset, limit := pageBounds(page, pageSize)
	return m.queue.ListByStatus(ctx, model.QueuePending, offset, limit)
}
