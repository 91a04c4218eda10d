package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/d60-Lab/trustcore/internal/model"
	"github.com/d60-Lab/trustcore/internal/repository"
	"github.com/d60-Lab/trustcore/internal/semantic"
	"github.com/d60-Lab/trustcore/pkg/logger"
)

// PublishRequest 发布内容；评论和评价必须有父内容
type PublishRequest struct {
	AuthorID string
	Kind     model.ContentKind
	Body     string
	ParentID *string
	Profile  semantic.Profile
}

// RecheckResult 事后复审结果
type RecheckResult struct {
	Verdict Verdict           `json:"verdict"`
	Entry   *model.QueueEntry `json:"entry,omitempty"`
	Queued  bool              `json:"queued"`
}

// Publisher 审核通过才落库；复审不通过只标记送审，不删除
type Publisher struct {
	db         *gorm.DB
	users      repository.UserRepository
	contents   repository.ContentRepository
	queue      repository.QueueRepository
	classifier ContentClassifier
	reputation ReputationEngine
	clock      Clock
}

func NewPublisher(db *gorm.DB, users repository.UserRepository, contents repository.ContentRepository, queue repository.QueueRepository, classifier ContentClassifier, reputation ReputationEngine, clock Clock) *Publisher {
	if clock == nil {
		clock = SystemClock
	}
	return &Publisher{db: db, users: users, contents: contents, queue: queue, classifier: classifier, reputation: reputation, clock: clock}
}

// Publish 审核并写入内容，随后尽力重算作者信誉
func (p *Publisher) Publish(ctx context.Context, req PublishRequest) (*model.Content, error) {
	if req.AuthorID == "" {
		return nil, ErrUnauthorized
	}
	if !req.Kind.Valid() {
		return nil, fmt.Errorf("%w: unknown content kind %q", ErrInvalidArgument, req.Kind)
	}
	if strings.TrimSpace(req.Body) == "" {
		return nil, fmt.Errorf("%w: empty body", ErrInvalidArgument)
	}
	if req.Profile == "" {
		req.Profile = semantic.ProfileGeneral
	}
	if !req.Profile.Valid() {
		return nil, fmt.Errorf("%w: unknown profile %q", ErrInvalidArgument, req.Profile)
	}
	author, err := p.users.Get(ctx, req.AuthorID)
	if err != nil {
		return nil, notFound(err, "author")
	}
	if author.Deactivated {
		return nil, &RejectError{Kind: ErrNotFound, Reason: "author not found"}
	}
	if req.Kind != model.ContentDiscussion {
		if req.ParentID == nil || *req.ParentID == "" {
			return nil, fmt.Errorf("%w: %s requires a parent", ErrInvalidArgument, req.Kind)
		}
		if _, err := p.contents.Get(ctx, *req.ParentID); err != nil {
			return nil, notFound(err, "parent content")
		}
	}

	if err := p.classifier.Check(ctx, req.Body, req.Profile); err != nil {
		return nil, err
	}

	now := p.clock.Now()
	c := &model.Content{
		ID:        uuid.New().String(),
		AuthorID:  author.ID,
		Kind:      req.Kind,
		ParentID:  req.ParentID,
		Body:      req.Body,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := p.contents.Create(ctx, c); err != nil {
		return nil, err
	}

	if p.reputation != nil {
		if _, err := p.reputation.Recompute(context.WithoutCancel(ctx), author.ID); err != nil {
			logger.Warn("recompute after publish failed", zap.String("actor", author.ID), zap.Error(err))
		}
	}
	return c, nil
}

// Recheck 复审已发布内容；不安全时标记并送审
func (p *Publisher) Recheck(ctx context.Context, contentID string, profile semantic.Profile) (*RecheckResult, error) {
	if profile == "" {
		profile = semantic.ProfileGeneral
	}
	c, err := p.contents.Get(ctx, contentID)
	if err != nil {
		return nil, notFound(err, "content")
	}
	// 外部调用放在事务之外
	v := p.classifier.Classify(ctx, c.Body, profile)
	res := &RecheckResult{Verdict: v}
	if v.Safe {
		return res, nil
	}

	now := p.clock.Now()
	err = p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		contents := p.contents.WithTx(tx)
		locked, err := contents.GetForUpdate(ctx, contentID)
		if err != nil {
			return notFound(err, "content")
		}
		res.Entry, res.Queued, err = flagAndEnqueue(ctx, contents, p.queue.WithTx(tx), locked, model.SourceClassifier, v.Reason, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}
