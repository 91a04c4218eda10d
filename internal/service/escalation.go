package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/d60-Lab/trustcore/config"
	"github.com/d60-Lab/trustcore/internal/model"
	"github.com/d60-Lab/trustcore/internal/repository"
	"github.com/d60-Lab/trustcore/pkg/logger"
)

// EscalationOptions 扇出参数
type EscalationOptions struct {
	MaxRecipients int
	BatchSize     int
	ClaimLimit    int
	PollInterval  time.Duration
	ClaimLease    time.Duration // 超过该时长仍处于 processing 的升级视为遗留
	LinkBase      string
}

// EscalationOptionsFromConfig 未配置项使用默认值
func EscalationOptionsFromConfig(cfg config.EscalationConfig) EscalationOptions {
	return EscalationOptions{
		MaxRecipients: cfg.MaxRecipients,
		BatchSize:     cfg.BatchSize,
		ClaimLimit:    cfg.ClaimLimit,
		PollInterval:  cfg.PollInterval,
		ClaimLease:    cfg.ClaimLease,
		LinkBase:      cfg.LinkBase,
	}
}

// EscalationDispatcher 处理举手升级外发盒：领取 -> 分页找专家 -> 通知 -> 完成
type EscalationDispatcher struct {
	escalations repository.EscalationRepository
	users       repository.UserRepository
	notifier    Notifier
	opts        EscalationOptions
	clock       Clock
}

func NewEscalationDispatcher(escalations repository.EscalationRepository, users repository.UserRepository, notifier Notifier, opts EscalationOptions, clock Clock) *EscalationDispatcher {
	if opts.MaxRecipients <= 0 {
		opts.MaxRecipients = 25
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.ClaimLimit <= 0 {
		opts.ClaimLimit = 32
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.ClaimLease <= 0 {
		opts.ClaimLease = 15 * opts.PollInterval
	}
	if opts.LinkBase == "" {
		opts.LinkBase = "/contents"
	}
	if clock == nil {
		clock = SystemClock
	}
	return &EscalationDispatcher{escalations: escalations, users: users, notifier: notifier, opts: opts, clock: clock}
}

// Dispatch 处理单条升级；已被其他实例领取时直接返回 0
func (d *EscalationDispatcher) Dispatch(ctx context.Context, id string) (int64, error) {
	ok, err := d.escalations.Claim(ctx, id, d.clock.Now())
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	e, err := d.escalations.Get(ctx, id)
	if err != nil {
		d.release(ctx, id)
		return 0, err
	}
	return d.process(ctx, e)
}

// DrainPending 处理所有遗留的 pending 升级以及租约过期的 processing 升级，返回处理条数
func (d *EscalationDispatcher) DrainPending(ctx context.Context) (int, error) {
	total := 0
	for {
		now := d.clock.Now()
		batch, err := d.escalations.ClaimPending(ctx, d.opts.ClaimLimit, now, now.Add(-d.opts.ClaimLease))
		if err != nil {
			return total, err
		}
		if len(batch) == 0 {
			return total, nil
		}
		var lastErr error
		for i := range batch {
			if _, err := d.process(ctx, &batch[i]); err != nil {
				logger.Warn("escalation fanout failed", zap.String("escalation", batch[i].ID), zap.Error(err))
				lastErr = err
				continue
			}
			total++
		}
		// 失败的条目已放回 pending，留给下一次 drain
		if lastErr != nil {
			return total, lastErr
		}
	}
}

// Start 启动轮询 worker（trustd escalations drain --watch），返回停止函数
func (d *EscalationDispatcher) Start(workers int) func(context.Context) error {
	if workers <= 0 {
		workers = 1
	}
	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.loop(stop)
		}()
	}
	var once sync.Once
	return func(ctx context.Context) error {
		once.Do(func() { close(stop) })
		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (d *EscalationDispatcher) loop(stop <-chan struct{}) {
	ticker := time.NewTicker(d.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if n, err := d.DrainPending(context.Background()); err != nil {
				logger.Warn("escalation drain failed", zap.Error(err))
			} else if n > 0 {
				logger.Info("escalations drained", zap.Int("count", n))
			}
		}
	}
}

func (d *EscalationDispatcher) process(ctx context.Context, e *model.Escalation) (int64, error) {
	written, err := d.fanout(ctx, e)
	if err != nil {
		d.release(ctx, e.ID)
		return 0, err
	}
	if err := d.escalations.MarkDone(ctx, e.ID, written, d.clock.Now()); err != nil {
		return written, err
	}
	return written, nil
}

func (d *EscalationDispatcher) release(ctx context.Context, id string) {
	if err := d.escalations.Release(context.WithoutCancel(ctx), id); err != nil {
		logger.Error("escalation release failed", zap.String("escalation", id), zap.Error(err))
	}
}

// fanout 分页拉取专家，最多通知 MaxRecipients 人；SourceKey 保证重放不重复通知
func (d *EscalationDispatcher) fanout(ctx context.Context, e *model.Escalation) (int64, error) {
	now := d.clock.Now()
	link := fmt.Sprintf("%s/%s?signal=raise-hand", strings.TrimRight(d.opts.LinkBase, "/"), e.ContentID)
	notices := make([]Notice, 0, d.opts.MaxRecipients)
	for offset := 0; len(notices) < d.opts.MaxRecipients; offset += d.opts.BatchSize {
		experts, err := d.users.ListExperts(ctx, e.AuthorID, offset, d.opts.BatchSize)
		if err != nil {
			return 0, err
		}
		for _, u := range experts {
			if u.Suspended(now) {
				continue
			}
			notices = append(notices, Notice{
				UserID:    u.ID,
				Title:     "Community needs an expert",
				Message:   fmt.Sprintf("%d members raised their hand on a post and are asking for an expert answer.", e.Count),
				Severity:  SeverityUrgent,
				Link:      link,
				SourceKey: "escalation:" + e.ID,
			})
			if len(notices) == d.opts.MaxRecipients {
				break
			}
		}
		if len(experts) < d.opts.BatchSize {
			break
		}
	}
	if d.notifier == nil || len(notices) == 0 {
		return 0, nil
	}
	return d.notifier.Notify(ctx, notices...)
}
