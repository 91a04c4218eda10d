package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/d60-Lab/trustcore/internal/model"
	"github.com/d60-Lab/trustcore/internal/repository"
	"github.com/d60-Lab/trustcore/pkg/logger"
	"github.com/d60-Lab/trustcore/pkg/metrics"
)

// 通知级别
const (
	SeverityInfo   = "info"
	SeverityUrgent = "urgent"
)

// Notice 一条待投递的通知；SourceKey 相同的通知对同一用户只落一次
type Notice struct {
	UserID    string
	Title     string
	Message   string
	Severity  string
	Link      string
	SourceKey string
}

// Notifier 通知投递出口，展示与推送不在本服务内
type Notifier interface {
	Notify(ctx context.Context, notices ...Notice) (int64, error)
}

// StoreNotifier 写入 notifications 表
type StoreNotifier struct {
	repo  repository.NotificationRepository
	clock Clock
}

func NewStoreNotifier(repo repository.NotificationRepository, clock Clock) *StoreNotifier {
	if clock == nil {
		clock = SystemClock
	}
	return &StoreNotifier{repo: repo, clock: clock}
}

func (n *StoreNotifier) Notify(ctx context.Context, notices ...Notice) (int64, error) {
	if len(notices) == 0 {
		return 0, nil
	}
	now := n.clock.Now()
	rows := make([]model.Notification, 0, len(notices))
	for _, nt := range notices {
		key := nt.SourceKey
		if key == "" {
			key = uuid.New().String()
		}
		rows = append(rows, model.Notification{
			ID:        uuid.New().String(),
			UserID:    nt.UserID,
			SourceKey: key,
			Title:     nt.Title,
			Message:   nt.Message,
			Severity:  nt.Severity,
			Link:      nt.Link,
			CreatedAt: now,
		})
	}
	written, err := n.repo.CreateBatch(ctx, rows)
	if err != nil {
		metrics.NotificationsSent.WithLabelValues("failed").Add(float64(len(rows)))
		return 0, err
	}
	metrics.NotificationsSent.WithLabelValues("stored").Add(float64(written))
	if dup := int64(len(rows)) - written; dup > 0 {
		metrics.NotificationsSent.WithLabelValues("duplicate").Add(float64(dup))
	}
	return written, nil
}

type notifyJob struct {
	notices []Notice
	enqAt   time.Time
}

// AsyncNotifier 本地异步投递：有界队列 + 若干 worker，队列满时丢弃并告警
type AsyncNotifier struct {
	next      Notifier
	ch        chan notifyJob
	metricsCh chan time.Duration
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

func NewAsyncNotifier(next Notifier, queueSize int) *AsyncNotifier {
	if queueSize <= 0 {
		queueSize = 1024
	}
	return &AsyncNotifier{
		next:      next,
		ch:        make(chan notifyJob, queueSize),
		metricsCh: make(chan time.Duration, 4096),
		stopCh:    make(chan struct{}),
	}
}

// Start 启动 worker，返回停止函数；停止时尽量排空队列
func (a *AsyncNotifier) Start(workers int) func(context.Context) error {
	if workers <= 0 {
		workers = 2
	}
	for i := 0; i < workers; i++ {
		a.wg.Add(1)
		go a.loop()
	}
	var once sync.Once
	return func(ctx context.Context) error {
		once.Do(func() { close(a.stopCh) })
		done := make(chan struct{})
		go func() {
			a.wg.Wait()
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

func (a *AsyncNotifier) loop() {
	defer a.wg.Done()
	for {
		select {
		case job := <-a.ch:
			a.deliver(job)
		case <-a.stopCh:
			for {
				select {
				case job := <-a.ch:
					a.deliver(job)
				default:
					return
				}
			}
		}
	}
}

func (a *AsyncNotifier) deliver(job notifyJob) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := a.next.Notify(ctx, job.notices...); err != nil {
		logger.Warn("notification delivery failed", zap.Int("count", len(job.notices)), zap.Error(err))
	}
	select {
	case a.metricsCh <- time.Since(job.enqAt):
	default:
	}
}

// Notify 入队即返回，返回值为入队条数
func (a *AsyncNotifier) Notify(_ context.Context, notices ...Notice) (int64, error) {
	if len(notices) == 0 {
		return 0, nil
	}
	select {
	case a.ch <- notifyJob{notices: notices, enqAt: time.Now()}:
		return int64(len(notices)), nil
	default:
		metrics.NotificationsSent.WithLabelValues("dropped").Add(float64(len(notices)))
		logger.Warn("notifier queue full, drop", zap.Int("count", len(notices)), zap.String("user", notices[0].UserID))
		return 0, nil
	}
}

// Metrics 入队到投递完成的耗时
func (a *AsyncNotifier) Metrics() <-chan time.Duration { return a.metricsCh }

// QueueLen 当前队列长度（采样值）
func (a *AsyncNotifier) QueueLen() int { return len(a.ch) }
