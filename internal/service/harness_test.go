package service

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/d60-Lab/trustcore/internal/cache"
	"github.com/d60-Lab/trustcore/internal/model"
	"github.com/d60-Lab/trustcore/internal/repository"
	"github.com/d60-Lab/trustcore/internal/semantic"
	"github.com/d60-Lab/trustcore/internal/testutil"
)

// stubSemantic 固定返回预设结果
type stubSemantic struct {
	res   semantic.Result
	err   error
	calls int
}

func (s *stubSemantic) Classify(_ context.Context, _ string, _ semantic.Profile) (semantic.Result, error) {
	s.calls++
	return s.res, s.err
}

type harness struct {
	db    *gorm.DB
	clock *testutil.Clock
	rdb   *redis.Client
	mr    *miniredis.Miniredis

	users         repository.UserRepository
	contents      repository.ContentRepository
	queueRepo     repository.QueueRepository
	escalations   repository.EscalationRepository
	notifications repository.NotificationRepository
	auditRepo     repository.AuditRepository
	blacklist     repository.BlacklistRepository

	semantic   *stubSemantic
	keywords   *cache.KeywordCache
	classifier ContentClassifier
	messages   MessageService
	queue      ModerationQueue
	admin      AdminService
	reputation ReputationEngine
	dispatcher *EscalationDispatcher
	signals    SignalService
	publisher  *Publisher
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := testutil.NewDB(t)
	clock := testutil.NewClock()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	h := &harness{
		db:            db,
		clock:         clock,
		rdb:           rdb,
		mr:            mr,
		users:         repository.NewUserRepository(db),
		contents:      repository.NewContentRepository(db),
		queueRepo:     repository.NewQueueRepository(db),
		escalations:   repository.NewEscalationRepository(db),
		notifications: repository.NewNotificationRepository(db),
		auditRepo:     repository.NewAuditRepository(db),
		blacklist:     repository.NewBlacklistRepository(db),
		semantic:      &stubSemantic{res: semantic.Result{Safe: true, Reason: "ok"}},
	}
	notifier := NewStoreNotifier(h.notifications, clock)
	audit := NewAuditLogger(h.auditRepo, clock)

	h.keywords = cache.NewKeywordCache(h.blacklist, rdb, 0)
	h.classifier = NewContentClassifier(h.keywords, h.semantic)
	h.messages = NewMessageService(db, h.users, repository.NewMessageRepository(db), repository.NewConversationRepository(db), h.classifier, DefaultGuardLimits(), clock)
	h.queue = NewModerationQueue(db, h.queueRepo, h.contents, h.users, audit, clock)
	h.reputation = NewReputationEngine(h.users, h.contents, notifier)
	h.admin = NewAdminService(h.users, h.contents, h.blacklist, h.keywords, h.reputation, audit, clock)
	h.dispatcher = NewEscalationDispatcher(h.escalations, h.users, notifier, EscalationOptions{MaxRecipients: 3, BatchSize: 2}, clock)
	h.signals = NewSignalService(SignalDeps{
		DB:          db,
		Users:       h.users,
		Contents:    h.contents,
		Signals:     repository.NewSignalRepository(db),
		Queue:       h.queueRepo,
		Escalations: h.escalations,
		Dispatcher:  h.dispatcher,
		Redis:       rdb,
		Limits:      DefaultSignalThresholds(),
		Clock:       clock,
	})
	h.publisher = NewPublisher(db, h.users, h.contents, h.queueRepo, h.classifier, h.reputation, clock)
	return h
}

func (h *harness) user(t *testing.T, name string, opts ...testutil.UserOption) *model.User {
	t.Helper()
	return testutil.CreateUser(t, h.db, name, opts...)
}

func (h *harness) reload(t *testing.T, id string) *model.User {
	t.Helper()
	u, err := h.users.Get(context.Background(), id)
	require.NoError(t, err)
	return u
}

func requireRule(t *testing.T, err error, kind error, rule string) {
	t.Helper()
	require.Error(t, err)
	require.ErrorIs(t, err, kind)
	var rej *RejectError
	require.True(t, errors.As(err, &rej), "expected *RejectError, got %T", err)
	require.Equal(t, rule, rej.Rule)
	require.NotEmpty(t, rej.Reason)
}
