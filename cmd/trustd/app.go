package main

import (
	"context"
	"fmt"

	"github.com/getsentry/sentry-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/d60-Lab/trustcore/config"
	"github.com/d60-Lab/trustcore/internal/api/handler"
	"github.com/d60-Lab/trustcore/internal/cache"
	"github.com/d60-Lab/trustcore/internal/repository"
	"github.com/d60-Lab/trustcore/internal/semantic"
	"github.com/d60-Lab/trustcore/internal/service"
	pkgcache "github.com/d60-Lab/trustcore/pkg/cache"
	"github.com/d60-Lab/trustcore/pkg/database"
	"github.com/d60-Lab/trustcore/pkg/logger"
)

// app 进程内共享的依赖
type app struct {
	cfg *config.Config
	db  *gorm.DB
	rdb *redis.Client

	users         repository.UserRepository
	notifications repository.NotificationRepository

	storeNotifier *service.StoreNotifier
	async         *service.AsyncNotifier
	reputation    service.ReputationEngine
	dispatcher    *service.EscalationDispatcher
	handler       *handler.Handler
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	if cfg.Sentry.DSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.Sentry.DSN,
			Environment: cfg.Sentry.Environment,
			SampleRate:  cfg.Sentry.SampleRate,
		}); err != nil {
			return nil, fmt.Errorf("init sentry: %w", err)
		}
	}

	db, err := database.InitDB(cfg)
	if err != nil {
		return nil, err
	}
	rdb, err := pkgcache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		_ = database.Close(db)
		return nil, err
	}

	a := &app{cfg: cfg, db: db, rdb: rdb}
	clock := service.SystemClock

	a.users = repository.NewUserRepository(db)
	a.notifications = repository.NewNotificationRepository(db)
	contents := repository.NewContentRepository(db)
	queueRepo := repository.NewQueueRepository(db)
	escalations := repository.NewEscalationRepository(db)
	blacklist := repository.NewBlacklistRepository(db)
	audit := service.NewAuditLogger(repository.NewAuditRepository(db), clock)

	// 升级扇出需要同步写入结果才能标记完成；信誉通知走异步队列
	a.storeNotifier = service.NewStoreNotifier(a.notifications, clock)
	a.async = service.NewAsyncNotifier(a.storeNotifier, 10000)

	keywords := cache.NewKeywordCache(blacklist, rdb, cfg.Redis.CacheTTL)
	classifier := service.NewContentClassifier(keywords, semantic.NewClient(cfg.Classifier))
	a.reputation = service.NewReputationEngine(a.users, contents, a.async)
	a.dispatcher = service.NewEscalationDispatcher(escalations, a.users, a.storeNotifier, service.EscalationOptionsFromConfig(cfg.Escalation), clock)

	a.handler = handler.New(handler.Deps{
		Messages: service.NewMessageService(db, a.users, repository.NewMessageRepository(db),
			repository.NewConversationRepository(db), classifier, service.GuardLimitsFromConfig(cfg.Guard), clock),
		Classifier: classifier,
		Publisher:  service.NewPublisher(db, a.users, contents, queueRepo, classifier, a.reputation, clock),
		Signals: service.NewSignalService(service.SignalDeps{
			DB:          db,
			Users:       a.users,
			Contents:    contents,
			Signals:     repository.NewSignalRepository(db),
			Queue:       queueRepo,
			Escalations: escalations,
			Dispatcher:  a.dispatcher,
			Redis:       rdb,
			Limits:      service.SignalThresholdsFromConfig(cfg.Escalation),
			Clock:       clock,
		}),
		Queue:         service.NewModerationQueue(db, queueRepo, contents, a.users, audit, clock),
		Admin:         service.NewAdminService(a.users, contents, blacklist, keywords, a.reputation, audit, clock),
		Reputation:    a.reputation,
		Notifications: a.notifications,
	})
	return a, nil
}

func (a *app) Close() {
	_ = a.rdb.Close()
	_ = database.Close(a.db)
	_ = logger.Sync()
}
