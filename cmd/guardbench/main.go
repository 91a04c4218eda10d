package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/d60-Lab/trustcore/config"
	"github.com/d60-Lab/trustcore/internal/cache"
	"github.com/d60-Lab/trustcore/internal/model"
	"github.com/d60-Lab/trustcore/internal/repository"
	"github.com/d60-Lab/trustcore/internal/semantic"
	"github.com/d60-Lab/trustcore/internal/service"
	"github.com/d60-Lab/trustcore/pkg/database"
)

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

type allowAll struct{}

func (allowAll) Classify(context.Context, string, semantic.Profile) (semantic.Result, error) {
	return semantic.Result{Safe: true, Reason: "ok"}, nil
}

func envInt(name string, def int) int {
	if s := os.Getenv(name); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return def
}

// 模拟一次群发：N 个低信誉账号各自向 FANOUT 个收件人发同一条消息，
// 统计守卫延迟和各规则拦截数；随后 N 个用户对同一内容举手，测升级扇出
func main() {
	cfg := must(config.Load())
	db := must(database.InitDB(cfg))
	ctx := context.Background()

	N := envInt("N", 500)
	CONC := envInt("CONC", 8)
	FANOUT := envInt("FANOUT", 6)
	EXPERTS := envInt("EXPERTS", 40)

	users := repository.NewUserRepository(db)
	contents := repository.NewContentRepository(db)
	notifications := repository.NewNotificationRepository(db)
	notifier := service.NewAsyncNotifier(service.NewStoreNotifier(notifications, nil), 100000)
	stopNotify := notifier.Start(4)

	// 只压测守卫与写路径，语义审核用放行桩代替
	classifier := service.NewContentClassifier(
		cache.NewKeywordCache(repository.NewBlacklistRepository(db), nil, time.Minute), allowAll{})
	msgSvc := service.NewMessageService(db, users, repository.NewMessageRepository(db),
		repository.NewConversationRepository(db), classifier, service.GuardLimitsFromConfig(cfg.Guard), nil)
	dispatcher := service.NewEscalationDispatcher(repository.NewEscalationRepository(db), users, notifier,
		service.EscalationOptionsFromConfig(cfg.Escalation), nil)
	signals := service.NewSignalService(service.SignalDeps{
		DB:          db,
		Users:       users,
		Contents:    contents,
		Signals:     repository.NewSignalRepository(db),
		Queue:       repository.NewQueueRepository(db),
		Escalations: repository.NewEscalationRepository(db),
		Dispatcher:  dispatcher,
		Limits:      service.SignalThresholdsFromConfig(cfg.Escalation),
	})

	run := uuid.NewString()[:8]
	seed := func(prefix string, n int, expert bool) []model.User {
		out := make([]model.User, n)
		now := time.Now().UTC()
		for i := range out {
			id := uuid.NewString()
			out[i] = model.User{ID: id, Username: fmt.Sprintf("%s_%s_%d", prefix, run, i), Tier: 1, IsExpert: expert, Reputation: 0, CreatedAt: now, UpdatedAt: now}
			if expert {
				out[i].Reputation = 600
			}
		}
		if err := db.CreateInBatches(&out, 500).Error; err != nil {
			panic(err)
		}
		return out
	}
	senders := seed("sender", N, false)
	recipients := seed("rcpt", FANOUT, false)
	seed("expert", EXPERTS, true)

	// 群发
	type result struct {
		d    time.Duration
		rule string
	}
	results := make(chan result, N*FANOUT)
	feed := make(chan int, N)
	for i := 0; i < N; i++ {
		feed <- i
	}
	close(feed)

	var wg sync.WaitGroup
	t0 := time.Now()
	for w := 0; w < min(CONC, N); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range feed {
				for _, r := range recipients {
					st := time.Now()
					_, err := msgSvc.SendMessage(ctx, service.SendMessageRequest{SenderID: senders[i].ID, RecipientID: r.ID, Content: "limited offer, click here"})
					results <- result{d: time.Since(st), rule: ruleOf(err)}
				}
			}
		}()
	}
	wg.Wait()
	close(results)
	sendDur := time.Since(t0)

	var lat []time.Duration
	rules := map[string]int{}
	for r := range results {
		lat = append(lat, r.d)
		rules[r.rule]++
	}

	// 举手升级
	author := senders[0]
	content := &model.Content{ID: uuid.NewString(), AuthorID: author.ID, Kind: model.ContentDiscussion, Body: "urgent question", CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC()}
	if err := contents.Create(ctx, content); err != nil {
		panic(err)
	}
	var handLat []time.Duration
	escalated := 0
	t1 := time.Now()
	for i := 1; i < N; i++ {
		st := time.Now()
		res, err := signals.ToggleRaiseHand(ctx, senders[i].ID, content.ID)
		handLat = append(handLat, time.Since(st))
		if err == nil && res.Escalated {
			escalated++
		}
	}
	handDur := time.Since(t1)
	_ = stop(notifier, stopNotify)

	fmt.Printf("N=%d CONC=%d FANOUT=%d EXPERTS=%d\n", N, CONC, FANOUT, EXPERTS)
	fmt.Printf("SendMessage total=%v p50=%v p95=%v p99=%v\n", sendDur, pct(lat, 0.50), pct(lat, 0.95), pct(lat, 0.99))
	keys := make([]string, 0, len(rules))
	for k := range rules {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("  %-24s %d\n", k, rules[k])
	}
	fmt.Printf("RaiseHand total=%v p50=%v p95=%v p99=%v escalations=%d\n", handDur, pct(handLat, 0.50), pct(handLat, 0.95), pct(handLat, 0.99), escalated)
}

func ruleOf(err error) string {
	if err == nil {
		return "accepted"
	}
	var rej *service.RejectError
	if errors.As(err, &rej) && rej.Rule != "" {
		return rej.Rule
	}
	return "error"
}

func stop(n *service.AsyncNotifier, stopFn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	start := time.Now()
	err := stopFn(ctx)
	fmt.Printf("notifier drained in %v (queue=%d)\n", time.Since(start), n.QueueLen())
	return err
}

func pct(vs []time.Duration, p float64) time.Duration {
	if len(vs) == 0 {
		return 0
	}
	xs := append([]time.Duration(nil), vs...)
	sort.Slice(xs, func(i, j int) bool { return xs[i] < xs[j] })
	k := int(math.Ceil(p*float64(len(xs)))) - 1
	if k < 0 {
		k = 0
	}
	if k >= len(xs) {
		k = len(xs) - 1
	}
	return xs[k]
}
