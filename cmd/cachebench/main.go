package main

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/d60-Lab/trustcore/config"
	"github.com/d60-Lab/trustcore/internal/cache"
	"github.com/d60-Lab/trustcore/internal/model"
	"github.com/d60-Lab/trustcore/internal/repository"
	"github.com/d60-Lab/trustcore/internal/semantic"
	"github.com/d60-Lab/trustcore/internal/service"
	pkgcache "github.com/d60-Lab/trustcore/pkg/cache"
	"github.com/d60-Lab/trustcore/pkg/database"
)

type allowAll struct{}

func (allowAll) Classify(context.Context, string, semantic.Profile) (semantic.Result, error) {
	return semantic.Result{Safe: true, Reason: "ok"}, nil
}

// 对比黑名单关键词在无缓存 / redis+本地两级缓存下的审核延迟与读库次数
func main() {
	ctx := context.Background()
	cfg := must(config.Load())
	db := must(database.InitDB(cfg))
	client := must(pkgcache.NewRedis(ctx, cfg.Redis))
	defer client.Close()

	keywords := envInt("KEYWORDS", 2000)
	requests := envInt("REQUESTS", 20000)
	invalidateEvery := envInt("INVALIDATE_EVERY", 5000)

	fmt.Println("Seeding blacklist...")
	run := uuid.NewString()[:8]
	rows := make([]model.BlacklistKeyword, keywords)
	now := time.Now().UTC()
	for i := range rows {
		rows[i] = model.BlacklistKeyword{
			ID:        uuid.NewString(),
			Keyword:   fmt.Sprintf("bad%s%05d", run, i),
			Reason:    "bench",
			Active:    true,
			CreatedBy: "cachebench",
			CreatedAt: now,
			UpdatedAt: now,
		}
	}
	mustDo(db.CreateInBatches(&rows, 500).Error)
	blacklist := repository.NewBlacklistRepository(db)

	texts := makeTexts(requests, rows)

	noCache := cache.NewKeywordCache(blacklist, nil, 0)
	tiered := cache.NewKeywordCache(blacklist, client, cfg.Redis.CacheTTL)

	a := runScenario(ctx, noCache, texts, 0, client)
	b := runScenario(ctx, tiered, texts, invalidateEvery, client)

	fmt.Printf("\nClassification latency (%d req, %d keywords)\n", requests, keywords)
	for _, r := range []struct {
		name string
		res  scenarioResult
	}{{"No cache", a}, {"Redis + TinyLFU", b}} {
		fmt.Printf("%-16s avg=%v p95=%v p99=%v store_loads=%d blocked=%d redis_mem=%s\n",
			r.name, avg(r.res.durations), pct(r.res.durations, 0.95), pct(r.res.durations, 0.99),
			r.res.storeLoads, r.res.blocked, formatBytes(r.res.memoryBytes))
	}
}

type scenarioResult struct {
	durations   []time.Duration
	storeLoads  int64
	blocked     int
	memoryBytes int64
}

func runScenario(ctx context.Context, kc *cache.KeywordCache, texts []string, invalidateEvery int, client *redis.Client) scenarioResult {
	_ = kc.Invalidate(ctx)
	kc.ResetCounters()
	classifier := service.NewContentClassifier(kc, allowAll{})

	out := make([]time.Duration, 0, len(texts))
	blocked := 0
	for i, text := range texts {
		if invalidateEvery > 0 && i > 0 && i%invalidateEvery == 0 {
			_ = kc.Invalidate(ctx)
		}
		start := time.Now()
		if !classifier.Classify(ctx, text, semantic.ProfileGeneral).Safe {
			blocked++
		}
		out = append(out, time.Since(start))
	}

	var memBytes int64
	if info, err := client.Info(ctx, "memory").Result(); err == nil {
		memBytes = parseRedisMemory(info)
	}
	return scenarioResult{durations: out, storeLoads: kc.StoreLoads(), blocked: blocked, memoryBytes: memBytes}
}

// 约 5% 的文本命中关键词
func makeTexts(n int, rows []model.BlacklistKeyword) []string {
	rnd := rand.New(rand.NewSource(42))
	out := make([]string, n)
	for i := range out {
		if rnd.Float64() < 0.05 {
			out[i] = "check this " + rows[rnd.Intn(len(rows))].Keyword + " deal"
		} else {
			out[i] = fmt.Sprintf("ordinary comment number %d about heat pumps", i)
		}
	}
	return out
}

func parseRedisMemory(info string) int64 {
	for _, line := range strings.Split(info, "\n") {
		if v, ok := strings.CutPrefix(strings.TrimSpace(line), "used_memory:"); ok {
			n, _ := strconv.ParseInt(v, 10, 64)
			return n
		}
	}
	return 0
}

func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

func avg(vs []time.Duration) time.Duration {
	if len(vs) == 0 {
		return 0
	}
	var sum time.Duration
	for _, v := range vs {
		sum += v
	}
	return sum / time.Duration(len(vs))
}

func pct(vs []time.Duration, p float64) time.Duration {
	if len(vs) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), vs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(math.Ceil(p*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func envInt(name string, def int) int {
	if s := os.Getenv(name); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func mustDo(err error) {
	if err != nil {
		panic(err)
	}
}
