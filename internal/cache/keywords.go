package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	rcache "github.com/go-redis/cache/v9"
	"github.com/redis/go-redis/v9"

	"github.com/d60-Lab/trustcore/internal/model"
)

const keywordsKey = "cache/blacklist/active"

// Keyword 黑名单关键词快照
type Keyword struct {
	Keyword string `msgpack:"k"`
	Reason  string `msgpack:"r"`
}

// KeywordSource 关键词的持久化来源
type KeywordSource interface {
	ListActive(ctx context.Context) ([]model.BlacklistKeyword, error)
}

// KeywordCache 短 TTL 关键词缓存；redis 为空时只用进程内 TinyLFU
type KeywordCache struct {
	source KeywordSource
	data   *rcache.Cache
	ttl    time.Duration

	storeLoads atomic.Int64
}

// NewKeywordCache ttl <= 0 时每次直接读库
func NewKeywordCache(source KeywordSource, rdb *redis.Client, ttl time.Duration) *KeywordCache {
	kc := &KeywordCache{source: source, ttl: ttl}
	if ttl <= 0 {
		return kc
	}
	opts := &rcache.Options{LocalCache: rcache.NewTinyLFU(16, localTTL(ttl))}
	if rdb != nil {
		opts.Redis = rdb
	}
	kc.data = rcache.New(opts)
	return kc
}

// 本地层比 redis 层更短，其他实例的失效能较快生效
func localTTL(ttl time.Duration) time.Duration {
	if ttl > 5*time.Second {
		return 5 * time.Second
	}
	return ttl
}

// Active 返回当前生效的关键词；来源出错时返回错误，由调用方决定是否放行
func (c *KeywordCache) Active(ctx context.Context) ([]Keyword, error) {
	if c.data == nil {
		return c.load(ctx)
	}
	var out []Keyword
	err := c.data.Once(&rcache.Item{
		Ctx:   ctx,
		Key:   keywordsKey,
		Value: &out,
		TTL:   c.ttl,
		Do: func(*rcache.Item) (any, error) {
			return c.load(ctx)
		},
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *KeywordCache) load(ctx context.Context) ([]Keyword, error) {
	c.storeLoads.Add(1)
	rows, err := c.source.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Keyword, 0, len(rows))
	for _, r := range rows {
		out = append(out, Keyword{Keyword: r.Keyword, Reason: r.Reason})
	}
	return out, nil
}

// Invalidate 管理员修改黑名单后调用
func (c *KeywordCache) Invalidate(ctx context.Context) error {
	if c.data == nil {
		return nil
	}
	err := c.data.Delete(ctx, keywordsKey)
	if errors.Is(err, rcache.ErrCacheMiss) {
		return nil
	}
	return err
}

// StoreLoads 实际读库次数
func (c *KeywordCache) StoreLoads() int64 { return c.storeLoads.Load() }

// ResetCounters 清零计数
func (c *KeywordCache) ResetCounters() { c.storeLoads.Store(0) }
