package memory

import (
	"context"
	"sync/atomic"
	"time"

	ttlcache "github.com/jellydator/ttlcache/v3"

	"github.com/ngdp-go/cascstore/cache"
)

// TTL is a cache.Layer backed by jellydator/ttlcache: pure TTL eviction
// with no cost/size awareness, useful as a small, predictable front tier.
type TTL struct {
	c          *ttlcache.Cache[string, []byte]
	defaultTTL time.Duration

	hits, misses, evictions atomic.Int64
}

var _ cache.Layer = (*TTL)(nil)

// TTLConfig configures a TTL layer.
type TTLConfig struct {
	Capacity   uint64        // 0 means unbounded
	DefaultTTL time.Duration // used when Put is called with ttl == 0
}

// NewTTL constructs and starts a TTL layer's background expiry loop.
func NewTTL(cfg TTLConfig) *TTL {
	opts := []ttlcache.Option[string, []byte]{}
	if cfg.Capacity > 0 {
		opts = append(opts, ttlcache.WithCapacity[string, []byte](cfg.Capacity))
	}
	if cfg.DefaultTTL > 0 {
		opts = append(opts, ttlcache.WithTTL[string, []byte](cfg.DefaultTTL))
	}
	c := ttlcache.New(opts...)
	t := &TTL{c: c, defaultTTL: cfg.DefaultTTL}
	c.OnEviction(func(ctx context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[string, []byte]) {
		t.evictions.Add(1)
	})
	go c.Start()
	return t
}

func (t *TTL) Get(_ context.Context, key string) ([]byte, bool, error) {
	item := t.c.Get(key)
	if item == nil {
		t.misses.Add(1)
		return nil, false, nil
	}
	t.hits.Add(1)
	return item.Value(), true, nil
}

func (t *TTL) Put(_ context.Context, key string, value []byte, _ int64, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = t.defaultTTL
	}
	if ttl <= 0 {
		t.c.Set(key, value, ttlcache.NoTTL)
	} else {
		t.c.Set(key, value, ttl)
	}
	return nil
}

func (t *TTL) Contains(_ context.Context, key string) (bool, error) {
	return t.c.Has(key), nil
}

func (t *TTL) Remove(_ context.Context, key string) error {
	t.c.Delete(key)
	return nil
}

func (t *TTL) Clear(_ context.Context) error {
	t.c.DeleteAll()
	return nil
}

func (t *TTL) Stats(_ context.Context) (cache.Stats, error) {
	return cache.Stats{
		Entries:   int64(t.c.Len()),
		Hits:      t.hits.Load(),
		Misses:    t.misses.Load(),
		Evictions: t.evictions.Load(),
	}, nil
}

func (t *TTL) Close(_ context.Context) error {
	t.c.Stop()
	return nil
}
