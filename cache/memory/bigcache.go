package memory

import (
	"context"
	"sync/atomic"
	"time"

	bc "github.com/allegro/bigcache/v3"

	"github.com/ngdp-go/cascstore/cache"
)

// BigCache is a cache.Layer backed by allegro/bigcache, a sharded,
// GC-pressure-friendly store with a single global LifeWindow rather than
// per-entry TTLs.
type BigCache struct {
	c *bc.BigCache

	hits, misses atomic.Int64
}

var _ cache.Layer = (*BigCache)(nil)

// BigCacheConfig mirrors bigcache.Config's commonly tuned fields.
type BigCacheConfig struct {
	LifeWindow         time.Duration
	CleanWindow        time.Duration
	MaxEntriesInWindow int
	MaxEntrySize       int
	HardMaxCacheSizeMB int
}

// NewBigCache constructs a BigCache layer.
func NewBigCache(cfg BigCacheConfig) (*BigCache, error) {
	conf := bc.DefaultConfig(cfg.LifeWindow)
	if cfg.CleanWindow > 0 {
		conf.CleanWindow = cfg.CleanWindow
	}
	if cfg.MaxEntriesInWindow > 0 {
		conf.MaxEntriesInWindow = cfg.MaxEntriesInWindow
	}
	if cfg.MaxEntrySize > 0 {
		conf.MaxEntrySize = cfg.MaxEntrySize
	}
	if cfg.HardMaxCacheSizeMB > 0 {
		conf.HardMaxCacheSize = cfg.HardMaxCacheSizeMB
	}
	c, err := bc.NewBigCache(conf)
	if err != nil {
		return nil, err
	}
	return &BigCache{c: c}, nil
}

func (b *BigCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, err := b.c.Get(key)
	if err == bc.ErrEntryNotFound {
		b.misses.Add(1)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	b.hits.Add(1)
	return v, true, nil
}

// Put ignores ttl: BigCache applies its configured LifeWindow uniformly.
func (b *BigCache) Put(_ context.Context, key string, value []byte, _ int64, _ time.Duration) error {
	return b.c.Set(key, value)
}

func (b *BigCache) Contains(ctx context.Context, key string) (bool, error) {
	_, ok, err := b.Get(ctx, key)
	return ok, err
}

func (b *BigCache) Remove(_ context.Context, key string) error {
	err := b.c.Delete(key)
	if err == bc.ErrEntryNotFound {
		return nil
	}
	return err
}

func (b *BigCache) Clear(_ context.Context) error {
	return b.c.Reset()
}

func (b *BigCache) Stats(_ context.Context) (cache.Stats, error) {
	s := b.c.Stats()
	return cache.Stats{
		Entries:   int64(b.c.Len()),
		Bytes:     int64(b.c.Capacity()),
		Hits:      b.hits.Load(),
		Misses:    b.misses.Load(),
		Evictions: int64(s.DelHits),
	}, nil
}

func (b *BigCache) Close(_ context.Context) error {
	return b.c.Close()
}
