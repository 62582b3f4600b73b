// Package memory provides in-process cache.Layer implementations backed by
// ristretto (cost-aware LFU-ish admission), bigcache (sharded, GC-friendly),
// and ttlcache (simple TTL-only eviction), adapted from cascache's provider
// wrappers to the cache.Layer contract (spec.md §4.4).
package memory

import (
	"context"
	"errors"
	"time"

	rc "github.com/dgraph-io/ristretto"

	"github.com/ngdp-go/cascstore/cache"
)

// Ristretto is a cache.Layer backed by dgraph-io/ristretto, suited to a hot
// in-memory tier with cost-based admission and eviction.
type Ristretto struct {
	c *rc.Cache

	hits, misses, evictions int64
}

var _ cache.Layer = (*Ristretto)(nil)

// RistrettoConfig mirrors ristretto.Config's tunables.
type RistrettoConfig struct {
	NumCounters int64
	MaxCost     int64
	BufferItems int64
	Metrics     bool
}

// NewRistretto constructs a Ristretto layer.
func NewRistretto(cfg RistrettoConfig) (*Ristretto, error) {
	if cfg.NumCounters <= 0 || cfg.MaxCost <= 0 || cfg.BufferItems <= 0 {
		return nil, errors.New("memory: invalid ristretto config")
	}
	c, err := rc.NewCache(&rc.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
		Metrics:     cfg.Metrics,
		OnEvict: func(*rc.Item) {},
	})
	if err != nil {
		return nil, err
	}
	return &Ristretto{c: c}, nil
}

func (r *Ristretto) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := r.c.Get(key)
	if !ok {
		r.misses++
		return nil, false, nil
	}
	b, _ := v.([]byte)
	if b == nil {
		r.c.Del(key)
		r.misses++
		return nil, false, nil
	}
	r.hits++
	return b, true, nil
}

func (r *Ristretto) Put(_ context.Context, key string, value []byte, cost int64, ttl time.Duration) error {
	if cost <= 0 {
		cost = int64(len(value))
	}
	ok := r.c.SetWithTTL(key, value, cost, ttl)
	if !ok {
		r.evictions++
	}
	return nil
}

func (r *Ristretto) Contains(ctx context.Context, key string) (bool, error) {
	_, ok, err := r.Get(ctx, key)
	return ok, err
}

func (r *Ristretto) Remove(_ context.Context, key string) error {
	r.c.Del(key)
	return nil
}

func (r *Ristretto) Clear(_ context.Context) error {
	r.c.Clear()
	return nil
}

func (r *Ristretto) Stats(_ context.Context) (cache.Stats, error) {
	m := r.c.Metrics
	var entries int64
	if m != nil {
		entries = int64(m.KeysAdded()) - int64(m.KeysEvicted())
	}
	return cache.Stats{
		Entries:   entries,
		Hits:      r.hits,
		Misses:    r.misses,
		Evictions: r.evictions,
	}, nil
}

func (r *Ristretto) Close(_ context.Context) error {
	r.c.Wait()
	r.c.Close()
	return nil
}
