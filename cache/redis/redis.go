// Package redis implements a cache.Layer backed by redis/go-redis, for a
// shared remote tier behind the in-process memory and local disk layers
// (spec.md §4.4).
package redis

import (
	"context"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/ngdp-go/cascstore/cache"
)

// Layer is a cache.Layer backed by a redis UniversalClient (standalone,
// sentinel, or cluster, decided by how the client was constructed).
type Layer struct {
	rdb    goredis.UniversalClient
	prefix string
}

var _ cache.Layer = (*Layer)(nil)

// ErrNilClient is returned by New when given a nil client.
var ErrNilClient = errors.New("redis: nil client")

// Config configures a redis Layer.
type Config struct {
	Client goredis.UniversalClient
	// Prefix namespaces every key, so multiple logical caches can share one
	// redis instance without collision.
	Prefix string
}

// New constructs a redis Layer.
func New(cfg Config) (*Layer, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	return &Layer{rdb: cfg.Client, prefix: cfg.Prefix}, nil
}

func (l *Layer) k(key string) string { return l.prefix + key }

func (l *Layer) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := l.rdb.Get(ctx, l.k(key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (l *Layer) Put(ctx context.Context, key string, value []byte, _ int64, ttl time.Duration) error {
	return l.rdb.Set(ctx, l.k(key), value, ttl).Err()
}

func (l *Layer) Contains(ctx context.Context, key string) (bool, error) {
	n, err := l.rdb.Exists(ctx, l.k(key)).Result()
	return n > 0, err
}

func (l *Layer) Remove(ctx context.Context, key string) error {
	return l.rdb.Del(ctx, l.k(key)).Err()
}

// Clear removes every key under this layer's prefix via SCAN, to avoid
// blocking the server the way FLUSHDB would on a shared instance.
func (l *Layer) Clear(ctx context.Context) error {
	iter := l.rdb.Scan(ctx, 0, l.prefix+"*", 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return l.rdb.Del(ctx, keys...).Err()
}

// Stats reports only hit/miss/eviction-free occupancy; redis INFO parsing
// for byte-accurate memory accounting is left to external monitoring.
func (l *Layer) Stats(ctx context.Context) (cache.Stats, error) {
	n, err := l.rdb.DBSize(ctx).Result()
	if err != nil {
		return cache.Stats{}, err
	}
	return cache.Stats{Entries: n}, nil
}

func (l *Layer) Close(context.Context) error {
	return l.rdb.Close()
}
