// Package cache defines the tiered cache contract used by the content
// store: a uniform async Get/Put/Contains/Remove/Clear/Stats surface that
// memory, disk, and remote layers all implement, composed through
// MultiLayer with configurable promotion between tiers (spec.md §4.4, §6).
package cache

import (
	"context"
	"time"
)

// Layer is a single cache tier. Implementations must be safe for concurrent
// use and must be byte-for-byte transparent: Get must return exactly the
// bytes previously given to Put for the same key, with no re-encoding.
type Layer interface {
	// Get returns (value, true, nil) on hit; (nil, false, nil) on miss.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Put stores value under key with the given TTL (zero means no expiry).
	// cost is an implementation-defined weight (typically len(value)) used
	// by cost-aware eviction policies; layers that don't track cost may
	// ignore it.
	Put(ctx context.Context, key string, value []byte, cost int64, ttl time.Duration) error

	// Contains reports presence without necessarily reading the value.
	Contains(ctx context.Context, key string) (bool, error)

	// Remove deletes key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error

	// Clear empties the layer.
	Clear(ctx context.Context) error

	// Stats reports current occupancy and hit/miss counters.
	Stats(ctx context.Context) (Stats, error)

	// Close releases resources held by the layer.
	Close(ctx context.Context) error
}

// Stats summarizes a layer's occupancy and effectiveness.
type Stats struct {
	Entries   int64
	Bytes     int64
	Hits      int64
	Misses    int64
	Evictions int64
}

// EvictionPolicy names the strategy a memory layer uses to pick victims
// when it is over budget.
type EvictionPolicy string

const (
	EvictionLRU    EvictionPolicy = "lru"
	EvictionLFU    EvictionPolicy = "lfu"
	EvictionFIFO   EvictionPolicy = "fifo"
	EvictionRandom EvictionPolicy = "random"
	EvictionTTL    EvictionPolicy = "ttl"
)

// ValidationHooks verifies a value's integrity against its key, e.g. its
// content-addressed hash. MultiLayer calls it before every Put and on every
// hit in Get. Concrete implementations (Md5, NoOp) live in cache/validation.
type ValidationHooks interface {
	// Validate checks value against key (e.g. key is a CKey/EKey hex string
	// and value's hash must match it). A non-nil error means the value is
	// corrupt: on Get it is treated as a miss and evicted, on Put the write
	// is rejected.
	Validate(key string, value []byte) error
}

// PromotionStrategy decides whether a lower layer's hit should be copied up
// into faster layers above it.
type PromotionStrategy interface {
	// ShouldPromote is called after a hit at layer index hitLayer (0 is the
	// fastest/topmost layer) out of total layers, with the number of times
	// this key has been seen so far (including this hit).
	ShouldPromote(hitLayer, totalLayers int, hitCount int64, age time.Duration) bool
}

// PromotionFunc adapts a function to PromotionStrategy.
type PromotionFunc func(hitLayer, totalLayers int, hitCount int64, age time.Duration) bool

func (f PromotionFunc) ShouldPromote(hitLayer, totalLayers int, hitCount int64, age time.Duration) bool {
	return f(hitLayer, totalLayers, hitCount, age)
}

// OnHit promotes on every hit below the top layer.
func OnHit() PromotionStrategy {
	return PromotionFunc(func(hitLayer, _ int, _ int64, _ time.Duration) bool { return hitLayer > 0 })
}

// AfterNHits promotes once a key has been hit at least n times.
func AfterNHits(n int64) PromotionStrategy {
	return PromotionFunc(func(hitLayer, _ int, hitCount int64, _ time.Duration) bool {
		return hitLayer > 0 && hitCount >= n
	})
}

// FrequencyBased promotes when hitCount divided by age (hits/sec) is at least
// minRate; useful for promoting "hot" keys without promoting one-off scans.
func FrequencyBased(minRate float64) PromotionStrategy {
	return PromotionFunc(func(hitLayer, _ int, hitCount int64, age time.Duration) bool {
		if hitLayer == 0 || age <= 0 {
			return false
		}
		return float64(hitCount)/age.Seconds() >= minRate
	})
}

// AgeBased promotes only keys first seen at least minAge ago, avoiding
// promotion churn for very recently written keys.
func AgeBased(minAge time.Duration) PromotionStrategy {
	return PromotionFunc(func(hitLayer, _ int, _ int64, age time.Duration) bool {
		return hitLayer > 0 && age >= minAge
	})
}

// Manual never promotes automatically; callers invoke MultiLayer.Promote
// explicitly.
func Manual() PromotionStrategy {
	return PromotionFunc(func(int, int, int64, time.Duration) bool { return false })
}
