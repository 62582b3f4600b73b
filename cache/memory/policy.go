package memory

import (
	"container/list"
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/ngdp-go/cascstore/cache"
)

// Policy is one entry held by a PolicyCache, with the bookkeeping its
// eviction strategies read (cost, expiry, access frequency, list position).
type Policy struct {
	c        *PolicyCache
	key      string
	value    []byte
	cost     int64
	expireAt time.Time
	freq     int64
	elem     *list.Element
}

// PolicyCache is a small, dependency-free cache.Layer used when none of the
// library-backed layers' built-in eviction algorithm is the one wanted:
// it supports LRU, LFU, FIFO, Random, and pure-TTL eviction by name. No pack
// example ships a generic eviction-policy library, so this is hand-rolled
// and kept deliberately small (one map under a mutex plus a container/list).
type PolicyCache struct {
	mu       sync.Mutex
	capacity int64 // max total cost; 0 = unbounded (TTL-only eviction)
	policy   cache.EvictionPolicy
	order    *list.List // front = most-recently-used (LRU) / newest insertion, per policy
	items    map[string]*Policy
	usedCost int64

	hits, misses, evictions int64
}

var _ cache.Layer = (*PolicyCache)(nil)

// NewPolicyCache constructs a PolicyCache evicting under policy once the
// sum of stored costs exceeds capacity (capacity <= 0 means unbounded).
func NewPolicyCache(policy cache.EvictionPolicy, capacity int64) *PolicyCache {
	return &PolicyCache{
		capacity: capacity,
		policy:   policy,
		order:    list.New(),
		items:    make(map[string]*Policy),
	}
}

func (p *PolicyCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	it, ok := p.items[key]
	if !ok {
		p.misses++
		return nil, false, nil
	}
	if !it.expireAt.IsZero() && time.Now().After(it.expireAt) {
		p.removeLocked(it)
		p.misses++
		return nil, false, nil
	}
	it.freq++
	if p.policy == cache.EvictionLRU {
		p.order.MoveToFront(it.elem)
	}
	p.hits++
	return it.value, true, nil
}

func (p *PolicyCache) Put(_ context.Context, key string, value []byte, cost int64, ttl time.Duration) error {
	if cost <= 0 {
		cost = int64(len(value))
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	var expireAt time.Time
	if ttl > 0 {
		expireAt = time.Now().Add(ttl)
	}

	if existing, ok := p.items[key]; ok {
		p.usedCost -= existing.cost
		existing.value = value
		existing.cost = cost
		existing.expireAt = expireAt
		p.usedCost += cost
		p.order.MoveToFront(existing.elem)
	} else {
		it := &Policy{key: key, value: value, cost: cost, expireAt: expireAt, freq: 1}
		it.elem = p.order.PushFront(it)
		p.items[key] = it
		p.usedCost += cost
	}

	p.evictIfNeededLocked()
	return nil
}

func (p *PolicyCache) evictIfNeededLocked() {
	if p.capacity <= 0 {
		return
	}
	for p.usedCost > p.capacity && len(p.items) > 0 {
		victim := p.pickVictimLocked()
		if victim == nil {
			return
		}
		p.removeLocked(victim)
		p.evictions++
	}
}

func (p *PolicyCache) pickVictimLocked() *Policy {
	switch p.policy {
	case cache.EvictionLRU, cache.EvictionFIFO:
		// LRU keeps most-recently-used at front via MoveToFront on access;
		// FIFO never moves elements, so the back is always the oldest
		// insertion either way.
		back := p.order.Back()
		if back == nil {
			return nil
		}
		return back.Value.(*Policy)
	case cache.EvictionLFU:
		// Walk from the back so ties go to the oldest insertion.
		var victim *Policy
		for e := p.order.Back(); e != nil; e = e.Prev() {
			it := e.Value.(*Policy)
			if victim == nil || it.freq < victim.freq {
				victim = it
			}
		}
		return victim
	case cache.EvictionTTL:
		var victim *Policy
		for _, it := range p.items {
			if it.expireAt.IsZero() {
				continue
			}
			if victim == nil || it.expireAt.Before(victim.expireAt) {
				victim = it
			}
		}
		if victim == nil {
			// nothing has a TTL; fall back to oldest insertion.
			if back := p.order.Back(); back != nil {
				return back.Value.(*Policy)
			}
		}
		return victim
	case cache.EvictionRandom:
		n := rand.Intn(len(p.items))
		for _, it := range p.items {
			if n == 0 {
				return it
			}
			n--
		}
		return nil
	default:
		if back := p.order.Back(); back != nil {
			return back.Value.(*Policy)
		}
		return nil
	}
}

func (p *PolicyCache) removeLocked(it *Policy) {
	p.order.Remove(it.elem)
	delete(p.items, it.key)
	p.usedCost -= it.cost
}

// Contains reports whether key is present and unexpired, without bumping
// freq, hits/misses, or LRU order the way Get does.
func (p *PolicyCache) Contains(_ context.Context, key string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	it, ok := p.items[key]
	if !ok {
		return false, nil
	}
	if !it.expireAt.IsZero() && time.Now().After(it.expireAt) {
		p.removeLocked(it)
		return false, nil
	}
	return true, nil
}

func (p *PolicyCache) Remove(_ context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if it, ok := p.items[key]; ok {
		p.removeLocked(it)
	}
	return nil
}

func (p *PolicyCache) Clear(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.order.Init()
	p.items = make(map[string]*Policy)
	p.usedCost = 0
	return nil
}

func (p *PolicyCache) Stats(_ context.Context) (cache.Stats, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return cache.Stats{
		Entries:   int64(len(p.items)),
		Bytes:     p.usedCost,
		Hits:      p.hits,
		Misses:    p.misses,
		Evictions: p.evictions,
	}, nil
}

func (p *PolicyCache) Close(_ context.Context) error { return nil }
