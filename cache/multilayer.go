package cache

import (
	"context"
	"sync"
	"time"

	"github.com/ngdp-go/cascstore/logx"
)

// MultiLayer composes ordered Layers (fastest first) into a single Layer,
// reading through each until a hit, then optionally promoting the value
// into faster layers per its PromotionStrategy.
type MultiLayer struct {
	layers     []Layer
	promotion  PromotionStrategy
	validation ValidationHooks
	logger     logx.Logger

	mu      sync.Mutex
	hits    map[string]int64
	firstAt map[string]time.Time
}

// Options configures a MultiLayer.
type Options struct {
	Promotion  PromotionStrategy // defaults to OnHit()
	Validation ValidationHooks   // defaults to a no-op
	Logger     logx.Logger
}

// NewMultiLayer composes layers, ordered fastest (index 0) to slowest.
func NewMultiLayer(layers []Layer, opts Options) (*MultiLayer, error) {
	if len(layers) == 0 {
		return nil, NoLayersError{}
	}
	promotion := opts.Promotion
	if promotion == nil {
		promotion = OnHit()
	}
	validation := opts.Validation
	if validation == nil {
		validation = noopValidation{}
	}
	return &MultiLayer{
		layers:     layers,
		promotion:  promotion,
		validation: validation,
		logger:     logx.Coalesce(opts.Logger),
		hits:       make(map[string]int64),
		firstAt:    make(map[string]time.Time),
	}, nil
}

type noopValidation struct{}

func (noopValidation) Validate(string, []byte) error { return nil }

// Get reads through the layers in order, validating and optionally
// promoting the value into faster layers on a hit below the top.
func (m *MultiLayer) Get(ctx context.Context, key string) ([]byte, bool, error) {
	for i, l := range m.layers {
		v, ok, err := l.Get(ctx, key)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			continue
		}
		if err := m.validation.Validate(key, v); err != nil {
			m.logger.Warn("cache entry failed validation, evicting", logx.Fields{"key": key, "layer": i, "error": err.Error()})
			_ = l.Remove(ctx, key)
			continue
		}

		hitCount, age := m.recordHit(key)
		if m.promotion.ShouldPromote(i, len(m.layers), hitCount, age) {
			m.promote(ctx, key, v, i)
		}
		return v, true, nil
	}
	return nil, false, nil
}

func (m *MultiLayer) recordHit(key string) (int64, time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hits[key]++
	if _, ok := m.firstAt[key]; !ok {
		m.firstAt[key] = time.Now()
	}
	return m.hits[key], time.Since(m.firstAt[key])
}

// promote copies value into every layer above hitLayer, best-effort.
func (m *MultiLayer) promote(ctx context.Context, key string, value []byte, hitLayer int) {
	for i := 0; i < hitLayer; i++ {
		if err := m.layers[i].Put(ctx, key, value, int64(len(value)), 0); err != nil {
			m.logger.Warn("promotion write failed", logx.Fields{"key": key, "layer": i, "error": err.Error()})
		}
	}
}

// Promote forces a promotion of key/value into every layer above
// belowLayer, for callers using Manual().
func (m *MultiLayer) Promote(ctx context.Context, key string, value []byte, belowLayer int) {
	m.promote(ctx, key, value, belowLayer)
}

// Put validates value against key before writing it to every layer,
// rejecting the write outright on a mismatch rather than admitting corrupt
// bytes that would only be caught on a later read.
func (m *MultiLayer) Put(ctx context.Context, key string, value []byte, cost int64, ttl time.Duration) error {
	if err := m.validation.Validate(key, value); err != nil {
		m.logger.Warn("cache put rejected by validation", logx.Fields{"key": key, "error": err.Error()})
		return &ValidationError{Key: key, Err: err}
	}

	var firstErr error
	for _, l := range m.layers {
		if err := l.Put(ctx, key, value, cost, ttl); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Contains checks layers in order, short-circuiting on the first hit.
func (m *MultiLayer) Contains(ctx context.Context, key string) (bool, error) {
	for _, l := range m.layers {
		ok, err := l.Contains(ctx, key)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// Remove deletes key from every layer.
func (m *MultiLayer) Remove(ctx context.Context, key string) error {
	var firstErr error
	for _, l := range m.layers {
		if err := l.Remove(ctx, key); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	m.mu.Lock()
	delete(m.hits, key)
	delete(m.firstAt, key)
	m.mu.Unlock()
	return firstErr
}

// Clear empties every layer.
func (m *MultiLayer) Clear(ctx context.Context) error {
	var firstErr error
	for _, l := range m.layers {
		if err := l.Clear(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	m.mu.Lock()
	m.hits = make(map[string]int64)
	m.firstAt = make(map[string]time.Time)
	m.mu.Unlock()
	return firstErr
}

// Stats sums occupancy and counters across every layer.
func (m *MultiLayer) Stats(ctx context.Context) (Stats, error) {
	var total Stats
	for _, l := range m.layers {
		s, err := l.Stats(ctx)
		if err != nil {
			return Stats{}, err
		}
		total.Entries += s.Entries
		total.Bytes += s.Bytes
		total.Hits += s.Hits
		total.Misses += s.Misses
		total.Evictions += s.Evictions
	}
	return total, nil
}

// Close closes every layer, in order, returning the first error.
func (m *MultiLayer) Close(ctx context.Context) error {
	var firstErr error
	for _, l := range m.layers {
		if err := l.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

var _ Layer = (*MultiLayer)(nil)
