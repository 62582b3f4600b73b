// Package validation provides cache.ValidationHooks implementations that
// verify a cached value still matches the content-addressed key it was
// stored under, plus a metrics collector tracking validation outcomes,
// throughput, and a size-based skip threshold, all grounded on
// cascette-cache/src/validation.rs.
package validation

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ngdp-go/cascstore/cache"
)

// MaxValidationSize is the per-value skip threshold (validation.rs's
// should_skip_validation / MAX_VALIDATION_SIZE): blobs larger than this
// bypass hashing entirely, since re-hashing a huge archive segment on every
// cache hit would cost more than the corruption it guards against is worth.
const MaxValidationSize = 100 * 1024 * 1024

// NoOp never rejects a value; use when the caller trusts the underlying
// layer's own integrity guarantees.
type NoOp struct{}

func (NoOp) Validate(string, []byte) error { return nil }

var _ cache.ValidationHooks = NoOp{}

// MismatchError reports that a cached value's hash no longer matches its key.
type MismatchError struct {
	Key      string
	Expected string
	Actual   string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("validation: key %s hash mismatch: expected %s, got %s", e.Key, e.Expected, e.Actual)
}

// Md5 validates that a hex-encoded MD5 key matches the MD5 of the stored
// value, the check used for CKey/EKey-addressed cache entries. Values larger
// than MaxValidationSize are skipped rather than hashed.
type Md5 struct {
	collector *Collector
}

var _ cache.ValidationHooks = Md5{}

// NewMd5 returns an Md5 validator, optionally reporting outcomes to collector.
func NewMd5(collector *Collector) Md5 {
	return Md5{collector: collector}
}

func (v Md5) Validate(key string, value []byte) error {
	if len(value) > MaxValidationSize {
		if v.collector != nil {
			v.collector.observe("skipped", 0, 0)
		}
		return nil
	}

	want, err := hex.DecodeString(key)
	if err != nil || len(want) != 16 {
		if v.collector != nil {
			v.collector.observe("skipped", 0, 0)
		}
		return nil // key isn't a bare hex MD5 (e.g. it's namespaced); nothing to check
	}

	start := time.Now()
	got := md5.Sum(value)
	elapsed := time.Since(start)
	if !equal16(got, want) {
		if v.collector != nil {
			v.collector.observe("mismatch", elapsed, len(value))
		}
		return &MismatchError{Key: key, Expected: key, Actual: hex.EncodeToString(got[:])}
	}
	if v.collector != nil {
		v.collector.observe("ok", elapsed, len(value))
	}
	return nil
}

func equal16(a [16]byte, b []byte) bool {
	if len(b) != 16 {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Metrics accumulates validation outcomes across calls: counts, bytes
// validated, total validation time, and a derived success rate and
// throughput, mirroring ValidationMetrics. Every field is an atomic
// counter, so one Metrics can be shared safely across concurrent Validate
// calls reporting to the same Collector.
type Metrics struct {
	total       atomic.Uint64
	successes   atomic.Uint64
	failures    atomic.Uint64
	bytes       atomic.Uint64
	totalTimeNs atomic.Uint64
	skipped     atomic.Uint64
}

func (m *Metrics) recordSuccess(d time.Duration, n int) {
	m.total.Add(1)
	m.successes.Add(1)
	m.bytes.Add(uint64(n))
	m.totalTimeNs.Add(uint64(d.Nanoseconds()))
}

func (m *Metrics) recordFailure(d time.Duration, n int) {
	m.total.Add(1)
	m.failures.Add(1)
	m.bytes.Add(uint64(n))
	m.totalTimeNs.Add(uint64(d.Nanoseconds()))
}

func (m *Metrics) recordSkip() {
	m.skipped.Add(1)
}

// Total is the number of validations attempted (skips excluded).
func (m *Metrics) Total() uint64 { return m.total.Load() }

// Successes is the number of validations that matched.
func (m *Metrics) Successes() uint64 { return m.successes.Load() }

// Failures is the number of validations that mismatched.
func (m *Metrics) Failures() uint64 { return m.failures.Load() }

// Bytes is the total size of values actually hashed.
func (m *Metrics) Bytes() uint64 { return m.bytes.Load() }

// Skipped is the number of values that bypassed validation (oversize or
// non-hash key).
func (m *Metrics) Skipped() uint64 { return m.skipped.Load() }

// SuccessRate returns successes/total, or 1.0 when nothing has been
// validated yet (no evidence of corruption beats assuming the worst).
func (m *Metrics) SuccessRate() float64 {
	total := m.total.Load()
	if total == 0 {
		return 1.0
	}
	return float64(m.successes.Load()) / float64(total)
}

// AverageValidationTime is the mean hashing time per validated value.
func (m *Metrics) AverageValidationTime() time.Duration {
	total := m.total.Load()
	if total == 0 {
		return 0
	}
	return time.Duration(m.totalTimeNs.Load() / total)
}

// Throughput is bytes validated per second of validation time.
func (m *Metrics) Throughput() float64 {
	ns := m.totalTimeNs.Load()
	if ns == 0 {
		return 0
	}
	secs := float64(ns) / 1e9
	return float64(m.bytes.Load()) / secs
}

// Reset zeroes every counter.
func (m *Metrics) Reset() {
	m.total.Store(0)
	m.successes.Store(0)
	m.failures.Store(0)
	m.bytes.Store(0)
	m.totalTimeNs.Store(0)
	m.skipped.Store(0)
}

// Collector counts validation outcomes by result ("ok", "mismatch",
// "skipped") for prometheus scraping, and accumulates the same outcomes
// into a Metrics for in-process success-rate/throughput reporting.
type Collector struct {
	outcomes *prometheus.CounterVec
	metrics  *Metrics
}

// NewCollector returns a validation-outcome collector. Its counter vector is
// registered with the default prometheus registry; a later call reuses the
// vector already registered there, while each Collector gets its own Metrics.
func NewCollector() *Collector {
	outcomes := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cascstore_cache_validation_outcomes_total",
			Help: "Cache entry validation outcomes by result",
		},
		[]string{"result"},
	)
	if err := prometheus.Register(outcomes); err != nil {
		are, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			panic(err)
		}
		outcomes = are.ExistingCollector.(*prometheus.CounterVec)
	}
	return &Collector{outcomes: outcomes, metrics: &Metrics{}}
}

func (c *Collector) observe(result string, d time.Duration, n int) {
	c.outcomes.WithLabelValues(result).Inc()
	switch result {
	case "ok":
		c.metrics.recordSuccess(d, n)
	case "mismatch":
		c.metrics.recordFailure(d, n)
	case "skipped":
		c.metrics.recordSkip()
	}
}

// Metrics returns the collector's aggregate validation metrics.
func (c *Collector) Metrics() *Metrics { return c.metrics }
