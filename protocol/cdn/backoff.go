package cdn

import (
	"math/rand"
	"time"
)

// BackoffConfig parameterises the retry schedule for CDN network errors
// (spec.md §7): exponential with a cap and symmetric jitter.
type BackoffConfig struct {
	Base       time.Duration
	Cap        time.Duration
	JitterFrac float64
	MaxAttempts int
}

// DefaultBackoff matches spec.md §7's defaults: base 100ms, cap 30s, jitter
// ±10%, at most 3 attempts.
var DefaultBackoff = BackoffConfig{
	Base:        100 * time.Millisecond,
	Cap:         30 * time.Second,
	JitterFrac:  0.10,
	MaxAttempts: 3,
}

// Delay returns the backoff delay before retry attempt n (1-indexed).
func (c BackoffConfig) Delay(attempt int) time.Duration {
	d := c.Base << (attempt - 1)
	if d > c.Cap || d <= 0 {
		d = c.Cap
	}
	jitter := (rand.Float64()*2 - 1) * c.JitterFrac
	return time.Duration(float64(d) * (1 + jitter))
}
