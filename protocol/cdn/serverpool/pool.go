// Package serverpool is the optional connection-management tier above a
// plain CDN client (spec.md §4.5 "Server pool"): per-server request
// statistics, a circuit breaker that trips on sustained failure, periodic
// health checks, and a semaphore-bound connection guard. Grounded on
// original_source/crates/cascette-protocol/src/cdn/streaming/pool.rs,
// translated from an async RAII-guard-on-Drop design to Go's defer-based
// equivalent.
package serverpool

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/ngdp-go/cascstore/logx"
)

// State mirrors the Rust ConnectionState enum.
type State int

const (
	Healthy State = iota
	CircuitOpen
	Checking
	Removed
)

func (s State) String() string {
	switch s {
	case Healthy:
		return "healthy"
	case CircuitOpen:
		return "circuit_open"
	case Checking:
		return "checking"
	case Removed:
		return "removed"
	default:
		return "unknown"
	}
}

// circuitOpenDuration is how long a freshly tripped circuit stays open
// before a health check is attempted (spec.md §4.5: "trips ... for 60s").
const circuitOpenDuration = 60 * time.Second

// healthCheckInterval is the periodic health-check cadence for servers in
// CircuitOpen state (spec.md §4.5: "health check at 300s").
const healthCheckInterval = 300 * time.Second

// minRequestsForCircuitDecision matches the Rust "need minimum requests for
// statistical significance" guard.
const minRequestsForCircuitDecision = 10

// ConnectionStats tracks one server's request history and health state.
type ConnectionStats struct {
	Requests, Successes, Failures uint64
	AvgRTT                        time.Duration
	LastSuccess, LastFailure      time.Time
	State                         State
	circuitUntil                  time.Time
}

// SuccessRate returns Successes/Requests, or 1.0 with no requests yet.
func (s *ConnectionStats) SuccessRate() float64 {
	if s.Requests == 0 {
		return 1.0
	}
	return float64(s.Successes) / float64(s.Requests)
}

func (s *ConnectionStats) shouldCircuitBreak() bool {
	if s.Requests < minRequestsForCircuitDecision {
		return false
	}
	recentFailure := !s.LastFailure.IsZero() && time.Since(s.LastFailure) < time.Minute
	return s.SuccessRate() < 0.5 && recentFailure
}

// update records one request's outcome using an exponential moving average
// for RTT (alpha=0.1, matching the Rust implementation).
func (s *ConnectionStats) update(success bool, rtt time.Duration) {
	s.Requests++
	if success {
		s.Successes++
		s.LastSuccess = time.Now()
	} else {
		s.Failures++
		s.LastFailure = time.Now()
	}
	if s.Requests == 1 {
		s.AvgRTT = rtt
	} else {
		s.AvgRTT = time.Duration(0.9*float64(s.AvgRTT) + 0.1*float64(rtt))
	}
}

type server struct {
	mu    sync.RWMutex
	stats ConnectionStats
	sem   *semaphore.Weighted
}

// Guard releases a server's connection permit exactly once; it is safe to
// call Release multiple times or under cancellation.
type Guard struct {
	sem  *semaphore.Weighted
	once sync.Once
}

// Release returns the permit to the pool.
func (g *Guard) Release() {
	g.once.Do(func() { g.sem.Release(1) })
}

// Config parameterises the pool.
type Config struct {
	MaxConnectionsPerHost int64
	Logger                logx.Logger
}

// Pool is a goroutine-safe registry of per-server connection state.
type Pool struct {
	mu      sync.RWMutex
	servers map[string]*server
	maxConn int64
	logger  logx.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// New constructs an empty Pool and starts its background health-check
// loop.
func New(cfg Config) *Pool {
	maxConn := cfg.MaxConnectionsPerHost
	if maxConn <= 0 {
		maxConn = 8
	}
	p := &Pool{
		servers: make(map[string]*server),
		maxConn: maxConn,
		logger:  logx.Coalesce(cfg.Logger),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	go p.healthCheckLoop()
	return p
}

// AddServer registers id (typically "host:scheme") for tracking.
func (p *Pool) AddServer(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.servers[id]; ok {
		return
	}
	p.servers[id] = &server{sem: semaphore.NewWeighted(p.maxConn)}
}

// Acquire returns a connection Guard for id, or an error if the circuit is
// open, the server is removed, or the connection limit is exhausted.
func (p *Pool) Acquire(ctx context.Context, id string) (*Guard, error) {
	p.mu.RLock()
	srv, ok := p.servers[id]
	p.mu.RUnlock()
	if !ok {
		p.AddServer(id)
		p.mu.RLock()
		srv = p.servers[id]
		p.mu.RUnlock()
	}

	srv.mu.RLock()
	state := srv.stats.State
	until := srv.stats.circuitUntil
	srv.mu.RUnlock()

	switch state {
	case Removed:
		return nil, &ServerUnavailableError{Server: id, Reason: "removed"}
	case CircuitOpen:
		if time.Now().Before(until) {
			return nil, &ServerUnavailableError{Server: id, Reason: "circuit open"}
		}
	case Checking:
		return nil, &ServerUnavailableError{Server: id, Reason: "health check in progress"}
	}

	if !srv.sem.TryAcquire(1) {
		return nil, &ConnectionLimitError{Server: id, Limit: p.maxConn}
	}
	return &Guard{sem: srv.sem}, nil
}

// RecordResult updates a server's statistics and trips the circuit breaker
// if the failure threshold is crossed.
func (p *Pool) RecordResult(id string, success bool, rtt time.Duration) {
	p.mu.RLock()
	srv, ok := p.servers[id]
	p.mu.RUnlock()
	if !ok {
		return
	}
	srv.mu.Lock()
	srv.stats.update(success, rtt)
	if !success && srv.stats.shouldCircuitBreak() {
		srv.stats.State = CircuitOpen
		srv.stats.circuitUntil = time.Now().Add(circuitOpenDuration)
		p.logger.Warn("circuit breaker tripped", logx.Fields{"server": id})
	}
	srv.mu.Unlock()
}

// Stats returns a snapshot of id's statistics.
func (p *Pool) Stats(id string) (ConnectionStats, bool) {
	p.mu.RLock()
	srv, ok := p.servers[id]
	p.mu.RUnlock()
	if !ok {
		return ConnectionStats{}, false
	}
	srv.mu.RLock()
	defer srv.mu.RUnlock()
	return srv.stats, true
}

// AllStats returns a snapshot of every tracked server's statistics.
func (p *Pool) AllStats() map[string]ConnectionStats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]ConnectionStats, len(p.servers))
	for id, srv := range p.servers {
		srv.mu.RLock()
		out[id] = srv.stats
		srv.mu.RUnlock()
	}
	return out
}

// RemoveServer permanently marks id as Removed.
func (p *Pool) RemoveServer(id string) {
	p.mu.RLock()
	srv, ok := p.servers[id]
	p.mu.RUnlock()
	if !ok {
		return
	}
	srv.mu.Lock()
	srv.stats.State = Removed
	srv.mu.Unlock()
}

// HealthCheck is a caller-driven probe: check reports whether id responded
// successfully. On success the circuit closes; on failure it reopens for a
// longer 300s window.
func (p *Pool) HealthCheck(id string, check func() error) {
	p.mu.RLock()
	srv, ok := p.servers[id]
	p.mu.RUnlock()
	if !ok {
		return
	}

	srv.mu.Lock()
	srv.stats.State = Checking
	srv.mu.Unlock()

	start := time.Now()
	err := check()
	rtt := time.Since(start)

	srv.mu.Lock()
	defer srv.mu.Unlock()
	srv.stats.update(err == nil, rtt)
	if err == nil {
		srv.stats.State = Healthy
		p.logger.Info("server healthy", logx.Fields{"server": id})
	} else {
		srv.stats.State = CircuitOpen
		srv.stats.circuitUntil = time.Now().Add(healthCheckInterval)
		p.logger.Warn("server failed health check", logx.Fields{"server": id, "error": err.Error()})
	}
}

func (p *Pool) healthCheckLoop() {
	defer close(p.doneCh)
	ticker := time.NewTicker(healthCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			// A caller-supplied probe function is required to actually
			// reach the network; without one this loop only advances
			// circuits whose open window has already elapsed so Acquire
			// can let the next real request through as a probe.
			p.mu.RLock()
			now := time.Now()
			for id, srv := range p.servers {
				srv.mu.Lock()
				if srv.stats.State == CircuitOpen && now.After(srv.stats.circuitUntil) {
					srv.stats.State = Healthy
					p.logger.Info("circuit cooldown elapsed", logx.Fields{"server": id})
				}
				srv.mu.Unlock()
			}
			p.mu.RUnlock()
		}
	}
}

// Shutdown stops the background loop, waiting up to 10s (spec.md §4.5
// "Graceful shutdown ... waits up to 10 s for in-flight work").
func (p *Pool) Shutdown(ctx context.Context) error {
	p.stopOnce.Do(func() { close(p.stopCh) })
	select {
	case <-p.doneCh:
		return nil
	case <-time.After(10 * time.Second):
		return &ShutdownTimeoutError{}
	case <-ctx.Done():
		return ctx.Err()
	}
}
