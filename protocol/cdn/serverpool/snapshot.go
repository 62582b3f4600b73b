package serverpool

import (
	"os"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// snapshotStats is the on-wire shape for a persisted pool snapshot; it
// excludes the unexported circuitUntil field and re-derives it from
// CircuitUntilUnix on load.
type snapshotStats struct {
	ID               string    `msgpack:"id"`
	Requests         uint64    `msgpack:"requests"`
	Successes        uint64    `msgpack:"successes"`
	Failures         uint64    `msgpack:"failures"`
	AvgRTTMillis     int64     `msgpack:"avg_rtt_ms"`
	LastSuccessUnix  int64     `msgpack:"last_success_unix"`
	LastFailureUnix  int64     `msgpack:"last_failure_unix"`
	State            State     `msgpack:"state"`
	CircuitUntilUnix int64     `msgpack:"circuit_until_unix"`
}

// SaveSnapshot persists every tracked server's statistics to path so a
// restarted process can warm-start its circuit-breaker state instead of
// treating every server as freshly Healthy (avoiding a thundering herd of
// retries against a host that was already known-bad).
func (p *Pool) SaveSnapshot(path string) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]snapshotStats, 0, len(p.servers))
	for id, srv := range p.servers {
		srv.mu.RLock()
		s := srv.stats
		srv.mu.RUnlock()
		ss := snapshotStats{
			ID:           id,
			Requests:     s.Requests,
			Successes:    s.Successes,
			Failures:     s.Failures,
			AvgRTTMillis: s.AvgRTT.Milliseconds(),
			State:        s.State,
		}
		if !s.LastSuccess.IsZero() {
			ss.LastSuccessUnix = s.LastSuccess.Unix()
		}
		if !s.LastFailure.IsZero() {
			ss.LastFailureUnix = s.LastFailure.Unix()
		}
		if !s.circuitUntil.IsZero() {
			ss.CircuitUntilUnix = s.circuitUntil.Unix()
		}
		out = append(out, ss)
	}

	data, err := msgpack.Marshal(out)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// LoadSnapshot restores server statistics saved by SaveSnapshot, seeding
// AddServer for any server not already tracked. A server whose persisted
// circuit window already elapsed is restored as Healthy.
func (p *Pool) LoadSnapshot(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	var in []snapshotStats
	if err := msgpack.Unmarshal(data, &in); err != nil {
		return err
	}

	now := time.Now()
	for _, ss := range in {
		p.AddServer(ss.ID)
		p.mu.RLock()
		srv := p.servers[ss.ID]
		p.mu.RUnlock()

		srv.mu.Lock()
		srv.stats.Requests = ss.Requests
		srv.stats.Successes = ss.Successes
		srv.stats.Failures = ss.Failures
		srv.stats.AvgRTT = time.Duration(ss.AvgRTTMillis) * time.Millisecond
		if ss.LastSuccessUnix != 0 {
			srv.stats.LastSuccess = time.Unix(ss.LastSuccessUnix, 0)
		}
		if ss.LastFailureUnix != 0 {
			srv.stats.LastFailure = time.Unix(ss.LastFailureUnix, 0)
		}
		srv.stats.State = ss.State
		if ss.CircuitUntilUnix != 0 {
			until := time.Unix(ss.CircuitUntilUnix, 0)
			if now.After(until) {
				srv.stats.State = Healthy
			} else {
				srv.stats.circuitUntil = until
			}
		}
		srv.mu.Unlock()
	}
	return nil
}
