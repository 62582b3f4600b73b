package serverpool

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func TestAcquireReleaseRoundTrip(t *testing.T) {
	p := New(Config{MaxConnectionsPerHost: 1})
	defer p.Shutdown(context.Background())

	g, err := p.Acquire(context.Background(), "host-a")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if _, err := p.Acquire(context.Background(), "host-a"); err == nil {
		t.Fatal("expected connection limit error while permit is held")
	}
	g.Release()
	if _, err := p.Acquire(context.Background(), "host-a"); err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
}

func TestCircuitBreakerTripsOnSustainedFailure(t *testing.T) {
	p := New(Config{})
	defer p.Shutdown(context.Background())
	p.AddServer("bad-host")

	for i := 0; i < 9; i++ {
		p.RecordResult("bad-host", false, time.Millisecond)
	}
	// 9 failures so far: below the 10-request significance threshold.
	if _, err := p.Acquire(context.Background(), "bad-host"); err != nil {
		t.Fatalf("Acquire before threshold: %v", err)
	}
	p.RecordResult("bad-host", false, time.Millisecond)

	if _, err := p.Acquire(context.Background(), "bad-host"); err == nil {
		t.Fatal("expected circuit breaker to trip after 10 failing requests")
	}
}

func TestCircuitStaysClosedWithMostlySuccess(t *testing.T) {
	p := New(Config{})
	defer p.Shutdown(context.Background())
	p.AddServer("good-host")

	for i := 0; i < 9; i++ {
		p.RecordResult("good-host", true, time.Millisecond)
	}
	p.RecordResult("good-host", false, time.Millisecond)

	if _, err := p.Acquire(context.Background(), "good-host"); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
}

func TestHealthCheckRecoversCircuit(t *testing.T) {
	p := New(Config{})
	defer p.Shutdown(context.Background())
	p.AddServer("flaky-host")
	for i := 0; i < 10; i++ {
		p.RecordResult("flaky-host", false, time.Millisecond)
	}
	if _, err := p.Acquire(context.Background(), "flaky-host"); err == nil {
		t.Fatal("expected circuit open")
	}

	p.HealthCheck("flaky-host", func() error { return nil })
	if _, err := p.Acquire(context.Background(), "flaky-host"); err != nil {
		t.Fatalf("Acquire after successful health check: %v", err)
	}
}

func TestHealthCheckFailureReopensCircuit(t *testing.T) {
	p := New(Config{})
	defer p.Shutdown(context.Background())
	p.AddServer("still-bad")
	p.HealthCheck("still-bad", func() error { return errors.New("refused") })

	stats, ok := p.Stats("still-bad")
	if !ok || stats.State != CircuitOpen {
		t.Fatalf("Stats = %+v, ok=%v, want CircuitOpen", stats, ok)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	p := New(Config{})
	defer p.Shutdown(context.Background())
	p.AddServer("a")
	p.RecordResult("a", true, 20*time.Millisecond)
	p.RecordResult("a", false, 30*time.Millisecond)

	path := filepath.Join(t.TempDir(), "pool.msgpack")
	if err := p.SaveSnapshot(path); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	p2 := New(Config{})
	defer p2.Shutdown(context.Background())
	if err := p2.LoadSnapshot(path); err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	stats, ok := p2.Stats("a")
	if !ok || stats.Requests != 2 || stats.Successes != 1 || stats.Failures != 1 {
		t.Fatalf("Stats after load = %+v, ok=%v", stats, ok)
	}
}

func TestRemoveServerPermanentlyUnavailable(t *testing.T) {
	p := New(Config{})
	defer p.Shutdown(context.Background())
	p.AddServer("gone")
	p.RemoveServer("gone")
	if _, err := p.Acquire(context.Background(), "gone"); err == nil {
		t.Fatal("expected removed server to be unavailable")
	}
}
