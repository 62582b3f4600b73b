package disk

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	l, err := New(Config{Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer l.Close(ctx)

	if err := l.Put(ctx, "k", []byte("value"), 0, 0); err != nil {
		t.Fatalf("Put: %v", err)
	}
	v, ok, err := l.Get(ctx, "k")
	if err != nil || !ok || string(v) != "value" {
		t.Fatalf("Get = %q, %v, %v", v, ok, err)
	}
}

func TestMissAndRemove(t *testing.T) {
	ctx := context.Background()
	l, err := New(Config{Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer l.Close(ctx)

	if _, ok, err := l.Get(ctx, "missing"); ok || err != nil {
		t.Fatalf("expected clean miss, got ok=%v err=%v", ok, err)
	}
	l.Put(ctx, "k", []byte("v"), 0, 0)
	if err := l.Remove(ctx, "k"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, ok, _ := l.Get(ctx, "k"); ok {
		t.Fatal("expected miss after Remove")
	}
}

func TestEnvelopeDetectsHashCollisionSelfHeal(t *testing.T) {
	ctx := context.Background()
	l, err := New(Config{Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer l.Close(ctx)

	if err := l.Put(ctx, "real-key", []byte("real-value"), 0, 0); err != nil {
		t.Fatalf("Put: %v", err)
	}
	// Simulate reading under a different key whose path happens to collide:
	// place real-key's stored file at the other key's path. The stored
	// envelope's key won't match, so Get must report a miss rather than
	// return another key's bytes.
	if _, value, ok := splitEnvelope(makeEnvelope("real-key", []byte("x"))); !ok || value == nil {
		t.Fatalf("splitEnvelope/makeEnvelope round trip failed")
	}
	stored, err := os.ReadFile(l.pathFor("real-key"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	collided := l.pathFor("different-key-with-same-path")
	if err := os.MkdirAll(filepath.Dir(collided), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(collided, stored, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, ok, err := l.Get(ctx, "different-key-with-same-path"); err != nil {
		t.Fatalf("Get: %v", err)
	} else if ok {
		t.Fatal("expected a miss when the stored envelope belongs to another key")
	}
}

func TestClearRemovesEverything(t *testing.T) {
	ctx := context.Background()
	l, err := New(Config{Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer l.Close(ctx)

	l.Put(ctx, "a", []byte("1"), 0, 0)
	l.Put(ctx, "b", []byte("2"), 0, 0)
	if err := l.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	stats, err := l.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Entries != 0 {
		t.Fatalf("expected 0 entries after Clear, got %d", stats.Entries)
	}
}
