// Package disk implements a filesystem-backed cache.Layer: each key maps to
// one file under a root directory, reads/writes are bounded by a weighted
// semaphore to cap concurrent file-descriptor and I/O pressure, and free
// disk space is checked before writes to avoid filling the volume
// (spec.md §4.4).
package disk

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/shirou/gopsutil/v3/disk"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sys/unix"

	"github.com/ngdp-go/cascstore/cache"
)

// Layer is a cache.Layer storing each value as one file under Dir.
type Layer struct {
	dir         string
	sem         *semaphore.Weighted
	minFreeByte uint64

	mu       sync.Mutex
	expireAt map[string]time.Time

	hits, misses, evictions atomic.Int64
}

var _ cache.Layer = (*Layer)(nil)

// Config configures a disk Layer.
type Config struct {
	Dir string
	// MaxConcurrentIO bounds simultaneous file operations; 0 selects 16.
	MaxConcurrentIO int64
	// MinFreeBytes refuses writes once the volume's free space would drop
	// below this threshold; 0 disables the check.
	MinFreeBytes uint64
}

// New constructs a disk Layer rooted at cfg.Dir, creating it if absent.
func New(cfg Config) (*Layer, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, err
	}
	concurrency := cfg.MaxConcurrentIO
	if concurrency <= 0 {
		concurrency = 16
	}
	return &Layer{
		dir:         cfg.Dir,
		sem:         semaphore.NewWeighted(concurrency),
		minFreeByte: cfg.MinFreeBytes,
		expireAt:    make(map[string]time.Time),
	}, nil
}

// pathFor maps an arbitrary cache key to a filesystem path, sharded by the
// first byte of its hash across 256 subdirectories. xxhash is
// non-cryptographic: two keys with the same 64-bit hash share one file, and
// the key envelope written by Put lets Get detect that and report a miss.
func (l *Layer) pathFor(key string) string {
	var buf [8]byte
	h := xxhash.Sum64String(key)
	for i := 0; i < 8; i++ {
		buf[i] = byte(h >> (56 - 8*i))
	}
	name := hex.EncodeToString(buf[:])
	return filepath.Join(l.dir, name[:2], name)
}

func (l *Layer) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if l.isExpired(key) {
		_ = l.Remove(ctx, key)
		l.misses.Add(1)
		return nil, false, nil
	}
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return nil, false, err
	}
	defer l.sem.Release(1)

	raw, err := os.ReadFile(l.pathFor(key))
	if os.IsNotExist(err) {
		l.misses.Add(1)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	storedKey, value, ok := splitEnvelope(raw)
	if !ok || storedKey != key {
		// 64-bit path hash collision between two different keys (or a
		// corrupt/truncated file): treat as a miss rather than risk
		// returning another key's bytes.
		l.misses.Add(1)
		return nil, false, nil
	}
	l.hits.Add(1)
	return value, true, nil
}

// envelope prefixes each stored file with its original key, so a 64-bit
// path-hash collision is detected on read instead of silently returning the
// wrong value.
func makeEnvelope(key string, value []byte) []byte {
	kb := []byte(key)
	buf := make([]byte, 4+len(kb)+len(value))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(kb)))
	copy(buf[4:], kb)
	copy(buf[4+len(kb):], value)
	return buf
}

func splitEnvelope(raw []byte) (key string, value []byte, ok bool) {
	if len(raw) < 4 {
		return "", nil, false
	}
	klen := int(binary.LittleEndian.Uint32(raw[0:4]))
	if 4+klen > len(raw) {
		return "", nil, false
	}
	return string(raw[4 : 4+klen]), raw[4+klen:], true
}

func (l *Layer) Put(ctx context.Context, key string, value []byte, _ int64, ttl time.Duration) error {
	if l.minFreeByte > 0 {
		if ok, err := l.hasFreeSpace(int64(len(value))); err != nil {
			return err
		} else if !ok {
			return &DiskFullError{Dir: l.dir, MinFree: l.minFreeByte}
		}
	}
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer l.sem.Release(1)

	path := l.pathFor(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, makeEnvelope(key, value), 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	if ttl > 0 {
		l.mu.Lock()
		l.expireAt[key] = time.Now().Add(ttl)
		l.mu.Unlock()
	}
	return nil
}

func (l *Layer) hasFreeSpace(additional int64) (bool, error) {
	usage, err := disk.Usage(l.dir)
	if err != nil {
		return false, err
	}
	return usage.Free > l.minFreeByte+uint64(additional), nil
}

func (l *Layer) isExpired(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	t, ok := l.expireAt[key]
	return ok && time.Now().After(t)
}

func (l *Layer) Contains(_ context.Context, key string) (bool, error) {
	if l.isExpired(key) {
		return false, nil
	}
	_, err := os.Stat(l.pathFor(key))
	if os.IsNotExist(err) {
		return false, nil
	}
	return err == nil, err
}

func (l *Layer) Remove(_ context.Context, key string) error {
	l.mu.Lock()
	delete(l.expireAt, key)
	l.mu.Unlock()
	err := os.Remove(l.pathFor(key))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (l *Layer) Clear(_ context.Context) error {
	l.mu.Lock()
	l.expireAt = make(map[string]time.Time)
	l.mu.Unlock()
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(l.dir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

func (l *Layer) Stats(_ context.Context) (cache.Stats, error) {
	var entries, bytes int64
	_ = filepath.Walk(l.dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		entries++
		bytes += info.Size()
		return nil
	})
	return cache.Stats{
		Entries:   entries,
		Bytes:     bytes,
		Hits:      l.hits.Load(),
		Misses:    l.misses.Load(),
		Evictions: l.evictions.Load(),
	}, nil
}

// Close syncs the directory entry so durable writes survive a crash.
func (l *Layer) Close(_ context.Context) error {
	d, err := os.Open(l.dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return unix.Fsync(int(d.Fd()))
}
