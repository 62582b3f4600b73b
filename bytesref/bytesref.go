// Package bytesref provides a refcounted, immutable shared byte slice: the
// zero-copy handle passed from cache to decoder to caller (spec.md §9).
package bytesref

import "sync/atomic"

type shared struct {
	data    []byte
	count   atomic.Int32
	release func()
}

// Bytes is a cheap-to-copy handle onto an immutable byte slice. The
// underlying storage is released (via an optional release callback — e.g.
// unmapping an archive's mmap region) only once every outstanding handle has
// been released. The zero value is an empty handle with no storage: Len is
// 0, Bytes is nil, and Retain/Release do nothing. Construct a real handle
// with New or Wrap.
type Bytes struct {
	s *shared
}

// New wraps data in a Bytes with a single outstanding reference and no
// release callback; data must not be mutated by the caller afterward.
func New(data []byte) Bytes {
	return Wrap(data, nil)
}

// Wrap wraps data in a Bytes, calling release (if non-nil) exactly once,
// when the last outstanding reference is released.
func Wrap(data []byte, release func()) Bytes {
	s := &shared{data: data, release: release}
	s.count.Store(1)
	return Bytes{s: s}
}

// Len returns the length of the underlying slice.
func (b Bytes) Len() int {
	if b.s == nil {
		return 0
	}
	return len(b.s.data)
}

// Bytes returns the underlying slice. The caller must not mutate it and must
// not retain it beyond the lifetime of this handle or any Retain()'d copy.
func (b Bytes) Bytes() []byte {
	if b.s == nil {
		return nil
	}
	return b.s.data
}

// Retain returns a new handle onto the same storage, incrementing the
// refcount. Each Retain'd handle must eventually be Release'd independently.
func (b Bytes) Retain() Bytes {
	if b.s == nil {
		return b
	}
	b.s.count.Add(1)
	return b
}

// Release decrements the refcount, invoking the release callback when it
// reaches zero. Calling Release more than once per handle (including the
// one returned by New/Wrap) is a caller error; Retain first if another
// owner needs its own handle.
func (b Bytes) Release() {
	if b.s == nil {
		return
	}
	if b.s.count.Add(-1) == 0 && b.s.release != nil {
		b.s.release()
	}
}

// IsZero reports whether b is the zero value (no underlying storage).
func (b Bytes) IsZero() bool { return b.s == nil }
