// Package async wraps a cascstore.Hooks implementation with a bounded
// worker queue so hook invocations never block the calling operation.
package async

import (
	"sync"
	"time"

	"github.com/ngdp-go/cascstore"
)

type Hooks struct {
	inner cascstore.Hooks
	q     chan func()
	wg    sync.WaitGroup
	once  sync.Once
}

var _ cascstore.Hooks = (*Hooks)(nil)

// New starts workers goroutines draining a queue of length qlen, each
// invoking inner's methods. Events are dropped (never blocked on) once the
// queue is full.
func New(inner cascstore.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}
	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close stops accepting new work and waits for queued work to drain.
func (h *Hooks) Close() {
	h.once.Do(func() {
		close(h.q)
		h.wg.Wait()
	})
}

func (h *Hooks) try(f func()) {
	select {
	case h.q <- f:
	default: // drop
	}
}

func (h *Hooks) TransportFallback(endpoint, from, to, reason string) {
	h.try(func() { h.inner.TransportFallback(endpoint, from, to, reason) })
}
func (h *Hooks) CircuitOpen(server string, until time.Time) {
	h.try(func() { h.inner.CircuitOpen(server, until) })
}
func (h *Hooks) ArchiveCompacted(archivesCompacted int, bytesReclaimed int64) {
	h.try(func() { h.inner.ArchiveCompacted(archivesCompacted, bytesReclaimed) })
}
func (h *Hooks) EncodingRebuildError(err error) {
	h.try(func() { h.inner.EncodingRebuildError(err) })
}
func (h *Hooks) ValidationFailure(key string, err error) {
	h.try(func() { h.inner.ValidationFailure(key, err) })
}
func (h *Hooks) InstallFileWarn(ckey string, err error) {
	h.try(func() { h.inner.InstallFileWarn(ckey, err) })
}
func (h *Hooks) CacheEvicted(layer string, count int) {
	h.try(func() { h.inner.CacheEvicted(layer, count) })
}
