package cascstore

import "time"

// Hooks are lightweight callbacks for high-signal events raised while the
// client coordinates protocol, cache, archive, and install operations.
// Implementations MUST be cheap and non-blocking; if work may block, buffer
// it and drop on backpressure (see hooks/async).
type Hooks interface {
	TransportFallback(endpoint, from, to, reason string)
	CircuitOpen(server string, until time.Time)
	ArchiveCompacted(archivesCompacted int, bytesReclaimed int64)
	EncodingRebuildError(err error)
	ValidationFailure(key string, err error)
	InstallFileWarn(ckey string, err error)
	CacheEvicted(layer string, count int)
}

// NopHooks is a default no-op.
type NopHooks struct{}

func (NopHooks) TransportFallback(string, string, string, string) {}
func (NopHooks) CircuitOpen(string, time.Time)                    {}
func (NopHooks) ArchiveCompacted(int, int64)                      {}
func (NopHooks) EncodingRebuildError(error)                        {}
func (NopHooks) ValidationFailure(string, error)                   {}
func (NopHooks) InstallFileWarn(string, error)                     {}
func (NopHooks) CacheEvicted(string, int)                          {}

// Multi returns a Hooks that fans out to every provided Hooks, in order.
// Nil entries are ignored. Panics from a hook propagate to the caller.
func Multi(hs ...Hooks) Hooks {
	nn := make([]Hooks, 0, len(hs))
	for _, h := range hs {
		if h != nil {
			nn = append(nn, h)
		}
	}
	return multiHooks(nn)
}

type multiHooks []Hooks

func (m multiHooks) TransportFallback(endpoint, from, to, reason string) {
	for _, h := range m {
		h.TransportFallback(endpoint, from, to, reason)
	}
}
func (m multiHooks) CircuitOpen(server string, until time.Time) {
	for _, h := range m {
		h.CircuitOpen(server, until)
	}
}
func (m multiHooks) ArchiveCompacted(archivesCompacted int, bytesReclaimed int64) {
	for _, h := range m {
		h.ArchiveCompacted(archivesCompacted, bytesReclaimed)
	}
}
func (m multiHooks) EncodingRebuildError(err error) {
	for _, h := range m {
		h.EncodingRebuildError(err)
	}
}
func (m multiHooks) ValidationFailure(key string, err error) {
	for _, h := range m {
		h.ValidationFailure(key, err)
	}
}
func (m multiHooks) InstallFileWarn(ckey string, err error) {
	for _, h := range m {
		h.InstallFileWarn(ckey, err)
	}
}
func (m multiHooks) CacheEvicted(layer string, count int) {
	for _, h := range m {
		h.CacheEvicted(layer, count)
	}
}
