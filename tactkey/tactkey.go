// Package tactkey provides the symmetric-key lookup used by encrypted BLTE
// chunks. Persisting keys to a keyring is out of scope here (see spec
// Non-goals); this package only specifies lookup by 64-bit key name.
package tactkey

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Key is a 16-byte symmetric key identified by a 64-bit name.
type Key struct {
	Name  uint64
	Bytes [16]byte
}

// New constructs a Key, copying b into the fixed-size array.
func New(name uint64, b []byte) (Key, error) {
	if len(b) != 16 {
		return Key{}, fmt.Errorf("tactkey: key must be 16 bytes, got %d", len(b))
	}
	var k Key
	k.Name = name
	copy(k.Bytes[:], b)
	return k, nil
}

// Store resolves a key name to its 16-byte key material.
// Implementations MUST be safe for concurrent use. Per the spec's shared
// resource policy, a Store is immutable after initialisation (or
// copy-on-write); there is no Delete.
type Store interface {
	Lookup(name uint64) (Key, bool)
}

// MemoryStore is an immutable-after-construction in-memory Store.
type MemoryStore struct {
	keys map[uint64][16]byte
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore builds a Store from the given keys. The returned Store
// does not retain references to keys and is safe to use concurrently for
// reads for its entire lifetime.
func NewMemoryStore(keys ...Key) *MemoryStore {
	m := make(map[uint64][16]byte, len(keys))
	for _, k := range keys {
		m[k.Name] = k.Bytes
	}
	return &MemoryStore{keys: m}
}

// With returns a new Store with additional keys layered on top; the
// receiver is left unmodified (copy-on-write), per the spec's concurrency
// model for key stores.
func (s *MemoryStore) With(keys ...Key) *MemoryStore {
	m := make(map[uint64][16]byte, len(s.keys)+len(keys))
	for name, b := range s.keys {
		m[name] = b
	}
	for _, k := range keys {
		m[k.Name] = k.Bytes
	}
	return &MemoryStore{keys: m}
}

func (s *MemoryStore) Lookup(name uint64) (Key, bool) {
	b, ok := s.keys[name]
	if !ok {
		return Key{}, false
	}
	return Key{Name: name, Bytes: b}, true
}

// ParseLine parses a single "<16-hex-name> <32-hex-key>" line from a TACT
// key file (the common on-disk format shipped by community key trackers).
// Blank lines and lines starting with '#' are ignored by callers iterating
// a file; ParseLine itself only parses one non-empty, non-comment line.
func ParseLine(line string) (Key, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return Key{}, fmt.Errorf("tactkey: malformed line %q", line)
	}
	nameBytes, err := hex.DecodeString(fields[0])
	if err != nil || len(nameBytes) != 8 {
		return Key{}, fmt.Errorf("tactkey: bad key name %q: %w", fields[0], err)
	}
	var name uint64
	for _, b := range nameBytes {
		name = name<<8 | uint64(b)
	}
	keyBytes, err := hex.DecodeString(fields[1])
	if err != nil {
		return Key{}, fmt.Errorf("tactkey: bad key bytes %q: %w", fields[1], err)
	}
	return New(name, keyBytes)
}
