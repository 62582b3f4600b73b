package encoding

import "bytes"

// ESpecTable holds the unique ESpec strings referenced by a file's EKey
// pages, stored once and referenced by index to avoid repeating long
// block-table specs for every entry.
type ESpecTable struct {
	entries []string
	index   map[string]uint32
}

// NewESpecTable returns an empty table.
func NewESpecTable() *ESpecTable {
	return &ESpecTable{index: make(map[string]uint32)}
}

// Add inserts espec if not already present and returns its index.
func (t *ESpecTable) Add(espec string) uint32 {
	if idx, ok := t.index[espec]; ok {
		return idx
	}
	idx := uint32(len(t.entries))
	t.entries = append(t.entries, espec)
	t.index[espec] = idx
	return idx
}

// Get returns the ESpec string at idx.
func (t *ESpecTable) Get(idx uint32) (string, bool) {
	if int(idx) >= len(t.entries) {
		return "", false
	}
	return t.entries[idx], true
}

// Len returns the number of distinct ESpec strings held.
func (t *ESpecTable) Len() int { return len(t.entries) }

// Build serializes the table as NUL-terminated strings, concatenated in
// insertion order.
func (t *ESpecTable) Build() []byte {
	var buf bytes.Buffer
	for _, s := range t.entries {
		buf.WriteString(s)
		buf.WriteByte(0)
	}
	return buf.Bytes()
}

// ParseESpecTable splits a NUL-terminated ESpec block back into a table.
func ParseESpecTable(b []byte) *ESpecTable {
	t := NewESpecTable()
	start := 0
	for i, c := range b {
		if c == 0 {
			t.Add(string(b[start:i]))
			start = i + 1
		}
	}
	return t
}
