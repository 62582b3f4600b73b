package encoding

import (
	"crypto/md5"
	"os"

	"google.golang.org/protobuf/encoding/protowire"
)

// Checkpoint records a parsed File's header, ESpec table and page indexes
// together with the MD5 of the bytes it was parsed from, so a caller can
// persist them and later tell with Stale whether the backing file changed.
// Nothing in this package builds a File from a Checkpoint: Parse reads and
// MD5-verifies every page whether or not one exists.
type Checkpoint struct {
	SourceChecksum [16]byte
	Header         Header
	ESpecs         []string
	CKeyIndex      []IndexEntry
	EKeyIndex      []IndexEntry
}

// protobuf field numbers for Checkpoint, encoded directly via protowire
// rather than through generated .pb.go bindings.
const (
	fieldSourceChecksum = 1
	fieldHeader         = 2
	fieldESpecs         = 3
	fieldCKeyIndex      = 4
	fieldEKeyIndex      = 5

	// sub-message fields within Header.
	hdrVersion        = 1
	hdrCKeyHashSize   = 2
	hdrEKeyHashSize   = 3
	hdrCKeyPageSizeKB = 4
	hdrEKeyPageSizeKB = 5
	hdrCKeyPageCount  = 6
	hdrEKeyPageCount  = 7
	hdrFlags          = 8
	hdrESpecBlockSize = 9

	// sub-message fields within IndexEntry.
	idxFirstKey = 1
	idxChecksum = 2
)

// NewCheckpoint builds a Checkpoint from a parsed File and the raw bytes it
// was parsed from, so staleness can later be detected with Checkpoint.Stale.
func NewCheckpoint(f *File, sourceData []byte) *Checkpoint {
	c := &Checkpoint{
		SourceChecksum: md5.Sum(sourceData),
		Header:         f.Header,
		CKeyIndex:      f.CKeyIndex,
		EKeyIndex:      f.EKeyIndex,
	}
	for i := 0; i < f.ESpecs.Len(); i++ {
		s, _ := f.ESpecs.Get(uint32(i))
		c.ESpecs = append(c.ESpecs, s)
	}
	return c
}

// Stale reports whether sourceData no longer matches the checkpoint.
func (c *Checkpoint) Stale(sourceData []byte) bool {
	return md5.Sum(sourceData) != c.SourceChecksum
}

func marshalHeader(h Header) []byte {
	var b []byte
	b = protowire.AppendTag(b, hdrVersion, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(h.Version))
	b = protowire.AppendTag(b, hdrCKeyHashSize, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(h.CKeyHashSize))
	b = protowire.AppendTag(b, hdrEKeyHashSize, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(h.EKeyHashSize))
	b = protowire.AppendTag(b, hdrCKeyPageSizeKB, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(h.CKeyPageSizeKB))
	b = protowire.AppendTag(b, hdrEKeyPageSizeKB, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(h.EKeyPageSizeKB))
	b = protowire.AppendTag(b, hdrCKeyPageCount, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(h.CKeyPageCount))
	b = protowire.AppendTag(b, hdrEKeyPageCount, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(h.EKeyPageCount))
	b = protowire.AppendTag(b, hdrFlags, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(h.Flags))
	b = protowire.AppendTag(b, hdrESpecBlockSize, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(h.ESpecBlockSize))
	return b
}

func unmarshalHeader(b []byte) (Header, error) {
	var h Header
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return h, protowire.ParseError(n)
		}
		b = b[n:]
		v, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return h, protowire.ParseError(n)
		}
		b = b[n:]
		if typ != protowire.VarintType {
			continue
		}
		switch num {
		case hdrVersion:
			h.Version = uint8(v)
		case hdrCKeyHashSize:
			h.CKeyHashSize = uint8(v)
		case hdrEKeyHashSize:
			h.EKeyHashSize = uint8(v)
		case hdrCKeyPageSizeKB:
			h.CKeyPageSizeKB = uint16(v)
		case hdrEKeyPageSizeKB:
			h.EKeyPageSizeKB = uint16(v)
		case hdrCKeyPageCount:
			h.CKeyPageCount = uint32(v)
		case hdrEKeyPageCount:
			h.EKeyPageCount = uint32(v)
		case hdrFlags:
			h.Flags = uint8(v)
		case hdrESpecBlockSize:
			h.ESpecBlockSize = uint32(v)
		}
	}
	return h, nil
}

func marshalIndexEntry(e IndexEntry) []byte {
	var b []byte
	b = protowire.AppendTag(b, idxFirstKey, protowire.BytesType)
	b = protowire.AppendBytes(b, e.FirstKey[:])
	b = protowire.AppendTag(b, idxChecksum, protowire.BytesType)
	b = protowire.AppendBytes(b, e.Checksum[:])
	return b
}

func unmarshalIndexEntry(b []byte) (IndexEntry, error) {
	var e IndexEntry
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return e, protowire.ParseError(n)
		}
		b = b[n:]
		if typ != protowire.BytesType {
			continue
		}
		v, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return e, protowire.ParseError(n)
		}
		b = b[n:]
		switch num {
		case idxFirstKey:
			copy(e.FirstKey[:], v)
		case idxChecksum:
			copy(e.Checksum[:], v)
		}
	}
	return e, nil
}

// Marshal encodes the checkpoint using hand-written protobuf wire
// primitives (no generated .pb.go bindings are part of this module).
func (c *Checkpoint) Marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldSourceChecksum, protowire.BytesType)
	b = protowire.AppendBytes(b, c.SourceChecksum[:])

	b = protowire.AppendTag(b, fieldHeader, protowire.BytesType)
	b = protowire.AppendBytes(b, marshalHeader(c.Header))

	for _, s := range c.ESpecs {
		b = protowire.AppendTag(b, fieldESpecs, protowire.BytesType)
		b = protowire.AppendString(b, s)
	}
	for _, e := range c.CKeyIndex {
		b = protowire.AppendTag(b, fieldCKeyIndex, protowire.BytesType)
		b = protowire.AppendBytes(b, marshalIndexEntry(e))
	}
	for _, e := range c.EKeyIndex {
		b = protowire.AppendTag(b, fieldEKeyIndex, protowire.BytesType)
		b = protowire.AppendBytes(b, marshalIndexEntry(e))
	}
	return b
}

// UnmarshalCheckpoint decodes bytes previously produced by Marshal.
func UnmarshalCheckpoint(data []byte) (*Checkpoint, error) {
	c := &Checkpoint{}
	b := data
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		b = b[n:]
		if typ != protowire.BytesType {
			return nil, &TruncatedError{Detail: "checkpoint field"}
		}
		v, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		b = b[n:]
		switch num {
		case fieldSourceChecksum:
			copy(c.SourceChecksum[:], v)
		case fieldHeader:
			h, err := unmarshalHeader(v)
			if err != nil {
				return nil, err
			}
			c.Header = h
		case fieldESpecs:
			c.ESpecs = append(c.ESpecs, string(v))
		case fieldCKeyIndex:
			e, err := unmarshalIndexEntry(v)
			if err != nil {
				return nil, err
			}
			c.CKeyIndex = append(c.CKeyIndex, e)
		case fieldEKeyIndex:
			e, err := unmarshalIndexEntry(v)
			if err != nil {
				return nil, err
			}
			c.EKeyIndex = append(c.EKeyIndex, e)
		}
	}
	return c, nil
}

// SaveCheckpoint writes c's wire encoding to path.
func SaveCheckpoint(path string, c *Checkpoint) error {
	return os.WriteFile(path, c.Marshal(), 0o644)
}

// LoadCheckpoint reads and decodes a checkpoint previously written by
// SaveCheckpoint.
func LoadCheckpoint(path string) (*Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return UnmarshalCheckpoint(data)
}
