// Package archive persists BLTE-encoded blobs across a set of fixed-name
// data.NNN files, each capped at 256 GiB, with random read via a memory
// map and atomic append writes (spec.md §4.2/§6).
package archive

import "encoding/binary"

// HeaderSize is the fixed size of a local archive header in bytes.
const HeaderSize = 30

// LocalHeader precedes every blob stored in a data.NNN archive file
// (spec.md §6 "Local archive header").
type LocalHeader struct {
	EKey     [16]byte // MD5 of the BLTE bytes that follow
	Size     uint32   // total size including this header, little-endian
	Flags    uint16   // opaque; never interpreted by this package
	Checksum uint32   // rolling checksum; not enforced on read
	Reserved uint32   // reserved / jenkins hash of header
}

// NewLocalHeader builds a header for a blob of bleLen BLTE-encoded bytes.
func NewLocalHeader(ekey [16]byte, bleLen uint32) LocalHeader {
	return LocalHeader{EKey: ekey, Size: HeaderSize + bleLen}
}

// MarshalBinary encodes h into its 30-byte on-wire form.
func (h LocalHeader) MarshalBinary() []byte {
	buf := make([]byte, HeaderSize)
	copy(buf[0:16], h.EKey[:])
	binary.LittleEndian.PutUint32(buf[16:20], h.Size)
	binary.LittleEndian.PutUint16(buf[20:22], h.Flags)
	binary.LittleEndian.PutUint32(buf[22:26], h.Checksum)
	binary.LittleEndian.PutUint32(buf[26:30], h.Reserved)
	return buf
}

// ParseLocalHeader reads a LocalHeader from the first HeaderSize bytes of b.
func ParseLocalHeader(b []byte) (LocalHeader, error) {
	if len(b) < HeaderSize {
		return LocalHeader{}, &TruncatedHeaderError{Got: len(b)}
	}
	var h LocalHeader
	copy(h.EKey[:], b[0:16])
	h.Size = binary.LittleEndian.Uint32(b[16:20])
	h.Flags = binary.LittleEndian.Uint16(b[20:22])
	h.Checksum = binary.LittleEndian.Uint32(b[22:26])
	h.Reserved = binary.LittleEndian.Uint32(b[26:30])
	return h, nil
}
