// Package encoding implements the paged, sorted CKey/EKey index: the table
// that maps a file's content key to the encoding keys of its encoded forms,
// and each encoding key back to the ESpec recipe and size used to produce it
// (spec.md §4.3, §6, §8).
package encoding

import "encoding/binary"

// HeaderSize is the fixed 22-byte header preceding the ESpec block.
const HeaderSize = 22

var magic = [2]byte{'E', 'N'}

// Header describes page layout and counts for both index halves.
type Header struct {
	Version        uint8
	CKeyHashSize   uint8
	EKeyHashSize   uint8
	CKeyPageSizeKB uint16
	EKeyPageSizeKB uint16
	CKeyPageCount  uint32
	EKeyPageCount  uint32
	Flags          uint8
	ESpecBlockSize uint32
}

// MarshalBinary encodes h into its 22-byte on-wire form, big-endian.
func (h Header) MarshalBinary() []byte {
	buf := make([]byte, HeaderSize)
	buf[0], buf[1] = magic[0], magic[1]
	buf[2] = h.Version
	buf[3] = h.CKeyHashSize
	buf[4] = h.EKeyHashSize
	binary.BigEndian.PutUint16(buf[5:7], h.CKeyPageSizeKB)
	binary.BigEndian.PutUint16(buf[7:9], h.EKeyPageSizeKB)
	binary.BigEndian.PutUint32(buf[9:13], h.CKeyPageCount)
	binary.BigEndian.PutUint32(buf[13:17], h.EKeyPageCount)
	buf[17] = h.Flags
	binary.BigEndian.PutUint32(buf[18:22], h.ESpecBlockSize)
	return buf
}

// ParseHeader reads a Header from the first HeaderSize bytes of b.
func ParseHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, &TruncatedError{Detail: "header", Got: len(b), Want: HeaderSize}
	}
	if b[0] != magic[0] || b[1] != magic[1] {
		return Header{}, &InvalidMagicError{Got: [2]byte{b[0], b[1]}}
	}
	h := Header{
		Version:        b[2],
		CKeyHashSize:   b[3],
		EKeyHashSize:   b[4],
		CKeyPageSizeKB: binary.BigEndian.Uint16(b[5:7]),
		EKeyPageSizeKB: binary.BigEndian.Uint16(b[7:9]),
		CKeyPageCount:  binary.BigEndian.Uint32(b[9:13]),
		EKeyPageCount:  binary.BigEndian.Uint32(b[13:17]),
		Flags:          b[17],
		ESpecBlockSize: binary.BigEndian.Uint32(b[18:22]),
	}
	if h.Version != 1 {
		return Header{}, &UnsupportedVersionError{Version: h.Version}
	}
	if h.CKeyHashSize != 16 {
		return Header{}, &InvalidHeaderFieldError{Field: "ckey hash size", Got: int(h.CKeyHashSize)}
	}
	if h.EKeyHashSize != 16 {
		return Header{}, &InvalidHeaderFieldError{Field: "ekey hash size", Got: int(h.EKeyHashSize)}
	}
	if !isValidPageSizeKB(h.CKeyPageSizeKB) {
		return Header{}, &InvalidHeaderFieldError{Field: "ckey page size (KiB)", Got: int(h.CKeyPageSizeKB)}
	}
	if !isValidPageSizeKB(h.EKeyPageSizeKB) {
		return Header{}, &InvalidHeaderFieldError{Field: "ekey page size (KiB)", Got: int(h.EKeyPageSizeKB)}
	}
	return h, nil
}

func isValidPageSizeKB(kb uint16) bool {
	return kb == 4 || kb == 8 || kb == 16
}

// putUint40 writes a 40-bit big-endian file size, the on-wire width used by
// both CKey and EKey page entries.
func putUint40(buf []byte, v uint64) {
	buf[0] = byte(v >> 32)
	buf[1] = byte(v >> 24)
	buf[2] = byte(v >> 16)
	buf[3] = byte(v >> 8)
	buf[4] = byte(v)
}

func getUint40(buf []byte) uint64 {
	return uint64(buf[0])<<32 | uint64(buf[1])<<24 | uint64(buf[2])<<16 | uint64(buf[3])<<8 | uint64(buf[4])
}
