package encoding

import "crypto/md5"

// IndexEntry locates one page: the first key it holds and the MD5 of its
// (fixed-size, zero-padded) on-wire bytes, enabling binary search over pages
// followed by an MD5-verified load of only the matching page.
type IndexEntry struct {
	FirstKey [16]byte
	Checksum [16]byte
}

// CKeyEntry is one row of a CKey page: a file's content key, its
// uncompressed size, and the encoding keys of its encoded forms (normally
// one, more if multiple encodings of the same content coexist).
type CKeyEntry struct {
	ContentKey   [16]byte
	FileSize     uint64 // 40-bit on the wire
	EncodingKeys [][16]byte
}

func (e CKeyEntry) firstKey() [16]byte { return e.ContentKey }

func (e CKeyEntry) wireSize() int { return 1 + 5 + 16 + 16*len(e.EncodingKeys) }

func (e CKeyEntry) marshal(buf []byte) []byte {
	buf = append(buf, byte(len(e.EncodingKeys)))
	sizeBuf := make([]byte, 5)
	putUint40(sizeBuf, e.FileSize)
	buf = append(buf, sizeBuf...)
	buf = append(buf, e.ContentKey[:]...)
	for _, ek := range e.EncodingKeys {
		buf = append(buf, ek[:]...)
	}
	return buf
}

func parseCKeyEntry(b []byte) (CKeyEntry, int, bool) {
	if len(b) < 1 || b[0] == 0 {
		return CKeyEntry{}, 0, false
	}
	count := int(b[0])
	need := 1 + 5 + 16 + 16*count
	if len(b) < need {
		return CKeyEntry{}, 0, false
	}
	var e CKeyEntry
	e.FileSize = getUint40(b[1:6])
	copy(e.ContentKey[:], b[6:22])
	e.EncodingKeys = make([][16]byte, count)
	for i := 0; i < count; i++ {
		copy(e.EncodingKeys[i][:], b[22+i*16:22+(i+1)*16])
	}
	return e, need, true
}

// EKeyEntry is one row of an EKey page: an encoding key, the index of its
// ESpec string in the file's ESpec table, and the encoded size on disk.
type EKeyEntry struct {
	EncodingKey [16]byte
	ESpecIndex  uint32
	FileSize    uint64 // 40-bit on the wire
}

func (e EKeyEntry) firstKey() [16]byte { return e.EncodingKey }

func (e EKeyEntry) wireSize() int { return 16 + 4 + 5 }

func (e EKeyEntry) marshal(buf []byte) []byte {
	buf = append(buf, e.EncodingKey[:]...)
	var idxBuf [4]byte
	idxBuf[0] = byte(e.ESpecIndex >> 24)
	idxBuf[1] = byte(e.ESpecIndex >> 16)
	idxBuf[2] = byte(e.ESpecIndex >> 8)
	idxBuf[3] = byte(e.ESpecIndex)
	buf = append(buf, idxBuf[:]...)
	sizeBuf := make([]byte, 5)
	putUint40(sizeBuf, e.FileSize)
	buf = append(buf, sizeBuf...)
	return buf
}

func parseEKeyEntry(b []byte) (EKeyEntry, int, bool) {
	const need = 16 + 4 + 5
	if len(b) < need {
		return EKeyEntry{}, 0, false
	}
	var e EKeyEntry
	copy(e.EncodingKey[:], b[0:16])
	allZero := true
	for _, c := range b[0:16] {
		if c != 0 {
			allZero = false
			break
		}
	}
	if allZero {
		return EKeyEntry{}, 0, false
	}
	e.ESpecIndex = uint32(b[16])<<24 | uint32(b[17])<<16 | uint32(b[18])<<8 | uint32(b[19])
	e.FileSize = getUint40(b[20:25])
	return e, need, true
}

// pageEntry is implemented by CKeyEntry and EKeyEntry: both can report the
// key used to order and binary-search their page.
type pageEntry interface {
	firstKey() [16]byte
}

// page is one serialized, fixed-size, zero-padded page of either entry kind.
type page[T pageEntry] struct {
	entries []T
	raw     []byte // the exact on-wire bytes, zero-padded to the page size
}

func checksumPage(raw []byte) [16]byte { return md5.Sum(raw) }
