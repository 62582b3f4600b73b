package encoding

import (
	"bytes"
	"sort"
)

// File is a fully parsed encoding index: the paged CKey→EKey and
// EKey→ESpec tables plus their page indices and shared ESpec table.
type File struct {
	Header        Header
	ESpecs        *ESpecTable
	CKeyIndex     []IndexEntry
	CKeyPages     []page[CKeyEntry]
	EKeyIndex     []IndexEntry
	EKeyPages     []page[EKeyEntry]
	TrailingESpec string
}

// Parse decodes a full encoding file (spec.md §4.3's on-wire layout:
// header, ESpec block, CKey index+pages, EKey index+pages).
func Parse(data []byte) (*File, error) {
	hdr, err := ParseHeader(data)
	if err != nil {
		return nil, err
	}
	off := HeaderSize

	if off+int(hdr.ESpecBlockSize) > len(data) {
		return nil, &TruncatedError{Detail: "espec block", Got: len(data) - off, Want: int(hdr.ESpecBlockSize)}
	}
	especs := ParseESpecTable(data[off : off+int(hdr.ESpecBlockSize)])
	off += int(hdr.ESpecBlockSize)

	ckeyIdx, n, err := parseIndexEntries(data[off:], int(hdr.CKeyPageCount))
	if err != nil {
		return nil, err
	}
	off += n

	ckeyPageSize := int(hdr.CKeyPageSizeKB) * 1024
	ckeyPages, n, err := parsePages[CKeyEntry](data[off:], int(hdr.CKeyPageCount), ckeyPageSize, ckeyIdx, parseCKeyEntry)
	if err != nil {
		return nil, err
	}
	off += n

	ekeyIdx, n, err := parseIndexEntries(data[off:], int(hdr.EKeyPageCount))
	if err != nil {
		return nil, err
	}
	off += n

	ekeyPageSize := int(hdr.EKeyPageSizeKB) * 1024
	ekeyPages, n, err := parsePages[EKeyEntry](data[off:], int(hdr.EKeyPageCount), ekeyPageSize, ekeyIdx, parseEKeyEntry)
	if err != nil {
		return nil, err
	}
	off += n

	f := &File{
		Header:    hdr,
		ESpecs:    especs,
		CKeyIndex: ckeyIdx,
		CKeyPages: ckeyPages,
		EKeyIndex: ekeyIdx,
		EKeyPages: ekeyPages,
	}
	if off < len(data) {
		f.TrailingESpec = string(bytes.TrimRight(data[off:], "\x00"))
	}
	return f, nil
}

func parseIndexEntries(b []byte, count int) ([]IndexEntry, int, error) {
	const entrySize = 32
	need := count * entrySize
	if len(b) < need {
		return nil, 0, &TruncatedError{Detail: "page index", Got: len(b), Want: need}
	}
	out := make([]IndexEntry, count)
	for i := 0; i < count; i++ {
		copy(out[i].FirstKey[:], b[i*entrySize:i*entrySize+16])
		copy(out[i].Checksum[:], b[i*entrySize+16:i*entrySize+32])
	}
	return out, need, nil
}

func parsePages[T pageEntry](b []byte, count, pageSize int, idx []IndexEntry, parseEntry func([]byte) (T, int, bool)) ([]page[T], int, error) {
	need := count * pageSize
	if len(b) < need {
		return nil, 0, &TruncatedError{Detail: "pages", Got: len(b), Want: need}
	}
	pages := make([]page[T], count)
	for i := 0; i < count; i++ {
		raw := b[i*pageSize : (i+1)*pageSize]
		if sum := checksumPage(raw); sum != idx[i].Checksum {
			return nil, 0, &PageChecksumMismatchError{Page: i, Expected: idx[i].Checksum, Actual: sum}
		}
		var entries []T
		pos := 0
		for pos < len(raw) {
			e, n, ok := parseEntry(raw[pos:])
			if !ok {
				break
			}
			entries = append(entries, e)
			pos += n
		}
		if len(entries) > 0 && entries[0].firstKey() != idx[i].FirstKey {
			return nil, 0, &InvalidIndexError{
				Page:   i,
				Reason: "first entry key does not match the page index's first_key",
			}
		}
		for j := 1; j < len(entries); j++ {
			prev, cur := entries[j-1].firstKey(), entries[j].firstKey()
			if bytes.Compare(cur[:], prev[:]) <= 0 {
				return nil, 0, &InvalidIndexError{
					Page:   i,
					Reason: "entries are not in strict ascending key order",
				}
			}
		}
		pages[i] = page[T]{entries: entries, raw: raw}
	}
	return pages, need, nil
}

// Build serializes f back into the on-wire encoding-file format.
func (f *File) Build() []byte {
	var buf bytes.Buffer
	especData := f.ESpecs.Build()

	hdr := f.Header
	hdr.ESpecBlockSize = uint32(len(especData))
	hdr.CKeyPageCount = uint32(len(f.CKeyPages))
	hdr.EKeyPageCount = uint32(len(f.EKeyPages))
	buf.Write(hdr.MarshalBinary())
	buf.Write(especData)

	for _, e := range f.CKeyIndex {
		buf.Write(e.FirstKey[:])
		buf.Write(e.Checksum[:])
	}
	for _, p := range f.CKeyPages {
		buf.Write(p.raw)
	}
	for _, e := range f.EKeyIndex {
		buf.Write(e.FirstKey[:])
		buf.Write(e.Checksum[:])
	}
	for _, p := range f.EKeyPages {
		buf.Write(p.raw)
	}
	if f.TrailingESpec != "" {
		buf.WriteString(f.TrailingESpec)
	}
	return buf.Bytes()
}

// FindEncoding returns the encoding keys and uncompressed file size for a
// content key, via binary search over the page index followed by a linear
// scan of the matching page.
func (f *File) FindEncoding(ckey [16]byte) (ekeys [][16]byte, fileSize uint64, ok bool) {
	pi, ok := locatePage(f.CKeyIndex, ckey)
	if !ok {
		return nil, 0, false
	}
	for _, e := range f.CKeyPages[pi].entries {
		if e.ContentKey == ckey {
			return e.EncodingKeys, e.FileSize, true
		}
	}
	return nil, 0, false
}

// FindESpec returns the ESpec string and on-disk size for an encoding key.
func (f *File) FindESpec(ekey [16]byte) (espec string, size uint64, ok bool) {
	pi, ok := locatePage(f.EKeyIndex, ekey)
	if !ok {
		return "", 0, false
	}
	for _, e := range f.EKeyPages[pi].entries {
		if e.EncodingKey == ekey {
			s, ok := f.ESpecs.Get(e.ESpecIndex)
			if !ok {
				return "", 0, false
			}
			return s, e.FileSize, true
		}
	}
	return "", 0, false
}

// locatePage finds the last page whose FirstKey is <= key, i.e. the only
// page that could hold key given sorted, non-overlapping pages.
func locatePage(idx []IndexEntry, key [16]byte) (int, bool) {
	if len(idx) == 0 {
		return 0, false
	}
	i := sort.Search(len(idx), func(i int) bool {
		return bytes.Compare(idx[i].FirstKey[:], key[:]) > 0
	})
	if i == 0 {
		return 0, false
	}
	return i - 1, true
}
