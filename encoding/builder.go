package encoding

import (
	"bytes"
	"fmt"
	"sort"
)

// CKeyEntryData is one content-key row supplied to a Builder.
type CKeyEntryData struct {
	ContentKey   [16]byte
	FileSize     uint64
	EncodingKeys [][16]byte
}

// EKeyEntryData is one encoding-key row supplied to a Builder.
type EKeyEntryData struct {
	EncodingKey [16]byte
	ESpec       string
	FileSize    uint64
}

// Builder constructs (or rebuilds) an encoding File from individual entries,
// the way EncodingFile.build() does in the reference implementation: sort
// by key, pack fixed-size pages, index each page by its first key and MD5.
type Builder struct {
	ckeyEntries []CKeyEntryData
	ekeyEntries []EKeyEntryData

	ckeyPageSizeKB uint16
	ekeyPageSizeKB uint16
	trailingESpec  string
}

// NewBuilder returns a Builder with the default 4 KiB page size.
func NewBuilder() *Builder {
	return &Builder{ckeyPageSizeKB: 4, ekeyPageSizeKB: 4}
}

// WithPageSizes overrides both page sizes, in KiB (valid values: 4, 8, 16).
func (b *Builder) WithPageSizes(ckeyKB, ekeyKB uint16) *Builder {
	b.ckeyPageSizeKB = ckeyKB
	b.ekeyPageSizeKB = ekeyKB
	return b
}

// WithTrailingESpec sets the self-describing ESpec for the encoding file
// itself, as produced by GenerateTrailingESpec.
func (b *Builder) WithTrailingESpec(espec string) *Builder {
	b.trailingESpec = espec
	return b
}

// AddCKeyEntry adds or replaces a content-key row.
func (b *Builder) AddCKeyEntry(e CKeyEntryData) {
	for i, x := range b.ckeyEntries {
		if x.ContentKey == e.ContentKey {
			b.ckeyEntries[i] = e
			return
		}
	}
	b.ckeyEntries = append(b.ckeyEntries, e)
}

// AddEKeyEntry adds or replaces an encoding-key row.
func (b *Builder) AddEKeyEntry(e EKeyEntryData) {
	for i, x := range b.ekeyEntries {
		if x.EncodingKey == e.EncodingKey {
			b.ekeyEntries[i] = e
			return
		}
	}
	b.ekeyEntries = append(b.ekeyEntries, e)
}

// RemoveCKeyEntry deletes the row for contentKey, if present.
func (b *Builder) RemoveCKeyEntry(contentKey [16]byte) bool {
	for i, e := range b.ckeyEntries {
		if e.ContentKey == contentKey {
			b.ckeyEntries = append(b.ckeyEntries[:i], b.ckeyEntries[i+1:]...)
			return true
		}
	}
	return false
}

// RemoveEKeyEntry deletes the row for encodingKey, if present.
func (b *Builder) RemoveEKeyEntry(encodingKey [16]byte) bool {
	for i, e := range b.ekeyEntries {
		if e.EncodingKey == encodingKey {
			b.ekeyEntries = append(b.ekeyEntries[:i], b.ekeyEntries[i+1:]...)
			return true
		}
	}
	return false
}

// HasCKeyEntry reports whether contentKey has a row.
func (b *Builder) HasCKeyEntry(contentKey [16]byte) bool {
	for _, e := range b.ckeyEntries {
		if e.ContentKey == contentKey {
			return true
		}
	}
	return false
}

// FromFile seeds a Builder from an already-parsed File, so its entries can
// be modified and rebuilt.
func FromFile(f *File) *Builder {
	b := NewBuilder().WithPageSizes(f.Header.CKeyPageSizeKB, f.Header.EKeyPageSizeKB)
	if f.TrailingESpec != "" {
		b.WithTrailingESpec(f.TrailingESpec)
	}
	for _, p := range f.CKeyPages {
		for _, e := range p.entries {
			b.AddCKeyEntry(CKeyEntryData{ContentKey: e.ContentKey, FileSize: e.FileSize, EncodingKeys: e.EncodingKeys})
		}
	}
	for _, p := range f.EKeyPages {
		for _, e := range p.entries {
			espec, _ := f.ESpecs.Get(e.ESpecIndex)
			if espec == "" {
				espec = "z"
			}
			b.AddEKeyEntry(EKeyEntryData{EncodingKey: e.EncodingKey, ESpec: espec, FileSize: e.FileSize})
		}
	}
	return b
}

// Build assembles the final File: an ESpec table, sorted+paged CKey/EKey
// tables, and their MD5-indexed pages.
func (b *Builder) Build() (*File, error) {
	especs := NewESpecTable()
	for _, e := range b.ekeyEntries {
		especs.Add(e.ESpec)
	}

	ckeyPages, err := buildCKeyPages(b.ckeyEntries, int(b.ckeyPageSizeKB)*1024)
	if err != nil {
		return nil, err
	}
	ekeyPages, err := buildEKeyPages(b.ekeyEntries, int(b.ekeyPageSizeKB)*1024, especs)
	if err != nil {
		return nil, err
	}

	f := &File{
		Header: Header{
			Version:        1,
			CKeyHashSize:   16,
			EKeyHashSize:   16,
			CKeyPageSizeKB: b.ckeyPageSizeKB,
			EKeyPageSizeKB: b.ekeyPageSizeKB,
		},
		ESpecs:        especs,
		CKeyIndex:     buildIndex(ckeyPages),
		CKeyPages:     ckeyPages,
		EKeyIndex:     buildIndex(ekeyPages),
		EKeyPages:     ekeyPages,
		TrailingESpec: b.trailingESpec,
	}
	return f, nil
}

func buildCKeyPages(entries []CKeyEntryData, pageSize int) ([]page[CKeyEntry], error) {
	sorted := append([]CKeyEntryData(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool {
		return bytes.Compare(sorted[i].ContentKey[:], sorted[j].ContentKey[:]) < 0
	})

	var pages []page[CKeyEntry]
	var cur []CKeyEntry
	curSize := 0
	flush := func() {
		if len(cur) == 0 {
			return
		}
		pages = append(pages, page[CKeyEntry]{entries: cur, raw: serializePage[CKeyEntry](cur, pageSize)})
		cur, curSize = nil, 0
	}
	for _, d := range sorted {
		e := CKeyEntry{ContentKey: d.ContentKey, FileSize: d.FileSize, EncodingKeys: d.EncodingKeys}
		sz := e.wireSize()
		if curSize+sz > pageSize && len(cur) > 0 {
			flush()
		}
		if sz > pageSize {
			return nil, fmt.Errorf("encoding: ckey entry for %x needs %d bytes, larger than the %d-byte page", d.ContentKey, sz, pageSize)
		}
		cur = append(cur, e)
		curSize += sz
	}
	flush()
	return pages, nil
}

func buildEKeyPages(entries []EKeyEntryData, pageSize int, especs *ESpecTable) ([]page[EKeyEntry], error) {
	sorted := append([]EKeyEntryData(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool {
		return bytes.Compare(sorted[i].EncodingKey[:], sorted[j].EncodingKey[:]) < 0
	})

	var pages []page[EKeyEntry]
	var cur []EKeyEntry
	curSize := 0
	flush := func() {
		if len(cur) == 0 {
			return
		}
		pages = append(pages, page[EKeyEntry]{entries: cur, raw: serializePage[EKeyEntry](cur, pageSize)})
		cur, curSize = nil, 0
	}
	for _, d := range sorted {
		idx, ok := especs.index[d.ESpec]
		if !ok {
			return nil, fmt.Errorf("encoding: espec %q not registered in table", d.ESpec)
		}
		e := EKeyEntry{EncodingKey: d.EncodingKey, ESpecIndex: idx, FileSize: d.FileSize}
		sz := e.wireSize()
		if curSize+sz > pageSize && len(cur) > 0 {
			flush()
		}
		cur = append(cur, e)
		curSize += sz
	}
	flush()
	return pages, nil
}

func serializePage[T pageEntry](entries []T, pageSize int) []byte {
	buf := make([]byte, 0, pageSize)
	for _, e := range entries {
		switch v := any(e).(type) {
		case CKeyEntry:
			buf = v.marshal(buf)
		case EKeyEntry:
			buf = v.marshal(buf)
		}
	}
	if len(buf) < pageSize {
		buf = append(buf, make([]byte, pageSize-len(buf))...)
	}
	return buf
}

func buildIndex[T pageEntry](pages []page[T]) []IndexEntry {
	out := make([]IndexEntry, len(pages))
	for i, p := range pages {
		var first [16]byte
		if len(p.entries) > 0 {
			first = p.entries[0].firstKey()
		}
		out[i] = IndexEntry{FirstKey: first, Checksum: checksumPage(p.raw)}
	}
	return out
}

// GenerateTrailingESpec produces the self-describing ESpec string for f
// itself, so the archive blob holding the encoding file decodes itself with
// no external metadata: header and index sections are uncompressed, the
// ESpec block is zlib-compressed, and the trailing ESpec (this string) is
// appended compressed as the final, variable-length block.
func GenerateTrailingESpec(f *File) string {
	var sections []string
	sections = append(sections, fmt.Sprintf("%d=n", HeaderSize))
	if n := len(f.ESpecs.Build()); n > 0 {
		sections = append(sections, fmt.Sprintf("%d=z", n))
	}
	ckeyIdxSize := len(f.CKeyPages) * 32
	if ckeyIdxSize > 0 {
		sections = append(sections, fmt.Sprintf("%d=n", ckeyIdxSize))
	}
	ckeyPagesSize := len(f.CKeyPages) * int(f.Header.CKeyPageSizeKB) * 1024
	if ckeyPagesSize > 0 {
		sections = append(sections, fmt.Sprintf("%d=n", ckeyPagesSize))
	}
	ekeyIdxSize := len(f.EKeyPages) * 32
	if ekeyIdxSize > 0 {
		sections = append(sections, fmt.Sprintf("%d=n", ekeyIdxSize))
	}
	ekeyPagesSize := len(f.EKeyPages) * int(f.Header.EKeyPageSizeKB) * 1024
	if ekeyPagesSize > 0 {
		sections = append(sections, fmt.Sprintf("%d=n", ekeyPagesSize))
	}
	sections = append(sections, "*=z")

	out := "b:{"
	for i, s := range sections {
		if i > 0 {
			out += ","
		}
		out += s
	}
	return out + "}"
}
