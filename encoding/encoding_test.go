package encoding

import "testing"

func ckey(b byte) [16]byte {
	var k [16]byte
	for i := range k {
		k[i] = b
	}
	return k
}

func TestBuildParseRoundTrip(t *testing.T) {
	b := NewBuilder()
	b.AddCKeyEntry(CKeyEntryData{ContentKey: ckey(1), FileSize: 100, EncodingKeys: [][16]byte{ckey(0x11)}})
	b.AddCKeyEntry(CKeyEntryData{ContentKey: ckey(2), FileSize: 200, EncodingKeys: [][16]byte{ckey(0x22)}})
	b.AddEKeyEntry(EKeyEntryData{EncodingKey: ckey(0x11), ESpec: "z", FileSize: 50})
	b.AddEKeyEntry(EKeyEntryData{EncodingKey: ckey(0x22), ESpec: "n", FileSize: 200})

	f, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	data := f.Build()

	parsed, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	eks, size, ok := parsed.FindEncoding(ckey(1))
	if !ok || len(eks) != 1 || eks[0] != ckey(0x11) || size != 100 {
		t.Fatalf("FindEncoding(1) = %v, %d, %v", eks, size, ok)
	}
	espec, size, ok := parsed.FindESpec(ckey(0x11))
	if !ok || espec != "z" || size != 50 {
		t.Fatalf("FindESpec(0x11) = %q, %d, %v", espec, size, ok)
	}
	espec2, size2, ok := parsed.FindESpec(ckey(0x22))
	if !ok || espec2 != "n" || size2 != 200 {
		t.Fatalf("FindESpec(0x22) = %q, %d, %v", espec2, size2, ok)
	}
}

func TestFindEncodingMissing(t *testing.T) {
	b := NewBuilder()
	b.AddCKeyEntry(CKeyEntryData{ContentKey: ckey(1), FileSize: 10, EncodingKeys: [][16]byte{ckey(0x11)}})
	b.AddEKeyEntry(EKeyEntryData{EncodingKey: ckey(0x11), ESpec: "z", FileSize: 5})
	f, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	data := f.Build()
	parsed, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, _, ok := parsed.FindEncoding(ckey(0xFF)); ok {
		t.Fatal("expected miss for unknown content key")
	}
}

func TestManyEntriesSpanMultiplePages(t *testing.T) {
	b := NewBuilder().WithPageSizes(4, 4)
	for i := 0; i < 500; i++ {
		var k [16]byte
		k[0] = byte(i >> 8)
		k[1] = byte(i)
		b.AddCKeyEntry(CKeyEntryData{ContentKey: k, FileSize: uint64(i), EncodingKeys: [][16]byte{k}})
		b.AddEKeyEntry(EKeyEntryData{EncodingKey: k, ESpec: "n", FileSize: uint64(i)})
	}
	f, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(f.CKeyPages) < 2 {
		t.Fatalf("expected multiple ckey pages, got %d", len(f.CKeyPages))
	}

	data := f.Build()
	parsed, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	var k [16]byte
	k[0], k[1] = byte(250>>8), byte(250)
	eks, size, ok := parsed.FindEncoding(k)
	if !ok || eks[0] != k || size != 250 {
		t.Fatalf("FindEncoding for middle entry failed: %v %d %v", eks, size, ok)
	}
}

func TestParseRejectsBadMagic(t *testing.T) {
	data := make([]byte, HeaderSize)
	copy(data, []byte("XX"))
	_, err := Parse(data)
	if _, ok := err.(*InvalidMagicError); !ok {
		t.Fatalf("expected InvalidMagicError, got %v", err)
	}
}

func TestParseDetectsPageCorruption(t *testing.T) {
	b := NewBuilder()
	b.AddCKeyEntry(CKeyEntryData{ContentKey: ckey(1), FileSize: 10, EncodingKeys: [][16]byte{ckey(0x11)}})
	b.AddEKeyEntry(EKeyEntryData{EncodingKey: ckey(0x11), ESpec: "z", FileSize: 5})
	f, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	data := f.Build()
	data[len(data)-1] ^= 0xFF // corrupt a byte inside the last page
	_, err = Parse(data)
	if _, ok := err.(*PageChecksumMismatchError); !ok {
		t.Fatalf("expected PageChecksumMismatchError, got %v", err)
	}
}

func TestParseRejectsUnsupportedVersion(t *testing.T) {
	b := NewBuilder()
	b.AddCKeyEntry(CKeyEntryData{ContentKey: ckey(1), FileSize: 10, EncodingKeys: [][16]byte{ckey(0x11)}})
	b.AddEKeyEntry(EKeyEntryData{EncodingKey: ckey(0x11), ESpec: "z", FileSize: 5})
	f, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	data := f.Build()
	data[2] = 2 // version byte
	_, err = Parse(data)
	if _, ok := err.(*UnsupportedVersionError); !ok {
		t.Fatalf("expected UnsupportedVersionError, got %v", err)
	}
}

func TestParseRejectsBadKeySize(t *testing.T) {
	b := NewBuilder()
	b.AddCKeyEntry(CKeyEntryData{ContentKey: ckey(1), FileSize: 10, EncodingKeys: [][16]byte{ckey(0x11)}})
	b.AddEKeyEntry(EKeyEntryData{EncodingKey: ckey(0x11), ESpec: "z", FileSize: 5})
	f, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	data := f.Build()
	data[3] = 8 // ckey hash size byte
	_, err = Parse(data)
	if _, ok := err.(*InvalidHeaderFieldError); !ok {
		t.Fatalf("expected InvalidHeaderFieldError, got %v", err)
	}
}

func TestParseRejectsBadPageSize(t *testing.T) {
	b := NewBuilder()
	b.AddCKeyEntry(CKeyEntryData{ContentKey: ckey(1), FileSize: 10, EncodingKeys: [][16]byte{ckey(0x11)}})
	b.AddEKeyEntry(EKeyEntryData{EncodingKey: ckey(0x11), ESpec: "z", FileSize: 5})
	f, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	data := f.Build()
	data[5], data[6] = 0, 6 // ckey page size KiB: 6, not in {4,8,16}
	_, err = Parse(data)
	if _, ok := err.(*InvalidHeaderFieldError); !ok {
		t.Fatalf("expected InvalidHeaderFieldError, got %v", err)
	}
}

func TestParseRejectsWrongFirstKey(t *testing.T) {
	b := NewBuilder()
	b.AddCKeyEntry(CKeyEntryData{ContentKey: ckey(1), FileSize: 10, EncodingKeys: [][16]byte{ckey(0x11)}})
	b.AddEKeyEntry(EKeyEntryData{EncodingKey: ckey(0x11), ESpec: "z", FileSize: 5})
	f, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	f.CKeyIndex[0].FirstKey = ckey(0xAB) // no longer matches the page's real first entry
	data := f.Build()
	_, err = Parse(data)
	if _, ok := err.(*InvalidIndexError); !ok {
		t.Fatalf("expected InvalidIndexError, got %v", err)
	}
}

func TestParseRejectsOutOfOrderEntries(t *testing.T) {
	b := NewBuilder().WithPageSizes(16, 4)
	b.AddCKeyEntry(CKeyEntryData{ContentKey: ckey(1), FileSize: 10, EncodingKeys: [][16]byte{ckey(0x11)}})
	b.AddCKeyEntry(CKeyEntryData{ContentKey: ckey(2), FileSize: 20, EncodingKeys: [][16]byte{ckey(0x22)}})
	b.AddCKeyEntry(CKeyEntryData{ContentKey: ckey(3), FileSize: 30, EncodingKeys: [][16]byte{ckey(0x33)}})
	b.AddEKeyEntry(EKeyEntryData{EncodingKey: ckey(0x11), ESpec: "z", FileSize: 5})
	b.AddEKeyEntry(EKeyEntryData{EncodingKey: ckey(0x22), ESpec: "z", FileSize: 5})
	b.AddEKeyEntry(EKeyEntryData{EncodingKey: ckey(0x33), ESpec: "z", FileSize: 5})
	f, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(f.CKeyPages) != 1 {
		t.Fatalf("expected all three entries packed into one page, got %d", len(f.CKeyPages))
	}

	// Swap the last two entries so the first entry (and the index's
	// first_key) is still correct but the page is no longer ascending.
	p := &f.CKeyPages[0]
	p.entries[1], p.entries[2] = p.entries[2], p.entries[1]
	raw := make([]byte, 0, len(p.raw))
	for _, e := range p.entries {
		raw = e.marshal(raw)
	}
	raw = append(raw, make([]byte, len(p.raw)-len(raw))...)
	p.raw = raw
	f.CKeyIndex[0].Checksum = checksumPage(raw)

	data := f.Build()
	_, err = Parse(data)
	if _, ok := err.(*InvalidIndexError); !ok {
		t.Fatalf("expected InvalidIndexError, got %v", err)
	}
}

func TestCheckpointRoundTrip(t *testing.T) {
	b := NewBuilder()
	b.AddCKeyEntry(CKeyEntryData{ContentKey: ckey(1), FileSize: 10, EncodingKeys: [][16]byte{ckey(0x11)}})
	b.AddEKeyEntry(EKeyEntryData{EncodingKey: ckey(0x11), ESpec: "z", FileSize: 5})
	f, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	data := f.Build()

	cp := NewCheckpoint(f, data)
	encoded := cp.Marshal()
	decoded, err := UnmarshalCheckpoint(encoded)
	if err != nil {
		t.Fatalf("UnmarshalCheckpoint: %v", err)
	}
	if decoded.SourceChecksum != cp.SourceChecksum {
		t.Fatal("source checksum mismatch after round trip")
	}
	if len(decoded.ESpecs) != 1 || decoded.ESpecs[0] != "z" {
		t.Fatalf("espec table mismatch: %v", decoded.ESpecs)
	}
	if decoded.Stale(data) {
		t.Fatal("checkpoint should not be stale against its own source")
	}
	if !decoded.Stale(append(append([]byte(nil), data...), 0)) {
		t.Fatal("checkpoint should be stale against modified source")
	}
}

func TestGenerateTrailingESpec(t *testing.T) {
	b := NewBuilder()
	b.AddCKeyEntry(CKeyEntryData{ContentKey: ckey(1), FileSize: 10, EncodingKeys: [][16]byte{ckey(0x11)}})
	b.AddEKeyEntry(EKeyEntryData{EncodingKey: ckey(0x11), ESpec: "z", FileSize: 5})
	f, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	spec := GenerateTrailingESpec(f)
	if spec == "" || spec[:2] != "b:" {
		t.Fatalf("unexpected trailing espec: %q", spec)
	}
}
