package blte

import (
	"bytes"
	"crypto/md5"
	"encoding/binary"
	"io"
	"testing"

	"github.com/ngdp-go/cascstore/tactkey"
)

func TestRoundTripNone(t *testing.T) {
	plaintext := []byte("the quick brown fox jumps over the lazy dog")
	wire, err := EncodeSingle(plaintext, ModeNone)
	if err != nil {
		t.Fatalf("EncodeSingle: %v", err)
	}
	got, err := Decode(wire, tactkey.NewMemoryStore())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("round trip mismatch: got %q want %q", got, plaintext)
	}
}

func TestRoundTripZLib(t *testing.T) {
	plaintext := bytes.Repeat([]byte("compressible data "), 500)
	wire, err := EncodeSingle(plaintext, ModeZLib)
	if err != nil {
		t.Fatalf("EncodeSingle: %v", err)
	}
	got, err := Decode(wire, tactkey.NewMemoryStore())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("round trip mismatch")
	}
}

func TestRoundTripLZ4(t *testing.T) {
	plaintext := bytes.Repeat([]byte("lz4 round trip content "), 200)
	wire, err := EncodeSingle(plaintext, ModeLZ4)
	if err != nil {
		t.Fatalf("EncodeSingle: %v", err)
	}
	got, err := Decode(wire, tactkey.NewMemoryStore())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("round trip mismatch")
	}
}

func TestRoundTripMultiChunk(t *testing.T) {
	parts := []ChunkPart{
		{Plaintext: []byte("first chunk payload"), Mode: ModeNone},
		{Plaintext: bytes.Repeat([]byte("second chunk "), 100), Mode: ModeZLib},
		{Plaintext: bytes.Repeat([]byte("third chunk data "), 50), Mode: ModeLZ4},
	}
	wire, err := Encode(parts)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(wire, tactkey.NewMemoryStore())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	var want bytes.Buffer
	for _, p := range parts {
		want.Write(p.Plaintext)
	}
	if !bytes.Equal(got, want.Bytes()) {
		t.Fatalf("multi-chunk round trip mismatch")
	}
}

func TestEncryptedSalsa20HeaderBytes(t *testing.T) {
	plaintext := []byte("Hello, BLTE encryption with Salsa20!")
	keyName := uint64(0x1234_5678_90AB_CDEF)
	iv := []byte{0x11, 0x22, 0x33, 0x44}
	keyBytes := []byte{0x01, 0x23, 0x45, 0x67, 0x89, 0xAB, 0xCD, 0xEF, 0xFE, 0xDC, 0xBA, 0x98, 0x76, 0x54, 0x32, 0x10}
	key, err := tactkey.New(keyName, keyBytes)
	if err != nil {
		t.Fatalf("tactkey.New: %v", err)
	}
	store := tactkey.NewMemoryStore(key)

	wire, err := Encode([]ChunkPart{{
		Plaintext: plaintext,
		Mode:      ModeNone,
		Encrypt:   &EncryptionSpec{KeyName: keyName, IV: iv, Type: encSalsa20},
		Key:       key.Bytes,
	}})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	wantHeader := []byte{0x08, 0xEF, 0xCD, 0xAB, 0x90, 0x78, 0x56, 0x34, 0x12, 0x04, 0x11, 0x22, 0x33, 0x44, 0x53}
	// wire = "BLTE" + header_size(4, =0) + 'E' + encryption header + ciphertext
	gotHeader := wire[9 : 9+len(wantHeader)]
	if !bytes.Equal(gotHeader, wantHeader) {
		t.Fatalf("encrypted header mismatch:\n got  %x\n want %x", gotHeader, wantHeader)
	}

	got, err := Decode(wire, store)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("decrypt mismatch: got %q want %q", got, plaintext)
	}
}

func TestEncryptedArc4RoundTrip(t *testing.T) {
	plaintext := bytes.Repeat([]byte("arc4 secret "), 10)
	keyName := uint64(0xAABBCCDD11223344)
	key, err := tactkey.New(keyName, bytes.Repeat([]byte{0x42}, 16))
	if err != nil {
		t.Fatalf("tactkey.New: %v", err)
	}
	store := tactkey.NewMemoryStore(key)

	wire, err := Encode([]ChunkPart{{
		Plaintext: plaintext,
		Mode:      ModeZLib,
		Encrypt:   &EncryptionSpec{KeyName: keyName, IV: []byte{1, 2, 3, 4}, Type: encArc4},
		Key:       key.Bytes,
	}})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(wire, store)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("arc4 round trip mismatch")
	}
}

func TestEncodeFrameRejected(t *testing.T) {
	if _, err := EncodeSingle([]byte("x"), ModeFrame); err == nil {
		t.Fatalf("expected error encoding Frame mode")
	}
}

func TestDecodeNestedEncryptionRejected(t *testing.T) {
	keyName := uint64(0x1)
	key, _ := tactkey.New(keyName, bytes.Repeat([]byte{0x7}, 16))
	store := tactkey.NewMemoryStore(key)
	spec := EncryptionSpec{KeyName: keyName, IV: []byte{0, 0, 0, 0}, Type: encSalsa20}

	inner := append([]byte{byte(ModeEncrypted)}, mustEncryptPayload(t, []byte{byte(ModeNone), 'x'}, spec, key.Bytes, 0)...)
	outer, err := EncryptPayload(inner, spec, key.Bytes, 0)
	if err != nil {
		t.Fatalf("EncryptPayload: %v", err)
	}
	wire := append([]byte{byte(ModeEncrypted)}, outer...)

	if _, err := DecodeChunkBytes(wire, store, 0); err == nil {
		t.Fatalf("expected nested encryption error")
	}
}

func mustEncryptPayload(t *testing.T, data []byte, spec EncryptionSpec, key [16]byte, blockIndex int) []byte {
	t.Helper()
	out, err := EncryptPayload(data, spec, key, blockIndex)
	if err != nil {
		t.Fatalf("EncryptPayload: %v", err)
	}
	return out
}

func TestDecodeBadMagic(t *testing.T) {
	wire := []byte("NOPE\x00\x00\x00\x00N")
	if _, err := Decode(wire, tactkey.NewMemoryStore()); err == nil {
		t.Fatalf("expected InvalidMagicError")
	} else if _, ok := err.(*InvalidMagicError); !ok {
		t.Fatalf("expected *InvalidMagicError, got %T: %v", err, err)
	}
}

func TestDecodeMd5Mismatch(t *testing.T) {
	parts := []ChunkPart{
		{Plaintext: []byte("chunk a"), Mode: ModeNone},
		{Plaintext: []byte("chunk b"), Mode: ModeNone},
	}
	wire, err := Encode(parts)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	// Corrupt the first chunk's payload byte without touching its table entry.
	headerSize := binary.BigEndian.Uint32(wire[4:8])
	firstChunkOff := 4 + int(headerSize) // header_size counts every byte after the magic
	wire[firstChunkOff+1] ^= 0xFF

	_, err = Decode(wire, tactkey.NewMemoryStore())
	if err == nil {
		t.Fatalf("expected Md5MismatchError")
	}
	if _, ok := err.(*Md5MismatchError); !ok {
		t.Fatalf("expected *Md5MismatchError, got %T: %v", err, err)
	}
}

func TestDecodeLZ4SizePrefixMismatch(t *testing.T) {
	plaintext := []byte("lz4 payload for prefix corruption test")
	wire, err := EncodeSingle(plaintext, ModeLZ4)
	if err != nil {
		t.Fatalf("EncodeSingle: %v", err)
	}
	// wire = "BLTE" + 4-byte header_size(0) + '4'... offset of mode byte is 8.
	sizeOff := 9 // 8 (preamble) + 1 (mode byte) -> start of 8-byte LE size prefix
	binary.LittleEndian.PutUint64(wire[sizeOff:sizeOff+8], uint64(len(plaintext)+1))

	_, err = Decode(wire, tactkey.NewMemoryStore())
	if err == nil {
		t.Fatalf("expected CompressionError from lz4 size mismatch")
	}
}

func TestDecodeOversizeZLibRejected(t *testing.T) {
	plaintext := make([]byte, 2048)
	payload, err := compressPayload(plaintext, ModeZLib)
	if err != nil {
		t.Fatalf("compressPayload: %v", err)
	}
	_, err = decompressPayloadWithMax(payload, ModeZLib, 100)
	if _, ok := err.(*DecompressionTooLargeError); !ok {
		t.Fatalf("expected *DecompressionTooLargeError, got %T: %v", err, err)
	}
}

func TestDecodeOversizeLZ4Rejected(t *testing.T) {
	plaintext := make([]byte, 2048)
	payload, err := compressPayload(plaintext, ModeLZ4)
	if err != nil {
		t.Fatalf("compressPayload: %v", err)
	}
	_, err = decompressPayloadWithMax(payload, ModeLZ4, 100)
	if _, ok := err.(*DecompressionTooLargeError); !ok {
		t.Fatalf("expected *DecompressionTooLargeError, got %T: %v", err, err)
	}
}

func TestChunkReaderStreaming(t *testing.T) {
	parts := []ChunkPart{
		{Plaintext: []byte("alpha"), Mode: ModeNone},
		{Plaintext: []byte("beta"), Mode: ModeNone},
		{Plaintext: []byte("gamma"), Mode: ModeNone},
	}
	wire, err := Encode(parts)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	r, err := NewChunkReader(bytes.NewReader(wire), tactkey.NewMemoryStore())
	if err != nil {
		t.Fatalf("NewChunkReader: %v", err)
	}
	var got [][]byte
	for {
		chunk, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		cp := append([]byte(nil), chunk...)
		got = append(got, cp)
	}
	if len(got) != len(parts) {
		t.Fatalf("got %d chunks, want %d", len(got), len(parts))
	}
	for i, p := range parts {
		if !bytes.Equal(got[i], p.Plaintext) {
			t.Fatalf("chunk %d mismatch: got %q want %q", i, got[i], p.Plaintext)
		}
	}
}

func TestMissingKeyError(t *testing.T) {
	plaintext := []byte("needs a key")
	keyName := uint64(0x99)
	key, _ := tactkey.New(keyName, bytes.Repeat([]byte{0x01}, 16))
	wire, err := Encode([]ChunkPart{{
		Plaintext: plaintext,
		Mode:      ModeNone,
		Encrypt:   &EncryptionSpec{KeyName: keyName, IV: []byte{0, 0, 0, 0}, Type: encSalsa20},
		Key:       key.Bytes,
	}})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	_, err = Decode(wire, tactkey.NewMemoryStore())
	if _, ok := err.(*MissingKeyError); !ok {
		t.Fatalf("expected *MissingKeyError, got %T: %v", err, err)
	}
}

func TestDifferentBlockIndexDivergesCiphertext(t *testing.T) {
	key, _ := tactkey.New(1, bytes.Repeat([]byte{0x11}, 16))
	spec := EncryptionSpec{KeyName: 1, IV: []byte{0, 0, 0, 0}, Type: encSalsa20}
	data := bytes.Repeat([]byte{0xAB}, 64)

	a, err := EncryptPayload(data, spec, key.Bytes, 0)
	if err != nil {
		t.Fatalf("EncryptPayload: %v", err)
	}
	b, err := EncryptPayload(data, spec, key.Bytes, 1)
	if err != nil {
		t.Fatalf("EncryptPayload: %v", err)
	}
	if bytes.Equal(a, b) {
		t.Fatalf("expected ciphertext to diverge across block indices")
	}
}

func TestMD5OfChunkIsOverWireBytes(t *testing.T) {
	parts := []ChunkPart{
		{Plaintext: []byte("chunk one"), Mode: ModeNone},
		{Plaintext: []byte("chunk two"), Mode: ModeNone},
	}
	wire, err := Encode(parts)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	headerSize := binary.BigEndian.Uint32(wire[4:8])
	tableOff := 8 + 4 // flags + count
	firstEntry := wire[tableOff : tableOff+24]
	csize := binary.BigEndian.Uint32(firstEntry[0:4])
	wantMD5 := firstEntry[8:24]

	chunkStart := 4 + int(headerSize) // header_size counts every byte after the magic
	chunkWire := wire[chunkStart : chunkStart+int(csize)]
	gotMD5 := md5.Sum(chunkWire)
	if !bytes.Equal(gotMD5[:], wantMD5) {
		t.Fatalf("chunk table md5 does not match md5 of on-wire bytes")
	}
}
