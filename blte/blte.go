// Package blte implements the BLTE chunked container codec (spec.md §4.1):
// per-chunk compression, encryption, and MD5 integrity checking over a
// magic-prefixed, optionally chunk-tabled byte stream.
package blte

import (
	"bytes"
	"crypto/md5"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
	"github.com/pierrec/lz4/v4"
	"github.com/valyala/bytebufferpool"

	"github.com/ngdp-go/cascstore/espec"
	"github.com/ngdp-go/cascstore/tactkey"
)

// MaxDecompressionSize caps decompressed chunk output at 1 GiB, defending
// against compression-bomb inputs (spec.md §4.1, §8).
const MaxDecompressionSize = 1024 * 1024 * 1024

var magic = [4]byte{'B', 'L', 'T', 'E'}

// EncryptionSpec describes the keyed-wrapper header for an Encrypted chunk.
type EncryptionSpec struct {
	KeyName uint64
	IV      []byte // 4 or 8 bytes
	Type    byte   // encSalsa20 ('S') or encArc4 ('A')
}

// Salsa20Spec builds an EncryptionSpec for the Salsa20 sub-mode.
func Salsa20Spec(keyName uint64, iv []byte) EncryptionSpec {
	return EncryptionSpec{KeyName: keyName, IV: iv, Type: encSalsa20}
}

// Arc4Spec builds an EncryptionSpec for the ARC4 sub-mode.
func Arc4Spec(keyName uint64, iv []byte) EncryptionSpec {
	return EncryptionSpec{KeyName: keyName, IV: iv, Type: encArc4}
}

// ChunkPart is one logical chunk to encode: plaintext bytes plus the mode
// (and, for encrypted chunks, the keyed wrapper) that should compress it.
type ChunkPart struct {
	Plaintext []byte
	Mode      Mode
	Encrypt   *EncryptionSpec
	Key       [16]byte
}

var bufPool bytebufferpool.Pool

// compressPayload applies mode to data, returning the mode-specific wire
// payload bytes (spec.md §4.1 "Payloads per mode").
func compressPayload(data []byte, mode Mode) ([]byte, error) {
	switch mode {
	case ModeNone:
		return data, nil
	case ModeZLib:
		buf := bufPool.Get()
		defer bufPool.Put(buf)
		w := zlib.NewWriter(buf)
		if _, err := w.Write(data); err != nil {
			return nil, &CompressionError{Detail: err.Error()}
		}
		if err := w.Close(); err != nil {
			return nil, &CompressionError{Detail: err.Error()}
		}
		out := make([]byte, buf.Len())
		copy(out, buf.Bytes())
		return out, nil
	case ModeLZ4:
		out := make([]byte, 8, 8+lz4.CompressBlockBound(len(data)))
		binary.LittleEndian.PutUint64(out[0:8], uint64(len(data)))
		dst := make([]byte, lz4.CompressBlockBound(len(data)))
		var c lz4.Compressor
		n, err := c.CompressBlock(data, dst)
		if err != nil {
			return nil, &CompressionError{Detail: err.Error()}
		}
		if n == 0 && len(data) > 0 {
			// Incompressible input: lz4.CompressBlock reports 0 when the
			// block would not shrink; fall back to storing raw bytes is not
			// valid for this wire format, so retry with a generously sized
			// buffer is unnecessary — CompressBlockBound already covers the
			// worst case, 0 only happens for very small/incompressible data
			// which CompressBlockBound still bounds. Treat as an error.
			return nil, &CompressionError{Detail: "lz4: block did not compress"}
		}
		out = append(out, dst[:n]...)
		return out, nil
	case ModeEncrypted:
		return nil, &CompressionError{Detail: "encrypted mode requires EncryptChunk, not compressPayload"}
	case ModeFrame:
		return nil, &UnsupportedModeError{Byte: byte(ModeFrame)}
	default:
		return nil, &UnsupportedModeError{Byte: byte(mode)}
	}
}

// decompressPayload reverses compressPayload, enforcing MaxDecompressionSize
// on ZLib and LZ4 output.
func decompressPayload(data []byte, mode Mode) ([]byte, error) {
	return decompressPayloadWithMax(data, mode, MaxDecompressionSize)
}

// decompressPayloadWithMax is decompressPayload with an overridable cap, so
// tests can exercise the oversize-rejection path without allocating a
// gigabyte of compressible filler.
func decompressPayloadWithMax(data []byte, mode Mode, maxSize int64) ([]byte, error) {
	switch mode {
	case ModeNone:
		return data, nil
	case ModeZLib:
		r, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, &CompressionError{Detail: err.Error()}
		}
		defer r.Close()
		limited := io.LimitReader(r, maxSize+1)
		out, err := io.ReadAll(limited)
		if err != nil {
			return nil, &CompressionError{Detail: err.Error()}
		}
		if int64(len(out)) > maxSize {
			return nil, &DecompressionTooLargeError{Limit: maxSize, Requested: int64(len(out))}
		}
		return out, nil
	case ModeLZ4:
		if len(data) < 8 {
			return nil, &CompressionError{Detail: "lz4 chunk shorter than size header"}
		}
		size := binary.LittleEndian.Uint64(data[0:8])
		if int64(size) > maxSize {
			return nil, &DecompressionTooLargeError{Limit: maxSize, Requested: int64(size)}
		}
		out := make([]byte, size)
		n, err := lz4.UncompressBlock(data[8:], out)
		if err != nil {
			return nil, &CompressionError{Detail: err.Error()}
		}
		if uint64(n) != size {
			return nil, &CompressionError{Detail: fmt.Sprintf("lz4 size mismatch: header says %d, got %d", size, n)}
		}
		return out, nil
	case ModeEncrypted:
		return nil, &CompressionError{Detail: "encrypted mode requires DecryptChunk, not decompressPayload"}
	case ModeFrame:
		return nil, &UnsupportedModeError{Byte: byte(ModeFrame)}
	default:
		return nil, &UnsupportedModeError{Byte: byte(mode)}
	}
}

// EncryptPayload builds the encrypted-chunk header plus ciphertext for data
// (already mode-tagged, i.e. data[0] is the inner mode byte). blockIndex
// seeds the stream cipher's position so independent chunks decode
// correctly without replaying earlier keystream.
func EncryptPayload(data []byte, spec EncryptionSpec, key [16]byte, blockIndex int) ([]byte, error) {
	if len(spec.IV) != 4 && len(spec.IV) != 8 {
		return nil, &InvalidIVSizeError{Actual: len(spec.IV)}
	}
	ciphertext := make([]byte, len(data))
	switch spec.Type {
	case encSalsa20:
		var nonce [8]byte
		copy(nonce[:], spec.IV)
		salsa20XOR(ciphertext, data, key, nonce, uint64(blockIndex))
	case encArc4:
		arc4XOR(ciphertext, data, key)
	default:
		return nil, &CompressionError{Detail: fmt.Sprintf("unknown encryption type 0x%02x", spec.Type)}
	}

	out := make([]byte, 0, 1+8+1+len(spec.IV)+1+len(ciphertext))
	out = append(out, byte(8))
	var nameBuf [8]byte
	binary.LittleEndian.PutUint64(nameBuf[:], spec.KeyName)
	out = append(out, nameBuf[:]...)
	out = append(out, byte(len(spec.IV)))
	out = append(out, spec.IV...)
	out = append(out, spec.Type)
	out = append(out, ciphertext...)
	return out, nil
}

// DecryptPayload parses an encrypted-chunk header (without the leading 'E'
// mode byte) and returns the decrypted bytes, whose first byte is the
// chunk's inner mode.
func DecryptPayload(data []byte, keys tactkey.Store, blockIndex int) ([]byte, error) {
	if len(data) < 17 {
		return nil, &TruncatedHeaderError{Detail: fmt.Sprintf("encrypted chunk header needs 17 bytes, got %d", len(data))}
	}
	pos := 0
	keyNameSize := data[pos]
	pos++
	if keyNameSize != 8 {
		return nil, &TruncatedHeaderError{Detail: fmt.Sprintf("unexpected key name size %d", keyNameSize)}
	}
	keyName := binary.LittleEndian.Uint64(data[pos : pos+8])
	pos += 8

	key, ok := keys.Lookup(keyName)
	if !ok {
		return nil, &MissingKeyError{KeyName: keyName}
	}

	ivSize := int(data[pos])
	pos++
	if ivSize != 4 && ivSize != 8 {
		return nil, &InvalidIVSizeError{Actual: ivSize}
	}
	if len(data) < pos+ivSize+1 {
		return nil, &TruncatedHeaderError{Detail: "encrypted chunk truncated before IV/type"}
	}
	iv := data[pos : pos+ivSize]
	pos += ivSize

	encType := data[pos]
	pos++
	ciphertext := data[pos:]

	plaintext := make([]byte, len(ciphertext))
	switch encType {
	case encSalsa20:
		var nonce [8]byte
		copy(nonce[:], iv)
		salsa20XOR(plaintext, ciphertext, key.Bytes, nonce, uint64(blockIndex))
	case encArc4:
		arc4XOR(plaintext, ciphertext, key.Bytes)
	default:
		return nil, &CompressionError{Detail: fmt.Sprintf("unknown encryption type 0x%02x", encType)}
	}
	return plaintext, nil
}

// EncodePart renders one ChunkPart into the bytes that appear on the wire
// for its chunk: the mode byte(s) followed by the mode-specific payload.
func EncodePart(part ChunkPart, blockIndex int) ([]byte, error) {
	if part.Encrypt != nil {
		inner, err := compressPayload(part.Plaintext, part.Mode)
		if err != nil {
			return nil, err
		}
		tagged := append([]byte{byte(part.Mode)}, inner...)
		enc, err := EncryptPayload(tagged, *part.Encrypt, part.Key, blockIndex)
		if err != nil {
			return nil, err
		}
		return append([]byte{byte(ModeEncrypted)}, enc...), nil
	}
	payload, err := compressPayload(part.Plaintext, part.Mode)
	if err != nil {
		return nil, err
	}
	return append([]byte{byte(part.Mode)}, payload...), nil
}

// DecodeChunkBytes decodes one chunk's full wire bytes (mode byte and
// payload) back to plaintext, recursing through at most one layer of
// encryption per spec.md's nested-encryption prohibition.
func DecodeChunkBytes(wire []byte, keys tactkey.Store, blockIndex int) ([]byte, error) {
	if len(wire) == 0 {
		return nil, &TruncatedHeaderError{Detail: "empty chunk"}
	}
	mode, ok := parseMode(wire[0])
	if !ok || mode == ModeFrame {
		return nil, &UnsupportedModeError{Byte: wire[0]}
	}
	if mode != ModeEncrypted {
		return decompressPayload(wire[1:], mode)
	}

	decrypted, err := DecryptPayload(wire[1:], keys, blockIndex)
	if err != nil {
		return nil, err
	}
	if len(decrypted) == 0 {
		return decrypted, nil
	}
	innerMode, ok := parseMode(decrypted[0])
	if !ok {
		return decrypted, nil
	}
	if innerMode == ModeEncrypted {
		return nil, &NestedEncryptionError{}
	}
	return decompressPayload(decrypted[1:], innerMode)
}

// Encode renders parts into a complete BLTE container: a single unchunked
// chunk when len(parts) == 1, otherwise a chunk table followed by each
// chunk's wire bytes in order (spec.md §4.1, §6).
func Encode(parts []ChunkPart) ([]byte, error) {
	if len(parts) == 0 {
		return nil, fmt.Errorf("blte: Encode requires at least one chunk")
	}
	wires := make([][]byte, len(parts))
	for i, part := range parts {
		w, err := EncodePart(part, i)
		if err != nil {
			return nil, err
		}
		wires[i] = w
	}

	var out bytes.Buffer
	out.Write(magic[:])
	if len(parts) == 1 {
		var hdrSize [4]byte
		out.Write(hdrSize[:])
		out.Write(wires[0])
		return out.Bytes(), nil
	}

	headerSize := 8 + 24*len(parts)
	var hdrSize [4]byte
	binary.BigEndian.PutUint32(hdrSize[:], uint32(headerSize))
	out.Write(hdrSize[:])
	out.WriteByte(0x0F)
	var countBytes [4]byte
	binary.BigEndian.PutUint32(countBytes[:], uint32(len(parts)))
	out.Write(countBytes[1:4])

	for i, w := range wires {
		sum := md5.Sum(w)
		var csize, dsize [4]byte
		binary.BigEndian.PutUint32(csize[:], uint32(len(w)))
		binary.BigEndian.PutUint32(dsize[:], uint32(len(parts[i].Plaintext)))
		out.Write(csize[:])
		out.Write(dsize[:])
		out.Write(sum[:])
	}
	for _, w := range wires {
		out.Write(w)
	}
	return out.Bytes(), nil
}

// EncodeSingle is a convenience wrapper for the common single-chunk case
// with no encryption.
func EncodeSingle(plaintext []byte, mode Mode) ([]byte, error) {
	return Encode([]ChunkPart{{Plaintext: plaintext, Mode: mode}})
}

type chunkTableEntry struct {
	compressedSize, decompressedSize uint32
	md5                              [16]byte
}

// Decode parses a full BLTE container and returns the concatenated
// plaintext of every chunk.
func Decode(data []byte, keys tactkey.Store) ([]byte, error) {
	r, err := NewChunkReader(bytes.NewReader(data), keys)
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	for {
		chunk, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		out.Write(chunk)
	}
	return out.Bytes(), nil
}

// ChunkReader streams a BLTE container's plaintext one chunk at a time so a
// caller never needs to hold the full decoded container in memory at once.
type ChunkReader struct {
	r       io.Reader
	keys    tactkey.Store
	entries []chunkTableEntry
	next    int
}

// NewChunkReader parses the magic and (if present) chunk table eagerly,
// leaving chunk payloads to be read lazily via Next.
func NewChunkReader(r io.Reader, keys tactkey.Store) (*ChunkReader, error) {
	var hdr [8]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, &TruncatedHeaderError{Detail: "container shorter than 8-byte preamble"}
	}
	if !bytes.Equal(hdr[0:4], magic[:]) {
		var got [4]byte
		copy(got[:], hdr[0:4])
		return nil, &InvalidMagicError{Got: got}
	}
	headerSize := binary.BigEndian.Uint32(hdr[4:8])

	cr := &ChunkReader{r: r, keys: keys}
	if headerSize == 0 {
		// Single unchunked chunk: its size is unknown ahead of time, so the
		// whole remainder is treated as one chunk's wire bytes.
		rest, err := io.ReadAll(r)
		if err != nil {
			return nil, &TruncatedHeaderError{Detail: err.Error()}
		}
		cr.entries = []chunkTableEntry{{compressedSize: uint32(len(rest)), decompressedSize: 0}}
		cr.r = bytes.NewReader(rest)
		return cr, nil
	}

	if headerSize < 8 || (headerSize-8)%24 != 0 {
		return nil, &TruncatedHeaderError{Detail: fmt.Sprintf("header size %d is not 8+24n", headerSize)}
	}
	var flagsAndCount [4]byte
	if _, err := io.ReadFull(r, flagsAndCount[:]); err != nil {
		return nil, &TruncatedHeaderError{Detail: "truncated chunk table preamble"}
	}
	if flagsAndCount[0] != 0x0F {
		return nil, &TruncatedHeaderError{Detail: fmt.Sprintf("unexpected flags byte 0x%02x", flagsAndCount[0])}
	}
	count := int(flagsAndCount[1])<<16 | int(flagsAndCount[2])<<8 | int(flagsAndCount[3])
	if uint32(8+24*count) != headerSize {
		return nil, &TruncatedHeaderError{Detail: "chunk count disagrees with header size"}
	}

	entries := make([]chunkTableEntry, count)
	var entryBuf [24]byte
	for i := 0; i < count; i++ {
		if _, err := io.ReadFull(r, entryBuf[:]); err != nil {
			return nil, &TruncatedHeaderError{Detail: fmt.Sprintf("truncated chunk table entry %d", i)}
		}
		entries[i].compressedSize = binary.BigEndian.Uint32(entryBuf[0:4])
		entries[i].decompressedSize = binary.BigEndian.Uint32(entryBuf[4:8])
		copy(entries[i].md5[:], entryBuf[8:24])
	}
	cr.entries = entries
	return cr, nil
}

// Next decodes and returns the next chunk's plaintext, or io.EOF once every
// chunk has been consumed.
func (cr *ChunkReader) Next() ([]byte, error) {
	if cr.next >= len(cr.entries) {
		return nil, io.EOF
	}
	entry := cr.entries[cr.next]
	idx := cr.next
	cr.next++

	wire := make([]byte, entry.compressedSize)
	if _, err := io.ReadFull(cr.r, wire); err != nil {
		return nil, &TruncatedHeaderError{Detail: fmt.Sprintf("truncated chunk %d payload", idx)}
	}
	if len(cr.entries) > 1 || entry.md5 != ([16]byte{}) {
		sum := md5.Sum(wire)
		if len(cr.entries) > 1 && sum != entry.md5 {
			return nil, &Md5MismatchError{Chunk: idx, Expected: entry.md5, Actual: sum}
		}
	}
	return DecodeChunkBytes(wire, cr.keys, idx)
}

// PlanFromSpec compiles an ESpec recipe into the ChunkParts that realize it
// over plaintext, so a block-table ESpec drives chunk boundaries exactly as
// spec.md §4.1 "ESpec integration" requires. BCPack and GDeflate forms have
// no BLTE wire mode of their own (§6 enumerates only N/Z/4/F/E); they
// describe an orthogonal texture-level recipe applied before BLTE ever sees
// the bytes, so they compile to ModeNone at this layer.
func PlanFromSpec(plaintext []byte, spec *espec.Spec) ([]ChunkPart, error) {
	switch spec.Kind {
	case espec.KindNone, espec.KindBCPack, espec.KindGDeflate:
		return []ChunkPart{{Plaintext: plaintext, Mode: ModeNone}}, nil
	case espec.KindZLib:
		return []ChunkPart{{Plaintext: plaintext, Mode: ModeZLib}}, nil
	case espec.KindEncrypted:
		return nil, fmt.Errorf("blte: PlanFromSpec requires EncryptionSpec/key out of band; use PlanEncryptedFromSpec")
	case espec.KindBlockTable:
		return planBlockTable(plaintext, spec)
	default:
		return nil, fmt.Errorf("blte: unsupported top-level ESpec kind %v", spec.Kind)
	}
}

func planBlockTable(plaintext []byte, spec *espec.Spec) ([]ChunkPart, error) {
	var parts []ChunkPart
	offset := 0
	sawVariable := false
	for i, c := range spec.Chunks {
		size := int(c.Size)
		count := 1
		if c.HasCount {
			count = int(c.Count)
		}
		isVariable := !c.HasSize
		if isVariable {
			if sawVariable {
				return nil, &MultipleVariableBlocksError{}
			}
			sawVariable = true
		}
		for n := 0; n < count; n++ {
			var chunkLen int
			if isVariable {
				if i != len(spec.Chunks)-1 || n != count-1 {
					return nil, fmt.Errorf("blte: variable-size chunk must be last")
				}
				chunkLen = len(plaintext) - offset
			} else {
				chunkLen = size
			}
			if offset+chunkLen > len(plaintext) {
				return nil, fmt.Errorf("blte: ESpec chunk plan exceeds plaintext length")
			}
			sub := plaintext[offset : offset+chunkLen]
			offset += chunkLen

			subParts, err := planInner(sub, c.Inner)
			if err != nil {
				return nil, err
			}
			parts = append(parts, subParts...)
		}
	}
	return parts, nil
}

func planInner(plaintext []byte, inner *espec.Spec) ([]ChunkPart, error) {
	switch inner.Kind {
	case espec.KindNone, espec.KindBCPack, espec.KindGDeflate:
		return []ChunkPart{{Plaintext: plaintext, Mode: ModeNone}}, nil
	case espec.KindZLib:
		return []ChunkPart{{Plaintext: plaintext, Mode: ModeZLib}}, nil
	default:
		return nil, fmt.Errorf("blte: unsupported block-table inner ESpec kind %v", inner.Kind)
	}
}
