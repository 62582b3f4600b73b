package blte

import "fmt"

// Error kinds mirror spec.md §7's BLTE taxonomy as concrete structs rather
// than a shared enum, following the teacher's errors.go convention of one
// type per failure shape.

type InvalidMagicError struct{ Got [4]byte }

func (e *InvalidMagicError) Error() string {
	return fmt.Sprintf("blte: invalid magic %q", e.Got[:])
}

type TruncatedHeaderError struct{ Detail string }

func (e *TruncatedHeaderError) Error() string { return "blte: truncated header: " + e.Detail }

type UnsupportedModeError struct{ Byte byte }

func (e *UnsupportedModeError) Error() string {
	return fmt.Sprintf("blte: unsupported mode %q (0x%02x)", rune(e.Byte), e.Byte)
}

type CompressionError struct{ Detail string }

func (e *CompressionError) Error() string { return "blte: compression error: " + e.Detail }

type DecompressionTooLargeError struct{ Limit, Requested int64 }

func (e *DecompressionTooLargeError) Error() string {
	return fmt.Sprintf("blte: decompression size %d exceeds limit %d", e.Requested, e.Limit)
}

type InvalidIVSizeError struct{ Actual int }

func (e *InvalidIVSizeError) Error() string {
	return fmt.Sprintf("blte: invalid IV size %d, want 4 or 8", e.Actual)
}

type MissingKeyError struct{ KeyName uint64 }

func (e *MissingKeyError) Error() string {
	return fmt.Sprintf("blte: missing encryption key 0x%016x", e.KeyName)
}

type NestedEncryptionError struct{}

func (e *NestedEncryptionError) Error() string { return "blte: nested encryption (E inside E)" }

type Md5MismatchError struct {
	Chunk            int
	Expected, Actual [16]byte
}

func (e *Md5MismatchError) Error() string {
	return fmt.Sprintf("blte: md5 mismatch in chunk %d: expected %x, got %x", e.Chunk, e.Expected, e.Actual)
}

type MultipleVariableBlocksError struct{}

func (e *MultipleVariableBlocksError) Error() string {
	return "blte: more than one variable-size block in ESpec block table"
}
