package encoding

import "fmt"

type InvalidMagicError struct{ Got [2]byte }

func (e *InvalidMagicError) Error() string {
	return fmt.Sprintf("encoding: invalid magic %q, want \"EN\"", e.Got[:])
}

type TruncatedError struct {
	Detail   string
	Got, Want int
}

func (e *TruncatedError) Error() string {
	return fmt.Sprintf("encoding: truncated %s: got %d bytes, want at least %d", e.Detail, e.Got, e.Want)
}

type PageChecksumMismatchError struct {
	Page             int
	Expected, Actual [16]byte
}

func (e *PageChecksumMismatchError) Error() string {
	return fmt.Sprintf("encoding: page %d checksum mismatch: expected %x, got %x", e.Page, e.Expected, e.Actual)
}

// InvalidIndexError reports a page whose contents contradict its own page
// index entry or its own internal ordering invariant: a wrong first key, or
// entries not in strict ascending order.
type InvalidIndexError struct {
	Page   int
	Reason string
}

func (e *InvalidIndexError) Error() string {
	return fmt.Sprintf("encoding: page %d invalid: %s", e.Page, e.Reason)
}

// UnsupportedVersionError reports an encoding-file version this package
// doesn't know how to read.
type UnsupportedVersionError struct{ Version uint8 }

func (e *UnsupportedVersionError) Error() string {
	return fmt.Sprintf("encoding: unsupported version %d, want 1", e.Version)
}

// InvalidHeaderFieldError reports a header field outside its allowed range
// (key size, page size).
type InvalidHeaderFieldError struct {
	Field string
	Got   int
}

func (e *InvalidHeaderFieldError) Error() string {
	return fmt.Sprintf("encoding: invalid %s: %d", e.Field, e.Got)
}

type UnknownESpecIndexError struct{ Index uint32 }

func (e *UnknownESpecIndexError) Error() string {
	return fmt.Sprintf("encoding: espec index %d out of range", e.Index)
}

type NotFoundError struct{ Key string }

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("encoding: key %s not found", e.Key)
}

type CheckpointStaleError struct{}

func (e *CheckpointStaleError) Error() string {
	return "encoding: checkpoint source checksum does not match the current encoding file"
}
