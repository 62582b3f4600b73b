package archive

import "fmt"

type TruncatedHeaderError struct{ Got int }

func (e *TruncatedHeaderError) Error() string {
	return fmt.Sprintf("archive: local header needs %d bytes, got %d", HeaderSize, e.Got)
}

type ArchiveNotFoundError struct{ ID uint16 }

func (e *ArchiveNotFoundError) Error() string {
	return fmt.Sprintf("archive: archive %d not found", e.ID)
}

type OutOfBoundsError struct {
	ID                uint16
	Offset, Size, Len int64
}

func (e *OutOfBoundsError) Error() string {
	return fmt.Sprintf("archive: read beyond archive %d bounds: %d+%d > %d", e.ID, e.Offset, e.Size, e.Len)
}

type SizeCapExceededError struct {
	ID             uint16
	CurrentSize    int64
	AdditionalSize int64
}

func (e *SizeCapExceededError) Error() string {
	return fmt.Sprintf("archive: writing %d bytes to archive %d (current %d) would exceed the 256 GiB cap",
		e.AdditionalSize, e.ID, e.CurrentSize)
}

type TooManyArchivesError struct{}

func (e *TooManyArchivesError) Error() string { return "archive: all 65536 archive IDs are in use" }
