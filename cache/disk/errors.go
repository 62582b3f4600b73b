package disk

import "fmt"

// DiskFullError is returned when a write would drop free space below the
// configured minimum.
type DiskFullError struct {
	Dir     string
	MinFree uint64
}

func (e *DiskFullError) Error() string {
	return fmt.Sprintf("disk: writing to %s would leave less than %d bytes free", e.Dir, e.MinFree)
}
