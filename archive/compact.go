package archive

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"golang.org/x/sys/unix"
)

// compactUtilizationThreshold is the used/total ratio below which an
// archive is a compaction candidate (spec.md §4.2 "compact").
const compactUtilizationThreshold = 0.70

// compactMinSize skips archives too small to bother compacting.
const compactMinSize = 1024 * 1024

// CompactionReport summarizes the effect of a Compact call.
type CompactionReport struct {
	ArchivesCompacted int
	BytesReclaimed    int64
}

// String renders a human-readable summary using byte-count humanization,
// matching the rest of the codebase's operator-facing output style.
func (r CompactionReport) String() string {
	return fmt.Sprintf("compacted %d archive(s), reclaimed %s",
		r.ArchivesCompacted, humanize.Bytes(uint64(r.BytesReclaimed)))
}

// Compact rewrites any archive whose live-byte utilization has fallen below
// compactUtilizationThreshold, dropping the dead space left by removed or
// superseded entries. usedBytes reports, for an archive ID, how many of its
// bytes are still referenced by an encoding index or manifest; callers that
// don't track liveness may skip Compact entirely.
func (m *Manager) Compact(usedBytes map[uint16]int64) (CompactionReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var report CompactionReport
	for id, af := range m.archives {
		af.mu.RLock()
		total := af.cursor
		af.mu.RUnlock()

		if total < compactMinSize {
			continue
		}
		used, ok := usedBytes[id]
		if !ok {
			continue
		}
		if total == 0 || float64(used)/float64(total) >= compactUtilizationThreshold {
			continue
		}

		reclaimed, err := m.compactOne(af, used)
		if err != nil {
			return report, err
		}
		report.ArchivesCompacted++
		report.BytesReclaimed += reclaimed
	}
	return report, nil
}

// compactOne copies af's live prefix (the caller-reported used length) into
// a sibling .tmp file, then atomically renames it over the original and
// remaps. Caller holds m.mu; compactOne takes af.mu itself.
func (m *Manager) compactOne(af *archiveFile, usedLen int64) (int64, error) {
	af.mu.Lock()
	defer af.mu.Unlock()

	before := af.cursor
	tmpPath := af.path + ".tmp"
	tmp, err := os.OpenFile(tmpPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, fmt.Errorf("archive: create %s: %w", tmpPath, err)
	}
	if usedLen > 0 {
		if _, err := tmp.WriteAt(af.mapped[:usedLen], 0); err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			return 0, fmt.Errorf("archive: copy into %s: %w", tmpPath, err)
		}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return 0, fmt.Errorf("archive: fsync %s: %w", tmpPath, err)
	}
	tmp.Close()

	if af.mapped != nil {
		if err := unix.Munmap(af.mapped); err != nil {
			return 0, fmt.Errorf("archive: munmap %s: %w", af.path, err)
		}
		af.mapped = nil
	}
	if err := af.f.Close(); err != nil {
		return 0, fmt.Errorf("archive: close %s before rename: %w", af.path, err)
	}
	if err := os.Rename(tmpPath, af.path); err != nil {
		return 0, fmt.Errorf("archive: rename %s over %s: %w", tmpPath, af.path, err)
	}

	f, err := os.OpenFile(af.path, os.O_RDWR, 0o644)
	if err != nil {
		return 0, fmt.Errorf("archive: reopen %s: %w", af.path, err)
	}
	af.f = f
	af.cursor = usedLen
	if err := af.remapLocked(usedLen); err != nil {
		return 0, err
	}
	return before - usedLen, nil
}
