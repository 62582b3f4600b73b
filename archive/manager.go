package archive

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/ngdp-go/cascstore/blte"
	"github.com/ngdp-go/cascstore/bytesref"
	"github.com/ngdp-go/cascstore/logx"
	"github.com/ngdp-go/cascstore/tactkey"
)

// MaxArchiveSize is the 256 GiB per-file cap mandated by the CASC on-disk
// format (spec.md §4.2 invariants).
const MaxArchiveSize int64 = 256 * 1024 * 1024 * 1024

// safetyMargin keeps writes from landing exactly at the cap.
const safetyMargin int64 = 100 * 1024 * 1024

// remapGrowThreshold is the minimum byte growth that forces a remap, in
// addition to any write that doubles the file.
const remapGrowThreshold int64 = 64 * 1024 * 1024

// archiveFile is one open data.NNN file: a writable handle plus a read-only
// memory map of its current contents.
type archiveFile struct {
	id   uint16
	path string

	mu     sync.RWMutex // guards mapped/cursor for this file
	f      *os.File
	mapped []byte // nil when the file is empty
	cursor int64  // write position; len(mapped) lags it until the next remap
}

func openArchiveFile(path string, id uint16) (*archiveFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("archive: open %s: %w", path, err)
	}
	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("archive: stat %s: %w", path, err)
	}
	af := &archiveFile{id: id, path: path, f: f, cursor: stat.Size()}
	if stat.Size() > 0 {
		if err := af.remapLocked(stat.Size()); err != nil {
			f.Close()
			return nil, err
		}
	}
	return af, nil
}

// remapLocked replaces the current mapping; caller holds af.mu for writing.
func (af *archiveFile) remapLocked(size int64) error {
	if af.mapped != nil {
		if err := unix.Munmap(af.mapped); err != nil {
			return fmt.Errorf("archive: munmap %s: %w", af.path, err)
		}
		af.mapped = nil
	}
	if size == 0 {
		return nil
	}
	data, err := unix.Mmap(int(af.f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("archive: mmap %s: %w", af.path, err)
	}
	af.mapped = data
	return nil
}

func (af *archiveFile) close() error {
	af.mu.Lock()
	defer af.mu.Unlock()
	if af.mapped != nil {
		unix.Munmap(af.mapped)
		af.mapped = nil
	}
	return af.f.Close()
}

// Manager coordinates a directory of data.NNN archive files: mmap'd random
// reads, atomic append writes, and online compaction (spec.md §4.2).
type Manager struct {
	dir string

	mu       sync.RWMutex // guards archives map and archive selection
	archives map[uint16]*archiveFile

	defaultMode blte.Mode
	keys        tactkey.Store
	logger      logx.Logger
}

// Options configures a Manager.
type Options struct {
	// DefaultMode is used by WriteContent when the caller doesn't request a
	// specific mode.
	DefaultMode blte.Mode
	// Keys resolves TactKeys for decoding encrypted BLTE content.
	Keys tactkey.Store
	// Logger receives structured diagnostic events. Defaults to a no-op.
	Logger logx.Logger
}

// OpenAll scans dir for data.NNN files (three decimal digits), memory-maps
// each read-only, and records each file's write cursor at its current
// length (spec.md §4.2 "open_all").
func OpenAll(dir string, opts Options) (*Manager, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("archive: read dir %s: %w", dir, err)
	}
	m := &Manager{
		dir:         dir,
		archives:    make(map[uint16]*archiveFile),
		defaultMode: opts.DefaultMode,
		keys:        opts.Keys,
		logger:      logx.Coalesce(opts.Logger),
	}
	if m.defaultMode == 0 {
		m.defaultMode = blte.ModeNone
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		id, ok := parseArchiveName(e.Name())
		if !ok {
			continue
		}
		path := filepath.Join(dir, e.Name())
		info, err := e.Info()
		if err == nil && info.Size() > MaxArchiveSize {
			m.logger.Warn("archive exceeds size cap", logx.Fields{"id": id, "size": info.Size()})
		}
		af, err := openArchiveFile(path, id)
		if err != nil {
			return nil, err
		}
		m.archives[id] = af
	}
	return m, nil
}

func parseArchiveName(name string) (uint16, bool) {
	if len(name) != 8 || name[:5] != "data." {
		return 0, false
	}
	n, err := strconv.Atoi(name[5:8])
	if err != nil || n < 0 || n > 0xFFFF {
		return 0, false
	}
	return uint16(n), true
}

// ReadRaw returns the bytes at (id, off, size) as stored on disk, with no
// interpretation of their contents.
func (m *Manager) ReadRaw(id uint16, off, size uint32) ([]byte, error) {
	af, err := m.get(id)
	if err != nil {
		return nil, err
	}
	af.mu.RLock()
	defer af.mu.RUnlock()
	start, end := int64(off), int64(off)+int64(size)
	if end > int64(len(af.mapped)) {
		if end > af.cursor {
			return nil, &OutOfBoundsError{ID: id, Offset: start, Size: int64(size), Len: af.cursor}
		}
		// Written since the last remap: read through the file handle.
		out := make([]byte, size)
		if _, err := af.f.ReadAt(out, start); err != nil {
			return nil, fmt.Errorf("archive: read %s: %w", af.path, err)
		}
		return out, nil
	}
	out := make([]byte, size)
	copy(out, af.mapped[start:end])
	return out, nil
}

// ReadContent returns the decoded blob stored at (id, off, size): it
// recognizes an agent-style entry (30-byte local header followed by "BLTE"),
// a bare CDN-style BLTE blob, or raw (unrecognized) bytes, per spec.md §4.2.
func (m *Manager) ReadContent(id uint16, off, size uint32) ([]byte, error) {
	raw, err := m.ReadRaw(id, off, size)
	if err != nil {
		return nil, err
	}
	if len(raw) >= HeaderSize+4 && bytes.Equal(raw[HeaderSize:HeaderSize+4], []byte("BLTE")) {
		return blte.Decode(raw[HeaderSize:], m.keys)
	}
	if len(raw) >= 4 && bytes.Equal(raw[0:4], []byte("BLTE")) {
		return blte.Decode(raw, m.keys)
	}
	return raw, nil
}

// ReadContentRef is ReadContent returning a bytesref.Bytes handle: BLTE
// content (bare or behind a local header) is decoded, and raw bytes are
// copied out of the memory map, so the handle never points into the map and
// its Release callback is nil. It reads only the mapped range: bytes written
// since the last remap are reported as out of bounds.
func (m *Manager) ReadContentRef(id uint16, off, size uint32) (bytesref.Bytes, error) {
	af, err := m.get(id)
	if err != nil {
		return bytesref.Bytes{}, err
	}
	af.mu.RLock()
	defer af.mu.RUnlock()
	start, end := int64(off), int64(off)+int64(size)
	if end > int64(len(af.mapped)) {
		return bytesref.Bytes{}, &OutOfBoundsError{ID: id, Offset: start, Size: int64(size), Len: int64(len(af.mapped))}
	}
	region := af.mapped[start:end]
	if len(region) >= 4 && bytes.Equal(region[0:4], []byte("BLTE")) {
		out, err := blte.Decode(region, m.keys)
		if err != nil {
			return bytesref.Bytes{}, err
		}
		return bytesref.New(out), nil
	}
	if len(region) >= HeaderSize+4 && bytes.Equal(region[HeaderSize:HeaderSize+4], []byte("BLTE")) {
		out, err := blte.Decode(region[HeaderSize:], m.keys)
		if err != nil {
			return bytesref.Bytes{}, err
		}
		return bytesref.New(out), nil
	}
	cp := make([]byte, len(region))
	copy(cp, region)
	return bytesref.New(cp), nil
}

func (m *Manager) get(id uint16) (*archiveFile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	af, ok := m.archives[id]
	if !ok {
		return nil, &ArchiveNotFoundError{ID: id}
	}
	return af, nil
}

// WriteContent BLTE-encodes data (applying the manager's default mode, or
// ModeNone if compress is false), computes its EKey, and appends it to a
// suitable archive (spec.md §4.2 "write_content").
func (m *Manager) WriteContent(data []byte, compress bool) (id uint16, offset, totalSize uint32, ekey [16]byte, err error) {
	mode := blte.ModeNone
	if compress {
		mode = m.defaultMode
	}
	return m.WriteContentWithMode(data, mode)
}

// WriteContentWithMode is WriteContent with an explicit BLTE mode.
func (m *Manager) WriteContentWithMode(data []byte, mode blte.Mode) (id uint16, offset, totalSize uint32, ekey [16]byte, err error) {
	wire, err := blte.EncodeSingle(data, mode)
	if err != nil {
		return 0, 0, 0, ekey, err
	}
	ekey = md5Sum(wire)
	header := NewLocalHeader(ekey, uint32(len(wire)))
	combined := append(header.MarshalBinary(), wire...)

	m.mu.Lock()
	defer m.mu.Unlock()

	archiveID := m.selectForWriteLocked(int64(len(combined)))
	af, ok := m.archives[archiveID]
	if !ok {
		var cerr error
		af, cerr = m.createArchiveLocked(archiveID)
		if cerr != nil {
			return 0, 0, 0, ekey, cerr
		}
	}

	af.mu.Lock()
	off := af.cursor
	if off+int64(len(combined)) > MaxArchiveSize {
		af.mu.Unlock()
		return 0, 0, 0, ekey, &SizeCapExceededError{ID: archiveID, CurrentSize: off, AdditionalSize: int64(len(combined))}
	}
	if _, werr := af.f.WriteAt(combined, off); werr != nil {
		af.mu.Unlock()
		return 0, 0, 0, ekey, fmt.Errorf("archive: write %s: %w", af.path, werr)
	}
	if serr := af.f.Sync(); serr != nil {
		af.mu.Unlock()
		return 0, 0, 0, ekey, fmt.Errorf("archive: fsync %s: %w", af.path, serr)
	}
	newSize := off + int64(len(combined))
	grew := newSize - int64(len(af.mapped))
	shouldRemap := grew >= remapGrowThreshold || (len(af.mapped) > 0 && newSize >= 2*int64(len(af.mapped))) || len(af.mapped) == 0
	if shouldRemap {
		if err := af.remapLocked(newSize); err != nil {
			af.mu.Unlock()
			return 0, 0, 0, ekey, err
		}
	}
	af.cursor = newSize
	af.mu.Unlock()

	return archiveID, uint32(off), uint32(len(combined)), ekey, nil
}

// selectForWriteLocked returns an archive ID with room for addLen more
// bytes, creating a fresh one if every open archive is near the cap.
// Caller holds m.mu.
func (m *Manager) selectForWriteLocked(addLen int64) uint16 {
	ids := make([]uint16, 0, len(m.archives))
	for id := range m.archives {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		af := m.archives[id]
		af.mu.RLock()
		fits := af.cursor+addLen <= MaxArchiveSize-safetyMargin
		af.mu.RUnlock()
		if fits {
			return id
		}
	}
	for next := 0; next <= 0xFFFF; next++ {
		if _, ok := m.archives[uint16(next)]; !ok {
			return uint16(next)
		}
	}
	return 0
}

// createArchiveLocked creates a new, empty data.NNN file. Caller holds m.mu.
func (m *Manager) createArchiveLocked(id uint16) (*archiveFile, error) {
	path := filepath.Join(m.dir, fmt.Sprintf("data.%03d", id))
	af, err := openArchiveFile(path, id)
	if err != nil {
		return nil, err
	}
	m.archives[id] = af
	return af, nil
}

// Close unmaps and closes every open archive file.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var firstErr error
	for _, af := range m.archives {
		if err := af.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
