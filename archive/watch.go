package archive

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/ngdp-go/cascstore/logx"
)

// Watch folds newly created sibling data.NNN files into the open set as
// they appear on disk, e.g. when a concurrent process adds archives this
// Manager didn't create. It is best-effort: a missed or coalesced event
// only delays discovery until the next successful write or restart, it
// never causes a read to be served incorrectly. Watch blocks until ctx is
// canceled or the watcher fails irrecoverably.
func (m *Manager) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(m.dir); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			name := filepath.Base(ev.Name)
			id, ok := parseArchiveName(name)
			if !ok {
				continue
			}
			m.mu.Lock()
			if _, exists := m.archives[id]; !exists {
				if af, err := openArchiveFile(ev.Name, id); err == nil {
					m.archives[id] = af
					m.logger.Info("discovered archive", logx.Fields{"id": id})
				}
			}
			m.mu.Unlock()
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			m.logger.Warn("archive watch error", logx.Fields{"error": err.Error()})
		}
	}
}
