package credentials

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Change describes what happened to the credential file.
type Change int

const (
	// ChangeWritten means the credential was created or replaced.
	ChangeWritten Change = iota

	// ChangeRemoved means the credential was deleted or moved away.
	ChangeRemoved
)

// String returns the string representation of the change.
func (c Change) String() string {
	switch c {
	case ChangeWritten:
		return "written"
	case ChangeRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Watch reports changes to the credential file until ctx is done.
// The parent directory is watched rather than the file itself because
// Save replaces the file by rename. fn runs on the watcher goroutine.
func (s *Store) Watch(ctx context.Context, fn func(Change)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create credential watcher: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(s.path) {
					continue
				}
				change, relevant := classify(event.Op)
				if !relevant {
					continue
				}
				slog.Debug("Credential file changed",
					"path", s.path,
					"change", change.String(),
				)
				fn(change)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("Credential watcher error",
					"path", s.path,
					"error", err.Error(),
				)
			}
		}
	}()

	return nil
}

func classify(op fsnotify.Op) (Change, bool) {
	switch {
	case op.Has(fsnotify.Remove), op.Has(fsnotify.Rename):
		return ChangeRemoved, true
	case op.Has(fsnotify.Create), op.Has(fsnotify.Write):
		return ChangeWritten, true
	default:
		return 0, false
	}
}
