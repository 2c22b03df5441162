package snapshot

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"
)

// DefaultDebounce is how long Watch waits for writes to settle before reloading.
const DefaultDebounce = 500 * time.Millisecond

// RunSchedule reloads the holder on a standard five-field cron expression
// until ctx is cancelled. Failed reloads are logged and retried on the next tick.
func (h *Holder) RunSchedule(ctx context.Context, expr string) error {
	c := cron.New()
	if _, err := c.AddFunc(expr, func() {
		h.logger.Debug("scheduled snapshot reload")
		_ = h.Reload(ctx)
	}); err != nil {
		return fmt.Errorf("schedule snapshot refresh %q: %w", expr, err)
	}

	c.Start()
	h.logger.Info("snapshot refresh scheduled", "schedule", expr)

	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

// Watch reloads the holder whenever the database file at path, or its
// journal, changes. Bursts of writes within debounce trigger one reload.
// It blocks until ctx is cancelled.
func (h *Holder) Watch(ctx context.Context, path string, debounce time.Duration) error {
	if path == "" {
		return fmt.Errorf("watch snapshot: store has no file path")
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("watch snapshot: bad path %q: %w", path, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	// fsnotify watches directories; the file may be replaced wholesale.
	dir := filepath.Dir(absPath)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch dir %q: %w", dir, err)
	}
	h.logger.Info("watching store file", "path", absPath)

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if !tracksStoreFile(absPath, event.Name) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, func() {
				h.logger.Debug("store file changed, reloading snapshot", "path", absPath)
				_ = h.Reload(ctx)
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			h.logger.Warn("store watcher error", "error", err)
		}
	}
}

// tracksStoreFile matches the database file and its write-ahead log or
// rollback journal. The shared-memory index changes on reads and is ignored.
func tracksStoreFile(dbPath, name string) bool {
	abs, err := filepath.Abs(name)
	if err != nil {
		return false
	}
	if abs == dbPath {
		return true
	}
	suffix, ok := strings.CutPrefix(abs, dbPath)
	return ok && (suffix == "-wal" || suffix == "-journal")
}
