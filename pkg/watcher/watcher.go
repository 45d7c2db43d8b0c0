package watcher

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/meridianlabs/topoview/pkg/logging"
)

// ChangeEvent represents a batch of detected snapshot file changes
type ChangeEvent struct {
	Paths     []string
	Timestamp time.Time
}

// SnapshotWatcher watches a topology snapshot file for changes. The watch
// is placed on the containing directory so editors and atomic writers that
// replace the file via rename are still seen.
type SnapshotWatcher struct {
	watcher  *fsnotify.Watcher
	path     string
	events   chan ChangeEvent
	done     chan struct{}
	doneOnce sync.Once
}

// NewSnapshotWatcher creates a watcher for the given snapshot file
func NewSnapshotWatcher(path string) (*SnapshotWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to resolve snapshot path: %w", err)
	}

	sw := &SnapshotWatcher{
		watcher: watcher,
		path:    abs,
		events:  make(chan ChangeEvent, 100),
		done:    make(chan struct{}),
	}

	return sw, nil
}

// Start begins watching for file changes
func (sw *SnapshotWatcher) Start(ctx context.Context) error {
	dir := filepath.Dir(sw.path)
	if err := sw.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	logging.Info("started watching topology snapshot", "path", sw.path)

	go sw.processEvents(ctx)

	return nil
}

// processEvents filters raw filesystem events down to the snapshot file and
// batches rapid successive writes behind a short flush timer
func (sw *SnapshotWatcher) processEvents(ctx context.Context) {
	var pending []string

	flushTimer := time.NewTimer(100 * time.Millisecond)
	flushTimer.Stop()

	flush := func() {
		if len(pending) == 0 {
			return
		}
		sw.events <- ChangeEvent{
			Paths:     pending,
			Timestamp: time.Now(),
		}
		pending = nil
	}

	for {
		select {
		case <-ctx.Done():
			sw.watcher.Close()
			close(sw.events)
			sw.doneOnce.Do(func() { close(sw.done) })
			return

		case event, ok := <-sw.watcher.Events:
			if !ok {
				return
			}

			if filepath.Clean(event.Name) != sw.path {
				continue
			}
			// Removes often precede the rename that installs the new file;
			// only content-bearing operations trigger a reload.
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			pending = append(pending, event.Name)
			flushTimer.Reset(100 * time.Millisecond)

		case <-flushTimer.C:
			flush()

		case err, ok := <-sw.watcher.Errors:
			if !ok {
				return
			}
			logging.Error("watcher error", "error", err)
		}
	}
}

// Events returns the channel of change events
func (sw *SnapshotWatcher) Events() <-chan ChangeEvent {
	return sw.events
}

// Stop stops the file watcher
func (sw *SnapshotWatcher) Stop() error {
	sw.doneOnce.Do(func() { close(sw.done) })
	return sw.watcher.Close()
}
