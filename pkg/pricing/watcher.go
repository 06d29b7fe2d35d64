package pricing

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher hot-reloads the dynamic pricing feed when the file changes.
// It debounces rapid write sequences (editors, atomic renames) and keeps
// the previous table when a reload fails to parse, so a half-written
// feed can never empty the dynamic tier.
type Watcher struct {
	path     string
	store    *Store
	watcher  *fsnotify.Watcher
	debounce time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewWatcher creates a watcher for the pricing feed at path, feeding the
// given store. The initial load happens in Start.
func NewWatcher(path string, store *Store) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	return &Watcher{
		path:     path,
		store:    store,
		watcher:  fsw,
		debounce: 100 * time.Millisecond,
		logger:   slog.Default().With("component", "pricing.watcher"),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start loads the feed and begins watching for changes.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("watcher already running")
	}

	entries, err := LoadFeed(w.path)
	if err != nil {
		return fmt.Errorf("initial pricing feed load: %w", err)
	}
	w.store.Replace(entries)
	w.logger.Info("pricing feed loaded", "path", w.path, "entries", len(entries))

	// Watch the directory, not the file: editors and config deployers
	// replace the file by rename, which drops a file-level watch.
	dir := filepath.Dir(w.path)
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %q: %w", dir, err)
	}

	w.running = true
	go w.loop()

	return nil
}

// Stop stops watching and waits for the loop to exit. Stopping a
// watcher that never started still releases the filesystem watch.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return w.watcher.Close()
	}
	w.running = false
	close(w.stopCh)
	w.mu.Unlock()

	<-w.doneCh
	return w.watcher.Close()
}

// loop processes filesystem events with debouncing.
func (w *Watcher) loop() {
	defer close(w.doneCh)

	var timer *time.Timer
	var timerCh <-chan time.Time

	for {
		select {
		case <-w.stopCh:
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerCh = timer.C
			} else {
				timer.Reset(w.debounce)
			}

		case <-timerCh:
			timer = nil
			timerCh = nil
			w.reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("pricing feed watch error", "error", err)
		}
	}
}

// reload re-reads the feed and replaces the store. Parse failures keep
// the previous table.
func (w *Watcher) reload() {
	entries, err := LoadFeed(w.path)
	if err != nil {
		w.logger.Warn("pricing feed reload failed, keeping previous table",
			"path", w.path,
			"error", err,
		)
		return
	}

	w.store.Replace(entries)
	w.logger.Info("pricing feed reloaded", "path", w.path, "entries", len(entries))
}
