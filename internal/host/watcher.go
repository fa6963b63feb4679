package host

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/leapstack-labs/sqlpreview/internal/notifier"
)

// DefaultWatchDelay coalesces bursts of filesystem events for one file.
const DefaultWatchDelay = 50 * time.Millisecond

// Watcher reports changes to individual files on disk. Parent directories are
// watched so atomic saves (write to temp, rename over) are seen.
type Watcher struct {
	fsw     *fsnotify.Watcher
	delay   time.Duration
	logger  *slog.Logger
	changed *notifier.Emitter[string]

	mu     sync.Mutex
	files  map[string]int
	dirs   map[string]int
	timers map[string]*time.Timer

	closeOnce sync.Once
}

// NewWatcher creates a watcher. A zero delay uses DefaultWatchDelay.
func NewWatcher(delay time.Duration, logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if delay <= 0 {
		delay = DefaultWatchDelay
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Watcher{
		fsw:     fsw,
		delay:   delay,
		logger:  logger,
		changed: notifier.NewEmitter[string](),
		files:   make(map[string]int),
		dirs:    make(map[string]int),
		timers:  make(map[string]*time.Timer),
	}, nil
}

// OnChange registers fn to receive the path of every changed file.
func (w *Watcher) OnChange(fn func(path string)) func() {
	return w.changed.On(fn)
}

// Add starts watching path. Calls are reference counted.
func (w *Watcher) Add(path string) error {
	path = cleanPath(path)
	dir := filepath.Dir(path)

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.dirs[dir] == 0 {
		if err := w.fsw.Add(dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}
	w.dirs[dir]++
	w.files[path]++
	w.logger.Debug("watching file", "path", path)
	return nil
}

// Remove drops one reference to path.
func (w *Watcher) Remove(path string) {
	path = cleanPath(path)
	dir := filepath.Dir(path)

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.files[path] == 0 {
		return
	}
	if w.files[path]--; w.files[path] == 0 {
		delete(w.files, path)
		if t := w.timers[path]; t != nil {
			t.Stop()
			delete(w.timers, path)
		}
	}
	if w.dirs[dir]--; w.dirs[dir] == 0 {
		delete(w.dirs, dir)
		_ = w.fsw.Remove(dir)
	}
}

// watching reports whether path is being watched.
func (w *Watcher) watching(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.files[cleanPath(path)] > 0
}

// Run delivers change events until ctx is cancelled. It closes the watcher on
// return.
func (w *Watcher) Run(ctx context.Context) error {
	defer func() { _ = w.Close() }()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.schedule(cleanPath(event.Name))

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher error", "error", err)
		}
	}
}

// Close stops the watcher and any pending notifications.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		w.mu.Lock()
		for path, t := range w.timers {
			t.Stop()
			delete(w.timers, path)
		}
		w.mu.Unlock()
		err = w.fsw.Close()
	})
	return err
}

func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.files[path] == 0 {
		return
	}
	if t := w.timers[path]; t != nil {
		t.Stop()
	}
	w.timers[path] = time.AfterFunc(w.delay, func() {
		w.mu.Lock()
		_, watched := w.files[path]
		delete(w.timers, path)
		w.mu.Unlock()

		if watched {
			w.logger.Debug("file changed", "path", path)
			w.changed.Fire(path)
		}
	})
}

func cleanPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}
