package daemon

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// SourceWatcher implements the automatic half of §4.4's hot-reload
// contract: the reload wire request is the explicit trigger, this is
// the implicit one, firing the same InstanceHost.Reload path when the
// loaded source file changes on disk. It watches the file's parent
// directory rather than the file itself, since editors commonly
// replace a file on save (rename over it) rather than writing into
// it in place, an event fsnotify only reports against the directory.
type SourceWatcher struct {
	sourcePath string
	reload     func(ctx context.Context)
	debounce   time.Duration
	logger     *slog.Logger

	watcher *fsnotify.Watcher

	mu    sync.Mutex
	timer *time.Timer
}

// NewSourceWatcher builds a watcher for sourcePath. reload is called
// (with the context passed to Start, since no client connection owns
// this trigger) after debounce has elapsed with no further change
// events.
func NewSourceWatcher(sourcePath string, debounce time.Duration, reload func(ctx context.Context), logger *slog.Logger) (*SourceWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(filepath.Dir(sourcePath)); err != nil {
		watcher.Close()
		return nil, err
	}
	if debounce <= 0 {
		debounce = 300 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SourceWatcher{
		sourcePath: sourcePath,
		reload:     reload,
		debounce:   debounce,
		logger:     logger,
		watcher:    watcher,
	}, nil
}

// Start runs the watch loop until ctx is cancelled or Close is called.
func (w *SourceWatcher) Start(ctx context.Context) {
	go w.loop(ctx)
}

func (w *SourceWatcher) loop(ctx context.Context) {
	target := filepath.Clean(w.sourcePath)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.scheduleReload(ctx)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("source watcher error", "source", w.sourcePath, "error", err)
		}
	}
}

func (w *SourceWatcher) scheduleReload(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		w.logger.Info("source file changed, reloading", "source", w.sourcePath)
		w.reload(ctx)
	})
}

func (w *SourceWatcher) Close() error {
	return w.watcher.Close()
}
