package config

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the interval collapsing bursts of file events into one
// reload.
const DefaultDebounce = 100 * time.Millisecond

// ErrNoConfigPath indicates Watch was called on a manager without a
// configuration file.
var ErrNoConfigPath = errors.New("no config path to watch")

// Watch reloads the configuration whenever the configured file changes.
// The parent directory is watched rather than the file itself so editors
// that replace the file on save keep triggering reloads. Watching stops
// when the context is cancelled or the manager is closed.
func (m *Manager) Watch(ctx context.Context) error {
	if m.path == "" {
		return ErrNoConfigPath
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	dir := filepath.Dir(m.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return err
	}

	go m.processFileEvents(ctx, watcher)

	return nil
}

func (m *Manager) processFileEvents(ctx context.Context, watcher *fsnotify.Watcher) {
	defer watcher.Close()

	target := filepath.Clean(m.path)
	var debounceMu sync.Mutex
	var debounce *time.Timer

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopWatch:
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			debounceMu.Lock()
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(DefaultDebounce, m.reloadFromWatch)
			debounceMu.Unlock()
		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("config watcher error", slog.String("error", watchErr.Error()))
		}
	}
}

func (m *Manager) reloadFromWatch() {
	if err := m.Reload(); err != nil {
		slog.Warn("config reload failed, keeping previous configuration",
			slog.String("path", m.path),
			slog.String("error", err.Error()),
		)
		return
	}
	slog.Debug("config reloaded", slog.String("path", m.path))
}
