package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads the config file on change and publishes an atomic
// snapshot. Readers call Current on every request; a bad reload keeps the
// last good snapshot.
type Watcher struct {
	path     string
	current  atomic.Pointer[Config]
	onChange func(*Config)
	log      *slog.Logger
}

// NewWatcher loads path once and returns a watcher holding the snapshot.
// onChange may be nil.
func NewWatcher(path string, onChange func(*Config), log *slog.Logger) (*Watcher, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	w := &Watcher{path: path, onChange: onChange, log: log}
	w.current.Store(cfg)
	return w, nil
}

// Current returns the latest good snapshot.
func (w *Watcher) Current() *Config { return w.current.Load() }

// Watch blocks until ctx is done, reloading on file changes. Editors
// replace files with rename+create, so the parent directory is watched
// and events are filtered by name.
func (w *Watcher) Watch(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return err
	}

	// Writes arrive in bursts; the timer coalesces them into one reload.
	var pending *time.Timer
	defer func() {
		if pending != nil {
			pending.Stop()
		}
	}()

	base := filepath.Base(w.path)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != base || !ev.Op.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			if pending == nil {
				pending = time.AfterFunc(250*time.Millisecond, w.reload)
			} else {
				pending.Reset(250 * time.Millisecond)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.LogAttrs(ctx, slog.LevelWarn, "config watch error", slog.String("error", err.Error()))
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.log.LogAttrs(context.Background(), slog.LevelError, "config reload failed, keeping previous",
			slog.String("path", w.path),
			slog.String("error", err.Error()))
		return
	}
	w.current.Store(cfg)
	w.log.LogAttrs(context.Background(), slog.LevelInfo, "config reloaded", slog.String("path", w.path))
	if w.onChange != nil {
		w.onChange(cfg)
	}
}
