package workspace

import (
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads the config file when it changes on disk. Editors replace
// files with rename-write dances, so it watches the containing directory and
// filters for the config's name.
type Watcher struct {
	fsw    *fsnotify.Watcher
	path   string
	logger *slog.Logger
	done   chan struct{}
}

// Watch starts watching the config at path and calls onReload with each
// successfully reloaded config. Parse failures are logged and skipped so a
// half-edited file never tears down the running bridge.
func Watch(path string, logger *slog.Logger, onReload func(*Config)) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(path)
	if err := fsw.Add(dir); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	w := &Watcher{fsw: fsw, path: path, logger: logger, done: make(chan struct{})}
	go w.run(onReload)
	return w, nil
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	err := w.fsw.Close()
	<-w.done
	return err
}

func (w *Watcher) run(onReload func(*Config)) {
	defer close(w.done)

	// Debounce bursts: editors fire several events per save.
	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	base := filepath.Base(w.path)
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != base {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(200 * time.Millisecond)

		case <-timer.C:
			cfg, err := Load(w.path)
			if err != nil {
				w.logger.Warn("workspace: reload skipped", "path", w.path, "error", err)
				continue
			}
			w.logger.Info("workspace: config reloaded", "path", w.path, "folders", len(cfg.Folders))
			onReload(cfg)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("workspace: watch error", "error", err)
		}
	}
}
