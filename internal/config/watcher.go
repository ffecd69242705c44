package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/stepcap/stepcap/internal/logging"
)

// debounce absorbs editor write bursts before reloading.
const debounce = 300 * time.Millisecond

// Watcher reloads the config file when it changes on disk and hands the
// fresh config to a callback. Only the recording settings are meant to be
// hot-reloaded; browser and storage changes need a restart.
type Watcher struct {
	projectDir string
	watcher    *fsnotify.Watcher
	onReload   func(*Config)
}

// NewWatcher builds a watcher for the config under projectDir.
func NewWatcher(projectDir string, onReload func(*Config)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	// Watch the directory: editors replace files rather than write in
	// place, which would drop a file-level watch.
	dir := filepath.Dir(filepath.Join(projectDir, DefaultPath))
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	return &Watcher{projectDir: projectDir, watcher: fsw, onReload: onReload}, nil
}

// Run dispatches reloads until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	defer w.watcher.Close()

	configName := filepath.Base(DefaultPath)
	var timer *time.Timer
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != configName {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, w.reload)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Warn("config watcher: %v", err)
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.projectDir)
	if err != nil {
		logging.Warn("config reload failed, keeping previous config: %v", err)
		return
	}
	logging.Info("config reloaded")
	w.onReload(cfg)
}
