package config

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultSettle = 200 * time.Millisecond

// Watcher monitors a config file for changes and emits validated new configs.
type Watcher struct {
	path   string
	settle time.Duration
}

// NewWatcher creates a Watcher for the given config file path.
func NewWatcher(path string) *Watcher {
	return &Watcher{path: path, settle: defaultSettle}
}

// Watch subscribes to filesystem events for the config file and sends
// validated configs on the returned channel, which is closed when ctx is
// cancelled. The parent directory is watched so that editors which replace
// the file via rename are still seen. A change that fails validation is
// logged and the current config stays in effect.
func (w *Watcher) Watch(ctx context.Context) (<-chan *Config, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: create watcher: %w", err)
	}
	target := filepath.Clean(w.path)
	if err := fw.Add(filepath.Dir(target)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("config: watch %s: %w", filepath.Dir(target), err)
	}

	ch := make(chan *Config, 1)
	go func() {
		defer close(ch)
		defer fw.Close()

		// Writes arrive in bursts; reload once the file has been quiet for settle.
		var pending <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-fw.Events:
				if !ok {
					return
				}
				if filepath.Clean(evt.Name) != target {
					continue
				}
				if evt.Has(fsnotify.Write) || evt.Has(fsnotify.Create) || evt.Has(fsnotify.Rename) {
					pending = time.After(w.settle)
				}
			case err, ok := <-fw.Errors:
				if !ok {
					return
				}
				log.Printf("config watcher: %v", err)
			case <-pending:
				pending = nil
				cfg, err := Load(w.path)
				if err != nil {
					log.Printf("config watcher: reload failed (keeping current config): %v", err)
					continue
				}
				log.Printf("config watcher: config reloaded from %s", w.path)

				// Keep only the newest config if the consumer is behind.
				select {
				case ch <- cfg:
				case <-ch:
					ch <- cfg
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return ch, nil
}
