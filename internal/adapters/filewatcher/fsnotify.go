// Package filewatcher monitors the knowledge directory for changes.
package filewatcher

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// debounceWindow coalesces editor save bursts into one reload.
const debounceWindow = 2 * time.Second

// KnowledgeWatcher watches a directory of knowledge JSON files and invokes a
// reload callback when they change. Schedule files are ignored like the
// loader ignores them.
type KnowledgeWatcher struct {
	watcher *fsnotify.Watcher
	log     *zap.Logger
}

// New creates a watcher.
func New(log *zap.Logger) (*KnowledgeWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &KnowledgeWatcher{watcher: w, log: log}, nil
}

// Watch monitors dir until ctx is done, calling reload after each debounced
// batch of create/write/remove events on *.json files.
func (w *KnowledgeWatcher) Watch(ctx context.Context, dir string, reload func(context.Context)) error {
	if err := w.watcher.Add(dir); err != nil {
		return err
	}

	go func() {
		var timer *time.Timer
		var fire <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				if !isKnowledgeFile(event.Name) {
					continue
				}
				if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				w.log.Debug("knowledge file changed", zap.String("file", event.Name))
				if timer == nil {
					timer = time.NewTimer(debounceWindow)
					fire = timer.C
				} else {
					timer.Reset(debounceWindow)
				}
			case <-fire:
				timer = nil
				fire = nil
				w.log.Info("knowledge directory changed, reloading")
				reload(ctx)
			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				w.log.Warn("watch error", zap.Error(err))
			}
		}
	}()

	return nil
}

// Stop stops the watcher.
func (w *KnowledgeWatcher) Stop() error {
	return w.watcher.Close()
}

func isKnowledgeFile(path string) bool {
	if filepath.Ext(path) != ".json" {
		return false
	}
	return !strings.Contains(filepath.Base(path), "ramadan_schedule")
}
