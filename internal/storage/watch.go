package storage

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"wallshuffle/internal/log"
)

// Watcher reports edits to a single file. The parent directory is watched
// so editors that replace the file on save are still seen.
type Watcher struct {
	watcher  *fsnotify.Watcher
	path     string
	onChange func()
	debounce time.Duration
	logger   *log.Logger

	closeOnce sync.Once
	done      chan struct{}
}

// Watch starts watching path and calls onChange after each burst of writes.
func Watch(path string, debounce time.Duration, onChange func(), logger *log.Logger) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create settings watcher: %w", err)
	}
	if err := fsWatcher.Add(filepath.Dir(path)); err != nil {
		_ = fsWatcher.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}

	watcher := &Watcher{
		watcher:  fsWatcher,
		path:     filepath.Clean(path),
		onChange: onChange,
		debounce: debounce,
		logger:   log.Or(logger),
		done:     make(chan struct{}),
	}
	go watcher.run()
	return watcher, nil
}

// Unbind stops delivering notifications. No onChange call starts after it returns.
func (watcher *Watcher) Unbind() {
	watcher.closeOnce.Do(func() {
		_ = watcher.watcher.Close()
		<-watcher.done
	})
}

func (watcher *Watcher) run() {
	defer close(watcher.done)

	var pending <-chan time.Time
	for {
		select {
		case event, ok := <-watcher.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != watcher.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			pending = time.After(watcher.debounce)
		case err, ok := <-watcher.watcher.Errors:
			if !ok {
				return
			}
			watcher.logger.Warn("settings watcher error", "path", watcher.path, "err", err)
		case <-pending:
			pending = nil
			watcher.onChange()
		}
	}
}
