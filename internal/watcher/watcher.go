// Package watcher reloads connected displays when deck files change.
package watcher

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 200 * time.Millisecond

var watchedExtensions = map[string]struct{}{
	".html": {},
	".htm":  {},
	".css":  {},
	".js":   {},
}

// Watcher watches a deck directory recursively and fires a debounced
// callback with the last changed file.
type Watcher struct {
	fsw      *fsnotify.Watcher
	log      *zap.Logger
	onChange func(path string)
	debounce time.Duration
	stop     chan struct{}
}

func New(root string, log *zap.Logger, onChange func(path string)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		fsw:      fsw,
		log:      log,
		onChange: onChange,
		debounce: defaultDebounce,
		stop:     make(chan struct{}),
	}

	// fsnotify is not recursive; watch every subdirectory and pick up new
	// ones as they appear.
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return fsw.Add(path)
		}
		return nil
	})
	if err != nil {
		fsw.Close()
		return nil, err
	}

	go w.run()
	return w, nil
}

func (w *Watcher) Close() error {
	close(w.stop)
	return w.fsw.Close()
}

func (w *Watcher) run() {
	var timer *time.Timer
	var fire <-chan time.Time // nil while no change is pending
	lastFile := ""

	for {
		select {
		case <-w.stop:
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = w.fsw.Add(event.Name)
					continue
				}
			}
			ext := strings.ToLower(filepath.Ext(event.Name))
			if _, watched := watchedExtensions[ext]; !watched {
				continue
			}
			lastFile = event.Name
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				fire = timer.C
			} else {
				if !timer.Stop() {
					<-timer.C
				}
				timer.Reset(w.debounce)
			}

		case <-fire:
			timer = nil
			fire = nil
			if lastFile != "" {
				w.log.Info("deck changed", zap.String("file", lastFile))
				w.onChange(lastFile)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn("watcher error", zap.Error(err))
		}
	}
}
