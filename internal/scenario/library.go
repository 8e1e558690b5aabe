package scenario

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Library reads scenario text files through a cache. Missing or unreadable
// files read as empty text.
type Library struct {
	fsys fs.FS

	mu    sync.RWMutex
	cache map[string]string
}

// NewLibrary creates a library over fsys.
func NewLibrary(fsys fs.FS) *Library {
	return &Library{fsys: fsys, cache: make(map[string]string)}
}

// Text returns the contents of name, or "" when it cannot be read.
func (l *Library) Text(name string) string {
	if name == "" {
		return ""
	}
	l.mu.RLock()
	text, ok := l.cache[name]
	l.mu.RUnlock()
	if ok {
		return text
	}

	data, err := fs.ReadFile(l.fsys, name)
	if err != nil {
		text = ""
	} else {
		text = string(data)
	}

	l.mu.Lock()
	l.cache[name] = text
	l.mu.Unlock()
	return text
}

// Reset drops every cached file.
func (l *Library) Reset() {
	l.mu.Lock()
	l.cache = make(map[string]string)
	l.mu.Unlock()
}

// Watch resets the cache whenever a file under dir changes. It blocks until
// ctx is done.
func (l *Library) Watch(ctx context.Context, dir string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
	if err != nil {
		return err
	}
	logger.Info("Watching scenario content", "dir", dir)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := watcher.Add(event.Name); err != nil {
						logger.Warn("failed to watch new directory", "path", event.Name, "error", err)
					}
				}
			}
			logger.Debug("Scenario content changed", "path", event.Name, "op", event.Op.String())
			l.Reset()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("scenario watcher error", "error", err)
		}
	}
}
