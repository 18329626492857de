package ingestion

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"

	"github.com/Benny93/notemap/internal/graph"
)

// DefaultDebounce is the quiet period after the last change before a reload.
const DefaultDebounce = 500 * time.Millisecond

// WatchOption configures Watch.
type WatchOption func(*watchConfig)

type watchConfig struct {
	debounce time.Duration
	logger   *slog.Logger
	onError  func(error)
}

// WithDebounce sets the quiet period before a reload.
func WithDebounce(d time.Duration) WatchOption {
	return func(c *watchConfig) {
		c.debounce = d
	}
}

// WithWatchLogger sets the logger.
func WithWatchLogger(l *slog.Logger) WatchOption {
	return func(c *watchConfig) {
		c.logger = l
	}
}

// WithReloadErrors receives reloads that failed. The previous graph stays
// in effect.
func WithReloadErrors(fn func(error)) WatchOption {
	return func(c *watchConfig) {
		c.onError = fn
	}
}

// Watch monitors a document file or directory and calls onChange with the
// reloaded graph after each burst of changes. Blocks until the context is
// cancelled.
func Watch(ctx context.Context, path string, onChange func(*graph.FullGraph), opts ...WatchOption) error {
	cfg := watchConfig{debounce: DefaultDebounce, logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("watching %s: %w", path, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	root := path
	var matcher gitignore.Matcher
	if info.IsDir() {
		matcher, err = loadGitignoreMatcher(root)
		if err != nil {
			return fmt.Errorf("reading .gitignore: %w", err)
		}
		if err := addDirs(watcher, root, root, matcher); err != nil {
			return fmt.Errorf("setting up watcher: %w", err)
		}
	} else {
		// Editors replace files on save, so the parent directory is watched.
		if err := watcher.Add(filepath.Dir(path)); err != nil {
			return fmt.Errorf("setting up watcher: %w", err)
		}
	}

	relevant := func(name string) bool {
		if !info.IsDir() {
			return filepath.Clean(name) == filepath.Clean(path)
		}
		return isDocument(name, root, matcher)
	}

	batchTimer := time.NewTimer(cfg.debounce)
	batchTimer.Stop() // Don't start yet
	defer batchTimer.Stop()

	changed := 0
	cfg.logger.Info("watching for changes", "path", path)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if info.IsDir() && event.Has(fsnotify.Create) {
				if fi, err := os.Stat(event.Name); err == nil && fi.IsDir() &&
					!shouldSkipDir(fi.Name(), event.Name, root, matcher) {
					if err := addDirs(watcher, root, event.Name, matcher); err != nil {
						cfg.logger.Warn("cannot watch new directory", "dir", event.Name, "error", err)
					}
					changed++
					batchTimer.Reset(cfg.debounce)
					continue
				}
			}

			if !relevant(event.Name) {
				continue
			}
			cfg.logger.Debug("change detected", "file", event.Name, "op", event.Op.String())
			changed++
			batchTimer.Reset(cfg.debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			cfg.logger.Warn("watch error", "error", err)

		case <-batchTimer.C:
			if changed == 0 {
				continue
			}
			cfg.logger.Info("reloading notes", "path", path, "changes", changed)
			changed = 0

			g, err := LoadPath(path)
			if err != nil {
				cfg.logger.Warn("reload failed", "path", path, "error", err)
				if cfg.onError != nil {
					cfg.onError(err)
				}
				continue
			}
			onChange(g)
		}
	}
}

// addDirs watches dir and every directory below it that is not skipped.
// Ignore patterns are matched relative to root.
func addDirs(watcher *fsnotify.Watcher, root, dir string, matcher gitignore.Matcher) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && shouldSkipDir(d.Name(), path, root, matcher) {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
}
