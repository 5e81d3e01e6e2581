// Package watcher observes the vault for document changes and triggers the
// sync passes after a debounce quiet period.
package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/ansuz/internal/models"
)

// DefaultDebounce is the quiet period after the last qualifying event
// before a sync fires.
const DefaultDebounce = 2 * time.Second

// Syncer is the slice of the sync engine the watcher drives.
type Syncer interface {
	Structural(ctx context.Context) (models.StructuralStats, error)
	Semantic(ctx context.Context) (models.SemanticStats, error)
}

// EventCallback is called after each watcher-driven sync completes.
type EventCallback func(stats models.StructuralStats)

// Watch starts an fsnotify watcher on the vault root and processes change
// events until ctx is cancelled.
//
// All events flow into the select loop of this one goroutine, which holds
// the only reference to the debounce timer — no shared timer state, no
// lock. Each qualifying event resets the timer; when it fires, structural
// sync runs synchronously in the loop and semantic sync is kicked off as a
// background task (at most one at a time; the hash gate absorbs overlap).
//
// New directories created at runtime are added to the watch list. The
// trash subtree and other dot-directories are ignored, as is anything
// that is not a .md file.
func Watch(ctx context.Context, sync Syncer, vaultRoot string, debounce time.Duration, logger *slog.Logger, cb EventCallback) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, vaultRoot); err != nil {
		return err
	}

	logger.Info("watcher: started",
		slog.String("root", vaultRoot),
		slog.Duration("debounce", debounce))

	// The loop owns the timer; nothing else touches it.
	var debounceTimer *time.Timer
	var debounceCh <-chan time.Time

	schedule := func() {
		if debounceTimer == nil {
			debounceTimer = time.NewTimer(debounce)
			debounceCh = debounceTimer.C
		} else {
			debounceTimer.Reset(debounce)
		}
	}

	// semanticBusy holds a token while a background semantic pass runs.
	semanticBusy := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-debounceCh:
			stats, err := sync.Structural(ctx)
			if err != nil {
				logger.Warn("watcher: structural sync failed", slog.String("error", err.Error()))
				continue
			}
			if cb != nil {
				cb(stats)
			}

			select {
			case semanticBusy <- struct{}{}:
				go func() {
					defer func() { <-semanticBusy }()
					if _, err := sync.Semantic(ctx); err != nil {
						logger.Warn("watcher: semantic sync failed", slog.String("error", err.Error()))
					}
				}()
			default:
				// A semantic pass is already running; the next debounce
				// fire will pick up whatever it misses.
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if isIgnoredDir(filepath.Base(ev.Name)) {
						continue
					}
					if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
					} else {
						logger.Debug("watcher: watching new dir", slog.String("path", ev.Name))
					}
					schedule()
					continue
				}
			}
			if !qualifies(vaultRoot, ev.Name) {
				continue
			}
			logger.Debug("watcher: change", slog.String("path", ev.Name), slog.String("op", ev.Op.String()))
			schedule()

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// qualifies reports whether an event path is a tracked document: a .md
// file inside the vault but outside the trash subtree and dot-dirs.
func qualifies(vaultRoot, absPath string) bool {
	if !strings.HasSuffix(absPath, ".md") {
		return false
	}
	rel, err := filepath.Rel(vaultRoot, absPath)
	if err != nil {
		return false
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if strings.HasPrefix(part, ".") {
			return false
		}
	}
	return true
}

func isIgnoredDir(name string) bool {
	return strings.HasPrefix(name, ".")
}

// addDirsRecursive adds root and all its non-hidden subdirectories to the
// watch list.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && isIgnoredDir(d.Name()) {
			return fs.SkipDir
		}
		return w.Add(path)
	})
}
