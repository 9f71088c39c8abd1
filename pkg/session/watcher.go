package session

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/harun/docmcp/pkg/document"
	"github.com/rs/zerolog/log"
)

// Watcher reports on-disk edits of cached documents to the manager. Events
// for one path are held until the path has been quiet for the settle period,
// so an editor's save burst counts once.
type Watcher struct {
	fsw     *fsnotify.Watcher
	manager *Manager
	root    string
	settle  time.Duration

	mu      sync.Mutex
	pending map[string]time.Time

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// WatcherConfig holds configuration for the watcher
type WatcherConfig struct {
	// StabilityThreshold is the settle period. Defaults to 100ms.
	StabilityThreshold time.Duration
}

// NewWatcher creates a watcher over the manager's storage root.
func NewWatcher(manager *Manager, config WatcherConfig) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	settle := config.StabilityThreshold
	if settle <= 0 {
		settle = 100 * time.Millisecond
	}
	return &Watcher{
		fsw:     fsw,
		manager: manager,
		root:    manager.Storage().Root(),
		settle:  settle,
		pending: make(map[string]time.Time),
		stop:    make(chan struct{}),
	}, nil
}

// Start watches the root and every directory below it.
func (w *Watcher) Start() error {
	if err := w.watchTree(w.root); err != nil {
		return fmt.Errorf("failed to watch documents root: %w", err)
	}
	w.wg.Add(1)
	go w.run()

	log.Info().Str("path", w.root).Dur("settle", w.settle).Msg("Document watcher started")
	return nil
}

// Stop ends the event loop and drops pending changes.
func (w *Watcher) Stop() error {
	w.stopOnce.Do(func() { close(w.stop) })
	w.wg.Wait()

	w.mu.Lock()
	clear(w.pending)
	w.mu.Unlock()

	if err := w.fsw.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	log.Info().Msg("Document watcher stopped")
	return nil
}

func (w *Watcher) run() {
	defer w.wg.Done()

	tick := w.settle / 2
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.note(ev, time.Now())
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("Watcher error")
		case now := <-ticker.C:
			for _, path := range w.settled(now) {
				w.report(path)
			}
		}
	}
}

// note records ev. New directories are watched; attribute-only changes and
// our own writes are dropped.
func (w *Watcher) note(ev fsnotify.Event, at time.Time) {
	if ev.Op == fsnotify.Chmod || shouldIgnore(ev.Name) {
		return
	}
	if ev.Has(fsnotify.Create) {
		if info, err := w.manager.Storage().Fs().Stat(ev.Name); err == nil && info.IsDir() {
			_ = w.watchTree(ev.Name)
			return
		}
	}
	if w.manager.Storage().RecentlyWritten(ev.Name) {
		log.Debug().Str("path", ev.Name).Msg("Ignoring own write")
		return
	}

	w.mu.Lock()
	w.pending[ev.Name] = at
	w.mu.Unlock()
}

// settled removes and returns, sorted, the paths quiet since now - settle.
func (w *Watcher) settled(now time.Time) []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	var out []string
	for path, last := range w.pending {
		if now.Sub(last) >= w.settle {
			out = append(out, path)
			delete(w.pending, path)
		}
	}
	sort.Strings(out)
	return out
}

func (w *Watcher) report(path string) {
	if w.manager.Storage().RecentlyWritten(path) {
		return
	}
	if affected := w.manager.ExternalChange(path); affected > 0 {
		log.Info().
			Str("path", path).
			Int("handles", affected).
			Msg("Cached document changed on disk")
	}
}

func (w *Watcher) watchTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.root && shouldIgnore(path) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Failed to watch directory")
		}
		return nil
	})
}

// shouldIgnore skips dotfiles, Office lock files and our own temp files.
func shouldIgnore(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") || strings.HasPrefix(base, "~$") {
		return true
	}
	return document.IsTempFile(base)
}
