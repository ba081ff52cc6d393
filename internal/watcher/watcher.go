// Package watcher rescans a music directory when audio files appear, change
// or disappear below it.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/sydlexius/crawler/internal/event"
	"github.com/sydlexius/crawler/internal/scanner"
)

// Service watches a directory tree and calls its trigger once a burst of
// changes has settled.
type Service struct {
	root         string
	skipDir      func(name string) bool
	trigger      func(ctx context.Context) error
	eventBus     *event.Bus
	logger       *slog.Logger
	debounce     time.Duration
	pollInterval time.Duration
	probeTimeout time.Duration

	mu       sync.Mutex
	watching map[string]bool
	snapshot map[string]time.Time // audio path -> modification time
}

// NewService creates a watcher for root. skipDir decides which directories
// below root are ignored; nil ignores none.
func NewService(root string, skipDir func(string) bool, trigger func(ctx context.Context) error, eventBus *event.Bus, logger *slog.Logger) *Service {
	if skipDir == nil {
		skipDir = func(string) bool { return false }
	}
	return &Service{
		root:         root,
		skipDir:      skipDir,
		trigger:      trigger,
		eventBus:     eventBus,
		logger:       logger.With(slog.String("component", "fs-watcher")),
		debounce:     2 * time.Second,
		pollInterval: time.Minute,
		probeTimeout: 2 * time.Second,
		watching:     make(map[string]bool),
	}
}

// SetDebounce overrides the quiet period before the trigger runs.
func (s *Service) SetDebounce(d time.Duration) {
	s.debounce = d
}

// SetPollInterval overrides how often the tree is polled when fsnotify does
// not work on it.
func (s *Service) SetPollInterval(d time.Duration) {
	s.pollInterval = d
}

// Watching reports whether dir currently has an fsnotify watch.
func (s *Service) Watching(dir string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.watching[dir]
}

// Start blocks until ctx is canceled. It watches every directory below the
// root with fsnotify, or polls the tree when fsnotify is unavailable there.
// Trigger errors are logged and do not stop the watcher.
func (s *Service) Start(ctx context.Context) error {
	info, err := os.Stat(s.root)
	if err != nil {
		return fmt.Errorf("watching %s: %w", s.root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("watching %s: not a directory", s.root)
	}

	var eventCh <-chan fsnotify.Event
	var errCh <-chan error
	var pollCh <-chan time.Time

	if ProbeFSNotify(s.root, s.probeTimeout) {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("creating fsnotify watcher: %w", err)
		}
		defer w.Close() //nolint:errcheck
		s.addTree(w, s.root)
		eventCh, errCh = w.Events, w.Errors
		s.logger.Info("filesystem watcher starting", slog.String("root", s.root), slog.Int("dirs", len(s.watching)))
		defer s.logger.Info("filesystem watcher stopping")

		return s.loop(ctx, eventCh, errCh, pollCh, func(ev fsnotify.Event) bool { return s.handleFSEvent(w, ev) })
	}

	s.mu.Lock()
	s.snapshot = snapshotTree(s.root, s.skipDir)
	s.mu.Unlock()
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	pollCh = ticker.C
	s.logger.Warn("fsnotify unavailable, polling", slog.String("root", s.root), slog.Duration("interval", s.pollInterval))
	defer s.logger.Info("filesystem watcher stopping")

	return s.loop(ctx, eventCh, errCh, pollCh, nil)
}

func (s *Service) loop(ctx context.Context, eventCh <-chan fsnotify.Event, errCh <-chan error, pollCh <-chan time.Time, handle func(fsnotify.Event) bool) error {
	// Starts stopped; reset on each relevant change.
	debounceTimer := time.NewTimer(0)
	if !debounceTimer.Stop() {
		<-debounceTimer.C
	}
	defer debounceTimer.Stop()
	pending := false

	schedule := func() {
		if !debounceTimer.Stop() {
			select {
			case <-debounceTimer.C:
			default:
			}
		}
		debounceTimer.Reset(s.debounce)
		pending = true
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-eventCh:
			if !ok {
				return nil
			}
			if handle(ev) {
				schedule()
			}

		case err, ok := <-errCh:
			if !ok {
				return nil
			}
			s.logger.Error("fsnotify error", slog.String("error", err.Error()))

		case <-pollCh:
			if s.poll() {
				schedule()
			}

		case <-debounceTimer.C:
			if !pending {
				continue
			}
			pending = false
			s.logger.Info("changes settled, rescanning", slog.String("root", s.root))
			if err := s.trigger(ctx); err != nil {
				s.logger.Error("rescan triggered by fs watcher failed", slog.String("error", err.Error()))
			}
		}
	}
}

// handleFSEvent reports whether ev should lead to a rescan.
func (s *Service) handleFSEvent(w *fsnotify.Watcher, ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return false
	}

	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if s.skipDir(filepath.Base(ev.Name)) {
				return false
			}
			// Files copied in with the directory arrive before the watch.
			s.addTree(w, ev.Name)
			return true
		}
	}

	if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
		s.mu.Lock()
		wasDir := s.watching[ev.Name]
		delete(s.watching, ev.Name)
		s.mu.Unlock()
		if wasDir {
			s.logger.Info("directory removed", slog.String("path", ev.Name))
			return true
		}
	}

	if !scanner.IsAudio(ev.Name) {
		return false
	}
	s.publish(ev.Name, opName(ev.Op))
	return true
}

// addTree watches dir and every directory below it that is not skipped.
func (s *Service) addTree(w *fsnotify.Watcher, dir string) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if path != dir && s.skipDir(d.Name()) {
			return filepath.SkipDir
		}
		if err := w.Add(path); err != nil {
			s.logger.Warn("watching directory", slog.String("path", path), slog.String("error", err.Error()))
			return nil
		}
		s.mu.Lock()
		s.watching[path] = true
		s.mu.Unlock()
		return nil
	})
}

// poll compares the tree with the previous snapshot and reports changes.
func (s *Service) poll() bool {
	next := snapshotTree(s.root, s.skipDir)
	if next == nil {
		s.logger.Warn("polling failed, root unreadable", slog.String("root", s.root))
		return false
	}

	s.mu.Lock()
	prev := s.snapshot
	s.snapshot = next
	s.mu.Unlock()

	changed := false
	for path, mod := range next {
		old, existed := prev[path]
		switch {
		case !existed:
			s.publish(path, "create")
			changed = true
		case !old.Equal(mod):
			s.publish(path, "write")
			changed = true
		}
	}
	for path := range prev {
		if _, ok := next[path]; !ok {
			s.publish(path, "remove")
			changed = true
		}
	}
	return changed
}

func (s *Service) publish(path, op string) {
	s.logger.Debug("audio file changed", slog.String("path", path), slog.String("op", op))
	s.eventBus.Publish(event.Event{
		Type: event.FileChanged,
		Data: map[string]any{
			"path": path,
			"op":   op,
			"root": s.root,
		},
	})
}

// snapshotTree maps every audio file below root to its modification time.
// It returns nil when root cannot be read.
func snapshotTree(root string, skipDir func(string) bool) map[string]time.Time {
	snap := make(map[string]time.Time)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if d.IsDir() {
			if path != root && skipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !scanner.IsAudio(path) {
			return nil
		}
		if info, err := d.Info(); err == nil {
			snap[path] = info.ModTime()
		}
		return nil
	})
	if err != nil {
		return nil
	}
	return snap
}

func opName(op fsnotify.Op) string {
	switch {
	case op.Has(fsnotify.Create):
		return "create"
	case op.Has(fsnotify.Remove):
		return "remove"
	case op.Has(fsnotify.Rename):
		return "rename"
	default:
		return "write"
	}
}
