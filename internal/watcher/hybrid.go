package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/mnemolite/mnemolite/internal/ignore"
)

// builtinExcludes are directories never worth watching. They mirror the
// scanner's built-in excludes so the watcher and the indexer agree on
// what counts as repository content.
var builtinExcludes = []string{
	".git/",
	".hg/",
	".svn/",
	"node_modules/",
	"vendor/",
	"__pycache__/",
	".venv/",
	"venv/",
	"dist/",
	"build/",
	"target/",
	".idea/",
	".vscode/",
}

// isIgnoreFile reports whether name is one of the ignore files the
// indexer honors.
func isIgnoreFile(name string) bool {
	return name == ".gitignore" || name == ".mnemoignore"
}

// isConfigFile reports whether name is a project config file.
func isConfigFile(name string) bool {
	switch name {
	case "mnemolite.yaml", ".mnemolite.yaml", ".mnemolite.yml":
		return true
	}
	return false
}

// HybridWatcher implements file watching with fsnotify as the primary
// mechanism and polling as a fallback for filesystems where inotify is
// unavailable (some network mounts, containers with low watch limits).
type HybridWatcher struct {
	fsWatcher      *fsnotify.Watcher
	pollWatcher    *PollingWatcher
	useFsnotify    bool
	debouncer      *Debouncer
	rules          *ignore.Ruleset
	events         chan []FileEvent
	errors         chan error
	stopCh         chan struct{}
	rootPath       string
	opts           Options
	mu             sync.RWMutex
	stopped        bool
	droppedBatches atomic.Uint64
}

// HybridWatcher emits batched events ([]FileEvent) because of
// debouncing, so it satisfies this shape rather than Watcher.
var _ interface {
	Start(ctx context.Context, path string) error
	Stop() error
	Events() <-chan []FileEvent
	Errors() <-chan error
} = (*HybridWatcher)(nil)

// NewHybridWatcher creates a new hybrid watcher with the given options.
// It prefers fsnotify and falls back to polling if fsnotify cannot be
// initialized.
func NewHybridWatcher(opts Options) (*HybridWatcher, error) {
	opts = opts.WithDefaults()

	h := &HybridWatcher{
		debouncer: NewDebouncer(opts.DebounceWindow),
		events:    make(chan []FileEvent, opts.EventBufferSize),
		errors:    make(chan error, 10),
		stopCh:    make(chan struct{}),
		opts:      opts,
	}
	h.rules = h.baseRules()

	fsw, err := fsnotify.NewWatcher()
	if err == nil {
		h.fsWatcher = fsw
		h.useFsnotify = true
	} else {
		h.useFsnotify = false
		h.pollWatcher = NewPollingWatcher(opts.PollInterval)
	}

	return h, nil
}

// Start begins watching the given directory. It blocks until the
// context is cancelled or Stop is called.
func (h *HybridWatcher) Start(ctx context.Context, path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve absolute path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return fmt.Errorf("stat watch root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("watch root is not a directory: %s", absPath)
	}
	h.rootPath = absPath

	h.loadIgnoreRules()

	go h.forwardDebouncedEvents(ctx)

	if h.useFsnotify {
		return h.startFsnotify(ctx)
	}
	return h.startPolling(ctx)
}

// startFsnotify runs the fsnotify event loop.
func (h *HybridWatcher) startFsnotify(ctx context.Context) error {
	if err := h.addRecursive(h.rootPath); err != nil {
		return fmt.Errorf("add directories to watcher: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			_ = h.Stop()
			return ctx.Err()
		case <-h.stopCh:
			return nil
		case event, ok := <-h.fsWatcher.Events:
			if !ok {
				return nil
			}
			h.handleFsnotifyEvent(event)
		case err, ok := <-h.fsWatcher.Errors:
			if !ok {
				return nil
			}
			h.emitError(err)
		}
	}
}

// startPolling runs the polling fallback, routing its events through
// the same filtering and debouncing as fsnotify events.
func (h *HybridWatcher) startPolling(ctx context.Context) error {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-h.stopCh:
				return
			case event, ok := <-h.pollWatcher.Events():
				if !ok {
					return
				}
				if h.shouldIgnore(event.Path, event.IsDir) {
					continue
				}
				h.routeEvent(event.Path, event)
			case err, ok := <-h.pollWatcher.Errors():
				if !ok {
					return
				}
				h.emitError(err)
			}
		}
	}()

	return h.pollWatcher.Start(ctx, h.rootPath)
}

// handleFsnotifyEvent converts and filters raw fsnotify events.
func (h *HybridWatcher) handleFsnotifyEvent(event fsnotify.Event) {
	relPath, err := filepath.Rel(h.rootPath, event.Name)
	if err != nil {
		relPath = event.Name
	}
	relPath = filepath.ToSlash(relPath)

	isDir := false
	if info, err := os.Stat(event.Name); err == nil {
		isDir = info.IsDir()
	}

	if h.shouldIgnore(relPath, isDir) {
		return
	}

	var op Operation
	switch {
	case event.Op&fsnotify.Create != 0:
		op = OpCreate
		// New directories need their own watch.
		if isDir {
			_ = h.fsWatcher.Add(event.Name)
		}
	case event.Op&fsnotify.Write != 0:
		op = OpModify
	case event.Op&fsnotify.Remove != 0:
		op = OpDelete
	case event.Op&fsnotify.Rename != 0:
		op = OpRename
	default:
		// Chmod and unknown ops carry no content change.
		return
	}

	h.routeEvent(relPath, FileEvent{
		Path:      relPath,
		Operation: op,
		IsDir:     isDir,
		Timestamp: time.Now(),
	})
}

// routeEvent dispatches an event to the debouncer, rewriting edits to
// ignore and config files into their special operations. Ignore file
// edits also rebuild the ruleset so later events are filtered by the
// new rules.
func (h *HybridWatcher) routeEvent(relPath string, event FileEvent) {
	base := filepath.Base(relPath)

	if isIgnoreFile(base) {
		h.loadIgnoreRules()
		h.debouncer.Add(FileEvent{
			Path:      relPath,
			Operation: OpIgnoreChange,
			IsDir:     false,
			Timestamp: time.Now(),
		})
		return
	}

	if isConfigFile(base) {
		h.debouncer.Add(FileEvent{
			Path:      relPath,
			Operation: OpConfigChange,
			IsDir:     false,
			Timestamp: time.Now(),
		})
		return
	}

	h.debouncer.Add(event)
}

// forwardDebouncedEvents forwards debounced batches to the output channel.
func (h *HybridWatcher) forwardDebouncedEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.stopCh:
			return
		case events, ok := <-h.debouncer.Output():
			if !ok {
				return
			}
			if len(events) == 0 {
				continue
			}
			h.emitEvents(events)
		}
	}
}

// addRecursive adds all non-ignored directories under root to the
// fsnotify watcher.
func (h *HybridWatcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable entries are skipped, not fatal.
			return nil
		}
		if !d.IsDir() {
			return nil
		}

		relPath, _ := filepath.Rel(h.rootPath, path)
		if relPath == "." {
			return h.fsWatcher.Add(path)
		}

		if h.shouldIgnoreDir(filepath.ToSlash(relPath)) {
			return filepath.SkipDir
		}

		return h.fsWatcher.Add(path)
	})
}

// shouldIgnoreDir checks if a directory should be excluded from watching.
func (h *HybridWatcher) shouldIgnoreDir(relPath string) bool {
	if relPath == ".git" || strings.HasPrefix(relPath, ".git/") {
		return true
	}

	// The ruleset is swapped on reload; hold the lock across the match.
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rules.Match(relPath, true)
}

// shouldIgnore returns true if the path should be filtered out.
func (h *HybridWatcher) shouldIgnore(relPath string, isDir bool) bool {
	if relPath == "." || relPath == "" {
		return true
	}

	if relPath == ".git" || strings.HasPrefix(relPath, ".git/") {
		return true
	}

	// Edits to ignore and config files must pass through even when the
	// files themselves match a rule.
	base := filepath.Base(relPath)
	if isIgnoreFile(base) || isConfigFile(base) {
		return false
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rules.Match(relPath, isDir)
}

// baseRules builds a ruleset holding the built-in excludes and any
// custom patterns, without repository ignore files.
func (h *HybridWatcher) baseRules() *ignore.Ruleset {
	rs := ignore.New()
	for _, pattern := range builtinExcludes {
		rs.Add(pattern)
	}
	for _, pattern := range h.opts.IgnorePatterns {
		rs.Add(pattern)
	}
	return rs
}

// loadIgnoreRules rebuilds the ruleset from the built-in excludes plus
// every .gitignore and .mnemoignore under the root. The replacement is
// built fully before being swapped in, so Match never observes a
// half-loaded ruleset.
func (h *HybridWatcher) loadIgnoreRules() {
	rs := h.baseRules()

	_ = filepath.WalkDir(h.rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			slog.Warn("skipping entry in ignore scan",
				slog.String("path", path),
				slog.String("error", err.Error()))
			return nil
		}

		relPath, relErr := filepath.Rel(h.rootPath, path)
		if relErr != nil {
			return nil
		}
		relPath = filepath.ToSlash(relPath)

		if d.IsDir() {
			// Ignore files inside ignored directories do not apply.
			if relPath != "." && rs.Match(relPath, true) {
				return filepath.SkipDir
			}
			return nil
		}

		if !isIgnoreFile(d.Name()) {
			return nil
		}

		scope := ""
		if dir := filepath.ToSlash(filepath.Dir(relPath)); dir != "." {
			scope = dir
		}
		if err := rs.AddFile(path, scope); err != nil {
			slog.Warn("failed to read ignore file",
				slog.String("path", path),
				slog.String("error", err.Error()))
		}
		return nil
	})

	h.mu.Lock()
	h.rules = rs
	h.mu.Unlock()
}

// emitEvents sends a batch to the output channel. The send is
// non-blocking; when the buffer is full the batch is dropped and
// counted, since a stalled consumer must not stall the watcher.
func (h *HybridWatcher) emitEvents(events []FileEvent) {
	// Holding the read lock across the send keeps Stop from closing the
	// channel mid-emit. The send never blocks, so neither does Stop.
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.stopped {
		return
	}

	select {
	case h.events <- events:
	default:
		count := h.droppedBatches.Add(1)
		slog.Warn("event buffer full, dropping batch",
			slog.Int("batch_size", len(events)),
			slog.Uint64("total_dropped_batches", count),
		)
	}
}

// DroppedBatches returns the number of event batches dropped due to
// buffer overflow.
func (h *HybridWatcher) DroppedBatches() uint64 {
	return h.droppedBatches.Load()
}

// emitError sends an error to the error channel without blocking.
func (h *HybridWatcher) emitError(err error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.stopped {
		return
	}

	select {
	case h.errors <- err:
	default:
	}
}

// Stop stops the watcher and releases resources. Safe to call multiple
// times and from multiple goroutines.
func (h *HybridWatcher) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopped {
		return nil
	}

	h.stopped = true
	close(h.stopCh)

	h.debouncer.Stop()

	if h.useFsnotify && h.fsWatcher != nil {
		_ = h.fsWatcher.Close()
	}
	if h.pollWatcher != nil {
		_ = h.pollWatcher.Stop()
	}

	close(h.events)
	close(h.errors)
	return nil
}

// Events returns the channel of batched file events.
func (h *HybridWatcher) Events() <-chan []FileEvent {
	return h.events
}

// Errors returns the channel of errors.
func (h *HybridWatcher) Errors() <-chan error {
	return h.errors
}

// IsHealthy returns true while the watcher is running.
func (h *HybridWatcher) IsHealthy() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return !h.stopped
}

// WatcherType reports which mechanism is in use, "fsnotify" or "polling".
func (h *HybridWatcher) WatcherType() string {
	if h.useFsnotify {
		return "fsnotify"
	}
	return "polling"
}

// RootPath returns the root path being watched.
func (h *HybridWatcher) RootPath() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rootPath
}
