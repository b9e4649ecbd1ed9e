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
)

// PollingWatcher detects file changes by periodically rescanning the
// tree and diffing against the previous snapshot. It is the fallback
// for filesystems without change notification.
type PollingWatcher struct {
	interval  time.Duration
	snapshots map[string]fileSnapshot
	events    chan FileEvent
	errors    chan error
	stopCh    chan struct{}
	mu        sync.RWMutex
	stopped   bool
	rootPath  string
}

type fileSnapshot struct {
	modTime time.Time
	size    int64
	isDir   bool
}

// NewPollingWatcher creates a polling watcher with the given interval.
func NewPollingWatcher(interval time.Duration) *PollingWatcher {
	return &PollingWatcher{
		interval:  interval,
		snapshots: make(map[string]fileSnapshot),
		events:    make(chan FileEvent, 100),
		errors:    make(chan error, 10),
		stopCh:    make(chan struct{}),
	}
}

// Start begins polling the given directory. It blocks until the context
// is cancelled or Stop is called.
func (p *PollingWatcher) Start(ctx context.Context, path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve absolute path: %w", err)
	}
	if _, err := os.Stat(absPath); err != nil {
		return fmt.Errorf("stat watch root: %w", err)
	}
	p.rootPath = absPath

	// Baseline snapshot; the first tick diffs against this.
	if err := p.scan(); err != nil {
		return fmt.Errorf("perform initial scan: %w", err)
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = p.Stop()
			return ctx.Err()
		case <-p.stopCh:
			return nil
		case <-ticker.C:
			if err := p.detectChanges(); err != nil {
				select {
				case p.errors <- err:
				default:
				}
			}
		}
	}
}

// Stop stops the polling watcher. Safe to call multiple times.
func (p *PollingWatcher) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return nil
	}

	p.stopped = true
	close(p.stopCh)
	close(p.events)
	close(p.errors)
	return nil
}

// Events returns the channel of file events.
func (p *PollingWatcher) Events() <-chan FileEvent {
	return p.events
}

// Errors returns the channel of errors.
func (p *PollingWatcher) Errors() <-chan error {
	return p.errors
}

// scan walks the tree and records the baseline snapshot.
func (p *PollingWatcher) scan() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	return filepath.WalkDir(p.rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable entries are skipped, not fatal.
			return nil
		}

		relPath, snap, ok := p.snapshot(path, d)
		if !ok {
			return nil
		}
		p.snapshots[relPath] = snap
		return nil
	})
}

// detectChanges rescans the tree, emits events for the differences, and
// replaces the snapshot.
func (p *PollingWatcher) detectChanges() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	current := make(map[string]fileSnapshot)

	err := filepath.WalkDir(p.rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}

		relPath, snap, ok := p.snapshot(path, d)
		if !ok {
			return nil
		}
		current[relPath] = snap

		prev, seen := p.snapshots[relPath]
		switch {
		case !seen:
			p.emitEvent(FileEvent{
				Path:      relPath,
				Operation: OpCreate,
				IsDir:     snap.isDir,
				Timestamp: time.Now(),
			})
		case prev.modTime != snap.modTime || prev.size != snap.size:
			p.emitEvent(FileEvent{
				Path:      relPath,
				Operation: OpModify,
				IsDir:     snap.isDir,
				Timestamp: time.Now(),
			})
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("walk directory for changes: %w", err)
	}

	// Anything in the old snapshot but not the new one is gone.
	for path, snap := range p.snapshots {
		if _, exists := current[path]; !exists {
			p.emitEvent(FileEvent{
				Path:      path,
				Operation: OpDelete,
				IsDir:     snap.isDir,
				Timestamp: time.Now(),
			})
		}
	}

	p.snapshots = current
	return nil
}

// snapshot builds the relative path and snapshot for one walk entry.
func (p *PollingWatcher) snapshot(path string, d fs.DirEntry) (string, fileSnapshot, bool) {
	relPath, err := filepath.Rel(p.rootPath, path)
	if err != nil || relPath == "." {
		return "", fileSnapshot{}, false
	}

	info, err := d.Info()
	if err != nil {
		return "", fileSnapshot{}, false
	}

	return filepath.ToSlash(relPath), fileSnapshot{
		modTime: info.ModTime(),
		size:    info.Size(),
		isDir:   d.IsDir(),
	}, true
}

// emitEvent sends an event without blocking. Must be called with the
// lock held.
func (p *PollingWatcher) emitEvent(event FileEvent) {
	if p.stopped {
		return
	}

	select {
	case p.events <- event:
	default:
		slog.Warn("polling watcher buffer full, dropping event",
			slog.String("path", event.Path),
			slog.String("op", event.Operation.String()),
		)
	}
}
