package ui

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// PlainRenderer writes one line per progress event. Used for pipes, CI,
// and explicit --plain runs.
type PlainRenderer struct {
	mu         sync.Mutex
	out        io.Writer
	repository string
	started    bool
}

// NewPlainRenderer creates a plain line renderer.
func NewPlainRenderer(cfg Config) *PlainRenderer {
	return &PlainRenderer{
		out:        cfg.Output,
		repository: cfg.Repository,
	}
}

// Start implements Renderer.
func (r *PlainRenderer) Start(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return nil
	}
	r.started = true
	if r.repository != "" {
		_, _ = fmt.Fprintf(r.out, "Indexing %s\n", r.repository)
	}
	return nil
}

// UpdateProgress implements Renderer.
func (r *PlainRenderer) UpdateProgress(event ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	msg := event.Message
	if msg == "" {
		msg = event.CurrentFile
	}

	switch {
	case event.Total > 0:
		_, _ = fmt.Fprintf(r.out, "[%s] %d/%d %s\n", event.Stage.Icon(), event.Current, event.Total, msg)
	case msg != "":
		_, _ = fmt.Fprintf(r.out, "[%s] %s\n", event.Stage.Icon(), msg)
	}
}

// AddError implements Renderer.
func (r *PlainRenderer) AddError(event ErrorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prefix := "ERROR"
	if event.IsWarn {
		prefix = "WARN"
	}

	if event.File != "" {
		_, _ = fmt.Fprintf(r.out, "%s: %s: %v\n", prefix, event.File, event.Err)
	} else {
		_, _ = fmt.Fprintf(r.out, "%s: %v\n", prefix, event.Err)
	}
}

// Complete implements Renderer.
func (r *PlainRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, _ = fmt.Fprintf(r.out, "Complete: %d files (%d indexed, %d cached, %d skipped) in %s\n",
		stats.Files, stats.Indexed, stats.Cached, stats.Skipped,
		stats.Duration.Round(100*time.Millisecond))
	_, _ = fmt.Fprintf(r.out, "Stored: %d chunks, %d nodes, %d edges\n",
		stats.Chunks, stats.Nodes, stats.Edges)

	if stats.Failed > 0 || stats.Warnings > 0 {
		_, _ = fmt.Fprintf(r.out, "Issues: %d failed, %d warnings\n", stats.Failed, stats.Warnings)
	}
}

// Stop implements Renderer.
func (r *PlainRenderer) Stop() error {
	return nil
}

var _ Renderer = (*PlainRenderer)(nil)
