// Package ui renders indexing progress and status in the terminal. A
// plain line writer serves pipes and CI; interactive terminals get a
// bubbletea view with a progress bar and throughput history.
package ui

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
)

// Stage identifies a phase of a repository indexing run.
type Stage int

const (
	// StageScanning covers repository file discovery.
	StageScanning Stage = iota
	// StageIndexing covers the per-file pipeline (parse, embed, persist).
	StageIndexing
	// StageGraph covers graph construction over the persisted chunks.
	StageGraph
	// StageComplete marks the run as finished.
	StageComplete
)

// String returns the human-readable stage name.
func (s Stage) String() string {
	switch s {
	case StageScanning:
		return "Scanning"
	case StageIndexing:
		return "Indexing"
	case StageGraph:
		return "Graph"
	case StageComplete:
		return "Complete"
	default:
		return "Unknown"
	}
}

// Icon returns the short stage tag for plain text output.
func (s Stage) Icon() string {
	switch s {
	case StageScanning:
		return "SCAN"
	case StageIndexing:
		return "INDEX"
	case StageGraph:
		return "GRAPH"
	case StageComplete:
		return "DONE"
	default:
		return "???"
	}
}

// ProgressEvent is one progress update. Total zero means the total is
// not known yet for the stage.
type ProgressEvent struct {
	Stage       Stage
	Current     int
	Total       int
	CurrentFile string
	Message     string
}

// ErrorEvent reports a per-file failure or warning during a run.
type ErrorEvent struct {
	File   string
	Err    error
	IsWarn bool
}

// CompletionStats is the final run summary shown after indexing.
type CompletionStats struct {
	Files    int
	Indexed  int
	Cached   int
	Skipped  int
	Failed   int
	Chunks   int
	Nodes    int
	Edges    int
	Duration time.Duration
	Warnings int
}

// Renderer displays run progress. Implementations are safe for
// concurrent use; the coordinator reports from worker goroutines.
type Renderer interface {
	// Start initializes the renderer.
	Start(ctx context.Context) error

	// UpdateProgress updates the progress display.
	UpdateProgress(event ProgressEvent)

	// AddError records a per-file failure or warning.
	AddError(event ErrorEvent)

	// Complete shows the final summary.
	Complete(stats CompletionStats)

	// Stop stops the renderer and restores the terminal.
	Stop() error
}

// Config configures renderer selection and display.
type Config struct {
	Output     io.Writer
	ForcePlain bool
	NoColor    bool
	Repository string // repository root shown in the header
}

// ConfigOption modifies a Config.
type ConfigOption func(*Config)

// WithForcePlain forces the plain line writer.
func WithForcePlain(force bool) ConfigOption {
	return func(c *Config) {
		c.ForcePlain = force
	}
}

// WithNoColor disables color output.
func WithNoColor(noColor bool) ConfigOption {
	return func(c *Config) {
		c.NoColor = noColor
	}
}

// WithRepository sets the repository root shown in the header.
func WithRepository(repo string) ConfigOption {
	return func(c *Config) {
		c.Repository = repo
	}
}

// NewConfig builds a Config for the given output.
func NewConfig(output io.Writer, opts ...ConfigOption) Config {
	cfg := Config{Output: output}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// NewRenderer picks a renderer for the environment: the TTY view for
// interactive terminals, the plain writer for pipes, CI, and --plain.
func NewRenderer(cfg Config) Renderer {
	if cfg.ForcePlain {
		return NewPlainRenderer(cfg)
	}
	if !IsTTY(cfg.Output) {
		return NewPlainRenderer(cfg)
	}
	if DetectCI() {
		return NewPlainRenderer(cfg)
	}

	tui, err := NewTUIRenderer(cfg)
	if err != nil {
		return NewPlainRenderer(cfg)
	}
	return tui
}

// IsTTY reports whether the writer is an interactive terminal.
func IsTTY(w io.Writer) bool {
	if w == nil {
		return false
	}
	if f, ok := w.(*os.File); ok {
		return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return false
}

// DetectNoColor reports whether NO_COLOR is set.
func DetectNoColor() bool {
	_, exists := os.LookupEnv("NO_COLOR")
	return exists
}

// DetectCI reports whether a known CI environment variable is set.
func DetectCI() bool {
	ciVars := []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "TRAVIS"}
	for _, v := range ciVars {
		if _, exists := os.LookupEnv(v); exists {
			return true
		}
	}
	return false
}
