// Package scanner discovers indexable files in a repository tree. It
// honors .gitignore and .mnemoignore rules, skips binaries and secrets,
// and enforces the repository file caps before any indexing starts.
package scanner

import (
	"time"
)

// Default caps applied when Options leaves them zero. The warning
// threshold fires once; the hard cap aborts the scan.
const (
	DefaultMaxFiles    = 10000
	DefaultWarnFiles   = 5000
	DefaultMaxFileSize = 1 << 20 // 1 MiB
)

// Options configures a repository scan.
type Options struct {
	// RootDir is the directory to scan. Defaults to ".".
	RootDir string

	// IncludeIgnored disables repository ignore files (.gitignore,
	// .mnemoignore). Built-in exclusions (VCS internals, dependency
	// trees, secrets) still apply.
	IncludeIgnored bool

	// ExcludePatterns are extra gitignore-syntax patterns applied on
	// top of the built-in exclusions.
	ExcludePatterns []string

	// MaxFiles aborts the scan when exceeded. Defaults to
	// DefaultMaxFiles.
	MaxFiles int

	// WarnFiles logs a single warning when crossed. Defaults to
	// DefaultWarnFiles.
	WarnFiles int

	// MaxFileSize skips larger files. Defaults to DefaultMaxFileSize.
	MaxFileSize int64
}

// FileInfo describes one scanned file. Path is repository-relative and
// slash-separated; AbsPath is the on-disk location.
type FileInfo struct {
	Path    string
	AbsPath string
	Size    int64
	ModTime time.Time
}

// Result is a completed scan.
type Result struct {
	Files []FileInfo

	// Skipped counts files rejected by size or exclusion rules.
	Skipped int

	// Warned reports that the scan crossed the warning threshold.
	Warned bool

	// UninitializedSubmodules lists submodule paths whose working
	// trees are empty and therefore absent from Files.
	UninitializedSubmodules []string
}
