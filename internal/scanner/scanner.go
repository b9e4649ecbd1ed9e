package scanner

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	mnemoerrors "github.com/mnemolite/mnemolite/internal/errors"
	"github.com/mnemolite/mnemolite/internal/ignore"
	"github.com/mnemolite/mnemolite/internal/logging"
)

// ignoreFileNames are the repository ignore files honored during a
// scan, in precedence order (.mnemoignore rules load after .gitignore
// in the same directory, so they win ties).
var ignoreFileNames = []string{".gitignore", ".mnemoignore"}

// builtinExcludes are always applied, include_ignored or not: version
// control internals, dependency trees, build output and lockfiles.
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
	"*.min.js",
	"*.min.css",
	"package-lock.json",
	"yarn.lock",
	"pnpm-lock.yaml",
	"go.sum",
}

// sensitiveExcludes are never indexed regardless of options; leaking a
// credential into the search index is worse than a missing file.
var sensitiveExcludes = []string{
	".env",
	".env.*",
	"*.pem",
	"*.key",
	"*.p12",
	"*.pfx",
	"*credentials*",
	"*secrets*",
	".netrc",
	".npmrc",
	".pypirc",
	"id_rsa",
	"id_dsa",
	"id_ecdsa",
	"id_ed25519",
}

// Scanner walks repository trees. Safe for concurrent Scan calls; each
// scan builds its own rulesets.
type Scanner struct{}

// New creates a Scanner.
func New() *Scanner {
	return &Scanner{}
}

// Scan walks opts.RootDir and returns every indexable file, sorted by
// path. Symlinked directories are not descended into, so link cycles
// cannot recurse. Crossing opts.WarnFiles logs once; exceeding
// opts.MaxFiles aborts with an invalid-input error rather than indexing
// an unbounded tree.
func (s *Scanner) Scan(ctx context.Context, opts Options) (*Result, error) {
	rootDir := opts.RootDir
	if rootDir == "" {
		rootDir = "."
	}
	absRoot, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve scan root: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to stat scan root: %w", err)
	}
	if !info.IsDir() {
		return nil, mnemoerrors.ValidationError("scan root is not a directory: "+absRoot, nil)
	}

	maxFiles := opts.MaxFiles
	if maxFiles <= 0 {
		maxFiles = DefaultMaxFiles
	}
	warnFiles := opts.WarnFiles
	if warnFiles <= 0 {
		warnFiles = DefaultWarnFiles
	}
	maxFileSize := opts.MaxFileSize
	if maxFileSize <= 0 {
		maxFileSize = DefaultMaxFileSize
	}

	builtin := ignore.New()
	for _, p := range builtinExcludes {
		builtin.Add(p)
	}
	for _, p := range sensitiveExcludes {
		builtin.Add(p)
	}
	for _, p := range opts.ExcludePatterns {
		builtin.Add(p)
	}

	// Repository ignore files load lazily as the walk enters each
	// directory: rules scoped to a directory only ever apply below it,
	// and WalkDir visits parents first.
	repoRules := ignore.New()

	res := &Result{}
	walkErr := filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			return nil // unreadable entries are skipped, not fatal
		}

		relPath, err := filepath.Rel(absRoot, path)
		if err != nil {
			return nil
		}
		relPath = filepath.ToSlash(relPath)
		if relPath == "." {
			s.loadIgnoreFiles(repoRules, absRoot, "")
			return nil
		}

		if d.IsDir() {
			if builtin.Match(relPath, true) {
				return filepath.SkipDir
			}
			if !opts.IncludeIgnored && repoRules.Match(relPath, true) {
				res.Skipped++
				return filepath.SkipDir
			}
			s.loadIgnoreFiles(repoRules, path, relPath)
			return nil
		}

		// Symlinks are recorded as neither files nor directories.
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}

		if builtin.Match(relPath, false) {
			res.Skipped++
			return nil
		}
		if !opts.IncludeIgnored && repoRules.Match(relPath, false) {
			res.Skipped++
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			return nil
		}
		if fi.Size() > maxFileSize {
			res.Skipped++
			return nil
		}

		res.Files = append(res.Files, FileInfo{
			Path:    relPath,
			AbsPath: path,
			Size:    fi.Size(),
			ModTime: fi.ModTime(),
		})

		if len(res.Files) == warnFiles {
			res.Warned = true
			logging.Event(ctx, "scan.warn",
				slog.String("root", absRoot),
				slog.Int("files", warnFiles),
				slog.String("reason", "large repository"))
		}
		if len(res.Files) > maxFiles {
			return errTooManyFiles
		}
		return nil
	})

	if walkErr != nil {
		if walkErr == errTooManyFiles {
			return nil, mnemoerrors.ValidationError(
				fmt.Sprintf("repository exceeds the %d file cap", maxFiles), nil).
				WithDetail("root", absRoot).
				WithSuggestion("narrow the scan with exclude patterns or raise repo.max_files")
		}
		return nil, walkErr
	}

	sort.Slice(res.Files, func(i, j int) bool {
		return res.Files[i].Path < res.Files[j].Path
	})

	// An uninitialized submodule is silently missing code; surface it.
	submodules, smErr := DiscoverSubmodules(absRoot)
	if smErr != nil {
		slog.Debug("submodule discovery failed", slog.String("error", smErr.Error()))
	}
	for _, sm := range submodules {
		if !sm.Initialized {
			res.UninitializedSubmodules = append(res.UninitializedSubmodules, sm.Path)
			logging.Event(ctx, "scan.submodule.uninitialized",
				slog.String("name", sm.Name),
				slog.String("path", sm.Path))
		}
	}
	return res, nil
}

// errTooManyFiles is the walk sentinel for the hard cap.
var errTooManyFiles = fmt.Errorf("file cap exceeded")

// loadIgnoreFiles adds the ignore files found in dir, scoping their
// rules to the repository-relative directory.
func (s *Scanner) loadIgnoreFiles(rules *ignore.Ruleset, dir, scope string) {
	for _, name := range ignoreFileNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := rules.AddFile(path, scope); err != nil {
			slog.Debug("skipping unreadable ignore file",
				slog.String("path", path),
				slog.String("error", err.Error()))
		}
	}
}
