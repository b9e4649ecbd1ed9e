// Package validation checks adapter-supplied input before it reaches
// the core. Every rejection is an invalid_input error; adapters map it
// to their protocol's bad-request surface.
package validation

import (
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	mnemoerrors "github.com/mnemolite/mnemolite/internal/errors"
)

const (
	// MaxQueryLength bounds search queries.
	MaxQueryLength = 1024

	// MaxPathLength bounds repository and file paths.
	MaxPathLength = 4096

	// MaxWorkers caps the requested pool size for one run.
	MaxWorkers = 64
)

// Repository checks a repository identifier: the absolute root path of
// the indexed tree.
func Repository(repository string) error {
	switch {
	case strings.TrimSpace(repository) == "":
		return mnemoerrors.ValidationError("repository is required", nil)
	case len(repository) > MaxPathLength:
		return mnemoerrors.ValidationError("repository path exceeds the length limit", nil)
	case strings.ContainsRune(repository, 0):
		return mnemoerrors.ValidationError("repository contains a NUL byte", nil)
	case !filepath.IsAbs(repository):
		return mnemoerrors.ValidationError("repository must be an absolute path: "+repository, nil).
			WithSuggestion("pass the repository root as an absolute path")
	}
	return nil
}

// FilePath checks a file path supplied with single-file operations. The
// path may be absolute or repository-relative, but a relative path must
// not escape the repository root.
func FilePath(path string) error {
	switch {
	case strings.TrimSpace(path) == "":
		return mnemoerrors.ValidationError("file_path is required", nil)
	case len(path) > MaxPathLength:
		return mnemoerrors.ValidationError("file_path exceeds the length limit", nil)
	case strings.ContainsRune(path, 0):
		return mnemoerrors.ValidationError("file_path contains a NUL byte", nil)
	}
	if !filepath.IsAbs(path) {
		clean := filepath.ToSlash(filepath.Clean(path))
		if clean == ".." || strings.HasPrefix(clean, "../") {
			return mnemoerrors.ValidationError("file_path escapes the repository root: "+path, nil)
		}
	}
	return nil
}

// Query checks a search query. Emptiness is checked after trimming so a
// whitespace-only query is rejected too.
func Query(query string) error {
	switch {
	case strings.TrimSpace(query) == "":
		return mnemoerrors.ValidationError("query must not be empty", nil)
	case len(query) > MaxQueryLength:
		return mnemoerrors.ValidationError("query exceeds the length limit", nil)
	case !utf8.ValidString(query):
		return mnemoerrors.ValidationError("query is not valid UTF-8", nil)
	}
	return nil
}

// Workers bounds a requested worker count. Zero means unset; values
// below one are normalized by the caller, so only the ceiling is
// checked here.
func Workers(n int) error {
	if n > MaxWorkers {
		return mnemoerrors.ValidationError("workers exceeds the supported maximum", nil).
			WithDetail("max", strconv.Itoa(MaxWorkers))
	}
	return nil
}

// Pagination checks limit and offset. Zero limit means "use default".
func Pagination(limit, offset int) error {
	if limit < 0 {
		return mnemoerrors.ValidationError("limit must not be negative", nil)
	}
	if offset < 0 {
		return mnemoerrors.ValidationError("offset must not be negative", nil)
	}
	return nil
}
