package scanner

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SubmoduleInfo describes one entry of a .gitmodules file. An
// uninitialized submodule is an empty directory: its code exists
// upstream but not in the working tree, so it cannot be indexed.
type SubmoduleInfo struct {
	Name        string
	Path        string // repository-relative
	URL         string
	Branch      string
	Initialized bool
}

// ParseGitmodules parses .gitmodules content.
func ParseGitmodules(content []byte) ([]SubmoduleInfo, error) {
	var submodules []SubmoduleInfo
	var current *SubmoduleInfo

	lines := bufio.NewScanner(bytes.NewReader(content))
	for lines.Scan() {
		line := strings.TrimSpace(lines.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if strings.HasPrefix(line, "[submodule") {
			if current != nil && current.Path != "" {
				submodules = append(submodules, *current)
			}
			current = &SubmoduleInfo{Name: sectionName(line)}
			continue
		}
		if current == nil {
			continue
		}

		key, value := splitKeyValue(line)
		switch key {
		case "path":
			current.Path = value
		case "url":
			current.URL = value
		case "branch":
			current.Branch = value
		}
	}
	if current != nil && current.Path != "" {
		submodules = append(submodules, *current)
	}
	if err := lines.Err(); err != nil {
		return nil, fmt.Errorf("failed to parse .gitmodules: %w", err)
	}
	return submodules, nil
}

// sectionName extracts the quoted name from `[submodule "name"]`.
func sectionName(line string) string {
	start := strings.Index(line, `"`)
	if start == -1 {
		return ""
	}
	end := strings.LastIndex(line, `"`)
	if end <= start {
		return ""
	}
	return line[start+1 : end]
}

func splitKeyValue(line string) (key, value string) {
	parts := strings.SplitN(line, "=", 2)
	if len(parts) != 2 {
		return "", ""
	}
	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
}

// isInitialized reports whether the submodule directory holds anything
// besides its .git link.
func isInitialized(dir string) bool {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return false
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if e.Name() != ".git" {
			return true
		}
	}
	return false
}

// DiscoverSubmodules reads the root .gitmodules (and those of
// initialized submodules, one level of nesting at a time) and reports
// each entry with its initialization state. A missing .gitmodules is
// not an error.
func DiscoverSubmodules(rootPath string) ([]SubmoduleInfo, error) {
	visited := make(map[string]bool)
	return discoverSubmodules(rootPath, "", visited)
}

func discoverSubmodules(dir, prefix string, visited map[string]bool) ([]SubmoduleInfo, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if visited[abs] {
		return nil, nil
	}
	visited[abs] = true

	content, err := os.ReadFile(filepath.Join(dir, ".gitmodules"))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read .gitmodules: %w", err)
	}

	parsed, err := ParseGitmodules(content)
	if err != nil {
		return nil, err
	}

	var result []SubmoduleInfo
	for _, sm := range parsed {
		smDir := filepath.Join(dir, sm.Path)
		if prefix != "" {
			sm.Path = prefix + "/" + filepath.ToSlash(sm.Path)
		} else {
			sm.Path = filepath.ToSlash(sm.Path)
		}
		sm.Initialized = isInitialized(smDir)
		result = append(result, sm)

		if sm.Initialized {
			nested, nerr := discoverSubmodules(smDir, sm.Path, visited)
			if nerr == nil {
				result = append(result, nested...)
			}
		}
	}
	return result, nil
}
