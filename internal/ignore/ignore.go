// Package ignore matches paths against ignore-file rules. It implements
// the gitignore pattern syntax (https://git-scm.com/docs/gitignore) and
// is shared by the repository scanner for both .gitignore and
// .mnemoignore files.
package ignore

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Ruleset holds compiled ignore rules in declaration order. Build it
// fully before sharing; Add methods are not safe to call concurrently
// with Match.
type Ruleset struct {
	rules []rule
}

type rule struct {
	regex    *regexp.Regexp
	negated  bool   // "!pattern" re-includes earlier matches
	dirOnly  bool   // trailing "/" restricts to directories
	anchored bool   // leading "/" or an inner "/" roots the match
	scope    string // directory the owning ignore file lives in, "" for root
}

// New returns an empty ruleset.
func New() *Ruleset {
	return &Ruleset{}
}

// Add compiles one pattern rooted at the repository top.
func (rs *Ruleset) Add(pattern string) {
	rs.AddScoped(pattern, "")
}

// AddScoped compiles one pattern that applies only under scope, the
// repository-relative directory of the ignore file it came from.
func (rs *Ruleset) AddScoped(pattern, scope string) {
	trailingSpace := strings.HasSuffix(pattern, `\ `)
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return
	}
	if strings.HasPrefix(pattern, "#") && !strings.HasPrefix(pattern, `\#`) {
		return
	}

	r := rule{scope: scope}

	pattern = strings.TrimPrefix(pattern, `\#`)
	if strings.HasPrefix(pattern, `\!`) {
		pattern = pattern[1:]
	} else if strings.HasPrefix(pattern, "!") {
		r.negated = true
		pattern = pattern[1:]
	}
	if trailingSpace && strings.HasSuffix(pattern, `\`) {
		pattern = strings.TrimSuffix(pattern, `\`) + " "
	}
	if strings.HasSuffix(pattern, "/") {
		r.dirOnly = true
		pattern = strings.TrimSuffix(pattern, "/")
	}
	if strings.HasPrefix(pattern, "/") {
		r.anchored = true
		pattern = strings.TrimPrefix(pattern, "/")
	}
	// An inner slash roots the pattern too: "doc/frotz" means
	// "/doc/frotz", not "**/doc/frotz".
	if strings.Contains(pattern, "/") && !strings.HasPrefix(pattern, "**/") && !strings.HasPrefix(pattern, "*") {
		r.anchored = true
	}

	r.regex = regexp.MustCompile("^" + translate(pattern) + "$")
	rs.rules = append(rs.rules, r)
}

// AddFile reads patterns from an ignore file, scoping them to scope.
func (rs *Ruleset) AddFile(path, scope string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open ignore file: %w", err)
	}
	defer func() { _ = f.Close() }()

	lines := bufio.NewScanner(f)
	for lines.Scan() {
		rs.AddScoped(lines.Text(), scope)
	}
	if err := lines.Err(); err != nil {
		return fmt.Errorf("failed to read ignore file: %w", err)
	}
	return nil
}

// Len reports how many rules are loaded.
func (rs *Ruleset) Len() int {
	return len(rs.rules)
}

// Match reports whether path should be ignored. The last matching rule
// wins, so a later "!pattern" re-includes an earlier ignore.
func (rs *Ruleset) Match(path string, isDir bool) bool {
	path = filepath.ToSlash(path)

	ignored := false
	for _, r := range rs.rules {
		if rs.matchOne(path, isDir, r) {
			ignored = !r.negated
		}
	}
	return ignored
}

func (rs *Ruleset) matchOne(path string, isDir bool, r rule) bool {
	if r.scope != "" {
		if path == r.scope {
			path = filepath.Base(path)
		} else if strings.HasPrefix(path, r.scope+"/") {
			path = strings.TrimPrefix(path, r.scope+"/")
		} else {
			return false
		}
	}

	parts := strings.Split(path, "/")

	if r.anchored {
		if r.regex.MatchString(path) {
			if r.dirOnly {
				return isDir
			}
			return true
		}
		// A dir-only anchored rule still covers everything inside the
		// matched directory.
		if r.dirOnly {
			for i := range parts[:len(parts)-1] {
				if r.regex.MatchString(strings.Join(parts[:i+1], "/")) {
					return true
				}
			}
		}
		return false
	}

	if r.dirOnly {
		for i, part := range parts {
			if r.regex.MatchString(part) {
				if i == len(parts)-1 {
					return isDir
				}
				return true
			}
		}
		return false
	}

	if r.regex.MatchString(parts[len(parts)-1]) || r.regex.MatchString(path) {
		return true
	}
	for _, part := range parts {
		if r.regex.MatchString(part) {
			return true
		}
	}
	return false
}

// translate converts a gitignore pattern into a regular expression.
func translate(pattern string) string {
	var out strings.Builder

	for i := 0; i < len(pattern); {
		c := pattern[i]
		switch c {
		case '*':
			if strings.HasPrefix(pattern[i:], "**/") {
				out.WriteString("(?:.*/)?")
				i += 3
				continue
			}
			if strings.HasPrefix(pattern[i:], "**") && (i == 0 || pattern[i-1] == '/') {
				out.WriteString(".*")
				i += 2
				continue
			}
			out.WriteString("[^/]*")
			i++
		case '?':
			out.WriteString("[^/]")
			i++
		case '[':
			end := strings.IndexByte(pattern[i:], ']')
			if end > 0 {
				out.WriteString(pattern[i : i+end+1])
				i += end + 1
			} else {
				out.WriteString(regexp.QuoteMeta("["))
				i++
			}
		case '\\':
			if i+1 < len(pattern) {
				out.WriteString(regexp.QuoteMeta(string(pattern[i+1])))
				i += 2
			} else {
				out.WriteString(regexp.QuoteMeta(`\`))
				i++
			}
		default:
			out.WriteString(regexp.QuoteMeta(string(c)))
			i++
		}
	}
	return out.String()
}
