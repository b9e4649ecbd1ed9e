package chunk

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// MarkdownChunkerOptions configures the markdown chunker behavior.
type MarkdownChunkerOptions struct {
	MaxLines int // maximum lines per chunk before fixed-size splitting
}

// MarkdownChunker implements header-based markdown chunking. Each heading
// opens a section chunk whose qualified name is the module path plus the
// slugified heading hierarchy.
type MarkdownChunker struct {
	options MarkdownChunkerOptions
}

// Matches headers: # Title, ## Title, etc.
var headerPattern = regexp.MustCompile(`^(#{1,6})\s+(.+)$`)

// NewMarkdownChunker creates a new markdown chunker with default options.
func NewMarkdownChunker() *MarkdownChunker {
	return NewMarkdownChunkerWithOptions(MarkdownChunkerOptions{})
}

// NewMarkdownChunkerWithOptions creates a new markdown chunker with custom options.
func NewMarkdownChunkerWithOptions(opts MarkdownChunkerOptions) *MarkdownChunker {
	if opts.MaxLines <= 0 {
		opts.MaxLines = DefaultMaxLines
	}
	return &MarkdownChunker{options: opts}
}

// Chunk splits a markdown file into section chunks.
func (c *MarkdownChunker) Chunk(ctx context.Context, file *FileInput) ([]*Chunk, error) {
	content := string(file.Content)
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}

	module := ModulePath(file.Path)
	now := time.Now().UTC()

	sections := parseSections(content)
	if len(sections) == 0 || (len(sections) == 1 && sections[0].level == 0) {
		// No headings: the whole file is one module chunk
		chunks := []*Chunk{moduleChunk(file, nil, module, now)}
		return splitFixed(chunks, file, c.options.MaxLines), nil
	}

	var chunks []*Chunk
	seen := make(map[string]int)
	for _, sec := range sections {
		source := strings.TrimRight(sec.content, "\n")
		if strings.TrimSpace(source) == "" {
			continue
		}

		qualified := module
		if sec.slugPath != "" {
			qualified = module + "." + sec.slugPath
		}

		// Repeated identical heading paths get a numeric suffix so the
		// per-file (qualified_name, kind) uniqueness holds.
		seen[qualified]++
		if n := seen[qualified]; n > 1 {
			qualified = fmt.Sprintf("%s-%d", qualified, n)
		}

		name := sec.title
		if name == "" {
			name = "preamble"
		}

		ch := buildChunk(file, KindSection, name, qualified, source,
			sec.startLine, sec.startLine+strings.Count(source, "\n"), nil, now)
		ch.Metadata.Docstring = sec.title
		chunks = append(chunks, ch)
	}

	if len(chunks) == 0 {
		chunks = []*Chunk{moduleChunk(file, nil, module, now)}
	}

	return splitFixed(chunks, file, c.options.MaxLines), nil
}

// section is a heading-delimited region of a markdown file.
type section struct {
	level     int
	title     string
	slugPath  string // dotted slug hierarchy, "" for the preamble
	content   string
	startLine int // 1-indexed
}

// parseSections splits markdown content at every heading. Content before
// the first heading becomes a preamble section. The heading stack tracks
// the hierarchy so nested headings produce nested slug paths.
func parseSections(content string) []*section {
	lines := strings.Split(content, "\n")
	var sections []*section
	slugStack := make([]string, 6)

	var current *section
	var body strings.Builder

	flush := func() {
		if current != nil {
			current.content = body.String()
			sections = append(sections, current)
		}
		body.Reset()
	}

	for i, line := range lines {
		match := headerPattern.FindStringSubmatch(line)
		if match == nil {
			if current == nil && strings.TrimSpace(line) != "" {
				// Preamble before the first heading
				current = &section{level: 0, title: "", slugPath: "preamble", startLine: i + 1}
			}
			if current != nil {
				body.WriteString(line)
				body.WriteString("\n")
			}
			continue
		}

		flush()

		level := len(match[1])
		title := strings.TrimSpace(match[2])

		slugStack[level-1] = slugify(title)
		for j := level; j < 6; j++ {
			slugStack[j] = ""
		}

		var parts []string
		for j := 0; j < level; j++ {
			if slugStack[j] != "" {
				parts = append(parts, slugStack[j])
			}
		}

		current = &section{
			level:     level,
			title:     title,
			slugPath:  strings.Join(parts, "."),
			startLine: i + 1,
		}
		body.WriteString(line)
		body.WriteString("\n")
	}

	flush()
	return sections
}

// slugify reduces a heading title to a dotted-path-safe token.
func slugify(title string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}
