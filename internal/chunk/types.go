package chunk

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Kind classifies the code unit a chunk represents.
type Kind string

const (
	KindFunction  Kind = "function"
	KindMethod    Kind = "method"
	KindClass     Kind = "class"
	KindInterface Kind = "interface"
	KindEnum      Kind = "enum"
	KindTypeAlias Kind = "type_alias"

	// KindModule is a whole-file chunk, emitted when a file parses but
	// contains no extractable declarations.
	KindModule Kind = "module"

	// KindSection is a markdown heading section.
	KindSection Kind = "section"

	// KindFallbackFixed is a fixed-size slice of an oversized declaration.
	KindFallbackFixed Kind = "fallback_fixed"
)

// Param is one parameter in an ordered name→type mapping.
type Param struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Complexity carries the structural complexity measures of a chunk.
// Cyclomatic is nil when no parser-backed count was possible.
type Complexity struct {
	Cyclomatic  *int `json:"cyclomatic"`
	LinesOfCode int  `json:"lines_of_code"`
}

// Metadata is the open key/value record attached to a chunk.
type Metadata struct {
	ContentHash string     `json:"content_hash"`
	Signature   string     `json:"signature,omitempty"`
	ReturnType  *string    `json:"return_type"`
	ParamTypes  []Param    `json:"param_types"`
	Imports     []string   `json:"imports"`
	Calls       []string   `json:"calls"`
	ReExports   []string   `json:"re_exports,omitempty"`
	Complexity  Complexity `json:"complexity"`
	Docstring   string     `json:"docstring,omitempty"`
}

// BasicMetadata returns the degraded record used when extraction fails:
// empty imports and calls, counted lines, no cyclomatic complexity.
func BasicMetadata(lines int) Metadata {
	return Metadata{
		ParamTypes: []Param{},
		Imports:    []string{},
		Calls:      []string{},
		Complexity: Complexity{Cyclomatic: nil, LinesOfCode: lines},
	}
}

// Chunk is a retrievable unit of code.
type Chunk struct {
	ChunkID       uuid.UUID `json:"chunk_id"`
	Repository    string    `json:"repository"`
	FilePath      string    `json:"file_path"`
	Language      string    `json:"language"`
	Kind          Kind      `json:"kind"`
	Name          string    `json:"name"`
	QualifiedName string    `json:"qualified_name"`
	StartLine     int       `json:"start_line"` // 1-indexed
	EndLine       int       `json:"end_line"`   // inclusive
	SourceCode    string    `json:"source_code"`
	Metadata      Metadata  `json:"metadata"`

	// EmbeddingText and EmbeddingCode are filled by the pipeline; either
	// may be empty when the embedding backend failed for this chunk.
	EmbeddingText []float32 `json:"embedding_text,omitempty"`
	EmbeddingCode []float32 `json:"embedding_code,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Syntax is the parsed node backing this chunk, valid only while the
	// file's tree is alive. Nil for module, section, and fallback chunks.
	Syntax *Node `json:"-"`
}

// Lines returns the number of source lines the chunk spans.
func (c *Chunk) Lines() int {
	return c.EndLine - c.StartLine + 1
}

// FileInput is the per-file input to a Chunker.
type FileInput struct {
	Repository string
	Path       string // relative to repository root
	Content    []byte
	Language   string
}

// Chunker splits a file into retrievable units.
type Chunker interface {
	Chunk(ctx context.Context, file *FileInput) ([]*Chunk, error)
}

// Tree is a parsed syntax tree.
type Tree struct {
	Root     *Node
	Source   []byte
	Language string

	raw rawTree
}

// rawTree abstracts the owned parser tree so Tree can be built without a
// parser in tests.
type rawTree interface {
	Close()
}

// Close releases the underlying parser tree.
func (t *Tree) Close() {
	if t.raw != nil {
		t.raw.Close()
		t.raw = nil
	}
}

// Node is a language-agnostic view of a syntax tree node.
type Node struct {
	Type       string
	StartByte  uint32
	EndByte    uint32
	StartPoint Point
	EndPoint   Point
	Children   []*Node
	HasError   bool
}

// Point is a position in the source code.
type Point struct {
	Row    uint32 // 0-indexed line number
	Column uint32
}

// LanguageConfig holds chunking rules for a supported language.
type LanguageConfig struct {
	Name       string
	Extensions []string

	// NodeKinds maps declaration node types to chunk kinds.
	NodeKinds map[string]Kind

	// ContainerTypes are node types the walker descends through without
	// emitting a chunk (export wrappers, class bodies, decorator shells).
	ContainerTypes []string
}
