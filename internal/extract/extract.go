// Package extract computes chunk metadata from parsed source. Two
// implementations share one contract: a native go/ast extractor for Go and
// a tree-sitter query extractor for every other parsed language. Routing
// is by language tag; extraction is best-effort and never fails the caller.
package extract

import (
	"bytes"
	"context"

	"github.com/mnemolite/mnemolite/internal/chunk"
)

// Extractor computes metadata for one chunk of a parsed file.
//
// src is the full file source, node the chunk's syntax node, tree the
// file's parse tree. moduleImports, when non-nil, is the precomputed
// file-level import list; when nil the extractor derives it from the tree.
// The returned record never carries a content hash; callers preserve the
// hash computed at chunking time.
type Extractor interface {
	Extract(ctx context.Context, src []byte, node *chunk.Node, tree *chunk.Tree, moduleImports []string) chunk.Metadata
	ModuleImports(src []byte, tree *chunk.Tree) []string
}

// Registry routes extraction by language tag.
type Registry struct {
	extractors map[string]Extractor
}

// NewRegistry creates a registry with the default extractors: Go handled
// natively, python/javascript/typescript/tsx through tree queries.
func NewRegistry() *Registry {
	r := &Registry{extractors: make(map[string]Extractor)}

	r.Register("go", NewGoExtractor())

	trees := NewTreeExtractor()
	for _, lang := range []string{"python", "javascript", "typescript", "tsx"} {
		r.Register(lang, trees)
	}
	return r
}

// Register binds an extractor to a language tag, replacing any previous one.
func (r *Registry) Register(language string, e Extractor) {
	r.extractors[language] = e
}

// Supports reports whether a language has a registered extractor.
func (r *Registry) Supports(language string) bool {
	_, ok := r.extractors[language]
	return ok
}

// Extract routes to the language's extractor. Unknown languages and nil
// nodes degrade to a basic record rather than failing.
func (r *Registry) Extract(ctx context.Context, language string, src []byte, node *chunk.Node, tree *chunk.Tree, moduleImports []string) chunk.Metadata {
	if node == nil {
		meta := chunk.BasicMetadata(countLines(src))
		if moduleImports != nil {
			meta.Imports = moduleImports
		}
		return meta
	}

	e, ok := r.extractors[language]
	if !ok {
		meta := chunk.BasicMetadata(nodeLines(node))
		if moduleImports != nil {
			meta.Imports = moduleImports
		}
		return meta
	}
	return e.Extract(ctx, src, node, tree, moduleImports)
}

// ModuleImports returns the file-level import references for a parsed file,
// ordered and deduplicated. Empty for unknown languages.
func (r *Registry) ModuleImports(language string, src []byte, tree *chunk.Tree) []string {
	e, ok := r.extractors[language]
	if !ok {
		return []string{}
	}
	return e.ModuleImports(src, tree)
}

// nodeLines counts the source lines a node spans.
func nodeLines(n *chunk.Node) int {
	return int(n.EndPoint.Row-n.StartPoint.Row) + 1
}

func countLines(src []byte) int {
	if len(src) == 0 {
		return 0
	}
	return bytes.Count(src, []byte("\n")) + 1
}

// appendRef appends a reference unless it was seen before, preserving
// first-occurrence order.
func appendRef(refs []string, seen map[string]bool, ref string) []string {
	if ref == "" || seen[ref] {
		return refs
	}
	seen[ref] = true
	return append(refs, ref)
}
