package chunk

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/mnemolite/mnemolite/internal/hash"
)

// DefaultMaxLines is the split threshold for oversized declarations.
const DefaultMaxLines = 200

// CodeChunkerOptions configures the code chunker behavior.
type CodeChunkerOptions struct {
	MaxLines int // maximum lines per chunk before fixed-size splitting
}

// CodeChunker implements AST-aware code chunking using tree-sitter.
type CodeChunker struct {
	parser   *Parser
	registry *LanguageRegistry
	options  CodeChunkerOptions
}

// NewCodeChunker creates a new code chunker with default options.
func NewCodeChunker() *CodeChunker {
	return NewCodeChunkerWithOptions(CodeChunkerOptions{})
}

// NewCodeChunkerWithOptions creates a new code chunker with custom options.
func NewCodeChunkerWithOptions(opts CodeChunkerOptions) *CodeChunker {
	if opts.MaxLines <= 0 {
		opts.MaxLines = DefaultMaxLines
	}

	registry := DefaultRegistry()
	return &CodeChunker{
		parser:   NewParserWithRegistry(registry),
		registry: registry,
		options:  opts,
	}
}

// Close releases chunker resources.
func (c *CodeChunker) Close() {
	if c.parser != nil {
		c.parser.Close()
	}
}

// Parse parses a file's source. Exposed separately from Chunk so the
// pipeline can reuse the tree for metadata extraction.
func (c *CodeChunker) Parse(ctx context.Context, file *FileInput) (*Tree, error) {
	tree, err := c.parser.Parse(ctx, file.Content, file.Language)
	if err != nil {
		return nil, err
	}
	if tree.Broken() {
		tree.Close()
		return nil, fmt.Errorf("source did not parse: %s", file.Path)
	}
	return tree, nil
}

// Chunk splits a file into semantic chunks.
func (c *CodeChunker) Chunk(ctx context.Context, file *FileInput) ([]*Chunk, error) {
	if len(file.Content) == 0 {
		return nil, nil
	}

	tree, err := c.Parse(ctx, file)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	return c.ChunkParsed(file, tree), nil
}

// ChunkParsed splits an already-parsed file into chunks. Every declaration
// the language rules recognize becomes one chunk with a dotted qualified
// name rooted at the module path; files with no recognized declarations
// yield a single module chunk. Declarations longer than MaxLines are split
// into fixed-size fallback slices.
func (c *CodeChunker) ChunkParsed(file *FileInput, tree *Tree) []*Chunk {
	config, ok := c.registry.GetByName(file.Language)
	if !ok || tree == nil || tree.Root == nil {
		return nil
	}

	w := &declWalker{
		config: config,
		file:   file,
		tree:   tree,
		module: ModulePath(file.Path),
		now:    time.Now().UTC(),
	}
	w.walkChildren(tree.Root, nil, false)

	chunks := w.chunks
	if len(chunks) == 0 {
		chunks = []*Chunk{moduleChunk(file, tree, w.module, w.now)}
	}

	return splitFixed(chunks, file, c.options.MaxLines)
}

// declWalker walks a syntax tree collecting declaration chunks. The scope
// stack carries enclosing class names so methods get Class.method paths.
type declWalker struct {
	config *LanguageConfig
	file   *FileInput
	tree   *Tree
	module string
	now    time.Time
	chunks []*Chunk
}

func (w *declWalker) walkChildren(n *Node, scope []string, inClass bool) {
	for _, child := range n.Children {
		w.walkNode(child, scope, inClass)
	}
}

func (w *declWalker) walkNode(n *Node, scope []string, inClass bool) {
	if kind, isDecl := w.config.NodeKinds[n.Type]; isDecl {
		w.emitDeclaration(n, kind, scope, inClass)
		return
	}

	// const f = () => {} and friends chunk as functions
	if n.Type == "lexical_declaration" || n.Type == "variable_declaration" {
		if name, ok := variableFunctionName(n, w.tree.Source); ok {
			w.emit(n, KindFunction, name, scope)
		}
		return
	}

	for _, container := range w.config.ContainerTypes {
		if n.Type == container {
			w.walkChildren(n, scope, inClass)
			return
		}
	}
}

func (w *declWalker) emitDeclaration(n *Node, kind Kind, scope []string, inClass bool) {
	// Go groups type declarations; one chunk per type_spec
	if w.file.Language == "go" && n.Type == "type_declaration" {
		w.emitGoTypeSpecs(n)
		return
	}

	// Python methods are function_definitions inside a class body
	if kind == KindFunction && inClass {
		kind = KindMethod
	}

	name := declarationName(n, w.file.Language, w.tree.Source)
	if name == "" {
		return
	}

	if w.file.Language == "go" && kind == KindMethod {
		if recv := goReceiverType(n, w.tree.Source); recv != "" {
			scope = append(scope, recv)
		}
	}

	w.emit(n, kind, name, scope)

	// Only classes contain further chunkable declarations (methods)
	if kind == KindClass {
		nested := append(append([]string{}, scope...), name)
		w.walkChildren(n, nested, true)
	}
}

// emitGoTypeSpecs emits one chunk per type_spec in a Go type declaration,
// classifying each by its underlying type.
func (w *declWalker) emitGoTypeSpecs(decl *Node) {
	specs := decl.FindChildrenByType("type_spec")
	for _, spec := range specs {
		nameNode := spec.FindChildByType("type_identifier")
		if nameNode == nil {
			continue
		}
		name := nameNode.GetContent(w.tree.Source)

		kind := KindTypeAlias
		if spec.FindChildByType("struct_type") != nil {
			kind = KindClass
		} else if spec.FindChildByType("interface_type") != nil {
			kind = KindInterface
		}

		// A single ungrouped spec keeps the `type` keyword in its source
		node := spec
		if len(specs) == 1 {
			node = decl
		}
		w.emit(node, kind, name, nil)
	}
}

func (w *declWalker) emit(n *Node, kind Kind, name string, scope []string) {
	parts := make([]string, 0, len(scope)+2)
	parts = append(parts, w.module)
	parts = append(parts, scope...)
	parts = append(parts, name)
	qualified := strings.Join(parts, ".")

	w.chunks = append(w.chunks, buildChunk(w.file, kind, name, qualified,
		n.GetContent(w.tree.Source),
		int(n.StartPoint.Row)+1, int(n.EndPoint.Row)+1,
		n, w.now))
}

// buildChunk assembles a chunk with its deterministic identity and content
// fingerprint. Metadata starts as the basic record; extraction fills it in.
func buildChunk(file *FileInput, kind Kind, name, qualified, source string, startLine, endLine int, n *Node, now time.Time) *Chunk {
	meta := BasicMetadata(endLine - startLine + 1)
	meta.ContentHash = hash.String(source)

	return &Chunk{
		ChunkID:       hash.ChunkID(file.Repository, file.Path, file.Language, string(kind), qualified),
		Repository:    file.Repository,
		FilePath:      file.Path,
		Language:      file.Language,
		Kind:          kind,
		Name:          name,
		QualifiedName: qualified,
		StartLine:     startLine,
		EndLine:       endLine,
		SourceCode:    source,
		Metadata:      meta,
		CreatedAt:     now,
		UpdatedAt:     now,
		Syntax:        n,
	}
}

// moduleChunk covers a parseable file with no recognized declarations.
func moduleChunk(file *FileInput, tree *Tree, module string, now time.Time) *Chunk {
	source := string(file.Content)
	lines := strings.Count(source, "\n") + 1

	name := module
	if idx := strings.LastIndex(module, "."); idx >= 0 {
		name = module[idx+1:]
	}

	var root *Node
	if tree != nil {
		root = tree.Root
	}
	return buildChunk(file, KindModule, name, module, source, 1, lines, root, now)
}

// splitFixed replaces any chunk longer than maxLines with fixed-size
// fallback slices. Slices carry `#N`-suffixed names so the per-file
// uniqueness of (qualified_name, kind) holds.
func splitFixed(chunks []*Chunk, file *FileInput, maxLines int) []*Chunk {
	out := make([]*Chunk, 0, len(chunks))
	for _, ch := range chunks {
		if ch.Lines() <= maxLines {
			out = append(out, ch)
			continue
		}

		lines := strings.Split(ch.SourceCode, "\n")
		part := 0
		for i := 0; i < len(lines); i += maxLines {
			end := i + maxLines
			if end > len(lines) {
				end = len(lines)
			}
			part++

			name := fmt.Sprintf("%s#%d", ch.Name, part)
			qualified := fmt.Sprintf("%s#%d", ch.QualifiedName, part)
			source := strings.Join(lines[i:end], "\n")

			out = append(out, buildChunk(file, KindFallbackFixed, name, qualified, source,
				ch.StartLine+i, ch.StartLine+end-1, nil, ch.CreatedAt))
		}
	}
	return out
}

// declarationName extracts the identifier naming a declaration node.
func declarationName(n *Node, language string, source []byte) string {
	switch language {
	case "go":
		return goDeclarationName(n, source)
	default:
		for _, child := range n.Children {
			switch child.Type {
			case "identifier", "type_identifier", "property_identifier":
				return child.GetContent(source)
			}
		}
	}
	return ""
}

func goDeclarationName(n *Node, source []byte) string {
	switch n.Type {
	case "function_declaration":
		if id := n.FindChildByType("identifier"); id != nil {
			return id.GetContent(source)
		}
	case "method_declaration":
		// Method name is a field_identifier, not identifier
		if id := n.FindChildByType("field_identifier"); id != nil {
			return id.GetContent(source)
		}
	}
	return ""
}

// goReceiverType extracts the receiver type name from a method declaration.
// The receiver is the first parameter_list; `*T` and `T` both resolve to T.
func goReceiverType(n *Node, source []byte) string {
	recv := n.FindChildByType("parameter_list")
	if recv == nil {
		return ""
	}
	ids := recv.FindAllByType("type_identifier")
	if len(ids) == 0 {
		return ""
	}
	return ids[0].GetContent(source)
}

// variableFunctionName reports the declared name when a JS/TS variable
// declaration binds an arrow function or function expression.
func variableFunctionName(n *Node, source []byte) (string, bool) {
	for _, child := range n.Children {
		if child.Type != "variable_declarator" {
			continue
		}

		var name string
		var hasFunction bool
		for _, grandchild := range child.Children {
			switch grandchild.Type {
			case "identifier":
				name = grandchild.GetContent(source)
			case "arrow_function", "function", "function_expression", "generator_function":
				hasFunction = true
			}
		}
		if name != "" && hasFunction {
			return name, true
		}
	}
	return "", false
}

// ModulePath converts a repository-relative file path to a dotted module
// path: `src/utils/helpers.ts` becomes `src.utils.helpers`.
func ModulePath(path string) string {
	p := filepath.ToSlash(path)
	p = strings.TrimPrefix(p, "./")
	p = strings.TrimSuffix(p, filepath.Ext(p))
	return strings.ReplaceAll(p, "/", ".")
}
