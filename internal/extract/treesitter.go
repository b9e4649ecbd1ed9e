package extract

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/mnemolite/mnemolite/internal/chunk"
)

// TreeExtractor extracts metadata through tree-sitter queries. One compiled
// query per grammar locates imports, calls, docstrings, and branch points;
// the captured nodes are interpreted through field access. Works for any
// language with a registered grammar and query pattern.
type TreeExtractor struct {
	registry *chunk.LanguageRegistry

	mu      sync.Mutex
	queries map[string]*sitter.Query // nil entry records a failed compile
}

// NewTreeExtractor creates a tree query extractor over the default
// language registry.
func NewTreeExtractor() *TreeExtractor {
	return NewTreeExtractorWithRegistry(chunk.DefaultRegistry())
}

// NewTreeExtractorWithRegistry creates a tree query extractor with a custom registry.
func NewTreeExtractorWithRegistry(registry *chunk.LanguageRegistry) *TreeExtractor {
	return &TreeExtractor{
		registry: registry,
		queries:  make(map[string]*sitter.Query),
	}
}

// Extract computes metadata for the chunk covering node.
func (e *TreeExtractor) Extract(ctx context.Context, src []byte, node *chunk.Node, tree *chunk.Tree, moduleImports []string) chunk.Metadata {
	meta := chunk.BasicMetadata(nodeLines(node))
	if moduleImports != nil {
		meta.Imports = moduleImports
	}

	query := e.queryFor(tree.Language)
	raw := tree.Sitter()
	if query == nil || raw == nil {
		slog.Warn("metadata extraction degraded to basic record",
			slog.String("language", tree.Language))
		return meta
	}
	caps := collectCaptures(query, raw.RootNode())

	if moduleImports == nil {
		meta.Imports = importRefs(tree.Language, caps, src)
	}
	meta.ReExports = reexportRefs(tree.Language, caps, src)

	start, end := node.StartByte, node.EndByte
	python := tree.Language == "python"

	seen := make(map[string]bool)
	for _, n := range caps.calls {
		if !within(n, start, end) {
			continue
		}
		if python {
			meta.Calls = appendRef(meta.Calls, seen, pythonCallRef(n, src))
		} else {
			meta.Calls = appendRef(meta.Calls, seen, jsCallRef(n, src))
		}
	}
	for _, n := range caps.news {
		if within(n, start, end) {
			meta.Calls = appendRef(meta.Calls, seen, jsConstructorRef(n, src))
		}
	}

	cyclo := 1
	for _, n := range caps.branches {
		if within(n, start, end) {
			cyclo++
		}
	}
	for _, n := range caps.logicals {
		if within(n, start, end) && isLogicalOperator(n, src) {
			cyclo++
		}
	}
	meta.Complexity.Cyclomatic = &cyclo

	if python {
		for _, d := range caps.docs {
			if d.owner.StartByte() == start && d.owner.EndByte() == end {
				meta.Docstring = stripPythonString(d.doc.Content(src))
				break
			}
		}
	} else {
		meta.Docstring = docCommentBefore(caps.comments, src, start)
	}

	meta.Signature = headerSignature(raw.RootNode(), src, start, end)
	return meta
}

// ModuleImports returns the file-level import references in source order.
func (e *TreeExtractor) ModuleImports(src []byte, tree *chunk.Tree) []string {
	query := e.queryFor(tree.Language)
	raw := tree.Sitter()
	if query == nil || raw == nil {
		return []string{}
	}
	caps := collectCaptures(query, raw.RootNode())
	return importRefs(tree.Language, caps, src)
}

// queryFor compiles the language's query once and caches it. Compile
// failures are cached as nil so the warning fires once per language.
func (e *TreeExtractor) queryFor(language string) *sitter.Query {
	e.mu.Lock()
	defer e.mu.Unlock()

	if query, ok := e.queries[language]; ok {
		return query
	}

	pattern, ok := queryPatterns[language]
	if !ok {
		e.queries[language] = nil
		return nil
	}
	lang, ok := e.registry.GetTreeSitterLanguage(language)
	if !ok {
		e.queries[language] = nil
		return nil
	}

	query, err := sitter.NewQuery([]byte(pattern), lang)
	if err != nil {
		slog.Warn("metadata query failed to compile",
			slog.String("language", language),
			slog.String("error", err.Error()))
		query = nil
	}
	e.queries[language] = query
	return query
}

// captured groups the query capture nodes by role.
type captured struct {
	imports   []*sitter.Node // import statements, source order
	reexports []*sitter.Node // export statements, re-exporting or not
	calls     []*sitter.Node
	news      []*sitter.Node
	comments  []*sitter.Node
	branches  []*sitter.Node
	logicals  []*sitter.Node
	docs      []docPair
}

type docPair struct {
	owner *sitter.Node
	doc   *sitter.Node
}

func collectCaptures(query *sitter.Query, root *sitter.Node) *captured {
	cursor := sitter.NewQueryCursor()
	defer cursor.Close()
	cursor.Exec(query, root)

	caps := &captured{}
	for {
		match, ok := cursor.NextMatch()
		if !ok {
			break
		}
		var owner, doc *sitter.Node
		for _, c := range match.Captures {
			switch query.CaptureNameForId(c.Index) {
			case "import":
				caps.imports = append(caps.imports, c.Node)
			case "reexport":
				caps.reexports = append(caps.reexports, c.Node)
			case "call":
				caps.calls = append(caps.calls, c.Node)
			case "new":
				caps.news = append(caps.news, c.Node)
			case "comment":
				caps.comments = append(caps.comments, c.Node)
			case "branch":
				caps.branches = append(caps.branches, c.Node)
			case "logical":
				caps.logicals = append(caps.logicals, c.Node)
			case "doc":
				doc = c.Node
			case "doc.owner":
				owner = c.Node
			}
		}
		if owner != nil && doc != nil {
			caps.docs = append(caps.docs, docPair{owner: owner, doc: doc})
		}
	}
	return caps
}

func within(n *sitter.Node, start, end uint32) bool {
	return n.StartByte() >= start && n.EndByte() <= end
}

// importRefs interprets the captured import statements into reference
// strings of the form "<module>" or "<module>.<symbol>".
func importRefs(language string, caps *captured, src []byte) []string {
	refs := []string{}
	seen := make(map[string]bool)

	for _, n := range caps.imports {
		if language == "python" {
			refs = pythonImportRefs(refs, seen, n, src)
		} else {
			refs = jsImportRefs(refs, seen, n, src)
		}
	}
	if language != "python" {
		for _, n := range caps.calls {
			if module, ok := requireRef(n, src); ok {
				refs = appendRef(refs, seen, module)
			}
		}
	}
	return refs
}

// reexportRefs interprets the captured export statements. Only exports
// naming a source module are re-exports; plain exports produce nothing.
func reexportRefs(language string, caps *captured, src []byte) []string {
	if language == "python" || len(caps.reexports) == 0 {
		return nil
	}
	var refs []string
	seen := make(map[string]bool)
	for _, n := range caps.reexports {
		refs = jsImportRefs(refs, seen, n, src)
	}
	return refs
}

func pythonImportRefs(refs []string, seen map[string]bool, n *sitter.Node, src []byte) []string {
	switch n.Type() {
	case "import_statement":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			c := n.NamedChild(i)
			switch c.Type() {
			case "dotted_name":
				refs = appendRef(refs, seen, c.Content(src))
			case "aliased_import":
				if name := c.ChildByFieldName("name"); name != nil {
					refs = appendRef(refs, seen, name.Content(src))
				}
			}
		}

	case "import_from_statement":
		moduleNode := n.ChildByFieldName("module_name")
		if moduleNode == nil {
			return refs
		}
		module := moduleNode.Content(src)

		added := false
		for i := 0; i < int(n.NamedChildCount()); i++ {
			c := n.NamedChild(i)
			if c.StartByte() == moduleNode.StartByte() && c.EndByte() == moduleNode.EndByte() {
				continue
			}
			switch c.Type() {
			case "dotted_name":
				refs = appendRef(refs, seen, joinModuleSymbol(module, c.Content(src)))
				added = true
			case "aliased_import":
				if name := c.ChildByFieldName("name"); name != nil {
					refs = appendRef(refs, seen, joinModuleSymbol(module, name.Content(src)))
					added = true
				}
			case "wildcard_import":
				refs = appendRef(refs, seen, module)
				added = true
			}
		}
		if !added {
			refs = appendRef(refs, seen, module)
		}
	}
	return refs
}

func jsImportRefs(refs []string, seen map[string]bool, n *sitter.Node, src []byte) []string {
	source := n.ChildByFieldName("source")
	if source == nil {
		// export statement without a source is not a re-export
		return refs
	}
	module := stripQuotes(source.Content(src))

	switch n.Type() {
	case "import_statement":
		clause := findNamedChild(n, "import_clause")
		if clause == nil {
			// side-effect-only import
			return appendRef(refs, seen, module)
		}
		return jsClauseRefs(refs, seen, clause, module, src)

	case "export_statement":
		added := false
		for i := 0; i < int(n.NamedChildCount()); i++ {
			c := n.NamedChild(i)
			switch c.Type() {
			case "export_clause":
				for j := 0; j < int(c.NamedChildCount()); j++ {
					spec := c.NamedChild(j)
					if spec.Type() != "export_specifier" {
						continue
					}
					if name := spec.ChildByFieldName("name"); name != nil {
						refs = appendRef(refs, seen, module+"."+name.Content(src))
						added = true
					}
				}
			case "namespace_export":
				refs = appendRef(refs, seen, module)
				added = true
			}
		}
		if !added {
			// export * from "m"
			refs = appendRef(refs, seen, module)
		}
	}
	return refs
}

func jsClauseRefs(refs []string, seen map[string]bool, clause *sitter.Node, module string, src []byte) []string {
	added := false
	for i := 0; i < int(clause.NamedChildCount()); i++ {
		c := clause.NamedChild(i)
		switch c.Type() {
		case "identifier":
			// default import keeps the local binding name as the symbol
			refs = appendRef(refs, seen, module+"."+c.Content(src))
			added = true
		case "namespace_import":
			refs = appendRef(refs, seen, module)
			added = true
		case "named_imports":
			for j := 0; j < int(c.NamedChildCount()); j++ {
				spec := c.NamedChild(j)
				if spec.Type() != "import_specifier" {
					continue
				}
				if name := spec.ChildByFieldName("name"); name != nil {
					refs = appendRef(refs, seen, module+"."+name.Content(src))
					added = true
				}
			}
		}
	}
	if !added {
		refs = appendRef(refs, seen, module)
	}
	return refs
}

// requireRef recognizes require("m") calls as CommonJS imports.
func requireRef(call *sitter.Node, src []byte) (string, bool) {
	fn := call.ChildByFieldName("function")
	if fn == nil || fn.Type() != "identifier" || fn.Content(src) != "require" {
		return "", false
	}
	args := call.ChildByFieldName("arguments")
	if args == nil || args.NamedChildCount() != 1 {
		return "", false
	}
	arg := args.NamedChild(0)
	if arg.Type() != "string" {
		return "", false
	}
	return stripQuotes(arg.Content(src)), true
}

func pythonCallRef(call *sitter.Node, src []byte) string {
	fn := call.ChildByFieldName("function")
	if fn == nil {
		return ""
	}
	return attrChain(fn, src, "attribute", "object", "attribute")
}

func jsCallRef(call *sitter.Node, src []byte) string {
	fn := call.ChildByFieldName("function")
	if fn == nil {
		return ""
	}
	return attrChain(fn, src, "member_expression", "object", "property")
}

func jsConstructorRef(n *sitter.Node, src []byte) string {
	ctor := n.ChildByFieldName("constructor")
	if ctor == nil {
		return ""
	}
	return attrChain(ctor, src, "member_expression", "object", "property")
}

// attrChain renders an identifier or access chain in dot form. Chains
// rooted in computed values keep only the final member name.
func attrChain(n *sitter.Node, src []byte, chainType, objectField, memberField string) string {
	switch n.Type() {
	case "identifier", "this", "super":
		return n.Content(src)
	case chainType:
		member := n.ChildByFieldName(memberField)
		if member == nil {
			return ""
		}
		if object := n.ChildByFieldName(objectField); object != nil {
			if base := attrChain(object, src, chainType, objectField, memberField); base != "" {
				return base + "." + member.Content(src)
			}
		}
		return member.Content(src)
	}
	return ""
}

func isLogicalOperator(n *sitter.Node, src []byte) bool {
	op := n.ChildByFieldName("operator")
	if op == nil {
		return false
	}
	switch op.Content(src) {
	case "&&", "||", "??":
		return true
	}
	return false
}

// docCommentBefore returns the JSDoc block immediately preceding the chunk,
// if any. Export and declare keywords may sit between the two.
func docCommentBefore(comments []*sitter.Node, src []byte, start uint32) string {
	var best *sitter.Node
	for _, c := range comments {
		if c.EndByte() <= start && (best == nil || c.EndByte() > best.EndByte()) {
			best = c
		}
	}
	if best == nil {
		return ""
	}

	switch strings.TrimSpace(string(src[best.EndByte():start])) {
	case "", "export", "export default", "declare", "export declare":
	default:
		return ""
	}

	text := best.Content(src)
	if !strings.HasPrefix(text, "/**") {
		return ""
	}
	text = strings.TrimSuffix(strings.TrimPrefix(text, "/**"), "*/")

	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "*"))
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

// headerSignature slices the declaration header, cutting at the body when
// one can be located and falling back to the first line.
func headerSignature(root *sitter.Node, src []byte, start, end uint32) string {
	var header string

	cut, ok := uint32(0), false
	if n := findRawNode(root, start, end); n != nil {
		cut, ok = bodyStart(n, 0)
	}
	if ok && cut > start && cut <= end {
		header = string(src[start:cut])
	} else {
		header = string(src[start:end])
		if i := strings.IndexByte(header, '\n'); i >= 0 {
			header = header[:i]
		}
	}

	header = strings.TrimRight(strings.TrimSpace(header), " \t{:")
	header = strings.TrimSpace(strings.TrimSuffix(header, "=>"))
	return collapseSpace(header)
}

// findRawNode locates the parser node with the exact byte range.
func findRawNode(n *sitter.Node, start, end uint32) *sitter.Node {
	if n.StartByte() == start && n.EndByte() == end {
		return n
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if c.StartByte() <= start && end <= c.EndByte() {
			if found := findRawNode(c, start, end); found != nil {
				return found
			}
		}
	}
	return nil
}

// bodyStart finds the nearest body field, descending through declarator
// wrappers for arrow function bindings.
func bodyStart(n *sitter.Node, depth int) (uint32, bool) {
	if body := n.ChildByFieldName("body"); body != nil {
		return body.StartByte(), true
	}
	if depth >= 2 {
		return 0, false
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if s, ok := bodyStart(n.NamedChild(i), depth+1); ok {
			return s, true
		}
	}
	return 0, false
}

func findNamedChild(n *sitter.Node, nodeType string) *sitter.Node {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if c := n.NamedChild(i); c.Type() == nodeType {
			return c
		}
	}
	return nil
}

func joinModuleSymbol(module, symbol string) string {
	if strings.HasSuffix(module, ".") {
		return module + symbol
	}
	return module + "." + symbol
}

func stripQuotes(s string) string {
	return strings.Trim(s, "\"'`")
}

// stripPythonString removes the quotes and prefix letters from a string
// literal and trims the result.
func stripPythonString(s string) string {
	s = strings.TrimSpace(s)
	for len(s) > 0 && strings.ContainsRune("rRbBuUfF", rune(s[0])) {
		s = s[1:]
	}
	for _, q := range []string{`"""`, "'''", `"`, "'"} {
		if strings.HasPrefix(s, q) && strings.HasSuffix(s, q) && len(s) >= 2*len(q) {
			s = s[len(q) : len(s)-len(q)]
			break
		}
	}
	return strings.TrimSpace(s)
}
