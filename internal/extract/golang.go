package extract

import (
	"context"
	"go/ast"
	"go/parser"
	"go/token"
	"log/slog"
	"strings"
	"sync"

	"github.com/mnemolite/mnemolite/internal/chunk"
)

// GoExtractor extracts metadata from Go source through go/ast. The file is
// parsed with the language's own parser; the tree-sitter node only locates
// the declaration by byte range.
type GoExtractor struct {
	mu   sync.Mutex
	tree *chunk.Tree
	fset *token.FileSet
	file *ast.File
}

// NewGoExtractor creates a new Go extractor.
func NewGoExtractor() *GoExtractor {
	return &GoExtractor{}
}

// Extract computes metadata for the declaration covering node.
func (e *GoExtractor) Extract(ctx context.Context, src []byte, node *chunk.Node, tree *chunk.Tree, moduleImports []string) chunk.Metadata {
	meta := chunk.BasicMetadata(nodeLines(node))

	file, fset := e.parseFile(src, tree)
	if file == nil {
		if moduleImports != nil {
			meta.Imports = moduleImports
		}
		return meta
	}

	if moduleImports == nil {
		moduleImports = goImports(file)
	}
	meta.Imports = moduleImports

	start, end := int(node.StartByte), int(node.EndByte)
	fn, spec, gen := findGoDecl(file, fset, start, end)

	switch {
	case fn != nil:
		e.extractFunc(&meta, src, fset, fn)
	case spec != nil:
		e.extractType(&meta, src, fset, spec, gen)
	}
	return meta
}

// ModuleImports returns the file's import paths in declaration order.
func (e *GoExtractor) ModuleImports(src []byte, tree *chunk.Tree) []string {
	file, _ := e.parseFile(src, tree)
	if file == nil {
		return []string{}
	}
	return goImports(file)
}

// parseFile parses src with go/parser, reusing the result while successive
// calls pass the same tree. A partial AST from a broken file is still used.
func (e *GoExtractor) parseFile(src []byte, tree *chunk.Tree) (*ast.File, *token.FileSet) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if tree != nil && e.tree == tree {
		return e.file, e.fset
	}

	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "src.go", src, parser.ParseComments)
	if err != nil && file == nil {
		slog.Warn("go extraction degraded to basic metadata", slog.String("error", err.Error()))
	}

	e.tree = tree
	e.fset = fset
	e.file = file
	return file, fset
}

func goImports(file *ast.File) []string {
	refs := make([]string, 0, len(file.Imports))
	seen := make(map[string]bool)
	for _, imp := range file.Imports {
		path := strings.Trim(imp.Path.Value, `"`)
		refs = appendRef(refs, seen, path)
	}
	return refs
}

// findGoDecl locates the function or type spec whose range covers
// [start, end). Grouped type declarations resolve to the covering spec.
func findGoDecl(file *ast.File, fset *token.FileSet, start, end int) (*ast.FuncDecl, *ast.TypeSpec, *ast.GenDecl) {
	covers := func(n ast.Node) bool {
		return fset.Position(n.Pos()).Offset <= start && end <= fset.Position(n.End()).Offset
	}

	for _, decl := range file.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			if covers(d) {
				return d, nil, nil
			}
		case *ast.GenDecl:
			if d.Tok != token.TYPE || !covers(d) {
				continue
			}
			specs := make([]*ast.TypeSpec, 0, len(d.Specs))
			for _, s := range d.Specs {
				if ts, ok := s.(*ast.TypeSpec); ok {
					specs = append(specs, ts)
				}
			}
			if len(specs) == 1 {
				return nil, specs[0], d
			}
			for _, ts := range specs {
				if covers(ts) {
					return nil, ts, d
				}
			}
		}
	}
	return nil, nil, nil
}

func (e *GoExtractor) extractFunc(meta *chunk.Metadata, src []byte, fset *token.FileSet, fn *ast.FuncDecl) {
	meta.Signature = goSignature(src, fset, fn)
	meta.ParamTypes = goParams(fn.Type.Params)
	meta.ReturnType = goResults(fn.Type.Results)
	if fn.Doc != nil {
		meta.Docstring = strings.TrimSpace(fn.Doc.Text())
	}

	seen := make(map[string]bool)
	ast.Inspect(fn, func(n ast.Node) bool {
		if call, ok := n.(*ast.CallExpr); ok {
			meta.Calls = appendRef(meta.Calls, seen, goCallRef(call.Fun))
		}
		return true
	})

	c := goCyclomatic(fn)
	meta.Complexity.Cyclomatic = &c
}

func (e *GoExtractor) extractType(meta *chunk.Metadata, src []byte, fset *token.FileSet, spec *ast.TypeSpec, gen *ast.GenDecl) {
	meta.Signature = goTypeSignature(src, fset, spec)

	doc := spec.Doc
	if doc == nil && len(gen.Specs) == 1 {
		doc = gen.Doc
	}
	if doc != nil {
		meta.Docstring = strings.TrimSpace(doc.Text())
	}

	one := 1
	meta.Complexity.Cyclomatic = &one
}

// goSignature slices the declaration header from the source, up to the
// opening brace, and collapses it to one line.
func goSignature(src []byte, fset *token.FileSet, fn *ast.FuncDecl) string {
	start := fset.Position(fn.Pos()).Offset
	end := fset.Position(fn.End()).Offset
	if fn.Body != nil {
		end = fset.Position(fn.Body.Lbrace).Offset
	}
	return collapseSpace(sliceSource(src, start, end))
}

func goTypeSignature(src []byte, fset *token.FileSet, spec *ast.TypeSpec) string {
	switch spec.Type.(type) {
	case *ast.StructType:
		return "type " + spec.Name.Name + " struct"
	case *ast.InterfaceType:
		return "type " + spec.Name.Name + " interface"
	}
	start := fset.Position(spec.Pos()).Offset
	end := fset.Position(spec.End()).Offset
	sig := collapseSpace(sliceSource(src, start, end))
	if !strings.HasPrefix(sig, "type ") {
		sig = "type " + sig
	}
	return sig
}

func goParams(fields *ast.FieldList) []chunk.Param {
	params := []chunk.Param{}
	if fields == nil {
		return params
	}
	for _, field := range fields.List {
		typ := goTypeString(field.Type)
		if len(field.Names) == 0 {
			params = append(params, chunk.Param{Type: typ})
			continue
		}
		for _, name := range field.Names {
			params = append(params, chunk.Param{Name: name.Name, Type: typ})
		}
	}
	return params
}

func goResults(fields *ast.FieldList) *string {
	if fields == nil || len(fields.List) == 0 {
		return nil
	}
	types := make([]string, 0, fields.NumFields())
	for _, field := range fields.List {
		typ := goTypeString(field.Type)
		n := len(field.Names)
		if n == 0 {
			n = 1
		}
		for i := 0; i < n; i++ {
			types = append(types, typ)
		}
	}
	ret := types[0]
	if len(types) > 1 {
		ret = "(" + strings.Join(types, ", ") + ")"
	}
	return &ret
}

// goTypeString renders a type expression as source-like text.
func goTypeString(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.Ident:
		return t.Name
	case *ast.SelectorExpr:
		return goTypeString(t.X) + "." + t.Sel.Name
	case *ast.StarExpr:
		return "*" + goTypeString(t.X)
	case *ast.Ellipsis:
		return "..." + goTypeString(t.Elt)
	case *ast.ArrayType:
		if t.Len == nil {
			return "[]" + goTypeString(t.Elt)
		}
		return "[" + goTypeString(t.Len) + "]" + goTypeString(t.Elt)
	case *ast.BasicLit:
		return t.Value
	case *ast.MapType:
		return "map[" + goTypeString(t.Key) + "]" + goTypeString(t.Value)
	case *ast.ChanType:
		switch t.Dir {
		case ast.SEND:
			return "chan<- " + goTypeString(t.Value)
		case ast.RECV:
			return "<-chan " + goTypeString(t.Value)
		}
		return "chan " + goTypeString(t.Value)
	case *ast.FuncType:
		sig := "func("
		if t.Params != nil {
			parts := make([]string, 0, len(t.Params.List))
			for _, p := range t.Params.List {
				parts = append(parts, goTypeString(p.Type))
			}
			sig += strings.Join(parts, ", ")
		}
		sig += ")"
		if ret := goResults(t.Results); ret != nil {
			sig += " " + *ret
		}
		return sig
	case *ast.InterfaceType:
		if t.Methods == nil || len(t.Methods.List) == 0 {
			return "interface{}"
		}
		return "interface{...}"
	case *ast.StructType:
		return "struct{...}"
	case *ast.IndexExpr:
		return goTypeString(t.X) + "[" + goTypeString(t.Index) + "]"
	case *ast.IndexListExpr:
		args := make([]string, 0, len(t.Indices))
		for _, idx := range t.Indices {
			args = append(args, goTypeString(idx))
		}
		return goTypeString(t.X) + "[" + strings.Join(args, ", ") + "]"
	case *ast.ParenExpr:
		return "(" + goTypeString(t.X) + ")"
	}
	return ""
}

// goCallRef renders a call target in dot form: "f" for direct calls,
// "o.m" for selector chains rooted at an identifier. Calls on computed
// values keep only the method name.
func goCallRef(fun ast.Expr) string {
	switch f := fun.(type) {
	case *ast.Ident:
		return f.Name
	case *ast.SelectorExpr:
		if base := goChainString(f.X); base != "" {
			return base + "." + f.Sel.Name
		}
		return f.Sel.Name
	case *ast.IndexExpr:
		return goCallRef(f.X)
	case *ast.IndexListExpr:
		return goCallRef(f.X)
	case *ast.ParenExpr:
		return goCallRef(f.X)
	}
	return ""
}

func goChainString(expr ast.Expr) string {
	switch e := expr.(type) {
	case *ast.Ident:
		return e.Name
	case *ast.SelectorExpr:
		if base := goChainString(e.X); base != "" {
			return base + "." + e.Sel.Name
		}
	}
	return ""
}

// goCyclomatic counts decision points plus one: if, for, range, non-default
// case and comm clauses, and short-circuit operators.
func goCyclomatic(fn *ast.FuncDecl) int {
	c := 1
	ast.Inspect(fn, func(n ast.Node) bool {
		switch x := n.(type) {
		case *ast.IfStmt, *ast.ForStmt, *ast.RangeStmt:
			c++
		case *ast.CaseClause:
			if x.List != nil {
				c++
			}
		case *ast.CommClause:
			if x.Comm != nil {
				c++
			}
		case *ast.BinaryExpr:
			if x.Op == token.LAND || x.Op == token.LOR {
				c++
			}
		}
		return true
	})
	return c
}

func sliceSource(src []byte, start, end int) string {
	if start < 0 || end > len(src) || start >= end {
		return ""
	}
	return string(src[start:end])
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
