package graph

import (
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/mnemolite/mnemolite/internal/chunk"
	"github.com/mnemolite/mnemolite/internal/store"
)

// symbol is one symbol-table entry, keyed by qualified name.
type symbol struct {
	chunkID       uuid.UUID
	nodeID        uuid.UUID // filled after the node upsert phase
	nodeType      string
	name          string
	qualifiedName string
}

func (s *symbol) moduleOf() string {
	if i := strings.LastIndex(s.qualifiedName, "."); i >= 0 {
		return s.qualifiedName[:i]
	}
	return ""
}

// symbolTable indexes a repository's chunks for reference resolution.
type symbolTable struct {
	byQualified map[string]*symbol
	byName      map[string][]*symbol
	modules     map[string]bool // every dotted module path and package prefix
}

func buildSymbolTable(refs []store.ChunkRef) *symbolTable {
	t := &symbolTable{
		byQualified: make(map[string]*symbol, len(refs)),
		byName:      make(map[string][]*symbol),
		modules:     make(map[string]bool),
	}
	for i := range refs {
		ref := &refs[i]
		sym := &symbol{
			chunkID:       ref.ChunkID,
			nodeType:      ref.Kind,
			name:          ref.Name,
			qualifiedName: ref.QualifiedName,
		}
		t.byQualified[ref.QualifiedName] = sym
		t.byName[ref.Name] = append(t.byName[ref.Name], sym)
		t.addModule(chunk.ModulePath(ref.FilePath))
	}
	return t
}

func (t *symbolTable) addModule(module string) {
	for module != "" {
		if t.modules[module] {
			return
		}
		t.modules[module] = true
		i := strings.LastIndex(module, ".")
		if i < 0 {
			return
		}
		module = module[:i]
	}
}

// resolve maps a normalized reference to a symbol: exact qualified-name
// match first, then the module rule, where everything before the last
// dot names a known module or package and the final segment names a
// chunk under it.
func (t *symbolTable) resolve(ref string) (*symbol, bool) {
	if ref == "" {
		return nil, false
	}
	if sym, ok := t.byQualified[ref]; ok {
		return sym, true
	}
	dot := strings.LastIndex(ref, ".")
	if dot <= 0 || dot == len(ref)-1 {
		return nil, false
	}
	module, name := ref[:dot], ref[dot+1:]
	if !t.modules[module] {
		return nil, false
	}
	for _, sym := range t.byName[name] {
		if strings.HasPrefix(sym.qualifiedName, module+".") {
			return sym, true
		}
	}
	return nil, false
}

// resolveCall resolves a call reference. Dotted references try the
// import rules first; `o.m` then tries m as a method of o's declared
// type, falling back to a free function or constructor named m.
func (t *symbolTable) resolveCall(ref string, caller *callerContext) (*symbol, bool) {
	if sym, ok := t.resolve(ref); ok {
		return sym, true
	}
	dot := strings.LastIndex(ref, ".")
	if dot < 0 {
		return t.resolveFree(ref, caller)
	}
	obj, member := ref[:dot], ref[dot+1:]
	if obj == "" || member == "" {
		return nil, false
	}
	if typeName, ok := caller.typeOf(obj); ok {
		if sym, ok := t.resolveMethod(typeName, member); ok {
			return sym, true
		}
	}
	return t.resolveFree(member, caller)
}

// resolveMethod finds a method named member on a type whose last path
// segment is typeName, ignoring pointer and collection decoration.
func (t *symbolTable) resolveMethod(typeName, member string) (*symbol, bool) {
	name := typeName
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	name = strings.TrimLeft(name, "*&[]")
	if name == "" {
		return nil, false
	}
	for _, sym := range t.byName[member] {
		if sym.nodeType != string(chunk.KindMethod) {
			continue
		}
		if strings.HasSuffix(sym.qualifiedName, "."+name+"."+member) {
			return sym, true
		}
	}
	return nil, false
}

// resolveFree finds a free function or class constructor by bare name.
// The caller's own module wins, then modules the caller imports, then a
// repository-wide match only when it is unambiguous.
func (t *symbolTable) resolveFree(name string, caller *callerContext) (*symbol, bool) {
	var callable []*symbol
	for _, sym := range t.byName[name] {
		if sym.nodeType == string(chunk.KindFunction) || sym.nodeType == string(chunk.KindClass) {
			callable = append(callable, sym)
		}
	}
	if len(callable) == 0 {
		return nil, false
	}
	for _, sym := range callable {
		if sym.moduleOf() == caller.module {
			return sym, true
		}
	}
	for _, imp := range caller.imports {
		for _, sym := range callable {
			if sym.qualifiedName == imp || strings.HasPrefix(sym.qualifiedName, imp+".") {
				return sym, true
			}
		}
	}
	if len(callable) == 1 {
		return callable[0], true
	}
	return nil, false
}

// callerContext carries what the resolver knows about the referencing
// chunk: its module, its enclosing class for self/this calls, its
// normalized imports, and its declared parameter types.
type callerContext struct {
	module    string
	className string
	imports   []string
	params    map[string]string
}

func newCallerContext(ref *store.ChunkRef) *callerContext {
	cc := &callerContext{
		module: chunk.ModulePath(ref.FilePath),
		params: make(map[string]string, len(ref.ParamTypes)),
	}
	if ref.Kind == string(chunk.KindMethod) {
		if base, ok := strings.CutSuffix(ref.QualifiedName, "."+ref.Name); ok {
			if i := strings.LastIndex(base, "."); i >= 0 {
				cc.className = base[i+1:]
			}
		}
	}
	for _, p := range ref.ParamTypes {
		if p.Name != "" && p.Type != "" {
			cc.params[p.Name] = p.Type
		}
	}
	for _, imp := range ref.Imports {
		if n := normalizeRef(imp, ref.FilePath); n != "" {
			cc.imports = append(cc.imports, n)
		}
	}
	return cc
}

// typeOf reports the declared type backing an object reference, from
// the receiver for self/this or from the parameter list.
func (c *callerContext) typeOf(obj string) (string, bool) {
	if obj == "self" || obj == "this" {
		if c.className != "" {
			return c.className, true
		}
		return "", false
	}
	typ, ok := c.params[obj]
	return typ, ok
}

// normalizeRef converts a reference from its native specifier form into
// the dotted qualified-name space: path separators become dots and
// relative specifiers are resolved against the referencing file.
func normalizeRef(ref, filePath string) string {
	if ref == "" {
		return ""
	}
	if strings.HasPrefix(ref, "./") || strings.HasPrefix(ref, "../") {
		return normalizePathRef(ref, filePath)
	}
	if ref[0] == '.' {
		return normalizeDottedRelative(ref, filePath)
	}
	return strings.ReplaceAll(ref, "/", ".")
}

// normalizePathRef resolves "./x" and "../x" specifiers against the
// file's directory. A trailing ".symbol" after the last path segment is
// preserved through the translation.
func normalizePathRef(ref, filePath string) string {
	dir := path.Dir(filepath.ToSlash(filePath))
	if dir == "." {
		dir = ""
	}

	pathPart := ref
	var suffix string
	slash := strings.LastIndex(ref, "/")
	rest := ref[slash+1:]
	if dot := strings.Index(rest, "."); dot >= 0 {
		suffix = rest[dot:]
		pathPart = ref[:slash+1] + rest[:dot]
	}

	joined := path.Join(dir, pathPart)
	if joined == ".." || strings.HasPrefix(joined, "../") {
		// escapes the repository; nothing to resolve against
		return ""
	}
	return strings.ReplaceAll(joined, "/", ".") + suffix
}

// normalizeDottedRelative resolves python-style relative references:
// one leading dot names the file's package, each further dot one level
// above it.
func normalizeDottedRelative(ref, filePath string) string {
	dots := 0
	for dots < len(ref) && ref[dots] == '.' {
		dots++
	}
	rest := ref[dots:]

	segments := strings.Split(chunk.ModulePath(filePath), ".")
	if dots > len(segments) {
		return ""
	}
	base := strings.Join(segments[:len(segments)-dots], ".")
	switch {
	case base == "" && rest == "":
		return ""
	case base == "":
		return rest
	case rest == "":
		return base
	default:
		return base + "." + rest
	}
}
