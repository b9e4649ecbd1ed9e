package chunk

import (
	"path/filepath"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// LanguageRegistry manages supported languages and their chunking rules.
type LanguageRegistry struct {
	mu          sync.RWMutex
	configs     map[string]*LanguageConfig // keyed by language name
	extToLang   map[string]string          // extension -> language name
	tsLanguages map[string]*sitter.Language
}

// NewLanguageRegistry creates a new registry with default language configurations.
func NewLanguageRegistry() *LanguageRegistry {
	r := &LanguageRegistry{
		configs:     make(map[string]*LanguageConfig),
		extToLang:   make(map[string]string),
		tsLanguages: make(map[string]*sitter.Language),
	}

	r.registerGo()
	r.registerTypeScript()
	r.registerJavaScript()
	r.registerPython()
	r.registerMarkdown()

	return r
}

// DetectLanguage maps a file path to a registered language name.
func (r *LanguageRegistry) DetectLanguage(path string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ext := strings.ToLower(filepath.Ext(path))
	lang, ok := r.extToLang[ext]
	return lang, ok
}

// GetByExtension returns the language configuration for a file extension.
func (r *LanguageRegistry) GetByExtension(ext string) (*LanguageConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ext = strings.ToLower(ext)
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	langName, ok := r.extToLang[ext]
	if !ok {
		return nil, false
	}

	config, ok := r.configs[langName]
	return config, ok
}

// GetByName returns the language configuration by name.
func (r *LanguageRegistry) GetByName(name string) (*LanguageConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	config, ok := r.configs[name]
	return config, ok
}

// GetTreeSitterLanguage returns the tree-sitter language for a language name.
// Markdown is registered without one; it is chunked structurally.
func (r *LanguageRegistry) GetTreeSitterLanguage(name string) (*sitter.Language, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lang, ok := r.tsLanguages[name]
	return lang, ok && lang != nil
}

// SupportedExtensions returns all supported file extensions.
func (r *LanguageRegistry) SupportedExtensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	exts := make([]string, 0, len(r.extToLang))
	for ext := range r.extToLang {
		exts = append(exts, ext)
	}
	return exts
}

// registerLanguage adds a language to the registry.
func (r *LanguageRegistry) registerLanguage(config *LanguageConfig, tsLang *sitter.Language) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.configs[config.Name] = config
	if tsLang != nil {
		r.tsLanguages[config.Name] = tsLang
	}

	for _, ext := range config.Extensions {
		r.extToLang[ext] = config.Name
	}
}

func (r *LanguageRegistry) registerGo() {
	config := &LanguageConfig{
		Name:       "go",
		Extensions: []string{".go"},
		NodeKinds: map[string]Kind{
			"function_declaration": KindFunction,
			"method_declaration":   KindMethod,
			// type_declaration is resolved per type_spec: struct -> class,
			// interface -> interface, alias -> type_alias.
			"type_declaration": KindClass,
		},
		ContainerTypes: []string{},
	}

	r.registerLanguage(config, golang.GetLanguage())
}

func (r *LanguageRegistry) registerTypeScript() {
	tsConfig := &LanguageConfig{
		Name:       "typescript",
		Extensions: []string{".ts"},
		NodeKinds: map[string]Kind{
			"function_declaration":       KindFunction,
			"method_definition":          KindMethod,
			"class_declaration":          KindClass,
			"abstract_class_declaration": KindClass,
			"interface_declaration":      KindInterface,
			"enum_declaration":           KindEnum,
			"type_alias_declaration":     KindTypeAlias,
		},
		ContainerTypes: []string{"export_statement", "class_body", "decorated_definition", "ambient_declaration"},
	}
	r.registerLanguage(tsConfig, typescript.GetLanguage())

	tsxConfig := &LanguageConfig{
		Name:           "tsx",
		Extensions:     []string{".tsx"},
		NodeKinds:      tsConfig.NodeKinds,
		ContainerTypes: tsConfig.ContainerTypes,
	}
	r.registerLanguage(tsxConfig, tsx.GetLanguage())
}

func (r *LanguageRegistry) registerJavaScript() {
	jsConfig := &LanguageConfig{
		Name:       "javascript",
		Extensions: []string{".js", ".mjs", ".cjs"},
		NodeKinds: map[string]Kind{
			"function_declaration":           KindFunction,
			"method_definition":              KindMethod,
			"class_declaration":              KindClass,
			"generator_function_declaration": KindFunction,
		},
		ContainerTypes: []string{"export_statement", "class_body"},
	}
	r.registerLanguage(jsConfig, javascript.GetLanguage())

	// JSX uses the same grammar as JS
	jsxConfig := &LanguageConfig{
		Name:           "jsx",
		Extensions:     []string{".jsx"},
		NodeKinds:      jsConfig.NodeKinds,
		ContainerTypes: jsConfig.ContainerTypes,
	}
	r.registerLanguage(jsxConfig, javascript.GetLanguage())
}

func (r *LanguageRegistry) registerPython() {
	config := &LanguageConfig{
		Name:       "python",
		Extensions: []string{".py"},
		NodeKinds: map[string]Kind{
			// function_definition inside a class body is reclassified as a
			// method by the walker.
			"function_definition": KindFunction,
			"class_definition":    KindClass,
		},
		ContainerTypes: []string{"decorated_definition", "block"},
	}
	r.registerLanguage(config, python.GetLanguage())
}

func (r *LanguageRegistry) registerMarkdown() {
	config := &LanguageConfig{
		Name:       "markdown",
		Extensions: []string{".md", ".markdown"},
		NodeKinds:  map[string]Kind{},
	}
	r.registerLanguage(config, nil)
}

// defaultRegistry is the global language registry.
var defaultRegistry = NewLanguageRegistry()

// DefaultRegistry returns the global language registry.
func DefaultRegistry() *LanguageRegistry {
	return defaultRegistry
}
