package extract

// Combined per-grammar query patterns. One query per language locates every
// node class the extractor interprets: import statements, call sites,
// docstrings, and branch points for the cyclomatic count. Interpretation of
// the captured nodes happens through field access in treesitter.go.

const pythonQuery = `
(import_statement) @import
(import_from_statement) @import
(call) @call
(function_definition
  body: (block . (expression_statement (string) @doc))) @doc.owner
(class_definition
  body: (block . (expression_statement (string) @doc))) @doc.owner
(if_statement) @branch
(elif_clause) @branch
(for_statement) @branch
(while_statement) @branch
(except_clause) @branch
(conditional_expression) @branch
(boolean_operator) @branch
`

// jsLikeQuery compiles against the javascript, typescript, and tsx grammars;
// the three share the node types named here.
const jsLikeQuery = `
(import_statement) @import
(export_statement) @reexport
(call_expression) @call
(new_expression) @new
(comment) @comment
(if_statement) @branch
(for_statement) @branch
(for_in_statement) @branch
(while_statement) @branch
(do_statement) @branch
(switch_case) @branch
(catch_clause) @branch
(ternary_expression) @branch
(binary_expression) @logical
`

// queryPatterns maps language tags to their query source.
var queryPatterns = map[string]string{
	"python":     pythonQuery,
	"javascript": jsLikeQuery,
	"typescript": jsLikeQuery,
	"tsx":        jsLikeQuery,
}
