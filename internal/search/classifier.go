package search

import (
	"regexp"
	"strings"
)

// Identifier-shaped queries get regex classification so exact-match
// retrieval dominates fusion; natural-language queries lean on vectors.
// Compiled at package init.
var (
	errorCodePattern = regexp.MustCompile(`(?i)^(ERR_\w+|E\d{4,5}|[A-Z]{2,}\d{3,}|\w+(Exception|Error))$`)

	quotedPattern = regexp.MustCompile(`^["'].*["']$`)

	filePathPattern = regexp.MustCompile(`(?i)^[\w\-./\\]+\.(go|py|js|jsx|ts|tsx|mjs|cjs|md|json|yaml|yml|toml|rs|java|kt|c|cpp|h|hpp|rb|php|swift|sh)$`)

	camelCasePattern      = regexp.MustCompile(`^[a-z]+([A-Z][a-z0-9]*)+$`)
	pascalCasePattern     = regexp.MustCompile(`^([A-Z][a-z0-9]*){2,}$`)
	snakeCasePattern      = regexp.MustCompile(`^[a-z]+(_[a-z0-9]+)+$`)
	screamingSnakePattern = regexp.MustCompile(`^[A-Z]+(_[A-Z0-9]+)+$`)
	dottedPathPattern     = regexp.MustCompile(`^\w+(\.\w+)+$`)

	naturalLanguagePattern = regexp.MustCompile(`(?i)^(how|what|where|why|when|which|can|does|is|are|should|explain|describe|show|find|list)\s`)
)

// Weights handed out per query shape.
var (
	lexicalWeights  = Weights{Lexical: 0.8, Vector: 0.2, EnableLexical: true, EnableVector: true}
	semanticWeights = Weights{Lexical: 0.2, Vector: 0.8, EnableLexical: true, EnableVector: true}
)

// PatternClassifier assigns fusion weights from the query's surface
// shape. Identifiers, error codes, file paths, and quoted phrases need
// exact matching; question-shaped queries need meaning.
type PatternClassifier struct {
	fallback Weights
}

// NewPatternClassifier builds a classifier that falls back to the given
// weights for queries with no recognizable shape.
func NewPatternClassifier(fallback Weights) *PatternClassifier {
	return &PatternClassifier{fallback: fallback}
}

var _ Classifier = (*PatternClassifier)(nil)

// Classify returns the weights suited to the query's shape.
func (p *PatternClassifier) Classify(query string) Weights {
	query = strings.TrimSpace(query)
	if query == "" {
		return p.fallback
	}
	if isIdentifierQuery(query) {
		return lexicalWeights
	}
	if naturalLanguagePattern.MatchString(query) {
		return semanticWeights
	}
	// Longer free-text queries read as natural language.
	if len(strings.Fields(query)) >= 4 {
		return semanticWeights
	}
	return p.fallback
}

func isIdentifierQuery(query string) bool {
	if errorCodePattern.MatchString(query) ||
		quotedPattern.MatchString(query) ||
		filePathPattern.MatchString(query) {
		return true
	}
	if strings.Contains(query, " ") {
		return false
	}
	return camelCasePattern.MatchString(query) ||
		pascalCasePattern.MatchString(query) ||
		snakeCasePattern.MatchString(query) ||
		screamingSnakePattern.MatchString(query) ||
		dottedPathPattern.MatchString(query)
}
