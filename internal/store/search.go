package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/mnemolite/mnemolite/internal/chunk"
)

// DefaultCandidateLimit bounds each retrieval list before fusion.
const DefaultCandidateLimit = 50

// SearchFilters narrows search candidates. Zero values match anything.
// The JSON shape is stable because cache fingerprints are computed
// over it.
type SearchFilters struct {
	Language   string `json:"language,omitempty"`
	Kind       string `json:"kind,omitempty"`
	Repository string `json:"repository,omitempty"`
	FilePath   string `json:"file_path,omitempty"`
	ReturnType string `json:"return_type,omitempty"`
	ParamType  string `json:"param_type,omitempty"`
}

// IsZero reports whether no filter is set.
func (f SearchFilters) IsZero() bool {
	return f == SearchFilters{}
}

// SearchCandidate is one retrieved chunk with its per-list score:
// trigram similarity for lexical retrieval, cosine similarity for
// vector retrieval.
type SearchCandidate struct {
	ChunkID       uuid.UUID      `json:"chunk_id"`
	Repository    string         `json:"repository"`
	FilePath      string         `json:"file_path"`
	Language      string         `json:"language"`
	Kind          string         `json:"kind"`
	Name          string         `json:"name"`
	QualifiedName string         `json:"qualified_name"`
	StartLine     int            `json:"start_line"`
	EndLine       int            `json:"end_line"`
	SourceCode    string         `json:"source_code"`
	Metadata      chunk.Metadata `json:"metadata"`
	Score         float64        `json:"score"`
}

const searchColumns = `chunk_id, repository, file_path, language, kind, name,
	       qualified_name, start_line, end_line, source_code, metadata`

// LexicalSearch retrieves chunks whose source, name, or qualified name
// contain the query, scored by trigram similarity against the names.
func (s *Store) LexicalSearch(ctx context.Context, query string, filters SearchFilters, limit int) ([]SearchCandidate, error) {
	if limit <= 0 {
		limit = DefaultCandidateLimit
	}
	pattern := "%" + likeEscape(query) + "%"
	where := []string{"(source_code ILIKE $2 OR name ILIKE $2 OR qualified_name ILIKE $2)"}
	args := []any{query, pattern}
	where, args = filters.appendWhere(where, args)
	args = append(args, limit)

	q := fmt.Sprintf(`
		SELECT %s,
		       GREATEST(similarity(name, $1), similarity(qualified_name, $1)) AS score
		FROM chunks
		WHERE %s
		ORDER BY score DESC, chunk_id
		LIMIT $%d`, searchColumns, strings.Join(where, " AND "), len(args))

	return s.scanCandidates(ctx, q, args)
}

// VectorSearch retrieves the nearest chunks to the query vector by
// cosine distance over the text-domain embeddings. Chunks persisted
// without vectors are excluded. The width is taken from the query
// vector so the same query path serves every deployment.
func (s *Store) VectorSearch(ctx context.Context, vec []float32, filters SearchFilters, limit int) ([]SearchCandidate, error) {
	if len(vec) == 0 {
		return nil, fmt.Errorf("empty query vector")
	}
	if limit <= 0 {
		limit = DefaultCandidateLimit
	}

	// The cast mirrors the ANN index expression so the planner can use it.
	dims := len(vec)
	expr := fmt.Sprintf("embedding_text::vector(%d) <=> $1::vector(%d)", dims, dims)

	where := []string{"embedding_text IS NOT NULL"}
	args := []any{formatVector(vec)}
	where, args = filters.appendWhere(where, args)
	args = append(args, limit)

	q := fmt.Sprintf(`
		SELECT %s,
		       1 - (%s) AS score
		FROM chunks
		WHERE %s
		ORDER BY %s
		LIMIT $%d`, searchColumns, expr, strings.Join(where, " AND "), expr, len(args))

	return s.scanCandidates(ctx, q, args)
}

func (s *Store) scanCandidates(ctx context.Context, query string, args []any) ([]SearchCandidate, error) {
	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search query failed: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []SearchCandidate
	for rows.Next() {
		var (
			c       SearchCandidate
			metaRaw []byte
		)
		if err := rows.Scan(&c.ChunkID, &c.Repository, &c.FilePath, &c.Language,
			&c.Kind, &c.Name, &c.QualifiedName, &c.StartLine, &c.EndLine,
			&c.SourceCode, &metaRaw, &c.Score); err != nil {
			return nil, fmt.Errorf("failed to scan search row: %w", err)
		}
		if len(metaRaw) > 0 {
			if err := json.Unmarshal(metaRaw, &c.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode metadata for %s: %w", c.QualifiedName, err)
			}
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate search rows: %w", err)
	}
	return out, nil
}

// appendWhere adds the filter clauses, numbering placeholders after the
// arguments already bound.
func (f SearchFilters) appendWhere(where []string, args []any) ([]string, []any) {
	add := func(clause string, value any) {
		args = append(args, value)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if f.Language != "" {
		add("language = $%d", f.Language)
	}
	if f.Kind != "" {
		add("kind = $%d", f.Kind)
	}
	if f.Repository != "" {
		add("repository = $%d", f.Repository)
	}
	if f.FilePath != "" {
		add("file_path LIKE $%d", globToLike(f.FilePath))
	}
	if f.ReturnType != "" {
		add("metadata->>'return_type' ILIKE $%d", "%"+likeEscape(f.ReturnType)+"%")
	}
	if f.ParamType != "" {
		add("EXISTS (SELECT 1 FROM jsonb_array_elements(metadata->'param_types') AS p WHERE p->>'type' ILIKE $%d)", "%"+likeEscape(f.ParamType)+"%")
	}
	return where, args
}

// globToLike translates a path glob to a LIKE pattern: * matches any
// run, ? a single character, and LIKE metacharacters are escaped.
func globToLike(glob string) string {
	var b strings.Builder
	for _, r := range glob {
		switch r {
		case '*':
			b.WriteByte('%')
		case '?':
			b.WriteByte('_')
		case '%', '_':
			b.WriteByte('\\')
			b.WriteRune(r)
		case '\\':
			b.WriteString(`\\`)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func likeEscape(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
