package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/mnemolite/mnemolite/internal/hash"
)

// repoIndexSuffix derives a stable fragment from a repository name that
// is safe inside an identifier.
func repoIndexSuffix(repository string) string {
	return hash.String(repository)[:8]
}

func repoIndexName(column, suffix string) string {
	return fmt.Sprintf("idx_chunks_%s_ann_%s", strings.TrimPrefix(column, "embedding_"), suffix)
}

// EnsureRepositoryIndexes creates the ANN indexes for one repository at
// the deployed embedding width. The embedding columns are untyped so one
// schema serves every deployment; each index pins the width with an
// expression cast and scopes itself to its repository. Missing indexes
// cost speed, not correctness, so callers may treat failures as warnings.
func (s *Store) EnsureRepositoryIndexes(ctx context.Context, repository string, dimensions int) error {
	if dimensions <= 0 {
		return fmt.Errorf("invalid embedding dimensions %d", dimensions)
	}
	suffix := repoIndexSuffix(repository)
	repoLit := pq.QuoteLiteral(repository)

	for _, col := range []string{"embedding_text", "embedding_code"} {
		name := repoIndexName(col, suffix)
		stmt := fmt.Sprintf(`
			CREATE INDEX IF NOT EXISTS %s ON chunks
			USING hnsw ((%s::vector(%d)) vector_cosine_ops)
			WHERE repository = %s`, name, col, dimensions, repoLit)
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create index %s: %w", name, err)
		}
	}
	return nil
}

// DropRepositoryIndexes removes the repository's ANN indexes, if present.
func (s *Store) DropRepositoryIndexes(ctx context.Context, repository string) error {
	suffix := repoIndexSuffix(repository)
	for _, col := range []string{"embedding_text", "embedding_code"} {
		name := repoIndexName(col, suffix)
		if _, err := s.db.ExecContext(ctx, "DROP INDEX IF EXISTS "+name); err != nil {
			return fmt.Errorf("failed to drop index %s: %w", name, err)
		}
	}
	return nil
}
