package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mnemolite/mnemolite/internal/chunk"
)

const insertChunkSQL = `
	INSERT INTO chunks (
		chunk_id, repository, file_path, language, kind, name, qualified_name,
		start_line, end_line, source_code, embedding_text, embedding_code,
		metadata, created_at, updated_at
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11::vector, $12::vector,
		$13, $14, $15
	)`

// ReplaceFileChunks swaps every stored chunk of one file for the given
// set in a single transaction, so readers never observe a half-indexed
// file. An empty set clears the file.
func (s *Store) ReplaceFileChunks(ctx context.Context, repository, filePath string, chunks []*chunk.Chunk) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM chunks WHERE repository = $1 AND file_path = $2`,
		repository, filePath); err != nil {
		return fmt.Errorf("failed to delete stale chunks for %s: %w", filePath, err)
	}

	if len(chunks) > 0 {
		stmt, err := tx.PreparexContext(ctx, insertChunkSQL)
		if err != nil {
			return fmt.Errorf("failed to prepare chunk insert: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		now := time.Now().UTC()
		for _, c := range chunks {
			meta, err := json.Marshal(c.Metadata)
			if err != nil {
				return fmt.Errorf("failed to encode metadata for %s: %w", c.QualifiedName, err)
			}
			createdAt := c.CreatedAt
			if createdAt.IsZero() {
				createdAt = now
			}
			updatedAt := c.UpdatedAt
			if updatedAt.IsZero() {
				updatedAt = now
			}
			if _, err := stmt.ExecContext(ctx,
				c.ChunkID, c.Repository, c.FilePath, c.Language, string(c.Kind),
				c.Name, c.QualifiedName, c.StartLine, c.EndLine, c.SourceCode,
				vectorParam(c.EmbeddingText), vectorParam(c.EmbeddingCode),
				meta, createdAt, updatedAt); err != nil {
				return fmt.Errorf("failed to insert chunk %s: %w", c.QualifiedName, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit chunk replacement: %w", err)
	}
	return nil
}

// DeleteResult counts the rows removed by DeleteRepository.
type DeleteResult struct {
	Chunks  int64 `json:"chunks"`
	Nodes   int64 `json:"nodes"`
	Edges   int64 `json:"edges"`
	Metrics int64 `json:"metrics"`
}

// DeleteRepository removes every row belonging to a repository. Used by
// force reindexing; callers must hold the repository lock.
func (s *Store) DeleteRepository(ctx context.Context, repository string) (DeleteResult, error) {
	var result DeleteResult

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return result, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Edges carry no repository column; reach them through their nodes
	// before the nodes go away.
	res, err := tx.ExecContext(ctx, `
		DELETE FROM edges e USING nodes n
		WHERE e.source_node_id = n.node_id AND n.repository = $1`, repository)
	if err != nil {
		return result, fmt.Errorf("failed to delete edges: %w", err)
	}
	result.Edges, _ = res.RowsAffected()

	res, err = tx.ExecContext(ctx,
		`DELETE FROM computed_metrics WHERE repository = $1`, repository)
	if err != nil {
		return result, fmt.Errorf("failed to delete metrics: %w", err)
	}
	result.Metrics, _ = res.RowsAffected()

	res, err = tx.ExecContext(ctx,
		`DELETE FROM nodes WHERE repository = $1`, repository)
	if err != nil {
		return result, fmt.Errorf("failed to delete nodes: %w", err)
	}
	result.Nodes, _ = res.RowsAffected()

	res, err = tx.ExecContext(ctx,
		`DELETE FROM chunks WHERE repository = $1`, repository)
	if err != nil {
		return result, fmt.Errorf("failed to delete chunks: %w", err)
	}
	result.Chunks, _ = res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return result, fmt.Errorf("failed to commit repository delete: %w", err)
	}

	if err := s.DropRepositoryIndexes(ctx, repository); err != nil {
		slog.Warn("failed to drop vector indexes", "repository", repository, "error", err)
	}
	return result, nil
}

// ChunkRef is the slim view of a chunk the graph constructor works from.
type ChunkRef struct {
	ChunkID       uuid.UUID
	FilePath      string
	Language      string
	Kind          string
	Name          string
	QualifiedName string
	Imports       []string
	Calls         []string
	ReExports     []string
	ParamTypes    []chunk.Param
}

// ListChunkRefs returns every chunk of a repository in file order, with
// just the reference metadata needed to build the graph.
func (s *Store) ListChunkRefs(ctx context.Context, repository string) ([]ChunkRef, error) {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT chunk_id, file_path, language, kind, name, qualified_name,
		       COALESCE(metadata->'imports', '[]'::jsonb) AS imports,
		       COALESCE(metadata->'calls', '[]'::jsonb) AS calls,
		       COALESCE(metadata->'re_exports', '[]'::jsonb) AS re_exports,
		       COALESCE(metadata->'param_types', '[]'::jsonb) AS param_types
		FROM chunks
		WHERE repository = $1
		ORDER BY file_path, start_line`, repository)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var refs []ChunkRef
	for rows.Next() {
		var (
			ref ChunkRef
			raw struct {
				imports, calls, reExports, params []byte
			}
		)
		if err := rows.Scan(&ref.ChunkID, &ref.FilePath, &ref.Language,
			&ref.Kind, &ref.Name, &ref.QualifiedName,
			&raw.imports, &raw.calls, &raw.reExports, &raw.params); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		if err := json.Unmarshal(raw.imports, &ref.Imports); err != nil {
			return nil, fmt.Errorf("failed to decode imports for %s: %w", ref.QualifiedName, err)
		}
		if err := json.Unmarshal(raw.calls, &ref.Calls); err != nil {
			return nil, fmt.Errorf("failed to decode calls for %s: %w", ref.QualifiedName, err)
		}
		if err := json.Unmarshal(raw.reExports, &ref.ReExports); err != nil {
			return nil, fmt.Errorf("failed to decode re-exports for %s: %w", ref.QualifiedName, err)
		}
		if err := json.Unmarshal(raw.params, &ref.ParamTypes); err != nil {
			return nil, fmt.Errorf("failed to decode param types for %s: %w", ref.QualifiedName, err)
		}
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate chunks: %w", err)
	}
	return refs, nil
}

// formatVector renders a pgvector text literal.
func formatVector(vec []float32) string {
	var b strings.Builder
	b.Grow(len(vec)*10 + 2)
	b.WriteByte('[')
	for i, v := range vec {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(v), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

// vectorParam binds a vector column value, NULL when the embedding is
// absent.
func vectorParam(vec []float32) any {
	if len(vec) == 0 {
		return nil
	}
	return formatVector(vec)
}
