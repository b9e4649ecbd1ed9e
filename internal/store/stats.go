package store

import (
	"context"
	"fmt"
	"time"
)

// RepoStats summarizes what is stored for one repository.
type RepoStats struct {
	Repository    string     `json:"repository"`
	TotalChunks   int64      `json:"total_chunks"`
	Nodes         int64      `json:"nodes"`
	Edges         int64      `json:"edges"`
	Languages     []string   `json:"languages"`
	LastIndexedAt *time.Time `json:"last_indexed_at,omitempty"`
}

// RepositoryStats reports chunk, node, and edge counts, the languages
// present, and when the repository was last written.
func (s *Store) RepositoryStats(ctx context.Context, repository string) (*RepoStats, error) {
	stats := &RepoStats{Repository: repository, Languages: []string{}}

	err := s.db.QueryRowxContext(ctx, `
		SELECT count(*), max(updated_at)
		FROM chunks
		WHERE repository = $1`, repository).Scan(&stats.TotalChunks, &stats.LastIndexedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to count chunks: %w", err)
	}

	if err := s.db.SelectContext(ctx, &stats.Languages, `
		SELECT DISTINCT language
		FROM chunks
		WHERE repository = $1
		ORDER BY language`, repository); err != nil {
		return nil, fmt.Errorf("failed to list languages: %w", err)
	}

	if err := s.db.QueryRowxContext(ctx, `
		SELECT count(*)
		FROM nodes
		WHERE repository = $1`, repository).Scan(&stats.Nodes); err != nil {
		return nil, fmt.Errorf("failed to count nodes: %w", err)
	}

	if err := s.db.QueryRowxContext(ctx, `
		SELECT count(*)
		FROM edges e
		JOIN nodes n ON e.source_node_id = n.node_id
		WHERE n.repository = $1`, repository).Scan(&stats.Edges); err != nil {
		return nil, fmt.Errorf("failed to count edges: %w", err)
	}

	return stats, nil
}

// ListRepositories returns every repository with stored chunks.
func (s *Store) ListRepositories(ctx context.Context) ([]string, error) {
	repos := []string{}
	if err := s.db.SelectContext(ctx, &repos, `
		SELECT DISTINCT repository
		FROM chunks
		ORDER BY repository`); err != nil {
		return nil, fmt.Errorf("failed to list repositories: %w", err)
	}
	return repos, nil
}
