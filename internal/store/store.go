// Package store persists chunks, graph nodes and edges, and computed
// metrics in Postgres. Lexical search runs on pg_trgm, vector search on
// pgvector; both filter server-side so candidate lists stay bounded.
// Schema lives in embedded migrations applied by Migrate.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/mnemolite/mnemolite/internal/config"
)

// Store is the Postgres-backed persistence layer. It is safe for
// concurrent use; indexing workers share one Store and the pool hands
// each transaction its own connection.
type Store struct {
	db *sqlx.DB
}

// NewStore opens a connection pool against the configured database. The
// connection is verified lazily; call Ping to check reachability.
func NewStore(cfg config.DatabaseConfig) (*Store, error) {
	db, err := sqlx.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	maxOpen := cfg.MaxOpen
	if maxOpen <= 0 {
		maxOpen = 8
	}
	maxIdle := cfg.MaxIdle
	if maxIdle <= 0 {
		maxIdle = 4
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(15 * time.Minute)

	return &Store{db: db}, nil
}

// NewStoreWithDB wraps an existing connection. Tests use this with a
// mock driver.
func NewStoreWithDB(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}
