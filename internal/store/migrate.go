package store

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/mnemolite/mnemolite/internal/hash"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const migrateTimeout = time.Minute

// Migrate applies all pending schema migrations.
func (s *Store) Migrate(ctx context.Context) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	driver, err := postgres.WithInstance(s.db.DB, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, migrateTimeout)
	defer cancel()

	// migrate.Up does not take a context; bound it from outside.
	done := make(chan error, 1)
	go func() {
		err := migrator.Up()
		if errors.Is(err, migrate.ErrNoChange) {
			err = nil
		}
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("migration timed out after %s", migrateTimeout)
	}
}

// SchemaVersion reports the current migration version and whether a
// failed migration left the schema dirty.
func (s *Store) SchemaVersion(ctx context.Context) (version uint, dirty bool, err error) {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return 0, false, fmt.Errorf("failed to load migrations: %w", err)
	}
	driver, err := postgres.WithInstance(s.db.DB, &postgres.Config{})
	if err != nil {
		return 0, false, fmt.Errorf("failed to create migration driver: %w", err)
	}
	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return 0, false, fmt.Errorf("failed to create migrator: %w", err)
	}

	version, dirty, err = migrator.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

// UpdateMissingContentHashes computes content hashes for rows that lack
// one, using the same hasher new writes use. The SQL backfill migration
// covers the common case; this pass catches rows it could not reach and
// returns how many it repaired.
func (s *Store) UpdateMissingContentHashes(ctx context.Context) (int64, error) {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT chunk_id, source_code
		FROM chunks
		WHERE COALESCE(metadata->>'content_hash', '') = ''`)
	if err != nil {
		return 0, fmt.Errorf("failed to list chunks without content hash: %w", err)
	}
	defer func() { _ = rows.Close() }()

	type pending struct {
		id   string
		hash string
	}
	var work []pending
	for rows.Next() {
		var id, source string
		if err := rows.Scan(&id, &source); err != nil {
			return 0, fmt.Errorf("failed to scan chunk: %w", err)
		}
		work = append(work, pending{id: id, hash: hash.String(source)})
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("failed to iterate chunks: %w", err)
	}

	var updated int64
	for _, p := range work {
		res, err := s.db.ExecContext(ctx, `
			UPDATE chunks
			SET metadata = jsonb_set(metadata, '{content_hash}', to_jsonb($1::text)),
			    updated_at = now()
			WHERE chunk_id = $2`, p.hash, p.id)
		if err != nil {
			return updated, fmt.Errorf("failed to backfill chunk %s: %w", p.id, err)
		}
		n, _ := res.RowsAffected()
		updated += n
	}

	if updated > 0 {
		slog.Info("backfilled content hashes", "chunks", updated)
	}
	return updated, nil
}
