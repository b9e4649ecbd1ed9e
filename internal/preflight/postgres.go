package preflight

import (
	"context"
	"fmt"

	"github.com/mnemolite/mnemolite/internal/config"
	"github.com/mnemolite/mnemolite/internal/store"
)

// CheckPostgres verifies the database is reachable and reports the
// schema migration version. The store is the source of truth, so this
// check is required.
func (c *Checker) CheckPostgres(ctx context.Context, cfg *config.Config) CheckResult {
	result := CheckResult{
		Name:     "postgres",
		Required: true,
	}

	st, err := store.NewStore(cfg.Database)
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("invalid database configuration: %v", err)
		return result
	}
	defer func() { _ = st.Close() }()

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := st.Ping(pingCtx); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("unreachable: %v", err)
		result.Details = "Check database.url and that PostgreSQL is running"
		return result
	}

	version, dirty, err := st.SchemaVersion(ctx)
	if err != nil {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("connected, but schema version unknown: %v", err)
		result.Details = "Run 'mnemolite migrate' to initialize the schema"
		return result
	}
	if dirty {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("connected, schema dirty at version %d", version)
		result.Details = "A migration failed partway; resolve it and re-run 'mnemolite migrate'"
		return result
	}
	if version == 0 {
		result.Status = StatusWarn
		result.Message = "connected, schema not migrated"
		result.Details = "Run 'mnemolite migrate' to initialize the schema"
		return result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("connected (schema version %d)", version)
	return result
}
