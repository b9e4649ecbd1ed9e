package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/mnemolite/mnemolite/internal/output"
	"github.com/mnemolite/mnemolite/internal/store"
)

func newMigrateCmd() *cobra.Command {
	var backfill bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Long: `Apply the embedded schema migrations to the configured database.

With --backfill, also recompute the content_hash metadata field for any
stored chunks that are missing it. The backfill uses the same hasher as
the indexing pipeline, so cache validation works for legacy rows.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd.Context(), cmd, backfill)
		},
	}

	cmd.Flags().BoolVar(&backfill, "backfill", false, "Backfill missing content hashes after migrating")

	return cmd
}

func runMigrate(ctx context.Context, cmd *cobra.Command, backfill bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer setupCommandLogging(cfg)()

	st, err := store.NewStore(cfg.Database)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	out := output.New(cmd.OutOrStdout())

	if err := st.Migrate(ctx); err != nil {
		return err
	}
	version, dirty, err := st.SchemaVersion(ctx)
	if err != nil {
		return err
	}
	if dirty {
		out.Warningf("schema at version %d but marked dirty; inspect the database", version)
	} else {
		out.Successf("schema at version %d", version)
	}

	if backfill {
		n, err := st.UpdateMissingContentHashes(ctx)
		if err != nil {
			return err
		}
		out.Successf("backfilled content hashes for %d chunks", n)
	}

	return nil
}
