package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/mnemolite/mnemolite/internal/cache"
	"github.com/mnemolite/mnemolite/internal/output"
)

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and clear the chunk and search caches",
	}

	cmd.AddCommand(newCacheStatsCmd())
	cmd.AddCommand(newCacheClearCmd())

	return cmd
}

func newCacheStatsCmd() *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cache layer counters",
		Long: `Show per-layer cache counters: in-process (L1) size, hits and
evictions, shared (L2) hits and connectivity, and the combined hit rate.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCacheStats(cmd.Context(), cmd, jsonOut)
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print counters as JSON")

	return cmd
}

func runCacheStats(ctx context.Context, cmd *cobra.Command, jsonOut bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer setupCommandLogging(cfg)()

	app, err := buildApp(cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	stats := app.svc.CacheStats(ctx)

	out := output.New(cmd.OutOrStdout())
	if jsonOut {
		return out.JSON(stats)
	}
	renderCacheStats(out, stats)
	return nil
}

func renderCacheStats(out *output.Writer, stats cache.CascadeStats) {
	out.Statusf("", "L1: %d entries, %d/%d bytes (%.0f%% full)",
		stats.L1.Entries, stats.L1.SizeBytes, stats.L1.MaxBytes, stats.L1.Utilization*100)
	out.Statusf("", "L1: %d hits, %d misses, %d evictions (%.1f%% hit rate)",
		stats.L1.Hits, stats.L1.Misses, stats.L1.Evictions, stats.L1.HitRate*100)
	if stats.L2 != nil {
		state := "connected"
		if !stats.L2.Connected {
			state = "unreachable"
		}
		out.Statusf("", "L2: %s, %d entries", state, stats.L2.Entries)
		out.Statusf("", "L2: %d hits, %d misses, %d errors (%.1f%% hit rate)",
			stats.L2.Hits, stats.L2.Misses, stats.L2.Errors, stats.L2.HitRate*100)
	}
	out.Statusf("", "combined hit rate: %.1f%%", stats.CombinedHitRate*100)
}

func newCacheClearCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear [scope]",
		Short: "Drop cached chunks and search results",
		Long: `Drop cached entries. Scope is one of:

  all                  everything (default)
  repository:<path>    one repository's entries
  file:<path>          one file's entries

Status records and the indexing lock are never touched.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scope := ""
			if len(args) > 0 {
				scope = args[0]
			}
			return runCacheClear(cmd.Context(), cmd, scope)
		},
	}

	return cmd
}

func runCacheClear(ctx context.Context, cmd *cobra.Command, scope string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer setupCommandLogging(cfg)()

	app, err := buildApp(cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	ack, err := app.svc.ClearCache(ctx, scope)
	if err != nil {
		return err
	}

	output.New(cmd.OutOrStdout()).Successf("cache cleared (scope: %s)", ack.Scope)
	return nil
}
