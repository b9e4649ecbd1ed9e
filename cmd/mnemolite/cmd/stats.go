package cmd

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mnemolite/mnemolite/internal/output"
	"github.com/mnemolite/mnemolite/internal/store"
)

func newStatsCmd() *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "stats [repository]",
		Short: "Show stored repository statistics",
		Long: `Show what is stored for a repository: chunk count, graph size,
languages, and when it was last indexed.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo := repositoryArg(args)
			return runStats(cmd.Context(), cmd, repo, jsonOut)
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print statistics as JSON")

	return cmd
}

func runStats(ctx context.Context, cmd *cobra.Command, repository string, jsonOut bool) error {
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

	stats, err := app.svc.RepositoryStats(ctx, repository)
	if err != nil {
		return err
	}

	out := output.New(cmd.OutOrStdout())
	if jsonOut {
		return out.JSON(stats)
	}
	renderRepoStats(out, stats)
	return nil
}

func renderRepoStats(out *output.Writer, stats *store.RepoStats) {
	out.Statusf("", "repository: %s", stats.Repository)
	out.Statusf("", "chunks:     %d", stats.TotalChunks)
	out.Statusf("", "nodes:      %d", stats.Nodes)
	out.Statusf("", "edges:      %d", stats.Edges)
	if len(stats.Languages) > 0 {
		out.Statusf("", "languages:  %s", strings.Join(stats.Languages, ", "))
	}
	if stats.LastIndexedAt != nil {
		out.Statusf("", "indexed at: %s", stats.LastIndexedAt.Format("2006-01-02 15:04:05"))
	} else {
		out.Status("·", "not indexed yet")
	}
}
