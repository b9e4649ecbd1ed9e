package cmd

import (
	"context"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mnemolite/mnemolite/internal/config"
	"github.com/mnemolite/mnemolite/internal/coordinator"
	"github.com/mnemolite/mnemolite/internal/output"
)

func newStatusCmd() *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "status [repository]",
		Short: "Show indexing status for a repository",
		Long: `Show the shared indexing status record for a repository: whether it
is indexed, mid-run, or failed, with file-level progress.

The record lives in the shared cache, so the status of a run started by
another process (or the HTTP server) is visible here too.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo := repositoryArg(args)
			return runStatus(cmd.Context(), cmd, repo, jsonOut)
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the status as JSON")

	return cmd
}

// repositoryArg resolves the repository identifier from an optional
// positional argument, defaulting to the current project root.
func repositoryArg(args []string) string {
	if len(args) > 0 {
		abs, err := filepath.Abs(args[0])
		if err != nil {
			return args[0]
		}
		return abs
	}
	root, err := config.FindProjectRoot(".")
	if err != nil {
		root, _ = filepath.Abs(".")
	}
	return root
}

func runStatus(ctx context.Context, cmd *cobra.Command, repository string, jsonOut bool) error {
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

	st, err := app.svc.GetIndexingStatus(ctx, repository)
	if err != nil {
		return err
	}

	out := output.New(cmd.OutOrStdout())
	if jsonOut {
		return out.JSON(st)
	}
	renderStatus(out, st)
	return nil
}

func renderStatus(out *output.Writer, st coordinator.Status) {
	out.Statusf("", "repository: %s", st.Repository)
	switch st.State {
	case coordinator.StateNotIndexed:
		out.Status("·", "not indexed")
	case coordinator.StateInProgress:
		out.Statusf("⋯", "indexing in progress: %d/%d files", st.IndexedFiles, st.TotalFiles)
		if !st.StartedAt.IsZero() {
			out.Statusf("", "started: %s", st.StartedAt.Format("2006-01-02 15:04:05"))
		}
	case coordinator.StateCompleted:
		out.Successf("indexed: %d files", st.IndexedFiles)
		if st.CompletedAt != nil {
			out.Statusf("", "completed: %s", st.CompletedAt.Format("2006-01-02 15:04:05"))
		}
	case coordinator.StateFailed:
		out.Errorf("indexing failed: %s", st.Error)
	default:
		out.Statusf("?", "state: %s", st.State)
	}
}
