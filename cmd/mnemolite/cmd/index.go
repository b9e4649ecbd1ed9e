package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mnemolite/mnemolite/internal/config"
	"github.com/mnemolite/mnemolite/internal/coordinator"
	"github.com/mnemolite/mnemolite/internal/embed"
	"github.com/mnemolite/mnemolite/internal/output"
	"github.com/mnemolite/mnemolite/internal/service"
	"github.com/mnemolite/mnemolite/internal/ui"
)

// indexOptions holds the CLI flags for index.
type indexOptions struct {
	workers        int
	force          bool
	includeIgnored bool
	plain          bool
	jsonOut        bool
}

func newIndexCmd() *cobra.Command {
	var opts indexOptions

	cmd := &cobra.Command{
		Use:   "index [path]",
		Short: "Index a repository",
		Long: `Index every source file under a repository root: parse, chunk,
extract metadata, embed, persist, then build the code graph.

Unchanged files are served from the chunk cache, so re-running on an
already-indexed repository is cheap.

Examples:
  mnemolite index
  mnemolite index ~/src/myrepo --workers 4
  mnemolite index . --force`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var path string
			if len(args) > 0 {
				path = args[0]
			} else if root, err := config.FindProjectRoot("."); err == nil {
				path = root
			} else {
				path = "."
			}
			return runIndex(cmd.Context(), cmd, path, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.workers, "workers", "w", 0, "Worker count (0 = configured default)")
	cmd.Flags().BoolVar(&opts.force, "force", false, "Delete stored chunks, graph and caches first, then re-index")
	cmd.Flags().BoolVar(&opts.includeIgnored, "include-ignored", false, "Index files matched by ignore files")
	cmd.Flags().BoolVar(&opts.plain, "plain", false, "Plain line output (no progress view)")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "Print the run summary as JSON")

	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, path string, opts indexOptions) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return fmt.Errorf("failed to access path: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", absPath)
	}

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

	if opts.jsonOut {
		return runIndexJSON(ctx, cmd, app, absPath, opts)
	}

	uiCfg := ui.NewConfig(cmd.OutOrStdout(),
		ui.WithForcePlain(opts.plain),
		ui.WithNoColor(ui.DetectNoColor()),
		ui.WithRepository(absPath))
	renderer := ui.NewRenderer(uiCfg)
	if err := renderer.Start(ctx); err != nil {
		slog.Warn("failed to start progress renderer", slog.String("error", err.Error()))
	}
	defer func() { _ = renderer.Stop() }()

	renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageScanning, Message: "scanning " + absPath})

	summary, err := app.svc.IndexRepository(ctx, absPath, absPath, service.IndexRepositoryOptions{
		Workers:        opts.workers,
		IncludeIgnored: opts.includeIgnored,
		ForceReindex:   opts.force,
		Progress: func(p coordinator.Progress) {
			renderer.UpdateProgress(ui.ProgressEvent{
				Stage:       ui.StageIndexing,
				Current:     p.Current,
				Total:       p.Total,
				CurrentFile: p.Message,
			})
		},
	})
	if err != nil {
		return err
	}

	for _, f := range summary.Failed {
		renderer.AddError(ui.ErrorEvent{
			File: f.FilePath,
			Err:  fmt.Errorf("%s: %s", f.Kind, f.Message),
		})
	}

	ensureANNIndexes(ctx, app, absPath)

	renderer.Complete(ui.CompletionStats{
		Files:    summary.Total,
		Indexed:  summary.Indexed,
		Cached:   summary.Cached,
		Skipped:  summary.Skipped,
		Failed:   len(summary.Failed),
		Chunks:   summary.Chunks,
		Nodes:    summary.Nodes,
		Edges:    summary.Edges,
		Duration: summary.Duration,
	})
	return nil
}

// runIndexJSON runs the same pass without the progress view, emitting
// the summary as one JSON document for scripts.
func runIndexJSON(ctx context.Context, cmd *cobra.Command, app *app, absPath string, opts indexOptions) error {
	summary, err := app.svc.IndexRepository(ctx, absPath, absPath, service.IndexRepositoryOptions{
		Workers:        opts.workers,
		IncludeIgnored: opts.includeIgnored,
		ForceReindex:   opts.force,
	})
	if err != nil {
		return err
	}
	ensureANNIndexes(ctx, app, absPath)
	return output.New(cmd.OutOrStdout()).JSON(summary)
}

// ensureANNIndexes creates the per-repository vector indexes after a
// run. Best-effort: queries work without them, just slower.
func ensureANNIndexes(ctx context.Context, app *app, repository string) {
	dims := embed.GetInfo(ctx, app.embedder).Dimensions
	if err := app.store.EnsureRepositoryIndexes(ctx, repository, dims); err != nil {
		slog.Warn("failed to create vector indexes",
			slog.String("repository", repository),
			slog.String("error", err.Error()))
	}
}
