package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mnemolite/mnemolite/internal/output"
	"github.com/mnemolite/mnemolite/internal/service"
	"github.com/mnemolite/mnemolite/internal/watcher"
)

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch [path]",
		Short: "Watch a repository and re-index changed files",
		Long: `Watch a repository for file changes and re-index each changed file
as it settles. Deleted files have their cache entries dropped.

Changes to ignore files or the mnemolite config trigger a full
repository re-index, because they can change which files are indexed.

Runs until interrupted.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd.Context(), cmd, repositoryArg(args))
		},
	}

	return cmd
}

func runWatch(ctx context.Context, cmd *cobra.Command, root string) error {
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("failed to access path: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", root)
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

	w, err := watcher.NewHybridWatcher(watcher.Options{
		DebounceWindow: cfg.WatchDebounce(),
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start blocks for the lifetime of the watch; run it aside and keep
	// this goroutine on the event loop.
	startErr := make(chan error, 1)
	go func() { startErr <- w.Start(ctx, root) }()
	defer func() { _ = w.Stop() }()

	out := output.New(cmd.OutOrStdout())
	out.Statusf("👁", "watching %s (%s)", root, w.WatcherType())

	for {
		select {
		case <-ctx.Done():
			out.Newline()
			out.Status("", "watch stopped")
			return nil
		case err := <-startErr:
			if err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		case err, ok := <-w.Errors():
			if !ok {
				return nil
			}
			slog.Warn("watcher error", slog.String("error", err.Error()))
		case batch, ok := <-w.Events():
			if !ok {
				return nil
			}
			for _, ev := range batch {
				handleWatchEvent(ctx, out, app, root, ev)
			}
		}
	}
}

// handleWatchEvent reacts to one settled file event: re-index on write,
// cache drop on delete, full re-index when indexing inputs changed.
func handleWatchEvent(ctx context.Context, out *output.Writer, app *app, root string, ev watcher.FileEvent) {
	if ev.IsDir {
		return
	}
	abs := filepath.Join(root, filepath.FromSlash(ev.Path))

	switch ev.Operation {
	case watcher.OpCreate, watcher.OpModify, watcher.OpRename:
		res, err := app.svc.ReindexFile(ctx, root, abs, nil)
		if err != nil {
			out.Warningf("%s: %v", ev.Path, err)
			return
		}
		out.Statusf("↻", "%s: %s (%d chunks)", ev.Path, res.Status, res.Chunks)
		if ev.Operation == watcher.OpRename && ev.OldPath != "" {
			app.cascade.Invalidate(ctx, filepath.Join(root, filepath.FromSlash(ev.OldPath)))
		}
	case watcher.OpDelete:
		app.cascade.Invalidate(ctx, abs)
		out.Statusf("✗", "%s: removed from cache", ev.Path)
	case watcher.OpIgnoreChange, watcher.OpConfigChange:
		out.Statusf("⟳", "%s changed; re-indexing repository", ev.Path)
		if _, err := app.svc.IndexRepository(ctx, root, root, service.IndexRepositoryOptions{}); err != nil {
			out.Warningf("re-index failed: %v", err)
		}
	}
}
