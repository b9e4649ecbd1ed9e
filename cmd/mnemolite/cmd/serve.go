package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mnemolite/mnemolite/internal/api"
	"github.com/mnemolite/mnemolite/internal/logging"
	"github.com/mnemolite/mnemolite/internal/mcp"
)

const shutdownGrace = 10 * time.Second

// serveOptions holds the CLI flags for serve.
type serveOptions struct {
	httpMode bool
	addr     string
}

func newServeCmd() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the indexing and search API",
		Long: `Serve the indexing and search API.

By default the server speaks the Model Context Protocol over stdio, for
AI coding assistants. With --http it exposes the REST surface instead,
including /healthz, /readyz and /metrics.

Examples:
  mnemolite serve
  mnemolite serve --http
  mnemolite serve --http --addr :9090`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}

	cmd.Flags().BoolVar(&opts.httpMode, "http", false, "Serve HTTP instead of MCP over stdio")
	cmd.Flags().StringVar(&opts.addr, "addr", "", "HTTP listen address (default from config)")

	return cmd
}

func runServe(ctx context.Context, opts serveOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Stdio transports cannot share stdout with log lines; file-only
	// logging serves both modes.
	logCfg := logging.DefaultConfig()
	logCfg.WriteToStderr = false
	logCfg.Level = cfg.Log.Level
	if cfg.Log.File != "" {
		logCfg.FilePath = cfg.Log.File
	}
	if logger, cleanup, err := logging.Setup(logCfg); err == nil {
		slog.SetDefault(logger)
		defer cleanup()
	}

	app, err := buildApp(cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if opts.httpMode {
		return serveHTTP(ctx, app, opts.addr)
	}
	return serveMCP(ctx, app)
}

func serveMCP(ctx context.Context, app *app) error {
	srv, err := mcp.NewServer(app.svc)
	if err != nil {
		return err
	}
	name, ver := srv.Info()
	slog.Info("mcp server starting", slog.String("name", name), slog.String("version", ver))
	return srv.Serve(ctx)
}

func serveHTTP(ctx context.Context, app *app, addr string) error {
	if addr == "" {
		addr = app.cfg.Server.Addr
	}

	router, err := api.NewRouter(api.Dependencies{
		Service: app.svc,
		Metrics: app.metrics,
		Ready: func(ctx context.Context) error {
			if err := app.store.Ping(ctx); err != nil {
				return fmt.Errorf("store: %w", err)
			}
			// L2 down is degraded, not unready; the system is correct
			// with the shared cache cold.
			return nil
		},
	})
	if err != nil {
		return err
	}

	srv := api.NewServer(addr, router)
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", slog.String("addr", addr))
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("http server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownGrace)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
