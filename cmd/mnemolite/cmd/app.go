package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/mnemolite/mnemolite/internal/cache"
	"github.com/mnemolite/mnemolite/internal/config"
	"github.com/mnemolite/mnemolite/internal/coordinator"
	"github.com/mnemolite/mnemolite/internal/embed"
	"github.com/mnemolite/mnemolite/internal/graph"
	"github.com/mnemolite/mnemolite/internal/logging"
	"github.com/mnemolite/mnemolite/internal/metrics"
	"github.com/mnemolite/mnemolite/internal/oracle"
	"github.com/mnemolite/mnemolite/internal/pipeline"
	"github.com/mnemolite/mnemolite/internal/search"
	"github.com/mnemolite/mnemolite/internal/service"
	"github.com/mnemolite/mnemolite/internal/store"
)

// app holds the wired collaborators behind every command that touches
// the store. Build one per invocation and Close it when done.
type app struct {
	cfg      *config.Config
	store    *store.Store
	l2       *cache.L2
	cascade  *cache.Cascade
	embedder embed.Embedder
	oracle   oracle.Oracle
	metrics  *metrics.Metrics
	coord    *coordinator.Coordinator
	engine   *search.Engine
	svc      *service.Service
}

// loadConfig resolves configuration for the current invocation: the
// explicit --config file when given, otherwise the project root of the
// working directory.
func loadConfig() (*config.Config, error) {
	if configFile != "" {
		return config.LoadFile(configFile)
	}
	root, err := config.FindProjectRoot(".")
	if err != nil {
		root, _ = os.Getwd()
	}
	return config.Load(root)
}

// setupCommandLogging switches slog to file-only logging so user-facing
// command output stays clean. Returns a cleanup func; logging failures
// are not fatal for a CLI run.
func setupCommandLogging(cfg *config.Config) func() {
	logCfg := logging.DefaultConfig()
	logCfg.WriteToStderr = false
	if cfg != nil && cfg.Log.Level != "" {
		logCfg.Level = cfg.Log.Level
	}
	if cfg != nil && cfg.Log.File != "" {
		logCfg.FilePath = cfg.Log.File
	}
	if debugMode {
		// --debug already set up its own logger in the pre-run hook.
		return func() {}
	}
	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return func() {}
	}
	slog.SetDefault(logger)
	return cleanup
}

// buildApp wires the full service stack from configuration: store,
// cache layers, embedder, oracle, pipeline factory, coordinator, search
// engine, and the invocation surface on top.
func buildApp(cfg *config.Config) (*app, error) {
	st, err := store.NewStore(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	l2 := cache.NewL2(cache.RedisOptions{
		Addr:           cfg.L2.Addr,
		Password:       cfg.L2.Password,
		DB:             cfg.L2.DB,
		MaxConnections: cfg.L2.MaxConnections,
	})
	cascade := cache.NewCascade(cache.NewL1(cfg.L1.MaxBytes), l2, cfg.ChunkTTL())

	embedder, err := embed.New(cfg)
	if err != nil {
		_ = l2.Close()
		_ = st.Close()
		return nil, fmt.Errorf("failed to build embedder: %w", err)
	}

	m := metrics.New()
	m.MustRegister(metrics.NewCascadeCollector(cascade))

	var typeOracle oracle.Oracle = oracle.NopOracle{}
	if cfg.Oracle.Enabled && cfg.Oracle.Command != "" {
		typeOracle = oracle.New(oracle.Config{
			Command: cfg.Oracle.Command,
			Timeout: cfg.OracleTimeout(),
		})
	}

	factory := func() (coordinator.FilePipeline, error) {
		return pipeline.New(pipeline.Dependencies{
			Cascade:  cascade,
			Store:    st,
			Embedder: embedder,
			Config:   cfg,
			Oracle:   typeOracle,
			Observer: m,
		})
	}

	coord, err := coordinator.New(coordinator.Dependencies{
		Pipelines: factory,
		Graph:     graph.NewBuilder(st),
		Store:     st,
		Caches:    cascade,
		KV:        l2,
		Config:    cfg,
		Metrics:   m,
	})
	if err != nil {
		teardown(st, l2, embedder, typeOracle)
		return nil, err
	}

	classifier := search.NewPatternClassifier(search.Weights{
		Lexical:       cfg.Search.LexicalWeight,
		Vector:        cfg.Search.VectorWeight,
		EnableLexical: true,
		EnableVector:  true,
	})
	engine, err := search.NewEngine(st, embedder, l2, search.EngineConfigFrom(cfg),
		search.WithClassifier(classifier),
		search.WithMetrics(m))
	if err != nil {
		teardown(st, l2, embedder, typeOracle)
		return nil, err
	}

	svc, err := service.New(service.Dependencies{
		Indexer:   coord,
		Searcher:  engine,
		Caches:    cascade,
		Stats:     st,
		Pipelines: factory,
	})
	if err != nil {
		teardown(st, l2, embedder, typeOracle)
		return nil, err
	}

	return &app{
		cfg:      cfg,
		store:    st,
		l2:       l2,
		cascade:  cascade,
		embedder: embedder,
		oracle:   typeOracle,
		metrics:  m,
		coord:    coord,
		engine:   engine,
		svc:      svc,
	}, nil
}

// Close releases every held resource. Safe to call once.
func (a *app) Close() {
	if a.svc != nil {
		a.svc.Close()
	}
	teardown(a.store, a.l2, a.embedder, a.oracle)
}

func teardown(st *store.Store, l2 *cache.L2, embedder embed.Embedder, typeOracle oracle.Oracle) {
	if typeOracle != nil {
		typeOracle.Close()
	}
	if embedder != nil {
		_ = embedder.Close()
	}
	if l2 != nil {
		_ = l2.Close()
	}
	if st != nil {
		_ = st.Close()
	}
}
