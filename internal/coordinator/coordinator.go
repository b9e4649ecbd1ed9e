// Package coordinator drives repository indexing runs: scan, lock,
// sequential or parallel per-file execution, progress and status
// reporting, then the single-writer graph pass over the merged result.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mnemolite/mnemolite/internal/config"
	mnemoerrors "github.com/mnemolite/mnemolite/internal/errors"
	"github.com/mnemolite/mnemolite/internal/graph"
	"github.com/mnemolite/mnemolite/internal/logging"
	"github.com/mnemolite/mnemolite/internal/metrics"
	"github.com/mnemolite/mnemolite/internal/pipeline"
	"github.com/mnemolite/mnemolite/internal/scanner"
	"github.com/mnemolite/mnemolite/internal/store"
)

// FilePipeline is the per-file indexing surface; *pipeline.Pipeline
// implements it. Instances are not safe for concurrent use, so the
// coordinator builds one per worker.
type FilePipeline interface {
	IndexFile(ctx context.Context, job *pipeline.Job) *pipeline.FileResult
	Close()
}

// PipelineFactory builds one pipeline instance per worker, each with
// its own parser, store session and embedder handle.
type PipelineFactory func() (FilePipeline, error)

// GraphBuilder runs the single-writer graph pass; *graph.Builder
// implements it.
type GraphBuilder interface {
	Build(ctx context.Context, repository string) (*graph.Summary, error)
}

// RepositoryDeleter is the destructive store surface used by
// force_reindex; *store.Store implements it.
type RepositoryDeleter interface {
	DeleteRepository(ctx context.Context, repository string) (store.DeleteResult, error)
}

// RepositoryInvalidator drops a repository's cache entries;
// *cache.Cascade implements it.
type RepositoryInvalidator interface {
	InvalidateRepository(ctx context.Context, repository string)
}

// Options control one repository run.
type Options struct {
	// Workers sets the parallel pool size. Values below 1 take the
	// configured default.
	Workers int

	// IncludeIgnored disables repository ignore files during the scan.
	IncludeIgnored bool

	// ForceReindex deletes the repository's chunks, nodes, edges,
	// metrics and cache entries under the lock before indexing.
	ForceReindex bool

	// Progress receives throttled progress events. Optional.
	Progress ProgressFunc
}

// FileFailure identifies one failed file in a summary.
type FileFailure struct {
	FilePath string `json:"file_path"`
	Kind     string `json:"kind"`
	Message  string `json:"message"`
}

// Summary reports one completed repository run.
type Summary struct {
	Repository string        `json:"repository"`
	Total      int           `json:"total"`
	Indexed    int           `json:"indexed"`
	Cached     int           `json:"cached"`
	Skipped    int           `json:"skipped"`
	Failed     []FileFailure `json:"failed,omitempty"`
	Chunks     int           `json:"chunks"`
	Nodes      int           `json:"nodes"`
	Edges      int           `json:"edges"`
	Duration   time.Duration `json:"duration"`
}

// Dependencies are the injected collaborators for a Coordinator.
type Dependencies struct {
	// Pipelines builds per-worker pipelines (required).
	Pipelines PipelineFactory

	// Graph runs the post-merge graph pass (required).
	Graph GraphBuilder

	// Store handles the force_reindex delete (required).
	Store RepositoryDeleter

	// Caches handles the force_reindex invalidation (required).
	Caches RepositoryInvalidator

	// KV backs the repository lock and status records. Nil runs
	// without cross-process exclusion or shared status.
	KV KV

	// Config is the loaded configuration (required).
	Config *config.Config

	// Metrics receives run observations. Optional.
	Metrics *metrics.Metrics
}

// Coordinator runs repository indexing. One instance serves a process;
// concurrent runs for distinct repositories are safe, runs for the same
// repository are serialized by the lock.
type Coordinator struct {
	scanner   *scanner.Scanner
	pipelines PipelineFactory
	graph     GraphBuilder
	store     RepositoryDeleter
	caches    RepositoryInvalidator
	locker    *Locker
	status    *StatusStore
	metrics   *metrics.Metrics
	cfg       *config.Config
}

// New builds a Coordinator, validating required dependencies.
func New(deps Dependencies) (*Coordinator, error) {
	if deps.Pipelines == nil {
		return nil, fmt.Errorf("pipeline factory is required")
	}
	if deps.Graph == nil {
		return nil, fmt.Errorf("graph builder is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if deps.Caches == nil {
		return nil, fmt.Errorf("cache invalidator is required")
	}
	if deps.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return &Coordinator{
		scanner:   scanner.New(),
		pipelines: deps.Pipelines,
		graph:     deps.Graph,
		store:     deps.Store,
		caches:    deps.Caches,
		locker:    NewLocker(deps.KV, deps.Config.LockTTL()),
		status:    NewStatusStore(deps.KV, deps.Config.LockTTL()),
		metrics:   deps.Metrics,
		cfg:       deps.Config,
	}, nil
}

// StatusStore exposes the status reader shared with the service layer.
func (c *Coordinator) StatusStore() *StatusStore {
	return c.status
}

// Status reads the shared indexing status record for a repository.
func (c *Coordinator) Status(ctx context.Context, repository string) Status {
	return c.status.Get(ctx, repository)
}

// IndexRepository indexes every source file under rootDir. The
// repository lock is held for the whole run; a concurrent run yields
// lock_denied. Per-file failures are collected, never fatal; the run
// fails only on scan errors, store unavailability, or cancellation.
func (c *Coordinator) IndexRepository(ctx context.Context, repository, rootDir string, opts Options) (*Summary, error) {
	start := time.Now()

	lease, err := c.locker.Acquire(ctx, repository)
	if err != nil {
		c.metrics.LockDenied()
		return nil, err
	}
	// Release and terminal status writes must survive cancellation, or a
	// cancelled run leaves the lock held until its TTL.
	defer lease.Release(context.WithoutCancel(ctx))

	if opts.ForceReindex {
		if err := c.deleteRepository(ctx, repository); err != nil {
			return nil, err
		}
	}

	scan, err := c.scanner.Scan(ctx, scanner.Options{
		RootDir:        rootDir,
		IncludeIgnored: opts.IncludeIgnored,
		MaxFiles:       c.cfg.Repo.MaxFiles,
		MaxFileSize:    c.cfg.Repo.MaxFileSize,
	})
	if err != nil {
		return nil, err
	}

	total := len(scan.Files)
	summary := &Summary{Repository: repository, Total: total}

	st := Status{
		Repository: repository,
		State:      StateInProgress,
		TotalFiles: total,
		StartedAt:  start.UTC(),
	}
	c.status.Put(ctx, st)

	workers := c.workerCount(opts.Workers, total)
	logging.Event(ctx, "index.repo.start",
		slog.String("repository", repository),
		slog.Int("files", total),
		slog.Int("workers", workers),
		slog.Bool("force_reindex", opts.ForceReindex))

	if total > 0 {
		runErr := c.runFiles(ctx, repository, scan.Files, workers, opts.Progress, summary, &st)
		if runErr != nil {
			c.finishFailed(ctx, &st, runErr)
			summary.Duration = time.Since(start)
			return summary, runErr
		}
	}

	if err := c.buildGraph(ctx, repository, summary); err != nil {
		c.finishFailed(ctx, &st, err)
		summary.Duration = time.Since(start)
		return summary, err
	}

	now := time.Now().UTC()
	st.State = StateCompleted
	st.IndexedFiles = summary.Indexed + summary.Cached
	st.CompletedAt = &now
	c.status.Put(ctx, st)

	summary.Duration = time.Since(start)
	logging.Event(ctx, "index.repo.end",
		slog.String("repository", repository),
		slog.Int("indexed", summary.Indexed),
		slog.Int("cached", summary.Cached),
		slog.Int("skipped", summary.Skipped),
		slog.Int("failed", len(summary.Failed)),
		slog.Int("chunks", summary.Chunks),
		slog.Int("nodes", summary.Nodes),
		slog.Int("edges", summary.Edges),
		slog.Duration("duration", summary.Duration))
	return summary, nil
}

// workerCount picks the pool size: sequential below the threshold,
// otherwise the requested count bounded below by 1.
func (c *Coordinator) workerCount(requested, total int) int {
	if total < c.cfg.Workers.SequentialThreshold {
		return 1
	}
	if requested < 1 {
		requested = c.cfg.Workers.Default
	}
	if requested < 1 {
		requested = 1
	}
	return requested
}

// runFiles pushes every file through per-worker pipelines and merges
// the results. Cancellation stops new files from starting; in-flight
// files run to completion under their own budgets, so committed
// transactions stay committed.
func (c *Coordinator) runFiles(ctx context.Context, repository string, files []scanner.FileInfo, workers int, onProgress ProgressFunc, summary *Summary, st *Status) error {
	pipes := make([]FilePipeline, 0, workers)
	defer func() {
		for _, p := range pipes {
			p.Close()
		}
	}()
	for i := 0; i < workers; i++ {
		p, err := c.pipelines()
		if err != nil {
			return mnemoerrors.InternalError("failed to build worker pipeline", err)
		}
		pipes = append(pipes, p)
	}

	// In-flight files must not be hard-killed by cancellation: each
	// file keeps the trace values but runs under its own timeout.
	fileCtx := context.WithoutCancel(ctx)

	results := make(chan *pipeline.FileResult)
	if workers == 1 {
		go func() {
			defer close(results)
			for i := range files {
				if ctx.Err() != nil {
					return
				}
				results <- pipes[0].IndexFile(fileCtx, c.job(repository, files[i]))
			}
		}()
	} else {
		jobs := make(chan *pipeline.Job)
		go func() {
			defer close(jobs)
			for i := range files {
				select {
				case jobs <- c.job(repository, files[i]):
				case <-ctx.Done():
					return
				}
			}
		}()

		var g errgroup.Group
		for _, p := range pipes {
			p := p
			g.Go(func() error {
				for job := range jobs {
					results <- p.IndexFile(fileCtx, job)
				}
				return nil
			})
		}
		go func() {
			_ = g.Wait()
			close(results)
		}()
	}

	gate := newThrottle()
	processed := 0
	for res := range results {
		processed++
		c.merge(ctx, res, summary)

		if gate.allow(processed, len(files)) {
			st.IndexedFiles = processed
			c.status.Put(ctx, *st)
			c.report(ctx, onProgress, Progress{
				Current: processed,
				Total:   len(files),
				Message: res.FilePath,
			})
		}
	}

	if err := ctx.Err(); err != nil {
		return mnemoerrors.New(mnemoerrors.ErrCodeTimeout, "indexing cancelled", err).
			WithDetail("reason", "cancelled")
	}
	return nil
}

func (c *Coordinator) job(repository string, f scanner.FileInfo) *pipeline.Job {
	return &pipeline.Job{
		Repository: repository,
		FilePath:   f.Path,
		AbsPath:    f.AbsPath,
	}
}

// merge folds one file result into the run summary.
func (c *Coordinator) merge(ctx context.Context, res *pipeline.FileResult, summary *Summary) {
	c.metrics.ObserveFile(string(res.Status), res.ChunkCount(), res.Duration)

	switch res.Status {
	case pipeline.StatusIndexed:
		summary.Indexed++
		summary.Chunks += res.ChunkCount()
	case pipeline.StatusCached:
		summary.Cached++
	case pipeline.StatusSkipped:
		summary.Skipped++
	case pipeline.StatusFailed:
		summary.Failed = append(summary.Failed, FileFailure{
			FilePath: res.FilePath,
			Kind:     mnemoerrors.KindOf(res.Err),
			Message:  errMessage(res.Err),
		})
		logging.Event(ctx, "index.file.failed",
			slog.String("file", res.FilePath),
			slog.String("kind", mnemoerrors.KindOf(res.Err)))
	}
}

func (c *Coordinator) report(ctx context.Context, onProgress ProgressFunc, p Progress) {
	if onProgress != nil {
		onProgress(p)
	}
	logging.EventDebug(ctx, "index.repo.progress",
		slog.Int("current", p.Current),
		slog.Int("total", p.Total),
		slog.String("message", p.Message))
}

func (c *Coordinator) buildGraph(ctx context.Context, repository string, summary *Summary) error {
	gs, err := c.graph.Build(ctx, repository)
	if err != nil {
		return mnemoerrors.PersistError("graph build failed", err)
	}
	c.metrics.ObserveGraphBuild(gs.Duration)
	summary.Nodes = gs.Nodes
	summary.Edges = gs.Edges
	return nil
}

// deleteRepository is the destructive half of force_reindex: stored
// rows first, then caches, so a cache rebuild cannot resurrect deleted
// chunks.
func (c *Coordinator) deleteRepository(ctx context.Context, repository string) error {
	res, err := c.store.DeleteRepository(ctx, repository)
	if err != nil {
		return mnemoerrors.PersistError("failed to delete repository "+repository, err)
	}
	c.caches.InvalidateRepository(ctx, repository)
	logging.Event(ctx, "index.repo.reset",
		slog.String("repository", repository),
		slog.Int64("chunks", res.Chunks),
		slog.Int64("nodes", res.Nodes),
		slog.Int64("edges", res.Edges))
	return nil
}

func (c *Coordinator) finishFailed(ctx context.Context, st *Status, cause error) {
	ctx = context.WithoutCancel(ctx)
	now := time.Now().UTC()
	st.State = StateFailed
	st.CompletedAt = &now
	st.Error = errMessage(cause)
	c.status.Put(ctx, *st)
	logging.Event(ctx, "index.repo.failed",
		slog.String("repository", st.Repository),
		slog.String("error", st.Error))
}

func errMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
