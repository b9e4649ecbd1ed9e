// Package service implements the invocation surface shared by the HTTP,
// MCP and CLI adapters: repository and file indexing, hybrid search,
// indexing status, and cache and repository introspection. Adapters
// stay thin: parse input, call one method here, render the result.
package service

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mnemolite/mnemolite/internal/cache"
	"github.com/mnemolite/mnemolite/internal/coordinator"
	mnemoerrors "github.com/mnemolite/mnemolite/internal/errors"
	"github.com/mnemolite/mnemolite/internal/pipeline"
	"github.com/mnemolite/mnemolite/internal/search"
	"github.com/mnemolite/mnemolite/internal/store"
	"github.com/mnemolite/mnemolite/internal/validation"
)

// RepositoryIndexer runs whole-repository indexing and serves the
// shared status record; *coordinator.Coordinator implements it.
type RepositoryIndexer interface {
	IndexRepository(ctx context.Context, repository, rootDir string, opts coordinator.Options) (*coordinator.Summary, error)
	Status(ctx context.Context, repository string) coordinator.Status
}

// Searcher answers hybrid queries; *search.Engine implements it.
type Searcher interface {
	Search(ctx context.Context, req search.Request) (*search.Response, error)
}

// CacheControl is the surface behind clear_cache and cache_stats;
// *cache.Cascade implements it.
type CacheControl interface {
	Invalidate(ctx context.Context, filePath string)
	InvalidateRepository(ctx context.Context, repository string)
	Clear(ctx context.Context)
	Stats(ctx context.Context) cache.CascadeStats
}

// StatsReader reads stored repository aggregates; *store.Store
// implements it.
type StatsReader interface {
	RepositoryStats(ctx context.Context, repository string) (*store.RepoStats, error)
}

// Dependencies are the collaborators behind the invocation surface.
type Dependencies struct {
	Indexer  RepositoryIndexer
	Searcher Searcher
	Caches   CacheControl
	Stats    StatsReader

	// Pipelines builds the pipeline used for single-file operations.
	Pipelines coordinator.PipelineFactory
}

// Service is the invocation surface. Safe for concurrent use;
// single-file indexing calls are serialized internally because a
// pipeline instance is not.
type Service struct {
	indexer   RepositoryIndexer
	searcher  Searcher
	caches    CacheControl
	stats     StatsReader
	pipelines coordinator.PipelineFactory

	mu   sync.Mutex
	pipe coordinator.FilePipeline
}

// New builds a Service, validating required dependencies.
func New(deps Dependencies) (*Service, error) {
	if deps.Indexer == nil {
		return nil, fmt.Errorf("indexer is required")
	}
	if deps.Searcher == nil {
		return nil, fmt.Errorf("searcher is required")
	}
	if deps.Caches == nil {
		return nil, fmt.Errorf("cache control is required")
	}
	if deps.Stats == nil {
		return nil, fmt.Errorf("stats reader is required")
	}
	if deps.Pipelines == nil {
		return nil, fmt.Errorf("pipeline factory is required")
	}
	return &Service{
		indexer:   deps.Indexer,
		searcher:  deps.Searcher,
		caches:    deps.Caches,
		stats:     deps.Stats,
		pipelines: deps.Pipelines,
	}, nil
}

// Close releases the single-file pipeline if one was built.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pipe != nil {
		s.pipe.Close()
		s.pipe = nil
	}
}

// IndexRepositoryOptions mirrors the adapter-facing option set for a
// repository run. Workers zero means "use the configured default";
// adapters normalize explicit sub-one requests to 1 before calling.
type IndexRepositoryOptions struct {
	Workers        int
	IncludeIgnored bool
	ForceReindex   bool

	// Progress receives throttled run progress. Optional.
	Progress coordinator.ProgressFunc
}

// IndexRepository indexes every source file under rootPath. An empty
// rootPath scans the repository identifier itself; an empty repository
// is derived from rootPath. Both end up as the same absolute path in
// the common case.
func (s *Service) IndexRepository(ctx context.Context, repository, rootPath string, opts IndexRepositoryOptions) (*coordinator.Summary, error) {
	repository, rootPath, err := resolveRepository(repository, rootPath)
	if err != nil {
		return nil, err
	}
	if err := validation.Workers(opts.Workers); err != nil {
		return nil, err
	}
	return s.indexer.IndexRepository(ctx, repository, rootPath, coordinator.Options{
		Workers:        opts.Workers,
		IncludeIgnored: opts.IncludeIgnored,
		ForceReindex:   opts.ForceReindex,
		Progress:       opts.Progress,
	})
}

// GetIndexingStatus reads the shared status record for a repository.
func (s *Service) GetIndexingStatus(ctx context.Context, repository string) (coordinator.Status, error) {
	if err := validation.Repository(repository); err != nil {
		return coordinator.Status{}, err
	}
	return s.indexer.Status(ctx, repository), nil
}

// FileIndexResult reports one single-file indexing call.
type FileIndexResult struct {
	Repository string        `json:"repository"`
	FilePath   string        `json:"file_path"`
	Status     string        `json:"status"`
	Language   string        `json:"language,omitempty"`
	Chunks     int           `json:"chunks"`
	Reason     string        `json:"reason,omitempty"`
	Warnings   []string      `json:"warnings,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// IndexFile indexes one file. Content may be nil, in which case the
// pipeline reads the file from disk. An unchanged file short-circuits
// to the cached result.
func (s *Service) IndexFile(ctx context.Context, repository, filePath string, content []byte) (*FileIndexResult, error) {
	job, err := s.fileJob(repository, filePath, content)
	if err != nil {
		return nil, err
	}
	return s.runFileJob(ctx, job)
}

// ReindexFile indexes one file after dropping every cached version of
// it, so the run cannot short-circuit. Used by the watcher and by
// explicit re-index requests.
func (s *Service) ReindexFile(ctx context.Context, repository, filePath string, content []byte) (*FileIndexResult, error) {
	job, err := s.fileJob(repository, filePath, content)
	if err != nil {
		return nil, err
	}
	s.caches.Invalidate(ctx, job.AbsPath)
	return s.runFileJob(ctx, job)
}

// fileJob validates and resolves one single-file request into a
// pipeline job with both repository-relative and absolute paths set.
func (s *Service) fileJob(repository, filePath string, content []byte) (*pipeline.Job, error) {
	if err := validation.Repository(repository); err != nil {
		return nil, err
	}
	if err := validation.FilePath(filePath); err != nil {
		return nil, err
	}

	abs := filePath
	rel := filepath.ToSlash(filePath)
	if filepath.IsAbs(filePath) {
		if r, err := filepath.Rel(repository, filePath); err == nil && r != ".." && !strings.HasPrefix(r, "../") {
			rel = filepath.ToSlash(r)
		}
	} else {
		abs = filepath.Join(repository, filePath)
	}
	return &pipeline.Job{
		Repository: repository,
		FilePath:   rel,
		AbsPath:    abs,
		Content:    content,
	}, nil
}

// runFileJob pushes one job through the lazily-built shared pipeline.
// Failed files surface as errors; skipped and cached files are valid
// outcomes and return a result.
func (s *Service) runFileJob(ctx context.Context, job *pipeline.Job) (*FileIndexResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pipe == nil {
		p, err := s.pipelines()
		if err != nil {
			return nil, mnemoerrors.InternalError("failed to build pipeline", err)
		}
		s.pipe = p
	}

	res := s.pipe.IndexFile(ctx, job)
	if res.Status == pipeline.StatusFailed {
		if res.Err != nil {
			return nil, res.Err
		}
		return nil, mnemoerrors.InternalError("file indexing failed", nil)
	}

	out := &FileIndexResult{
		Repository: job.Repository,
		FilePath:   res.FilePath,
		Status:     string(res.Status),
		Language:   res.Language,
		Chunks:     res.ChunkCount(),
		Duration:   res.Duration,
	}
	if res.Status == pipeline.StatusSkipped && res.Err != nil {
		out.Reason = res.Err.Error()
	}
	for _, w := range res.Warnings {
		out.Warnings = append(out.Warnings, w.Error())
	}
	return out, nil
}

// Search validates and runs one hybrid query.
func (s *Service) Search(ctx context.Context, req search.Request) (*search.Response, error) {
	if err := validation.Query(req.Query); err != nil {
		return nil, err
	}
	if err := validation.Pagination(req.Limit, req.Offset); err != nil {
		return nil, err
	}
	return s.searcher.Search(ctx, req)
}

// Cache scope kinds accepted by ClearCache.
const (
	ScopeAll        = "all"
	ScopeRepository = "repository"
	ScopeFile       = "file"
)

// CacheScope selects what ClearCache drops.
type CacheScope struct {
	Kind   string
	Target string
}

func (sc CacheScope) String() string {
	if sc.Kind == ScopeAll {
		return ScopeAll
	}
	return sc.Kind + ":" + sc.Target
}

// ParseCacheScope parses "all", "repository:<name>" or "file:<path>".
// An empty scope means all.
func ParseCacheScope(raw string) (CacheScope, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == ScopeAll {
		return CacheScope{Kind: ScopeAll}, nil
	}
	if kind, target, ok := strings.Cut(raw, ":"); ok && target != "" {
		switch kind {
		case ScopeRepository, ScopeFile:
			return CacheScope{Kind: kind, Target: target}, nil
		}
	}
	return CacheScope{}, mnemoerrors.ValidationError("unknown cache scope: "+raw, nil).
		WithSuggestion(`use "all", "repository:<name>" or "file:<path>"`)
}

// Acknowledgement confirms a ClearCache call.
type Acknowledgement struct {
	Scope   string `json:"scope"`
	Cleared bool   `json:"cleared"`
}

// ClearCache drops cached entries for the given scope. Status and lock
// keys are never touched.
func (s *Service) ClearCache(ctx context.Context, scope string) (*Acknowledgement, error) {
	sc, err := ParseCacheScope(scope)
	if err != nil {
		return nil, err
	}
	switch sc.Kind {
	case ScopeAll:
		s.caches.Clear(ctx)
	case ScopeRepository:
		s.caches.InvalidateRepository(ctx, sc.Target)
	case ScopeFile:
		s.caches.Invalidate(ctx, sc.Target)
	}
	return &Acknowledgement{Scope: sc.String(), Cleared: true}, nil
}

// CacheStats reports the merged cache layer counters.
func (s *Service) CacheStats(ctx context.Context) cache.CascadeStats {
	return s.caches.Stats(ctx)
}

// RepositoryStats reports what is stored for one repository.
func (s *Service) RepositoryStats(ctx context.Context, repository string) (*store.RepoStats, error) {
	if err := validation.Repository(repository); err != nil {
		return nil, err
	}
	stats, err := s.stats.RepositoryStats(ctx, repository)
	if err != nil {
		return nil, mnemoerrors.Wrap(mnemoerrors.ErrCodeStoreUnavailable, err)
	}
	return stats, nil
}

// resolveRepository fills whichever of the pair is missing and
// validates the result. The repository identifier is the absolute root
// path of the tree.
func resolveRepository(repository, rootPath string) (string, string, error) {
	if rootPath == "" {
		rootPath = repository
	}
	if repository == "" && rootPath != "" {
		abs, err := filepath.Abs(rootPath)
		if err != nil {
			return "", "", mnemoerrors.ValidationError("cannot resolve root path: "+rootPath, err)
		}
		repository = abs
		rootPath = abs
	}
	if err := validation.Repository(repository); err != nil {
		return "", "", err
	}
	return repository, rootPath, nil
}
