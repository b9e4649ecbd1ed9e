package mcp

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mnemolite/mnemolite/internal/cache"
	"github.com/mnemolite/mnemolite/internal/coordinator"
	"github.com/mnemolite/mnemolite/internal/search"
	"github.com/mnemolite/mnemolite/internal/service"
	"github.com/mnemolite/mnemolite/internal/store"
	"github.com/mnemolite/mnemolite/pkg/version"
)

// Service is the slice of the invocation surface the tools call;
// *service.Service implements it.
type Service interface {
	IndexRepository(ctx context.Context, repository, rootPath string, opts service.IndexRepositoryOptions) (*coordinator.Summary, error)
	GetIndexingStatus(ctx context.Context, repository string) (coordinator.Status, error)
	Search(ctx context.Context, req search.Request) (*search.Response, error)
	ClearCache(ctx context.Context, scope string) (*service.Acknowledgement, error)
	CacheStats(ctx context.Context) cache.CascadeStats
	RepositoryStats(ctx context.Context, repository string) (*store.RepoStats, error)
}

// Server bridges AI clients with the indexing and search service.
type Server struct {
	mcp    *mcp.Server
	svc    Service
	logger *slog.Logger
}

// ToolInfo describes a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

// NewServer creates the MCP server and registers every tool.
func NewServer(svc Service) (*Server, error) {
	if svc == nil {
		return nil, errors.New("service is required")
	}

	s := &Server{
		svc:    svc,
		logger: slog.Default(),
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "MnemoLite",
			Version: version.Version,
		},
		nil,
	)

	s.registerTools()

	return s, nil
}

// MCPServer returns the underlying SDK server.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Info returns the server name and version.
func (s *Server) Info() (name, ver string) {
	return "MnemoLite", version.Version
}

// ListTools returns the registered tool set.
func (s *Server) ListTools() []ToolInfo {
	return []ToolInfo{
		{
			Name:        "index_repository",
			Description: descIndexRepository,
		},
		{
			Name:        "search_code",
			Description: descSearchCode,
		},
		{
			Name:        "indexing_status",
			Description: descIndexingStatus,
		},
		{
			Name:        "repository_stats",
			Description: descRepositoryStats,
		},
		{
			Name:        "cache_stats",
			Description: descCacheStats,
		},
		{
			Name:        "clear_cache",
			Description: descClearCache,
		},
	}
}

const (
	descIndexRepository = "Index every source file under a repository root: parse, chunk, embed, persist, then build the code graph. Unchanged files are served from cache, so re-indexing is cheap. Long runs keep going after you get the result of indexing_status; call that tool to follow progress."
	descSearchCode      = "Search indexed code and docs by meaning and by keyword at once. Finds functions, classes, and sections by what they do, not just what they are called. Supports language, kind, path and type filters."
	descIndexingStatus  = "Check whether a repository is indexed, mid-run, or failed, with file-level progress. Use before searching a repository you just asked to index."
	descRepositoryStats = "Report what is stored for a repository: chunk count, graph size, languages, last index time."
	descCacheStats      = "Report cache layer counters: in-process and shared hits, misses, evictions, and the combined hit rate."
	descClearCache      = "Drop cached chunks and search results. Scope can be all, repository:<path>, or file:<path>. Never interrupts a running indexing job."
)

// registerTools registers all tools with the SDK server.
func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "index_repository",
		Description: descIndexRepository,
	}, s.indexRepositoryHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search_code",
		Description: descSearchCode,
	}, s.searchCodeHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "indexing_status",
		Description: descIndexingStatus,
	}, s.indexingStatusHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "repository_stats",
		Description: descRepositoryStats,
	}, s.repositoryStatsHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "cache_stats",
		Description: descCacheStats,
	}, s.cacheStatsHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "clear_cache",
		Description: descClearCache,
	}, s.clearCacheHandler)

	s.logger.Info("mcp tools registered", slog.Int("count", 6))
}

func (s *Server) indexRepositoryHandler(ctx context.Context, _ *mcp.CallToolRequest, input IndexRepositoryInput) (
	*mcp.CallToolResult,
	IndexRepositoryOutput,
	error,
) {
	if input.Repository == "" {
		return nil, IndexRepositoryOutput{}, NewInvalidParamsError("repository parameter is required")
	}

	summary, err := s.svc.IndexRepository(ctx, input.Repository, "", service.IndexRepositoryOptions{
		Workers:        normalizeWorkers(input.Workers),
		IncludeIgnored: input.IncludeIgnored,
		ForceReindex:   input.ForceReindex,
	})
	if err != nil {
		return nil, IndexRepositoryOutput{}, MapError(err)
	}
	return nil, toIndexRepositoryOutput(summary), nil
}

func (s *Server) searchCodeHandler(ctx context.Context, _ *mcp.CallToolRequest, input SearchCodeInput) (
	*mcp.CallToolResult,
	SearchOutput,
	error,
) {
	if input.Query == "" {
		return nil, SearchOutput{}, NewInvalidParamsError("query parameter is required")
	}

	req := search.Request{
		Query: input.Query,
		Filters: store.SearchFilters{
			Language:   input.Language,
			Kind:       input.Kind,
			Repository: input.Repository,
			FilePath:   input.PathGlob,
			ReturnType: input.ReturnType,
			ParamType:  input.ParamType,
		},
		Limit:  clampLimit(input.Limit, 10, 1, 50),
		Offset: input.Offset,
		Flags:  search.Flags{Cache: !input.NoCache},
	}

	resp, err := s.svc.Search(ctx, req)
	if err != nil {
		return nil, SearchOutput{}, MapError(err)
	}
	return nil, toSearchOutput(resp), nil
}

func (s *Server) indexingStatusHandler(ctx context.Context, _ *mcp.CallToolRequest, input IndexingStatusInput) (
	*mcp.CallToolResult,
	IndexingStatusOutput,
	error,
) {
	if input.Repository == "" {
		return nil, IndexingStatusOutput{}, NewInvalidParamsError("repository parameter is required")
	}

	status, err := s.svc.GetIndexingStatus(ctx, input.Repository)
	if err != nil {
		return nil, IndexingStatusOutput{}, MapError(err)
	}
	return nil, toIndexingStatusOutput(status), nil
}

func (s *Server) repositoryStatsHandler(ctx context.Context, _ *mcp.CallToolRequest, input RepositoryStatsInput) (
	*mcp.CallToolResult,
	RepositoryStatsOutput,
	error,
) {
	if input.Repository == "" {
		return nil, RepositoryStatsOutput{}, NewInvalidParamsError("repository parameter is required")
	}

	stats, err := s.svc.RepositoryStats(ctx, input.Repository)
	if err != nil {
		return nil, RepositoryStatsOutput{}, MapError(err)
	}
	return nil, toRepositoryStatsOutput(stats), nil
}

func (s *Server) cacheStatsHandler(ctx context.Context, _ *mcp.CallToolRequest, _ CacheStatsInput) (
	*mcp.CallToolResult,
	CacheStatsOutput,
	error,
) {
	return nil, toCacheStatsOutput(s.svc.CacheStats(ctx)), nil
}

func (s *Server) clearCacheHandler(ctx context.Context, _ *mcp.CallToolRequest, input ClearCacheInput) (
	*mcp.CallToolResult,
	ClearCacheOutput,
	error,
) {
	ack, err := s.svc.ClearCache(ctx, input.Scope)
	if err != nil {
		return nil, ClearCacheOutput{}, MapError(err)
	}
	return nil, ClearCacheOutput{Scope: ack.Scope, Cleared: ack.Cleared}, nil
}

// Serve runs the server over stdio until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("mcp server starting", slog.String("transport", "stdio"))
	err := s.mcp.Run(ctx, &mcp.StdioTransport{})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("mcp server stopped", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("mcp server stopped")
	return nil
}

func toIndexRepositoryOutput(sum *coordinator.Summary) IndexRepositoryOutput {
	out := IndexRepositoryOutput{
		Repository: sum.Repository,
		Total:      sum.Total,
		Indexed:    sum.Indexed,
		Cached:     sum.Cached,
		Skipped:    sum.Skipped,
		Chunks:     sum.Chunks,
		Nodes:      sum.Nodes,
		Edges:      sum.Edges,
		DurationMS: sum.Duration.Milliseconds(),
	}
	for _, f := range sum.Failed {
		out.Failed = append(out.Failed, FileFailureOutput{
			FilePath: f.FilePath,
			Kind:     f.Kind,
			Message:  f.Message,
		})
	}
	return out
}

func toSearchOutput(resp *search.Response) SearchOutput {
	out := SearchOutput{
		Results:    make([]SearchResultOutput, 0, len(resp.Results)),
		Total:      resp.Meta.Total,
		HasNext:    resp.Meta.HasNext,
		NextOffset: resp.Meta.NextOffset,
		CacheHit:   resp.Meta.CacheHit,
		Degraded:   resp.Meta.Degraded,
	}
	for _, r := range resp.Results {
		out.Results = append(out.Results, SearchResultOutput{
			FilePath:      r.FilePath,
			Language:      r.Language,
			Kind:          r.Kind,
			Name:          r.Name,
			QualifiedName: r.QualifiedName,
			StartLine:     r.StartLine,
			EndLine:       r.EndLine,
			Snippet:       r.SourceCode,
			Score:         r.Score,
			MatchedBy:     matchedBy(r),
		})
	}
	return out
}

func matchedBy(r search.Result) string {
	switch {
	case r.LexicalRank > 0 && r.VectorRank > 0:
		return "both"
	case r.LexicalRank > 0:
		return "lexical"
	case r.VectorRank > 0:
		return "vector"
	default:
		return ""
	}
}

func toIndexingStatusOutput(st coordinator.Status) IndexingStatusOutput {
	out := IndexingStatusOutput{
		Repository:   st.Repository,
		State:        string(st.State),
		TotalFiles:   st.TotalFiles,
		IndexedFiles: st.IndexedFiles,
		Error:        st.Error,
	}
	if !st.StartedAt.IsZero() {
		out.StartedAt = st.StartedAt.Format(time.RFC3339)
	}
	if st.CompletedAt != nil {
		out.CompletedAt = st.CompletedAt.Format(time.RFC3339)
	}
	return out
}

func toRepositoryStatsOutput(stats *store.RepoStats) RepositoryStatsOutput {
	out := RepositoryStatsOutput{
		Repository:  stats.Repository,
		TotalChunks: stats.TotalChunks,
		Nodes:       stats.Nodes,
		Edges:       stats.Edges,
		Languages:   stats.Languages,
	}
	if stats.LastIndexedAt != nil {
		out.LastIndexedAt = stats.LastIndexedAt.Format(time.RFC3339)
	}
	return out
}

func toCacheStatsOutput(stats cache.CascadeStats) CacheStatsOutput {
	out := CacheStatsOutput{
		L1: CacheLayerOutput{
			Type:      stats.L1.Type,
			Entries:   int64(stats.L1.Entries),
			Hits:      stats.L1.Hits,
			Misses:    stats.L1.Misses,
			HitRate:   stats.L1.HitRate,
			Evictions: stats.L1.Evictions,
			Connected: true,
		},
		CombinedHitRate: stats.CombinedHitRate,
	}
	if stats.L2 != nil {
		out.L2 = &CacheLayerOutput{
			Type:      stats.L2.Type,
			Entries:   stats.L2.Entries,
			Hits:      stats.L2.Hits,
			Misses:    stats.L2.Misses,
			HitRate:   stats.L2.HitRate,
			Errors:    stats.L2.Errors,
			Connected: stats.L2.Connected,
		}
	}
	return out
}

// normalizeWorkers maps an absent worker count to the configured
// default and clamps explicit requests below one to one.
func normalizeWorkers(requested *int) int {
	if requested == nil {
		return 0
	}
	if *requested < 1 {
		return 1
	}
	return *requested
}

// clampLimit bounds a requested result count, substituting def when
// the caller left it unset.
func clampLimit(requested, def, lo, hi int) int {
	if requested <= 0 {
		return def
	}
	if requested < lo {
		return lo
	}
	if requested > hi {
		return hi
	}
	return requested
}
