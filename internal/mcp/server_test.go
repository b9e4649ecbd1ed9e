package mcp

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemolite/mnemolite/internal/cache"
	"github.com/mnemolite/mnemolite/internal/coordinator"
	mnemoerrors "github.com/mnemolite/mnemolite/internal/errors"
	"github.com/mnemolite/mnemolite/internal/search"
	"github.com/mnemolite/mnemolite/internal/service"
	"github.com/mnemolite/mnemolite/internal/store"
)

// MockService implements Service for testing.
type MockService struct {
	IndexRepositoryFn   func(ctx context.Context, repository, rootPath string, opts service.IndexRepositoryOptions) (*coordinator.Summary, error)
	GetIndexingStatusFn func(ctx context.Context, repository string) (coordinator.Status, error)
	SearchFn            func(ctx context.Context, req search.Request) (*search.Response, error)
	ClearCacheFn        func(ctx context.Context, scope string) (*service.Acknowledgement, error)
	CacheStatsFn        func(ctx context.Context) cache.CascadeStats
	RepositoryStatsFn   func(ctx context.Context, repository string) (*store.RepoStats, error)
}

func (m *MockService) IndexRepository(ctx context.Context, repository, rootPath string, opts service.IndexRepositoryOptions) (*coordinator.Summary, error) {
	if m.IndexRepositoryFn != nil {
		return m.IndexRepositoryFn(ctx, repository, rootPath, opts)
	}
	return &coordinator.Summary{Repository: repository}, nil
}

func (m *MockService) GetIndexingStatus(ctx context.Context, repository string) (coordinator.Status, error) {
	if m.GetIndexingStatusFn != nil {
		return m.GetIndexingStatusFn(ctx, repository)
	}
	return coordinator.Status{Repository: repository, State: coordinator.StateNotIndexed}, nil
}

func (m *MockService) Search(ctx context.Context, req search.Request) (*search.Response, error) {
	if m.SearchFn != nil {
		return m.SearchFn(ctx, req)
	}
	return &search.Response{}, nil
}

func (m *MockService) ClearCache(ctx context.Context, scope string) (*service.Acknowledgement, error) {
	if m.ClearCacheFn != nil {
		return m.ClearCacheFn(ctx, scope)
	}
	return &service.Acknowledgement{Scope: scope, Cleared: true}, nil
}

func (m *MockService) CacheStats(ctx context.Context) cache.CascadeStats {
	if m.CacheStatsFn != nil {
		return m.CacheStatsFn(ctx)
	}
	return cache.CascadeStats{}
}

func (m *MockService) RepositoryStats(ctx context.Context, repository string) (*store.RepoStats, error) {
	if m.RepositoryStatsFn != nil {
		return m.RepositoryStatsFn(ctx, repository)
	}
	return &store.RepoStats{Repository: repository}, nil
}

// Ensure MockService implements Service
var _ Service = (*MockService)(nil)

// newTestServer creates a server with a mock service for testing.
func newTestServer(t *testing.T) (*Server, *MockService) {
	t.Helper()

	svc := &MockService{}
	srv, err := NewServer(svc)
	require.NoError(t, err)
	require.NotNil(t, srv)

	return srv, svc
}

func intPtr(n int) *int { return &n }

func requireMCPError(t *testing.T, err error, code int) *MCPError {
	t.Helper()
	require.Error(t, err)
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, code, mcpErr.Code)
	return mcpErr
}

func TestServer_New_Success(t *testing.T) {
	// Given: a valid service
	svc := &MockService{}

	// When: creating the server
	srv, err := NewServer(svc)

	// Then: no error, SDK server is wired
	require.NoError(t, err)
	require.NotNil(t, srv)
	assert.NotNil(t, srv.MCPServer())
}

func TestServer_New_NilService_ReturnsError(t *testing.T) {
	// When: creating the server without a service
	srv, err := NewServer(nil)

	// Then: error returned
	require.Error(t, err)
	assert.Nil(t, srv)
	assert.Contains(t, err.Error(), "service")
}

func TestServer_Info_ReturnsCorrectValues(t *testing.T) {
	srv, _ := newTestServer(t)

	name, ver := srv.Info()

	assert.Equal(t, "MnemoLite", name)
	assert.NotEmpty(t, ver)
}

func TestServer_ListTools_ReturnsAllTools(t *testing.T) {
	// Given: a server
	srv, _ := newTestServer(t)

	// When: listing tools
	tools := srv.ListTools()

	// Then: all six tools registered with descriptions
	require.Len(t, tools, 6)
	names := make(map[string]bool, len(tools))
	for _, tool := range tools {
		assert.NotEmpty(t, tool.Description)
		names[tool.Name] = true
	}
	for _, want := range []string{
		"index_repository", "search_code", "indexing_status",
		"repository_stats", "cache_stats", "clear_cache",
	} {
		assert.True(t, names[want], "tool %s should be registered", want)
	}
}

func TestServer_IndexRepository_MissingRepository(t *testing.T) {
	srv, _ := newTestServer(t)

	_, _, err := srv.indexRepositoryHandler(context.Background(), nil, IndexRepositoryInput{})

	requireMCPError(t, err, ErrCodeInvalidParams)
}

func TestServer_IndexRepository_PassesOptions(t *testing.T) {
	// Given: a service recording the call
	srv, svc := newTestServer(t)
	var gotRepo, gotRoot string
	var gotOpts service.IndexRepositoryOptions
	svc.IndexRepositoryFn = func(_ context.Context, repository, rootPath string, opts service.IndexRepositoryOptions) (*coordinator.Summary, error) {
		gotRepo, gotRoot, gotOpts = repository, rootPath, opts
		return &coordinator.Summary{Repository: repository, Total: 7}, nil
	}

	// When: calling with explicit options
	_, out, err := srv.indexRepositoryHandler(context.Background(), nil, IndexRepositoryInput{
		Repository:     "/home/dev/proj",
		Workers:        intPtr(4),
		IncludeIgnored: true,
		ForceReindex:   true,
	})

	// Then: options reach the service unchanged
	require.NoError(t, err)
	assert.Equal(t, "/home/dev/proj", gotRepo)
	assert.Empty(t, gotRoot)
	assert.Equal(t, 4, gotOpts.Workers)
	assert.True(t, gotOpts.IncludeIgnored)
	assert.True(t, gotOpts.ForceReindex)
	assert.Equal(t, 7, out.Total)
}

func TestServer_IndexRepository_AbsentWorkersUsesDefault(t *testing.T) {
	srv, svc := newTestServer(t)
	var gotOpts service.IndexRepositoryOptions
	svc.IndexRepositoryFn = func(_ context.Context, repository, _ string, opts service.IndexRepositoryOptions) (*coordinator.Summary, error) {
		gotOpts = opts
		return &coordinator.Summary{Repository: repository}, nil
	}

	_, _, err := srv.indexRepositoryHandler(context.Background(), nil, IndexRepositoryInput{
		Repository: "/home/dev/proj",
	})

	require.NoError(t, err)
	assert.Zero(t, gotOpts.Workers, "absent workers should defer to config")
}

func TestServer_IndexRepository_MapsSummary(t *testing.T) {
	// Given: a run with one failure
	srv, svc := newTestServer(t)
	svc.IndexRepositoryFn = func(_ context.Context, repository, _ string, _ service.IndexRepositoryOptions) (*coordinator.Summary, error) {
		return &coordinator.Summary{
			Repository: repository,
			Total:      10,
			Indexed:    7,
			Cached:     1,
			Skipped:    1,
			Failed: []coordinator.FileFailure{
				{FilePath: "broken.py", Kind: "parse_error", Message: "unbalanced braces"},
			},
			Chunks:   42,
			Nodes:    30,
			Edges:    55,
			Duration: 1500 * time.Millisecond,
		}, nil
	}

	// When: indexing
	_, out, err := srv.indexRepositoryHandler(context.Background(), nil, IndexRepositoryInput{
		Repository: "/home/dev/proj",
	})

	// Then: every counter flows through, duration in milliseconds
	require.NoError(t, err)
	assert.Equal(t, "/home/dev/proj", out.Repository)
	assert.Equal(t, 10, out.Total)
	assert.Equal(t, 7, out.Indexed)
	assert.Equal(t, 1, out.Cached)
	assert.Equal(t, 1, out.Skipped)
	assert.Equal(t, 42, out.Chunks)
	assert.Equal(t, 30, out.Nodes)
	assert.Equal(t, 55, out.Edges)
	assert.Equal(t, int64(1500), out.DurationMS)
	require.Len(t, out.Failed, 1)
	assert.Equal(t, "broken.py", out.Failed[0].FilePath)
	assert.Equal(t, "parse_error", out.Failed[0].Kind)
	assert.Equal(t, "unbalanced braces", out.Failed[0].Message)
}

func TestServer_IndexRepository_LockHeld(t *testing.T) {
	// Given: another run holds the repository lock
	srv, svc := newTestServer(t)
	svc.IndexRepositoryFn = func(_ context.Context, repository, _ string, _ service.IndexRepositoryOptions) (*coordinator.Summary, error) {
		return nil, mnemoerrors.LockDeniedError(repository)
	}

	// When: indexing
	_, _, err := srv.indexRepositoryHandler(context.Background(), nil, IndexRepositoryInput{
		Repository: "/home/dev/proj",
	})

	// Then: lock-held code, message relays the suggestion
	mcpErr := requireMCPError(t, err, ErrCodeLockHeld)
	assert.Contains(t, mcpErr.Message, "already in progress")
	assert.Contains(t, mcpErr.Message, "wait for the running operation")
}

func TestServer_SearchCode_MissingQuery(t *testing.T) {
	srv, _ := newTestServer(t)

	_, _, err := srv.searchCodeHandler(context.Background(), nil, SearchCodeInput{})

	requireMCPError(t, err, ErrCodeInvalidParams)
}

func TestServer_SearchCode_BuildsRequest(t *testing.T) {
	// Given: a service recording the request
	srv, svc := newTestServer(t)
	var gotReq search.Request
	svc.SearchFn = func(_ context.Context, req search.Request) (*search.Response, error) {
		gotReq = req
		return &search.Response{}, nil
	}

	// When: searching with every filter set
	_, _, err := srv.searchCodeHandler(context.Background(), nil, SearchCodeInput{
		Query:      "parse config file",
		Repository: "/home/dev/proj",
		Language:   "go",
		Kind:       "function",
		PathGlob:   "internal/**",
		ReturnType: "error",
		ParamType:  "string",
		Offset:     20,
		NoCache:    true,
	})

	// Then: the request mirrors the input
	require.NoError(t, err)
	assert.Equal(t, "parse config file", gotReq.Query)
	assert.Equal(t, "/home/dev/proj", gotReq.Filters.Repository)
	assert.Equal(t, "go", gotReq.Filters.Language)
	assert.Equal(t, "function", gotReq.Filters.Kind)
	assert.Equal(t, "internal/**", gotReq.Filters.FilePath)
	assert.Equal(t, "error", gotReq.Filters.ReturnType)
	assert.Equal(t, "string", gotReq.Filters.ParamType)
	assert.Equal(t, 10, gotReq.Limit, "unset limit should fall back to the default")
	assert.Equal(t, 20, gotReq.Offset)
	assert.False(t, gotReq.Flags.Cache, "no_cache should disable the result cache")
}

func TestServer_SearchCode_ClampsLimit(t *testing.T) {
	srv, svc := newTestServer(t)
	var gotLimit int
	svc.SearchFn = func(_ context.Context, req search.Request) (*search.Response, error) {
		gotLimit = req.Limit
		return &search.Response{}, nil
	}

	cases := []struct {
		requested int
		want      int
	}{
		{0, 10},
		{-5, 10},
		{1, 1},
		{25, 25},
		{500, 50},
	}
	for _, tc := range cases {
		_, _, err := srv.searchCodeHandler(context.Background(), nil, SearchCodeInput{
			Query: "q",
			Limit: tc.requested,
		})
		require.NoError(t, err)
		assert.Equal(t, tc.want, gotLimit, "requested=%d", tc.requested)
	}
}

func TestServer_SearchCode_MapsResults(t *testing.T) {
	// Given: fused results matched by different layers
	srv, svc := newTestServer(t)
	svc.SearchFn = func(_ context.Context, _ search.Request) (*search.Response, error) {
		return &search.Response{
			Results: []search.Result{
				{
					FilePath:      "internal/config/load.go",
					Language:      "go",
					Kind:          "function",
					Name:          "Load",
					QualifiedName: "config.Load",
					StartLine:     10,
					EndLine:       42,
					SourceCode:    "func Load() {}",
					Score:         0.031,
					LexicalRank:   1,
					VectorRank:    2,
				},
				{Name: "lexOnly", LexicalRank: 3},
				{Name: "vecOnly", VectorRank: 1},
			},
			Meta: search.Meta{
				Total:      3,
				HasNext:    true,
				NextOffset: 3,
				CacheHit:   true,
				Degraded:   true,
			},
		}, nil
	}

	// When: searching
	_, out, err := srv.searchCodeHandler(context.Background(), nil, SearchCodeInput{Query: "load config"})

	// Then: results and meta flow through, matched_by derived from ranks
	require.NoError(t, err)
	require.Len(t, out.Results, 3)
	first := out.Results[0]
	assert.Equal(t, "internal/config/load.go", first.FilePath)
	assert.Equal(t, "config.Load", first.QualifiedName)
	assert.Equal(t, 10, first.StartLine)
	assert.Equal(t, "func Load() {}", first.Snippet)
	assert.Equal(t, "both", first.MatchedBy)
	assert.Equal(t, "lexical", out.Results[1].MatchedBy)
	assert.Equal(t, "vector", out.Results[2].MatchedBy)
	assert.Equal(t, 3, out.Total)
	assert.True(t, out.HasNext)
	assert.Equal(t, 3, out.NextOffset)
	assert.True(t, out.CacheHit)
	assert.True(t, out.Degraded)
}

func TestServer_IndexingStatus_MissingRepository(t *testing.T) {
	srv, _ := newTestServer(t)

	_, _, err := srv.indexingStatusHandler(context.Background(), nil, IndexingStatusInput{})

	requireMCPError(t, err, ErrCodeInvalidParams)
}

func TestServer_IndexingStatus_FormatsTimestamps(t *testing.T) {
	// Given: a completed run with both timestamps
	srv, svc := newTestServer(t)
	started := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	completed := started.Add(90 * time.Second)
	svc.GetIndexingStatusFn = func(_ context.Context, repository string) (coordinator.Status, error) {
		return coordinator.Status{
			Repository:   repository,
			State:        coordinator.StateCompleted,
			TotalFiles:   120,
			IndexedFiles: 120,
			StartedAt:    started,
			CompletedAt:  &completed,
		}, nil
	}

	// When: checking status
	_, out, err := srv.indexingStatusHandler(context.Background(), nil, IndexingStatusInput{
		Repository: "/home/dev/proj",
	})

	// Then: RFC3339 timestamps, counters intact
	require.NoError(t, err)
	assert.Equal(t, "completed", out.State)
	assert.Equal(t, 120, out.TotalFiles)
	assert.Equal(t, 120, out.IndexedFiles)
	assert.Equal(t, "2025-06-01T12:00:00Z", out.StartedAt)
	assert.Equal(t, "2025-06-01T12:01:30Z", out.CompletedAt)
}

func TestServer_IndexingStatus_NeverIndexed(t *testing.T) {
	// Given: a repository with no status record
	srv, _ := newTestServer(t)

	// When: checking status
	_, out, err := srv.indexingStatusHandler(context.Background(), nil, IndexingStatusInput{
		Repository: "/home/dev/proj",
	})

	// Then: not_indexed with empty timestamps
	require.NoError(t, err)
	assert.Equal(t, "not_indexed", out.State)
	assert.Empty(t, out.StartedAt)
	assert.Empty(t, out.CompletedAt)
}

func TestServer_RepositoryStats_MissingRepository(t *testing.T) {
	srv, _ := newTestServer(t)

	_, _, err := srv.repositoryStatsHandler(context.Background(), nil, RepositoryStatsInput{})

	requireMCPError(t, err, ErrCodeInvalidParams)
}

func TestServer_RepositoryStats_MapsFields(t *testing.T) {
	srv, svc := newTestServer(t)
	indexed := time.Date(2025, 6, 2, 8, 30, 0, 0, time.UTC)
	svc.RepositoryStatsFn = func(_ context.Context, repository string) (*store.RepoStats, error) {
		return &store.RepoStats{
			Repository:    repository,
			TotalChunks:   4200,
			Nodes:         900,
			Edges:         1600,
			Languages:     []string{"go", "python"},
			LastIndexedAt: &indexed,
		}, nil
	}

	_, out, err := srv.repositoryStatsHandler(context.Background(), nil, RepositoryStatsInput{
		Repository: "/home/dev/proj",
	})

	require.NoError(t, err)
	assert.Equal(t, int64(4200), out.TotalChunks)
	assert.Equal(t, int64(900), out.Nodes)
	assert.Equal(t, int64(1600), out.Edges)
	assert.Equal(t, []string{"go", "python"}, out.Languages)
	assert.Equal(t, "2025-06-02T08:30:00Z", out.LastIndexedAt)
}

func TestServer_RepositoryStats_StoreUnavailable(t *testing.T) {
	// Given: the store is down
	srv, svc := newTestServer(t)
	svc.RepositoryStatsFn = func(_ context.Context, _ string) (*store.RepoStats, error) {
		return nil, mnemoerrors.Wrap(mnemoerrors.ErrCodeStoreUnavailable, errors.New("postgres unreachable"))
	}

	// When: fetching stats
	_, _, err := srv.repositoryStatsHandler(context.Background(), nil, RepositoryStatsInput{
		Repository: "/home/dev/proj",
	})

	// Then: store-unavailable code
	requireMCPError(t, err, ErrCodeStoreUnavailable)
}

func TestServer_CacheStats_MapsLayers(t *testing.T) {
	// Given: both cache layers reporting
	srv, svc := newTestServer(t)
	svc.CacheStatsFn = func(_ context.Context) cache.CascadeStats {
		return cache.CascadeStats{
			L1: cache.L1Stats{
				Type:      "lru",
				Entries:   128,
				Hits:      900,
				Misses:    100,
				HitRate:   0.9,
				Evictions: 12,
			},
			L2: &cache.L2Stats{
				Type:      "redis",
				Entries:   4096,
				Hits:      500,
				Misses:    500,
				HitRate:   0.5,
				Errors:    2,
				Connected: true,
			},
			CombinedHitRate: 0.95,
		}
	}

	// When: fetching cache stats
	_, out, err := srv.cacheStatsHandler(context.Background(), nil, CacheStatsInput{})

	// Then: fields mapped per layer
	require.NoError(t, err)
	assert.Equal(t, "lru", out.L1.Type)
	assert.Equal(t, int64(128), out.L1.Entries)
	assert.Equal(t, int64(900), out.L1.Hits)
	assert.Equal(t, int64(12), out.L1.Evictions)
	assert.True(t, out.L1.Connected)
	require.NotNil(t, out.L2)
	assert.Equal(t, "redis", out.L2.Type)
	assert.Equal(t, int64(4096), out.L2.Entries)
	assert.Equal(t, int64(2), out.L2.Errors)
	assert.True(t, out.L2.Connected)
	assert.InDelta(t, 0.95, out.CombinedHitRate, 1e-9)
}

func TestServer_CacheStats_NoSharedLayer(t *testing.T) {
	// Given: only the in-process layer
	srv, svc := newTestServer(t)
	svc.CacheStatsFn = func(_ context.Context) cache.CascadeStats {
		return cache.CascadeStats{L1: cache.L1Stats{Type: "lru"}}
	}

	// When: fetching cache stats
	_, out, err := srv.cacheStatsHandler(context.Background(), nil, CacheStatsInput{})

	// Then: no shared layer in the output
	require.NoError(t, err)
	assert.Nil(t, out.L2)
}

func TestServer_ClearCache_PassesScope(t *testing.T) {
	srv, svc := newTestServer(t)
	var gotScope string
	svc.ClearCacheFn = func(_ context.Context, scope string) (*service.Acknowledgement, error) {
		gotScope = scope
		return &service.Acknowledgement{Scope: scope, Cleared: true}, nil
	}

	_, out, err := srv.clearCacheHandler(context.Background(), nil, ClearCacheInput{
		Scope: "repository:/home/dev/proj",
	})

	require.NoError(t, err)
	assert.Equal(t, "repository:/home/dev/proj", gotScope)
	assert.Equal(t, "repository:/home/dev/proj", out.Scope)
	assert.True(t, out.Cleared)
}

func TestServer_ClearCache_InvalidScope(t *testing.T) {
	// Given: the service rejects the scope
	srv, svc := newTestServer(t)
	svc.ClearCacheFn = func(_ context.Context, scope string) (*service.Acknowledgement, error) {
		return nil, mnemoerrors.ValidationError("invalid cache scope: "+scope, nil)
	}

	// When: clearing with a bad scope
	_, _, err := srv.clearCacheHandler(context.Background(), nil, ClearCacheInput{Scope: "bogus:thing"})

	// Then: invalid params
	requireMCPError(t, err, ErrCodeInvalidParams)
}

func TestServer_ConcurrentSearches_RaceSafe(t *testing.T) {
	// Given: a slow search
	srv, svc := newTestServer(t)
	var mu sync.Mutex
	callCount := 0
	svc.SearchFn = func(_ context.Context, _ search.Request) (*search.Response, error) {
		mu.Lock()
		callCount++
		mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		return &search.Response{}, nil
	}

	// When: 10 concurrent calls
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := srv.searchCodeHandler(context.Background(), nil, SearchCodeInput{Query: "q"})
			assert.NoError(t, err)
		}()
	}

	// Then: all complete
	wg.Wait()
	assert.Equal(t, 10, callCount)
}
