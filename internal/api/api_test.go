package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemolite/mnemolite/internal/cache"
	"github.com/mnemolite/mnemolite/internal/coordinator"
	mnemoerrors "github.com/mnemolite/mnemolite/internal/errors"
	"github.com/mnemolite/mnemolite/internal/metrics"
	"github.com/mnemolite/mnemolite/internal/search"
	"github.com/mnemolite/mnemolite/internal/service"
	"github.com/mnemolite/mnemolite/internal/store"
)

type fakeService struct {
	repo      string
	root      string
	opts      service.IndexRepositoryOptions
	indexErr  error
	summary   *coordinator.Summary
	status    coordinator.Status
	statusErr error

	fileRepo  string
	filePath  string
	content   []byte
	reindexed bool
	fileErr   error

	searchReq search.Request
	searchErr error

	scope    string
	scopeErr error

	statsRepo string
	statsErr  error
}

func (f *fakeService) IndexRepository(_ context.Context, repository, rootPath string, opts service.IndexRepositoryOptions) (*coordinator.Summary, error) {
	f.repo, f.root, f.opts = repository, rootPath, opts
	if f.indexErr != nil {
		return nil, f.indexErr
	}
	if f.summary != nil {
		return f.summary, nil
	}
	return &coordinator.Summary{Repository: repository, Total: 3, Indexed: 3}, nil
}

func (f *fakeService) IndexFile(_ context.Context, repository, filePath string, content []byte) (*service.FileIndexResult, error) {
	f.fileRepo, f.filePath, f.content = repository, filePath, content
	if f.fileErr != nil {
		return nil, f.fileErr
	}
	return &service.FileIndexResult{Repository: repository, FilePath: filePath, Status: "indexed", Chunks: 2}, nil
}

func (f *fakeService) ReindexFile(ctx context.Context, repository, filePath string, content []byte) (*service.FileIndexResult, error) {
	f.reindexed = true
	return f.IndexFile(ctx, repository, filePath, content)
}

func (f *fakeService) GetIndexingStatus(_ context.Context, repository string) (coordinator.Status, error) {
	if f.statusErr != nil {
		return coordinator.Status{}, f.statusErr
	}
	st := f.status
	st.Repository = repository
	return st, nil
}

func (f *fakeService) Search(_ context.Context, req search.Request) (*search.Response, error) {
	f.searchReq = req
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return &search.Response{Results: []search.Result{{FilePath: "pkg/app.py", Name: "handler"}}}, nil
}

func (f *fakeService) ClearCache(_ context.Context, scope string) (*service.Acknowledgement, error) {
	f.scope = scope
	if f.scopeErr != nil {
		return nil, f.scopeErr
	}
	return &service.Acknowledgement{Scope: scope, Cleared: true}, nil
}

func (f *fakeService) CacheStats(_ context.Context) cache.CascadeStats {
	return cache.CascadeStats{CombinedHitRate: 0.5}
}

func (f *fakeService) RepositoryStats(_ context.Context, repository string) (*store.RepoStats, error) {
	f.statsRepo = repository
	if f.statsErr != nil {
		return nil, f.statsErr
	}
	return &store.RepoStats{Repository: repository, TotalChunks: 10}, nil
}

func newTestRouter(t *testing.T, svc Service, opts ...func(*Dependencies)) http.Handler {
	t.Helper()
	deps := Dependencies{Service: svc}
	for _, o := range opts {
		o(&deps)
	}
	h, err := NewRouter(deps)
	require.NoError(t, err)
	return h
}

func do(t *testing.T, h http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestNewRouter_RequiresService(t *testing.T) {
	_, err := NewRouter(Dependencies{})
	assert.Error(t, err)
}

func TestIndexRepositoryRoute(t *testing.T) {
	svc := &fakeService{}
	h := newTestRouter(t, svc)

	workers := 4
	rr := do(t, h, http.MethodPost, "/v1/repositories/"+url.PathEscape("/home/u/repo")+"/index",
		indexRepositoryRequest{Workers: &workers, ForceReindex: true})

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "/home/u/repo", svc.repo)
	assert.Equal(t, 4, svc.opts.Workers)
	assert.True(t, svc.opts.ForceReindex)

	var sum coordinator.Summary
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &sum))
	assert.Equal(t, 3, sum.Indexed)
}

func TestIndexRepositoryRoute_EmptyBodyAllowed(t *testing.T) {
	svc := &fakeService{}
	h := newTestRouter(t, svc)

	rr := do(t, h, http.MethodPost, "/v1/repositories/"+url.PathEscape("/repo")+"/index", nil)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "/repo", svc.repo)
	assert.Zero(t, svc.opts.Workers)
}

func TestWorkersNormalization(t *testing.T) {
	zero, four, neg := 0, 4, -2
	assert.Equal(t, 0, normalizeWorkers(nil))
	assert.Equal(t, 1, normalizeWorkers(&zero))
	assert.Equal(t, 1, normalizeWorkers(&neg))
	assert.Equal(t, 4, normalizeWorkers(&four))
}

func TestIndexRepositoryRoute_LockDenied(t *testing.T) {
	svc := &fakeService{indexErr: mnemoerrors.LockDeniedError("/repo")}
	h := newTestRouter(t, svc)

	rr := do(t, h, http.MethodPost, "/v1/repositories/"+url.PathEscape("/repo")+"/index", nil)

	require.Equal(t, http.StatusConflict, rr.Code)
	var env errorEnvelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	assert.Equal(t, mnemoerrors.ErrCodeLockDenied, env.Error.Code)
	assert.Equal(t, mnemoerrors.KindLockDenied, env.Error.Kind)
	assert.NotEmpty(t, env.Error.Suggestion)
	assert.NotEmpty(t, env.Error.TraceID)
	assert.Equal(t, env.Error.TraceID, rr.Header().Get("X-Trace-Id"))
}

func TestIndexFileRoute(t *testing.T) {
	svc := &fakeService{}
	h := newTestRouter(t, svc)

	rr := do(t, h, http.MethodPost, "/v1/files/index", indexFileRequest{
		Repository: "/repo",
		FilePath:   "pkg/app.py",
		Content:    "x = 1\n",
	})

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "/repo", svc.fileRepo)
	assert.Equal(t, "pkg/app.py", svc.filePath)
	assert.Equal(t, []byte("x = 1\n"), svc.content)
	assert.False(t, svc.reindexed)

	var res service.FileIndexResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.Equal(t, "indexed", res.Status)
}

func TestIndexFileRoute_ReindexFlag(t *testing.T) {
	svc := &fakeService{}
	h := newTestRouter(t, svc)

	rr := do(t, h, http.MethodPost, "/v1/files/index", indexFileRequest{
		Repository: "/repo",
		FilePath:   "pkg/app.py",
		Reindex:    true,
	})

	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, svc.reindexed)
	assert.Nil(t, svc.content)
}

func TestIndexFileRoute_InvalidBody(t *testing.T) {
	h := newTestRouter(t, &fakeService{})

	req := httptest.NewRequest(http.MethodPost, "/v1/files/index", bytes.NewBufferString("{not json"))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestStatusRoute(t *testing.T) {
	svc := &fakeService{status: coordinator.Status{State: coordinator.StateInProgress, TotalFiles: 20, IndexedFiles: 7}}
	h := newTestRouter(t, svc)

	rr := do(t, h, http.MethodGet, "/v1/repositories/"+url.PathEscape("/repo")+"/status", nil)

	require.Equal(t, http.StatusOK, rr.Code)
	var st coordinator.Status
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &st))
	assert.Equal(t, coordinator.StateInProgress, st.State)
	assert.Equal(t, "/repo", st.Repository)
	assert.Equal(t, 7, st.IndexedFiles)
}

func TestRepositoryStatsRoute(t *testing.T) {
	svc := &fakeService{}
	h := newTestRouter(t, svc)

	rr := do(t, h, http.MethodGet, "/v1/repositories/"+url.PathEscape("/repo")+"/stats", nil)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "/repo", svc.statsRepo)
	var stats store.RepoStats
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &stats))
	assert.EqualValues(t, 10, stats.TotalChunks)
}

func TestRepositoryStatsRoute_StoreDown(t *testing.T) {
	svc := &fakeService{statsErr: mnemoerrors.Wrap(mnemoerrors.ErrCodeStoreUnavailable, errors.New("connection refused"))}
	h := newTestRouter(t, svc)

	rr := do(t, h, http.MethodGet, "/v1/repositories/"+url.PathEscape("/repo")+"/stats", nil)

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestSearchRoute(t *testing.T) {
	svc := &fakeService{}
	h := newTestRouter(t, svc)

	rr := do(t, h, http.MethodPost, "/v1/search", search.Request{Query: "http handler", Limit: 5})

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "http handler", svc.searchReq.Query)
	assert.Equal(t, 5, svc.searchReq.Limit)

	var resp search.Response
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "handler", resp.Results[0].Name)
}

func TestSearchRoute_CacheFlagDefaultsOn(t *testing.T) {
	svc := &fakeService{}
	h := newTestRouter(t, svc)

	rr := do(t, h, http.MethodPost, "/v1/search", json.RawMessage(`{"query":"multiply"}`))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, svc.searchReq.Flags.Cache)
}

func TestSearchRoute_CacheFlagExplicitOff(t *testing.T) {
	svc := &fakeService{}
	h := newTestRouter(t, svc)

	rr := do(t, h, http.MethodPost, "/v1/search", json.RawMessage(`{"query":"multiply","flags":{"cache":false}}`))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.False(t, svc.searchReq.Flags.Cache)
}

func TestSearchRoute_ValidationError(t *testing.T) {
	svc := &fakeService{searchErr: mnemoerrors.ValidationError("query must not be empty", nil)}
	h := newTestRouter(t, svc)

	rr := do(t, h, http.MethodPost, "/v1/search", search.Request{})

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestSearchRoute_Timeout(t *testing.T) {
	svc := &fakeService{searchErr: mnemoerrors.TimeoutError("search", context.DeadlineExceeded)}
	h := newTestRouter(t, svc)

	rr := do(t, h, http.MethodPost, "/v1/search", search.Request{Query: "x"})

	assert.Equal(t, http.StatusGatewayTimeout, rr.Code)
}

func TestCacheRoutes(t *testing.T) {
	svc := &fakeService{}
	h := newTestRouter(t, svc)

	rr := do(t, h, http.MethodGet, "/v1/cache/stats", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var stats cache.CascadeStats
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &stats))
	assert.InDelta(t, 0.5, stats.CombinedHitRate, 1e-9)

	rr = do(t, h, http.MethodDelete, "/v1/cache?scope="+url.QueryEscape("repository:/repo"), nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "repository:/repo", svc.scope)

	var ack service.Acknowledgement
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &ack))
	assert.True(t, ack.Cleared)
}

func TestHealthz(t *testing.T) {
	h := newTestRouter(t, &fakeService{})

	rr := do(t, h, http.MethodGet, "/healthz", nil)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}

func TestReadyz(t *testing.T) {
	h := newTestRouter(t, &fakeService{})
	rr := do(t, h, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	h = newTestRouter(t, &fakeService{}, func(d *Dependencies) {
		d.Ready = func(context.Context) error { return errors.New("postgres unreachable") }
	})
	rr = do(t, h, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Contains(t, rr.Body.String(), "postgres unreachable")
}

func TestMetricsRoute(t *testing.T) {
	h := newTestRouter(t, &fakeService{}, func(d *Dependencies) {
		d.Metrics = metrics.New()
	})

	rr := do(t, h, http.MethodGet, "/metrics", nil)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "go_goroutines")
}

func TestTraceHeaderPropagated(t *testing.T) {
	h := newTestRouter(t, &fakeService{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Trace-Id", "trace-123")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, "trace-123", rr.Header().Get("X-Trace-Id"))
}

func TestHTTPStatusMapping(t *testing.T) {
	for code, want := range map[string]int{
		mnemoerrors.ErrCodeInvalidInput:     http.StatusBadRequest,
		mnemoerrors.ErrCodeLockDenied:       http.StatusConflict,
		mnemoerrors.ErrCodeTimeout:          http.StatusGatewayTimeout,
		mnemoerrors.ErrCodeParseFailed:      http.StatusUnprocessableEntity,
		mnemoerrors.ErrCodeStoreUnavailable: http.StatusServiceUnavailable,
		mnemoerrors.ErrCodePersistFailed:    http.StatusBadGateway,
		mnemoerrors.ErrCodeInternal:         http.StatusInternalServerError,
		"ERR_999_UNKNOWN":                   http.StatusInternalServerError,
	} {
		assert.Equal(t, want, httpStatus(code), code)
	}
}
