package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemolite/mnemolite/internal/cache"
	"github.com/mnemolite/mnemolite/internal/chunk"
	"github.com/mnemolite/mnemolite/internal/coordinator"
	mnemoerrors "github.com/mnemolite/mnemolite/internal/errors"
	"github.com/mnemolite/mnemolite/internal/pipeline"
	"github.com/mnemolite/mnemolite/internal/search"
	"github.com/mnemolite/mnemolite/internal/store"
)

// oplog records collaborator calls in order.
type oplog struct {
	mu  sync.Mutex
	ops []string
}

func (l *oplog) add(op string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ops = append(l.ops, op)
}

func (l *oplog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.ops...)
}

type fakeIndexer struct {
	calls      int
	repository string
	rootDir    string
	opts       coordinator.Options
	summary    *coordinator.Summary
	err        error
	status     coordinator.Status
}

func (f *fakeIndexer) IndexRepository(_ context.Context, repository, rootDir string, opts coordinator.Options) (*coordinator.Summary, error) {
	f.calls++
	f.repository = repository
	f.rootDir = rootDir
	f.opts = opts
	if f.err != nil {
		return nil, f.err
	}
	if f.summary != nil {
		return f.summary, nil
	}
	return &coordinator.Summary{Repository: repository}, nil
}

func (f *fakeIndexer) Status(_ context.Context, repository string) coordinator.Status {
	st := f.status
	st.Repository = repository
	return st
}

type fakeSearcher struct {
	calls int
	req   search.Request
	resp  *search.Response
	err   error
}

func (f *fakeSearcher) Search(_ context.Context, req search.Request) (*search.Response, error) {
	f.calls++
	f.req = req
	if f.err != nil {
		return nil, f.err
	}
	if f.resp != nil {
		return f.resp, nil
	}
	return &search.Response{}, nil
}

type fakeCaches struct {
	log   *oplog
	stats cache.CascadeStats
}

func (f *fakeCaches) Invalidate(_ context.Context, filePath string) {
	f.log.add("invalidate:" + filePath)
}

func (f *fakeCaches) InvalidateRepository(_ context.Context, repository string) {
	f.log.add("invalidate_repo:" + repository)
}

func (f *fakeCaches) Clear(_ context.Context) {
	f.log.add("clear")
}

func (f *fakeCaches) Stats(_ context.Context) cache.CascadeStats {
	return f.stats
}

type fakeStats struct {
	calls int
	repo  string
	out   *store.RepoStats
	err   error
}

func (f *fakeStats) RepositoryStats(_ context.Context, repository string) (*store.RepoStats, error) {
	f.calls++
	f.repo = repository
	if f.err != nil {
		return nil, f.err
	}
	if f.out != nil {
		return f.out, nil
	}
	return &store.RepoStats{Repository: repository}, nil
}

type fakePipe struct {
	log    *oplog
	result *pipeline.FileResult
	jobs   []*pipeline.Job
	closed int
}

func (f *fakePipe) IndexFile(_ context.Context, job *pipeline.Job) *pipeline.FileResult {
	f.jobs = append(f.jobs, job)
	if f.log != nil {
		f.log.add("index:" + job.AbsPath)
	}
	res := *f.result
	if res.FilePath == "" {
		res.FilePath = job.FilePath
	}
	return &res
}

func (f *fakePipe) Close() { f.closed++ }

type svcEnv struct {
	log      *oplog
	indexer  *fakeIndexer
	searcher *fakeSearcher
	caches   *fakeCaches
	stats    *fakeStats
	pipe     *fakePipe
	built    int
	buildErr error
	svc      *Service
}

func newSvcEnv(t *testing.T) *svcEnv {
	t.Helper()
	env := &svcEnv{
		log:      &oplog{},
		indexer:  &fakeIndexer{status: coordinator.Status{State: coordinator.StateCompleted}},
		searcher: &fakeSearcher{},
		stats:    &fakeStats{},
	}
	env.caches = &fakeCaches{log: env.log}
	env.pipe = &fakePipe{
		log: env.log,
		result: &pipeline.FileResult{
			Status:   pipeline.StatusIndexed,
			Language: "python",
			Chunks:   []*chunk.Chunk{{}, {}, {}},
			Duration: 5 * time.Millisecond,
		},
	}

	svc, err := New(Dependencies{
		Indexer:  env.indexer,
		Searcher: env.searcher,
		Caches:   env.caches,
		Stats:    env.stats,
		Pipelines: func() (coordinator.FilePipeline, error) {
			env.built++
			if env.buildErr != nil {
				return nil, env.buildErr
			}
			return env.pipe, nil
		},
	})
	require.NoError(t, err)
	t.Cleanup(svc.Close)
	env.svc = svc
	return env
}

func assertInvalidInput(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, mnemoerrors.ErrCodeInvalidInput, mnemoerrors.GetCode(err))
}

func TestNew_ValidatesDependencies(t *testing.T) {
	base := Dependencies{
		Indexer:   &fakeIndexer{},
		Searcher:  &fakeSearcher{},
		Caches:    &fakeCaches{log: &oplog{}},
		Stats:     &fakeStats{},
		Pipelines: func() (coordinator.FilePipeline, error) { return nil, nil },
	}

	_, err := New(base)
	require.NoError(t, err)

	for name, strip := range map[string]func(*Dependencies){
		"indexer":   func(d *Dependencies) { d.Indexer = nil },
		"searcher":  func(d *Dependencies) { d.Searcher = nil },
		"caches":    func(d *Dependencies) { d.Caches = nil },
		"stats":     func(d *Dependencies) { d.Stats = nil },
		"pipelines": func(d *Dependencies) { d.Pipelines = nil },
	} {
		t.Run(name, func(t *testing.T) {
			deps := base
			strip(&deps)
			_, err := New(deps)
			assert.Error(t, err)
		})
	}
}

func TestIndexRepository_RootDefaultsToRepository(t *testing.T) {
	env := newSvcEnv(t)

	_, err := env.svc.IndexRepository(context.Background(), "/repo", "", IndexRepositoryOptions{})

	require.NoError(t, err)
	assert.Equal(t, "/repo", env.indexer.repository)
	assert.Equal(t, "/repo", env.indexer.rootDir)
}

func TestIndexRepository_RepositoryDerivedFromRoot(t *testing.T) {
	env := newSvcEnv(t)
	root := t.TempDir()

	_, err := env.svc.IndexRepository(context.Background(), "", root, IndexRepositoryOptions{})

	require.NoError(t, err)
	assert.Equal(t, root, env.indexer.repository)
	assert.Equal(t, root, env.indexer.rootDir)
}

func TestIndexRepository_RejectsRelativeRepository(t *testing.T) {
	env := newSvcEnv(t)

	_, err := env.svc.IndexRepository(context.Background(), "projects/app", "", IndexRepositoryOptions{})

	assertInvalidInput(t, err)
	assert.Zero(t, env.indexer.calls)
}

func TestIndexRepository_RejectsTooManyWorkers(t *testing.T) {
	env := newSvcEnv(t)

	_, err := env.svc.IndexRepository(context.Background(), "/repo", "", IndexRepositoryOptions{Workers: 65})

	assertInvalidInput(t, err)
	assert.Zero(t, env.indexer.calls)
}

func TestIndexRepository_PassesOptions(t *testing.T) {
	env := newSvcEnv(t)

	_, err := env.svc.IndexRepository(context.Background(), "/repo", "", IndexRepositoryOptions{
		Workers:        4,
		IncludeIgnored: true,
		ForceReindex:   true,
		Progress:       func(coordinator.Progress) {},
	})

	require.NoError(t, err)
	assert.Equal(t, 4, env.indexer.opts.Workers)
	assert.True(t, env.indexer.opts.IncludeIgnored)
	assert.True(t, env.indexer.opts.ForceReindex)
	assert.NotNil(t, env.indexer.opts.Progress)
}

func TestIndexRepository_SurfacesRunError(t *testing.T) {
	env := newSvcEnv(t)
	env.indexer.err = mnemoerrors.LockDeniedError("/repo")

	_, err := env.svc.IndexRepository(context.Background(), "/repo", "", IndexRepositoryOptions{})

	require.Error(t, err)
	assert.Equal(t, mnemoerrors.ErrCodeLockDenied, mnemoerrors.GetCode(err))
}

func TestGetIndexingStatus(t *testing.T) {
	env := newSvcEnv(t)
	env.indexer.status = coordinator.Status{State: coordinator.StateInProgress, TotalFiles: 10, IndexedFiles: 4}

	st, err := env.svc.GetIndexingStatus(context.Background(), "/repo")

	require.NoError(t, err)
	assert.Equal(t, coordinator.StateInProgress, st.State)
	assert.Equal(t, "/repo", st.Repository)
	assert.Equal(t, 10, st.TotalFiles)

	_, err = env.svc.GetIndexingStatus(context.Background(), "")
	assertInvalidInput(t, err)
}

func TestIndexFile_BuildsPipelineOnce(t *testing.T) {
	env := newSvcEnv(t)

	_, err := env.svc.IndexFile(context.Background(), "/repo", "a.py", []byte("x = 1\n"))
	require.NoError(t, err)
	_, err = env.svc.IndexFile(context.Background(), "/repo", "b.py", []byte("y = 2\n"))
	require.NoError(t, err)

	assert.Equal(t, 1, env.built)
	assert.Len(t, env.pipe.jobs, 2)
}

func TestIndexFile_ResolvesRelativePath(t *testing.T) {
	env := newSvcEnv(t)

	res, err := env.svc.IndexFile(context.Background(), "/repo", "pkg/app.py", []byte("x = 1\n"))

	require.NoError(t, err)
	require.Len(t, env.pipe.jobs, 1)
	job := env.pipe.jobs[0]
	assert.Equal(t, "/repo", job.Repository)
	assert.Equal(t, "pkg/app.py", job.FilePath)
	assert.Equal(t, "/repo/pkg/app.py", job.AbsPath)
	assert.Equal(t, []byte("x = 1\n"), job.Content)

	assert.Equal(t, "indexed", res.Status)
	assert.Equal(t, "python", res.Language)
	assert.Equal(t, 3, res.Chunks)
	assert.Equal(t, "pkg/app.py", res.FilePath)
}

func TestIndexFile_ResolvesAbsolutePathInsideRepository(t *testing.T) {
	env := newSvcEnv(t)

	_, err := env.svc.IndexFile(context.Background(), "/repo", "/repo/pkg/app.py", nil)

	require.NoError(t, err)
	job := env.pipe.jobs[0]
	assert.Equal(t, "pkg/app.py", job.FilePath)
	assert.Equal(t, "/repo/pkg/app.py", job.AbsPath)
	assert.Nil(t, job.Content)
}

func TestIndexFile_KeepsAbsolutePathOutsideRepository(t *testing.T) {
	env := newSvcEnv(t)

	_, err := env.svc.IndexFile(context.Background(), "/repo", "/elsewhere/app.py", nil)

	require.NoError(t, err)
	job := env.pipe.jobs[0]
	assert.Equal(t, "/elsewhere/app.py", job.FilePath)
	assert.Equal(t, "/elsewhere/app.py", job.AbsPath)
}

func TestIndexFile_RejectsTraversal(t *testing.T) {
	env := newSvcEnv(t)

	_, err := env.svc.IndexFile(context.Background(), "/repo", "../../etc/passwd", nil)

	assertInvalidInput(t, err)
	assert.Zero(t, env.built)
}

func TestIndexFile_FailedRunSurfacesError(t *testing.T) {
	env := newSvcEnv(t)
	env.pipe.result = &pipeline.FileResult{
		Status: pipeline.StatusFailed,
		Err:    mnemoerrors.ParseError("app.py", errors.New("syntax error")),
	}

	_, err := env.svc.IndexFile(context.Background(), "/repo", "app.py", []byte("def broken(\n"))

	require.Error(t, err)
	assert.Equal(t, mnemoerrors.ErrCodeParseFailed, mnemoerrors.GetCode(err))
}

func TestIndexFile_SkippedCarriesReason(t *testing.T) {
	env := newSvcEnv(t)
	env.pipe.result = &pipeline.FileResult{
		Status: pipeline.StatusSkipped,
		Err:    mnemoerrors.UnknownLanguageError("app.bin"),
	}

	res, err := env.svc.IndexFile(context.Background(), "/repo", "app.bin", nil)

	require.NoError(t, err)
	assert.Equal(t, "skipped", res.Status)
	assert.NotEmpty(t, res.Reason)
	assert.Zero(t, res.Chunks)
}

func TestIndexFile_CollectsWarnings(t *testing.T) {
	env := newSvcEnv(t)
	env.pipe.result = &pipeline.FileResult{
		Status:   pipeline.StatusIndexed,
		Language: "python",
		Chunks:   []*chunk.Chunk{{}},
		Warnings: []error{mnemoerrors.EmbeddingError("chunks persisted without vectors", nil)},
	}

	res, err := env.svc.IndexFile(context.Background(), "/repo", "app.py", []byte("x = 1\n"))

	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "without vectors")
}

func TestIndexFile_PipelineBuildFailure(t *testing.T) {
	env := newSvcEnv(t)
	env.buildErr = errors.New("no parser grammars")

	_, err := env.svc.IndexFile(context.Background(), "/repo", "app.py", nil)

	require.Error(t, err)
	assert.Equal(t, mnemoerrors.ErrCodeInternal, mnemoerrors.GetCode(err))
}

func TestReindexFile_InvalidatesBeforeRunning(t *testing.T) {
	env := newSvcEnv(t)

	_, err := env.svc.ReindexFile(context.Background(), "/repo", "pkg/app.py", nil)

	require.NoError(t, err)
	assert.Equal(t, []string{
		"invalidate:/repo/pkg/app.py",
		"index:/repo/pkg/app.py",
	}, env.log.all())
}

func TestSearch_DelegatesAfterValidation(t *testing.T) {
	env := newSvcEnv(t)
	env.searcher.resp = &search.Response{Results: []search.Result{{FilePath: "a.py"}}}

	resp, err := env.svc.Search(context.Background(), search.Request{Query: "http handler", Limit: 5})

	require.NoError(t, err)
	assert.Len(t, resp.Results, 1)
	assert.Equal(t, "http handler", env.searcher.req.Query)
	assert.Equal(t, 5, env.searcher.req.Limit)
}

func TestSearch_RejectsBadInput(t *testing.T) {
	env := newSvcEnv(t)

	_, err := env.svc.Search(context.Background(), search.Request{Query: "   "})
	assertInvalidInput(t, err)

	_, err = env.svc.Search(context.Background(), search.Request{Query: "ok", Limit: -1})
	assertInvalidInput(t, err)

	assert.Zero(t, env.searcher.calls)
}

func TestParseCacheScope(t *testing.T) {
	for raw, want := range map[string]CacheScope{
		"":                 {Kind: ScopeAll},
		"all":              {Kind: ScopeAll},
		" all ":            {Kind: ScopeAll},
		"repository:/repo": {Kind: ScopeRepository, Target: "/repo"},
		"file:/repo/a.py":  {Kind: ScopeFile, Target: "/repo/a.py"},
	} {
		t.Run(fmt.Sprintf("ok_%q", raw), func(t *testing.T) {
			got, err := ParseCacheScope(raw)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}

	for _, raw := range []string{"bogus", "repository:", "file", "node:/repo"} {
		t.Run(fmt.Sprintf("bad_%q", raw), func(t *testing.T) {
			_, err := ParseCacheScope(raw)
			assertInvalidInput(t, err)
		})
	}
}

func TestClearCache_DispatchesByScope(t *testing.T) {
	env := newSvcEnv(t)

	ack, err := env.svc.ClearCache(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, &Acknowledgement{Scope: "all", Cleared: true}, ack)

	ack, err = env.svc.ClearCache(context.Background(), "repository:/repo")
	require.NoError(t, err)
	assert.Equal(t, "repository:/repo", ack.Scope)

	ack, err = env.svc.ClearCache(context.Background(), "file:/repo/a.py")
	require.NoError(t, err)
	assert.Equal(t, "file:/repo/a.py", ack.Scope)

	assert.Equal(t, []string{
		"clear",
		"invalidate_repo:/repo",
		"invalidate:/repo/a.py",
	}, env.log.all())

	_, err = env.svc.ClearCache(context.Background(), "everything")
	assertInvalidInput(t, err)
}

func TestCacheStats_Passthrough(t *testing.T) {
	env := newSvcEnv(t)
	env.caches.stats = cache.CascadeStats{CombinedHitRate: 0.75}

	got := env.svc.CacheStats(context.Background())

	assert.InDelta(t, 0.75, got.CombinedHitRate, 1e-9)
}

func TestRepositoryStats(t *testing.T) {
	env := newSvcEnv(t)
	env.stats.out = &store.RepoStats{Repository: "/repo", TotalChunks: 42, Nodes: 7, Edges: 9}

	stats, err := env.svc.RepositoryStats(context.Background(), "/repo")

	require.NoError(t, err)
	assert.EqualValues(t, 42, stats.TotalChunks)
	assert.Equal(t, "/repo", env.stats.repo)
}

func TestRepositoryStats_StoreErrorMapped(t *testing.T) {
	env := newSvcEnv(t)
	env.stats.err = errors.New("connection refused")

	_, err := env.svc.RepositoryStats(context.Background(), "/repo")

	require.Error(t, err)
	assert.Equal(t, mnemoerrors.ErrCodeStoreUnavailable, mnemoerrors.GetCode(err))
}

func TestRepositoryStats_RejectsBadRepository(t *testing.T) {
	env := newSvcEnv(t)

	_, err := env.svc.RepositoryStats(context.Background(), "relative/path")

	assertInvalidInput(t, err)
	assert.Zero(t, env.stats.calls)
}

func TestClose_ReleasesPipeline(t *testing.T) {
	env := newSvcEnv(t)

	_, err := env.svc.IndexFile(context.Background(), "/repo", "a.py", []byte("x = 1\n"))
	require.NoError(t, err)

	env.svc.Close()
	env.svc.Close()

	assert.Equal(t, 1, env.pipe.closed)
}
