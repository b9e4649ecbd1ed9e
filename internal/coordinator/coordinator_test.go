package coordinator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemolite/mnemolite/internal/cache"
	"github.com/mnemolite/mnemolite/internal/chunk"
	"github.com/mnemolite/mnemolite/internal/config"
	mnemoerrors "github.com/mnemolite/mnemolite/internal/errors"
	"github.com/mnemolite/mnemolite/internal/graph"
	"github.com/mnemolite/mnemolite/internal/pipeline"
	"github.com/mnemolite/mnemolite/internal/store"
)

// recorder collects file paths across worker pipelines.
type recorder struct {
	mu    sync.Mutex
	paths []string
}

func (r *recorder) add(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, path)
}

func (r *recorder) sorted() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := append([]string(nil), r.paths...)
	sort.Strings(out)
	return out
}

// fakePipe indexes every file with two chunks, except paths listed in
// fail, which report the mapped error.
type fakePipe struct {
	rec  *recorder
	fail map[string]error
}

func (p *fakePipe) IndexFile(ctx context.Context, job *pipeline.Job) *pipeline.FileResult {
	p.rec.add(job.FilePath)
	if err, ok := p.fail[job.FilePath]; ok {
		return &pipeline.FileResult{FilePath: job.FilePath, Status: pipeline.StatusFailed, Err: err}
	}
	return &pipeline.FileResult{
		FilePath: job.FilePath,
		Status:   pipeline.StatusIndexed,
		Language: "python",
		Chunks:   []*chunk.Chunk{{}, {}},
	}
}

func (p *fakePipe) Close() {}

type fakeGraph struct {
	mu    sync.Mutex
	calls []string
	nodes int
	edges int
	err   error
}

func (g *fakeGraph) Build(ctx context.Context, repository string) (*graph.Summary, error) {
	g.mu.Lock()
	g.calls = append(g.calls, repository)
	g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	return &graph.Summary{Repository: repository, Nodes: g.nodes, Edges: g.edges}, nil
}

func (g *fakeGraph) repos() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.calls...)
}

type fakeDeleter struct {
	mu    sync.Mutex
	calls []string
}

func (d *fakeDeleter) DeleteRepository(ctx context.Context, repository string) (store.DeleteResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, repository)
	return store.DeleteResult{Chunks: 4, Nodes: 2, Edges: 1}, nil
}

func (d *fakeDeleter) repos() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

type fakeInvalidator struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeInvalidator) InvalidateRepository(ctx context.Context, repository string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, repository)
}

func (f *fakeInvalidator) repos() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// coordEnv bundles a coordinator with its fakes and a fixture tree.
type coordEnv struct {
	t       *testing.T
	mr      *miniredis.Miniredis
	kv      *cache.L2
	cfg     *config.Config
	rec     *recorder
	graph   *fakeGraph
	deleter *fakeDeleter
	caches  *fakeInvalidator
	failing map[string]error
	built   atomic.Int32
	root    string
}

func newCoordEnv(t *testing.T, files int) *coordEnv {
	t.Helper()
	mr, kv := newTestKV(t)
	env := &coordEnv{
		t:       t,
		mr:      mr,
		kv:      kv,
		cfg:     config.NewConfig(),
		rec:     &recorder{},
		graph:   &fakeGraph{nodes: 7, edges: 9},
		deleter: &fakeDeleter{},
		caches:  &fakeInvalidator{},
		root:    t.TempDir(),
	}
	writeFixture(t, env.root, files)
	return env
}

func (e *coordEnv) coordinator() *Coordinator {
	e.t.Helper()
	c, err := New(Dependencies{
		Pipelines: func() (FilePipeline, error) {
			e.built.Add(1)
			return &fakePipe{rec: e.rec, fail: e.failing}, nil
		},
		Graph:  e.graph,
		Store:  e.deleter,
		Caches: e.caches,
		KV:     e.kv,
		Config: e.cfg,
	})
	require.NoError(e.t, err)
	return c
}

// writeFixture creates n small source files under dir.
func writeFixture(t *testing.T, dir string, n int) []string {
	t.Helper()
	names := make([]string, 0, n)
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("pkg_%02d.py", i)
		content := fmt.Sprintf("def handler_%d():\n    return %d\n", i, i)
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
		names = append(names, name)
	}
	return names
}

func TestIndexRepository_SequentialRun(t *testing.T) {
	env := newCoordEnv(t, 12)
	coord := env.coordinator()
	repo := env.root

	sum, err := coord.IndexRepository(context.Background(), repo, env.root, Options{})
	require.NoError(t, err)

	assert.Equal(t, 12, sum.Total)
	assert.Equal(t, 12, sum.Indexed)
	assert.Zero(t, sum.Cached)
	assert.Zero(t, sum.Skipped)
	assert.Empty(t, sum.Failed)
	assert.Equal(t, 24, sum.Chunks)
	assert.Equal(t, 7, sum.Nodes)
	assert.Equal(t, 9, sum.Edges)

	// Below the sequential threshold a single worker serves the run.
	assert.Equal(t, int32(1), env.built.Load())
	assert.Equal(t, []string{repo}, env.graph.repos())
	assert.Empty(t, env.deleter.repos())

	st := coord.StatusStore().Get(context.Background(), repo)
	assert.Equal(t, StateCompleted, st.State)
	assert.Equal(t, 12, st.TotalFiles)
	assert.Equal(t, 12, st.IndexedFiles)
	require.NotNil(t, st.CompletedAt)
	assert.False(t, st.StartedAt.IsZero())
}

func TestIndexRepository_ParallelMatchesSequential(t *testing.T) {
	seq := newCoordEnv(t, 16)
	seqSum, err := seq.coordinator().IndexRepository(context.Background(), seq.root, seq.root, Options{})
	require.NoError(t, err)

	par := newCoordEnv(t, 16)
	par.cfg.Workers.SequentialThreshold = 1
	parSum, err := par.coordinator().IndexRepository(context.Background(), par.root, par.root, Options{Workers: 4})
	require.NoError(t, err)

	assert.Equal(t, int32(1), seq.built.Load())
	assert.Equal(t, int32(4), par.built.Load())

	assert.Equal(t, seqSum.Total, parSum.Total)
	assert.Equal(t, seqSum.Indexed, parSum.Indexed)
	assert.Equal(t, seqSum.Chunks, parSum.Chunks)
	assert.Equal(t, seqSum.Nodes, parSum.Nodes)
	assert.Equal(t, seqSum.Edges, parSum.Edges)
	assert.Empty(t, parSum.Failed)

	// Every file passes through exactly one pipeline in either mode.
	assert.Equal(t, seq.rec.sorted(), par.rec.sorted())
}

func TestIndexRepository_LockDenied(t *testing.T) {
	env := newCoordEnv(t, 3)
	coord := env.coordinator()
	repo := env.root

	holder := NewLocker(env.kv, time.Minute)
	lease, err := holder.Acquire(context.Background(), repo)
	require.NoError(t, err)
	defer lease.Release(context.Background())

	sum, err := coord.IndexRepository(context.Background(), repo, env.root, Options{})
	assert.Nil(t, sum)
	require.Error(t, err)
	assert.Equal(t, mnemoerrors.ErrCodeLockDenied, mnemoerrors.GetCode(err))
	assert.Equal(t, mnemoerrors.KindLockDenied, mnemoerrors.KindOf(err))

	// The denied run never touched pipelines, graph, or status.
	assert.Equal(t, int32(0), env.built.Load())
	assert.Empty(t, env.graph.repos())
	st := coord.StatusStore().Get(context.Background(), repo)
	assert.Equal(t, StateNotIndexed, st.State)
}

func TestIndexRepository_CollectsFileFailures(t *testing.T) {
	env := newCoordEnv(t, 6)
	env.failing = map[string]error{
		"pkg_02.py": mnemoerrors.ParseError("unbalanced delimiters", nil),
		"pkg_04.py": mnemoerrors.EmbeddingError("embedder offline", nil),
	}
	coord := env.coordinator()

	sum, err := coord.IndexRepository(context.Background(), env.root, env.root, Options{})
	require.NoError(t, err)

	assert.Equal(t, 4, sum.Indexed)
	assert.Equal(t, 8, sum.Chunks)
	require.Len(t, sum.Failed, 2)
	kinds := map[string]string{}
	for _, f := range sum.Failed {
		kinds[f.FilePath] = f.Kind
	}
	assert.Equal(t, mnemoerrors.KindParseError, kinds["pkg_02.py"])
	assert.Equal(t, mnemoerrors.KindEmbeddingError, kinds["pkg_04.py"])

	// Per-file failures do not fail the run.
	st := coord.StatusStore().Get(context.Background(), env.root)
	assert.Equal(t, StateCompleted, st.State)
	assert.Equal(t, 4, st.IndexedFiles)
}

func TestIndexRepository_ForceReindexResetsFirst(t *testing.T) {
	env := newCoordEnv(t, 3)
	coord := env.coordinator()

	sum, err := coord.IndexRepository(context.Background(), env.root, env.root, Options{ForceReindex: true})
	require.NoError(t, err)

	assert.Equal(t, []string{env.root}, env.deleter.repos())
	assert.Equal(t, []string{env.root}, env.caches.repos())
	assert.Equal(t, 3, sum.Indexed)
}

func TestIndexRepository_StatusLifecycle(t *testing.T) {
	env := newCoordEnv(t, 5)
	coord := env.coordinator()
	repo := env.root

	before := coord.StatusStore().Get(context.Background(), repo)
	assert.Equal(t, StateNotIndexed, before.State)

	var seen []State
	_, err := coord.IndexRepository(context.Background(), repo, env.root, Options{
		Progress: func(Progress) {
			seen = append(seen, coord.StatusStore().Get(context.Background(), repo).State)
		},
	})
	require.NoError(t, err)

	require.NotEmpty(t, seen)
	for _, s := range seen {
		assert.Equal(t, StateInProgress, s)
	}

	after := coord.StatusStore().Get(context.Background(), repo)
	assert.Equal(t, StateCompleted, after.State)
	assert.Equal(t, 5, after.TotalFiles)
	assert.Equal(t, 5, after.IndexedFiles)
	assert.NotNil(t, after.CompletedAt)
	assert.Empty(t, after.Error)
}

func TestIndexRepository_GraphFailureFailsRun(t *testing.T) {
	env := newCoordEnv(t, 3)
	env.graph.err = fmt.Errorf("connection refused")
	coord := env.coordinator()

	sum, err := coord.IndexRepository(context.Background(), env.root, env.root, Options{})
	require.Error(t, err)
	assert.Equal(t, mnemoerrors.ErrCodePersistFailed, mnemoerrors.GetCode(err))

	// The summary still reports the files that were indexed.
	require.NotNil(t, sum)
	assert.Equal(t, 3, sum.Indexed)
	assert.Zero(t, sum.Nodes)

	st := coord.StatusStore().Get(context.Background(), env.root)
	assert.Equal(t, StateFailed, st.State)
	assert.Contains(t, st.Error, "graph build failed")
	assert.NotNil(t, st.CompletedAt)
}

func TestIndexRepository_CancellationStopsFeeding(t *testing.T) {
	env := newCoordEnv(t, 30)
	coord := env.coordinator()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sum, err := coord.IndexRepository(ctx, env.root, env.root, Options{
		Progress: func(p Progress) {
			if p.Current >= 10 {
				cancel()
			}
		},
	})
	require.Error(t, err)
	assert.Equal(t, mnemoerrors.ErrCodeTimeout, mnemoerrors.GetCode(err))

	// In-flight files completed, the rest never started.
	require.NotNil(t, sum)
	assert.GreaterOrEqual(t, sum.Indexed, 10)
	assert.Less(t, sum.Indexed, 30)
	assert.Empty(t, env.graph.repos())

	st := coord.StatusStore().Get(context.Background(), env.root)
	assert.Equal(t, StateFailed, st.State)
	assert.Contains(t, st.Error, "cancelled")

	// The lock is released even though the run context is gone.
	assert.False(t, env.mr.Exists(cache.LockKey(env.root)))
}

func TestIndexRepository_ProgressThrottled(t *testing.T) {
	env := newCoordEnv(t, 25)
	coord := env.coordinator()

	var events []Progress
	_, err := coord.IndexRepository(context.Background(), env.root, env.root, Options{
		Progress: func(p Progress) { events = append(events, p) },
	})
	require.NoError(t, err)

	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, 25, last.Current)
	assert.Equal(t, 25, last.Total)

	prev := 0
	for _, ev := range events {
		assert.Greater(t, ev.Current, prev, "progress must be strictly increasing")
		assert.LessOrEqual(t, ev.Current-prev, 10, "no more than ten completions between events")
		assert.Equal(t, 25, ev.Total)
		prev = ev.Current
	}
	assert.Less(t, len(events), 25, "instant completions must collapse into few events")
}

func TestIndexRepository_EmptyRepository(t *testing.T) {
	env := newCoordEnv(t, 0)
	coord := env.coordinator()

	sum, err := coord.IndexRepository(context.Background(), env.root, env.root, Options{})
	require.NoError(t, err)

	assert.Zero(t, sum.Total)
	assert.Zero(t, sum.Indexed)
	assert.Equal(t, int32(0), env.built.Load())
	assert.Equal(t, []string{env.root}, env.graph.repos())

	st := coord.StatusStore().Get(context.Background(), env.root)
	assert.Equal(t, StateCompleted, st.State)
	assert.Zero(t, st.TotalFiles)
}

func TestIndexRepository_PipelineFactoryFailure(t *testing.T) {
	env := newCoordEnv(t, 3)
	coord, err := New(Dependencies{
		Pipelines: func() (FilePipeline, error) { return nil, fmt.Errorf("parser init failed") },
		Graph:     env.graph,
		Store:     env.deleter,
		Caches:    env.caches,
		KV:        env.kv,
		Config:    env.cfg,
	})
	require.NoError(t, err)

	_, err = coord.IndexRepository(context.Background(), env.root, env.root, Options{})
	require.Error(t, err)
	assert.Equal(t, mnemoerrors.ErrCodeInternal, mnemoerrors.GetCode(err))

	st := coord.StatusStore().Get(context.Background(), env.root)
	assert.Equal(t, StateFailed, st.State)
}

func TestIndexRepository_ScanRootMissing(t *testing.T) {
	env := newCoordEnv(t, 0)
	coord := env.coordinator()

	_, err := coord.IndexRepository(context.Background(), env.root, filepath.Join(env.root, "missing"), Options{})
	require.Error(t, err)

	// Early failures still release the lock.
	assert.False(t, env.mr.Exists(cache.LockKey(env.root)))
}

func TestWorkerCount(t *testing.T) {
	env := newCoordEnv(t, 0)
	coord := env.coordinator()

	assert.Equal(t, 1, coord.workerCount(8, 10), "below the threshold runs sequential")
	assert.Equal(t, 2, coord.workerCount(0, 100), "unset falls back to the configured default")
	assert.Equal(t, 8, coord.workerCount(8, 100))
	assert.Equal(t, 2, coord.workerCount(-3, 100))
	assert.Equal(t, 2, coord.workerCount(0, 50), "threshold is exclusive")

	env.cfg.Workers.Default = 0
	assert.Equal(t, 1, coord.workerCount(0, 100), "pool never drops below one worker")
}

func TestNew_ValidatesDependencies(t *testing.T) {
	env := newCoordEnv(t, 0)
	base := Dependencies{
		Pipelines: func() (FilePipeline, error) { return &fakePipe{rec: &recorder{}}, nil },
		Graph:     env.graph,
		Store:     env.deleter,
		Caches:    env.caches,
		Config:    env.cfg,
	}

	for name, clear := range map[string]func(*Dependencies){
		"pipelines": func(d *Dependencies) { d.Pipelines = nil },
		"graph":     func(d *Dependencies) { d.Graph = nil },
		"store":     func(d *Dependencies) { d.Store = nil },
		"caches":    func(d *Dependencies) { d.Caches = nil },
		"config":    func(d *Dependencies) { d.Config = nil },
	} {
		t.Run(name, func(t *testing.T) {
			deps := base
			clear(&deps)
			_, err := New(deps)
			assert.Error(t, err)
		})
	}

	// KV is optional: single-process runs work without Redis.
	_, err := New(base)
	assert.NoError(t, err)
}
