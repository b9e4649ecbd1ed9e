package graph

import (
	"context"
	"database/sql/driver"
	"fmt"
	"math"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemolite/mnemolite/internal/store"
)

func newMockStore(t *testing.T) (*store.Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return store.NewStoreWithDB(sqlx.NewDb(db, "sqlmock")), mock
}

func chunkRefRow(r store.ChunkRef, imports, calls string) []driver.Value {
	return []driver.Value{
		r.ChunkID.String(), r.FilePath, r.Language, r.Kind, r.Name, r.QualifiedName,
		[]byte(imports), []byte(calls), []byte(`[]`), []byte(`[]`),
	}
}

var chunkRefColumns = []string{
	"chunk_id", "file_path", "language", "kind", "name", "qualified_name",
	"imports", "calls", "re_exports", "param_types",
}

// =============================================================================
// Build
// =============================================================================

func TestBuilder_Build_NodesEdgesMetrics(t *testing.T) {
	s, mock := newMockStore(t)
	b := NewBuilder(s)

	alpha := ref("pkg/a.py", "function", "alpha", "pkg.a.alpha")
	modB := ref("pkg/b.py", "module", "b", "pkg.b")
	beta := ref("pkg/b.py", "function", "beta", "pkg.b.beta")

	rows := sqlmock.NewRows(chunkRefColumns).
		AddRow(chunkRefRow(alpha, `["pkg/b"]`, `["beta"]`)...).
		AddRow(chunkRefRow(modB, `[]`, `[]`)...).
		AddRow(chunkRefRow(beta, `[]`, `[]`)...)
	mock.ExpectQuery("SELECT chunk_id, file_path").
		WithArgs("demo").
		WillReturnRows(rows)

	alphaNode := uuid.NewSHA1(uuid.NameSpaceOID, []byte("node-alpha"))
	modBNode := uuid.NewSHA1(uuid.NameSpaceOID, []byte("node-b"))
	betaNode := uuid.NewSHA1(uuid.NameSpaceOID, []byte("node-beta"))
	for _, id := range []uuid.UUID{alphaNode, modBNode, betaNode} {
		mock.ExpectQuery("INSERT INTO nodes").
			WillReturnRows(sqlmock.NewRows([]string{"node_id"}).AddRow(id.String()))
	}

	// alpha imports pkg.b, alpha calls beta (through its import).
	mock.ExpectExec("INSERT INTO edges").
		WithArgs(sqlmock.AnyArg(), alphaNode, modBNode, EdgeTypeImports, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO edges").
		WithArgs(sqlmock.AnyArg(), alphaNode, betaNode, EdgeTypeCalls, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	// One metrics row per touched node, coupling = undirected degree.
	mock.ExpectExec("INSERT INTO computed_metrics").
		WithArgs(alphaNode, sqlmock.AnyArg(), "demo", 2.0, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO computed_metrics").
		WithArgs(modBNode, sqlmock.AnyArg(), "demo", 1.0, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO computed_metrics").
		WithArgs(betaNode, sqlmock.AnyArg(), "demo", 1.0, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	summary, err := b.Build(context.Background(), "demo")

	require.NoError(t, err)
	assert.Equal(t, 3, summary.Nodes)
	assert.Equal(t, 2, summary.Edges)
	assert.Equal(t, 0, summary.Errors)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBuilder_Build_EmptyRepository(t *testing.T) {
	s, mock := newMockStore(t)
	b := NewBuilder(s)

	mock.ExpectQuery("SELECT chunk_id, file_path").
		WithArgs("empty").
		WillReturnRows(sqlmock.NewRows(chunkRefColumns))

	summary, err := b.Build(context.Background(), "empty")

	require.NoError(t, err)
	assert.Zero(t, summary.Nodes)
	assert.Zero(t, summary.Edges)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBuilder_Build_EdgeErrorCountedNotFatal(t *testing.T) {
	s, mock := newMockStore(t)
	b := NewBuilder(s)

	alpha := ref("pkg/a.py", "function", "alpha", "pkg.a.alpha")
	beta := ref("pkg/b.py", "function", "beta", "pkg.b.beta")
	// alpha calls beta twice under different spellings; dedup collapses
	// them to one edge, and that one insert fails.
	rows := sqlmock.NewRows(chunkRefColumns).
		AddRow(chunkRefRow(alpha, `[]`, `["beta","pkg.b.beta"]`)...).
		AddRow(chunkRefRow(beta, `[]`, `[]`)...)
	mock.ExpectQuery("SELECT chunk_id, file_path").
		WithArgs("demo").
		WillReturnRows(rows)

	alphaNode := uuid.NewSHA1(uuid.NameSpaceOID, []byte("node-alpha"))
	betaNode := uuid.NewSHA1(uuid.NameSpaceOID, []byte("node-beta"))
	mock.ExpectQuery("INSERT INTO nodes").
		WillReturnRows(sqlmock.NewRows([]string{"node_id"}).AddRow(alphaNode.String()))
	mock.ExpectQuery("INSERT INTO nodes").
		WillReturnRows(sqlmock.NewRows([]string{"node_id"}).AddRow(betaNode.String()))

	mock.ExpectExec("INSERT INTO edges").
		WillReturnError(fmt.Errorf("connection reset"))

	mock.ExpectExec("INSERT INTO computed_metrics").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO computed_metrics").
		WillReturnResult(sqlmock.NewResult(0, 1))

	summary, err := b.Build(context.Background(), "demo")

	require.NoError(t, err, "a failing edge never aborts the pass")
	assert.Equal(t, 2, summary.Nodes)
	assert.Equal(t, 0, summary.Edges)
	assert.Equal(t, 1, summary.Errors)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBuilder_Build_FailedNodeSkipsItsEdges(t *testing.T) {
	s, mock := newMockStore(t)
	b := NewBuilder(s)

	alpha := ref("pkg/a.py", "function", "alpha", "pkg.a.alpha")
	beta := ref("pkg/b.py", "function", "beta", "pkg.b.beta")
	rows := sqlmock.NewRows(chunkRefColumns).
		AddRow(chunkRefRow(alpha, `[]`, `["beta"]`)...).
		AddRow(chunkRefRow(beta, `[]`, `[]`)...)
	mock.ExpectQuery("SELECT chunk_id, file_path").
		WithArgs("demo").
		WillReturnRows(rows)

	// alpha's node fails; its call edge has no anchor and is dropped.
	mock.ExpectQuery("INSERT INTO nodes").
		WillReturnError(fmt.Errorf("deadlock detected"))
	betaNode := uuid.NewSHA1(uuid.NameSpaceOID, []byte("node-beta"))
	mock.ExpectQuery("INSERT INTO nodes").
		WillReturnRows(sqlmock.NewRows([]string{"node_id"}).AddRow(betaNode.String()))

	mock.ExpectExec("INSERT INTO computed_metrics").
		WithArgs(betaNode, sqlmock.AnyArg(), "demo", 0.0, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	summary, err := b.Build(context.Background(), "demo")

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Nodes)
	assert.Zero(t, summary.Edges)
	assert.Equal(t, 1, summary.Errors)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// =============================================================================
// metric helpers
// =============================================================================

func TestCouplingByNode(t *testing.T) {
	a := uuid.NewSHA1(uuid.NameSpaceOID, []byte("a"))
	b := uuid.NewSHA1(uuid.NameSpaceOID, []byte("b"))
	c := uuid.NewSHA1(uuid.NameSpaceOID, []byte("c"))
	edges := []pendingEdge{
		{key: edgeKey{source: a, target: b, edgeType: EdgeTypeCalls}},
		{key: edgeKey{source: a, target: c, edgeType: EdgeTypeImports}},
		{key: edgeKey{source: b, target: b, edgeType: EdgeTypeCalls}}, // recursion
	}

	coupling := couplingByNode(edges)

	assert.Equal(t, 2.0, coupling[a])
	assert.Equal(t, 2.0, coupling[b], "self-edge counts once")
	assert.Equal(t, 1.0, coupling[c])
}

func TestPagerankByNode_SumsToOne(t *testing.T) {
	a := uuid.NewSHA1(uuid.NameSpaceOID, []byte("a"))
	b := uuid.NewSHA1(uuid.NameSpaceOID, []byte("b"))
	c := uuid.NewSHA1(uuid.NameSpaceOID, []byte("c"))
	edges := []pendingEdge{
		{key: edgeKey{source: a, target: b, edgeType: EdgeTypeCalls}},
		{key: edgeKey{source: b, target: c, edgeType: EdgeTypeCalls}},
		{key: edgeKey{source: c, target: a, edgeType: EdgeTypeCalls}},
	}

	rank := pagerankByNode(edges)

	var sum float64
	for _, r := range rank {
		sum += r
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
	// The cycle is symmetric; every node carries the same rank.
	assert.InDelta(t, rank[a], rank[b], 1e-9)
	assert.InDelta(t, rank[b], rank[c], 1e-9)
}

func TestPagerankByNode_SinkAttractsRank(t *testing.T) {
	hub := uuid.NewSHA1(uuid.NameSpaceOID, []byte("hub"))
	s1 := uuid.NewSHA1(uuid.NameSpaceOID, []byte("s1"))
	s2 := uuid.NewSHA1(uuid.NameSpaceOID, []byte("s2"))
	edges := []pendingEdge{
		{key: edgeKey{source: s1, target: hub, edgeType: EdgeTypeCalls}},
		{key: edgeKey{source: s2, target: hub, edgeType: EdgeTypeCalls}},
	}

	rank := pagerankByNode(edges)

	assert.Greater(t, rank[hub], rank[s1])
	assert.Greater(t, rank[hub], rank[s2])
	assert.False(t, math.IsNaN(rank[hub]))
}

func TestPagerankByNode_Empty(t *testing.T) {
	assert.Empty(t, pagerankByNode(nil))
}

func TestDeriveEdges_DedupAcrossChunks(t *testing.T) {
	a := ref("pkg/a.py", "function", "alpha", "pkg.a.alpha")
	b := ref("pkg/b.py", "function", "beta", "pkg.b.beta")
	a.Calls = []string{"pkg.b.beta", "beta", "pkg.b.beta"}
	refs := []store.ChunkRef{a, b}

	table := buildSymbolTable(refs)
	table.byQualified["pkg.a.alpha"].nodeID = uuid.NewSHA1(uuid.NameSpaceOID, []byte("na"))
	table.byQualified["pkg.b.beta"].nodeID = uuid.NewSHA1(uuid.NameSpaceOID, []byte("nb"))

	edges := deriveEdges(refs, table)

	require.Len(t, edges, 1, "three spellings of the same call collapse to one edge")
	assert.Equal(t, EdgeTypeCalls, edges[0].key.edgeType)
}
