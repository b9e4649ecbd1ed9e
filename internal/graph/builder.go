// Package graph builds the code graph for a repository: one node per
// indexed chunk, edges for imports, calls and re-exports, and computed
// per-node metrics. It runs as a single writer after the per-file
// pipeline has committed every chunk.
package graph

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mnemolite/mnemolite/internal/hash"
	"github.com/mnemolite/mnemolite/internal/logging"
	"github.com/mnemolite/mnemolite/internal/store"
)

// EdgeTypeImports is a module or symbol import relationship.
const EdgeTypeImports = "imports"

// EdgeTypeCalls is a function or method invocation relationship.
const EdgeTypeCalls = "calls"

// EdgeTypeReExports is a re-export relationship (import surfaced as API).
const EdgeTypeReExports = "re_exports"

const (
	pagerankDamping    = 0.85
	pagerankIterations = 20
)

// Summary reports what a single build pass did.
type Summary struct {
	Repository string        `json:"repository"`
	Nodes      int           `json:"nodes"`
	Edges      int           `json:"edges"`
	Errors     int           `json:"errors"`
	Duration   time.Duration `json:"duration"`
}

// Builder constructs the graph from persisted chunk metadata.
type Builder struct {
	store *store.Store
}

// NewBuilder returns a builder over the given store.
func NewBuilder(st *store.Store) *Builder {
	return &Builder{store: st}
}

// edgeKey identifies an edge for in-memory dedup before insert.
type edgeKey struct {
	source   uuid.UUID
	target   uuid.UUID
	edgeType string
}

// pendingEdge is a resolved edge awaiting persistence.
type pendingEdge struct {
	key edgeKey
	raw string // the reference text it resolved from
}

// Build derives nodes, edges and metrics for one repository from its
// stored chunks. Unresolved references are expected and dropped without
// note; a persistence error on one node or edge is logged, counted in
// the summary and never aborts the pass.
func (b *Builder) Build(ctx context.Context, repository string) (*Summary, error) {
	start := time.Now()
	summary := &Summary{Repository: repository}

	refs, err := b.store.ListChunkRefs(ctx, repository)
	if err != nil {
		return nil, err
	}
	if len(refs) == 0 {
		summary.Duration = time.Since(start)
		return summary, nil
	}

	table := buildSymbolTable(refs)
	b.upsertNodes(ctx, repository, refs, table, summary)
	edges := deriveEdges(refs, table)
	b.insertEdges(ctx, edges, summary)
	b.upsertMetrics(ctx, repository, refs, table, edges, summary)

	summary.Duration = time.Since(start)
	logging.Event(ctx, "graph.build.complete",
		slog.String("repository", repository),
		slog.Int("nodes", summary.Nodes),
		slog.Int("edges", summary.Edges),
		slog.Int("errors", summary.Errors),
		slog.Duration("duration", summary.Duration))
	return summary, nil
}

// upsertNodes writes one node per chunk and records the stored ids in
// the symbol table so edge derivation can anchor on them. A symbol
// whose node failed to persist keeps a nil id and is skipped later.
func (b *Builder) upsertNodes(ctx context.Context, repository string, refs []store.ChunkRef, table *symbolTable, summary *Summary) {
	for i := range refs {
		ref := &refs[i]
		sym, ok := table.byQualified[ref.QualifiedName]
		if !ok {
			continue
		}

		props, _ := json.Marshal(map[string]string{
			"file_path": ref.FilePath,
			"language":  ref.Language,
			"name":      ref.Name,
		})
		chunkID := ref.ChunkID
		node := &store.Node{
			NodeID:        hash.NodeID(repository, ref.QualifiedName, ref.Kind),
			Repository:    repository,
			QualifiedName: ref.QualifiedName,
			NodeType:      ref.Kind,
			ChunkID:       &chunkID,
			Properties:    props,
		}

		nodeID, err := b.store.UpsertNode(ctx, node)
		if err != nil {
			summary.Errors++
			slog.Warn("node upsert failed",
				"repository", repository,
				"qualified_name", ref.QualifiedName,
				"error", err)
			continue
		}
		sym.nodeID = nodeID
		summary.Nodes++
		logging.EventDebug(ctx, "graph.upsert.node",
			slog.String("qualified_name", ref.QualifiedName),
			slog.String("node_type", ref.Kind))
	}
}

// deriveEdges resolves every import, call and re-export reference of
// every chunk against the symbol table and returns the deduplicated
// edge set. Order follows the chunk listing so a rebuild yields the
// same sequence.
func deriveEdges(refs []store.ChunkRef, table *symbolTable) []pendingEdge {
	seen := make(map[edgeKey]bool)
	var edges []pendingEdge

	add := func(source *symbol, target *symbol, edgeType, raw string) {
		if source.nodeID == uuid.Nil || target.nodeID == uuid.Nil {
			return
		}
		key := edgeKey{source: source.nodeID, target: target.nodeID, edgeType: edgeType}
		if seen[key] {
			return
		}
		seen[key] = true
		edges = append(edges, pendingEdge{key: key, raw: raw})
	}

	for i := range refs {
		ref := &refs[i]
		source, ok := table.byQualified[ref.QualifiedName]
		if !ok || source.nodeID == uuid.Nil {
			continue
		}
		cc := newCallerContext(ref)

		for _, imp := range ref.Imports {
			if target, ok := table.resolve(normalizeRef(imp, ref.FilePath)); ok {
				add(source, target, EdgeTypeImports, imp)
			}
		}
		for _, reexp := range ref.ReExports {
			if target, ok := table.resolve(normalizeRef(reexp, ref.FilePath)); ok {
				add(source, target, EdgeTypeReExports, reexp)
			}
		}
		for _, call := range ref.Calls {
			if target, ok := table.resolveCall(call, cc); ok {
				add(source, target, EdgeTypeCalls, call)
			}
		}
	}
	return edges
}

// insertEdges persists the deduplicated edge set. Re-inserting an edge
// that already exists is a no-op at the store; either way the edge
// counts as present.
func (b *Builder) insertEdges(ctx context.Context, edges []pendingEdge, summary *Summary) {
	for _, pe := range edges {
		props, _ := json.Marshal(map[string]string{"reference": pe.raw})
		edge := &store.Edge{
			EdgeID:       hash.EdgeID(pe.key.source, pe.key.target, pe.key.edgeType),
			SourceNodeID: pe.key.source,
			TargetNodeID: pe.key.target,
			EdgeType:     pe.key.edgeType,
			Properties:   props,
		}
		if _, err := b.store.InsertEdge(ctx, edge); err != nil {
			summary.Errors++
			slog.Warn("edge insert failed",
				"edge_type", pe.key.edgeType,
				"reference", pe.raw,
				"error", err)
			continue
		}
		summary.Edges++
		logging.EventDebug(ctx, "graph.upsert.edge",
			slog.String("edge_type", pe.key.edgeType),
			slog.String("reference", pe.raw))
	}
}

// upsertMetrics writes one computed_metrics row for every node touched
// in this pass. The write is an upsert keyed by node_id: the first pass
// creates the row and every later pass refreshes it in place.
func (b *Builder) upsertMetrics(ctx context.Context, repository string, refs []store.ChunkRef, table *symbolTable, edges []pendingEdge, summary *Summary) {
	coupling := couplingByNode(edges)
	rank := pagerankByNode(edges)

	for i := range refs {
		ref := &refs[i]
		sym, ok := table.byQualified[ref.QualifiedName]
		if !ok || sym.nodeID == uuid.Nil {
			continue
		}
		chunkID := ref.ChunkID
		m := &store.Metrics{
			NodeID:     sym.nodeID,
			ChunkID:    &chunkID,
			Repository: repository,
			Coupling:   coupling[sym.nodeID],
			PageRank:   rank[sym.nodeID],
		}
		if err := b.store.UpsertMetrics(ctx, m); err != nil {
			summary.Errors++
			slog.Warn("metrics upsert failed",
				"repository", repository,
				"qualified_name", ref.QualifiedName,
				"error", err)
		}
	}
}

// couplingByNode counts undirected degree per node: every edge adds one
// to both endpoints. Self-edges count once.
func couplingByNode(edges []pendingEdge) map[uuid.UUID]float64 {
	coupling := make(map[uuid.UUID]float64)
	for _, pe := range edges {
		coupling[pe.key.source]++
		if pe.key.target != pe.key.source {
			coupling[pe.key.target]++
		}
	}
	return coupling
}

// pagerankByNode runs a fixed number of power iterations over the edge
// set. Nodes without outgoing edges spread their rank uniformly, the
// usual dangling-node treatment.
func pagerankByNode(edges []pendingEdge) map[uuid.UUID]float64 {
	outgoing := make(map[uuid.UUID][]uuid.UUID)
	nodes := make(map[uuid.UUID]bool)
	for _, pe := range edges {
		outgoing[pe.key.source] = append(outgoing[pe.key.source], pe.key.target)
		nodes[pe.key.source] = true
		nodes[pe.key.target] = true
	}
	n := len(nodes)
	if n == 0 {
		return map[uuid.UUID]float64{}
	}

	rank := make(map[uuid.UUID]float64, n)
	for id := range nodes {
		rank[id] = 1.0 / float64(n)
	}

	for iter := 0; iter < pagerankIterations; iter++ {
		next := make(map[uuid.UUID]float64, n)
		var dangling float64
		for id := range nodes {
			targets := outgoing[id]
			if len(targets) == 0 {
				dangling += rank[id]
				continue
			}
			share := rank[id] / float64(len(targets))
			for _, t := range targets {
				next[t] += share
			}
		}
		base := (1-pagerankDamping)/float64(n) + pagerankDamping*dangling/float64(n)
		for id := range nodes {
			rank[id] = base + pagerankDamping*next[id]
		}
	}
	return rank
}
