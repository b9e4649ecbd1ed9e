package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Node is one vertex of the code graph.
type Node struct {
	NodeID        uuid.UUID       `db:"node_id" json:"node_id"`
	Repository    string          `db:"repository" json:"repository"`
	QualifiedName string          `db:"qualified_name" json:"qualified_name"`
	NodeType      string          `db:"node_type" json:"node_type"`
	ChunkID       *uuid.UUID      `db:"chunk_id" json:"chunk_id,omitempty"`
	Properties    json.RawMessage `db:"properties" json:"properties,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}

// Edge is one relationship between two nodes.
type Edge struct {
	EdgeID       uuid.UUID       `db:"edge_id" json:"edge_id"`
	SourceNodeID uuid.UUID       `db:"source_node_id" json:"source_node_id"`
	TargetNodeID uuid.UUID       `db:"target_node_id" json:"target_node_id"`
	EdgeType     string          `db:"edge_type" json:"edge_type"`
	Properties   json.RawMessage `db:"properties" json:"properties,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
}

// Metrics holds the computed graph measures for one node.
type Metrics struct {
	NodeID     uuid.UUID  `db:"node_id" json:"node_id"`
	ChunkID    *uuid.UUID `db:"chunk_id" json:"chunk_id,omitempty"`
	Repository string     `db:"repository" json:"repository"`
	Coupling   float64    `db:"coupling" json:"coupling"`
	PageRank   float64    `db:"pagerank" json:"pagerank"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updated_at"`
}

// UpsertNode inserts a node or refreshes an existing one with the same
// identity, and returns the stored node_id either way. Re-indexing an
// unchanged unit therefore keeps its id stable.
func (s *Store) UpsertNode(ctx context.Context, node *Node) (uuid.UUID, error) {
	props := node.Properties
	if len(props) == 0 {
		props = json.RawMessage(`{}`)
	}

	var nodeID uuid.UUID
	err := s.db.QueryRowxContext(ctx, `
		INSERT INTO nodes (node_id, repository, qualified_name, node_type, chunk_id, properties)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (repository, qualified_name, node_type)
		DO UPDATE SET chunk_id = EXCLUDED.chunk_id, properties = EXCLUDED.properties
		RETURNING node_id`,
		node.NodeID, node.Repository, node.QualifiedName, node.NodeType,
		node.ChunkID, []byte(props)).Scan(&nodeID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to upsert node %s: %w", node.QualifiedName, err)
	}
	return nodeID, nil
}

// InsertEdge stores an edge unless one with the same endpoints and type
// already exists. Reports whether a row was written.
func (s *Store) InsertEdge(ctx context.Context, edge *Edge) (bool, error) {
	props := edge.Properties
	if len(props) == 0 {
		props = json.RawMessage(`{}`)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO edges (edge_id, source_node_id, target_node_id, edge_type, properties)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (source_node_id, target_node_id, edge_type) DO NOTHING`,
		edge.EdgeID, edge.SourceNodeID, edge.TargetNodeID, edge.EdgeType,
		[]byte(props))
	if err != nil {
		return false, fmt.Errorf("failed to insert edge: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// UpsertMetrics writes the computed measures for a node, inserting on
// first sight and updating on every pass after that.
func (s *Store) UpsertMetrics(ctx context.Context, m *Metrics) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO computed_metrics (node_id, chunk_id, repository, coupling, pagerank, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (node_id)
		DO UPDATE SET chunk_id = EXCLUDED.chunk_id,
		              coupling = EXCLUDED.coupling,
		              pagerank = EXCLUDED.pagerank,
		              updated_at = now()`,
		m.NodeID, m.ChunkID, m.Repository, m.Coupling, m.PageRank)
	if err != nil {
		return fmt.Errorf("failed to upsert metrics for node %s: %w", m.NodeID, err)
	}
	return nil
}
