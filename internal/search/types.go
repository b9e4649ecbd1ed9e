// Package search executes hybrid queries over indexed chunks: lexical
// and vector candidate retrieval run in parallel, ranks are fused with
// reciprocal-rank fusion, and fused lists are cached in L2 under a
// canonical query fingerprint.
package search

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/mnemolite/mnemolite/internal/chunk"
	"github.com/mnemolite/mnemolite/internal/config"
	"github.com/mnemolite/mnemolite/internal/store"
)

// Request is one search invocation. Query, Filters, Weights, and Flags
// participate in the cache fingerprint; pagination does not, so every
// page of the same query shares one cached fused list.
type Request struct {
	Query   string              `json:"query"`
	Filters store.SearchFilters `json:"filters"`

	// Limit and Offset paginate the fused list. Limit <= 0 takes the
	// engine default; Offset < 0 reads as 0.
	Limit  int `json:"limit"`
	Offset int `json:"offset"`

	// Weights overrides the configured fusion weights. Nil lets the
	// classifier pick weights for identifier-shaped queries.
	Weights *Weights `json:"weights,omitempty"`

	Flags Flags `json:"flags"`
}

// Weights sets the relative contribution of each retrieval list and
// which lists run at all.
type Weights struct {
	Lexical       float64 `json:"lexical"`
	Vector        float64 `json:"vector"`
	EnableLexical bool    `json:"enable_lexical"`
	EnableVector  bool    `json:"enable_vector"`
}

// DefaultWeights returns the configured-default fusion weights.
func DefaultWeights() Weights {
	return Weights{
		Lexical:       0.4,
		Vector:        0.6,
		EnableLexical: true,
		EnableVector:  true,
	}
}

// Flags carries per-request behaviour toggles.
type Flags struct {
	// Cache permits serving this query from L2 and storing the fused
	// list back. Off bypasses the cache in both directions.
	Cache bool `json:"cache"`
}

// DefaultFlags enables caching.
func DefaultFlags() Flags {
	return Flags{Cache: true}
}

// Result is one fused search hit. Score is the normalized fused score;
// the per-list scores and ranks are preserved for display and
// debugging.
type Result struct {
	ChunkID       uuid.UUID      `json:"chunk_id"`
	Repository    string         `json:"repository"`
	FilePath      string         `json:"file_path"`
	Language      string         `json:"language"`
	Kind          string         `json:"kind"`
	Name          string         `json:"name"`
	QualifiedName string         `json:"qualified_name"`
	StartLine     int            `json:"start_line"`
	EndLine       int            `json:"end_line"`
	SourceCode    string         `json:"source_code"`
	Metadata      chunk.Metadata `json:"metadata"`

	Score        float64 `json:"score"`
	LexicalScore float64 `json:"lexical_score,omitempty"`
	VectorScore  float64 `json:"vector_score,omitempty"`

	// Ranks are 1-indexed positions in the per-list candidate order,
	// 0 when the chunk was absent from that list.
	LexicalRank int `json:"lexical_rank,omitempty"`
	VectorRank  int `json:"vector_rank,omitempty"`
}

// Meta describes how a response was produced.
type Meta struct {
	Total      int   `json:"total"`
	HasNext    bool  `json:"has_next"`
	NextOffset int   `json:"next_offset"`
	LatencyMS  int64 `json:"latency_ms"`
	CacheHit   bool  `json:"cache_hit"`

	// Per-layer candidate counts before fusion.
	LexicalCount int `json:"lexical_count"`
	VectorCount  int `json:"vector_count"`

	// Degraded is set when vector retrieval was requested but
	// unavailable and the response is lexical-only.
	Degraded bool `json:"degraded,omitempty"`
}

// Response is a page of fused results plus execution metadata.
type Response struct {
	Results []Result `json:"results"`
	Meta    Meta     `json:"meta"`
}

// Querier is the candidate-retrieval surface of the store.
type Querier interface {
	LexicalSearch(ctx context.Context, query string, filters store.SearchFilters, limit int) ([]store.SearchCandidate, error)
	VectorSearch(ctx context.Context, vector []float32, filters store.SearchFilters, limit int) ([]store.SearchCandidate, error)
}

// ResultCache is the slice of the shared cache the engine uses. The
// search cache is L2-only; the in-process layer stays reserved for
// chunks.
type ResultCache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) bool
}

// Classifier nudges fusion weights when the caller left them unset.
type Classifier interface {
	// Classify returns the weights suited to the query's shape.
	Classify(query string) Weights
}

// EngineConfig bounds one engine instance.
type EngineConfig struct {
	// DefaultLimit is the page size when the request omits one.
	DefaultLimit int

	// MaxLimit caps the page size.
	MaxLimit int

	// CandidateLimit bounds each per-list retrieval before fusion.
	CandidateLimit int

	// RRFConstant is the fusion smoothing parameter k.
	RRFConstant int

	// Weights are the fusion weights when neither request nor
	// classifier supplies any.
	Weights Weights

	// CacheTTL bounds the lifetime of cached fused lists.
	CacheTTL time.Duration
}

// DefaultEngineConfig returns the stock engine bounds.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		DefaultLimit:   10,
		MaxLimit:       100,
		CandidateLimit: store.DefaultCandidateLimit,
		RRFConstant:    DefaultRRFConstant,
		Weights:        DefaultWeights(),
		CacheTTL:       30 * time.Second,
	}
}

// EngineConfigFrom builds engine bounds from the application config.
func EngineConfigFrom(cfg *config.Config) EngineConfig {
	ec := DefaultEngineConfig()
	if cfg == nil {
		return ec
	}
	if cfg.Search.MaxResults > 0 {
		ec.DefaultLimit = cfg.Search.MaxResults
	}
	if cfg.Search.CandidateLimit > 0 {
		ec.CandidateLimit = cfg.Search.CandidateLimit
	}
	if cfg.Search.RRFConstant > 0 {
		ec.RRFConstant = cfg.Search.RRFConstant
	}
	if cfg.Search.LexicalWeight > 0 || cfg.Search.VectorWeight > 0 {
		ec.Weights = Weights{
			Lexical:       cfg.Search.LexicalWeight,
			Vector:        cfg.Search.VectorWeight,
			EnableLexical: true,
			EnableVector:  true,
		}
	}
	ec.CacheTTL = cfg.SearchTTL()
	return ec
}
