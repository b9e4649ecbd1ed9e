package search

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mnemolite/mnemolite/internal/cache"
	"github.com/mnemolite/mnemolite/internal/embed"
	mnemoerrors "github.com/mnemolite/mnemolite/internal/errors"
	"github.com/mnemolite/mnemolite/internal/hash"
	"github.com/mnemolite/mnemolite/internal/logging"
	"github.com/mnemolite/mnemolite/internal/metrics"
	"github.com/mnemolite/mnemolite/internal/store"
)

// Engine runs hybrid search. One engine serves a process; it holds no
// per-request state and is safe for concurrent use.
type Engine struct {
	querier    Querier
	embedder   embed.Embedder
	cache      ResultCache
	fusion     *fuser
	classifier Classifier
	metrics    *metrics.Metrics
	cfg        EngineConfig
}

// Option configures the engine.
type Option func(*Engine)

// WithClassifier sets a query classifier consulted when a request
// carries no explicit weights.
func WithClassifier(c Classifier) Option {
	return func(e *Engine) { e.classifier = c }
}

// WithMetrics wires search latency observation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine builds a search engine. The querier is required. A nil
// embedder disables vector retrieval (every response degrades to
// lexical-only); a nil result cache disables query caching.
func NewEngine(querier Querier, embedder embed.Embedder, resultCache ResultCache, cfg EngineConfig, opts ...Option) (*Engine, error) {
	if querier == nil {
		return nil, fmt.Errorf("search: querier is required")
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = DefaultEngineConfig().DefaultLimit
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = DefaultEngineConfig().MaxLimit
	}
	if cfg.CandidateLimit <= 0 {
		cfg.CandidateLimit = store.DefaultCandidateLimit
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultEngineConfig().CacheTTL
	}
	if cfg.Weights == (Weights{}) {
		cfg.Weights = DefaultWeights()
	}
	e := &Engine{
		querier:  querier,
		embedder: embedder,
		cache:    resultCache,
		fusion:   newFuser(cfg.RRFConstant),
		cfg:      cfg,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// fingerprintInput is the canonical value hashed into the cache key.
// Pagination is deliberately absent: pages of one query share an entry.
type fingerprintInput struct {
	Query   string              `json:"query"`
	Filters store.SearchFilters `json:"filters"`
	Weights Weights             `json:"weights"`
	Flags   Flags               `json:"flags"`
}

// cachedList is the L2 entry: the whole fused list plus the counters
// needed to reconstruct response metadata.
type cachedList struct {
	Results      []Result `json:"results"`
	LexicalCount int      `json:"lexical_count"`
	VectorCount  int      `json:"vector_count"`
	Degraded     bool     `json:"degraded,omitempty"`
}

// Search executes one hybrid query: cache probe, parallel candidate
// retrieval, rank fusion, write-through, pagination. Vector-side
// failures degrade the response to lexical-only rather than failing it.
func (e *Engine) Search(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()

	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, mnemoerrors.ValidationError("search query must not be empty", nil)
	}

	weights := e.effectiveWeights(query, req.Weights)
	if !weights.EnableLexical && !weights.EnableVector {
		return nil, mnemoerrors.ValidationError("at least one retrieval layer must be enabled", nil)
	}

	limit := req.Limit
	if limit <= 0 {
		limit = e.cfg.DefaultLimit
	}
	if limit > e.cfg.MaxLimit {
		limit = e.cfg.MaxLimit
	}
	offset := req.Offset
	if offset < 0 {
		offset = 0
	}

	key := cache.SearchKey(hash.Canonical(fingerprintInput{
		Query:   query,
		Filters: req.Filters,
		Weights: weights,
		Flags:   req.Flags,
	}))

	if req.Flags.Cache && e.cache != nil {
		if raw, ok := e.cache.Get(ctx, key); ok {
			var entry cachedList
			if err := json.Unmarshal(raw, &entry); err == nil {
				logging.EventDebug(ctx, "cache.hit",
					slog.String("layer", "L2"),
					slog.String("query", query))
				resp := e.page(entry, limit, offset)
				resp.Meta.CacheHit = true
				resp.Meta.LatencyMS = time.Since(start).Milliseconds()
				e.metrics.ObserveSearch(true, time.Since(start))
				return resp, nil
			}
			// Undecodable entry: recompute and overwrite below.
			slog.Warn("discarding corrupt search cache entry", slog.String("key", key))
		}
	}

	entry, err := e.retrieve(ctx, query, req.Filters, weights)
	if err != nil {
		return nil, err
	}

	if req.Flags.Cache && e.cache != nil {
		if raw, err := json.Marshal(entry); err == nil {
			e.cache.Set(ctx, key, raw, e.cfg.CacheTTL)
		}
	}

	resp := e.page(entry, limit, offset)
	resp.Meta.LatencyMS = time.Since(start).Milliseconds()
	e.metrics.ObserveSearch(false, time.Since(start))
	logging.EventDebug(ctx, "cache.miss", slog.String("query", query))
	return resp, nil
}

// retrieve runs the enabled candidate queries in parallel and fuses
// their ranks. The lexical and vector legs fail independently; the
// search as a whole fails only when every enabled leg failed.
func (e *Engine) retrieve(ctx context.Context, query string, filters store.SearchFilters, weights Weights) (cachedList, error) {
	var (
		lexical, vector []store.SearchCandidate
		lexErr, vecErr  error
	)

	g, gctx := errgroup.WithContext(ctx)

	if weights.EnableLexical {
		g.Go(func() error {
			lexical, lexErr = e.querier.LexicalSearch(gctx, query, filters, e.cfg.CandidateLimit)
			return nil
		})
	}

	wantVector := weights.EnableVector && e.embedder != nil
	if wantVector {
		g.Go(func() error {
			vecs, err := e.embedder.Embed(gctx, embed.DomainText, []string{query})
			if err != nil {
				vecErr = mnemoerrors.EmbeddingError("query embedding failed", err)
				return nil
			}
			if len(vecs) != 1 {
				vecErr = mnemoerrors.EmbeddingError(fmt.Sprintf("expected 1 query vector, got %d", len(vecs)), nil)
				return nil
			}
			vector, vecErr = e.querier.VectorSearch(gctx, vecs[0], filters, e.cfg.CandidateLimit)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return cachedList{}, err
	}

	degraded := false
	if weights.EnableVector && !wantVector {
		degraded = true
	}
	if vecErr != nil {
		slog.Warn("vector retrieval unavailable, serving lexical-only",
			slog.String("query", query),
			slog.String("error", vecErr.Error()))
		degraded = true
		vector = nil
	}

	if lexErr != nil {
		if !wantVector || vecErr != nil {
			return cachedList{}, mnemoerrors.Wrap(mnemoerrors.ErrCodeStoreUnavailable, lexErr)
		}
		// Vector side succeeded; degrade the lexical leg instead.
		slog.Warn("lexical retrieval failed, serving vector-only",
			slog.String("query", query),
			slog.String("error", lexErr.Error()))
		lexical = nil
	}

	return cachedList{
		Results:      e.fusion.fuse(lexical, vector, weights),
		LexicalCount: len(lexical),
		VectorCount:  len(vector),
		Degraded:     degraded,
	}, nil
}

// page slices one window out of the fused list.
func (e *Engine) page(entry cachedList, limit, offset int) *Response {
	total := len(entry.Results)

	var window []Result
	if offset < total {
		end := offset + limit
		if end > total {
			end = total
		}
		window = entry.Results[offset:end]
	} else {
		window = []Result{}
	}

	meta := Meta{
		Total:        total,
		HasNext:      offset+len(window) < total,
		LexicalCount: entry.LexicalCount,
		VectorCount:  entry.VectorCount,
		Degraded:     entry.Degraded,
	}
	if meta.HasNext {
		meta.NextOffset = offset + len(window)
	}
	return &Response{Results: window, Meta: meta}
}

// effectiveWeights resolves the fusion weights for one request:
// explicit request weights win, then the classifier, then config.
func (e *Engine) effectiveWeights(query string, reqWeights *Weights) Weights {
	if reqWeights != nil {
		return *reqWeights
	}
	if e.classifier != nil {
		return e.classifier.Classify(query)
	}
	return e.cfg.Weights
}
