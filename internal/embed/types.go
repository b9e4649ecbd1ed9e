// Package embed generates the dual vector embeddings chunks carry: one
// for natural-language retrieval, one for code retrieval. The HTTP
// backend talks to an external embedding service; the static backend
// derives deterministic vectors for tests and offline use. Wrappers add
// retry-with-breaker resilience and an LRU result cache.
package embed

import (
	"context"
	"math"
	"time"
)

// Domain selects which embedding space an input belongs to.
type Domain string

const (
	// DomainText embeds natural-language content (docstrings, queries).
	DomainText Domain = "text"

	// DomainCode embeds source code.
	DomainCode Domain = "code"
)

const (
	// DefaultBatchSize is the number of inputs sent per service request.
	DefaultBatchSize = 32

	// MaxBatchSize caps one request's inputs to bound memory.
	MaxBatchSize = 256

	// DefaultBatchTimeout bounds one service round trip.
	DefaultBatchTimeout = 30 * time.Second

	// DefaultDimensions is the vector width when the deployment does not
	// configure one.
	DefaultDimensions = 768

	// StaticDimensions is the vector width of the offline embedder.
	StaticDimensions = 256

	// DefaultCacheSize is the number of input vectors the cache keeps.
	DefaultCacheSize = 4096
)

// Embedder generates vector embeddings. Implementations are pure
// functions of (domain, input): the same pair always yields the same
// vector, which is what makes caching and cross-process fingerprint
// comparisons sound.
type Embedder interface {
	// Embed returns one vector per input, in input order.
	Embed(ctx context.Context, domain Domain, inputs []string) ([][]float32, error)

	// Dimensions returns the fixed vector width.
	Dimensions() int

	// Available reports whether the backend can serve right now.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}

// normalizeVector scales a vector to unit length.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}

	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}
