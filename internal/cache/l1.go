package cache

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/mnemolite/mnemolite/internal/chunk"
	"github.com/mnemolite/mnemolite/internal/hash"
	"github.com/mnemolite/mnemolite/internal/logging"
)

// DefaultL1MaxBytes bounds the in-process cache when no budget is
// configured (100 MiB).
const DefaultL1MaxBytes = 100 << 20

// perChunkOverheadBytes approximates the struct and metadata weight of a
// cached chunk beyond its source text and vectors.
const perChunkOverheadBytes = 512

type entry struct {
	fingerprint string
	chunks      []*chunk.Chunk
	sizeBytes   int64
	cachedAt    time.Time
}

// L1 is the in-process chunk cache: strict LRU over file path, bounded
// by a byte budget rather than an entry count. Reads validate the stored
// fingerprint against the source bytes and evict on mismatch, so a stale
// entry is never returned. Purely in-memory; no operation can fail.
type L1 struct {
	mu       sync.Mutex
	entries  *lru.Cache[string, *entry]
	maxBytes int64

	curBytes  atomic.Int64
	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

// NewL1 creates the in-process cache with the given byte budget.
func NewL1(maxBytes int64) *L1 {
	if maxBytes <= 0 {
		maxBytes = DefaultL1MaxBytes
	}
	l := &L1{maxBytes: maxBytes}

	// The entry-count bound backstops the byte budget; eviction is
	// normally driven by bytes. The callback keeps the byte counter
	// honest on every removal path.
	maxEntries := int(maxBytes / 1024)
	if maxEntries < 16 {
		maxEntries = 16
	}
	l.entries, _ = lru.NewWithEvict[string, *entry](maxEntries, func(_ string, e *entry) {
		l.curBytes.Add(-e.sizeBytes)
	})
	return l
}

// Get returns the cached chunks for a file when the stored fingerprint
// matches the source bytes. Any mismatch evicts the entry and reads as a
// miss: the cache fails closed.
//
// The returned slice is the caller's to reorder or truncate; the chunks
// it points at stay shared with the cache and must be treated read-only.
func (l *L1) Get(ctx context.Context, filePath string, source []byte) ([]*chunk.Chunk, bool) {
	fp := hash.Bytes(source)

	l.mu.Lock()
	e, ok := l.entries.Get(filePath)
	if !ok {
		l.mu.Unlock()
		l.misses.Add(1)
		return nil, false
	}
	if e.fingerprint != fp {
		l.entries.Remove(filePath)
		l.mu.Unlock()
		l.misses.Add(1)
		l.evictions.Add(1)
		logging.EventDebug(ctx, "cache.evict",
			slog.String("layer", "L1"),
			slog.String("file", filePath),
			slog.String("reason", "mismatch"))
		return nil, false
	}
	l.mu.Unlock()

	l.hits.Add(1)
	out := make([]*chunk.Chunk, len(e.chunks))
	copy(out, e.chunks)
	return out, true
}

// Put stores chunks for a file, replacing any prior entry, then evicts
// least-recently-used entries until the byte budget holds. An entry
// larger than the whole budget does not stay.
func (l *L1) Put(ctx context.Context, filePath string, source []byte, chunks []*chunk.Chunk) {
	e := &entry{
		fingerprint: hash.Bytes(source),
		chunks:      chunks,
		sizeBytes:   footprint(chunks),
		cachedAt:    time.Now(),
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries.Remove(filePath)
	if evicted := l.entries.Add(filePath, e); evicted {
		l.evictions.Add(1)
		logging.EventDebug(ctx, "cache.evict",
			slog.String("layer", "L1"),
			slog.String("reason", "pressure"))
	}
	l.curBytes.Add(e.sizeBytes)

	for l.curBytes.Load() > l.maxBytes && l.entries.Len() > 0 {
		key, _, ok := l.entries.RemoveOldest()
		if !ok {
			break
		}
		l.evictions.Add(1)
		logging.EventDebug(ctx, "cache.evict",
			slog.String("layer", "L1"),
			slog.String("file", key),
			slog.String("reason", "pressure"))
	}
}

// Invalidate removes the entry for a file if present.
func (l *L1) Invalidate(ctx context.Context, filePath string) {
	l.mu.Lock()
	removed := l.entries.Remove(filePath)
	l.mu.Unlock()

	if removed {
		logging.EventDebug(ctx, "cache.evict",
			slog.String("layer", "L1"),
			slog.String("file", filePath),
			slog.String("reason", "invalidate"))
	}
}

// InvalidateStale removes the entry for a file only when its stored
// fingerprint differs from fingerprint, leaving the current content
// version servable.
func (l *L1) InvalidateStale(ctx context.Context, filePath, fingerprint string) {
	l.mu.Lock()
	e, ok := l.entries.Peek(filePath)
	removed := ok && e.fingerprint != fingerprint && l.entries.Remove(filePath)
	l.mu.Unlock()

	if removed {
		l.evictions.Add(1)
		logging.EventDebug(ctx, "cache.evict",
			slog.String("layer", "L1"),
			slog.String("file", filePath),
			slog.String("reason", "stale"))
	}
}

// Clear empties the cache.
func (l *L1) Clear(ctx context.Context) {
	l.mu.Lock()
	n := l.entries.Len()
	l.entries.Purge()
	l.mu.Unlock()

	if n > 0 {
		logging.EventDebug(ctx, "cache.evict",
			slog.String("layer", "L1"),
			slog.Int("entries", n),
			slog.String("reason", "clear"))
	}
}

// Stats reports the current counters.
func (l *L1) Stats() L1Stats {
	hits := l.hits.Load()
	misses := l.misses.Load()
	size := l.curBytes.Load()

	s := L1Stats{
		Type:      "L1",
		SizeBytes: size,
		MaxBytes:  l.maxBytes,
		Entries:   l.entries.Len(),
		Hits:      hits,
		Misses:    misses,
		Evictions: l.evictions.Load(),
	}
	if total := hits + misses; total > 0 {
		s.HitRate = float64(hits) / float64(total)
	}
	s.Utilization = float64(size) / float64(l.maxBytes)
	return s
}

func footprint(chunks []*chunk.Chunk) int64 {
	var n int64
	for _, c := range chunks {
		n += int64(len(c.SourceCode))
		n += int64(4 * (len(c.EmbeddingText) + len(c.EmbeddingCode)))
		n += perChunkOverheadBytes
	}
	return n
}
