package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/mnemolite/mnemolite/internal/chunk"
	"github.com/mnemolite/mnemolite/internal/hash"
	"github.com/mnemolite/mnemolite/internal/logging"
)

// Cascade orchestrates the two cache layers. Reads try L1 first and
// promote L2 hits into L1 before returning; writes go through both
// layers, best-effort on L2. With a nil L2 the cascade runs L1-only.
type Cascade struct {
	l1       *L1
	l2       *L2
	chunkTTL time.Duration
}

// NewCascade wires the layers together. chunkTTL bounds the lifetime of
// chunk entries on L2; pass a nil l2 to run without the shared tier.
func NewCascade(l1 *L1, l2 *L2, chunkTTL time.Duration) *Cascade {
	return &Cascade{l1: l1, l2: l2, chunkTTL: chunkTTL}
}

// GetChunks returns the cached chunks for a file at its current content,
// trying L1 then L2. An L2 hit repopulates L1 with the same value before
// returning. Returned chunks may be shared with the in-process layer and
// must be treated read-only.
func (c *Cascade) GetChunks(ctx context.Context, filePath string, source []byte) ([]*chunk.Chunk, bool) {
	if chunks, ok := c.l1.Get(ctx, filePath, source); ok {
		logging.EventDebug(ctx, "cache.hit",
			slog.String("layer", "L1"),
			slog.String("file", filePath))
		return chunks, true
	}

	if c.l2 != nil {
		key := ChunksKey(filePath, hash.Bytes(source))
		if raw, ok := c.l2.Get(ctx, key); ok {
			var chunks []*chunk.Chunk
			if err := json.Unmarshal(raw, &chunks); err != nil {
				// Undecodable entry: drop it rather than serve it again.
				slog.Warn("discarding corrupt shared cache entry",
					slog.String("key", key),
					slog.String("error", err.Error()))
				c.l2.Delete(ctx, key)
			} else {
				c.l1.Put(ctx, filePath, source, chunks)
				logging.EventDebug(ctx, "cache.hit",
					slog.String("layer", "L2"),
					slog.String("file", filePath))
				return chunks, true
			}
		}
	}

	logging.EventDebug(ctx, "cache.miss", slog.String("file", filePath))
	return nil, false
}

// PutChunks writes chunks to both layers under the content fingerprint
// of source. The L2 write-through is best-effort.
func (c *Cascade) PutChunks(ctx context.Context, filePath string, source []byte, chunks []*chunk.Chunk) {
	c.l1.Put(ctx, filePath, source, chunks)

	if c.l2 == nil {
		return
	}
	raw, err := json.Marshal(chunks)
	if err != nil {
		slog.Warn("chunk serialization failed, skipping shared cache write",
			slog.String("file", filePath),
			slog.String("error", err.Error()))
		return
	}
	c.l2.Set(ctx, ChunksKey(filePath, hash.Bytes(source)), raw, c.chunkTTL)
}

// Invalidate drops every cached version of one file from both layers.
func (c *Cascade) Invalidate(ctx context.Context, filePath string) {
	c.l1.Invalidate(ctx, filePath)
	if c.l2 != nil {
		n := c.l2.DeletePattern(ctx, ChunksFilePattern(filePath))
		if n > 0 {
			logging.Event(ctx, "cache.evict",
				slog.String("layer", "L2"),
				slog.String("file", filePath),
				slog.Int("keys", n),
				slog.String("reason", "invalidate"))
		}
	}
}

// InvalidateStale drops every cached version of one file except the one
// matching source. An indexing run calls this first so no reader is
// served a superseded version mid-run, while an unchanged file keeps
// its short-circuit entry.
func (c *Cascade) InvalidateStale(ctx context.Context, filePath string, source []byte) {
	fp := hash.Bytes(source)
	c.l1.InvalidateStale(ctx, filePath, fp)
	if c.l2 != nil {
		n := c.l2.DeletePatternExcept(ctx, ChunksFilePattern(filePath), ChunksKey(filePath, fp))
		if n > 0 {
			logging.Event(ctx, "cache.evict",
				slog.String("layer", "L2"),
				slog.String("file", filePath),
				slog.Int("keys", n),
				slog.String("reason", "stale"))
		}
	}
}

// InvalidateRepository drops every chunk entry under a repository root
// and every cached search result. L1 carries no repository index, so it
// is cleared wholesale.
func (c *Cascade) InvalidateRepository(ctx context.Context, repository string) {
	c.l1.Clear(ctx)
	if c.l2 != nil {
		n := c.l2.DeletePattern(ctx, ChunksRepoPattern(repository))
		n += c.l2.DeletePattern(ctx, SearchPattern())
		logging.Event(ctx, "cache.evict",
			slog.String("layer", "L2"),
			slog.String("repository", repository),
			slog.Int("keys", n),
			slog.String("reason", "invalidate_repository"))
	}
}

// Clear drops every chunk and search entry from both layers. Status and
// lock keys are untouched: clearing caches must not unlock a running
// indexing job.
func (c *Cascade) Clear(ctx context.Context) {
	c.l1.Clear(ctx)
	if c.l2 != nil {
		n := c.l2.DeletePattern(ctx, ChunksPattern())
		n += c.l2.DeletePattern(ctx, SearchPattern())
		logging.Event(ctx, "cache.evict",
			slog.String("layer", "L2"),
			slog.Int("keys", n),
			slog.String("reason", "clear_all"))
	}
}

// Stats merges the per-layer counters. The combined rate is the chance a
// read is served by L1, plus the chance it falls through and L2 serves
// it: H1 + (1-H1)*H2.
func (c *Cascade) Stats(ctx context.Context) CascadeStats {
	s := CascadeStats{L1: c.l1.Stats()}
	s.CombinedHitRate = s.L1.HitRate
	if c.l2 != nil {
		l2 := c.l2.Stats(ctx)
		s.L2 = &l2
		s.CombinedHitRate = s.L1.HitRate + (1-s.L1.HitRate)*l2.HitRate
	}
	return s
}
