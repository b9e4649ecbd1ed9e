package cache

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemolite/mnemolite/internal/chunk"
	"github.com/mnemolite/mnemolite/internal/hash"
)

// testChunks builds one chunk whose footprint is sourceLen plus the
// per-chunk overhead, making byte-budget arithmetic exact in tests.
func testChunks(name string, sourceLen int) []*chunk.Chunk {
	return []*chunk.Chunk{{
		Name:          name,
		QualifiedName: "pkg." + name,
		Kind:          chunk.KindFunction,
		SourceCode:    strings.Repeat("x", sourceLen),
	}}
}

// =============================================================================
// Get / Put
// =============================================================================

func TestL1_PutThenGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	l1 := NewL1(1 << 20)

	// Given: a cached file
	source := []byte("def f():\n    pass\n")
	chunks := testChunks("f", 100)
	l1.Put(ctx, "/repo/app.py", source, chunks)

	// When: reading with the same source bytes
	got, ok := l1.Get(ctx, "/repo/app.py", source)

	// Then: the stored chunks come back
	require.True(t, ok)
	assert.Equal(t, chunks, got)
}

func TestL1_GetReturnsIndependentSlice(t *testing.T) {
	ctx := context.Background()
	l1 := NewL1(1 << 20)

	source := []byte("def f():\n    pass\n")
	l1.Put(ctx, "/repo/app.py", source, []*chunk.Chunk{
		{Name: "f", QualifiedName: "app.f", Kind: chunk.KindFunction},
		{Name: "g", QualifiedName: "app.g", Kind: chunk.KindFunction},
	})

	// When: a caller reorders the slice a hit returned
	got, ok := l1.Get(ctx, "/repo/app.py", source)
	require.True(t, ok)
	got[0], got[1] = got[1], got[0]

	// Then: a later hit still sees the stored order
	again, ok := l1.Get(ctx, "/repo/app.py", source)
	require.True(t, ok)
	require.Len(t, again, 2)
	assert.Equal(t, "app.f", again[0].QualifiedName)
	assert.Equal(t, "app.g", again[1].QualifiedName)
}

func TestL1_MismatchEvictsAndFailsClosed(t *testing.T) {
	ctx := context.Background()
	l1 := NewL1(1 << 20)

	original := []byte("def f():\n    pass\n")
	l1.Put(ctx, "/repo/app.py", original, testChunks("f", 100))

	// When: reading with changed source bytes
	_, ok := l1.Get(ctx, "/repo/app.py", []byte("def f():\n    return 1\n"))

	// Then: no chunks, and the stale entry is gone even for the
	// fingerprint that stored it
	assert.False(t, ok)

	_, ok = l1.Get(ctx, "/repo/app.py", original)
	assert.False(t, ok)
	assert.Equal(t, 0, l1.Stats().Entries)
}

func TestL1_PutReplacesPriorEntry(t *testing.T) {
	ctx := context.Background()
	l1 := NewL1(1 << 20)

	v1 := []byte("version one")
	v2 := []byte("version two")
	l1.Put(ctx, "/repo/app.py", v1, testChunks("old", 100))
	l1.Put(ctx, "/repo/app.py", v2, testChunks("new", 200))

	// Then: only the newest version is cached, once
	got, ok := l1.Get(ctx, "/repo/app.py", v2)
	require.True(t, ok)
	assert.Equal(t, "new", got[0].Name)

	stats := l1.Stats()
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, int64(200+perChunkOverheadBytes), stats.SizeBytes)
}

// =============================================================================
// Byte budget
// =============================================================================

func TestL1_ByteBudgetEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()

	// Given: a budget holding exactly two 1000-byte entries
	l1 := NewL1(2000)
	srcA := []byte("a")
	srcB := []byte("b")
	srcC := []byte("c")
	l1.Put(ctx, "/repo/a.py", srcA, testChunks("a", 1000-perChunkOverheadBytes))
	l1.Put(ctx, "/repo/b.py", srcB, testChunks("b", 1000-perChunkOverheadBytes))

	// When: touching a, then inserting c over budget
	_, ok := l1.Get(ctx, "/repo/a.py", srcA)
	require.True(t, ok)
	l1.Put(ctx, "/repo/c.py", srcC, testChunks("c", 1000-perChunkOverheadBytes))

	// Then: the least recently used entry (b) was evicted
	_, ok = l1.Get(ctx, "/repo/b.py", srcB)
	assert.False(t, ok)

	_, ok = l1.Get(ctx, "/repo/a.py", srcA)
	assert.True(t, ok)
	_, ok = l1.Get(ctx, "/repo/c.py", srcC)
	assert.True(t, ok)

	stats := l1.Stats()
	assert.Equal(t, 2, stats.Entries)
	assert.LessOrEqual(t, stats.SizeBytes, stats.MaxBytes)
}

func TestL1_EntryLargerThanBudgetDoesNotStay(t *testing.T) {
	ctx := context.Background()
	l1 := NewL1(2000)

	// When: inserting an entry bigger than the whole budget
	l1.Put(ctx, "/repo/huge.py", []byte("huge"), testChunks("huge", 4000))

	// Then: nothing is retained and the byte counter is back to zero
	stats := l1.Stats()
	assert.Equal(t, 0, stats.Entries)
	assert.Equal(t, int64(0), stats.SizeBytes)
}

// =============================================================================
// Invalidate / Clear / Stats
// =============================================================================

func TestL1_InvalidateRemovesEntry(t *testing.T) {
	ctx := context.Background()
	l1 := NewL1(1 << 20)

	source := []byte("content")
	l1.Put(ctx, "/repo/app.py", source, testChunks("f", 100))
	l1.Invalidate(ctx, "/repo/app.py")

	_, ok := l1.Get(ctx, "/repo/app.py", source)
	assert.False(t, ok)
	assert.Equal(t, int64(0), l1.Stats().SizeBytes)
}

func TestL1_InvalidateStaleKeepsCurrentVersion(t *testing.T) {
	ctx := context.Background()
	l1 := NewL1(1 << 20)

	source := []byte("current content")
	l1.Put(ctx, "/repo/app.py", source, testChunks("f", 100))

	// When: dropping stale versions for the same fingerprint
	l1.InvalidateStale(ctx, "/repo/app.py", hash.Bytes(source))

	// Then: the current version still serves
	_, ok := l1.Get(ctx, "/repo/app.py", source)
	assert.True(t, ok)
}

func TestL1_InvalidateStaleDropsSupersededVersion(t *testing.T) {
	ctx := context.Background()
	l1 := NewL1(1 << 20)

	old := []byte("old content")
	l1.Put(ctx, "/repo/app.py", old, testChunks("f", 100))

	// When: a new content version is about to be indexed
	l1.InvalidateStale(ctx, "/repo/app.py", hash.Bytes([]byte("new content")))

	// Then: the superseded entry is gone even for its own bytes
	_, ok := l1.Get(ctx, "/repo/app.py", old)
	assert.False(t, ok)
	assert.Equal(t, 0, l1.Stats().Entries)
}

func TestL1_ClearEmptiesEverything(t *testing.T) {
	ctx := context.Background()
	l1 := NewL1(1 << 20)

	l1.Put(ctx, "/repo/a.py", []byte("a"), testChunks("a", 100))
	l1.Put(ctx, "/repo/b.py", []byte("b"), testChunks("b", 100))
	l1.Clear(ctx)

	stats := l1.Stats()
	assert.Equal(t, 0, stats.Entries)
	assert.Equal(t, int64(0), stats.SizeBytes)
}

func TestL1_StatsCounters(t *testing.T) {
	ctx := context.Background()
	l1 := NewL1(2000)

	source := []byte("content")
	l1.Put(ctx, "/repo/app.py", source, testChunks("f", 1000-perChunkOverheadBytes))

	_, _ = l1.Get(ctx, "/repo/app.py", source)
	_, _ = l1.Get(ctx, "/repo/missing.py", source)

	stats := l1.Stats()
	assert.Equal(t, "L1", stats.Type)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.InDelta(t, 0.5, stats.HitRate, 1e-9)
	assert.Equal(t, int64(1000), stats.SizeBytes)
	assert.Equal(t, int64(2000), stats.MaxBytes)
	assert.InDelta(t, 0.5, stats.Utilization, 1e-9)
}
