package embed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemolite/mnemolite/internal/config"
)

// =============================================================================
// Provider selection
// =============================================================================

func TestNew_StaticProviderBuildsCachedStatic(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Embedding.Provider = "static"

	embedder, err := New(cfg)
	require.NoError(t, err)
	defer func() { _ = embedder.Close() }()

	cached, ok := embedder.(*CachedEmbedder)
	require.True(t, ok, "default config should wrap the backend in a cache")
	_, ok = cached.Inner().(*StaticEmbedder)
	assert.True(t, ok)
	assert.Equal(t, StaticDimensions, embedder.Dimensions())
}

func TestNew_HTTPProviderBuildsResilientService(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Embedding.Provider = "http"
	cfg.Embedding.Dimensions = 512

	embedder, err := New(cfg)
	require.NoError(t, err)
	defer func() { _ = embedder.Close() }()

	cached, ok := embedder.(*CachedEmbedder)
	require.True(t, ok)
	resilient, ok := cached.Inner().(*ResilientEmbedder)
	require.True(t, ok, "remote provider should carry retry and circuit breaking")
	_, ok = resilient.next.(*ServiceEmbedder)
	assert.True(t, ok)
	assert.Equal(t, 512, embedder.Dimensions())
}

func TestNew_NegativeCacheSizeDisablesCache(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Embedding.Provider = "static"
	cfg.Embedding.CacheSize = -1

	embedder, err := New(cfg)
	require.NoError(t, err)
	defer func() { _ = embedder.Close() }()

	_, ok := embedder.(*CachedEmbedder)
	assert.False(t, ok)
}

func TestNew_UnknownProviderFails(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Embedding.Provider = "quantum"

	_, err := New(cfg)
	require.Error(t, err)
	assert.ErrorContains(t, err, "quantum")
}

func TestParseProvider(t *testing.T) {
	assert.Equal(t, ProviderStatic, ParseProvider("static"))
	assert.Equal(t, ProviderStatic, ParseProvider("STATIC"))
	assert.Equal(t, ProviderHTTP, ParseProvider("http"))
	assert.Equal(t, ProviderHTTP, ParseProvider(""))
	assert.Equal(t, ProviderType("quantum"), ParseProvider("quantum"))
}

// =============================================================================
// GetInfo
// =============================================================================

func TestGetInfo_UnwrapsStackLayers(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Embedding.Provider = "static"

	embedder, err := New(cfg)
	require.NoError(t, err)
	defer func() { _ = embedder.Close() }()

	info := GetInfo(context.Background(), embedder)
	assert.Equal(t, ProviderStatic, info.Provider)
	assert.True(t, info.Cached)
	assert.True(t, info.Available)
	assert.Equal(t, StaticDimensions, info.Dimensions)
}

func TestGetInfo_ReportsServiceModel(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Embedding.Provider = "http"
	cfg.Embedding.Model = "nomic-embed-text"
	cfg.Embedding.CacheSize = -1

	embedder, err := New(cfg)
	require.NoError(t, err)
	defer func() { _ = embedder.Close() }()

	info := GetInfo(context.Background(), embedder)
	assert.Equal(t, ProviderHTTP, info.Provider)
	assert.Equal(t, "nomic-embed-text", info.Model)
	assert.False(t, info.Cached)
}
