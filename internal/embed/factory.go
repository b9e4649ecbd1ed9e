package embed

import (
	"context"
	"fmt"
	"strings"

	"github.com/mnemolite/mnemolite/internal/config"
)

// ProviderType represents an embedding provider
type ProviderType string

const (
	// ProviderHTTP uses an external embedding service (default).
	ProviderHTTP ProviderType = "http"

	// ProviderStatic uses hash-based embeddings (offline and tests).
	ProviderStatic ProviderType = "static"
)

// New builds the embedder stack from configuration: the provider
// backend, retry and circuit breaking for the remote provider, and an
// LRU cache in front unless cache_size is negative.
func New(cfg *config.Config) (Embedder, error) {
	var backend Embedder
	switch ParseProvider(cfg.Embedding.Provider) {
	case ProviderStatic:
		backend = NewStaticEmbedder()

	case ProviderHTTP:
		backend = NewResilientEmbedder(NewServiceEmbedder(ServiceConfig{
			Endpoint:     cfg.Embedding.Endpoint,
			Model:        cfg.Embedding.Model,
			Dimensions:   cfg.Embedding.Dimensions,
			BatchSize:    cfg.Embedding.BatchSize,
			BatchTimeout: cfg.EmbedTimeout(),
		}))

	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Embedding.Provider)
	}

	if cfg.Embedding.CacheSize >= 0 {
		backend = NewCachedEmbedder(backend, cfg.Embedding.CacheSize)
	}
	return backend, nil
}

// ParseProvider converts a string to ProviderType. Unknown values fall
// through unchanged so New can report them.
func ParseProvider(s string) ProviderType {
	switch strings.ToLower(s) {
	case "static":
		return ProviderStatic
	case "http", "":
		return ProviderHTTP
	default:
		return ProviderType(s)
	}
}

// String returns the string representation of ProviderType
func (p ProviderType) String() string {
	return string(p)
}

// EmbedderInfo describes a constructed embedder stack.
type EmbedderInfo struct {
	Provider   ProviderType `json:"provider"`
	Model      string       `json:"model,omitempty"`
	Dimensions int          `json:"dimensions"`
	Cached     bool         `json:"cached"`
	Available  bool         `json:"available"`
}

// GetInfo inspects an embedder, unwrapping cache and resilience layers
// to find the provider underneath.
func GetInfo(ctx context.Context, embedder Embedder) EmbedderInfo {
	info := EmbedderInfo{
		Dimensions: embedder.Dimensions(),
		Available:  embedder.Available(ctx),
	}

	inner := embedder
	if cached, ok := inner.(*CachedEmbedder); ok {
		info.Cached = true
		inner = cached.Inner()
	}
	if resilient, ok := inner.(*ResilientEmbedder); ok {
		inner = resilient.next
	}

	switch backend := inner.(type) {
	case *ServiceEmbedder:
		info.Provider = ProviderHTTP
		info.Model = backend.cfg.Model
	case *StaticEmbedder:
		info.Provider = ProviderStatic
	}
	return info
}
