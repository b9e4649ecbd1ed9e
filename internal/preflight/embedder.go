package preflight

import (
	"context"
	"fmt"

	"github.com/mnemolite/mnemolite/internal/config"
	"github.com/mnemolite/mnemolite/internal/embed"
)

// CheckEmbedder verifies the embedding backend can serve. Search falls
// back to lexical-only when vectors are unavailable, so this only warns.
func (c *Checker) CheckEmbedder(ctx context.Context, cfg *config.Config) CheckResult {
	result := CheckResult{
		Name:     "embedder",
		Required: false,
	}

	embedder, err := embed.New(cfg)
	if err != nil {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("invalid embedding configuration: %v", err)
		return result
	}
	defer func() { _ = embedder.Close() }()

	probeCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	info := embed.GetInfo(probeCtx, embedder)
	if !info.Available {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("%s embedder unavailable", info.Provider)
		result.Details = fmt.Sprintf("Endpoint %s did not respond; vector search degrades to lexical-only", cfg.Embedding.Endpoint)
		return result
	}

	result.Status = StatusPass
	if info.Model != "" {
		result.Message = fmt.Sprintf("%s ready (model %s, %d dimensions)", info.Provider, info.Model, info.Dimensions)
	} else {
		result.Message = fmt.Sprintf("%s ready (%d dimensions)", info.Provider, info.Dimensions)
	}
	return result
}
