package preflight

import (
	"context"
	"fmt"

	"github.com/mnemolite/mnemolite/internal/cache"
	"github.com/mnemolite/mnemolite/internal/config"
)

// CheckRedis verifies the shared cache is reachable. The cache degrades
// to miss-and-recompute when Redis is down, so this check only warns.
func (c *Checker) CheckRedis(ctx context.Context, cfg *config.Config) CheckResult {
	result := CheckResult{
		Name:     "redis",
		Required: false,
	}

	l2 := cache.NewL2(cache.RedisOptions{
		Addr:           cfg.L2.Addr,
		Password:       cfg.L2.Password,
		DB:             cfg.L2.DB,
		MaxConnections: cfg.L2.MaxConnections,
	})
	defer func() { _ = l2.Close() }()

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := l2.Ping(pingCtx); err != nil {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("unreachable: %v", err)
		result.Details = "Shared cache and indexing locks degrade; single-writer protection is off"
		return result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("connected (%s)", cfg.L2.Addr)
	return result
}
