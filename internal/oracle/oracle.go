// Package oracle provides the optional type oracle: a long-lived subprocess
// answering hover and definition queries over line-delimited JSON. The
// system works fully without it; every failure here degrades to "no answer".
package oracle

import (
	"context"
	"time"
)

// Location is a resolved definition site. Line is 1-indexed, Char a
// 0-indexed column.
type Location struct {
	File string `json:"file"`
	Line int    `json:"line"`
	Char int    `json:"char"`
}

// Oracle answers type queries at source positions. Implementations return
// ok=false for "no answer" in every failure mode; they never error.
type Oracle interface {
	Hover(ctx context.Context, file string, line, char int) (string, bool)
	Definition(ctx context.Context, file string, line, char int) (Location, bool)
	Close()
}

// Config holds oracle settings.
type Config struct {
	// Command launches the oracle subprocess. Empty disables the oracle.
	Command string

	// Timeout bounds every call. Defaults to DefaultTimeout.
	Timeout time.Duration
}

// DefaultTimeout bounds oracle calls when no timeout is configured.
const DefaultTimeout = 3 * time.Second

// New builds an oracle from config: a subprocess client when a command is
// configured, otherwise the nop oracle.
func New(cfg Config) Oracle {
	if cfg.Command == "" {
		return NopOracle{}
	}
	return NewClient(cfg)
}

// NopOracle is the disabled oracle. Everything returns not-found.
type NopOracle struct{}

// Hover always reports no answer.
func (NopOracle) Hover(ctx context.Context, file string, line, char int) (string, bool) {
	return "", false
}

// Definition always reports no answer.
func (NopOracle) Definition(ctx context.Context, file string, line, char int) (Location, bool) {
	return Location{}, false
}

// Close is a no-op.
func (NopOracle) Close() {}
