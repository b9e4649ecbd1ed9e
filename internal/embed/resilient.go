package embed

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	mnemoerrors "github.com/mnemolite/mnemolite/internal/errors"
)

const (
	retryInitialInterval = 200 * time.Millisecond
	retryMaxInterval     = 2 * time.Second
	retryMaxAttempts     = 3

	breakerInterval = 60 * time.Second
	breakerTimeout  = 30 * time.Second
)

// ResilientEmbedder wraps a backend with exponential-backoff retries
// inside a circuit breaker. Transient failures are retried with jitter;
// a backend that keeps failing trips the circuit and subsequent calls
// fail fast until a half-open probe succeeds.
type ResilientEmbedder struct {
	next    Embedder
	breaker *gobreaker.CircuitBreaker

	// newPolicy builds the retry schedule; tests swap in a zero-wait one.
	newPolicy func() backoff.BackOff
}

var _ Embedder = (*ResilientEmbedder)(nil)

// NewResilientEmbedder wraps next with retry and circuit breaking. One
// breaker request is one Embed call after its retries are spent, so the
// circuit opens only when whole calls fail repeatedly.
func NewResilientEmbedder(next Embedder) *ResilientEmbedder {
	settings := gobreaker.Settings{
		Name:        "embedding",
		MaxRequests: 1,
		Interval:    breakerInterval,
		Timeout:     breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			slog.Warn("embedding circuit state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String())
		},
	}
	return &ResilientEmbedder{
		next:    next,
		breaker: gobreaker.NewCircuitBreaker(settings),
		newPolicy: func() backoff.BackOff {
			policy := backoff.NewExponentialBackOff()
			policy.InitialInterval = retryInitialInterval
			policy.RandomizationFactor = 0.5
			policy.Multiplier = 2.0
			policy.MaxInterval = retryMaxInterval
			return policy
		},
	}
}

// Embed delegates to the backend, retrying transient failures. While
// the circuit is open it fails immediately without touching the
// backend.
func (e *ResilientEmbedder) Embed(ctx context.Context, domain Domain, inputs []string) ([][]float32, error) {
	result, err := e.breaker.Execute(func() (interface{}, error) {
		return e.embedWithRetry(ctx, domain, inputs)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, mnemoerrors.EmbeddingError("embedding service circuit is open", err)
		}
		return nil, mnemoerrors.EmbeddingError("embedding failed after retries", err)
	}
	return result.([][]float32), nil
}

func (e *ResilientEmbedder) embedWithRetry(ctx context.Context, domain Domain, inputs []string) ([][]float32, error) {
	var vectors [][]float32

	operation := func() error {
		var err error
		vectors, err = e.next.Embed(ctx, domain, inputs)
		if err != nil {
			// A dead caller context is not worth retrying; a batch
			// timeout with a live caller is.
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		return nil
	}

	err := backoff.Retry(operation, backoff.WithContext(
		backoff.WithMaxRetries(e.newPolicy(), retryMaxAttempts-1), ctx))
	if err != nil {
		return nil, err
	}
	return vectors, nil
}

// Dimensions returns the backend's vector width.
func (e *ResilientEmbedder) Dimensions() int {
	return e.next.Dimensions()
}

// Available reports whether the backend is reachable. An open circuit
// counts as unavailable without probing.
func (e *ResilientEmbedder) Available(ctx context.Context) bool {
	if e.breaker.State() == gobreaker.StateOpen {
		return false
	}
	return e.next.Available(ctx)
}

// Close closes the backend.
func (e *ResilientEmbedder) Close() error {
	return e.next.Close()
}
