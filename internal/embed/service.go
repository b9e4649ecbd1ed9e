package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// ServiceConfig configures the HTTP embedding backend.
type ServiceConfig struct {
	// Endpoint is the full URL requests are posted to.
	Endpoint string

	// Model is an optional model override sent with each request; the
	// service uses its deployment default when empty.
	Model string

	// Dimensions is the deployment's fixed vector width.
	Dimensions int

	// BatchSize is the number of inputs per request.
	BatchSize int

	// BatchTimeout bounds one request round trip.
	BatchTimeout time.Duration

	// PoolSize bounds idle connections kept to the service.
	PoolSize int
}

// ServiceEmbedder calls an external embedding service over HTTP. One
// request carries up to BatchSize inputs for one domain and returns one
// vector per input. Timeouts are per-request contexts, never a
// client-level deadline, so large workloads are bounded per batch.
type ServiceEmbedder struct {
	client    *http.Client
	transport *http.Transport
	cfg       ServiceConfig

	mu     sync.RWMutex
	closed bool
}

var _ Embedder = (*ServiceEmbedder)(nil)

type embedRequest struct {
	Model  string   `json:"model,omitempty"`
	Domain string   `json:"domain"`
	Inputs []string `json:"inputs"`
}

type embedResponse struct {
	Vectors [][]float32 `json:"vectors"`
}

// NewServiceEmbedder creates the HTTP backend. No connection is made
// here; the first Embed call finds out whether the service is up.
func NewServiceEmbedder(cfg ServiceConfig) *ServiceEmbedder {
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = DefaultDimensions
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BatchSize > MaxBatchSize {
		cfg.BatchSize = MaxBatchSize
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = DefaultBatchTimeout
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 4
	}

	transport := &http.Transport{
		MaxIdleConns:        cfg.PoolSize,
		MaxIdleConnsPerHost: cfg.PoolSize,
		MaxConnsPerHost:     cfg.PoolSize * 2,
		IdleConnTimeout:     30 * time.Second,
	}
	return &ServiceEmbedder{
		client:    &http.Client{Transport: transport},
		transport: transport,
		cfg:       cfg,
	}
}

// Embed posts the inputs in batches and returns one vector per input,
// in order. Blank inputs become zero vectors without a service call.
func (e *ServiceEmbedder) Embed(ctx context.Context, domain Domain, inputs []string) ([][]float32, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, fmt.Errorf("embedder is closed")
	}
	e.mu.RUnlock()

	if len(inputs) == 0 {
		return [][]float32{}, nil
	}

	results := make([][]float32, len(inputs))
	pending := make([]int, 0, len(inputs))
	for i, input := range inputs {
		if strings.TrimSpace(input) == "" {
			results[i] = make([]float32, e.cfg.Dimensions)
		} else {
			pending = append(pending, i)
		}
	}

	for start := 0; start < len(pending); start += e.cfg.BatchSize {
		end := start + e.cfg.BatchSize
		if end > len(pending) {
			end = len(pending)
		}
		indices := pending[start:end]

		batch := make([]string, len(indices))
		for j, idx := range indices {
			batch[j] = inputs[idx]
		}

		vectors, err := e.post(ctx, domain, batch)
		if err != nil {
			return nil, err
		}
		for j, idx := range indices {
			results[idx] = vectors[j]
		}
	}
	return results, nil
}

// post performs one bounded service round trip.
func (e *ServiceEmbedder) post(ctx context.Context, domain Domain, batch []string) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.BatchTimeout)
	defer cancel()

	body, err := json.Marshal(embedRequest{
		Model:  e.cfg.Model,
		Domain: string(domain),
		Inputs: batch,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding service unreachable: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("embedding service returned %d: %s", resp.StatusCode, string(msg))
	}

	var result embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(result.Vectors) != len(batch) {
		return nil, fmt.Errorf("embedding service returned %d vectors for %d inputs", len(result.Vectors), len(batch))
	}
	for i, vec := range result.Vectors {
		if len(vec) != e.cfg.Dimensions {
			return nil, fmt.Errorf("vector %d has %d dimensions, deployment is configured for %d", i, len(vec), e.cfg.Dimensions)
		}
	}
	return result.Vectors, nil
}

// Dimensions returns the configured vector width.
func (e *ServiceEmbedder) Dimensions() int {
	return e.cfg.Dimensions
}

// Available probes the service with a minimal request.
func (e *ServiceEmbedder) Available(ctx context.Context) bool {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return false
	}
	e.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := e.post(ctx, DomainText, []string{"ping"})
	return err == nil
}

// Close shuts the connection pool down.
func (e *ServiceEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	e.transport.CloseIdleConnections()
	return nil
}
