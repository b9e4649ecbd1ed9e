// Package metrics exposes the prometheus instruments for the indexing
// and search paths. Hot-path counters live on Metrics and are recorded
// at the call sites; cache counters are owned by the cache layers and
// bridged at scrape time by CascadeCollector.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mnemolite"

// Metrics holds the process registry and the actively-recorded
// instruments. Construct one per process with New and serve it via
// Handler.
type Metrics struct {
	registry *prometheus.Registry

	// FilesIndexed counts pipeline completions by outcome:
	// indexed, cached, skipped, failed.
	FilesIndexed *prometheus.CounterVec

	// StageDuration observes per-stage pipeline latency
	// (parse, chunk, extract, embed, persist).
	StageDuration *prometheus.HistogramVec

	// FileDuration observes whole-file pipeline latency by outcome.
	FileDuration *prometheus.HistogramVec

	// ChunksIndexed counts chunks written to the store.
	ChunksIndexed prometheus.Counter

	// SearchLatency observes end-to-end search latency, labelled by
	// cache outcome (hit or miss).
	SearchLatency *prometheus.HistogramVec

	// LockDenials counts repository lock acquisitions refused because
	// another indexing run held the lock.
	LockDenials prometheus.Counter

	// GraphBuilds observes graph construction latency per repository
	// pass.
	GraphBuilds prometheus.Histogram
}

// New creates a Metrics with its own registry, pre-registering the Go
// runtime and process collectors. A dedicated registry keeps tests from
// tripping over duplicate registration on the global default.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: registry,
		FilesIndexed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_files_total",
			Help:      "Files pushed through the indexing pipeline, by outcome.",
		}, []string{"outcome"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_stage_duration_seconds",
			Help:      "Duration of individual pipeline stages.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~16s
		}, []string{"stage"}),
		FileDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_file_duration_seconds",
			Help:      "Whole-file pipeline duration, by outcome.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14), // 5ms to ~80s
		}, []string{"outcome"}),
		ChunksIndexed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_indexed_total",
			Help:      "Chunks written to the store.",
		}),
		SearchLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "End-to-end search latency, by cache outcome.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		}, []string{"cache"}),
		LockDenials: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lock_denials_total",
			Help:      "Repository lock acquisitions denied by a concurrent run.",
		}),
		GraphBuilds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "graph_build_duration_seconds",
			Help:      "Graph construction duration per repository pass.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		}),
	}

	registry.MustRegister(
		m.FilesIndexed,
		m.StageDuration,
		m.FileDuration,
		m.ChunksIndexed,
		m.SearchLatency,
		m.LockDenials,
		m.GraphBuilds,
	)
	return m
}

// MustRegister adds extra collectors (e.g. CascadeCollector) to the
// registry.
func (m *Metrics) MustRegister(cs ...prometheus.Collector) {
	m.registry.MustRegister(cs...)
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the scrape endpoint for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveStage records one pipeline stage duration. Implements the
// pipeline observer hook; safe on a nil receiver so wiring stays
// optional.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// ObserveFile records one pipeline file completion.
func (m *Metrics) ObserveFile(outcome string, chunks int, d time.Duration) {
	if m == nil {
		return
	}
	m.FilesIndexed.WithLabelValues(outcome).Inc()
	m.FileDuration.WithLabelValues(outcome).Observe(d.Seconds())
	if chunks > 0 {
		m.ChunksIndexed.Add(float64(chunks))
	}
}

// ObserveSearch records one search completion.
func (m *Metrics) ObserveSearch(cacheHit bool, d time.Duration) {
	if m == nil {
		return
	}
	label := "miss"
	if cacheHit {
		label = "hit"
	}
	m.SearchLatency.WithLabelValues(label).Observe(d.Seconds())
}

// LockDenied records one refused lock acquisition.
func (m *Metrics) LockDenied() {
	if m == nil {
		return
	}
	m.LockDenials.Inc()
}

// ObserveGraphBuild records one graph construction pass.
func (m *Metrics) ObserveGraphBuild(d time.Duration) {
	if m == nil {
		return
	}
	m.GraphBuilds.Observe(d.Seconds())
}
