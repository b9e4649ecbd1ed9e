package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"github.com/mnemolite/mnemolite/internal/logging"
	"github.com/mnemolite/mnemolite/internal/metrics"
)

const defaultRequestTimeout = 60 * time.Second

// Dependencies configure the router.
type Dependencies struct {
	// Service answers every /v1 route (required).
	Service Service

	// Metrics serves GET /metrics when set.
	Metrics *metrics.Metrics

	// Ready is consulted by GET /readyz; nil means always ready.
	Ready func(ctx context.Context) error

	// Timeout bounds interactive requests. Repository indexing is
	// exempt; it is bounded by the indexing lock TTL instead.
	Timeout time.Duration
}

// NewRouter assembles the HTTP surface.
func NewRouter(deps Dependencies) (http.Handler, error) {
	if deps.Service == nil {
		return nil, fmt.Errorf("service is required")
	}
	timeout := deps.Timeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	h := &handlers{svc: deps.Service, ready: deps.Ready}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(withTrace)
	r.Use(requestLogger)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Trace-Id"},
		ExposedHeaders: []string{"X-Trace-Id"},
		MaxAge:         300,
	}))

	r.Get("/healthz", h.healthz)
	r.Get("/readyz", h.readyz)
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		// Long-running; not subject to the interactive timeout.
		r.Post("/repositories/{repo}/index", h.indexRepository)

		r.Group(func(r chi.Router) {
			r.Use(chimw.Timeout(timeout))
			r.Post("/files/index", h.indexFile)
			r.Get("/repositories/{repo}/status", h.indexingStatus)
			r.Get("/repositories/{repo}/stats", h.repositoryStats)
			r.Post("/search", h.search)
			r.Get("/cache/stats", h.cacheStats)
			r.Delete("/cache", h.clearCache)
		})
	})

	return r, nil
}

// withTrace guarantees every request carries a trace id: the caller's
// X-Trace-Id, else the chi request id, else a fresh one. The id is
// echoed in the response header and feeds every event logged under
// this request.
func withTrace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		traceID := r.Header.Get("X-Trace-Id")
		if traceID == "" {
			traceID = chimw.GetReqID(ctx)
		}
		if traceID == "" {
			traceID = uuid.NewString()
		}
		ctx = logging.WithTrace(ctx, traceID)
		w.Header().Set("X-Trace-Id", traceID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Info("http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Int("bytes", ww.BytesWritten()),
			slog.Duration("duration", time.Since(start)),
			slog.String("trace_id", logging.Trace(r.Context())))
	})
}
