// Package api serves the REST adapter: a chi router over the shared
// service surface, JSON in and out, error codes mapped to HTTP status.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/mnemolite/mnemolite/internal/cache"
	"github.com/mnemolite/mnemolite/internal/coordinator"
	"github.com/mnemolite/mnemolite/internal/search"
	"github.com/mnemolite/mnemolite/internal/service"
	"github.com/mnemolite/mnemolite/internal/store"
)

// Service is the invocation surface the routes call;
// *service.Service implements it.
type Service interface {
	IndexRepository(ctx context.Context, repository, rootPath string, opts service.IndexRepositoryOptions) (*coordinator.Summary, error)
	IndexFile(ctx context.Context, repository, filePath string, content []byte) (*service.FileIndexResult, error)
	ReindexFile(ctx context.Context, repository, filePath string, content []byte) (*service.FileIndexResult, error)
	GetIndexingStatus(ctx context.Context, repository string) (coordinator.Status, error)
	Search(ctx context.Context, req search.Request) (*search.Response, error)
	ClearCache(ctx context.Context, scope string) (*service.Acknowledgement, error)
	CacheStats(ctx context.Context) cache.CascadeStats
	RepositoryStats(ctx context.Context, repository string) (*store.RepoStats, error)
}

// Server wraps the http.Server lifecycle.
type Server struct {
	http *http.Server
}

// NewServer builds a server on addr for the given handler.
func NewServer(addr string, handler http.Handler) *Server {
	return &Server{
		http: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Start blocks serving requests until Shutdown. A closed server
// returns nil.
func (s *Server) Start() error {
	slog.Info("http server listening", slog.String("addr", s.http.Addr))
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
