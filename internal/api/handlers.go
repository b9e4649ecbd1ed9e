package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	mnemoerrors "github.com/mnemolite/mnemolite/internal/errors"
	"github.com/mnemolite/mnemolite/internal/search"
	"github.com/mnemolite/mnemolite/internal/service"
)

type handlers struct {
	svc   Service
	ready func(ctx context.Context) error
}

type indexRepositoryRequest struct {
	RootPath       string `json:"root_path,omitempty"`
	Workers        *int   `json:"workers,omitempty"`
	IncludeIgnored bool   `json:"include_ignored,omitempty"`
	ForceReindex   bool   `json:"force_reindex,omitempty"`
}

func (h *handlers) indexRepository(w http.ResponseWriter, r *http.Request) {
	repo, err := repoParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req indexRepositoryRequest
	if err := decodeBody(r, &req, true); err != nil {
		writeError(w, r, err)
		return
	}
	summary, err := h.svc.IndexRepository(r.Context(), repo, req.RootPath, service.IndexRepositoryOptions{
		Workers:        normalizeWorkers(req.Workers),
		IncludeIgnored: req.IncludeIgnored,
		ForceReindex:   req.ForceReindex,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

type indexFileRequest struct {
	Repository string `json:"repository"`
	FilePath   string `json:"file_path"`
	// Content carries the file bytes inline; empty means read from disk.
	Content string `json:"content,omitempty"`
	// Reindex drops every cached version before running.
	Reindex bool `json:"reindex,omitempty"`
}

func (h *handlers) indexFile(w http.ResponseWriter, r *http.Request) {
	var req indexFileRequest
	if err := decodeBody(r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	var content []byte
	if req.Content != "" {
		content = []byte(req.Content)
	}
	var (
		res *service.FileIndexResult
		err error
	)
	if req.Reindex {
		res, err = h.svc.ReindexFile(r.Context(), req.Repository, req.FilePath, content)
	} else {
		res, err = h.svc.IndexFile(r.Context(), req.Repository, req.FilePath, content)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handlers) indexingStatus(w http.ResponseWriter, r *http.Request) {
	repo, err := repoParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	status, err := h.svc.GetIndexingStatus(r.Context(), repo)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *handlers) repositoryStats(w http.ResponseWriter, r *http.Request) {
	repo, err := repoParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	stats, err := h.svc.RepositoryStats(r.Context(), repo)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *handlers) search(w http.ResponseWriter, r *http.Request) {
	// Caching is on unless the body carries a flags object saying
	// otherwise; decoding over the defaults keeps absent fields at them.
	req := search.Request{Flags: search.DefaultFlags()}
	if err := decodeBody(r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	resp, err := h.svc.Search(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) cacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.CacheStats(r.Context()))
}

func (h *handlers) clearCache(w http.ResponseWriter, r *http.Request) {
	ack, err := h.svc.ClearCache(r.Context(), r.URL.Query().Get("scope"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ack)
}

func (h *handlers) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) readyz(w http.ResponseWriter, r *http.Request) {
	if h.ready != nil {
		if err := h.ready(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unavailable",
				"reason": err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// repoParam decodes the {repo} segment. Repository identifiers are
// absolute paths, so callers URL-encode them into one segment.
func repoParam(r *http.Request) (string, error) {
	raw := chi.URLParam(r, "repo")
	repo, err := url.PathUnescape(raw)
	if err != nil || repo == "" {
		return "", mnemoerrors.ValidationError("invalid repository path parameter", err)
	}
	return repo, nil
}

// decodeBody parses a JSON request body. allowEmpty accepts a missing
// body, leaving v zero-valued.
func decodeBody(r *http.Request, v any, allowEmpty bool) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil {
		return nil
	}
	if allowEmpty && errors.Is(err, io.EOF) {
		return nil
	}
	return mnemoerrors.ValidationError("invalid request body: "+err.Error(), err)
}

// normalizeWorkers maps an absent worker count to the configured
// default and clamps explicit requests below one to one.
func normalizeWorkers(requested *int) int {
	if requested == nil {
		return 0
	}
	if *requested < 1 {
		return 1
	}
	return *requested
}
