// Package pipeline runs the per-file indexing pipeline: invalidate,
// detect, cache-check, parse, chunk, extract, embed, persist, cache.
// Every stage is bounded by a timeout and failures are classified so
// callers can tell a skip from a retryable fault.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/mnemolite/mnemolite/internal/chunk"
	"github.com/mnemolite/mnemolite/internal/config"
	"github.com/mnemolite/mnemolite/internal/embed"
	mnemoerrors "github.com/mnemolite/mnemolite/internal/errors"
	"github.com/mnemolite/mnemolite/internal/extract"
	"github.com/mnemolite/mnemolite/internal/logging"
	"github.com/mnemolite/mnemolite/internal/oracle"
)

// binarySniffLen bounds how many leading bytes the binary check reads.
const binarySniffLen = 512

// ChunkWriter is the persistence surface the pipeline needs: the atomic
// per-file chunk replacement.
type ChunkWriter interface {
	ReplaceFileChunks(ctx context.Context, repository, filePath string, chunks []*chunk.Chunk) error
}

// ChunkCache is the cache surface the pipeline needs; *cache.Cascade
// implements it.
type ChunkCache interface {
	GetChunks(ctx context.Context, filePath string, source []byte) ([]*chunk.Chunk, bool)
	PutChunks(ctx context.Context, filePath string, source []byte, chunks []*chunk.Chunk)
	InvalidateStale(ctx context.Context, filePath string, source []byte)
}

// Observer receives per-stage timings; *metrics.Metrics satisfies it.
type Observer interface {
	ObserveStage(stage string, d time.Duration)
}

// Status classifies the outcome of one file.
type Status string

const (
	// StatusIndexed means the file was parsed, persisted and cached.
	StatusIndexed Status = "indexed"
	// StatusCached means the cascade already held the file's chunks;
	// nothing was re-persisted.
	StatusCached Status = "cached"
	// StatusSkipped means the file was rejected by policy before any
	// work happened: too large, binary, unknown language, unreadable.
	StatusSkipped Status = "skipped"
	// StatusFailed means a stage errored after the file was accepted.
	StatusFailed Status = "failed"
)

// Job names one file to index. Content may be pre-read by the caller;
// when nil, the pipeline reads AbsPath (or FilePath when AbsPath is
// empty).
type Job struct {
	Repository string
	FilePath   string // repository-relative, slash-separated
	AbsPath    string // on-disk location
	Content    []byte
}

// cachePath is the key the cascade layers see. Cache entries are keyed
// by on-disk location so repository-wide invalidation can match on the
// root path prefix; FilePath is only a fallback for pre-read content.
func (j *Job) cachePath() string {
	if j.AbsPath != "" {
		return j.AbsPath
	}
	return j.FilePath
}

// FileResult reports what happened to one file.
type FileResult struct {
	FilePath string
	Status   Status
	Language string
	Chunks   []*chunk.Chunk
	Err      error         // classification for skipped/failed
	Warnings []error       // non-fatal degradations, e.g. missing vectors
	Duration time.Duration
}

// ChunkCount returns how many chunks the file produced.
func (r *FileResult) ChunkCount() int {
	return len(r.Chunks)
}

// Dependencies are the injected collaborators for a Pipeline.
type Dependencies struct {
	// Cascade is the chunk cache (required).
	Cascade ChunkCache

	// Store persists chunk sets (required).
	Store ChunkWriter

	// Embedder generates text and code vectors (required; use the
	// static provider offline).
	Embedder embed.Embedder

	// Config is the loaded configuration (required).
	Config *config.Config

	// Chunker parses and splits source files. Defaults to a code
	// chunker honoring chunk.max_lines.
	Chunker *chunk.CodeChunker

	// Extractors produce per-chunk metadata. Defaults to the standard
	// registry.
	Extractors *extract.Registry

	// Oracle answers type queries. Defaults to the disabled oracle.
	Oracle oracle.Oracle

	// Observer receives stage timings. Optional.
	Observer Observer
}

// Pipeline indexes files one at a time. A single Pipeline is not safe
// for concurrent IndexFile calls because the underlying parser keeps
// per-language state; give each worker its own instance.
type Pipeline struct {
	cascade    ChunkCache
	store      ChunkWriter
	embedder   embed.Embedder
	chunker    *chunk.CodeChunker
	extractors *extract.Registry
	oracle     oracle.Oracle
	observer   Observer

	maxFileSize   int64
	batchSize     int
	fileTimeout   time.Duration
	parseTimeout  time.Duration
	oracleTimeout time.Duration
	embedTimeout  time.Duration
}

// New builds a Pipeline, validating required dependencies.
func New(deps Dependencies) (*Pipeline, error) {
	if deps.Cascade == nil {
		return nil, fmt.Errorf("cascade is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if deps.Embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if deps.Config == nil {
		return nil, fmt.Errorf("config is required")
	}

	chunker := deps.Chunker
	if chunker == nil {
		chunker = chunk.NewCodeChunkerWithOptions(chunk.CodeChunkerOptions{
			MaxLines: deps.Config.Chunk.MaxLines,
		})
	}
	extractors := deps.Extractors
	if extractors == nil {
		extractors = extract.NewRegistry()
	}
	typeOracle := deps.Oracle
	if typeOracle == nil {
		typeOracle = oracle.NopOracle{}
	}
	batchSize := deps.Config.Embedding.BatchSize
	if batchSize <= 0 {
		batchSize = 32
	}

	return &Pipeline{
		cascade:       deps.Cascade,
		store:         deps.Store,
		embedder:      deps.Embedder,
		chunker:       chunker,
		extractors:    extractors,
		oracle:        typeOracle,
		observer:      deps.Observer,
		maxFileSize:   deps.Config.Repo.MaxFileSize,
		batchSize:     batchSize,
		fileTimeout:   deps.Config.FileTimeout(),
		parseTimeout:  deps.Config.ParseTimeout(),
		oracleTimeout: deps.Config.OracleTimeout(),
		embedTimeout:  deps.Config.EmbedTimeout(),
	}, nil
}

// Close releases parser resources.
func (p *Pipeline) Close() {
	if p.chunker != nil {
		p.chunker.Close()
	}
}

// IndexFile pushes one file through the full pipeline. The result is
// always non-nil; inspect Status and Err for the outcome. The whole
// pass is bounded by pipeline.file_timeout.
func (p *Pipeline) IndexFile(ctx context.Context, job *Job) *FileResult {
	start := time.Now()
	res := &FileResult{FilePath: job.FilePath, Status: StatusFailed}
	defer func() {
		res.Duration = time.Since(start)
		logging.EventDebug(ctx, "pipeline.file.done",
			slog.String("file", job.FilePath),
			slog.String("status", string(res.Status)),
			slog.Int("chunks", res.ChunkCount()),
			slog.Duration("duration", res.Duration))
	}()

	ctx, cancel := context.WithTimeout(ctx, p.fileTimeout)
	defer cancel()

	content, err := p.loadContent(job)
	if err != nil {
		res.Status = StatusSkipped
		res.Err = mnemoerrors.SkippedError("unreadable: " + err.Error()).
			WithDetail("file", job.FilePath)
		return res
	}
	if reason := p.skipReason(content); reason != "" {
		res.Status = StatusSkipped
		res.Err = mnemoerrors.SkippedError(reason).WithDetail("file", job.FilePath)
		return res
	}

	// S0: drop superseded cache versions of this path so no reader is
	// served stale chunks mid-indexing. The entry for the current
	// content survives and feeds the S2 short-circuit.
	p.cascade.InvalidateStale(ctx, job.cachePath(), content)

	// S1: detect language.
	language, ok := chunk.DefaultRegistry().DetectLanguage(job.FilePath)
	if !ok {
		res.Status = StatusSkipped
		res.Err = mnemoerrors.UnknownLanguageError(job.FilePath)
		return res
	}
	res.Language = language

	// S2: cascade read. A hit short-circuits; the chunks already exist
	// in the store, so nothing is re-persisted.
	if cached, ok := p.cascade.GetChunks(ctx, job.cachePath(), content); ok {
		res.Status = StatusCached
		res.Chunks = cached
		return res
	}

	file := &chunk.FileInput{
		Repository: job.Repository,
		Path:       job.FilePath,
		Content:    content,
		Language:   language,
	}

	// S3: parse under its own budget.
	stageStart := time.Now()
	tree, err := p.parse(ctx, file)
	p.observeStage("parse", stageStart)
	if err != nil {
		res.Err = p.classify(ctx, err, mnemoerrors.ParseError("failed to parse "+job.FilePath, err))
		return res
	}
	defer tree.Close()

	// S4: chunk.
	stageStart = time.Now()
	chunks := p.chunker.ChunkParsed(file, tree)
	p.observeStage("chunk", stageStart)
	if len(chunks) == 0 {
		res.Err = mnemoerrors.ChunkingError("no chunks produced for "+job.FilePath, nil)
		return res
	}

	// S5: metadata, optionally enriched by the oracle.
	stageStart = time.Now()
	p.extractMetadata(ctx, file, tree, chunks)
	p.observeStage("extract", stageStart)

	// S6: embeddings. Failure leaves the vectors empty and the file
	// stays lexically searchable.
	stageStart = time.Now()
	err = p.embedChunks(ctx, chunks)
	p.observeStage("embed", stageStart)
	if err != nil {
		res.Warnings = append(res.Warnings,
			mnemoerrors.EmbeddingError("chunks persisted without vectors", err).
				WithDetail("file", job.FilePath))
	}

	// S7: atomic per-file replacement.
	stageStart = time.Now()
	err = p.store.ReplaceFileChunks(ctx, job.Repository, job.FilePath, chunks)
	p.observeStage("persist", stageStart)
	if err != nil {
		res.Err = p.classify(ctx, err, mnemoerrors.PersistError("failed to persist "+job.FilePath, err))
		return res
	}

	// S8: write-through. Best-effort; the store is authoritative.
	p.cascade.PutChunks(ctx, job.cachePath(), content, chunks)

	res.Status = StatusIndexed
	res.Chunks = chunks
	return res
}

func (p *Pipeline) observeStage(stage string, start time.Time) {
	if p.observer != nil {
		p.observer.ObserveStage(stage, time.Since(start))
	}
}

// loadContent returns the job's content, reading from disk when the
// caller did not pre-read it.
func (p *Pipeline) loadContent(job *Job) ([]byte, error) {
	if job.Content != nil {
		return job.Content, nil
	}
	path := job.AbsPath
	if path == "" {
		path = job.FilePath
	}
	return os.ReadFile(path)
}

// skipReason applies the pre-pipeline skip policy: empty, oversized or
// binary content never enters S0.
func (p *Pipeline) skipReason(content []byte) string {
	if len(content) == 0 {
		return "empty file"
	}
	if p.maxFileSize > 0 && int64(len(content)) > p.maxFileSize {
		return fmt.Sprintf("file exceeds %d bytes", p.maxFileSize)
	}
	if isBinary(content) {
		return "binary content"
	}
	return ""
}

// isBinary sniffs for a null byte in the leading bytes, the same
// heuristic git uses.
func isBinary(content []byte) bool {
	n := len(content)
	if n > binarySniffLen {
		n = binarySniffLen
	}
	return bytes.IndexByte(content[:n], 0) >= 0
}

func (p *Pipeline) parse(ctx context.Context, file *chunk.FileInput) (*chunk.Tree, error) {
	pctx, cancel := context.WithTimeout(ctx, p.parseTimeout)
	defer cancel()
	return p.chunker.Parse(pctx, file)
}

// extractMetadata fills every chunk's metadata from the syntax tree,
// then lets the oracle refine parameter and return types within its own
// per-chunk budget. The content hash set at chunking time is preserved.
func (p *Pipeline) extractMetadata(ctx context.Context, file *chunk.FileInput, tree *chunk.Tree, chunks []*chunk.Chunk) {
	moduleImports := p.extractors.ModuleImports(file.Language, file.Content, tree)

	for _, ch := range chunks {
		md := p.extractors.Extract(ctx, file.Language, file.Content, ch.Syntax, tree, moduleImports)
		md.ContentHash = ch.Metadata.ContentHash
		ch.Metadata = md

		octx, cancel := context.WithTimeout(ctx, p.oracleTimeout)
		extract.EnrichTypes(octx, p.oracle, ch)
		cancel()
	}
}

// embedChunks generates text- and code-domain vectors for every chunk,
// batched. The first batch error abandons the remaining batches; any
// vectors already assigned stay assigned.
func (p *Pipeline) embedChunks(ctx context.Context, chunks []*chunk.Chunk) error {
	for start := 0; start < len(chunks); start += p.batchSize {
		end := start + p.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		textIn := make([]string, len(batch))
		codeIn := make([]string, len(batch))
		for i, ch := range batch {
			textIn[i] = embedTextInput(ch)
			codeIn[i] = ch.SourceCode
		}

		ectx, cancel := context.WithTimeout(ctx, p.embedTimeout)
		textVecs, err := p.embedder.Embed(ectx, embed.DomainText, textIn)
		if err == nil {
			var codeVecs [][]float32
			codeVecs, err = p.embedder.Embed(ectx, embed.DomainCode, codeIn)
			if err == nil {
				for i, ch := range batch {
					ch.EmbeddingText = textVecs[i]
					ch.EmbeddingCode = codeVecs[i]
				}
			}
		}
		cancel()
		if err != nil {
			return err
		}
	}
	return nil
}

// embedTextInput renders a chunk for the text embedding space: its
// dotted path, kind, signature and docstring. The code space gets the
// raw source instead.
func embedTextInput(ch *chunk.Chunk) string {
	var b strings.Builder
	b.WriteString(string(ch.Kind))
	b.WriteString(" ")
	b.WriteString(ch.QualifiedName)
	if ch.Metadata.Signature != "" {
		b.WriteString("\n")
		b.WriteString(ch.Metadata.Signature)
	}
	if ch.Metadata.Docstring != "" {
		b.WriteString("\n")
		b.WriteString(ch.Metadata.Docstring)
	}
	return b.String()
}

// classify maps a stage error to its wire classification, preferring
// the timeout code when the file budget or the stage budget expired.
func (p *Pipeline) classify(ctx context.Context, err error, fallback *mnemoerrors.MnemoError) error {
	if ctx.Err() != nil || isDeadline(err) {
		return mnemoerrors.TimeoutError("pipeline", err)
	}
	return fallback
}

func isDeadline(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
