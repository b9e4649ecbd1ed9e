package coordinator

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/mnemolite/mnemolite/internal/cache"
)

// State is a repository's indexing lifecycle state.
type State string

const (
	StateNotIndexed State = "not_indexed"
	StateInProgress State = "in_progress"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// Status is the ephemeral per-repository indexing record kept in L2.
// It may be lost and re-derived; absence reads as not_indexed.
type Status struct {
	Repository   string     `json:"repository"`
	State        State      `json:"state"`
	TotalFiles   int        `json:"total_files"`
	IndexedFiles int        `json:"indexed_files"`
	StartedAt    time.Time  `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	Error        string     `json:"error,omitempty"`
}

// terminalStatusTTL bounds completed and failed records. In-progress
// records use the lock TTL instead, so a crashed run's status expires
// on the same schedule as its lock.
const terminalStatusTTL = 24 * time.Hour

// StatusStore reads and writes Status records on the shared cache.
// Writes are best-effort; a reader on another process may see a
// slightly stale record.
type StatusStore struct {
	kv            KV
	inProgressTTL time.Duration
}

// NewStatusStore builds a StatusStore. inProgressTTL should match the
// repository lock TTL. A nil kv makes every read not_indexed and every
// write a no-op.
func NewStatusStore(kv KV, inProgressTTL time.Duration) *StatusStore {
	if inProgressTTL <= 0 {
		inProgressTTL = 10 * time.Minute
	}
	return &StatusStore{kv: kv, inProgressTTL: inProgressTTL}
}

// Get returns the repository's indexing status. Absent, expired, or
// undecodable records read as not_indexed.
func (s *StatusStore) Get(ctx context.Context, repository string) Status {
	notIndexed := Status{Repository: repository, State: StateNotIndexed}
	if s.kv == nil {
		return notIndexed
	}

	raw, ok := s.kv.Get(ctx, cache.StatusKey(repository))
	if !ok {
		return notIndexed
	}
	var st Status
	if err := json.Unmarshal(raw, &st); err != nil {
		slog.Warn("discarding corrupt indexing status record",
			slog.String("repository", repository),
			slog.String("error", err.Error()))
		s.kv.Delete(ctx, cache.StatusKey(repository))
		return notIndexed
	}
	return st
}

// Put stores the status record. Terminal states persist longer than the
// in-progress record.
func (s *StatusStore) Put(ctx context.Context, st Status) {
	if s.kv == nil {
		return
	}
	raw, err := json.Marshal(st)
	if err != nil {
		return
	}
	ttl := s.inProgressTTL
	if st.State == StateCompleted || st.State == StateFailed {
		ttl = terminalStatusTTL
	}
	s.kv.Set(ctx, cache.StatusKey(st.Repository), raw, ttl)
}
