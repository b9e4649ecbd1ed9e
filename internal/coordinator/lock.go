package coordinator

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mnemolite/mnemolite/internal/cache"
	mnemoerrors "github.com/mnemolite/mnemolite/internal/errors"
	"github.com/mnemolite/mnemolite/internal/logging"
)

// KV is the slice of the shared cache the coordinator uses for the
// repository lock and the indexing status record; *cache.L2 implements
// it.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) bool
	Delete(ctx context.Context, key string) bool
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	CompareDelete(ctx context.Context, key, value string) error
}

// Locker serializes destructive repository work across processes with
// an advisory set-if-not-exists lock. The TTL reclaims locks whose
// holder crashed.
type Locker struct {
	kv  KV
	ttl time.Duration
}

// NewLocker builds a Locker. A nil kv disables cross-process exclusion;
// every acquisition succeeds with a no-op lease.
func NewLocker(kv KV, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Locker{kv: kv, ttl: ttl}
}

// Lease is one held repository lock.
type Lease struct {
	kv         KV
	key        string
	token      string
	repository string
}

// Acquire takes the repository lock. A concurrent holder yields
// lock_denied without attempting any work. An unreachable shared cache
// does not block indexing: the lock is advisory, so the run proceeds
// unlocked with a warning.
func (l *Locker) Acquire(ctx context.Context, repository string) (*Lease, error) {
	if l.kv == nil {
		return &Lease{repository: repository}, nil
	}

	key := cache.LockKey(repository)
	token := uuid.NewString()

	ok, err := l.kv.SetNX(ctx, key, token, l.ttl)
	if err != nil {
		// Unknown lock state is not a held lock.
		slog.Warn("lock state unknown, proceeding unlocked",
			slog.String("repository", repository),
			slog.String("error", err.Error()))
		return &Lease{repository: repository}, nil
	}
	if !ok {
		logging.Event(ctx, "lock.denied", slog.String("repository", repository))
		return nil, mnemoerrors.LockDeniedError(repository)
	}

	logging.Event(ctx, "lock.acquired",
		slog.String("repository", repository),
		slog.Duration("ttl", l.ttl))
	return &Lease{kv: l.kv, key: key, token: token, repository: repository}, nil
}

// Release frees the lock, best-effort. Only the holder's own token is
// deleted, so a lease that outlived its TTL never releases a
// successor's lock.
func (le *Lease) Release(ctx context.Context) {
	if le == nil || le.kv == nil {
		return
	}
	if err := le.kv.CompareDelete(ctx, le.key, le.token); err != nil {
		slog.Warn("lock release failed, TTL will reclaim it",
			slog.String("repository", le.repository),
			slog.String("error", err.Error()))
		return
	}
	logging.Event(ctx, "lock.released", slog.String("repository", le.repository))
}
