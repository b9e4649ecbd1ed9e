package cache

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// Connection and operation bounds. The shared cache is an accelerator; a
// slow or absent server must cost milliseconds, not the pipeline.
const (
	redisDialTimeout = 5 * time.Second
	redisOpTimeout   = 2 * time.Second
	redisScanCount   = 100
)

// RedisOptions configures the L2 connection.
type RedisOptions struct {
	Addr           string
	Password       string
	DB             int
	MaxConnections int
}

// L2 is the shared Redis cache. Every cache operation is best-effort:
// a transport failure counts an error, logs once per outage, and reads
// as a miss. Nothing here ever returns an error to the pipeline; the
// lock primitives at the bottom are the one deliberate exception.
type L2 struct {
	client *redis.Client

	hits   atomic.Int64
	misses atomic.Int64
	errs   atomic.Int64
	down   atomic.Bool
}

// NewL2 builds the shared cache client. The connection is established
// lazily; a server that is down at boot just makes every call a miss.
func NewL2(opts RedisOptions) *L2 {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     opts.MaxConnections,
		DialTimeout:  redisDialTimeout,
		ReadTimeout:  redisOpTimeout,
		WriteTimeout: redisOpTimeout,
	})
	return &L2{client: client}
}

// Get returns the value under key, or a miss when absent or unreachable.
func (l *L2) Get(ctx context.Context, key string) ([]byte, bool) {
	val, err := l.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		l.noteSuccess()
		l.misses.Add(1)
		return nil, false
	}
	if err != nil {
		l.noteFailure("get", err)
		return nil, false
	}
	l.noteSuccess()
	l.hits.Add(1)
	return val, true
}

// Set stores value under key with a TTL, an upper bound on visibility.
// Returns false when the write did not happen.
func (l *L2) Set(ctx context.Context, key string, value []byte, ttl time.Duration) bool {
	if err := l.client.Set(ctx, key, value, ttl).Err(); err != nil {
		l.noteFailure("set", err)
		return false
	}
	l.noteSuccess()
	return true
}

// Delete removes one key.
func (l *L2) Delete(ctx context.Context, key string) bool {
	if err := l.client.Del(ctx, key).Err(); err != nil {
		l.noteFailure("delete", err)
		return false
	}
	l.noteSuccess()
	return true
}

// DeletePattern removes every key matching a glob pattern, scanning in
// pages and deleting in batches. Returns the number of keys removed.
func (l *L2) DeletePattern(ctx context.Context, pattern string) int {
	return l.deleteScan(ctx, pattern, "")
}

// DeletePatternExcept removes every key matching pattern except keep.
// Used to drop stale content versions while leaving the current one
// servable.
func (l *L2) DeletePatternExcept(ctx context.Context, pattern, keep string) int {
	return l.deleteScan(ctx, pattern, keep)
}

func (l *L2) deleteScan(ctx context.Context, pattern, keep string) int {
	deleted := 0
	batch := make([]string, 0, redisScanCount)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		n, err := l.client.Del(ctx, batch...).Result()
		if err != nil {
			l.noteFailure("delete_pattern", err)
		} else {
			deleted += int(n)
		}
		batch = batch[:0]
	}

	iter := l.client.Scan(ctx, 0, pattern, redisScanCount).Iterator()
	for iter.Next(ctx) {
		if keep != "" && iter.Val() == keep {
			continue
		}
		batch = append(batch, iter.Val())
		if len(batch) == redisScanCount {
			flush()
		}
	}
	flush()
	if err := iter.Err(); err != nil {
		l.noteFailure("scan", err)
		return deleted
	}
	l.noteSuccess()
	return deleted
}

// SetNX sets key to value only when the key is absent. Unlike the cache
// reads and writes this surfaces the transport error: lock acquisition
// has to distinguish "held by someone" from "server unreachable".
func (l *L2) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		l.noteFailure("setnx", err)
		return false, err
	}
	l.noteSuccess()
	return ok, nil
}

// compareDeleteScript removes a key only while it still holds the given
// value, so an expired-and-reacquired lock is never released by the old
// holder.
const compareDeleteScript = `if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("del", KEYS[1]) else return 0 end`

// CompareDelete deletes key if it currently holds value.
func (l *L2) CompareDelete(ctx context.Context, key, value string) error {
	if err := l.client.Eval(ctx, compareDeleteScript, []string{key}, value).Err(); err != nil {
		l.noteFailure("compare_delete", err)
		return err
	}
	l.noteSuccess()
	return nil
}

// Ping verifies the server is reachable.
func (l *L2) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

// Stats reports the shared cache counters. Entries is the server-side
// keyspace size; the database index is dedicated to this system.
func (l *L2) Stats(ctx context.Context) L2Stats {
	hits := l.hits.Load()
	misses := l.misses.Load()

	s := L2Stats{
		Type:   "L2",
		Hits:   hits,
		Misses: misses,
		Errors: l.errs.Load(),
	}
	if total := hits + misses; total > 0 {
		s.HitRate = float64(hits) / float64(total)
	}
	if err := l.Ping(ctx); err == nil {
		s.Connected = true
		if n, err := l.client.DBSize(ctx).Result(); err == nil {
			s.Entries = n
		}
	}
	return s
}

// Close releases the connection pool.
func (l *L2) Close() error {
	return l.client.Close()
}

func (l *L2) noteFailure(op string, err error) {
	l.errs.Add(1)
	if l.down.CompareAndSwap(false, true) {
		slog.Warn("shared cache unavailable",
			slog.String("op", op),
			slog.String("error", err.Error()))
	}
}

func (l *L2) noteSuccess() {
	if l.down.CompareAndSwap(true, false) {
		slog.Info("shared cache reachable again")
	}
}
