// Package distlock provides the per-campaign tick lease. A scheduling tick
// for a campaign must hold the lease before selecting a batch, so a
// horizontally scaled deployment never double-dispatches the same batch.
package distlock

import (
	"context"
	"database/sql"
	"hash/fnv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Lease is a single-holder distributed lock. A Lease instance is not safe
// for concurrent use; each goroutine takes its own.
type Lease interface {
	// Acquire tries to take the lease. Returns true on success.
	Acquire(ctx context.Context) (bool, error)
	// Release gives the lease back if this instance still holds it.
	Release(ctx context.Context) error
}

// New creates a lease using the best available backend. With a Redis client
// it uses SET NX with a TTL (preferred for cross-host deployments);
// otherwise it falls back to PostgreSQL advisory locks.
func New(redisClient *redis.Client, db *sql.DB, key string, ttl time.Duration) Lease {
	if redisClient != nil {
		return NewRedisLease(redisClient, key, ttl)
	}
	return NewAdvisoryLease(db, key)
}

// AdvisoryLease implements Lease with pg_try_advisory_lock. The lock is
// session-scoped, so it is released automatically if the DB connection
// drops, which gives crash-safety comparable to a Redis TTL.
type AdvisoryLease struct {
	db     *sql.DB
	lockID int64
}

// NewAdvisoryLease derives a deterministic advisory lock ID from key.
func NewAdvisoryLease(db *sql.DB, key string) *AdvisoryLease {
	h := fnv.New64a()
	h.Write([]byte(key))
	return &AdvisoryLease{db: db, lockID: int64(h.Sum64())}
}

// Acquire tries the advisory lock without blocking.
func (l *AdvisoryLease) Acquire(ctx context.Context) (bool, error) {
	var ok bool
	err := l.db.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", l.lockID).Scan(&ok)
	return ok, err
}

// Release unlocks the advisory lock.
func (l *AdvisoryLease) Release(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", l.lockID)
	return err
}
