package distlock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLease implements Lease with SET NX plus a TTL. Ownership is tagged
// with a random token and release goes through a Lua script, so a lease
// that expired and was re-acquired elsewhere is never released by the
// original holder.
type RedisLease struct {
	client *redis.Client
	key    string
	token  string
	ttl    time.Duration
}

// NewRedisLease creates a Redis-backed lease for key.
func NewRedisLease(client *redis.Client, key string, ttl time.Duration) *RedisLease {
	b := make([]byte, 16)
	rand.Read(b)
	return &RedisLease{
		client: client,
		key:    fmt.Sprintf("lease:%s", key),
		token:  hex.EncodeToString(b),
		ttl:    ttl,
	}
}

// Acquire tries to take the lease. Returns true on success.
func (l *RedisLease) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lease %s: %w", l.key, err)
	}
	return ok, nil
}

var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// Release gives the lease back if this instance still holds it.
func (l *RedisLease) Release(ctx context.Context) error {
	_, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Result()
	return err
}
