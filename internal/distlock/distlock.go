// Package distlock provides a Redis-backed advisory lock, the same
// client the teacher's HTTP middleware uses for its rate-limit
// counters, repurposed here to stop two orchestrator invocations from
// re-deriving a manifest for the same identity at once.
package distlock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotHeld means Release was called on a lock this holder no longer owns
// (it expired and was re-acquired by someone else).
var ErrNotHeld = errors.New("distlock: lock not held")

// Locker acquires and releases named, TTL-bound advisory locks.
type Locker interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (Lock, bool, error)
}

// Lock is a held advisory lock; call Release when the critical section ends.
type Lock interface {
	Release(ctx context.Context) error
}

// RedisLocker implements Locker with SET NX PX plus a Lua-scripted
// compare-and-delete release, the standard single-instance Redis
// advisory-lock recipe.
type RedisLocker struct {
	client *redis.Client
	prefix string
}

// New builds a RedisLocker bound to client, namespacing keys under prefix
// (e.g. "civicpipe:lock:").
func New(client *redis.Client, prefix string) *RedisLocker {
	return &RedisLocker{client: client, prefix: prefix}
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`)

type redisLock struct {
	client *redis.Client
	key    string
	token  string
}

// Acquire attempts to take the named lock, returning ok=false (no error) if
// another holder currently has it.
func (l *RedisLocker) Acquire(ctx context.Context, name string, ttl time.Duration) (Lock, bool, error) {
	key := l.prefix + name
	token := uuid.New().String()

	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("distlock: acquire %q: %w", name, err)
	}
	if !ok {
		return nil, false, nil
	}
	return &redisLock{client: l.client, key: key, token: token}, true, nil
}

func (l *redisLock) Release(ctx context.Context) error {
	res, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Int64()
	if err != nil {
		return fmt.Errorf("distlock: release %q: %w", l.key, err)
	}
	if res == 0 {
		return ErrNotHeld
	}
	return nil
}

// NoopLocker always grants the lock immediately; it is the Locker used
// in tests and in single-instance deployments that don't run Redis.
type NoopLocker struct{}

func (NoopLocker) Acquire(_ context.Context, _ string, _ time.Duration) (Lock, bool, error) {
	return noopLock{}, true, nil
}

type noopLock struct{}

func (noopLock) Release(_ context.Context) error { return nil }
