// Package lock serializes submissions that share a document identifier.
package lock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrHeld is returned when another submission holds the lock.
var ErrHeld = errors.New("lock held by another submission")

const keyPrefix = "invoicevault:submission:"

// releaseScript deletes the key only if it still carries our token, so an
// expired lock re-acquired by someone else is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func key(documentID string) string {
	return keyPrefix + strings.ToUpper(strings.TrimSpace(documentID))
}

// Release frees a held lock.
type Release func(ctx context.Context) error

// RedisLocker implements the lock with SET NX PX.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedis(client *redis.Client, ttl time.Duration) *RedisLocker {
	return &RedisLocker{client: client, ttl: ttl}
}

// Acquire takes the lock for documentID or returns ErrHeld. The lock expires
// after the configured TTL even if never released.
func (l *RedisLocker) Acquire(ctx context.Context, documentID string) (Release, error) {
	k := key(documentID)
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, k, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire submission lock: %w", err)
	}
	if !ok {
		return nil, ErrHeld
	}
	return func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client, []string{k}, token).Err(); err != nil {
			return fmt.Errorf("release submission lock: %w", err)
		}
		return nil
	}, nil
}

// MemoryLocker is the single-process lock used when Redis is not configured.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]time.Time
	ttl  time.Duration
	now  func() time.Time
}

func NewMemory(ttl time.Duration) *MemoryLocker {
	return &MemoryLocker{held: make(map[string]time.Time), ttl: ttl, now: time.Now}
}

func (l *MemoryLocker) Acquire(_ context.Context, documentID string) (Release, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	k := key(documentID)
	now := l.now()
	if exp, ok := l.held[k]; ok && now.Before(exp) {
		return nil, ErrHeld
	}
	exp := now.Add(l.ttl)
	l.held[k] = exp
	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.held[k].Equal(exp) {
			delete(l.held, k)
		}
		return nil
	}, nil
}
