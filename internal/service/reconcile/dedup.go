package reconcile

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deduper remembers which notification keys have been processed. Claim is
// consulted before any work so a redelivered notification is dropped early;
// Forget releases a claim when processing failed and should be retried.
type Deduper interface {
	Claim(ctx context.Context, key string) (bool, error)
	Forget(ctx context.Context, key string) error
}

// RedisDeduper claims keys with SET NX and a TTL, so every API and worker
// process shares one view.
type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDeduper creates a Redis-backed deduper.
func NewRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{client: client, ttl: ttl}
}

func (d *RedisDeduper) key(k string) string { return "ses-event:" + k }

// Claim returns true if key was not seen within the TTL.
func (d *RedisDeduper) Claim(ctx context.Context, key string) (bool, error) {
	return d.client.SetNX(ctx, d.key(key), 1, d.ttl).Result()
}

// Forget drops a claim.
func (d *RedisDeduper) Forget(ctx context.Context, key string) error {
	return d.client.Del(ctx, d.key(key)).Err()
}

// MemoryDeduper is a process-local Deduper for dev mode and tests.
type MemoryDeduper struct {
	mu   sync.Mutex
	ttl  time.Duration
	seen map[string]time.Time
	now  func() time.Time
}

// NewMemoryDeduper creates an in-process deduper. A zero ttl never expires.
func NewMemoryDeduper(ttl time.Duration) *MemoryDeduper {
	return &MemoryDeduper{ttl: ttl, seen: make(map[string]time.Time), now: time.Now}
}

func (d *MemoryDeduper) Claim(_ context.Context, key string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	if at, ok := d.seen[key]; ok && (d.ttl == 0 || now.Sub(at) < d.ttl) {
		return false, nil
	}
	d.seen[key] = now
	if d.ttl > 0 && len(d.seen)%1024 == 0 {
		d.sweep(now)
	}
	return true, nil
}

func (d *MemoryDeduper) Forget(_ context.Context, key string) error {
	d.mu.Lock()
	delete(d.seen, key)
	d.mu.Unlock()
	return nil
}

// sweep drops expired claims. Caller holds d.mu.
func (d *MemoryDeduper) sweep(now time.Time) {
	for k, at := range d.seen {
		if now.Sub(at) >= d.ttl {
			delete(d.seen, k)
		}
	}
}
