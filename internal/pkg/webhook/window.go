package webhook

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const seenKeyPrefix = "webhook:seen:"

// RedisWindow is the shared dedup fast path. Events are only remembered
// after successful processing, so a crashed handler never poisons the
// window. Redis errors degrade to misses; the durable store catches what
// the window misses.
type RedisWindow struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisWindow creates a Redis-backed dedup window.
func NewRedisWindow(client *redis.Client, ttl time.Duration) *RedisWindow {
	return &RedisWindow{client: client, ttl: ttl}
}

func (w *RedisWindow) Seen(ctx context.Context, eventID string) bool {
	n, err := w.client.Exists(ctx, seenKeyPrefix+eventID).Result()
	if err != nil {
		log.Printf("dedup window lookup failed for %s: %v", eventID, err)
		return false
	}
	return n > 0
}

func (w *RedisWindow) Remember(ctx context.Context, eventID string) {
	if err := w.client.Set(ctx, seenKeyPrefix+eventID, 1, w.ttl).Err(); err != nil {
		log.Printf("dedup window store failed for %s: %v", eventID, err)
	}
}

// MemoryWindow is an in-process dedup window for tests and single-node
// deployments without Redis.
type MemoryWindow struct {
	mu   sync.Mutex
	ttl  time.Duration
	seen map[string]time.Time
}

// NewMemoryWindow creates an in-memory dedup window.
func NewMemoryWindow(ttl time.Duration) *MemoryWindow {
	return &MemoryWindow{ttl: ttl, seen: make(map[string]time.Time)}
}

func (w *MemoryWindow) Seen(ctx context.Context, eventID string) bool {
	_ = ctx
	w.mu.Lock()
	defer w.mu.Unlock()
	at, ok := w.seen[eventID]
	if !ok {
		return false
	}
	if time.Since(at) > w.ttl {
		delete(w.seen, eventID)
		return false
	}
	return true
}

func (w *MemoryWindow) Remember(ctx context.Context, eventID string) {
	_ = ctx
	w.mu.Lock()
	defer w.mu.Unlock()
	w.seen[eventID] = time.Now()
}
