package utils

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// IntakeThrottle caps how many intake requests one storage key accepts per hour.
type IntakeThrottle interface {
	Allow(ctx context.Context, key string) bool
}

// NewIntakeThrottle prefers Redis for cross-instance counting and falls back
// to process memory when rc is nil. limit <= 0 disables throttling.
func NewIntakeThrottle(rc *redis.Client, limit int) IntakeThrottle {
	if limit <= 0 {
		return unlimitedThrottle{}
	}
	if rc != nil {
		return &redisThrottle{client: rc, limit: limit}
	}
	return NewMemoryThrottle(limit, time.Now)
}

type unlimitedThrottle struct{}

func (unlimitedThrottle) Allow(context.Context, string) bool { return true }

type redisThrottle struct {
	client *redis.Client
	limit  int
}

func throttleKey(key string, now time.Time) string {
	return "intake:" + key + ":" + now.UTC().Format("2006010215")
}

func (t *redisThrottle) Allow(ctx context.Context, key string) bool {
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	k := throttleKey(key, time.Now())
	n, err := t.client.Incr(ctx, k).Result()
	if err != nil {
		Sugar.Warnf("intake throttle redis incr failed key=%s err=%v", k, err)
		return true // fail-open
	}
	if n == 1 {
		_ = t.client.Expire(ctx, k, time.Hour).Err()
	}
	return n <= int64(t.limit)
}

type windowEntry struct {
	count   int
	expires time.Time
}

// MemoryThrottle is the single-instance fallback: fixed one-hour windows.
type MemoryThrottle struct {
	mu      sync.Mutex
	limit   int
	now     func() time.Time
	windows map[string]*windowEntry
}

func NewMemoryThrottle(limit int, now func() time.Time) *MemoryThrottle {
	return &MemoryThrottle{limit: limit, now: now, windows: map[string]*windowEntry{}}
}

func (t *MemoryThrottle) Allow(_ context.Context, key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	for k, w := range t.windows {
		if now.After(w.expires) {
			delete(t.windows, k)
		}
	}
	k := throttleKey(key, now)
	w, ok := t.windows[k]
	if !ok {
		w = &windowEntry{expires: now.Truncate(time.Hour).Add(time.Hour)}
		t.windows[k] = w
	}
	w.count++
	return w.count <= t.limit
}
