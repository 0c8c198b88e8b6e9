package queue

import (
	"sync"
	"time"

	types "github.com/yungbote/avatarworld/internal/domain/assignments"
)

// recentKeys remembers dedupe keys inserted within the last ttl. It only saves
// store round-trips between rapid planning rounds; the store check decides.
type recentKeys struct {
	mu   sync.Mutex
	ttl  time.Duration
	seen map[types.Key]time.Time
}

func newRecentKeys(ttl time.Duration) *recentKeys {
	return &recentKeys{ttl: ttl, seen: map[types.Key]time.Time{}}
}

func (c *recentKeys) has(key types.Key, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	at, ok := c.seen[key]
	if !ok {
		return false
	}
	if now.Sub(at) >= c.ttl {
		delete(c.seen, key)
		return false
	}
	return true
}

func (c *recentKeys) add(keys []types.Key, now time.Time) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, at := range c.seen {
		if now.Sub(at) >= c.ttl {
			delete(c.seen, k)
		}
	}
	for _, k := range keys {
		c.seen[k] = now
	}
}

func (c *recentKeys) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}
