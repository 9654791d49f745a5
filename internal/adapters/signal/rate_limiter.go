package signal

import (
	"sync"
	"time"

	"github.com/deathboy20/stream-server/internal/core"
)

// JoinRateLimiter throttles join attempts per connection over a sliding
// window. Relay traffic is never limited, only admission attempts.
type JoinRateLimiter struct {
	mu       sync.Mutex
	history  map[core.ConnectionID][]time.Time
	limit    int
	interval time.Duration
}

func NewJoinRateLimiter(limit int, interval time.Duration) *JoinRateLimiter {
	return &JoinRateLimiter{
		history:  make(map[core.ConnectionID][]time.Time),
		limit:    limit,
		interval: interval,
	}
}

func (rl *JoinRateLimiter) Allow(conn core.ConnectionID) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-rl.interval)

	attempts := rl.history[conn]

	fresh := make([]time.Time, 0, len(attempts))
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}

	if len(fresh) >= rl.limit {
		return false
	}

	fresh = append(fresh, now)
	rl.history[conn] = fresh

	return true
}

// Forget drops a connection's history, called when the socket goes away.
func (rl *JoinRateLimiter) Forget(conn core.ConnectionID) {
	rl.mu.Lock()
	delete(rl.history, conn)
	rl.mu.Unlock()
}
