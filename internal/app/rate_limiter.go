package app

import (
	"time"

	"github.com/gatherly/office/internal/domain"
)

// ChatRateLimiter caps how many chat messages one session may push inside a
// sliding window. It is owned by a single room actor, so it needs no locking.
type ChatRateLimiter struct {
	history  map[domain.SessionID][]time.Time
	limit    int
	interval time.Duration
	now      func() time.Time
}

func NewChatRateLimiter(limit int, interval time.Duration) *ChatRateLimiter {
	return &ChatRateLimiter{
		history:  make(map[domain.SessionID][]time.Time),
		limit:    limit,
		interval: interval,
		now:      time.Now,
	}
}

func (rl *ChatRateLimiter) Allow(sid domain.SessionID) bool {
	now := rl.now()
	windowStart := now.Add(-rl.interval)

	attempts := rl.history[sid]
	fresh := attempts[:0]
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}

	if len(fresh) >= rl.limit {
		rl.history[sid] = fresh
		return false
	}

	rl.history[sid] = append(fresh, now)
	return true
}

func (rl *ChatRateLimiter) Forget(sid domain.SessionID) {
	delete(rl.history, sid)
}
