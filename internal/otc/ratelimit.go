// ==============================================
// File: internal/otc/ratelimit.go
// ==============================================
package otc

import (
	"sync"
	"time"
)

// RateLimiter caps swap requests per buyer identity within a fixed
// window. State is in-memory only: losing counters on restart is
// acceptable for a denial-of-abuse control.
type RateLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	entries map[string]*windowEntry
	now     func() time.Time
}

type windowEntry struct {
	count       int
	windowStart time.Time
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:   limit,
		window:  window,
		entries: make(map[string]*windowEntry),
		now:     time.Now,
	}
}

// Allow reports whether the identity may perform another operation in
// the current window, incrementing its counter when allowed.
func (rl *RateLimiter) Allow(identity string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	entry, ok := rl.entries[identity]
	if !ok || now.Sub(entry.windowStart) >= rl.window {
		rl.entries[identity] = &windowEntry{count: 1, windowStart: now}
		return true
	}

	if entry.count >= rl.limit {
		return false
	}
	entry.count++
	return true
}

// Prune drops entries whose window has rolled over, bounding memory for
// long-running processes with many distinct buyers.
func (rl *RateLimiter) Prune() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for identity, entry := range rl.entries {
		if now.Sub(entry.windowStart) >= rl.window {
			delete(rl.entries, identity)
		}
	}
}
