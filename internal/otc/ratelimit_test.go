package otc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterWindow(t *testing.T) {
	current := time.Now()
	rl := NewRateLimiter(3, time.Minute)
	rl.now = func() time.Time { return current }

	buyer := "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin"

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow(buyer), "request %d should pass", i+1)
	}
	assert.False(t, rl.Allow(buyer), "4th request in window must be rejected")

	// Another identity is independent.
	assert.True(t, rl.Allow("someoneelse"))

	// Window rolls over.
	current = current.Add(61 * time.Second)
	assert.True(t, rl.Allow(buyer), "request after window rolls must pass")
}

func TestRateLimiterPrune(t *testing.T) {
	current := time.Now()
	rl := NewRateLimiter(1, time.Minute)
	rl.now = func() time.Time { return current }

	rl.Allow("a")
	rl.Allow("b")
	assert.Len(t, rl.entries, 2)

	current = current.Add(2 * time.Minute)
	rl.Prune()
	assert.Empty(t, rl.entries)
}
