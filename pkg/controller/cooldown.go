package controller

import (
	"time"
)

// cooldown suppresses repeat attendance commits for the same user inside
// a fixed window, so camera dwell time cannot produce unbounded duplicate
// rows. A zero window disables suppression.
type cooldown struct {
	window time.Duration
	last   map[string]time.Time
}

func newCooldown(window time.Duration) *cooldown {
	return &cooldown{
		window: window,
		last:   make(map[string]time.Time),
	}
}

// allow reports whether a commit for the user is admitted at time now.
func (c *cooldown) allow(userID string, now time.Time) bool {
	if c.window <= 0 {
		return true
	}
	last, ok := c.last[userID]
	if !ok {
		return true
	}
	return now.Sub(last) >= c.window
}

// record notes a committed attendance mark for the user.
func (c *cooldown) record(userID string, now time.Time) {
	c.last[userID] = now
}
