// Package presence tracks last-activity timestamps per connection.
package presence

import (
	"sync"
	"time"
)

// Clock records when each connection was last active. It is pure
// bookkeeping; deciding what to do with idle connections is up to the
// caller.
type Clock struct {
	mu   sync.Mutex
	seen map[string]time.Time
	now  func() time.Time
}

// NewClock creates an empty activity clock.
func NewClock() *Clock {
	return &Clock{
		seen: make(map[string]time.Time),
		now:  time.Now,
	}
}

// Touch records activity for the given connection id.
func (c *Clock) Touch(connID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen[connID] = c.now()
}

// LastSeen returns the last recorded activity for a connection.
func (c *Clock) LastSeen(connID string) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.seen[connID]
	return t, ok
}

// Forget drops all bookkeeping for a connection. Safe to call for
// unknown ids.
func (c *Clock) Forget(connID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.seen, connID)
}

// IdleSince returns the ids of all connections whose last activity is
// at or before the cutoff.
func (c *Clock) IdleSince(cutoff time.Time) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var idle []string
	for id, t := range c.seen {
		if !t.After(cutoff) {
			idle = append(idle, id)
		}
	}
	return idle
}

// Len returns the number of tracked connections.
func (c *Clock) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}
