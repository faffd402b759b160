package presence

import (
	"testing"
	"time"
)

func TestClock_TouchAndLastSeen(t *testing.T) {
	c := NewClock()

	if _, ok := c.LastSeen("c1"); ok {
		t.Fatal("expected no record for untouched connection")
	}

	c.Touch("c1")
	if _, ok := c.LastSeen("c1"); !ok {
		t.Fatal("expected record after Touch")
	}
	if c.Len() != 1 {
		t.Errorf("expected 1 tracked connection, got %d", c.Len())
	}
}

func TestClock_IdleSince(t *testing.T) {
	c := NewClock()

	base := time.Now()
	times := map[string]time.Time{
		"old":    base.Add(-2 * time.Minute),
		"recent": base,
	}
	c.now = func() time.Time { return times[""] }
	for id, ts := range times {
		ts := ts
		c.now = func() time.Time { return ts }
		c.Touch(id)
	}

	idle := c.IdleSince(base.Add(-time.Minute))
	if len(idle) != 1 || idle[0] != "old" {
		t.Errorf("expected only %q idle, got %v", "old", idle)
	}
}

func TestClock_Forget(t *testing.T) {
	c := NewClock()
	c.Touch("c1")

	c.Forget("c1")
	c.Forget("c1") // unknown id is a no-op
	if _, ok := c.LastSeen("c1"); ok {
		t.Fatal("expected record gone after Forget")
	}
	if c.Len() != 0 {
		t.Errorf("expected 0 tracked connections, got %d", c.Len())
	}
}
