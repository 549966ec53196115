package notify

import (
	"sync"
	"time"
)

// Throttle enforces a minimum interval between sent notifications.
// Only allowed calls move the window; suppressed calls do not extend it.
type Throttle struct {
	mu       sync.Mutex
	cooldown time.Duration
	last     time.Time
}

// NewThrottle creates a throttle with the given cooldown. A zero or
// negative cooldown allows every call.
func NewThrottle(cooldown time.Duration) *Throttle {
	return &Throttle{cooldown: cooldown}
}

// Allow reports whether a notification may be sent at now and, if so,
// records now as the last send. The first call is always allowed.
func (t *Throttle) Allow(now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.last.IsZero() && now.Sub(t.last) < t.cooldown {
		return false
	}
	t.last = now
	return true
}

// Restore seeds the last send time, e.g. from persisted state.
func (t *Throttle) Restore(last time.Time) {
	t.mu.Lock()
	t.last = last
	t.mu.Unlock()
}

// Last returns the time of the last allowed send.
func (t *Throttle) Last() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}

// Remaining returns how long until Allow would succeed at now.
func (t *Throttle) Remaining(now time.Time) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.last.IsZero() {
		return 0
	}
	if d := t.cooldown - now.Sub(t.last); d > 0 {
		return d
	}
	return 0
}
