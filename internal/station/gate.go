package station

import "time"

// Gate opens at most once per period. The period counts from the last
// time the gate opened, whatever happened after it opened.
type Gate struct {
	period time.Duration
	last   time.Time
}

// NewGate returns a gate whose first period starts at start.
func NewGate(period time.Duration, start time.Time) *Gate {
	return &Gate{period: period, last: start}
}

// Due reports whether strictly more than one period has passed since
// the gate last opened, and if so restarts the period at now.
func (g *Gate) Due(now time.Time) bool {
	if now.Sub(g.last) <= g.period {
		return false
	}
	g.last = now
	return true
}
