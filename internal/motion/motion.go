// Package motion turns raw PIR samples into motion transitions.
package motion

// Transition is a change of the debounced motion state.
type Transition int

const (
	// Started means the input went from idle to motion.
	Started Transition = iota + 1
	// Stopped means the input went from motion to idle.
	Stopped
)

func (t Transition) String() string {
	switch t {
	case Started:
		return "started"
	case Stopped:
		return "stopped"
	default:
		return "none"
	}
}

// Detector is a two-state edge detector. The zero value starts in the
// idle state, so a first sample of "no motion" produces no transition.
// It is not safe for concurrent use; the station loop owns it.
type Detector struct {
	active bool
}

// Observe feeds one sample. It returns the transition and true only
// when the sample differs from the last known state; repeated samples
// of the same state return false.
func (d *Detector) Observe(active bool) (Transition, bool) {
	if active == d.active {
		return 0, false
	}
	d.active = active
	if active {
		return Started, true
	}
	return Stopped, true
}

// Active reports the last known state.
func (d *Detector) Active() bool {
	return d.active
}
