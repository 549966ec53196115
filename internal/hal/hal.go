// Package hal abstracts the node's digital I/O so the station loop can
// run against real GPIO lines or an in-memory simulation.
//
// Two backends are provided:
//   - [OpenChip] uses the Linux GPIO character device (gpiocdev).
//   - [NewSimBoard] keeps pin levels in memory for tests and bench runs.
package hal

import "fmt"

// DigitalIn reads a single logic level. true means high.
type DigitalIn interface {
	Read() (bool, error)
}

// DigitalOut drives a single logic level. true means high.
type DigitalOut interface {
	Set(high bool) error
}

// Board hands out pins and releases them on Close.
type Board interface {
	// Input requests offset as an input, optionally with the internal
	// pull-up enabled.
	Input(offset int, pullUp bool) (DigitalIn, error)
	// Output requests offset as an output driven to initial.
	Output(offset int, initial bool) (DigitalOut, error)
	Close() error
}

// Open returns the board for the named backend.
func Open(backend, chip string) (Board, error) {
	switch backend {
	case "gpiocdev":
		b, err := OpenChip(chip)
		if err != nil {
			return nil, err
		}
		return b, nil
	case "sim":
		return NewSimBoard(), nil
	default:
		return nil, fmt.Errorf("unknown hardware backend %q", backend)
	}
}
