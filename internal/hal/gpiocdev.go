//go:build linux

package hal

import (
	"fmt"
	"sync"

	"github.com/warthog618/go-gpiocdev"
)

const consumer = "roomwatch"

// Chip is a [Board] backed by a GPIO character device such as
// /dev/gpiochip0.
type Chip struct {
	name string

	mu    sync.Mutex
	lines []*gpiocdev.Line
}

// OpenChip prepares a board on the named chip ("gpiochip0" or a full
// /dev path). Lines are requested lazily by Input and Output.
func OpenChip(name string) (*Chip, error) {
	if name == "" {
		return nil, fmt.Errorf("gpio chip name is empty")
	}
	return &Chip{name: name}, nil
}

// Input requests offset as an input line.
func (c *Chip) Input(offset int, pullUp bool) (DigitalIn, error) {
	opts := []gpiocdev.LineReqOption{gpiocdev.AsInput, gpiocdev.WithConsumer(consumer)}
	if pullUp {
		opts = append(opts, gpiocdev.WithPullUp)
	}
	l, err := gpiocdev.RequestLine(c.name, offset, opts...)
	if err != nil {
		return nil, fmt.Errorf("request input %s:%d: %w", c.name, offset, err)
	}
	c.track(l)
	return &cdevLine{line: l}, nil
}

// Output requests offset as an output line driven to initial.
func (c *Chip) Output(offset int, initial bool) (DigitalOut, error) {
	l, err := gpiocdev.RequestLine(c.name, offset,
		gpiocdev.AsOutput(level(initial)),
		gpiocdev.WithConsumer(consumer),
	)
	if err != nil {
		return nil, fmt.Errorf("request output %s:%d: %w", c.name, offset, err)
	}
	c.track(l)
	return &cdevLine{line: l}, nil
}

// Close releases every requested line.
func (c *Chip) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	for _, l := range c.lines {
		if err := l.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.lines = nil
	return firstErr
}

func (c *Chip) track(l *gpiocdev.Line) {
	c.mu.Lock()
	c.lines = append(c.lines, l)
	c.mu.Unlock()
}

type cdevLine struct {
	line *gpiocdev.Line
}

func (l *cdevLine) Read() (bool, error) {
	v, err := l.line.Value()
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

func (l *cdevLine) Set(high bool) error {
	return l.line.SetValue(level(high))
}

func level(high bool) int {
	if high {
		return 1
	}
	return 0
}
