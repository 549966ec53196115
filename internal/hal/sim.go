package hal

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// SimBoard is an in-memory [Board]. Pin levels can be inspected with
// [SimBoard.Level] and inputs driven with [SimBoard.SetInput].
type SimBoard struct {
	mu      sync.Mutex
	levels  map[int]bool
	outputs map[int]bool
	inputs  map[int]bool
	closed  bool
}

// NewSimBoard creates an empty simulated board.
func NewSimBoard() *SimBoard {
	return &SimBoard{
		levels:  make(map[int]bool),
		outputs: make(map[int]bool),
		inputs:  make(map[int]bool),
	}
}

// Input requests offset as an input. The simulated sensor drives the
// line actively, so pullUp has no effect and the idle level is low.
func (b *SimBoard) Input(offset int, pullUp bool) (DigitalIn, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.claim(offset); err != nil {
		return nil, err
	}
	b.inputs[offset] = true
	return simPin{board: b, offset: offset}, nil
}

// Output requests offset as an output driven to initial.
func (b *SimBoard) Output(offset int, initial bool) (DigitalOut, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.claim(offset); err != nil {
		return nil, err
	}
	b.outputs[offset] = true
	b.levels[offset] = initial
	return simPin{board: b, offset: offset}, nil
}

func (b *SimBoard) claim(offset int) error {
	if b.closed {
		return fmt.Errorf("sim board closed")
	}
	if b.inputs[offset] || b.outputs[offset] {
		return fmt.Errorf("pin %d already requested", offset)
	}
	return nil
}

// SetInput drives the level seen by reads of an input pin. It may be
// called before the pin is requested.
func (b *SimBoard) SetInput(offset int, high bool) {
	b.mu.Lock()
	b.levels[offset] = high
	b.mu.Unlock()
}

// Level returns the current level of any pin.
func (b *SimBoard) Level(offset int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.levels[offset]
}

// Close releases all pins. Further requests fail.
func (b *SimBoard) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	return nil
}

// RunMotionScript toggles offset every interval until ctx is cancelled.
// It stands in for a person walking past the PIR sensor.
func (b *SimBoard) RunMotionScript(ctx context.Context, offset int, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.mu.Lock()
			b.levels[offset] = !b.levels[offset]
			b.mu.Unlock()
		}
	}
}

type simPin struct {
	board  *SimBoard
	offset int
}

func (p simPin) Read() (bool, error) {
	p.board.mu.Lock()
	defer p.board.mu.Unlock()
	if p.board.closed {
		return false, fmt.Errorf("pin %d: board closed", p.offset)
	}
	return p.board.levels[p.offset], nil
}

func (p simPin) Set(high bool) error {
	p.board.mu.Lock()
	defer p.board.mu.Unlock()
	if p.board.closed {
		return fmt.Errorf("pin %d: board closed", p.offset)
	}
	p.board.levels[p.offset] = high
	return nil
}
