package station

import (
	"fmt"

	"github.com/rlima/roomwatch/internal/config"
	"github.com/rlima/roomwatch/internal/hal"
)

// Pins are the claimed I/O lines the station drives.
type Pins struct {
	PIR  hal.DigitalIn
	LEDs map[string]hal.DigitalOut
}

// OpenPins claims the PIR input (pulled up) and the three LED outputs,
// all driven low.
func OpenPins(board hal.Board, cfg config.PinConfig) (Pins, error) {
	pir, err := board.Input(cfg.PIR, true)
	if err != nil {
		return Pins{}, fmt.Errorf("claim PIR line %d: %w", cfg.PIR, err)
	}

	offsets := map[string]int{
		"red":   cfg.LEDRed,
		"green": cfg.LEDGreen,
		"blue":  cfg.LEDBlue,
	}
	leds := make(map[string]hal.DigitalOut, len(offsets))
	for _, name := range config.SwitchNames {
		out, err := board.Output(offsets[name], false)
		if err != nil {
			return Pins{}, fmt.Errorf("claim %s LED line %d: %w", name, offsets[name], err)
		}
		leds[name] = out
	}
	return Pins{PIR: pir, LEDs: leds}, nil
}
