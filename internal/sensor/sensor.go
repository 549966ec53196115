// Package sensor reads temperature and humidity from the node's climate
// sensor (a DHT22 in the reference wiring).
package sensor

import (
	"context"
	"math"
	"strconv"
	"time"
)

// Reading is one temperature/humidity sample. A channel that could not
// be read is NaN.
type Reading struct {
	Temperature float64   `json:"temperature"` // °C
	Humidity    float64   `json:"humidity"`    // %RH
	Time        time.Time `json:"time"`
}

// Valid reports whether both channels hold a number.
func (r Reading) Valid() bool {
	return !math.IsNaN(r.Temperature) && !math.IsNaN(r.Humidity)
}

// Invalid returns a reading with both channels NaN.
func Invalid(t time.Time) Reading {
	return Reading{Temperature: math.NaN(), Humidity: math.NaN(), Time: t}
}

// Format renders v with one decimal place, the precision published to
// Home Assistant.
func Format(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64)
}

// Reader produces climate readings. Implementations return the reading
// together with any error; channels that failed are NaN.
type Reader interface {
	Read(ctx context.Context) (Reading, error)
}
