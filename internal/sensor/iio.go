package sensor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// IIO channel attributes exposed by the Linux dht11 driver (which also
// handles DHT22). Values are in milli-units.
const (
	iioTemperature = "in_temp_input"
	iioHumidity    = "in_humidityrelative_input"
)

// IIO reads a DHT-family sensor through the kernel's industrial I/O
// sysfs interface, e.g. /sys/bus/iio/devices/iio:device0.
type IIO struct {
	dir string
	now func() time.Time
}

// NewIIO creates a reader for the IIO device directory dir.
func NewIIO(dir string) *IIO {
	return &IIO{dir: dir, now: time.Now}
}

// Read samples both channels. The driver returns EIO when the sensor
// misses a transfer; that channel is reported as NaN.
func (s *IIO) Read(ctx context.Context) (Reading, error) {
	r := Invalid(s.now())
	if err := ctx.Err(); err != nil {
		return r, err
	}

	var errs []error
	if v, err := s.readMilli(iioTemperature); err != nil {
		errs = append(errs, err)
	} else {
		r.Temperature = v
	}
	if v, err := s.readMilli(iioHumidity); err != nil {
		errs = append(errs, err)
	} else {
		r.Humidity = v
	}
	return r, errors.Join(errs...)
}

func (s *IIO) readMilli(attr string) (float64, error) {
	path := filepath.Join(s.dir, attr)
	data, err := os.ReadFile(path)
	if err != nil {
		return math.NaN(), fmt.Errorf("read %s: %w", path, err)
	}
	n, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return math.NaN(), fmt.Errorf("parse %s: %w", path, err)
	}
	return float64(n) / 1000, nil
}
