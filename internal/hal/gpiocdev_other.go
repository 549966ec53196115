//go:build !linux

package hal

import (
	"errors"
	"runtime"
)

// OpenChip is only available on Linux.
func OpenChip(name string) (Board, error) {
	return nil, errors.New("gpiocdev backend is not supported on " + runtime.GOOS)
}
