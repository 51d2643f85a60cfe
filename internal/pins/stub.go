//go:build !linux

package pins

import "errors"

// RealDriver is not available on non-Linux platforms.
type RealDriver struct{}

// NewRealDriver returns an error on non-Linux platforms.
func NewRealDriver(mapping Mapping, resetLine int) (*RealDriver, error) {
	return nil, errors.New("pins: not supported on this platform (requires Linux)")
}

// Set is not implemented on non-Linux platforms.
func (d *RealDriver) Set(line int, high bool) error {
	return errors.New("pins: not supported")
}

// ResetHeld is not implemented on non-Linux platforms.
func (d *RealDriver) ResetHeld() (bool, error) {
	return false, errors.New("pins: not supported")
}

// Close is not implemented on non-Linux platforms.
func (d *RealDriver) Close() error {
	return nil
}
