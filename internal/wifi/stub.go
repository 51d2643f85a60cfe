//go:build !linux

package wifi

import "errors"

// RealRadio is not available on non-Linux platforms.
type RealRadio struct{}

// NewRealRadio returns a stub on non-Linux platforms; every method errors.
func NewRealRadio(iface string) *RealRadio {
	return &RealRadio{}
}

func (r *RealRadio) StartStation(ssid, password string) error {
	return errors.New("wifi: not supported on this platform (requires Linux)")
}

func (r *RealRadio) Status() (Link, error) {
	return Link{}, errors.New("wifi: not supported")
}

func (r *RealRadio) StartAccessPoint(ssid, password string) error {
	return errors.New("wifi: not supported")
}

func (r *RealRadio) Scan() ([]Network, error) {
	return nil, errors.New("wifi: not supported")
}

func (r *RealRadio) Stop() error {
	return nil
}
