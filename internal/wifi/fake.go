package wifi

// FakeRadio is a test double with scripted link behavior.
type FakeRadio struct {
	// ConnectAfter is the number of Status polls that report the link
	// down before it reports connected. Negative means never connect.
	ConnectAfter int

	// IP is reported by Status once connected.
	IP string

	// StationError, if set, will be returned by StartStation.
	StationError error

	// StatusError, if set, will be returned by Status.
	StatusError error

	// APError, if set, will be returned by StartAccessPoint.
	APError error

	// ScanResults are returned by Scan.
	ScanResults []Network

	// ScanError, if set, will be returned by Scan.
	ScanError error

	// StationCalls records every (ssid, password) passed to StartStation.
	StationCalls []Credentials

	// APCalls records every (ssid, password) passed to StartAccessPoint.
	APCalls []Credentials

	// StatusPolls counts Status calls since the last StartStation.
	StatusPolls int

	// Stopped tracks if Stop was called.
	Stopped bool
}

// Credentials records one connect or AP request.
type Credentials struct {
	SSID     string
	Password string
}

// NewFakeRadio creates a FakeRadio that connects on the first Status poll.
func NewFakeRadio() *FakeRadio {
	return &FakeRadio{IP: "192.168.1.50"}
}

// StartStation records the credentials and resets the poll counter.
func (f *FakeRadio) StartStation(ssid, password string) error {
	if f.StationError != nil {
		return f.StationError
	}
	f.StationCalls = append(f.StationCalls, Credentials{SSID: ssid, Password: password})
	f.StatusPolls = 0
	return nil
}

// Status reports the scripted link state.
func (f *FakeRadio) Status() (Link, error) {
	if f.StatusError != nil {
		return Link{}, f.StatusError
	}
	f.StatusPolls++
	if f.ConnectAfter < 0 || f.StatusPolls <= f.ConnectAfter {
		return Link{}, nil
	}
	return Link{Connected: true, IP: f.IP}, nil
}

// StartAccessPoint records the AP identity.
func (f *FakeRadio) StartAccessPoint(ssid, password string) error {
	if f.APError != nil {
		return f.APError
	}
	f.APCalls = append(f.APCalls, Credentials{SSID: ssid, Password: password})
	return nil
}

// Scan returns the scripted results.
func (f *FakeRadio) Scan() ([]Network, error) {
	if f.ScanError != nil {
		return nil, f.ScanError
	}
	return f.ScanResults, nil
}

// Stop marks the radio as stopped.
func (f *FakeRadio) Stop() error {
	f.Stopped = true
	return nil
}
