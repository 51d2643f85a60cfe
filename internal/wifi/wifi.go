// Package wifi drives the station-mode WiFi connection and the fallback
// provisioning access point. The real radio shells out to NetworkManager;
// the fake allows testing the state machine without hardware or wall-clock
// delays.
package wifi

import (
	"fmt"
	"log"
	"time"

	"github.com/jpillora/backoff"
)

// State is the connectivity session state. It is owned solely by the
// Manager; other components only observe it.
type State string

const (
	StateIdle         State = "IDLE"
	StateConnecting   State = "CONNECTING"
	StateConnected    State = "CONNECTED"
	StateProvisioning State = "PROVISIONING"
)

// Access point identity while provisioning.
const (
	APName     = "ApplianceControl_Setup"
	APPassword = "12345678"
)

// Connection attempt bounds. Each attempt is one Status poll, spaced
// pollInterval apart.
const (
	pollInterval = 500 * time.Millisecond

	// StartupAttempts bounds the boot-time connect (~20s).
	StartupAttempts = 40

	// ProvisioningAttempts bounds a connect triggered from the
	// provisioning page (~10s), keeping the page responsive.
	ProvisioningAttempts = 20
)

// Link is a point-in-time view of the station link.
type Link struct {
	Connected bool
	IP        string
}

// Network is one scan result.
type Network struct {
	SSID     string
	RSSI     int    // dBm, approximate
	Security string // "open" or "encrypted"
}

// Radio is the hardware boundary for WiFi control.
type Radio interface {
	// StartStation begins a station-mode association. Non-blocking:
	// progress is observed via Status.
	StartStation(ssid, password string) error

	// Status reports the current station link.
	Status() (Link, error)

	// StartAccessPoint brings up the local provisioning AP.
	StartAccessPoint(ssid, password string) error

	// Scan lists nearby networks.
	Scan() ([]Network, error)

	// Stop tears down station or AP mode.
	Stop() error
}

// Manager is the connectivity state machine. Not safe for concurrent use;
// the daemon drives it only from the main loop.
type Manager struct {
	radio Radio
	state State
	ip    string

	lastSSID     string
	lastPassword string

	// Sleep is the delay function used between status polls and before
	// reconnects. Overridable so tests run without wall-clock delays.
	Sleep func(time.Duration)

	// reconnect paces repeated connect cycles after link drops, so a
	// flapping network cannot busy-loop the device. Reset once the link
	// survives a supervision pass.
	reconnect *backoff.Backoff
}

// NewManager creates a Manager in the Idle state.
func NewManager(radio Radio) *Manager {
	return &Manager{
		radio: radio,
		state: StateIdle,
		Sleep: time.Sleep,
		reconnect: &backoff.Backoff{
			Min:    time.Second,
			Max:    30 * time.Second,
			Factor: 2,
		},
	}
}

// State returns the current session state.
func (m *Manager) State() State {
	return m.state
}

// IP returns the station address while connected, "" otherwise.
func (m *Manager) IP() string {
	return m.ip
}

// Scan lists nearby networks via the radio.
func (m *Manager) Scan() ([]Network, error) {
	return m.radio.Scan()
}

// Connect attempts a station-mode connection, polling link status up to
// attempts times. On success the state becomes Connected. On exhaustion the
// state returns to what the caller expects: Idle from the startup path
// (caller then enters provisioning), or back to Provisioning with the AP
// restored when the attempt was triggered from the provisioning page.
// A connection attempt always runs to completion; there is no cancellation.
func (m *Manager) Connect(ssid, password string, attempts int) error {
	fromProvisioning := m.state == StateProvisioning
	m.state = StateConnecting
	m.ip = ""

	log.Printf("wifi: connecting to %q (up to %d polls)", ssid, attempts)
	if err := m.radio.StartStation(ssid, password); err != nil {
		return m.connectFailed(fromProvisioning, fmt.Errorf("start station: %w", err))
	}

	for i := 0; i < attempts; i++ {
		link, err := m.radio.Status()
		if err != nil {
			log.Printf("wifi: status poll: %v", err)
		} else if link.Connected {
			m.state = StateConnected
			m.ip = link.IP
			m.lastSSID = ssid
			m.lastPassword = password
			log.Printf("wifi: connected to %q, ip=%s", ssid, link.IP)
			return nil
		}
		m.Sleep(pollInterval)
	}

	return m.connectFailed(fromProvisioning, fmt.Errorf("connect to %q: timed out after %d polls", ssid, attempts))
}

// connectFailed restores the pre-attempt mode. Failure is never fatal: the
// device always lands in a state reachable by at least one path.
func (m *Manager) connectFailed(fromProvisioning bool, err error) error {
	if fromProvisioning {
		// Already provisioning; restore the AP and report failure to
		// the caller instead of re-entering the mode.
		m.state = StateIdle
		if apErr := m.EnterProvisioning(); apErr != nil {
			log.Printf("wifi: restore access point: %v", apErr)
		}
	} else {
		m.state = StateIdle
	}
	return err
}

// EnterProvisioning starts the local access point. Idempotent while already
// provisioning.
func (m *Manager) EnterProvisioning() error {
	if m.state == StateProvisioning {
		return nil
	}
	if err := m.radio.StartAccessPoint(APName, APPassword); err != nil {
		return fmt.Errorf("start access point: %w", err)
	}
	m.state = StateProvisioning
	m.ip = ""
	log.Printf("wifi: provisioning access point %q up", APName)
	return nil
}

// CheckLink supervises an established connection. If the link has dropped,
// it waits out a capped exponential backoff and re-runs Connect with the
// last-known credentials. No-op unless Connected.
func (m *Manager) CheckLink() error {
	if m.state != StateConnected {
		return nil
	}
	link, err := m.radio.Status()
	if err == nil && link.Connected {
		m.ip = link.IP
		// The link survived a full supervision pass; a later drop is a
		// fresh incident, not a continuation of the last flap.
		m.reconnect.Reset()
		return nil
	}
	if err != nil {
		log.Printf("wifi: status poll: %v", err)
	}

	d := m.reconnect.Duration()
	log.Printf("wifi: link down, reconnecting to %q in %v", m.lastSSID, d)
	m.state = StateIdle
	m.Sleep(d)
	return m.Connect(m.lastSSID, m.lastPassword, StartupAttempts)
}
