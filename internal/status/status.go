// Package status provides a thread-safe status tracker for the
// appliance-control daemon. It is written only from the main loop and read
// by the provisioning HTTP handlers.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/appliance-control/internal/wifi"
)

// Config contains daemon configuration for display.
type Config struct {
	Broker      string
	HTTPAddr    string
	HeartbeatMs int64
	StateDir    string
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type — safe to use after the lock is released.
type Snapshot struct {
	Mode          wifi.State
	SSID          string
	IP            string
	MQTTConnected bool
	Pins          map[string]bool
	StartTime     time.Time
	Now           time.Time
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			Mode:      wifi.StateIdle,
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// SetConnectivity records the connectivity session state.
func (t *Tracker) SetConnectivity(mode wifi.State, ssid, ip string) {
	t.mu.Lock()
	t.snap.Mode = mode
	t.snap.SSID = ssid
	t.snap.IP = ip
	t.mu.Unlock()
}

// SetMQTTConnected sets the broker session status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetPins records the current pin snapshot.
func (t *Tracker) SetPins(pins map[string]bool) {
	t.mu.Lock()
	t.snap.Pins = pins
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
