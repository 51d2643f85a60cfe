package main

import (
	"encoding/json"
	"errors"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/sweeney/appliance-control/internal/config"
	"github.com/sweeney/appliance-control/internal/control"
	"github.com/sweeney/appliance-control/internal/pins"
	"github.com/sweeney/appliance-control/internal/status"
	"github.com/sweeney/appliance-control/internal/wifi"
)

// fakeClock returns successive times advancing by step on each call.
// Not safe for concurrent use (only called from the loop's goroutine).
type fakeClock struct {
	t    time.Time
	step time.Duration
}

func (c *fakeClock) now() time.Time {
	c.t = c.t.Add(c.step)
	return c.t
}

type loopFixture struct {
	manager    *wifi.Manager
	radio      *wifi.FakeRadio
	channel    *control.Channel
	session    *control.FakeSession
	controller *pins.Controller
	driver     *pins.FakeDriver
	tracker    *status.Tracker

	tick    chan time.Time
	restart chan struct{}
	sig     chan os.Signal
}

func newLoopFixture(t *testing.T) *loopFixture {
	t.Helper()

	radio := wifi.NewFakeRadio()
	radio.ConnectAfter = 0
	manager := wifi.NewManager(radio)
	manager.Sleep = func(time.Duration) {}
	if err := manager.Connect("Home", "secret123", wifi.StartupAttempts); err != nil {
		t.Fatalf("connect: %v", err)
	}

	driver := pins.NewFakeDriver()
	controller, err := pins.NewController(pins.DefaultMapping, driver)
	if err != nil {
		t.Fatalf("controller: %v", err)
	}
	if err := controller.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	session := control.NewFakeSession()
	channel := control.NewChannel(session, controller, func() string { return "hunter2" })
	channel.Sleep = func(time.Duration) {}

	return &loopFixture{
		manager:    manager,
		radio:      radio,
		channel:    channel,
		session:    session,
		controller: controller,
		driver:     driver,
		tracker:    status.NewTracker(time.Now(), status.Config{}),
		tick:       make(chan time.Time),
		restart:    make(chan struct{}, 1),
		sig:        make(chan os.Signal, 1),
	}
}

// runServeLoop starts serveLoop in the background and returns its error
// after done has driven the loop and sent a stop event.
func (f *loopFixture) runServeLoop(t *testing.T, heartbeat time.Duration, clock *fakeClock, drive func()) error {
	t.Helper()
	errCh := make(chan error, 1)
	go func() {
		errCh <- serveLoop(f.manager, f.channel, f.controller, f.tracker, "Home", heartbeat, clock.now, f.tick, f.restart, f.sig)
	}()
	drive()
	select {
	case err := <-errCh:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("serveLoop did not return")
		return nil
	}
}

func TestServeLoopSignalExitsClean(t *testing.T) {
	f := newLoopFixture(t)
	err := f.runServeLoop(t, 0, &fakeClock{}, func() {
		f.sig <- syscall.SIGTERM
	})
	if err != nil {
		t.Fatalf("serveLoop returned error: %v", err)
	}
}

func TestServeLoopRestartRequest(t *testing.T) {
	f := newLoopFixture(t)
	err := f.runServeLoop(t, 0, &fakeClock{}, func() {
		f.restart <- struct{}{}
	})
	if !errors.Is(err, errRestart) {
		t.Fatalf("expected errRestart, got %v", err)
	}
}

func TestServeLoopAppliesInboundCommand(t *testing.T) {
	f := newLoopFixture(t)
	if err := f.channel.ConnectAndSubscribe(); err != nil {
		t.Fatalf("connect and subscribe: %v", err)
	}
	f.session.Deliver(control.ControlTopic,
		[]byte(`{"password":"hunter2","pins":{"d0":"on"}}`))

	err := f.runServeLoop(t, 0, &fakeClock{}, func() {
		// Give the loop a pass to drain the queued command before the
		// signal arrives.
		time.Sleep(10 * time.Millisecond)
		f.sig <- syscall.SIGTERM
	})
	if err != nil {
		t.Fatalf("serveLoop returned error: %v", err)
	}

	if !f.driver.Levels[pins.DefaultMapping[0].Line] {
		t.Error("d0 not driven high")
	}
	snap := f.tracker.Snapshot()
	if !snap.Pins["d0"] {
		t.Error("tracker not updated with pin state")
	}
	last := f.session.Published[len(f.session.Published)-1]
	var state map[string]string
	if err := json.Unmarshal(last.Payload, &state); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if state["d0"] != "on" {
		t.Errorf("published state: %v", state)
	}
}

func TestServeLoopReattachesChannelOnTick(t *testing.T) {
	f := newLoopFixture(t)
	// Channel never attached: the service tick must bring it up.
	err := f.runServeLoop(t, 0, &fakeClock{step: time.Second}, func() {
		f.tick <- time.Now()
		f.sig <- syscall.SIGTERM
	})
	if err != nil {
		t.Fatalf("serveLoop returned error: %v", err)
	}
	if f.session.ConnectCalls == 0 {
		t.Error("tick did not attach the control channel")
	}
	if len(f.session.Published) == 0 {
		t.Error("attach did not publish initial state")
	}
}

func TestServeLoopReattachesAfterSessionDrop(t *testing.T) {
	f := newLoopFixture(t)
	if err := f.channel.ConnectAndSubscribe(); err != nil {
		t.Fatalf("connect and subscribe: %v", err)
	}

	// The broker restarts under us: the session and its subscription are
	// gone. The next tick must re-establish both so a command sent
	// afterwards still reaches the pins.
	f.session.Drop()

	err := f.runServeLoop(t, 0, &fakeClock{step: time.Second}, func() {
		f.tick <- time.Now()
		// The tick channel is unbuffered, so this send completes only
		// after the reattach tick above has been fully processed.
		f.tick <- time.Now()
		f.session.Deliver(control.ControlTopic,
			[]byte(`{"password":"hunter2","pins":{"d1":"on"}}`))
		time.Sleep(10 * time.Millisecond)
		f.sig <- syscall.SIGTERM
	})
	if err != nil {
		t.Fatalf("serveLoop returned error: %v", err)
	}

	if f.session.ConnectCalls != 2 {
		t.Errorf("connect calls: got %d, want 2", f.session.ConnectCalls)
	}
	if !f.driver.Levels[pins.DefaultMapping[1].Line] {
		t.Error("command after session drop not applied")
	}
}

func TestServeLoopHeartbeatRepublishesState(t *testing.T) {
	f := newLoopFixture(t)
	if err := f.channel.ConnectAndSubscribe(); err != nil {
		t.Fatalf("connect and subscribe: %v", err)
	}
	before := len(f.session.Published)

	// Each clock call advances 10 minutes; with a 15 minute heartbeat the
	// second tick lands past the interval.
	err := f.runServeLoop(t, 15*time.Minute, &fakeClock{step: 10 * time.Minute}, func() {
		f.tick <- time.Now()
		f.tick <- time.Now()
		f.sig <- syscall.SIGTERM
	})
	if err != nil {
		t.Fatalf("serveLoop returned error: %v", err)
	}

	if got := len(f.session.Published) - before; got != 1 {
		t.Errorf("heartbeat publishes: got %d, want 1", got)
	}
}

func TestServeLoopHeartbeatDisabled(t *testing.T) {
	f := newLoopFixture(t)
	if err := f.channel.ConnectAndSubscribe(); err != nil {
		t.Fatalf("connect and subscribe: %v", err)
	}
	before := len(f.session.Published)

	err := f.runServeLoop(t, 0, &fakeClock{step: time.Hour}, func() {
		f.tick <- time.Now()
		f.tick <- time.Now()
		f.sig <- syscall.SIGTERM
	})
	if err != nil {
		t.Fatalf("serveLoop returned error: %v", err)
	}
	if got := len(f.session.Published) - before; got != 0 {
		t.Errorf("heartbeat disabled but published %d times", got)
	}
}

func TestServeLoopLinkLostFallsBack(t *testing.T) {
	f := newLoopFixture(t)
	// Link drops and never comes back; the reconnect cycle exhausts and
	// the loop reports the fallback condition.
	f.radio.ConnectAfter = -1
	f.radio.StatusPolls = 0

	err := f.runServeLoop(t, 0, &fakeClock{step: time.Second}, func() {
		f.tick <- time.Now()
	})
	if !errors.Is(err, errLinkLost) {
		t.Fatalf("expected errLinkLost, got %v", err)
	}
}

func TestBootNoCredentialsEntersProvisioning(t *testing.T) {
	region := config.NewMemRegion()
	store := config.NewStore(region)

	radio := wifi.NewFakeRadio()
	manager := wifi.NewManager(radio)
	manager.Sleep = func(time.Duration) {}

	driver := pins.NewFakeDriver()
	controller, err := pins.NewController(pins.DefaultMapping, driver)
	if err != nil {
		t.Fatalf("controller: %v", err)
	}
	if err := controller.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	session := control.NewFakeSession()
	channel := control.NewChannel(session, controller, func() string { return store.Current().Secret })
	channel.Sleep = func(time.Duration) {}

	tracker := status.NewTracker(time.Now(), status.Config{})
	restart := make(chan struct{}, 1)
	sig := make(chan os.Signal, 1)
	tick := make(chan time.Time)

	errCh := make(chan error, 1)
	go func() {
		errCh <- boot(store, driver, controller, manager, channel, tracker, "127.0.0.1:0", 0, tick, restart, sig)
	}()

	// boot drains stale restart requests before entering provisioning;
	// give it that moment so this send reaches the provisioning loop.
	time.Sleep(10 * time.Millisecond)
	restart <- struct{}{}
	select {
	case err := <-errCh:
		if !errors.Is(err, errRestart) {
			t.Fatalf("expected errRestart, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("boot did not return")
	}

	if len(radio.APCalls) != 1 {
		t.Fatalf("AP started %d times, want 1", len(radio.APCalls))
	}
	if tracker.Snapshot().Mode != wifi.StateProvisioning {
		t.Errorf("mode: got %s, want %s", tracker.Snapshot().Mode, wifi.StateProvisioning)
	}
}

func TestBootResetButtonClearsConfig(t *testing.T) {
	region := config.NewMemRegion()
	store := config.NewStore(region)
	if err := store.Save("Home", "secret123", "hunter2"); err != nil {
		t.Fatalf("save: %v", err)
	}

	radio := wifi.NewFakeRadio()
	manager := wifi.NewManager(radio)
	manager.Sleep = func(time.Duration) {}

	driver := pins.NewFakeDriver()
	driver.ResetLow = true
	controller, err := pins.NewController(pins.DefaultMapping, driver)
	if err != nil {
		t.Fatalf("controller: %v", err)
	}
	if err := controller.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	session := control.NewFakeSession()
	channel := control.NewChannel(session, controller, func() string { return store.Current().Secret })
	channel.Sleep = func(time.Duration) {}

	tracker := status.NewTracker(time.Now(), status.Config{})
	restart := make(chan struct{}, 1)
	sig := make(chan os.Signal, 1)
	tick := make(chan time.Time)

	errCh := make(chan error, 1)
	go func() {
		errCh <- boot(store, driver, controller, manager, channel, tracker, "127.0.0.1:0", 0, tick, restart, sig)
	}()

	sig <- syscall.SIGTERM
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("boot returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("boot did not return")
	}

	// Stored credentials are gone and the device went to provisioning,
	// bypassing the stored config entirely.
	cfg, err := config.NewStore(region).Load()
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if cfg.Valid || cfg.SSID != "" {
		t.Errorf("config not cleared: %+v", cfg)
	}
	if len(radio.StationCalls) != 0 {
		t.Error("station connect attempted despite reset")
	}
	if len(radio.APCalls) != 1 {
		t.Errorf("AP started %d times, want 1", len(radio.APCalls))
	}
}
