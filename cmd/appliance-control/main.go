// Command appliance-control maintains the device WiFi connection and
// exposes the relay outputs over an authenticated MQTT control topic,
// falling back to a local provisioning access point when no working
// credentials are stored.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sweeney/appliance-control/internal/config"
	"github.com/sweeney/appliance-control/internal/control"
	"github.com/sweeney/appliance-control/internal/pins"
	"github.com/sweeney/appliance-control/internal/provision"
	"github.com/sweeney/appliance-control/internal/status"
	"github.com/sweeney/appliance-control/internal/wifi"
)

const defaultStateDir = "/var/lib/appliance-control"

func main() {
	broker := flag.String("broker", control.DefaultBroker, "MQTT broker address")
	stateDir := flag.String("state-dir", defaultStateDir, "Directory for the persisted config region")
	httpAddr := flag.String("http", ":80", "Provisioning HTTP address")
	heartbeat := flag.Duration("heartbeat", 15*time.Minute, "State republish interval (0 to disable)")
	iface := flag.String("iface", "wlan0", "WiFi interface")
	tick := flag.Duration("tick", time.Second, "Service tick interval")
	resetLine := flag.Int("reset-line", pins.DefaultResetLine, "BCM line number of the reset button")
	printConfig := flag.Bool("print-config", false, "Print stored configuration and exit")

	flag.Parse()

	if err := run(*broker, *stateDir, *httpAddr, *heartbeat, *iface, *tick, *resetLine, *printConfig); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

// Sentinel results of a serve cycle.
var (
	errRestart  = errors.New("restart requested")
	errLinkLost = errors.New("link lost and reconnect exhausted")
)

func run(broker, stateDir, httpAddr string, heartbeat time.Duration, iface string, tick time.Duration, resetLine int, printConfig bool) error {
	store := config.NewStore(config.NewFileRegion(stateDir))

	// Print config mode
	if printConfig {
		cfg, err := store.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		fmt.Printf("valid: %v\nssid: %s\nsecret set: %v\n", cfg.Valid, cfg.SSID, cfg.Secret != config.DefaultSecret)
		return nil
	}

	// Initialize GPIO
	driver, err := pins.NewRealDriver(pins.DefaultMapping, resetLine)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer driver.Close()

	controller, err := pins.NewController(pins.DefaultMapping, driver)
	if err != nil {
		return fmt.Errorf("init pins: %w", err)
	}
	if err := controller.Initialize(); err != nil {
		return fmt.Errorf("drive outputs to safe state: %w", err)
	}

	manager := wifi.NewManager(wifi.NewRealRadio(iface))
	session := control.NewPahoSession(broker, control.ClientID())
	channel := control.NewChannel(session, controller, func() string {
		return store.Current().Secret
	})
	defer channel.Close()

	tracker := status.NewTracker(time.Now(), status.Config{
		Broker:      broker,
		HTTPAddr:    httpAddr,
		HeartbeatMs: heartbeat.Milliseconds(),
		StateDir:    stateDir,
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	restart := make(chan struct{}, 1)

	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	log.Printf("started: broker=%s state-dir=%s http=%s heartbeat=%v", broker, stateDir, httpAddr, heartbeat)

	// Each boot cycle ends in clean shutdown (nil), a restart request, or a
	// fatal error. A restart re-runs the whole sequence, standing in for
	// the hardware reboot the provisioning flow used to trigger.
	for {
		err := boot(store, driver, controller, manager, channel, tracker, httpAddr, heartbeat, ticker.C, restart, sigCh)
		if errors.Is(err, errRestart) {
			log.Printf("restarting")
			continue
		}
		return err
	}
}

// boot runs one cycle of the startup sequence: reset check, config
// load, station connect, then either the control serve loop or the
// provisioning loop.
func boot(store *config.Store, driver pins.Driver, controller *pins.Controller, manager *wifi.Manager, channel *control.Channel, tracker *status.Tracker, httpAddr string, heartbeat time.Duration, tick <-chan time.Time, restart chan struct{}, sig <-chan os.Signal) error {
	// Drop a restart request left over from the previous cycle.
	select {
	case <-restart:
	default:
	}

	tracker.SetPins(controller.Snapshot())

	held, err := driver.ResetHeld()
	if err != nil {
		log.Printf("reset line read: %v", err)
	}
	if held {
		log.Printf("reset button held at boot, clearing stored configuration")
		if err := store.Clear(); err != nil {
			log.Printf("clear config: %v", err)
		}
		return provisionLoop(store, manager, tracker, httpAddr, restart, sig)
	}

	cfg, err := store.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if !cfg.Valid || cfg.SSID == "" {
		log.Printf("no stored WiFi credentials")
		return provisionLoop(store, manager, tracker, httpAddr, restart, sig)
	}

	if err := manager.Connect(cfg.SSID, cfg.Password, wifi.StartupAttempts); err != nil {
		log.Printf("wifi connect: %v", err)
		return provisionLoop(store, manager, tracker, httpAddr, restart, sig)
	}
	tracker.SetConnectivity(manager.State(), cfg.SSID, manager.IP())

	if err := channel.ConnectAndSubscribe(); err != nil {
		// Not fatal: the serve loop retries on later ticks.
		log.Printf("control channel: %v", err)
	}

	err = serveLoop(manager, channel, controller, tracker, cfg.SSID, heartbeat, time.Now, tick, restart, sig)
	if errors.Is(err, errLinkLost) {
		return provisionLoop(store, manager, tracker, httpAddr, restart, sig)
	}
	return err
}

// serveLoop is the single cooperative loop of station mode: it applies
// inbound control messages, supervises the WiFi link and broker session,
// and republishes state on the heartbeat interval. Shared state is touched
// only from this loop.
func serveLoop(manager *wifi.Manager, channel *control.Channel, controller *pins.Controller, tracker *status.Tracker, ssid string, heartbeat time.Duration, now func() time.Time, tick <-chan time.Time, restart <-chan struct{}, sig <-chan os.Signal) error {
	lastBeat := now()

	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			return nil

		case <-restart:
			return errRestart

		case msg := <-channel.Inbound():
			channel.HandleInbound(msg)
			tracker.SetPins(controller.Snapshot())

		case <-tick:
			if err := manager.CheckLink(); err != nil {
				log.Printf("wifi reconnect: %v", err)
				return errLinkLost
			}

			if manager.State() == wifi.StateConnected && !channel.IsConnected() {
				if err := channel.ConnectAndSubscribe(); err != nil {
					log.Printf("control channel: %v", err)
				}
			}

			t := now()
			if heartbeat > 0 && channel.IsConnected() && t.Sub(lastBeat) >= heartbeat {
				if err := channel.PublishState(); err != nil {
					log.Printf("heartbeat publish: %v", err)
				}
				lastBeat = t
			}

			tracker.SetConnectivity(manager.State(), ssid, manager.IP())
			tracker.SetMQTTConnected(channel.IsConnected())
			tracker.SetPins(controller.Snapshot())
		}
	}
}

// provisionLoop brings up the access point and the setup HTTP surface, then
// waits for a restart request or a shutdown signal.
func provisionLoop(store *config.Store, manager *wifi.Manager, tracker *status.Tracker, httpAddr string, restart chan struct{}, sig <-chan os.Signal) error {
	if err := manager.EnterProvisioning(); err != nil {
		// The setup page may still be reachable over wired network.
		log.Printf("enter provisioning: %v", err)
	}
	tracker.SetConnectivity(wifi.StateProvisioning, "", "")
	tracker.SetMQTTConnected(false)

	requestRestart := func() {
		select {
		case restart <- struct{}{}:
		default:
		}
	}

	srv := provision.New(httpAddr, store, manager, tracker, requestRestart)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("provisioning http server: %v", err)
		}
	}()
	defer srv.Shutdown(context.Background())
	log.Printf("provisioning server listening on %s", httpAddr)

	select {
	case s := <-sig:
		log.Printf("received %v, shutting down", s)
		return nil
	case <-restart:
		return errRestart
	}
}
