//go:build linux

package wifi

import (
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// RealRadio controls the WiFi interface through NetworkManager's nmcli.
type RealRadio struct {
	iface string
}

// NewRealRadio creates a radio bound to the given interface (e.g. "wlan0").
func NewRealRadio(iface string) *RealRadio {
	return &RealRadio{iface: iface}
}

// StartStation begins association without waiting for completion; progress
// is observed via Status.
func (r *RealRadio) StartStation(ssid, password string) error {
	out, err := exec.Command("nmcli", stationArgs(ssid, password, r.iface)...).CombinedOutput()
	if err != nil && !isTimeoutOutput(out) {
		return fmt.Errorf("nmcli connect: %v: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

// stationArgs builds the nmcli connect invocation. An open network takes no
// password arguments at all; NetworkManager rejects an empty psk.
func stationArgs(ssid, password, iface string) []string {
	// -w 1: return quickly, association continues in NetworkManager.
	args := []string{"-w", "1", "device", "wifi", "connect", ssid}
	if password != "" {
		args = append(args, "password", password)
	}
	return append(args, "ifname", iface)
}

// Status reports the station link state and address.
func (r *RealRadio) Status() (Link, error) {
	out, err := exec.Command("nmcli", "-t", "-f", "GENERAL.STATE,IP4.ADDRESS",
		"device", "show", r.iface).Output()
	if err != nil {
		return Link{}, fmt.Errorf("nmcli device show: %w", err)
	}

	var link Link
	for _, line := range strings.Split(string(out), "\n") {
		key, val, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		switch {
		case key == "GENERAL.STATE":
			// "100 (connected)"
			link.Connected = strings.Contains(val, "(connected)")
		case strings.HasPrefix(key, "IP4.ADDRESS"):
			// "192.168.1.50/24"
			if addr, _, found := strings.Cut(val, "/"); found {
				link.IP = addr
			} else {
				link.IP = val
			}
		}
	}
	return link, nil
}

// StartAccessPoint brings up a local hotspot for provisioning.
func (r *RealRadio) StartAccessPoint(ssid, password string) error {
	out, err := exec.Command("nmcli", "device", "wifi", "hotspot",
		"ifname", r.iface, "ssid", ssid, "password", password).CombinedOutput()
	if err != nil {
		return fmt.Errorf("nmcli hotspot: %v: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Scan lists nearby networks.
func (r *RealRadio) Scan() ([]Network, error) {
	out, err := exec.Command("nmcli", "-t", "-f", "SSID,SIGNAL,SECURITY",
		"device", "wifi", "list", "ifname", r.iface, "--rescan", "yes").Output()
	if err != nil {
		return nil, fmt.Errorf("nmcli wifi list: %w", err)
	}

	var networks []Network
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		fields := strings.Split(line, ":")
		if len(fields) < 3 || fields[0] == "" {
			continue
		}
		signal, err := strconv.Atoi(fields[1])
		if err != nil {
			continue
		}
		security := "encrypted"
		if fields[2] == "" || fields[2] == "--" {
			security = "open"
		}
		networks = append(networks, Network{
			SSID: fields[0],
			// nmcli reports signal as 0-100%; approximate dBm.
			RSSI:     signal/2 - 100,
			Security: security,
		})
	}
	return networks, nil
}

// Stop disconnects the interface.
func (r *RealRadio) Stop() error {
	out, err := exec.Command("nmcli", "device", "disconnect", r.iface).CombinedOutput()
	if err != nil {
		return fmt.Errorf("nmcli disconnect: %v: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

// isTimeoutOutput reports whether nmcli failed only because the -w deadline
// expired while association was still in progress.
func isTimeoutOutput(out []byte) bool {
	return strings.Contains(string(out), "Timeout expired")
}
