package provision

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/sweeney/appliance-control/internal/status"
	"github.com/sweeney/appliance-control/internal/wifi"
)

// Result is the JSON response of the mutating endpoints.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// NetworkJSON is one scan result on the wire.
type NetworkJSON struct {
	SSID       string `json:"ssid"`
	RSSI       int    `json:"rssi"`
	Encryption string `json:"encryption"` // "open" or "encrypted"
}

// StatusJSON is the JSON representation of the daemon status.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Mode          string            `json:"mode"`
	SSID          string            `json:"ssid,omitempty"`
	IP            string            `json:"ip,omitempty"`
	MQTT          MQTTStatus        `json:"mqtt"`
	Pins          map[string]string `json:"pins"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	StartTime     string            `json:"start_time"`
	Timestamp     string            `json:"timestamp"`
}

// MQTTStatus reports broker session state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

func writeResult(w http.ResponseWriter, code int, res Result) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(res)
}

func writeNetworks(w http.ResponseWriter, networks []wifi.Network) {
	out := make([]NetworkJSON, 0, len(networks))
	for _, n := range networks {
		out = append(out, NetworkJSON{
			SSID:       n.SSID,
			RSSI:       n.RSSI,
			Encryption: n.Security,
		})
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}

func formatStatusJSON(snap status.Snapshot) []byte {
	pins := make(map[string]string, len(snap.Pins))
	for label, on := range snap.Pins {
		if on {
			pins[label] = "on"
		} else {
			pins[label] = "off"
		}
	}

	sj := StatusJSON{
		Status: StatusInner{
			Mode:          string(snap.Mode),
			SSID:          snap.SSID,
			IP:            snap.IP,
			MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
			Pins:          pins,
			UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
			StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
			Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		},
	}

	data, _ := json.MarshalIndent(sj, "", "  ")
	return data
}
