//go:build linux

package wifi

import (
	"reflect"
	"testing"
)

func TestStationArgs(t *testing.T) {
	cases := []struct {
		name     string
		ssid     string
		password string
		want     []string
	}{
		{
			name:     "secured network",
			ssid:     "Home",
			password: "secret123",
			want:     []string{"-w", "1", "device", "wifi", "connect", "Home", "password", "secret123", "ifname", "wlan0"},
		},
		{
			name: "open network omits password arguments",
			ssid: "OpenNet",
			want: []string{"-w", "1", "device", "wifi", "connect", "OpenNet", "ifname", "wlan0"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := stationArgs(tc.ssid, tc.password, "wlan0")
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("stationArgs: got %v, want %v", got, tc.want)
			}
		})
	}
}
