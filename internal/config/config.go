// Package config persists device credentials in a fixed-layout non-volatile
// region. The layout is byte-compatible with the 512-byte EEPROM image used by
// earlier hardware revisions: length-prefixed strings at fixed offsets plus a
// 16-bit magic marker that distinguishes configured from blank storage.
package config

import (
	"encoding/binary"
	"fmt"
)

// RegionSize is the size of the persisted image in bytes.
const RegionSize = 512

// Magic marks the region as initialized. Stored big-endian at offMagic.
const Magic uint16 = 0xCD34

// DefaultSecret is the control secret used until one is provisioned.
const DefaultSecret = "appliances123"

// Region layout. Each string field is a length byte followed by raw bytes.
// Offsets are chosen so fields cannot overlap even at maximum length; the
// magic marker sits between the WiFi fields and the control secret.
const (
	offSSID   = 0   // length byte, then up to ssidCap-1 bytes
	offPass   = 100 // length byte, then up to passCap-1 bytes
	offMagic  = 200 // 2 bytes, big-endian
	offSecret = 300 // length byte, then up to secretCap-1 bytes

	ssidCap   = 100
	passCap   = 100
	secretCap = 50
)

// Config is the decoded device configuration.
type Config struct {
	// SSID and Password are the stored WiFi credentials.
	SSID     string
	Password string

	// Secret is the shared control-channel password.
	Secret string

	// Valid reports whether the magic marker was present; a blank or
	// corrupt region decodes to Valid=false, never to an error.
	Valid bool
}

// Empty returns the configuration of a blank device.
func Empty() Config {
	return Config{Secret: DefaultSecret}
}

// MarshalBinary encodes the configuration as a full region image.
// Payload fields are written before the magic marker so a torn write is
// detectable on the next load.
func (c Config) MarshalBinary() ([]byte, error) {
	if len(c.SSID) >= ssidCap {
		return nil, fmt.Errorf("ssid too long: %d bytes (max %d)", len(c.SSID), ssidCap-1)
	}
	if len(c.Password) >= passCap {
		return nil, fmt.Errorf("password too long: %d bytes (max %d)", len(c.Password), passCap-1)
	}
	if len(c.Secret) >= secretCap {
		return nil, fmt.Errorf("secret too long: %d bytes (max %d)", len(c.Secret), secretCap-1)
	}

	buf := make([]byte, RegionSize)
	putField(buf, offSSID, c.SSID)
	putField(buf, offPass, c.Password)
	putField(buf, offSecret, c.Secret)
	binary.BigEndian.PutUint16(buf[offMagic:], Magic)
	return buf, nil
}

// UnmarshalBinary decodes a region image. A missing or wrong magic marker
// yields the empty configuration. A stored length outside [1, cap) marks that
// field corrupt: ssid and password default to empty, the secret defaults to
// DefaultSecret. Corruption in one field never blocks decoding the others.
func (c *Config) UnmarshalBinary(data []byte) error {
	*c = Empty()
	if len(data) < RegionSize {
		return nil
	}
	if binary.BigEndian.Uint16(data[offMagic:]) != Magic {
		return nil
	}
	c.Valid = true
	c.SSID = getField(data, offSSID, ssidCap)
	c.Password = getField(data, offPass, passCap)
	if s := getField(data, offSecret, secretCap); s != "" {
		c.Secret = s
	}
	return nil
}

// putField writes a length-prefixed string at the given offset.
func putField(buf []byte, off int, s string) {
	buf[off] = byte(len(s))
	copy(buf[off+1:], s)
}

// getField reads a length-prefixed string, returning "" if the stored length
// is out of range.
func getField(data []byte, off, cap int) string {
	n := int(data[off])
	if n < 1 || n >= cap {
		return ""
	}
	return string(data[off+1 : off+1+n])
}
