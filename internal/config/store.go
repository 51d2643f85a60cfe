package config

import (
	"fmt"
	"io"
	"log"

	"github.com/temoto/extremofile"
)

// Region is the non-volatile byte region holding the config image.
// Read returns the last written image (nil if never written).
type Region interface {
	Read() ([]byte, error)
	io.Writer
}

// NewFileRegion creates a crash-safe file-backed region in dir. Writes are
// atomic: a torn write leaves the previous image readable.
func NewFileRegion(dir string) Region {
	return extremofile.New(extremofile.Config{
		Dir:      dir,
		DirPerm:  0755,
		FilePerm: 0644,
	})
}

// Store binds a Config to its Region. Not safe for concurrent use; the
// daemon touches it only from the main loop.
type Store struct {
	region Region
	cfg    Config
}

// NewStore creates a Store over the given region. Call Load before use.
func NewStore(region Region) *Store {
	return &Store{region: region, cfg: Empty()}
}

// Current returns the in-memory configuration from the last Load/Save/Clear.
func (s *Store) Current() Config {
	return s.cfg
}

// Load reads and decodes the region. A blank, missing, or corrupt region is
// an expected state and decodes to the empty configuration; only a region
// read that cannot produce any image at all is an error.
func (s *Store) Load() (Config, error) {
	data, err := s.region.Read()
	if data == nil {
		if err != nil && extremofile.IsCritical(err) {
			return Empty(), fmt.Errorf("read config region: %w", err)
		}
		// Never written: first boot or post-clear.
		s.cfg = Empty()
		return s.cfg, nil
	}
	if err != nil {
		// Non-critical: extremofile recovered the image from backup.
		log.Printf("config: region read recovered: %v", err)
	}

	var cfg Config
	_ = cfg.UnmarshalBinary(data) // never fails; corruption decodes to defaults
	s.cfg = cfg
	return cfg, nil
}

// Save encodes and writes the full configuration. The magic marker is part
// of the same image as the payload, so the stored region is valid iff the
// write completed.
func (s *Store) Save(ssid, password, secret string) error {
	cfg := Config{SSID: ssid, Password: password, Secret: secret, Valid: true}
	img, err := cfg.MarshalBinary()
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if _, err := s.region.Write(img); err != nil {
		return fmt.Errorf("write config region: %w", err)
	}
	s.cfg = cfg
	return nil
}

// SaveSecret rewrites only the control-secret field, leaving the WiFi
// credentials and magic marker untouched. On a region that has never held
// credentials there is no magic marker, so the stored secret only takes
// effect once a later Save stamps the region valid; until then Load keeps
// returning the default secret.
func (s *Store) SaveSecret(secret string) error {
	if len(secret) >= secretCap {
		return fmt.Errorf("secret too long: %d bytes (max %d)", len(secret), secretCap-1)
	}

	img, err := s.region.Read()
	if img == nil || len(img) < RegionSize {
		if err != nil && extremofile.IsCritical(err) {
			return fmt.Errorf("read config region: %w", err)
		}
		img = make([]byte, RegionSize)
	}
	for i := offSecret; i < offSecret+secretCap; i++ {
		img[i] = 0
	}
	putField(img, offSecret, secret)
	if _, err := s.region.Write(img); err != nil {
		return fmt.Errorf("write config region: %w", err)
	}
	s.cfg.Secret = secret
	return nil
}

// Clear zeroes the entire region and resets the in-memory configuration.
func (s *Store) Clear() error {
	if _, err := s.region.Write(make([]byte, RegionSize)); err != nil {
		return fmt.Errorf("clear config region: %w", err)
	}
	s.cfg = Empty()
	return nil
}
