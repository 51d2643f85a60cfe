// Package pins owns the fixed set of named relay outputs.
// The real implementation drives Linux GPIO character device lines.
// The fake implementation allows testing without hardware.
package pins

import (
	"fmt"
	"strings"
)

// Driver drives GPIO lines.
type Driver interface {
	// Set drives the output line high or low.
	Set(line int, high bool) error

	// ResetHeld reports whether the reset input is held active (low).
	ResetHeld() (bool, error)

	// Close releases GPIO resources.
	Close() error
}

// Entry maps an externally visible label to a GPIO line offset.
type Entry struct {
	Label string
	Line  int
}

// Mapping is the ordered, compiled-in pin table. Labels are unique
// case-insensitively and fixed for the device's lifetime.
type Mapping []Entry

// DefaultMapping covers the nine relay outputs of the stock board
// (BCM numbering).
var DefaultMapping = Mapping{
	{"d0", 5},
	{"d1", 6},
	{"d2", 13},
	{"d3", 16},
	{"d4", 19},
	{"d5", 20},
	{"d6", 21},
	{"d7", 26},
	{"d8", 12},
}

// DefaultResetLine is the factory-reset button input (BCM numbering,
// pull-up, active low).
const DefaultResetLine = 3

// Controller applies on/off commands to the mapped outputs and tracks their
// state. State mutates only through Set, so Snapshot always matches the
// driven levels. Not safe for concurrent use.
type Controller struct {
	mapping Mapping
	driver  Driver
	byLabel map[string]Entry // lowercased label -> entry
	state   map[string]bool  // canonical label -> level
}

// NewController validates the mapping and builds the label lookup table.
// Call Initialize before accepting commands.
func NewController(mapping Mapping, driver Driver) (*Controller, error) {
	byLabel := make(map[string]Entry, len(mapping))
	for _, e := range mapping {
		key := strings.ToLower(e.Label)
		if _, dup := byLabel[key]; dup {
			return nil, fmt.Errorf("duplicate pin label %q", e.Label)
		}
		byLabel[key] = e
	}
	return &Controller{
		mapping: mapping,
		driver:  driver,
		byLabel: byLabel,
		state:   make(map[string]bool, len(mapping)),
	}, nil
}

// Initialize drives every output low, establishing a known safe default
// before any command can be accepted.
func (c *Controller) Initialize() error {
	for _, e := range c.mapping {
		if err := c.driver.Set(e.Line, false); err != nil {
			return fmt.Errorf("initialize %s (line %d): %w", e.Label, e.Line, err)
		}
		c.state[e.Label] = false
	}
	return nil
}

// Set drives the labelled output. The label is matched case-insensitively;
// an unknown label is a silent no-op.
func (c *Controller) Set(label string, on bool) error {
	e, ok := c.byLabel[strings.ToLower(label)]
	if !ok {
		return nil
	}
	if err := c.driver.Set(e.Line, on); err != nil {
		return fmt.Errorf("set %s (line %d): %w", e.Label, e.Line, err)
	}
	c.state[e.Label] = on
	return nil
}

// Snapshot returns the current level of every mapped output, keyed by
// canonical label.
func (c *Controller) Snapshot() map[string]bool {
	out := make(map[string]bool, len(c.mapping))
	for _, e := range c.mapping {
		out[e.Label] = c.state[e.Label]
	}
	return out
}

// Labels returns the canonical labels in mapping order.
func (c *Controller) Labels() []string {
	out := make([]string, len(c.mapping))
	for i, e := range c.mapping {
		out[i] = e.Label
	}
	return out
}
