//go:build linux

package pins

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealDriver drives relay outputs through the Linux GPIO character device.
type RealDriver struct {
	chip      *gpiocdev.Chip
	outputs   map[int]*gpiocdev.Line
	resetLine *gpiocdev.Line
}

// NewRealDriver requests every mapped line as an output (initially low) and
// the reset line as an input with pull-up.
func NewRealDriver(mapping Mapping, resetLine int) (*RealDriver, error) {
	chip, err := gpiocdev.NewChip("gpiochip0")
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	d := &RealDriver{
		chip:    chip,
		outputs: make(map[int]*gpiocdev.Line, len(mapping)),
	}

	for _, e := range mapping {
		line, err := chip.RequestLine(e.Line, gpiocdev.AsOutput(0))
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("request %s line %d: %w", e.Label, e.Line, err)
		}
		d.outputs[e.Line] = line
	}

	reset, err := chip.RequestLine(resetLine, gpiocdev.AsInput, gpiocdev.WithPullUp)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("request reset line %d: %w", resetLine, err)
	}
	d.resetLine = reset

	return d, nil
}

// Set drives the output line.
func (d *RealDriver) Set(line int, high bool) error {
	l, ok := d.outputs[line]
	if !ok {
		return fmt.Errorf("line %d not requested", line)
	}
	v := 0
	if high {
		v = 1
	}
	if err := l.SetValue(v); err != nil {
		return fmt.Errorf("set line %d: %w", line, err)
	}
	return nil
}

// ResetHeld reports whether the reset button is pressed (line pulled low).
func (d *RealDriver) ResetHeld() (bool, error) {
	v, err := d.resetLine.Value()
	if err != nil {
		return false, fmt.Errorf("read reset line: %w", err)
	}
	return v == 0, nil
}

// Close releases all requested lines and the chip.
func (d *RealDriver) Close() error {
	var errs []error
	for line, l := range d.outputs {
		if err := l.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close line %d: %w", line, err))
		}
	}
	if d.resetLine != nil {
		if err := d.resetLine.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close reset line: %w", err))
		}
	}
	if d.chip != nil {
		if err := d.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
