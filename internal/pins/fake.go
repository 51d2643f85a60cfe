package pins

// FakeDriver is a test double that records driven levels.
type FakeDriver struct {
	// Levels holds the last driven level per line.
	Levels map[int]bool

	// Sets records every (line, high) call in order.
	Sets []SetCall

	// SetError, if set, will be returned by Set.
	SetError error

	// ResetLow makes ResetHeld report the reset button as pressed.
	ResetLow bool

	// ResetError, if set, will be returned by ResetHeld.
	ResetError error

	// Closed tracks if Close was called.
	Closed bool
}

// SetCall records a single Set invocation.
type SetCall struct {
	Line int
	High bool
}

// NewFakeDriver creates a FakeDriver for testing.
func NewFakeDriver() *FakeDriver {
	return &FakeDriver{Levels: make(map[int]bool)}
}

// Set records the driven level.
func (f *FakeDriver) Set(line int, high bool) error {
	if f.SetError != nil {
		return f.SetError
	}
	f.Levels[line] = high
	f.Sets = append(f.Sets, SetCall{Line: line, High: high})
	return nil
}

// ResetHeld returns the scripted reset-button state.
func (f *FakeDriver) ResetHeld() (bool, error) {
	if f.ResetError != nil {
		return false, f.ResetError
	}
	return f.ResetLow, nil
}

// Close marks the driver as closed.
func (f *FakeDriver) Close() error {
	f.Closed = true
	return nil
}
