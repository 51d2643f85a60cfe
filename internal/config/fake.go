package config

// MemRegion is an in-memory Region for tests.
type MemRegion struct {
	// Image is the last written image; nil means never written.
	Image []byte

	// ReadError, if set, will be returned by Read.
	ReadError error

	// WriteError, if set, will be returned by Write.
	WriteError error

	// Writes counts calls to Write.
	Writes int
}

// NewMemRegion creates an empty MemRegion.
func NewMemRegion() *MemRegion {
	return &MemRegion{}
}

// Read returns a copy of the stored image.
func (m *MemRegion) Read() ([]byte, error) {
	if m.ReadError != nil {
		return nil, m.ReadError
	}
	if m.Image == nil {
		return nil, nil
	}
	out := make([]byte, len(m.Image))
	copy(out, m.Image)
	return out, nil
}

// Write replaces the stored image.
func (m *MemRegion) Write(p []byte) (int, error) {
	if m.WriteError != nil {
		return 0, m.WriteError
	}
	m.Image = make([]byte, len(p))
	copy(m.Image, p)
	m.Writes++
	return len(p), nil
}
