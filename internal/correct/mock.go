package correct

import (
	"context"
	"sync"
)

// MockCatalog is a mock implementation of Catalog for testing.
type MockCatalog struct {
	CorrectFn func(ctx context.Context, barcode, username string, statGroup int) error
	Calls     []CorrectCall
	mu        sync.Mutex
}

// CorrectCall records the parameters of a CorrectCheckin call.
type CorrectCall struct {
	Barcode   string
	Username  string
	StatGroup int
}

// NewMockCatalog creates a mock catalog that accepts every correction.
func NewMockCatalog() *MockCatalog {
	return &MockCatalog{}
}

// CorrectCheckin implements Catalog.
func (m *MockCatalog) CorrectCheckin(ctx context.Context, barcode, username string, statGroup int) error {
	m.mu.Lock()
	m.Calls = append(m.Calls, CorrectCall{Barcode: barcode, Username: username, StatGroup: statGroup})
	fn := m.CorrectFn
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, barcode, username, statGroup)
	}
	return nil
}

// Barcodes returns the barcodes corrected so far, in call order.
func (m *MockCatalog) Barcodes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, 0, len(m.Calls))
	for _, c := range m.Calls {
		out = append(out, c.Barcode)
	}
	return out
}

var _ Catalog = (*MockCatalog)(nil)
