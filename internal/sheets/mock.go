package sheets

import (
	"context"
	"sync"
)

// MockWriter is a mock audit sink for testing.
type MockWriter struct {
	AppendFunc  func(ctx context.Context, rows [][]any) error
	PingFunc    func(ctx context.Context) error
	AppendCalls [][][]any
	PingCalls   int
	mu          sync.Mutex
}

// NewMockWriter creates a new mock writer.
func NewMockWriter() *MockWriter {
	return &MockWriter{}
}

// AppendRows records the rows and returns the configured error, if any.
func (m *MockWriter) AppendRows(ctx context.Context, rows [][]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.AppendCalls = append(m.AppendCalls, rows)
	if m.AppendFunc != nil {
		return m.AppendFunc(ctx, rows)
	}
	return nil
}

// Ping returns the configured error, if any.
func (m *MockWriter) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.PingCalls++
	if m.PingFunc != nil {
		return m.PingFunc(ctx)
	}
	return nil
}

// Rows returns every row appended so far, across calls.
func (m *MockWriter) Rows() [][]any {
	m.mu.Lock()
	defer m.mu.Unlock()

	var rows [][]any
	for _, call := range m.AppendCalls {
		rows = append(rows, call...)
	}
	return rows
}

// SetAppendError configures the mock to fail every append with err.
func (m *MockWriter) SetAppendError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.AppendFunc = func(context.Context, [][]any) error {
		return err
	}
}
