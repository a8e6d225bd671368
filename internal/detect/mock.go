package detect

import (
	"context"
	"sync"

	"github.com/Veraticus/transitfix/internal/model"
)

// MockStore is a mock implementation of RecordStore for testing.
type MockStore struct {
	SnapshotFn    func(ctx context.Context) (*model.Snapshot, error)
	Snap          *model.Snapshot
	SnapshotCalls int
	mu            sync.Mutex
}

// NewMockStore creates a mock store that returns snap.
func NewMockStore(snap *model.Snapshot) *MockStore {
	return &MockStore{Snap: snap}
}

// Snapshot implements RecordStore.
func (m *MockStore) Snapshot(ctx context.Context) (*model.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.SnapshotCalls++
	if m.SnapshotFn != nil {
		return m.SnapshotFn(ctx)
	}
	if m.Snap == nil {
		return &model.Snapshot{}, nil
	}
	return m.Snap, nil
}

var _ RecordStore = (*MockStore)(nil)
