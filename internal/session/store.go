package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// keyPrefix namespaces persisted snapshots.
const keyPrefix = "phonoplay:session:"

// Key returns the storage key for a session ID.
func Key(id string) string { return keyPrefix + id }

// SnapshotStore persists session snapshots so a session survives a page
// refresh or a restart.
type SnapshotStore interface {
	// Save writes snap under [Key](snap.ID), replacing older versions.
	Save(ctx context.Context, snap Snapshot) error
	// Load returns the stored snapshot or an error wrapping [ErrNotFound].
	Load(ctx context.Context, id string) (Snapshot, error)
	// Delete removes the snapshot. Deleting a missing snapshot is not an
	// error.
	Delete(ctx context.Context, id string) error
}

// MemoryStore is an in-process [SnapshotStore]. Snapshots are stored
// JSON-encoded, so callers never share slices with the store.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

var _ SnapshotStore = (*MemoryStore)(nil)

// NewMemoryStore returns an empty [MemoryStore].
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

// Save implements [SnapshotStore]. A snapshot older than the stored one is
// ignored.
func (m *MemoryStore) Save(_ context.Context, snap Snapshot) error {
	b, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("session: memory store: marshal: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.data[Key(snap.ID)]; ok {
		var prev struct {
			Version uint64 `json:"version"`
		}
		if json.Unmarshal(old, &prev) == nil && prev.Version > snap.Version {
			return nil
		}
	}
	m.data[Key(snap.ID)] = b
	return nil
}

// Load implements [SnapshotStore].
func (m *MemoryStore) Load(_ context.Context, id string) (Snapshot, error) {
	m.mu.RLock()
	b, ok := m.data[Key(id)]
	m.mu.RUnlock()
	if !ok {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	var snap Snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("session: memory store: unmarshal: %w", err)
	}
	return snap, nil
}

// Delete implements [SnapshotStore].
func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, Key(id))
	return nil
}

// Len returns the number of stored snapshots.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}
