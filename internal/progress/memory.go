package progress

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process Publisher and Canceller used by tests. Entries
// honor the same TTL semantics as the Redis channel.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	cancels map[string]bool

	PublishError error
	GetError     error
}

type memoryEntry struct {
	snap      Snapshot
	expiresAt time.Time
}

// NewMemory creates an empty in-memory progress channel.
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]memoryEntry),
		cancels: make(map[string]bool),
	}
}

// Publish overwrites the snapshot for a scope and refreshes its TTL.
func (m *Memory) Publish(ctx context.Context, scope string, snap Snapshot) error {
	if m.PublishError != nil {
		return m.PublishError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[scope] = memoryEntry{snap: snap, expiresAt: time.Now().Add(TTL)}
	return nil
}

// Get returns the current snapshot, or nil when absent or expired.
func (m *Memory) Get(ctx context.Context, scope string) (*Snapshot, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.entries[scope]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, nil
	}
	snap := entry.snap
	return &snap, nil
}

// Expire drops a scope's entry immediately, simulating TTL expiry.
func (m *Memory) Expire(scope string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, scope)
}

// RequestCancel raises the cancellation flag for a task reference.
func (m *Memory) RequestCancel(ctx context.Context, taskRef string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancels[taskRef] = true
	return nil
}

// IsCancelled reports whether the flag is raised.
func (m *Memory) IsCancelled(ctx context.Context, taskRef string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cancels[taskRef], nil
}

// ClearCancel lowers the flag.
func (m *Memory) ClearCancel(ctx context.Context, taskRef string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cancels, taskRef)
	return nil
}
