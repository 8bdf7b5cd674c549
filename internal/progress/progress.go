// Package progress maintains the ephemeral, TTL-bound progress channel
// polled by clients while a quality job runs. It is strictly a side
// channel: the durable job record stays authoritative and callers must
// fall back to it when a progress entry is missing or expired.
package progress

import (
	"context"
	"time"
)

// TTL is how long a progress entry lives after its last update. Expiry is
// independent of job completion; a missing entry never means "abandoned".
const TTL = time.Hour

// Snapshot mirrors the job counters for polling clients.
type Snapshot struct {
	Status    string `json:"status"`
	Processed int    `json:"processed"`
	Failed    int    `json:"failed"`
	Total     int    `json:"total"`
	Error     string `json:"error,omitempty"`
	StartedAt string `json:"started_at,omitempty"`
}

// Publisher writes and reads progress snapshots keyed by scope.
type Publisher interface {
	// Publish overwrites the snapshot for a scope and refreshes its TTL.
	Publish(ctx context.Context, scope string, snap Snapshot) error
	// Get returns the current snapshot, or nil when absent or expired.
	Get(ctx context.Context, scope string) (*Snapshot, error)
}

// Canceller delivers the coarse-grained cancellation signal keyed by a
// job's external task reference. The orchestrator polls it between chunks.
type Canceller interface {
	// RequestCancel raises the cancellation flag for a task reference.
	RequestCancel(ctx context.Context, taskRef string) error
	// IsCancelled reports whether the flag is raised.
	IsCancelled(ctx context.Context, taskRef string) (bool, error)
	// ClearCancel lowers the flag once the job has acted on it.
	ClearCancel(ctx context.Context, taskRef string) error
}
