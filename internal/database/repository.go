package database

import (
	"context"
	"errors"

	"github.com/kozaktomas/photo-quality/internal/fingerprint"
)

// ErrNotFound is returned when a requested record or job does not exist.
var ErrNotFound = errors.New("not found")

// Catalog provides read-only access to the external image catalog that
// owns the corpus. This service never writes to it.
type Catalog interface {
	// ListImages returns all image references in a scope.
	ListImages(ctx context.Context, scope string) ([]ImageRef, error)
	// CountImages returns the number of images in a scope.
	CountImages(ctx context.Context, scope string) (int, error)
}

// RecordStore persists one quality record per image.
type RecordStore interface {
	// Get retrieves a record by image ID, returns nil if not found.
	Get(ctx context.Context, imageID string) (*QualityRecord, error)

	// UpsertPending creates pending records for the given images and
	// returns how many were created. Existing records are left untouched.
	UpsertPending(ctx context.Context, scope string, images []ImageRef) (int, error)

	// ListPending returns a bounded page of pending records for a scope,
	// oldest first.
	ListPending(ctx context.Context, scope string, limit int) ([]QualityRecord, error)

	// ListImagesWithoutRecord returns up to limit catalog images in the
	// scope that the store has not yet seen.
	ListImagesWithoutRecord(ctx context.Context, scope string, limit int) ([]ImageRef, error)

	// MarkProcessing transitions a record to processing.
	MarkProcessing(ctx context.Context, imageID string) error

	// MarkFailed transitions a record to failed with a truncated error.
	MarkFailed(ctx context.Context, imageID string, errMsg string) error

	// WriteCompleted stores the full metric set and stamps computed_at.
	WriteCompleted(ctx context.Context, imageID string, m CompletedMetrics) error

	// CountWithoutRecord returns the true number of catalog images in the
	// scope without a record. Used to decide job completion, so it must be
	// an aggregate count, not an existence check.
	CountWithoutRecord(ctx context.Context, scope string) (int, error)

	// CountPending returns the true number of pending records in a scope.
	CountPending(ctx context.Context, scope string) (int, error)

	// ExistingHashes returns the perceptual hashes of all completed
	// records in a scope, keyed by image ID.
	ExistingHashes(ctx context.Context, scope string) (map[string]fingerprint.Hash, error)
}

// JobTracker persists batch job records.
type JobTracker interface {
	// Create inserts a new pending job for a scope.
	Create(ctx context.Context, scope string, totalImages int) (*QualityJob, error)

	// Get retrieves a job by ID, returns ErrNotFound if missing.
	Get(ctx context.Context, jobID string) (*QualityJob, error)

	// GetActive returns the most recent pending or processing job for a
	// scope, or nil when no job is active.
	GetActive(ctx context.Context, scope string) (*QualityJob, error)

	// ListRecent returns the newest jobs for a scope, most recent first.
	ListRecent(ctx context.Context, scope string, limit int) ([]QualityJob, error)

	// Start transitions a job to processing, stamps started_at, and
	// freezes the total_images snapshot.
	Start(ctx context.Context, jobID string, totalImages int) error

	// Transition moves a job to the given status. Terminal statuses stamp
	// completed_at; the error message is truncated before storage.
	Transition(ctx context.Context, jobID string, status JobStatus, errMsg string) error

	// UpdateProgress overwrites the processed and failed counters.
	UpdateProgress(ctx context.Context, jobID string, processed, failed int) error

	// SetTaskRef stores the external task reference used for cancellation.
	SetTaskRef(ctx context.Context, jobID, taskRef string) error
}
