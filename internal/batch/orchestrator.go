// Package batch drives quality jobs to completion: it discovers unscored
// images, processes them in bounded chunks, persists results, and keeps
// the job record and progress channel up to date.
package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kozaktomas/photo-quality/internal/database"
	"github.com/kozaktomas/photo-quality/internal/fingerprint"
	"github.com/kozaktomas/photo-quality/internal/progress"
	"github.com/kozaktomas/photo-quality/internal/quality"
	"github.com/kozaktomas/photo-quality/internal/storage"
)

// DefaultBatchSize is the chunk size used when the caller passes zero.
const DefaultBatchSize = 50

// JobError marks an unrecoverable failure escaping the per-image guards.
// It aborts the current run; the execution environment may retry the
// whole job as a unit.
type JobError struct {
	JobID string
	Err   error
}

func (e *JobError) Error() string {
	return fmt.Sprintf("job %s: %v", e.JobID, e.Err)
}

func (e *JobError) Unwrap() error {
	return e.Err
}

// Summary is the terminal result of one job run.
type Summary struct {
	JobID     string
	Status    database.JobStatus
	Processed int
	Failed    int
	Total     int
}

// Orchestrator owns the resumable batch loop. All collaborators are
// injected; the orchestrator holds no global state.
type Orchestrator struct {
	records   database.RecordStore
	jobs      database.JobTracker
	source    storage.Source
	publisher progress.Publisher
	canceller progress.Canceller
	logger    zerolog.Logger
}

// New wires an orchestrator. The canceller may be nil, in which case
// mid-run cancellation checks are skipped.
func New(
	records database.RecordStore,
	jobs database.JobTracker,
	source storage.Source,
	publisher progress.Publisher,
	canceller progress.Canceller,
	logger zerolog.Logger,
) *Orchestrator {
	return &Orchestrator{
		records:   records,
		jobs:      jobs,
		source:    source,
		publisher: publisher,
		canceller: canceller,
		logger:    logger.With().Str("component", "batch").Logger(),
	}
}

// Run executes one quality job over a scope. It picks up the scope's
// pending job or creates a fresh one; a job already processing is a
// caller error (two concurrent runs on one scope would double-process
// records). Per-image failures are isolated; anything else aborts the run
// with a JobError after the job is transitioned to failed.
func (o *Orchestrator) Run(ctx context.Context, scope string, batchSize int) (*Summary, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	job, err := o.pickupJob(ctx, scope)
	if err != nil {
		return nil, err
	}

	// Freeze the denominator before any work happens. The corpus may grow
	// mid-run; the stored total never moves with it.
	without, err := o.records.CountWithoutRecord(ctx, scope)
	if err != nil {
		return nil, o.failJob(ctx, job, scope, fmt.Errorf("count images without record: %w", err))
	}
	pending, err := o.records.CountPending(ctx, scope)
	if err != nil {
		return nil, o.failJob(ctx, job, scope, fmt.Errorf("count pending records: %w", err))
	}
	total := without + pending

	if err := o.jobs.Start(ctx, job.ID, total); err != nil {
		return nil, o.failJob(ctx, job, scope, fmt.Errorf("start job: %w", err))
	}
	startedAt := time.Now().UTC().Format(time.RFC3339)

	o.logger.Info().
		Str("job_id", job.ID).
		Str("scope", scope).
		Int("total", total).
		Int("batch_size", batchSize).
		Msg("quality job started")

	o.publish(ctx, scope, progress.Snapshot{
		Status:    string(database.JobProcessing),
		Total:     total,
		StartedAt: startedAt,
	})

	processed := 0
	failed := 0

	// Safety cap guarantees termination even if every image keeps landing
	// back in the pending page.
	maxIterations := total/batchSize + 10

	for iteration := 0; iteration < maxIterations; iteration++ {
		cancelled, err := o.checkCancelled(ctx, job)
		if err != nil {
			o.logger.Warn().Err(err).Str("job_id", job.ID).Msg("cancellation check failed")
		}
		if cancelled {
			return o.cancelJob(ctx, job, scope, processed, failed, total, startedAt)
		}

		discovered, err := o.records.ListImagesWithoutRecord(ctx, scope, batchSize)
		if err != nil {
			return nil, o.failJob(ctx, job, scope, fmt.Errorf("discover images: %w", err))
		}
		if len(discovered) > 0 {
			if _, err := o.records.UpsertPending(ctx, scope, discovered); err != nil {
				return nil, o.failJob(ctx, job, scope, fmt.Errorf("create pending records: %w", err))
			}
		}

		chunk, err := o.records.ListPending(ctx, scope, batchSize)
		if err != nil {
			return nil, o.failJob(ctx, job, scope, fmt.Errorf("list pending records: %w", err))
		}
		if len(discovered) == 0 && len(chunk) == 0 {
			break
		}

		chunkProcessed, chunkFailed, err := o.processChunk(ctx, scope, chunk)
		if err != nil {
			return nil, o.failJob(ctx, job, scope, err)
		}
		processed += chunkProcessed
		failed += chunkFailed

		if err := o.jobs.UpdateProgress(ctx, job.ID, processed, failed); err != nil {
			return nil, o.failJob(ctx, job, scope, fmt.Errorf("update progress: %w", err))
		}
		o.publish(ctx, scope, progress.Snapshot{
			Status:    string(database.JobProcessing),
			Processed: processed,
			Failed:    failed,
			Total:     total,
			StartedAt: startedAt,
		})

		done, err := o.remainingWorkIsZero(ctx, scope)
		if err != nil {
			return nil, o.failJob(ctx, job, scope, err)
		}
		if done {
			break
		}
	}

	if err := o.jobs.Transition(ctx, job.ID, database.JobCompleted, ""); err != nil {
		return nil, o.failJob(ctx, job, scope, fmt.Errorf("complete job: %w", err))
	}
	o.publish(ctx, scope, progress.Snapshot{
		Status:    string(database.JobCompleted),
		Processed: processed,
		Failed:    failed,
		Total:     total,
		StartedAt: startedAt,
	})

	o.logger.Info().
		Str("job_id", job.ID).
		Str("scope", scope).
		Int("processed", processed).
		Int("failed", failed).
		Msg("quality job completed")

	return &Summary{
		JobID:     job.ID,
		Status:    database.JobCompleted,
		Processed: processed,
		Failed:    failed,
		Total:     total,
	}, nil
}

// processChunk runs the per-image pipeline for one page of pending
// records. Individual failures mark the record failed and continue; only
// storage-layer errors abort the chunk.
func (o *Orchestrator) processChunk(ctx context.Context, scope string, chunk []database.QualityRecord) (processed, failed int, err error) {
	computed := make(map[string]*quality.Metrics, len(chunk))
	newHashes := make(map[string]fingerprint.Hash, len(chunk))

	for _, rec := range chunk {
		data, err := o.source.Fetch(ctx, rec.FilePath)
		if err != nil {
			if markErr := o.records.MarkFailed(ctx, rec.ImageID, err.Error()); markErr != nil {
				return processed, failed, fmt.Errorf("mark record failed: %w", markErr)
			}
			failed++
			o.logger.Debug().Str("image_id", rec.ImageID).Err(err).Msg("source fetch failed")
			continue
		}

		if err := o.records.MarkProcessing(ctx, rec.ImageID); err != nil {
			return processed, failed, fmt.Errorf("mark record processing: %w", err)
		}

		m, err := quality.Compute(data)
		if err != nil {
			if markErr := o.records.MarkFailed(ctx, rec.ImageID, err.Error()); markErr != nil {
				return processed, failed, fmt.Errorf("mark record failed: %w", markErr)
			}
			failed++
			o.logger.Debug().Str("image_id", rec.ImageID).Err(err).Msg("metric computation failed")
			continue
		}

		computed[rec.ImageID] = m
		newHashes[rec.ImageID] = m.PHash
	}

	if len(computed) == 0 {
		return processed, failed, nil
	}

	// One uniqueness pass per chunk keeps the batch-local comparison
	// consistent: near-duplicates uploaded together penalize each other.
	existing, err := o.records.ExistingHashes(ctx, scope)
	if err != nil {
		return processed, failed, fmt.Errorf("load existing hashes: %w", err)
	}
	scores := quality.ScoreBatch(newHashes, existing)

	for imageID, m := range computed {
		uniqueness, ok := scores[imageID]
		if !ok {
			// Hashing failed upstream: unknown rather than poor quality.
			uniqueness = 1.0
		}

		overall := quality.OverallQuality(m.Sharpness, m.Brightness, m.Contrast, uniqueness)
		issues := quality.DetectIssues(m.Sharpness, m.Brightness, m.Contrast, uniqueness)

		err := o.records.WriteCompleted(ctx, imageID, database.CompletedMetrics{
			Sharpness:      m.Sharpness,
			Brightness:     m.Brightness,
			Contrast:       m.Contrast,
			Uniqueness:     uniqueness,
			RedAvg:         m.RedAvg,
			GreenAvg:       m.GreenAvg,
			BlueAvg:        m.BlueAvg,
			OverallQuality: overall,
			PerceptualHash: m.PHash.String(),
			Issues:         issues,
		})
		if err != nil {
			return processed, failed, fmt.Errorf("write completed record: %w", err)
		}
		processed++
	}

	return processed, failed, nil
}

// pickupJob returns the scope's pending job or creates a fresh one. A job
// already processing means another run owns the scope. Jobs without a task
// reference get one here so cancellation works regardless of how the run
// was launched.
func (o *Orchestrator) pickupJob(ctx context.Context, scope string) (*database.QualityJob, error) {
	job, err := o.jobs.GetActive(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("look up active job: %w", err)
	}
	if job == nil {
		job, err = o.jobs.Create(ctx, scope, 0)
		if err != nil {
			return nil, fmt.Errorf("create job: %w", err)
		}
	} else if job.Status == database.JobProcessing {
		return nil, fmt.Errorf("job %s for scope %s is already processing", job.ID, scope)
	}

	if job.TaskRef == "" {
		ref := uuid.New().String()
		if err := o.jobs.SetTaskRef(ctx, job.ID, ref); err != nil {
			return nil, fmt.Errorf("set task reference: %w", err)
		}
		job.TaskRef = ref
	}
	return job, nil
}

// checkCancelled polls the cancellation flag for the job's task reference.
func (o *Orchestrator) checkCancelled(ctx context.Context, job *database.QualityJob) (bool, error) {
	if o.canceller == nil || job.TaskRef == "" {
		return false, nil
	}
	return o.canceller.IsCancelled(ctx, job.TaskRef)
}

// cancelJob transitions the job to cancelled and clears the flag.
func (o *Orchestrator) cancelJob(ctx context.Context, job *database.QualityJob, scope string, processed, failed, total int, startedAt string) (*Summary, error) {
	if err := o.jobs.Transition(ctx, job.ID, database.JobCancelled, ""); err != nil {
		return nil, &JobError{JobID: job.ID, Err: fmt.Errorf("cancel job: %w", err)}
	}
	if job.TaskRef != "" && o.canceller != nil {
		if err := o.canceller.ClearCancel(ctx, job.TaskRef); err != nil {
			o.logger.Warn().Err(err).Str("job_id", job.ID).Msg("failed to clear cancel flag")
		}
	}
	o.publish(ctx, scope, progress.Snapshot{
		Status:    string(database.JobCancelled),
		Processed: processed,
		Failed:    failed,
		Total:     total,
		StartedAt: startedAt,
	})

	o.logger.Info().Str("job_id", job.ID).Str("scope", scope).Msg("quality job cancelled")

	return &Summary{
		JobID:     job.ID,
		Status:    database.JobCancelled,
		Processed: processed,
		Failed:    failed,
		Total:     total,
	}, nil
}

// failJob records a job-level failure and returns the wrapping JobError.
func (o *Orchestrator) failJob(ctx context.Context, job *database.QualityJob, scope string, cause error) error {
	if err := o.jobs.Transition(ctx, job.ID, database.JobFailed, cause.Error()); err != nil {
		o.logger.Error().Err(err).Str("job_id", job.ID).Msg("failed to record job failure")
	}
	o.publish(ctx, scope, progress.Snapshot{
		Status: string(database.JobFailed),
		Error:  database.TruncateError(cause.Error()),
	})
	o.logger.Error().Err(cause).Str("job_id", job.ID).Str("scope", scope).Msg("quality job failed")
	return &JobError{JobID: job.ID, Err: cause}
}

// remainingWorkIsZero verifies via aggregate counts that the scope has no
// undiscovered images and no pending records left.
func (o *Orchestrator) remainingWorkIsZero(ctx context.Context, scope string) (bool, error) {
	without, err := o.records.CountWithoutRecord(ctx, scope)
	if err != nil {
		return false, fmt.Errorf("count images without record: %w", err)
	}
	if without > 0 {
		return false, nil
	}
	pending, err := o.records.CountPending(ctx, scope)
	if err != nil {
		return false, fmt.Errorf("count pending records: %w", err)
	}
	return pending == 0, nil
}

// publish pushes a snapshot to the side channel. Publish failures degrade
// to the durable job record and are never surfaced to the caller.
func (o *Orchestrator) publish(ctx context.Context, scope string, snap progress.Snapshot) {
	if o.publisher == nil {
		return
	}
	if err := o.publisher.Publish(ctx, scope, snap); err != nil {
		o.logger.Warn().Err(err).Str("scope", scope).Msg("progress publish failed")
	}
}
