package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/kozaktomas/photo-quality/internal/database"
)

// JobRepository provides PostgreSQL-backed quality job storage.
type JobRepository struct {
	pool *Pool
}

// NewJobRepository creates a new PostgreSQL job repository.
func NewJobRepository(pool *Pool) *JobRepository {
	return &JobRepository{pool: pool}
}

const jobColumns = `
	id, scope, status, total_images, processed_count, failed_count,
	task_ref, started_at, completed_at, error_message, created_at, updated_at
`

// Create inserts a new pending job for a scope.
func (r *JobRepository) Create(ctx context.Context, scope string, totalImages int) (*database.QualityJob, error) {
	id := uuid.New().String()

	row := r.pool.QueryRow(ctx, `
		INSERT INTO quality_jobs (id, scope, status, total_images)
		VALUES ($1, $2, 'pending', $3)
		RETURNING `+jobColumns,
		id, scope, totalImages,
	)

	job, err := scanJob(row)
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	return job, nil
}

// Get retrieves a job by ID.
func (r *JobRepository) Get(ctx context.Context, jobID string) (*database.QualityJob, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM quality_jobs WHERE id = $1`, jobID)

	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query job: %w", err)
	}
	return job, nil
}

// GetActive returns the most recent pending or processing job for a scope,
// or nil when no job is active.
func (r *JobRepository) GetActive(ctx context.Context, scope string) (*database.QualityJob, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+jobColumns+`
		FROM quality_jobs
		WHERE scope = $1 AND status IN ('pending', 'processing')
		ORDER BY created_at DESC
		LIMIT 1
	`, scope)

	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query active job: %w", err)
	}
	return job, nil
}

// ListRecent returns the newest jobs for a scope, most recent first.
func (r *JobRepository) ListRecent(ctx context.Context, scope string, limit int) ([]database.QualityJob, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+jobColumns+`
		FROM quality_jobs
		WHERE scope = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, scope, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []database.QualityJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return jobs, nil
}

// Start transitions a job to processing, stamps started_at, and freezes the
// total_images snapshot.
func (r *JobRepository) Start(ctx context.Context, jobID string, totalImages int) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE quality_jobs
		SET status = 'processing',
		    total_images = $2,
		    started_at = NOW(),
		    updated_at = NOW()
		WHERE id = $1
	`, jobID, totalImages)
	if err != nil {
		return fmt.Errorf("start job: %w", err)
	}
	return nil
}

// Transition moves a job to the given status. Terminal statuses stamp
// completed_at.
func (r *JobRepository) Transition(ctx context.Context, jobID string, status database.JobStatus, errMsg string) error {
	var err error
	if status.Terminal() {
		_, err = r.pool.Exec(ctx, `
			UPDATE quality_jobs
			SET status = $2, error_message = $3, completed_at = NOW(), updated_at = NOW()
			WHERE id = $1
		`, jobID, status, database.TruncateError(errMsg))
	} else {
		_, err = r.pool.Exec(ctx, `
			UPDATE quality_jobs
			SET status = $2, error_message = $3, updated_at = NOW()
			WHERE id = $1
		`, jobID, status, database.TruncateError(errMsg))
	}
	if err != nil {
		return fmt.Errorf("transition job to %s: %w", status, err)
	}
	return nil
}

// UpdateProgress overwrites the processed and failed counters.
func (r *JobRepository) UpdateProgress(ctx context.Context, jobID string, processed, failed int) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE quality_jobs
		SET processed_count = $2, failed_count = $3, updated_at = NOW()
		WHERE id = $1
	`, jobID, processed, failed)
	if err != nil {
		return fmt.Errorf("update job progress: %w", err)
	}
	return nil
}

// SetTaskRef stores the external task reference used for cancellation.
func (r *JobRepository) SetTaskRef(ctx context.Context, jobID, taskRef string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE quality_jobs
		SET task_ref = $2, updated_at = NOW()
		WHERE id = $1
	`, jobID, taskRef)
	if err != nil {
		return fmt.Errorf("set job task ref: %w", err)
	}
	return nil
}

func scanJob(s scanner) (*database.QualityJob, error) {
	var job database.QualityJob
	err := s.Scan(
		&job.ID, &job.Scope, &job.Status,
		&job.TotalImages, &job.ProcessedCount, &job.FailedCount,
		&job.TaskRef, &job.StartedAt, &job.CompletedAt,
		&job.ErrorMessage, &job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &job, nil
}
