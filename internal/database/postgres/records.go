package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/kozaktomas/photo-quality/internal/database"
	"github.com/kozaktomas/photo-quality/internal/fingerprint"
)

// RecordRepository provides PostgreSQL-backed quality record storage.
// Catalog reads go to the external image catalog; everything else lives in
// the quality_records table.
type RecordRepository struct {
	pool    *Pool
	catalog database.Catalog
}

// NewRecordRepository creates a new PostgreSQL record repository.
func NewRecordRepository(pool *Pool, catalog database.Catalog) *RecordRepository {
	return &RecordRepository{pool: pool, catalog: catalog}
}

const recordColumns = `
	image_id, scope, file_path,
	sharpness, brightness, contrast, uniqueness,
	red_avg, green_avg, blue_avg, overall_quality,
	perceptual_hash, issues, status, error_message,
	computed_at, created_at, updated_at
`

// Get retrieves a record by image ID, returns nil if not found.
func (r *RecordRepository) Get(ctx context.Context, imageID string) (*database.QualityRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM quality_records WHERE image_id = $1`

	rec, err := scanRecord(r.pool.QueryRow(ctx, query, imageID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query record: %w", err)
	}
	return rec, nil
}

// UpsertPending creates pending records for the given images, leaving
// existing records untouched. Returns how many records were created.
func (r *RecordRepository) UpsertPending(ctx context.Context, scope string, images []database.ImageRef) (int, error) {
	if len(images) == 0 {
		return 0, nil
	}

	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	created := 0
	for _, img := range images {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO quality_records (image_id, scope, file_path, status)
			VALUES ($1, $2, $3, 'pending')
			ON CONFLICT (image_id) DO NOTHING
		`, img.ID, scope, img.Path)
		if err != nil {
			return 0, fmt.Errorf("insert pending record for %s: %w", img.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("rows affected: %w", err)
		}
		created += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit pending records: %w", err)
	}
	return created, nil
}

// ListPending returns a bounded page of pending records, oldest first.
func (r *RecordRepository) ListPending(ctx context.Context, scope string, limit int) ([]database.QualityRecord, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM quality_records
		WHERE scope = $1 AND status = 'pending'
		ORDER BY created_at
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, scope, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []database.QualityRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}

// ListImagesWithoutRecord returns up to limit catalog images the store has
// not yet seen.
func (r *RecordRepository) ListImagesWithoutRecord(ctx context.Context, scope string, limit int) ([]database.ImageRef, error) {
	refs, err := r.catalog.ListImages(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("list catalog images: %w", err)
	}
	if len(refs) == 0 {
		return nil, nil
	}

	known, err := r.knownImageIDs(ctx, refs)
	if err != nil {
		return nil, err
	}

	var missing []database.ImageRef
	for _, ref := range refs {
		if known[ref.ID] {
			continue
		}
		missing = append(missing, ref)
		if len(missing) >= limit {
			break
		}
	}
	return missing, nil
}

// CountWithoutRecord returns the true number of catalog images without a
// record, an aggregate count rather than an existence check.
func (r *RecordRepository) CountWithoutRecord(ctx context.Context, scope string) (int, error) {
	refs, err := r.catalog.ListImages(ctx, scope)
	if err != nil {
		return 0, fmt.Errorf("list catalog images: %w", err)
	}
	if len(refs) == 0 {
		return 0, nil
	}

	ids := make([]string, len(refs))
	for i, ref := range refs {
		ids[i] = ref.ID
	}

	var known int
	err = r.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM quality_records WHERE image_id = ANY($1)",
		pq.Array(ids),
	).Scan(&known)
	if err != nil {
		return 0, fmt.Errorf("count known records: %w", err)
	}
	return len(refs) - known, nil
}

// CountPending returns the true number of pending records in a scope.
func (r *RecordRepository) CountPending(ctx context.Context, scope string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM quality_records WHERE scope = $1 AND status = 'pending'",
		scope,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count pending records: %w", err)
	}
	return count, nil
}

// MarkProcessing transitions a record to processing.
func (r *RecordRepository) MarkProcessing(ctx context.Context, imageID string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE quality_records
		SET status = 'processing', updated_at = NOW()
		WHERE image_id = $1
	`, imageID)
	if err != nil {
		return fmt.Errorf("mark record processing: %w", err)
	}
	return nil
}

// MarkFailed transitions a record to failed with a truncated error message.
func (r *RecordRepository) MarkFailed(ctx context.Context, imageID string, errMsg string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE quality_records
		SET status = 'failed', error_message = $2, updated_at = NOW()
		WHERE image_id = $1
	`, imageID, database.TruncateError(errMsg))
	if err != nil {
		return fmt.Errorf("mark record failed: %w", err)
	}
	return nil
}

// WriteCompleted stores the full metric set and stamps computed_at.
func (r *RecordRepository) WriteCompleted(ctx context.Context, imageID string, m database.CompletedMetrics) error {
	issues := m.Issues
	if issues == nil {
		issues = []string{}
	}

	_, err := r.pool.Exec(ctx, `
		UPDATE quality_records
		SET sharpness = $2,
		    brightness = $3,
		    contrast = $4,
		    uniqueness = $5,
		    red_avg = $6,
		    green_avg = $7,
		    blue_avg = $8,
		    overall_quality = $9,
		    perceptual_hash = NULLIF($10, ''),
		    issues = $11,
		    status = 'completed',
		    error_message = NULL,
		    computed_at = NOW(),
		    updated_at = NOW()
		WHERE image_id = $1
	`,
		imageID,
		m.Sharpness, m.Brightness, m.Contrast, m.Uniqueness,
		m.RedAvg, m.GreenAvg, m.BlueAvg, m.OverallQuality,
		m.PerceptualHash, pq.Array(issues),
	)
	if err != nil {
		return fmt.Errorf("write completed record: %w", err)
	}
	return nil
}

// ExistingHashes returns the hashes of all completed records in a scope.
func (r *RecordRepository) ExistingHashes(ctx context.Context, scope string) (map[string]fingerprint.Hash, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT image_id, perceptual_hash
		FROM quality_records
		WHERE scope = $1 AND status = 'completed' AND perceptual_hash IS NOT NULL
	`, scope)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	hashes := make(map[string]fingerprint.Hash)
	for rows.Next() {
		var imageID, hex string
		if err := rows.Scan(&imageID, &hex); err != nil {
			return nil, fmt.Errorf("scan hash: %w", err)
		}
		hash, err := fingerprint.Parse(hex)
		if err != nil {
			// A malformed stored hash must not poison dedup for the batch.
			continue
		}
		hashes[imageID] = hash
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate hashes: %w", err)
	}
	return hashes, nil
}

// knownImageIDs returns which of the given catalog images already have records.
func (r *RecordRepository) knownImageIDs(ctx context.Context, refs []database.ImageRef) (map[string]bool, error) {
	ids := make([]string, len(refs))
	for i, ref := range refs {
		ids[i] = ref.ID
	}

	rows, err := r.pool.Query(ctx,
		"SELECT image_id FROM quality_records WHERE image_id = ANY($1)",
		pq.Array(ids),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	known := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan image id: %w", err)
		}
		known[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate image ids: %w", err)
	}
	return known, nil
}

// scanner abstracts sql.Row and sql.Rows for scanRecord.
type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*database.QualityRecord, error) {
	var rec database.QualityRecord
	var issues pq.StringArray

	err := s.Scan(
		&rec.ImageID, &rec.Scope, &rec.FilePath,
		&rec.Sharpness, &rec.Brightness, &rec.Contrast, &rec.Uniqueness,
		&rec.RedAvg, &rec.GreenAvg, &rec.BlueAvg, &rec.OverallQuality,
		&rec.PerceptualHash, &issues, &rec.Status, &rec.ErrorMessage,
		&rec.ComputedAt, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.Issues = issues
	return &rec, nil
}
