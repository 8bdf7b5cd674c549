// Package mock provides in-memory implementations of the database
// interfaces for testing.
package mock

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kozaktomas/photo-quality/internal/database"
	"github.com/kozaktomas/photo-quality/internal/fingerprint"
)

// Catalog is an in-memory database.Catalog.
type Catalog struct {
	mu     sync.RWMutex
	images map[string][]database.ImageRef // scope -> refs

	ListError  error
	CountError error
}

// NewCatalog creates an empty in-memory catalog.
func NewCatalog() *Catalog {
	return &Catalog{images: make(map[string][]database.ImageRef)}
}

// AddImage registers an image in a scope.
func (c *Catalog) AddImage(scope string, ref database.ImageRef) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.images[scope] = append(c.images[scope], ref)
}

// ListImages returns all image references in a scope.
func (c *Catalog) ListImages(ctx context.Context, scope string) ([]database.ImageRef, error) {
	if c.ListError != nil {
		return nil, c.ListError
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	refs := make([]database.ImageRef, len(c.images[scope]))
	copy(refs, c.images[scope])
	return refs, nil
}

// CountImages returns the number of images in a scope.
func (c *Catalog) CountImages(ctx context.Context, scope string) (int, error) {
	if c.CountError != nil {
		return 0, c.CountError
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.images[scope]), nil
}

// RecordStore is an in-memory database.RecordStore backed by a Catalog.
type RecordStore struct {
	mu      sync.RWMutex
	catalog *Catalog
	records map[string]*database.QualityRecord
	seq     int // insertion order, stands in for created_at ordering

	UpsertError error
	ListError   error
	WriteError  error
}

// NewRecordStore creates an empty in-memory record store.
func NewRecordStore(catalog *Catalog) *RecordStore {
	return &RecordStore{
		catalog: catalog,
		records: make(map[string]*database.QualityRecord),
	}
}

// Record returns the stored record for direct inspection in tests.
func (s *RecordStore) Record(imageID string) *database.QualityRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records[imageID]
}

// Get retrieves a record by image ID, returns nil if not found.
func (s *RecordStore) Get(ctx context.Context, imageID string) (*database.QualityRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[imageID]
	if !ok {
		return nil, nil
	}
	clone := *rec
	return &clone, nil
}

// UpsertPending creates pending records, leaving existing ones untouched.
func (s *RecordStore) UpsertPending(ctx context.Context, scope string, images []database.ImageRef) (int, error) {
	if s.UpsertError != nil {
		return 0, s.UpsertError
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	created := 0
	for _, img := range images {
		if _, ok := s.records[img.ID]; ok {
			continue
		}
		s.seq++
		now := time.Now()
		s.records[img.ID] = &database.QualityRecord{
			ImageID:   img.ID,
			Scope:     scope,
			FilePath:  img.Path,
			Status:    database.RecordPending,
			CreatedAt: now.Add(time.Duration(s.seq)), // stable ordering
			UpdatedAt: now,
		}
		created++
	}
	return created, nil
}

// ListPending returns a bounded page of pending records, oldest first.
func (s *RecordStore) ListPending(ctx context.Context, scope string, limit int) ([]database.QualityRecord, error) {
	if s.ListError != nil {
		return nil, s.ListError
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var pending []database.QualityRecord
	for _, rec := range s.records {
		if rec.Scope == scope && rec.Status == database.RecordPending {
			pending = append(pending, *rec)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	if len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

// ListImagesWithoutRecord returns up to limit catalog images without records.
func (s *RecordStore) ListImagesWithoutRecord(ctx context.Context, scope string, limit int) ([]database.ImageRef, error) {
	refs, err := s.catalog.ListImages(ctx, scope)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var missing []database.ImageRef
	for _, ref := range refs {
		if _, ok := s.records[ref.ID]; ok {
			continue
		}
		missing = append(missing, ref)
		if len(missing) >= limit {
			break
		}
	}
	return missing, nil
}

// MarkProcessing transitions a record to processing.
func (s *RecordStore) MarkProcessing(ctx context.Context, imageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.records[imageID]; ok {
		rec.Status = database.RecordProcessing
		rec.UpdatedAt = time.Now()
	}
	return nil
}

// MarkFailed transitions a record to failed with a truncated error.
func (s *RecordStore) MarkFailed(ctx context.Context, imageID string, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.records[imageID]; ok {
		msg := database.TruncateError(errMsg)
		rec.Status = database.RecordFailed
		rec.ErrorMessage = &msg
		rec.UpdatedAt = time.Now()
	}
	return nil
}

// WriteCompleted stores the full metric set and stamps computed_at.
func (s *RecordStore) WriteCompleted(ctx context.Context, imageID string, m database.CompletedMetrics) error {
	if s.WriteError != nil {
		return s.WriteError
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[imageID]
	if !ok {
		return database.ErrNotFound
	}
	now := time.Now()
	rec.Sharpness = &m.Sharpness
	rec.Brightness = &m.Brightness
	rec.Contrast = &m.Contrast
	rec.Uniqueness = &m.Uniqueness
	rec.RedAvg = &m.RedAvg
	rec.GreenAvg = &m.GreenAvg
	rec.BlueAvg = &m.BlueAvg
	rec.OverallQuality = &m.OverallQuality
	if m.PerceptualHash != "" {
		hash := m.PerceptualHash
		rec.PerceptualHash = &hash
	}
	rec.Issues = m.Issues
	rec.Status = database.RecordCompleted
	rec.ErrorMessage = nil
	rec.ComputedAt = &now
	rec.UpdatedAt = now
	return nil
}

// CountWithoutRecord returns the number of catalog images without a record.
func (s *RecordStore) CountWithoutRecord(ctx context.Context, scope string) (int, error) {
	refs, err := s.catalog.ListImages(ctx, scope)
	if err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, ref := range refs {
		if _, ok := s.records[ref.ID]; !ok {
			count++
		}
	}
	return count, nil
}

// CountPending returns the number of pending records in a scope.
func (s *RecordStore) CountPending(ctx context.Context, scope string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, rec := range s.records {
		if rec.Scope == scope && rec.Status == database.RecordPending {
			count++
		}
	}
	return count, nil
}

// ExistingHashes returns hashes of completed records in a scope.
func (s *RecordStore) ExistingHashes(ctx context.Context, scope string) (map[string]fingerprint.Hash, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	hashes := make(map[string]fingerprint.Hash)
	for id, rec := range s.records {
		if rec.Scope != scope || rec.Status != database.RecordCompleted || rec.PerceptualHash == nil {
			continue
		}
		hash, err := fingerprint.Parse(*rec.PerceptualHash)
		if err != nil {
			continue
		}
		hashes[id] = hash
	}
	return hashes, nil
}

// JobTracker is an in-memory database.JobTracker.
type JobTracker struct {
	mu   sync.RWMutex
	jobs map[string]*database.QualityJob

	CreateError     error
	TransitionError error
}

// NewJobTracker creates an empty in-memory job tracker.
func NewJobTracker() *JobTracker {
	return &JobTracker{jobs: make(map[string]*database.QualityJob)}
}

// Job returns the stored job for direct inspection in tests.
func (t *JobTracker) Job(jobID string) *database.QualityJob {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.jobs[jobID]
}

// Create inserts a new pending job for a scope.
func (t *JobTracker) Create(ctx context.Context, scope string, totalImages int) (*database.QualityJob, error) {
	if t.CreateError != nil {
		return nil, t.CreateError
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	job := &database.QualityJob{
		ID:          uuid.New().String(),
		Scope:       scope,
		Status:      database.JobPending,
		TotalImages: totalImages,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	t.jobs[job.ID] = job
	clone := *job
	return &clone, nil
}

// Get retrieves a job by ID.
func (t *JobTracker) Get(ctx context.Context, jobID string) (*database.QualityJob, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	job, ok := t.jobs[jobID]
	if !ok {
		return nil, database.ErrNotFound
	}
	clone := *job
	return &clone, nil
}

// GetActive returns the most recent pending or processing job for a scope.
func (t *JobTracker) GetActive(ctx context.Context, scope string) (*database.QualityJob, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var active *database.QualityJob
	for _, job := range t.jobs {
		if job.Scope != scope {
			continue
		}
		if job.Status != database.JobPending && job.Status != database.JobProcessing {
			continue
		}
		if active == nil || job.CreatedAt.After(active.CreatedAt) {
			active = job
		}
	}
	if active == nil {
		return nil, nil
	}
	clone := *active
	return &clone, nil
}

// ListRecent returns the newest jobs for a scope, most recent first.
func (t *JobTracker) ListRecent(ctx context.Context, scope string, limit int) ([]database.QualityJob, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var jobs []database.QualityJob
	for _, job := range t.jobs {
		if job.Scope == scope {
			jobs = append(jobs, *job)
		}
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	if len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

// Start transitions a job to processing and freezes the total snapshot.
func (t *JobTracker) Start(ctx context.Context, jobID string, totalImages int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	job, ok := t.jobs[jobID]
	if !ok {
		return database.ErrNotFound
	}
	now := time.Now()
	job.Status = database.JobProcessing
	job.TotalImages = totalImages
	job.StartedAt = &now
	job.UpdatedAt = now
	return nil
}

// Transition moves a job to the given status.
func (t *JobTracker) Transition(ctx context.Context, jobID string, status database.JobStatus, errMsg string) error {
	if t.TransitionError != nil {
		return t.TransitionError
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	job, ok := t.jobs[jobID]
	if !ok {
		return database.ErrNotFound
	}
	now := time.Now()
	job.Status = status
	job.ErrorMessage = database.TruncateError(errMsg)
	if status.Terminal() {
		job.CompletedAt = &now
	}
	job.UpdatedAt = now
	return nil
}

// UpdateProgress overwrites the processed and failed counters.
func (t *JobTracker) UpdateProgress(ctx context.Context, jobID string, processed, failed int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	job, ok := t.jobs[jobID]
	if !ok {
		return database.ErrNotFound
	}
	job.ProcessedCount = processed
	job.FailedCount = failed
	job.UpdatedAt = time.Now()
	return nil
}

// SetTaskRef stores the external task reference.
func (t *JobTracker) SetTaskRef(ctx context.Context, jobID, taskRef string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	job, ok := t.jobs[jobID]
	if !ok {
		return database.ErrNotFound
	}
	job.TaskRef = taskRef
	job.UpdatedAt = time.Now()
	return nil
}
