package database

import (
	"time"
)

// RecordStatus enumerates the lifecycle states of a quality record.
type RecordStatus string

const (
	RecordPending    RecordStatus = "pending"
	RecordProcessing RecordStatus = "processing"
	RecordCompleted  RecordStatus = "completed"
	RecordFailed     RecordStatus = "failed"
)

// JobStatus enumerates the lifecycle states of a quality job.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
	JobCancelled  JobStatus = "cancelled"
)

// Terminal returns true when no further automatic transition occurs.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

// MaxErrorLength bounds error messages persisted to durable storage.
const MaxErrorLength = 500

// TruncateError trims an error message to MaxErrorLength characters.
func TruncateError(msg string) string {
	if len(msg) > MaxErrorLength {
		return msg[:MaxErrorLength]
	}
	return msg
}

// ImageRef identifies an image in the external catalog: its corpus-wide
// identifier plus the logical storage path of its bytes.
type ImageRef struct {
	ID   string
	Path string
}

// QualityRecord stores the computed quality facts for one image, exactly
// one record per image identifier. Metric fields are nil until computed.
type QualityRecord struct {
	ImageID        string
	Scope          string
	FilePath       string
	Sharpness      *float64
	Brightness     *float64
	Contrast       *float64
	Uniqueness     *float64
	RedAvg         *float64
	GreenAvg       *float64
	BlueAvg        *float64
	OverallQuality *float64
	PerceptualHash *string
	Issues         []string
	Status         RecordStatus
	ErrorMessage   *string
	ComputedAt     *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// CompletedMetrics is the full metric set written when a record completes.
type CompletedMetrics struct {
	Sharpness      float64
	Brightness     float64
	Contrast       float64
	Uniqueness     float64
	RedAvg         float64
	GreenAvg       float64
	BlueAvg        float64
	OverallQuality float64
	PerceptualHash string
	Issues         []string
}

// QualityJob is one batch-processing run over a scope. TotalImages is
// snapshotted when processing starts and never recomputed mid-run, so
// progress is always measured against a stable denominator.
type QualityJob struct {
	ID             string
	Scope          string
	Status         JobStatus
	TotalImages    int
	ProcessedCount int
	FailedCount    int
	TaskRef        string // external task reference used for cancellation
	StartedAt      *time.Time
	CompletedAt    *time.Time
	ErrorMessage   string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
