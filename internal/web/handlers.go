package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kozaktomas/photo-quality/internal/batch"
	"github.com/kozaktomas/photo-quality/internal/database"
	"github.com/kozaktomas/photo-quality/internal/progress"
)

// Handlers holds the HTTP handlers and their dependencies.
type Handlers struct {
	jobs      database.JobTracker
	publisher progress.Publisher
	canceller progress.Canceller
	pool      *batch.Pool
	batchSize int
	logger    zerolog.Logger
}

type jobResponse struct {
	ID             string `json:"id"`
	Scope          string `json:"scope"`
	Status         string `json:"status"`
	TotalImages    int    `json:"total_images"`
	ProcessedCount int    `json:"processed_count"`
	FailedCount    int    `json:"failed_count"`
	TaskRef        string `json:"task_ref,omitempty"`
	StartedAt      string `json:"started_at,omitempty"`
	CompletedAt    string `json:"completed_at,omitempty"`
	ErrorMessage   string `json:"error_message,omitempty"`
	CreatedAt      string `json:"created_at"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func toJobResponse(job *database.QualityJob) jobResponse {
	resp := jobResponse{
		ID:             job.ID,
		Scope:          job.Scope,
		Status:         string(job.Status),
		TotalImages:    job.TotalImages,
		ProcessedCount: job.ProcessedCount,
		FailedCount:    job.FailedCount,
		TaskRef:        job.TaskRef,
		ErrorMessage:   job.ErrorMessage,
		CreatedAt:      job.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
	if job.StartedAt != nil {
		resp.StartedAt = job.StartedAt.UTC().Format("2006-01-02T15:04:05Z")
	}
	if job.CompletedAt != nil {
		resp.CompletedAt = job.CompletedAt.UTC().Format("2006-01-02T15:04:05Z")
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// Health returns a simple liveness response.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// CreateJob starts a quality run for a scope. At most one active job
// per scope is allowed.
func (h *Handlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	scope := chi.URLParam(r, "scope")
	if scope == "" {
		writeError(w, http.StatusBadRequest, "scope is required")
		return
	}

	active, err := h.jobs.GetActive(r.Context(), scope)
	if err != nil {
		h.logger.Error().Err(err).Str("scope", scope).Msg("could not check active job")
		writeError(w, http.StatusInternalServerError, "could not check active job")
		return
	}
	if active != nil {
		writeJSON(w, http.StatusConflict, toJobResponse(active))
		return
	}

	job, err := h.jobs.Create(r.Context(), scope, 0)
	if err != nil {
		h.logger.Error().Err(err).Str("scope", scope).Msg("could not create job")
		writeError(w, http.StatusInternalServerError, "could not create job")
		return
	}

	taskRef := uuid.New().String()
	if err := h.jobs.SetTaskRef(r.Context(), job.ID, taskRef); err != nil {
		h.logger.Error().Err(err).Str("job_id", job.ID).Msg("could not set task ref")
		writeError(w, http.StatusInternalServerError, "could not set task ref")
		return
	}
	job.TaskRef = taskRef

	if err := h.pool.Enqueue(batch.RunRequest{Scope: scope, BatchSize: h.batchSize}); err != nil {
		_ = h.jobs.Transition(r.Context(), job.ID, database.JobFailed, "could not enqueue job")
		writeError(w, http.StatusServiceUnavailable, "worker queue is full")
		return
	}

	writeJSON(w, http.StatusAccepted, toJobResponse(job))
}

// GetJob returns a single job by id.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	job, err := h.jobs.Get(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("could not load job")
		writeError(w, http.StatusInternalServerError, "could not load job")
		return
	}

	writeJSON(w, http.StatusOK, toJobResponse(job))
}

// ListJobs returns the most recent jobs for a scope.
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	scope := chi.URLParam(r, "scope")

	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 100 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 100")
			return
		}
		limit = parsed
	}

	jobs, err := h.jobs.ListRecent(r.Context(), scope, limit)
	if err != nil {
		h.logger.Error().Err(err).Str("scope", scope).Msg("could not list jobs")
		writeError(w, http.StatusInternalServerError, "could not list jobs")
		return
	}

	resp := make([]jobResponse, 0, len(jobs))
	for i := range jobs {
		resp = append(resp, toJobResponse(&jobs[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

// CancelJob requests cancellation of a running job. The orchestrator
// picks the flag up between chunks, so the job stops at the next
// chunk boundary.
func (h *Handlers) CancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	job, err := h.jobs.Get(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("could not load job")
		writeError(w, http.StatusInternalServerError, "could not load job")
		return
	}

	if job.Status.Terminal() {
		writeError(w, http.StatusConflict, "job already finished")
		return
	}
	if job.TaskRef == "" {
		writeError(w, http.StatusConflict, "job has no task reference yet")
		return
	}

	if err := h.canceller.RequestCancel(r.Context(), job.TaskRef); err != nil {
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("could not request cancel")
		writeError(w, http.StatusInternalServerError, "could not request cancel")
		return
	}

	writeJSON(w, http.StatusAccepted, toJobResponse(job))
}

// GetProgress returns the live progress snapshot for a scope, falling
// back to the most recent job row when the snapshot has expired.
func (h *Handlers) GetProgress(w http.ResponseWriter, r *http.Request) {
	scope := chi.URLParam(r, "scope")

	snap, err := h.publisher.Get(r.Context(), scope)
	if err != nil {
		h.logger.Warn().Err(err).Str("scope", scope).Msg("progress channel read failed")
	}
	if snap != nil {
		writeJSON(w, http.StatusOK, snap)
		return
	}

	jobs, err := h.jobs.ListRecent(r.Context(), scope, 1)
	if err != nil {
		h.logger.Error().Err(err).Str("scope", scope).Msg("could not load recent job")
		writeError(w, http.StatusInternalServerError, "could not load progress")
		return
	}
	if len(jobs) == 0 {
		writeError(w, http.StatusNotFound, "no progress for scope")
		return
	}

	job := jobs[0]
	fallback := progress.Snapshot{
		Status:    string(job.Status),
		Processed: job.ProcessedCount,
		Failed:    job.FailedCount,
		Total:     job.TotalImages,
		Error:     job.ErrorMessage,
	}
	if job.StartedAt != nil {
		fallback.StartedAt = job.StartedAt.UTC().Format("2006-01-02T15:04:05Z")
	}
	writeJSON(w, http.StatusOK, fallback)
}
