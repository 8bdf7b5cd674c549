package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/kozaktomas/photo-quality/internal/batch"
	"github.com/kozaktomas/photo-quality/internal/database"
	"github.com/kozaktomas/photo-quality/internal/database/mock"
	"github.com/kozaktomas/photo-quality/internal/progress"
	"github.com/kozaktomas/photo-quality/internal/storage"
)

type emptySource struct{}

func (emptySource) Fetch(_ context.Context, _ string) ([]byte, error) {
	return nil, storage.ErrSourceNotFound
}

type testEnv struct {
	server  *Server
	jobs    *mock.JobTracker
	channel *progress.Memory
	pool    *batch.Pool
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	catalog := mock.NewCatalog()
	records := mock.NewRecordStore(catalog)
	jobs := mock.NewJobTracker()
	channel := progress.NewMemory()
	logger := zerolog.Nop()

	orch := batch.New(records, jobs, emptySource{}, channel, channel, logger)
	pool := batch.NewPool(orch, batch.RetryPolicy{MaxAttempts: 1}, 1, logger)
	t.Cleanup(func() { pool.Shutdown(time.Second) })

	server := NewServer("127.0.0.1", 0, jobs, channel, channel, pool, 50, logger)
	return &testEnv{server: server, jobs: jobs, channel: channel, pool: pool}
}

func (env *testEnv) do(t *testing.T, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	env.server.Router().ServeHTTP(rec, req)
	return rec
}

func decodeJob(t *testing.T, rec *httptest.ResponseRecorder) jobResponse {
	t.Helper()
	var resp jobResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("could not decode job response: %v", err)
	}
	return resp
}

func TestCreateJobAccepted(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/scopes/wedding/jobs")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}

	resp := decodeJob(t, rec)
	if resp.Scope != "wedding" {
		t.Errorf("expected scope wedding, got %q", resp.Scope)
	}
	if resp.TaskRef == "" {
		t.Error("expected task ref to be set")
	}
}

func TestCreateJobConflictsWithActive(t *testing.T) {
	env := newTestEnv(t)

	job, err := env.jobs.Create(context.Background(), "wedding", 0)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	rec := env.do(t, http.MethodPost, "/api/scopes/wedding/jobs")
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if resp := decodeJob(t, rec); resp.ID != job.ID {
		t.Errorf("conflict response should carry the active job, got %q", resp.ID)
	}
}

func TestGetJob(t *testing.T) {
	env := newTestEnv(t)

	job, err := env.jobs.Create(context.Background(), "wedding", 0)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	rec := env.do(t, http.MethodGet, "/api/jobs/"+job.ID)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if resp := decodeJob(t, rec); resp.ID != job.ID {
		t.Errorf("expected job %q, got %q", job.ID, resp.ID)
	}

	rec = env.do(t, http.MethodGet, "/api/jobs/nope")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown job, got %d", rec.Code)
	}
}

func TestListJobs(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, _ := env.jobs.Create(ctx, "wedding", 0)
	if err := env.jobs.Transition(ctx, first.ID, database.JobCompleted, ""); err != nil {
		t.Fatalf("transition: %v", err)
	}
	second, _ := env.jobs.Create(ctx, "wedding", 0)

	rec := env.do(t, http.MethodGet, "/api/scopes/wedding/jobs?limit=1")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp []jobResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp) != 1 || resp[0].ID != second.ID {
		t.Errorf("expected most recent job only, got %+v", resp)
	}

	rec = env.do(t, http.MethodGet, "/api/scopes/wedding/jobs?limit=0")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid limit, got %d", rec.Code)
	}
}

func TestCancelJob(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	job, _ := env.jobs.Create(ctx, "wedding", 0)
	if err := env.jobs.SetTaskRef(ctx, job.ID, "task-7"); err != nil {
		t.Fatalf("set task ref: %v", err)
	}

	rec := env.do(t, http.MethodPost, "/api/jobs/"+job.ID+"/cancel")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}

	cancelled, err := env.channel.IsCancelled(ctx, "task-7")
	if err != nil {
		t.Fatalf("is cancelled: %v", err)
	}
	if !cancelled {
		t.Error("expected cancel flag to be set")
	}
}

func TestCancelFinishedJobConflicts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	job, _ := env.jobs.Create(ctx, "wedding", 0)
	if err := env.jobs.Transition(ctx, job.ID, database.JobCompleted, ""); err != nil {
		t.Fatalf("transition: %v", err)
	}

	rec := env.do(t, http.MethodPost, "/api/jobs/"+job.ID+"/cancel")
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestGetProgressLive(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	snap := progress.Snapshot{Status: "processing", Processed: 3, Total: 10}
	if err := env.channel.Publish(ctx, "wedding", snap); err != nil {
		t.Fatalf("publish: %v", err)
	}

	rec := env.do(t, http.MethodGet, "/api/scopes/wedding/progress")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got progress.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Processed != 3 || got.Total != 10 {
		t.Errorf("unexpected snapshot: %+v", got)
	}
}

func TestGetProgressFallsBackToJob(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	job, _ := env.jobs.Create(ctx, "wedding", 0)
	if err := env.jobs.Start(ctx, job.ID, 20); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := env.jobs.UpdateProgress(ctx, job.ID, 20, 2); err != nil {
		t.Fatalf("update progress: %v", err)
	}
	if err := env.jobs.Transition(ctx, job.ID, database.JobCompleted, ""); err != nil {
		t.Fatalf("transition: %v", err)
	}

	rec := env.do(t, http.MethodGet, "/api/scopes/wedding/progress")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var got progress.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Status != string(database.JobCompleted) || got.Processed != 20 || got.Failed != 2 {
		t.Errorf("unexpected fallback snapshot: %+v", got)
	}
}

func TestGetProgressUnknownScope(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/scopes/empty/progress")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
