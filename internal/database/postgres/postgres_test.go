//go:build integration

package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kozaktomas/photo-quality/internal/config"
	"github.com/kozaktomas/photo-quality/internal/database"
	"github.com/kozaktomas/photo-quality/internal/database/mock"
)

func setupTestContainer(t *testing.T) (*Pool, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Docker not available or container failed to start, skipping integration test: %v", err)
		return nil, func() {}
	}
	if container == nil {
		t.Skip("Docker not available, skipping integration test")
		return nil, func() {}
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	dbURL := fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port())

	cfg := &config.DatabaseConfig{
		URL:          dbURL,
		MaxOpenConns: 5,
		MaxIdleConns: 2,
	}

	pool, err := NewPool(cfg)
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to create pool: %v", err)
	}

	if err := pool.Migrate(ctx); err != nil {
		pool.Close()
		container.Terminate(ctx)
		t.Fatalf("Failed to run migrations: %v", err)
	}

	cleanup := func() {
		pool.Close()
		container.Terminate(ctx)
	}

	return pool, cleanup
}

func TestRecordRepository(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()

	catalog := mock.NewCatalog()
	catalog.AddImage("wedding", database.ImageRef{ID: "img-1", Path: "wedding/img-1.jpg"})
	catalog.AddImage("wedding", database.ImageRef{ID: "img-2", Path: "wedding/img-2.jpg"})
	catalog.AddImage("wedding", database.ImageRef{ID: "img-3", Path: "wedding/img-3.jpg"})

	repo := NewRecordRepository(pool, catalog)

	t.Run("DiscoverAndUpsert", func(t *testing.T) {
		refs, err := repo.ListImagesWithoutRecord(ctx, "wedding", 10)
		if err != nil {
			t.Fatalf("Failed to list images without record: %v", err)
		}
		if len(refs) != 3 {
			t.Fatalf("Expected 3 undiscovered images, got %d", len(refs))
		}

		created, err := repo.UpsertPending(ctx, "wedding", refs)
		if err != nil {
			t.Fatalf("Failed to upsert pending: %v", err)
		}
		if created != 3 {
			t.Errorf("Expected 3 created records, got %d", created)
		}

		// Second pass is a no-op
		created, err = repo.UpsertPending(ctx, "wedding", refs)
		if err != nil {
			t.Fatalf("Failed to upsert pending again: %v", err)
		}
		if created != 0 {
			t.Errorf("Expected 0 created records on repeat, got %d", created)
		}

		count, err := repo.CountWithoutRecord(ctx, "wedding")
		if err != nil {
			t.Fatalf("Failed to count without record: %v", err)
		}
		if count != 0 {
			t.Errorf("Expected 0 without record, got %d", count)
		}
	})

	t.Run("StateTransitions", func(t *testing.T) {
		if err := repo.MarkProcessing(ctx, "img-1"); err != nil {
			t.Fatalf("Failed to mark processing: %v", err)
		}

		rec, err := repo.Get(ctx, "img-1")
		if err != nil {
			t.Fatalf("Failed to get record: %v", err)
		}
		if rec == nil || rec.Status != database.RecordProcessing {
			t.Fatalf("Expected processing status, got %+v", rec)
		}

		err = repo.WriteCompleted(ctx, "img-1", database.CompletedMetrics{
			Sharpness:      0.8,
			Brightness:     0.5,
			Contrast:       0.6,
			Uniqueness:     1.0,
			RedAvg:         0.4,
			GreenAvg:       0.5,
			BlueAvg:        0.6,
			OverallQuality: 0.75,
			PerceptualHash: "deadbeefcafef00d",
			Issues:         []string{},
		})
		if err != nil {
			t.Fatalf("Failed to write completed: %v", err)
		}

		rec, err = repo.Get(ctx, "img-1")
		if err != nil {
			t.Fatalf("Failed to get record: %v", err)
		}
		if rec.Status != database.RecordCompleted {
			t.Errorf("Expected completed status, got %s", rec.Status)
		}
		if rec.PerceptualHash == nil || *rec.PerceptualHash != "deadbeefcafef00d" {
			t.Errorf("Expected hash to round-trip, got %v", rec.PerceptualHash)
		}
		if rec.OverallQuality == nil || *rec.OverallQuality != 0.75 {
			t.Errorf("Expected overall quality 0.75, got %v", rec.OverallQuality)
		}
		if rec.ComputedAt == nil {
			t.Error("Expected computed_at to be set")
		}
	})

	t.Run("MarkFailed", func(t *testing.T) {
		if err := repo.MarkFailed(ctx, "img-2", "decode error"); err != nil {
			t.Fatalf("Failed to mark failed: %v", err)
		}

		rec, err := repo.Get(ctx, "img-2")
		if err != nil {
			t.Fatalf("Failed to get record: %v", err)
		}
		if rec.Status != database.RecordFailed {
			t.Errorf("Expected failed status, got %s", rec.Status)
		}
		if rec.ErrorMessage == nil || *rec.ErrorMessage != "decode error" {
			t.Errorf("Expected error message, got %v", rec.ErrorMessage)
		}
	})

	t.Run("ListPending", func(t *testing.T) {
		pending, err := repo.ListPending(ctx, "wedding", 10)
		if err != nil {
			t.Fatalf("Failed to list pending: %v", err)
		}
		if len(pending) != 1 || pending[0].ImageID != "img-3" {
			t.Errorf("Expected only img-3 pending, got %+v", pending)
		}

		count, err := repo.CountPending(ctx, "wedding")
		if err != nil {
			t.Fatalf("Failed to count pending: %v", err)
		}
		if count != 1 {
			t.Errorf("Expected 1 pending, got %d", count)
		}
	})

	t.Run("ExistingHashes", func(t *testing.T) {
		hashes, err := repo.ExistingHashes(ctx, "wedding")
		if err != nil {
			t.Fatalf("Failed to load hashes: %v", err)
		}
		if len(hashes) != 1 {
			t.Fatalf("Expected 1 hash, got %d", len(hashes))
		}
		if hashes["img-1"] != 0xdeadbeefcafef00d {
			t.Errorf("Expected hash 0xdeadbeefcafef00d, got %016x", uint64(hashes["img-1"]))
		}
	})

	t.Run("GetMissing", func(t *testing.T) {
		rec, err := repo.Get(ctx, "nope")
		if err != nil {
			t.Fatalf("Failed to get missing record: %v", err)
		}
		if rec != nil {
			t.Errorf("Expected nil for missing record, got %+v", rec)
		}
	})
}

func TestJobRepository(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	repo := NewJobRepository(pool)

	t.Run("Lifecycle", func(t *testing.T) {
		job, err := repo.Create(ctx, "wedding", 0)
		if err != nil {
			t.Fatalf("Failed to create job: %v", err)
		}
		if job.Status != database.JobPending {
			t.Errorf("Expected pending status, got %s", job.Status)
		}

		active, err := repo.GetActive(ctx, "wedding")
		if err != nil {
			t.Fatalf("Failed to get active job: %v", err)
		}
		if active == nil || active.ID != job.ID {
			t.Fatalf("Expected active job %s, got %+v", job.ID, active)
		}

		if err := repo.SetTaskRef(ctx, job.ID, "task-1"); err != nil {
			t.Fatalf("Failed to set task ref: %v", err)
		}

		if err := repo.Start(ctx, job.ID, 42); err != nil {
			t.Fatalf("Failed to start job: %v", err)
		}

		got, err := repo.Get(ctx, job.ID)
		if err != nil {
			t.Fatalf("Failed to get job: %v", err)
		}
		if got.Status != database.JobProcessing {
			t.Errorf("Expected processing status, got %s", got.Status)
		}
		if got.TotalImages != 42 {
			t.Errorf("Expected total 42, got %d", got.TotalImages)
		}
		if got.TaskRef != "task-1" {
			t.Errorf("Expected task ref task-1, got %q", got.TaskRef)
		}
		if got.StartedAt == nil {
			t.Error("Expected started_at to be set")
		}

		if err := repo.UpdateProgress(ctx, job.ID, 40, 2); err != nil {
			t.Fatalf("Failed to update progress: %v", err)
		}

		if err := repo.Transition(ctx, job.ID, database.JobCompleted, ""); err != nil {
			t.Fatalf("Failed to transition job: %v", err)
		}

		got, err = repo.Get(ctx, job.ID)
		if err != nil {
			t.Fatalf("Failed to get job: %v", err)
		}
		if got.Status != database.JobCompleted {
			t.Errorf("Expected completed status, got %s", got.Status)
		}
		if got.ProcessedCount != 40 || got.FailedCount != 2 {
			t.Errorf("Expected 40/2 progress, got %d/%d", got.ProcessedCount, got.FailedCount)
		}
		if got.CompletedAt == nil {
			t.Error("Expected completed_at to be set")
		}

		active, err = repo.GetActive(ctx, "wedding")
		if err != nil {
			t.Fatalf("Failed to get active job: %v", err)
		}
		if active != nil {
			t.Errorf("Expected no active job after completion, got %+v", active)
		}
	})

	t.Run("FailedJobKeepsError", func(t *testing.T) {
		job, err := repo.Create(ctx, "portraits", 0)
		if err != nil {
			t.Fatalf("Failed to create job: %v", err)
		}

		if err := repo.Transition(ctx, job.ID, database.JobFailed, "storage unreachable"); err != nil {
			t.Fatalf("Failed to transition job: %v", err)
		}

		got, err := repo.Get(ctx, job.ID)
		if err != nil {
			t.Fatalf("Failed to get job: %v", err)
		}
		if got.Status != database.JobFailed {
			t.Errorf("Expected failed status, got %s", got.Status)
		}
		if got.ErrorMessage != "storage unreachable" {
			t.Errorf("Expected error message, got %q", got.ErrorMessage)
		}
	})

	t.Run("SecondActiveJobRejected", func(t *testing.T) {
		if _, err := repo.Create(ctx, "events", 0); err != nil {
			t.Fatalf("Failed to create job: %v", err)
		}

		if _, err := repo.Create(ctx, "events", 0); err == nil {
			t.Fatal("Expected second active job for the scope to be rejected")
		}

		// A terminal job frees the slot
		active, err := repo.GetActive(ctx, "events")
		if err != nil {
			t.Fatalf("Failed to get active job: %v", err)
		}
		if err := repo.Transition(ctx, active.ID, database.JobCancelled, ""); err != nil {
			t.Fatalf("Failed to transition job: %v", err)
		}
		if _, err := repo.Create(ctx, "events", 0); err != nil {
			t.Errorf("Expected create to succeed after previous job finished: %v", err)
		}
	})

	t.Run("ListRecent", func(t *testing.T) {
		jobs, err := repo.ListRecent(ctx, "wedding", 5)
		if err != nil {
			t.Fatalf("Failed to list jobs: %v", err)
		}
		if len(jobs) != 1 {
			t.Errorf("Expected 1 wedding job, got %d", len(jobs))
		}

		jobs, err = repo.ListRecent(ctx, "unknown", 5)
		if err != nil {
			t.Fatalf("Failed to list jobs: %v", err)
		}
		if len(jobs) != 0 {
			t.Errorf("Expected no jobs for unknown scope, got %d", len(jobs))
		}
	})

	t.Run("GetMissing", func(t *testing.T) {
		_, err := repo.Get(ctx, "00000000-0000-0000-0000-000000000000")
		if err == nil {
			t.Fatal("Expected error for missing job")
		}
	})
}
