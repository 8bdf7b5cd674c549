package batch

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/kozaktomas/photo-quality/internal/database"
)

func TestPool_RunsEnqueuedJob(t *testing.T) {
	f := newFixture()
	f.addImage("proj-1", "img-1", checkerPNG(t, 32, 32))

	pool := NewPool(f.orch, RetryPolicy{MaxAttempts: 1}, 2, zerolog.Nop())
	defer pool.Shutdown(time.Second)

	if err := pool.Enqueue(RunRequest{Scope: "proj-1", BatchSize: 10}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	// Poll until the job reaches a terminal state.
	deadline := time.After(5 * time.Second)
	for {
		select {
		case <-deadline:
			t.Fatal("job did not finish in time")
		case <-time.After(10 * time.Millisecond):
		}
		job, err := f.jobs.GetActive(context.Background(), "proj-1")
		if err != nil {
			t.Fatalf("get active job: %v", err)
		}
		if job == nil {
			// No active job left: it ran to a terminal state.
			rec := f.records.Record("img-1")
			if rec == nil || rec.Status != database.RecordCompleted {
				continue // job record may settle slightly before the run exits
			}
			return
		}
	}
}

func TestPool_EnqueueFailsWhenFull(t *testing.T) {
	f := newFixture()
	pool := NewPool(f.orch, RetryPolicy{MaxAttempts: 1}, 1, zerolog.Nop())
	pool.Shutdown(time.Second) // stop the workers so nothing drains the queue

	// Queue capacity is workers*2; fill it and expect the next to fail.
	var err error
	for i := 0; i < 10; i++ {
		err = pool.Enqueue(RunRequest{Scope: "proj-x", BatchSize: 10})
		if err != nil {
			break
		}
	}
	if err == nil {
		t.Error("Enqueue should fail once the queue is full")
	}
}

func TestPool_ShutdownIsIdempotent(t *testing.T) {
	f := newFixture()
	pool := NewPool(f.orch, RetryPolicy{MaxAttempts: 1}, 1, zerolog.Nop())

	pool.Shutdown(time.Second)
	pool.Shutdown(time.Second) // second call must not panic or block
}
