package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/photo-quality/internal/batch"
	"github.com/kozaktomas/photo-quality/internal/config"
	"github.com/kozaktomas/photo-quality/internal/logger"
	"github.com/kozaktomas/photo-quality/internal/progress"
)

var runCmd = &cobra.Command{
	Use:   "run [scope]",
	Short: "Run a quality job for a scope",
	Long: `Run a quality job for a scope.
The command discovers unprocessed images in the catalog, fetches them
from the object store, computes quality metrics and uniqueness scores,
and writes the results. Interrupted runs resume from where they stopped.`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().Int("batch-size", 0, "Images per chunk (0 = QUALITY_BATCH_SIZE)")
	runCmd.Flags().Int("retries", 0, "Whole-job retry attempts (0 = QUALITY_MAX_RETRIES)")
	runCmd.Flags().Bool("no-progress", false, "Disable the progress bar")
}

// barPublisher mirrors progress snapshots onto a terminal progress bar
// while still forwarding them to the real channel.
type barPublisher struct {
	inner progress.Publisher
	bar   *progressbar.ProgressBar
}

func (b *barPublisher) Publish(ctx context.Context, scope string, snap progress.Snapshot) error {
	if b.bar == nil && snap.Total > 0 {
		b.bar = progressbar.NewOptions(snap.Total,
			progressbar.OptionSetDescription("Scoring images"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("images"),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionFullWidth(),
		)
	}
	if b.bar != nil {
		_ = b.bar.Set(snap.Processed + snap.Failed)
	}
	return b.inner.Publish(ctx, scope, snap)
}

func (b *barPublisher) Get(ctx context.Context, scope string) (*progress.Snapshot, error) {
	return b.inner.Get(ctx, scope)
}

func runRun(cmd *cobra.Command, args []string) error {
	scope := args[0]

	cfg := config.Load()
	log := logger.New(cfg.AppEnv)

	batchSize := mustGetInt(cmd, "batch-size")
	if batchSize <= 0 {
		batchSize = cfg.Quality.BatchSize
	}
	retries := mustGetInt(cmd, "retries")
	if retries <= 0 {
		retries = cfg.Quality.MaxRetries
	}
	noProgress := mustGetBool(cmd, "no-progress")

	// Set up context with signal handling for graceful cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nReceived interrupt signal...")
		cancel()
	}()

	b, err := buildBackends(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer b.Close()

	var publisher progress.Publisher = b.channel
	if !noProgress {
		publisher = &barPublisher{inner: b.channel}
	}

	orch := batch.New(b.records, b.jobs, b.source, publisher, b.channel, log)
	retry := batch.RetryPolicy{MaxAttempts: retries, Delay: cfg.Quality.RetryDelay}

	var summary *batch.Summary
	err = retry.Execute(ctx, func(ctx context.Context) error {
		var runErr error
		summary, runErr = orch.Run(ctx, scope, batchSize)
		return runErr
	})
	if err != nil {
		var jobErr *batch.JobError
		if errors.As(err, &jobErr) {
			return fmt.Errorf("job %s failed: %w", jobErr.JobID, jobErr.Err)
		}
		return err
	}

	fmt.Printf("\nJob %s %s: %d processed, %d failed of %d\n",
		summary.JobID, summary.Status, summary.Processed, summary.Failed, summary.Total)
	return nil
}
