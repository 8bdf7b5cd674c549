package cmd

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/photo-quality/internal/config"
	"github.com/kozaktomas/photo-quality/internal/database"
	"github.com/kozaktomas/photo-quality/internal/logger"
	"github.com/kozaktomas/photo-quality/internal/progress"
)

var statusCmd = &cobra.Command{
	Use:   "status [scope]",
	Short: "Show the progress of the current quality job for a scope",
	Long: `Show the progress of the current quality job for a scope.
Reads the live progress snapshot from Redis; when the snapshot has
expired or the channel is unreachable, falls back to the most recent
job record in the database.`,
	Args: cobra.ExactArgs(1),
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

// loadStatus resolves the scope's current state: the live snapshot when
// the channel has one, otherwise the most recent durable job record. A
// channel read error is logged and degrades to the fallback; it never
// fails the lookup.
func loadStatus(
	ctx context.Context,
	publisher progress.Publisher,
	tracker database.JobTracker,
	scope string,
	log zerolog.Logger,
) (*progress.Snapshot, *database.QualityJob, error) {
	snap, err := publisher.Get(ctx, scope)
	if err != nil {
		log.Warn().Err(err).Str("scope", scope).Msg("progress channel read failed")
	}
	if snap != nil {
		return snap, nil, nil
	}

	jobs, err := tracker.ListRecent(ctx, scope, 1)
	if err != nil {
		return nil, nil, fmt.Errorf("load recent job: %w", err)
	}
	if len(jobs) == 0 {
		return nil, nil, nil
	}
	return nil, &jobs[0], nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	scope := args[0]

	cfg := config.Load()
	log := logger.New(cfg.AppEnv)

	ctx := context.Background()
	b, err := buildBackends(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer b.Close()

	snap, job, err := loadStatus(ctx, b.channel, b.jobs, scope, log)
	if err != nil {
		return err
	}

	switch {
	case snap != nil:
		fmt.Printf("Scope:     %s (live)\n", scope)
		fmt.Printf("Status:    %s\n", snap.Status)
		fmt.Printf("Progress:  %d processed, %d failed of %d\n", snap.Processed, snap.Failed, snap.Total)
		if snap.Error != "" {
			fmt.Printf("Error:     %s\n", snap.Error)
		}
	case job != nil:
		fmt.Printf("Scope:     %s\n", scope)
		fmt.Printf("Job:       %s\n", job.ID)
		fmt.Printf("Status:    %s\n", job.Status)
		fmt.Printf("Progress:  %d processed, %d failed of %d\n", job.ProcessedCount, job.FailedCount, job.TotalImages)
		if job.ErrorMessage != "" {
			fmt.Printf("Error:     %s\n", job.ErrorMessage)
		}
	default:
		fmt.Printf("No quality jobs found for scope %s\n", scope)
	}
	return nil
}
