package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/photo-quality/internal/config"
	"github.com/kozaktomas/photo-quality/internal/database"
	"github.com/kozaktomas/photo-quality/internal/logger"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel [job-id]",
	Short: "Request cancellation of a running quality job",
	Long: `Request cancellation of a running quality job.
The running worker picks the request up between chunks, so work already
written stays written and the job finishes as cancelled.`,
	Args: cobra.ExactArgs(1),
	RunE: runCancel,
}

func init() {
	rootCmd.AddCommand(cancelCmd)
}

func runCancel(cmd *cobra.Command, args []string) error {
	jobID := args[0]

	cfg := config.Load()
	log := logger.New(cfg.AppEnv)

	ctx := context.Background()
	b, err := buildBackends(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer b.Close()

	job, err := b.jobs.Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return fmt.Errorf("job %s not found", jobID)
		}
		return fmt.Errorf("load job: %w", err)
	}

	if job.Status.Terminal() {
		return fmt.Errorf("job %s already finished with status %s", jobID, job.Status)
	}
	if job.TaskRef == "" {
		return fmt.Errorf("job %s has no task reference yet", jobID)
	}

	if err := b.channel.RequestCancel(ctx, job.TaskRef); err != nil {
		return fmt.Errorf("request cancel: %w", err)
	}

	fmt.Printf("Cancellation requested for job %s\n", jobID)
	return nil
}
