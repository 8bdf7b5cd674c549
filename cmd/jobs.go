package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/photo-quality/internal/config"
	"github.com/kozaktomas/photo-quality/internal/logger"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs [scope]",
	Short: "List recent quality jobs for a scope",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobs,
}

func init() {
	rootCmd.AddCommand(jobsCmd)

	jobsCmd.Flags().Int("limit", 10, "Number of jobs to show")
}

func runJobs(cmd *cobra.Command, args []string) error {
	scope := args[0]
	limit := mustGetInt(cmd, "limit")

	cfg := config.Load()
	log := logger.New(cfg.AppEnv)

	ctx := context.Background()
	b, err := buildBackends(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer b.Close()

	jobs, err := b.jobs.ListRecent(ctx, scope, limit)
	if err != nil {
		return fmt.Errorf("list jobs: %w", err)
	}
	if len(jobs) == 0 {
		fmt.Printf("No quality jobs found for scope %s\n", scope)
		return nil
	}

	for _, job := range jobs {
		fmt.Printf("%s  %-10s  %d/%d processed, %d failed  created %s\n",
			job.ID, job.Status, job.ProcessedCount, job.TotalImages, job.FailedCount,
			job.CreatedAt.Format("2006-01-02 15:04:05"))
		if job.ErrorMessage != "" {
			fmt.Printf("  error: %s\n", job.ErrorMessage)
		}
	}
	return nil
}
