package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/photo-quality/internal/batch"
	"github.com/kozaktomas/photo-quality/internal/config"
	"github.com/kozaktomas/photo-quality/internal/logger"
	"github.com/kozaktomas/photo-quality/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server and background workers",
	Long: `Start the Photo Quality web server.
The server exposes a polling API for starting quality jobs, reading
progress snapshots and requesting cancellation. Jobs run on an
in-process worker pool.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (0 = WEB_PORT)")
	serveCmd.Flags().String("host", "", "Host to bind to (default WEB_HOST)")
	serveCmd.Flags().Int("workers", 0, "Worker pool size (0 = QUALITY_WORKERS)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	log := logger.New(cfg.AppEnv)

	host := mustGetString(cmd, "host")
	if host == "" {
		host = cfg.Web.Host
	}
	port := mustGetInt(cmd, "port")
	if port == 0 {
		port = cfg.Web.Port
	}
	workers := mustGetInt(cmd, "workers")
	if workers <= 0 {
		workers = cfg.Quality.Workers
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b, err := buildBackends(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer b.Close()

	orch := batch.New(b.records, b.jobs, b.source, b.channel, b.channel, log)
	retry := batch.RetryPolicy{MaxAttempts: cfg.Quality.MaxRetries, Delay: cfg.Quality.RetryDelay}
	pool := batch.NewPool(orch, retry, workers, log)

	server := web.NewServer(host, port, b.jobs, b.channel, b.channel, pool, cfg.Quality.BatchSize, log)

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Start()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		pool.Shutdown(time.Second)
		return err
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("stop server: %w", err)
	}
	pool.Shutdown(30 * time.Second)

	return nil
}
