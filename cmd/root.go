package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "photo-quality",
	Short: "A CLI tool for scoring and deduplicating photo batches",
	Long: `Photo Quality analyzes images from an object store, computes quality
metrics (sharpness, brightness, contrast) and perceptual hashes, scores
uniqueness against the scope's corpus, and records the results so that
interrupted runs resume where they left off.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
