package main

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/fableforge/fableforge/version"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "fableforge",
	Short: "Illustrated storybook generation pipeline",
	Long: `Fableforge turns a cast of characters and a page count into a fully
illustrated children's storybook.

The pipeline includes:
  - Streamed story writing with progressive page detection
  - Concurrent or sequential illustration with reference photos
  - A vision-scored quality gate with automatic regeneration
  - A visual bible that keeps recurring elements consistent
  - Checkpointed progress so interrupted jobs resume cheaply`,
	Version: version.GitRelease,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.fableforge/config.yaml)",
	)

	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		// .env is optional; real deployments set environment directly.
		_ = godotenv.Load()
		setupLogging()
	}

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
}

func setupLogging() {
	level := slog.LevelInfo
	switch os.Getenv("FABLEFORGE_LOG_LEVEL") {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}
