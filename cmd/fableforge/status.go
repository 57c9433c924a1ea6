package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fableforge/fableforge/internal/config"
)

var statusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Show the state of a job",
	Long: `Status reads a job record from the configured job store. It requires a
persistent store (storage.postgres_dsn); in-memory jobs are only visible
to the process that created them.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cm, err := config.NewManager(cfgFile)
		if err != nil {
			return err
		}
		if cm.Get().Storage.PostgresDSN == "" {
			return fmt.Errorf("status requires storage.postgres_dsn to be configured")
		}

		svc, err := buildServices(cmd.Context(), cm.Get())
		if err != nil {
			return err
		}
		defer svc.close()

		status, err := svc.orchestrator.Status(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		// Payloads and image bytes can be huge; report metadata only.
		status.Job.Result = nil
		status.Job.Input = nil
		for i := range status.Scenes {
			status.Scenes[i].Image = nil
		}
		for i := range status.Covers {
			status.Covers[i].Image = nil
		}
		out, err := json.MarshalIndent(status, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}
