package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/fableforge/fableforge/internal/config"
	"github.com/fableforge/fableforge/internal/jobs"
	"github.com/fableforge/fableforge/internal/pipeline"
	"github.com/fableforge/fableforge/internal/storybook"
)

var runOutDir string

var runCmd = &cobra.Command{
	Use:   "run <input.json>",
	Short: "Generate a storybook from an input file",
	Long: `Run reads a story input file (title, characters with reference photos,
page count, generation mode), runs the full pipeline, and writes the
finished book to the output directory: book.json plus one PNG per page
and cover.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cm, err := config.NewManager(cfgFile)
		if err != nil {
			return err
		}

		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}
		input, err := storybook.ParseInput(data)
		if err != nil {
			return fmt.Errorf("parse input: %w", err)
		}
		if input.Owner == "" {
			input.Owner = "local"
		}

		ctx := cmd.Context()
		svc, err := buildServices(ctx, cm.Get())
		if err != nil {
			return err
		}
		defer svc.close()

		// A local run funds itself: grant exactly the reservation.
		if err := svc.ledger.Grant(ctx, input.Owner, pipeline.EstimateCredits(input)); err != nil {
			return err
		}

		jobID, err := svc.orchestrator.Start(ctx, input)
		if err != nil {
			return err
		}
		fmt.Printf("job %s started\n", jobID)

		done := make(chan struct{})
		go func() {
			svc.orchestrator.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			_ = svc.orchestrator.Cancel(jobID)
			<-done
		}

		// The command context is cancelled after an interrupt; the final
		// fetch still has to work.
		job, err := svc.jobs.Get(context.Background(), jobID)
		if err != nil {
			return err
		}
		if job.Status != jobs.StatusCompleted {
			if err := writeBook(job.Result, runOutDir); err == nil && len(job.Result) > 0 {
				fmt.Printf("partial book written to %s\n", runOutDir)
			}
			return fmt.Errorf("job %s: %s", job.Status, job.Error)
		}

		if err := writeBook(job.Result, runOutDir); err != nil {
			return err
		}
		fmt.Printf("book written to %s (credits used: %d)\n", runOutDir, job.CreditsUsed)
		return nil
	},
}

func init() {
	runCmd.Flags().StringVarP(&runOutDir, "out", "o", "book", "output directory")
}

func writeBook(raw json.RawMessage, dir string) error {
	if len(raw) == 0 {
		return fmt.Errorf("no result to write")
	}
	var result storybook.Result
	if err := json.Unmarshal(raw, &result); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	for _, cover := range result.Covers {
		if len(cover.Image) == 0 {
			continue
		}
		name := fmt.Sprintf("cover_%s.png", cover.Type)
		if err := os.WriteFile(filepath.Join(dir, name), cover.Image, 0o644); err != nil {
			return err
		}
	}
	for _, scene := range result.Scenes {
		if len(scene.Image) == 0 {
			continue
		}
		name := fmt.Sprintf("page_%02d.png", scene.Page)
		if err := os.WriteFile(filepath.Join(dir, name), scene.Image, 0o644); err != nil {
			return err
		}
	}

	// book.json keeps the metadata but not the raw image bytes.
	slim := result
	slim.Covers = append([]storybook.Cover(nil), result.Covers...)
	slim.Scenes = append([]storybook.Scene(nil), result.Scenes...)
	for i := range slim.Covers {
		slim.Covers[i].Image = nil
	}
	for i := range slim.Scenes {
		slim.Scenes[i].Image = nil
	}
	data, err := json.MarshalIndent(slim, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "book.json"), data, 0o644)
}
