// Package pipeline orchestrates storybook generation jobs: it drives the
// text stream, schedules illustration work as pages are proven complete,
// and settles job state and credits at the end.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/fableforge/fableforge/internal/checkpoint"
	"github.com/fableforge/fableforge/internal/imagegen"
	"github.com/fableforge/fableforge/internal/jobs"
	"github.com/fableforge/fableforge/internal/providers"
	"github.com/fableforge/fableforge/internal/storybook"
)

// Credit pricing. A job reserves its worst-case cost up front; the
// difference between the reservation and actual consumption is returned
// at completion.
const (
	// CreditCostText covers the outline and story text streams.
	CreditCostText = 2

	// CreditCostPerImage is charged per finished illustration.
	CreditCostPerImage = 1

	// coverCount is the three non-story illustrations every book gets.
	coverCount = 3
)

// EstimateCredits returns the reservation for a job.
func EstimateCredits(input *storybook.StoryInput) int {
	return CreditCostText + (input.PageCount+coverCount)*CreditCostPerImage
}

// DefaultBatchSize is how many story pages each text stream requests.
const DefaultBatchSize = 4

// Orchestrator runs generation jobs. All dependencies are required
// except Notifier and Logger.
type Orchestrator struct {
	Jobs        jobs.Store
	Ledger      jobs.Ledger
	Checkpoints checkpoint.Store
	Notifier    jobs.Notifier
	Text        providers.TextGenerator
	Images      *imagegen.Controller

	// Workers bounds parallel-mode illustration concurrency.
	Workers int
	// BatchSize is pages per text stream. Zero means DefaultBatchSize.
	BatchSize int
	Logger    *slog.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
}

func (o *Orchestrator) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

// Start validates the input, reserves credits, creates the job record,
// and launches the pipeline in the background. It returns the job ID
// immediately.
func (o *Orchestrator) Start(ctx context.Context, input *storybook.StoryInput) (string, error) {
	if err := input.Validate(); err != nil {
		return "", fmt.Errorf("invalid input: %w", err)
	}

	reserve := EstimateCredits(input)
	if err := o.Ledger.Reserve(ctx, input.Owner, reserve); err != nil {
		return "", fmt.Errorf("reserve %d credits: %w", reserve, err)
	}

	rawInput, err := json.Marshal(input)
	if err != nil {
		o.refund(input.Owner, reserve)
		return "", fmt.Errorf("marshal input: %w", err)
	}

	job := &jobs.Record{
		ID:              uuid.NewString(),
		Owner:           input.Owner,
		ReservedCredits: reserve,
		Input:           rawInput,
	}
	if err := o.Jobs.Create(ctx, job); err != nil {
		o.refund(input.Owner, reserve)
		return "", fmt.Errorf("create job: %w", err)
	}

	o.logger().Info("job accepted",
		"job_id", job.ID,
		"owner", job.Owner,
		"pages", input.PageCount,
		"mode", input.Mode,
		"reserved_credits", reserve)
	o.notify(jobs.Event{JobID: job.ID, Owner: job.Owner, Status: jobs.StatusPending})

	o.launch(job.ID, input, reserve)
	return job.ID, nil
}

// Resume relaunches a job that never reached a terminal state, typically
// after a crash. Completed steps are restored from checkpoints, so only
// the remaining work is paid for again.
func (o *Orchestrator) Resume(ctx context.Context, jobID string) error {
	job, err := o.Jobs.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return fmt.Errorf("resume job %s: %w", jobID, jobs.ErrTerminal)
	}

	o.mu.Lock()
	_, running := o.cancels[jobID]
	o.mu.Unlock()
	if running {
		return fmt.Errorf("resume job %s: already running", jobID)
	}

	input, err := storybook.ParseInput(job.Input)
	if err != nil {
		return fmt.Errorf("resume job %s: stored input unreadable: %w", jobID, err)
	}

	o.logger().Info("job resumed", "job_id", jobID, "owner", job.Owner)
	o.launch(jobID, input, job.ReservedCredits)
	return nil
}

// JobStatus is a job record plus whatever pages and covers have already
// been checkpointed, so a caller can render progress before completion.
type JobStatus struct {
	Job    *jobs.Record      `json:"job"`
	Scenes []storybook.Scene `json:"scenes,omitempty"`
	Covers []storybook.Cover `json:"covers,omitempty"`
}

// Status returns the job record and, while the job is still processing,
// its checkpointed partial pages and covers.
func (o *Orchestrator) Status(ctx context.Context, jobID string) (*JobStatus, error) {
	job, err := o.Jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	status := &JobStatus{Job: job}
	if job.Status != jobs.StatusProcessing {
		return status, nil
	}

	pages, err := o.Checkpoints.List(ctx, jobID, checkpoint.StepPage)
	if err != nil {
		o.logger().Warn("partial scene listing failed", "job_id", jobID, "error", err)
		return status, nil
	}
	for _, cp := range pages {
		var scene storybook.Scene
		if err := json.Unmarshal(cp.Payload, &scene); err != nil {
			continue
		}
		status.Scenes = append(status.Scenes, scene)
	}

	covers, err := o.Checkpoints.List(ctx, jobID, checkpoint.StepCover)
	if err != nil {
		o.logger().Warn("partial cover listing failed", "job_id", jobID, "error", err)
		return status, nil
	}
	for _, cp := range covers {
		var cover storybook.Cover
		if err := json.Unmarshal(cp.Payload, &cover); err != nil {
			continue
		}
		status.Covers = append(status.Covers, cover)
	}
	return status, nil
}

// Cancel stops a running job. The job fails, keeps any partial result
// already checkpointed, and refunds its reservation.
func (o *Orchestrator) Cancel(jobID string) error {
	o.mu.Lock()
	cancel, ok := o.cancels[jobID]
	o.mu.Unlock()
	if !ok {
		return fmt.Errorf("cancel job %s: not running", jobID)
	}
	cancel()
	return nil
}

// Wait blocks until every running job has settled.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

func (o *Orchestrator) launch(jobID string, input *storybook.StoryInput, reserved int) {
	ctx, cancel := context.WithCancel(context.Background())
	o.mu.Lock()
	if o.cancels == nil {
		o.cancels = make(map[string]context.CancelFunc)
	}
	o.cancels[jobID] = cancel
	o.mu.Unlock()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer func() {
			cancel()
			o.mu.Lock()
			delete(o.cancels, jobID)
			o.mu.Unlock()
		}()
		o.run(ctx, jobID, input, reserved)
	}()
}

func (o *Orchestrator) refund(owner string, amount int) {
	if err := o.Ledger.Refund(context.Background(), owner, amount); err != nil {
		o.logger().Error("credit refund failed", "owner", owner, "amount", amount, "error", err)
	}
}

func (o *Orchestrator) notify(event jobs.Event) {
	if o.Notifier == nil {
		return
	}
	o.Notifier.Notify(context.Background(), event)
}
