package pipeline

import (
	"context"
	"log/slog"
	"sync"

	"github.com/fableforge/fableforge/internal/imagegen"
	"github.com/fableforge/fableforge/internal/providers"
	"github.com/fableforge/fableforge/internal/storybook"
)

// DefaultImageWorkers bounds concurrent illustration generation in
// parallel mode.
const DefaultImageWorkers = 5

// imageUnit is one illustration to produce: a story page or a cover.
type imageUnit struct {
	// Page uses the page-number space: story pages 1..N, covers 0/-1/-2.
	Page int

	EvalSystem string
	Kind       providers.EvalKind
	References []providers.ReferenceImage

	// BuildPrompts runs on the worker immediately before generation, so
	// the prompts see the visual bible as it stands at that moment rather
	// than as it stood at submission.
	BuildPrompts func() (prompt, evalPrompt string)
}

// imageOutcome pairs a finished unit with its controller result.
type imageOutcome struct {
	Unit    imageUnit
	Outcome *imagegen.Outcome
	Err     error
}

// imageCoordinator schedules illustration units as page text becomes
// available. Parallel mode runs a bounded worker pool; sequential mode
// runs one worker that feeds each finished page image, cropped, into the
// next page's generation call. Covers are independent in both modes.
type imageCoordinator struct {
	jobID      string
	mode       storybook.GenerationMode
	controller *imagegen.Controller
	onReady    func(unit imageUnit, prompt string, image []byte)
	onOutcome  func(unit imageUnit, out *imagegen.Outcome)
	log        *slog.Logger

	units   chan imageUnit
	results chan imageOutcome
	wg      sync.WaitGroup

	// sequential continuity state, touched only by the single worker
	prevPage  int
	prevImage []byte
}

func newImageCoordinator(ctx context.Context, jobID string, mode storybook.GenerationMode, workers int, controller *imagegen.Controller, onReady func(imageUnit, string, []byte), onOutcome func(imageUnit, *imagegen.Outcome), log *slog.Logger) *imageCoordinator {
	if workers <= 0 {
		workers = DefaultImageWorkers
	}
	if mode == storybook.ModeSequential {
		workers = 1
	}

	c := &imageCoordinator{
		jobID:      jobID,
		mode:       mode,
		controller: controller,
		onReady:    onReady,
		onOutcome:  onOutcome,
		log:        log,
		units:      make(chan imageUnit, 64),
		results:    make(chan imageOutcome, 64),
	}
	for i := 0; i < workers; i++ {
		c.wg.Add(1)
		go c.worker(ctx)
	}
	go func() {
		c.wg.Wait()
		close(c.results)
	}()
	return c
}

// Submit queues one unit. It must not be called after Close. The caller
// must be draining Results concurrently: the channels are buffered for
// slack, not for a whole book.
func (c *imageCoordinator) Submit(unit imageUnit) {
	c.units <- unit
}

// Close signals that no more units will arrive. Results drain until the
// results channel closes.
func (c *imageCoordinator) Close() {
	close(c.units)
}

// Results delivers one entry per submitted unit, in completion order.
func (c *imageCoordinator) Results() <-chan imageOutcome {
	return c.results
}

func (c *imageCoordinator) worker(ctx context.Context) {
	defer c.wg.Done()
	for unit := range c.units {
		if err := ctx.Err(); err != nil {
			c.results <- imageOutcome{Unit: unit, Err: err}
			continue
		}
		c.results <- c.run(ctx, unit)
	}
}

func (c *imageCoordinator) run(ctx context.Context, unit imageUnit) imageOutcome {
	prompt, evalPrompt := unit.BuildPrompts()
	req := imagegen.Request{
		JobID:      c.jobID,
		Page:       unit.Page,
		Prompt:     prompt,
		EvalSystem: unit.EvalSystem,
		EvalPrompt: evalPrompt,
		Kind:       unit.Kind,
		References: unit.References,
	}
	if c.onReady != nil {
		req.OnReady = func(image []byte) { c.onReady(unit, prompt, image) }
	}

	// In sequential mode a story page is anchored on its predecessor.
	if c.mode == storybook.ModeSequential && unit.Page > 1 && c.prevPage == unit.Page-1 {
		cropped, err := imagegen.CropForContinuity(c.prevImage)
		if err != nil {
			c.log.Warn("continuity crop failed, generating without anchor",
				"job_id", c.jobID, "page", unit.Page, "error", err)
		} else {
			req.PreviousImage = cropped
		}
	}

	outcome, err := c.controller.Generate(ctx, req)
	if err == nil && c.mode == storybook.ModeSequential && unit.Page >= 1 {
		c.prevPage = unit.Page
		c.prevImage = outcome.Image
	}
	if err == nil && c.onOutcome != nil {
		// Synchronous on purpose: in sequential mode the next unit's
		// prompts must see whatever this outcome taught the visual bible.
		c.onOutcome(unit, outcome)
	}
	return imageOutcome{Unit: unit, Outcome: outcome, Err: err}
}
