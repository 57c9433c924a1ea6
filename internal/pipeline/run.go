package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fableforge/fableforge/internal/bible"
	"github.com/fableforge/fableforge/internal/checkpoint"
	"github.com/fableforge/fableforge/internal/imagegen"
	"github.com/fableforge/fableforge/internal/jobs"
	"github.com/fableforge/fableforge/internal/parse"
	"github.com/fableforge/fableforge/internal/prompts"
	"github.com/fableforge/fableforge/internal/providers"
	"github.com/fableforge/fableforge/internal/storybook"
)

const (
	outlineMaxTokens = 4000
	batchMaxTokens   = 2400
)

// runState carries everything one pipeline run accumulates.
type runState struct {
	jobID string
	input *storybook.StoryInput
	ctrl  *imagegen.Controller
	refs  []providers.ReferenceImage
	log   *slog.Logger

	// sections is written during the outline stage, before any
	// illustration work starts, and read-only afterwards.
	sections map[parse.SectionKind]string
	bible    *bible.Bible

	// mu guards the maps and the usage counter: the drain goroutine
	// records outcomes while the orchestrator goroutine is still
	// streaming text and submitting units.
	mu        sync.Mutex
	pageTexts map[int]string
	scenes    map[int]storybook.Scene
	covers    map[int]storybook.Cover
	usage     storybook.Usage
}

// setPageText stores a page's text. The first writer wins; repair streams
// and retried batches re-deliver pages already seen.
func (st *runState) setPageText(page int, text string) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, seen := st.pageTexts[page]; seen {
		return false
	}
	st.pageTexts[page] = text
	return true
}

func (st *runState) pageText(page int) string {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.pageTexts[page]
}

func (st *runState) textCount() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.pageTexts)
}

func (st *runState) hasScene(page int) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	_, ok := st.scenes[page]
	return ok
}

func (st *runState) hasCover(page int) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	_, ok := st.covers[page]
	return ok
}

func (st *runState) putScene(scene storybook.Scene) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.scenes[scene.Page] = scene
}

func (st *runState) putCover(page int, cover storybook.Cover) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.covers[page] = cover
}

func (st *runState) addUsage(u storybook.Usage) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.usage.Add(u)
}

func (st *runState) counts() (scenes, covers int) {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.scenes), len(st.covers)
}

func (o *Orchestrator) run(ctx context.Context, jobID string, input *storybook.StoryInput, reserved int) {
	log := o.logger().With("job_id", jobID)

	// The quality threshold can be overridden per job, so each run gets
	// its own controller view over the shared providers.
	ctrl := *o.Images
	if input.QualityThreshold > 0 {
		ctrl.Threshold = input.QualityThreshold
	}

	st := &runState{
		jobID:     jobID,
		input:     input,
		ctrl:      &ctrl,
		log:       log,
		sections:  make(map[parse.SectionKind]string),
		pageTexts: make(map[int]string),
		scenes:    make(map[int]storybook.Scene),
		covers:    make(map[int]storybook.Cover),
	}
	for _, photo := range input.ReferencePhotos() {
		st.refs = append(st.refs, providers.ReferenceImage{Label: photo.Label, Data: photo.Data})
	}

	start := time.Now()
	err := o.generate(ctx, st)
	if err != nil {
		o.settleFailure(st, reserved, err)
		return
	}
	o.settleSuccess(st, reserved)
	log.Info("job finished", "duration", time.Since(start))
}

func (o *Orchestrator) generate(ctx context.Context, st *runState) error {
	if err := o.restore(ctx, st); err != nil {
		st.log.Warn("checkpoint restore failed, starting clean", "error", err)
	}

	if err := o.runOutline(ctx, st); err != nil {
		return fmt.Errorf("outline: %w", err)
	}
	if err := o.buildBible(ctx, st); err != nil {
		return fmt.Errorf("visual bible: %w", err)
	}

	coord := newImageCoordinator(ctx, st.jobID, st.input.Mode, o.Workers, st.ctrl,
		func(unit imageUnit, prompt string, img []byte) {
			// The candidate exists before scoring; checkpoint and surface
			// it right away so a status poll can show the image. The
			// scored write replaces it at the same key.
			o.checkpointPending(ctx, st, unit, prompt, img)
			o.notify(jobs.Event{
				JobID:   st.jobID,
				Owner:   st.input.Owner,
				Status:  jobs.StatusProcessing,
				Stage:   StageIllustrations,
				Message: fmt.Sprintf("image ready for page %d, scoring", unit.Page),
			})
		},
		func(unit imageUnit, out *imagegen.Outcome) {
			o.recordFirstAppearances(st, unit.Page, out.ElementDescriptions)
		},
		st.log)

	// Results must drain while units are still being submitted; the
	// coordinator channels hold only a fixed amount of slack, so a big
	// book would otherwise block Submit inside the stream callback.
	total := o.expectedUnits(st)
	drainDone := make(chan error, 1)
	go func() { drainDone <- o.drainResults(ctx, st, coord, total) }()

	o.submitCovers(st, coord)
	textErr := o.runStoryText(ctx, st, coord)
	coord.Close()
	drainErr := <-drainDone

	if textErr != nil {
		return fmt.Errorf("story text: %w", textErr)
	}
	if drainErr != nil {
		return drainErr
	}
	if missing := missingPages(st); len(missing) > 0 {
		return fmt.Errorf("pages never produced: %v", missing)
	}
	return nil
}

// expectedUnits counts the illustrations this run still owes: pages and
// covers without a finished checkpoint.
func (o *Orchestrator) expectedUnits(st *runState) int {
	st.mu.Lock()
	defer st.mu.Unlock()
	total := 0
	for _, page := range []int{storybook.PageFrontCover, storybook.PageInitialPage, storybook.PageBackCover} {
		if _, done := st.covers[page]; !done {
			total++
		}
	}
	for page := 1; page <= st.input.PageCount; page++ {
		if _, done := st.scenes[page]; !done {
			total++
		}
	}
	return total
}

// restore reloads completed work from checkpoints so a resumed job skips
// straight to what is left. It runs before any illustration goroutine
// exists, so it writes the state maps directly.
func (o *Orchestrator) restore(ctx context.Context, st *runState) error {
	texts, err := o.Checkpoints.List(ctx, st.jobID, checkpoint.StepPageText)
	if err != nil {
		return err
	}
	for _, cp := range texts {
		var payload struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(cp.Payload, &payload); err != nil {
			return fmt.Errorf("page text checkpoint %d: %w", cp.Index, err)
		}
		st.pageTexts[cp.Index] = payload.Text
	}

	scenes, err := o.Checkpoints.List(ctx, st.jobID, checkpoint.StepPage)
	if err != nil {
		return err
	}
	for _, cp := range scenes {
		var scene storybook.Scene
		if err := json.Unmarshal(cp.Payload, &scene); err != nil {
			return fmt.Errorf("scene checkpoint %d: %w", cp.Index, err)
		}
		if scene.ScorePending {
			// The job stopped between generation and scoring. Regenerate.
			continue
		}
		st.scenes[scene.Page] = scene
	}

	covers, err := o.Checkpoints.List(ctx, st.jobID, checkpoint.StepCover)
	if err != nil {
		return err
	}
	for _, cp := range covers {
		var cover storybook.Cover
		if err := json.Unmarshal(cp.Payload, &cover); err != nil {
			return fmt.Errorf("cover checkpoint %d: %w", cp.Index, err)
		}
		if cover.ScorePending {
			continue
		}
		st.covers[cover.Type.PageNumber()] = cover
	}

	if len(texts) > 0 || len(st.scenes) > 0 || len(st.covers) > 0 {
		st.log.Info("restored from checkpoints",
			"page_texts", len(texts), "scenes", len(st.scenes), "covers", len(st.covers))
	}
	return nil
}

func (o *Orchestrator) runOutline(ctx context.Context, st *runState) error {
	o.progress(st, StageOutline, outlineStart, "planning the book")

	var outlineText string
	var payload struct {
		Text string `json:"text"`
	}
	err := checkpoint.LoadPayload(ctx, o.Checkpoints, st.jobID, checkpoint.StepOutline, 0, &payload)
	switch {
	case err == nil:
		outlineText = payload.Text
		st.log.Info("outline restored from checkpoint")
	case errors.Is(err, checkpoint.ErrNotFound):
		outlineText, err = o.streamText(ctx, st, providers.TextRequest{
			System:    prompts.OutlineSystemPrompt,
			Prompt:    prompts.BuildOutlinePrompt(st.input),
			MaxTokens: outlineMaxTokens,
			RequestID: st.jobID + "-outline",
		}, nil)
		if err != nil {
			return err
		}
		payload.Text = outlineText
		if err := checkpoint.SavePayload(ctx, o.Checkpoints, st.jobID, checkpoint.StepOutline, 0, payload); err != nil {
			st.log.Warn("outline checkpoint failed", "error", err)
		}
	default:
		return err
	}

	scanner := parse.NewOutlineScanner(func(ev parse.SectionEvent) {
		st.sections[ev.Kind] = ev.Text
	})
	scanner.ProcessChunk(outlineText, outlineText)
	scanner.Finalize(outlineText)

	for _, kind := range []parse.SectionKind{parse.SectionFrontCover, parse.SectionPagePlan} {
		if _, ok := st.sections[kind]; !ok {
			return fmt.Errorf("outline missing %s section", kind)
		}
	}
	o.progress(st, StageOutline, outlineEnd, "outline complete")
	return nil
}

func (o *Orchestrator) buildBible(ctx context.Context, st *runState) error {
	section, ok := st.sections[parse.SectionVisualBible]
	if !ok {
		st.log.Warn("outline carried no visual bible, continuing without one")
		st.bible = &bible.Bible{}
		return nil
	}

	b, err := bible.Parse(section)
	if err != nil {
		return err
	}
	if removed := b.FilterPrimaryCharacters(st.input.PrimaryNames()); len(removed) > 0 {
		st.log.Info("primary characters removed from visual bible", "removed", removed)
	}
	st.bible = b

	if err := checkpoint.SavePayload(ctx, o.Checkpoints, st.jobID, checkpoint.StepBible, 0, b.Entries()); err != nil {
		st.log.Warn("visual bible checkpoint failed", "error", err)
	}
	return nil
}

// submitCovers queues the three cover illustrations. They run alongside
// story-text streaming, which has not started yet.
func (o *Orchestrator) submitCovers(st *runState, coord *imageCoordinator) {
	type coverSpec struct {
		cover        storybook.CoverType
		section      parse.SectionKind
		requiredText string
	}
	specs := []coverSpec{
		{storybook.CoverFront, parse.SectionFrontCover, st.input.Title},
		{storybook.CoverInitial, parse.SectionInitialPage, st.input.Dedication},
		{storybook.CoverBack, parse.SectionBackCover, ""},
	}

	for _, spec := range specs {
		page := spec.cover.PageNumber()
		if st.hasCover(page) {
			continue
		}
		concept := strings.TrimSpace(st.sections[spec.section])
		if concept == "" {
			concept = fmt.Sprintf("A %s illustration for %q", spec.cover, st.input.Title)
		}
		coord.Submit(imageUnit{
			Page:       page,
			EvalSystem: prompts.EvaluateCoverSystemPrompt,
			Kind:       providers.EvalCover,
			References: st.refs,
			BuildPrompts: func() (string, string) {
				entries := st.bible.EntriesForPage(page)
				return prompts.BuildCoverPrompt(st.input, spec.cover, concept, entries),
					prompts.BuildCoverEvaluatePrompt(spec.cover, concept, spec.requiredText, entryNames(entries))
			},
		})
	}
}

// runStoryText streams story pages in batches, submitting each page's
// illustration the moment its text is proven complete. Pages still
// missing after all batches get exactly one targeted re-request.
func (o *Orchestrator) runStoryText(ctx context.Context, st *runState, coord *imageCoordinator) error {
	batchSize := o.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	pagePlan := st.sections[parse.SectionPagePlan]

	submitPage := func(page int, text string) {
		coord.Submit(imageUnit{
			Page:       page,
			EvalSystem: prompts.EvaluateImageSystemPrompt,
			Kind:       providers.EvalPage,
			References: st.refs,
			BuildPrompts: func() (string, string) {
				entries := st.bible.EntriesForPage(page)
				return prompts.BuildImagePrompt(st.input, text, entries),
					prompts.BuildPageEvaluatePrompt(text, entryNames(entries))
			},
		})
	}

	onPage := func(ev parse.PageEvent) {
		if !st.setPageText(ev.Page, ev.Text) {
			return
		}
		if err := checkpoint.SavePayload(ctx, o.Checkpoints, st.jobID, checkpoint.StepPageText, ev.Page, map[string]string{"text": ev.Text}); err != nil {
			st.log.Warn("page text checkpoint failed", "page", ev.Page, "error", err)
		}
		o.progress(st, StageStoryText,
			stagePercent(outlineEnd, storyTextEnd, st.textCount(), st.input.PageCount),
			fmt.Sprintf("page %d written", ev.Page))

		if st.hasScene(ev.Page) {
			return
		}
		submitPage(ev.Page, ev.Text)
	}

	// Resumed pages that already have text but no finished scene still
	// need their illustration.
	for page := 1; page <= st.input.PageCount; page++ {
		text := st.pageText(page)
		if text == "" || st.hasScene(page) {
			continue
		}
		submitPage(page, text)
	}

	for from := 1; from <= st.input.PageCount; from += batchSize {
		to := from + batchSize - 1
		if to > st.input.PageCount {
			to = st.input.PageCount
		}
		if pagesCovered(st, from, to) {
			continue
		}

		scanner := parse.NewPageScanner(st.input.PageCount, onPage)
		_, err := o.streamText(ctx, st, providers.TextRequest{
			System:    prompts.StorySystemPrompt,
			Prompt:    prompts.BuildStoryPrompt(st.input, pagePlan, storySoFar(st), from, to),
			MaxTokens: batchMaxTokens,
			RequestID: fmt.Sprintf("%s-batch-%d", st.jobID, from),
		}, scanner)
		if err != nil {
			return err
		}
		if gaps := pagesInRange(scanner.Missing(), from, to); len(gaps) > 0 {
			st.log.Warn("batch stream left pages unproven",
				"from", from, "to", to, "missing", gaps, "emitted", scanner.Emitted())
		}
	}

	if missing := missingTexts(st); len(missing) > 0 {
		st.log.Warn("pages missing after batches, issuing one repair request", "missing", missing)
		scanner := parse.NewPageScanner(st.input.PageCount, onPage)
		_, err := o.streamText(ctx, st, providers.TextRequest{
			System:    prompts.StorySystemPrompt,
			Prompt:    prompts.BuildMissingPagesPrompt(st.input, pagePlan, storySoFar(st), missing),
			MaxTokens: batchMaxTokens,
			RequestID: st.jobID + "-repair",
		}, scanner)
		if err != nil {
			return err
		}
		if still := missingTexts(st); len(still) > 0 {
			return fmt.Errorf("pages still missing after repair: %v", still)
		}
	}
	return nil
}

// pageScannerSink adapts a PageScanner to the stream chunk callback.
type pageScannerSink interface {
	ProcessChunk(delta, fullText string)
	Finalize(fullText string)
}

// streamText runs one text stream with transient retry. Each retry
// restarts the stream from scratch; scanners dedupe re-seen pages.
func (o *Orchestrator) streamText(ctx context.Context, st *runState, req providers.TextRequest, scanner pageScannerSink) (string, error) {
	var final string
	err := providers.WithRetry(ctx, providers.DefaultRetryPolicy(), "text.stream", func() error {
		var buf strings.Builder
		result, err := o.Text.StreamGenerate(ctx, req, func(delta string) error {
			buf.WriteString(delta)
			if scanner != nil {
				scanner.ProcessChunk(delta, buf.String())
			}
			return nil
		})
		if err != nil {
			return err
		}
		if scanner != nil {
			scanner.Finalize(result.Text)
		}
		st.addUsage(storybook.Usage(result.Usage))
		final = result.Text
		return nil
	})
	return final, err
}

// drainResults collects every illustration outcome, checkpointing each
// finished scene or cover so failures still leave a partial book. It runs
// concurrently with unit submission and returns once the coordinator's
// results channel closes.
func (o *Orchestrator) drainResults(ctx context.Context, st *runState, coord *imageCoordinator, total int) error {
	done := 0
	var errs []error
	for res := range coord.Results() {
		if res.Err != nil {
			errs = append(errs, fmt.Errorf("page %d: %w", res.Unit.Page, res.Err))
			continue
		}
		done++
		o.recordOutcome(ctx, st, res)
		o.progress(st, StageIllustrations,
			stagePercent(storyTextEnd, illustrationsEnd, done, total),
			fmt.Sprintf("%d of %d illustrations finished", done, total))
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func (o *Orchestrator) recordOutcome(ctx context.Context, st *runState, res imageOutcome) {
	out := res.Outcome
	st.addUsage(storybook.Usage(out.Usage))

	if res.Unit.Page >= 1 {
		scene := storybook.Scene{
			Page:             res.Unit.Page,
			Text:             st.pageText(res.Unit.Page),
			SceneDescription: out.PromptUsed,
			Image:            out.Image,
			QualityScore:     out.Score,
			QualityReasoning: out.Reasoning,
			WasRegenerated:   out.Regenerated,
			RetryHistory:     out.Attempts,
			ReferenceAssets:  referenceLabels(st.refs),
		}
		st.putScene(scene)
		if err := checkpoint.SavePayload(ctx, o.Checkpoints, st.jobID, checkpoint.StepPage, scene.Page, scene); err != nil {
			st.log.Warn("scene checkpoint failed", "page", scene.Page, "error", err)
		}
		return
	}

	coverType := coverTypeForPage(res.Unit.Page)
	cover := storybook.Cover{
		Type:             coverType,
		SceneDescription: out.PromptUsed,
		Image:            out.Image,
		QualityScore:     out.Score,
		QualityReasoning: out.Reasoning,
		WasRegenerated:   out.Regenerated,
		RetryHistory:     out.Attempts,
	}
	st.putCover(res.Unit.Page, cover)
	if err := checkpoint.SavePayload(ctx, o.Checkpoints, st.jobID, checkpoint.StepCover, res.Unit.Page, cover); err != nil {
		st.log.Warn("cover checkpoint failed", "page", res.Unit.Page, "error", err)
	}
}

// checkpointPending writes an image-ready, score-pending snapshot so a
// status poll can render the page before evaluation finishes.
func (o *Orchestrator) checkpointPending(ctx context.Context, st *runState, unit imageUnit, prompt string, img []byte) {
	if unit.Page >= 1 {
		scene := storybook.Scene{
			Page:             unit.Page,
			SceneDescription: prompt,
			Image:            img,
			ScorePending:     true,
		}
		if err := checkpoint.SavePayload(ctx, o.Checkpoints, st.jobID, checkpoint.StepPage, unit.Page, scene); err != nil {
			st.log.Warn("pending scene checkpoint failed", "page", unit.Page, "error", err)
		}
		return
	}
	cover := storybook.Cover{
		Type:             coverTypeForPage(unit.Page),
		SceneDescription: prompt,
		Image:            img,
		ScorePending:     true,
	}
	if err := checkpoint.SavePayload(ctx, o.Checkpoints, st.jobID, checkpoint.StepCover, unit.Page, cover); err != nil {
		st.log.Warn("pending cover checkpoint failed", "page", unit.Page, "error", err)
	}
}

// recordFirstAppearances locks in how the evaluator saw each recurring
// element the first time one of its pages was rendered, so every unit
// generated afterwards describes it the same way.
func (o *Orchestrator) recordFirstAppearances(st *runState, page int, descriptions map[string]string) {
	if len(descriptions) == 0 {
		return
	}
	for _, entry := range st.bible.EntriesForPage(page) {
		text := strings.TrimSpace(descriptions[entry.Name])
		if text == "" {
			continue
		}
		if st.bible.RecordExtractedDescription(page, entry.Name, text) {
			st.log.Debug("visual bible locked first appearance", "element", entry.Name, "page", page)
		}
	}
}

func (o *Orchestrator) settleSuccess(st *runState, reserved int) {
	result := assembleResult(st, false)
	raw, err := json.Marshal(result)
	if err != nil {
		o.settleFailure(st, reserved, fmt.Errorf("marshal result: %w", err))
		return
	}

	scenes, covers := st.counts()
	used := CreditCostText + (scenes+covers)*CreditCostPerImage
	if used > reserved {
		used = reserved
	}

	ctx := context.Background()
	if err := o.Jobs.Complete(ctx, st.jobID, raw, used); err != nil {
		st.log.Error("job completion write failed", "error", err)
	}
	if err := o.Ledger.Commit(ctx, st.input.Owner, reserved, used); err != nil {
		st.log.Error("credit commit failed", "error", err)
	}
	o.notify(jobs.Event{
		JobID:    st.jobID,
		Owner:    st.input.Owner,
		Status:   jobs.StatusCompleted,
		Progress: 100,
	})
	st.log.Info("job completed",
		"scenes", scenes,
		"covers", covers,
		"credits_used", used,
		"total_tokens", st.usage.TotalTokens)
}

func (o *Orchestrator) settleFailure(st *runState, reserved int, cause error) {
	message := cause.Error()
	if errors.Is(cause, context.Canceled) {
		message = "job cancelled"
	}

	scenes, covers := st.counts()
	var raw json.RawMessage
	if scenes > 0 || covers > 0 {
		partial := assembleResult(st, true)
		if data, err := json.Marshal(partial); err == nil {
			raw = data
		} else {
			st.log.Error("partial result marshal failed", "error", err)
		}
	}

	ctx := context.Background()
	if err := o.Jobs.Fail(ctx, st.jobID, message, raw); err != nil {
		st.log.Error("job failure write failed", "error", err)
	}
	if err := o.Ledger.Refund(ctx, st.input.Owner, reserved); err != nil {
		st.log.Error("credit refund failed", "error", err)
	}
	o.notify(jobs.Event{
		JobID:  st.jobID,
		Owner:  st.input.Owner,
		Status: jobs.StatusFailed,
		Error:  message,
	})
	st.log.Error("job failed", "error", cause, "partial_scenes", scenes, "partial_covers", covers)
}

func (o *Orchestrator) progress(st *runState, stage string, percent int, message string) {
	if err := o.Jobs.UpdateProgress(context.Background(), st.jobID, stage, percent, message); err != nil {
		st.log.Debug("progress update failed", "stage", stage, "error", err)
	}
	o.notify(jobs.Event{
		JobID:    st.jobID,
		Owner:    st.input.Owner,
		Status:   jobs.StatusProcessing,
		Stage:    stage,
		Progress: percent,
		Message:  message,
	})
}

func assembleResult(st *runState, partial bool) *storybook.Result {
	result := &storybook.Result{
		Title:       st.input.Title,
		Partial:     partial,
		CompletedAt: time.Now().UTC(),
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	result.Usage = st.usage
	for _, scene := range st.scenes {
		result.Scenes = append(result.Scenes, scene)
	}
	sort.Slice(result.Scenes, func(i, j int) bool { return result.Scenes[i].Page < result.Scenes[j].Page })

	for _, page := range []int{storybook.PageFrontCover, storybook.PageInitialPage, storybook.PageBackCover} {
		if cover, ok := st.covers[page]; ok {
			result.Covers = append(result.Covers, cover)
		}
	}
	return result
}

func storySoFar(st *runState) string {
	st.mu.Lock()
	defer st.mu.Unlock()
	var b strings.Builder
	for page := 1; page <= st.input.PageCount; page++ {
		text, ok := st.pageTexts[page]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "[PAGE %d] %s\n", page, text)
	}
	return b.String()
}

func pagesCovered(st *runState, from, to int) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	for page := from; page <= to; page++ {
		if _, ok := st.pageTexts[page]; !ok {
			return false
		}
	}
	return true
}

// pagesInRange filters pages to those within [from, to].
func pagesInRange(pages []int, from, to int) []int {
	var out []int
	for _, page := range pages {
		if page >= from && page <= to {
			out = append(out, page)
		}
	}
	return out
}

func missingTexts(st *runState) []int {
	st.mu.Lock()
	defer st.mu.Unlock()
	var out []int
	for page := 1; page <= st.input.PageCount; page++ {
		if _, ok := st.pageTexts[page]; !ok {
			out = append(out, page)
		}
	}
	return out
}

func missingPages(st *runState) []int {
	st.mu.Lock()
	defer st.mu.Unlock()
	var out []int
	for page := 1; page <= st.input.PageCount; page++ {
		if _, ok := st.scenes[page]; !ok {
			out = append(out, page)
		}
	}
	return out
}

func coverTypeForPage(page int) storybook.CoverType {
	switch page {
	case storybook.PageInitialPage:
		return storybook.CoverInitial
	case storybook.PageBackCover:
		return storybook.CoverBack
	default:
		return storybook.CoverFront
	}
}

func entryNames(entries []bible.Entry) []string {
	var out []string
	for _, entry := range entries {
		out = append(out, entry.Name)
	}
	return out
}

func referenceLabels(refs []providers.ReferenceImage) []string {
	var out []string
	for _, ref := range refs {
		out = append(out, ref.Label)
	}
	return out
}
