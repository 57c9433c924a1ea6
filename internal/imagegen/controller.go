package imagegen

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/fableforge/fableforge/internal/providers"
	"github.com/fableforge/fableforge/internal/storybook"
)

const (
	// DefaultMaxAttempts is the number of generate-and-score rounds a
	// single illustration gets before the best candidate is kept.
	DefaultMaxAttempts = 3

	// DefaultThreshold is the minimum score at which a candidate is
	// accepted without further attempts.
	DefaultThreshold = 50
)

// Request describes one illustration to produce and score.
type Request struct {
	JobID string

	// Page uses the page-number space: story pages start at 1, covers
	// use 0, -1 and -2.
	Page int

	Prompt     string
	EvalSystem string
	EvalPrompt string
	Kind       providers.EvalKind
	References []providers.ReferenceImage

	// PreviousImage anchors continuity in sequential mode.
	PreviousImage []byte

	// OnReady, when set, receives each candidate image as soon as it is
	// generated, before scoring. Callers use it to surface progress.
	OnReady func(image []byte)
}

// Outcome is the result of the generate-and-score loop.
type Outcome struct {
	Image     []byte
	Score     int
	Reasoning string

	// Accepted is false when every attempt scored below the threshold
	// and the best candidate was kept anyway.
	Accepted bool

	// Regenerated is true when more than one attempt was needed.
	Regenerated bool

	// Attempts records every round, in order, including the kept one.
	Attempts []storybook.RetryAttempt

	// PromptUsed is the final prompt, differing from the request when a
	// safety rewrite occurred.
	PromptUsed string
	Rewritten  bool

	// ElementDescriptions carries the kept attempt's verdict on how each
	// recurring element was depicted.
	ElementDescriptions map[string]string

	FromCache bool
	Usage     providers.Usage
}

// cachedOutcome is the persisted form of an accepted outcome. Caching the
// image alone would lose the verdict, so a cache hit could not reproduce
// the score and attempt history the scene checkpoint needs.
type cachedOutcome struct {
	Image               []byte                   `json:"image"`
	Score               int                      `json:"score"`
	Reasoning           string                   `json:"reasoning"`
	Accepted            bool                     `json:"accepted"`
	Regenerated         bool                     `json:"regenerated"`
	Attempts            []storybook.RetryAttempt `json:"attempts,omitempty"`
	PromptUsed          string                   `json:"prompt_used"`
	Rewritten           bool                     `json:"rewritten,omitempty"`
	ElementDescriptions map[string]string        `json:"element_descriptions,omitempty"`
}

// Controller runs the generate-and-score loop for one illustration at a
// time. It is safe for concurrent use.
type Controller struct {
	Images   providers.ImageGenerator
	Eval     providers.VisionEvaluator
	Rewriter PromptRewriter
	Cache    Cache

	MaxAttempts int
	Threshold   int
	Retry       providers.RetryPolicy
	Logger      *slog.Logger
}

func (c *Controller) maxAttempts() int {
	if c.MaxAttempts > 0 {
		return c.MaxAttempts
	}
	return DefaultMaxAttempts
}

func (c *Controller) threshold() int {
	if c.Threshold > 0 {
		return c.Threshold
	}
	return DefaultThreshold
}

func (c *Controller) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// Generate produces an illustration, scores it, and retries low scores up
// to the attempt limit. The best-scoring candidate is always returned,
// with the full attempt history. A safety refusal triggers one prompt
// rewrite that does not consume an attempt.
func (c *Controller) Generate(ctx context.Context, req Request) (*Outcome, error) {
	log := c.logger().With("job_id", req.JobID, "page", req.Page)
	key := CacheKey(req.Prompt, req.References, len(req.PreviousImage) > 0)

	if c.Cache != nil {
		data, ok, err := c.Cache.Get(ctx, key)
		if err != nil {
			log.Warn("image cache read failed", "error", err)
		} else if ok {
			var cached cachedOutcome
			if err := json.Unmarshal(data, &cached); err != nil {
				log.Warn("image cache entry unreadable, regenerating", "error", err)
			} else {
				log.Debug("image served from cache", "score", cached.Score)
				if req.OnReady != nil {
					req.OnReady(cached.Image)
				}
				return &Outcome{
					Image:               cached.Image,
					Score:               cached.Score,
					Reasoning:           cached.Reasoning,
					Accepted:            cached.Accepted,
					Regenerated:         cached.Regenerated,
					Attempts:            cached.Attempts,
					PromptUsed:          cached.PromptUsed,
					Rewritten:           cached.Rewritten,
					ElementDescriptions: cached.ElementDescriptions,
					FromCache:           true,
				}, nil
			}
		}
	}

	outcome := &Outcome{PromptUsed: req.Prompt}
	prompt := req.Prompt
	rewritten := false

	var bestImage []byte
	bestScore := -1
	bestReasoning := ""
	var bestDescriptions map[string]string

	for attempt := 1; attempt <= c.maxAttempts(); attempt++ {
		if attempt > 1 && c.Cache != nil {
			// A rejected candidate must not survive into the retry.
			if err := c.Cache.Delete(ctx, key); err != nil {
				log.Warn("image cache delete failed", "error", err)
			}
		}

		image, genUsage, err := c.generateOnce(ctx, prompt, req)
		if err != nil {
			if providers.IsSafetyBlock(err) && !rewritten && c.Rewriter != nil {
				newPrompt, usage, rwErr := c.Rewriter.Rewrite(ctx, prompt, err.Error())
				if rwErr != nil {
					return nil, fmt.Errorf("rewrite refused prompt: %w", rwErr)
				}
				log.Info("prompt rewritten after safety refusal", "attempt", attempt)
				prompt = newPrompt
				key = CacheKey(prompt, req.References, len(req.PreviousImage) > 0)
				rewritten = true
				outcome.Rewritten = true
				outcome.PromptUsed = newPrompt
				outcome.Usage = addUsage(outcome.Usage, usage)
				attempt-- // the blocked call does not count against the budget
				continue
			}
			return nil, fmt.Errorf("generate image for page %d: %w", req.Page, err)
		}
		outcome.Usage = addUsage(outcome.Usage, genUsage)

		if req.OnReady != nil {
			req.OnReady(image)
		}

		ev, err := c.evaluateOnce(ctx, image, req)
		if err != nil {
			return nil, fmt.Errorf("evaluate image for page %d: %w", req.Page, err)
		}
		outcome.Usage = addUsage(outcome.Usage, ev.Usage)

		score := ev.Score
		if ev.Disqualified(req.Kind) {
			log.Info("cover disqualified for defective text", "reported_score", ev.Score)
			score = 0
		}

		accepted := score >= c.threshold()
		outcome.Attempts = append(outcome.Attempts, storybook.RetryAttempt{
			Attempt:   attempt,
			Score:     score,
			Reasoning: ev.Reasoning,
			Accepted:  accepted,
		})

		if score > bestScore {
			bestScore = score
			bestImage = image
			bestReasoning = ev.Reasoning
			bestDescriptions = ev.ElementDescriptions
		}

		if accepted {
			log.Debug("image accepted", "attempt", attempt, "score", score)
			break
		}
		log.Info("image below threshold", "attempt", attempt, "score", score, "threshold", c.threshold())
	}

	outcome.Image = bestImage
	outcome.Score = bestScore
	outcome.Reasoning = bestReasoning
	outcome.Accepted = bestScore >= c.threshold()
	outcome.Regenerated = len(outcome.Attempts) > 1
	outcome.ElementDescriptions = bestDescriptions

	if c.Cache != nil && len(bestImage) > 0 {
		data, err := json.Marshal(cachedOutcome{
			Image:               outcome.Image,
			Score:               outcome.Score,
			Reasoning:           outcome.Reasoning,
			Accepted:            outcome.Accepted,
			Regenerated:         outcome.Regenerated,
			Attempts:            outcome.Attempts,
			PromptUsed:          outcome.PromptUsed,
			Rewritten:           outcome.Rewritten,
			ElementDescriptions: outcome.ElementDescriptions,
		})
		if err == nil {
			err = c.Cache.Set(ctx, key, data)
		}
		if err != nil {
			log.Warn("image cache write failed", "error", err)
		}
	}
	return outcome, nil
}

func (c *Controller) generateOnce(ctx context.Context, prompt string, req Request) ([]byte, providers.Usage, error) {
	var result *providers.ImageResult
	err := providers.WithRetry(ctx, c.Retry, "image.generate", func() error {
		var genErr error
		result, genErr = c.Images.Generate(ctx, providers.ImageRequest{
			Prompt:        prompt,
			References:    req.References,
			PreviousImage: req.PreviousImage,
			RequestID:     fmt.Sprintf("%s-p%d", req.JobID, req.Page),
		})
		return genErr
	})
	if err != nil {
		return nil, providers.Usage{}, err
	}
	return result.Image, result.Usage, nil
}

func (c *Controller) evaluateOnce(ctx context.Context, image []byte, req Request) (*providers.Evaluation, error) {
	var ev *providers.Evaluation
	err := providers.WithRetry(ctx, c.Retry, "image.evaluate", func() error {
		var evalErr error
		ev, evalErr = c.Eval.Evaluate(ctx, providers.EvalRequest{
			Image:      image,
			System:     req.EvalSystem,
			Prompt:     req.EvalPrompt,
			References: req.References,
			Kind:       req.Kind,
			RequestID:  fmt.Sprintf("%s-p%d", req.JobID, req.Page),
		})
		return evalErr
	})
	if err != nil {
		return nil, err
	}
	return ev, nil
}

func addUsage(a, b providers.Usage) providers.Usage {
	return providers.Usage{
		PromptTokens:     a.PromptTokens + b.PromptTokens,
		CompletionTokens: a.CompletionTokens + b.CompletionTokens,
		TotalTokens:      a.TotalTokens + b.TotalTokens,
	}
}
