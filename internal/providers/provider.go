// Package providers wraps the external AI services the pipeline depends on:
// streaming text generation, reference-guided image generation, and
// vision-based quality evaluation. Each provider carries its own rate
// limiting and classifies failures into the shared error taxonomy.
package providers

import (
	"context"
	"time"
)

// Usage reports token consumption for a single provider call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// TextRequest is a streaming text-generation request.
type TextRequest struct {
	System    string
	Prompt    string
	MaxTokens int

	// Temperature of 0 means provider default.
	Temperature float64

	RequestID string
}

// TextResult is the complete outcome of a streamed generation.
type TextResult struct {
	Text  string
	Usage Usage
}

// ChunkHandler receives each streamed delta. Returning an error aborts the
// stream and surfaces the error to the caller.
type ChunkHandler func(delta string) error

// TextGenerator streams text from the story model.
type TextGenerator interface {
	Name() string

	// StreamGenerate runs one generation call, invoking onChunk for every
	// delta, and returns the full accumulated text plus token usage.
	StreamGenerate(ctx context.Context, req TextRequest, onChunk ChunkHandler) (*TextResult, error)
}

// ReferenceImage is an ordered, labeled reference passed to the image
// provider. The label (a character's name) is also prefixed in-prompt so the
// provider attributes the reference correctly.
type ReferenceImage struct {
	Label string
	Data  []byte
}

// ImageRequest is a single image-generation request.
type ImageRequest struct {
	Prompt     string
	References []ReferenceImage

	// PreviousImage carries the prior page's (cropped) image in
	// sequential mode to anchor visual continuity.
	PreviousImage []byte

	RequestID string
}

// ImageResult is a generated image with usage accounting.
type ImageResult struct {
	Image []byte
	Usage Usage
}

// ImageGenerator produces one image per call.
type ImageGenerator interface {
	Name() string
	Generate(ctx context.Context, req ImageRequest) (*ImageResult, error)
}

// EvalKind distinguishes cover evaluations, which carry stricter embedded-
// text rules, from page evaluations.
type EvalKind string

const (
	EvalPage  EvalKind = "page"
	EvalCover EvalKind = "cover"
)

// EvalRequest asks the vision model to score an image against the prompt
// that produced it and the references it should honor.
type EvalRequest struct {
	Image      []byte
	System     string
	Prompt     string
	References []ReferenceImage
	Kind       EvalKind
	RequestID  string
}

// Evaluation is the vision model's verdict.
type Evaluation struct {
	Score     int    `json:"score"`
	Reasoning string `json:"reasoning"`

	// Embedded-text findings, only meaningful for cover evaluations.
	TextExpected bool `json:"text_expected"`
	TextRendered bool `json:"text_rendered"`
	TextDefect   bool `json:"text_defect"`

	// ElementDescriptions maps each recurring element the evaluation
	// prompt asked about to one sentence describing how the rendered
	// image actually depicts it.
	ElementDescriptions map[string]string `json:"element_descriptions,omitempty"`

	Usage Usage `json:"-"`
}

// Disqualified reports whether the embedded-text rules force this
// evaluation's accepted score to zero. A cover with defective text is
// disqualified regardless of the reported score, unless no text was
// expected and none rendered, which is correct and not penalized.
func (ev *Evaluation) Disqualified(kind EvalKind) bool {
	if kind != EvalCover || !ev.TextDefect {
		return false
	}
	if !ev.TextExpected && !ev.TextRendered {
		return false
	}
	return true
}

// VisionEvaluator scores generated images.
type VisionEvaluator interface {
	Name() string
	Evaluate(ctx context.Context, req EvalRequest) (*Evaluation, error)
}

// Timeouts holds the fixed call timeouts and the scaling rule for text
// generation, whose duration grows with the requested output size.
type Timeouts struct {
	TextBase     time.Duration // floor for any text call
	TextPerToken time.Duration // added per requested max token
	Image        time.Duration
	Evaluation   time.Duration
}

// DefaultTimeouts returns the standard timeout policy.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		TextBase:     30 * time.Second,
		TextPerToken: 15 * time.Millisecond,
		Image:        120 * time.Second,
		Evaluation:   60 * time.Second,
	}
}

// withDefaults fills any zero field from DefaultTimeouts.
func (t Timeouts) withDefaults() Timeouts {
	def := DefaultTimeouts()
	if t.TextBase <= 0 {
		t.TextBase = def.TextBase
	}
	if t.TextPerToken <= 0 {
		t.TextPerToken = def.TextPerToken
	}
	if t.Image <= 0 {
		t.Image = def.Image
	}
	if t.Evaluation <= 0 {
		t.Evaluation = def.Evaluation
	}
	return t
}

// ForText returns the timeout for a text call requesting maxTokens output.
func (t Timeouts) ForText(maxTokens int) time.Duration {
	d := t.TextBase + time.Duration(maxTokens)*t.TextPerToken
	if d < t.TextBase {
		return t.TextBase
	}
	return d
}
