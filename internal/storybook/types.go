// Package storybook defines the domain types for illustrated storybook
// generation: the job input, per-page scenes, covers, and the final result.
package storybook

import "time"

// GenerationMode selects how page images are produced.
type GenerationMode string

const (
	// ModeParallel generates page images concurrently as soon as each
	// page's text is known.
	ModeParallel GenerationMode = "parallel"

	// ModeSequential generates pages strictly in order, feeding each
	// finished image into the next page's generation call for stronger
	// visual continuity.
	ModeSequential GenerationMode = "sequential"
)

// Cover page number conventions. Covers share the page-number space with
// story pages so the Visual Bible can reference them uniformly.
const (
	PageFrontCover  = 0
	PageInitialPage = -1
	PageBackCover   = -2
)

// ReferencePhoto is a labeled reference image for a character.
// The label is the character's name so image providers can attribute it.
type ReferencePhoto struct {
	Label string `json:"label"`
	Data  []byte `json:"data"`
}

// Character is a normalized primary-cast member. Legacy payload shapes are
// resolved into this type once at ingestion; nothing downstream should need
// field fallbacks.
type Character struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`

	// Attributes derived from photo analysis (optional).
	Age      int    `json:"age,omitempty"`
	Gender   string `json:"gender,omitempty"`
	HeightCM int    `json:"height_cm,omitempty"`
	Build    string `json:"build,omitempty"`

	Photo *ReferencePhoto `json:"photo,omitempty"`
}

// StoryInput is the request that starts a storybook job.
type StoryInput struct {
	Owner      string         `json:"owner"`
	Title      string         `json:"title"`
	Characters []Character    `json:"characters"`
	PageCount  int            `json:"page_count"`
	Mode       GenerationMode `json:"mode"`
	ArtStyle   string         `json:"art_style"`
	Theme      string         `json:"theme"`
	Dedication string         `json:"dedication,omitempty"`
	Language   string         `json:"language,omitempty"`

	// QualityThreshold overrides the configured accept score when > 0.
	QualityThreshold int `json:"quality_threshold,omitempty"`
}

// RetryAttempt records one pass through the quality gate.
type RetryAttempt struct {
	Attempt   int    `json:"attempt"`
	Score     int    `json:"score"`
	Reasoning string `json:"reasoning,omitempty"`
	Accepted  bool   `json:"accepted"`
}

// Scene is one illustrated page: its text, derived scene description, and
// the image that survived the quality gate.
type Scene struct {
	Page             int            `json:"page"`
	Text             string         `json:"text"`
	SceneDescription string         `json:"scene_description"`
	Image            []byte         `json:"image,omitempty"`
	QualityScore     int            `json:"quality_score"`
	QualityReasoning string         `json:"quality_reasoning,omitempty"`
	WasRegenerated   bool           `json:"was_regenerated"`
	RetryHistory     []RetryAttempt `json:"retry_history,omitempty"`
	ReferenceAssets  []string       `json:"reference_assets,omitempty"`

	// ScorePending marks a checkpoint written as soon as the image exists,
	// before evaluation. The scored write replaces it at the same key.
	ScorePending bool `json:"score_pending,omitempty"`
}

// CoverType identifies which cover a Cover value describes.
type CoverType string

const (
	CoverFront   CoverType = "front"
	CoverInitial CoverType = "initialPage"
	CoverBack    CoverType = "back"
)

// PageNumber returns the page-number-space value for a cover type.
func (t CoverType) PageNumber() int {
	switch t {
	case CoverInitial:
		return PageInitialPage
	case CoverBack:
		return PageBackCover
	default:
		return PageFrontCover
	}
}

// Cover is a generated cover image with its quality metadata.
type Cover struct {
	Type             CoverType      `json:"type"`
	SceneDescription string         `json:"scene_description"`
	Image            []byte         `json:"image,omitempty"`
	QualityScore     int            `json:"quality_score"`
	QualityReasoning string         `json:"quality_reasoning,omitempty"`
	WasRegenerated   bool           `json:"was_regenerated"`
	RetryHistory     []RetryAttempt `json:"retry_history,omitempty"`
	ScorePending     bool           `json:"score_pending,omitempty"`
}

// Usage accumulates provider token consumption for a job.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add accumulates another usage sample.
func (u *Usage) Add(o Usage) {
	u.PromptTokens += o.PromptTokens
	u.CompletionTokens += o.CompletionTokens
	u.TotalTokens += o.TotalTokens
}

// Result is the assembled storybook. Partial is set when the job failed but
// some scenes or covers completed and were preserved.
type Result struct {
	Title       string    `json:"title"`
	Scenes      []Scene   `json:"scenes"`
	Covers      []Cover   `json:"covers"`
	Usage       Usage     `json:"usage"`
	Partial     bool      `json:"partial,omitempty"`
	CompletedAt time.Time `json:"completed_at"`
}
