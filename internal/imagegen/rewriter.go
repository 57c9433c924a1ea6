package imagegen

import (
	"context"
	"strings"

	"github.com/fableforge/fableforge/internal/prompts"
	"github.com/fableforge/fableforge/internal/providers"
)

// PromptRewriter softens a prompt the image provider refused.
type PromptRewriter interface {
	Rewrite(ctx context.Context, original, refusalReason string) (string, providers.Usage, error)
}

// TextRewriter rewrites refused prompts with the text model.
type TextRewriter struct {
	Text providers.TextGenerator
}

// Rewrite returns a softened version of the original prompt.
func (r *TextRewriter) Rewrite(ctx context.Context, original, refusalReason string) (string, providers.Usage, error) {
	result, err := r.Text.StreamGenerate(ctx, providers.TextRequest{
		System:    prompts.RewriteSystemPrompt,
		Prompt:    prompts.BuildRewritePrompt(original, refusalReason),
		MaxTokens: 1024,
	}, func(string) error { return nil })
	if err != nil {
		return "", providers.Usage{}, err
	}
	return strings.TrimSpace(result.Text), result.Usage, nil
}
