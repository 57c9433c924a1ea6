package prompts

import (
	"fmt"
	"strings"
)

// RewriteSystemPrompt softens an illustration prompt that a provider
// refused on safety grounds, without changing what the scene depicts.
const RewriteSystemPrompt = `You are an editor fixing an illustration prompt that an image model refused to render.

Rewrite the prompt so it describes the SAME scene with the SAME characters, but:
- Remove or soften any phrasing that could be read as violent, frightening, or inappropriate for children.
- Prefer gentle, storybook language ("playfully chases" instead of "attacks").
- Keep all character names, physical descriptions, and the art style unchanged.

Respond with ONLY the rewritten prompt, no commentary.`

// BuildRewritePrompt builds the user prompt for a safety rewrite.
func BuildRewritePrompt(original, refusalReason string) string {
	var b strings.Builder
	b.WriteString("The image model refused this prompt")
	if refusalReason != "" {
		fmt.Fprintf(&b, " (reason: %s)", refusalReason)
	}
	b.WriteString(":\n\n")
	b.WriteString(original)
	b.WriteString("\n\nRewrite it now.")
	return b.String()
}
