package prompts

import (
	"fmt"
	"strings"

	"github.com/fableforge/fableforge/internal/storybook"
)

// EvaluateImageSystemPrompt scores a page illustration. The verdict must
// be machine-readable JSON; it is schema-validated on receipt.
const EvaluateImageSystemPrompt = `You are a strict art director reviewing illustrations for a children's picture book.

Score the FIRST attached image from 0 to 100 against the scene description and any reference images that follow it.

Scoring guidance:
- 90-100: publishable, characters match references closely, scene is correct.
- 70-89: minor flaws (slight proportions, background details).
- 50-69: noticeable problems but scene and likeness are recognizable.
- 0-49: wrong characters, wrong scene, anatomical errors, or disturbing content.

Heavily penalize: extra or missing limbs, faces that do not match the reference photos, mismatched recurring elements, and any rendered text (page images must contain no text).

Respond with ONLY a JSON object:
{"score": <0-100>, "reasoning": "<2-3 sentences>", "text_expected": false, "text_rendered": <bool>, "text_defect": <bool>, "element_descriptions": {"<name>": "<one sentence>"}}
Set text_rendered if any letters or words appear in the image, and text_defect if that text should not be there.
When the task lists recurring elements, describe in element_descriptions how each one is actually depicted in this image: colors, markings, clothing, distinguishing details. Omit the field otherwise.`

// EvaluateCoverSystemPrompt scores a cover, where rendered text is part
// of the design and must itself be checked for correctness.
const EvaluateCoverSystemPrompt = `You are a strict art director reviewing the cover of a children's picture book.

Score the FIRST attached image from 0 to 100 against the cover concept and any reference images that follow it.

In addition to illustration quality, check embedded text carefully:
- If the concept requires text (a title or dedication), it must be present, spelled EXACTLY as specified, and legible.
- Misspelled, garbled, duplicated, or unrequested text is a critical defect.

Respond with ONLY a JSON object:
{"score": <0-100>, "reasoning": "<2-3 sentences>", "text_expected": <bool>, "text_rendered": <bool>, "text_defect": <bool>, "element_descriptions": {"<name>": "<one sentence>"}}
Set text_expected if the concept requires text, text_rendered if any text appears, and text_defect if the text is wrong, garbled, or should not be there.
When the task lists recurring elements, describe in element_descriptions how each one is actually depicted in this image. Omit the field otherwise.`

// BuildPageEvaluatePrompt builds the user portion of a page evaluation.
// elements names the recurring visual elements expected on the page; the
// evaluator reports how each one was actually depicted.
func BuildPageEvaluatePrompt(sceneDescription string, elements []string) string {
	var b strings.Builder
	b.WriteString("The image was generated from this scene description:\n")
	b.WriteString(sceneDescription)
	writeElementsRequest(&b, elements)
	b.WriteString("\n\nScore it now.")
	return b.String()
}

// BuildCoverEvaluatePrompt builds the user portion of a cover evaluation.
// requiredText is the exact string that must appear on the cover, empty
// when the cover must be text-free.
func BuildCoverEvaluatePrompt(cover storybook.CoverType, concept, requiredText string, elements []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Cover type: %s.\n\n", cover)
	b.WriteString("The image was generated from this concept:\n")
	b.WriteString(concept)
	if requiredText != "" {
		fmt.Fprintf(&b, "\n\nRequired text, exactly as written: %q", requiredText)
	} else {
		b.WriteString("\n\nNo text should appear on this cover.")
	}
	writeElementsRequest(&b, elements)
	b.WriteString("\n\nScore it now.")
	return b.String()
}

func writeElementsRequest(b *strings.Builder, elements []string) {
	if len(elements) == 0 {
		return
	}
	b.WriteString("\n\nRecurring elements to describe in element_descriptions: ")
	b.WriteString(strings.Join(elements, ", "))
	b.WriteString(".")
}
