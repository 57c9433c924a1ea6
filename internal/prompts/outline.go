package prompts

import (
	"fmt"
	"strings"

	"github.com/fableforge/fableforge/internal/storybook"
)

// OutlineSystemPrompt instructs the model to plan the whole book before
// any page text is written. Section markers let the parser surface cover
// concepts and the visual bible while the stream is still running.
const OutlineSystemPrompt = `You are a children's book author and illustrator planning a complete picture book.

Produce a book outline using EXACTLY these section markers, in this order:

[FRONT COVER]
A vivid illustration concept for the front cover. Mention the book title text that must appear on the cover.

[INITIAL PAGE]
An illustration concept for the title page inside the book.

[PAGE PLAN]
One line per story page: "Page N: <one-sentence summary of what happens>".

[VISUAL BIBLE]
A JSON array describing every recurring visual element that is NOT a main character. Each entry:
{"name": "...", "type": "secondaryCharacter|animal|artifact|location", "pages": [page numbers], "description": "detailed visual description"}
Use page number 0 for the front cover, -1 for the initial page, -2 for the back cover.
Do NOT include the main characters listed in the request; their appearance comes from reference photos.

[BACK COVER]
An illustration concept for the back cover. No title text is required.

[END OUTLINE]

Rules:
- Every section marker must appear exactly once.
- The [VISUAL BIBLE] JSON must be valid and self-contained.
- Descriptions must be concrete and visual (colors, shapes, clothing, materials).`

// BuildOutlinePrompt builds the user prompt for the outline stage.
func BuildOutlinePrompt(input *storybook.StoryInput) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Plan a %d-page illustrated storybook titled %q.\n\n", input.PageCount, input.Title)
	fmt.Fprintf(&b, "Art style: %s\n", input.ArtStyle)
	if input.Theme != "" {
		fmt.Fprintf(&b, "Theme: %s\n", input.Theme)
	}
	if input.Language != "" {
		fmt.Fprintf(&b, "Language: %s\n", input.Language)
	}

	b.WriteString("\nMain characters (appearance comes from reference photos, do not add them to the visual bible):\n")
	for _, ch := range input.Characters {
		fmt.Fprintf(&b, "- %s: %s", ch.Name, ch.Description)
		if ch.Age > 0 {
			fmt.Fprintf(&b, " (age %d", ch.Age)
			if ch.HeightCM > 0 {
				fmt.Fprintf(&b, ", about %dcm tall, %s build", ch.HeightCM, ch.Build)
			}
			b.WriteString(")")
		}
		b.WriteString("\n")
	}

	if input.Dedication != "" {
		fmt.Fprintf(&b, "\nDedication for the initial page: %q\n", input.Dedication)
	}

	return b.String()
}
