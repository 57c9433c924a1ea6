package prompts

import (
	"fmt"
	"strings"

	"github.com/fableforge/fableforge/internal/bible"
	"github.com/fableforge/fableforge/internal/storybook"
)

// BuildImagePrompt assembles the illustration prompt for one page. Visual
// bible entries for the page are inlined so recurring elements keep the
// same appearance across illustrations.
func BuildImagePrompt(input *storybook.StoryInput, pageText string, entries []bible.Entry) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Illustrate one page of a children's picture book in this art style: %s.\n\n", input.ArtStyle)
	b.WriteString("Scene to illustrate:\n")
	b.WriteString(pageText)
	b.WriteString("\n")

	writeCharacterSection(&b, input)
	writeBibleSection(&b, entries)

	b.WriteString("\nDo NOT render any text, letters, or captions in the image.")
	return b.String()
}

// BuildCoverPrompt assembles the illustration prompt for a cover. The
// front cover must carry the title text; the others must stay text-free.
func BuildCoverPrompt(input *storybook.StoryInput, cover storybook.CoverType, concept string, entries []bible.Entry) string {
	var b strings.Builder

	switch cover {
	case storybook.CoverFront:
		fmt.Fprintf(&b, "Illustrate the FRONT COVER of a children's picture book in this art style: %s.\n", input.ArtStyle)
		fmt.Fprintf(&b, "The title %q must appear on the cover, rendered clearly and without spelling mistakes.\n\n", input.Title)
	case storybook.CoverInitial:
		fmt.Fprintf(&b, "Illustrate the TITLE PAGE of a children's picture book in this art style: %s.\n\n", input.ArtStyle)
		if input.Dedication != "" {
			fmt.Fprintf(&b, "Include this dedication text, rendered clearly: %q\n\n", input.Dedication)
		}
	case storybook.CoverBack:
		fmt.Fprintf(&b, "Illustrate the BACK COVER of a children's picture book in this art style: %s.\n", input.ArtStyle)
		b.WriteString("Do NOT render any text on the back cover.\n\n")
	}

	b.WriteString("Concept:\n")
	b.WriteString(concept)
	b.WriteString("\n")

	writeCharacterSection(&b, input)
	writeBibleSection(&b, entries)
	return b.String()
}

func writeCharacterSection(b *strings.Builder, input *storybook.StoryInput) {
	if len(input.Characters) == 0 {
		return
	}
	b.WriteString("\nMain characters (match the attached reference photos exactly):\n")
	for _, ch := range input.Characters {
		fmt.Fprintf(b, "- %s: %s", ch.Name, ch.Description)
		if ch.HeightCM > 0 {
			fmt.Fprintf(b, " (about %dcm tall, %s build)", ch.HeightCM, ch.Build)
		}
		b.WriteString("\n")
	}
}

func writeBibleSection(b *strings.Builder, entries []bible.Entry) {
	if len(entries) == 0 {
		return
	}
	b.WriteString("\nRecurring elements in this scene (keep their appearance consistent):\n")
	for _, e := range entries {
		fmt.Fprintf(b, "- %s (%s): %s\n", e.Name, e.Type, e.EffectiveDescription())
	}
}
