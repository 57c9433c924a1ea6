package prompts

import (
	"fmt"
	"strings"

	"github.com/fableforge/fableforge/internal/storybook"
)

// StorySystemPrompt instructs the model to emit page-marked story text so
// pages can be detected and dispatched while the stream is still running.
const StorySystemPrompt = `You are a children's book author writing the final text of a picture book.

Write the story pages you are asked for, using EXACTLY this format:

[PAGE N] The text of page N, two to four short sentences suitable for reading aloud.

Rules:
- Every page starts with its [PAGE N] marker on its own line.
- Write pages in ascending order with no gaps.
- After the LAST page of the whole book (and only then), finish with [THE END] on its own line.
- Do not write anything after [THE END].
- Keep vocabulary age-appropriate, warm, and rhythmic.`

// BuildStoryPrompt builds the user prompt for one batch of story pages.
// The outline and any previously written pages are included so each batch
// continues the narrative instead of restarting it.
func BuildStoryPrompt(input *storybook.StoryInput, pagePlan string, previousPages string, fromPage, toPage int) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Book: %q, %d pages total.\n", input.Title, input.PageCount)
	if input.Language != "" {
		fmt.Fprintf(&b, "Write in %s.\n", input.Language)
	}
	b.WriteString("\nPage plan:\n")
	b.WriteString(pagePlan)
	b.WriteString("\n")

	if previousPages != "" {
		b.WriteString("\nStory so far:\n")
		b.WriteString(previousPages)
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "\nWrite pages %d through %d now.", fromPage, toPage)
	if toPage >= input.PageCount {
		b.WriteString(" These are the final pages, so end with [THE END].")
	} else {
		b.WriteString(" More pages follow later, so do NOT write [THE END].")
	}
	return b.String()
}

// BuildMissingPagesPrompt requests exactly the pages a batch failed to
// produce. Used once per generation as a targeted repair.
func BuildMissingPagesPrompt(input *storybook.StoryInput, pagePlan string, previousPages string, missing []int) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Book: %q, %d pages total.\n", input.Title, input.PageCount)
	b.WriteString("\nPage plan:\n")
	b.WriteString(pagePlan)
	b.WriteString("\n\nStory written so far:\n")
	b.WriteString(previousPages)

	pages := make([]string, len(missing))
	for i, p := range missing {
		pages[i] = fmt.Sprintf("%d", p)
	}
	fmt.Fprintf(&b, "\n\nThe following pages are missing: %s.\n", strings.Join(pages, ", "))
	b.WriteString("Write ONLY those pages, each with its [PAGE N] marker, matching the plan and the surrounding text.")
	if contains(missing, input.PageCount) {
		b.WriteString(" Finish with [THE END] after the last page.")
	}
	return b.String()
}

func contains(pages []int, n int) bool {
	for _, p := range pages {
		if p == n {
			return true
		}
	}
	return false
}
