// Package bible maintains the Visual Bible: a registry of recurring
// non-primary visual elements (secondary characters, animals, artifacts,
// locations) that must render consistently across pages without being
// re-described verbosely every time.
package bible

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// EntryType classifies a Visual Bible element.
type EntryType string

const (
	TypeSecondaryCharacter EntryType = "secondaryCharacter"
	TypeAnimal             EntryType = "animal"
	TypeArtifact           EntryType = "artifact"
	TypeLocation           EntryType = "location"
)

// Entry is one recurring visual element. AppearsInPages uses the shared
// page-number space: 0 = front cover, -1 = initial page, -2 = back cover.
type Entry struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Type           EntryType `json:"type"`
	AppearsInPages []int     `json:"appears_in_pages"`
	Description    string    `json:"description"`

	// ExtractedDescription is backfilled after the entry's first rendered
	// appearance has been analyzed; later pages prefer it over the rough
	// outline hint.
	ExtractedDescription    string `json:"extracted_description,omitempty"`
	FirstAppearanceAnalyzed bool   `json:"first_appearance_analyzed"`
}

// EffectiveDescription returns the best description known for the entry.
func (e *Entry) EffectiveDescription() string {
	if e.ExtractedDescription != "" {
		return e.ExtractedDescription
	}
	return e.Description
}

// ChangeLogEntry is an append-only audit record of a registry mutation.
type ChangeLogEntry struct {
	Page    int       `json:"page"`
	Element string    `json:"element"`
	Field   string    `json:"field"`
	Before  string    `json:"before"`
	After   string    `json:"after"`
	At      time.Time `json:"at"`
}

// Bible is the registry. Safe for concurrent use: page workers read entries
// and backfill extracted descriptions while other pages are in flight.
type Bible struct {
	mu        sync.Mutex
	entries   []*Entry
	changeLog []ChangeLogEntry
}

// entriesSchema validates the model-produced Visual Bible block before it is
// trusted. Models occasionally emit malformed page lists or unknown types.
const entriesSchema = `{
	"type": "array",
	"items": {
		"type": "object",
		"required": ["name", "type", "pages", "description"],
		"properties": {
			"name": {"type": "string", "minLength": 1},
			"type": {"enum": ["secondaryCharacter", "animal", "artifact", "location"]},
			"pages": {"type": "array", "items": {"type": "integer", "minimum": -2}},
			"description": {"type": "string"}
		}
	}
}`

var compiledEntriesSchema = jsonschema.MustCompileString("visual_bible.json", entriesSchema)

type rawEntry struct {
	Name        string    `json:"name"`
	Type        EntryType `json:"type"`
	Pages       []int     `json:"pages"`
	Description string    `json:"description"`
}

// Parse extracts structured entries from the outline's Visual Bible section.
// The section is expected to contain a JSON array; surrounding prose and
// code fences are tolerated.
func Parse(sectionText string) (*Bible, error) {
	raw := extractJSONArray(sectionText)
	if raw == "" {
		return nil, fmt.Errorf("visual bible section contains no JSON array")
	}

	var parsed any
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse visual bible: %w", err)
	}
	if err := compiledEntriesSchema.Validate(parsed); err != nil {
		return nil, fmt.Errorf("visual bible failed validation: %w", err)
	}

	var rawEntries []rawEntry
	if err := json.Unmarshal([]byte(raw), &rawEntries); err != nil {
		return nil, fmt.Errorf("failed to decode visual bible entries: %w", err)
	}

	b := &Bible{}
	for _, re := range rawEntries {
		b.entries = append(b.entries, &Entry{
			ID:             uuid.New().String(),
			Name:           re.Name,
			Type:           re.Type,
			AppearsInPages: re.Pages,
			Description:    re.Description,
		})
	}
	return b, nil
}

// extractJSONArray returns the outermost JSON array in text, stripping any
// markdown fences or prose around it.
func extractJSONArray(text string) string {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start < 0 || end <= start {
		return ""
	}
	return text[start : end+1]
}

// FilterPrimaryCharacters removes every entry whose name case-insensitively
// matches a primary-cast name. The outline prompt forbids such entries; this
// is the safety net against model error. Returns the removed names.
func (b *Bible) FilterPrimaryCharacters(primaryNames []string) []string {
	primary := make(map[string]bool, len(primaryNames))
	for _, n := range primaryNames {
		primary[strings.ToLower(strings.TrimSpace(n))] = true
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	var kept []*Entry
	var removed []string
	for _, e := range b.entries {
		if primary[strings.ToLower(strings.TrimSpace(e.Name))] {
			removed = append(removed, e.Name)
			b.logLocked(0, e.Name, "entry", e.Description, "(removed: primary character)")
			continue
		}
		kept = append(kept, e)
	}
	b.entries = kept
	return removed
}

// EntriesForPage returns copies of all entries whose appearance list
// includes the page (cover pages use 0/-1/-2).
func (b *Bible) EntriesForPage(page int) []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []Entry
	for _, e := range b.entries {
		for _, p := range e.AppearsInPages {
			if p == page {
				out = append(out, *e)
				break
			}
		}
	}
	return out
}

// Entries returns a copy of all entries.
func (b *Bible) Entries() []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Entry, len(b.entries))
	for i, e := range b.entries {
		out[i] = *e
	}
	return out
}

// RecordExtractedDescription backfills the precise description for a named
// entry after its first rendered appearance on the given page was analyzed.
// Returns false if the entry is unknown or already analyzed (first wins).
func (b *Bible) RecordExtractedDescription(page int, name, text string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, e := range b.entries {
		if !strings.EqualFold(e.Name, name) {
			continue
		}
		if e.FirstAppearanceAnalyzed {
			return false
		}
		b.logLocked(page, e.Name, "extracted_description", e.ExtractedDescription, text)
		e.ExtractedDescription = text
		e.FirstAppearanceAnalyzed = true
		return true
	}
	return false
}

// ChangeLog returns a copy of the mutation audit log.
func (b *Bible) ChangeLog() []ChangeLogEntry {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]ChangeLogEntry, len(b.changeLog))
	copy(out, b.changeLog)
	return out
}

func (b *Bible) logLocked(page int, element, field, before, after string) {
	b.changeLog = append(b.changeLog, ChangeLogEntry{
		Page:    page,
		Element: element,
		Field:   field,
		Before:  before,
		After:   after,
		At:      time.Now().UTC(),
	})
}
