package bible

import (
	"reflect"
	"testing"
)

const sampleSection = `Recurring elements for the illustrator:
` + "```json" + `
[
	{"name": "Barnaby", "type": "animal", "pages": [0, 1, 3], "description": "a ginger cat with a torn ear"},
	{"name": "The Lighthouse", "type": "location", "pages": [2, 3, -2], "description": "a striped lighthouse on the cliff"},
	{"name": "Mia", "type": "secondaryCharacter", "pages": [1], "description": "should have been filtered"}
]
` + "```"

func mustParse(t *testing.T) *Bible {
	t.Helper()
	b, err := Parse(sampleSection)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return b
}

func TestParse(t *testing.T) {
	b := mustParse(t)
	entries := b.Entries()
	if len(entries) != 3 {
		t.Fatalf("Parse() produced %d entries, want 3", len(entries))
	}
	if entries[0].Name != "Barnaby" || entries[0].Type != TypeAnimal {
		t.Errorf("entry 0 = %+v", entries[0])
	}
	if entries[0].ID == "" {
		t.Error("entry ID not assigned")
	}
	if !reflect.DeepEqual(entries[1].AppearsInPages, []int{2, 3, -2}) {
		t.Errorf("pages = %v, want [2 3 -2]", entries[1].AppearsInPages)
	}
}

func TestParse_Invalid(t *testing.T) {
	cases := []struct {
		name string
		text string
	}{
		{"no array", "nothing here"},
		{"bad json", "[{broken"},
		{"unknown type", `[{"name": "X", "type": "dragon", "pages": [1], "description": "d"}]`},
		{"missing name", `[{"type": "animal", "pages": [1], "description": "d"}]`},
		{"page below covers", `[{"name": "X", "type": "animal", "pages": [-3], "description": "d"}]`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Parse(tc.text); err == nil {
				t.Error("Parse() expected error, got nil")
			}
		})
	}
}

func TestFilterPrimaryCharacters(t *testing.T) {
	b := mustParse(t)

	removed := b.FilterPrimaryCharacters([]string{"MIA", "Theo"})
	if !reflect.DeepEqual(removed, []string{"Mia"}) {
		t.Errorf("removed = %v, want [Mia]", removed)
	}
	for _, e := range b.Entries() {
		if e.Name == "Mia" {
			t.Error("primary-character collision survived the filter")
		}
	}
	if len(b.ChangeLog()) != 1 {
		t.Errorf("change log entries = %d, want 1", len(b.ChangeLog()))
	}
}

func TestEntriesForPage(t *testing.T) {
	b := mustParse(t)

	got := b.EntriesForPage(3)
	if len(got) != 2 {
		t.Fatalf("EntriesForPage(3) = %d entries, want 2", len(got))
	}

	// Cover conventions: front cover is page 0, back cover -2.
	if got := b.EntriesForPage(0); len(got) != 1 || got[0].Name != "Barnaby" {
		t.Errorf("EntriesForPage(0) = %+v, want [Barnaby]", got)
	}
	if got := b.EntriesForPage(-2); len(got) != 1 || got[0].Name != "The Lighthouse" {
		t.Errorf("EntriesForPage(-2) = %+v, want [The Lighthouse]", got)
	}
	if got := b.EntriesForPage(99); got != nil {
		t.Errorf("EntriesForPage(99) = %+v, want nil", got)
	}
}

func TestRecordExtractedDescription(t *testing.T) {
	b := mustParse(t)

	if !b.RecordExtractedDescription(1, "barnaby", "ginger cat, green eyes, torn left ear") {
		t.Fatal("RecordExtractedDescription() = false on first backfill")
	}
	// First analysis wins.
	if b.RecordExtractedDescription(3, "Barnaby", "different text") {
		t.Error("RecordExtractedDescription() = true on second backfill, want false")
	}
	if b.RecordExtractedDescription(1, "nobody", "x") {
		t.Error("RecordExtractedDescription() = true for unknown entry")
	}

	var barnaby Entry
	for _, e := range b.Entries() {
		if e.Name == "Barnaby" {
			barnaby = e
		}
	}
	if !barnaby.FirstAppearanceAnalyzed {
		t.Error("FirstAppearanceAnalyzed not set")
	}
	if barnaby.EffectiveDescription() != "ginger cat, green eyes, torn left ear" {
		t.Errorf("EffectiveDescription() = %q", barnaby.EffectiveDescription())
	}

	log := b.ChangeLog()
	if len(log) != 1 {
		t.Fatalf("change log entries = %d, want 1", len(log))
	}
	if log[0].Page != 1 || log[0].Field != "extracted_description" || log[0].Before != "" {
		t.Errorf("change log entry = %+v", log[0])
	}
}
