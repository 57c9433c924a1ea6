package parse

import (
	"reflect"
	"strings"
	"testing"
)

// feed streams text to the scanner in fixed-size chunks, mimicking provider
// deltas that split markers across chunk boundaries.
func feed(s *PageScanner, text string, chunkSize int) {
	var buf strings.Builder
	for i := 0; i < len(text); i += chunkSize {
		end := i + chunkSize
		if end > len(text) {
			end = len(text)
		}
		delta := text[i:end]
		buf.WriteString(delta)
		s.ProcessChunk(delta, buf.String())
	}
}

func TestPageScanner_EmitsOnlyProvenPages(t *testing.T) {
	var events []PageEvent
	s := NewPageScanner(3, func(e PageEvent) { events = append(events, e) })

	s.ProcessChunk("[PAGE 1] Once upon", "[PAGE 1] Once upon")
	if len(events) != 0 {
		t.Fatalf("emitted %d events before closing boundary, want 0", len(events))
	}

	full := "[PAGE 1] Once upon a time. [PAGE 2] The middle."
	s.ProcessChunk(" a time. [PAGE 2] The middle.", full)
	if len(events) != 1 {
		t.Fatalf("emitted %d events, want 1", len(events))
	}
	if events[0].Page != 1 || events[0].Text != "Once upon a time." {
		t.Errorf("event = %+v, want page 1 with trimmed text", events[0])
	}
}

func TestPageScanner_FinalizeFlushesLastPage(t *testing.T) {
	var events []PageEvent
	s := NewPageScanner(2, func(e PageEvent) { events = append(events, e) })

	full := "[PAGE 1] A. [PAGE 2] B without terminal"
	feed(s, full, 7)
	if len(events) != 1 {
		t.Fatalf("pre-finalize events = %d, want 1", len(events))
	}

	s.Finalize(full)
	if len(events) != 2 {
		t.Fatalf("post-finalize events = %d, want 2", len(events))
	}
	last := events[1]
	if last.Page != 2 || !last.Flushed {
		t.Errorf("flushed event = %+v, want page 2 with Flushed", last)
	}
	if last.Text != "B without terminal" {
		t.Errorf("flushed text = %q", last.Text)
	}
}

func TestPageScanner_TerminalMarkerClosesLastPage(t *testing.T) {
	var events []PageEvent
	s := NewPageScanner(2, func(e PageEvent) { events = append(events, e) })

	full := "[PAGE 1] A. [PAGE 2] B. [THE END]"
	feed(s, full, 5)
	if len(events) != 2 {
		t.Fatalf("events = %d, want 2 (terminal marker closes page 2)", len(events))
	}
	if events[1].Flushed {
		t.Error("page closed by terminal marker should not be Flushed")
	}
	if events[1].Text != "B." {
		t.Errorf("page 2 text = %q, want B.", events[1].Text)
	}
}

func TestPageScanner_DeduplicatesFirstWins(t *testing.T) {
	var events []PageEvent
	s := NewPageScanner(3, func(e PageEvent) { events = append(events, e) })

	full := "[PAGE 1] first. [PAGE 1] dupe. [PAGE 2] next. [THE END]"
	feed(s, full, 9)
	s.Finalize(full)

	if got := s.Emitted(); !reflect.DeepEqual(got, []int{1, 2}) {
		t.Fatalf("Emitted() = %v, want [1 2]", got)
	}
	if events[0].Text != "first." {
		t.Errorf("page 1 text = %q, want first occurrence to win", events[0].Text)
	}
}

func TestPageScanner_DropsOutOfRange(t *testing.T) {
	var events []PageEvent
	s := NewPageScanner(2, func(e PageEvent) { events = append(events, e) })

	full := "[PAGE 0] zero. [PAGE 1] one. [PAGE 7] seven. [PAGE 2] two. [THE END]"
	feed(s, full, 11)
	s.Finalize(full)

	if got := s.Emitted(); !reflect.DeepEqual(got, []int{1, 2}) {
		t.Errorf("Emitted() = %v, want [1 2]", got)
	}
}

func TestPageScanner_Missing(t *testing.T) {
	s := NewPageScanner(4, func(PageEvent) {})
	full := "[PAGE 1] a. [PAGE 2] b. [PAGE 4] d. [THE END]"
	feed(s, full, 6)
	s.Finalize(full)

	if got := s.Missing(); !reflect.DeepEqual(got, []int{3}) {
		t.Errorf("Missing() = %v, want [3]", got)
	}
}

func TestPageScanner_NeverEmitsTwiceAcrossChunkSizes(t *testing.T) {
	full := "[PAGE 1] aa. [PAGE 2] bb. [PAGE 3] cc. [THE END]"
	for chunk := 1; chunk <= len(full); chunk++ {
		counts := map[int]int{}
		s := NewPageScanner(3, func(e PageEvent) { counts[e.Page]++ })
		feed(s, full, chunk)
		s.Finalize(full)
		for page, n := range counts {
			if n != 1 {
				t.Fatalf("chunk=%d: page %d emitted %d times", chunk, page, n)
			}
		}
		if len(counts) != 3 {
			t.Fatalf("chunk=%d: emitted %d pages, want 3", chunk, len(counts))
		}
	}
}
