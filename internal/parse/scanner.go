// Package parse implements progressive scanners that detect complete logical
// units (story pages, outline sections) inside a still-growing text stream.
//
// A unit is only emitted once the marker opening the NEXT unit (or a terminal
// marker) has been observed, which proves its content is final and not
// a truncated prefix. The last unit in a stream has no following marker, so
// callers must invoke Finalize once the stream ends to flush it.
package parse

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// PageEvent reports one complete story page detected in the stream.
type PageEvent struct {
	Page int
	Text string

	// Flushed is set when the page was only provable at stream end.
	Flushed bool
}

var (
	pageMarkerRe = regexp.MustCompile(`\[PAGE\s+(\d+)\]`)
	endMarkerRe  = regexp.MustCompile(`\[THE END\]`)
)

// PageScanner detects completed pages in a streamed story text.
// It is not safe for concurrent use; drive it from the stream goroutine.
type PageScanner struct {
	maxPage int
	emit    func(PageEvent)

	emitted   map[int]bool
	finalized bool
}

// NewPageScanner creates a scanner expecting pages 1..maxPage. Each complete
// page is delivered to emit exactly once, in discovery order.
func NewPageScanner(maxPage int, emit func(PageEvent)) *PageScanner {
	return &PageScanner{
		maxPage: maxPage,
		emit:    emit,
		emitted: make(map[int]bool),
	}
}

// ProcessChunk scans the accumulated buffer after a new delta arrived.
// The delta itself is unused beyond short-circuiting: markers can span chunk
// boundaries, so boundary detection always runs on the full buffer.
func (s *PageScanner) ProcessChunk(delta, fullText string) {
	if s.finalized || delta == "" {
		return
	}
	s.scan(fullText, false)
}

// Finalize flushes the trailing page whose closing boundary never arrived.
// Safe to call once; subsequent calls are no-ops.
func (s *PageScanner) Finalize(fullText string) {
	if s.finalized {
		return
	}
	s.finalized = true
	s.scan(fullText, true)
}

// Emitted returns the pages emitted so far, sorted ascending.
func (s *PageScanner) Emitted() []int {
	pages := make([]int, 0, len(s.emitted))
	for p := range s.emitted {
		pages = append(pages, p)
	}
	sort.Ints(pages)
	return pages
}

// Missing returns expected pages that were never emitted. Only meaningful
// after Finalize.
func (s *PageScanner) Missing() []int {
	var missing []int
	for p := 1; p <= s.maxPage; p++ {
		if !s.emitted[p] {
			missing = append(missing, p)
		}
	}
	return missing
}

func (s *PageScanner) scan(fullText string, flush bool) {
	markers := pageMarkerRe.FindAllStringSubmatchIndex(fullText, -1)
	if len(markers) == 0 {
		return
	}
	terminal := endMarkerRe.FindStringIndex(fullText)

	for i, m := range markers {
		page, err := strconv.Atoi(fullText[m[2]:m[3]])
		if err != nil {
			continue
		}

		// Locate the unit's closing boundary: the next page marker or the
		// terminal marker, whichever proves this unit's content is final.
		contentStart := m[1]
		contentEnd := -1
		flushed := false
		switch {
		case i+1 < len(markers):
			contentEnd = markers[i+1][0]
		case terminal != nil && terminal[0] >= contentStart:
			contentEnd = terminal[0]
		case flush:
			contentEnd = len(fullText)
			flushed = true
		}
		if contentEnd < 0 {
			continue // boundary not yet observed
		}

		// Duplicate ids: first wins. Out-of-range units are dropped.
		if s.emitted[page] || page < 1 || page > s.maxPage {
			continue
		}
		s.emitted[page] = true
		s.emit(PageEvent{
			Page:    page,
			Text:    strings.TrimSpace(fullText[contentStart:contentEnd]),
			Flushed: flushed,
		})
	}
}
