package parse

import (
	"regexp"
	"strings"
)

// SectionKind identifies an outline section.
type SectionKind string

const (
	SectionFrontCover  SectionKind = "frontCover"
	SectionInitialPage SectionKind = "initialPage"
	SectionBackCover   SectionKind = "backCover"
	SectionVisualBible SectionKind = "visualBible"
	SectionPagePlan    SectionKind = "pagePlan"
)

// SectionEvent reports one complete outline section.
type SectionEvent struct {
	Kind SectionKind
	Text string

	// Flushed is set when the section was only provable at stream end.
	Flushed bool
}

var (
	sectionMarkerRe = regexp.MustCompile(`\[(FRONT COVER|INITIAL PAGE|BACK COVER|VISUAL BIBLE|PAGE PLAN)\]`)
	outlineEndRe    = regexp.MustCompile(`\[END OUTLINE\]`)

	sectionKinds = map[string]SectionKind{
		"FRONT COVER":  SectionFrontCover,
		"INITIAL PAGE": SectionInitialPage,
		"BACK COVER":   SectionBackCover,
		"VISUAL BIBLE": SectionVisualBible,
		"PAGE PLAN":    SectionPagePlan,
	}
)

// OutlineScanner applies the page-boundary logic to outline sections so
// cover generation can start before any story page exists.
// Not safe for concurrent use.
type OutlineScanner struct {
	emit      func(SectionEvent)
	emitted   map[SectionKind]bool
	finalized bool
}

// NewOutlineScanner creates a scanner that delivers each complete outline
// section to emit exactly once.
func NewOutlineScanner(emit func(SectionEvent)) *OutlineScanner {
	return &OutlineScanner{
		emit:    emit,
		emitted: make(map[SectionKind]bool),
	}
}

// ProcessChunk scans the accumulated outline buffer after a new delta.
func (s *OutlineScanner) ProcessChunk(delta, fullText string) {
	if s.finalized || delta == "" {
		return
	}
	s.scan(fullText, false)
}

// Finalize flushes the trailing section once the stream has ended.
func (s *OutlineScanner) Finalize(fullText string) {
	if s.finalized {
		return
	}
	s.finalized = true
	s.scan(fullText, true)
}

// Emitted reports whether a section has been emitted.
func (s *OutlineScanner) Emitted(kind SectionKind) bool {
	return s.emitted[kind]
}

func (s *OutlineScanner) scan(fullText string, flush bool) {
	markers := sectionMarkerRe.FindAllStringSubmatchIndex(fullText, -1)
	if len(markers) == 0 {
		return
	}
	terminal := outlineEndRe.FindStringIndex(fullText)

	for i, m := range markers {
		kind, ok := sectionKinds[fullText[m[2]:m[3]]]
		if !ok {
			continue
		}

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
			continue
		}

		if s.emitted[kind] {
			continue // first wins
		}
		s.emitted[kind] = true
		s.emit(SectionEvent{
			Kind:    kind,
			Text:    strings.TrimSpace(fullText[contentStart:contentEnd]),
			Flushed: flushed,
		})
	}
}
