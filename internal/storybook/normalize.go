package storybook

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// rawCharacter accepts both the current and legacy payload field names.
// Older clients sent characterName/photoUrl; the photo analyzer attaches an
// analysis block. All variants collapse into Character here so the rest of
// the pipeline never sees them.
type rawCharacter struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	CharName    string `json:"characterName"` // legacy
	Description string `json:"description"`
	Appearance  string `json:"appearance"` // legacy

	Photo       string `json:"photo"`     // base64
	PhotoBase64 string `json:"photoData"` // legacy
	PhotoURL    string `json:"photoUrl"`  // legacy, unsupported inline

	Analysis *rawPhotoAnalysis `json:"analysis"`
}

type rawPhotoAnalysis struct {
	Age      int    `json:"age"`
	Gender   string `json:"gender"`
	HeightCM int    `json:"heightCm"`
	Build    string `json:"build"`
}

type rawInput struct {
	Owner            string         `json:"owner"`
	UserID           string         `json:"userId"` // legacy
	Title            string         `json:"title"`
	Characters       []rawCharacter `json:"characters"`
	PageCount        int            `json:"pageCount"`
	NumPages         int            `json:"numPages"` // legacy
	Mode             string         `json:"mode"`
	Sequential       bool           `json:"sequential"` // legacy toggle
	ArtStyle         string         `json:"artStyle"`
	Style            string         `json:"style"` // legacy
	Theme            string         `json:"theme"`
	Dedication       string         `json:"dedication"`
	Language         string         `json:"language"`
	QualityThreshold int            `json:"qualityThreshold"`
}

// ParseInput decodes a story request, accepting legacy field spellings, and
// returns a fully normalized StoryInput.
func ParseInput(data []byte) (*StoryInput, error) {
	var raw rawInput
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse story input: %w", err)
	}
	return normalizeInput(&raw)
}

func normalizeInput(raw *rawInput) (*StoryInput, error) {
	in := &StoryInput{
		Owner:            firstNonEmpty(raw.Owner, raw.UserID),
		Title:            raw.Title,
		PageCount:        raw.PageCount,
		ArtStyle:         firstNonEmpty(raw.ArtStyle, raw.Style),
		Theme:            raw.Theme,
		Dedication:       raw.Dedication,
		Language:         raw.Language,
		QualityThreshold: raw.QualityThreshold,
	}
	if in.PageCount == 0 {
		in.PageCount = raw.NumPages
	}

	switch {
	case raw.Mode != "":
		in.Mode = GenerationMode(raw.Mode)
	case raw.Sequential:
		in.Mode = ModeSequential
	default:
		in.Mode = ModeParallel
	}

	for i := range raw.Characters {
		ch, err := normalizeCharacter(&raw.Characters[i])
		if err != nil {
			return nil, fmt.Errorf("character %d: %w", i, err)
		}
		in.Characters = append(in.Characters, ch)
	}

	return in, in.Validate()
}

func normalizeCharacter(raw *rawCharacter) (Character, error) {
	ch := Character{
		ID:          raw.ID,
		Name:        firstNonEmpty(raw.Name, raw.CharName),
		Description: firstNonEmpty(raw.Description, raw.Appearance),
	}
	if ch.ID == "" {
		ch.ID = uuid.New().String()
	}
	if ch.Name == "" {
		return ch, fmt.Errorf("character has no name")
	}

	if encoded := firstNonEmpty(raw.Photo, raw.PhotoBase64); encoded != "" {
		data, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return ch, fmt.Errorf("invalid photo encoding for %q: %w", ch.Name, err)
		}
		ch.Photo = &ReferencePhoto{Label: ch.Name, Data: data}
	}

	if a := raw.Analysis; a != nil {
		ch.Age = a.Age
		ch.Gender = a.Gender
		ch.HeightCM = a.HeightCM
		ch.Build = a.Build
		if ch.HeightCM == 0 || ch.Build == "" {
			height, build := estimateHeightBuild(a.Age, a.Gender)
			if ch.HeightCM == 0 {
				ch.HeightCM = height
			}
			if ch.Build == "" {
				ch.Build = build
			}
		}
	}

	return ch, nil
}

// estimateHeightBuild fills in defaults when the photo analyzer supplied age
// and gender but no explicit height or build.
func estimateHeightBuild(age int, gender string) (heightCM int, build string) {
	male := false
	switch strings.ToLower(gender) {
	case "man", "male", "boy":
		male = true
	}

	switch {
	case age <= 0:
		return 0, ""
	case age < 12:
		return int(100 + float64(age)*5), "slim"
	case age < 18:
		if male {
			return int(140 + float64(age-12)*5), "slim"
		}
		return int(135 + float64(age-12)*4.5), "slim"
	default:
		if male {
			return 175, "average"
		}
		return 165, "average"
	}
}

// Validate checks structural requirements on a normalized input.
func (in *StoryInput) Validate() error {
	if in.Owner == "" {
		return fmt.Errorf("story input missing owner")
	}
	if in.PageCount < 1 {
		return fmt.Errorf("page count must be at least 1, got %d", in.PageCount)
	}
	if len(in.Characters) == 0 {
		return fmt.Errorf("story input has no characters")
	}
	switch in.Mode {
	case ModeParallel, ModeSequential:
	default:
		return fmt.Errorf("unknown generation mode %q", in.Mode)
	}
	return nil
}

// PrimaryNames returns the lowercased names of the primary cast.
func (in *StoryInput) PrimaryNames() []string {
	names := make([]string, 0, len(in.Characters))
	for _, ch := range in.Characters {
		names = append(names, strings.ToLower(ch.Name))
	}
	return names
}

// ReferencePhotos returns the ordered labeled reference photos of characters
// that have one.
func (in *StoryInput) ReferencePhotos() []ReferencePhoto {
	var refs []ReferencePhoto
	for _, ch := range in.Characters {
		if ch.Photo != nil {
			refs = append(refs, *ch.Photo)
		}
	}
	return refs
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
