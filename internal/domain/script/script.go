// Package script validates the plain-text reel script format and normalizes
// LLM-parsed scene structures before they drive synthesis and layout.
package script

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/forPelevin/reelsmith/internal/types"
)

// Narration pacing used for duration estimates: 150 words per minute plus a
// 2 second base for on-screen action, never under 3 seconds per scene.
const (
	wordsPerMinute = 150.0
	actionBaseSec  = 2.0
	minSceneSec    = 3.0
)

var requiredSections = []struct {
	name string
	re   *regexp.Regexp
}{
	{"TITLE", regexp.MustCompile(`(?i)TITLE:`)},
	{"THEME", regexp.MustCompile(`(?i)THEME:`)},
	{"CHARACTERS", regexp.MustCompile(`(?i)CHARACTERS:`)},
	{"SCENE", regexp.MustCompile(`(?i)SCENE \d+`)},
}

// Validate checks that a script text carries the TITLE, THEME, CHARACTERS
// and SCENE sections the structured parser relies on.
func Validate(text string) error {
	for _, s := range requiredSections {
		if !s.re.MatchString(text) {
			return fmt.Errorf("script missing required section %s", s.name)
		}
	}
	return nil
}

// EstimateDuration estimates how long a scene runs from its dialogue length,
// rounded to one decimal place.
func EstimateDuration(dialogue string) float64 {
	words := len(strings.Fields(dialogue))
	d := float64(words)/wordsPerMinute*60.0 + actionBaseSec
	d = math.Round(d*10) / 10
	if d < minSceneSec {
		return minSceneSec
	}
	return d
}

// Normalize fills the fields an LLM parse may leave empty and recomputes the
// total duration when it is missing or zero. Scene order is preserved.
func Normalize(s types.Script) types.Script {
	for i := range s.Scenes {
		sc := &s.Scenes[i]
		if sc.Number == 0 {
			sc.Number = i + 1
		}
		if strings.TrimSpace(sc.Location) == "" {
			sc.Location = "Unspecified location"
		}
		if strings.TrimSpace(sc.Camera) == "" {
			sc.Camera = "Static shot"
		}
		if strings.TrimSpace(sc.Action) == "" {
			sc.Action = "Scene action"
		}
		if len(sc.Characters) == 0 {
			sc.Characters = []string{"NARRATOR"}
		}
		if sc.DurationSec <= 0 {
			sc.DurationSec = EstimateDuration(sc.Dialogue)
		}
	}
	if s.TotalDuration <= 0 {
		total := 0.0
		for _, sc := range s.Scenes {
			total += sc.DurationSec
		}
		s.TotalDuration = math.Round(total*100) / 100
	}
	return s
}

// Speaker returns the scene's speaking character, defaulting to the
// narrator when no character is listed.
func Speaker(sc types.Scene) string {
	if len(sc.Characters) > 0 && strings.TrimSpace(sc.Characters[0]) != "" {
		return sc.Characters[0]
	}
	return "NARRATOR"
}

// ImagePrompt builds the still-image generation prompt for a scene. The
// theme keeps visual styling consistent across scenes.
func ImagePrompt(sc types.Scene, theme string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s style vertical illustration. ", theme)
	fmt.Fprintf(&b, "Location: %s. ", sc.Location)
	fmt.Fprintf(&b, "Action: %s. ", sc.Action)
	fmt.Fprintf(&b, "Camera: %s.", sc.Camera)
	return b.String()
}
