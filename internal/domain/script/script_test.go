package script

import (
	"math"
	"strings"
	"testing"

	"github.com/forPelevin/reelsmith/internal/types"
)

const validScript = `TITLE: The Robot's Journey
THEME: Cinematic Sci-Fi

CHARACTERS:
- ROBO-7: A small, rusty robot

---

SCENE 1 (Location: Wasteland at sunset)
ROBO-7: "Where... am I?"
ACTION: ROBO-7 wakes up
CAMERA: Slow zoom
`

func TestValidate(t *testing.T) {
	if err := Validate(validScript); err != nil {
		t.Fatalf("valid script rejected: %v", err)
	}

	missing := strings.Replace(validScript, "THEME:", "MOOD:", 1)
	err := Validate(missing)
	if err == nil {
		t.Fatal("expected error for missing THEME section")
	}
	if !strings.Contains(err.Error(), "THEME") {
		t.Fatalf("error should name the missing section: %v", err)
	}
}

func TestEstimateDuration(t *testing.T) {
	tests := []struct {
		name     string
		dialogue string
		want     float64
	}{
		{"empty dialogue gets scene floor", "", 3.0},
		{"short line floors at 3s", "Hi there", 3.0},
		{"fifteen words", strings.Repeat("word ", 15), 8.0},
		{"thirty words", strings.Repeat("word ", 30), 14.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EstimateDuration(tt.dialogue); math.Abs(got-tt.want) > 1e-9 {
				t.Fatalf("EstimateDuration = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNormalize_FillsDefaults(t *testing.T) {
	s := Normalize(types.Script{
		Title: "T",
		Scenes: []types.Scene{
			{Dialogue: "Hello world"},
			{Number: 2, Dialogue: "", DurationSec: 6.5, Characters: []string{"GIRL"}},
		},
	})

	first := s.Scenes[0]
	if first.Number != 1 {
		t.Fatalf("scene number = %d, want 1", first.Number)
	}
	if first.Location != "Unspecified location" || first.Camera != "Static shot" || first.Action != "Scene action" {
		t.Fatalf("defaults not applied: %+v", first)
	}
	if len(first.Characters) != 1 || first.Characters[0] != "NARRATOR" {
		t.Fatalf("expected narrator default, got %v", first.Characters)
	}
	if first.DurationSec != 3.0 {
		t.Fatalf("duration = %v, want estimate 3.0", first.DurationSec)
	}
	if math.Abs(s.TotalDuration-9.5) > 1e-9 {
		t.Fatalf("total = %v, want 9.5", s.TotalDuration)
	}
}

func TestSpeaker(t *testing.T) {
	if got := Speaker(types.Scene{Characters: []string{"ROBO-7"}}); got != "ROBO-7" {
		t.Fatalf("speaker = %q", got)
	}
	if got := Speaker(types.Scene{}); got != "NARRATOR" {
		t.Fatalf("default speaker = %q", got)
	}
}

func TestImagePrompt_CarriesSceneFields(t *testing.T) {
	p := ImagePrompt(types.Scene{
		Location: "Wasteland",
		Action:   "Robot wakes up",
		Camera:   "Slow zoom",
	}, "Cinematic")
	for _, want := range []string{"Cinematic", "Wasteland", "Robot wakes up", "Slow zoom"} {
		if !strings.Contains(p, want) {
			t.Fatalf("prompt missing %q: %s", want, p)
		}
	}
}
