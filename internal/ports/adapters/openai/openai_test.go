package openai

import (
	"strings"
	"testing"
)

func TestScriptPrompt(t *testing.T) {
	p := scriptPrompt("A lighthouse keeper finds a message in a bottle", "Cinematic")
	for _, want := range []string{
		"TITLE:", "THEME:", "CHARACTERS:", "SCENE 1", "ACTION:", "CAMERA:",
		"A lighthouse keeper finds a message in a bottle",
		"Use Cinematic as the THEME.",
	} {
		if !strings.Contains(p, want) {
			t.Fatalf("prompt missing %q:\n%s", want, p)
		}
	}

	// No theme hint without a theme.
	p = scriptPrompt("idea", "")
	if strings.Contains(p, "as the THEME.") {
		t.Fatalf("unexpected theme hint:\n%s", p)
	}
}

func TestToScript_MapsAllFields(t *testing.T) {
	ps := parsedScript{
		Title:         "The Robot's Journey",
		Theme:         "Cinematic",
		TotalDuration: 12.5,
		Characters: []parsedCharacter{
			{Name: "ROBO-7", Description: "A small rusty robot"},
		},
		Scenes: []parsedScene{
			{
				SceneNumber: 1,
				Characters:  []string{"ROBO-7"},
				Dialogue:    "Where am I?",
				Action:      "Robot wakes up",
				Location:    "Wasteland",
				Camera:      "Slow zoom",
				Duration:    4.0,
			},
		},
	}

	s := toScript(ps)
	if s.Title != ps.Title || s.Theme != ps.Theme || s.TotalDuration != 12.5 {
		t.Fatalf("header fields lost: %+v", s)
	}
	if len(s.Characters) != 1 || s.Characters[0].Name != "ROBO-7" {
		t.Fatalf("characters lost: %+v", s.Characters)
	}
	sc := s.Scenes[0]
	if sc.Number != 1 || sc.Dialogue != "Where am I?" || sc.DurationSec != 4.0 || sc.Camera != "Slow zoom" {
		t.Fatalf("scene fields lost: %+v", sc)
	}
}

func TestGenerateSchema_StrictObject(t *testing.T) {
	// Reflection must produce an inline object schema; a $ref would break
	// the strict structured-output contract.
	schema := generateSchema[parsedScript]()
	if schema == nil {
		t.Fatal("nil schema")
	}
}
