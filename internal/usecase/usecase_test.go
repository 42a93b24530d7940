package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/forPelevin/reelsmith/internal/domain/overlay"
	"github.com/forPelevin/reelsmith/internal/domain/speechmarks"
	"github.com/forPelevin/reelsmith/internal/domain/timeline"
	"github.com/forPelevin/reelsmith/internal/ports"
	"github.com/forPelevin/reelsmith/internal/types"
)

type fakeScriptParser struct {
	s     types.Script
	err   error
	calls int
}

func (f *fakeScriptParser) Parse(_ context.Context, _ string) (types.Script, error) {
	f.calls++
	return f.s, f.err
}

type fakeSpeech struct {
	marks []types.WordMark
	err   error
	calls int
}

func (f *fakeSpeech) Synthesize(_ context.Context, _, _ string) (types.SpeechResult, error) {
	f.calls++
	if f.err != nil {
		return types.SpeechResult{}, f.err
	}
	return types.SpeechResult{Audio: []byte("mp3-bytes"), Marks: f.marks}, nil
}

type fakeVisuals struct {
	calls int
	err   error
}

func (f *fakeVisuals) GenerateImage(_ context.Context, _ string) ([]byte, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []byte("png-bytes"), nil
}

type fakeText struct {
	lineCalls  int
	blockCalls int
}

func (f *fakeText) Measure(text string) (int, int, error) {
	return 12*len([]rune(text)) + 40, 100, nil
}

func (f *fakeText) RenderLinePNG(_ string, _ bool, _, _ int, outPath string) error {
	f.lineCalls++
	return os.WriteFile(outPath, []byte("png"), 0o644)
}

func (f *fakeText) RenderBlockPNG(_ string, _ int, outPath string) error {
	f.blockCalls++
	return os.WriteFile(outPath, []byte("png"), 0o644)
}

// fakeVideo tracks durations by file base name so probes after StillClip and
// SyncToAudio return what the pipeline produced.
type fakeVideo struct {
	dur         map[string]float64
	w, h        int
	stillCalls  int
	syncCalls   int
	cropCalls   int
	syncPlans   []timeline.Plan
	concatParts []string
	overlays    []ports.OverlayInput
}

func newFakeVideo() *fakeVideo {
	return &fakeVideo{dur: map[string]float64{}, w: 1080, h: 1920}
}

func (v *fakeVideo) ProbeDuration(_ context.Context, path string) (float64, error) {
	d, ok := v.dur[filepath.Base(path)]
	if !ok {
		return 0, fmt.Errorf("no duration for %s", path)
	}
	return d, nil
}

func (v *fakeVideo) ProbeSize(_ context.Context, _ string) (int, int, error) {
	return v.w, v.h, nil
}

func (v *fakeVideo) StillClip(_ context.Context, _ string, durSec float64, outMP4 string) error {
	v.stillCalls++
	v.dur[filepath.Base(outMP4)] = durSec
	return nil
}

func (v *fakeVideo) SyncToAudio(_ context.Context, _, _ string, plan timeline.Plan, outMP4 string) error {
	v.syncCalls++
	v.syncPlans = append(v.syncPlans, plan)
	v.dur[filepath.Base(outMP4)] = plan.TargetSec
	return nil
}

func (v *fakeVideo) CropScale(_ context.Context, inMP4 string, _, _ int, outMP4 string) error {
	v.cropCalls++
	v.dur[filepath.Base(outMP4)] = v.dur[filepath.Base(inMP4)]
	return nil
}

func (v *fakeVideo) Concat(_ context.Context, parts []string, _ string) error {
	v.concatParts = append([]string{}, parts...)
	return nil
}

func (v *fakeVideo) Composite(_ context.Context, _ string, overlays []ports.OverlayInput, _ string) error {
	v.overlays = append([]ports.OverlayInput{}, overlays...)
	return nil
}

func testScript() types.Script {
	return types.Script{
		Title: "The Last Signal",
		Theme: "Cinematic",
		Characters: []types.Character{
			{Name: "ANNA", Description: "A tired radio operator"},
		},
		Scenes: []types.Scene{
			{
				Number:      1,
				Characters:  []string{"ANNA"},
				Dialogue:    "Hello world today",
				Action:      "Anna leans into the microphone",
				Location:    "Radio room",
				Camera:      "Slow zoom",
				DurationSec: 3,
			},
			{
				Number:      2,
				Action:      "The tower light blinks in fog",
				Location:    "Coastline",
				Camera:      "Static shot",
				DurationSec: 4,
			},
		},
		TotalDuration: 7,
	}
}

func testMarks() []types.WordMark {
	return []types.WordMark{
		{Text: "Hello", StartMS: 0},
		{Text: "world", StartMS: 500},
		{Text: "today", StartMS: 1000},
	}
}

func discardLog() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testDeps() (Deps, *fakeScriptParser, *fakeSpeech, *fakeVisuals, *fakeVideo, *fakeText) {
	parser := &fakeScriptParser{s: testScript()}
	speech := &fakeSpeech{marks: testMarks()}
	visuals := &fakeVisuals{}
	video := newFakeVideo()
	text := &fakeText{}
	return Deps{
		Script:  parser,
		Speech:  speech,
		Visuals: visuals,
		Video:   video,
		Text:    text,
	}, parser, speech, visuals, video, text
}

func TestRun_CreateFlow(t *testing.T) {
	deps, parser, speech, visuals, video, text := testDeps()
	video.dur["scene_1_ANNA.mp3"] = 2.0

	u := New(deps, overlay.DefaultConfig(), discardLog())
	in := Input{
		ScriptText: "TITLE: The Last Signal",
		ReelName:   "last_signal",
		Theme:      "Cinematic",
		WorkDir:    t.TempDir(),
	}
	res, err := u.Run(context.Background(), in)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if parser.calls != 1 {
		t.Fatalf("parser calls = %d, want 1", parser.calls)
	}
	if speech.calls != 1 {
		t.Fatalf("speech calls = %d, want 1 (scene 2 is silent)", speech.calls)
	}
	if visuals.calls != 2 {
		t.Fatalf("visuals calls = %d, want 2", visuals.calls)
	}
	if video.stillCalls != 2 || video.syncCalls != 1 {
		t.Fatalf("still = %d, sync = %d, want 2 and 1", video.stillCalls, video.syncCalls)
	}
	if len(video.concatParts) != 2 {
		t.Fatalf("concat parts = %d, want 2", len(video.concatParts))
	}

	// One base line and three word highlights for the dialogue scene.
	if len(video.overlays) != 4 {
		t.Fatalf("overlays = %d, want 4", len(video.overlays))
	}
	if video.overlays[0].StartSec != 0 {
		t.Fatalf("first overlay starts at %.2f, want 0", video.overlays[0].StartSec)
	}
	if text.lineCalls != 4 || text.blockCalls != 0 {
		t.Fatalf("line renders = %d, block renders = %d", text.lineCalls, text.blockCalls)
	}

	for _, f := range []string{
		"script_parsed.json",
		"last_signal.srt",
		filepath.Join("images", "scene_1.png"),
		filepath.Join("audio", "scene_1_ANNA.mp3"),
		filepath.Join("audio", "scene_1_ANNA_speechmarks.json"),
	} {
		if _, err := os.Stat(filepath.Join(in.WorkDir, f)); err != nil {
			t.Fatalf("missing %s: %v", f, err)
		}
	}

	m := res.Manifest
	if m.Reel != "last_signal" || m.Title != "The Last Signal" {
		t.Fatalf("manifest header: %+v", m)
	}
	if len(m.Scenes) != 2 {
		t.Fatalf("manifest scenes = %d", len(m.Scenes))
	}
	s1 := m.Scenes[0]
	if s1.SyncMode != "pass-through" || s1.AudioSec != 2.0 || s1.VisualSec != 2.0 {
		t.Fatalf("scene 1 manifest: %+v", s1)
	}
	if s1.Video != "video/scene_1_synced.mp4" {
		t.Fatalf("scene 1 video path = %q", s1.Video)
	}
	s2 := m.Scenes[1]
	if s2.SyncMode != "none" || s2.Audio != "" || s2.VisualSec != 4.0 {
		t.Fatalf("scene 2 manifest: %+v", s2)
	}
	if res.FinalPath != filepath.Join(in.WorkDir, "last_signal.mp4") {
		t.Fatalf("final path = %q", res.FinalPath)
	}
}

func TestRun_SecondSceneOverlaysShifted(t *testing.T) {
	deps, _, speech, _, video, _ := testDeps()
	s := testScript()
	// Both scenes speak so the second scene's overlays must start after the
	// first scene's measured duration.
	s.Scenes[1].Characters = []string{"ANNA"}
	s.Scenes[1].Dialogue = "Hello world today"
	deps.Script.(*fakeScriptParser).s = s
	speech.marks = testMarks()
	video.dur["scene_1_ANNA.mp3"] = 2.0
	video.dur["scene_2_ANNA.mp3"] = 3.0

	u := New(deps, overlay.DefaultConfig(), discardLog())
	_, err := u.Run(context.Background(), Input{
		ScriptText: "TITLE: x",
		ReelName:   "r",
		WorkDir:    t.TempDir(),
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(video.overlays) != 8 {
		t.Fatalf("overlays = %d, want 8", len(video.overlays))
	}
	// Scene 1 runs [0, 2); scene 2's base line starts at 2.0.
	if got := video.overlays[4].StartSec; got != 2.0 {
		t.Fatalf("scene 2 base overlay starts at %.2f, want 2.0", got)
	}
}

func TestRun_ReuseSkipsGenerativeServices(t *testing.T) {
	deps, parser, speech, visuals, video, _ := testDeps()
	video.dur["scene_1_ANNA.mp3"] = 2.0

	dir := t.TempDir()
	seedWorkspace(t, dir)

	u := New(deps, overlay.DefaultConfig(), discardLog())
	res, err := u.Run(context.Background(), Input{
		ReelName: "last_signal",
		WorkDir:  dir,
		Reuse:    true,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if parser.calls != 0 || speech.calls != 0 || visuals.calls != 0 {
		t.Fatalf("generative services called in reuse mode: parser=%d speech=%d visuals=%d",
			parser.calls, speech.calls, visuals.calls)
	}
	if len(video.overlays) != 4 {
		t.Fatalf("overlays = %d, want 4 (marks reloaded from disk)", len(video.overlays))
	}
	if res.Manifest.Scenes[0].SyncMode != "pass-through" {
		t.Fatalf("sync mode = %q", res.Manifest.Scenes[0].SyncMode)
	}
}

func TestRun_ReuseMissingAudioFails(t *testing.T) {
	deps, _, _, _, _, _ := testDeps()
	dir := t.TempDir()
	seedWorkspace(t, dir)
	if err := os.Remove(filepath.Join(dir, "audio", "scene_1_ANNA.mp3")); err != nil {
		t.Fatal(err)
	}

	u := New(deps, overlay.DefaultConfig(), discardLog())
	_, err := u.Run(context.Background(), Input{ReelName: "r", WorkDir: dir, Reuse: true})
	if err == nil || !strings.Contains(err.Error(), "missing audio asset") {
		t.Fatalf("expected missing audio error, got %v", err)
	}
}

func TestRun_PreRenderedSceneVideoIsCropped(t *testing.T) {
	deps, _, _, _, video, _ := testDeps()
	video.w, video.h = 1920, 1080
	video.dur["scene_1_ANNA.mp3"] = 2.0
	video.dur["scene_1.mp4"] = 5.0

	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "video"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "video", "scene_1.mp4"), []byte("mp4"), 0o644); err != nil {
		t.Fatal(err)
	}

	u := New(deps, overlay.DefaultConfig(), discardLog())
	res, err := u.Run(context.Background(), Input{
		ScriptText: "TITLE: x",
		ReelName:   "r",
		WorkDir:    dir,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if video.cropCalls != 1 {
		t.Fatalf("crop calls = %d, want 1", video.cropCalls)
	}
	// 5s of visual against 2s of audio trims.
	if len(video.syncPlans) == 0 || video.syncPlans[0].Mode != timeline.Trim {
		t.Fatalf("sync plans = %+v, want trim first", video.syncPlans)
	}
	if res.Manifest.Scenes[0].SyncMode != "trim" {
		t.Fatalf("sync mode = %q", res.Manifest.Scenes[0].SyncMode)
	}
}

func TestRun_StaticFallbackWithoutMarks(t *testing.T) {
	deps, _, speech, _, video, text := testDeps()
	speech.marks = nil
	video.dur["scene_1_ANNA.mp3"] = 2.0

	u := New(deps, overlay.DefaultConfig(), discardLog())
	_, err := u.Run(context.Background(), Input{
		ScriptText: "TITLE: x",
		ReelName:   "r",
		WorkDir:    t.TempDir(),
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(video.overlays) != 1 {
		t.Fatalf("overlays = %d, want 1 static block", len(video.overlays))
	}
	if text.blockCalls != 1 {
		t.Fatalf("block renders = %d, want 1", text.blockCalls)
	}
}

func seedWorkspace(t *testing.T, dir string) {
	t.Helper()
	for _, sub := range []string{"images", "audio", "video", "overlays"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	b, err := json.Marshal(testScript())
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "script_parsed.json"), b, 0o644); err != nil {
		t.Fatal(err)
	}
	for _, f := range []string{
		filepath.Join("images", "scene_1.png"),
		filepath.Join("images", "scene_2.png"),
		filepath.Join("audio", "scene_1_ANNA.mp3"),
	} {
		if err := os.WriteFile(filepath.Join(dir, f), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := speechmarks.WriteFile(filepath.Join(dir, "audio", "scene_1_ANNA_speechmarks.json"), testMarks()); err != nil {
		t.Fatal(err)
	}
}
