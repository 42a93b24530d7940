package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/forPelevin/reelsmith/internal/domain/overlay"
	"github.com/forPelevin/reelsmith/internal/domain/script"
	"github.com/forPelevin/reelsmith/internal/domain/speechmarks"
	"github.com/forPelevin/reelsmith/internal/domain/subtitles"
	"github.com/forPelevin/reelsmith/internal/domain/timeline"
	"github.com/forPelevin/reelsmith/internal/ports"
	"github.com/forPelevin/reelsmith/internal/types"
)

type Deps struct {
	Script  ports.ScriptParser
	Speech  ports.Speech
	Visuals ports.Visuals
	Video   ports.VideoTool
	Text    ports.TextRenderer
}

type Usecase struct {
	d      Deps
	layout overlay.Config
	log    *slog.Logger
}

func New(d Deps, layout overlay.Config, log *slog.Logger) Usecase {
	if log == nil {
		log = slog.Default()
	}
	return Usecase{d: d, layout: layout, log: log}
}

type Input struct {
	ScriptText string
	ReelName   string
	Theme      string

	// WorkDir is the reel workspace holding images/, audio/, video/,
	// overlays/ and the final render.
	WorkDir string

	// Reuse skips the generative services and recomposes from assets
	// already present in the workspace.
	Reuse bool
}

type Result struct {
	Manifest  types.Manifest
	FinalPath string
}

// sceneAssets tracks everything one scene contributes to the timeline.
type sceneAssets struct {
	scene    types.Scene
	speaker  string
	image    string
	audio    string
	marks    string
	synced   string
	audioSec float64
	finalSec float64
	plan     timeline.Plan
	hasAudio bool
	words    []types.WordMark
}

func (u Usecase) Run(ctx context.Context, in Input) (Result, error) {
	s, err := u.loadScript(ctx, in)
	if err != nil {
		return Result{}, err
	}
	if len(s.Scenes) == 0 {
		return Result{}, fmt.Errorf("script has no scenes")
	}

	for _, sub := range []string{"images", "audio", "video", "overlays"} {
		if err := os.MkdirAll(filepath.Join(in.WorkDir, sub), 0o755); err != nil {
			return Result{}, err
		}
	}

	assets := make([]*sceneAssets, 0, len(s.Scenes))
	for _, sc := range s.Scenes {
		sa, err := u.prepareScene(ctx, in, sc)
		if err != nil {
			return Result{}, fmt.Errorf("scene %d: %w", sc.Number, err)
		}
		assets = append(assets, sa)
	}

	// Scene start times come from measured durations of the prepared
	// tracks, never from script estimates.
	durations := make([]float64, len(assets))
	parts := make([]string, len(assets))
	for i, sa := range assets {
		durations[i] = sa.finalSec
		parts[i] = sa.synced
	}
	starts := timeline.StartTimes(durations)

	compositePath := filepath.Join(in.WorkDir, "video", "composite.mp4")
	if err := u.d.Video.Concat(ctx, parts, compositePath); err != nil {
		return Result{}, fmt.Errorf("concatenate scenes: %w", err)
	}

	overlays, cues, err := u.buildOverlays(in, assets, starts)
	if err != nil {
		return Result{}, err
	}

	finalPath := filepath.Join(in.WorkDir, in.ReelName+".mp4")
	if err := u.d.Video.Composite(ctx, compositePath, overlays, finalPath); err != nil {
		return Result{}, fmt.Errorf("composite overlays: %w", err)
	}

	if len(cues) > 0 {
		srtPath := filepath.Join(in.WorkDir, in.ReelName+".srt")
		if err := os.WriteFile(srtPath, []byte(subtitles.RenderSRT(cues)), 0o644); err != nil {
			return Result{}, fmt.Errorf("write captions: %w", err)
		}
	}

	return Result{
		Manifest:  u.manifest(in, s, assets),
		FinalPath: finalPath,
	}, nil
}

func (u Usecase) loadScript(ctx context.Context, in Input) (types.Script, error) {
	parsedPath := filepath.Join(in.WorkDir, "script_parsed.json")

	if in.Reuse {
		b, err := os.ReadFile(parsedPath)
		if err != nil {
			return types.Script{}, fmt.Errorf("read parsed script (run create first?): %w", err)
		}
		var s types.Script
		if err := json.Unmarshal(b, &s); err != nil {
			return types.Script{}, fmt.Errorf("parse %s: %w", parsedPath, err)
		}
		return s, nil
	}

	if err := script.Validate(in.ScriptText); err != nil {
		return types.Script{}, err
	}
	s, err := u.d.Script.Parse(ctx, in.ScriptText)
	if err != nil {
		return types.Script{}, fmt.Errorf("parse script: %w", err)
	}
	s = script.Normalize(s)

	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return types.Script{}, fmt.Errorf("marshal parsed script: %w", err)
	}
	if err := os.MkdirAll(in.WorkDir, 0o755); err != nil {
		return types.Script{}, err
	}
	if err := os.WriteFile(parsedPath, b, 0o644); err != nil {
		return types.Script{}, err
	}
	u.log.Info("script parsed", "title", s.Title, "scenes", len(s.Scenes), "estimated_sec", s.TotalDuration)
	return s, nil
}

func (u Usecase) prepareScene(ctx context.Context, in Input, sc types.Scene) (*sceneAssets, error) {
	sa := &sceneAssets{
		scene:   sc,
		speaker: script.Speaker(sc),
		image:   filepath.Join(in.WorkDir, "images", fmt.Sprintf("scene_%d.png", sc.Number)),
	}
	safeChar := strings.NewReplacer(" ", "_", "-", "_").Replace(sa.speaker)
	audioBase := filepath.Join(in.WorkDir, "audio", fmt.Sprintf("scene_%d_%s", sc.Number, safeChar))
	sa.audio = audioBase + ".mp3"
	sa.marks = audioBase + "_speechmarks.json"
	sa.hasAudio = strings.TrimSpace(sc.Dialogue) != ""

	if sa.hasAudio {
		if err := u.ensureSpeech(ctx, in, sa); err != nil {
			return nil, err
		}
		dur, err := u.d.Video.ProbeDuration(ctx, sa.audio)
		if err != nil {
			return nil, fmt.Errorf("probe audio: %w", err)
		}
		sa.audioSec = dur
	}

	raw, err := u.ensureVisual(ctx, in, sa)
	if err != nil {
		return nil, err
	}

	if sa.hasAudio {
		visualSec, err := u.d.Video.ProbeDuration(ctx, raw)
		if err != nil {
			return nil, fmt.Errorf("probe visual: %w", err)
		}
		plan, err := timeline.Reconcile(visualSec, sa.audioSec)
		if err != nil {
			return nil, fmt.Errorf("reconcile durations: %w", err)
		}
		if plan.Clamped {
			u.log.Warn("freeze remainder clamped to zero, check upstream durations",
				"scene", sc.Number, "visual_sec", visualSec, "audio_sec", sa.audioSec)
		}
		sa.plan = plan
		sa.synced = filepath.Join(in.WorkDir, "video", fmt.Sprintf("scene_%d_synced.mp4", sc.Number))
		if err := u.d.Video.SyncToAudio(ctx, raw, sa.audio, plan, sa.synced); err != nil {
			return nil, fmt.Errorf("sync to audio: %w", err)
		}
		u.log.Info("scene synchronized", "scene", sc.Number, "mode", plan.Mode.String(),
			"visual_sec", visualSec, "audio_sec", sa.audioSec)
	} else {
		sa.synced = raw
	}

	finalSec, err := u.d.Video.ProbeDuration(ctx, sa.synced)
	if err != nil {
		return nil, fmt.Errorf("probe synced scene: %w", err)
	}
	sa.finalSec = finalSec
	return sa, nil
}

func (u Usecase) ensureSpeech(ctx context.Context, in Input, sa *sceneAssets) error {
	if in.Reuse {
		if _, err := os.Stat(sa.audio); err != nil {
			return fmt.Errorf("missing audio asset %s: %w", sa.audio, err)
		}
		words, err := speechmarks.ParseFile(sa.marks)
		if err != nil {
			return err
		}
		sa.words = words
		return nil
	}

	res, err := u.d.Speech.Synthesize(ctx, sa.scene.Dialogue, sa.speaker)
	if err != nil {
		return fmt.Errorf("synthesize speech: %w", err)
	}
	if err := os.WriteFile(sa.audio, res.Audio, 0o644); err != nil {
		return err
	}
	if err := speechmarks.WriteFile(sa.marks, res.Marks); err != nil {
		return err
	}
	sa.words = res.Marks
	return nil
}

// ensureVisual returns the scene's raw visual track. A pre-rendered scene
// video in the workspace wins over the still-image path so externally
// generated animation can be recomposed; otherwise a still clip is built
// from the scene image at the audio's length (or the script estimate when
// the scene is silent).
func (u Usecase) ensureVisual(ctx context.Context, in Input, sa *sceneAssets) (string, error) {
	pre := filepath.Join(in.WorkDir, "video", fmt.Sprintf("scene_%d.mp4", sa.scene.Number))
	if _, err := os.Stat(pre); err == nil {
		w, h, err := u.d.Video.ProbeSize(ctx, pre)
		if err != nil {
			return "", fmt.Errorf("probe scene video: %w", err)
		}
		if w == u.layout.VideoWidth && h == u.layout.VideoHeight {
			return pre, nil
		}
		fitted := filepath.Join(in.WorkDir, "video", fmt.Sprintf("scene_%d_fit.mp4", sa.scene.Number))
		if err := u.d.Video.CropScale(ctx, pre, w, h, fitted); err != nil {
			return "", fmt.Errorf("crop scene video: %w", err)
		}
		return fitted, nil
	}

	if !in.Reuse {
		prompt := script.ImagePrompt(sa.scene, in.Theme)
		img, err := u.d.Visuals.GenerateImage(ctx, prompt)
		if err != nil {
			return "", fmt.Errorf("generate image: %w", err)
		}
		if err := os.WriteFile(sa.image, img, 0o644); err != nil {
			return "", err
		}
	} else if _, err := os.Stat(sa.image); err != nil {
		return "", fmt.Errorf("missing visual asset for scene %d: no %s and no %s", sa.scene.Number, pre, sa.image)
	}

	target := sa.audioSec
	if !sa.hasAudio {
		target = sa.scene.DurationSec
	}
	still := filepath.Join(in.WorkDir, "video", fmt.Sprintf("scene_%d_still.mp4", sa.scene.Number))
	if err := u.d.Video.StillClip(ctx, sa.image, target, still); err != nil {
		return "", fmt.Errorf("still clip: %w", err)
	}
	return still, nil
}

func (u Usecase) buildOverlays(in Input, assets []*sceneAssets, starts []float64) ([]ports.OverlayInput, []subtitles.Event, error) {
	engine := overlay.New(u.layout, u.d.Text, u.log)

	var out []ports.OverlayInput
	var cues []subtitles.Event
	rendered := map[string]string{}

	for i, sa := range assets {
		if !sa.hasAudio {
			continue
		}
		units := engine.Build(sa.words, sa.scene.Dialogue, starts[i], sa.finalSec)
		for j, unit := range units {
			if unit.Kind != overlay.Highlight {
				cues = append(cues, subtitles.FromSeconds(unit.StartSec, unit.DurSec, unit.Line))
			}
			path, err := u.renderUnit(in, rendered, i, j, unit)
			if err != nil {
				// One bad strip must not sink the reel; the base text for
				// the line may still be present.
				u.log.Warn("skipping overlay unit, render failed",
					"scene", sa.scene.Number, "line", unit.Line, "error", err)
				continue
			}
			out = append(out, ports.OverlayInput{
				PNGPath:  path,
				X:        unit.X,
				Y:        unit.Y,
				StartSec: unit.StartSec,
				EndSec:   unit.StartSec + unit.DurSec,
			})
		}
	}
	return out, cues, nil
}

// renderUnit renders a strip PNG, reusing identical renders across words of
// the same line.
func (u Usecase) renderUnit(in Input, rendered map[string]string, sceneIdx, unitIdx int, unit overlay.TimedOverlay) (string, error) {
	key := fmt.Sprintf("%d|%d|%d|%d|%s", unit.Kind, unit.CropX1, unit.CropX2, sceneIdx, unit.Line)
	if path, ok := rendered[key]; ok {
		return path, nil
	}
	path := filepath.Join(in.WorkDir, "overlays", fmt.Sprintf("s%d_u%d.png", sceneIdx, unitIdx))

	var err error
	switch unit.Kind {
	case overlay.Static:
		err = u.d.Text.RenderBlockPNG(unit.Line, u.layout.MaxLineWidth, path)
	case overlay.Highlight:
		err = u.d.Text.RenderLinePNG(unit.Line, true, unit.CropX1, unit.CropX2, path)
	default:
		err = u.d.Text.RenderLinePNG(unit.Line, false, 0, 0, path)
	}
	if err != nil {
		return "", err
	}
	rendered[key] = path
	return path, nil
}

func (u Usecase) manifest(in Input, s types.Script, assets []*sceneAssets) types.Manifest {
	m := types.Manifest{
		Reel:  in.ReelName,
		Title: s.Title,
		Video: filepath.ToSlash(in.ReelName + ".mp4"),
	}
	for _, sa := range assets {
		ms := types.ManifestScene{
			Number:    sa.scene.Number,
			Character: sa.speaker,
			Dialogue:  sa.scene.Dialogue,
			Image:     rel(in.WorkDir, sa.image),
			Video:     rel(in.WorkDir, sa.synced),
			VisualSec: sa.finalSec,
			SyncMode:  "none",
		}
		if sa.hasAudio {
			ms.Audio = rel(in.WorkDir, sa.audio)
			ms.Marks = rel(in.WorkDir, sa.marks)
			ms.AudioSec = sa.audioSec
			ms.SyncMode = sa.plan.Mode.String()
			ms.StretchFactor = sa.plan.SpeedFactor
			ms.FreezeSec = sa.plan.FreezeSec
		}
		m.Scenes = append(m.Scenes, ms)
	}
	return m
}

func rel(base, path string) string {
	r, err := filepath.Rel(base, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(r)
}
