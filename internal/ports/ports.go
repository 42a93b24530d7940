package ports

import (
	"context"

	"github.com/forPelevin/reelsmith/internal/domain/timeline"
	"github.com/forPelevin/reelsmith/internal/types"
)

type ScriptParser interface {
	Parse(ctx context.Context, scriptText string) (types.Script, error)
}

type ScriptWriter interface {
	// GenerateScript turns a story idea into a formatted reel script ready
	// for Parse.
	GenerateScript(ctx context.Context, idea, theme string) (string, error)
}

type Speech interface {
	// Synthesize returns the spoken audio for one utterance together with
	// word-level timing marks.
	Synthesize(ctx context.Context, dialogue, character string) (types.SpeechResult, error)
}

type Visuals interface {
	// GenerateImage returns encoded PNG bytes for a scene prompt.
	GenerateImage(ctx context.Context, prompt string) ([]byte, error)
}

// OverlayInput is one pre-rendered overlay strip the compositor places on
// the timeline.
type OverlayInput struct {
	PNGPath  string
	X, Y     int
	StartSec float64
	EndSec   float64
}

type VideoTool interface {
	ProbeDuration(ctx context.Context, path string) (float64, error)
	ProbeSize(ctx context.Context, path string) (w, h int, err error)

	// StillClip turns a still image into a video of the given duration at
	// the target output geometry.
	StillClip(ctx context.Context, imagePath string, durSec float64, outMP4 string) error

	// SyncToAudio applies a reconciliation plan to the visual track and
	// attaches the full audio asset.
	SyncToAudio(ctx context.Context, videoPath, audioPath string, plan timeline.Plan, outMP4 string) error

	// CropScale center-crops the source to the output aspect and scales it
	// to the exact output resolution.
	CropScale(ctx context.Context, inMP4 string, srcW, srcH int, outMP4 string) error

	Concat(ctx context.Context, parts []string, outMP4 string) error

	// Composite burns timed overlay strips onto the base video.
	Composite(ctx context.Context, baseMP4 string, overlays []OverlayInput, outMP4 string) error
}

// TextRenderer measures and renders overlay text. Measure must be
// consistent with RenderLinePNG so prefix-measured crop bounds line up with
// rendered pixels.
type TextRenderer interface {
	Measure(text string) (w, h int, err error)
	// RenderLinePNG renders a full line in the base or highlight style,
	// optionally cropped to [cropX1, cropX2), and writes it as PNG.
	RenderLinePNG(text string, highlight bool, cropX1, cropX2 int, outPath string) error
	// RenderBlockPNG renders wrapped static text at the block width used by
	// the no-timing fallback.
	RenderBlockPNG(text string, maxWidth int, outPath string) error
}
