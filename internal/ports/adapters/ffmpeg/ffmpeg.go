package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/forPelevin/reelsmith/internal/domain/timeline"
	"github.com/forPelevin/reelsmith/internal/ports"
)

type Adapter struct {
	ffmpeg  string
	ffprobe string
	width   int
	height  int
	fps     int
}

func New(ffmpegPath, ffprobePath string, width, height, fps int) *Adapter {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	if width <= 0 {
		width = 1080
	}
	if height <= 0 {
		height = 1920
	}
	if fps <= 0 {
		fps = 24
	}
	return &Adapter{ffmpeg: ffmpegPath, ffprobe: ffprobePath, width: width, height: height, fps: fps}
}

func (a *Adapter) ProbeDuration(ctx context.Context, path string) (float64, error) {
	cmd := exec.CommandContext(ctx, a.ffprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return 0, fmt.Errorf("ffprobe duration: %w\n%s", err, string(b))
	}
	s := strings.TrimSpace(string(b))
	sec, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", s, err)
	}
	return sec, nil
}

func (a *Adapter) ProbeSize(ctx context.Context, path string) (int, int, error) {
	cmd := exec.CommandContext(ctx, a.ffprobe,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height",
		"-of", "csv=s=x:p=0",
		path,
	)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return 0, 0, fmt.Errorf("ffprobe size: %w\n%s", err, string(b))
	}
	s := strings.TrimSpace(string(b))
	parts := strings.Split(s, "x")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("parse size %q", s)
	}
	w, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("parse width %q: %w", parts[0], err)
	}
	h, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("parse height %q: %w", parts[1], err)
	}
	return w, h, nil
}

func (a *Adapter) StillClip(ctx context.Context, imagePath string, durSec float64, outMP4 string) error {
	args := []string{
		"-y",
		"-loop", "1",
		"-i", imagePath,
		"-t", fmtSeconds(durSec),
		"-vf", a.coverFilter(),
		"-r", strconv.Itoa(a.fps),
		"-pix_fmt", "yuv420p",
		"-c:v", "libx264",
		"-preset", "veryfast",
		outMP4,
	}
	return a.run(ctx, "still clip", args)
}

// coverFilter scales the source to cover the output frame and center-crops
// the overshoot, the still-image equivalent of CropScale.
func (a *Adapter) coverFilter() string {
	return fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=increase,crop=%d:%d",
		a.width, a.height, a.width, a.height)
}

func (a *Adapter) SyncToAudio(ctx context.Context, videoPath, audioPath string, plan timeline.Plan, outMP4 string) error {
	args := []string{"-y", "-i", videoPath, "-i", audioPath}
	args = append(args, planArgs(plan)...)
	args = append(args,
		"-map", "0:v", "-map", "1:a",
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-crf", "18",
		"-c:a", "aac",
		"-b:a", "192k",
		outMP4,
	)
	return a.run(ctx, "sync to audio", args)
}

// planArgs translates a reconciliation plan into ffmpeg filter arguments.
// The full target audio is always mapped by the caller; only the video
// stream is reshaped here.
func planArgs(plan timeline.Plan) []string {
	switch plan.Mode {
	case timeline.Trim:
		return []string{"-t", fmtSeconds(plan.TargetSec)}
	case timeline.Stretch:
		return []string{"-filter:v", fmt.Sprintf("setpts=%s*PTS", fmtFactor(1/plan.SpeedFactor))}
	case timeline.StretchFreeze:
		return []string{"-filter:v", fmt.Sprintf(
			"setpts=%s*PTS,tpad=stop_mode=clone:stop_duration=%s",
			fmtFactor(1/plan.SpeedFactor), fmtSeconds(plan.FreezeSec))}
	default:
		return nil
	}
}

func (a *Adapter) CropScale(ctx context.Context, inMP4 string, srcW, srcH int, outMP4 string) error {
	rect, err := timeline.CropRect(srcW, srcH, a.width, a.height)
	if err != nil {
		return fmt.Errorf("crop geometry: %w", err)
	}
	filter := fmt.Sprintf("crop=%d:%d:%d:%d,scale=%d:%d",
		rect.W, rect.H, rect.X, rect.Y, a.width, a.height)
	args := []string{
		"-y",
		"-i", inMP4,
		"-vf", filter,
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-crf", "18",
		"-c:a", "copy",
		outMP4,
	}
	return a.run(ctx, "crop scale", args)
}

func (a *Adapter) Concat(ctx context.Context, parts []string, outMP4 string) error {
	if len(parts) == 0 {
		return fmt.Errorf("no parts to concatenate")
	}
	listPath := outMP4 + ".concat.txt"
	var b strings.Builder
	for _, p := range parts {
		abs, err := filepath.Abs(p)
		if err != nil {
			return fmt.Errorf("resolve part %s: %w", p, err)
		}
		fmt.Fprintf(&b, "file '%s'\n", strings.ReplaceAll(abs, "'", `'\''`))
	}
	if err := os.WriteFile(listPath, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write concat list: %w", err)
	}
	defer os.Remove(listPath)

	args := []string{
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		outMP4,
	}
	return a.run(ctx, "concat", args)
}

func (a *Adapter) Composite(ctx context.Context, baseMP4 string, overlays []ports.OverlayInput, outMP4 string) error {
	if len(overlays) == 0 {
		args := []string{"-y", "-i", baseMP4, "-c", "copy", outMP4}
		return a.run(ctx, "composite", args)
	}

	args := []string{"-y", "-i", baseMP4}
	for _, ov := range overlays {
		args = append(args, "-i", ov.PNGPath)
	}
	args = append(args,
		"-filter_complex", overlayFilter(overlays),
		"-map", "[vout]",
		"-map", "0:a?",
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-crf", "18",
		"-c:a", "copy",
		outMP4,
	)
	return a.run(ctx, "composite", args)
}

// overlayFilter chains one overlay stage per strip; each strip is visible
// only inside its timing window.
func overlayFilter(overlays []ports.OverlayInput) string {
	var b strings.Builder
	prev := "[0:v]"
	for i, ov := range overlays {
		label := fmt.Sprintf("[v%d]", i+1)
		if i == len(overlays)-1 {
			label = "[vout]"
		}
		fmt.Fprintf(&b, "%s[%d:v]overlay=%d:%d:enable='between(t,%s,%s)'%s",
			prev, i+1, ov.X, ov.Y, fmtSeconds(ov.StartSec), fmtSeconds(ov.EndSec), label)
		if i < len(overlays)-1 {
			b.WriteString(";")
		}
		prev = label
	}
	return b.String()
}

func (a *Adapter) run(ctx context.Context, op string, args []string) error {
	cmd := exec.CommandContext(ctx, a.ffmpeg, args...)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg %s: %w\n%s", op, err, string(b))
	}
	return nil
}

func fmtSeconds(sec float64) string {
	return strconv.FormatFloat(sec, 'f', 3, 64)
}

func fmtFactor(f float64) string {
	return strconv.FormatFloat(f, 'f', 6, 64)
}
