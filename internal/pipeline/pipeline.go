package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/pelletier/go-toml/v2"

	"github.com/forPelevin/reelsmith/internal/domain/overlay"
	"github.com/forPelevin/reelsmith/internal/domain/script"
	"github.com/forPelevin/reelsmith/internal/ports"
	"github.com/forPelevin/reelsmith/internal/ports/adapters/elevenlabs"
	"github.com/forPelevin/reelsmith/internal/ports/adapters/ffmpeg"
	"github.com/forPelevin/reelsmith/internal/ports/adapters/openai"
	"github.com/forPelevin/reelsmith/internal/ports/adapters/typeset"
	"github.com/forPelevin/reelsmith/internal/types"
	"github.com/forPelevin/reelsmith/internal/usecase"
)

type Config struct {
	ScriptPath string
	ReelName   string
	OutDir     string
	Theme      string

	// Reuse recomposes from assets already in the reel workspace instead of
	// calling the generative services.
	Reuse bool

	FFmpegPath  string
	FFprobePath string
	FontPath    string

	OpenAIAPIKey string
	ChatModel    string
	ImageModel   string

	ElevenLabsAPIKey string
	SpeechModel      string
	Voices           map[string]string
	DefaultVoice     string

	Width  int
	Height int
	FPS    int

	Overlay overlay.Config
	Styling typeset.Config

	Log *slog.Logger
}

func (c Config) Validate() error {
	if c.ReelName == "" {
		return errors.New("reel name is empty")
	}
	if !c.Reuse {
		if c.ScriptPath == "" {
			return errors.New("script path is empty")
		}
		if _, err := os.Stat(c.ScriptPath); err != nil {
			return fmt.Errorf("stat script: %w", err)
		}
		if c.OpenAIAPIKey == "" {
			return errors.New("OPENAI_API_KEY is required")
		}
		if c.ElevenLabsAPIKey == "" {
			return errors.New("ELEVENLABS_API_KEY is required")
		}
	}
	if c.FontPath == "" {
		return errors.New("font path is required")
	}
	if _, err := os.Stat(c.FontPath); err != nil {
		return fmt.Errorf("stat font: %w", err)
	}
	if c.Overlay.VideoWidth != c.Width || c.Overlay.VideoHeight != c.Height {
		return fmt.Errorf("overlay geometry %dx%d does not match output %dx%d",
			c.Overlay.VideoWidth, c.Overlay.VideoHeight, c.Width, c.Height)
	}
	return nil
}

type Result struct {
	RunID     string
	FinalPath string
	Elapsed   time.Duration
	Manifest  types.Manifest
}

func Run(ctx context.Context, cfg Config) (Result, error) {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	started := time.Now()

	text, err := typeset.New(cfg.Styling)
	if err != nil {
		return Result{}, fmt.Errorf("text renderer: %w", err)
	}
	video := ffmpeg.New(cfg.FFmpegPath, cfg.FFprobePath, cfg.Width, cfg.Height, cfg.FPS)
	speech := elevenlabs.New(cfg.ElevenLabsAPIKey, cfg.SpeechModel, "", cfg.Voices, cfg.DefaultVoice)
	ai := openai.New(cfg.OpenAIAPIKey, cfg.ChatModel, cfg.ImageModel)

	uc := usecase.New(usecase.Deps{
		Script:  ai,
		Speech:  speech,
		Visuals: ai,
		Video:   video,
		Text:    text,
	}, cfg.Overlay, log)

	outDir := cfg.OutDir
	if outDir == "" {
		outDir = "out"
	}
	workDir := filepath.Join(outDir, cfg.ReelName)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return Result{}, err
	}

	// Concurrent runs against one reel workspace corrupt each other's
	// intermediate assets.
	lock := flock.New(filepath.Join(workDir, ".reelsmith.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return Result{}, fmt.Errorf("acquire workspace lock: %w", err)
	}
	if !locked {
		return Result{}, fmt.Errorf("reel %q is locked by another run", cfg.ReelName)
	}
	defer lock.Unlock()

	runID := uuid.NewString()
	log.Info("run started", "run_id", runID, "reel", cfg.ReelName, "reuse", cfg.Reuse)

	var scriptText string
	if !cfg.Reuse {
		b, err := os.ReadFile(cfg.ScriptPath)
		if err != nil {
			return Result{}, fmt.Errorf("read script: %w", err)
		}
		scriptText = string(b)
	}

	res, err := uc.Run(ctx, usecase.Input{
		ScriptText: scriptText,
		ReelName:   cfg.ReelName,
		Theme:      cfg.Theme,
		WorkDir:    workDir,
		Reuse:      cfg.Reuse,
	})
	if err != nil {
		return Result{}, err
	}

	res.Manifest.RunID = runID
	b, err := json.MarshalIndent(res.Manifest, "", "  ")
	if err != nil {
		return Result{}, fmt.Errorf("marshal manifest: %w", err)
	}
	manifestPath := filepath.Join(workDir, "manifest.json")
	if err := os.WriteFile(manifestPath, b, 0o644); err != nil {
		return Result{}, err
	}

	elapsed := time.Since(started)
	log.Info("run finished", "run_id", runID, "video", res.FinalPath,
		"scenes", len(res.Manifest.Scenes), "elapsed", elapsed.Round(time.Second))

	return Result{
		RunID:     runID,
		FinalPath: res.FinalPath,
		Elapsed:   elapsed,
		Manifest:  res.Manifest,
	}, nil
}

// GenerateScript turns a story idea into a validated script file under
// OutDir, ready for a create run.
func GenerateScript(ctx context.Context, cfg Config, idea string) (string, error) {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	if strings.TrimSpace(idea) == "" {
		return "", errors.New("story idea is empty")
	}
	if cfg.OpenAIAPIKey == "" {
		return "", errors.New("OPENAI_API_KEY is required")
	}
	name := cfg.ReelName
	if name == "" {
		name = ReelNameFromIdea(idea)
	}

	ai := openai.New(cfg.OpenAIAPIKey, cfg.ChatModel, cfg.ImageModel)
	text, err := ai.GenerateScript(ctx, idea, cfg.Theme)
	if err != nil {
		return "", err
	}
	if err := script.Validate(text); err != nil {
		return "", fmt.Errorf("generated script is malformed: %w", err)
	}

	outDir := cfg.OutDir
	if outDir == "" {
		outDir = "out"
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(outDir, name+"_script.txt")
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return "", err
	}
	log.Info("script written", "reel", name, "path", path)
	return path, nil
}

// ReelNameFromIdea derives a workspace-safe reel name from the first words
// of a story idea.
func ReelNameFromIdea(idea string) string {
	words := strings.Fields(idea)
	if len(words) > 4 {
		words = words[:4]
	}
	name := normalizePathSegment(strings.Join(words, " "))
	if name == "" {
		name = "reel"
	}
	return name
}

// FileConfig is the optional reelsmith.toml. Everything here has a working
// default; API keys come from the environment, never from the file.
type FileConfig struct {
	OutDir  string `toml:"out_dir"`
	Theme   string `toml:"theme"`
	FFmpeg  string `toml:"ffmpeg"`
	FFprobe string `toml:"ffprobe"`
	Font    string `toml:"font"`

	Video struct {
		Width  int `toml:"width"`
		Height int `toml:"height"`
		FPS    int `toml:"fps"`
	} `toml:"video"`

	Overlay struct {
		FontSize        int    `toml:"font_size"`
		BottomOffset    int    `toml:"bottom_offset"`
		LineSpacing     int    `toml:"line_spacing"`
		MaxLineWidth    int    `toml:"max_line_width"`
		MaxWordsPerLine int    `toml:"max_words_per_line"`
		TextColor       string `toml:"text_color"`
		HighlightColor  string `toml:"highlight_color"`
		StrokeColor     string `toml:"stroke_color"`
	} `toml:"overlay"`

	OpenAI struct {
		ChatModel  string `toml:"chat_model"`
		ImageModel string `toml:"image_model"`
	} `toml:"openai"`

	ElevenLabs struct {
		Model        string            `toml:"model"`
		DefaultVoice string            `toml:"default_voice"`
		Voices       map[string]string `toml:"voices"`
	} `toml:"elevenlabs"`
}

// LoadFileConfig reads a reelsmith.toml. A missing file is not an error; the
// zero value falls back to defaults during merge.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fc, nil
		}
		return fc, fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, fmt.Errorf("parse %s: %w", path, err)
	}
	return fc, nil
}

// Merge folds file values into cfg, file winning only where cfg is unset, and
// then fills hard defaults for anything still empty.
func (c Config) Merge(fc FileConfig) Config {
	pickStr := func(cur, file, def string) string {
		if cur != "" {
			return cur
		}
		if file != "" {
			return file
		}
		return def
	}
	pickInt := func(cur, file, def int) int {
		if cur != 0 {
			return cur
		}
		if file != 0 {
			return file
		}
		return def
	}

	c.OutDir = pickStr(c.OutDir, fc.OutDir, "out")
	c.Theme = pickStr(c.Theme, fc.Theme, "")
	c.FFmpegPath = pickStr(c.FFmpegPath, fc.FFmpeg, "ffmpeg")
	c.FFprobePath = pickStr(c.FFprobePath, fc.FFprobe, "ffprobe")
	c.FontPath = pickStr(c.FontPath, fc.Font, "")

	c.Width = pickInt(c.Width, fc.Video.Width, 1080)
	c.Height = pickInt(c.Height, fc.Video.Height, 1920)
	c.FPS = pickInt(c.FPS, fc.Video.FPS, 24)

	c.ChatModel = pickStr(c.ChatModel, fc.OpenAI.ChatModel, "")
	c.ImageModel = pickStr(c.ImageModel, fc.OpenAI.ImageModel, "")
	c.SpeechModel = pickStr(c.SpeechModel, fc.ElevenLabs.Model, "")
	c.DefaultVoice = pickStr(c.DefaultVoice, fc.ElevenLabs.DefaultVoice, "")
	if len(c.Voices) == 0 {
		c.Voices = fc.ElevenLabs.Voices
	}

	ov := overlay.DefaultConfig()
	ov.VideoWidth = c.Width
	ov.VideoHeight = c.Height
	ov.FontSize = pickInt(fc.Overlay.FontSize, 0, ov.FontSize)
	ov.BottomOffset = pickInt(fc.Overlay.BottomOffset, 0, ov.BottomOffset)
	ov.LineSpacing = pickInt(fc.Overlay.LineSpacing, 0, ov.LineSpacing)
	ov.MaxLineWidth = pickInt(fc.Overlay.MaxLineWidth, 0, ov.MaxLineWidth)
	ov.MaxWordsPerLine = pickInt(fc.Overlay.MaxWordsPerLine, 0, ov.MaxWordsPerLine)
	c.Overlay = ov

	st := typeset.DefaultConfig(c.FontPath)
	st.FontSize = float64(ov.FontSize)
	st.Margin = ov.Margin
	st.NormalColor = pickStr(fc.Overlay.TextColor, "", st.NormalColor)
	st.HighlightColor = pickStr(fc.Overlay.HighlightColor, "", st.HighlightColor)
	st.StrokeColor = pickStr(fc.Overlay.StrokeColor, "", st.StrokeColor)
	c.Styling = st

	return c
}

// ReelNameFromScript derives a workspace-safe reel name from the script file
// name.
func ReelNameFromScript(scriptPath string) string {
	name := strings.TrimSuffix(filepath.Base(scriptPath), filepath.Ext(scriptPath))
	name = normalizePathSegment(name)
	if name == "" {
		name = "reel"
	}
	return name
}

func normalizePathSegment(s string) string {
	var b strings.Builder
	prevSep := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
			prevSep = false
		default:
			if !prevSep {
				b.WriteByte('_')
				prevSep = true
			}
		}
	}
	return strings.Trim(b.String(), "_")
}

// ensure adapters implement ports
var _ ports.VideoTool = (*ffmpeg.Adapter)(nil)
var _ ports.Speech = (*elevenlabs.Adapter)(nil)
var _ ports.ScriptParser = (*openai.Adapter)(nil)
var _ ports.ScriptWriter = (*openai.Adapter)(nil)
var _ ports.Visuals = (*openai.Adapter)(nil)
var _ ports.TextRenderer = (*typeset.Renderer)(nil)
