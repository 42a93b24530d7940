package overlay

import (
	"log/slog"
	"strings"

	"github.com/forPelevin/reelsmith/internal/types"
)

// Trailing display time for the final line after its last word starts, and
// floors that keep degenerate zero-length renders out of the compositor.
const (
	trailingLineSec = 0.8
	minLineSec      = 0.2
	minWordSec      = 0.1
)

// Measurer reports the rendered pixel extents of a string at the engine's
// font settings, safety margin included. Prefix measurements must be
// comparable: same font, same stroke, same margin for every call.
type Measurer interface {
	Measure(text string) (w, h int, err error)
}

type Kind int

const (
	// Base is the full line in the normal color, visible for the whole line
	// window.
	Base Kind = iota
	// Highlight is a crop of the highlight-colored full-line rendering,
	// visible only while its word is spoken.
	Highlight
	// Static is the no-timing fallback: one block of text for the whole
	// utterance.
	Static
)

// TimedOverlay is one renderable, positioned, timed unit. The output of the
// engine is a flat ordered list of these; callers never see nested clip
// lists.
type TimedOverlay struct {
	Kind Kind

	// Line is the full line text the unit renders from. Highlight units crop
	// the highlight-colored rendering of Line to [CropX1, CropX2).
	Line           string
	CropX1, CropX2 int

	// Screen position of the unit's top-left corner. Base and Static units
	// are centered horizontally by the engine.
	X, Y int

	StartSec float64
	DurSec   float64
}

// Config is the immutable layout parameter set, fixed at engine construction.
type Config struct {
	FontSize        int
	VideoWidth      int
	VideoHeight     int
	BottomOffset    int
	WordSpacing     int
	LineSpacing     int
	MaxLineWidth    int
	MaxWordsPerLine int
	// Margin is the safety padding baked into every measurement to keep
	// stroke pixels from clipping. Prefix x-coordinates compensate for it.
	Margin int
}

func DefaultConfig() Config {
	return Config{
		FontSize:        65,
		VideoWidth:      1080,
		VideoHeight:     1920,
		BottomOffset:    280,
		WordSpacing:     15,
		LineSpacing:     80,
		MaxLineWidth:    900,
		MaxWordsPerLine: 3,
		Margin:          20,
	}
}

type Engine struct {
	cfg Config
	m   Measurer
	log *slog.Logger
}

func New(cfg Config, m Measurer, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{cfg: cfg, m: m, log: log}
}

// Line is a display row of word marks. Packing partitions the mark sequence
// contiguously: no drops, no duplication, no reordering.
type Line struct {
	Marks []types.WordMark
}

func (l Line) Text() string {
	words := make([]string, len(l.Marks))
	for i, m := range l.Marks {
		words[i] = m.Text
	}
	return strings.Join(words, " ")
}

// PackLines groups marks into display lines. A line closes when it already
// holds MaxWordsPerLine marks, or when the next word's estimated width plus
// spacing would push past MaxLineWidth and the line is non-empty. A single
// word wider than the budget still gets a line of its own.
func (e *Engine) PackLines(marks []types.WordMark) []Line {
	var lines []Line
	var cur Line
	curWidth := 0

	for _, m := range marks {
		estimated := e.estimateWidth(m.Text)
		if len(cur.Marks) >= e.cfg.MaxWordsPerLine ||
			(curWidth+estimated > e.cfg.MaxLineWidth && len(cur.Marks) > 0) {
			lines = append(lines, cur)
			cur = Line{Marks: []types.WordMark{m}}
			curWidth = estimated
			continue
		}
		cur.Marks = append(cur.Marks, m)
		curWidth += estimated + e.cfg.WordSpacing
	}
	if len(cur.Marks) > 0 {
		lines = append(lines, cur)
	}
	return lines
}

// estimateWidth is the packing heuristic: per-character width at 0.8x the
// font size. Exact measurement is reserved for highlight cropping.
func (e *Engine) estimateWidth(word string) int {
	return len([]rune(word)) * e.cfg.FontSize * 8 / 10
}

// Build lays out the karaoke overlays for one utterance. sceneStartSec is the
// scene's absolute start in the final timeline; sceneDurSec only matters for
// the static fallback. A line whose measurement fails is skipped; the rest of
// the utterance still renders.
func (e *Engine) Build(marks []types.WordMark, narration string, sceneStartSec, sceneDurSec float64) []TimedOverlay {
	if len(marks) == 0 {
		return e.staticFallback(narration, sceneStartSec, sceneDurSec)
	}

	lines := e.PackLines(marks)

	var out []TimedOverlay
	totalTextHeight := len(lines) * e.cfg.LineSpacing
	startY := e.cfg.VideoHeight - e.cfg.BottomOffset - totalTextHeight/2

	for idx, line := range lines {
		textY := startY + idx*e.cfg.LineSpacing

		lineStartAbs := float64(line.Marks[0].StartMS) / 1000.0
		var lineEndAbs float64
		if idx < len(lines)-1 {
			lineEndAbs = float64(lines[idx+1].Marks[0].StartMS) / 1000.0
		} else {
			lineEndAbs = float64(line.Marks[len(line.Marks)-1].StartMS)/1000.0 + trailingLineSec
		}
		lineDur := lineEndAbs - lineStartAbs
		if lineDur < minLineSec {
			lineDur = minLineSec
		}
		lineStart := lineStartAbs + sceneStartSec
		if lineStart < 0 {
			lineStart = 0
		}

		fullText := line.Text()
		lineW, _, err := e.m.Measure(fullText)
		if err != nil {
			e.log.Warn("skipping overlay line, measurement failed",
				"line", fullText, "error", err)
			continue
		}
		lineXStart := (e.cfg.VideoWidth - lineW) / 2

		out = append(out, TimedOverlay{
			Kind:     Base,
			Line:     fullText,
			X:        lineXStart,
			Y:        textY,
			StartSec: lineStart,
			DurSec:   lineDur,
		})

		// Highlight crops are measured against full-line prefixes so both
		// renderings share kerning; per-word reconstruction would drift.
		charPtr := 0
		for i, m := range line.Marks {
			startIdx := charPtr
			endIdx := charPtr + len(m.Text)

			x1 := 0
			if startIdx > 0 {
				w, _, err := e.m.Measure(fullText[:startIdx])
				if err != nil {
					e.log.Warn("skipping rest of line, prefix measurement failed",
						"line", fullText, "word", m.Text, "error", err)
					break
				}
				x1 = w - e.cfg.Margin
			}
			w2, _, err := e.m.Measure(fullText[:endIdx])
			if err != nil {
				e.log.Warn("skipping rest of line, prefix measurement failed",
					"line", fullText, "word", m.Text, "error", err)
				break
			}
			x2 := w2 - e.cfg.Margin

			wordStart := float64(m.StartMS)/1000.0 + sceneStartSec
			var wordEnd float64
			if i < len(line.Marks)-1 {
				wordEnd = float64(line.Marks[i+1].StartMS)/1000.0 + sceneStartSec
			} else {
				wordEnd = lineStart + lineDur
			}
			wordDur := wordEnd - wordStart
			if wordDur < minWordSec {
				wordDur = minWordSec
			}

			out = append(out, TimedOverlay{
				Kind:     Highlight,
				Line:     fullText,
				CropX1:   x1,
				CropX2:   x2,
				X:        lineXStart + x1,
				Y:        textY,
				StartSec: wordStart,
				DurSec:   wordDur,
			})

			charPtr += len(m.Text) + 1
		}
	}
	return out
}

func (e *Engine) staticFallback(narration string, sceneStartSec, sceneDurSec float64) []TimedOverlay {
	text := strings.TrimSpace(narration)
	if text == "" || sceneDurSec <= 0 {
		return nil
	}
	return []TimedOverlay{{
		Kind:     Static,
		Line:     text,
		X:        (e.cfg.VideoWidth - e.cfg.MaxLineWidth) / 2,
		Y:        e.cfg.VideoHeight - e.cfg.BottomOffset,
		StartSec: sceneStartSec,
		DurSec:   sceneDurSec,
	}}
}
