// Package typeset renders overlay text strips with a local TTF font. The
// same face and safety margin back both measurement and rendering, which is
// what keeps prefix-measured highlight crops pixel-aligned with the base
// line.
package typeset

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

type Config struct {
	FontPath    string
	FontSize    float64
	Margin      int
	StrokeWidth int
	// Hex colors, "#RRGGBB".
	NormalColor    string
	HighlightColor string
	StrokeColor    string
}

func DefaultConfig(fontPath string) Config {
	return Config{
		FontPath:       fontPath,
		FontSize:       65,
		Margin:         20,
		StrokeWidth:    3,
		NormalColor:    "#FFFFFF",
		HighlightColor: "#FFD700",
		StrokeColor:    "#000000",
	}
}

type Renderer struct {
	cfg       Config
	face      font.Face
	normal    color.NRGBA
	highlight color.NRGBA
	stroke    color.NRGBA
}

func New(cfg Config) (*Renderer, error) {
	b, err := os.ReadFile(cfg.FontPath)
	if err != nil {
		return nil, fmt.Errorf("read font: %w", err)
	}
	ft, err := opentype.Parse(b)
	if err != nil {
		return nil, fmt.Errorf("parse font: %w", err)
	}
	face, err := opentype.NewFace(ft, &opentype.FaceOptions{
		Size:    cfg.FontSize,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("create face: %w", err)
	}

	normal, err := parseHexColor(cfg.NormalColor)
	if err != nil {
		return nil, err
	}
	highlight, err := parseHexColor(cfg.HighlightColor)
	if err != nil {
		return nil, err
	}
	stroke, err := parseHexColor(cfg.StrokeColor)
	if err != nil {
		return nil, err
	}

	return &Renderer{
		cfg:       cfg,
		face:      face,
		normal:    normal,
		highlight: highlight,
		stroke:    stroke,
	}, nil
}

// Measure returns the rendered extents of text, safety margin included on
// all sides.
func (r *Renderer) Measure(text string) (int, int, error) {
	adv := font.MeasureString(r.face, text)
	m := r.face.Metrics()
	w := adv.Ceil() + 2*r.cfg.Margin
	h := m.Height.Ceil() + 2*r.cfg.Margin
	return w, h, nil
}

// RenderLinePNG draws one line in the base or highlight style. When
// cropX2 > cropX1 the strip is cut to [cropX1, cropX2) at full height before
// encoding.
func (r *Renderer) RenderLinePNG(text string, highlight bool, cropX1, cropX2 int, outPath string) error {
	fill := r.normal
	if highlight {
		fill = r.highlight
	}
	img, err := r.renderLine(text, fill)
	if err != nil {
		return err
	}

	out := image.Image(img)
	if cropX2 > cropX1 {
		bounds := img.Bounds()
		x1 := clampInt(cropX1, 0, bounds.Dx())
		x2 := clampInt(cropX2, x1, bounds.Dx())
		out = img.SubImage(image.Rect(x1, 0, x2, bounds.Dy()))
	}
	return writePNG(out, outPath)
}

// RenderBlockPNG renders word-wrapped static text, each line centered within
// maxWidth. This is the fallback used when an utterance carries no word
// timing.
func (r *Renderer) RenderBlockPNG(text string, maxWidth int, outPath string) error {
	lines := r.wrap(text, maxWidth)
	if len(lines) == 0 {
		return fmt.Errorf("no text to render")
	}

	m := r.face.Metrics()
	lineH := m.Height.Ceil() + 2*r.cfg.Margin
	img := image.NewNRGBA(image.Rect(0, 0, maxWidth, lineH*len(lines)))

	for i, line := range lines {
		strip, err := r.renderLine(line, r.normal)
		if err != nil {
			return err
		}
		sb := strip.Bounds()
		x := (maxWidth - sb.Dx()) / 2
		if x < 0 {
			x = 0
		}
		target := image.Rect(x, i*lineH, x+sb.Dx(), i*lineH+sb.Dy())
		draw.Draw(img, target, strip, sb.Min, draw.Over)
	}
	return writePNG(img, outPath)
}

func (r *Renderer) renderLine(text string, fill color.NRGBA) (*image.NRGBA, error) {
	w, h, err := r.Measure(text)
	if err != nil {
		return nil, err
	}
	img := image.NewNRGBA(image.Rect(0, 0, w, h))

	ascent := r.face.Metrics().Ascent.Ceil()
	baseX := r.cfg.Margin
	baseY := r.cfg.Margin + ascent

	// Stroke first: the fill draws over a ring of offset stroke passes.
	sw := r.cfg.StrokeWidth
	if sw > 0 {
		for dy := -sw; dy <= sw; dy++ {
			for dx := -sw; dx <= sw; dx++ {
				if dx == 0 && dy == 0 {
					continue
				}
				r.drawString(img, text, r.stroke, baseX+dx, baseY+dy)
			}
		}
	}
	r.drawString(img, text, fill, baseX, baseY)
	return img, nil
}

func (r *Renderer) drawString(dst *image.NRGBA, text string, c color.NRGBA, x, y int) {
	d := font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: r.face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}

func (r *Renderer) wrap(text string, maxWidth int) []string {
	words := strings.Fields(text)
	var lines []string
	var cur []string
	for _, w := range words {
		candidate := strings.Join(append(cur, w), " ")
		cw, _, _ := r.Measure(candidate)
		if cw > maxWidth && len(cur) > 0 {
			lines = append(lines, strings.Join(cur, " "))
			cur = []string{w}
			continue
		}
		cur = append(cur, w)
	}
	if len(cur) > 0 {
		lines = append(lines, strings.Join(cur, " "))
	}
	return lines
}

func writePNG(img image.Image, outPath string) error {
	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", outPath, err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("encode png: %w", err)
	}
	return f.Close()
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func parseHexColor(s string) (color.NRGBA, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) != 6 {
		return color.NRGBA{}, fmt.Errorf("invalid hex color %q", s)
	}
	var rgb [3]uint8
	for i := 0; i < 3; i++ {
		var v int
		if _, err := fmt.Sscanf(s[2*i:2*i+2], "%02x", &v); err != nil {
			return color.NRGBA{}, fmt.Errorf("invalid hex color %q: %w", s, err)
		}
		rgb[i] = uint8(v)
	}
	return color.NRGBA{R: rgb[0], G: rgb[1], B: rgb[2], A: 255}, nil
}
