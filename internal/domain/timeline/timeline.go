package timeline

import (
	"errors"
	"fmt"
	"math"
)

// Tolerance below which visual and audio durations are treated as equal and
// the visual track is attached to the audio unchanged.
const Tolerance = 0.1

// MinStretchFactor is the perceptibility floor for uniform slow-down. Below
// it the track is slowed by exactly this factor and the last frame is held
// for the remainder.
const MinStretchFactor = 0.7

type Mode int

const (
	PassThrough Mode = iota
	Trim
	Stretch
	StretchFreeze
)

func (m Mode) String() string {
	switch m {
	case PassThrough:
		return "pass-through"
	case Trim:
		return "trim"
	case Stretch:
		return "stretch"
	case StretchFreeze:
		return "stretch-freeze"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// Plan describes how a visual track of one duration becomes a track of
// exactly TargetSec. The executing video tool applies the mode and then
// attaches the full target audio in every case.
type Plan struct {
	Mode      Mode
	TargetSec float64

	// SpeedFactor is visual/audio duration ratio, < 1. Playback is slowed by
	// 1/SpeedFactor. Set for Stretch and StretchFreeze.
	SpeedFactor float64

	// FreezeSec is how long the last frame is held after the stretched
	// segment. Set for StretchFreeze.
	FreezeSec float64

	// Clamped reports that a negative freeze remainder was clamped to zero,
	// which indicates bad upstream duration data.
	Clamped bool
}

// Reconcile decides how to make a visual track of visualSec seconds run for
// exactly audioSec seconds. Trimming drops tail frames, stretching slows the
// whole track uniformly, and past the perceptibility floor the track is
// slowed to the floor and the final frame is frozen for the remainder.
func Reconcile(visualSec, audioSec float64) (Plan, error) {
	if visualSec <= 0 {
		return Plan{}, fmt.Errorf("visual duration must be > 0, got %.3f", visualSec)
	}
	if audioSec <= 0 {
		return Plan{}, fmt.Errorf("audio duration must be > 0, got %.3f", audioSec)
	}

	if math.Abs(visualSec-audioSec) < Tolerance {
		return Plan{Mode: PassThrough, TargetSec: audioSec}, nil
	}
	if visualSec > audioSec {
		return Plan{Mode: Trim, TargetSec: audioSec}, nil
	}

	speed := visualSec / audioSec
	if speed >= MinStretchFactor {
		return Plan{Mode: Stretch, TargetSec: audioSec, SpeedFactor: speed}, nil
	}

	p := Plan{
		Mode:        StretchFreeze,
		TargetSec:   audioSec,
		SpeedFactor: MinStretchFactor,
		FreezeSec:   audioSec - visualSec/MinStretchFactor,
	}
	// speed < MinStretchFactor implies a positive remainder in exact
	// arithmetic; only float rounding at the floor or bad upstream duration
	// data can land here. Never emit a negative duration either way.
	if p.FreezeSec < 0 {
		p.FreezeSec = 0
		p.Clamped = true
	}
	return p, nil
}

// StartTimes returns the absolute start time of each scene given the actual
// measured duration of every scene, in order. Estimates never feed this.
func StartTimes(durations []float64) []float64 {
	starts := make([]float64, len(durations))
	cum := 0.0
	for i, d := range durations {
		starts[i] = cum
		cum += d
	}
	return starts
}

// Rect is a crop window in source pixel coordinates.
type Rect struct {
	X, Y, W, H int
}

// CropRect computes the symmetric center crop that brings a source frame to
// the target aspect ratio. The caller scales the cropped region to the exact
// target resolution afterwards.
func CropRect(srcW, srcH, dstW, dstH int) (Rect, error) {
	if srcW <= 0 || srcH <= 0 {
		return Rect{}, fmt.Errorf("source size must be positive, got %dx%d", srcW, srcH)
	}
	if dstW <= 0 || dstH <= 0 {
		return Rect{}, errors.New("target size must be positive")
	}

	srcAspect := float64(srcW) / float64(srcH)
	dstAspect := float64(dstW) / float64(dstH)

	var w, h int
	if srcAspect > dstAspect {
		// Wider than the target: crop the sides.
		h = srcH
		w = int(float64(srcH) * dstAspect)
	} else {
		// Taller than the target: crop top and bottom.
		w = srcW
		h = int(float64(srcW) / dstAspect)
	}
	return Rect{
		X: (srcW - w) / 2,
		Y: (srcH - h) / 2,
		W: w,
		H: h,
	}, nil
}
