package ffmpeg

import (
	"strings"
	"testing"

	"github.com/forPelevin/reelsmith/internal/domain/timeline"
	"github.com/forPelevin/reelsmith/internal/ports"
)

func TestPlanArgs(t *testing.T) {
	tests := []struct {
		name string
		plan timeline.Plan
		want []string
	}{
		{
			"pass-through adds nothing",
			timeline.Plan{Mode: timeline.PassThrough, TargetSec: 10},
			nil,
		},
		{
			"trim cuts at target",
			timeline.Plan{Mode: timeline.Trim, TargetSec: 8},
			[]string{"-t", "8.000"},
		},
		{
			"stretch slows playback",
			timeline.Plan{Mode: timeline.Stretch, TargetSec: 8, SpeedFactor: 0.8},
			[]string{"-filter:v", "setpts=1.250000*PTS"},
		},
		{
			"stretch-freeze pads the tail",
			timeline.Plan{Mode: timeline.StretchFreeze, TargetSec: 15, SpeedFactor: 0.7, FreezeSec: 6.429},
			[]string{"-filter:v", "setpts=1.428571*PTS,tpad=stop_mode=clone:stop_duration=6.429"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := planArgs(tt.plan)
			if len(got) != len(tt.want) {
				t.Fatalf("args = %v, want %v", got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Fatalf("args[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestOverlayFilter(t *testing.T) {
	got := overlayFilter([]ports.OverlayInput{
		{PNGPath: "a.png", X: 100, Y: 200, StartSec: 0, EndSec: 1.5},
		{PNGPath: "b.png", X: 120, Y: 200, StartSec: 1.5, EndSec: 2},
	})
	want := "[0:v][1:v]overlay=100:200:enable='between(t,0.000,1.500)'[v1];" +
		"[v1][2:v]overlay=120:200:enable='between(t,1.500,2.000)'[vout]"
	if got != want {
		t.Fatalf("filter =\n%s\nwant\n%s", got, want)
	}
}

func TestOverlayFilter_SingleOverlayEndsInVout(t *testing.T) {
	got := overlayFilter([]ports.OverlayInput{{X: 1, Y: 2, StartSec: 0, EndSec: 1}})
	if !strings.HasSuffix(got, "[vout]") || strings.Contains(got, ";") {
		t.Fatalf("unexpected single-overlay filter: %s", got)
	}
}

func TestCoverFilter(t *testing.T) {
	a := New("", "", 1080, 1920, 24)
	want := "scale=1080:1920:force_original_aspect_ratio=increase,crop=1080:1920"
	if got := a.coverFilter(); got != want {
		t.Fatalf("cover filter = %s", got)
	}
}
