// Package subtitles renders sidecar caption files for players that cannot
// show the burned-in overlays (muted autoplay, screen readers).
package subtitles

import (
	"fmt"
	"strings"
	"time"
)

// Event is one caption cue on the final reel timeline.
type Event struct {
	Start time.Duration
	End   time.Duration
	Text  string
}

// RenderSRT renders cues as SubRip text. Empty cues are dropped, overlapping
// cue ends are pulled back to the next cue's start so players never show two
// lines at once.
func RenderSRT(events []Event) string {
	var b strings.Builder
	n := 0
	for i, ev := range events {
		text := sanitize(ev.Text)
		if text == "" || ev.End <= ev.Start {
			continue
		}
		end := ev.End
		if i+1 < len(events) && events[i+1].Start < end {
			end = events[i+1].Start
		}
		n++
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n", n, srtTime(ev.Start), srtTime(end), text)
	}
	return b.String()
}

// FromSeconds builds an Event from timeline seconds as produced by the
// layout engine.
func FromSeconds(startSec, durSec float64, text string) Event {
	return Event{
		Start: time.Duration(startSec * float64(time.Second)),
		End:   time.Duration((startSec + durSec) * float64(time.Second)),
		Text:  text,
	}
}

func srtTime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	h := int(d / time.Hour)
	d -= time.Duration(h) * time.Hour
	m := int(d / time.Minute)
	d -= time.Duration(m) * time.Minute
	s := int(d / time.Second)
	d -= time.Duration(s) * time.Second
	ms := int(d / time.Millisecond)
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

func sanitize(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "-->", "->")
	return strings.TrimSpace(s)
}
