package export

import (
	"fmt"
	"strings"

	"github.com/yangwenmai/vidlens/internal/model"
)

// defaultCueSec is the cue length used for artifacts without an end time.
const defaultCueSec = 3.0

// SRT renders artifacts as a SubRip subtitle file.
func SRT(arts []model.Artifact) string {
	var b strings.Builder
	for i, a := range arts {
		start, end := cueBounds(a)
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n", i+1, cueTime(start, ","), cueTime(end, ","), strings.TrimSpace(a.Text))
	}
	return b.String()
}

// VTT renders artifacts as a WebVTT file.
func VTT(arts []model.Artifact) string {
	var b strings.Builder
	b.WriteString("WEBVTT\n\n")
	for _, a := range arts {
		start, end := cueBounds(a)
		fmt.Fprintf(&b, "%s --> %s\n%s\n\n", cueTime(start, "."), cueTime(end, "."), strings.TrimSpace(a.Text))
	}
	return b.String()
}

// PlainText renders artifacts as "[HH:MM:SS] text" lines.
func PlainText(arts []model.Artifact) string {
	var b strings.Builder
	for _, a := range arts {
		fmt.Fprintf(&b, "[%s] %s\n", model.FormatTimestamp(a.StartSec), strings.TrimSpace(a.Text))
	}
	return b.String()
}

func cueBounds(a model.Artifact) (float64, float64) {
	end := a.StartSec + defaultCueSec
	if a.EndSec != nil && *a.EndSec > a.StartSec {
		end = *a.EndSec
	}
	return a.StartSec, end
}

// cueTime formats seconds as HH:MM:SS<sep>mmm.
func cueTime(sec float64, sep string) string {
	if sec < 0 {
		sec = 0
	}
	ms := int64(sec*1000 + 0.5)
	h := ms / 3_600_000
	m := (ms % 3_600_000) / 60_000
	s := (ms % 60_000) / 1000
	return fmt.Sprintf("%02d:%02d:%02d%s%03d", h, m, s, sep, ms%1000)
}
