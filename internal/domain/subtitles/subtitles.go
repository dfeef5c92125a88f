// Package subtitles renders SubRip files for extracted clips.
package subtitles

import (
	"fmt"
	"os"
	"strings"

	"github.com/clipforge/clipforge/internal/types"
)

// ForRange selects the transcript segments overlapping [start, end) and
// rebases their timestamps onto the clip's own timeline.
func ForRange(segments []types.Segment, start, end float64) []types.Segment {
	var out []types.Segment
	for _, seg := range segments {
		if seg.End <= start || seg.Start >= end {
			continue
		}
		seg.Start -= start
		seg.End -= start
		if seg.Start < 0 {
			seg.Start = 0
		}
		if max := end - start; seg.End > max {
			seg.End = max
		}
		seg.Words = nil
		out = append(out, seg)
	}
	return out
}

// Render produces the SRT document for clip-relative segments. Empty input
// renders to an empty string.
func Render(segments []types.Segment) string {
	var b strings.Builder
	n := 0
	for _, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		n++
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n", n, timestamp(seg.Start), timestamp(seg.End), text)
	}
	return b.String()
}

// WriteFile writes the rendered document to path. It reports whether a file
// was written; segments with no renderable text produce no file at all.
func WriteFile(path string, segments []types.Segment) (bool, error) {
	doc := Render(segments)
	if doc == "" {
		return false, nil
	}
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		return false, fmt.Errorf("write subtitles: %w", err)
	}
	return true, nil
}

func timestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	ms := int(seconds*1000 + 0.5)
	h := ms / 3600000
	ms %= 3600000
	m := ms / 60000
	ms %= 60000
	s := ms / 1000
	ms %= 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}
