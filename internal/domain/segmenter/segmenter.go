// Package segmenter merges scene boundaries with transcript segments into
// non-overlapping clip definitions obeying min/max duration, preferring
// sentence-aligned cuts.
package segmenter

import (
	"fmt"
	"strings"

	"github.com/clipforge/clipforge/internal/types"
)

// Fraction of maxDuration past the current start at which a sentence-final
// break is taken immediately instead of searching further.
const goodEnoughBreakFraction = 0.7

// BuildClips iterates scenes in order and emits ordered clip definitions.
//
//   - scene shorter than minDuration: dropped (short scenes are never merged
//     with neighbours)
//   - scene within [minDuration, maxDuration]: one clip, transcript is the
//     space-joined text of all overlapping segments
//   - scene longer than maxDuration: split at transcript breaks, or evenly
//     when no transcript overlaps the scene
func BuildClips(
	scenes []types.SceneBoundary,
	segments []types.Segment,
	minDuration, maxDuration float64,
	sourceID string,
) []types.ClipDefinition {
	var clips []types.ClipDefinition
	clipIndex := 0

	for sceneIdx, scene := range scenes {
		if scene.Duration < minDuration {
			continue
		}

		if scene.Duration <= maxDuration {
			clips = append(clips, types.ClipDefinition{
				ClipID:       clipID(sourceID, clipIndex),
				Start:        scene.Start,
				End:          scene.End,
				Transcript:   transcriptForRange(segments, scene.Start, scene.End),
				SceneIndices: []int{sceneIdx},
			})
			clipIndex++
			continue
		}

		sub := splitLongScene(scene.Start, scene.End, segments, minDuration, maxDuration, sourceID, clipIndex)
		clips = append(clips, sub...)
		clipIndex += len(sub)
	}

	return clips
}

// FallbackClip fabricates the single whole-remainder clip used when
// segmentation yields nothing (for example a video shorter than minDuration).
// Deliberately exempt from the minimum-duration rule.
func FallbackClip(videoDuration, maxDuration float64, segments []types.Segment, sourceID string) types.ClipDefinition {
	end := videoDuration
	if end > maxDuration {
		end = maxDuration
	}
	return types.ClipDefinition{
		ClipID:     clipID(sourceID, 0),
		Start:      0,
		End:        end,
		Transcript: transcriptForRange(segments, 0, end),
	}
}

func clipID(sourceID string, ordinal int) string {
	return fmt.Sprintf("%s_clip_%04d", sourceID, ordinal)
}

// transcriptForRange joins the text of every segment whose interval overlaps
// [start, end).
func transcriptForRange(segments []types.Segment, start, end float64) string {
	var texts []string
	for _, seg := range segments {
		if seg.End > start && seg.Start < end {
			texts = append(texts, seg.Text)
		}
	}
	return strings.TrimSpace(strings.Join(texts, " "))
}

func endsSentence(text string) bool {
	t := strings.TrimRight(text, " \t\n")
	if t == "" {
		return false
	}
	switch t[len(t)-1] {
	case '.', '!', '?':
		return true
	}
	return false
}

func splitLongScene(
	start, end float64,
	segments []types.Segment,
	minDuration, maxDuration float64,
	sourceID string,
	startIndex int,
) []types.ClipDefinition {
	var clips []types.ClipDefinition
	currentStart := start
	clipIndex := startIndex

	var relevant []types.Segment
	for _, seg := range segments {
		if seg.End > start && seg.Start < end {
			relevant = append(relevant, seg)
		}
	}

	if len(relevant) == 0 {
		// No speech: split evenly into maxDuration pieces, dropping a final
		// remainder shorter than minDuration.
		for currentStart < end {
			clipEnd := currentStart + maxDuration
			if clipEnd > end {
				clipEnd = end
			}
			if clipEnd-currentStart >= minDuration {
				clips = append(clips, types.ClipDefinition{
					ClipID: clipID(sourceID, clipIndex),
					Start:  currentStart,
					End:    clipEnd,
				})
				clipIndex++
			}
			currentStart = clipEnd
		}
		return clips
	}

	segmentIdx := 0
	for currentStart < end && segmentIdx < len(relevant) {
		targetEnd := currentStart + maxDuration

		// Walk segments looking for the best break before targetEnd. A
		// sentence-final segment past the good-enough point wins outright;
		// otherwise the furthest in-range segment end is used.
		bestBreak := currentStart + minDuration
		var accumulated []string

		for _, seg := range relevant[segmentIdx:] {
			if seg.Start >= targetEnd {
				break
			}
			if seg.Start < currentStart {
				segmentIdx++
				continue
			}

			accumulated = append(accumulated, seg.Text)
			if seg.End >= currentStart+minDuration {
				bestBreak = seg.End
				if endsSentence(seg.Text) && seg.End >= currentStart+maxDuration*goodEnoughBreakFraction {
					segmentIdx++
					break
				}
			}
			segmentIdx++
		}

		clipEnd := bestBreak
		if clipEnd > end {
			clipEnd = end
		}
		if clipEnd-currentStart >= minDuration {
			clips = append(clips, types.ClipDefinition{
				ClipID:     clipID(sourceID, clipIndex),
				Start:      currentStart,
				End:        clipEnd,
				Transcript: strings.TrimSpace(strings.Join(accumulated, " ")),
			})
			clipIndex++
		}

		currentStart = clipEnd
	}

	return clips
}
