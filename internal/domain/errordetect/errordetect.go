// Package errordetect scans word timings and silence gaps for speech errors:
// filler words, hesitations, repetitions, and suggested trim points.
package errordetect

import (
	"context"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/clipforge/clipforge/internal/ports"
	"github.com/clipforge/clipforge/internal/types"
)

var fillerWords = map[string]struct{}{
	"um": {}, "uh": {}, "umm": {}, "uhh": {}, "er": {}, "err": {}, "ah": {}, "ahh": {},
	"like": {}, "basically": {}, "actually": {}, "literally": {}, "honestly": {},
	"so": {}, "well": {}, "right": {}, "okay": {}, "ok": {},
}

var fillerPhrases = map[string]struct{}{
	"you know": {}, "i mean": {}, "kind of": {}, "sort of": {},
	"you see": {}, "i guess": {}, "i think": {}, "to be honest": {},
}

const (
	defaultPauseThreshold     = 0.5
	defaultSilenceFloorDB     = -40
	defaultMinSilenceDuration = 0.3

	trimBuffer = 0.1
)

type Detector struct {
	encoder ports.MediaEncoder
	log     *logrus.Entry

	PauseThreshold     float64
	SilenceFloorDB     float64
	MinSilenceDuration float64
	Workers            int
}

func New(encoder ports.MediaEncoder, log *logrus.Entry) *Detector {
	return &Detector{
		encoder:            encoder,
		log:                log,
		PauseThreshold:     defaultPauseThreshold,
		SilenceFloorDB:     defaultSilenceFloorDB,
		MinSilenceDuration: defaultMinSilenceDuration,
		Workers:            3,
	}
}

// AnalyzeClips analyzes every clip in parallel. A clip whose analysis fails
// gets an empty report instead of failing the batch; output keeps clip order.
func (d *Detector) AnalyzeClips(ctx context.Context, clips []types.ClipResult, words []types.Word) []types.ErrorAnalysis {
	workers := d.Workers
	if workers <= 0 {
		workers = 3
	}

	out := make([]types.ErrorAnalysis, len(clips))
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for i, clip := range clips {
		wg.Add(1)
		go func(i int, clip types.ClipResult) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			analysis, err := d.AnalyzeClip(ctx, clip, words)
			if err != nil {
				d.log.WithField("clip_id", clip.ClipID).WithError(err).Warn("error analysis failed, using empty report")
				analysis = types.ErrorAnalysis{ClipID: clip.ClipID}
			}
			out[i] = analysis
		}(i, clip)
	}
	wg.Wait()
	return out
}

// AnalyzeClip analyzes one clip. words carries source-timeline timestamps for
// the whole video; only words inside the clip's range are considered, shifted
// to clip-relative time.
func (d *Detector) AnalyzeClip(ctx context.Context, clip types.ClipResult, words []types.Word) (types.ErrorAnalysis, error) {
	clipWords := clipRelativeWords(words, clip.Start, clip.End)

	silence, err := d.encoder.DetectSilence(ctx, clip.VideoPath, d.SilenceFloorDB, d.MinSilenceDuration)
	if err != nil {
		return types.ErrorAnalysis{}, err
	}

	fillers := detectFillerWords(clipWords)
	hesitations := d.detectPauses(clipWords)
	hesitations = append(hesitations, detectRepetitions(clipWords)...)

	trimStart, trimEnd := trimPoints(clip.Duration, clipWords, silence)

	return types.ErrorAnalysis{
		ClipID:             clip.ClipID,
		SilenceRegions:     silence,
		FillerWords:        fillers,
		Hesitations:        hesitations,
		SuggestedTrimStart: trimStart,
		SuggestedTrimEnd:   trimEnd,
	}, nil
}

func clipRelativeWords(words []types.Word, start, end float64) []types.Word {
	var out []types.Word
	for _, w := range words {
		if w.Start < start || w.Start > end {
			continue
		}
		w.Start -= start
		w.End -= start
		out = append(out, w)
	}
	return out
}

func cleanWord(w string) string {
	return strings.Trim(strings.ToLower(w), ".,!?;:")
}

func detectFillerWords(words []types.Word) []types.FillerWord {
	var out []types.FillerWord
	cleaned := make([]string, len(words))
	for i, w := range words {
		cleaned[i] = cleanWord(w.Word)
	}

	for i, text := range cleaned {
		if _, ok := fillerWords[text]; ok {
			out = append(out, types.FillerWord{
				Word:  text,
				Start: words[i].Start,
				End:   words[i].End,
			})
		}
	}
	for i := 0; i < len(cleaned)-1; i++ {
		phrase := cleaned[i] + " " + cleaned[i+1]
		if _, ok := fillerPhrases[phrase]; ok {
			out = append(out, types.FillerWord{
				Word:     phrase,
				Start:    words[i].Start,
				End:      words[i+1].End,
				IsPhrase: true,
			})
		}
	}
	return out
}

func (d *Detector) detectPauses(words []types.Word) []types.Hesitation {
	var out []types.Hesitation
	for i := 1; i < len(words); i++ {
		gap := words[i].Start - words[i-1].End
		if gap >= d.PauseThreshold {
			out = append(out, types.Hesitation{
				Start:    words[i-1].End,
				End:      words[i].Start,
				Duration: gap,
				Kind:     types.HesitationPause,
			})
		}
	}
	return out
}

func detectRepetitions(words []types.Word) []types.Hesitation {
	var out []types.Hesitation
	cleaned := make([]string, len(words))
	for i, w := range words {
		cleaned[i] = cleanWord(w.Word)
	}

	for i := 1; i < len(cleaned); i++ {
		if cleaned[i] == cleaned[i-1] && len(cleaned[i]) > 1 {
			out = append(out, types.Hesitation{
				Start:    words[i-1].Start,
				End:      words[i-1].End,
				Duration: words[i-1].End - words[i-1].Start,
				Kind:     types.HesitationRepetition,
			})
		}
	}

	// Repeated 2 and 3 word windows mark abandoned false starts.
	for _, window := range []int{2, 3} {
		for i := window; i < len(cleaned); i++ {
			if i-2*window+1 < 0 {
				continue
			}
			current := strings.Join(cleaned[i-window+1:i+1], " ")
			previous := strings.Join(cleaned[i-2*window+1:i-window+1], " ")
			if current == previous && len(current) > 3 {
				out = append(out, types.Hesitation{
					Start:    words[i-2*window+1].Start,
					End:      words[i-window].End,
					Duration: words[i-window].End - words[i-2*window+1].Start,
					Kind:     types.HesitationFalseStart,
				})
			}
		}
	}
	return out
}

// trimPoints finds the first and last word that is neither a filler nor
// wrapped in start/end silence, and trims to just outside them.
func trimPoints(clipDuration float64, words []types.Word, silence []types.SilenceRegion) (float64, float64) {
	if len(words) == 0 {
		return 0, 0
	}

	var trimStart, trimEnd float64
	for _, w := range words {
		if _, filler := fillerWords[cleanWord(w.Word)]; filler {
			continue
		}
		if precededByLeadingSilence(w, silence) {
			continue
		}
		if t := w.Start - trimBuffer; t > 0 {
			trimStart = t
		}
		break
	}

	for i := len(words) - 1; i >= 0; i-- {
		w := words[i]
		if _, filler := fillerWords[cleanWord(w.Word)]; filler {
			continue
		}
		if followedByTrailingSilence(w, silence, clipDuration) {
			continue
		}
		if t := clipDuration - w.End - trimBuffer; t > 0 {
			trimEnd = t
		}
		break
	}
	return trimStart, trimEnd
}

func precededByLeadingSilence(w types.Word, silence []types.SilenceRegion) bool {
	for _, s := range silence {
		if s.End <= w.Start && s.Start < 0.5 {
			return true
		}
	}
	return false
}

func followedByTrailingSilence(w types.Word, silence []types.SilenceRegion, clipDuration float64) bool {
	for _, s := range silence {
		if s.Start >= w.End && s.End > clipDuration-0.5 {
			return true
		}
	}
	return false
}
