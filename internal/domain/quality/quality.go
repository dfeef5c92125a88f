// Package quality scores clips on a 1-5 opinion scale from speaking fluency
// and measured loudness.
package quality

import (
	"context"
	"math"
	"strings"
	"sync"
	"unicode"

	"github.com/sirupsen/logrus"

	"github.com/clipforge/clipforge/internal/ports"
	"github.com/clipforge/clipforge/internal/types"
)

const (
	optimalWPMMin = 140.0
	optimalWPMMax = 170.0
	minWPM        = 80.0
	maxWPM        = 220.0

	excellentFillerRate  = 0.01
	goodFillerRate       = 0.02
	acceptableFillerRate = 0.05

	targetLoudnessLUFS = -16.0
	loudnessTolerance  = 3.0
	noiseFloorGoodDB   = -50.0

	defaultSpeakingWeight = 0.6
	defaultAudioWeight    = 0.4
)

type Rater struct {
	encoder ports.MediaEncoder
	log     *logrus.Entry

	SpeakingWeight float64
	AudioWeight    float64
	Workers        int
}

func New(encoder ports.MediaEncoder, log *logrus.Entry) *Rater {
	return &Rater{
		encoder:        encoder,
		log:            log,
		SpeakingWeight: defaultSpeakingWeight,
		AudioWeight:    defaultAudioWeight,
		Workers:        3,
	}
}

// RateClips rates every clip in parallel. A clip whose rating fails gets a
// neutral 3.0 rating; output keeps clip order.
func (r *Rater) RateClips(ctx context.Context, clips []types.ClipResult, words []types.Word, analyses []types.ErrorAnalysis) []types.QualityRating {
	byClip := make(map[string]types.ErrorAnalysis, len(analyses))
	for _, a := range analyses {
		byClip[a.ClipID] = a
	}

	workers := r.Workers
	if workers <= 0 {
		workers = 3
	}
	out := make([]types.QualityRating, len(clips))
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for i, clip := range clips {
		wg.Add(1)
		go func(i int, clip types.ClipResult) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			analysis, ok := byClip[clip.ClipID]
			if !ok {
				analysis = types.ErrorAnalysis{ClipID: clip.ClipID}
			}
			out[i] = r.RateClip(ctx, clip, words, analysis)
		}(i, clip)
	}
	wg.Wait()
	return out
}

// RateClip never fails: loudness measurement errors are replaced by neutral
// audio metrics so the clip still gets a score.
func (r *Rater) RateClip(ctx context.Context, clip types.ClipResult, words []types.Word, analysis types.ErrorAnalysis) types.QualityRating {
	speaking := speakingMetrics(clip, words, analysis)

	audio, err := r.encoder.MeasureLoudness(ctx, clip.VideoPath)
	if err != nil {
		r.log.WithField("clip_id", clip.ClipID).WithError(err).Warn("loudness measurement failed, using neutral metrics")
		audio = types.NeutralAudioMetrics()
	}

	speakingScore := scoreSpeaking(speaking)
	audioScore := scoreAudio(audio)
	overall := speakingScore*r.SpeakingWeight + audioScore*r.AudioWeight

	return types.QualityRating{
		ClipID:          clip.ClipID,
		SpeakingScore:   round2(speakingScore),
		AudioScore:      round2(audioScore),
		OverallScore:    round2(overall),
		WordsPerMinute:  math.Round(speaking.WordsPerMinute*10) / 10,
		FillerWordCount: analysis.TotalFillerWords(),
		HesitationCount: analysis.TotalHesitations(),
		TrimStart:       analysis.SuggestedTrimStart,
		TrimEnd:         analysis.SuggestedTrimEnd,
		SpeakingMetrics: speaking,
		AudioMetrics:    audio,
	}
}

func speakingMetrics(clip types.ClipResult, words []types.Word, analysis types.ErrorAnalysis) types.SpeakingMetrics {
	var clipWords []types.Word
	for _, w := range words {
		if w.Start >= clip.Start && w.Start <= clip.End {
			clipWords = append(clipWords, w)
		}
	}

	minutes := clip.Duration / 60.0
	var wpm, fillerRate, hesitationRate float64
	if minutes > 0 {
		wpm = float64(len(clipWords)) / minutes
		hesitationRate = float64(analysis.TotalHesitations()) / minutes
	}
	if len(clipWords) > 0 {
		fillerRate = float64(analysis.TotalFillerWords()) / float64(len(clipWords))
	}

	var started, completed int
	for _, w := range clipWords {
		text := strings.TrimSpace(w.Word)
		if text == "" {
			continue
		}
		if unicode.IsUpper(rune(text[0])) {
			started++
		}
		if strings.ContainsRune(".!?", rune(text[len(text)-1])) {
			completed++
		}
	}
	completion := 1.0
	if started > 0 {
		completion = math.Min(1.0, float64(completed)/float64(started))
	}

	return types.SpeakingMetrics{
		WordsPerMinute:         wpm,
		FillerWordRate:         fillerRate,
		HesitationRate:         hesitationRate,
		SentenceCompletionRate: completion,
	}
}

func scoreSpeaking(m types.SpeakingMetrics) float64 {
	score := 5.0

	var wpmPenalty float64
	switch wpm := m.WordsPerMinute; {
	case wpm < minWPM:
		wpmPenalty = (minWPM - wpm) / minWPM * 2.0
	case wpm > maxWPM:
		wpmPenalty = (wpm - maxWPM) / 50.0
	case wpm < optimalWPMMin:
		wpmPenalty = (optimalWPMMin - wpm) / 60.0 * 0.5
	case wpm > optimalWPMMax:
		wpmPenalty = (wpm - optimalWPMMax) / 50.0 * 0.5
	}
	score -= math.Min(2.0, wpmPenalty)

	switch rate := m.FillerWordRate; {
	case rate <= excellentFillerRate:
	case rate <= goodFillerRate:
		score -= 0.3
	case rate <= acceptableFillerRate:
		score -= 0.7
	default:
		score -= math.Min(2.0, 1.0+(rate-acceptableFillerRate)*20)
	}

	switch rate := m.HesitationRate; {
	case rate <= 2.0:
	case rate <= 5.0:
		score -= 0.5
	default:
		score -= math.Min(1.5, (rate-5.0)/5.0)
	}

	if m.SentenceCompletionRate >= 0.9 {
		score += 0.2
	} else if m.SentenceCompletionRate < 0.5 {
		score -= 0.5
	}

	return clamp(score)
}

func scoreAudio(m types.AudioMetrics) float64 {
	score := 5.0

	if diff := math.Abs(m.LoudnessLUFS - targetLoudnessLUFS); diff > loudnessTolerance {
		score -= math.Min(2.0, (diff-loudnessTolerance)/5.0)
	}
	if m.LoudnessRange > 15.0 {
		score -= math.Min(1.0, (m.LoudnessRange-15.0)/10.0)
	}
	if m.ClippingDetected {
		score -= 1.5
	}
	if m.TruePeakDB > -1.0 {
		score -= 0.5
	} else if m.TruePeakDB > -0.5 {
		score -= 1.0
	}
	if m.NoiseFloorDB < noiseFloorGoodDB {
		score += 0.2
	}

	return clamp(score)
}

func clamp(score float64) float64 {
	return math.Max(1.0, math.Min(5.0, score))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
