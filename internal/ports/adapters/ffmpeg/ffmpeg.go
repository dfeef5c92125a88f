// Package ffmpeg adapts the local ffmpeg/ffprobe binaries to the MediaEncoder
// port. Every invocation runs under the caller's context deadline; on timeout
// the process is killed by exec.CommandContext.
package ffmpeg

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/clipforge/clipforge/internal/types"
)

type Adapter struct {
	ffmpeg  string
	ffprobe string

	videoCodec   string
	audioCodec   string
	videoBitrate string
	audioBitrate string
	thumbWidth   int
	thumbHeight  int
}

func New(ffmpegPath, ffprobePath string) *Adapter {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Adapter{
		ffmpeg:       ffmpegPath,
		ffprobe:      ffprobePath,
		videoCodec:   "libx264",
		audioCodec:   "aac",
		videoBitrate: "2M",
		audioBitrate: "128k",
		thumbWidth:   640,
		thumbHeight:  360,
	}
}

func (a *Adapter) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return b, fmt.Errorf("%s: %w\n%s", name, err, string(b))
	}
	return b, nil
}

// CutClip re-encodes [start, end] of in into out. -ss before -i for fast
// seeking; +faststart so the result streams.
func (a *Adapter) CutClip(ctx context.Context, in string, start, end float64, out string) error {
	if _, err := a.run(ctx, a.ffmpeg,
		"-ss", fmtSeconds(start),
		"-i", in,
		"-t", fmtSeconds(end-start),
		"-c:v", a.videoCodec,
		"-c:a", a.audioCodec,
		"-b:v", a.videoBitrate,
		"-b:a", a.audioBitrate,
		"-preset", "fast",
		"-movflags", "+faststart",
		"-y",
		out,
	); err != nil {
		return fmt.Errorf("cut clip: %w", err)
	}
	return nil
}

func (a *Adapter) Thumbnail(ctx context.Context, in string, offset float64, out string) error {
	scale := fmt.Sprintf(
		"scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2",
		a.thumbWidth, a.thumbHeight, a.thumbWidth, a.thumbHeight,
	)
	if _, err := a.run(ctx, a.ffmpeg,
		"-ss", fmtSeconds(offset),
		"-i", in,
		"-vframes", "1",
		"-vf", scale,
		"-y",
		out,
	); err != nil {
		return fmt.Errorf("thumbnail: %w", err)
	}
	return nil
}

// ExtractAudio produces mono 16kHz 64kbps MP3, the cheapest representation
// the transcription service accepts.
func (a *Adapter) ExtractAudio(ctx context.Context, in, outMP3 string) error {
	if _, err := a.run(ctx, a.ffmpeg,
		"-i", in,
		"-vn",
		"-acodec", "libmp3lame",
		"-ar", "16000",
		"-ac", "1",
		"-b:a", "64k",
		"-y",
		outMP3,
	); err != nil {
		return fmt.Errorf("extract audio: %w", err)
	}
	return nil
}

func (a *Adapter) ExtractAudioChunk(ctx context.Context, in string, start, duration float64, outMP3 string) error {
	if _, err := a.run(ctx, a.ffmpeg,
		"-ss", fmtSeconds(start),
		"-i", in,
		"-t", fmtSeconds(duration),
		"-acodec", "libmp3lame",
		"-ar", "16000",
		"-ac", "1",
		"-b:a", "64k",
		"-y",
		outMP3,
	); err != nil {
		return fmt.Errorf("extract audio chunk: %w", err)
	}
	return nil
}

// DetectSilence runs the silencedetect filter and parses the regions it
// reports on stderr.
func (a *Adapter) DetectSilence(ctx context.Context, in string, noiseFloorDB, minDuration float64) ([]types.SilenceRegion, error) {
	filter := fmt.Sprintf("silencedetect=noise=%sdB:d=%s", fmtSeconds(noiseFloorDB), fmtSeconds(minDuration))
	out, err := a.run(ctx, a.ffmpeg,
		"-i", in,
		"-af", filter,
		"-f", "null",
		"-",
	)
	if err != nil {
		return nil, fmt.Errorf("detect silence: %w", err)
	}
	return parseSilence(string(out)), nil
}

// MeasureLoudness runs a loudnorm analysis pass and scrapes the JSON block it
// prints among the encoder noise on stderr.
func (a *Adapter) MeasureLoudness(ctx context.Context, in string) (types.AudioMetrics, error) {
	out, err := a.run(ctx, a.ffmpeg,
		"-i", in,
		"-af", "loudnorm=I=-16:TP=-1.5:LRA=11:print_format=json",
		"-f", "null",
		"-",
	)
	if err != nil {
		return types.AudioMetrics{}, fmt.Errorf("measure loudness: %w", err)
	}
	return parseLoudnorm(string(out)), nil
}

func (a *Adapter) ProbeDuration(ctx context.Context, in string) (float64, error) {
	out, err := a.run(ctx, a.ffprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		in,
	)
	if err != nil {
		return 0, fmt.Errorf("probe duration: %w", err)
	}
	s := strings.TrimSpace(string(out))
	sec, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", s, err)
	}
	return sec, nil
}

var (
	reSilenceStart = regexp.MustCompile(`silence_start:\s*(-?[\d.]+)`)
	reSilenceEnd   = regexp.MustCompile(`silence_end:\s*(-?[\d.]+)`)
)

func parseSilence(output string) []types.SilenceRegion {
	var regions []types.SilenceRegion
	start := -1.0
	haveStart := false

	for _, line := range strings.Split(output, "\n") {
		if m := reSilenceStart.FindStringSubmatch(line); m != nil {
			if v, err := strconv.ParseFloat(m[1], 64); err == nil {
				start = v
				haveStart = true
			}
			continue
		}
		if !haveStart {
			continue
		}
		if m := reSilenceEnd.FindStringSubmatch(line); m != nil {
			if v, err := strconv.ParseFloat(m[1], 64); err == nil {
				regions = append(regions, types.SilenceRegion{
					Start:    start,
					End:      v,
					Duration: v - start,
				})
			}
			haveStart = false
		}
	}
	return regions
}

// parseLoudnorm pulls the trailing JSON block out of the loudnorm stderr dump.
// Missing or malformed output degrades to neutral metrics.
func parseLoudnorm(output string) types.AudioMetrics {
	metrics := types.NeutralAudioMetrics()

	jsonStart := strings.LastIndex(output, "{")
	jsonEnd := strings.LastIndex(output, "}")
	if jsonStart == -1 || jsonEnd <= jsonStart {
		return metrics
	}
	block := output[jsonStart : jsonEnd+1]
	if !gjson.Valid(block) {
		return metrics
	}

	// loudnorm prints numeric fields as strings.
	if v := gjson.Get(block, "input_i"); v.Exists() {
		metrics.LoudnessLUFS = v.Float()
	}
	if v := gjson.Get(block, "input_lra"); v.Exists() {
		metrics.LoudnessRange = v.Float()
	}
	if v := gjson.Get(block, "input_tp"); v.Exists() {
		metrics.TruePeakDB = v.Float()
	}
	if v := gjson.Get(block, "input_thresh"); v.Exists() {
		metrics.NoiseFloorDB = v.Float()
	}
	if metrics.TruePeakDB > -0.5 {
		metrics.ClippingDetected = true
	}
	return metrics
}

func fmtSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}
