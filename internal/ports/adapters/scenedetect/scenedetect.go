// Package scenedetect finds visual cuts with ffmpeg's scene-change filter.
package scenedetect

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/clipforge/clipforge/internal/types"
)

type Adapter struct {
	ffmpeg  string
	ffprobe string

	// Threshold is the scene-change score above which a frame counts as a
	// cut; MinSceneLen suppresses cuts that would produce shorter scenes.
	Threshold   float64
	MinSceneLen float64
}

func New(ffmpegPath, ffprobePath string) *Adapter {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Adapter{
		ffmpeg:      ffmpegPath,
		ffprobe:     ffprobePath,
		Threshold:   0.4,
		MinSceneLen: 1.5,
	}
}

type videoInfo struct {
	duration float64
	fps      float64
}

func (a *Adapter) probe(ctx context.Context, videoPath string) (videoInfo, error) {
	cmd := exec.CommandContext(ctx, a.ffprobe,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		videoPath,
	)
	out, err := cmd.Output()
	if err != nil {
		return videoInfo{}, fmt.Errorf("ffprobe: %w", err)
	}

	info := videoInfo{fps: 30}
	info.duration = gjson.GetBytes(out, "format.duration").Float()

	streams := gjson.GetBytes(out, "streams")
	streams.ForEach(func(_, stream gjson.Result) bool {
		if stream.Get("codec_type").String() != "video" {
			return true
		}
		if fps, ok := parseFrameRate(stream.Get("r_frame_rate").String()); ok {
			info.fps = fps
		}
		return false
	})

	if info.duration <= 0 {
		return videoInfo{}, fmt.Errorf("ffprobe reported no duration for %s", videoPath)
	}
	return info, nil
}

// DetectScenes runs a select-filter pass over the video and turns cut
// timestamps into boundaries. Zero detected cuts yields a single boundary
// spanning the whole video.
func (a *Adapter) DetectScenes(ctx context.Context, videoPath string) ([]types.SceneBoundary, error) {
	info, err := a.probe(ctx, videoPath)
	if err != nil {
		return nil, err
	}

	filter := fmt.Sprintf("select='gt(scene,%s)',metadata=print", strconv.FormatFloat(a.Threshold, 'f', -1, 64))
	cmd := exec.CommandContext(ctx, a.ffmpeg,
		"-i", videoPath,
		"-vf", filter,
		"-f", "null",
		"-",
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg scene filter: %w\n%s", err, string(out))
	}

	cuts := parseCutTimes(string(out))
	return buildBoundaries(cuts, info.duration, info.fps, a.MinSceneLen), nil
}

var rePtsTime = regexp.MustCompile(`pts_time:([\d.]+)`)

func parseCutTimes(output string) []float64 {
	var cuts []float64
	for _, m := range rePtsTime.FindAllStringSubmatch(output, -1) {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			cuts = append(cuts, v)
		}
	}
	sort.Float64s(cuts)
	return cuts
}

func buildBoundaries(cuts []float64, duration, fps, minSceneLen float64) []types.SceneBoundary {
	starts := []float64{0}
	for _, c := range cuts {
		if c <= starts[len(starts)-1]+minSceneLen {
			continue
		}
		if c >= duration {
			break
		}
		starts = append(starts, c)
	}

	boundaries := make([]types.SceneBoundary, 0, len(starts))
	for i, start := range starts {
		end := duration
		if i+1 < len(starts) {
			end = starts[i+1]
		}
		boundaries = append(boundaries, types.SceneBoundary{
			Start:      start,
			End:        end,
			StartFrame: int(start * fps),
			EndFrame:   int(end * fps),
			Duration:   end - start,
		})
	}
	return boundaries
}

func parseFrameRate(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	if !strings.Contains(s, "/") {
		v, err := strconv.ParseFloat(s, 64)
		return v, err == nil && v > 0
	}
	parts := strings.SplitN(s, "/", 2)
	num, err1 := strconv.ParseFloat(parts[0], 64)
	den, err2 := strconv.ParseFloat(parts[1], 64)
	if err1 != nil || err2 != nil || den == 0 {
		return 0, false
	}
	return num / den, true
}
