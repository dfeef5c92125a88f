// Package extract turns planned clip definitions into media files on disk.
package extract

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/clipforge/clipforge/internal/domain/subtitles"
	"github.com/clipforge/clipforge/internal/ports"
	"github.com/clipforge/clipforge/internal/types"
)

const (
	defaultWorkers         = 3
	defaultClipTimeout     = 2 * time.Minute
	defaultThumbnailOffset = 1.0
)

type Extractor struct {
	encoder ports.MediaEncoder
	log     *logrus.Entry

	// Workers bounds concurrent encoder subprocesses. ClipTimeout is the hard
	// per-clip deadline covering cut, thumbnail and subtitles together.
	Workers         int
	ClipTimeout     time.Duration
	ThumbnailOffset float64
}

func New(encoder ports.MediaEncoder, log *logrus.Entry) *Extractor {
	return &Extractor{
		encoder:         encoder,
		log:             log,
		Workers:         defaultWorkers,
		ClipTimeout:     defaultClipTimeout,
		ThumbnailOffset: defaultThumbnailOffset,
	}
}

// ExtractAll cuts every definition from videoPath into workDir. A failing
// clip is logged and dropped; the rest of the batch is unaffected. Results
// keep the definition order.
func (e *Extractor) ExtractAll(ctx context.Context, videoPath, workDir string, defs []types.ClipDefinition, segments []types.Segment) []types.ClipResult {
	workers := e.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}

	results := make([]*types.ClipResult, len(defs))
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for i, def := range defs {
		wg.Add(1)
		go func(i int, def types.ClipDefinition) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			res, err := e.extractOne(ctx, videoPath, workDir, def, segments)
			if err != nil {
				e.log.WithField("clip_id", def.ClipID).WithError(err).Warn("clip extraction failed, skipping")
				return
			}
			results[i] = &res
		}(i, def)
	}
	wg.Wait()

	out := make([]types.ClipResult, 0, len(defs))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out
}

func (e *Extractor) extractOne(ctx context.Context, videoPath, workDir string, def types.ClipDefinition, segments []types.Segment) (types.ClipResult, error) {
	timeout := e.ClipTimeout
	if timeout <= 0 {
		timeout = defaultClipTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	duration := def.End - def.Start
	videoOut := filepath.Join(workDir, def.ClipID+".mp4")
	thumbOut := filepath.Join(workDir, def.ClipID+".jpg")

	if err := e.encoder.CutClip(ctx, videoPath, def.Start, def.End, videoOut); err != nil {
		return types.ClipResult{}, fmt.Errorf("cut clip: %w", err)
	}

	// The thumbnail must land inside the clip even for very short cuts.
	offset := e.ThumbnailOffset
	if half := duration / 2; offset > half {
		offset = half
	}
	if err := e.encoder.Thumbnail(ctx, videoOut, offset, thumbOut); err != nil {
		return types.ClipResult{}, fmt.Errorf("thumbnail: %w", err)
	}

	res := types.ClipResult{
		ClipID:        def.ClipID,
		Start:         def.Start,
		End:           def.End,
		Duration:      duration,
		VideoPath:     videoOut,
		ThumbnailPath: thumbOut,
		Transcript:    def.Transcript,
		SceneIndices:  def.SceneIndices,
	}

	clipSegments := subtitles.ForRange(segments, def.Start, def.End)
	if len(clipSegments) > 0 {
		srtOut := filepath.Join(workDir, def.ClipID+".srt")
		written, err := subtitles.WriteFile(srtOut, clipSegments)
		if err != nil {
			e.log.WithField("clip_id", def.ClipID).WithError(err).Warn("subtitle write failed")
		} else if written {
			// Only point at the file when it exists; blank-text segments
			// render to nothing and the upload stage stats every path it
			// is given.
			res.SubtitlePath = srtOut
		}
	}
	return res, nil
}
