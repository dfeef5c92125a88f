package ports

import (
	"context"

	"github.com/clipforge/clipforge/internal/types"
)

// MediaEncoder runs the local encoder binary (ffmpeg/ffprobe) as a
// subprocess. Every call carries its own deadline via ctx.
type MediaEncoder interface {
	CutClip(ctx context.Context, in string, start, end float64, out string) error
	Thumbnail(ctx context.Context, in string, offset float64, out string) error
	ExtractAudio(ctx context.Context, in, outMP3 string) error
	ExtractAudioChunk(ctx context.Context, in string, start, duration float64, outMP3 string) error
	DetectSilence(ctx context.Context, in string, noiseFloorDB, minDuration float64) ([]types.SilenceRegion, error)
	MeasureLoudness(ctx context.Context, in string) (types.AudioMetrics, error)
	ProbeDuration(ctx context.Context, in string) (float64, error)
}

// SceneDetector finds visual cuts in a video. Implementations must return at
// least one boundary: when no cut is found they synthesize a single boundary
// spanning the whole video.
type SceneDetector interface {
	DetectScenes(ctx context.Context, videoPath string) ([]types.SceneBoundary, error)
}

// SpeechAPI transcribes one audio file that already fits the service's size
// ceiling. Chunking of larger files is layered on top (internal/transcribe).
type SpeechAPI interface {
	TranscribeFile(ctx context.Context, audioPath, language string) (types.Transcript, error)
}

// Tagger classifies one clip's transcript into the closed tag vocabulary.
type Tagger interface {
	TagClip(ctx context.Context, clip types.ClipContext) (types.TagResult, error)
}

// Embedder turns texts into fixed-length vectors. BatchLimit is the service's
// per-request item ceiling; callers batch to it.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float64, error)
	BatchLimit() int
	ModelName() string
}

// ObjectStore moves media bytes between the store and local disk without ever
// holding a whole file in memory.
type ObjectStore interface {
	Download(ctx context.Context, key, localPath string) (int64, error)
	Upload(ctx context.Context, localPath, key string) (string, error)
}
