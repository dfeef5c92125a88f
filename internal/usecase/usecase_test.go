package usecase

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/clipforge/clipforge/internal/jobstore"
	"github.com/clipforge/clipforge/internal/logger"
	"github.com/clipforge/clipforge/internal/retry"
	"github.com/clipforge/clipforge/internal/types"
)

type fakeEncoder struct {
	duration float64
}

func (f *fakeEncoder) CutClip(_ context.Context, _ string, _, _ float64, out string) error {
	return os.WriteFile(out, []byte("video"), 0o644)
}
func (f *fakeEncoder) Thumbnail(_ context.Context, _ string, _ float64, out string) error {
	return os.WriteFile(out, []byte("jpg"), 0o644)
}
func (f *fakeEncoder) ExtractAudio(_ context.Context, _, out string) error {
	return os.WriteFile(out, []byte("mp3"), 0o644)
}
func (f *fakeEncoder) ExtractAudioChunk(context.Context, string, float64, float64, string) error {
	return nil
}
func (f *fakeEncoder) DetectSilence(context.Context, string, float64, float64) ([]types.SilenceRegion, error) {
	return nil, nil
}
func (f *fakeEncoder) MeasureLoudness(context.Context, string) (types.AudioMetrics, error) {
	return types.NeutralAudioMetrics(), nil
}
func (f *fakeEncoder) ProbeDuration(context.Context, string) (float64, error) {
	return f.duration, nil
}

type fakeScenes struct {
	boundaries []types.SceneBoundary
}

func (f *fakeScenes) DetectScenes(context.Context, string) ([]types.SceneBoundary, error) {
	return f.boundaries, nil
}

type fakeTranscriber struct {
	transcript types.Transcript
	err        error
}

func (f *fakeTranscriber) Transcribe(context.Context, string, string, string) (types.Transcript, error) {
	return f.transcript, f.err
}

type fakeTagger struct {
	mu   sync.Mutex
	seen []string
}

func (f *fakeTagger) TagClip(_ context.Context, clip types.ClipContext) (types.TagResult, error) {
	f.mu.Lock()
	f.seen = append(f.seen, clip.ClipID)
	f.mu.Unlock()
	return types.TagResult{
		ClipID:            clip.ClipID,
		PrimaryTag:        types.TagHook,
		PrimaryConfidence: 0.9,
		AllTags:           []types.TagScore{{Tag: types.TagHook, Confidence: 0.9}},
	}, nil
}

type fakeEmbedder struct{}

func (fakeEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i := range texts {
		v := make([]float64, 4)
		v[i%4] = 1
		out[i] = v
	}
	return out, nil
}
func (fakeEmbedder) BatchLimit() int   { return 100 }
func (fakeEmbedder) ModelName() string { return "test-embed" }

type fakeObjectStore struct {
	mu          sync.Mutex
	uploads     []string
	failKeys    map[string]bool
	downloadErr error
}

func (f *fakeObjectStore) Download(_ context.Context, _, localPath string) (int64, error) {
	if f.downloadErr != nil {
		return 0, f.downloadErr
	}
	if err := os.WriteFile(localPath, []byte("source"), 0o644); err != nil {
		return 0, err
	}
	return 6, nil
}

func (f *fakeObjectStore) Upload(_ context.Context, _, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failKeys[key] {
		return "", fmt.Errorf("service unavailable")
	}
	f.uploads = append(f.uploads, key)
	return "https://cdn.example.com/" + key, nil
}

type fakeNotifier struct {
	mu       sync.Mutex
	urls     []string
	payloads []any
}

func (f *fakeNotifier) Notify(_ context.Context, url string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls = append(f.urls, url)
	f.payloads = append(f.payloads, payload)
	return nil
}

func testTranscript() types.Transcript {
	return types.Transcript{
		FullText: "Hello world. This works great. Buy now!",
		Language: "en",
		Duration: 12,
		Segments: []types.Segment{
			{Text: "Hello world.", Start: 0, End: 4},
			{Text: "This works great.", Start: 4, End: 8},
			{Text: "Buy now!", Start: 8, End: 12},
		},
		Words: []types.Word{
			{Word: "Hello", Start: 0.2, End: 0.6},
			{Word: "world.", Start: 0.7, End: 1.1},
			{Word: "Buy", Start: 8.5, End: 8.8},
			{Word: "now!", Start: 8.9, End: 9.2},
		},
	}
}

type env struct {
	uc       *Usecase
	jobs     *jobstore.MemoryStore
	store    *fakeObjectStore
	notifier *fakeNotifier
	tagger   *fakeTagger
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		jobs:     jobstore.NewMemoryStore(),
		store:    &fakeObjectStore{failKeys: map[string]bool{}},
		notifier: &fakeNotifier{},
		tagger:   &fakeTagger{},
	}
	e.uc = New(Deps{
		Encoder:     &fakeEncoder{duration: 12},
		Scenes:      &fakeScenes{boundaries: []types.SceneBoundary{{Start: 0, End: 12, Duration: 12}}},
		Transcriber: &fakeTranscriber{transcript: testTranscript()},
		Tagger:      e.tagger,
		Embedder:    fakeEmbedder{},
		Store:       e.store,
		Jobs:        e.jobs,
		Notifier:    e.notifier,
		Log:         logger.Discard(),
	})
	fast := retry.Policy{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}
	e.uc.UploadRetry = fast
	e.uc.grouper.RetryPolicy = fast
	return e
}

func testInput(t *testing.T) Input {
	t.Helper()
	return Input{
		JobID:       "job-1",
		SourceID:    "vid",
		VideoKey:    "videos/vid.mp4",
		WebhookURL:  "https://example.com/hook",
		MinDuration: 3,
		MaxDuration: 6,
		WorkDir:     t.TempDir(),
	}
}

func registerJob(e *env, in Input) {
	e.jobs.Put(types.Job{
		JobID:     in.JobID,
		SourceID:  in.SourceID,
		Status:    types.StatusPending,
		StartedAt: time.Now(),
	})
}

func TestRun_HappyPath(t *testing.T) {
	e := newEnv(t)
	in := testInput(t)
	registerJob(e, in)

	result, err := e.uc.Run(context.Background(), in)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if result.Status != types.StatusCompleted {
		t.Fatalf("status = %s, want completed", result.Status)
	}
	if len(result.Clips) != 2 {
		t.Fatalf("clips = %d, want 2", len(result.Clips))
	}
	if result.TotalDuration != 12 {
		t.Fatalf("total duration = %v, want 12", result.TotalDuration)
	}

	first := result.Clips[0]
	if first.ClipID != "vid_clip_0000" {
		t.Errorf("clip id = %s", first.ClipID)
	}
	if first.PrimaryTag != types.TagHook {
		t.Errorf("primary tag = %s", first.PrimaryTag)
	}
	if first.Quality == nil || first.Quality.OverallScore < 1.0 {
		t.Errorf("quality rating missing or invalid: %+v", first.Quality)
	}
	if first.ErrorAnalysis == nil {
		t.Error("error analysis missing")
	}
	if !strings.HasPrefix(first.VideoURL, "https://cdn.example.com/clips/vid/") {
		t.Errorf("video url = %s", first.VideoURL)
	}

	job, _ := e.jobs.Get("job-1")
	if job.Status != types.StatusCompleted {
		t.Fatalf("job status = %s, want completed", job.Status)
	}

	if len(e.notifier.payloads) != 1 {
		t.Fatalf("webhook calls = %d, want 1", len(e.notifier.payloads))
	}
	if _, ok := e.notifier.payloads[0].(types.PipelineResult); !ok {
		t.Fatalf("webhook payload type = %T", e.notifier.payloads[0])
	}

	// Both clips upload a video and a thumbnail; subtitles upload when present.
	if len(e.store.uploads) < 4 {
		t.Fatalf("uploads = %v", e.store.uploads)
	}
}

func TestRun_UploadFailureFailsJob(t *testing.T) {
	e := newEnv(t)
	in := testInput(t)
	registerJob(e, in)
	e.store.failKeys["thumbnails/vid/vid_clip_0001.jpg"] = true

	_, err := e.uc.Run(context.Background(), in)
	if err == nil {
		t.Fatal("expected pipeline error")
	}
	perr, ok := err.(*PipelineError)
	if !ok {
		t.Fatalf("error type = %T", err)
	}
	if perr.Stage != types.StatusUploading {
		t.Fatalf("failed stage = %s, want uploading", perr.Stage)
	}

	job, _ := e.jobs.Get("job-1")
	if job.Status != types.StatusFailed {
		t.Fatalf("job status = %s, want failed", job.Status)
	}
	if job.Error == "" {
		t.Fatal("job error message missing")
	}

	if len(e.notifier.payloads) != 1 {
		t.Fatalf("webhook calls = %d, want 1", len(e.notifier.payloads))
	}
	fp, ok := e.notifier.payloads[0].(failurePayload)
	if !ok {
		t.Fatalf("payload type = %T", e.notifier.payloads[0])
	}
	if fp.Status != types.StatusFailed || fp.Error == "" {
		t.Fatalf("failure payload = %+v", fp)
	}
}

func TestRun_DownloadFailure(t *testing.T) {
	e := newEnv(t)
	in := testInput(t)
	registerJob(e, in)
	e.store.downloadErr = fmt.Errorf("no such key")

	_, err := e.uc.Run(context.Background(), in)
	perr, ok := err.(*PipelineError)
	if !ok {
		t.Fatalf("error = %v", err)
	}
	if perr.Stage != types.StatusDownloading {
		t.Fatalf("failed stage = %s, want downloading", perr.Stage)
	}

	job, _ := e.jobs.Get("job-1")
	if job.Status != types.StatusFailed {
		t.Fatalf("job status = %s", job.Status)
	}
	// No tagging or uploads should have happened.
	if len(e.tagger.seen) != 0 || len(e.store.uploads) != 0 {
		t.Fatal("later stages ran after a fatal failure")
	}
}

func TestRun_ShortVideoUsesFallbackClip(t *testing.T) {
	e := newEnv(t)
	in := testInput(t)
	registerJob(e, in)

	// A 2 second video with one short scene yields no clips from the
	// segmenter; the whole-video fallback must kick in.
	e.uc = New(Deps{
		Encoder:     &fakeEncoder{duration: 2},
		Scenes:      &fakeScenes{boundaries: []types.SceneBoundary{{Start: 0, End: 2, Duration: 2}}},
		Transcriber: &fakeTranscriber{transcript: types.Transcript{}},
		Tagger:      e.tagger,
		Embedder:    fakeEmbedder{},
		Store:       e.store,
		Jobs:        e.jobs,
		Notifier:    e.notifier,
		Log:         logger.Discard(),
	})
	e.uc.UploadRetry = retry.Policy{MaxAttempts: 1, InitialInterval: time.Millisecond}

	result, err := e.uc.Run(context.Background(), in)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(result.Clips) != 1 {
		t.Fatalf("clips = %d, want single fallback clip", len(result.Clips))
	}
	clip := result.Clips[0]
	if clip.Start != 0 || clip.End != 2 {
		t.Fatalf("fallback clip = [%v, %v], want [0, 2]", clip.Start, clip.End)
	}
}
