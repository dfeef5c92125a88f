// Package usecase sequences one job through the whole pipeline: download,
// transcribe, segment, extract, tag, upload, analyze, group, notify.
package usecase

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/clipforge/clipforge/internal/domain/errordetect"
	"github.com/clipforge/clipforge/internal/domain/quality"
	"github.com/clipforge/clipforge/internal/domain/segmenter"
	"github.com/clipforge/clipforge/internal/domain/similarity"
	"github.com/clipforge/clipforge/internal/extract"
	"github.com/clipforge/clipforge/internal/jobstore"
	"github.com/clipforge/clipforge/internal/ports"
	"github.com/clipforge/clipforge/internal/retry"
	"github.com/clipforge/clipforge/internal/types"
)

// Transcriber is the size-aware transcription layer (internal/transcribe).
type Transcriber interface {
	Transcribe(ctx context.Context, videoPath, workDir, language string) (types.Transcript, error)
}

// Notifier delivers the completion callback (internal/webhook).
type Notifier interface {
	Notify(ctx context.Context, url string, payload any) error
}

type Deps struct {
	Encoder     ports.MediaEncoder
	Scenes      ports.SceneDetector
	Transcriber Transcriber
	Tagger      ports.Tagger
	Embedder    ports.Embedder
	Store       ports.ObjectStore
	Jobs        jobstore.Store
	Notifier    Notifier
	Log         *logrus.Entry
}

type Usecase struct {
	d Deps

	extractor *extract.Extractor
	detector  *errordetect.Detector
	rater     *quality.Rater
	grouper   *similarity.Grouper

	// TagWorkers and UploadWorkers bound concurrent external calls.
	TagWorkers    int
	UploadWorkers int
	UploadRetry   retry.Policy
}

func New(d Deps) *Usecase {
	return &Usecase{
		d:             d,
		extractor:     extract.New(d.Encoder, d.Log),
		detector:      errordetect.New(d.Encoder, d.Log),
		rater:         quality.New(d.Encoder, d.Log),
		grouper:       similarity.New(d.Embedder, d.Log),
		TagWorkers:    3,
		UploadWorkers: 4,
		UploadRetry:   retry.Default(),
	}
}

type Input struct {
	JobID       string
	SourceID    string
	VideoKey    string
	WebhookURL  string
	Language    string
	MinDuration float64
	MaxDuration float64
	WorkDir     string
}

// PipelineError marks a fatal stage failure; the job is already failed when
// it propagates.
type PipelineError struct {
	Stage types.Status
	Err   error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline stage %s: %v", e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// failurePayload is the callback body for failed jobs.
type failurePayload struct {
	JobID    string       `json:"job_id"`
	SourceID string       `json:"source_id"`
	Status   types.Status `json:"status"`
	Error    string       `json:"error"`
}

// Run executes the full pipeline for one job. The job must already be
// registered in the store. Temp files live under a per-job directory that is
// removed on return.
func (u *Usecase) Run(ctx context.Context, in Input) (types.PipelineResult, error) {
	started := time.Now()
	log := u.d.Log.WithFields(logrus.Fields{"job_id": in.JobID, "source_id": in.SourceID})

	workDir := filepath.Join(in.WorkDir, in.JobID)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return types.PipelineResult{}, u.fail(ctx, in, types.StatusPending, fmt.Errorf("create work dir: %w", err))
	}
	defer os.RemoveAll(workDir)

	// Download.
	if err := u.transition(in.JobID, types.StatusDownloading); err != nil {
		return types.PipelineResult{}, err
	}
	videoPath := filepath.Join(workDir, "source.mp4")
	bytes, err := u.d.Store.Download(ctx, in.VideoKey, videoPath)
	if err != nil {
		return types.PipelineResult{}, u.fail(ctx, in, types.StatusDownloading, err)
	}
	log.WithField("bytes", bytes).Info("video downloaded")

	videoDuration, err := u.d.Encoder.ProbeDuration(ctx, videoPath)
	if err != nil {
		return types.PipelineResult{}, u.fail(ctx, in, types.StatusDownloading, err)
	}

	// Transcribe.
	if err := u.transition(in.JobID, types.StatusTranscribing); err != nil {
		return types.PipelineResult{}, err
	}
	transcript, err := u.d.Transcriber.Transcribe(ctx, videoPath, workDir, in.Language)
	if err != nil {
		return types.PipelineResult{}, u.fail(ctx, in, types.StatusTranscribing, err)
	}

	// Scenes.
	if err := u.transition(in.JobID, types.StatusDetectingScenes); err != nil {
		return types.PipelineResult{}, err
	}
	scenes, err := u.d.Scenes.DetectScenes(ctx, videoPath)
	if err != nil {
		return types.PipelineResult{}, u.fail(ctx, in, types.StatusDetectingScenes, err)
	}
	if len(scenes) == 0 {
		scenes = []types.SceneBoundary{{Start: 0, End: videoDuration, Duration: videoDuration}}
	}

	// Split.
	if err := u.transition(in.JobID, types.StatusSplitting); err != nil {
		return types.PipelineResult{}, err
	}
	defs := segmenter.BuildClips(scenes, transcript.Segments, in.MinDuration, in.MaxDuration, in.SourceID)
	if len(defs) == 0 {
		defs = []types.ClipDefinition{segmenter.FallbackClip(videoDuration, in.MaxDuration, transcript.Segments, in.SourceID)}
		log.Info("segmentation yielded no clips, using whole-video fallback")
	}

	clips := u.extractor.ExtractAll(ctx, videoPath, workDir, defs, transcript.Segments)
	if len(clips) == 0 {
		return types.PipelineResult{}, u.fail(ctx, in, types.StatusSplitting, fmt.Errorf("no clips could be extracted"))
	}
	log.WithField("clips", len(clips)).Info("clips extracted")

	// Tag.
	if err := u.transition(in.JobID, types.StatusTagging); err != nil {
		return types.PipelineResult{}, err
	}
	tags := u.tagClips(ctx, clips, videoDuration)

	// Upload, all or nothing.
	if err := u.transition(in.JobID, types.StatusUploading); err != nil {
		return types.PipelineResult{}, err
	}
	uploads, err := u.uploadClips(ctx, in.SourceID, clips)
	if err != nil {
		return types.PipelineResult{}, u.fail(ctx, in, types.StatusUploading, err)
	}

	// Analysis never fails the job past this point; uploads are durable.
	analyses := u.detector.AnalyzeClips(ctx, clips, transcript.Words)
	ratings := u.rater.RateClips(ctx, clips, transcript.Words, analyses)

	groups, embeddings, err := u.grouper.FindGroups(ctx, clips)
	if err != nil {
		log.WithError(err).Warn("similarity grouping failed, continuing without groups")
		groups, embeddings = nil, nil
	}

	result := u.buildResult(in, clips, tags, uploads, analyses, ratings, groups, embeddings, videoDuration, started)

	if err := u.d.Jobs.SetStatus(in.JobID, types.StatusCompleted); err != nil {
		log.WithError(err).Warn("failed to record completion")
	}

	if in.WebhookURL != "" {
		if err := u.d.Notifier.Notify(ctx, in.WebhookURL, result); err != nil {
			log.WithError(err).Warn("completion webhook undelivered")
		}
	}
	return result, nil
}

func (u *Usecase) transition(jobID string, status types.Status) error {
	if err := u.d.Jobs.SetStatus(jobID, status); err != nil {
		return fmt.Errorf("set job status %s: %w", status, err)
	}
	return nil
}

// fail records the failure, fires the failure callback, and wraps the cause.
func (u *Usecase) fail(ctx context.Context, in Input, stage types.Status, cause error) error {
	perr := &PipelineError{Stage: stage, Err: cause}
	if err := u.d.Jobs.SetError(in.JobID, perr.Error()); err != nil {
		u.d.Log.WithField("job_id", in.JobID).WithError(err).Warn("failed to record job failure")
	}
	if in.WebhookURL != "" {
		payload := failurePayload{
			JobID:    in.JobID,
			SourceID: in.SourceID,
			Status:   types.StatusFailed,
			Error:    perr.Error(),
		}
		if err := u.d.Notifier.Notify(ctx, in.WebhookURL, payload); err != nil {
			u.d.Log.WithField("job_id", in.JobID).WithError(err).Warn("failure webhook undelivered")
		}
	}
	return perr
}

// tagClips classifies all clips with bounded concurrency. A failed call
// degrades that clip to b_roll instead of failing the batch.
func (u *Usecase) tagClips(ctx context.Context, clips []types.ClipResult, videoDuration float64) []types.TagResult {
	workers := u.TagWorkers
	if workers <= 0 {
		workers = 3
	}

	out := make([]types.TagResult, len(clips))
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for i, clip := range clips {
		wg.Add(1)
		go func(i int, clip types.ClipResult) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			tag, err := u.d.Tagger.TagClip(ctx, clipContext(clips, i, videoDuration))
			if err != nil {
				u.d.Log.WithField("clip_id", clip.ClipID).WithError(err).Warn("tagging failed, defaulting to b_roll")
				tag = types.TagResult{
					ClipID:            clip.ClipID,
					PrimaryTag:        types.TagBRoll,
					PrimaryConfidence: 0.3,
					AllTags:           []types.TagScore{{Tag: types.TagBRoll, Confidence: 0.3}},
					Reasoning:         "tagging call failed",
				}
			}
			out[i] = tag
		}(i, clip)
	}
	wg.Wait()
	return out
}

func clipContext(clips []types.ClipResult, i int, videoDuration float64) types.ClipContext {
	clip := clips[i]
	cc := types.ClipContext{
		ClipID:      clip.ClipID,
		Transcript:  clip.Transcript,
		Duration:    clip.Duration,
		IsFirstClip: i == 0,
		IsLastClip:  i == len(clips)-1,
	}
	if videoDuration > 0 {
		cc.PositionInVideo = clip.Start / videoDuration
	}
	if i > 0 {
		cc.PreviousTranscript = clips[i-1].Transcript
	}
	if i < len(clips)-1 {
		cc.NextTranscript = clips[i+1].Transcript
	}
	return cc
}

type clipUpload struct {
	VideoKey     string
	VideoURL     string
	ThumbnailKey string
	ThumbnailURL string
}

// uploadClips pushes every clip's video and thumbnail, each object with its
// own bounded retries. One permanently failed object fails the whole batch.
func (u *Usecase) uploadClips(ctx context.Context, sourceID string, clips []types.ClipResult) ([]clipUpload, error) {
	workers := u.UploadWorkers
	if workers <= 0 {
		workers = 4
	}

	out := make([]clipUpload, len(clips))
	errs := make([]error, len(clips))
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for i, clip := range clips {
		wg.Add(1)
		go func(i int, clip types.ClipResult) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			up := clipUpload{
				VideoKey:     fmt.Sprintf("clips/%s/%s.mp4", sourceID, clip.ClipID),
				ThumbnailKey: fmt.Sprintf("thumbnails/%s/%s.jpg", sourceID, clip.ClipID),
			}

			var err error
			up.VideoURL, err = u.uploadWithRetry(ctx, clip.VideoPath, up.VideoKey)
			if err != nil {
				errs[i] = fmt.Errorf("upload %s video: %w", clip.ClipID, err)
				return
			}
			up.ThumbnailURL, err = u.uploadWithRetry(ctx, clip.ThumbnailPath, up.ThumbnailKey)
			if err != nil {
				errs[i] = fmt.Errorf("upload %s thumbnail: %w", clip.ClipID, err)
				return
			}
			if clip.SubtitlePath != "" {
				key := fmt.Sprintf("subtitles/%s/%s.srt", sourceID, clip.ClipID)
				if _, err := u.uploadWithRetry(ctx, clip.SubtitlePath, key); err != nil {
					errs[i] = fmt.Errorf("upload %s subtitles: %w", clip.ClipID, err)
					return
				}
			}
			out[i] = up
		}(i, clip)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (u *Usecase) uploadWithRetry(ctx context.Context, localPath, key string) (string, error) {
	var url string
	err := retry.Do(ctx, u.UploadRetry, func() error {
		var upErr error
		url, upErr = u.d.Store.Upload(ctx, localPath, key)
		return upErr
	})
	return url, err
}

func (u *Usecase) buildResult(
	in Input,
	clips []types.ClipResult,
	tags []types.TagResult,
	uploads []clipUpload,
	analyses []types.ErrorAnalysis,
	ratings []types.QualityRating,
	groups []types.ClipGroup,
	embeddings []types.ClipEmbedding,
	videoDuration float64,
	started time.Time,
) types.PipelineResult {
	analysisByClip := make(map[string]types.ErrorAnalysis, len(analyses))
	for _, a := range analyses {
		analysisByClip[a.ClipID] = a
	}
	ratingByClip := make(map[string]types.QualityRating, len(ratings))
	for _, r := range ratings {
		ratingByClip[r.ClipID] = r
	}
	vectorByClip := make(map[string][]float64, len(embeddings))
	for _, e := range embeddings {
		vectorByClip[e.ClipID] = e.Vector
	}

	now := time.Now()
	processed := make([]types.ProcessedClip, len(clips))
	for i, clip := range clips {
		p := types.ProcessedClip{
			ClipID:       clip.ClipID,
			SourceID:     in.SourceID,
			Start:        clip.Start,
			End:          clip.End,
			Duration:     clip.Duration,
			Transcript:   clip.Transcript,
			VideoKey:     uploads[i].VideoKey,
			VideoURL:     uploads[i].VideoURL,
			ThumbnailKey: uploads[i].ThumbnailKey,
			ThumbnailURL: uploads[i].ThumbnailURL,
			PrimaryTag:   tags[i].PrimaryTag,
			Tags:         tags[i].AllTags,
			Embedding:    vectorByClip[clip.ClipID],
			CreatedAt:    now,
		}
		if a, ok := analysisByClip[clip.ClipID]; ok {
			p.ErrorAnalysis = &a
		}
		if r, ok := ratingByClip[clip.ClipID]; ok {
			p.Quality = &r
		}
		processed[i] = p
	}

	return types.PipelineResult{
		JobID:          in.JobID,
		SourceID:       in.SourceID,
		Status:         types.StatusCompleted,
		TotalDuration:  videoDuration,
		Clips:          processed,
		Groups:         groups,
		ProcessingTime: time.Since(started).Seconds(),
	}
}
