// Package pipeline wires adapters to the usecase and runs one job
// end-to-end. The HTTP service and the CLI both build on it.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/clipforge/clipforge/internal/jobstore"
	"github.com/clipforge/clipforge/internal/ports"
	"github.com/clipforge/clipforge/internal/ports/adapters/aiclient"
	"github.com/clipforge/clipforge/internal/ports/adapters/ffmpeg"
	"github.com/clipforge/clipforge/internal/ports/adapters/objstore"
	"github.com/clipforge/clipforge/internal/ports/adapters/scenedetect"
	"github.com/clipforge/clipforge/internal/transcribe"
	"github.com/clipforge/clipforge/internal/types"
	"github.com/clipforge/clipforge/internal/usecase"
	"github.com/clipforge/clipforge/internal/webhook"
)

type Config struct {
	SourceID   string
	VideoKey   string
	WebhookURL string
	Language   string

	MinClipDuration float64
	MaxClipDuration float64
	MinSceneLength  float64

	// WorkDir is the base directory for per-job temp files. Empty defaults
	// to the system temp dir.
	WorkDir string

	FFmpegPath  string
	FFprobePath string

	AIAPIKey       string
	AIBaseURL      string
	AIAllowedHosts []string

	StoreEndpoint  string
	StoreBucket    string
	StoreAccessKey string
	StoreSecretKey string
	StoreRegion    string
	StorePublicURL string

	WebhookSecret string
}

// ConfigFromEnv builds the deployment-level config from environment
// variables. Per-job fields (source, video key, durations) are left zero for
// the caller to fill in.
func ConfigFromEnv() (Config, error) {
	apiKey := os.Getenv("AI_API_KEY")
	if apiKey == "" {
		return Config{}, errors.New("AI_API_KEY is required (set it in .env)")
	}

	return Config{
		WorkDir: os.Getenv("CLIPFORGE_WORK_DIR"),

		FFmpegPath:  getenvDefault("FFMPEG_PATH", "ffmpeg"),
		FFprobePath: getenvDefault("FFPROBE_PATH", "ffprobe"),

		AIAPIKey:       apiKey,
		AIBaseURL:      getenvDefault("AI_BASE_URL", "https://api.openai.com"),
		AIAllowedHosts: splitHosts(os.Getenv("AI_ALLOWED_HOSTS")),

		StoreEndpoint:  os.Getenv("STORE_ENDPOINT"),
		StoreBucket:    os.Getenv("STORE_BUCKET"),
		StoreAccessKey: os.Getenv("STORE_ACCESS_KEY"),
		StoreSecretKey: os.Getenv("STORE_SECRET_KEY"),
		StoreRegion:    os.Getenv("STORE_REGION"),
		StorePublicURL: os.Getenv("STORE_PUBLIC_URL"),

		WebhookSecret: os.Getenv("WEBHOOK_SECRET"),
	}, nil
}

func splitHosts(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getenvDefault(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func (c Config) Validate() error {
	if c.SourceID == "" {
		return errors.New("source id is empty")
	}
	if c.VideoKey == "" {
		return errors.New("video key is empty")
	}
	if c.MinClipDuration <= 0 {
		return fmt.Errorf("min clip duration must be > 0")
	}
	if c.MaxClipDuration <= 0 {
		return fmt.Errorf("max clip duration must be > 0")
	}
	if c.MinClipDuration > c.MaxClipDuration {
		return fmt.Errorf("min clip duration must be <= max clip duration")
	}
	if c.AIAPIKey == "" {
		return errors.New("AI API key is required")
	}
	if c.StoreEndpoint == "" || c.StoreBucket == "" {
		return errors.New("object store endpoint and bucket are required")
	}
	return aiclient.ValidateBaseURL(c.AIBaseURL, c.AIAllowedHosts)
}

// Runner holds the wired pipeline; one Runner serves many jobs.
type Runner struct {
	uc   *usecase.Usecase
	jobs jobstore.Store
	cfg  Config
	log  *logrus.Entry
}

func NewRunner(cfg Config, jobs jobstore.Store, log *logrus.Entry) *Runner {
	ai := aiclient.New(cfg.AIAPIKey, cfg.AIBaseURL)
	enc := ffmpeg.New(cfg.FFmpegPath, cfg.FFprobePath)
	scenes := scenedetect.New(cfg.FFmpegPath, cfg.FFprobePath)
	if cfg.MinSceneLength > 0 {
		scenes.MinSceneLen = cfg.MinSceneLength
	}
	store := objstore.New(objstore.Config{
		Endpoint:  cfg.StoreEndpoint,
		Bucket:    cfg.StoreBucket,
		AccessKey: cfg.StoreAccessKey,
		SecretKey: cfg.StoreSecretKey,
		Region:    cfg.StoreRegion,
		PublicURL: cfg.StorePublicURL,
	}, log)

	uc := usecase.New(usecase.Deps{
		Encoder:     enc,
		Scenes:      scenes,
		Transcriber: transcribe.New(enc, ai, log),
		Tagger:      ai,
		Embedder:    ai,
		Store:       store,
		Jobs:        jobs,
		Notifier:    webhook.New(cfg.WebhookSecret, log),
		Log:         log,
	})
	return &Runner{uc: uc, jobs: jobs, cfg: cfg, log: log}
}

// Submit registers a new job and returns it without running anything.
func (r *Runner) Submit(sourceID string) (types.Job, error) {
	job := types.Job{
		JobID:     uuid.NewString(),
		SourceID:  sourceID,
		Status:    types.StatusPending,
		StartedAt: time.Now().UTC(),
	}
	if err := r.jobs.Put(job); err != nil {
		return types.Job{}, fmt.Errorf("register job: %w", err)
	}
	return job, nil
}

// Process runs one registered job to completion.
func (r *Runner) Process(ctx context.Context, job types.Job, cfg Config) (types.PipelineResult, error) {
	workDir := cfg.WorkDir
	if workDir == "" {
		workDir = os.TempDir()
	}
	return r.uc.Run(ctx, usecase.Input{
		JobID:       job.JobID,
		SourceID:    cfg.SourceID,
		VideoKey:    cfg.VideoKey,
		WebhookURL:  cfg.WebhookURL,
		Language:    cfg.Language,
		MinDuration: cfg.MinClipDuration,
		MaxDuration: cfg.MaxClipDuration,
		WorkDir:     workDir,
	})
}

// Run is the single-shot entry point used by the CLI: validate, register,
// process.
func Run(ctx context.Context, cfg Config, log *logrus.Entry) (types.PipelineResult, error) {
	if err := cfg.Validate(); err != nil {
		return types.PipelineResult{}, err
	}
	jobs := jobstore.NewMemoryStore()
	runner := NewRunner(cfg, jobs, log)
	job, err := runner.Submit(cfg.SourceID)
	if err != nil {
		return types.PipelineResult{}, err
	}
	return runner.Process(ctx, job, cfg)
}

var (
	_ ports.MediaEncoder  = (*ffmpeg.Adapter)(nil)
	_ ports.SceneDetector = (*scenedetect.Adapter)(nil)
	_ ports.SpeechAPI     = (*aiclient.Client)(nil)
	_ ports.Tagger        = (*aiclient.Client)(nil)
	_ ports.Embedder      = (*aiclient.Client)(nil)
	_ ports.ObjectStore   = (*objstore.Client)(nil)
)
