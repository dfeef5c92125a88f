// Package api is the HTTP job surface: submit a video for processing and
// poll job state.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/clipforge/clipforge/internal/jobstore"
	"github.com/clipforge/clipforge/internal/pipeline"
	"github.com/clipforge/clipforge/internal/types"
)

type Server struct {
	runner   *pipeline.Runner
	jobs     jobstore.Store
	baseCfg  pipeline.Config
	validate *validator.Validate
	log      *logrus.Entry

	router chi.Router
}

// New builds the server. baseCfg carries the deployment-level settings
// (store credentials, AI endpoint); per-request fields are merged in from the
// request body.
func New(runner *pipeline.Runner, jobs jobstore.Store, baseCfg pipeline.Config, log *logrus.Entry) *Server {
	s := &Server{
		runner:   runner,
		jobs:     jobs,
		baseCfg:  baseCfg,
		validate: validator.New(),
		log:      log,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Post("/process", s.handleProcess)
	r.Route("/jobs", func(r chi.Router) {
		r.Get("/", s.handleListJobs)
		r.Get("/{jobID}", s.handleGetJob)
		r.Delete("/{jobID}", s.handleDeleteJob)
	})
	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type processRequest struct {
	SourceID        string  `json:"source_id" validate:"required"`
	VideoKey        string  `json:"video_key" validate:"required"`
	WebhookURL      string  `json:"webhook_url" validate:"omitempty,url"`
	Language        string  `json:"language" validate:"omitempty,len=2"`
	MinClipDuration float64 `json:"min_clip_duration" validate:"omitempty,gt=0"`
	MaxClipDuration float64 `json:"max_clip_duration" validate:"omitempty,gt=0"`
	MinSceneLength  float64 `json:"min_scene_length" validate:"omitempty,gt=0"`
}

type processResponse struct {
	JobID    string       `json:"job_id"`
	SourceID string       `json:"source_id"`
	Status   types.Status `json:"status"`
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if req.MinClipDuration == 0 {
		req.MinClipDuration = 3.0
	}
	if req.MaxClipDuration == 0 {
		req.MaxClipDuration = 20.0
	}
	if req.MinClipDuration > req.MaxClipDuration {
		s.writeError(w, http.StatusUnprocessableEntity, "min_clip_duration must be <= max_clip_duration")
		return
	}

	job, err := s.runner.Submit(req.SourceID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to register job")
		return
	}

	cfg := s.baseCfg
	cfg.SourceID = req.SourceID
	cfg.VideoKey = req.VideoKey
	cfg.WebhookURL = req.WebhookURL
	cfg.Language = req.Language
	cfg.MinClipDuration = req.MinClipDuration
	cfg.MaxClipDuration = req.MaxClipDuration
	cfg.MinSceneLength = req.MinSceneLength

	// The request returns immediately; the pipeline runs in the background
	// and final state is delivered via the job endpoints and the webhook.
	go func() {
		if _, err := s.runner.Process(context.Background(), job, cfg); err != nil {
			s.log.WithField("job_id", job.JobID).WithError(err).Error("pipeline run failed")
		}
	}()

	s.writeJSON(w, http.StatusAccepted, processResponse{
		JobID:    job.JobID,
		SourceID: job.SourceID,
		Status:   job.Status,
	})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobs.Get(chi.URLParam(r, "jobID"))
	if errors.Is(err, jobstore.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to load job")
		return
	}
	s.writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	status := types.Status(r.URL.Query().Get("status"))
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	jobs, err := s.jobs.List(status, limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	err := s.jobs.Delete(chi.URLParam(r, "jobID"))
	switch {
	case errors.Is(err, jobstore.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "job not found")
	case errors.Is(err, jobstore.ErrNotFinished):
		s.writeError(w, http.StatusConflict, "job is still running")
	case err != nil:
		s.writeError(w, http.StatusInternalServerError, "failed to delete job")
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.WithError(err).Warn("failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
