package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/clipforge/clipforge/internal/jobstore"
	"github.com/clipforge/clipforge/internal/logger"
	"github.com/clipforge/clipforge/internal/pipeline"
	"github.com/clipforge/clipforge/internal/types"
)

func testServer(t *testing.T) (*Server, *jobstore.MemoryStore) {
	t.Helper()
	jobs := jobstore.NewMemoryStore()
	cfg := pipeline.Config{
		MinClipDuration: 3,
		MaxClipDuration: 20,
		AIAPIKey:        "test",
		StoreEndpoint:   "https://store.invalid",
		StoreBucket:     "clips",
	}
	runner := pipeline.NewRunner(cfg, jobs, logger.Discard())
	return New(runner, jobs, cfg, logger.Discard()), jobs
}

func TestHealth(t *testing.T) {
	t.Parallel()

	s, _ := testServer(t)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestProcess_ValidationErrors(t *testing.T) {
	t.Parallel()

	s, _ := testServer(t)
	tests := []struct {
		name string
		body string
		want int
	}{
		{name: "not json", body: "{", want: http.StatusBadRequest},
		{name: "missing source id", body: `{"video_key": "v.mp4"}`, want: http.StatusUnprocessableEntity},
		{name: "missing video key", body: `{"source_id": "vid"}`, want: http.StatusUnprocessableEntity},
		{name: "bad webhook url", body: `{"source_id": "vid", "video_key": "v.mp4", "webhook_url": "not a url"}`, want: http.StatusUnprocessableEntity},
		{name: "min above max", body: `{"source_id": "vid", "video_key": "v.mp4", "min_clip_duration": 30, "max_clip_duration": 10}`, want: http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/process", strings.NewReader(tt.body))
			s.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.want, rec.Body)
			}
		})
	}
}

func TestProcess_RegistersJob(t *testing.T) {
	t.Parallel()

	s, jobs := testServer(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/process",
		strings.NewReader(`{"source_id": "vid", "video_key": "videos/vid.mp4"}`))
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	var resp processResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.JobID == "" || resp.SourceID != "vid" {
		t.Fatalf("response = %+v", resp)
	}

	if _, err := jobs.Get(resp.JobID); err != nil {
		t.Fatalf("job not registered: %v", err)
	}
}

func TestJobEndpoints(t *testing.T) {
	t.Parallel()

	s, jobs := testServer(t)
	jobs.Put(types.Job{JobID: "done-1", SourceID: "vid", Status: types.StatusCompleted, StartedAt: time.Now()})
	jobs.Put(types.Job{JobID: "run-1", SourceID: "vid", Status: types.StatusTagging, StartedAt: time.Now().Add(time.Minute)})

	t.Run("get job", func(t *testing.T) {
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/done-1", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var job types.Job
		json.Unmarshal(rec.Body.Bytes(), &job)
		if job.Status != types.StatusCompleted {
			t.Fatalf("job = %+v", job)
		}
	})

	t.Run("get missing job", func(t *testing.T) {
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/nope", nil))
		if rec.Code != http.StatusNotFound {
			t.Fatalf("status = %d", rec.Code)
		}
	})

	t.Run("list with status filter", func(t *testing.T) {
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/?status=tagging", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var resp struct {
			Count int `json:"count"`
		}
		json.Unmarshal(rec.Body.Bytes(), &resp)
		if resp.Count != 1 {
			t.Fatalf("count = %d, want 1", resp.Count)
		}
	})

	t.Run("bad limit", func(t *testing.T) {
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/?limit=zero", nil))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d", rec.Code)
		}
	})

	t.Run("delete running job conflicts", func(t *testing.T) {
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/jobs/run-1", nil))
		if rec.Code != http.StatusConflict {
			t.Fatalf("status = %d", rec.Code)
		}
	})

	t.Run("delete finished job", func(t *testing.T) {
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/jobs/done-1", nil))
		if rec.Code != http.StatusNoContent {
			t.Fatalf("status = %d", rec.Code)
		}
	})
}
