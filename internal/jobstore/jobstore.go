// Package jobstore is the in-process job registry. The orchestrator and the
// HTTP surface share one Store; reads are concurrent, writes single-writer.
package jobstore

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/clipforge/clipforge/internal/types"
)

var ErrNotFound = errors.New("job not found")

// ErrNotFinished is returned when deleting a job that is still running.
var ErrNotFinished = errors.New("job is not finished")

type Store interface {
	Put(job types.Job) error
	Get(jobID string) (types.Job, error)
	SetStatus(jobID string, status types.Status) error
	SetError(jobID string, message string) error
	List(status types.Status, limit int) ([]types.Job, error)
	Delete(jobID string) error
}

// MemoryStore keeps jobs for the lifetime of the process only.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]types.Job
	now  func() time.Time
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs: make(map[string]types.Job),
		now:  time.Now,
	}
}

func (s *MemoryStore) Put(job types.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.JobID] = job
	return nil
}

func (s *MemoryStore) Get(jobID string) (types.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return types.Job{}, ErrNotFound
	}
	return job, nil
}

func (s *MemoryStore) SetStatus(jobID string, status types.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return ErrNotFound
	}
	job.Status = status
	if status.Terminal() {
		done := s.now()
		job.CompletedAt = &done
	}
	s.jobs[jobID] = job
	return nil
}

func (s *MemoryStore) SetError(jobID string, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return ErrNotFound
	}
	job.Status = types.StatusFailed
	job.Error = message
	done := s.now()
	job.CompletedAt = &done
	s.jobs[jobID] = job
	return nil
}

// List returns jobs sorted by start time, newest first. An empty status
// matches everything; limit <= 0 means no limit.
func (s *MemoryStore) List(status types.Status, limit int) ([]types.Job, error) {
	s.mu.RLock()
	out := make([]types.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		if status != "" && job.Status != status {
			continue
		}
		out = append(out, job)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Delete removes a finished job. Running jobs cannot be removed.
func (s *MemoryStore) Delete(jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return ErrNotFound
	}
	if !job.Status.Terminal() {
		return ErrNotFinished
	}
	delete(s.jobs, jobID)
	return nil
}
