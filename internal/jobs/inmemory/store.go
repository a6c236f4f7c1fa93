package inmemory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dvloznov/cellsense/internal/jobs"
)

// Store holds job state in process memory. Jobs are kept by value, so a job
// returned from the store can be mutated freely by the caller.
type Store struct {
	mu   sync.RWMutex
	byID map[string]jobs.ArchiveDatasetJob
}

// NewStore returns an empty job store.
func NewStore() *Store {
	return &Store{byID: make(map[string]jobs.ArchiveDatasetJob)}
}

// SaveJob inserts or replaces the job under its ID.
func (s *Store) SaveJob(ctx context.Context, job *jobs.ArchiveDatasetJob) error {
	if job.JobID == "" {
		return errors.New("Store.SaveJob: empty job ID")
	}

	s.mu.Lock()
	s.byID[job.JobID] = *job
	s.mu.Unlock()
	return nil
}

// GetJob returns a copy of the job, or an error wrapping jobs.ErrJobNotFound.
func (s *Store) GetJob(ctx context.Context, jobID string) (*jobs.ArchiveDatasetJob, error) {
	s.mu.RLock()
	job, ok := s.byID[jobID]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("Store.GetJob %s: %w", jobID, jobs.ErrJobNotFound)
	}
	return &job, nil
}

// ListJobs returns copies of the jobs matching filter, newest first.
func (s *Store) ListJobs(ctx context.Context, filter jobs.JobFilter) ([]*jobs.ArchiveDatasetJob, error) {
	s.mu.RLock()
	matched := make([]*jobs.ArchiveDatasetJob, 0, len(s.byID))
	for _, job := range s.byID {
		if filter.Match(&job) {
			matched = append(matched, &job)
		}
	}
	s.mu.RUnlock()

	return filter.Page(matched), nil
}

// UpdateJobStatus sets the status of a stored job. An empty errorMsg leaves
// the recorded error untouched.
func (s *Store) UpdateJobStatus(ctx context.Context, jobID string, status jobs.JobStatus, errorMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.byID[jobID]
	if !ok {
		return fmt.Errorf("Store.UpdateJobStatus %s: %w", jobID, jobs.ErrJobNotFound)
	}
	job.Status = status
	if errorMsg != "" {
		job.Error = errorMsg
	}
	s.byID[jobID] = job
	return nil
}

var _ jobs.JobStore = (*Store)(nil)
