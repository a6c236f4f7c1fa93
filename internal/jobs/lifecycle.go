package jobs

import (
	"errors"
	"sort"
	"time"
)

// ErrJobNotFound is returned by job stores for an unknown job ID.
var ErrJobNotFound = errors.New("job not found")

// Begin marks the start of one attempt.
func (j *ArchiveDatasetJob) Begin(now time.Time) {
	j.Status = JobStatusRunning
	j.StartedAt = &now
	j.CompletedAt = nil
}

// Finish records the outcome of the current attempt and reports whether the
// job has retries left. When it does, RetryCount is already incremented and
// the status is JobStatusRetrying.
func (j *ArchiveDatasetJob) Finish(err error, now time.Time) (retry bool) {
	j.CompletedAt = &now
	if err == nil {
		j.Status = JobStatusCompleted
		j.Error = ""
		return false
	}

	j.Error = err.Error()
	if j.RetryCount >= j.MaxRetries {
		j.Status = JobStatusFailed
		return false
	}
	j.RetryCount++
	j.Status = JobStatusRetrying
	return true
}

// Match reports whether job satisfies the dataset and status criteria.
func (f JobFilter) Match(job *ArchiveDatasetJob) bool {
	if f.DatasetID != "" && job.DatasetID != f.DatasetID {
		return false
	}
	return f.Status == "" || job.Status == f.Status
}

// Page sorts list newest first, ties broken by job ID, then applies Offset
// and Limit. list is reordered in place.
func (f JobFilter) Page(list []*ArchiveDatasetJob) []*ArchiveDatasetJob {
	sort.Slice(list, func(a, b int) bool {
		if !list[a].CreatedAt.Equal(list[b].CreatedAt) {
			return list[a].CreatedAt.After(list[b].CreatedAt)
		}
		return list[a].JobID < list[b].JobID
	})

	list = list[min(max(f.Offset, 0), len(list)):]
	if f.Limit > 0 && f.Limit < len(list) {
		list = list[:f.Limit]
	}
	return list
}
