package jobs

import (
	"errors"
	"testing"
	"time"
)

func TestArchiveDatasetJob_Finish(t *testing.T) {
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		job         ArchiveDatasetJob
		err         error
		wantRetry   bool
		wantStatus  JobStatus
		wantRetries int
		wantError   string
	}{
		{
			name:       "success clears previous error",
			job:        ArchiveDatasetJob{Error: "old", MaxRetries: 3},
			wantStatus: JobStatusCompleted,
		},
		{
			name:        "failure with retries left",
			job:         ArchiveDatasetJob{RetryCount: 1, MaxRetries: 3},
			err:         errors.New("bucket unavailable"),
			wantRetry:   true,
			wantStatus:  JobStatusRetrying,
			wantRetries: 2,
			wantError:   "bucket unavailable",
		},
		{
			name:        "failure with retries exhausted",
			job:         ArchiveDatasetJob{RetryCount: 3, MaxRetries: 3},
			err:         errors.New("bucket unavailable"),
			wantStatus:  JobStatusFailed,
			wantRetries: 3,
			wantError:   "bucket unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := tt.job
			job.Begin(now.Add(-time.Minute))
			if job.Status != JobStatusRunning || job.CompletedAt != nil {
				t.Fatalf("after Begin: status=%s completed=%v", job.Status, job.CompletedAt)
			}

			retry := job.Finish(tt.err, now)
			if retry != tt.wantRetry {
				t.Errorf("Finish() retry = %v, want %v", retry, tt.wantRetry)
			}
			if job.Status != tt.wantStatus {
				t.Errorf("Status = %s, want %s", job.Status, tt.wantStatus)
			}
			if job.RetryCount != tt.wantRetries {
				t.Errorf("RetryCount = %d, want %d", job.RetryCount, tt.wantRetries)
			}
			if job.Error != tt.wantError {
				t.Errorf("Error = %q, want %q", job.Error, tt.wantError)
			}
			if job.CompletedAt == nil || !job.CompletedAt.Equal(now) {
				t.Errorf("CompletedAt = %v, want %v", job.CompletedAt, now)
			}
		})
	}
}

func TestJobFilter_Page(t *testing.T) {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	seed := func() []*ArchiveDatasetJob {
		return []*ArchiveDatasetJob{
			{JobID: "b", CreatedAt: base},
			{JobID: "c", CreatedAt: base.Add(time.Minute)},
			{JobID: "a", CreatedAt: base},
		}
	}

	tests := []struct {
		name   string
		filter JobFilter
		want   []string
	}{
		{name: "newest first then id", want: []string{"c", "a", "b"}},
		{name: "limit", filter: JobFilter{Limit: 2}, want: []string{"c", "a"}},
		{name: "offset and limit", filter: JobFilter{Offset: 1, Limit: 1}, want: []string{"a"}},
		{name: "offset past end", filter: JobFilter{Offset: 9}, want: []string{}},
		{name: "negative offset", filter: JobFilter{Offset: -1}, want: []string{"c", "a", "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.filter.Page(seed())
			if len(got) != len(tt.want) {
				t.Fatalf("Page() returned %d jobs, want %d", len(got), len(tt.want))
			}
			for i, id := range tt.want {
				if got[i].JobID != id {
					t.Errorf("job[%d] = %s, want %s", i, got[i].JobID, id)
				}
			}
		})
	}
}

func TestJobFilter_Match(t *testing.T) {
	job := &ArchiveDatasetJob{DatasetID: "d1", Status: JobStatusFailed}

	tests := []struct {
		name   string
		filter JobFilter
		want   bool
	}{
		{name: "empty filter", want: true},
		{name: "dataset hit", filter: JobFilter{DatasetID: "d1"}, want: true},
		{name: "dataset miss", filter: JobFilter{DatasetID: "d2"}},
		{name: "status hit", filter: JobFilter{Status: JobStatusFailed}, want: true},
		{name: "status miss", filter: JobFilter{Status: JobStatusCompleted}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Match(job); got != tt.want {
				t.Errorf("Match() = %v, want %v", got, tt.want)
			}
		})
	}
}
