package inmemory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dvloznov/cellsense/internal/jobs"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultWorkers is how many goroutines Start runs unless WithWorkers says
// otherwise.
const DefaultWorkers = 5

// ErrQueueClosed is returned once Stop or Close has been called.
var ErrQueueClosed = errors.New("inmemory: queue is closed")

// Queue publishes and runs archive jobs inside the API process. A failed
// attempt is republished after RetryCount*backoff. Queued jobs are lost on
// restart, so this backend is meant for a single instance.
type Queue struct {
	pending chan *jobs.ArchiveDatasetJob
	done    chan struct{}
	running sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	store   jobs.JobStore
	workers int
	backoff time.Duration
	log     zerolog.Logger
	now     func() time.Time
	newID   func() string
}

// NewQueue returns a queue that buffers up to bufferSize unconsumed jobs.
// store may be nil, in which case job state is not recorded.
func NewQueue(bufferSize int, store jobs.JobStore) *Queue {
	return &Queue{
		pending: make(chan *jobs.ArchiveDatasetJob, bufferSize),
		done:    make(chan struct{}),
		store:   store,
		workers: DefaultWorkers,
		backoff: time.Second,
		log:     zerolog.Nop(),
		now:     time.Now,
		newID:   func() string { return uuid.New().String() },
	}
}

// WithWorkers overrides the worker count; n <= 0 is ignored.
func (q *Queue) WithWorkers(n int) *Queue {
	if n > 0 {
		q.workers = n
	}
	return q
}

// WithBackoff sets the base retry delay.
func (q *Queue) WithBackoff(d time.Duration) *Queue {
	q.backoff = d
	return q
}

// WithLogger attaches a logger for retry and persistence failures.
func (q *Queue) WithLogger(log zerolog.Logger) *Queue {
	q.log = log.With().Str("component", "job_queue").Logger()
	return q
}

func (q *Queue) isClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}

// PublishArchiveDataset fills job defaults, records the job and hands it to
// a worker. It blocks while the buffer is full.
func (q *Queue) PublishArchiveDataset(ctx context.Context, job *jobs.ArchiveDatasetJob) error {
	if q.isClosed() {
		return ErrQueueClosed
	}

	jobs.Prepare(job, q.newID)
	if q.store != nil {
		if err := q.store.SaveJob(ctx, job); err != nil {
			return fmt.Errorf("PublishArchiveDataset: %w", err)
		}
	}

	select {
	case q.pending <- job:
		return nil
	case <-q.done:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start launches the workers and returns immediately. Workers exit when ctx
// is cancelled or the queue is stopped.
func (q *Queue) Start(ctx context.Context, handler jobs.JobHandler) error {
	if q.isClosed() {
		return ErrQueueClosed
	}

	q.running.Add(q.workers)
	for range q.workers {
		go q.work(ctx, handler)
	}
	return nil
}

func (q *Queue) work(ctx context.Context, handler jobs.JobHandler) {
	defer q.running.Done()
	for {
		job, ok := q.next(ctx)
		if !ok {
			return
		}
		q.attempt(ctx, job, handler)
	}
}

func (q *Queue) next(ctx context.Context) (*jobs.ArchiveDatasetJob, bool) {
	select {
	case <-ctx.Done():
		return nil, false
	case <-q.done:
		return nil, false
	case job := <-q.pending:
		return job, job != nil
	}
}

func (q *Queue) attempt(ctx context.Context, job *jobs.ArchiveDatasetJob, handler jobs.JobHandler) {
	job.Begin(q.now())
	q.record(ctx, job)

	err := handler(ctx, job)
	retry := job.Finish(err, q.now())
	q.record(ctx, job)

	if retry {
		q.retryLater(ctx, *job)
	}
}

// retryLater republishes a copy of job so the worker's pointer is never
// shared with the next attempt.
func (q *Queue) retryLater(ctx context.Context, job jobs.ArchiveDatasetJob) {
	delay := time.Duration(job.RetryCount) * q.backoff
	time.AfterFunc(delay, func() {
		job.Status = jobs.JobStatusPending
		job.StartedAt = nil
		job.CompletedAt = nil
		if err := q.PublishArchiveDataset(ctx, &job); err != nil {
			q.log.Warn().Err(err).Str("job_id", job.JobID).Int("retry", job.RetryCount).Msg("Retry dropped")
		}
	})
}

func (q *Queue) record(ctx context.Context, job *jobs.ArchiveDatasetJob) {
	if q.store == nil {
		return
	}
	if err := q.store.SaveJob(ctx, job); err != nil {
		q.log.Error().Err(err).Str("job_id", job.JobID).Msg("Failed to save job state")
	}
}

// Stop refuses further publishes, signals the workers and waits for the
// attempts in flight, or for ctx to expire.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.done)
	q.mu.Unlock()

	idle := make(chan struct{})
	go func() {
		q.running.Wait()
		close(idle)
	}()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the queue without a deadline.
func (q *Queue) Close() error {
	return q.Stop(context.Background())
}

var (
	_ jobs.Publisher = (*Queue)(nil)
	_ jobs.Consumer  = (*Queue)(nil)
)
