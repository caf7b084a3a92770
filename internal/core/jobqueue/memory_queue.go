// Package jobqueue provides an in-process JobQueue for development and tests.
// State is lost on restart; production deployments use the Postgres queue.
package jobqueue

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Guntherdrb30/TrendsTech.com-sub000/internal/core"
	"github.com/Guntherdrb30/TrendsTech.com-sub000/internal/models"
)

type MemoryQueue struct {
	mu          sync.Mutex
	jobs        map[string]*models.IngestionJob
	maxAttempts int
	backoff     time.Duration
	now         func() time.Time
	closed      bool
	logger      *slog.Logger
}

type Option func(*MemoryQueue)

func WithMaxAttempts(n int) Option {
	return func(q *MemoryQueue) {
		if n > 0 {
			q.maxAttempts = n
		}
	}
}

func WithRetryBackoff(d time.Duration) Option {
	return func(q *MemoryQueue) { q.backoff = d }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(q *MemoryQueue) { q.now = now }
}

func NewMemoryQueue(opts ...Option) *MemoryQueue {
	q := &MemoryQueue{
		jobs:        make(map[string]*models.IngestionJob),
		maxAttempts: 1,
		backoff:     30 * time.Second,
		now:         time.Now,
		logger:      slog.Default().With("component", "job-queue", "driver", "memory"),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func (q *MemoryQueue) Enqueue(_ context.Context, p models.JobPayload) (*models.IngestionJob, bool, error) {
	return q.insert(p, models.JobWaiting)
}

// Acquire creates the job already active with one attempt, for inline runs.
func (q *MemoryQueue) Acquire(_ context.Context, p models.JobPayload) (*models.IngestionJob, bool, error) {
	return q.insert(p, models.JobActive)
}

func (q *MemoryQueue) insert(p models.JobPayload, state models.JobState) (*models.IngestionJob, bool, error) {
	if p.SourceID == "" {
		return nil, false, core.Validationf("job payload has no source id")
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, false, fmt.Errorf("queue closed")
	}

	if existing, ok := q.jobs[p.SourceID]; ok && !existing.State.Terminal() {
		cp := *existing
		return &cp, false, nil
	}

	now := q.now()
	job := &models.IngestionJob{
		Key:         p.SourceID,
		Payload:     p,
		State:       state,
		MaxAttempts: q.maxAttempts,
		RunAt:       now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if state == models.JobActive {
		job.Attempts, job.MaxAttempts = 1, 1
	}
	q.jobs[job.Key] = job
	cp := *job
	return &cp, true, nil
}

func (q *MemoryQueue) Claim(_ context.Context) (*models.IngestionJob, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, nil
	}

	now := q.now()
	var runnable []*models.IngestionJob
	for _, j := range q.jobs {
		if (j.State == models.JobWaiting || j.State == models.JobDelayed) && !j.RunAt.After(now) {
			runnable = append(runnable, j)
		}
	}
	if len(runnable) == 0 {
		return nil, nil
	}
	sort.Slice(runnable, func(a, b int) bool {
		if !runnable[a].RunAt.Equal(runnable[b].RunAt) {
			return runnable[a].RunAt.Before(runnable[b].RunAt)
		}
		return runnable[a].CreatedAt.Before(runnable[b].CreatedAt)
	})

	job := runnable[0]
	job.State = models.JobActive
	job.Attempts++
	job.UpdatedAt = now
	cp := *job
	return &cp, nil
}

func (q *MemoryQueue) Complete(_ context.Context, key string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[key]
	if !ok {
		return fmt.Errorf("job %s: %w", key, core.ErrNotFound)
	}
	job.State = models.JobCompleted
	job.LastError = ""
	job.UpdatedAt = q.now()
	return nil
}

func (q *MemoryQueue) Fail(_ context.Context, key string, errMsg string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[key]
	if !ok {
		return fmt.Errorf("job %s: %w", key, core.ErrNotFound)
	}
	now := q.now()
	job.LastError = errMsg
	job.UpdatedAt = now
	if job.Attempts < job.MaxAttempts {
		job.State = models.JobDelayed
		job.RunAt = now.Add(q.backoff * time.Duration(job.Attempts))
		return nil
	}
	job.State = models.JobFailed
	return nil
}

func (q *MemoryQueue) Get(_ context.Context, key string) (*models.IngestionJob, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[key]
	if !ok {
		return nil, fmt.Errorf("job %s: %w", key, core.ErrNotFound)
	}
	cp := *job
	return &cp, nil
}

func (q *MemoryQueue) RequeueStale(_ context.Context, olderThan time.Duration) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	cutoff := q.now().Add(-olderThan)
	n := 0
	for _, j := range q.jobs {
		if j.State == models.JobActive && j.UpdatedAt.Before(cutoff) {
			j.State = models.JobWaiting
			j.UpdatedAt = q.now()
			n++
		}
	}
	if n > 0 {
		q.logger.Warn("requeued stale jobs", "count", n)
	}
	return n, nil
}

func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	return nil
}

var _ core.JobQueue = (*MemoryQueue)(nil)
