package ingestion_engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/Guntherdrb30/TrendsTech.com-sub000/internal/core"
	"github.com/Guntherdrb30/TrendsTech.com-sub000/internal/models"
)

type WorkerConfig struct {
	Concurrency  int
	PollInterval time.Duration
	JobTimeout   time.Duration
	StaleAfter   time.Duration // active jobs untouched this long go back to waiting; 0 disables
	DrainTimeout time.Duration
}

func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		Concurrency:  2,
		PollInterval: time.Second,
		JobTimeout:   10 * time.Minute,
		StaleAfter:   30 * time.Minute,
		DrainTimeout: 30 * time.Second,
	}
}

// Worker pulls jobs from the queue and runs each through the ingestor on a
// bounded goroutine pool.
type Worker struct {
	queue    core.JobQueue
	ingestor Ingestor
	sources  core.SourceStore
	logs     core.LogStore
	pool     *ants.Pool
	cfg      WorkerConfig
	logger   *slog.Logger
	stats    WorkerStats
	wg       sync.WaitGroup
}

func NewWorker(queue core.JobQueue, ingestor Ingestor, sources core.SourceStore, logs core.LogStore, cfg WorkerConfig, logger *slog.Logger) (*Worker, error) {
	def := DefaultWorkerConfig()
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = def.JobTimeout
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = def.DrainTimeout
	}
	if cfg.StaleAfter > 0 && cfg.StaleAfter <= cfg.JobTimeout {
		return nil, fmt.Errorf("stale after %s must exceed job timeout %s: running jobs would be requeued", cfg.StaleAfter, cfg.JobTimeout)
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "worker")

	w := &Worker{
		queue:    queue,
		ingestor: ingestor,
		sources:  sources,
		logs:     logs,
		cfg:      cfg,
		logger:   logger,
	}
	pool, err := ants.NewPool(cfg.Concurrency, ants.WithPanicHandler(func(p any) {
		w.stats.panics.Add(1)
		logger.Error("worker goroutine panicked", "panic", p)
	}))
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	w.pool = pool
	return w, nil
}

func (w *Worker) Stats() StatsSnapshot { return w.stats.Snapshot() }

// Run polls until ctx is cancelled, then waits up to DrainTimeout for
// in-flight jobs and releases the pool.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("worker started", "concurrency", w.cfg.Concurrency, "poll", w.cfg.PollInterval)
	w.requeueStale(ctx)

	poll := time.NewTicker(w.cfg.PollInterval)
	defer poll.Stop()

	var staleC <-chan time.Time
	if w.cfg.StaleAfter > 0 {
		stale := time.NewTicker(w.cfg.StaleAfter / 2)
		defer stale.Stop()
		staleC = stale.C
	}

	for {
		w.claimAvailable(ctx)
		select {
		case <-ctx.Done():
			return w.drain()
		case <-poll.C:
		case <-staleC:
			w.requeueStale(ctx)
			w.logger.Info("worker stats", "stats", w.Stats())
		}
	}
}

// claimAvailable claims jobs while the pool has free slots.
func (w *Worker) claimAvailable(ctx context.Context) {
	for w.pool.Free() > 0 && ctx.Err() == nil {
		job, err := w.queue.Claim(ctx)
		if err != nil {
			if ctx.Err() == nil {
				w.logger.Error("claim job", "err", err)
			}
			return
		}
		if job == nil {
			return
		}
		w.stats.claimed.Add(1)

		w.wg.Add(1)
		if err := w.pool.Submit(func() {
			defer w.wg.Done()
			w.handle(ctx, job)
		}); err != nil {
			w.wg.Done()
			w.logger.Error("submit job", "job", job.Key, "err", err)
			w.settle(ctx, job, err)
			return
		}
	}
}

// handle runs one job. The job keeps running on shutdown until JobTimeout so
// an in-flight pipeline is not cut off halfway through its writes.
func (w *Worker) handle(ctx context.Context, job *models.IngestionJob) {
	jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.cfg.JobTimeout)
	defer cancel()

	log := w.logger.With("job", job.Key, "attempt", job.Attempts)
	start := time.Now()

	err := w.run(jobCtx, job)
	if err != nil && !IsRecorded(err) {
		w.onFailure(jobCtx, job, err)
	}
	w.settle(jobCtx, job, err)

	if err != nil {
		log.Warn("job failed", "elapsed", time.Since(start), "err", err)
		return
	}
	log.Info("job completed", "elapsed", time.Since(start))
}

func (w *Worker) run(ctx context.Context, job *models.IngestionJob) (err error) {
	defer func() {
		if r := recover(); r != nil {
			w.stats.panics.Add(1)
			err = fmt.Errorf("ingestion panicked: %v", r)
		}
	}()
	return w.ingestor.ProcessSource(ctx, job.Payload.SourceID)
}

// settle reports the outcome of a job to the queue.
func (w *Worker) settle(ctx context.Context, job *models.IngestionJob, runErr error) {
	qctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	if runErr == nil {
		w.stats.succeeded.Add(1)
		if err := w.queue.Complete(qctx, job.Key); err != nil {
			w.logger.Error("complete job", "job", job.Key, "err", err)
		}
		return
	}
	w.stats.failed.Add(1)
	if err := w.queue.Fail(qctx, job.Key, runErr.Error()); err != nil {
		w.logger.Error("fail job", "job", job.Key, "err", err)
	}
}

// onFailure marks the source FAILED when the pipeline could not do it itself.
// It must never take the worker down.
func (w *Worker) onFailure(ctx context.Context, job *models.IngestionJob, cause error) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("failure handler panicked", "job", job.Key, "panic", r)
		}
	}()

	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	sourceID := job.Payload.SourceID
	if err := w.sources.UpdateSourceStatus(fctx, sourceID, models.SourceStatusFailed); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			w.logger.Warn("failed job references a missing source", "source_id", sourceID)
			return
		}
		w.logger.Error("mark source failed", "source_id", sourceID, "err", err)
	}
	ev := &models.IngestionLogEvent{
		SourceID: sourceID,
		TenantID: job.Payload.TenantID,
		Message:  "worker error: " + cause.Error(),
		Progress: 100,
		Stage:    models.StageError,
		Status:   string(models.SourceStatusFailed),
		Error:    cause.Error(),
	}
	if err := w.logs.AppendLog(fctx, ev); err != nil {
		w.logger.Warn("write worker failure event", "source_id", sourceID, "err", err)
	}
}

func (w *Worker) requeueStale(ctx context.Context) {
	if w.cfg.StaleAfter <= 0 {
		return
	}
	n, err := w.queue.RequeueStale(ctx, w.cfg.StaleAfter)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Error("requeue stale jobs", "err", err)
		}
		return
	}
	if n > 0 {
		w.stats.requeued.Add(int64(n))
		w.logger.Warn("requeued stale jobs", "count", n)
	}
}

func (w *Worker) drain() error {
	defer w.pool.Release()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("worker drained", "stats", w.Stats())
		return nil
	case <-time.After(w.cfg.DrainTimeout):
		return fmt.Errorf("worker drain timed out after %s with %d job(s) running", w.cfg.DrainTimeout, w.pool.Running())
	}
}
