package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Guntherdrb30/TrendsTech.com-sub000/internal/core"
	"github.com/Guntherdrb30/TrendsTech.com-sub000/internal/models"
)

const jobColumns = `job_key, source_id, tenant_id, actor_id, state, attempts, max_attempts, run_at, last_error, created_at, updated_at`

const claimSQL = `
UPDATE ingestion_jobs SET state = 'active', attempts = attempts + 1, updated_at = now()
WHERE job_key = (
    SELECT job_key
    FROM ingestion_jobs
    WHERE state IN ('waiting', 'delayed') AND run_at <= now()
    ORDER BY run_at, created_at
    LIMIT 1
    FOR UPDATE SKIP LOCKED
)
RETURNING ` + jobColumns

const failSQL = `
UPDATE ingestion_jobs SET
    state = CASE WHEN attempts < max_attempts THEN 'delayed' ELSE 'failed' END,
    run_at = CASE WHEN attempts < max_attempts
                  THEN now() + make_interval(secs => $3::float8 * attempts)
                  ELSE run_at END,
    last_error = $2,
    updated_at = now()
WHERE job_key = $1
`

// JobQueue is a durable ingestion queue stored in Postgres. Claims use
// FOR UPDATE SKIP LOCKED so several workers can poll the same table.
type JobQueue struct {
	pool        *pgxpool.Pool
	maxAttempts int
	backoff     time.Duration
	logger      *slog.Logger
}

type QueueOption func(*JobQueue)

func WithMaxAttempts(n int) QueueOption {
	return func(q *JobQueue) {
		if n > 0 {
			q.maxAttempts = n
		}
	}
}

func WithRetryBackoff(d time.Duration) QueueOption {
	return func(q *JobQueue) {
		if d > 0 {
			q.backoff = d
		}
	}
}

func WithQueueLogger(l *slog.Logger) QueueOption {
	return func(q *JobQueue) {
		if l != nil {
			q.logger = l
		}
	}
}

func NewJobQueue(pool *pgxpool.Pool, opts ...QueueOption) *JobQueue {
	q := &JobQueue{pool: pool, maxAttempts: 1, backoff: 30 * time.Second, logger: slog.Default()}
	for _, opt := range opts {
		opt(q)
	}
	q.logger = q.logger.With("component", "job-queue", "driver", "postgres")
	return q
}

func scanJob(row pgx.Row) (*models.IngestionJob, error) {
	var j models.IngestionJob
	err := row.Scan(&j.Key, &j.Payload.SourceID, &j.Payload.TenantID, &j.Payload.ActorID, &j.State,
		&j.Attempts, &j.MaxAttempts, &j.RunAt, &j.LastError, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func (q *JobQueue) Enqueue(ctx context.Context, p models.JobPayload) (*models.IngestionJob, bool, error) {
	return q.insert(ctx, p, models.JobWaiting)
}

// Acquire takes the source's slot for an inline run: the job is created
// already active with a single attempt, so workers never claim it.
func (q *JobQueue) Acquire(ctx context.Context, p models.JobPayload) (*models.IngestionJob, bool, error) {
	return q.insert(ctx, p, models.JobActive)
}

func (q *JobQueue) insert(ctx context.Context, p models.JobPayload, state models.JobState) (*models.IngestionJob, bool, error) {
	if p.SourceID == "" {
		return nil, false, core.Validationf("job payload has no source id")
	}
	key := p.SourceID

	tx, err := q.pool.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	existing, err := scanJob(tx.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM ingestion_jobs WHERE job_key = $1 FOR UPDATE`, key))
	switch {
	case err == nil && !existing.State.Terminal():
		if err := tx.Commit(ctx); err != nil {
			return nil, false, fmt.Errorf("commit: %w", err)
		}
		q.logger.Debug("enqueue deduplicated", "job_key", key, "state", existing.State)
		return existing, false, nil
	case err == nil:
		if _, err := tx.Exec(ctx, `DELETE FROM ingestion_jobs WHERE job_key = $1`, key); err != nil {
			return nil, false, fmt.Errorf("remove finished job: %w", err)
		}
	case !errors.Is(err, pgx.ErrNoRows):
		return nil, false, fmt.Errorf("lookup job: %w", err)
	}

	attempts, maxAttempts := 0, q.maxAttempts
	if state == models.JobActive {
		attempts, maxAttempts = 1, 1
	}
	job, err := scanJob(tx.QueryRow(ctx, `
		INSERT INTO ingestion_jobs (job_key, source_id, tenant_id, actor_id, state, attempts, max_attempts)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (job_key) DO NOTHING
		RETURNING `+jobColumns,
		key, p.SourceID, p.TenantID, p.ActorID, state, attempts, maxAttempts))
	if errors.Is(err, pgx.ErrNoRows) {
		// a concurrent enqueue won the insert
		job, err = scanJob(tx.QueryRow(ctx, `SELECT `+jobColumns+` FROM ingestion_jobs WHERE job_key = $1`, key))
		if err != nil {
			return nil, false, fmt.Errorf("lookup concurrent job: %w", err)
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, false, fmt.Errorf("commit: %w", err)
		}
		return job, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("insert job: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("commit: %w", err)
	}
	q.logger.Debug("job enqueued", "job_key", key, "state", state)
	return job, true, nil
}

func (q *JobQueue) Claim(ctx context.Context) (*models.IngestionJob, error) {
	job, err := scanJob(q.pool.QueryRow(ctx, claimSQL))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	return job, nil
}

func (q *JobQueue) Complete(ctx context.Context, key string) error {
	tag, err := q.pool.Exec(ctx, `
		UPDATE ingestion_jobs SET state = 'completed', last_error = '', updated_at = now()
		WHERE job_key = $1
	`, key)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job %s: %w", key, core.ErrNotFound)
	}
	return nil
}

func (q *JobQueue) Fail(ctx context.Context, key string, errMsg string) error {
	tag, err := q.pool.Exec(ctx, failSQL, key, errMsg, q.backoff.Seconds())
	if err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job %s: %w", key, core.ErrNotFound)
	}
	return nil
}

func (q *JobQueue) Get(ctx context.Context, key string) (*models.IngestionJob, error) {
	job, err := scanJob(q.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM ingestion_jobs WHERE job_key = $1`, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("job %s: %w", key, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

func (q *JobQueue) RequeueStale(ctx context.Context, olderThan time.Duration) (int, error) {
	tag, err := q.pool.Exec(ctx, `
		UPDATE ingestion_jobs SET state = 'waiting', updated_at = now()
		WHERE state = 'active' AND updated_at < now() - make_interval(secs => $1::float8)
	`, olderThan.Seconds())
	if err != nil {
		return 0, fmt.Errorf("requeue stale jobs: %w", err)
	}
	if n := tag.RowsAffected(); n > 0 {
		q.logger.Warn("requeued stale jobs", "count", n, "older_than", olderThan)
	}
	return int(tag.RowsAffected()), nil
}

// Close is a no-op; the pool belongs to the DatabaseClient.
func (q *JobQueue) Close() error { return nil }

var _ core.JobQueue = (*JobQueue)(nil)
