package ingestion_engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Guntherdrb30/TrendsTech.com-sub000/internal/core/chunker"
	"github.com/Guntherdrb30/TrendsTech.com-sub000/internal/core/jobqueue"
	"github.com/Guntherdrb30/TrendsTech.com-sub000/internal/core/mock"
	"github.com/Guntherdrb30/TrendsTech.com-sub000/internal/models"
)

type ingestorFunc func(ctx context.Context, sourceID string, opts ...RunOption) error

func (f ingestorFunc) ProcessSource(ctx context.Context, sourceID string, opts ...RunOption) error {
	return f(ctx, sourceID, opts...)
}

func startWorker(t *testing.T, q *jobqueue.MemoryQueue, ing Ingestor, store *mock.Store) (*Worker, func()) {
	t.Helper()
	w, err := NewWorker(q, ing, store, store, WorkerConfig{
		Concurrency:  2,
		PollInterval: 10 * time.Millisecond,
		JobTimeout:   5 * time.Second,
	}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	return w, func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("worker did not stop")
		}
	}
}

func waitForState(t *testing.T, q *jobqueue.MemoryQueue, key string, want models.JobState) {
	t.Helper()
	require.Eventually(t, func() bool {
		job, err := q.Get(context.Background(), key)
		return err == nil && job.State == want
	}, 3*time.Second, 10*time.Millisecond)
}

func TestWorker_ProcessesQueuedSources(t *testing.T) {
	h := newHarness(t, chunker.DefaultConfig())
	q := jobqueue.NewMemoryQueue()
	ctx := context.Background()

	for _, id := range []string{"w1", "w2", "w3"} {
		h.create(t, models.KnowledgeSource{ID: id, Kind: models.SourceKindText, RawText: ptr("Contenido de " + id + ".")})
		_, _, err := q.Enqueue(ctx, models.JobPayload{SourceID: id, TenantID: "t1"})
		require.NoError(t, err)
	}

	w, stop := startWorker(t, q, h.ing, h.store)
	for _, id := range []string{"w1", "w2", "w3"} {
		waitForState(t, q, id, models.JobCompleted)
	}
	stop()

	for _, id := range []string{"w1", "w2", "w3"} {
		assert.Equal(t, models.SourceStatusReady, h.status(t, id))
	}
	stats := w.Stats()
	assert.Equal(t, int64(3), stats.Claimed)
	assert.Equal(t, int64(3), stats.Succeeded)
}

func TestWorker_FailureHandlerMarksSource(t *testing.T) {
	store := mock.NewStore(testDim)
	require.NoError(t, store.CreateSource(context.Background(), &models.KnowledgeSource{ID: "f1", TenantID: "t1", Kind: models.SourceKindText}))
	q := jobqueue.NewMemoryQueue()
	_, _, err := q.Enqueue(context.Background(), models.JobPayload{SourceID: "f1", TenantID: "t1"})
	require.NoError(t, err)

	ing := ingestorFunc(func(context.Context, string, ...RunOption) error {
		return errors.New("connection reset")
	})
	w, stop := startWorker(t, q, ing, store)
	waitForState(t, q, "f1", models.JobFailed)
	stop()

	src, err := store.GetSource(context.Background(), "f1")
	require.NoError(t, err)
	assert.Equal(t, models.SourceStatusFailed, src.Status)

	logs := store.Logs("f1")
	require.Len(t, logs, 1)
	assert.Equal(t, models.StageError, logs[0].Stage)
	assert.Equal(t, 100, logs[0].Progress)
	assert.Contains(t, logs[0].Message, "connection reset")

	job, err := q.Get(context.Background(), "f1")
	require.NoError(t, err)
	assert.Equal(t, "connection reset", job.LastError)
	assert.Equal(t, int64(1), w.Stats().Failed)
}

func TestWorker_RecordedFailureNotRepeated(t *testing.T) {
	store := mock.NewStore(testDim)
	require.NoError(t, store.CreateSource(context.Background(), &models.KnowledgeSource{ID: "f2", TenantID: "t1"}))
	q := jobqueue.NewMemoryQueue()
	_, _, err := q.Enqueue(context.Background(), models.JobPayload{SourceID: "f2", TenantID: "t1"})
	require.NoError(t, err)

	ing := ingestorFunc(func(_ context.Context, id string, _ ...RunOption) error {
		return &PipelineError{SourceID: id, Stage: models.StageChunk, Err: errors.New("no chunks"), Recorded: true}
	})
	_, stop := startWorker(t, q, ing, store)
	waitForState(t, q, "f2", models.JobFailed)
	stop()

	assert.Empty(t, store.Logs("f2"))
}

func TestWorker_RecoversPanicsAndSurvivesLogFailure(t *testing.T) {
	store := mock.NewStore(testDim)
	require.NoError(t, store.CreateSource(context.Background(), &models.KnowledgeSource{ID: "p1", TenantID: "t1"}))
	require.NoError(t, store.CreateSource(context.Background(), &models.KnowledgeSource{ID: "p2", TenantID: "t1"}))
	store.FailAppendLog = errors.New("log store down")

	q := jobqueue.NewMemoryQueue()
	for _, id := range []string{"p1", "p2"} {
		_, _, err := q.Enqueue(context.Background(), models.JobPayload{SourceID: id, TenantID: "t1"})
		require.NoError(t, err)
	}

	ing := ingestorFunc(func(_ context.Context, id string, _ ...RunOption) error {
		if id == "p1" {
			panic("nil map")
		}
		return nil
	})
	w, stop := startWorker(t, q, ing, store)
	waitForState(t, q, "p1", models.JobFailed)
	waitForState(t, q, "p2", models.JobCompleted)
	stop()

	src, err := store.GetSource(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, models.SourceStatusFailed, src.Status)
	assert.Equal(t, int64(1), w.Stats().Panics)
}

func TestWorker_RequeuesStaleOnStart(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	q := jobqueue.NewMemoryQueue(jobqueue.WithClock(clock))
	_, _, err := q.Enqueue(context.Background(), models.JobPayload{SourceID: "s1", TenantID: "t1"})
	require.NoError(t, err)
	job, err := q.Claim(context.Background())
	require.NoError(t, err)
	require.NotNil(t, job)
	now = now.Add(time.Hour)

	store := mock.NewStore(testDim)
	w, err := NewWorker(q, ingestorFunc(func(context.Context, string, ...RunOption) error { return nil }),
		store, store, WorkerConfig{JobTimeout: time.Minute, StaleAfter: 10 * time.Minute}, nil)
	require.NoError(t, err)

	w.requeueStale(context.Background())
	got, err := q.Get(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, models.JobWaiting, got.State)
	assert.Equal(t, int64(1), w.Stats().Requeued)
	w.pool.Release()
}

func TestNewWorker_RejectsStaleAfterWithinJobTimeout(t *testing.T) {
	store := mock.NewStore(testDim)
	noop := ingestorFunc(func(context.Context, string, ...RunOption) error { return nil })

	_, err := NewWorker(jobqueue.NewMemoryQueue(), noop, store, store,
		WorkerConfig{JobTimeout: time.Minute, StaleAfter: 40 * time.Millisecond}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must exceed job timeout")

	// the default job timeout applies when none is set
	_, err = NewWorker(jobqueue.NewMemoryQueue(), noop, store, store,
		WorkerConfig{StaleAfter: 5 * time.Minute}, nil)
	require.Error(t, err)
}
