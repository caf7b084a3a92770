//go:build integration

package db

import (
	"context"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Guntherdrb30/TrendsTech.com-sub000/internal/config"
	"github.com/Guntherdrb30/TrendsTech.com-sub000/internal/core"
	"github.com/Guntherdrb30/TrendsTech.com-sub000/internal/models"
)

const testDim = 3

var (
	testClient    *DatabaseClient
	testDSN       string
	testContainer testcontainers.Container
)

// TestMain starts a pgvector container shared by every test in the package.
func TestMain(m *testing.M) {
	os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")
	ctx := context.Background()

	var err error
	testContainer, err = testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "pgvector/pgvector:pg16",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "knowledge",
				"POSTGRES_PASSWORD": "knowledge",
				"POSTGRES_DB":       "knowledge",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(90 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("Failed to start pgvector container: %v", err)
	}

	host, err := testContainer.Host(ctx)
	if err != nil {
		log.Fatalf("Failed to get container host: %v", err)
	}
	port, err := testContainer.MappedPort(ctx, "5432")
	if err != nil {
		log.Fatalf("Failed to get mapped port: %v", err)
	}
	testDSN = fmt.Sprintf("postgres://knowledge:knowledge@%s:%s/knowledge?sslmode=disable", host, port.Port())

	testClient, err = NewDatabaseClient(ctx, &config.Config{DatabaseURL: testDSN, DBMaxConns: 5, EmbedDim: testDim})
	if err != nil {
		log.Fatalf("Failed to connect to test database: %v", err)
	}

	code := m.Run()

	_ = testClient.Close()
	_ = testContainer.Terminate(ctx)
	os.Exit(code)
}

func newSource(t *testing.T, tenant, agent string) *models.KnowledgeSource {
	t.Helper()
	src := &models.KnowledgeSource{TenantID: tenant, AgentID: agent, Kind: models.SourceKindText}
	require.NoError(t, testClient.CreateSource(context.Background(), src))
	return src
}

func chunk(content string, tokens int, vec ...float32) models.KnowledgeChunk {
	return models.KnowledgeChunk{
		Content:    content,
		TokenCount: tokens,
		Embedding:  vec,
		Metadata:   models.ChunkMetadata{Kind: models.SourceKindText, Section: "General", Language: "es"},
	}
}

func TestBootstrap_Idempotent(t *testing.T) {
	require.NoError(t, EnsureBootstrapped(context.Background(), testClient.Pool(), testDim))
}

func TestBootstrap_DimensionMismatch(t *testing.T) {
	err := EnsureBootstrapped(context.Background(), testClient.Pool(), testDim+1)
	assert.ErrorIs(t, err, core.ErrDimensionMismatch)
}

func TestSources_Lifecycle(t *testing.T) {
	ctx := context.Background()
	src := newSource(t, "tenant-a", "agent-1")

	got, err := testClient.GetSource(ctx, src.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SourceStatusPending, got.Status)
	assert.Nil(t, got.RawText)

	require.NoError(t, testClient.SaveExtraction(ctx, src.ID, "Manual", "full text", ""))
	got, err = testClient.GetSource(ctx, src.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SourceStatusProcessing, got.Status)
	assert.Equal(t, "Manual", got.Title)
	require.NotNil(t, got.RawText)
	assert.Equal(t, "full text", *got.RawText)

	require.NoError(t, testClient.UpdateSourceStatus(ctx, src.ID, models.SourceStatusReady))

	_, err = testClient.GetSourceForTenant(ctx, "tenant-b", src.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)

	list, err := testClient.ListSources(ctx, "tenant-a", "agent-1")
	require.NoError(t, err)
	assert.NotEmpty(t, list)

	assert.ErrorIs(t, testClient.UpdateSourceStatus(ctx, "missing", models.SourceStatusReady), core.ErrNotFound)
}

func TestLogs_MostRecentFirst(t *testing.T) {
	ctx := context.Background()
	src := newSource(t, "tenant-logs", "agent-1")

	for i, stage := range []models.IngestionStage{models.StageQueued, models.StageStart, models.StageDone} {
		require.NoError(t, testClient.AppendLog(ctx, &models.IngestionLogEvent{
			SourceID: src.ID, TenantID: src.TenantID, Message: string(stage), Progress: i * 60, Stage: stage,
		}))
	}

	logs, err := testClient.RecentLogs(ctx, src.ID, 2)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, models.StageDone, logs[0].Stage)
	assert.Equal(t, 100, logs[0].Progress, "progress is clamped")
	assert.Equal(t, models.StageStart, logs[1].Stage)
}

func TestSettings_MaxCrawlPages(t *testing.T) {
	ctx := context.Background()

	n, err := testClient.MaxCrawlPages(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.DefaultMaxCrawlPages, n)

	require.NoError(t, testClient.SetMaxCrawlPages(ctx, 3))
	n, err = testClient.MaxCrawlPages(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	assert.ErrorIs(t, testClient.SetMaxCrawlPages(ctx, 26), core.ErrValidation)
	require.NoError(t, testClient.SetMaxCrawlPages(ctx, core.DefaultMaxCrawlPages))
}

func TestVectorStore_ReplaceAndSearch(t *testing.T) {
	ctx := context.Background()
	store := NewVectorStore(testClient.Pool(), testDim, nil)
	src := newSource(t, "tenant-vec", "agent-1")

	ok, err := store.HasChunks(ctx, "tenant-vec", "agent-1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.InsertChunks(ctx, src.TenantID, src.AgentID, src.ID, nil))
	require.NoError(t, store.InsertChunks(ctx, src.TenantID, src.AgentID, src.ID, []models.KnowledgeChunk{
		chunk("refund policy", 500, 1, 0, 0),
		chunk("shipping times", 900, 0.9, 0.1, 0),
		chunk("store hours", 400, 0, 1, 0),
		chunk("contact", 100, 0, 0, 1),
	}))

	n, err := store.CountChunks(ctx, src.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	results, err := store.Search(ctx, src.TenantID, src.AgentID, []float32{1, 0, 0}, 4, 1000)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "refund policy", results[0].Content)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
	assert.Equal(t, "es", results[0].Metadata.Language)
	total := 0
	for _, r := range results {
		total += r.TokenCount
		assert.NotEqual(t, "shipping times", r.Content, "900 tokens cannot fit after the first result")
	}
	assert.LessOrEqual(t, total, 1000)

	other, err := store.Search(ctx, "tenant-other", src.AgentID, []float32{1, 0, 0}, 4, 1000)
	require.NoError(t, err)
	assert.Empty(t, other)

	deleted, err := store.ClearChunksForSource(ctx, src.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 4, deleted)
	deleted, err = store.ClearChunksForSource(ctx, src.ID)
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestVectorStore_RejectsWrongDimensionBeforeWriting(t *testing.T) {
	ctx := context.Background()
	store := NewVectorStore(testClient.Pool(), testDim, nil)
	src := newSource(t, "tenant-dim", "agent-1")

	err := store.InsertChunks(ctx, src.TenantID, src.AgentID, src.ID, []models.KnowledgeChunk{
		chunk("good", 1, 1, 0, 0),
		chunk("bad", 1, 1, 0),
	})
	assert.ErrorIs(t, err, core.ErrDimensionMismatch)

	n, err := store.CountChunks(ctx, src.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestJobQueue_DedupClaimAndRetry(t *testing.T) {
	ctx := context.Background()
	q := NewJobQueue(testClient.Pool(), WithMaxAttempts(2), WithRetryBackoff(time.Millisecond))
	payload := models.JobPayload{SourceID: "job-src-1", TenantID: "tenant-q", ActorID: "user-1"}

	first, created, err := q.Enqueue(ctx, payload)
	require.NoError(t, err)
	assert.True(t, created)
	second, created, err := q.Enqueue(ctx, payload)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.Key, second.Key)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)

	job, err := q.Claim(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, models.JobActive, job.State)
	assert.Equal(t, 1, job.Attempts)

	// active jobs still deduplicate
	_, created, err = q.Enqueue(ctx, payload)
	require.NoError(t, err)
	assert.False(t, created)

	require.NoError(t, q.Fail(ctx, job.Key, "fetch failed"))
	got, err := q.Get(ctx, job.Key)
	require.NoError(t, err)
	assert.Equal(t, models.JobDelayed, got.State)

	time.Sleep(20 * time.Millisecond)
	job, err = q.Claim(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, 2, job.Attempts)
	require.NoError(t, q.Fail(ctx, job.Key, "fetch failed again"))

	got, err = q.Get(ctx, job.Key)
	require.NoError(t, err)
	assert.Equal(t, models.JobFailed, got.State)
	assert.Equal(t, "fetch failed again", got.LastError)

	// terminal jobs are replaced by a fresh one
	fresh, created, err := q.Enqueue(ctx, payload)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, models.JobWaiting, fresh.State)
	assert.Zero(t, fresh.Attempts)

	job, err = q.Claim(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
	require.NoError(t, q.Complete(ctx, job.Key))

	none, err := q.Claim(ctx)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestJobQueue_RequeueStale(t *testing.T) {
	ctx := context.Background()
	q := NewJobQueue(testClient.Pool())

	_, _, err := q.Enqueue(ctx, models.JobPayload{SourceID: "job-src-stale", TenantID: "tenant-q"})
	require.NoError(t, err)
	job, err := q.Claim(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)

	n, err := q.RequeueStale(ctx, time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n)

	time.Sleep(20 * time.Millisecond)
	n, err = q.RequeueStale(ctx, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := q.Get(ctx, job.Key)
	require.NoError(t, err)
	assert.Equal(t, models.JobWaiting, got.State)

	job, err = q.Claim(ctx)
	require.NoError(t, err)
	require.NoError(t, q.Complete(ctx, job.Key))
}

func TestJobQueue_AcquireBlocksEnqueueAndClaim(t *testing.T) {
	ctx := context.Background()
	q := NewJobQueue(testClient.Pool(), WithMaxAttempts(3))
	payload := models.JobPayload{SourceID: "job-src-inline", TenantID: "tenant-q"}

	job, acquired, err := q.Acquire(ctx, payload)
	require.NoError(t, err)
	require.True(t, acquired)
	assert.Equal(t, models.JobActive, job.State)
	assert.Equal(t, 1, job.MaxAttempts)

	_, created, err := q.Enqueue(ctx, payload)
	require.NoError(t, err)
	assert.False(t, created)

	_, acquired, err = q.Acquire(ctx, payload)
	require.NoError(t, err)
	assert.False(t, acquired)

	claimed, err := q.Claim(ctx)
	require.NoError(t, err)
	if claimed != nil {
		assert.NotEqual(t, payload.SourceID, claimed.Key)
	}

	require.NoError(t, q.Complete(ctx, job.Key))
	_, created, err = q.Enqueue(ctx, payload)
	require.NoError(t, err)
	assert.True(t, created)
}
