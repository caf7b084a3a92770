package core

import (
	"context"
	"time"

	"github.com/Guntherdrb30/TrendsTech.com-sub000/internal/models"
)

// SourceStore persists knowledge sources. Lookups return ErrNotFound when absent.
type SourceStore interface {
	CreateSource(ctx context.Context, src *models.KnowledgeSource) error
	GetSource(ctx context.Context, id string) (*models.KnowledgeSource, error)
	GetSourceForTenant(ctx context.Context, tenantID, id string) (*models.KnowledgeSource, error)
	ListSources(ctx context.Context, tenantID, agentID string) ([]models.KnowledgeSource, error)
	UpdateSourceStatus(ctx context.Context, id string, status models.SourceStatus) error
	// SaveExtraction checkpoints the resolved title and raw text while the source is PROCESSING.
	// A non-empty storageKey replaces the stored binary key.
	SaveExtraction(ctx context.Context, id, title, rawText, storageKey string) error
}

// VectorStore holds chunks with their embeddings.
type VectorStore interface {
	ClearChunksForSource(ctx context.Context, sourceID string) (int64, error)
	InsertChunks(ctx context.Context, tenantID, agentID, sourceID string, chunks []models.KnowledgeChunk) error
	HasChunks(ctx context.Context, tenantID, agentID string) (bool, error)
	CountChunks(ctx context.Context, sourceID string) (int, error)
	Search(ctx context.Context, tenantID, agentID string, query []float32, topK, maxTokens int) ([]models.SearchResult, error)
}

// LogStore is the append-only ingestion audit trail.
type LogStore interface {
	AppendLog(ctx context.Context, ev *models.IngestionLogEvent) error
	// RecentLogs returns up to limit events for a source, most recent first.
	RecentLogs(ctx context.Context, sourceID string, limit int) ([]models.IngestionLogEvent, error)
}

// SettingsStore exposes the platform-wide ingestion knobs.
type SettingsStore interface {
	MaxCrawlPages(ctx context.Context) (int, error)
	SetMaxCrawlPages(ctx context.Context, n int) error
}

// DbClient defines all relational persistence operations the services need.
// It abstracts Postgres/pgvector so higher layers never depend on a specific DB.
type DbClient interface {
	SourceStore
	LogStore
	SettingsStore
	Ping(ctx context.Context) error
	Close() error
}

// ObjectClient stores source binaries under opaque keys.
type ObjectClient interface {
	UploadFile(ctx context.Context, key string, data []byte, contentType string) (url string, err error)
	GetFile(ctx context.Context, key string) ([]byte, error)
	DeleteFile(ctx context.Context, key string) error
}

// JobQueue dispatches ingestion jobs keyed by source id, at most one live job per key.
type JobQueue interface {
	// Enqueue returns the existing job with created=false when a live job already holds the key.
	Enqueue(ctx context.Context, payload models.JobPayload) (job *models.IngestionJob, created bool, err error)
	// Acquire creates the job directly in the active state for a run outside the
	// worker. acquired is false, with the live job, when the key is already held.
	Acquire(ctx context.Context, payload models.JobPayload) (job *models.IngestionJob, acquired bool, err error)
	// Claim moves one runnable job to active. It returns nil, nil when nothing is runnable.
	Claim(ctx context.Context) (*models.IngestionJob, error)
	Complete(ctx context.Context, key string) error
	// Fail records the error and either schedules a retry or marks the job failed.
	Fail(ctx context.Context, key string, errMsg string) error
	Get(ctx context.Context, key string) (*models.IngestionJob, error)
	// RequeueStale returns active jobs not updated within olderThan to waiting.
	RequeueStale(ctx context.Context, olderThan time.Duration) (int, error)
	Close() error
}
