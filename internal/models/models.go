package models

import (
	"time"
)

type SourceKind string

const (
	SourceKindURL  SourceKind = "URL"
	SourceKindPDF  SourceKind = "PDF"
	SourceKindText SourceKind = "TEXT"
)

func (k SourceKind) Valid() bool {
	switch k {
	case SourceKindURL, SourceKindPDF, SourceKindText:
		return true
	}
	return false
}

type SourceStatus string

const (
	SourceStatusPending    SourceStatus = "PENDING"
	SourceStatusProcessing SourceStatus = "PROCESSING"
	SourceStatusReady      SourceStatus = "READY"
	SourceStatusFailed     SourceStatus = "FAILED"
)

// KnowledgeSource is one ingestible unit owned by a tenant and agent.
type KnowledgeSource struct {
	ID         string       `db:"id" json:"id"`
	TenantID   string       `db:"tenant_id" json:"tenant_id"`
	AgentID    string       `db:"agent_id" json:"agent_id"`
	Kind       SourceKind   `db:"kind" json:"kind"`
	Title      string       `db:"title" json:"title,omitempty"`
	OriginURL  string       `db:"origin_url" json:"origin_url,omitempty"`
	RawText    *string      `db:"raw_text" json:"-"`
	StorageKey string       `db:"storage_key" json:"storage_key,omitempty"`
	FileName   string       `db:"file_name" json:"file_name,omitempty"`
	Section    string       `db:"section" json:"section,omitempty"`
	Status     SourceStatus `db:"status" json:"status"`
	CreatedAt  time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time    `db:"updated_at" json:"updated_at"`
}

// ChunkMetadata is stored as jsonb next to every chunk.
type ChunkMetadata struct {
	Kind     SourceKind        `json:"kind"`
	Title    string            `json:"title,omitempty"`
	Section  string            `json:"section,omitempty"`
	URL      string            `json:"url,omitempty"`
	Page     int               `json:"page,omitempty"`
	Language string            `json:"language,omitempty"`
	Extra    map[string]string `json:"extra,omitempty"`
}

// KnowledgeChunk is one retrievable slice of a source's text.
type KnowledgeChunk struct {
	ID         string        `db:"id" json:"id"`
	TenantID   string        `db:"tenant_id" json:"tenant_id"`
	AgentID    string        `db:"agent_id" json:"agent_id"`
	SourceID   string        `db:"source_id" json:"source_id"`
	Position   int           `db:"position" json:"position"`
	Content    string        `db:"content" json:"content"`
	Embedding  []float32     `db:"embedding" json:"-"` // pgvector column
	TokenCount int           `db:"token_count" json:"token_count"`
	Metadata   ChunkMetadata `db:"metadata" json:"metadata"`
	CreatedAt  time.Time     `db:"created_at" json:"created_at"`
}

// SearchResult is a ranked chunk returned to the chat layer.
type SearchResult struct {
	ChunkID    string        `json:"chunk_id"`
	SourceID   string        `json:"source_id"`
	Content    string        `json:"content"`
	Score      float64       `json:"score"`
	TokenCount int           `json:"token_count"`
	Metadata   ChunkMetadata `json:"metadata"`
}

type IngestionStage string

const (
	StageQueued    IngestionStage = "queued"
	StageStart     IngestionStage = "start"
	StageExtract   IngestionStage = "extract"
	StageNormalize IngestionStage = "normalize"
	StageCrawl     IngestionStage = "crawl"
	StageChunk     IngestionStage = "chunk"
	StageEmbed     IngestionStage = "embed"
	StageIndex     IngestionStage = "index"
	StageDone      IngestionStage = "done"
	StageError     IngestionStage = "error"
)

// IngestionLogEvent is an append-only progress record for a source.
type IngestionLogEvent struct {
	ID        string         `db:"id" json:"id"`
	SourceID  string         `db:"source_id" json:"source_id"`
	TenantID  string         `db:"tenant_id" json:"tenant_id"`
	Message   string         `db:"message" json:"message"`
	Progress  int            `db:"progress" json:"progress"`
	Stage     IngestionStage `db:"stage" json:"stage"`
	Status    string         `db:"status" json:"status,omitempty"`
	Error     string         `db:"error" json:"error,omitempty"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
}

// ClampProgress keeps a progress value inside 0..100.
func ClampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

type JobState string

const (
	JobWaiting   JobState = "waiting"
	JobActive    JobState = "active"
	JobDelayed   JobState = "delayed"
	JobPaused    JobState = "paused"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
)

// Terminal reports whether a job in this state may be replaced by a new enqueue.
func (s JobState) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

type JobPayload struct {
	SourceID string `json:"source_id"`
	TenantID string `json:"tenant_id"`
	ActorID  string `json:"actor_id,omitempty"`
}

// IngestionJob is a queue entry keyed by source id.
type IngestionJob struct {
	Key         string     `db:"job_key" json:"key"`
	Payload     JobPayload `db:"payload" json:"payload"`
	State       JobState   `db:"state" json:"state"`
	Attempts    int        `db:"attempts" json:"attempts"`
	MaxAttempts int        `db:"max_attempts" json:"max_attempts"`
	RunAt       time.Time  `db:"run_at" json:"run_at"`
	LastError   string     `db:"last_error" json:"last_error,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}
