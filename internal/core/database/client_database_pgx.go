package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Guntherdrb30/TrendsTech.com-sub000/internal/config"
	"github.com/Guntherdrb30/TrendsTech.com-sub000/internal/core"
	"github.com/Guntherdrb30/TrendsTech.com-sub000/internal/models"
)

type DatabaseClient struct {
	pool *pgxpool.Pool
}

// NewDatabaseClient connects, bootstraps the schema and returns the client.
func NewDatabaseClient(ctx context.Context, cfg *config.Config) (*DatabaseClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}

	pool, err := NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
	if err != nil {
		return nil, err
	}

	if err := EnsureBootstrapped(ctx, pool, cfg.EmbedDim); err != nil {
		pool.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	slog.Info("database ready", "max_conns", cfg.DBMaxConns)
	return &DatabaseClient{pool: pool}, nil
}

// NewDatabaseClientFromPool wraps an already bootstrapped pool.
func NewDatabaseClientFromPool(pool *pgxpool.Pool) *DatabaseClient {
	return &DatabaseClient{pool: pool}
}

func (c *DatabaseClient) Pool() *pgxpool.Pool { return c.pool }

func (c *DatabaseClient) Ping(ctx context.Context) error {
	return c.pool.Ping(ctx)
}

func (c *DatabaseClient) Close() error {
	if c.pool != nil {
		c.pool.Close()
	}
	return nil
}

// Sources

const sourceColumns = `id, tenant_id, agent_id, kind, title, origin_url, raw_text, storage_key, file_name, section, status, created_at, updated_at`

func scanSource(row pgx.Row) (*models.KnowledgeSource, error) {
	var s models.KnowledgeSource
	err := row.Scan(
		&s.ID, &s.TenantID, &s.AgentID, &s.Kind, &s.Title, &s.OriginURL, &s.RawText,
		&s.StorageKey, &s.FileName, &s.Section, &s.Status, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *DatabaseClient) CreateSource(ctx context.Context, src *models.KnowledgeSource) error {
	if src == nil {
		return errors.New("nil source")
	}
	if src.ID == "" {
		src.ID = uuid.NewString()
	}
	if src.Status == "" {
		src.Status = models.SourceStatusPending
	}
	now := time.Now().UTC()
	if src.CreatedAt.IsZero() {
		src.CreatedAt = now
	}
	src.UpdatedAt = now

	const q = `
		INSERT INTO knowledge_sources (` + sourceColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := c.pool.Exec(ctx, q,
		src.ID, src.TenantID, src.AgentID, src.Kind, src.Title, src.OriginURL, src.RawText,
		src.StorageKey, src.FileName, src.Section, src.Status, src.CreatedAt, src.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert source: %w", err)
	}
	return nil
}

func (c *DatabaseClient) GetSource(ctx context.Context, id string) (*models.KnowledgeSource, error) {
	src, err := scanSource(c.pool.QueryRow(ctx,
		`SELECT `+sourceColumns+` FROM knowledge_sources WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("source %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get source: %w", err)
	}
	return src, nil
}

func (c *DatabaseClient) GetSourceForTenant(ctx context.Context, tenantID, id string) (*models.KnowledgeSource, error) {
	src, err := scanSource(c.pool.QueryRow(ctx,
		`SELECT `+sourceColumns+` FROM knowledge_sources WHERE id = $1 AND tenant_id = $2`, id, tenantID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("source %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get source: %w", err)
	}
	return src, nil
}

func (c *DatabaseClient) ListSources(ctx context.Context, tenantID, agentID string) ([]models.KnowledgeSource, error) {
	rows, err := c.pool.Query(ctx, `
		SELECT `+sourceColumns+`
		FROM knowledge_sources
		WHERE tenant_id = $1 AND ($2 = '' OR agent_id = $2)
		ORDER BY created_at DESC
	`, tenantID, agentID)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	var out []models.KnowledgeSource
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *src)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) UpdateSourceStatus(ctx context.Context, id string, status models.SourceStatus) error {
	tag, err := c.pool.Exec(ctx, `
		UPDATE knowledge_sources
		SET status = $2, updated_at = now()
		WHERE id = $1
	`, id, status)
	if err != nil {
		return fmt.Errorf("update source status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("source %s: %w", id, core.ErrNotFound)
	}
	return nil
}

func (c *DatabaseClient) SaveExtraction(ctx context.Context, id, title, rawText, storageKey string) error {
	tag, err := c.pool.Exec(ctx, `
		UPDATE knowledge_sources
		SET title = $2, raw_text = $3, status = $4,
		    storage_key = COALESCE(NULLIF($5, ''), storage_key), updated_at = now()
		WHERE id = $1
	`, id, title, rawText, models.SourceStatusProcessing, storageKey)
	if err != nil {
		return fmt.Errorf("save extraction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("source %s: %w", id, core.ErrNotFound)
	}
	return nil
}

// Logs

func (c *DatabaseClient) AppendLog(ctx context.Context, ev *models.IngestionLogEvent) error {
	if ev == nil {
		return errors.New("nil log event")
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	ev.Progress = models.ClampProgress(ev.Progress)

	err := c.pool.QueryRow(ctx, `
		INSERT INTO ingestion_logs (id, source_id, tenant_id, message, progress, stage, status, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`, ev.ID, ev.SourceID, ev.TenantID, ev.Message, ev.Progress, ev.Stage, ev.Status, ev.Error).Scan(&ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("append log: %w", err)
	}
	return nil
}

func (c *DatabaseClient) RecentLogs(ctx context.Context, sourceID string, limit int) ([]models.IngestionLogEvent, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := c.pool.Query(ctx, `
		SELECT id, source_id, tenant_id, message, progress, stage, status, error, created_at
		FROM ingestion_logs
		WHERE source_id = $1
		ORDER BY seq DESC
		LIMIT $2
	`, sourceID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent logs: %w", err)
	}
	defer rows.Close()

	out := []models.IngestionLogEvent{}
	for rows.Next() {
		var ev models.IngestionLogEvent
		if err := rows.Scan(&ev.ID, &ev.SourceID, &ev.TenantID, &ev.Message, &ev.Progress,
			&ev.Stage, &ev.Status, &ev.Error, &ev.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// Settings

func (c *DatabaseClient) MaxCrawlPages(ctx context.Context) (int, error) {
	var n int
	err := c.pool.QueryRow(ctx, `SELECT max_crawl_pages FROM platform_settings WHERE id`).Scan(&n)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.DefaultMaxCrawlPages, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read max crawl pages: %w", err)
	}
	return core.ClampCrawlPages(n), nil
}

func (c *DatabaseClient) SetMaxCrawlPages(ctx context.Context, n int) error {
	if n < 1 || n > core.CrawlPagesCeiling {
		return core.Validationf("max crawl pages must be between 1 and %d", core.CrawlPagesCeiling)
	}
	_, err := c.pool.Exec(ctx, `
		INSERT INTO platform_settings (id, max_crawl_pages, updated_at) VALUES (TRUE, $1, now())
		ON CONFLICT (id) DO UPDATE SET max_crawl_pages = EXCLUDED.max_crawl_pages, updated_at = now()
	`, n)
	if err != nil {
		return fmt.Errorf("set max crawl pages: %w", err)
	}
	return nil
}

var _ core.DbClient = (*DatabaseClient)(nil)
