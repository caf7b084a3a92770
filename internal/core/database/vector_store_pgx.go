package db

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/Guntherdrb30/TrendsTech.com-sub000/internal/core"
	"github.com/Guntherdrb30/TrendsTech.com-sub000/internal/models"
)

// candidateFactor over-fetches search candidates so budget skips still leave topK results.
const candidateFactor = 3

type VectorStore struct {
	pool   *pgxpool.Pool
	dim    int
	logger *slog.Logger
}

func NewVectorStore(pool *pgxpool.Pool, dim int, logger *slog.Logger) *VectorStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &VectorStore{pool: pool, dim: dim, logger: logger.With("component", "vector-store")}
}

func (s *VectorStore) ClearChunksForSource(ctx context.Context, sourceID string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM knowledge_chunks WHERE source_id = $1`, sourceID)
	if err != nil {
		return 0, fmt.Errorf("clear chunks: %w", err)
	}
	return tag.RowsAffected(), nil
}

// validateChunks checks every chunk before anything is written.
func (s *VectorStore) validateChunks(chunks []models.KnowledgeChunk) error {
	for i := range chunks {
		if got := len(chunks[i].Embedding); got != s.dim {
			return fmt.Errorf("%w: chunk %d has %d dimensions, expected %d", core.ErrDimensionMismatch, i, got, s.dim)
		}
		if strings.TrimSpace(chunks[i].Content) == "" {
			return core.Validationf("chunk %d has empty content", i)
		}
	}
	return nil
}

// InsertChunks bulk-inserts chunks for one source inside a single transaction.
func (s *VectorStore) InsertChunks(ctx context.Context, tenantID, agentID, sourceID string, chunks []models.KnowledgeChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if err := s.validateChunks(chunks); err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	batch := &pgx.Batch{}
	for i := range chunks {
		ch := &chunks[i]
		if ch.ID == "" {
			ch.ID = uuid.NewString()
		}
		ch.TenantID, ch.AgentID, ch.SourceID = tenantID, agentID, sourceID
		if ch.CreatedAt.IsZero() {
			ch.CreatedAt = now
		}
		meta, err := json.Marshal(ch.Metadata)
		if err != nil {
			return fmt.Errorf("marshal chunk metadata: %w", err)
		}
		batch.Queue(`
			INSERT INTO knowledge_chunks
				(id, tenant_id, agent_id, source_id, position, content, embedding, token_count, metadata, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, ch.ID, tenantID, agentID, sourceID, ch.Position, ch.Content,
			pgvector.NewVector(ch.Embedding), ch.TokenCount, meta, ch.CreatedAt)
	}

	br := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("batch exec %d: %w", i, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit chunks: %w", err)
	}
	s.logger.Debug("inserted chunks", "source_id", sourceID, "count", len(chunks))
	return nil
}

func (s *VectorStore) HasChunks(ctx context.Context, tenantID, agentID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM knowledge_chunks WHERE tenant_id = $1 AND agent_id = $2)
	`, tenantID, agentID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check chunks: %w", err)
	}
	return exists, nil
}

func (s *VectorStore) CountChunks(ctx context.Context, sourceID string) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM knowledge_chunks WHERE source_id = $1`, sourceID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return n, nil
}

// Search ranks the scope's chunks by cosine similarity and trims them to the token budget.
func (s *VectorStore) Search(ctx context.Context, tenantID, agentID string, query []float32, topK, maxTokens int) ([]models.SearchResult, error) {
	if topK <= 0 {
		return []models.SearchResult{}, nil
	}
	if len(query) != s.dim {
		return nil, fmt.Errorf("%w: query has %d dimensions, expected %d", core.ErrDimensionMismatch, len(query), s.dim)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, source_id, content, token_count, metadata, 1 - (embedding <=> $3) AS score
		FROM knowledge_chunks
		WHERE tenant_id = $1 AND agent_id = $2
		ORDER BY embedding <=> $3
		LIMIT $4
	`, tenantID, agentID, pgvector.NewVector(query), topK*candidateFactor)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	defer rows.Close()

	var candidates []models.SearchResult
	for rows.Next() {
		var (
			r    models.SearchResult
			meta []byte
		)
		if err := rows.Scan(&r.ChunkID, &r.SourceID, &r.Content, &r.TokenCount, &meta, &r.Score); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &r.Metadata); err != nil {
				return nil, fmt.Errorf("decode chunk metadata: %w", err)
			}
		}
		candidates = append(candidates, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return core.TrimToBudget(candidates, topK, maxTokens), nil
}

var _ core.VectorStore = (*VectorStore)(nil)
