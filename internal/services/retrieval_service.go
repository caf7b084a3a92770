package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Guntherdrb30/TrendsTech.com-sub000/internal/core"
	"github.com/Guntherdrb30/TrendsTech.com-sub000/internal/models"
)

const maxTopK = 50

type SearchRequest struct {
	TenantID  string `json:"tenant_id"`
	AgentID   string `json:"agent_id"`
	Query     string `json:"query"`
	TopK      int    `json:"top_k,omitempty"`
	MaxTokens int    `json:"max_tokens,omitempty"`
}

// RetrievalService answers similarity searches over an agent's chunks.
type RetrievalService struct {
	vectors  core.VectorStore
	embedder core.EmbeddingProvider
	logger   *slog.Logger
}

func NewRetrievalService(vectors core.VectorStore, embedder core.EmbeddingProvider, logger *slog.Logger) *RetrievalService {
	if logger == nil {
		logger = slog.Default()
	}
	return &RetrievalService{vectors: vectors, embedder: embedder, logger: logger.With("component", "retrieval")}
}

// Search returns ranked chunks within the token budget. Blank queries and
// agents with nothing indexed return an empty list without an embedding call.
func (s *RetrievalService) Search(ctx context.Context, req SearchRequest) ([]models.SearchResult, error) {
	if req.TenantID == "" || req.AgentID == "" {
		return nil, core.Validationf("tenant id and agent id are required")
	}
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return []models.SearchResult{}, nil
	}

	topK := req.TopK
	if topK <= 0 {
		topK = core.DefaultSearchTopK
	}
	if topK > maxTopK {
		topK = maxTopK
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = core.DefaultSearchMaxTokens
	}

	has, err := s.vectors.HasChunks(ctx, req.TenantID, req.AgentID)
	if err != nil {
		return nil, fmt.Errorf("check index: %w", err)
	}
	if !has {
		return []models.SearchResult{}, nil
	}

	vecs, err := s.embedder.EmbedTexts(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("%w: got %d embeddings for 1 query", core.ErrEmbeddingCountMismatch, len(vecs))
	}

	results, err := s.vectors.Search(ctx, req.TenantID, req.AgentID, vecs[0], topK, maxTokens)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	s.logger.Debug("search", "tenant_id", req.TenantID, "agent_id", req.AgentID, "results", len(results))
	if results == nil {
		results = []models.SearchResult{}
	}
	return results, nil
}
