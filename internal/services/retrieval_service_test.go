package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Guntherdrb30/TrendsTech.com-sub000/internal/core"
	"github.com/Guntherdrb30/TrendsTech.com-sub000/internal/core/mock"
	"github.com/Guntherdrb30/TrendsTech.com-sub000/internal/models"
)

func seedChunks(t *testing.T, store *mock.Store, tenant, agent, sourceID string, texts ...string) {
	t.Helper()
	chunks := make([]models.KnowledgeChunk, len(texts))
	for i, text := range texts {
		chunks[i] = models.KnowledgeChunk{
			Position:   i,
			Content:    text,
			TokenCount: 10,
			Embedding:  mock.DeterministicVector(text, 8),
		}
	}
	require.NoError(t, store.InsertChunks(context.Background(), tenant, agent, sourceID, chunks))
}

func TestSearch_EmptyIndexSkipsEmbedding(t *testing.T) {
	store := mock.NewStore(8)
	emb := mock.NewMockEmbedder(8)
	svc := NewRetrievalService(store, emb, nil)

	results, err := svc.Search(context.Background(), SearchRequest{
		TenantID: "t1", AgentID: "a1", Query: "refund policy", TopK: 4, MaxTokens: 1200,
	})
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.NotNil(t, results)
	assert.Zero(t, emb.CallCount())
}

func TestSearch_BlankQuery(t *testing.T) {
	store := mock.NewStore(8)
	seedChunks(t, store, "t1", "a1", "s1", "refunds within 14 days")
	emb := mock.NewMockEmbedder(8)

	results, err := NewRetrievalService(store, emb, nil).Search(context.Background(), SearchRequest{TenantID: "t1", AgentID: "a1", Query: "  "})
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Zero(t, emb.CallCount())
}

func TestSearch_RanksExactMatchFirstAndScopes(t *testing.T) {
	store := mock.NewStore(8)
	seedChunks(t, store, "t1", "a1", "s1", "refund policy", "shipping times", "store hours", "payment methods", "warranty")
	seedChunks(t, store, "t2", "a1", "s2", "refund policy")
	svc := NewRetrievalService(store, mock.NewMockEmbedder(8), nil)

	results, err := svc.Search(context.Background(), SearchRequest{TenantID: "t1", AgentID: "a1", Query: "refund policy"})
	require.NoError(t, err)

	require.Len(t, results, core.DefaultSearchTopK)
	assert.Equal(t, "refund policy", results[0].Content)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
	for _, r := range results {
		assert.Equal(t, "s1", r.SourceID)
	}
}

func TestSearch_TokenBudget(t *testing.T) {
	store := mock.NewStore(8)
	seedChunks(t, store, "t1", "a1", "s1", "a", "b", "c", "d")
	svc := NewRetrievalService(store, mock.NewMockEmbedder(8), nil)

	results, err := svc.Search(context.Background(), SearchRequest{TenantID: "t1", AgentID: "a1", Query: "a", TopK: 4, MaxTokens: 25})
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestSearch_RequiresScope(t *testing.T) {
	svc := NewRetrievalService(mock.NewStore(8), mock.NewMockEmbedder(8), nil)
	_, err := svc.Search(context.Background(), SearchRequest{Query: "x"})
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestSettings_SetMaxCrawlPages(t *testing.T) {
	store := mock.NewStore(8)
	svc := NewSettingsService(store)
	ctx := context.Background()

	n, err := svc.MaxCrawlPages(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.DefaultMaxCrawlPages, n)

	require.NoError(t, svc.SetMaxCrawlPages(ctx, 12))
	n, err = svc.MaxCrawlPages(ctx)
	require.NoError(t, err)
	assert.Equal(t, 12, n)

	assert.ErrorIs(t, svc.SetMaxCrawlPages(ctx, 26), core.ErrValidation)
	assert.ErrorIs(t, svc.SetMaxCrawlPages(ctx, 0), core.ErrValidation)
}
