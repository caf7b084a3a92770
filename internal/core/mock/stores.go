package mock

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Guntherdrb30/TrendsTech.com-sub000/internal/core"
	"github.com/Guntherdrb30/TrendsTech.com-sub000/internal/models"
)

// Store is an in-memory core.DbClient plus core.VectorStore.
// Fail* fields inject errors into the matching operations.
type Store struct {
	mu       sync.Mutex
	sources  map[string]models.KnowledgeSource
	chunks   map[string][]models.KnowledgeChunk
	logs     []models.IngestionLogEvent
	maxPages int
	dim      int

	FailAppendLog    error
	FailUpdateStatus error
	FailInsertChunks error
	FailSearch       error

	insertCalls int
}

func NewStore(dim int) *Store {
	return &Store{
		sources:  make(map[string]models.KnowledgeSource),
		chunks:   make(map[string][]models.KnowledgeChunk),
		maxPages: core.DefaultMaxCrawlPages,
		dim:      dim,
	}
}

func (s *Store) Ping(context.Context) error { return nil }
func (s *Store) Close() error               { return nil }

func (s *Store) CreateSource(_ context.Context, src *models.KnowledgeSource) error {
	if src == nil {
		return errors.New("nil source")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if src.ID == "" {
		src.ID = uuid.NewString()
	}
	if _, ok := s.sources[src.ID]; ok {
		return fmt.Errorf("source %s already exists", src.ID)
	}
	if src.Status == "" {
		src.Status = models.SourceStatusPending
	}
	now := time.Now().UTC()
	src.CreatedAt, src.UpdatedAt = now, now
	s.sources[src.ID] = *src
	return nil
}

func (s *Store) GetSource(_ context.Context, id string) (*models.KnowledgeSource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.sources[id]
	if !ok {
		return nil, fmt.Errorf("source %s: %w", id, core.ErrNotFound)
	}
	return &src, nil
}

func (s *Store) GetSourceForTenant(ctx context.Context, tenantID, id string) (*models.KnowledgeSource, error) {
	src, err := s.GetSource(ctx, id)
	if err != nil {
		return nil, err
	}
	if src.TenantID != tenantID {
		return nil, fmt.Errorf("source %s: %w", id, core.ErrNotFound)
	}
	return src, nil
}

func (s *Store) ListSources(_ context.Context, tenantID, agentID string) ([]models.KnowledgeSource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.KnowledgeSource
	for _, src := range s.sources {
		if src.TenantID == tenantID && (agentID == "" || src.AgentID == agentID) {
			out = append(out, src)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) UpdateSourceStatus(_ context.Context, id string, status models.SourceStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailUpdateStatus != nil {
		return s.FailUpdateStatus
	}
	src, ok := s.sources[id]
	if !ok {
		return fmt.Errorf("source %s: %w", id, core.ErrNotFound)
	}
	src.Status = status
	src.UpdatedAt = time.Now().UTC()
	s.sources[id] = src
	return nil
}

func (s *Store) SaveExtraction(_ context.Context, id, title, rawText, storageKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.sources[id]
	if !ok {
		return fmt.Errorf("source %s: %w", id, core.ErrNotFound)
	}
	src.Title = title
	src.RawText = &rawText
	if storageKey != "" {
		src.StorageKey = storageKey
	}
	src.Status = models.SourceStatusProcessing
	s.sources[id] = src
	return nil
}

func (s *Store) AppendLog(_ context.Context, ev *models.IngestionLogEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailAppendLog != nil {
		return s.FailAppendLog
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	ev.Progress = models.ClampProgress(ev.Progress)
	ev.CreatedAt = time.Now().UTC()
	s.logs = append(s.logs, *ev)
	return nil
}

func (s *Store) RecentLogs(_ context.Context, sourceID string, limit int) ([]models.IngestionLogEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.IngestionLogEvent{}
	for i := len(s.logs) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if s.logs[i].SourceID == sourceID {
			out = append(out, s.logs[i])
		}
	}
	return out, nil
}

// Logs returns every event for a source in append order.
func (s *Store) Logs(sourceID string) []models.IngestionLogEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.IngestionLogEvent
	for _, ev := range s.logs {
		if ev.SourceID == sourceID {
			out = append(out, ev)
		}
	}
	return out
}

func (s *Store) MaxCrawlPages(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxPages, nil
}

func (s *Store) SetMaxCrawlPages(_ context.Context, n int) error {
	if n < 1 || n > core.CrawlPagesCeiling {
		return core.Validationf("max crawl pages must be between 1 and %d", core.CrawlPagesCeiling)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxPages = n
	return nil
}

// Chunks

func (s *Store) ClearChunksForSource(_ context.Context, sourceID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.chunks[sourceID])
	delete(s.chunks, sourceID)
	return int64(n), nil
}

func (s *Store) InsertChunks(_ context.Context, tenantID, agentID, sourceID string, chunks []models.KnowledgeChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insertCalls++
	if s.FailInsertChunks != nil {
		return s.FailInsertChunks
	}
	for i := range chunks {
		if len(chunks[i].Embedding) != s.dim {
			return fmt.Errorf("%w: chunk %d has %d dimensions, expected %d",
				core.ErrDimensionMismatch, i, len(chunks[i].Embedding), s.dim)
		}
		if strings.TrimSpace(chunks[i].Content) == "" {
			return core.Validationf("chunk %d has empty content", i)
		}
	}
	for _, ch := range chunks {
		if ch.ID == "" {
			ch.ID = uuid.NewString()
		}
		ch.TenantID, ch.AgentID, ch.SourceID = tenantID, agentID, sourceID
		s.chunks[sourceID] = append(s.chunks[sourceID], ch)
	}
	return nil
}

// Chunks returns a copy of the chunks stored for a source.
func (s *Store) Chunks(sourceID string) []models.KnowledgeChunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.KnowledgeChunk(nil), s.chunks[sourceID]...)
}

// InsertCalls counts InsertChunks calls with a non-empty slice.
func (s *Store) InsertCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertCalls
}

func (s *Store) HasChunks(_ context.Context, tenantID, agentID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, list := range s.chunks {
		for _, ch := range list {
			if ch.TenantID == tenantID && ch.AgentID == agentID {
				return true, nil
			}
		}
	}
	return false, nil
}

func (s *Store) CountChunks(_ context.Context, sourceID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chunks[sourceID]), nil
}

func (s *Store) Search(_ context.Context, tenantID, agentID string, query []float32, topK, maxTokens int) ([]models.SearchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailSearch != nil {
		return nil, s.FailSearch
	}
	var cands []models.SearchResult
	for _, list := range s.chunks {
		for _, ch := range list {
			if ch.TenantID != tenantID || ch.AgentID != agentID {
				continue
			}
			cands = append(cands, models.SearchResult{
				ChunkID:    ch.ID,
				SourceID:   ch.SourceID,
				Content:    ch.Content,
				Score:      cosine(query, ch.Embedding),
				TokenCount: ch.TokenCount,
				Metadata:   ch.Metadata,
			})
		}
	}
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].Score > cands[j].Score })
	if len(cands) > topK*3 {
		cands = cands[:topK*3]
	}
	return core.TrimToBudget(cands, topK, maxTokens), nil
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

var (
	_ core.DbClient    = (*Store)(nil)
	_ core.VectorStore = (*Store)(nil)
)
