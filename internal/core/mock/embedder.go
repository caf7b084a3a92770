package mock

import (
	"context"
	"hash/fnv"
	"sync"

	"github.com/Guntherdrb30/TrendsTech.com-sub000/internal/core"
)

// MockEmbedder is a test double for core.Embedder.
// It allows custom behavior injection via function fields.
type MockEmbedder struct {
	// EmbedTextsFunc is called by EmbedTexts if set.
	// If nil, returns deterministic vectors of length Dim.
	EmbedTextsFunc func(ctx context.Context, texts []string) ([][]float32, error)

	Dim int

	mu        sync.Mutex
	callCount int
	texts     int
}

func NewMockEmbedder(dim int) *MockEmbedder {
	return &MockEmbedder{Dim: dim}
}

func (m *MockEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	m.callCount++
	m.texts += len(texts)
	fn := m.EmbedTextsFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, texts)
	}

	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = DeterministicVector(t, m.Dim)
	}
	return out, nil
}

func (m *MockEmbedder) Dimension() int { return m.Dim }
func (m *MockEmbedder) Model() string  { return "mock" }

// CallCount returns the number of EmbedTexts calls.
func (m *MockEmbedder) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// TextCount returns how many texts were embedded across all calls.
func (m *MockEmbedder) TextCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.texts
}

// DeterministicVector derives a stable vector from the text's FNV hash.
func DeterministicVector(text string, dim int) []float32 {
	h := fnv.New32a()
	h.Write([]byte(text))
	seed := h.Sum32()

	vector := make([]float32, dim)
	for i := 0; i < dim; i++ {
		seed = seed*1664525 + 1013904223 // LCG constants
		vector[i] = float32(seed%1000)/1000.0 + 0.001
	}
	return vector
}

var _ core.Embedder = (*MockEmbedder)(nil)
