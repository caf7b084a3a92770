package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Guntherdrb30/TrendsTech.com-sub000/internal/core"
)

const (
	DefaultBatchSize    = 64
	DefaultEmbedTimeout = 60 * time.Second
)

// BatchEmbedder splits requests into fixed-size batches, applies a per-call
// timeout and checks every returned vector against the configured dimension.
type BatchEmbedder struct {
	provider    core.EmbeddingProvider
	model       string
	dim         int
	batchSize   int
	concurrency int
	timeout     time.Duration
	logger      *slog.Logger
}

type Option func(*BatchEmbedder)

func WithBatchSize(n int) Option {
	return func(b *BatchEmbedder) {
		if n > 0 {
			b.batchSize = n
		}
	}
}

// WithConcurrency bounds how many batches are in flight at once.
func WithConcurrency(n int) Option {
	return func(b *BatchEmbedder) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(b *BatchEmbedder) {
		if d > 0 {
			b.timeout = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(b *BatchEmbedder) {
		if l != nil {
			b.logger = l
		}
	}
}

func NewBatchEmbedder(provider core.EmbeddingProvider, model string, dim int, opts ...Option) *BatchEmbedder {
	b := &BatchEmbedder{
		provider:    provider,
		model:       model,
		dim:         dim,
		batchSize:   DefaultBatchSize,
		concurrency: 1,
		timeout:     DefaultEmbedTimeout,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With("component", "embedder", "model", model)
	return b
}

func (b *BatchEmbedder) Dimension() int { return b.dim }
func (b *BatchEmbedder) Model() string  { return b.model }

// EmbedTexts returns one vector per text in input order. Empty input makes no upstream call.
func (b *BatchEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	out := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)
	for start := 0; start < len(texts); start += b.batchSize {
		end := min(start+b.batchSize, len(texts))
		g.Go(func() error {
			return b.embedBatch(gctx, texts[start:end], start, out[start:end])
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// embedBatch fills dst with the vectors for batch, which starts at offset.
func (b *BatchEmbedder) embedBatch(ctx context.Context, batch []string, offset int, dst [][]float32) error {
	end := offset + len(batch)
	callCtx, cancel := context.WithTimeout(ctx, b.timeout)
	vecs, err := b.provider.EmbedTexts(callCtx, batch)
	cancel()
	if err != nil {
		return fmt.Errorf("embed batch [%d:%d]: %w", offset, end, err)
	}
	if len(vecs) != len(batch) {
		return fmt.Errorf("%w: batch [%d:%d] returned %d vectors for %d texts",
			core.ErrEmbeddingCountMismatch, offset, end, len(vecs), len(batch))
	}
	for i, v := range vecs {
		if len(v) != b.dim {
			return fmt.Errorf("%w: text %d has %d dimensions, expected %d",
				core.ErrDimensionMismatch, offset+i, len(v), b.dim)
		}
	}
	copy(dst, vecs)
	b.logger.Debug("embedded batch", "from", offset, "to", end)
	return nil
}

var _ core.Embedder = (*BatchEmbedder)(nil)
