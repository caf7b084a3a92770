package core

import "context"

// EmbeddingProvider turns texts into vectors, one per input, in input order.
type EmbeddingProvider interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Embedder is an EmbeddingProvider with a fixed output dimension.
type Embedder interface {
	EmbeddingProvider
	Dimension() int
	Model() string
}
