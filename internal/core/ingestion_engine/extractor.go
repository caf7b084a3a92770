package ingestion_engine

import (
	"context"

	"github.com/Guntherdrb30/TrendsTech.com-sub000/internal/models"
)

const (
	SectionPage     = "Pagina"
	SectionDocument = "Documento"
	SectionGeneral  = "General"
)

// Document is one chunking unit, a crawled page or a whole text, with the
// metadata its chunks carry.
type Document struct {
	Text string
	Meta models.ChunkMetadata
}

// Extraction is what an extractor hands back to the pipeline.
type Extraction struct {
	Title      string
	Text       string // all documents combined
	Documents  []Document
	StorageKey string // set when the extractor saved a binary
}

type Extractor interface {
	Extract(ctx context.Context, src *models.KnowledgeSource) (*Extraction, error)
}

type ExtractorFunc func(ctx context.Context, src *models.KnowledgeSource) (*Extraction, error)

func (f ExtractorFunc) Extract(ctx context.Context, src *models.KnowledgeSource) (*Extraction, error) {
	return f(ctx, src)
}
