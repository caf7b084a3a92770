package ingestion_engine

import (
	"context"
	"fmt"

	"github.com/Guntherdrb30/TrendsTech.com-sub000/internal/core"
	"github.com/Guntherdrb30/TrendsTech.com-sub000/internal/core/chunker"
	"github.com/Guntherdrb30/TrendsTech.com-sub000/internal/models"
)

// TextExtractor wraps a source's raw text as a single document.
type TextExtractor struct{}

func NewTextExtractor() *TextExtractor { return &TextExtractor{} }

func (e *TextExtractor) Extract(_ context.Context, src *models.KnowledgeSource) (*Extraction, error) {
	kind := src.Kind
	if kind == "" {
		kind = models.SourceKindText
	}
	return e.extract(src, kind)
}

func (e *TextExtractor) extract(src *models.KnowledgeSource, kind models.SourceKind) (*Extraction, error) {
	if src.RawText == nil || chunker.Normalize(*src.RawText) == "" {
		return nil, fmt.Errorf("source %s: %w", src.ID, core.ErrEmptyText)
	}
	section := src.Section
	if section == "" {
		section = SectionGeneral
	}
	title := src.Title
	if title == "" {
		title = src.FileName
	}
	text := *src.RawText
	return &Extraction{
		Title: title,
		Text:  text,
		Documents: []Document{{
			Text: text,
			Meta: models.ChunkMetadata{Kind: kind, Title: title, Section: section},
		}},
	}, nil
}
