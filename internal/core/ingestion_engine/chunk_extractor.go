package ingestion_engine

import (
	"github.com/Guntherdrb30/TrendsTech.com-sub000/internal/core/chunker"
	"github.com/Guntherdrb30/TrendsTech.com-sub000/internal/models"
)

// buildChunks chunks every document in order and numbers the chunks across
// the whole source. lang is detected once over the combined text and stamped
// on every chunk.
func (i *DocumentIngestor) buildChunks(src *models.KnowledgeSource, docs []Document, lang string) []models.KnowledgeChunk {
	var out []models.KnowledgeChunk
	for _, d := range docs {
		text := chunker.Normalize(d.Text)
		if text == "" {
			continue
		}
		meta := d.Meta
		meta.Language = lang

		for _, c := range i.chunker.Chunk(text, meta) {
			out = append(out, models.KnowledgeChunk{
				TenantID:   src.TenantID,
				AgentID:    src.AgentID,
				SourceID:   src.ID,
				Position:   len(out),
				Content:    c.Content,
				TokenCount: c.TokenCount,
				Metadata:   c.Meta,
			})
		}
	}
	return out
}

func chunkTexts(chunks []models.KnowledgeChunk) []string {
	texts := make([]string, len(chunks))
	for n := range chunks {
		texts[n] = chunks[n].Content
	}
	return texts
}
