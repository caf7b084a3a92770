package ingestion_engine

import (
	"log/slog"
	"time"

	"github.com/Guntherdrb30/TrendsTech.com-sub000/internal/core"
	"github.com/Guntherdrb30/TrendsTech.com-sub000/internal/core/chunker"
)

// IngestConfig tunes the per-source pipeline.
//
// Chunk:         token budgets for chunking.
// StepTimeout:   bound for the status and log writes made while failing a run.
type IngestConfig struct {
	Chunk       chunker.Config
	StepTimeout time.Duration
}

func DefaultIngestConfig() IngestConfig {
	return IngestConfig{Chunk: chunker.DefaultConfig(), StepTimeout: 30 * time.Second}
}

// CrawlConfig tunes the URL crawler.
//
// Timeout:    per request, including robots.txt.
// UserAgent:  sent on every request.
// RatePerSec: politeness limit for one crawl; 0 disables it.
// MaxBytes:   response body cap.
type CrawlConfig struct {
	Timeout    time.Duration
	UserAgent  string
	RatePerSec float64
	MaxBytes   int64
}

func DefaultCrawlConfig() CrawlConfig {
	return CrawlConfig{
		Timeout:    15 * time.Second,
		UserAgent:  "KnowledgeBot/1.0",
		RatePerSec: 2,
		MaxBytes:   5 * 1024 * 1024,
	}
}

// IngestorDeps are the collaborators of a DocumentIngestor.
//
// Sources:  source rows and their status.
// Logs:     the per-source progress trail.
// Vectors:  chunk storage.
// Embedder: embedding provider (Gemini/OpenAI/etc).
// URL, PDF, Text: kind-specific extractors.
type IngestorDeps struct {
	Sources  core.SourceStore
	Logs     core.LogStore
	Vectors  core.VectorStore
	Embedder core.EmbeddingProvider
	URL      Extractor
	PDF      *PDFExtractor
	Text     *TextExtractor
	Logger   *slog.Logger
}

// DocumentIngestor drives one source through extract, chunk, embed and index.
type DocumentIngestor struct {
	sources  core.SourceStore
	logs     core.LogStore
	vectors  core.VectorStore
	embedder core.EmbeddingProvider
	url      Extractor
	pdf      *PDFExtractor
	text     *TextExtractor
	chunker  *chunker.Chunker
	cfg      IngestConfig
	logger   *slog.Logger
}
