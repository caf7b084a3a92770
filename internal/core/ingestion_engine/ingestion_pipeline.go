package ingestion_engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Guntherdrb30/TrendsTech.com-sub000/internal/core"
	"github.com/Guntherdrb30/TrendsTech.com-sub000/internal/core/chunker"
	"github.com/Guntherdrb30/TrendsTech.com-sub000/internal/models"
)

// NewDocumentIngestor wires the pipeline. Sources, Logs, Vectors and Embedder are required.
func NewDocumentIngestor(deps IngestorDeps, cfg IngestConfig) *DocumentIngestor {
	if cfg.StepTimeout <= 0 {
		cfg.StepTimeout = DefaultIngestConfig().StepTimeout
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	text := deps.Text
	if text == nil {
		text = NewTextExtractor()
	}
	return &DocumentIngestor{
		sources:  deps.Sources,
		logs:     deps.Logs,
		vectors:  deps.Vectors,
		embedder: deps.Embedder,
		url:      deps.URL,
		pdf:      deps.PDF,
		text:     text,
		chunker:  chunker.New(cfg.Chunk),
		cfg:      cfg,
		logger:   logger.With("component", "ingestor"),
	}
}

// ProcessSource runs one full pass for a source: extract, checkpoint, clear,
// chunk, embed, insert. Any fatal error marks the source FAILED, writes an
// error event and is returned as a *PipelineError.
func (i *DocumentIngestor) ProcessSource(ctx context.Context, sourceID string, opts ...RunOption) error {
	var ro runOptions
	for _, o := range opts {
		o(&ro)
	}

	src, err := i.sources.GetSource(ctx, sourceID)
	if err != nil {
		// Nothing to mark when the row itself is missing.
		return &PipelineError{SourceID: sourceID, Stage: models.StageStart, Err: err}
	}
	log := i.logger.With("source_id", src.ID, "tenant_id", src.TenantID, "kind", src.Kind)

	stage := models.StageStart
	fail := func(err error) error {
		return i.fail(ctx, log, src, stage, err)
	}

	if err := i.sources.UpdateSourceStatus(ctx, src.ID, models.SourceStatusProcessing); err != nil {
		return fail(fmt.Errorf("mark processing: %w", err))
	}
	i.emit(ctx, log, src, models.StageStart, 5, "processing started")

	stage = models.StageExtract
	if src.Kind == models.SourceKindURL {
		stage = models.StageCrawl
	}
	ext, err := i.extract(ctx, src, ro)
	if err != nil {
		return fail(err)
	}
	i.emit(ctx, log, src, stage, 30, fmt.Sprintf("extracted %d document(s)", len(ext.Documents)))

	stage = models.StageNormalize
	text := chunker.Normalize(ext.Text)
	i.emit(ctx, log, src, stage, 40, "text normalized")
	lang := chunker.DetectLanguage(text)
	i.emit(ctx, log, src, stage, 45, "language "+lang)

	title := ext.Title
	if title == "" {
		title = src.Title
	}
	if err := i.sources.SaveExtraction(ctx, src.ID, title, text, ext.StorageKey); err != nil {
		return fail(fmt.Errorf("save extraction: %w", err))
	}
	if removed, err := i.vectors.ClearChunksForSource(ctx, src.ID); err != nil {
		return fail(fmt.Errorf("clear chunks: %w", err))
	} else if removed > 0 {
		log.Info("cleared previous chunks", "count", removed)
	}

	stage = models.StageChunk
	chunks := i.buildChunks(src, ext.Documents, lang)
	if len(chunks) == 0 {
		return fail(core.ErrNoChunks)
	}
	i.emit(ctx, log, src, stage, 60, fmt.Sprintf("%d chunks", len(chunks)))

	stage = models.StageEmbed
	vectors, err := i.embedder.EmbedTexts(ctx, chunkTexts(chunks))
	if err != nil {
		return fail(fmt.Errorf("embed chunks: %w", err))
	}
	if len(vectors) != len(chunks) {
		return fail(fmt.Errorf("%w: got %d embeddings for %d chunks",
			core.ErrEmbeddingCountMismatch, len(vectors), len(chunks)))
	}
	for n := range chunks {
		chunks[n].Embedding = vectors[n]
	}
	i.emit(ctx, log, src, stage, 80, "embeddings created")

	stage = models.StageIndex
	if err := i.vectors.InsertChunks(ctx, src.TenantID, src.AgentID, src.ID, chunks); err != nil {
		return fail(fmt.Errorf("insert chunks: %w", err))
	}
	i.emit(ctx, log, src, stage, 95, "chunks indexed")

	stage = models.StageDone
	if err := i.sources.UpdateSourceStatus(ctx, src.ID, models.SourceStatusReady); err != nil {
		return fail(fmt.Errorf("mark ready: %w", err))
	}
	i.emitStatus(ctx, log, src, models.StageDone, 100, "done", string(models.SourceStatusReady))

	log.Info("source ingested", "chunks", len(chunks))
	return nil
}

func (i *DocumentIngestor) extract(ctx context.Context, src *models.KnowledgeSource, ro runOptions) (*Extraction, error) {
	switch src.Kind {
	case models.SourceKindURL:
		if i.url == nil {
			return nil, fmt.Errorf("no url extractor configured")
		}
		return i.url.Extract(ctx, src)
	case models.SourceKindPDF:
		switch {
		case len(ro.pdfData) > 0:
			if i.pdf == nil {
				return nil, fmt.Errorf("no pdf extractor configured")
			}
			return i.pdf.ExtractPDF(ctx, PDFInput{
				TenantID:    src.TenantID,
				AgentID:     src.AgentID,
				SourceID:    src.ID,
				FileName:    src.FileName,
				Title:       src.Title,
				ContentType: ro.pdfContentType,
				Data:        ro.pdfData,
				StorageKey:  src.StorageKey,
			})
		case src.StorageKey != "":
			if i.pdf == nil {
				return nil, fmt.Errorf("no pdf extractor configured")
			}
			return i.pdf.Extract(ctx, src)
		case src.RawText != nil:
			return i.text.extract(src, models.SourceKindPDF)
		default:
			return nil, core.Validationf("pdf source %s has neither a stored file nor text", src.ID)
		}
	case models.SourceKindText:
		return i.text.extract(src, models.SourceKindText)
	default:
		return nil, core.Validationf("unknown source kind %q", src.Kind)
	}
}

// fail persists the failure outside the run's cancellation so a timed-out job
// still lands in FAILED.
func (i *DocumentIngestor) fail(ctx context.Context, log *slog.Logger, src *models.KnowledgeSource, stage models.IngestionStage, cause error) error {
	pe := &PipelineError{SourceID: src.ID, Stage: stage, Err: cause}
	log.Error("ingestion failed", "stage", stage, "err", cause)

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), i.cfg.StepTimeout)
	defer cancel()

	marked := true
	if err := i.sources.UpdateSourceStatus(wctx, src.ID, models.SourceStatusFailed); err != nil {
		log.Error("could not mark source failed", "err", err)
		marked = false
	}
	ev := &models.IngestionLogEvent{
		SourceID: src.ID,
		TenantID: src.TenantID,
		Message:  cause.Error(),
		Progress: 100,
		Stage:    models.StageError,
		Status:   string(models.SourceStatusFailed),
		Error:    cause.Error(),
	}
	if err := i.logs.AppendLog(wctx, ev); err != nil {
		log.Warn("could not write failure event", "err", err)
		return pe
	}
	pe.Recorded = marked
	return pe
}

func (i *DocumentIngestor) emit(ctx context.Context, log *slog.Logger, src *models.KnowledgeSource, stage models.IngestionStage, progress int, msg string) {
	i.emitStatus(ctx, log, src, stage, progress, msg, string(models.SourceStatusProcessing))
}

// emitStatus appends a progress event. Log writes never fail a run.
func (i *DocumentIngestor) emitStatus(ctx context.Context, log *slog.Logger, src *models.KnowledgeSource, stage models.IngestionStage, progress int, msg, status string) {
	ev := &models.IngestionLogEvent{
		SourceID: src.ID,
		TenantID: src.TenantID,
		Message:  msg,
		Progress: progress,
		Stage:    stage,
		Status:   status,
	}
	if err := i.logs.AppendLog(ctx, ev); err != nil {
		log.Warn("could not write progress event", "stage", stage, "err", err)
		return
	}
	log.Debug("progress", "stage", stage, "progress", progress, "msg", msg)
}

var _ Ingestor = (*DocumentIngestor)(nil)
