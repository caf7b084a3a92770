package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Guntherdrb30/TrendsTech.com-sub000/internal/core"
	"github.com/Guntherdrb30/TrendsTech.com-sub000/internal/core/chunker"
	"github.com/Guntherdrb30/TrendsTech.com-sub000/internal/core/ingestion_engine"
	"github.com/Guntherdrb30/TrendsTech.com-sub000/internal/models"
)

const (
	DefaultLogLimit = 20
	MaxLogLimit     = 200
)

// CreateSourceRequest is a validated-on-entry request for a new source.
// URL sources need URL, TEXT sources RawText, PDF sources FileData or RawText.
type CreateSourceRequest struct {
	TenantID    string
	AgentID     string
	ActorID     string
	Kind        models.SourceKind
	Title       string
	URL         string
	RawText     string
	Section     string
	FileName    string
	FileData    []byte
	ContentType string
}

// SourceService creates sources and hands them to the ingestion queue.
type SourceService struct {
	db       core.DbClient
	queue    core.JobQueue
	pdf      *ingestion_engine.PDFExtractor
	ingestor ingestion_engine.Ingestor
	logger   *slog.Logger

	runTimeout time.Duration
}

type SourceOption func(*SourceService)

// WithRunTimeout bounds inline runs started by CreateAndIngest. It should
// match the worker's job timeout so stale recovery never sees a live run.
func WithRunTimeout(d time.Duration) SourceOption {
	return func(s *SourceService) { s.runTimeout = d }
}

// NewSourceService wires the service. ingestor is only needed by CreateAndIngest.
func NewSourceService(db core.DbClient, queue core.JobQueue, pdf *ingestion_engine.PDFExtractor, ingestor ingestion_engine.Ingestor, logger *slog.Logger, opts ...SourceOption) *SourceService {
	if logger == nil {
		logger = slog.Default()
	}
	s := &SourceService{db: db, queue: queue, pdf: pdf, ingestor: ingestor, logger: logger.With("component", "source-service")}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create stores a PENDING source and enqueues it. PDF bytes are saved to blob
// storage first so the worker can read them back.
func (s *SourceService) Create(ctx context.Context, req CreateSourceRequest) (*models.KnowledgeSource, *models.IngestionJob, error) {
	src, err := s.newSource(req)
	if err != nil {
		return nil, nil, err
	}

	if len(req.FileData) > 0 {
		src.StorageKey = ingestion_engine.StorageKey(src.TenantID, src.AgentID, src.ID, src.FileName)
		if s.pdf == nil {
			return nil, nil, fmt.Errorf("pdf uploads are not configured")
		}
		if err := s.pdf.Save(ctx, src.StorageKey, req.FileData, contentTypeOr(req.ContentType)); err != nil {
			return nil, nil, err
		}
	}

	if err := s.db.CreateSource(ctx, src); err != nil {
		return nil, nil, fmt.Errorf("create source: %w", err)
	}
	job, err := s.enqueue(ctx, src, req.ActorID)
	if err != nil {
		return src, nil, err
	}
	s.logger.Info("source created", "source_id", src.ID, "tenant_id", src.TenantID, "kind", src.Kind)
	return src, job, nil
}

// CreateAndIngest stores a source and runs the pipeline inline. The run holds
// the source's queue slot as an active job, so a concurrent Reindex
// deduplicates against it instead of starting a second run. PDF bytes are
// saved only after text was extracted from them.
func (s *SourceService) CreateAndIngest(ctx context.Context, req CreateSourceRequest) (*models.KnowledgeSource, error) {
	if s.ingestor == nil {
		return nil, fmt.Errorf("synchronous ingestion is not configured")
	}
	src, err := s.newSource(req)
	if err != nil {
		return nil, err
	}
	if err := s.db.CreateSource(ctx, src); err != nil {
		return nil, fmt.Errorf("create source: %w", err)
	}

	job, acquired, err := s.queue.Acquire(ctx, models.JobPayload{SourceID: src.ID, TenantID: src.TenantID, ActorID: req.ActorID})
	if err == nil && !acquired {
		err = fmt.Errorf("source %s already has a %s job", src.ID, job.State)
	}
	if err != nil {
		s.markFailed(ctx, src)
		return src, fmt.Errorf("acquire job: %w", err)
	}

	var opts []ingestion_engine.RunOption
	if len(req.FileData) > 0 {
		opts = append(opts, ingestion_engine.WithPDFData(req.FileData, contentTypeOr(req.ContentType)))
	}
	runCtx, cancel := ctx, context.CancelFunc(func() {})
	if s.runTimeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, s.runTimeout)
	}
	runErr := s.ingestor.ProcessSource(runCtx, src.ID, opts...)
	cancel()
	s.settle(ctx, src, runErr)

	got, err := s.db.GetSource(ctx, src.ID)
	if err != nil {
		got = src
	}
	return got, runErr
}

// settle releases the job slot of an inline run.
func (s *SourceService) settle(ctx context.Context, src *models.KnowledgeSource, runErr error) {
	ctx = context.WithoutCancel(ctx)
	if runErr == nil {
		if err := s.queue.Complete(ctx, src.ID); err != nil {
			s.logger.Error("complete inline job", "source_id", src.ID, "err", err)
		}
		return
	}
	if !ingestion_engine.IsRecorded(runErr) {
		s.markFailed(ctx, src)
	}
	if err := s.queue.Fail(ctx, src.ID, runErr.Error()); err != nil {
		s.logger.Error("fail inline job", "source_id", src.ID, "err", err)
	}
}

func (s *SourceService) markFailed(ctx context.Context, src *models.KnowledgeSource) {
	if err := s.db.UpdateSourceStatus(context.WithoutCancel(ctx), src.ID, models.SourceStatusFailed); err != nil {
		s.logger.Error("mark source failed", "source_id", src.ID, "err", err)
		return
	}
	src.Status = models.SourceStatusFailed
}

// Reindex re-enqueues an existing source of the tenant. A source that already
// has a live job is returned unchanged.
func (s *SourceService) Reindex(ctx context.Context, tenantID, sourceID, actorID string) (*models.KnowledgeSource, *models.IngestionJob, error) {
	src, err := s.db.GetSourceForTenant(ctx, tenantID, sourceID)
	if err != nil {
		return nil, nil, err
	}

	job, err := s.queue.Get(ctx, src.ID)
	switch {
	case err == nil && !job.State.Terminal():
		s.logger.Info("reindex deduplicated", "source_id", src.ID, "state", job.State)
		return src, job, nil
	case err != nil && !errors.Is(err, core.ErrNotFound):
		return nil, nil, fmt.Errorf("look up job: %w", err)
	}

	if err := s.db.UpdateSourceStatus(ctx, src.ID, models.SourceStatusPending); err != nil {
		return nil, nil, fmt.Errorf("reset source: %w", err)
	}
	src.Status = models.SourceStatusPending

	job, err = s.enqueue(ctx, src, actorID)
	if err != nil {
		return src, nil, err
	}
	return src, job, nil
}

func (s *SourceService) Get(ctx context.Context, tenantID, sourceID string) (*models.KnowledgeSource, error) {
	return s.db.GetSourceForTenant(ctx, tenantID, sourceID)
}

func (s *SourceService) List(ctx context.Context, tenantID, agentID string) ([]models.KnowledgeSource, error) {
	if tenantID == "" {
		return nil, core.Validationf("tenant id is required")
	}
	return s.db.ListSources(ctx, tenantID, agentID)
}

// Logs returns the most recent events of a tenant's source, newest first.
func (s *SourceService) Logs(ctx context.Context, tenantID, sourceID string, limit int) ([]models.IngestionLogEvent, error) {
	if _, err := s.db.GetSourceForTenant(ctx, tenantID, sourceID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultLogLimit
	}
	if limit > MaxLogLimit {
		limit = MaxLogLimit
	}
	return s.db.RecentLogs(ctx, sourceID, limit)
}

// enqueue writes the queued event and submits the job. An enqueue failure
// marks the source FAILED so it never sits PENDING with no job behind it.
func (s *SourceService) enqueue(ctx context.Context, src *models.KnowledgeSource, actorID string) (*models.IngestionJob, error) {
	ev := &models.IngestionLogEvent{
		SourceID: src.ID,
		TenantID: src.TenantID,
		Message:  "queued",
		Progress: 0,
		Stage:    models.StageQueued,
		Status:   string(models.SourceStatusPending),
	}
	if err := s.db.AppendLog(ctx, ev); err != nil {
		s.logger.Warn("could not write queued event", "source_id", src.ID, "err", err)
	}

	job, created, err := s.queue.Enqueue(ctx, models.JobPayload{SourceID: src.ID, TenantID: src.TenantID, ActorID: actorID})
	if err != nil {
		s.logger.Error("enqueue failed", "source_id", src.ID, "err", err)
		s.markFailed(ctx, src)
		return nil, fmt.Errorf("enqueue source %s: %w", src.ID, err)
	}
	if !created {
		s.logger.Info("enqueue deduplicated", "source_id", src.ID, "state", job.State)
	}
	return job, nil
}

func (s *SourceService) newSource(req CreateSourceRequest) (*models.KnowledgeSource, error) {
	if err := validateCreate(&req); err != nil {
		return nil, err
	}
	src := &models.KnowledgeSource{
		ID:       uuid.NewString(),
		TenantID: req.TenantID,
		AgentID:  req.AgentID,
		Kind:     req.Kind,
		Title:    strings.TrimSpace(req.Title),
		FileName: req.FileName,
		Section:  strings.TrimSpace(req.Section),
		Status:   models.SourceStatusPending,
	}
	switch req.Kind {
	case models.SourceKindURL:
		src.OriginURL = req.URL
	case models.SourceKindText, models.SourceKindPDF:
		if len(req.FileData) == 0 {
			raw := req.RawText
			src.RawText = &raw
		}
	}
	return src, nil
}

func validateCreate(req *CreateSourceRequest) error {
	req.TenantID = strings.TrimSpace(req.TenantID)
	req.AgentID = strings.TrimSpace(req.AgentID)
	if req.TenantID == "" {
		return core.Validationf("tenant id is required")
	}
	if req.AgentID == "" {
		return core.Validationf("agent id is required")
	}
	req.Kind = models.SourceKind(strings.ToUpper(string(req.Kind)))
	if !req.Kind.Valid() {
		return core.Validationf("kind must be one of URL, PDF, TEXT, got %q", req.Kind)
	}

	switch req.Kind {
	case models.SourceKindURL:
		u, err := ingestion_engine.NormalizeURL(req.URL)
		if err != nil {
			return err
		}
		req.URL = u.String()
	case models.SourceKindText:
		if chunker.Normalize(req.RawText) == "" {
			return core.Validationf("raw text is required for TEXT sources")
		}
	case models.SourceKindPDF:
		if len(req.FileData) == 0 && chunker.Normalize(req.RawText) == "" {
			return core.Validationf("a file or raw text is required for PDF sources")
		}
		if len(req.FileData) > 0 && strings.TrimSpace(req.FileName) == "" {
			return core.Validationf("file name is required for PDF uploads")
		}
	}
	return nil
}

func contentTypeOr(ct string) string {
	if ct == "" || ct == "application/octet-stream" {
		return ingestion_engine.PDFContentType
	}
	return ct
}
