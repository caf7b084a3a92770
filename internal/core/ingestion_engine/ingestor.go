package ingestion_engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/Guntherdrb30/TrendsTech.com-sub000/internal/models"
)

// Ingestor runs the pipeline for one source to completion.
type Ingestor interface {
	ProcessSource(ctx context.Context, sourceID string, opts ...RunOption) error
}

// PipelineError is returned by ProcessSource for every fatal run error. Recorded
// is true once the source was marked FAILED and the terminal log event written.
type PipelineError struct {
	SourceID string
	Stage    models.IngestionStage
	Err      error
	Recorded bool
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("ingest source %s at %s: %v", e.SourceID, e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// IsRecorded reports whether err is a PipelineError whose failure is already persisted.
func IsRecorded(err error) bool {
	var pe *PipelineError
	return errors.As(err, &pe) && pe.Recorded
}

type runOptions struct {
	pdfData        []byte
	pdfContentType string
}

type RunOption func(*runOptions)

// WithPDFData hands the PDF binary to the run directly. The binary is stored
// only after text extraction succeeds.
func WithPDFData(data []byte, contentType string) RunOption {
	return func(o *runOptions) {
		o.pdfData = data
		o.pdfContentType = contentType
	}
}
