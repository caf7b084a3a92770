package ingestion_engine

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/Guntherdrb30/TrendsTech.com-sub000/internal/core"
	"github.com/Guntherdrb30/TrendsTech.com-sub000/internal/models"
)

const PDFContentType = "application/pdf"

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// StorageKey is the blob key of a source binary.
func StorageKey(tenantID, agentID, sourceID, fileName string) string {
	name := unsafeFileChars.ReplaceAllString(path.Base(fileName), "_")
	name = strings.Trim(name, "._")
	if name == "" {
		name = "document.pdf"
	}
	return fmt.Sprintf("tenants/%s/agents/%s/sources/%s/%s", tenantID, agentID, sourceID, name)
}

// PDFInput describes one PDF handed to ExtractPDF.
type PDFInput struct {
	TenantID     string
	AgentID      string
	SourceID     string
	FileName     string
	Title        string
	ContentType  string
	Data         []byte
	AlreadySaved bool
	StorageKey   string
}

// PDFExtractor converts PDFs to text and keeps their binaries in object storage.
type PDFExtractor struct {
	converter core.DocumentConverter
	objects   core.ObjectClient
}

func NewPDFExtractor(converter core.DocumentConverter, objects core.ObjectClient) *PDFExtractor {
	return &PDFExtractor{converter: converter, objects: objects}
}

// ExtractPDF converts first and saves the binary only when text was found and
// it is not already stored.
func (e *PDFExtractor) ExtractPDF(ctx context.Context, in PDFInput) (*Extraction, error) {
	if len(in.Data) == 0 {
		return nil, core.Validationf("pdf %q is empty", in.FileName)
	}
	ct := in.ContentType
	if ct == "" {
		ct = PDFContentType
	}

	text, err := e.converter.Convert(ctx, in.Data, ct)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrNoExtractableText, err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("pdf %q: %w", in.FileName, core.ErrNoExtractableText)
	}

	key := in.StorageKey
	if !in.AlreadySaved {
		if key == "" {
			key = StorageKey(in.TenantID, in.AgentID, in.SourceID, in.FileName)
		}
		if err := e.Save(ctx, key, in.Data, ct); err != nil {
			return nil, err
		}
	}

	title := in.Title
	if title == "" {
		title = in.FileName
	}
	return &Extraction{
		Title: title,
		Text:  text,
		Documents: []Document{{
			Text: text,
			Meta: models.ChunkMetadata{Kind: models.SourceKindPDF, Title: title, Section: SectionDocument},
		}},
		StorageKey: key,
	}, nil
}

func (e *PDFExtractor) Save(ctx context.Context, key string, data []byte, contentType string) error {
	if e.objects == nil {
		return fmt.Errorf("no object storage configured for %s", key)
	}
	if _, err := e.objects.UploadFile(ctx, key, data, contentType); err != nil {
		return fmt.Errorf("store pdf %s: %w", key, err)
	}
	return nil
}

// Extract reads a previously stored binary.
func (e *PDFExtractor) Extract(ctx context.Context, src *models.KnowledgeSource) (*Extraction, error) {
	if src.StorageKey == "" {
		return nil, core.Validationf("pdf source %s has no stored file", src.ID)
	}
	if e.objects == nil {
		return nil, fmt.Errorf("no object storage configured for %s", src.StorageKey)
	}
	data, err := e.objects.GetFile(ctx, src.StorageKey)
	if err != nil {
		return nil, fmt.Errorf("load pdf %s: %w", src.StorageKey, err)
	}
	return e.ExtractPDF(ctx, PDFInput{
		TenantID:     src.TenantID,
		AgentID:      src.AgentID,
		SourceID:     src.ID,
		FileName:     src.FileName,
		Title:        src.Title,
		Data:         data,
		AlreadySaved: true,
		StorageKey:   src.StorageKey,
	})
}
