package ingestion_engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Guntherdrb30/TrendsTech.com-sub000/internal/core"
	"github.com/Guntherdrb30/TrendsTech.com-sub000/internal/core/chunker"
	"github.com/Guntherdrb30/TrendsTech.com-sub000/internal/core/mock"
	"github.com/Guntherdrb30/TrendsTech.com-sub000/internal/models"
)

const testDim = 8

type harness struct {
	store    *mock.Store
	embedder *mock.MockEmbedder
	objects  *mock.ObjectClient
	conv     *fakeConverter
	ing      *DocumentIngestor
}

func newHarness(t *testing.T, chunkCfg chunker.Config) *harness {
	t.Helper()
	h := &harness{
		store:    mock.NewStore(testDim),
		embedder: mock.NewMockEmbedder(testDim),
		objects:  mock.NewObjectClient(),
		conv:     &fakeConverter{},
	}
	crawler := NewCrawler(CrawlConfig{Timeout: 2 * time.Second}, nil)
	h.ing = NewDocumentIngestor(IngestorDeps{
		Sources:  h.store,
		Logs:     h.store,
		Vectors:  h.store,
		Embedder: h.embedder,
		URL:      NewURLExtractor(crawler, h.store),
		PDF:      NewPDFExtractor(h.conv, h.objects),
	}, IngestConfig{Chunk: chunkCfg})
	return h
}

func (h *harness) create(t *testing.T, src models.KnowledgeSource) *models.KnowledgeSource {
	t.Helper()
	if src.TenantID == "" {
		src.TenantID = "t1"
	}
	if src.AgentID == "" {
		src.AgentID = "a1"
	}
	require.NoError(t, h.store.CreateSource(context.Background(), &src))
	return &src
}

func (h *harness) status(t *testing.T, id string) models.SourceStatus {
	t.Helper()
	src, err := h.store.GetSource(context.Background(), id)
	require.NoError(t, err)
	return src.Status
}

func ptr(s string) *string { return &s }

func TestProcessSource_TextSpanish(t *testing.T) {
	h := newHarness(t, chunker.DefaultConfig())
	src := h.create(t, models.KnowledgeSource{
		ID: "s1", Kind: models.SourceKindText, RawText: ptr("Hola. Bienvenido a nuestra empresa."),
	})

	require.NoError(t, h.ing.ProcessSource(context.Background(), src.ID))

	assert.Equal(t, models.SourceStatusReady, h.status(t, src.ID))
	chunks := h.store.Chunks(src.ID)
	require.Len(t, chunks, 1)
	assert.Equal(t, SectionGeneral, chunks[0].Metadata.Section)
	assert.Equal(t, "es", chunks[0].Metadata.Language)
	assert.Equal(t, models.SourceKindText, chunks[0].Metadata.Kind)
	assert.Len(t, chunks[0].Embedding, testDim)

	var stages []models.IngestionStage
	var progress []int
	for _, ev := range h.store.Logs(src.ID) {
		stages = append(stages, ev.Stage)
		progress = append(progress, ev.Progress)
	}
	assert.Equal(t, []models.IngestionStage{
		models.StageStart, models.StageExtract, models.StageNormalize, models.StageNormalize,
		models.StageChunk, models.StageEmbed, models.StageIndex, models.StageDone,
	}, stages)
	assert.Equal(t, []int{5, 30, 40, 45, 60, 80, 95, 100}, progress)
}

func TestProcessSource_PDFWithoutTextFails(t *testing.T) {
	h := newHarness(t, chunker.DefaultConfig())
	h.conv.text = ""
	src := h.create(t, models.KnowledgeSource{ID: "s2", Kind: models.SourceKindPDF, FileName: "scan.pdf"})

	err := h.ing.ProcessSource(context.Background(), src.ID, WithPDFData([]byte("%PDF"), PDFContentType))

	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrNoExtractableText)
	assert.True(t, IsRecorded(err))
	assert.Equal(t, models.SourceStatusFailed, h.status(t, src.ID))
	assert.Empty(t, h.store.Chunks(src.ID))
	assert.Zero(t, h.embedder.CallCount())
	assert.False(t, h.objects.Has(StorageKey("t1", "a1", "s2", "scan.pdf")))

	logs := h.store.Logs(src.ID)
	last := logs[len(logs)-1]
	assert.Equal(t, models.StageError, last.Stage)
	assert.Equal(t, 100, last.Progress)
	assert.Contains(t, last.Message, "no extractable text")
}

func TestProcessSource_PDFUploadStoresKey(t *testing.T) {
	h := newHarness(t, chunker.DefaultConfig())
	h.conv.text = "Garantía de dos años para todos los productos."
	src := h.create(t, models.KnowledgeSource{ID: "s3", Kind: models.SourceKindPDF, FileName: "garantia.pdf"})

	require.NoError(t, h.ing.ProcessSource(context.Background(), src.ID, WithPDFData([]byte("%PDF"), "")))

	got, err := h.store.GetSource(context.Background(), src.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SourceStatusReady, got.Status)
	assert.Equal(t, "garantia.pdf", got.Title)
	assert.Equal(t, StorageKey("t1", "a1", "s3", "garantia.pdf"), got.StorageKey)
	assert.True(t, h.objects.Has(got.StorageKey))
	assert.Equal(t, SectionDocument, h.store.Chunks(src.ID)[0].Metadata.Section)

	// Reindex reads the stored binary.
	require.NoError(t, h.ing.ProcessSource(context.Background(), src.ID))
	assert.Equal(t, 2, h.conv.calls)
	assert.Len(t, h.store.Chunks(src.ID), 1)
}

func TestProcessSource_PDFTextFallback(t *testing.T) {
	h := newHarness(t, chunker.DefaultConfig())
	src := h.create(t, models.KnowledgeSource{ID: "s4", Kind: models.SourceKindPDF, RawText: ptr("Texto pegado del PDF.")})

	require.NoError(t, h.ing.ProcessSource(context.Background(), src.ID))
	chunks := h.store.Chunks(src.ID)
	require.Len(t, chunks, 1)
	assert.Equal(t, models.SourceKindPDF, chunks[0].Metadata.Kind)
	assert.Equal(t, SectionGeneral, chunks[0].Metadata.Section)
}

func TestProcessSource_EmbeddingCountMismatch(t *testing.T) {
	h := newHarness(t, chunker.DefaultConfig())
	h.embedder.EmbedTextsFunc = func(_ context.Context, texts []string) ([][]float32, error) {
		return make([][]float32, len(texts)-1), nil
	}
	src := h.create(t, models.KnowledgeSource{ID: "s5", Kind: models.SourceKindText, RawText: ptr("Some text.")})

	err := h.ing.ProcessSource(context.Background(), src.ID)
	assert.ErrorIs(t, err, core.ErrEmbeddingCountMismatch)
	assert.ErrorIs(t, err, core.ErrIntegrity)
	assert.Equal(t, models.SourceStatusFailed, h.status(t, src.ID))
	assert.Zero(t, h.store.InsertCalls())
	assert.Empty(t, h.store.Chunks(src.ID))

	var pe *PipelineError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, models.StageEmbed, pe.Stage)
}

func TestProcessSource_EmbedErrorIsFatal(t *testing.T) {
	h := newHarness(t, chunker.DefaultConfig())
	h.embedder.EmbedTextsFunc = func(context.Context, []string) ([][]float32, error) {
		return nil, errors.New("quota exceeded")
	}
	src := h.create(t, models.KnowledgeSource{ID: "s6", Kind: models.SourceKindText, RawText: ptr("Some text.")})

	err := h.ing.ProcessSource(context.Background(), src.ID)
	assert.ErrorContains(t, err, "quota exceeded")
	assert.Equal(t, models.SourceStatusFailed, h.status(t, src.ID))
}

func TestProcessSource_LogFailuresDoNotFailRun(t *testing.T) {
	h := newHarness(t, chunker.DefaultConfig())
	h.store.FailAppendLog = errors.New("log table locked")
	src := h.create(t, models.KnowledgeSource{ID: "s7", Kind: models.SourceKindText, RawText: ptr("Still indexed.")})

	require.NoError(t, h.ing.ProcessSource(context.Background(), src.ID))
	assert.Equal(t, models.SourceStatusReady, h.status(t, src.ID))
}

func TestProcessSource_UnrecordedWhenStatusWriteFails(t *testing.T) {
	h := newHarness(t, chunker.DefaultConfig())
	src := h.create(t, models.KnowledgeSource{ID: "s8", Kind: models.SourceKindText, RawText: ptr("x")})
	h.store.FailUpdateStatus = errors.New("db down")

	err := h.ing.ProcessSource(context.Background(), src.ID)
	require.Error(t, err)
	assert.False(t, IsRecorded(err))

	logs := h.store.Logs(src.ID)
	require.NotEmpty(t, logs)
	last := logs[len(logs)-1]
	assert.Equal(t, models.StageError, last.Stage)
	assert.Equal(t, 100, last.Progress)
	assert.Contains(t, last.Error, "db down")
}

func TestProcessSource_MissingSource(t *testing.T) {
	h := newHarness(t, chunker.DefaultConfig())
	err := h.ing.ProcessSource(context.Background(), "nope")
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.False(t, IsRecorded(err))
}

func TestProcessSource_URLReindexReplacesChunks(t *testing.T) {
	var shrunk atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		body := fmt.Sprintf("<h1>Page %s</h1><p>First paragraph about %s with some words.</p><p>Second paragraph about %s with more words.</p>",
			r.URL.Path, r.URL.Path, r.URL.Path)
		if r.URL.Path == "/" && !shrunk.Load() {
			body += `<a href="/a">a</a><a href="/b">b</a>`
		}
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	h := newHarness(t, chunker.Config{MaxTokens: 12, MinTokens: 4})
	require.NoError(t, h.store.SetMaxCrawlPages(context.Background(), 3))
	src := h.create(t, models.KnowledgeSource{ID: "s9", Kind: models.SourceKindURL, OriginURL: srv.URL})

	require.NoError(t, h.ing.ProcessSource(context.Background(), src.ID))
	before := h.store.Chunks(src.ID)
	urls := map[string]bool{}
	for _, c := range before {
		urls[c.Metadata.URL] = true
	}
	assert.Len(t, urls, 3)

	shrunk.Store(true)
	require.NoError(t, h.ing.ProcessSource(context.Background(), src.ID))
	after := h.store.Chunks(src.ID)

	assert.Less(t, len(after), len(before))
	for n, c := range after {
		assert.Equal(t, srv.URL+"/", c.Metadata.URL)
		assert.Equal(t, 1, c.Metadata.Page)
		assert.Equal(t, SectionPage, c.Metadata.Section)
		assert.Equal(t, n, c.Position)
	}
}

func TestProcessSource_URLWithNoReadablePages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	h := newHarness(t, chunker.DefaultConfig())
	src := h.create(t, models.KnowledgeSource{ID: "s10", Kind: models.SourceKindURL, OriginURL: srv.URL})

	err := h.ing.ProcessSource(context.Background(), src.ID)
	assert.ErrorIs(t, err, core.ErrNoReadableContent)
	assert.Equal(t, models.SourceStatusFailed, h.status(t, src.ID))

	var pe *PipelineError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, models.StageCrawl, pe.Stage)
}

func TestProcessSource_URLLanguageFromCombinedText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/robots.txt":
			http.NotFound(w, r)
		case "/":
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte(`<h1>Home</h1><p>The shop is open.</p><a href="/es">es</a>`))
		default:
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte(`<h1>Tienda</h1><p>La tienda de la ciudad es para los amigos y las familias del barrio con una oferta de productos.</p>`))
		}
	}))
	defer srv.Close()

	h := newHarness(t, chunker.DefaultConfig())
	src := h.create(t, models.KnowledgeSource{ID: "s11", Kind: models.SourceKindURL, OriginURL: srv.URL})
	require.NoError(t, h.ing.ProcessSource(context.Background(), src.ID))

	chunks := h.store.Chunks(src.ID)
	pages := map[int]bool{}
	for _, c := range chunks {
		pages[c.Metadata.Page] = true
		assert.Equal(t, "es", c.Metadata.Language, c.Content)
	}
	assert.Len(t, pages, 2)
}
