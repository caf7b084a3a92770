package ingestion_engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/Guntherdrb30/TrendsTech.com-sub000/internal/core"
	"github.com/Guntherdrb30/TrendsTech.com-sub000/internal/models"
)

// URLExtractor crawls a site and turns every readable page into a document.
type URLExtractor struct {
	crawler  *Crawler
	settings core.SettingsStore
}

func NewURLExtractor(crawler *Crawler, settings core.SettingsStore) *URLExtractor {
	return &URLExtractor{crawler: crawler, settings: settings}
}

func (e *URLExtractor) Extract(ctx context.Context, src *models.KnowledgeSource) (*Extraction, error) {
	if src.OriginURL == "" {
		return nil, core.Validationf("url source %s has no url", src.ID)
	}

	limit := core.DefaultMaxCrawlPages
	if e.settings != nil {
		n, err := e.settings.MaxCrawlPages(ctx)
		if err != nil {
			return nil, fmt.Errorf("read crawl page limit: %w", err)
		}
		limit = core.ClampCrawlPages(n)
	}

	pages, err := e.crawler.Crawl(ctx, src.OriginURL, limit)
	if err != nil {
		return nil, err
	}

	out := &Extraction{}
	var texts []string
	for _, p := range pages {
		if strings.TrimSpace(p.Text) == "" {
			continue
		}
		out.Documents = append(out.Documents, Document{
			Text: p.Text,
			Meta: models.ChunkMetadata{
				Kind:    models.SourceKindURL,
				Title:   p.Title,
				Section: SectionPage,
				URL:     p.URL,
				Page:    len(out.Documents) + 1,
			},
		})
		texts = append(texts, p.Text)
	}
	if len(out.Documents) == 0 {
		return nil, fmt.Errorf("%w at %s", core.ErrNoReadableContent, src.OriginURL)
	}

	out.Text = strings.Join(texts, "\n\n")
	out.Title = src.Title
	if out.Title == "" {
		out.Title = out.Documents[0].Meta.Title
	}
	return out, nil
}
