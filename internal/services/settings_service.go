package services

import (
	"context"

	"github.com/Guntherdrb30/TrendsTech.com-sub000/internal/core"
)

type SettingsService struct {
	settings core.SettingsStore
}

func NewSettingsService(settings core.SettingsStore) *SettingsService {
	return &SettingsService{settings: settings}
}

func (s *SettingsService) MaxCrawlPages(ctx context.Context) (int, error) {
	n, err := s.settings.MaxCrawlPages(ctx)
	if err != nil {
		return 0, err
	}
	return core.ClampCrawlPages(n), nil
}

func (s *SettingsService) SetMaxCrawlPages(ctx context.Context, n int) error {
	if n < 1 || n > core.CrawlPagesCeiling {
		return core.Validationf("max crawl pages must be between 1 and %d", core.CrawlPagesCeiling)
	}
	return s.settings.SetMaxCrawlPages(ctx, n)
}
