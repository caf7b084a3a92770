package ingestion_engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/time/rate"

	"github.com/Guntherdrb30/TrendsTech.com-sub000/internal/core"
)

// Crawler walks same-host pages breadth first.
type Crawler struct {
	client *http.Client
	robots *RobotsChecker
	cfg    CrawlConfig
	logger *slog.Logger
}

func NewCrawler(cfg CrawlConfig, logger *slog.Logger) *Crawler {
	def := DefaultCrawlConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = def.MaxBytes
	}
	if logger == nil {
		logger = slog.Default()
	}
	client := &http.Client{
		Timeout: cfg.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return errors.New("too many redirects")
			}
			if req.URL.Host != via[0].URL.Host {
				return fmt.Errorf("redirect to %s leaves %s", req.URL.Host, via[0].URL.Host)
			}
			return nil
		},
	}
	return &Crawler{
		client: client,
		robots: NewRobotsChecker(client, cfg.UserAgent, logger),
		cfg:    cfg,
		logger: logger,
	}
}

// NormalizeURL accepts only absolute http(s) URLs and drops the fragment.
func NormalizeURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, core.Validationf("invalid url %q", raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, core.Validationf("url %q must use http or https", raw)
	}
	if u.Host == "" {
		return nil, core.Validationf("url %q has no host", raw)
	}
	u.Fragment = ""
	if u.Path == "" {
		u.Path = "/"
	}
	return u, nil
}

// Crawl fetches up to limit readable pages starting at startURL, staying on its
// host. Pages that fail to fetch or parse are skipped. Only a cancelled context
// stops the walk early with an error.
func (c *Crawler) Crawl(ctx context.Context, startURL string, limit int) ([]*Page, error) {
	start, err := NormalizeURL(startURL)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 1
	}

	var limiter *rate.Limiter
	if c.cfg.RatePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(c.cfg.RatePerSec), 1)
	}

	seen := map[string]bool{start.String(): true}
	queue := []*url.URL{start}
	var pages []*Page

	for len(queue) > 0 && len(pages) < limit {
		if err := ctx.Err(); err != nil {
			return pages, err
		}
		next := queue[0]
		queue = queue[1:]

		if !c.robots.Allowed(ctx, next) {
			c.logger.Info("crawl: disallowed by robots.txt", "url", next.String())
			continue
		}
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return pages, err
			}
		}

		page, links, err := c.fetch(ctx, next)
		if err != nil {
			if ctx.Err() != nil {
				return pages, ctx.Err()
			}
			c.logger.Warn("crawl: skipping page", "url", next.String(), "err", err)
			continue
		}
		pages = append(pages, page)

		for _, l := range links {
			if l.Host != start.Host {
				continue
			}
			if l.Path == "" {
				l.Path = "/"
			}
			key := l.String()
			if seen[key] {
				continue
			}
			seen[key] = true
			queue = append(queue, l)
		}
	}
	return pages, nil
}

func (c *Crawler) fetch(ctx context.Context, u *url.URL) (*Page, []*url.URL, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		mt, _, _ := mime.ParseMediaType(ct)
		if mt != "text/html" && mt != "application/xhtml+xml" {
			return nil, nil, fmt.Errorf("unsupported content type %q", mt)
		}
	}

	// resp.Request.URL is the final URL after same-host redirects.
	return ParseHTML(io.LimitReader(resp.Body, c.cfg.MaxBytes), resp.Request.URL)
}
