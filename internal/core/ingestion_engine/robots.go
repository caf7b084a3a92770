package ingestion_engine

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const (
	robotsMaxBytes = 512 * 1024

	// DefaultRobotsTTL is how long a fetched robots.txt is trusted.
	DefaultRobotsTTL = time.Hour
)

type robotsEntry struct {
	rules   []string
	expires time.Time
}

// RobotsChecker applies the Disallow rules of the "*" group of a host's
// robots.txt. Any failure to read robots.txt allows the fetch. Answers are
// cached per origin for ttl; failed reads are not cached.
type RobotsChecker struct {
	client    *http.Client
	userAgent string
	logger    *slog.Logger
	ttl       time.Duration
	now       func() time.Time

	mu    sync.Mutex
	cache map[string]robotsEntry
}

func NewRobotsChecker(client *http.Client, userAgent string, logger *slog.Logger) *RobotsChecker {
	if logger == nil {
		logger = slog.Default()
	}
	return &RobotsChecker{
		client:    client,
		userAgent: userAgent,
		logger:    logger,
		ttl:       DefaultRobotsTTL,
		now:       time.Now,
		cache:     make(map[string]robotsEntry),
	}
}

func (r *RobotsChecker) Allowed(ctx context.Context, u *url.URL) bool {
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	for _, prefix := range r.rulesFor(ctx, u) {
		if strings.HasPrefix(path, prefix) {
			return false
		}
	}
	return true
}

func (r *RobotsChecker) rulesFor(ctx context.Context, u *url.URL) []string {
	origin := u.Scheme + "://" + u.Host

	r.mu.Lock()
	entry, ok := r.cache[origin]
	r.mu.Unlock()
	if ok && r.now().Before(entry.expires) {
		return entry.rules
	}

	rules, ok := r.fetch(ctx, origin)
	r.mu.Lock()
	if ok {
		r.cache[origin] = robotsEntry{rules: rules, expires: r.now().Add(r.ttl)}
	} else {
		delete(r.cache, origin)
	}
	r.mu.Unlock()
	return rules
}

// fetch reports ok=false when the answer should not be cached: network
// errors and server errors are retried on the next check.
func (r *RobotsChecker) fetch(ctx context.Context, origin string) ([]string, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin+"/robots.txt", nil)
	if err != nil {
		return nil, false
	}
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		r.logger.Debug("robots.txt unavailable, allowing", "origin", origin, "err", err)
		return nil, false
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return parseRobots(io.LimitReader(resp.Body, robotsMaxBytes)), true
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		r.logger.Debug("robots.txt not found, allowing", "origin", origin, "status", resp.StatusCode)
		return nil, true
	default:
		r.logger.Debug("robots.txt failed, allowing", "origin", origin, "status", resp.StatusCode)
		return nil, false
	}
}

// parseRobots returns the Disallow prefixes of every group that names "*".
func parseRobots(body io.Reader) []string {
	var (
		rules    []string
		agents   []string
		inRules  bool
		wildcard bool
	)
	sc := bufio.NewScanner(body)
	for sc.Scan() {
		line := sc.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		switch key {
		case "user-agent":
			if inRules {
				agents, inRules, wildcard = nil, false, false
			}
			agents = append(agents, value)
			if value == "*" {
				wildcard = true
			}
		case "disallow", "allow":
			inRules = true
			if key == "disallow" && wildcard && value != "" {
				rules = append(rules, value)
			}
		}
	}
	return rules
}
