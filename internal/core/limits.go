package core

const (
	DefaultMaxCrawlPages = 5
	CrawlPagesCeiling    = 25

	DefaultSearchTopK      = 4
	DefaultSearchMaxTokens = 1200
)

// ClampCrawlPages bounds a page limit to 1..CrawlPagesCeiling, using the default for unset values.
func ClampCrawlPages(n int) int {
	switch {
	case n <= 0:
		return DefaultMaxCrawlPages
	case n > CrawlPagesCeiling:
		return CrawlPagesCeiling
	default:
		return n
	}
}
