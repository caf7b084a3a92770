// Package chunker normalizes raw text and splits it into token-bounded chunks
// along paragraph and sentence boundaries.
package chunker

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/Guntherdrb30/TrendsTech.com-sub000/internal/models"
)

const (
	DefaultMaxTokens = 700
	DefaultMinTokens = 300

	paragraphSep = "\n\n"
	sentenceSep  = " "
)

var paragraphBreak = regexp.MustCompile(`\n\s*\n`)

type Config struct {
	MaxTokens int
	MinTokens int
}

func DefaultConfig() Config {
	return Config{MaxTokens: DefaultMaxTokens, MinTokens: DefaultMinTokens}
}

// Chunk is one emitted slice of text with the metadata it was chunked under.
type Chunk struct {
	Content    string
	TokenCount int
	Meta       models.ChunkMetadata
}

type Chunker struct {
	cfg Config
}

func New(cfg Config) *Chunker {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.MinTokens < 0 || cfg.MinTokens > cfg.MaxTokens {
		cfg.MinTokens = cfg.MaxTokens / 2
	}
	return &Chunker{cfg: cfg}
}

func (c *Chunker) Config() Config { return c.cfg }

// Normalize strips null bytes, unifies line endings and trims surrounding whitespace.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\x00", "")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return strings.TrimSpace(text)
}

// EstimateTokens approximates tokens as ~4 characters each.
func EstimateTokens(text string) int {
	return runesToTokens(utf8.RuneCountInString(text))
}

func runesToTokens(n int) int {
	if n <= 0 {
		return 0
	}
	return (n + 3) / 4
}

// SplitParagraphs splits on blank lines and drops empty entries.
func SplitParagraphs(text string) []string {
	var out []string
	for _, p := range paragraphBreak.Split(text, -1) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// SplitSentences splits after '.', '!' or '?' when followed by whitespace.
func SplitSentences(paragraph string) []string {
	var (
		out   []string
		start int
	)
	runes := []rune(paragraph)
	for i, r := range runes {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if i+1 < len(runes) && unicode.IsSpace(runes[i+1]) {
			if s := strings.TrimSpace(string(runes[start : i+1])); s != "" {
				out = append(out, s)
			}
			start = i + 1
		}
	}
	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		out = append(out, s)
	}
	return out
}

// Chunk normalizes text and greedily packs paragraphs into chunks of at most
// MaxTokens. Paragraphs over the limit, or paragraphs that would overflow a
// buffer still under MinTokens, are fed sentence by sentence. A single sentence
// over the limit becomes a chunk of its own.
func (c *Chunker) Chunk(text string, meta models.ChunkMetadata) []Chunk {
	text = Normalize(text)
	if text == "" {
		return nil
	}

	a := &accumulator{cfg: c.cfg, meta: meta}
	for _, p := range SplitParagraphs(text) {
		switch {
		case EstimateTokens(p) > c.cfg.MaxTokens:
			a.feedSentences(p)
		case a.fits(paragraphSep, p):
			a.add(paragraphSep, p)
		case a.tokens() >= c.cfg.MinTokens:
			a.flush()
			a.add(paragraphSep, p)
		default:
			a.feedSentences(p)
		}
	}
	a.flush()
	return a.out
}

type accumulator struct {
	cfg   Config
	meta  models.ChunkMetadata
	buf   strings.Builder
	runes int
	out   []Chunk
}

func (a *accumulator) tokens() int { return runesToTokens(a.runes) }

// fits reports whether unit can join the buffer without passing MaxTokens.
func (a *accumulator) fits(sep, unit string) bool {
	n := a.runes + utf8.RuneCountInString(unit)
	if a.runes > 0 {
		n += len(sep)
	}
	return runesToTokens(n) <= a.cfg.MaxTokens
}

func (a *accumulator) add(sep, unit string) {
	if a.runes > 0 {
		a.buf.WriteString(sep)
		a.runes += len(sep)
	}
	a.buf.WriteString(unit)
	a.runes += utf8.RuneCountInString(unit)
}

func (a *accumulator) feedSentences(paragraph string) {
	sep := paragraphSep
	for _, s := range SplitSentences(paragraph) {
		if !a.fits(sep, s) {
			a.flush()
		}
		a.add(sep, s)
		sep = sentenceSep
	}
}

func (a *accumulator) flush() {
	content := strings.TrimSpace(a.buf.String())
	a.buf.Reset()
	a.runes = 0
	if content == "" {
		return
	}
	a.out = append(a.out, Chunk{
		Content:    content,
		TokenCount: EstimateTokens(content),
		Meta:       a.meta,
	})
}
