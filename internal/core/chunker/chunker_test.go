package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Guntherdrb30/TrendsTech.com-sub000/internal/models"
)

func sentence(words int) string {
	return strings.TrimSpace(strings.Repeat("lorem ", words)) + "."
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"  hello  ", "hello"},
		{"a\r\nb\rc", "a\nb\nc"},
		{"nu\x00ll", "null"},
		{"\n\n  x \r\n", "x"},
	}
	for _, tt := range tests {
		got := Normalize(tt.in)
		assert.Equal(t, tt.want, got)
		assert.Equal(t, got, Normalize(got), "normalize must be idempotent for %q", tt.in)
	}
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("a"))
	assert.Equal(t, 1, EstimateTokens("abcd"))
	assert.Equal(t, 2, EstimateTokens("abcde"))
	assert.Equal(t, 1, EstimateTokens("ñ"))
}

func TestSplitParagraphs(t *testing.T) {
	got := SplitParagraphs("one\n\ntwo\nstill two\n\n\n\nthree\n \n")
	assert.Equal(t, []string{"one", "two\nstill two", "three"}, got)
	assert.Empty(t, SplitParagraphs("\n\n\n"))
}

func TestSplitSentences(t *testing.T) {
	got := SplitSentences("Hola. Bienvenido a nuestra empresa! Como estas? v1.2 is fine")
	assert.Equal(t, []string{"Hola.", "Bienvenido a nuestra empresa!", "Como estas?", "v1.2 is fine"}, got)
	assert.Equal(t, []string{"single"}, SplitSentences("single"))
}

func TestChunk_EmptyInput(t *testing.T) {
	c := New(DefaultConfig())
	assert.Empty(t, c.Chunk("", models.ChunkMetadata{}))
	assert.Empty(t, c.Chunk("   \n\n \x00 ", models.ChunkMetadata{}))
}

func TestChunk_ShortTextSingleChunk(t *testing.T) {
	c := New(DefaultConfig())
	meta := models.ChunkMetadata{Kind: models.SourceKindText, Section: "General"}

	chunks := c.Chunk("Hola. Bienvenido a nuestra empresa.", meta)

	require.Len(t, chunks, 1)
	assert.Equal(t, "Hola. Bienvenido a nuestra empresa.", chunks[0].Content)
	assert.Equal(t, meta, chunks[0].Meta)
	assert.Equal(t, EstimateTokens(chunks[0].Content), chunks[0].TokenCount)
}

func TestChunk_FlushesAtMaxOnceMinReached(t *testing.T) {
	c := New(Config{MaxTokens: 40, MinTokens: 20})
	// each paragraph is 25 tokens (99 chars after trimming)
	para := strings.Repeat("abcd ", 20)
	text := strings.Join([]string{para, para, para, para}, "\n\n")

	chunks := c.Chunk(text, models.ChunkMetadata{})

	require.Len(t, chunks, 4)
	for _, ch := range chunks {
		assert.Equal(t, 25, ch.TokenCount)
	}
}

func TestChunk_OversizedParagraphSplitBySentence(t *testing.T) {
	c := New(Config{MaxTokens: 40, MinTokens: 10})
	var sentences []string
	for i := 0; i < 12; i++ {
		sentences = append(sentences, sentence(5))
	}
	text := strings.Join(sentences, " ")
	require.Greater(t, EstimateTokens(text), 40)

	chunks := c.Chunk(text, models.ChunkMetadata{})

	require.Greater(t, len(chunks), 1)
	var rebuilt []string
	for _, ch := range chunks {
		assert.LessOrEqual(t, ch.TokenCount, 40)
		assert.NotEmpty(t, strings.TrimSpace(ch.Content))
		rebuilt = append(rebuilt, ch.Content)
	}
	assert.Equal(t, text, strings.Join(rebuilt, " "))
}

func TestChunk_UnsplittableSentenceKeptWhole(t *testing.T) {
	c := New(Config{MaxTokens: 10, MinTokens: 5})
	long := strings.Repeat("x", 200)

	chunks := c.Chunk("short one.\n\n"+long+"\n\nafter.", models.ChunkMetadata{})

	var found bool
	for _, ch := range chunks {
		if ch.Content == long {
			found = true
			continue
		}
		assert.LessOrEqual(t, ch.TokenCount, 10)
	}
	assert.True(t, found, "oversized sentence should be its own chunk")
}

func TestChunk_TokenBoundsHoldForMixedInput(t *testing.T) {
	c := New(Config{MaxTokens: 60, MinTokens: 30})
	var paras []string
	for i := 1; i <= 30; i++ {
		var ss []string
		for j := 0; j < i%7+1; j++ {
			ss = append(ss, sentence(i%9+2))
		}
		paras = append(paras, strings.Join(ss, " "))
	}

	chunks := c.Chunk(strings.Join(paras, "\n\n"), models.ChunkMetadata{})

	require.NotEmpty(t, chunks)
	for _, ch := range chunks {
		assert.LessOrEqual(t, ch.TokenCount, 60)
		assert.NotEmpty(t, strings.TrimSpace(ch.Content))
	}
}

func TestDetectLanguage(t *testing.T) {
	assert.Equal(t, "es", DetectLanguage("Hola. Bienvenido a nuestra empresa."))
	assert.Equal(t, "en", DetectLanguage("This is the place for all of the answers."))
	assert.Equal(t, "unknown", DetectLanguage("12345 !!!"))
	assert.Equal(t, "unknown", DetectLanguage("el the"))
	assert.Equal(t, "unknown", DetectLanguage(""))
}
