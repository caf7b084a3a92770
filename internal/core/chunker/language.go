package chunker

import (
	"strings"
	"unicode"
)

const languageSampleRunes = 4000

var (
	spanishHints = map[string]bool{
		"el": true, "la": true, "de": true, "que": true, "y": true, "en": true,
		"los": true, "las": true, "para": true, "con": true, "por": true, "una": true,
		"es": true, "del": true, "nuestra": true, "nuestro": true,
	}
	englishHints = map[string]bool{
		"the": true, "and": true, "of": true, "to": true, "is": true, "in": true,
		"for": true, "with": true, "that": true, "on": true, "this": true, "are": true,
	}
)

// DetectLanguage returns "es", "en" or "unknown" by counting common function words
// in the first few thousand characters. Ties, including no hits, are "unknown".
func DetectLanguage(text string) string {
	runes := []rune(text)
	if len(runes) > languageSampleRunes {
		runes = runes[:languageSampleRunes]
	}
	words := strings.FieldsFunc(strings.ToLower(string(runes)), func(r rune) bool {
		return !unicode.IsLetter(r)
	})

	var es, en int
	for _, w := range words {
		if spanishHints[w] {
			es++
		}
		if englishHints[w] {
			en++
		}
	}
	switch {
	case es > en:
		return "es"
	case en > es:
		return "en"
	default:
		return "unknown"
	}
}
