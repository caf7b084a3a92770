package ingestion_engine

import (
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePage = `<html><head><title> Acme  Support </title><style>.x{}</style></head>
<body>
<nav><a href="/nav-link">Menu</a></nav>
<h1>Refunds</h1>
<p>Refunds are issued within 14 days.</p>
<ul><li>Keep the receipt.<p>nested paragraph</p></li><li>Use the original card.</li></ul>
<h2>Shipping</h2>
<p>We ship   worldwide.</p>
<script>var hidden = "nope";</script>
<a href="/faq#top">FAQ</a>
<a href="mailto:help@example.com">mail</a>
<a href="https://other.example.org/x">elsewhere</a>
<footer>Copyright</footer>
</body></html>`

func TestParseHTML_BlocksAndSections(t *testing.T) {
	base, _ := url.Parse("https://example.com/help")
	page, links, err := ParseHTML(strings.NewReader(samplePage), base)
	require.NoError(t, err)

	assert.Equal(t, "Acme Support", page.Title)
	require.Len(t, page.Blocks, 6)
	assert.Equal(t, Block{Section: "Refunds", Text: "Refunds"}, page.Blocks[0])
	assert.Equal(t, "Refunds", page.Blocks[1].Section)
	assert.Equal(t, "Keep the receipt.nested paragraph", page.Blocks[2].Text)
	assert.Equal(t, "Shipping", page.Blocks[5].Section)
	assert.Equal(t, "We ship worldwide.", page.Blocks[5].Text)

	assert.NotContains(t, page.Text, "hidden")
	assert.NotContains(t, page.Text, "Copyright")
	assert.NotContains(t, page.Text, "Menu")

	var got []string
	for _, l := range links {
		got = append(got, l.String())
	}
	assert.Equal(t, []string{
		"https://example.com/nav-link",
		"https://example.com/faq",
		"https://other.example.org/x",
	}, got)
}

func TestParseHTML_TitleFallbacks(t *testing.T) {
	base, _ := url.Parse("https://example.com/a")

	page, _, err := ParseHTML(strings.NewReader("<p>First block wins.</p>"), base)
	require.NoError(t, err)
	assert.Equal(t, "First block wins.", page.Title)

	page, _, err = ParseHTML(strings.NewReader("<div></div>"), base)
	require.NoError(t, err)
	assert.Equal(t, "URL", page.Title)
	assert.Empty(t, page.Text)
}
