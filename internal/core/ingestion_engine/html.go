package ingestion_engine

import (
	"io"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Block is one readable element with the heading it sits under.
type Block struct {
	Section string
	Text    string
}

// Page is the readable content of one fetched HTML document.
type Page struct {
	URL    string
	Title  string
	Blocks []Block
	Text   string
}

var boilerplate = "script, style, nav, header, footer, aside, noscript, iframe, svg, form"

// ParseHTML extracts headings, paragraphs and list items in document order,
// plus every absolute link target found before boilerplate is removed.
func ParseHTML(body io.Reader, pageURL *url.URL) (*Page, []*url.URL, error) {
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, nil, err
	}

	var links []*url.URL
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if u := resolveLink(pageURL, href); u != nil {
			links = append(links, u)
		}
	})

	doc.Find(boilerplate).Remove()

	page := &Page{URL: pageURL.String()}
	section := ""
	doc.Find("h1, h2, h3, h4, h5, h6, p, li").Each(func(_ int, s *goquery.Selection) {
		name := goquery.NodeName(s)
		if (name == "p" || name == "li") && s.ParentsFiltered("li").Length() > 0 {
			return
		}
		text := collapseSpace(s.Text())
		if text == "" {
			return
		}
		if strings.HasPrefix(name, "h") {
			section = text
		}
		page.Blocks = append(page.Blocks, Block{Section: section, Text: text})
	})

	parts := make([]string, 0, len(page.Blocks))
	for _, b := range page.Blocks {
		parts = append(parts, b.Text)
	}
	page.Text = strings.Join(parts, "\n\n")

	page.Title = collapseSpace(doc.Find("title").First().Text())
	if page.Title == "" && len(page.Blocks) > 0 {
		page.Title = page.Blocks[0].Text
	}
	if page.Title == "" {
		page.Title = "URL"
	}
	return page, links, nil
}

func resolveLink(base *url.URL, href string) *url.URL {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return nil
	}
	ref, err := url.Parse(href)
	if err != nil {
		return nil
	}
	u := base.ResolveReference(ref)
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil
	}
	u.Fragment = ""
	return u
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
