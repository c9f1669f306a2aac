package scraper

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
)

// strippedSelectors are removed wholesale before falling back to raw text
// extraction; their contents are navigation and chrome, not review content.
const strippedSelectors = "script, style, nav, header, footer, form, iframe, noscript"

// ExtractText converts a fetched HTML body into collapsed plain text, capped
// at maxChars code points. Readability's main-content extraction runs first;
// pages it cannot make sense of (forums and comment threads, frequently) fall
// back to stripping boilerplate tags and flattening the rest.
func ExtractText(body []byte, pageURL string, maxChars int) string {
	if len(body) == 0 {
		return ""
	}

	if text := extractReadable(body, pageURL); text != "" {
		return truncateRunes(text, maxChars)
	}
	return truncateRunes(extractStripped(body), maxChars)
}

func extractReadable(body []byte, pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	article, err := readability.FromReader(bytes.NewReader(body), u)
	if err != nil {
		return ""
	}
	return collapseWhitespace(article.TextContent)
}

func extractStripped(body []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	doc.Find(strippedSelectors).Remove()
	return collapseWhitespace(doc.Text())
}

// collapseWhitespace folds all whitespace runs into single spaces.
func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncateRunes cuts s to at most n code points, never splitting a rune.
func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
