package downloader

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
)

var sanitizeScriptStyle = bluemonday.StrictPolicy()

var whitespaceRun = regexp.MustCompile(`\s+`)

// CleanVisibleText strips scripts/styles/comments with a strict
// bluemonday policy, then walks the remaining DOM with goquery to collect
// visible text, collapsing whitespace runs.
func CleanVisibleText(html string) (string, error) {
	sanitized := sanitizeScriptStyle.Sanitize(html)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(sanitized))
	if err != nil {
		return "", err
	}
	doc.Find("script, style, noscript").Remove()

	text := doc.Find("body").Text()
	if strings.TrimSpace(text) == "" {
		text = doc.Text()
	}
	return whitespaceRun.ReplaceAllString(strings.TrimSpace(text), " "), nil
}

// ParseDocument parses raw HTML for downstream link discovery and
// structured-data extraction, independent of the sanitized visible-text
// pass above (JSON-LD script blocks must survive, so this path does not
// run the sanitizer).
func ParseDocument(html string) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}
