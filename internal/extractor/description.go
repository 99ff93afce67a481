package extractor

import (
	"strings"

	"github.com/venuescout/venuescout/internal/venue"
)

const (
	minDescriptionWords = 100
	maxDescriptionWords = 140
)

// VerbatimDescription assembles a description by concatenating sentences
// taken verbatim from the homepage/about pages, in page order, until the
// running word count reaches minDescriptionWords, then stops at the next
// sentence boundary at or before maxDescriptionWords. It never rewrites or
// generates text: if the pages don't carry enough prose the result is
// empty rather than padded or fabricated, per the description field's
// verbatim-only resolution.
func VerbatimDescription(pages []venue.ScrapedPage) string {
	var sentences []string
	for _, page := range pages {
		if page.PageType != venue.PageHomepage && page.PageType != venue.PageAbout {
			continue
		}
		sentences = append(sentences, splitSentences(page.CleanedText)...)
	}
	if len(sentences) == 0 {
		return ""
	}

	var picked []string
	wordCount := 0
	for _, s := range sentences {
		words := strings.Fields(s)
		if len(words) == 0 {
			continue
		}
		if wordCount+len(words) > maxDescriptionWords {
			break
		}
		picked = append(picked, s)
		wordCount += len(words)
		if wordCount >= minDescriptionWords {
			break
		}
	}

	if wordCount < minDescriptionWords {
		return ""
	}
	return strings.Join(picked, " ")
}

// descriptionFact wraps VerbatimDescription as a Fact sourced from the
// first qualifying (homepage or about) page, so the assembled description
// still carries a source URL and fetch time for freshness/precedence.
func descriptionFact(pages []venue.ScrapedPage) *Fact {
	desc := VerbatimDescription(pages)
	if desc == "" {
		return nil
	}
	for _, page := range pages {
		if page.PageType == venue.PageHomepage || page.PageType == venue.PageAbout {
			return &Fact{
				Field: venue.FieldDescription, Value: desc,
				SourceURL: page.URL, FetchedAt: page.FetchedAt,
				Rank: rankFor(venue.FieldDescription, page, false),
			}
		}
	}
	return nil
}

func splitSentences(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	raw := strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?'
	})
	var sentences []string
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		sentences = append(sentences, s+".")
	}
	return sentences
}
