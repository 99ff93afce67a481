package downloader

import (
	"regexp"
	"strings"

	"github.com/venuescout/venuescout/internal/venue"
)

// minVisibleTextChars is the minimum amount of cleaned visible text a page
// must contain to pass the quality gate, per §4.3.
const minVisibleTextChars = 200

// acceptedContentTypes are the only MIME types the Downloader accepts.
var acceptedContentTypes = []string{"text/html", "application/xhtml+xml"}

var placeholderPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)coming soon`),
	regexp.MustCompile(`(?i)under construction`),
	regexp.MustCompile(`(?i)site (is )?temporarily (down|unavailable)`),
	regexp.MustCompile(`(?i)this domain (is for sale|may be for sale)`),
	regexp.MustCompile(`(?i)default (web site|apache) page`),
}

// ClassifyQuality applies the quality gate rules to a would-be page in a
// single decision point (grounded in the original crawler's
// quality_reason classifier): non-200 status, invalid MIME, or thin/
// placeholder content each yield a distinct skip reason. An empty Reason
// means the page passes.
func ClassifyQuality(httpStatus int, contentType string, cleanedText string) venue.Reason {
	if httpStatus == 429 {
		return venue.ReasonHTTP429
	}
	if httpStatus >= 500 {
		return venue.ReasonHTTP5xx
	}
	if httpStatus != 200 {
		return venue.ReasonNon200Status
	}
	if !isAcceptedContentType(contentType) {
		return venue.ReasonInvalidMIME
	}
	trimmed := strings.TrimSpace(cleanedText)
	if len(trimmed) < minVisibleTextChars {
		return venue.ReasonThinContent
	}
	for _, pattern := range placeholderPatterns {
		if pattern.MatchString(trimmed) {
			return venue.ReasonThinContent
		}
	}
	return ""
}

func isAcceptedContentType(contentType string) bool {
	base := strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])
	for _, accepted := range acceptedContentTypes {
		if strings.EqualFold(base, accepted) {
			return true
		}
	}
	return false
}
