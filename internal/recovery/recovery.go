// Package recovery implements the website-recovery stage of the Crawler
// Orchestrator (C6 step 1): when a venue has no canonical website, it
// proposes candidate URLs inferred from an email domain, known
// social-profile links, or a lightweight search, so the crawl can proceed.
package recovery

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/venuescout/venuescout/internal/venue"
)

// Searcher performs the lightweight external lookup that recovery runs
// alongside the email and social methods. Implementations may call a
// search API; the zero value (nil) disables the search method entirely.
type Searcher interface {
	Search(ctx context.Context, query string) (string, float64, bool)
}

// Recoverer proposes RecoveryCandidates for a venue lacking a website.
type Recoverer struct {
	search Searcher
}

// New builds a Recoverer. search may be nil to disable the search method.
func New(search Searcher) *Recoverer {
	return &Recoverer{search: search}
}

// Candidates returns every inferable RecoveryCandidate for v, unordered;
// BestCandidate picks the winner. Each method is independent, so a venue
// can surface up to three candidates from one call.
func (r *Recoverer) Candidates(ctx context.Context, v venue.Venue) []venue.RecoveryCandidate {
	var out []venue.RecoveryCandidate

	if c, ok := emailDomainCandidate(v); ok {
		out = append(out, c)
	}
	if c, ok := socialProfileCandidate(v); ok {
		out = append(out, c)
	}
	if r.search != nil {
		if urlStr, confidence, ok := r.search.Search(ctx, searchQuery(v)); ok {
			out = append(out, venue.RecoveryCandidate{
				VenueID: v.ID, URL: urlStr, Confidence: confidence, Method: venue.RecoverySearch,
			})
		}
	}
	return out
}

// BestCandidate returns the highest-confidence candidate, or false if none
// were proposed.
func BestCandidate(candidates []venue.RecoveryCandidate) (venue.RecoveryCandidate, bool) {
	if len(candidates) == 0 {
		return venue.RecoveryCandidate{}, false
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.Confidence > best.Confidence {
			best = c
		}
	}
	return best, true
}

// emailDomainCandidate infers a homepage URL from the venue's imported
// contact email domain (scheme + eTLD+1), per §4.5 method 1.
func emailDomainCandidate(v venue.Venue) (venue.RecoveryCandidate, bool) {
	at := strings.Index(v.ImportedEmail, "@")
	if at < 0 {
		return venue.RecoveryCandidate{}, false
	}
	domain := strings.TrimSpace(v.ImportedEmail[at+1:])
	if domain == "" || !strings.Contains(domain, ".") {
		return venue.RecoveryCandidate{}, false
	}
	return venue.RecoveryCandidate{
		VenueID: v.ID, URL: "https://" + eTLDPlusOne(domain), Confidence: 0.6, Method: venue.RecoveryEmailDomain,
	}, true
}

// socialProfileCandidate promotes an imported social-profile link to a
// recovery candidate at lower confidence than an email-domain guess: a
// Facebook or Instagram page is evidence of the business but rarely the
// canonical site itself.
func socialProfileCandidate(v venue.Venue) (venue.RecoveryCandidate, bool) {
	link := strings.TrimSpace(v.ImportedSocial)
	if link == "" {
		return venue.RecoveryCandidate{}, false
	}
	if !strings.HasPrefix(link, "http://") && !strings.HasPrefix(link, "https://") {
		link = "https://" + link
	}
	return venue.RecoveryCandidate{
		VenueID: v.ID, URL: link, Confidence: 0.4, Method: venue.RecoverySocial,
	}, true
}

func searchQuery(v venue.Venue) string {
	q := v.Name
	if v.CategoryName != "" {
		q = fmt.Sprintf("%s %s official website", v.Name, v.CategoryName)
	}
	return q
}

// eTLDPlusOne reduces host to its registered domain with a heuristic rather
// than the public suffix list: it keeps the last two labels, or the last
// three when the second-to-last is a common second-level label under a
// two-letter country code ("co.uk", "com.au").
func eTLDPlusOne(host string) string {
	host = strings.ToLower(host)
	if u, err := url.Parse("//" + host); err == nil && u.Hostname() != "" {
		host = u.Hostname()
	}
	labels := strings.Split(host, ".")
	keep := 2
	if n := len(labels); n >= 3 && len(labels[n-1]) == 2 {
		switch labels[n-2] {
		case "co", "com", "org", "net", "ac", "gov", "edu", "ltd", "plc":
			keep = 3
		}
	}
	if len(labels) <= keep {
		return host
	}
	return strings.Join(labels[len(labels)-keep:], ".")
}
