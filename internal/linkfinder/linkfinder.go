// Package linkfinder implements the Link Finder (C5): given a homepage's
// parsed HTML, it discovers up to one same-host candidate URL per target
// page type (hours, menu, contact, about, fees), ranked by the priority
// order in §4.4.
package linkfinder

import (
	"net/url"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/venuescout/venuescout/internal/venue"
)

// TargetOrder is the priority order candidates are chosen in, per §4.4
// rule 2: hours outranks menu outranks contact outranks about outranks
// fees.
var TargetOrder = []venue.PageType{
	venue.PageHours, venue.PageMenu, venue.PageContact, venue.PageAbout, venue.PageFees,
}

// keywords maps each target type to the path fragments and anchor-text
// phrases that identify it. Multiple languages are included (grounded in
// the multilingual link-finder keyword lists a fuller distillation of this
// pipeline carries) so non-English venue sites still classify correctly.
var keywords = map[venue.PageType][]string{
	venue.PageHours: {
		"hours", "opening", "open-hours", "openinghours", "horaires", "oeffnungszeiten", "orari",
		"opening hours", "business hours", "store hours",
	},
	venue.PageMenu: {
		"menu", "food", "drinks", "dishes", "carte", "speisekarte", "menu-card", "tasting-menu",
	},
	venue.PageContact: {
		"contact", "contact-us", "find-us", "reach-us", "kontakt", "contacto", "contactez",
	},
	venue.PageAbout: {
		"about", "about-us", "our-story", "history", "uber-uns", "a-propos",
	},
	venue.PageFees: {
		"tickets", "admission", "pricing", "prices", "fees", "entry", "book-now", "reservations",
	},
}

// negativeKeywords suppress obviously-wrong matches, e.g. a careers page
// whose path happens to contain "about".
var negativeKeywords = []string{
	"privacy", "careers", "jobs", "login", "signin", "sign-in", "cookie", "terms", "legal",
}

// Candidate is one same-host link classified into a target type.
type Candidate struct {
	URL         string
	Type        venue.PageType
	AnchorText  string
	PathLength  int
	DocPosition int
	SectionBoost int
}

// Discover walks the homepage document's anchors and returns up to one
// candidate per target type in TargetOrder, dropping cross-host links per
// the same-host rule.
func Discover(homepageURL string, doc *goquery.Document, sameHost func(a, b string) bool) []Candidate {
	byType := map[venue.PageType][]Candidate{}

	position := 0
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		resolved := resolve(homepageURL, href)
		if resolved == "" {
			return
		}
		if !sameHost(homepageURL, resolved) {
			return
		}
		anchorText := strings.TrimSpace(sel.Text())
		typ, ok := classify(resolved, anchorText)
		if !ok {
			return
		}
		position++
		byType[typ] = append(byType[typ], Candidate{
			URL:          stripTrackingParams(resolved),
			Type:         typ,
			AnchorText:   anchorText,
			PathLength:   pathLength(resolved),
			DocPosition:  position,
			SectionBoost: sectionWeight(sel),
		})
	})

	var out []Candidate
	for _, typ := range TargetOrder {
		candidates := byType[typ]
		if len(candidates) == 0 {
			continue
		}
		sort.SliceStable(candidates, func(i, j int) bool {
			ci, cj := candidates[i], candidates[j]
			if ci.PathLength != cj.PathLength {
				return ci.PathLength < cj.PathLength
			}
			if ci.SectionBoost != cj.SectionBoost {
				return ci.SectionBoost > cj.SectionBoost
			}
			return ci.DocPosition < cj.DocPosition
		})
		out = append(out, candidates[0])
		if len(out) == 3 {
			break
		}
	}
	return out
}

// classify assigns a URL/anchor pair to at most one target type: the
// first type in TargetOrder whose keyword matches wins (§4.4 rule 3).
func classify(rawURL, anchorText string) (venue.PageType, bool) {
	haystack := strings.ToLower(rawURL + " " + anchorText)
	for _, neg := range negativeKeywords {
		if strings.Contains(haystack, neg) {
			return "", false
		}
	}
	for _, typ := range TargetOrder {
		for _, kw := range keywords[typ] {
			if strings.Contains(haystack, kw) {
				return typ, true
			}
		}
	}
	return "", false
}

// sectionWeight boosts links found inside nav/header/footer landmarks,
// used only as a tie-breaker per §4.4 rule 2 and the link-finder
// section-weight supplement.
func sectionWeight(sel *goquery.Selection) int {
	weight := 0
	sel.ParentsFiltered("nav, header, footer").Each(func(_ int, _ *goquery.Selection) {
		weight++
	})
	return weight
}

func pathLength(rawURL string) int {
	u, err := url.Parse(rawURL)
	if err != nil {
		return len(rawURL)
	}
	return len(strings.Trim(u.Path, "/"))
}

func resolve(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "mailto:") || strings.HasPrefix(href, "tel:") {
		return ""
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return ""
	}
	refURL, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return baseURL.ResolveReference(refURL).String()
}

var trackingParams = []string{"utm_source", "utm_medium", "utm_campaign", "utm_term", "utm_content", "fbclid", "gclid", "mc_eid", "mc_cid"}

// stripTrackingParams removes analytics query parameters so cosmetically
// distinct links to the same page yield the same candidate URL, per the
// link-finder tracking-parameter supplement.
func stripTrackingParams(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	changed := false
	for _, p := range trackingParams {
		if q.Has(p) {
			q.Del(p)
			changed = true
		}
	}
	if changed {
		u.RawQuery = q.Encode()
	}
	return u.String()
}
