// Package extractor implements the Fact Extractor (C7): it combines a
// structured-data (JSON-LD) parsing path with a heuristic regex/keyword
// path over cleaned page text, and resolves the two into a set of
// candidate (field, value, source URL) triples using the precedence rule
// in §4.6.
package extractor

import (
	"time"

	"github.com/venuescout/venuescout/internal/venue"
)

// Fact is one candidate value extracted for a field, with its source page
// and a rank used to resolve precedence when multiple facts target the
// same field.
type Fact struct {
	Field     venue.FieldName
	Value     any
	SourceURL string
	FetchedAt time.Time
	Rank      precedenceRank
	NotApplicable bool
}

// precedenceRank orders candidate facts for the same field, per §4.6:
// dedicated target page > structured data on any page > homepage/about
// free text > baseline. Lower value wins.
type precedenceRank int

const (
	rankDedicatedPage precedenceRank = iota
	rankStructuredData
	rankFreeText
	rankBaseline
)

// Extract runs both paths over every page and returns the resolved
// per-field facts ready for the Unifier. The description is assembled once
// across the whole page set rather than per page, since it concatenates
// sentences from the homepage and about pages together (§4.6).
func Extract(pages []venue.ScrapedPage) []Fact {
	var all []Fact
	for _, page := range pages {
		all = append(all, structuredDataFacts(page)...)
		all = append(all, heuristicFacts(page)...)
	}
	if f := descriptionFact(pages); f != nil {
		all = append(all, *f)
	}
	return resolve(all)
}

// resolve groups facts by field and keeps the highest-precedence survivor,
// breaking ties by most recent FetchedAt, and intersecting hours when two
// equally-ranked sources contradict (§4.6).
func resolve(facts []Fact) []Fact {
	byField := map[venue.FieldName][]Fact{}
	for _, f := range facts {
		byField[f.Field] = append(byField[f.Field], f)
	}

	var out []Fact
	for field, group := range byField {
		out = append(out, resolveField(field, group))
	}
	return out
}

func resolveField(field venue.FieldName, group []Fact) Fact {
	best := group[0]
	var tiedWithBest []Fact
	for _, f := range group[1:] {
		switch {
		case f.Rank < best.Rank:
			best = f
			tiedWithBest = nil
		case f.Rank == best.Rank:
			tiedWithBest = append(tiedWithBest, f)
		}
	}
	if len(tiedWithBest) == 0 {
		return best
	}

	// Contradictions at equal rank: hours intersect, everything else keeps
	// the most recently fetched value.
	if field == venue.FieldHours {
		if bestHours, ok := best.Value.(venue.Hours); ok {
			merged := bestHours
			for _, f := range tiedWithBest {
				if h, ok := f.Value.(venue.Hours); ok {
					merged = merged.Intersect(h)
				}
			}
			best.Value = merged
			return best
		}
	}

	winner := best
	for _, f := range tiedWithBest {
		if f.FetchedAt.After(winner.FetchedAt) {
			winner = f
		}
	}
	return winner
}
