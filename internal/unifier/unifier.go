// Package unifier implements the Unifier (C8): it merges the Fact
// Extractor's per-field candidates into a venue's Enrichment row, updating
// timestamps and append-deduped sources without clobbering fields the
// current crawl left untouched.
package unifier

import (
	"context"
	"time"

	"github.com/venuescout/venuescout/internal/extractor"
	"github.com/venuescout/venuescout/internal/venue"
)

// Store is the narrow persistence surface the unifier needs.
type Store interface {
	GetEnrichment(ctx context.Context, venueID string) (*venue.Enrichment, error)
	UpsertEnrichment(ctx context.Context, e *venue.Enrichment) error
	TouchLastEnriched(ctx context.Context, id string, at time.Time) error
}

// Unifier applies extractor.Fact results onto a venue's Enrichment.
type Unifier struct {
	store Store
}

// New builds a Unifier.
func New(store Store) *Unifier {
	return &Unifier{store: store}
}

// Apply merges facts into venueID's enrichment row and then touches the
// venue's last_enriched_at. The two writes are separate Store calls with no
// enclosing transaction: if the touch fails, the enrichment upsert stays
// committed. The job's terminal state is written later by the caller.
func (u *Unifier) Apply(ctx context.Context, venueID string, facts []extractor.Fact, now time.Time) (*venue.Enrichment, error) {
	enrichment, err := u.store.GetEnrichment(ctx, venueID)
	if err != nil {
		return nil, err
	}
	if enrichment == nil {
		enrichment = venue.NewEnrichment(venueID)
	}

	for _, fact := range facts {
		applyFact(enrichment, fact, now)
	}

	if err := u.store.UpsertEnrichment(ctx, enrichment); err != nil {
		return nil, err
	}
	if err := u.store.TouchLastEnriched(ctx, venueID, now); err != nil {
		return nil, err
	}
	return enrichment, nil
}

func applyFact(e *venue.Enrichment, f extractor.Fact, now time.Time) {
	if f.NotApplicable {
		e.NotApplicable[f.Field] = true
		e.LastUpdated[f.Field] = now
		addSource(e, f.Field, f.SourceURL)
		return
	}

	switch f.Field {
	case venue.FieldHours:
		if h, ok := f.Value.(venue.Hours); ok {
			e.Hours = h
		}
	case venue.FieldContact:
		if c, ok := f.Value.(venue.Contact); ok {
			e.Contact = mergeContact(e.Contact, c)
		}
	case venue.FieldDescription:
		if s, ok := f.Value.(string); ok {
			e.Description = s
		}
	case venue.FieldFeatures:
		if v, ok := f.Value.([]string); ok {
			e.Features = v
		}
	case venue.FieldMenuURL:
		if s, ok := f.Value.(string); ok {
			e.MenuURL = s
		}
	case venue.FieldMenuItems:
		if v, ok := f.Value.([]venue.MenuItem); ok {
			e.MenuItems = v
		}
	case venue.FieldPriceRange:
		if s, ok := f.Value.(string); ok {
			e.PriceRange = s
		}
	case venue.FieldAmenities:
		if v, ok := f.Value.([]string); ok {
			e.Amenities = v
		}
	case venue.FieldFees:
		if s, ok := f.Value.(string); ok {
			e.Fees = s
		}
	case venue.FieldAddress:
		if m, ok := f.Value.(map[string]string); ok {
			e.AddressComponents = m
		}
	default:
		return
	}

	e.NotApplicable[f.Field] = false
	e.LastUpdated[f.Field] = now
	addSource(e, f.Field, f.SourceURL)
}

func mergeContact(existing, incoming venue.Contact) venue.Contact {
	if incoming.Phone != "" {
		existing.Phone = incoming.Phone
	}
	if incoming.Email != "" {
		existing.Email = incoming.Email
	}
	if incoming.Website != "" {
		existing.Website = incoming.Website
	}
	if len(incoming.Social) > 0 {
		if existing.Social == nil {
			existing.Social = map[string]string{}
		}
		for k, v := range incoming.Social {
			existing.Social[k] = v
		}
	}
	return existing
}

// addSource appends sourceURL to sources[field], deduplicated and
// order-preserved, per §4.7.
func addSource(e *venue.Enrichment, field venue.FieldName, sourceURL string) {
	if sourceURL == "" {
		return
	}
	for _, existing := range e.Sources[field] {
		if existing == sourceURL {
			return
		}
	}
	e.Sources[field] = append(e.Sources[field], sourceURL)
}
