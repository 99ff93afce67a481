package venue

import (
	"encoding/json"
	"fmt"
	"time"
)

// DaySpan is an open/close pair on a 24h clock, e.g. "09:00"-"17:00".
type DaySpan struct {
	Open  string `json:"open"`
	Close string `json:"close"`
}

// Hours is the normalized 7-day opening-hours map. A day absent from the
// map or holding an empty slice means closed that day.
//
// time.Weekday is not a valid JSON object key on its own, so Hours carries
// its own MarshalJSON/UnmarshalJSON to serialize weekdays as their English
// names ("Mon".."Sun") in the JSONB column.
type Hours map[time.Weekday][]DaySpan

var weekdayNames = [...]string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}

// MarshalJSON renders Hours as {"Mon": [...], "Tue": [...], ...}.
func (h Hours) MarshalJSON() ([]byte, error) {
	out := make(map[string][]DaySpan, len(h))
	for day, spans := range h {
		out[weekdayNames[day]] = spans
	}
	return json.Marshal(out)
}

// UnmarshalJSON parses the {"Mon": [...]} shape MarshalJSON produces.
func (h *Hours) UnmarshalJSON(data []byte) error {
	var raw map[string][]DaySpan
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Hours, len(raw))
	for name, spans := range raw {
		day, err := weekdayFromName(name)
		if err != nil {
			return err
		}
		out[day] = spans
	}
	*h = out
	return nil
}

func weekdayFromName(name string) (time.Weekday, error) {
	for i, n := range weekdayNames {
		if n == name {
			return time.Weekday(i), nil
		}
	}
	return 0, fmt.Errorf("unrecognized weekday name %q", name)
}

// Intersect returns the overlap of two Hours values for a field-level
// contradiction resolution: a day is included only if both agree it is
// open, and the span used is the more restrictive (later open, earlier
// close) of the two, per the fact extractor's precedence rule for hours.
func (h Hours) Intersect(other Hours) Hours {
	out := make(Hours)
	for day, spans := range h {
		otherSpans, ok := other[day]
		if !ok || len(otherSpans) == 0 || len(spans) == 0 {
			continue
		}
		out[day] = intersectSpans(spans, otherSpans)
	}
	return out
}

func intersectSpans(a, b []DaySpan) []DaySpan {
	// Minimal, deterministic: for the common single-span-per-day case,
	// take the later open and earlier close. Multi-range days fall back to
	// the first span pair.
	as, bs := a[0], b[0]
	open := as.Open
	if bs.Open > open {
		open = bs.Open
	}
	close := as.Close
	if bs.Close < close {
		close = bs.Close
	}
	if open >= close {
		return nil
	}
	return []DaySpan{{Open: open, Close: close}}
}

// Contact holds the venue's contact channels; empty strings mean unknown,
// not necessarily absent.
type Contact struct {
	Phone   string `json:"phone,omitempty"`
	Email   string `json:"email,omitempty"`
	Website string `json:"website,omitempty"`
	Social  map[string]string `json:"social,omitempty"`
}

// MenuItem is one line item parsed from a menu page.
type MenuItem struct {
	Name  string `json:"name"`
	Price string `json:"price,omitempty"`
}

// FieldName enumerates Enrichment's addressable fields, used as map keys
// for LastUpdated/Sources/NotApplicable so those maps stay closed over a
// known vocabulary rather than free-form strings.
type FieldName string

const (
	FieldHours       FieldName = "hours"
	FieldContact     FieldName = "contact"
	FieldDescription FieldName = "description"
	FieldFeatures    FieldName = "features"
	FieldMenuURL     FieldName = "menu_url"
	FieldMenuItems   FieldName = "menu_items"
	FieldPriceRange  FieldName = "price_range"
	FieldAmenities   FieldName = "amenities"
	FieldFees        FieldName = "fees"
	FieldAddress     FieldName = "address"
)

// AllFields lists every addressable Enrichment field, used by freshness
// scans and API freshness summaries.
var AllFields = []FieldName{
	FieldHours, FieldContact, FieldDescription, FieldFeatures,
	FieldMenuURL, FieldMenuItems, FieldPriceRange, FieldAmenities, FieldFees,
	FieldAddress,
}

// FreshnessWindow returns how long a field's value stays fresh once set,
// per §4.8's three-tier windowing.
func (f FieldName) FreshnessWindow() time.Duration {
	switch f {
	case FieldHours:
		return 3 * 24 * time.Hour
	case FieldMenuURL, FieldMenuItems, FieldContact, FieldPriceRange:
		return 14 * 24 * time.Hour
	default:
		return 30 * 24 * time.Hour
	}
}

// Enrichment is the per-venue set of dated, source-cited facts. It is the
// unit the Unifier writes and the query path reads.
type Enrichment struct {
	VenueID string

	Hours       Hours
	Contact     Contact
	Description string
	Features    []string
	MenuURL     string
	MenuItems   []MenuItem
	PriceRange  string
	Amenities   []string
	Fees        string

	// AddressComponents holds the postal address broken into
	// schema.org PostalAddress-style keys (street_address, locality,
	// region, postal_code, country); it stays untyped JSON since the
	// key set varies by country.
	AddressComponents map[string]string

	LastUpdated    map[FieldName]time.Time
	Sources        map[FieldName][]string
	NotApplicable  map[FieldName]bool
}

// NewEnrichment builds an empty Enrichment ready for the Unifier to fill.
func NewEnrichment(venueID string) *Enrichment {
	return &Enrichment{
		VenueID:       venueID,
		LastUpdated:   map[FieldName]time.Time{},
		Sources:       map[FieldName][]string{},
		NotApplicable: map[FieldName]bool{},
	}
}

// IsStale reports whether field either was never set or has aged past its
// freshness window as of now.
func (e *Enrichment) IsStale(field FieldName, now time.Time) bool {
	ts, ok := e.LastUpdated[field]
	if !ok {
		return true
	}
	return now.Sub(ts) > field.FreshnessWindow()
}

// StaleFields returns every field that IsStale as of now.
func (e *Enrichment) StaleFields(now time.Time) []FieldName {
	var out []FieldName
	for _, f := range AllFields {
		if e.IsStale(f, now) {
			out = append(out, f)
		}
	}
	return out
}
