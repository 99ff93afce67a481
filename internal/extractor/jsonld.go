package extractor

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/venuescout/venuescout/internal/venue"
)

// dedicatedPageFor names, for each field, the page type whose extracted
// value ranks as rankDedicatedPage rather than rankStructuredData/
// rankFreeText, per §4.6's precedence rule.
var dedicatedPageFor = map[venue.FieldName]venue.PageType{
	venue.FieldHours:      venue.PageHours,
	venue.FieldMenuURL:    venue.PageMenu,
	venue.FieldMenuItems:  venue.PageMenu,
	venue.FieldContact:    venue.PageContact,
	venue.FieldFees:       venue.PageFees,
}

func rankFor(field venue.FieldName, page venue.ScrapedPage, structured bool) precedenceRank {
	if dedicated, ok := dedicatedPageFor[field]; ok && page.PageType == dedicated {
		return rankDedicatedPage
	}
	if structured {
		return rankStructuredData
	}
	return rankFreeText
}

// jsonLDNode is a permissive schema.org node: only the properties the
// pipeline maps are declared, everything else is ignored.
type jsonLDNode struct {
	Type                     any             `json:"@type"`
	Telephone                string          `json:"telephone"`
	Email                    string          `json:"email"`
	URL                      string          `json:"url"`
	PriceRange               string          `json:"priceRange"`
	Description              string          `json:"description"`
	Address                  json.RawMessage `json:"address"`
	OpeningHoursSpecification json.RawMessage `json:"openingHoursSpecification"`
	AmenityFeature           json.RawMessage `json:"amenityFeature"`
	Offers                   json.RawMessage `json:"offers"`
	Menu                     any             `json:"menu"`
	HasMenu                  any             `json:"hasMenu"`
}

type openingHoursSpec struct {
	DayOfWeek any    `json:"dayOfWeek"`
	Opens     string `json:"opens"`
	Closes    string `json:"closes"`
}

type postalAddress struct {
	StreetAddress   string `json:"streetAddress"`
	AddressLocality string `json:"addressLocality"`
	AddressRegion   string `json:"addressRegion"`
	PostalCode      string `json:"postalCode"`
	AddressCountry  string `json:"addressCountry"`
}

type amenityFeature struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

type offer struct {
	Price         any    `json:"price"`
	PriceCurrency string `json:"priceCurrency"`
}

// structuredDataFacts extracts JSON-LD blocks from a page and maps them to
// candidate facts per §4.6's structured-data path.
func structuredDataFacts(page venue.ScrapedPage) []Fact {
	if page.RawHTML == "" {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.RawHTML))
	if err != nil {
		return nil
	}

	var facts []Fact
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, sel *goquery.Selection) {
		facts = append(facts, parseJSONLDBlock(sel.Text(), page)...)
	})
	return facts
}

func parseJSONLDBlock(raw string, page venue.ScrapedPage) []Fact {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	var nodes []jsonLDNode
	if strings.HasPrefix(raw, "[") {
		if err := json.Unmarshal([]byte(raw), &nodes); err != nil {
			return nil
		}
	} else {
		var node jsonLDNode
		if err := json.Unmarshal([]byte(raw), &node); err != nil {
			return nil
		}
		nodes = []jsonLDNode{node}
	}

	var facts []Fact
	for _, node := range nodes {
		facts = append(facts, factsFromNode(node, page)...)
	}
	return facts
}

func factsFromNode(node jsonLDNode, page venue.ScrapedPage) []Fact {
	var facts []Fact
	add := func(field venue.FieldName, value any) {
		facts = append(facts, Fact{
			Field: field, Value: value, SourceURL: page.URL, FetchedAt: page.FetchedAt,
			Rank: rankFor(field, page, true),
		})
	}

	if len(node.OpeningHoursSpecification) > 0 {
		if h := parseOpeningHours(node.OpeningHoursSpecification); len(h) > 0 {
			add(venue.FieldHours, h)
		}
	}
	if node.Telephone != "" || node.Email != "" {
		c := venue.Contact{Phone: node.Telephone, Email: node.Email, Website: node.URL}
		add(venue.FieldContact, c)
	}
	if node.PriceRange != "" {
		add(venue.FieldPriceRange, node.PriceRange)
	}
	if node.Description != "" {
		add(venue.FieldDescription, node.Description)
	}
	if len(node.Address) > 0 {
		if components := parseAddress(node.Address); len(components) > 0 {
			add(venue.FieldAddress, components)
		}
	}
	if len(node.AmenityFeature) > 0 {
		if amenities := parseAmenities(node.AmenityFeature); len(amenities) > 0 {
			add(venue.FieldAmenities, amenities)
		}
	}
	if len(node.Offers) > 0 {
		if fee, na := parseOffers(node.Offers); fee != "" || na {
			facts = append(facts, Fact{
				Field: venue.FieldFees, Value: fee, NotApplicable: na,
				SourceURL: page.URL, FetchedAt: page.FetchedAt, Rank: rankFor(venue.FieldFees, page, true),
			})
		}
	}
	if url, ok := stringOrNestedURL(node.Menu); ok {
		add(venue.FieldMenuURL, url)
	} else if url, ok := stringOrNestedURL(node.HasMenu); ok {
		add(venue.FieldMenuURL, url)
	}

	return facts
}

func stringOrNestedURL(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, t != ""
	case map[string]any:
		if u, ok := t["url"].(string); ok {
			return u, u != ""
		}
	}
	return "", false
}

var weekdayAliases = map[string]time.Weekday{
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
	"sunday": time.Sunday, "sun": time.Sunday,
}

func parseOpeningHours(raw json.RawMessage) venue.Hours {
	var specs []openingHoursSpec
	if err := json.Unmarshal(raw, &specs); err != nil {
		var single openingHoursSpec
		if err := json.Unmarshal(raw, &single); err != nil {
			return nil
		}
		specs = []openingHoursSpec{single}
	}

	hours := venue.Hours{}
	for _, spec := range specs {
		days := weekdaysFromAny(spec.DayOfWeek)
		if len(days) == 0 || spec.Opens == "" || spec.Closes == "" {
			continue
		}
		span := venue.DaySpan{Open: normalizeClock(spec.Opens), Close: normalizeClock(spec.Closes)}
		for _, d := range days {
			hours[d] = append(hours[d], span)
		}
	}
	return hours
}

func weekdaysFromAny(v any) []time.Weekday {
	var names []string
	switch t := v.(type) {
	case string:
		names = []string{t}
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok {
				names = append(names, s)
			}
		}
	}
	var days []time.Weekday
	for _, name := range names {
		key := strings.ToLower(strings.TrimPrefix(name, "https://schema.org/"))
		if d, ok := weekdayAliases[key]; ok {
			days = append(days, d)
		}
	}
	return days
}

func normalizeClock(t string) string {
	t = strings.TrimSpace(t)
	if len(t) >= 5 {
		return t[:5]
	}
	return t
}

// parseAddress unmarshals a schema.org PostalAddress node into a flat
// key/value map, per §4.6's address-components mapping. Empty components
// are omitted rather than stored as blank strings.
func parseAddress(raw json.RawMessage) map[string]string {
	var addr postalAddress
	if err := json.Unmarshal(raw, &addr); err != nil {
		return nil
	}
	components := map[string]string{}
	if addr.StreetAddress != "" {
		components["street_address"] = addr.StreetAddress
	}
	if addr.AddressLocality != "" {
		components["locality"] = addr.AddressLocality
	}
	if addr.AddressRegion != "" {
		components["region"] = addr.AddressRegion
	}
	if addr.PostalCode != "" {
		components["postal_code"] = addr.PostalCode
	}
	if addr.AddressCountry != "" {
		components["country"] = addr.AddressCountry
	}
	return components
}

func parseAmenities(raw json.RawMessage) []string {
	var features []amenityFeature
	if err := json.Unmarshal(raw, &features); err != nil {
		return nil
	}
	var names []string
	for _, f := range features {
		if enabled, ok := f.Value.(bool); ok && !enabled {
			continue
		}
		if f.Name != "" {
			names = append(names, f.Name)
		}
	}
	return names
}

// parseOffers returns a rendered fee string, or na=true when the offer
// explicitly states free admission (an attraction with a zero-price
// offer), matching the not_applicable semantics in §4.7.
func parseOffers(raw json.RawMessage) (fee string, na bool) {
	var offers []offer
	if err := json.Unmarshal(raw, &offers); err != nil {
		var single offer
		if err := json.Unmarshal(raw, &single); err != nil {
			return "", false
		}
		offers = []offer{single}
	}
	for _, o := range offers {
		switch price := o.Price.(type) {
		case float64:
			if price == 0 {
				return "", true
			}
			return formatPrice(price, o.PriceCurrency), false
		case string:
			if price == "0" || price == "0.00" {
				return "", true
			}
			return price + " " + o.PriceCurrency, false
		}
	}
	return "", false
}

func formatPrice(price float64, currency string) string {
	return currency + " " + strconv.FormatFloat(price, 'f', -1, 64)
}
