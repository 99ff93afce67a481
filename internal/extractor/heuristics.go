package extractor

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/venuescout/venuescout/internal/venue"
)

var (
	phonePattern = regexp.MustCompile(`(?:\+?\d{1,3}[\s.-]?)?\(?\d{2,4}\)?[\s.-]?\d{3,4}[\s.-]?\d{3,4}`)
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	weekdayTimePattern = regexp.MustCompile(`(?i)(Mon|Tue|Wed|Thu|Fri|Sat|Sun)[a-z]*(?:\s*-\s*(Mon|Tue|Wed|Thu|Fri|Sat|Sun)[a-z]*)?\s*:?\s*(\d{1,2}(?::\d{2})?\s*(?:am|pm)?)\s*(?:-|to|–)\s*(\d{1,2}(?::\d{2})?\s*(?:am|pm)?)`)
	priceRangePattern = regexp.MustCompile(`(?i)([£$€])\s?\d+(?:\.\d{2})?\s*(?:-|to)\s*([£$€])?\s?\d+(?:\.\d{2})?`)
	admissionPattern  = regexp.MustCompile(`(?i)(free entry|free admission|adults?\s*[£$€]\s?\d+(?:\.\d{2})?|ticket[s]?\s*(?:from|:)?\s*[£$€]?\s?\d+(?:\.\d{2})?)`)
)

var weekdayOrder = []string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

var featureHeadingKeywords = []string{"amenities", "features", "facilities", "accessibility"}

const maxMenuItems = 50

func heuristicFacts(page venue.ScrapedPage) []Fact {
	text := page.CleanedText
	if text == "" {
		return nil
	}
	var facts []Fact
	add := func(field venue.FieldName, value any) {
		facts = append(facts, Fact{
			Field: field, Value: value, SourceURL: page.URL, FetchedAt: page.FetchedAt,
			Rank: rankFor(field, page, false),
		})
	}

	if phone := phonePattern.FindString(text); phone != "" {
		add(venue.FieldContact, venue.Contact{Phone: strings.TrimSpace(phone)})
	}
	if email := emailPattern.FindString(text); email != "" {
		add(venue.FieldContact, venue.Contact{Email: email})
	}
	if h := parseWeekdayTimeSpans(text); len(h) > 0 {
		add(venue.FieldHours, h)
	}
	if price := priceRangePattern.FindString(text); price != "" {
		add(venue.FieldPriceRange, strings.TrimSpace(price))
	}
	if fee := admissionPattern.FindString(text); fee != "" {
		add(venue.FieldFees, strings.TrimSpace(fee))
	}
	if page.PageType == venue.PageMenu {
		if items := parseMenuItems(text); len(items) > 0 {
			add(venue.FieldMenuItems, items)
		}
	}
	if features := parseFeatureList(text); len(features) > 0 {
		add(venue.FieldFeatures, features)
	}
	return facts
}

func parseWeekdayTimeSpans(text string) venue.Hours {
	matches := weekdayTimePattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	hours := venue.Hours{}
	for _, m := range matches {
		startDay := titleCase3(m[1])
		endDay := startDay
		if m[2] != "" {
			endDay = titleCase3(m[2])
		}
		span := venue.DaySpan{Open: normalizeAMPM(m[3]), Close: normalizeAMPM(m[4])}
		for _, day := range expandDayRange(startDay, endDay) {
			d, ok := abbreviatedWeekday(day)
			if !ok {
				continue
			}
			hours[d] = append(hours[d], span)
		}
	}
	return hours
}

func titleCase3(s string) string {
	if len(s) < 3 {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:3])
}

func expandDayRange(start, end string) []string {
	si, ei := indexOfDay(start), indexOfDay(end)
	if si < 0 || ei < 0 {
		return []string{start}
	}
	var days []string
	for i := si; ; i = (i + 1) % 7 {
		days = append(days, weekdayOrder[i])
		if i == ei {
			break
		}
		if len(days) > 7 {
			break
		}
	}
	return days
}

func indexOfDay(d string) int {
	for i, w := range weekdayOrder {
		if w == d {
			return i
		}
	}
	return -1
}

var weekdayByAbbrev = map[string]time.Weekday{
	"Mon": time.Monday, "Tue": time.Tuesday, "Wed": time.Wednesday,
	"Thu": time.Thursday, "Fri": time.Friday, "Sat": time.Saturday, "Sun": time.Sunday,
}

func abbreviatedWeekday(d string) (time.Weekday, bool) {
	w, ok := weekdayByAbbrev[d]
	return w, ok
}

func normalizeAMPM(t string) string {
	t = strings.TrimSpace(strings.ToLower(t))
	pm := strings.Contains(t, "pm")
	t = strings.TrimSuffix(strings.TrimSuffix(t, "am"), "pm")
	t = strings.TrimSpace(t)
	hour, minute := "0", "00"
	if strings.Contains(t, ":") {
		parts := strings.SplitN(t, ":", 2)
		hour, minute = parts[0], parts[1]
	} else {
		hour = t
	}
	h, _ := strconv.Atoi(hour)
	if pm && h != 12 {
		h += 12
	}
	if !pm && h == 12 {
		h = 0
	}
	hourStr := strconv.Itoa(h)
	if h < 10 {
		hourStr = "0" + hourStr
	}
	return hourStr + ":" + minute
}

// parseMenuItems applies a minimal heuristic: the text is split on "." and
// each segment of at most 80 characters becomes one item with an optional
// trailing price, capped at maxMenuItems per §4.6.
func parseMenuItems(text string) []venue.MenuItem {
	lines := strings.Split(text, ".")
	var items []venue.MenuItem
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || len(line) > 80 {
			continue
		}
		price := priceRangePattern.FindString(line)
		name := line
		if price != "" {
			name = strings.TrimSpace(strings.Replace(line, price, "", 1))
		} else if idx := singlePriceIndex(line); idx >= 0 {
			price = line[idx:]
			name = strings.TrimSpace(line[:idx])
		}
		if name == "" {
			continue
		}
		items = append(items, venue.MenuItem{Name: name, Price: strings.TrimSpace(price)})
		if len(items) >= maxMenuItems {
			break
		}
	}
	return items
}

var singlePricePattern = regexp.MustCompile(`[£$€]\s?\d+(?:\.\d{2})?`)

func singlePriceIndex(line string) int {
	loc := singlePricePattern.FindStringIndex(line)
	if loc == nil {
		return -1
	}
	return loc[0]
}

func parseFeatureList(text string) []string {
	lower := strings.ToLower(text)
	found := false
	for _, kw := range featureHeadingKeywords {
		if strings.Contains(lower, kw) {
			found = true
			break
		}
	}
	if !found {
		return nil
	}
	var features []string
	for _, sentence := range strings.Split(text, ".") {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" || len(sentence) > 40 || len(strings.Fields(sentence)) > 5 {
			continue
		}
		features = append(features, sentence)
		if len(features) >= 20 {
			break
		}
	}
	return features
}
