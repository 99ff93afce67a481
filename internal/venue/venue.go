// Package venue defines the persistent data model shared by every
// enrichment-pipeline component: venues, the pages scraped for them, the
// facts unified from those pages, crawl jobs, website-recovery audit trail,
// and embeddings.
package venue

import "time"

// Venue is a physical place from the baseline POI import. The pipeline
// mutates only Website and LastEnrichedAt on it.
type Venue struct {
	ID              string
	Name            string
	CategoryName    string
	CategoryWeight  float64
	Lat             float64
	Lon             float64
	Website         string
	PopularityConf  *float64
	LastEnrichedAt  *time.Time

	// ImportedEmail and ImportedSocial come from the baseline POI import
	// alongside Website, when the source dataset carries them, and feed
	// the website-recovery stage for venues missing Website. They are
	// never crawled or mutated by the pipeline.
	ImportedEmail  string
	ImportedSocial string
}

// PageType classifies a ScrapedPage by the role it plays for a venue.
type PageType string

const (
	PageHomepage PageType = "homepage"
	PageHours    PageType = "hours"
	PageMenu     PageType = "menu"
	PageContact  PageType = "contact"
	PageAbout    PageType = "about"
	PageFees     PageType = "fees"
	PageOther    PageType = "other"
)

// DiscoveryMethod records how a ScrapedPage's URL was found.
type DiscoveryMethod string

const (
	DiscoveryDirectURL DiscoveryMethod = "direct_url"
	DiscoverySearchAPI DiscoveryMethod = "search_api"
	DiscoveryHeuristic DiscoveryMethod = "heuristic"
)

// Reason is a stable string error/skip code, persisted on crawl_jobs.error
// and scraped_pages.reason. It is not a Go error type because these codes
// outlive the process that produced them.
type Reason string

const (
	ReasonNetworkTimeout    Reason = "network_timeout"
	ReasonDNSFailure        Reason = "dns_failure"
	ReasonTLSError          Reason = "tls_error"
	ReasonHTTP5xx           Reason = "http_5xx"
	ReasonHTTP429           Reason = "http_429"
	ReasonRobotsDisallowed  Reason = "robots_disallowed"
	ReasonInvalidMIME       Reason = "invalid_mime"
	ReasonNon200Status      Reason = "non_200_status"
	ReasonThinContent       Reason = "thin_content"
	ReasonDuplicateContent  Reason = "duplicate_content"
	ReasonOffDomainLink     Reason = "off_domain_link"
	ReasonSizeExceeded      Reason = "size_exceeded"
	ReasonTimeBudgetExceeded Reason = "time_budget_exceeded"
	ReasonNoWebsite         Reason = "no_website"
	ReasonShutdown          Reason = "shutdown"
	ReasonStuckReaped       Reason = "stuck_reaped"
)

// Transient reports whether the reason represents a condition worth
// retrying through the Rate Gate's backoff.
func (r Reason) Transient() bool {
	switch r {
	case ReasonNetworkTimeout, ReasonDNSFailure, ReasonTLSError, ReasonHTTP5xx, ReasonHTTP429:
		return true
	default:
		return false
	}
}

// ScrapedPage is one fetched URL persisted for a venue.
type ScrapedPage struct {
	ID              int64
	VenueID         string
	URL             string
	PageType        PageType
	FetchedAt       time.Time
	ValidUntil      *time.Time
	HTTPStatus      int
	ContentType     string
	ContentHash     string
	CleanedText     string
	Discovery       DiscoveryMethod
	RedirectChain   []string
	ErrorReason     Reason
	SizeBytes       int
	TotalMs         int
	FirstByteMs     int

	// RawHTML holds the fetched body for pages retrieved during the
	// current crawl, so the Fact Extractor's structured-data path can read
	// JSON-LD blocks the cleaned-text pass strips. It is not persisted;
	// historical pages loaded back from the store carry it empty and are
	// extracted heuristically only.
	RawHTML string
}

// FreshnessWindow returns the maximum age this page type may reach before
// its facts are considered stale, per §4.8.
func (t PageType) FreshnessWindow() time.Duration {
	switch t {
	case PageHours:
		return 3 * 24 * time.Hour
	case PageMenu, PageContact, PageFees:
		return 14 * 24 * time.Hour
	default:
		return 30 * 24 * time.Hour
	}
}
