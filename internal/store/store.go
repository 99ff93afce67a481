// Package store persists venues, scraped pages, enrichment, crawl jobs,
// recovery candidates and embeddings, and exposes the freshness and geo
// queries the rest of the pipeline needs (C1). The concrete implementation
// is backed by pgx against Postgres/PostGIS/pgvector and reaches the pool
// through the narrow pgxIface, so tests can substitute pgxmock.
package store

import (
	"context"
	"time"

	"github.com/venuescout/venuescout/internal/venue"
)

// GeoResult is one row of a nearby-venues query.
type GeoResult struct {
	Venue      venue.Venue
	DistanceM  float64
	Enrichment *venue.Enrichment // NearbyVenues leaves this nil; enrichment is loaded with GetEnrichment
}

// Store is the full persistence contract used by the pipeline.
type Store interface {
	// Venues
	GetVenue(ctx context.Context, id string) (venue.Venue, error)
	SetVenueWebsite(ctx context.Context, id, website string) error
	TouchLastEnriched(ctx context.Context, id string, at time.Time) error
	NearbyVenues(ctx context.Context, lat, lon float64, radiusM float64, limit int, category string) ([]GeoResult, error)
	TopPopularityVenues(ctx context.Context, percentile float64, limit int) ([]venue.Venue, error)

	// Scraped pages
	InsertPage(ctx context.Context, page venue.ScrapedPage) (venue.ScrapedPage, bool, error) // bool = newly inserted (false = existing row reused by content hash)
	PagesForVenue(ctx context.Context, venueID string, now time.Time) ([]venue.ScrapedPage, error)

	// Enrichment
	GetEnrichment(ctx context.Context, venueID string) (*venue.Enrichment, error)
	UpsertEnrichment(ctx context.Context, e *venue.Enrichment) error
	StaleVenueIDs(ctx context.Context, hoursWindow, menuContactPriceWindow, descFeaturesWindow time.Duration, limit int) ([]string, error)

	// Recovery candidates
	InsertRecoveryCandidates(ctx context.Context, candidates []venue.RecoveryCandidate) error
	MarkRecoveryChosen(ctx context.Context, venueID, url string) error

	// Jobs (C2 delegates persistence here; queue.go supplies the
	// concurrency/claim semantics on top of these primitives)
	EnqueueJob(ctx context.Context, venueID string, mode venue.JobMode, priority int) (int64, error)
	ClaimJobs(ctx context.Context, batchSize int, perHostCap int) ([]venue.CrawlJob, error)
	CompleteJob(ctx context.Context, jobID int64, ok bool, reason venue.Reason) error
	JobStatus(ctx context.Context, jobID int64) (venue.CrawlJob, error)
	QueueDepth(ctx context.Context) (map[venue.JobState]int, error)
	ReapStuckJobs(ctx context.Context, threshold time.Duration, maxReaps int) (int, error)

	// Embeddings
	UpsertEmbedding(ctx context.Context, e venue.Embedding) error
	VenuesNeedingEmbeddings(ctx context.Context, limit int) ([]string, error)

	Ping(ctx context.Context) error
	Close()
}
