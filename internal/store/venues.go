package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/venuescout/venuescout/internal/venue"
)

// ErrNotFound is returned when a lookup by id finds no row.
var ErrNotFound = errors.New("store: not found")

func (s *PostgresStore) GetVenue(ctx context.Context, id string) (venue.Venue, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, name, coalesce(category_name, ''), coalesce(category_weight, 0),
		       lat, lon, coalesce(website, ''), popularity_confidence, last_enriched_at
		FROM venues WHERE id = $1`, id)

	var v venue.Venue
	if err := row.Scan(&v.ID, &v.Name, &v.CategoryName, &v.CategoryWeight,
		&v.Lat, &v.Lon, &v.Website, &v.PopularityConf, &v.LastEnrichedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return venue.Venue{}, ErrNotFound
		}
		return venue.Venue{}, fmt.Errorf("get venue %s: %w", id, err)
	}
	return v, nil
}

func (s *PostgresStore) SetVenueWebsite(ctx context.Context, id, website string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE venues SET website = $1 WHERE id = $2`, website, id)
	if err != nil {
		return fmt.Errorf("set venue website %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) TouchLastEnriched(ctx context.Context, id string, at time.Time) error {
	_, err := s.pool.Exec(ctx, `UPDATE venues SET last_enriched_at = $1 WHERE id = $2`, at, id)
	if err != nil {
		return fmt.Errorf("touch last_enriched_at %s: %w", id, err)
	}
	return nil
}

// NearbyVenues ranks venues within radiusM of (lat, lon) by distance,
// optionally filtered by category. It does not load enrichment: each
// GeoResult's Enrichment is left nil.
// Distance is computed with PostGIS geography so it accounts for the
// earth's curvature at any latitude.
func (s *PostgresStore) NearbyVenues(ctx context.Context, lat, lon, radiusM float64, limit int, category string) ([]GeoResult, error) {
	query := `
		SELECT v.id, v.name, coalesce(v.category_name, ''), coalesce(v.category_weight, 0),
		       v.lat, v.lon, coalesce(v.website, ''), v.popularity_confidence, v.last_enriched_at,
		       ST_Distance(v.geog, ST_SetSRID(ST_MakePoint($2, $1), 4326)::geography) AS distance_m
		FROM venues v
		WHERE ST_DWithin(v.geog, ST_SetSRID(ST_MakePoint($2, $1), 4326)::geography, $3)
		  AND ($4 = '' OR v.category_name = $4)
		ORDER BY distance_m ASC
		LIMIT $5`

	rows, err := s.pool.Query(ctx, query, lat, lon, radiusM, category, limit)
	if err != nil {
		return nil, fmt.Errorf("nearby venues: %w", err)
	}
	defer rows.Close()

	var out []GeoResult
	for rows.Next() {
		var v venue.Venue
		var distance float64
		if err := rows.Scan(&v.ID, &v.Name, &v.CategoryName, &v.CategoryWeight,
			&v.Lat, &v.Lon, &v.Website, &v.PopularityConf, &v.LastEnrichedAt, &distance); err != nil {
			return nil, fmt.Errorf("scan nearby venue: %w", err)
		}
		out = append(out, GeoResult{Venue: v, DistanceM: distance})
	}
	return out, rows.Err()
}

// TopPopularityVenues returns the venues at or above the given percentile
// of popularity_confidence, NULLs sorting last per the Scheduler's
// percentile-ranking design decision.
func (s *PostgresStore) TopPopularityVenues(ctx context.Context, percentile float64, limit int) ([]venue.Venue, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, coalesce(category_name, ''), coalesce(category_weight, 0),
		       lat, lon, coalesce(website, ''), popularity_confidence, last_enriched_at
		FROM venues
		WHERE popularity_confidence >= (
			SELECT percentile_cont($1) WITHIN GROUP (ORDER BY popularity_confidence)
			FROM venues WHERE popularity_confidence IS NOT NULL
		)
		ORDER BY popularity_confidence DESC NULLS LAST
		LIMIT $2`, percentile, limit)
	if err != nil {
		return nil, fmt.Errorf("top popularity venues: %w", err)
	}
	defer rows.Close()

	var out []venue.Venue
	for rows.Next() {
		var v venue.Venue
		if err := rows.Scan(&v.ID, &v.Name, &v.CategoryName, &v.CategoryWeight,
			&v.Lat, &v.Lon, &v.Website, &v.PopularityConf, &v.LastEnrichedAt); err != nil {
			return nil, fmt.Errorf("scan top popularity venue: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
