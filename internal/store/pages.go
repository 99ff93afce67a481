package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/venuescout/venuescout/internal/venue"
)

// InsertPage upserts a ScrapedPage, relying on the unique content_hash
// index to collapse identical bodies fetched for different venues into one
// row (§8 invariant 5). When an existing row already carries this hash,
// InsertPage returns it unchanged and reports newlyInserted=false so the
// caller can still cite it as a source without creating a duplicate.
func (s *PostgresStore) InsertPage(ctx context.Context, page venue.ScrapedPage) (venue.ScrapedPage, bool, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO scraped_pages
			(venue_id, url, page_type, fetched_at, valid_until, http_status, content_type,
			 content_hash, cleaned_text, discovery, redirect_chain, error_reason,
			 size_bytes, total_ms, first_byte_ms)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		ON CONFLICT (content_hash) DO NOTHING
		RETURNING id`,
		page.VenueID, page.URL, page.PageType, page.FetchedAt, page.ValidUntil, page.HTTPStatus,
		page.ContentType, page.ContentHash, page.CleanedText, page.Discovery, page.RedirectChain,
		nullableReason(page.ErrorReason), page.SizeBytes, page.TotalMs, page.FirstByteMs)

	var id int64
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			existing, ferr := s.pageByHash(ctx, page.ContentHash)
			if ferr != nil {
				return venue.ScrapedPage{}, false, ferr
			}
			return existing, false, nil
		}
		return venue.ScrapedPage{}, false, fmt.Errorf("insert page: %w", err)
	}
	page.ID = id
	return page, true, nil
}

func (s *PostgresStore) pageByHash(ctx context.Context, hash string) (venue.ScrapedPage, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, venue_id, url, page_type, fetched_at, valid_until, http_status, content_type,
		       content_hash, coalesce(cleaned_text, ''), discovery, redirect_chain,
		       coalesce(error_reason, ''), coalesce(size_bytes,0), coalesce(total_ms,0), coalesce(first_byte_ms,0)
		FROM scraped_pages WHERE content_hash = $1`, hash)
	return scanPage(row)
}

func (s *PostgresStore) PagesForVenue(ctx context.Context, venueID string, now time.Time) ([]venue.ScrapedPage, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, venue_id, url, page_type, fetched_at, valid_until, http_status, content_type,
		       content_hash, coalesce(cleaned_text, ''), discovery, redirect_chain,
		       coalesce(error_reason, ''), coalesce(size_bytes,0), coalesce(total_ms,0), coalesce(first_byte_ms,0)
		FROM scraped_pages
		WHERE venue_id = $1 AND (valid_until IS NULL OR valid_until > $2)
		ORDER BY fetched_at DESC`, venueID, now)
	if err != nil {
		return nil, fmt.Errorf("pages for venue %s: %w", venueID, err)
	}
	defer rows.Close()

	var out []venue.ScrapedPage
	for rows.Next() {
		p, err := scanPage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPage(row rowScanner) (venue.ScrapedPage, error) {
	var p venue.ScrapedPage
	var pageType, discovery, reason string
	if err := row.Scan(&p.ID, &p.VenueID, &p.URL, &pageType, &p.FetchedAt, &p.ValidUntil,
		&p.HTTPStatus, &p.ContentType, &p.ContentHash, &p.CleanedText, &discovery,
		&p.RedirectChain, &reason, &p.SizeBytes, &p.TotalMs, &p.FirstByteMs); err != nil {
		return venue.ScrapedPage{}, fmt.Errorf("scan page: %w", err)
	}
	p.PageType = venue.PageType(pageType)
	p.Discovery = venue.DiscoveryMethod(discovery)
	p.ErrorReason = venue.Reason(reason)
	return p, nil
}

func nullableReason(r venue.Reason) *string {
	if r == "" {
		return nil
	}
	s := string(r)
	return &s
}
