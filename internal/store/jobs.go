package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/venuescout/venuescout/internal/venue"
)

func (s *PostgresStore) EnqueueJob(ctx context.Context, venueID string, mode venue.JobMode, priority int) (int64, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO crawl_jobs (venue_id, mode, priority, state, created_at)
		VALUES ($1, $2, $3, 'pending', now())
		RETURNING id`, venueID, mode, priority)
	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, fmt.Errorf("enqueue job for %s: %w", venueID, err)
	}
	return id, nil
}

// ClaimJobs atomically dequeues up to batchSize pending jobs, honoring a
// per-host concurrency cap derived from each candidate venue's website
// host, ordered priority DESC, id ASC. It mirrors the CTE-based
// SKIP LOCKED claim used by the queue this pipeline was distilled from:
// count currently-running jobs per host, exclude hosts already at cap, then
// lock and claim from what remains.
func (s *PostgresStore) ClaimJobs(ctx context.Context, batchSize int, perHostCap int) ([]venue.CrawlJob, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin claim tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	rows, err := tx.Query(ctx, `
		WITH running_per_host AS (
			SELECT registrable_domain(v.website) AS host, count(*) AS n
			FROM crawl_jobs j
			JOIN venues v ON v.id = j.venue_id
			WHERE j.state = 'running' AND v.website IS NOT NULL AND v.website <> ''
			GROUP BY host
		),
		candidates AS (
			SELECT j.id, registrable_domain(v.website) AS host
			FROM crawl_jobs j
			JOIN venues v ON v.id = j.venue_id
			WHERE j.state = 'pending'
			ORDER BY j.priority DESC, j.id ASC
			FOR UPDATE OF j SKIP LOCKED
			LIMIT $1 * 4
		),
		eligible AS (
			SELECT c.id FROM candidates c
			LEFT JOIN running_per_host r ON r.host = c.host
			WHERE coalesce(r.n, 0) < $2
			LIMIT $1
		)
		UPDATE crawl_jobs SET state = 'running', started_at = now()
		WHERE id IN (SELECT id FROM eligible)
		RETURNING id, venue_id, mode, priority, state, created_at, started_at, finished_at, coalesce(error,''), reap_count`,
		batchSize, perHostCap)
	if err != nil {
		return nil, fmt.Errorf("claim jobs: %w", err)
	}

	var jobs []venue.CrawlJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		jobs = append(jobs, j)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit claim tx: %w", err)
	}
	return jobs, nil
}

func (s *PostgresStore) CompleteJob(ctx context.Context, jobID int64, ok bool, reason venue.Reason) error {
	state := venue.JobSuccess
	if !ok {
		state = venue.JobFail
	}
	_, err := s.pool.Exec(ctx, `
		UPDATE crawl_jobs SET state = $1, finished_at = now(), error = $2 WHERE id = $3`,
		state, nullableReason(reason), jobID)
	if err != nil {
		return fmt.Errorf("complete job %d: %w", jobID, err)
	}
	return nil
}

func (s *PostgresStore) JobStatus(ctx context.Context, jobID int64) (venue.CrawlJob, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, venue_id, mode, priority, state, created_at, started_at, finished_at, coalesce(error,''), reap_count
		FROM crawl_jobs WHERE id = $1`, jobID)
	j, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return venue.CrawlJob{}, ErrNotFound
		}
		return venue.CrawlJob{}, err
	}
	return j, nil
}

func (s *PostgresStore) QueueDepth(ctx context.Context) (map[venue.JobState]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT state, count(*) FROM crawl_jobs GROUP BY state`)
	if err != nil {
		return nil, fmt.Errorf("queue depth: %w", err)
	}
	defer rows.Close()

	depths := map[venue.JobState]int{}
	for rows.Next() {
		var state string
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			return nil, err
		}
		depths[venue.JobState(state)] = n
	}
	return depths, rows.Err()
}

// ReapStuckJobs resets running jobs older than threshold back to pending,
// force-failing any that have already been reaped maxReaps times (§ stuck
// job supplement, grounded in the original queue's prune_stuck).
func (s *PostgresStore) ReapStuckJobs(ctx context.Context, threshold time.Duration, maxReaps int) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE crawl_jobs SET state = 'fail', finished_at = now(), error = $1
		WHERE state = 'running' AND started_at < now() - $2::interval AND reap_count >= $3`,
		string(venue.ReasonStuckReaped), threshold.String(), maxReaps)
	if err != nil {
		return 0, fmt.Errorf("force-fail stuck jobs: %w", err)
	}
	failed := int(tag.RowsAffected())

	tag, err = s.pool.Exec(ctx, `
		UPDATE crawl_jobs SET state = 'pending', started_at = NULL, reap_count = reap_count + 1
		WHERE state = 'running' AND started_at < now() - $1::interval`, threshold.String())
	if err != nil {
		return failed, fmt.Errorf("reap stuck jobs: %w", err)
	}
	return failed + int(tag.RowsAffected()), nil
}

func scanJob(row rowScanner) (venue.CrawlJob, error) {
	var j venue.CrawlJob
	var mode, state, errStr string
	if err := row.Scan(&j.ID, &j.VenueID, &mode, &j.Priority, &state, &j.CreatedAt,
		&j.StartedAt, &j.FinishedAt, &errStr, &j.ReapCount); err != nil {
		return venue.CrawlJob{}, fmt.Errorf("scan job: %w", err)
	}
	j.Mode = venue.JobMode(mode)
	j.State = venue.JobState(state)
	j.Error = venue.Reason(errStr)
	return j, nil
}
