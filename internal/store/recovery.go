package store

import (
	"context"
	"fmt"

	"github.com/venuescout/venuescout/internal/venue"
)

func (s *PostgresStore) InsertRecoveryCandidates(ctx context.Context, candidates []venue.RecoveryCandidate) error {
	for _, c := range candidates {
		_, err := s.pool.Exec(ctx, `
			INSERT INTO recovery_candidates (venue_id, url, confidence, method, is_chosen, created_at)
			VALUES ($1, $2, $3, $4, $5, now())`,
			c.VenueID, c.URL, c.Confidence, c.Method, c.IsChosen)
		if err != nil {
			return fmt.Errorf("insert recovery candidate for %s: %w", c.VenueID, err)
		}
	}
	return nil
}

func (s *PostgresStore) MarkRecoveryChosen(ctx context.Context, venueID, url string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE recovery_candidates SET is_chosen = (url = $2) WHERE venue_id = $1`, venueID, url)
	if err != nil {
		return fmt.Errorf("mark recovery chosen %s: %w", venueID, err)
	}
	return nil
}
