package store

import (
	"context"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/venuescout/venuescout/internal/venue"
)

func (s *PostgresStore) UpsertEmbedding(ctx context.Context, e venue.Embedding) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO embeddings (venue_id, vector, valid_until, created_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (venue_id) DO UPDATE SET
			vector = excluded.vector, valid_until = excluded.valid_until, created_at = excluded.created_at`,
		e.VenueID, pgvector.NewVector(e.Vector), e.ValidUntil)
	if err != nil {
		return fmt.Errorf("upsert embedding %s: %w", e.VenueID, err)
	}
	return nil
}

// VenuesNeedingEmbeddings returns venue ids with enrichment text but no
// current embedding, or whose embedding has expired.
func (s *PostgresStore) VenuesNeedingEmbeddings(ctx context.Context, limit int) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT e.venue_id FROM enrichment e
		LEFT JOIN embeddings emb ON emb.venue_id = e.venue_id
		WHERE (emb.venue_id IS NULL OR emb.valid_until < now())
		  AND length(coalesce(e.description, '')) + length(coalesce(e.fees, '')) >= $1
		LIMIT $2`, venue.MinEmbeddableTextLength, limit)
	if err != nil {
		return nil, fmt.Errorf("venues needing embeddings: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
