// Package embedding implements the Embedding Producer (C11): it turns a
// venue's enriched text into a fixed-dimension vector via Ollama and
// writes it to the store. Failure here is never fatal to the pipeline —
// the query path must still function without embeddings.
package embedding

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms/ollama"
	"go.uber.org/zap"

	"github.com/venuescout/venuescout/internal/venue"
)

// Store is the persistence surface the producer needs.
type Store interface {
	GetEnrichment(ctx context.Context, venueID string) (*venue.Enrichment, error)
	UpsertEmbedding(ctx context.Context, e venue.Embedding) error
	VenuesNeedingEmbeddings(ctx context.Context, limit int) ([]string, error)
}

// EmbedderClient is the narrow surface langchaingo's ollama.LLM satisfies,
// matching the pack's embedding-client abstraction.
type EmbedderClient interface {
	CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)
}

// ValidityWindow is how long a written embedding is considered current
// before VenuesNeedingEmbeddings selects the venue again.
const ValidityWindow = 30 * 24 * time.Hour

// Producer generates and stores embeddings for enriched venues.
type Producer struct {
	client EmbedderClient
	store  Store
	log    *zap.Logger
}

// New builds a Producer from an Ollama model name and server address,
// grounded in the pack's ollama.New(WithModel, WithServerURL) wiring.
func New(model, serverURL string, store Store, log *zap.Logger) (*Producer, error) {
	client, err := ollama.New(ollama.WithModel(model), ollama.WithServerURL(serverURL))
	if err != nil {
		return nil, fmt.Errorf("init ollama embedder: %w", err)
	}
	return &Producer{client: client, store: store, log: log}, nil
}

// NewWithClient builds a Producer around an already-constructed client,
// the injection point tests use to avoid a live Ollama server.
func NewWithClient(client EmbedderClient, store Store, log *zap.Logger) *Producer {
	return &Producer{client: client, store: store, log: log}
}

// Ping reports whether the embedding backend responds, so the API's
// readiness check and query-path fallback ranking can tell whether
// embeddings are actually available.
func (p *Producer) Ping(ctx context.Context) error {
	_, err := p.client.CreateEmbedding(ctx, []string{"ping"})
	return err
}

// RunOnce embeds up to limit venues returned by VenuesNeedingEmbeddings. A
// per-venue failure is logged and skipped rather than aborting the batch.
func (p *Producer) RunOnce(ctx context.Context, limit int) (embedded int, err error) {
	ids, err := p.store.VenuesNeedingEmbeddings(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("list venues needing embeddings: %w", err)
	}
	for _, id := range ids {
		if err := p.embedVenue(ctx, id); err != nil {
			p.log.Warn("embed venue failed", zap.String("venue_id", id), zap.Error(err))
			continue
		}
		embedded++
	}
	return embedded, nil
}

func (p *Producer) embedVenue(ctx context.Context, venueID string) error {
	enrichment, err := p.store.GetEnrichment(ctx, venueID)
	if err != nil {
		return fmt.Errorf("get enrichment: %w", err)
	}
	text := embeddableText(enrichment)
	if len(text) < venue.MinEmbeddableTextLength {
		return fmt.Errorf("insufficient enrichment text (%d chars)", len(text))
	}

	vectors, err := p.client.CreateEmbedding(ctx, []string{text})
	if err != nil {
		return fmt.Errorf("create embedding: %w", err)
	}
	if len(vectors) == 0 {
		return fmt.Errorf("embedder returned no vectors")
	}
	vector := vectors[0]
	if len(vector) != venue.EmbeddingDimension {
		return fmt.Errorf("embedder returned dimension %d, want %d", len(vector), venue.EmbeddingDimension)
	}

	validUntil := time.Now().Add(ValidityWindow)
	return p.store.UpsertEmbedding(ctx, venue.Embedding{
		VenueID:    venueID,
		Vector:     vector,
		ValidUntil: &validUntil,
		CreatedAt:  time.Now(),
	})
}

// embeddableText concatenates the free-text-bearing fields of an
// enrichment into the single string handed to the embedder.
func embeddableText(e *venue.Enrichment) string {
	if e == nil {
		return ""
	}
	parts := []string{e.Description}
	parts = append(parts, e.Features...)
	if e.PriceRange != "" {
		parts = append(parts, e.PriceRange)
	}
	if e.Fees != "" {
		parts = append(parts, e.Fees)
	}
	return strings.TrimSpace(strings.Join(parts, ". "))
}
