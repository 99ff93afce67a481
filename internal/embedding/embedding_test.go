package embedding

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/venuescout/venuescout/internal/venue"
)

type fakeClient struct {
	vector []float32
	err    error
}

func (f fakeClient) CreateEmbedding(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vector
	}
	return out, nil
}

type fakeStore struct {
	enrichment map[string]*venue.Enrichment
	needing    []string
	upserted   []venue.Embedding
}

func (f *fakeStore) GetEnrichment(_ context.Context, venueID string) (*venue.Enrichment, error) {
	return f.enrichment[venueID], nil
}
func (f *fakeStore) UpsertEmbedding(_ context.Context, e venue.Embedding) error {
	f.upserted = append(f.upserted, e)
	return nil
}
func (f *fakeStore) VenuesNeedingEmbeddings(_ context.Context, _ int) ([]string, error) {
	return f.needing, nil
}

func fullVector() []float32 {
	v := make([]float32, venue.EmbeddingDimension)
	for i := range v {
		v[i] = 0.1
	}
	return v
}

func TestRunOnceEmbedsQualifyingVenues(t *testing.T) {
	store := &fakeStore{
		needing: []string{"v1"},
		enrichment: map[string]*venue.Enrichment{
			"v1": {Description: "A riverside cafe with a large outdoor terrace and weekend brunch menu."},
		},
	}
	p := NewWithClient(fakeClient{vector: fullVector()}, store, zap.NewNop())

	n, err := p.RunOnce(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, store.upserted, 1)
	assert.Equal(t, "v1", store.upserted[0].VenueID)
}

func TestRunOnceSkipsVenueWithInsufficientText(t *testing.T) {
	store := &fakeStore{
		needing:    []string{"v1"},
		enrichment: map[string]*venue.Enrichment{"v1": {Description: "Tiny."}},
	}
	p := NewWithClient(fakeClient{vector: fullVector()}, store, zap.NewNop())

	n, err := p.RunOnce(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Empty(t, store.upserted)
}

func TestRunOnceSkipsVenueOnEmbedderError(t *testing.T) {
	store := &fakeStore{
		needing: []string{"v1"},
		enrichment: map[string]*venue.Enrichment{
			"v1": {Description: "A riverside cafe with a large outdoor terrace and weekend brunch menu."},
		},
	}
	p := NewWithClient(fakeClient{err: assertErr{}}, store, zap.NewNop())

	n, err := p.RunOnce(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestPingReflectsClientHealth(t *testing.T) {
	store := &fakeStore{}
	ok := NewWithClient(fakeClient{vector: fullVector()}, store, zap.NewNop())
	assert.NoError(t, ok.Ping(context.Background()))

	down := NewWithClient(fakeClient{err: assertErr{}}, store, zap.NewNop())
	assert.Error(t, down.Ping(context.Background()))
}

type assertErr struct{}

func (assertErr) Error() string { return "embedder unavailable" }
