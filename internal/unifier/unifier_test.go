package unifier

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/venuescout/venuescout/internal/extractor"
	"github.com/venuescout/venuescout/internal/venue"
)

type fakeStore struct {
	enrichment *venue.Enrichment
	touched    time.Time
	upserted   *venue.Enrichment
}

func (f *fakeStore) GetEnrichment(_ context.Context, venueID string) (*venue.Enrichment, error) {
	if f.enrichment != nil {
		return f.enrichment, nil
	}
	return nil, nil
}

func (f *fakeStore) UpsertEnrichment(_ context.Context, e *venue.Enrichment) error {
	f.upserted = e
	return nil
}

func (f *fakeStore) TouchLastEnriched(_ context.Context, _ string, at time.Time) error {
	f.touched = at
	return nil
}

func TestApplyCreatesEnrichmentWhenNoneExists(t *testing.T) {
	store := &fakeStore{}
	u := New(store)
	now := time.Now()

	facts := []extractor.Fact{
		{Field: venue.FieldPriceRange, Value: "$$", SourceURL: "https://v.example/", FetchedAt: now},
	}
	e, err := u.Apply(context.Background(), "v1", facts, now)
	require.NoError(t, err)
	assert.Equal(t, "$$", e.PriceRange)
	assert.Equal(t, []string{"https://v.example/"}, e.Sources[venue.FieldPriceRange])
	assert.Equal(t, now, e.LastUpdated[venue.FieldPriceRange])
	assert.Equal(t, now, store.touched)
}

func TestApplyWritesAmenitiesAndAddressComponents(t *testing.T) {
	store := &fakeStore{}
	u := New(store)
	now := time.Now()

	facts := []extractor.Fact{
		{Field: venue.FieldAmenities, Value: []string{"Wheelchair accessible"}, SourceURL: "https://v.example/", FetchedAt: now},
		{Field: venue.FieldAddress, Value: map[string]string{"locality": "Springfield"}, SourceURL: "https://v.example/", FetchedAt: now},
	}
	e, err := u.Apply(context.Background(), "v1", facts, now)
	require.NoError(t, err)
	assert.Equal(t, []string{"Wheelchair accessible"}, e.Amenities)
	assert.Equal(t, "Springfield", e.AddressComponents["locality"])
}

func TestApplyDedupsSources(t *testing.T) {
	store := &fakeStore{}
	u := New(store)
	now := time.Now()

	facts := []extractor.Fact{
		{Field: venue.FieldFees, Value: "£5", SourceURL: "https://v.example/fees", FetchedAt: now},
		{Field: venue.FieldFees, Value: "£5", SourceURL: "https://v.example/fees", FetchedAt: now},
	}
	e, err := u.Apply(context.Background(), "v1", facts, now)
	require.NoError(t, err)
	assert.Len(t, e.Sources[venue.FieldFees], 1)
}

func TestApplyDoesNotClobberUntouchedFields(t *testing.T) {
	existing := venue.NewEnrichment("v1")
	existing.Description = "An old cafe by the river."
	existing.LastUpdated[venue.FieldDescription] = time.Now().Add(-time.Hour)

	store := &fakeStore{enrichment: existing}
	u := New(store)
	now := time.Now()

	facts := []extractor.Fact{
		{Field: venue.FieldPriceRange, Value: "$$", SourceURL: "https://v.example/", FetchedAt: now},
	}
	e, err := u.Apply(context.Background(), "v1", facts, now)
	require.NoError(t, err)
	assert.Equal(t, "An old cafe by the river.", e.Description)
	assert.Equal(t, "$$", e.PriceRange)
}

func TestApplyMarksNotApplicable(t *testing.T) {
	store := &fakeStore{}
	u := New(store)
	now := time.Now()

	facts := []extractor.Fact{
		{Field: venue.FieldFees, NotApplicable: true, SourceURL: "https://v.example/", FetchedAt: now},
	}
	e, err := u.Apply(context.Background(), "v1", facts, now)
	require.NoError(t, err)
	assert.True(t, e.NotApplicable[venue.FieldFees])
	assert.Empty(t, e.Fees)
}

func TestApplyMergesContactFieldsRatherThanOverwriting(t *testing.T) {
	existing := venue.NewEnrichment("v1")
	existing.Contact = venue.Contact{Phone: "020 1234 5678"}

	store := &fakeStore{enrichment: existing}
	u := New(store)
	now := time.Now()

	facts := []extractor.Fact{
		{Field: venue.FieldContact, Value: venue.Contact{Email: "hello@v.example"}, SourceURL: "https://v.example/contact", FetchedAt: now},
	}
	e, err := u.Apply(context.Background(), "v1", facts, now)
	require.NoError(t, err)
	assert.Equal(t, "020 1234 5678", e.Contact.Phone)
	assert.Equal(t, "hello@v.example", e.Contact.Email)
}
