package recovery

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/venuescout/venuescout/internal/venue"
)

type stubSearcher struct {
	url        string
	confidence float64
	ok         bool
}

func (s stubSearcher) Search(_ context.Context, _ string) (string, float64, bool) {
	return s.url, s.confidence, s.ok
}

func TestCandidatesEmailDomain(t *testing.T) {
	r := New(nil)
	v := venue.Venue{ID: "v1", Name: "The Anchor Inn", ImportedEmail: "bookings@theanchorinn.co.uk"}

	candidates := r.Candidates(context.Background(), v)
	require.Len(t, candidates, 1)
	assert.Equal(t, venue.RecoveryEmailDomain, candidates[0].Method)
	assert.Equal(t, "https://theanchorinn.co.uk", candidates[0].URL)
}

func TestCandidatesPrefersHighestConfidence(t *testing.T) {
	r := New(stubSearcher{url: "https://search-result.example", confidence: 0.3, ok: true})
	v := venue.Venue{
		ID:             "v1",
		ImportedEmail:  "hello@venue.example",
		ImportedSocial: "facebook.com/venue",
	}

	candidates := r.Candidates(context.Background(), v)
	require.Len(t, candidates, 3)

	best, ok := BestCandidate(candidates)
	require.True(t, ok)
	assert.Equal(t, venue.RecoveryEmailDomain, best.Method)
}

func TestBestCandidateEmptyWhenNoneProposed(t *testing.T) {
	_, ok := BestCandidate(nil)
	assert.False(t, ok)
}

func TestCandidatesSkipsSearchWhenSearcherNil(t *testing.T) {
	r := New(nil)
	v := venue.Venue{ID: "v1"}
	assert.Empty(t, r.Candidates(context.Background(), v))
}
