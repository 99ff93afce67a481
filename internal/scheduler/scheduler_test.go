package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/venuescout/venuescout/internal/venue"
)

type fakeStore struct {
	staleIDs []string
	top      []venue.Venue
	venues   map[string]venue.Venue
}

func (f *fakeStore) StaleVenueIDs(_ context.Context, _, _, _ time.Duration, _ int) ([]string, error) {
	return f.staleIDs, nil
}
func (f *fakeStore) TopPopularityVenues(_ context.Context, _ float64, _ int) ([]venue.Venue, error) {
	return f.top, nil
}
func (f *fakeStore) GetVenue(_ context.Context, id string) (venue.Venue, error) {
	return f.venues[id], nil
}

type fakeQueue struct {
	enqueued []string
	priorities []int
}

func (q *fakeQueue) Enqueue(_ context.Context, venueID string, _ venue.JobMode, priority int) (int64, error) {
	q.enqueued = append(q.enqueued, venueID)
	q.priorities = append(q.priorities, priority)
	return 1, nil
}

func popularity(p float64) *float64 { return &p }

func TestRunOnceEnqueuesStaleAndTopVenues(t *testing.T) {
	store := &fakeStore{
		staleIDs: []string{"v1"},
		top:      []venue.Venue{{ID: "v2", PopularityConf: popularity(0.95)}},
		venues:   map[string]venue.Venue{"v1": {ID: "v1", PopularityConf: popularity(0.1)}},
	}
	queue := &fakeQueue{}
	s := New(store, queue, Config{BatchSize: 50, TopPercentile: 0.9}, zap.NewNop())

	s.RunOnce(context.Background())

	assert.ElementsMatch(t, []string{"v1", "v2"}, queue.enqueued)
}

func TestRunOnceDedupsVenueAppearingInBothSets(t *testing.T) {
	v := venue.Venue{ID: "v1", PopularityConf: popularity(0.5)}
	store := &fakeStore{
		staleIDs: []string{"v1"},
		top:      []venue.Venue{v},
		venues:   map[string]venue.Venue{"v1": v},
	}
	queue := &fakeQueue{}
	s := New(store, queue, Config{BatchSize: 50}, zap.NewNop())

	s.RunOnce(context.Background())

	assert.Len(t, queue.enqueued, 1)
}

func TestApplyQuotasCapsPerCategory(t *testing.T) {
	s := New(&fakeStore{}, &fakeQueue{}, Config{PerCategoryQuota: 1}, zap.NewNop())
	candidates := []candidate{
		{Venue: venue.Venue{ID: "a", CategoryName: "cafe"}},
		{Venue: venue.Venue{ID: "b", CategoryName: "cafe"}},
		{Venue: venue.Venue{ID: "c", CategoryName: "museum"}},
	}
	admitted := s.applyQuotas(candidates)
	require.Len(t, admitted, 2)
	assert.Equal(t, "a", admitted[0].Venue.ID)
	assert.Equal(t, "c", admitted[1].Venue.ID)
}

func TestPriorityForPopularityNullSortsLowest(t *testing.T) {
	assert.Equal(t, 1, priorityForPopularity(nil))
	assert.Less(t, priorityForPopularity(nil), priorityForPopularity(popularity(0.01)))
	assert.Less(t, priorityForPopularity(popularity(0.5)), venue.PriorityFloor)
	assert.Less(t, priorityForPopularity(popularity(1.0)), venue.PriorityFloor)
}
