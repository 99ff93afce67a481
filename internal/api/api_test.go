package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/venuescout/venuescout/internal/store"
	"github.com/venuescout/venuescout/internal/venue"
)

type fakeStore struct {
	nearby     []store.GeoResult
	enrichment map[string]*venue.Enrichment
	pingErr    error
}

func (f *fakeStore) NearbyVenues(_ context.Context, _, _, _ float64, _ int, _ string) ([]store.GeoResult, error) {
	return f.nearby, nil
}
func (f *fakeStore) GetEnrichment(_ context.Context, venueID string) (*venue.Enrichment, error) {
	return f.enrichment[venueID], nil
}
func (f *fakeStore) Ping(_ context.Context) error { return f.pingErr }

type fakeQueue struct {
	nextID   int64
	enqueued []string
	statuses map[int64]venue.CrawlJob
}

func (q *fakeQueue) Enqueue(_ context.Context, venueID string, _ venue.JobMode, _ int) (int64, error) {
	q.nextID++
	q.enqueued = append(q.enqueued, venueID)
	return q.nextID, nil
}
func (q *fakeQueue) Status(_ context.Context, jobID int64) (venue.CrawlJob, error) {
	job, ok := q.statuses[jobID]
	if !ok {
		return venue.CrawlJob{}, assertErr{}
	}
	return job, nil
}
func (q *fakeQueue) Depth(_ context.Context) (map[venue.JobState]int, error) {
	return map[venue.JobState]int{venue.JobPending: 3}, nil
}

type assertErr struct{}

func (assertErr) Error() string { return "not found" }

type fakeModel struct{ pingErr error }

func (m *fakeModel) Ping(_ context.Context) error { return m.pingErr }

func newTestServer(st Store, q Queue) *Server {
	return NewServer(st, q, nil, Config{Version: "test"}, zap.NewNop())
}

func TestQueryEnqueuesRealtimeJobForMissingEnrichment(t *testing.T) {
	st := &fakeStore{
		nearby: []store.GeoResult{{Venue: venue.Venue{ID: "v1", Name: "Cafe"}, DistanceM: 100}},
	}
	q := &fakeQueue{statuses: map[int64]venue.CrawlJob{}}
	s := newTestServer(st, q)

	body, _ := json.Marshal(queryRequest{Lat: 51.5, Lon: -0.1})
	req := httptest.NewRequest(http.MethodPost, "/query", bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var cards []resultCard
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cards))
	require.Len(t, cards, 1)
	assert.Equal(t, "v1", cards[0].VenueID)
	require.NotNil(t, cards[0].JobID)
	assert.ElementsMatch(t, []string{"v1"}, q.enqueued)
}

func TestQueryDoesNotEnqueueForFreshEnrichment(t *testing.T) {
	now := time.Now()
	e := venue.NewEnrichment("v1")
	for _, f := range venue.AllFields {
		e.LastUpdated[f] = now
	}
	st := &fakeStore{
		nearby:     []store.GeoResult{{Venue: venue.Venue{ID: "v1", Name: "Cafe"}, DistanceM: 100}},
		enrichment: map[string]*venue.Enrichment{"v1": e},
	}
	q := &fakeQueue{statuses: map[int64]venue.CrawlJob{}}
	s := newTestServer(st, q)

	body, _ := json.Marshal(queryRequest{Lat: 51.5, Lon: -0.1})
	req := httptest.NewRequest(http.MethodPost, "/query", bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var cards []resultCard
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cards))
	require.Len(t, cards, 1)
	assert.Nil(t, cards[0].JobID)
	assert.Empty(t, q.enqueued)
}

func TestQueryRejectsInvalidRadius(t *testing.T) {
	s := newTestServer(&fakeStore{}, &fakeQueue{})
	body, _ := json.Marshal(queryRequest{Lat: 51.5, Lon: -0.1, RadiusM: 200000})
	req := httptest.NewRequest(http.MethodPost, "/query", bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestQueryFallsBackToDistanceOrderingWhenEmbeddingsUnavailable(t *testing.T) {
	far := venue.Venue{ID: "far", Name: "Far Venue", Lat: 51.6, Lon: -0.2}
	near := venue.Venue{ID: "near", Name: "Near Venue", Lat: 51.5001, Lon: -0.1001}
	st := &fakeStore{
		// Deliberately returned in the "wrong" (far-first) order, as if the
		// backing query weren't distance-ordered.
		nearby: []store.GeoResult{
			{Venue: far, DistanceM: 9000},
			{Venue: near, DistanceM: 10},
		},
	}
	q := &fakeQueue{statuses: map[int64]venue.CrawlJob{}}
	s := NewServer(st, q, nil, Config{Version: "test"}, zap.NewNop())

	body, _ := json.Marshal(queryRequest{Lat: 51.5, Lon: -0.1})
	req := httptest.NewRequest(http.MethodPost, "/query", bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var cards []resultCard
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cards))
	require.Len(t, cards, 2)
	assert.Equal(t, "near", cards[0].VenueID)
	assert.Equal(t, "far", cards[1].VenueID)
}

func TestQueryKeepsStoreOrderWhenEmbeddingsAvailable(t *testing.T) {
	far := venue.Venue{ID: "far", Name: "Far Venue", Lat: 51.6, Lon: -0.2}
	near := venue.Venue{ID: "near", Name: "Near Venue", Lat: 51.5001, Lon: -0.1001}
	st := &fakeStore{
		nearby: []store.GeoResult{
			{Venue: far, DistanceM: 9000},
			{Venue: near, DistanceM: 10},
		},
	}
	q := &fakeQueue{statuses: map[int64]venue.CrawlJob{}}
	s := NewServer(st, q, &fakeModel{}, Config{Version: "test"}, zap.NewNop())

	body, _ := json.Marshal(queryRequest{Lat: 51.5, Lon: -0.1})
	req := httptest.NewRequest(http.MethodPost, "/query", bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var cards []resultCard
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cards))
	require.Len(t, cards, 2)
	assert.Equal(t, "far", cards[0].VenueID)
	assert.Equal(t, "near", cards[1].VenueID)
}

func TestScrapeEnqueuesEachVenue(t *testing.T) {
	q := &fakeQueue{statuses: map[int64]venue.CrawlJob{}}
	s := newTestServer(&fakeStore{}, q)

	body, _ := json.Marshal(scrapeRequest{VenueIDs: []string{"a", "b"}, Mode: venue.ModeBackground})
	req := httptest.NewRequest(http.MethodPost, "/scrape", bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusAccepted, w.Code)
	var resp scrapeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.JobIDs, 2)
}

func TestScrapeRejectsUnknownMode(t *testing.T) {
	s := newTestServer(&fakeStore{}, &fakeQueue{})
	body, _ := json.Marshal(map[string]any{"venue_ids": []string{"a"}, "mode": "urgent"})
	req := httptest.NewRequest(http.MethodPost, "/scrape", bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestScrapeStatusReturnsNotFoundForUnknownJob(t *testing.T) {
	s := newTestServer(&fakeStore{}, &fakeQueue{statuses: map[int64]venue.CrawlJob{}})
	req := httptest.NewRequest(http.MethodGet, "/scrape/999", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestScrapeStatusReturnsJobState(t *testing.T) {
	q := &fakeQueue{statuses: map[int64]venue.CrawlJob{
		42: {ID: 42, State: venue.JobSuccess},
	}}
	s := newTestServer(&fakeStore{}, q)
	req := httptest.NewRequest(http.MethodGet, "/scrape/42", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp jobStatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "success", resp.State)
}

func TestHealthReportsDBAndQueueDepth(t *testing.T) {
	s := newTestServer(&fakeStore{}, &fakeQueue{})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp healthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.OK)
	assert.Equal(t, 3, resp.QueueDepth["pending"])
}

func TestReadyReportsFalseWhenDBUnreachable(t *testing.T) {
	s := newTestServer(&fakeStore{pingErr: assertErr{}}, &fakeQueue{})
	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp readyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Ready)
	assert.False(t, resp.DB)
}

func TestAPIKeyMiddlewareRejectsMissingKey(t *testing.T) {
	s := NewServer(&fakeStore{}, &fakeQueue{}, nil, Config{APIKeyEnabled: true, APIKey: "secret"}, zap.NewNop())
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
