package orchestrator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/venuescout/venuescout/internal/downloader"
	"github.com/venuescout/venuescout/internal/metrics"
	"github.com/venuescout/venuescout/internal/ratelimit"
	"github.com/venuescout/venuescout/internal/recovery"
	"github.com/venuescout/venuescout/internal/venue"
)

func init() {
	metrics.Init()
}

type fakeStore struct {
	websiteSet string
	chosenURL  string
}

func (f *fakeStore) InsertRecoveryCandidates(_ context.Context, _ []venue.RecoveryCandidate) error {
	return nil
}
func (f *fakeStore) MarkRecoveryChosen(_ context.Context, _, url string) error {
	f.chosenURL = url
	return nil
}
func (f *fakeStore) SetVenueWebsite(_ context.Context, _, website string) error {
	f.websiteSet = website
	return nil
}

func longText(words int) string {
	s := ""
	for i := 0; i < words; i++ {
		s += "venue "
	}
	return s
}

func TestRunFetchesHomepageAndTargets(t *testing.T) {
	body := `<html><body><p>` + longText(60) + `</p>
	<nav><a href="/hours">Opening Hours</a></nav>
	</body></html>`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		switch r.URL.Path {
		case "/":
			w.Write([]byte(body))
		case "/hours":
			w.Write([]byte(`<html><body><p>` + longText(50) + `</p></body></html>`))
		case "/robots.txt":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	log := zap.NewNop()
	robots := downloader.NewRobotsCache("venuescout-test", time.Second, log)
	dl := downloader.New("venuescout-test", 2_000_000, robots, log)
	gate := ratelimit.New(4, 2)
	rec := recovery.New(nil)
	store := &fakeStore{}

	orch := New(dl, gate, rec, store, 5*time.Second, log)
	v := venue.Venue{ID: "v1", Website: srv.URL}

	result := orch.Run(context.Background(), v)
	require.GreaterOrEqual(t, result.FetchedCount, 1)
	assert.False(t, result.Aborted)
	assert.Equal(t, venue.PageHomepage, result.Pages[0].PageType)
}

func TestRunAbortsWithNoWebsiteWhenRecoveryFails(t *testing.T) {
	log := zap.NewNop()
	robots := downloader.NewRobotsCache("venuescout-test", time.Second, log)
	dl := downloader.New("venuescout-test", 2_000_000, robots, log)
	gate := ratelimit.New(4, 2)
	rec := recovery.New(nil)
	store := &fakeStore{}

	orch := New(dl, gate, rec, store, 5*time.Second, log)
	v := venue.Venue{ID: "v1"}

	result := orch.Run(context.Background(), v)
	assert.True(t, result.Aborted)
	assert.Equal(t, venue.ReasonNoWebsite, result.Reason)
	assert.Zero(t, result.FetchedCount)
}
