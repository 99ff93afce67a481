package downloader

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/venuescout/venuescout/internal/venue"
)

func TestClassifyQuality(t *testing.T) {
	longText := ""
	for i := 0; i < 50; i++ {
		longText += "word "
	}

	cases := []struct {
		name        string
		status      int
		contentType string
		text        string
		want        venue.Reason
	}{
		{"ok", 200, "text/html; charset=utf-8", longText, ""},
		{"not found", 404, "text/html", longText, venue.ReasonNon200Status},
		{"rate limited", 429, "text/html", longText, venue.ReasonHTTP429},
		{"server error", 503, "text/html", longText, venue.ReasonHTTP5xx},
		{"bad mime", 200, "application/pdf", longText, venue.ReasonInvalidMIME},
		{"thin content", 200, "text/html", "hi", venue.ReasonThinContent},
		{"placeholder", 200, "text/html", "This site is coming soon, check back later please and thanks so much", venue.ReasonThinContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ClassifyQuality(tc.status, tc.contentType, tc.text))
		})
	}
}

func TestCleanVisibleTextStripsScriptsAndCollapsesWhitespace(t *testing.T) {
	html := `<html><body><script>evil()</script>  <h1>Hello</h1>
	<p>World   there</p></body></html>`
	text, err := CleanVisibleText(html)
	require.NoError(t, err)
	assert.NotContains(t, text, "evil()")
	assert.Contains(t, text, "Hello World there")
}

func TestSameRegisteredDomain(t *testing.T) {
	assert.True(t, SameRegisteredDomain("https://www.example.com/a", "https://shop.example.com/b"))
	assert.False(t, SameRegisteredDomain("https://example.com", "https://example.org"))
}

func TestContentHashStable(t *testing.T) {
	assert.Equal(t, ContentHash("hello world"), ContentHash("hello world"))
	assert.NotEqual(t, ContentHash("hello world"), ContentHash("goodbye world"))
}

func TestFetchSuccessAppliesQualityInputs(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body><p>` + repeatWord(60) + `</p></body></html>`))
	}))
	defer ts.Close()

	robots := NewRobotsCache("venuescout-bot/1.0", 1, zap.NewNop())
	// The robots cache's 1ns timeout makes its robots.txt fetch fail; Allowed fails open.
	d := New("venuescout-bot/1.0", 2_000_000, robots, zap.NewNop())

	fetch, ferr := d.Fetch(context.Background(), ts.URL, nil)
	require.Nil(t, ferr)
	require.NotNil(t, fetch)
	assert.Equal(t, 200, fetch.Status)
	assert.NotEmpty(t, fetch.CleanedText)
}

func TestFetchRejectsThinContentAsUnsuccessful(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body><p>coming soon, check back later</p></body></html>`))
	}))
	defer ts.Close()

	robots := NewRobotsCache("venuescout-bot/1.0", 1, zap.NewNop())
	d := New("venuescout-bot/1.0", 2_000_000, robots, zap.NewNop())

	fetch, ferr := d.Fetch(context.Background(), ts.URL, nil)
	require.Nil(t, fetch)
	require.NotNil(t, ferr)
	assert.Equal(t, venue.ReasonThinContent, ferr.Reason)
}

func TestFetchRetriesTransientFailuresThroughBackoffHook(t *testing.T) {
	var requests int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&requests, 1)
		if n <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body><p>` + repeatWord(60) + `</p></body></html>`))
	}))
	defer ts.Close()

	robots := NewRobotsCache("venuescout-bot/1.0", 1, zap.NewNop())
	d := New("venuescout-bot/1.0", 2_000_000, robots, zap.NewNop())

	var backoffCalls []string
	backoff := func(_ context.Context, host string) error {
		backoffCalls = append(backoffCalls, host)
		return nil
	}

	fetch, ferr := d.Fetch(context.Background(), ts.URL, backoff)
	require.Nil(t, ferr)
	require.NotNil(t, fetch)
	assert.Equal(t, int32(3), atomic.LoadInt32(&requests))
	assert.Len(t, backoffCalls, 2)
}

func TestFetchStopsRetryingAfterMaxRetriesExhausted(t *testing.T) {
	var requests int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	robots := NewRobotsCache("venuescout-bot/1.0", 1, zap.NewNop())
	d := New("venuescout-bot/1.0", 2_000_000, robots, zap.NewNop())

	var backoffCalls int
	backoff := func(_ context.Context, _ string) error {
		backoffCalls++
		return nil
	}

	fetch, ferr := d.Fetch(context.Background(), ts.URL, backoff)
	require.Nil(t, fetch)
	require.NotNil(t, ferr)
	assert.Equal(t, venue.ReasonHTTP5xx, ferr.Reason)
	assert.Equal(t, int32(maxRetries+1), atomic.LoadInt32(&requests))
	assert.Equal(t, maxRetries, backoffCalls)
}

func repeatWord(n int) string {
	s := ""
	for i := 0; i < n; i++ {
		s += "word "
	}
	return s
}
