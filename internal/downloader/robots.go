package downloader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"
)

const robotsCacheTTL = 24 * time.Hour

type robotsEntry struct {
	data     *robotstxt.RobotsData
	fetchedAt time.Time
}

// RobotsCache fetches and caches robots.txt per host for the process
// lifetime, honoring a 24h TTL, per §4.3.
type RobotsCache struct {
	client    *http.Client
	userAgent string
	log       *zap.Logger

	mu    sync.Mutex
	cache map[string]robotsEntry
}

// NewRobotsCache builds a cache that fetches robots.txt with the given
// per-request timeout.
func NewRobotsCache(userAgent string, timeout time.Duration, log *zap.Logger) *RobotsCache {
	return &RobotsCache{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
		log:       log,
		cache:     make(map[string]robotsEntry),
	}
}

// Allowed reports whether rawURL may be fetched under this user agent's
// robots.txt group. A fetch failure fails open (allowed) since a
// transient robots.txt outage should not itself block the crawl.
func (r *RobotsCache) Allowed(ctx context.Context, rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	data, err := r.load(ctx, parsed)
	if err != nil {
		r.log.Warn("robots fetch failed; allowing", zap.String("host", parsed.Host), zap.Error(err))
		return true
	}
	group := data.FindGroup(r.userAgent)
	if group == nil {
		return true
	}
	return group.Test(parsed.Path)
}

func (r *RobotsCache) load(ctx context.Context, parsed *url.URL) (*robotstxt.RobotsData, error) {
	hostKey := strings.ToLower(parsed.Host)

	r.mu.Lock()
	entry, ok := r.cache[hostKey]
	r.mu.Unlock()
	if ok && time.Since(entry.fetchedAt) < robotsCacheTTL {
		return entry.data, nil
	}

	robotsURL := *parsed
	robotsURL.Path = path.Join("/", "robots.txt")
	robotsURL.RawQuery = ""
	robotsURL.Fragment = ""

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("new robots request: %w", err)
	}
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch robots: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read robots body: %w", err)
	}

	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		return nil, fmt.Errorf("parse robots: %w", err)
	}

	r.mu.Lock()
	r.cache[hostKey] = robotsEntry{data: data, fetchedAt: time.Now()}
	r.mu.Unlock()
	return data, nil
}
