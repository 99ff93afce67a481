// Package ratelimit implements the Rate Gate (C3): a process-local
// admission control point enforcing a global concurrency cap and a
// per-host concurrency cap across every outbound fetch, with exponential
// jittered backoff applied to hosts that return 429/5xx.
package ratelimit

import (
	"context"
	"crypto/rand"
	"fmt"
	"math"
	"math/big"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/venuescout/venuescout/internal/downloader"
	"github.com/venuescout/venuescout/internal/metrics"
)

const (
	backoffBase   = 500 * time.Millisecond
	backoffFactor = 2.0
	backoffCap    = 30 * time.Second
	backoffJitter = 0.25
)

// Release must be invoked on every code path that follows a successful
// Acquire, whether the fetch succeeded or failed.
type Release func()

// Gate enforces global_concurrency and per_host_concurrency caps and
// tracks per-host backoff windows opened by 429/5xx responses.
type Gate struct {
	global chan struct{}

	mu       sync.Mutex
	perHost  map[string]chan struct{}
	hostCap  int
	backoff  map[string]time.Time
	attempts map[string]int
}

// New builds a Gate with the given global and per-host concurrency caps.
func New(globalConcurrency, perHostConcurrency int) *Gate {
	return &Gate{
		global:   make(chan struct{}, globalConcurrency),
		perHost:  make(map[string]chan struct{}),
		hostCap:  perHostConcurrency,
		backoff:  make(map[string]time.Time),
		attempts: make(map[string]int),
	}
}

// Host returns the registered-domain bucket key for rawURL, the same
// eTLD+1 approximation the Link Finder's same-host rule uses, so
// concurrent fetches to different subdomains of one registered domain
// share a single per-host bucket per §4.2. An IP literal maps to itself.
func Host(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url for rate gate host: %w", err)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", fmt.Errorf("no host in url %q", rawURL)
	}
	return downloader.RegistrableDomain(host), nil
}

func (g *Gate) hostSlot(host string) chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	ch, ok := g.perHost[host]
	if !ok {
		ch = make(chan struct{}, g.hostCap)
		g.perHost[host] = ch
	}
	return ch
}

// Acquire blocks until a global slot and a per-host slot for host are both
// available, and until any active backoff window for host has elapsed. It
// returns a Release to invoke on every exit path, or an error if ctx is
// done first.
func (g *Gate) Acquire(ctx context.Context, host string) (Release, error) {
	start := time.Now()
	if wait := g.backoffRemaining(host); wait > 0 {
		if err := g.sleep(ctx, wait); err != nil {
			return nil, err
		}
	}

	select {
	case g.global <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	slot := g.hostSlot(host)
	select {
	case slot <- struct{}{}:
	case <-ctx.Done():
		<-g.global
		return nil, ctx.Err()
	}

	metrics.ObserveRateLimitWait(host, time.Since(start))

	var once sync.Once
	release := func() {
		once.Do(func() {
			<-slot
			<-g.global
		})
	}
	return release, nil
}

func (g *Gate) sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *Gate) backoffRemaining(host string) time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	until, ok := g.backoff[host]
	if !ok {
		return 0
	}
	remaining := time.Until(until)
	if remaining <= 0 {
		delete(g.backoff, host)
		return 0
	}
	return remaining
}

// Penalize opens a backoff window for host after a 429/5xx response,
// growing exponentially with each consecutive penalty until Reset is
// called (a successful fetch clears it).
func (g *Gate) Penalize(host string) time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	attempt := g.attempts[host]
	g.attempts[host] = attempt + 1
	delay := jitteredBackoff(attempt)
	g.backoff[host] = time.Now().Add(delay)
	return delay
}

// Backoff opens a backoff window for host, as Penalize does, and blocks
// until it elapses or ctx is done. It is the hook the Downloader's own
// retry loop calls between attempts, so a 429/5xx or network failure pays
// its penalty before Fetch's next attempt rather than only before some
// later, unrelated Acquire call.
func (g *Gate) Backoff(ctx context.Context, host string) error {
	delay := g.Penalize(host)
	return g.sleep(ctx, delay)
}

// Reset clears host's backoff state after a successful fetch.
func (g *Gate) Reset(host string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.attempts, host)
	delete(g.backoff, host)
}

func jitteredBackoff(attempt int) time.Duration {
	delay := float64(backoffBase) * math.Pow(backoffFactor, float64(attempt))
	if delay > float64(backoffCap) {
		delay = float64(backoffCap)
	}
	jitterRange := delay * backoffJitter
	jitter := randFloat(jitterRange*2) - jitterRange
	result := delay + jitter
	if result < 0 {
		result = 0
	}
	return time.Duration(result)
}

func randFloat(limit float64) float64 {
	if limit <= 0 {
		return 0
	}
	bound := big.NewInt(int64(limit * 1000))
	n, err := rand.Int(rand.Reader, bound)
	if err != nil {
		return limit / 2
	}
	return float64(n.Int64()) / 1000
}
