// Package orchestrator implements the Crawler Orchestrator (C6): given a
// venue, it recovers a missing website when needed, fetches the homepage,
// runs the Link Finder over it, fetches up to three target pages in
// parallel, and returns every page fetched within the fixed wall-clock
// crawl budget in §4.5.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/venuescout/venuescout/internal/downloader"
	"github.com/venuescout/venuescout/internal/linkfinder"
	"github.com/venuescout/venuescout/internal/ratelimit"
	"github.com/venuescout/venuescout/internal/recovery"
	"github.com/venuescout/venuescout/internal/venue"
)

const (
	// recoveryBudget is the sub-budget carved out of the crawl budget for
	// website recovery when a venue has no known URL, per §4.5.
	recoveryBudget = 500 * time.Millisecond
	maxParallelTargets = 3
)

// Store is the narrow persistence surface the orchestrator needs.
type Store interface {
	InsertRecoveryCandidates(ctx context.Context, candidates []venue.RecoveryCandidate) error
	MarkRecoveryChosen(ctx context.Context, venueID, url string) error
	SetVenueWebsite(ctx context.Context, id, website string) error
}

// Result is everything one orchestrated crawl produced.
type Result struct {
	Pages         []venue.ScrapedPage
	StartedAt     time.Time
	EndedAt       time.Time
	FetchedCount  int
	AbortedCount  int
	RecoveredURL  string
	Aborted       bool
	Reason        venue.Reason
}

// Orchestrator runs one venue's crawl end to end.
type Orchestrator struct {
	downloader *downloader.Downloader
	gate       *ratelimit.Gate
	recoverer  *recovery.Recoverer
	store      Store
	budget     time.Duration
	log        *zap.Logger
}

// New builds an Orchestrator. budget is the total wall-clock allowance for
// one venue's crawl (§4.5, default 5000ms from configuration).
func New(dl *downloader.Downloader, gate *ratelimit.Gate, rec *recovery.Recoverer, store Store, budget time.Duration, log *zap.Logger) *Orchestrator {
	return &Orchestrator{downloader: dl, gate: gate, recoverer: rec, store: store, budget: budget, log: log}
}

// Run crawls v: recovering a website if v.Website is empty, fetching the
// homepage, discovering target links, and fetching up to three of them
// concurrently, all within the orchestrator's fixed budget. Partial results
// are returned rather than discarded: a venue that only yields a homepage
// before the budget expires still produces a Result with FetchedCount 1.
func (o *Orchestrator) Run(ctx context.Context, v venue.Venue) Result {
	started := time.Now()
	deadline := started.Add(o.budget)
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	result := Result{StartedAt: started}

	website := v.Website
	if website == "" {
		recovered, ok := o.recoverWebsite(ctx, v)
		if !ok {
			result.EndedAt = time.Now()
			result.Aborted = true
			result.Reason = venue.ReasonNoWebsite
			return result
		}
		website = recovered
		result.RecoveredURL = recovered
	}

	homepage, ferr := o.fetchOne(ctx, v.ID, website, venue.PageHomepage, venue.DiscoveryDirectURL)
	if ferr != nil {
		result.EndedAt = time.Now()
		result.AbortedCount++
		result.Aborted = !ferr.Reason.Transient() || ctx.Err() != nil
		result.Reason = ferr.Reason
		return result
	}
	result.Pages = append(result.Pages, *homepage)
	result.FetchedCount++

	doc, err := downloader.ParseDocument(homepage.RawHTML)
	if err != nil {
		result.EndedAt = time.Now()
		return result
	}

	candidates := linkfinder.Discover(homepage.URL, doc, downloader.SameRegisteredDomain)
	if len(candidates) > maxParallelTargets {
		candidates = candidates[:maxParallelTargets]
	}

	targetPages, aborted := o.fetchTargets(ctx, v.ID, candidates)
	result.Pages = append(result.Pages, targetPages...)
	result.FetchedCount += len(targetPages)
	result.AbortedCount += aborted
	result.EndedAt = time.Now()
	result.Aborted = result.EndedAt.After(deadline) && result.FetchedCount == 1
	return result
}

func (o *Orchestrator) recoverWebsite(ctx context.Context, v venue.Venue) (string, bool) {
	recCtx, cancel := context.WithTimeout(ctx, recoveryBudget)
	defer cancel()

	candidates := o.recoverer.Candidates(recCtx, v)
	if err := o.store.InsertRecoveryCandidates(ctx, candidates); err != nil {
		o.log.Warn("persist recovery candidates failed", zap.String("venue_id", v.ID), zap.Error(err))
	}

	best, ok := recovery.BestCandidate(candidates)
	if !ok {
		return "", false
	}
	if err := o.store.MarkRecoveryChosen(ctx, v.ID, best.URL); err != nil {
		o.log.Warn("mark recovery chosen failed", zap.String("venue_id", v.ID), zap.Error(err))
	}
	if err := o.store.SetVenueWebsite(ctx, v.ID, best.URL); err != nil {
		o.log.Warn("set venue website failed", zap.String("venue_id", v.ID), zap.Error(err))
	}
	return best.URL, true
}

func (o *Orchestrator) fetchTargets(ctx context.Context, venueID string, candidates []linkfinder.Candidate) ([]venue.ScrapedPage, int) {
	var (
		mu      sync.Mutex
		pages   []venue.ScrapedPage
		aborted int
		wg      sync.WaitGroup
	)

	for _, c := range candidates {
		c := c
		wg.Add(1)
		go func() {
			defer wg.Done()
			page, ferr := o.fetchOne(ctx, venueID, c.URL, c.Type, venue.DiscoveryHeuristic)
			mu.Lock()
			defer mu.Unlock()
			if ferr != nil {
				aborted++
				return
			}
			pages = append(pages, *page)
		}()
	}
	wg.Wait()
	return pages, aborted
}

func (o *Orchestrator) fetchOne(ctx context.Context, venueID, rawURL string, pageType venue.PageType, discovery venue.DiscoveryMethod) (*venue.ScrapedPage, *downloader.FetchError) {
	host, err := ratelimit.Host(rawURL)
	if err != nil {
		return nil, &downloader.FetchError{Reason: venue.ReasonNon200Status, Err: err}
	}
	release, err := o.gate.Acquire(ctx, host)
	if err != nil {
		return nil, &downloader.FetchError{Reason: venue.ReasonTimeBudgetExceeded, Err: err}
	}
	defer release()

	fetch, ferr := o.downloader.Fetch(ctx, rawURL, o.gate.Backoff)
	if ferr != nil {
		if ferr.Reason == venue.ReasonHTTP429 || ferr.Reason == venue.ReasonHTTP5xx {
			o.gate.Penalize(host)
		}
		return nil, ferr
	}
	o.gate.Reset(host)

	now := time.Now()
	validUntil := now.Add(pageType.FreshnessWindow())
	page := venue.ScrapedPage{
		VenueID:       venueID,
		URL:           fetch.FinalURL,
		PageType:      pageType,
		FetchedAt:     now,
		ValidUntil:    &validUntil,
		HTTPStatus:    fetch.Status,
		ContentType:   fetch.ContentType,
		ContentHash:   downloader.ContentHash(fetch.CleanedText),
		CleanedText:   fetch.CleanedText,
		Discovery:     discovery,
		RedirectChain: fetch.RedirectChain,
		SizeBytes:     fetch.BodyBytes,
		TotalMs:       fetch.TotalMs,
		FirstByteMs:   fetch.FirstByteMs,
		RawHTML:       fetch.RawHTML,
	}
	return &page, nil
}
