// Package worker implements the Worker Pool (C9): a fixed number of
// workers that claim batches of crawl jobs and drive each one through
// Orchestrator -> Extractor -> Unifier -> complete.
package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/venuescout/venuescout/internal/extractor"
	"github.com/venuescout/venuescout/internal/orchestrator"
	"github.com/venuescout/venuescout/internal/venue"
)

// Queue is the subset of the Job Queue a worker needs.
type Queue interface {
	Claim(ctx context.Context, batchSize, perHostCap int) ([]venue.CrawlJob, error)
	Complete(ctx context.Context, jobID int64, ok bool, reason venue.Reason) error
}

// Store supplies the venue and its historical pages for a claimed job.
type Store interface {
	GetVenue(ctx context.Context, id string) (venue.Venue, error)
	InsertPage(ctx context.Context, page venue.ScrapedPage) (venue.ScrapedPage, bool, error)
	PagesForVenue(ctx context.Context, venueID string, now time.Time) ([]venue.ScrapedPage, error)
}

// Unifier is the C8 dependency: applies extracted facts to enrichment.
type Unifier interface {
	Apply(ctx context.Context, venueID string, facts []extractor.Fact, now time.Time) (*venue.Enrichment, error)
}

// Orchestrator is the C6 dependency, narrowed to the one call a worker makes.
type Orchestrator interface {
	Run(ctx context.Context, v venue.Venue) orchestrator.Result
}

// Config controls Pool sizing, mirroring the WORKER_* environment options.
type Config struct {
	Count        int
	BatchSize    int
	PerHostCap   int
	SleepOnEmpty time.Duration
}

// Pool runs Config.Count goroutines, each looping claim -> process -> sleep.
type Pool struct {
	queue        Queue
	store        Store
	orchestrator Orchestrator
	unifier      Unifier
	cfg          Config
	log          *zap.Logger
}

// New builds a Pool.
func New(queue Queue, store Store, orch Orchestrator, unif Unifier, cfg Config, log *zap.Logger) *Pool {
	if cfg.PerHostCap <= 0 {
		cfg.PerHostCap = 2
	}
	if cfg.SleepOnEmpty <= 0 {
		cfg.SleepOnEmpty = time.Second
	}
	return &Pool{queue: queue, store: store, orchestrator: orch, unifier: unif, cfg: cfg, log: log}
}

// Run starts Config.Count worker goroutines and blocks until ctx is
// cancelled and every worker has returned. After cancellation a worker
// lets the job in progress return, completes the rest of its claimed batch
// as failed with reason shutdown, and claims no further batch.
func (p *Pool) Run(ctx context.Context) {
	done := make(chan struct{}, p.cfg.Count)
	for i := 0; i < p.cfg.Count; i++ {
		go func(id int) {
			p.loop(ctx, id)
			done <- struct{}{}
		}(i)
	}
	for i := 0; i < p.cfg.Count; i++ {
		<-done
	}
}

func (p *Pool) loop(ctx context.Context, id int) {
	log := p.log.With(zap.Int("worker_id", id))
	for {
		select {
		case <-ctx.Done():
			log.Info("worker shutting down")
			return
		default:
		}

		jobs, err := p.queue.Claim(ctx, p.cfg.BatchSize, p.cfg.PerHostCap)
		if err != nil {
			log.Error("claim failed", zap.Error(err))
			p.sleep(ctx, p.cfg.SleepOnEmpty)
			continue
		}
		if len(jobs) == 0 {
			p.sleep(ctx, p.cfg.SleepOnEmpty)
			continue
		}

		seenVenues := make(map[string]bool, len(jobs))
		for _, job := range jobs {
			if ctx.Err() != nil {
				p.completeJob(context.Background(), job, false, venue.ReasonShutdown)
				continue
			}
			if seenVenues[job.VenueID] {
				p.completeJob(ctx, job, true, "")
				continue
			}
			seenVenues[job.VenueID] = true
			p.processJob(ctx, job, log)
		}
	}
}

func (p *Pool) processJob(ctx context.Context, job venue.CrawlJob, log *zap.Logger) {
	v, err := p.store.GetVenue(ctx, job.VenueID)
	if err != nil {
		log.Error("load venue failed", zap.String("venue_id", job.VenueID), zap.Error(err))
		p.completeJob(ctx, job, false, venue.ReasonNon200Status)
		return
	}

	result := p.orchestrator.Run(ctx, v)
	now := time.Now()

	for i, page := range result.Pages {
		canonical, newlyInserted, err := p.store.InsertPage(ctx, page)
		if err != nil {
			log.Warn("persist page failed", zap.String("url", page.URL), zap.Error(err))
			continue
		}
		if !newlyInserted {
			log.Info("duplicate content, reusing existing page as source",
				zap.String("venue_id", job.VenueID), zap.String("url", canonical.URL),
				zap.String("reason", string(venue.ReasonDuplicateContent)))
			canonical.VenueID = page.VenueID
			result.Pages[i] = canonical
		}
	}

	if len(result.Pages) == 0 {
		p.completeJob(ctx, job, false, orDefault(result.Reason, venue.ReasonNoWebsite))
		return
	}

	historical, err := p.store.PagesForVenue(ctx, job.VenueID, now)
	if err != nil {
		log.Warn("load historical pages failed", zap.String("venue_id", job.VenueID), zap.Error(err))
		historical = result.Pages
	}

	facts := extractor.Extract(mergePages(historical, result.Pages))
	if _, err := p.unifier.Apply(ctx, job.VenueID, facts, now); err != nil {
		log.Error("unify failed", zap.String("venue_id", job.VenueID), zap.Error(err))
		p.completeJob(ctx, job, false, venue.ReasonNon200Status)
		return
	}

	p.completeJob(ctx, job, true, "")
}

func (p *Pool) completeJob(ctx context.Context, job venue.CrawlJob, ok bool, reason venue.Reason) {
	if err := p.queue.Complete(ctx, job.ID, ok, reason); err != nil {
		p.log.Error("complete job failed", zap.Int64("job_id", job.ID), zap.Error(err))
	}
}

func (p *Pool) sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

func orDefault(reason, fallback venue.Reason) venue.Reason {
	if reason == "" {
		return fallback
	}
	return reason
}

// mergePages combines this crawl's freshly fetched pages with historical
// pages still within their freshness window, deduplicated by URL with the
// fresh copy winning, so the extractor sees both without double-counting.
func mergePages(historical, fresh []venue.ScrapedPage) []venue.ScrapedPage {
	byURL := make(map[string]venue.ScrapedPage, len(historical)+len(fresh))
	for _, p := range historical {
		byURL[p.URL] = p
	}
	for _, p := range fresh {
		byURL[p.URL] = p
	}
	out := make([]venue.ScrapedPage, 0, len(byURL))
	for _, p := range byURL {
		out = append(out, p)
	}
	return out
}
