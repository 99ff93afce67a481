// Package scheduler implements the Scheduler (C10): a periodic loop that
// enqueues background crawl jobs for stale venues and for the
// top-popularity tier, applying per-area/per-category quotas so one
// locale or category cannot monopolize a cycle.
package scheduler

import (
	"context"
	"math"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/venuescout/venuescout/internal/venue"
)

// Store is the subset of persistence the scheduler reads from directly
// (job enqueue goes through Queue so priority/dedup policy stays in C2).
type Store interface {
	StaleVenueIDs(ctx context.Context, hoursWindow, menuContactPriceWindow, descFeaturesWindow time.Duration, limit int) ([]string, error)
	TopPopularityVenues(ctx context.Context, percentile float64, limit int) ([]venue.Venue, error)
	GetVenue(ctx context.Context, id string) (venue.Venue, error)
}

// Queue is the subset of the Job Queue the scheduler enqueues through.
type Queue interface {
	Enqueue(ctx context.Context, venueID string, mode venue.JobMode, priority int) (int64, error)
}

// Config controls cycle sizing, mirroring the SCHEDULER_* environment
// options.
type Config struct {
	IntervalSeconds int
	BatchSize       int
	TopPercentile   float64
	HoursWindow     time.Duration
	MenuContactPriceWindow time.Duration
	DescFeaturesWindow     time.Duration

	// PerCategoryQuota caps how many of one cycle's enqueues may share a
	// category, and PerAreaQuota caps a coarse lat/lon grid cell, per
	// §4.8 rule 5. Zero disables the corresponding quota.
	PerCategoryQuota int
	PerAreaQuota     int
}

// Scheduler runs the periodic background-enqueue cycle.
type Scheduler struct {
	store Store
	queue Queue
	cfg   Config
	log   *zap.Logger
	cron  *cron.Cron
}

// New builds a Scheduler.
func New(store Store, queue Queue, cfg Config, log *zap.Logger) *Scheduler {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.TopPercentile <= 0 {
		cfg.TopPercentile = 0.9
	}
	return &Scheduler{store: store, queue: queue, cfg: cfg, log: log}
}

// Run installs a cron entry firing every IntervalSeconds and blocks until
// ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	interval := 300 * time.Second
	if s.cfg.IntervalSeconds > 0 {
		interval = time.Duration(s.cfg.IntervalSeconds) * time.Second
	}
	spec := "@every " + interval.String()

	c := cron.New()
	s.cron = c
	if _, err := c.AddFunc(spec, func() { s.RunOnce(ctx) }); err != nil {
		return err
	}
	c.Start()
	defer c.Stop()

	<-ctx.Done()
	return nil
}

// RunOnce executes a single cycle: it is exported so tests can trigger a
// cycle without waiting for the cron tick. Run does not call it at startup;
// the first cycle runs at the first tick.
func (s *Scheduler) RunOnce(ctx context.Context) {
	staleIDs, err := s.store.StaleVenueIDs(ctx, s.cfg.HoursWindow, s.cfg.MenuContactPriceWindow, s.cfg.DescFeaturesWindow, s.cfg.BatchSize)
	if err != nil {
		s.log.Error("stale venue scan failed", zap.Error(err))
		staleIDs = nil
	}

	top, err := s.store.TopPopularityVenues(ctx, s.cfg.TopPercentile, s.cfg.BatchSize)
	if err != nil {
		s.log.Error("top popularity scan failed", zap.Error(err))
		top = nil
	}

	candidates := s.collectCandidates(ctx, staleIDs, top)
	admitted := s.applyQuotas(candidates)

	for _, c := range admitted {
		priority := priorityForPopularity(c.Venue.PopularityConf)
		if _, err := s.queue.Enqueue(ctx, c.Venue.ID, venue.ModeBackground, priority); err != nil {
			s.log.Warn("background enqueue failed", zap.String("venue_id", c.Venue.ID), zap.Error(err))
		}
	}
	s.log.Info("scheduler cycle complete",
		zap.Int("stale_candidates", len(staleIDs)),
		zap.Int("top_candidates", len(top)),
		zap.Int("admitted", len(admitted)))
}

type candidate struct {
	Venue venue.Venue
}

func (s *Scheduler) collectCandidates(ctx context.Context, staleIDs []string, top []venue.Venue) []candidate {
	seen := make(map[string]bool, len(staleIDs)+len(top))
	var out []candidate
	for _, id := range staleIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		v, err := s.store.GetVenue(ctx, id)
		if err != nil {
			continue
		}
		out = append(out, candidate{Venue: v})
	}
	for _, v := range top {
		if seen[v.ID] {
			continue
		}
		seen[v.ID] = true
		out = append(out, candidate{Venue: v})
	}
	return out
}

// applyQuotas enforces per-category and per-area caps, admitting
// candidates in input order and dropping the remainder once a quota is
// exhausted, per §4.8 rule 5.
func (s *Scheduler) applyQuotas(candidates []candidate) []candidate {
	categoryCount := map[string]int{}
	areaCount := map[string]int{}
	var admitted []candidate

	for _, c := range candidates {
		if s.cfg.PerCategoryQuota > 0 && categoryCount[c.Venue.CategoryName] >= s.cfg.PerCategoryQuota {
			continue
		}
		area := areaCell(c.Venue.Lat, c.Venue.Lon)
		if s.cfg.PerAreaQuota > 0 && areaCount[area] >= s.cfg.PerAreaQuota {
			continue
		}
		categoryCount[c.Venue.CategoryName]++
		areaCount[area]++
		admitted = append(admitted, c)
	}
	return admitted
}

// areaCell buckets coordinates into a coarse ~1km grid cell for quota
// purposes; it need not be precise, only stable.
func areaCell(lat, lon float64) string {
	return strconv.FormatFloat(math.Round(lat*100)/100, 'f', 2, 64) + "," +
		strconv.FormatFloat(math.Round(lon*100)/100, 'f', 2, 64)
}

// priorityForPopularity derives a background priority tier from
// popularity_confidence: higher popularity yields a higher priority,
// capped strictly below venue.PriorityFloor so background work never
// outranks realtime jobs, per §4.8 rule 4 and the null-sorts-lowest
// resolution for missing popularity.
func priorityForPopularity(popularity *float64) int {
	const ceiling = venue.PriorityFloor - 1
	if popularity == nil {
		return 1
	}
	tier := int(*popularity * float64(ceiling))
	if tier < 1 {
		tier = 1
	}
	if tier > ceiling {
		tier = ceiling
	}
	return tier
}
