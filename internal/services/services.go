// Package services wires every pipeline component into a single dependency
// container, built once at process startup and handed to whichever role
// (API server, worker pool, scheduler, embedding producer) a given binary
// runs. No component reaches for a global; everything is constructor-
// injected from here.
package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/venuescout/venuescout/internal/api"
	"github.com/venuescout/venuescout/internal/config"
	"github.com/venuescout/venuescout/internal/downloader"
	"github.com/venuescout/venuescout/internal/embedding"
	"github.com/venuescout/venuescout/internal/metrics"
	"github.com/venuescout/venuescout/internal/orchestrator"
	"github.com/venuescout/venuescout/internal/queue"
	"github.com/venuescout/venuescout/internal/ratelimit"
	"github.com/venuescout/venuescout/internal/recovery"
	"github.com/venuescout/venuescout/internal/scheduler"
	"github.com/venuescout/venuescout/internal/store"
	"github.com/venuescout/venuescout/internal/unifier"
	"github.com/venuescout/venuescout/internal/worker"
)

const userAgent = "venuescout-crawler/1.0"

// Services holds every constructed component. Fields are populated by New
// and are safe to share across goroutines.
type Services struct {
	Config config.Config
	Log    *zap.Logger

	Store *store.PostgresStore
	Queue *queue.Queue
	Gate  *ratelimit.Gate

	Orchestrator *orchestrator.Orchestrator
	Unifier      *unifier.Unifier
	WorkerPool   *worker.Pool
	Scheduler    *scheduler.Scheduler
	Embedder     *embedding.Producer

	API *api.Server
}

// New builds every component wired against the given config and logger. It
// opens a database connection and (best-effort) an embedding client; a
// failure to reach Ollama is logged, not fatal, since embeddings are an
// optional dependency of the query path.
func New(ctx context.Context, cfg config.Config, log *zap.Logger) (*Services, error) {
	metrics.Init()

	st, err := store.Open(ctx, cfg.DatabaseURL, log)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	q := queue.New(st)
	gate := ratelimit.New(cfg.CrawlGlobalConcurrency, cfg.CrawlPerHostConcurrency)
	robots := downloader.NewRobotsCache(userAgent, cfg.CrawlBudget(), log)
	dl := downloader.New(userAgent, int64(cfg.CrawlPageSizeLimitBytes), robots, log)
	rec := recovery.New(nil)
	orch := orchestrator.New(dl, gate, rec, st, cfg.CrawlBudget(), log)
	unif := unifier.New(st)

	pool := worker.New(q, st, orch, unif, worker.Config{
		Count:        cfg.WorkerCount,
		BatchSize:    cfg.WorkerBatchSize,
		SleepOnEmpty: time.Duration(cfg.WorkerSleepSeconds) * time.Second,
	}, log)

	hoursWindow, menuWindow, descWindow := cfg.FreshnessWindows()
	sched := scheduler.New(st, q, scheduler.Config{
		IntervalSeconds:        cfg.SchedulerSleepSeconds,
		BatchSize:              cfg.SchedulerBatchSize,
		TopPercentile:          cfg.SchedulerTopPercentile,
		HoursWindow:            hoursWindow,
		MenuContactPriceWindow: menuWindow,
		DescFeaturesWindow:     descWindow,
	}, log)

	embedder, err := embedding.New(cfg.EmbeddingModel, cfg.EmbeddingOllamaAddr, st, log)
	if err != nil {
		log.Warn("embedding client unavailable, query path will fall back to geo ranking", zap.Error(err))
		embedder = nil
	}

	var modelProber api.ModelProber
	if embedder != nil {
		modelProber = embedder
	}

	apiServer := api.NewServer(st, q, modelProber, api.Config{
		DefaultRadiusM: float64(cfg.QueryDefaultRadiusM),
		MaxResults:     cfg.QueryMaxResults,
		APIKeyEnabled:  cfg.APIKey != "",
		APIKey:         cfg.APIKey,
		Version:        "dev",
	}, log)

	return &Services{
		Config:       cfg,
		Log:          log,
		Store:        st,
		Queue:        q,
		Gate:         gate,
		Orchestrator: orch,
		Unifier:      unif,
		WorkerPool:   pool,
		Scheduler:    sched,
		Embedder:     embedder,
		API:          apiServer,
	}, nil
}

// Close releases held resources.
func (s *Services) Close() {
	s.Store.Close()
}
