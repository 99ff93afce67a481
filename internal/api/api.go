package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/venuescout/venuescout/internal/metrics"
	"github.com/venuescout/venuescout/internal/store"
	"github.com/venuescout/venuescout/internal/venue"
)

// Store is the read/health surface the API needs from the persistence
// layer; it is a narrow view of store.Store so tests can fake it without a
// database.
type Store interface {
	NearbyVenues(ctx context.Context, lat, lon, radiusM float64, limit int, category string) ([]store.GeoResult, error)
	GetEnrichment(ctx context.Context, venueID string) (*venue.Enrichment, error)
	Ping(ctx context.Context) error
}

// Queue is the job-submission and status surface the API needs from the
// job queue.
type Queue interface {
	Enqueue(ctx context.Context, venueID string, mode venue.JobMode, priority int) (int64, error)
	Status(ctx context.Context, jobID int64) (venue.CrawlJob, error)
	Depth(ctx context.Context) (map[venue.JobState]int, error)
}

// ModelProber reports whether the embedding backend is reachable, for
// GET /ready. It is optional; a nil ModelProber reports model=true, since
// embedding failures are never fatal to the query path.
type ModelProber interface {
	Ping(ctx context.Context) error
}

// Config carries the request-shaping defaults and auth key the specification
// names, kept distinct from the package-wide config.Config so this package
// doesn't import every unrelated setting.
type Config struct {
	DefaultRadiusM float64
	MaxResults     int
	APIKeyEnabled  bool
	APIKey         string
	Version        string
}

// Server wires HTTP handlers to the store and queue.
type Server struct {
	router  chi.Router
	store   Store
	queue   Queue
	model   ModelProber
	cfg     Config
	log     *zap.Logger
	validate *validator.Validate
}

// NewServer constructs a Server with middleware and routes.
func NewServer(st Store, q Queue, model ModelProber, cfg Config, log *zap.Logger) *Server {
	if cfg.DefaultRadiusM <= 0 {
		cfg.DefaultRadiusM = 1500
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 15
	}
	s := &Server{
		store:    st,
		queue:    q,
		model:    model,
		cfg:      cfg,
		log:      log,
		validate: validator.New(),
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(log))
	r.Use(recoverMiddleware(log))
	r.Use(timeoutMiddleware(60 * time.Second))
	if cfg.APIKeyEnabled {
		r.Use(apiKeyMiddleware(cfg.APIKey))
	}

	r.Get("/health", s.health)
	r.Get("/ready", s.ready)
	r.Get("/metrics", metrics.Handler().ServeHTTP)
	r.Post("/query", s.query)
	r.Post("/scrape", s.scrape)
	r.Get("/scrape/{job_id}", s.scrapeStatus)

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			log.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}

func recoverMiddleware(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					log.Error("panic recovered", zap.Any("panic", rec))
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key != expected {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type requestIDKey struct{}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("hijacker not supported")
	}
	return h.Hijack()
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorResponse{Detail: detail})
}
