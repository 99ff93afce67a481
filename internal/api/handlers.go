package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/venuescout/venuescout/internal/geo"
	"github.com/venuescout/venuescout/internal/store"
	"github.com/venuescout/venuescout/internal/venue"
)

const querySummaryMaxChars = 220

func (s *Server) query(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.RadiusM == 0 {
		req.RadiusM = s.cfg.DefaultRadiusM
	}
	if req.Limit == 0 {
		req.Limit = s.cfg.MaxResults
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	geoResults, err := s.store.NearbyVenues(r.Context(), req.Lat, req.Lon, req.RadiusM, req.Limit, req.Category)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "nearby venues lookup failed")
		return
	}

	if !s.embeddingsAvailable(r.Context()) {
		geoResults = fallbackOrder(geoResults, req.Lat, req.Lon)
	}

	now := time.Now()
	cards := make([]resultCard, 0, len(geoResults))
	for _, g := range geoResults {
		enrichment, err := s.store.GetEnrichment(r.Context(), g.Venue.ID)
		if err != nil {
			s.log.Warn("get enrichment failed", zap.String("venue_id", g.Venue.ID), zap.Error(err))
			enrichment = nil
		}
		card := s.buildCard(g, enrichment, now)

		if needsRealtimeEnrichment(enrichment, now) {
			jobID, err := s.queue.Enqueue(r.Context(), g.Venue.ID, venue.ModeRealtime, venue.PriorityFloor)
			if err != nil {
				s.log.Warn("enqueue realtime job failed", zap.String("venue_id", g.Venue.ID), zap.Error(err))
			} else {
				card.JobID = &jobID
			}
		}
		cards = append(cards, card)
	}

	writeJSON(w, http.StatusOK, cards)
}

// embeddingsAvailable reports whether the embedding backend can be reached
// right now. When it can't, the query path falls back to plain
// distance+popularity ordering instead of whatever semantic ranking the
// embedding backend would otherwise inform, per §9's design note that the
// query path must function with or without embeddings.
func (s *Server) embeddingsAvailable(ctx context.Context) bool {
	if s.model == nil {
		return false
	}
	return s.model.Ping(ctx) == nil
}

// fallbackOrder re-ranks geoResults by distance-then-popularity using the
// haversine fallback ranking, preserving each venue's originally computed
// (PostGIS) distance for display.
func fallbackOrder(geoResults []store.GeoResult, lat, lon float64) []store.GeoResult {
	if len(geoResults) == 0 {
		return geoResults
	}
	venues := make([]venue.Venue, len(geoResults))
	byID := make(map[string]store.GeoResult, len(geoResults))
	for i, g := range geoResults {
		venues[i] = g.Venue
		byID[g.Venue.ID] = g
	}
	ranked := geo.RankByDistanceThenPopularity(venues, lat, lon)
	out := make([]store.GeoResult, 0, len(ranked))
	for _, r := range ranked {
		out = append(out, byID[r.Venue.ID])
	}
	return out
}

func needsRealtimeEnrichment(e *venue.Enrichment, now time.Time) bool {
	if e == nil {
		return true
	}
	return len(e.StaleFields(now)) > 0
}

func (s *Server) buildCard(g store.GeoResult, e *venue.Enrichment, now time.Time) resultCard {
	fresh := computeFreshness(e, now)
	if g.Venue.LastEnrichedAt != nil {
		v := g.Venue.LastEnrichedAt.Format(time.RFC3339)
		fresh.LastEnrichedAt = &v
	}
	summary := ""
	sources := 0
	if e != nil {
		summary = truncate(e.Description, querySummaryMaxChars)
		sources = countSources(e)
	}
	return resultCard{
		VenueID:      g.Venue.ID,
		Name:         g.Venue.Name,
		CategoryName: g.Venue.CategoryName,
		Lat:          g.Venue.Lat,
		Lon:          g.Venue.Lon,
		DistanceM:    g.DistanceM,
		Popularity:   g.Venue.PopularityConf,
		Freshness:    fresh,
		SourcesCount: sources,
		Summary:      summary,
	}
}

func computeFreshness(e *venue.Enrichment, now time.Time) freshness {
	var f freshness
	for _, field := range venue.AllFields {
		if e != nil && e.NotApplicable[field] {
			continue
		}
		switch {
		case e == nil:
			f.Missing = append(f.Missing, field)
		case e.IsStale(field, now):
			if _, ok := e.LastUpdated[field]; ok {
				f.Stale = append(f.Stale, field)
			} else {
				f.Missing = append(f.Missing, field)
			}
		default:
			f.Fresh = append(f.Fresh, field)
		}
	}
	return f
}

func countSources(e *venue.Enrichment) int {
	seen := map[string]bool{}
	for _, urls := range e.Sources {
		for _, u := range urls {
			seen[u] = true
		}
	}
	return len(seen)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

func (s *Server) scrape(w http.ResponseWriter, r *http.Request) {
	var req scrapeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	jobIDs := make([]int64, 0, len(req.VenueIDs))
	for _, id := range req.VenueIDs {
		jobID, err := s.queue.Enqueue(r.Context(), id, req.Mode, req.Priority)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "enqueue failed for "+id)
			return
		}
		jobIDs = append(jobIDs, jobID)
	}
	writeJSON(w, http.StatusAccepted, scrapeResponse{JobIDs: jobIDs})
}

func (s *Server) scrapeStatus(w http.ResponseWriter, r *http.Request) {
	jobIDStr := chi.URLParam(r, "job_id")
	jobID, err := strconv.ParseInt(jobIDStr, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job_id")
		return
	}
	job, err := s.queue.Status(r.Context(), jobID)
	if err != nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	resp := jobStatusResponse{
		JobID: job.ID,
		State: string(job.State),
		Error: string(job.Error),
	}
	if job.StartedAt != nil {
		v := job.StartedAt.Format(time.RFC3339)
		resp.StartedAt = &v
	}
	if job.FinishedAt != nil {
		v := job.FinishedAt.Format(time.RFC3339)
		resp.FinishedAt = &v
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	dbOK := s.store.Ping(r.Context()) == nil
	depth, err := s.queue.Depth(r.Context())
	if err != nil {
		depth = map[venue.JobState]int{}
	}
	queueDepth := make(map[string]int, len(depth))
	for state, count := range depth {
		queueDepth[string(state)] = count
	}
	writeJSON(w, http.StatusOK, healthResponse{
		OK:         dbOK,
		DB:         dbOK,
		QueueDepth: queueDepth,
		Version:    s.cfg.Version,
	})
}

func (s *Server) ready(w http.ResponseWriter, r *http.Request) {
	dbOK := s.store.Ping(r.Context()) == nil
	modelOK := true
	if s.model != nil {
		modelOK = s.model.Ping(r.Context()) == nil
	}
	writeJSON(w, http.StatusOK, readyResponse{
		Ready: dbOK && modelOK,
		DB:    dbOK,
		Model: modelOK,
	})
}
