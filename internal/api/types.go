package api

import "github.com/venuescout/venuescout/internal/venue"

// queryRequest is the POST /query body.
type queryRequest struct {
	Query    string  `json:"query"`
	Lat      float64 `json:"lat" validate:"min=-90,max=90"`
	Lon      float64 `json:"lon" validate:"min=-180,max=180"`
	RadiusM  float64 `json:"radius_m" validate:"omitempty,min=1,max=100000"`
	Limit    int     `json:"limit" validate:"omitempty,min=1,max=30"`
	Category string  `json:"category"`
}

// freshness summarizes an enrichment's field ages for the caller, so a
// client can decide whether to poll the attached job_id.
type freshness struct {
	Missing       []venue.FieldName `json:"missing"`
	Stale         []venue.FieldName `json:"stale"`
	Fresh         []venue.FieldName `json:"fresh"`
	LastEnrichedAt *string          `json:"last_enriched_at"`
}

// resultCard is one entry of the POST /query response array.
type resultCard struct {
	VenueID      string    `json:"venue_id"`
	Name         string    `json:"name"`
	CategoryName string    `json:"category_name"`
	Lat          float64   `json:"lat"`
	Lon          float64   `json:"lon"`
	DistanceM    float64   `json:"distance_m"`
	Popularity   *float64  `json:"popularity"`
	Freshness    freshness `json:"freshness"`
	SourcesCount int       `json:"sources_count"`
	Summary      string    `json:"summary"`
	JobID        *int64    `json:"job_id,omitempty"`
}

// scrapeRequest is the POST /scrape body.
type scrapeRequest struct {
	VenueIDs []string      `json:"venue_ids" validate:"required,min=1,dive,required"`
	Mode     venue.JobMode `json:"mode" validate:"required,oneof=realtime background"`
	Priority int           `json:"priority"`
}

type scrapeResponse struct {
	JobIDs []int64 `json:"job_ids"`
}

type jobStatusResponse struct {
	JobID         int64   `json:"job_id"`
	State         string  `json:"state"`
	StartedAt     *string `json:"started_at"`
	FinishedAt    *string `json:"finished_at"`
	Error         string  `json:"error,omitempty"`
	UpdatedFields []string `json:"updated_fields,omitempty"`
}

type healthResponse struct {
	OK         bool           `json:"ok"`
	DB         bool           `json:"db"`
	QueueDepth map[string]int `json:"queue_depth"`
	Version    string         `json:"version"`
}

type readyResponse struct {
	Ready bool `json:"ready"`
	DB    bool `json:"db"`
	Model bool `json:"model"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}
