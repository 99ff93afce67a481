// Package geo provides plain-Go geodesic helpers used where a PostGIS
// round trip isn't available: query-path fallback ranking and unit tests
// that exercise distance/ranking logic without a database.
package geo

import (
	"math"
	"sort"

	"github.com/venuescout/venuescout/internal/venue"
)

const earthRadiusM = 6371000.0

// HaversineMeters returns the great-circle distance between two WGS-84
// coordinates in meters.
func HaversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusM * c
}

// Ranked pairs a venue with its distance from the query point, for the
// fallback ranking used when embeddings are absent (§9 design note).
type Ranked struct {
	Venue     venue.Venue
	DistanceM float64
}

// RankByDistanceThenPopularity orders venues by distance ascending, with
// popularity_confidence (null sorting lowest, per the popularity
// open-question resolution) breaking ties between venues at exactly the
// same distance. It never mutates the input slice.
func RankByDistanceThenPopularity(venues []venue.Venue, lat, lon float64) []Ranked {
	out := make([]Ranked, len(venues))
	for i, v := range venues {
		out[i] = Ranked{Venue: v, DistanceM: HaversineMeters(lat, lon, v.Lat, v.Lon)}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].DistanceM != out[j].DistanceM {
			return out[i].DistanceM < out[j].DistanceM
		}
		return popularityOf(out[i].Venue) > popularityOf(out[j].Venue)
	})
	return out
}

func popularityOf(v venue.Venue) float64 {
	if v.PopularityConf == nil {
		return -1
	}
	return *v.PopularityConf
}

// WithinRadius filters ranked results to those at or under radiusM.
func WithinRadius(ranked []Ranked, radiusM float64) []Ranked {
	out := ranked[:0:0]
	for _, r := range ranked {
		if r.DistanceM <= radiusM {
			out = append(out, r)
		}
	}
	return out
}
