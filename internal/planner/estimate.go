// Package planner holds the default implementations of the engine's
// extension points: a cost estimator for activities the traveller did not
// price, and a skeleton generator for itinerary regeneration. Neither calls an
// external service.
package planner

import (
	"context"
	"math"
	"strings"

	"github.com/pkordes/dreamtrip/backend/internal/domain"
)

// categoryBase is the per-person price of an activity of each category.
var categoryBase = map[string]float64{
	domain.CategoryAttraction: 15,
	domain.CategoryExperience: 45,
	domain.CategoryLeisure:    10,
	domain.CategoryShopping:   30,
	domain.CategoryDining:     25,
	domain.CategoryOther:      20,
}

// moodFactor scales prices by the trip's mood. Unknown moods scale by 1.
var moodFactor = map[string]float64{
	"relaxed":     0.9,
	"chill":       0.9,
	"adventurous": 1.1,
	"romantic":    1.3,
	"family":      1.0,
	"luxury":      2.0,
	"luxurious":   2.0,
	"budget":      0.6,
	"frugal":      0.6,
	"backpacker":  0.5,
}

const baseNightly = 90.0

// TableEstimator prices activities from a static table scaled by the trip's
// mood and party size.
type TableEstimator struct{}

// NewTableEstimator returns the table-driven estimator.
func NewTableEstimator() *TableEstimator {
	return &TableEstimator{}
}

// Estimate returns the expected cost of d for the whole party.
func (e *TableEstimator) Estimate(_ context.Context, trip domain.Trip, d domain.ActivityDraft) (float64, error) {
	base, ok := categoryBase[strings.ToLower(d.Category)]
	if !ok {
		base = categoryBase[domain.CategoryOther]
	}
	return round(base * mood(trip) * float64(party(trip))), nil
}

// Nightly returns the expected price of one night's stay for the party.
func (e *TableEstimator) Nightly(trip domain.Trip) float64 {
	rooms := (party(trip) + 1) / 2
	return round(baseNightly * mood(trip) * float64(rooms))
}

func mood(trip domain.Trip) float64 {
	if f, ok := moodFactor[strings.ToLower(strings.TrimSpace(trip.Mood))]; ok {
		return f
	}
	return 1
}

func party(trip domain.Trip) int {
	if trip.Travelers < 1 {
		return 1
	}
	return trip.Travelers
}

func round(v float64) float64 {
	return math.Round(v*100) / 100
}
