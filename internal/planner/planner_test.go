package planner_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/dreamtrip/backend/internal/domain"
	"github.com/pkordes/dreamtrip/backend/internal/itinerary"
	"github.com/pkordes/dreamtrip/backend/internal/planner"
)

func trip() domain.Trip {
	return domain.Trip{
		Destination: "Lisbon",
		StartDate:   time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		EndDate:     time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC),
		Budget:      5000,
		Mood:        "relaxed",
		Travelers:   2,
	}
}

func TestTableEstimator_Estimate(t *testing.T) {
	e := planner.NewTableEstimator()

	got, err := e.Estimate(context.Background(), trip(), domain.ActivityDraft{Category: domain.CategoryExperience})
	require.NoError(t, err)
	assert.Equal(t, 81.0, got) // 45 * 0.9 * 2

	solo := trip()
	solo.Travelers = 0
	solo.Mood = "mysterious"
	got, err = e.Estimate(context.Background(), solo, domain.ActivityDraft{Category: "karaoke"})
	require.NoError(t, err)
	assert.Equal(t, 20.0, got)
}

func TestTableEstimator_Nightly(t *testing.T) {
	e := planner.NewTableEstimator()
	tr := trip()
	tr.Travelers = 3

	assert.Equal(t, 162.0, e.Nightly(tr)) // 90 * 0.9 * 2 rooms
}

func TestSkeleton_CoversEveryDay(t *testing.T) {
	g := planner.NewSkeleton(planner.NewTableEstimator())
	tr := trip()
	tr.Preferences.Interests = []string{"food", "history"}

	plan, err := g.Generate(context.Background(), tr, domain.ItineraryVersion{})

	require.NoError(t, err)
	require.Len(t, plan.Days, 3)
	for i, d := range plan.Days {
		assert.Equal(t, tr.StartDate.AddDate(0, 0, i), d.Date)
		assert.Len(t, d.Activities, 3)
	}
	assert.Equal(t, "Food in Lisbon", plan.Days[0].Activities[2].Name)
	assert.Equal(t, "History in Lisbon", plan.Days[1].Activities[2].Name)
	require.Len(t, plan.Accommodations, 1)
	assert.Equal(t, 2, plan.Accommodations[0].Nights())
	assert.Equal(t, 162.0, plan.Accommodations[0].TotalCost)
}

func TestSkeleton_LowersPaceToFitBudget(t *testing.T) {
	g := planner.NewSkeleton(planner.NewTableEstimator())
	tr := trip()
	tr.Budget = 400

	plan, err := g.Generate(context.Background(), tr, domain.ItineraryVersion{})

	require.NoError(t, err)
	assert.LessOrEqual(t, itinerary.TotalCost(plan), tr.Budget)
	assert.Less(t, len(plan.Days[0].Activities), 3)
}

func TestSkeleton_SkipsStayWhenOneIsBooked(t *testing.T) {
	g := planner.NewSkeleton(planner.NewTableEstimator())
	cur := domain.ItineraryVersion{Plan: domain.Plan{Accommodations: []domain.Accommodation{{Name: "Booked", Booked: true}}}}

	plan, err := g.Generate(context.Background(), trip(), cur)

	require.NoError(t, err)
	assert.Empty(t, plan.Accommodations)
}

func TestSkeleton_ResultApplies(t *testing.T) {
	g := planner.NewSkeleton(planner.NewTableEstimator())
	tr := trip()
	plan, err := g.Generate(context.Background(), tr, domain.ItineraryVersion{})
	require.NoError(t, err)

	res, err := itinerary.Apply(tr, domain.ItineraryVersion{}, domain.EditProposal{
		Kind:       domain.KindRegenerateItinerary,
		Regenerate: &plan,
	})

	require.NoError(t, err)
	assert.Equal(t, itinerary.TotalCost(plan), res.Version.TotalCost)
}
