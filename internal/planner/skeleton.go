package planner

import (
	"context"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/samber/lo"

	"github.com/pkordes/dreamtrip/backend/internal/domain"
	"github.com/pkordes/dreamtrip/backend/internal/itinerary"
)

type slot struct {
	name     string
	category string
	start    string
	end      string
	priority int
}

var daySlots = []slot{
	{"Morning highlights of %s", domain.CategoryAttraction, "09:30", "12:00", 2},
	{"Lunch at a local spot", domain.CategoryDining, "12:30", "14:00", 1},
	{"Afternoon in %s", domain.CategoryExperience, "15:00", "18:00", 1},
	{"Dinner in %s", domain.CategoryDining, "19:30", "21:30", 1},
}

// paceSlots is how many slots of daySlots a day fills at each pace.
var paceSlots = map[string]int{
	"relaxed":  2,
	"slow":     2,
	"moderate": 3,
	"balanced": 3,
	"packed":   4,
	"fast":     4,
}

// Skeleton generates a day-by-day plan from fixed slots, the traveller's
// interests, and the table estimator's prices. If the plan exceeds the
// budget it lowers the pace until it fits or only one slot is left per day.
type Skeleton struct {
	estimator *TableEstimator
}

// NewSkeleton returns a generator that prices entries with e.
func NewSkeleton(e *TableEstimator) *Skeleton {
	return &Skeleton{estimator: e}
}

// Generate returns a fresh plan covering every day of trip. Booked entries of
// current are not repeated; the itinerary model keeps them.
func (s *Skeleton) Generate(ctx context.Context, trip domain.Trip, current domain.ItineraryVersion) (domain.Plan, error) {
	per, ok := paceSlots[strings.ToLower(trip.Preferences.Pace)]
	if !ok {
		per = 3
	}

	var stay []domain.Accommodation
	if trip.Days() > 1 && !hasBookedStay(current.Plan) {
		stay = []domain.Accommodation{{
			Name:         "Hotel in " + trip.Destination,
			Type:         domain.StayHotel,
			Location:     domain.Location{Name: trip.Destination},
			CheckIn:      domain.DateOf(trip.StartDate),
			CheckOut:     domain.DateOf(trip.EndDate),
			CostPerNight: s.estimator.Nightly(trip),
			Priority:     3,
		}}
		stay[0].TotalCost = round(stay[0].CostPerNight * float64(stay[0].Nights()))
	}

	committed := itinerary.TotalCost(domain.Plan{
		Accommodations: bookedStays(current.Plan),
		Transportation: bookedLegs(current.Plan),
	})

	for ; per >= 1; per-- {
		if err := ctx.Err(); err != nil {
			return domain.Plan{}, fmt.Errorf("planner.Skeleton.Generate: %w", err)
		}
		days, err := s.days(ctx, trip, per)
		if err != nil {
			return domain.Plan{}, err
		}
		plan := domain.Plan{Days: days, Accommodations: stay}
		if per == 1 || trip.Budget <= 0 || committed+itinerary.TotalCost(plan) <= trip.Budget {
			return plan, nil
		}
	}
	return domain.Plan{}, nil
}

func (s *Skeleton) days(ctx context.Context, trip domain.Trip, per int) ([]domain.DayPlan, error) {
	interests := trip.Preferences.Interests
	days := make([]domain.DayPlan, 0, trip.Days())
	for i := 0; i < trip.Days(); i++ {
		date := domain.DateOf(trip.StartDate).AddDate(0, 0, i)
		day := domain.DayPlan{Date: date}
		for j, sl := range daySlots[:per] {
			name := sl.name
			if strings.Contains(name, "%s") {
				name = fmt.Sprintf(name, trip.Destination)
			}
			if j == 2 && len(interests) > 0 {
				name = fmt.Sprintf("%s in %s", capitalize(interests[i%len(interests)]), trip.Destination)
			}
			draft := domain.ActivityDraft{Date: date, Name: name, Category: sl.category}
			cost, err := s.estimator.Estimate(ctx, trip, draft)
			if err != nil {
				return nil, fmt.Errorf("planner.Skeleton.days: %w", err)
			}
			day.Activities = append(day.Activities, domain.Activity{
				Name:      name,
				Location:  domain.Location{Name: trip.Destination},
				StartTime: sl.start,
				EndTime:   sl.end,
				Cost:      cost,
				Category:  sl.category,
				Priority:  sl.priority,
			})
		}
		if i == 0 {
			day.Notes = "Arrival day"
		} else if i == trip.Days()-1 {
			day.Notes = "Departure day"
		}
		days = append(days, day)
	}
	return days, nil
}

func hasBookedStay(p domain.Plan) bool {
	return len(bookedStays(p)) > 0
}

func bookedStays(p domain.Plan) []domain.Accommodation {
	return lo.Filter(p.Accommodations, func(a domain.Accommodation, _ int) bool { return a.Booked })
}

func bookedLegs(p domain.Plan) []domain.TransportLeg {
	return lo.Filter(p.Transportation, func(t domain.TransportLeg, _ int) bool { return t.Booked })
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + s[size:]
}
