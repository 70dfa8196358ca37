// Package itinerary is the canonical itinerary model: it applies edit
// proposals to an immutable ItineraryVersion and derives the next version.
// Everything here is a pure function of its inputs; persistence, locking, and
// interpretation live in the service layer.
package itinerary

import (
	"cmp"
	"math"
	"slices"

	"github.com/samber/lo"

	"github.com/pkordes/dreamtrip/backend/internal/domain"
)

// TotalCost sums every priced entry of the plan, rounded to cents.
// It is recomputed for each new version and never carried across versions.
func TotalCost(plan domain.Plan) float64 {
	activities := lo.SumBy(plan.Days, func(d domain.DayPlan) float64 {
		return lo.SumBy(d.Activities, func(a domain.Activity) float64 { return a.Cost })
	})
	stays := lo.SumBy(plan.Accommodations, func(a domain.Accommodation) float64 { return a.TotalCost })
	legs := lo.SumBy(plan.Transportation, func(t domain.TransportLeg) float64 { return t.Cost })
	return roundCents(activities + stays + legs)
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

// trimKind identifies which collection a trim candidate came from.
type trimKind int

const (
	trimActivity trimKind = iota
	trimStay
	trimLeg
)

type trimKey struct {
	kind     trimKind
	day, idx int
}

type trimCandidate struct {
	trimKey
	name     string
	cost     float64
	priority int
	order    int
}

// trimToBudget drops the lowest-priority unbooked entries until the plan fits
// budget. Ties are broken by dropping the more expensive entry first, then by
// position in the plan. It reports the names of dropped entries and whether
// the result fits.
func trimToBudget(plan domain.Plan, budget float64) (domain.Plan, []string, bool) {
	var candidates []trimCandidate
	order := 0
	for di, day := range plan.Days {
		for ai, a := range day.Activities {
			candidates = append(candidates, trimCandidate{trimKey{trimActivity, di, ai}, a.Name, a.Cost, a.Priority, order})
			order++
		}
	}
	for i, a := range plan.Accommodations {
		if !a.Booked {
			candidates = append(candidates, trimCandidate{trimKey{trimStay, 0, i}, a.Name, a.TotalCost, a.Priority, order})
		}
		order++
	}
	for i, t := range plan.Transportation {
		if !t.Booked {
			candidates = append(candidates, trimCandidate{trimKey{trimLeg, 0, i}, t.Type + " to " + t.To.Name, t.Cost, t.Priority, order})
		}
		order++
	}
	candidates = lo.Filter(candidates, func(c trimCandidate, _ int) bool { return c.cost > 0 })
	slices.SortStableFunc(candidates, func(a, b trimCandidate) int {
		return cmp.Or(
			cmp.Compare(a.priority, b.priority),
			cmp.Compare(b.cost, a.cost),
			cmp.Compare(a.order, b.order),
		)
	})

	total := TotalCost(plan)
	dropped := map[trimKey]bool{}
	var names []string
	for _, c := range candidates {
		if total <= budget {
			break
		}
		dropped[c.trimKey] = true
		names = append(names, c.name)
		total = roundCents(total - c.cost)
	}
	if total > budget {
		return plan, nil, false
	}

	out := domain.Plan{}
	for di, day := range plan.Days {
		kept := day
		kept.Activities = nil
		for ai, a := range day.Activities {
			if !dropped[trimKey{trimActivity, di, ai}] {
				kept.Activities = append(kept.Activities, a)
			}
		}
		out.Days = append(out.Days, kept)
	}
	for i, a := range plan.Accommodations {
		if !dropped[trimKey{trimStay, 0, i}] {
			out.Accommodations = append(out.Accommodations, a)
		}
	}
	for i, t := range plan.Transportation {
		if !dropped[trimKey{trimLeg, 0, i}] {
			out.Transportation = append(out.Transportation, t)
		}
	}
	return out, names, true
}
