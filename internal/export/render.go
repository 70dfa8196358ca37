// Package export turns itinerary versions into documents: a plain-text
// rendering, a line diff between two versions, and an iCalendar feed.
// Nothing here touches storage; callers pass in the trip and versions.
package export

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/pkordes/dreamtrip/backend/internal/domain"
)

const dateLayout = "2006-01-02"

// Render writes v as one line per entry. Output is deterministic for a given
// version, so two renderings can be diffed line by line.
func Render(trip domain.Trip, v domain.ItineraryVersion) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s, %s to %s\n", trip.Destination, trip.StartDate.Format(dateLayout), trip.EndDate.Format(dateLayout))
	fmt.Fprintf(&b, "Version %d: total %.2f of budget %.2f", v.Version, v.TotalCost, trip.Budget)
	if v.OverBudget {
		b.WriteString(" (over budget)")
	}
	b.WriteString("\n")

	for _, d := range v.Plan.Days {
		fmt.Fprintf(&b, "Day %d (%s)\n", d.Day, d.Date.Format(dateLayout))
		if d.Notes != "" {
			fmt.Fprintf(&b, "  Note: %s\n", d.Notes)
		}
		for _, a := range d.Activities {
			b.WriteString("  " + activityLine(a) + "\n")
		}
	}

	stays := slices.Clone(v.Plan.Accommodations)
	slices.SortStableFunc(stays, func(a, b domain.Accommodation) int { return a.CheckIn.Compare(b.CheckIn) })
	for _, a := range stays {
		fmt.Fprintf(&b, "Stay: %s (%s) %s to %s, %.2f%s\n",
			a.Name, a.Type, a.CheckIn.Format(dateLayout), a.CheckOut.Format(dateLayout), a.TotalCost, bookedMark(a.Booked))
	}

	legs := slices.Clone(v.Plan.Transportation)
	slices.SortStableFunc(legs, func(a, b domain.TransportLeg) int { return a.Departure.Compare(b.Departure) })
	for _, t := range legs {
		fmt.Fprintf(&b, "Transport: %s %s -> %s %s, %.2f%s\n",
			t.Type, t.From.Name, t.To.Name, t.Departure.UTC().Format(time.DateTime), t.Cost, bookedMark(t.Booked))
	}
	return b.String()
}

func activityLine(a domain.Activity) string {
	parts := lo.Compact([]string{
		timeSpan(a.StartTime, a.EndTime),
		a.Name,
		"[" + a.Category + "]",
		fmt.Sprintf("%.2f", a.Cost),
	})
	line := strings.Join(parts, " ")
	if a.Location.Name != "" {
		line += " @ " + a.Location.Name
	}
	if a.BookingRequired {
		line += " (booking required)"
	}
	return line
}

func timeSpan(start, end string) string {
	switch {
	case start == "":
		return ""
	case end == "":
		return start
	default:
		return start + "-" + end
	}
}

func bookedMark(booked bool) string {
	if booked {
		return " [booked]"
	}
	return ""
}
