package export

import (
	"fmt"
	"time"
	_ "time/tzdata"

	ics "github.com/arran4/golang-ical"
	"github.com/ringsaturn/tzf"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/pkordes/dreamtrip/backend/internal/domain"
)

// ZoneFinder maps coordinates to an IANA timezone name. tzf.F satisfies it.
type ZoneFinder interface {
	GetTimezoneName(lng, lat float64) string
}

// NewZoneFinder loads the embedded timezone polygons. Loading takes a moment
// and a few tens of MB, so build one finder per process.
func NewZoneFinder() (ZoneFinder, error) {
	f, err := tzf.NewDefaultFinder()
	if err != nil {
		return nil, fmt.Errorf("export.NewZoneFinder: %w", err)
	}
	return f, nil
}

// defaultActivityLength is used for timed activities without an end time.
const defaultActivityLength = time.Hour

// Calendar builds an iCalendar feed of v. Activity times are wall-clock times
// at the destination; the destination's zone is looked up from the first
// geocoded entry in the plan and falls back to UTC. zones may be nil.
func Calendar(trip domain.Trip, v domain.ItineraryVersion, zones ZoneFinder) string {
	zone := ZoneOf(v.Plan, zones)
	loc, err := time.LoadLocation(zone)
	if err != nil {
		zone, loc = "UTC", time.UTC
	}

	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId("-//DreamTrip//Itinerary//EN")
	cal.SetXWRCalName(fmt.Sprintf("%s (v%d)", trip.Destination, v.Version))
	cal.SetXWRTimezone(zone)

	stamp := v.CreatedAt.UTC()
	if stamp.IsZero() {
		stamp = time.Now().UTC()
	}
	uid := func(id string) string { return id + "@" + trip.ID.String() }
	title := cases.Title(language.English)

	for _, d := range v.Plan.Days {
		for _, a := range d.Activities {
			e := cal.AddEvent(uid(a.ID))
			e.SetDtStampTime(stamp)
			e.SetSummary(a.Name)
			if a.Description != "" {
				e.SetDescription(a.Description)
			}
			if a.Location.Name != "" {
				e.SetLocation(locationText(a.Location))
			}
			start, ok := wallClock(d.Date, a.StartTime, loc)
			if !ok {
				e.SetAllDayStartAt(d.Date)
				e.SetAllDayEndAt(d.Date.AddDate(0, 0, 1))
				continue
			}
			end, ok := wallClock(d.Date, a.EndTime, loc)
			if !ok || !end.After(start) {
				end = start.Add(defaultActivityLength)
			}
			e.SetStartAt(start.UTC())
			e.SetEndAt(end.UTC())
		}
	}

	for _, a := range v.Plan.Accommodations {
		e := cal.AddEvent(uid(a.ID))
		e.SetDtStampTime(stamp)
		e.SetSummary("Stay: " + a.Name)
		if a.Location.Name != "" {
			e.SetLocation(locationText(a.Location))
		}
		e.SetAllDayStartAt(a.CheckIn)
		e.SetAllDayEndAt(a.CheckOut)
	}

	for _, t := range v.Plan.Transportation {
		e := cal.AddEvent(uid(t.ID))
		e.SetDtStampTime(stamp)
		e.SetSummary(fmt.Sprintf("%s: %s to %s", title.String(t.Type), t.From.Name, t.To.Name))
		e.SetLocation(locationText(t.From))
		e.SetStartAt(t.Departure.UTC())
		end := t.Arrival
		if end.IsZero() || end.Before(t.Departure) {
			end = t.Departure
		}
		e.SetEndAt(end.UTC())
	}

	return cal.Serialize()
}

// ZoneOf returns the timezone of the first geocoded location in plan, or
// "UTC" when nothing is geocoded or zones is nil.
func ZoneOf(plan domain.Plan, zones ZoneFinder) string {
	if zones == nil {
		return "UTC"
	}
	var locs []domain.Location
	for _, d := range plan.Days {
		for _, a := range d.Activities {
			locs = append(locs, a.Location)
		}
	}
	for _, a := range plan.Accommodations {
		locs = append(locs, a.Location)
	}
	for _, t := range plan.Transportation {
		locs = append(locs, t.To, t.From)
	}
	for _, l := range locs {
		if !l.HasCoordinates() {
			continue
		}
		if name := zones.GetTimezoneName(l.Lng, l.Lat); name != "" {
			return name
		}
	}
	return "UTC"
}

// wallClock places an "HH:MM" time on day in loc.
func wallClock(day time.Time, hhmm string, loc *time.Location) (time.Time, bool) {
	if hhmm == "" {
		return time.Time{}, false
	}
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return time.Time{}, false
	}
	y, m, d := day.Date()
	return time.Date(y, m, d, t.Hour(), t.Minute(), 0, 0, loc), true
}

func locationText(l domain.Location) string {
	if l.Address == "" {
		return l.Name
	}
	return l.Name + ", " + l.Address
}
