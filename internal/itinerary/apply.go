package itinerary

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/pkordes/dreamtrip/backend/internal/domain"
)

// Result is the outcome of a successful apply: the trip with any trip-level
// edits folded in, and the next itinerary version.
type Result struct {
	Trip    domain.Trip
	Version domain.ItineraryVersion
}

// Apply derives the next itinerary version from current by applying p.
// Rejections are returned as *domain.ConflictError; malformed proposals as
// errors wrapping domain.ErrValidation. Neither trip nor current is modified.
//
// Apply does not check p.BaseVersion; staleness is the reconciler's concern.
func Apply(trip domain.Trip, current domain.ItineraryVersion, p domain.EditProposal) (Result, error) {
	return ApplyAll(trip, current, []domain.EditProposal{p})
}

// ApplyAll folds several proposals, in order, into a single next version.
// If any proposal is rejected the whole batch is rejected.
func ApplyAll(trip domain.Trip, current domain.ItineraryVersion, proposals []domain.EditProposal) (Result, error) {
	if len(proposals) == 0 {
		return Result{}, fmt.Errorf("%w: no changes requested", domain.ErrValidation)
	}

	st := &state{
		trip: trip,
		plan: clonePlan(current.Plan),
		base: current.Version,
	}
	notes := make([]string, 0, len(proposals))
	for _, p := range proposals {
		note, err := st.apply(p)
		if err != nil {
			return Result{}, err
		}
		notes = append(notes, note)
	}

	st.plan = normalize(st.trip, st.plan)
	total := TotalCost(st.plan)
	next := current.Version + 1
	st.trip.CurrentVersion = next

	v := domain.ItineraryVersion{
		TripID:       trip.ID,
		Version:      next,
		Plan:         st.plan,
		TotalCost:    total,
		OverBudget:   total > st.trip.Budget,
		ProposalKind: proposals[0].Kind,
		Summary:      strings.Join(notes, "; "),
	}
	if id := proposals[0].ID; id != uuid.Nil {
		v.ProposalID = &id
	}
	if v.OverBudget {
		v.Summary += fmt.Sprintf(" (over budget: %.2f > %.2f)", total, st.trip.Budget)
	}
	return Result{Trip: st.trip, Version: v}, nil
}

// state is the working copy threaded through a batch of proposals.
type state struct {
	trip domain.Trip
	plan domain.Plan
	base int
	seq  int
}

func (st *state) apply(p domain.EditProposal) (string, error) {
	switch p.Kind {
	case domain.KindSetDates:
		return st.setDates(p)
	case domain.KindSetBudget:
		return st.setBudget(p)
	case domain.KindSetMood:
		return st.setMood(p)
	case domain.KindSetStatus:
		return st.setStatus(p)
	case domain.KindAddDayActivity:
		return st.addActivity(p)
	case domain.KindRemoveDayActivity:
		return st.removeActivity(p)
	case domain.KindAddAccommodation:
		return st.addAccommodation(p)
	case domain.KindAddTransport:
		return st.addTransport(p)
	case domain.KindRegenerateItinerary:
		return st.regenerate(p)
	default:
		return "", fmt.Errorf("%w: unknown proposal kind %q", domain.ErrValidation, p.Kind)
	}
}

// newID derives a stable entry id from the proposal, so applying the same
// proposal to the same base always yields the same version.
func (st *state) newID(p domain.EditProposal, prefix string) string {
	st.seq++
	name := fmt.Sprintf("%s/%d/%s/%d", st.trip.ID, st.base, p.Kind, st.seq)
	return prefix + "_" + uuid.NewSHA1(p.ID, []byte(name)).String()[:8]
}

func (st *state) setDates(p domain.EditProposal) (string, error) {
	if p.Dates == nil || p.Dates.Start.IsZero() || p.Dates.End.IsZero() {
		return "", fmt.Errorf("%w: start and end dates are required", domain.ErrValidation)
	}
	next := st.trip
	next.StartDate = domain.DateOf(p.Dates.Start)
	next.EndDate = domain.DateOf(p.Dates.End)
	if next.EndDate.Before(next.StartDate) {
		return "", fmt.Errorf("%w: end date must not be before start date", domain.ErrValidation)
	}
	span := formatRange(next.StartDate, next.EndDate)

	var stays []domain.Accommodation
	for _, a := range st.plan.Accommodations {
		if stayWithin(next, a) {
			stays = append(stays, a)
			continue
		}
		if a.Booked {
			return "", domain.Conflict(domain.ConflictDateOutOfRange,
				"booked accommodation %q (%s) falls outside %s", a.Name, formatRange(a.CheckIn, a.CheckOut), span)
		}
		if !p.ForceRecompute {
			return "", domain.Conflict(domain.ConflictDateOutOfRange,
				"accommodation %q (%s) falls outside %s; recompute to drop it", a.Name, formatRange(a.CheckIn, a.CheckOut), span)
		}
	}

	var legs []domain.TransportLeg
	for _, t := range st.plan.Transportation {
		if next.Contains(t.Departure) {
			legs = append(legs, t)
			continue
		}
		if t.Booked {
			return "", domain.Conflict(domain.ConflictDateOutOfRange,
				"booked %s on %s falls outside %s", t.Type, formatDate(t.Departure), span)
		}
		if !p.ForceRecompute {
			return "", domain.Conflict(domain.ConflictDateOutOfRange,
				"%s on %s falls outside %s; recompute to drop it", t.Type, formatDate(t.Departure), span)
		}
	}

	var days []domain.DayPlan
	for _, d := range st.plan.Days {
		if next.Contains(d.Date) {
			days = append(days, d)
			continue
		}
		if len(d.Activities) > 0 && !p.ForceRecompute {
			return "", domain.Conflict(domain.ConflictDateOutOfRange,
				"%d activities on %s fall outside %s; recompute to drop them", len(d.Activities), formatDate(d.Date), span)
		}
	}

	st.trip = next
	st.plan = domain.Plan{Days: days, Accommodations: stays, Transportation: legs}
	return "dates set to " + span, nil
}

func (st *state) setBudget(p domain.EditProposal) (string, error) {
	if p.Budget == nil || *p.Budget <= 0 {
		return "", fmt.Errorf("%w: budget must be a positive number", domain.ErrValidation)
	}
	budget := *p.Budget
	committed := TotalCost(st.plan)
	note := fmt.Sprintf("budget set to %.2f", budget)

	if committed > budget {
		if !p.ForceRecompute {
			return "", domain.Conflict(domain.ConflictBudgetBelowCommitted,
				"budget %.2f is below the committed cost %.2f", budget, committed)
		}
		trimmed, dropped, ok := trimToBudget(st.plan, budget)
		if !ok {
			return "", domain.Conflict(domain.ConflictBudgetBelowCommitted,
				"budget %.2f is below the cost of booked items", budget)
		}
		st.plan = trimmed
		note += "; dropped " + strings.Join(dropped, ", ")
	}

	st.trip.Budget = budget
	return note, nil
}

func (st *state) setMood(p domain.EditProposal) (string, error) {
	if p.Mood == nil || strings.TrimSpace(*p.Mood) == "" {
		return "", fmt.Errorf("%w: mood is required", domain.ErrValidation)
	}
	st.trip.Mood = strings.TrimSpace(*p.Mood)
	return "mood set to " + st.trip.Mood, nil
}

func (st *state) setStatus(p domain.EditProposal) (string, error) {
	if p.Status == nil || !p.Status.Valid() {
		return "", fmt.Errorf("%w: status must be one of planning, confirmed, ongoing, completed", domain.ErrValidation)
	}
	if !st.trip.Status.CanTransitionTo(*p.Status) {
		return "", fmt.Errorf("%w: cannot move trip from %s back to %s", domain.ErrValidation, st.trip.Status, *p.Status)
	}
	st.trip.Status = *p.Status
	return "status set to " + string(*p.Status), nil
}

func (st *state) addActivity(p domain.EditProposal) (string, error) {
	d := p.Activity
	if d == nil {
		return "", fmt.Errorf("%w: activity is required", domain.ErrValidation)
	}
	name := strings.TrimSpace(d.Name)
	switch {
	case name == "":
		return "", fmt.Errorf("%w: activity name is required", domain.ErrValidation)
	case d.Date.IsZero():
		return "", fmt.Errorf("%w: activity date is required", domain.ErrValidation)
	case d.Cost == nil:
		return "", fmt.Errorf("%w: activity cost is required", domain.ErrValidation)
	case *d.Cost < 0:
		return "", fmt.Errorf("%w: activity cost must not be negative", domain.ErrValidation)
	}
	if !st.trip.Contains(d.Date) {
		return "", domain.Conflict(domain.ConflictDateOutOfRange,
			"%s is outside the trip dates %s", formatDate(d.Date), formatRange(st.trip.StartDate, st.trip.EndDate))
	}

	a := domain.Activity{
		ID:          st.newID(p, "act"),
		Name:        name,
		Description: d.Description,
		Location:    d.Location,
		StartTime:   d.StartTime,
		EndTime:     d.EndTime,
		Cost:        roundCents(*d.Cost),
		Category:    oneOf(d.Category, domain.CategoryOther, activityCategories),
		Priority:    defaultPriority(d.Priority),
	}

	date := domain.DateOf(d.Date)
	i := slices.IndexFunc(st.plan.Days, func(day domain.DayPlan) bool { return day.Date.Equal(date) })
	if i < 0 {
		st.plan.Days = append(st.plan.Days, domain.DayPlan{Date: date})
		i = len(st.plan.Days) - 1
	}
	st.plan.Days[i].Activities = append(st.plan.Days[i].Activities, a)
	return fmt.Sprintf("added %s on %s", a.Name, formatDate(date)), nil
}

func (st *state) removeActivity(p domain.EditProposal) (string, error) {
	ref := p.Remove
	if ref == nil || (ref.ID == "" && strings.TrimSpace(ref.Name) == "") {
		return "", fmt.Errorf("%w: activity id or name is required", domain.ErrValidation)
	}

	di, ai := st.findActivity(ref, strings.EqualFold)
	if di < 0 && ref.ID == "" {
		di, ai = st.findActivity(ref, containsFold)
	}
	if di < 0 {
		what := ref.ID
		if what == "" {
			what = ref.Name
		}
		return "", domain.Conflict(domain.ConflictNotFound, "no activity matching %q", what)
	}

	day := &st.plan.Days[di]
	removed := day.Activities[ai]
	day.Activities = slices.Delete(day.Activities, ai, ai+1)
	if len(day.Activities) == 0 && day.Notes == "" {
		st.plan.Days = slices.Delete(st.plan.Days, di, di+1)
	}
	return fmt.Sprintf("removed %s from %s", removed.Name, formatDate(day.Date)), nil
}

func (st *state) findActivity(ref *domain.ActivityRef, match func(string, string) bool) (int, int) {
	name := strings.TrimSpace(ref.Name)
	for di, day := range st.plan.Days {
		if ref.Date != nil && !day.Date.Equal(domain.DateOf(*ref.Date)) {
			continue
		}
		for ai, a := range day.Activities {
			if ref.ID != "" {
				if a.ID == ref.ID {
					return di, ai
				}
				continue
			}
			if match(a.Name, name) {
				return di, ai
			}
		}
	}
	return -1, -1
}

func (st *state) addAccommodation(p domain.EditProposal) (string, error) {
	if p.Accommodation == nil {
		return "", fmt.Errorf("%w: accommodation is required", domain.ErrValidation)
	}
	a := *p.Accommodation
	a.Name = strings.TrimSpace(a.Name)
	if err := validateStay(a); err != nil {
		return "", err
	}
	if !stayWithin(st.trip, a) {
		return "", domain.Conflict(domain.ConflictDateOutOfRange,
			"stay %s is outside the trip dates %s", formatRange(a.CheckIn, a.CheckOut), formatRange(st.trip.StartDate, st.trip.EndDate))
	}
	a = st.completeStay(p, a)
	st.plan.Accommodations = append(st.plan.Accommodations, a)
	return fmt.Sprintf("added stay at %s (%s)", a.Name, formatRange(a.CheckIn, a.CheckOut)), nil
}

func (st *state) addTransport(p domain.EditProposal) (string, error) {
	if p.Transport == nil {
		return "", fmt.Errorf("%w: transport leg is required", domain.ErrValidation)
	}
	t := *p.Transport
	if err := validateLeg(t); err != nil {
		return "", err
	}
	if !st.trip.Contains(t.Departure) {
		return "", domain.Conflict(domain.ConflictDateOutOfRange,
			"departure on %s is outside the trip dates %s", formatDate(t.Departure), formatRange(st.trip.StartDate, st.trip.EndDate))
	}
	t = st.completeLeg(p, t)
	st.plan.Transportation = append(st.plan.Transportation, t)
	return fmt.Sprintf("added %s to %s on %s", t.Type, t.To.Name, formatDate(t.Departure)), nil
}

func (st *state) regenerate(p domain.EditProposal) (string, error) {
	if p.Regenerate == nil {
		return "", fmt.Errorf("%w: regenerated plan is required", domain.ErrValidation)
	}
	gen := clonePlan(*p.Regenerate)
	span := formatRange(st.trip.StartDate, st.trip.EndDate)

	out := domain.Plan{}
	for _, d := range gen.Days {
		if !st.trip.Contains(d.Date) {
			return "", domain.Conflict(domain.ConflictDateOutOfRange,
				"generated day %s is outside %s", formatDate(d.Date), span)
		}
		day := domain.DayPlan{Date: domain.DateOf(d.Date), Notes: d.Notes}
		for _, a := range d.Activities {
			if strings.TrimSpace(a.Name) == "" || a.Cost < 0 {
				return "", fmt.Errorf("%w: generated activity needs a name and a non-negative cost", domain.ErrValidation)
			}
			if a.ID == "" {
				a.ID = st.newID(p, "act")
			}
			a.Category = oneOf(a.Category, domain.CategoryOther, activityCategories)
			a.Priority = defaultPriority(a.Priority)
			a.Cost = roundCents(a.Cost)
			day.Activities = append(day.Activities, a)
		}
		out.Days = mergeDay(out.Days, day)
	}

	// Booked entries survive a regeneration untouched.
	out.Accommodations = lo.Filter(st.plan.Accommodations, func(a domain.Accommodation, _ int) bool { return a.Booked })
	out.Transportation = lo.Filter(st.plan.Transportation, func(t domain.TransportLeg, _ int) bool { return t.Booked })

	for _, a := range gen.Accommodations {
		if err := validateStay(a); err != nil {
			return "", err
		}
		if !stayWithin(st.trip, a) {
			return "", domain.Conflict(domain.ConflictDateOutOfRange,
				"generated stay %s is outside %s", formatRange(a.CheckIn, a.CheckOut), span)
		}
		out.Accommodations = append(out.Accommodations, st.completeStay(p, a))
	}
	for _, t := range gen.Transportation {
		if err := validateLeg(t); err != nil {
			return "", err
		}
		if !st.trip.Contains(t.Departure) {
			return "", domain.Conflict(domain.ConflictDateOutOfRange,
				"generated %s on %s is outside %s", t.Type, formatDate(t.Departure), span)
		}
		out.Transportation = append(out.Transportation, st.completeLeg(p, t))
	}

	st.plan = out
	return fmt.Sprintf("regenerated itinerary with %d days", len(out.Days)), nil
}

func (st *state) completeStay(p domain.EditProposal, a domain.Accommodation) domain.Accommodation {
	if a.ID == "" {
		a.ID = st.newID(p, "acc")
	}
	a.CheckIn = domain.DateOf(a.CheckIn)
	a.CheckOut = domain.DateOf(a.CheckOut)
	a.Type = oneOf(a.Type, domain.StayHotel, stayTypes)
	a.Priority = defaultPriority(a.Priority)
	if a.TotalCost == 0 {
		a.TotalCost = a.CostPerNight * float64(a.Nights())
	}
	a.TotalCost = roundCents(a.TotalCost)
	return a
}

func (st *state) completeLeg(p domain.EditProposal, t domain.TransportLeg) domain.TransportLeg {
	if t.ID == "" {
		t.ID = st.newID(p, "trn")
	}
	if t.Arrival.IsZero() {
		t.Arrival = t.Departure
	}
	t.Type = oneOf(t.Type, domain.TransportOther, transportTypes)
	t.Priority = defaultPriority(t.Priority)
	t.Cost = roundCents(t.Cost)
	return t
}

func validateStay(a domain.Accommodation) error {
	switch {
	case strings.TrimSpace(a.Name) == "":
		return fmt.Errorf("%w: accommodation name is required", domain.ErrValidation)
	case a.CheckIn.IsZero() || a.CheckOut.IsZero():
		return fmt.Errorf("%w: check-in and check-out dates are required", domain.ErrValidation)
	case !domain.DateOf(a.CheckOut).After(domain.DateOf(a.CheckIn)):
		return fmt.Errorf("%w: check-out must be after check-in", domain.ErrValidation)
	case a.CostPerNight < 0 || a.TotalCost < 0:
		return fmt.Errorf("%w: accommodation cost must not be negative", domain.ErrValidation)
	}
	return nil
}

func validateLeg(t domain.TransportLeg) error {
	switch {
	case t.Departure.IsZero():
		return fmt.Errorf("%w: departure time is required", domain.ErrValidation)
	case !t.Arrival.IsZero() && t.Arrival.Before(t.Departure):
		return fmt.Errorf("%w: arrival must not be before departure", domain.ErrValidation)
	case t.Cost < 0:
		return fmt.Errorf("%w: transport cost must not be negative", domain.ErrValidation)
	}
	return nil
}

// stayWithin reports whether the whole stay lies inside the trip's dates.
func stayWithin(trip domain.Trip, a domain.Accommodation) bool {
	return trip.Contains(a.CheckIn) && trip.Contains(a.CheckOut)
}

// normalize orders days, stays, and legs chronologically, renumbers days from
// the trip start, and replaces nil slices with empty ones.
func normalize(trip domain.Trip, plan domain.Plan) domain.Plan {
	start := domain.DateOf(trip.StartDate)
	slices.SortStableFunc(plan.Days, func(a, b domain.DayPlan) int { return a.Date.Compare(b.Date) })
	for i := range plan.Days {
		plan.Days[i].Day = int(plan.Days[i].Date.Sub(start).Hours()/24) + 1
		if plan.Days[i].Activities == nil {
			plan.Days[i].Activities = []domain.Activity{}
		}
		slices.SortStableFunc(plan.Days[i].Activities, func(a, b domain.Activity) int {
			return strings.Compare(timeKey(a.StartTime), timeKey(b.StartTime))
		})
	}
	slices.SortStableFunc(plan.Accommodations, func(a, b domain.Accommodation) int { return a.CheckIn.Compare(b.CheckIn) })
	slices.SortStableFunc(plan.Transportation, func(a, b domain.TransportLeg) int { return a.Departure.Compare(b.Departure) })
	if plan.Days == nil {
		plan.Days = []domain.DayPlan{}
	}
	if plan.Accommodations == nil {
		plan.Accommodations = []domain.Accommodation{}
	}
	if plan.Transportation == nil {
		plan.Transportation = []domain.TransportLeg{}
	}
	return plan
}

// timeKey sorts untimed activities after timed ones.
func timeKey(hhmm string) string {
	if hhmm == "" {
		return "~"
	}
	return hhmm
}

func mergeDay(days []domain.DayPlan, day domain.DayPlan) []domain.DayPlan {
	for i := range days {
		if days[i].Date.Equal(day.Date) {
			days[i].Activities = append(days[i].Activities, day.Activities...)
			if days[i].Notes == "" {
				days[i].Notes = day.Notes
			}
			return days
		}
	}
	return append(days, day)
}

// clonePlan deep-copies the slices of a plan so edits never alias a
// published version.
func clonePlan(p domain.Plan) domain.Plan {
	out := domain.Plan{
		Days:           make([]domain.DayPlan, len(p.Days)),
		Accommodations: slices.Clone(p.Accommodations),
		Transportation: slices.Clone(p.Transportation),
	}
	for i, d := range p.Days {
		d.Activities = slices.Clone(d.Activities)
		out.Days[i] = d
	}
	return out
}

var (
	activityCategories = []string{
		domain.CategoryAttraction, domain.CategoryExperience, domain.CategoryLeisure,
		domain.CategoryShopping, domain.CategoryDining, domain.CategoryOther,
	}
	stayTypes = []string{
		domain.StayHotel, domain.StayHostel, domain.StayAirbnb, domain.StayResort, domain.StayOther,
	}
	transportTypes = []string{
		domain.TransportFlight, domain.TransportTrain, domain.TransportBus,
		domain.TransportCar, domain.TransportTaxi, domain.TransportWalk, domain.TransportOther,
	}
)

// oneOf lower-cases v and returns it when allowed, fallback otherwise.
func oneOf(v, fallback string, allowed []string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	if lo.Contains(allowed, v) {
		return v
	}
	return fallback
}

func defaultPriority(p int) int {
	if p <= 0 {
		return 1
	}
	return p
}

func containsFold(s, substr string) bool {
	return substr != "" && strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func formatDate(t time.Time) string {
	return t.Format("2006-01-02")
}

func formatRange(start, end time.Time) string {
	return formatDate(start) + " to " + formatDate(end)
}
