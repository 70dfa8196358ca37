// Package interpreter turns the tail of a chat session into at most one
// EditProposal plus a reply draft. Rules is the offline default; ChatModel and
// OpenAI delegate to a language model and parse its JSON answer.
package interpreter

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/pkordes/dreamtrip/backend/internal/domain"
)

// Rules interprets a small English command grammar with regular expressions.
// It never calls out of process and never fails on unrecognised input: it
// answers with a clarifying reply and suggestions instead.
type Rules struct {
	now func() time.Time
}

// NewRules returns the rule-based interpreter.
func NewRules() *Rules {
	return &Rules{now: time.Now}
}

const (
	monthPat  = `jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|june?|july?|aug(?:ust)?|sep(?:t(?:ember)?)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?`
	datePat   = `(?:\d{4}-\d{2}-\d{2}|(?:` + monthPat + `)\.?\s+\d{1,2}(?:st|nd|rd|th)?|\d{1,2}(?:st|nd|rd|th)?\s+(?:of\s+)?(?:` + monthPat + `)|day\s+\d{1,2})`
	amountPat = `\d{1,3}(?:,\d{3})+(?:\.\d{1,2})?|\d+(?:\.\d{1,2})?`
	placePat  = `[a-z][a-z .'\-]*?`
	placeEnd  = `(?:\s+on\b|\s+costing\b|\s+for\b|\s+at\b|\s+departing\b|[,.!?]|$)`
)

var (
	dateRe     = regexp.MustCompile(`(?i)\b` + datePat + `\b`)
	isoRe      = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	dayNumRe   = regexp.MustCompile(`(?i)^day\s+(\d{1,2})$`)
	monthRe    = regexp.MustCompile(`(?i)` + monthPat)
	numRe      = regexp.MustCompile(`\d{1,2}`)
	costRe     = regexp.MustCompile(`(?i)(?:\bcost(?:s|ing)?\b|\bpriced at\b|\bprice of\b)\s+(?:of\s+|about\s+|around\s+)?[€$£]?\s*(` + amountPat + `)|[€$£]\s*(` + amountPat + `)|(` + amountPat + `)\s*(?:€|\beur(?:os?)?\b|\busd\b|\bdollars?\b)`)
	freeRe     = regexp.MustCompile(`(?i)\bfree\b`)
	nightlyRe  = regexp.MustCompile(`(?i)[€$£]?\s*(` + amountPat + `)\s*(?:€|eur(?:os?)?|usd|dollars?)?\s*(?:per|a|/)\s*night`)
	timeRe     = regexp.MustCompile(`(?i)\bat\s+(\d{1,2})(?::(\d{2}))?\s*(am|pm)?\b`)
	forceRe    = regexp.MustCompile(`(?i)\b(?:anyway|force|trim|drop (?:what|whatever|stuff|things)|cut (?:what|whatever)|recompute|even if)\b`)
	quotedRe   = regexp.MustCompile(`"([^"]+)"|“([^”]+)”`)
	namedRe    = regexp.MustCompile(`(?i)\b(?:called|named)\s+([a-z0-9][\w'\- ]*?)(?:\s+(?:from|on|for|at|costing)\b|[,.!?]|$)`)
	priorityRe = regexp.MustCompile(`(?i)\b(?:must[- ]see|must[- ]do|important|essential|top priority|priority)\b`)

	regenerateRe = regexp.MustCompile(`(?i)\b(?:re-?generate|re-?plan|start over|from scratch|new itinerary|rebuild the (?:plan|itinerary)|plan (?:it|everything|the trip) again)\b`)
	budgetRe     = regexp.MustCompile(`(?i)\b(?:set|change|update|lower|raise|reduce|increase|make|cut|drop)\b.*?\bbudget\b\D*?(` + amountPat + `)`)
	moodRe       = regexp.MustCompile(`(?i)\b(?:set|change|make|switch)\s+(?:the\s+|my\s+)?(?:trip\s+)?(?:mood|vibe)\s+(?:to\s+|into\s+)?([a-z][a-z\- ]*?)[.!?]*$|\bi(?:'m| am) feeling\s+([a-z][a-z\-]*)`)
	statusRe     = regexp.MustCompile(`(?i)\b(?:mark|set|move)\s+(?:the\s+|my\s+)?trip\s+(?:as\s+|to\s+)?(planning|confirmed|ongoing|completed)\b|\b(confirm)\s+(?:the\s+|my\s+)?trip\b`)
	datesRe      = regexp.MustCompile(`(?i)\b(?:move|change|set|shift|reschedule|make)\b.*?\b(?:trip|dates?)\b.*?(` + datePat + `)\s*(?:-|–|to|until|through|till)\s*(` + datePat + `)`)
	transportRe  = regexp.MustCompile(`(?i)\b(?:add|book|take|get|catch|schedule)\b.*?\b(flight|fly|train|bus|car|taxi|drive|cab)\b.*?\bfrom\s+(` + placePat + `)\s+to\s+(` + placePat + `)` + placeEnd)
	stayRe       = regexp.MustCompile(`(?i)\b(?:add|book|reserve|stay)\b.*?\b(hotel|hostel|airbnb|resort|apartment|guesthouse)\b`)
	removeRe     = regexp.MustCompile(`(?i)^(?:please\s+)?(?:remove|delete|cancel|drop|skip)\s+(?:the\s+|my\s+)?(.+?)(?:\s+on\s+(` + datePat + `))?(?:\s+from\s+(?:the\s+|my\s+)?(?:itinerary|plan|trip|schedule))?[.!?]*$`)
	activityRe   = regexp.MustCompile(`(?i)\b(?:add|schedule|include|plan|book|put)\s+(?:in\s+)?(?:a\s+|an\s+|the\s+|some\s+)?(.+?)\s+(?:on|for)\s+(` + datePat + `)`)
	nameCutRe    = regexp.MustCompile(`(?i)\s+(?:costing|costs?|priced|for\s+[€$£]?\d|at\s+\d|,).*$`)
)

// Interpret implements the interpreter contract over the newest user message.
func (r *Rules) Interpret(ctx context.Context, req domain.InterpretRequest) (domain.Interpretation, error) {
	if err := ctx.Err(); err != nil {
		return domain.Interpretation{}, classify(ctx, err)
	}
	u, ok := r.utterance(req)
	if !ok {
		return clarify(req.Trip), nil
	}
	for _, rule := range []func(utterance) (domain.Interpretation, bool){
		ruleRegenerate, ruleBudget, ruleMood, ruleStatus, ruleDates,
		ruleTransport, ruleStay, ruleRemove, ruleActivity,
	} {
		if in, ok := rule(u); ok {
			return in, nil
		}
	}
	return clarify(req.Trip), nil
}

// utterance is the newest user message plus what is needed to resolve
// relative references in it.
type utterance struct {
	text string
	trip *domain.Trip
	ref  time.Time
}

func (r *Rules) utterance(req domain.InterpretRequest) (utterance, bool) {
	for i := len(req.History) - 1; i >= 0; i-- {
		m := req.History[i]
		if m.Role != domain.RoleUser {
			continue
		}
		text := strings.TrimSpace(m.Text)
		if text == "" {
			return utterance{}, false
		}
		ref := m.Timestamp
		if req.Trip != nil {
			ref = req.Trip.StartDate
		}
		if ref.IsZero() {
			ref = r.now()
		}
		return utterance{text: text, trip: req.Trip, ref: ref}, true
	}
	return utterance{}, false
}

func ruleRegenerate(u utterance) (domain.Interpretation, bool) {
	if !regenerateRe.MatchString(u.text) {
		return domain.Interpretation{}, false
	}
	return propose(domain.EditProposal{Kind: domain.KindRegenerateItinerary},
		"I'll rebuild the itinerary from scratch and keep anything already booked."), true
}

func ruleBudget(u utterance) (domain.Interpretation, bool) {
	m := budgetRe.FindStringSubmatch(u.text)
	if m == nil {
		return domain.Interpretation{}, false
	}
	amount, ok := parseAmount(m[1])
	if !ok {
		return domain.Interpretation{}, false
	}
	p := domain.EditProposal{
		Kind:           domain.KindSetBudget,
		Budget:         &amount,
		ForceRecompute: forceRe.MatchString(u.text),
	}
	reply := fmt.Sprintf("I'll set the budget to %s.", money(amount))
	if p.ForceRecompute {
		reply = fmt.Sprintf("I'll set the budget to %s and trim lower-priority plans to fit.", money(amount))
	}
	return propose(p, reply), true
}

func ruleMood(u utterance) (domain.Interpretation, bool) {
	m := moodRe.FindStringSubmatch(u.text)
	if m == nil {
		return domain.Interpretation{}, false
	}
	mood := strings.TrimSpace(firstNonEmpty(m[1:]...))
	if mood == "" {
		return domain.Interpretation{}, false
	}
	mood = strings.ToLower(mood)
	return propose(domain.EditProposal{Kind: domain.KindSetMood, Mood: &mood},
		fmt.Sprintf("I'll switch the trip mood to %s.", mood)), true
}

func ruleStatus(u utterance) (domain.Interpretation, bool) {
	m := statusRe.FindStringSubmatch(u.text)
	if m == nil {
		return domain.Interpretation{}, false
	}
	status := domain.TripStatus(strings.ToLower(m[1]))
	if m[2] != "" {
		status = domain.StatusConfirmed
	}
	return propose(domain.EditProposal{Kind: domain.KindSetStatus, Status: &status},
		fmt.Sprintf("I'll mark the trip as %s.", status)), true
}

func ruleDates(u utterance) (domain.Interpretation, bool) {
	m := datesRe.FindStringSubmatch(u.text)
	if m == nil {
		return domain.Interpretation{}, false
	}
	start, ok1 := u.parseDate(m[1])
	end, ok2 := u.parseDate(m[2])
	if !ok1 || !ok2 {
		return domain.Interpretation{}, false
	}
	if end.Before(start) && end.Month() < start.Month() {
		end = end.AddDate(1, 0, 0)
	}
	p := domain.EditProposal{
		Kind:           domain.KindSetDates,
		Dates:          &domain.DateRange{Start: start, End: end},
		ForceRecompute: forceRe.MatchString(u.text),
	}
	return propose(p, fmt.Sprintf("I'll move the trip to %s through %s.", humanDate(start), humanDate(end))), true
}

func ruleTransport(u utterance) (domain.Interpretation, bool) {
	m := transportRe.FindStringSubmatch(u.text)
	if m == nil {
		return domain.Interpretation{}, false
	}
	kind := normalizeTransport(m[1])
	from, to := strings.TrimSpace(m[2]), strings.TrimSpace(m[3])

	dates := u.dates()
	if len(dates) == 0 {
		return domain.Interpretation{
			Reply:       fmt.Sprintf("Which day should the %s from %s to %s leave?", kind, from, to),
			Suggestions: []string{fmt.Sprintf("Add a %s from %s to %s on day 2", kind, from, to)},
		}, true
	}
	dep := dates[0]
	if h, mm, ok := u.clock(); ok {
		dep = dep.Add(time.Duration(h)*time.Hour + time.Duration(mm)*time.Minute)
	}
	leg := &domain.TransportLeg{
		Type:      kind,
		From:      domain.Location{Name: titleCase(from)},
		To:        domain.Location{Name: titleCase(to)},
		Departure: dep,
	}
	if c, ok := u.cost(); ok {
		leg.Cost = c
	}
	return propose(domain.EditProposal{Kind: domain.KindAddTransport, Transport: leg},
		fmt.Sprintf("I'll add a %s from %s to %s on %s.", kind, leg.From.Name, leg.To.Name, humanDate(dates[0]))), true
}

func ruleStay(u utterance) (domain.Interpretation, bool) {
	m := stayRe.FindStringSubmatch(u.text)
	if m == nil {
		return domain.Interpretation{}, false
	}
	kind := strings.ToLower(m[1])
	switch kind {
	case "apartment":
		kind = domain.StayAirbnb
	case "guesthouse":
		kind = domain.StayOther
	}

	dates := u.dates()
	if len(dates) < 2 {
		return domain.Interpretation{
			Reply:       fmt.Sprintf("Which nights should I book the %s for?", kind),
			Suggestions: []string{fmt.Sprintf("Book a %s from day 1 to day 3 at 120 per night", kind)},
		}, true
	}

	stay := &domain.Accommodation{
		Name:     u.stayName(kind),
		Type:     kind,
		CheckIn:  dates[0],
		CheckOut: dates[1],
	}
	if nm := nightlyRe.FindStringSubmatch(u.text); nm != nil {
		stay.CostPerNight, _ = parseAmount(nm[1])
	} else if c, ok := u.cost(); ok {
		stay.TotalCost = c
	}
	return propose(domain.EditProposal{Kind: domain.KindAddAccommodation, Accommodation: stay},
		fmt.Sprintf("I'll add %s from %s to %s.", stay.Name, humanDate(stay.CheckIn), humanDate(stay.CheckOut))), true
}

func ruleRemove(u utterance) (domain.Interpretation, bool) {
	m := removeRe.FindStringSubmatch(u.text)
	if m == nil {
		return domain.Interpretation{}, false
	}
	ref := &domain.ActivityRef{Name: strings.TrimSpace(m[1])}
	if m[2] != "" {
		if d, ok := u.parseDate(m[2]); ok {
			ref.Date = &d
		}
	}
	if ref.Name == "" {
		return domain.Interpretation{}, false
	}
	return propose(domain.EditProposal{Kind: domain.KindRemoveDayActivity, Remove: ref},
		fmt.Sprintf("I'll take %s off the plan.", ref.Name)), true
}

func ruleActivity(u utterance) (domain.Interpretation, bool) {
	m := activityRe.FindStringSubmatch(u.text)
	if m == nil {
		return domain.Interpretation{}, false
	}
	date, ok := u.parseDate(m[2])
	if !ok {
		return domain.Interpretation{}, false
	}
	name := strings.TrimSpace(nameCutRe.ReplaceAllString(m[1], ""))
	if name == "" {
		return domain.Interpretation{}, false
	}
	draft := &domain.ActivityDraft{
		Date:     date,
		Name:     capitalize(name),
		Category: guessCategory(name),
	}
	if c, ok := u.cost(); ok {
		draft.Cost = &c
	}
	if h, mm, ok := u.clock(); ok {
		draft.StartTime = fmt.Sprintf("%02d:%02d", h, mm)
	}
	if priorityRe.MatchString(u.text) {
		draft.Priority = 5
	}
	if u.trip != nil {
		draft.Location = domain.Location{Name: u.trip.Destination}
	}

	reply := fmt.Sprintf("I'll add %s on %s", draft.Name, humanDate(date))
	if draft.Cost != nil {
		reply += " for " + money(*draft.Cost)
	}
	return propose(domain.EditProposal{Kind: domain.KindAddDayActivity, Activity: draft}, reply+"."), true
}

func propose(p domain.EditProposal, reply string) domain.Interpretation {
	return domain.Interpretation{Proposal: &p, Reply: reply}
}

func clarify(trip *domain.Trip) domain.Interpretation {
	in := domain.Interpretation{
		Reply: "I'm not sure what to change. Could you say it another way?",
		Suggestions: []string{
			"Add a museum visit on day 2 costing 20",
			"Set the budget to 1500",
			"Regenerate the itinerary",
		},
	}
	if trip == nil {
		in.Reply = "Tell me where and when you'd like to travel, and I'll start planning."
	}
	return in
}

// dates returns every date mentioned in the text, in order.
func (u utterance) dates() []time.Time {
	var out []time.Time
	for _, s := range dateRe.FindAllString(u.text, -1) {
		if d, ok := u.parseDate(s); ok {
			out = append(out, d)
		}
	}
	return out
}

// parseDate resolves "2025-06-02", "June 2", "2nd of June", and "day 2".
// Month-day dates take the year of the trip, or the following year when
// that keeps them inside a trip that spans new year.
func (u utterance) parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if isoRe.MatchString(s) {
		d, err := time.Parse(time.DateOnly, s)
		return d, err == nil
	}
	if m := dayNumRe.FindStringSubmatch(s); m != nil {
		if u.trip == nil {
			return time.Time{}, false
		}
		n, _ := strconv.Atoi(m[1])
		if n < 1 {
			return time.Time{}, false
		}
		return domain.DateOf(u.trip.StartDate).AddDate(0, 0, n-1), true
	}

	mon := monthRe.FindString(s)
	num := numRe.FindString(s)
	if mon == "" || num == "" {
		return time.Time{}, false
	}
	month, ok := months[strings.ToLower(mon)[:3]]
	if !ok {
		return time.Time{}, false
	}
	day, _ := strconv.Atoi(num)
	d := time.Date(u.ref.Year(), month, day, 0, 0, 0, 0, time.UTC)
	if d.Day() != day {
		return time.Time{}, false
	}
	if u.trip != nil && d.Before(domain.DateOf(u.trip.StartDate)) {
		if next := d.AddDate(1, 0, 0); u.trip.Contains(next) {
			return next, true
		}
	}
	return d, true
}

func (u utterance) cost() (float64, bool) {
	if m := costRe.FindStringSubmatch(u.text); m != nil {
		return parseAmount(firstNonEmpty(m[1:]...))
	}
	if freeRe.MatchString(u.text) {
		return 0, true
	}
	return 0, false
}

func (u utterance) clock() (int, int, bool) {
	m := timeRe.FindStringSubmatch(u.text)
	if m == nil {
		return 0, 0, false
	}
	h, _ := strconv.Atoi(m[1])
	mm, _ := strconv.Atoi(m[2])
	switch strings.ToLower(m[3]) {
	case "pm":
		if h < 12 {
			h += 12
		}
	case "am":
		if h == 12 {
			h = 0
		}
	}
	if h > 23 || mm > 59 {
		return 0, 0, false
	}
	return h, mm, true
}

func (u utterance) stayName(kind string) string {
	if m := quotedRe.FindStringSubmatch(u.text); m != nil {
		return strings.TrimSpace(firstNonEmpty(m[1:]...))
	}
	if m := namedRe.FindStringSubmatch(u.text); m != nil {
		return titleCase(strings.TrimSpace(m[1]))
	}
	name := capitalize(kind)
	if u.trip != nil && u.trip.Destination != "" {
		name += " in " + u.trip.Destination
	}
	return name
}

var months = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March, "apr": time.April,
	"may": time.May, "jun": time.June, "jul": time.July, "aug": time.August,
	"sep": time.September, "oct": time.October, "nov": time.November, "dec": time.December,
}

func normalizeTransport(s string) string {
	switch s = strings.ToLower(s); s {
	case "fly":
		return domain.TransportFlight
	case "drive":
		return domain.TransportCar
	case "cab":
		return domain.TransportTaxi
	}
	return s
}

var categoryWords = []struct {
	category string
	words    []string
}{
	{domain.CategoryDining, []string{"dinner", "lunch", "breakfast", "brunch", "restaurant", "cafe", "café", "food", "tasting", "wine", "pastel"}},
	{domain.CategoryAttraction, []string{"museum", "monument", "castle", "tower", "palace", "cathedral", "church", "gallery", "monastery", "viewpoint"}},
	{domain.CategoryExperience, []string{"tour", "class", "cruise", "show", "concert", "fado", "workshop", "tram", "hike"}},
	{domain.CategoryLeisure, []string{"beach", "park", "spa", "relax", "garden", "pool"}},
	{domain.CategoryShopping, []string{"market", "shopping", "mall", "boutique", "souvenir"}},
}

func guessCategory(name string) string {
	lower := strings.ToLower(name)
	for _, c := range categoryWords {
		for _, w := range c.words {
			if strings.Contains(lower, w) {
				return c.category
			}
		}
	}
	return domain.CategoryOther
}

func parseAmount(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}

func firstNonEmpty(ss ...string) string {
	for _, s := range ss {
		if s != "" {
			return s
		}
	}
	return ""
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + s[size:]
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = capitalize(w)
	}
	return strings.Join(words, " ")
}

func humanDate(t time.Time) string {
	return t.Format("January 2")
}

func money(v float64) string {
	if v == float64(int64(v)) {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}
