package interpreter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pkordes/dreamtrip/backend/internal/domain"
)

// modelAnswer is the JSON object a language model is asked to produce.
type modelAnswer struct {
	Reply       string         `json:"reply"`
	Suggestions []string       `json:"suggestions"`
	Proposal    *modelProposal `json:"proposal"`
}

type modelProposal struct {
	Kind           string   `json:"kind"`
	ForceRecompute bool     `json:"forceRecompute"`
	Start          string   `json:"start"`
	End            string   `json:"end"`
	Budget         *float64 `json:"budget"`
	Mood           string   `json:"mood"`
	Status         string   `json:"status"`

	Activity *struct {
		Date        string   `json:"date"`
		Name        string   `json:"name"`
		Description string   `json:"description"`
		Location    string   `json:"location"`
		StartTime   string   `json:"startTime"`
		EndTime     string   `json:"endTime"`
		Cost        *float64 `json:"cost"`
		Category    string   `json:"category"`
		Priority    int      `json:"priority"`
	} `json:"activity"`

	Remove *struct {
		ID   string `json:"id"`
		Name string `json:"name"`
		Date string `json:"date"`
	} `json:"remove"`

	Accommodation *struct {
		Name         string  `json:"name"`
		Type         string  `json:"type"`
		Location     string  `json:"location"`
		CheckIn      string  `json:"checkIn"`
		CheckOut     string  `json:"checkOut"`
		CostPerNight float64 `json:"costPerNight"`
		TotalCost    float64 `json:"totalCost"`
	} `json:"accommodation"`

	Transport *struct {
		Type      string  `json:"type"`
		From      string  `json:"from"`
		To        string  `json:"to"`
		Departure string  `json:"departure"`
		Arrival   string  `json:"arrival"`
		Cost      float64 `json:"cost"`
	} `json:"transport"`
}

// parseAnswer extracts the first JSON object from a model's text output and
// converts it into an Interpretation. Anything unusable is an
// ErrInterpreterFailure.
func parseAnswer(text string) (domain.Interpretation, error) {
	raw, ok := firstObject(text)
	if !ok {
		return domain.Interpretation{}, fmt.Errorf("%w: no JSON object in model output", domain.ErrInterpreterFailure)
	}
	var ans modelAnswer
	if err := json.Unmarshal([]byte(raw), &ans); err != nil {
		return domain.Interpretation{}, fmt.Errorf("%w: decode model output: %v", domain.ErrInterpreterFailure, err)
	}
	in := domain.Interpretation{Reply: strings.TrimSpace(ans.Reply), Suggestions: ans.Suggestions}
	if ans.Proposal == nil || ans.Proposal.Kind == "" {
		return in, nil
	}
	p, err := ans.Proposal.toDomain()
	if err != nil {
		return domain.Interpretation{}, fmt.Errorf("%w: %v", domain.ErrInterpreterFailure, err)
	}
	in.Proposal = &p
	return in, nil
}

func (mp *modelProposal) toDomain() (domain.EditProposal, error) {
	p := domain.EditProposal{
		Kind:           domain.ProposalKind(mp.Kind),
		ForceRecompute: mp.ForceRecompute,
	}
	var err error
	switch p.Kind {
	case domain.KindSetDates:
		var r domain.DateRange
		if r.Start, err = parseWhen(mp.Start); err != nil {
			return p, err
		}
		if r.End, err = parseWhen(mp.End); err != nil {
			return p, err
		}
		p.Dates = &r
	case domain.KindSetBudget:
		if mp.Budget == nil {
			return p, errors.New("set_budget without budget")
		}
		p.Budget = mp.Budget
	case domain.KindSetMood:
		p.Mood = &mp.Mood
	case domain.KindSetStatus:
		s := domain.TripStatus(mp.Status)
		p.Status = &s
	case domain.KindAddDayActivity:
		a := mp.Activity
		if a == nil {
			return p, errors.New("add_day_activity without activity")
		}
		d := &domain.ActivityDraft{
			Name:        a.Name,
			Description: a.Description,
			Location:    domain.Location{Name: a.Location},
			StartTime:   a.StartTime,
			EndTime:     a.EndTime,
			Cost:        a.Cost,
			Category:    a.Category,
			Priority:    a.Priority,
		}
		if d.Date, err = parseWhen(a.Date); err != nil {
			return p, err
		}
		p.Activity = d
	case domain.KindRemoveDayActivity:
		r := mp.Remove
		if r == nil {
			return p, errors.New("remove_day_activity without target")
		}
		ref := &domain.ActivityRef{ID: r.ID, Name: r.Name}
		if r.Date != "" {
			d, err := parseWhen(r.Date)
			if err != nil {
				return p, err
			}
			ref.Date = &d
		}
		p.Remove = ref
	case domain.KindAddAccommodation:
		a := mp.Accommodation
		if a == nil {
			return p, errors.New("add_accommodation without accommodation")
		}
		stay := &domain.Accommodation{
			Name:         a.Name,
			Type:         a.Type,
			Location:     domain.Location{Name: a.Location},
			CostPerNight: a.CostPerNight,
			TotalCost:    a.TotalCost,
		}
		if stay.CheckIn, err = parseWhen(a.CheckIn); err != nil {
			return p, err
		}
		if stay.CheckOut, err = parseWhen(a.CheckOut); err != nil {
			return p, err
		}
		p.Accommodation = stay
	case domain.KindAddTransport:
		t := mp.Transport
		if t == nil {
			return p, errors.New("add_transport without transport")
		}
		leg := &domain.TransportLeg{
			Type: t.Type,
			From: domain.Location{Name: t.From},
			To:   domain.Location{Name: t.To},
			Cost: t.Cost,
		}
		if leg.Departure, err = parseWhen(t.Departure); err != nil {
			return p, err
		}
		if t.Arrival != "" {
			if leg.Arrival, err = parseWhen(t.Arrival); err != nil {
				return p, err
			}
		}
		p.Transport = leg
	case domain.KindRegenerateItinerary:
	default:
		return p, fmt.Errorf("unknown proposal kind %q", mp.Kind)
	}
	return p, nil
}

var whenLayouts = []string{time.DateOnly, "2006-01-02T15:04", "2006-01-02 15:04", time.RFC3339}

func parseWhen(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range whenLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", s)
}

// firstObject returns the first balanced {...} block in s, ignoring braces
// inside JSON strings. Models like to wrap JSON in prose or code fences.
func firstObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth, inString, escaped := 0, false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

// classify maps a failed model call onto the interpreter sentinel errors.
func classify(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", domain.ErrInterpreterTimeout, err)
	}
	return fmt.Errorf("%w: %v", domain.ErrInterpreterFailure, err)
}

const systemInstructions = `You are the planning assistant of a trip itinerary service.
Read the conversation and decide whether the traveller's newest message asks for a change to their trip.
Answer with a single JSON object and nothing else:
{"reply": string, "suggestions": [string], "proposal": null | {
  "kind": "set_dates" | "set_budget" | "set_mood" | "set_status" | "add_day_activity" | "remove_day_activity" | "add_accommodation" | "add_transport" | "regenerate_itinerary",
  "forceRecompute": boolean,
  "start": "YYYY-MM-DD", "end": "YYYY-MM-DD",
  "budget": number, "mood": string, "status": "planning" | "confirmed" | "ongoing" | "completed",
  "activity": {"date": "YYYY-MM-DD", "name": string, "description": string, "location": string, "startTime": "HH:MM", "endTime": "HH:MM", "cost": number, "category": "attraction" | "experience" | "leisure" | "shopping" | "dining" | "other", "priority": integer},
  "remove": {"id": string, "name": string, "date": "YYYY-MM-DD"},
  "accommodation": {"name": string, "type": "hotel" | "hostel" | "airbnb" | "resort" | "other", "location": string, "checkIn": "YYYY-MM-DD", "checkOut": "YYYY-MM-DD", "costPerNight": number, "totalCost": number},
  "transport": {"type": "flight" | "train" | "bus" | "car" | "taxi" | "walk", "from": string, "to": string, "departure": "YYYY-MM-DDTHH:MM", "arrival": "YYYY-MM-DDTHH:MM", "cost": number}
}}
Fill only the fields the chosen kind needs. Propose at most one change. Omit "cost" when the traveller did not state one.
Set forceRecompute only when the traveller explicitly accepts that planned items may be dropped.
Leave "proposal" null when the message is a question or is ambiguous, and ask a clarifying question in "reply".`

// tripContext renders the trip and current itinerary for the system prompt.
func tripContext(req domain.InterpretRequest) string {
	if req.Trip == nil {
		return "The traveller has no trip yet."
	}
	t := req.Trip
	var b strings.Builder
	fmt.Fprintf(&b, "Trip: %s, %s to %s, budget %.2f, mood %q, %d travellers, status %s.\n",
		t.Destination, t.StartDate.Format(time.DateOnly), t.EndDate.Format(time.DateOnly),
		t.Budget, t.Mood, t.Travelers, t.Status)
	if req.Current == nil {
		return b.String()
	}
	v := req.Current
	fmt.Fprintf(&b, "Itinerary version %d, total cost %.2f.\n", v.Version, v.TotalCost)
	for _, d := range v.Plan.Days {
		for _, a := range d.Activities {
			fmt.Fprintf(&b, "- %s [%s] %s (id %s) cost %.2f priority %d\n",
				d.Date.Format(time.DateOnly), a.StartTime, a.Name, a.ID, a.Cost, a.Priority)
		}
	}
	for _, a := range v.Plan.Accommodations {
		fmt.Fprintf(&b, "- stay %s %s to %s total %.2f booked=%t\n",
			a.Name, a.CheckIn.Format(time.DateOnly), a.CheckOut.Format(time.DateOnly), a.TotalCost, a.Booked)
	}
	for _, l := range v.Plan.Transportation {
		fmt.Fprintf(&b, "- %s %s to %s on %s cost %.2f booked=%t\n",
			l.Type, l.From.Name, l.To.Name, l.Departure.Format("2006-01-02T15:04"), l.Cost, l.Booked)
	}
	return b.String()
}
