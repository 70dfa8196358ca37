package domain

import (
	"time"

	"github.com/google/uuid"
)

// ProposalKind names the kind of change an EditProposal requests.
type ProposalKind string

const (
	KindSetDates            ProposalKind = "set_dates"
	KindSetBudget           ProposalKind = "set_budget"
	KindSetMood             ProposalKind = "set_mood"
	KindSetStatus           ProposalKind = "set_status"
	KindAddDayActivity      ProposalKind = "add_day_activity"
	KindRemoveDayActivity   ProposalKind = "remove_day_activity"
	KindAddAccommodation    ProposalKind = "add_accommodation"
	KindAddTransport        ProposalKind = "add_transport"
	KindRegenerateItinerary ProposalKind = "regenerate_itinerary"
	// KindCreate marks the initial empty version written when a trip is created.
	KindCreate ProposalKind = "create"
)

// Valid reports whether k is a kind an EditProposal may carry.
func (k ProposalKind) Valid() bool {
	switch k {
	case KindSetDates, KindSetBudget, KindSetMood, KindSetStatus,
		KindAddDayActivity, KindRemoveDayActivity, KindAddAccommodation,
		KindAddTransport, KindRegenerateItinerary:
		return true
	}
	return false
}

// DateRange is an inclusive pair of calendar days.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// ActivityDraft describes an activity to add. Cost is nil when the requester
// did not state one; the coordinator fills it from the cost estimator before
// the proposal reaches the reconciler.
type ActivityDraft struct {
	Date        time.Time `json:"date"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Location    Location  `json:"location"`
	StartTime   string    `json:"startTime,omitempty"`
	EndTime     string    `json:"endTime,omitempty"`
	Cost        *float64  `json:"cost,omitempty"`
	Category    string    `json:"category,omitempty"`
	Priority    int       `json:"priority,omitempty"`
}

// ActivityRef identifies an activity to remove, by id or by name (optionally on a date).
type ActivityRef struct {
	ID   string     `json:"id,omitempty"`
	Name string     `json:"name,omitempty"`
	Date *time.Time `json:"date,omitempty"`
}

// EditProposal is a structured, single-use description of a requested change.
// Exactly one payload field matching Kind is expected to be set.
// BaseVersion is the itinerary version the proposal was derived against;
// a proposal whose base is no longer current is rejected as stale.
type EditProposal struct {
	ID             uuid.UUID
	Kind           ProposalKind
	BaseVersion    int
	ForceRecompute bool

	Dates          *DateRange
	Budget         *float64
	Mood           *string
	Status         *TripStatus
	Activity       *ActivityDraft
	Remove         *ActivityRef
	Accommodation  *Accommodation
	Transport      *TransportLeg
	Regenerate     *Plan
}
