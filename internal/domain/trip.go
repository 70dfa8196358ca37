// Package domain contains the core data types for the DreamTrip API.
// This package has no dependencies on other internal packages and is imported
// by every other internal package (itinerary, repo, service, handler).
package domain

import (
	"time"

	"github.com/google/uuid"
)

// TripStatus is the lifecycle state of a trip.
type TripStatus string

const (
	StatusPlanning  TripStatus = "planning"
	StatusConfirmed TripStatus = "confirmed"
	StatusOngoing   TripStatus = "ongoing"
	StatusCompleted TripStatus = "completed"
)

var statusRank = map[TripStatus]int{
	StatusPlanning:  0,
	StatusConfirmed: 1,
	StatusOngoing:   2,
	StatusCompleted: 3,
}

// Valid reports whether s is one of the known lifecycle states.
func (s TripStatus) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

// CanTransitionTo reports whether a trip in status s may move to next.
// Transitions are forward-only; staying in the same status is allowed.
func (s TripStatus) CanTransitionTo(next TripStatus) bool {
	from, ok := statusRank[s]
	if !ok {
		return false
	}
	to, ok := statusRank[next]
	if !ok {
		return false
	}
	return to >= from
}

// Preferences carries the traveller's planning preferences.
type Preferences struct {
	Pace                string   `json:"pace,omitempty"`
	Interests           []string `json:"interests,omitempty"`
	DietaryRestrictions []string `json:"dietaryRestrictions,omitempty"`
	MobilityNeeds       []string `json:"mobilityNeeds,omitempty"`
}

// Trip is the top-level aggregate owned by a user.
// It is mutated only through the edit reconciler; CurrentVersion always points
// at the highest committed ItineraryVersion for the trip.
type Trip struct {
	ID             uuid.UUID
	OwnerID        string
	Destination    string
	StartDate      time.Time
	EndDate        time.Time
	Budget         float64
	Mood           string
	Travelers      int
	Preferences    Preferences
	Status         TripStatus
	CurrentVersion int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Contains reports whether the calendar day of t lies within the trip's date range.
func (t Trip) Contains(d time.Time) bool {
	day := DateOf(d)
	return !day.Before(DateOf(t.StartDate)) && !day.After(DateOf(t.EndDate))
}

// Days returns the number of calendar days covered by the trip, inclusive.
func (t Trip) Days() int {
	return int(DateOf(t.EndDate).Sub(DateOf(t.StartDate)).Hours()/24) + 1
}

// DateOf truncates t to midnight UTC of its calendar day.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
