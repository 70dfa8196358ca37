package domain

import (
	"time"

	"github.com/google/uuid"
)

// Location is a named place, optionally geocoded.
type Location struct {
	Name    string  `json:"name"`
	Address string  `json:"address,omitempty"`
	Lat     float64 `json:"lat,omitempty"`
	Lng     float64 `json:"lng,omitempty"`
}

// HasCoordinates reports whether the location carries a usable lat/lng pair.
func (l Location) HasCoordinates() bool {
	return l.Lat != 0 || l.Lng != 0
}

// Activity is a single planned item on a day.
// Priority orders entries for budget trimming: higher is more important.
type Activity struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Description     string   `json:"description,omitempty"`
	Location        Location `json:"location"`
	StartTime       string   `json:"startTime,omitempty"` // "HH:MM"
	EndTime         string   `json:"endTime,omitempty"`   // "HH:MM"
	Cost            float64  `json:"cost"`
	Category        string   `json:"category"`
	Priority        int      `json:"priority"`
	BookingRequired bool     `json:"bookingRequired"`
}

// DayPlan groups the activities of one calendar day.
// Day is the 1-based offset of Date from the trip start.
type DayPlan struct {
	Day        int        `json:"day"`
	Date       time.Time  `json:"date"`
	Activities []Activity `json:"activities"`
	Notes      string     `json:"notes,omitempty"`
}

// Accommodation is a stay between CheckIn and CheckOut.
// A Booked accommodation is never dropped or moved by the reconciler.
type Accommodation struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Type         string    `json:"type"`
	Location     Location  `json:"location"`
	CheckIn      time.Time `json:"checkIn"`
	CheckOut     time.Time `json:"checkOut"`
	CostPerNight float64   `json:"costPerNight"`
	TotalCost    float64   `json:"totalCost"`
	Priority     int       `json:"priority"`
	Booked       bool      `json:"booked"`
}

// Nights returns the number of nights between check-in and check-out.
func (a Accommodation) Nights() int {
	return int(DateOf(a.CheckOut).Sub(DateOf(a.CheckIn)).Hours() / 24)
}

// TransportLeg is a single movement between two locations.
type TransportLeg struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	From      Location  `json:"from"`
	To        Location  `json:"to"`
	Departure time.Time `json:"departure"`
	Arrival   time.Time `json:"arrival"`
	Cost      float64   `json:"cost"`
	Priority  int       `json:"priority"`
	Booked    bool      `json:"booked"`
}

// Plan is the mutable body of an itinerary: days, stays, and legs.
// It is also the payload a ProposalGenerator fills for a regeneration.
type Plan struct {
	Days           []DayPlan       `json:"days"`
	Accommodations []Accommodation `json:"accommodations"`
	Transportation []TransportLeg  `json:"transportation"`
}

// ItineraryVersion is an immutable snapshot of a trip's plan.
// Versions are appended, never updated; TotalCost is always derived from the plan.
type ItineraryVersion struct {
	TripID       uuid.UUID
	Version      int
	Plan         Plan
	TotalCost    float64
	OverBudget   bool
	ProposalID   *uuid.UUID
	ProposalKind ProposalKind
	Summary      string
	CreatedAt    time.Time
}

// VersionSummary is a lightweight view of a version for history listings.
type VersionSummary struct {
	Version      int
	TotalCost    float64
	OverBudget   bool
	ProposalKind ProposalKind
	Summary      string
	CreatedAt    time.Time
}

// Summarize returns the history view of v.
func (v ItineraryVersion) Summarize() VersionSummary {
	return VersionSummary{
		Version:      v.Version,
		TotalCost:    v.TotalCost,
		OverBudget:   v.OverBudget,
		ProposalKind: v.ProposalKind,
		Summary:      v.Summary,
		CreatedAt:    v.CreatedAt,
	}
}

// Activity categories.
const (
	CategoryAttraction = "attraction"
	CategoryExperience = "experience"
	CategoryLeisure    = "leisure"
	CategoryShopping   = "shopping"
	CategoryDining     = "dining"
	CategoryOther      = "other"
)

// Accommodation types.
const (
	StayHotel  = "hotel"
	StayHostel = "hostel"
	StayAirbnb = "airbnb"
	StayResort = "resort"
	StayOther  = "other"
)

// Transport types.
const (
	TransportFlight = "flight"
	TransportTrain  = "train"
	TransportBus    = "bus"
	TransportCar    = "car"
	TransportTaxi   = "taxi"
	TransportWalk   = "walk"
	TransportOther  = "other"
)
