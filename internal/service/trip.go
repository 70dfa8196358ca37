// Package service contains the business logic for the DreamTrip API.
// Services validate inputs, enforce business rules, and orchestrate repo calls.
// No SQL lives here; services depend on repo interfaces, not implementations.
//
// Every change to a trip or its itinerary goes through the Reconciler, which
// serializes edits per trip and commits each one as a new immutable version.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pkordes/dreamtrip/backend/internal/domain"
	"github.com/pkordes/dreamtrip/backend/internal/repo"
	"github.com/pkordes/dreamtrip/backend/internal/triplock"
)

// TripPatch is a partial update of a trip's editable fields.
// BaseVersion, when set, is the version the caller last saw; the update is
// rejected as stale if the trip has moved on.
type TripPatch struct {
	BaseVersion    *int
	StartDate      *time.Time
	EndDate        *time.Time
	Budget         *float64
	Mood           *string
	Status         *domain.TripStatus
	ForceRecompute bool
}

// TripService implements business logic for Trip operations.
type TripService struct {
	trips    repo.TripRepo
	versions repo.ItineraryRepo
	rec      *Reconciler
	heads    *Heads
	locks    triplock.Locker
}

// NewTripService constructs a TripService. locks must be the Locker the
// reconciler uses so deletes never interleave with a commit.
func NewTripService(trips repo.TripRepo, versions repo.ItineraryRepo, rec *Reconciler, heads *Heads, locks triplock.Locker) *TripService {
	return &TripService{trips: trips, versions: versions, rec: rec, heads: heads, locks: locks}
}

// GetByID returns a single trip by ID.
func (s *TripService) GetByID(ctx context.Context, id uuid.UUID) (domain.Trip, error) {
	trip, err := s.trips.GetByID(ctx, id)
	if err != nil {
		return domain.Trip{}, fmt.Errorf("service.TripService.GetByID: %w", err)
	}
	return trip, nil
}

// List returns one page of an owner's trips and the owner's total count.
// Always returns a non-nil slice so callers can safely range over it.
func (s *TripService) List(ctx context.Context, ownerID string, p domain.PaginationParams) ([]domain.Trip, int64, error) {
	trips, total, err := s.trips.ListByOwner(ctx, ownerID, p)
	if err != nil {
		return nil, 0, fmt.Errorf("service.TripService.List: %w", err)
	}
	if trips == nil {
		trips = []domain.Trip{}
	}
	return trips, total, nil
}

// Update turns patch into edit proposals and commits them as one version.
// Returns domain.ErrValidation when the patch is empty or malformed and a
// *domain.ConflictError when the reconciler rejects it.
func (s *TripService) Update(ctx context.Context, id uuid.UUID, patch TripPatch) (Snapshot, error) {
	trip, err := s.trips.GetByID(ctx, id)
	if err != nil {
		return Snapshot{}, fmt.Errorf("service.TripService.Update: %w", err)
	}

	base := trip.CurrentVersion
	if patch.BaseVersion != nil {
		base = *patch.BaseVersion
	}

	proposals := patchProposals(trip, patch)
	if len(proposals) == 0 {
		return Snapshot{}, fmt.Errorf("%w: no editable fields in update", domain.ErrValidation)
	}
	for i := range proposals {
		proposals[i].ID = uuid.New()
		proposals[i].BaseVersion = base
		proposals[i].ForceRecompute = patch.ForceRecompute
	}

	snap, err := s.rec.SubmitBatch(ctx, id, base, proposals)
	if err != nil {
		return Snapshot{}, fmt.Errorf("service.TripService.Update: %w", err)
	}
	return snap, nil
}

// patchProposals maps each changed field to the proposal kind that edits it.
func patchProposals(trip domain.Trip, patch TripPatch) []domain.EditProposal {
	var out []domain.EditProposal
	if patch.StartDate != nil || patch.EndDate != nil {
		r := domain.DateRange{Start: trip.StartDate, End: trip.EndDate}
		if patch.StartDate != nil {
			r.Start = *patch.StartDate
		}
		if patch.EndDate != nil {
			r.End = *patch.EndDate
		}
		out = append(out, domain.EditProposal{Kind: domain.KindSetDates, Dates: &r})
	}
	if patch.Budget != nil {
		out = append(out, domain.EditProposal{Kind: domain.KindSetBudget, Budget: patch.Budget})
	}
	if patch.Mood != nil {
		out = append(out, domain.EditProposal{Kind: domain.KindSetMood, Mood: patch.Mood})
	}
	if patch.Status != nil {
		out = append(out, domain.EditProposal{Kind: domain.KindSetStatus, Status: patch.Status})
	}
	return out
}

// Delete removes a trip and its versions. It waits for any in-flight edit
// of the trip to finish first.
func (s *TripService) Delete(ctx context.Context, id uuid.UUID) error {
	unlock, err := s.locks.Lock(ctx, id.String())
	if err != nil {
		return fmt.Errorf("service.TripService.Delete: %w: %w", domain.ErrPersistence, err)
	}
	defer unlock()

	if err := s.trips.Delete(ctx, id); err != nil {
		return fmt.Errorf("service.TripService.Delete: %w", err)
	}
	s.heads.Delete(id)
	return nil
}

// Versions returns the trip's version history, newest first.
func (s *TripService) Versions(ctx context.Context, id uuid.UUID) ([]domain.VersionSummary, error) {
	if _, err := s.trips.GetByID(ctx, id); err != nil {
		return nil, fmt.Errorf("service.TripService.Versions: %w", err)
	}
	out, err := s.versions.ListVersions(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service.TripService.Versions: %w", err)
	}
	return out, nil
}

// Version returns one historical version of the trip's itinerary.
func (s *TripService) Version(ctx context.Context, id uuid.UUID, version int) (domain.ItineraryVersion, error) {
	if version < 0 {
		return domain.ItineraryVersion{}, fmt.Errorf("%w: version must not be negative", domain.ErrValidation)
	}
	v, err := s.versions.GetVersion(ctx, id, version)
	if err != nil {
		return domain.ItineraryVersion{}, fmt.Errorf("service.TripService.Version: %w", err)
	}
	return v, nil
}
