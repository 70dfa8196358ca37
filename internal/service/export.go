package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/pkordes/dreamtrip/backend/internal/domain"
	"github.com/pkordes/dreamtrip/backend/internal/export"
	"github.com/pkordes/dreamtrip/backend/internal/repo"
)

// ExportService assembles documents from a trip's committed versions.
type ExportService struct {
	trips    repo.TripRepo
	versions repo.ItineraryRepo
	zones    export.ZoneFinder
}

// NewExportService constructs an ExportService. zones may be nil, in which
// case calendars are written in UTC.
func NewExportService(trips repo.TripRepo, versions repo.ItineraryRepo, zones export.ZoneFinder) *ExportService {
	return &ExportService{trips: trips, versions: versions, zones: zones}
}

// Diff compares two versions of a trip's itinerary. A nil to means the
// current version.
func (s *ExportService) Diff(ctx context.Context, tripID uuid.UUID, from int, to *int) (export.VersionDiff, error) {
	trip, err := s.trips.GetByID(ctx, tripID)
	if err != nil {
		return export.VersionDiff{}, fmt.Errorf("service.ExportService.Diff: %w", err)
	}
	target := trip.CurrentVersion
	if to != nil {
		target = *to
	}
	if from < 0 || target < 0 {
		return export.VersionDiff{}, fmt.Errorf("%w: versions must not be negative", domain.ErrValidation)
	}

	a, err := s.versions.GetVersion(ctx, tripID, from)
	if err != nil {
		return export.VersionDiff{}, fmt.Errorf("service.ExportService.Diff: %w", err)
	}
	b, err := s.versions.GetVersion(ctx, tripID, target)
	if err != nil {
		return export.VersionDiff{}, fmt.Errorf("service.ExportService.Diff: %w", err)
	}
	return export.Diff(trip, a, b), nil
}

// Calendar returns the current itinerary as an iCalendar document.
func (s *ExportService) Calendar(ctx context.Context, tripID uuid.UUID) (string, error) {
	trip, err := s.trips.GetByID(ctx, tripID)
	if err != nil {
		return "", fmt.Errorf("service.ExportService.Calendar: %w", err)
	}
	v, err := s.versions.GetVersion(ctx, tripID, trip.CurrentVersion)
	if err != nil {
		return "", fmt.Errorf("service.ExportService.Calendar: %w", err)
	}
	return export.Calendar(trip, v, s.zones), nil
}
