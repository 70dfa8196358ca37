package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/dreamtrip/backend/internal/domain"
	"github.com/pkordes/dreamtrip/backend/internal/export"
	"github.com/pkordes/dreamtrip/backend/internal/handler"
	"github.com/pkordes/dreamtrip/backend/internal/service"
)

// mockTripServicer is a test double for handler.TripServicer.
// Set only the method fields your test needs.
type mockTripServicer struct {
	getByID  func(ctx context.Context, id uuid.UUID) (domain.Trip, error)
	list     func(ctx context.Context, owner string, p domain.PaginationParams) ([]domain.Trip, int64, error)
	update   func(ctx context.Context, id uuid.UUID, patch service.TripPatch) (service.Snapshot, error)
	delete   func(ctx context.Context, id uuid.UUID) error
	versions func(ctx context.Context, id uuid.UUID) ([]domain.VersionSummary, error)
	version  func(ctx context.Context, id uuid.UUID, n int) (domain.ItineraryVersion, error)
}

func (m *mockTripServicer) GetByID(ctx context.Context, id uuid.UUID) (domain.Trip, error) {
	return m.getByID(ctx, id)
}
func (m *mockTripServicer) List(ctx context.Context, owner string, p domain.PaginationParams) ([]domain.Trip, int64, error) {
	return m.list(ctx, owner, p)
}
func (m *mockTripServicer) Update(ctx context.Context, id uuid.UUID, patch service.TripPatch) (service.Snapshot, error) {
	return m.update(ctx, id, patch)
}
func (m *mockTripServicer) Delete(ctx context.Context, id uuid.UUID) error {
	return m.delete(ctx, id)
}
func (m *mockTripServicer) Versions(ctx context.Context, id uuid.UUID) ([]domain.VersionSummary, error) {
	return m.versions(ctx, id)
}
func (m *mockTripServicer) Version(ctx context.Context, id uuid.UUID, n int) (domain.ItineraryVersion, error) {
	return m.version(ctx, id, n)
}

// mockCoordinator is a test double for handler.Coordinator.
type mockCoordinator struct {
	createTrip    func(ctx context.Context, in service.CreateTripInput) (service.Snapshot, error)
	getItinerary  func(ctx context.Context, id uuid.UUID) (service.Snapshot, error)
	session       func(ctx context.Context, id uuid.UUID) (domain.ChatSession, error)
	submitMessage func(ctx context.Context, req service.ChatRequest) (service.ChatResult, error)
}

func (m *mockCoordinator) CreateTrip(ctx context.Context, in service.CreateTripInput) (service.Snapshot, error) {
	return m.createTrip(ctx, in)
}
func (m *mockCoordinator) GetItinerary(ctx context.Context, id uuid.UUID) (service.Snapshot, error) {
	return m.getItinerary(ctx, id)
}
func (m *mockCoordinator) Session(ctx context.Context, id uuid.UUID) (domain.ChatSession, error) {
	return m.session(ctx, id)
}
func (m *mockCoordinator) SubmitMessage(ctx context.Context, req service.ChatRequest) (service.ChatResult, error) {
	return m.submitMessage(ctx, req)
}

// mockExportServicer is a test double for handler.ExportServicer.
type mockExportServicer struct {
	diff     func(ctx context.Context, id uuid.UUID, from int, to *int) (export.VersionDiff, error)
	calendar func(ctx context.Context, id uuid.UUID) (string, error)
}

func (m *mockExportServicer) Diff(ctx context.Context, id uuid.UUID, from int, to *int) (export.VersionDiff, error) {
	return m.diff(ctx, id, from, to)
}
func (m *mockExportServicer) Calendar(ctx context.Context, id uuid.UUID) (string, error) {
	return m.calendar(ctx, id)
}

// compile-time checks: the mocks must satisfy the handler interfaces.
var (
	_ handler.TripServicer   = (*mockTripServicer)(nil)
	_ handler.Coordinator    = (*mockCoordinator)(nil)
	_ handler.ExportServicer = (*mockExportServicer)(nil)
)

// ---- helpers ---------------------------------------------------------------

type deps struct {
	trips   *mockTripServicer
	coord   *mockCoordinator
	exports *mockExportServicer
	updates handler.UpdateHub
}

// newHTTPHandler wires a Server with the given mocks into a chi router.
// This mirrors how main.go wires it in production.
func newHTTPHandler(d deps) http.Handler {
	var (
		trips   handler.TripServicer
		coord   handler.Coordinator
		exports handler.ExportServicer
	)
	if d.trips != nil {
		trips = d.trips
	}
	if d.coord != nil {
		coord = d.coord
	}
	if d.exports != nil {
		exports = d.exports
	}
	return handler.NewServer(trips, coord, exports, d.updates, nil).Handler()
}

func tripFixture() domain.Trip {
	return domain.Trip{
		ID:             uuid.New(),
		OwnerID:        "user-1",
		Destination:    "Lisbon",
		StartDate:      time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		EndDate:        time.Date(2025, 6, 5, 0, 0, 0, 0, time.UTC),
		Budget:         1500,
		Mood:           "relaxed",
		Travelers:      2,
		Status:         domain.StatusPlanning,
		CurrentVersion: 1,
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}
}

func snapshotFixture() service.Snapshot {
	trip := tripFixture()
	return service.Snapshot{
		Trip: trip,
		Version: domain.ItineraryVersion{
			TripID:  trip.ID,
			Version: trip.CurrentVersion,
			Plan: domain.Plan{Days: []domain.DayPlan{{
				Day:  1,
				Date: trip.StartDate,
				Activities: []domain.Activity{{
					ID: "a1", Name: "Tram ride", Cost: 5, Category: domain.CategoryExperience,
				}},
			}}},
			TotalCost:    5,
			ProposalKind: domain.KindAddDayActivity,
			CreatedAt:    time.Now().UTC(),
		},
	}
}

func jsonBody(t *testing.T, v any) *bytes.Buffer {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewBuffer(b)
}

func decode[T any](t *testing.T, body *bytes.Buffer) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(body).Decode(&v))
	return v
}

func ptr[T any](v T) *T { return &v }
