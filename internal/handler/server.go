// Package handler implements the HTTP handlers for the DreamTrip API.
// All handlers are methods on Server and are split into domain-specific files
// (health.go, trip.go, itinerary.go, chat.go, updates.go). Routes wires them
// into a chi router.
package handler

import (
	"context"
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/pkordes/dreamtrip/backend/internal/domain"
	"github.com/pkordes/dreamtrip/backend/internal/export"
	"github.com/pkordes/dreamtrip/backend/internal/service"
	"github.com/pkordes/dreamtrip/backend/internal/stream"
)

// TripServicer defines the trip operations the handlers depend on.
// Defining the interface here (in the consumer package) lets handler tests
// inject a mock without touching the database or service layer.
type TripServicer interface {
	GetByID(ctx context.Context, id uuid.UUID) (domain.Trip, error)
	List(ctx context.Context, ownerID string, p domain.PaginationParams) ([]domain.Trip, int64, error)
	Update(ctx context.Context, id uuid.UUID, patch service.TripPatch) (service.Snapshot, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Versions(ctx context.Context, id uuid.UUID) ([]domain.VersionSummary, error)
	Version(ctx context.Context, id uuid.UUID, version int) (domain.ItineraryVersion, error)
}

// Coordinator defines the session coordinator operations behind plan-trip,
// chat, and itinerary reads.
type Coordinator interface {
	CreateTrip(ctx context.Context, in service.CreateTripInput) (service.Snapshot, error)
	GetItinerary(ctx context.Context, tripID uuid.UUID) (service.Snapshot, error)
	Session(ctx context.Context, id uuid.UUID) (domain.ChatSession, error)
	SubmitMessage(ctx context.Context, req service.ChatRequest) (service.ChatResult, error)
}

// ExportServicer renders itinerary versions for diffing and calendars.
type ExportServicer interface {
	Diff(ctx context.Context, tripID uuid.UUID, from int, to *int) (export.VersionDiff, error)
	Calendar(ctx context.Context, tripID uuid.UUID) (string, error)
}

// UpdateHub hands out live subscriptions to a trip's commits.
type UpdateHub interface {
	Register(tripID uuid.UUID) *stream.Client
	Unregister(client *stream.Client)
}

// Server holds the dependencies shared by every handler.
// Any dependency may be nil in tests that never reach it.
type Server struct {
	trips   TripServicer
	coord   Coordinator
	exports ExportServicer
	updates UpdateHub
	logger  *slog.Logger
}

// NewServer constructs the Server with all its dependencies.
func NewServer(trips TripServicer, coord Coordinator, exports ExportServicer, updates UpdateHub, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		trips:   trips,
		coord:   coord,
		exports: exports,
		updates: updates,
		logger:  logger,
	}
}

// NewHealthHandler returns a Server for health-check-only use.
func NewHealthHandler() *Server {
	return NewServer(nil, nil, nil, nil, nil)
}

// Routes registers every endpoint on r.
func (s *Server) Routes(r chi.Router) {
	r.Get("/healthz", s.GetHealth)
	r.Get("/openapi.yaml", s.GetOpenAPI)

	r.Route("/api", func(r chi.Router) {
		r.Post("/plan-trip", s.PlanTrip)
		r.Post("/chat", s.Chat)
		r.Get("/chat/sessions/{sessionID}", s.GetChatSession)

		r.Get("/trips", s.ListTrips)
		r.Route("/trips/{tripID}", func(r chi.Router) {
			r.Get("/", s.GetTrip)
			r.Put("/", s.UpdateTrip)
			r.Delete("/", s.DeleteTrip)
			r.Get("/itinerary", s.GetItinerary)
			r.Get("/itinerary/versions", s.ListVersions)
			r.Get("/itinerary/versions/{version}", s.GetVersion)
			r.Get("/itinerary/diff", s.DiffVersions)
			r.Get("/itinerary.ics", s.GetCalendar)
			r.Get("/updates", s.StreamUpdates)
		})
	})
}

// Handler returns a fresh chi router with every endpoint registered.
func (s *Server) Handler() chi.Router {
	r := chi.NewRouter()
	s.Routes(r)
	return r
}
