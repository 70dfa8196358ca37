package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/pkordes/dreamtrip/backend/internal/domain"
	"github.com/pkordes/dreamtrip/backend/internal/service"
)

const tripNotFound = "trip not found"

// PlanTrip handles POST /api/plan-trip.
// It creates the trip with an empty version 0 and, when generate is set,
// reconciles a generated itinerary on top of it.
func (s *Server) PlanTrip(w http.ResponseWriter, r *http.Request) {
	var body PlanTripRequest
	if err := decodeBody(r, &body); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	snap, err := s.coord.CreateTrip(r.Context(), service.CreateTripInput{
		OwnerID:     body.UserID,
		Destination: body.Destination,
		StartDate:   body.StartDate.Time,
		EndDate:     body.EndDate.Time,
		Budget:      body.Budget,
		Mood:        body.Mood,
		Travelers:   body.Travelers,
		Preferences: body.Preferences,
		Generate:    body.Generate,
	})
	if err != nil {
		s.writeError(w, r, err, tripNotFound)
		return
	}

	msg := "Trip created. Tell me what you would like to do and I will add it to the itinerary."
	if snap.Version.Version > 0 {
		msg = "Trip created with a draft itinerary. Ask me to change anything."
	}
	writeJSON(w, http.StatusCreated, PlanTripResponse{
		Success:   true,
		Trip:      tripToResponse(snap.Trip),
		Itinerary: versionToResponse(snap.Version),
		Message:   msg,
	})
}

// ListTrips handles GET /api/trips.
// Supports ?userId= (or ?ownerId=), ?page= and ?limit= (defaults: page=1, limit=20, max=100).
func (s *Server) ListTrips(w http.ResponseWriter, r *http.Request) {
	owner, err := queryString(r, "userId")
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	if owner == "" {
		if owner, err = queryString(r, "ownerId"); err != nil {
			writeBadRequest(w, err.Error())
			return
		}
	}
	page, err := queryInt(r, "page")
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	params := domain.NewPaginationParams(page, limit)
	trips, total, err := s.trips.List(r.Context(), owner, params)
	if err != nil {
		s.writeError(w, r, err, tripNotFound)
		return
	}

	data := make([]TripResponse, len(trips))
	for i, t := range trips {
		data[i] = tripToResponse(t)
	}
	writeJSON(w, http.StatusOK, TripListResponse{
		Data: data,
		Pagination: Pagination{
			Page:    params.Page,
			Limit:   params.Limit,
			Total:   int(total),
			HasMore: params.HasMore(total),
		},
	})
}

// GetTrip handles GET /api/trips/{id}.
func (s *Server) GetTrip(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "tripID")
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	trip, err := s.trips.GetByID(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err, tripNotFound)
		return
	}
	writeJSON(w, http.StatusOK, tripToResponse(trip))
}

// UpdateTrip handles PUT /api/trips/{id}.
// The fields present in the body are reconciled as one new itinerary version;
// a rejected edit answers 409 with the conflict reason.
func (s *Server) UpdateTrip(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "tripID")
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	var body UpdateTripRequest
	if err := decodeBody(r, &body); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	snap, err := s.trips.Update(r.Context(), id, requestToPatch(body))
	if err != nil {
		s.writeError(w, r, err, tripNotFound)
		return
	}
	writeJSON(w, http.StatusOK, snapshotToResponse(snap))
}

// DeleteTrip handles DELETE /api/trips/{id}.
func (s *Server) DeleteTrip(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "tripID")
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	if err := s.trips.Delete(r.Context(), id); err != nil {
		s.writeError(w, r, err, tripNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- mapping helpers --------------------------------------------------------

// decodeBody decodes a JSON request body into dst.
func decodeBody(r *http.Request, dst any) error {
	if r.Body == nil {
		return errors.New("request body is required")
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return errors.New("request body is required")
		case errors.As(err, &maxErr):
			return errors.New("request body too large")
		default:
			return errors.New("malformed JSON body: " + strings.TrimPrefix(err.Error(), "json: "))
		}
	}
	return nil
}

// requestToPatch converts an UpdateTripRequest into a service.TripPatch.
func requestToPatch(body UpdateTripRequest) service.TripPatch {
	patch := service.TripPatch{
		BaseVersion:    body.BaseVersion,
		Budget:         body.Budget,
		Mood:           body.Mood,
		ForceRecompute: body.ForceRecompute,
	}
	if body.StartDate != nil {
		d := body.StartDate.Time
		patch.StartDate = &d
	}
	if body.EndDate != nil {
		d := body.EndDate.Time
		patch.EndDate = &d
	}
	if body.Status != nil {
		st := domain.TripStatus(strings.ToLower(*body.Status))
		patch.Status = &st
	}
	return patch
}
