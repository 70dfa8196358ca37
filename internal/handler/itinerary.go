package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/pkordes/dreamtrip/backend/internal/export"
)

// GetItinerary handles GET /api/trips/{id}/itinerary.
// It returns the trip with its current version.
func (s *Server) GetItinerary(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "tripID")
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	snap, err := s.coord.GetItinerary(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err, tripNotFound)
		return
	}
	w.Header().Set("ETag", strconv.Quote(strconv.Itoa(snap.Version.Version)))
	writeJSON(w, http.StatusOK, snapshotToResponse(snap))
}

// ListVersions handles GET /api/trips/{id}/itinerary/versions, newest first.
func (s *Server) ListVersions(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "tripID")
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	versions, err := s.trips.Versions(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err, tripNotFound)
		return
	}
	out := make([]VersionSummaryResponse, len(versions))
	for i, v := range versions {
		out[i] = summaryToResponse(v)
	}
	writeJSON(w, http.StatusOK, out)
}

// GetVersion handles GET /api/trips/{id}/itinerary/versions/{version}.
func (s *Server) GetVersion(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "tripID")
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	n, err := pathInt(r, "version")
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	v, err := s.trips.Version(r.Context(), id, n)
	if err != nil {
		s.writeError(w, r, err, "itinerary version not found")
		return
	}
	writeJSON(w, http.StatusOK, versionToResponse(v))
}

// DiffVersions handles GET /api/trips/{id}/itinerary/diff?from=&to=.
// from defaults to the version before to; to defaults to the current version.
func (s *Server) DiffVersions(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "tripID")
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	from, err := queryInt(r, "from")
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	to, err := queryInt(r, "to")
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	if from == nil {
		prev, err := s.previousVersion(r.Context(), id, to)
		if err != nil {
			s.writeError(w, r, err, tripNotFound)
			return
		}
		from = &prev
	}

	d, err := s.exports.Diff(r.Context(), id, *from, to)
	if err != nil {
		s.writeError(w, r, err, "itinerary version not found")
		return
	}
	if d.Lines == nil {
		d.Lines = []export.Line{}
	}
	writeJSON(w, http.StatusOK, d)
}

// previousVersion is the version before to, or before the current version
// when to is nil. Version 0 has no predecessor and diffs against itself.
func (s *Server) previousVersion(ctx context.Context, id uuid.UUID, to *int) (int, error) {
	target := 0
	if to != nil {
		target = *to
	} else {
		snap, err := s.coord.GetItinerary(ctx, id)
		if err != nil {
			return 0, err
		}
		target = snap.Version.Version
	}
	if target <= 0 {
		return 0, nil
	}
	return target - 1, nil
}

// GetCalendar handles GET /api/trips/{id}/itinerary.ics.
func (s *Server) GetCalendar(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "tripID")
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	cal, err := s.exports.Calendar(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err, tripNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="itinerary-`+id.String()+`.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(cal))
}
