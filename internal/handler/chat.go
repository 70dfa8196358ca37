package handler

import (
	"net/http"

	"github.com/pkordes/dreamtrip/backend/internal/service"
)

// Chat handles POST /api/chat.
// A rejected edit is not an HTTP error: it comes back with status 200, the
// reply explaining the rejection and a structured conflict.
func (s *Server) Chat(w http.ResponseWriter, r *http.Request) {
	var body ChatRequestBody
	if err := decodeBody(r, &body); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	res, err := s.coord.SubmitMessage(r.Context(), service.ChatRequest{
		SessionID: body.SessionID,
		TripID:    body.TripID,
		UserID:    body.UserID,
		Message:   body.Message,
	})
	if err != nil {
		s.writeError(w, r, err, tripNotFound)
		return
	}

	resp := ChatResponse{
		Success:     true,
		SessionID:   res.SessionID,
		Reply:       res.Reply,
		Message:     messageToResponse(res.Message),
		Suggestions: res.Suggestions,
		Conflict:    conflictToResponse(res.Conflict),
		Degraded:    res.Degraded,
	}
	if resp.Suggestions == nil {
		resp.Suggestions = []string{}
	}
	if res.Itinerary != nil {
		snap := snapshotToResponse(*res.Itinerary)
		resp.UpdatedItinerary = &snap
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetChatSession handles GET /api/chat/sessions/{id}.
func (s *Server) GetChatSession(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "sessionID")
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	session, err := s.coord.Session(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err, "chat session not found")
		return
	}
	writeJSON(w, http.StatusOK, sessionToResponse(session))
}
