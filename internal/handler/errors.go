package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/pkordes/dreamtrip/backend/internal/domain"
)

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes one failure. Reason and CurrentVersion are set for
// conflicts only.
type ErrorDetail struct {
	Code           string `json:"code"`
	Message        string `json:"message"`
	Reason         string `json:"reason,omitempty"`
	CurrentVersion *int   `json:"currentVersion,omitempty"`
}

// Error codes.
const (
	codeBadRequest  = "bad_request"
	codeValidation  = "validation_error"
	codeNotFound    = "not_found"
	codeConflict    = "conflict"
	codeUnavailable = "unavailable"
	codeInternal    = "internal_error"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// requestBody returns an ErrorResponse for a bad request rejected before
// reaching the service layer (e.g. missing or malformed body).
func requestBody(message string) ErrorResponse {
	return ErrorResponse{Error: ErrorDetail{Code: codeBadRequest, Message: message}}
}

// writeBadRequest answers 400 for input the handler could not decode.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, requestBody(message))
}

// writeError maps a service error to its status code.
// notFound is the message used for domain.ErrNotFound, because the handler is
// the layer that knows what was being looked up.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error, notFound string) {
	if ce, ok := domain.AsConflict(err); ok {
		detail := ErrorDetail{Code: codeConflict, Message: ce.Message, Reason: string(ce.Code)}
		if ce.Code == domain.ConflictStaleVersion {
			v := ce.CurrentVersion
			detail.CurrentVersion = &v
		}
		status := http.StatusConflict
		if ce.Code == domain.ConflictNotFound {
			status = http.StatusNotFound
		}
		writeJSON(w, status, ErrorResponse{Error: detail})
		return
	}

	switch {
	case errors.Is(err, domain.ErrValidation):
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Error: ErrorDetail{Code: codeValidation, Message: unwrapMessage(err)}})
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: ErrorDetail{Code: codeNotFound, Message: notFound}})
	case errors.Is(err, domain.ErrPersistence):
		s.logger.ErrorContext(r.Context(), "storage unavailable", "path", r.URL.Path, "error", err)
		w.Header().Set("Retry-After", "1")
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: ErrorDetail{Code: codeUnavailable, Message: "storage is temporarily unavailable; retry the request"}})
	default:
		s.logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: ErrorDetail{Code: codeInternal, Message: "internal server error"}})
	}
}

// unwrapMessage extracts the human-readable part from a wrapped sentinel error.
// e.g. "service.TripService.Update: validation error: budget must be positive" → "budget must be positive"
func unwrapMessage(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	marker := domain.ErrValidation.Error() + ": "
	if i := strings.Index(msg, marker); i >= 0 {
		return msg[i+len(marker):]
	}
	return msg
}
