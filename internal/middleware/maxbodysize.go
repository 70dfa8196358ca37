package middleware

import (
	"encoding/json"
	"net/http"
)

// tooLargeBody matches the API's error envelope so clients see one shape.
var tooLargeBody, _ = json.Marshal(map[string]any{
	"error": map[string]string{
		"code":    "payload_too_large",
		"message": "request body too large",
	},
})

// NewMaxBodySizeHandler caps request bodies at limit bytes. A declared
// Content-Length over the limit is answered with 413 straight away; other
// bodies are wrapped so decoding fails once the limit is crossed, which the
// handlers report as a bad request.
func NewMaxBodySizeHandler(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > limit {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusRequestEntityTooLarge)
				_, _ = w.Write(tooLargeBody)
				return
			}
			if r.Body != nil && r.Body != http.NoBody {
				r.Body = http.MaxBytesReader(w, r.Body, limit)
			}
			next.ServeHTTP(w, r)
		})
	}
}
