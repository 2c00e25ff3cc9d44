package delivery

import (
	"encoding/json"
	"net/http"

	"github.com/Vovarama1992/transcriber/internal/domain"
)

type errorResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	ErrorKind string `json:"error_kind,omitempty"`
	ErrorType string `json:"error_type,omitempty"`
}

// StatusFor is the HTTP status contract for each error kind.
func StatusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindMissingCredential:
		return http.StatusUnauthorized
	case domain.KindInvalidCredential:
		return http.StatusForbidden
	case domain.KindNoInputProvided, domain.KindPayloadTooLarge, domain.KindMalformedControlMessage:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError always answers with the JSON envelope, never a bare error page.
func writeError(w http.ResponseWriter, err error) int {
	kind := domain.KindOf(err)
	status := StatusFor(kind)
	writeJSON(w, status, errorResponse{
		Success:   false,
		Error:     err.Error(),
		ErrorKind: string(kind),
		ErrorType: domain.ErrorType(err),
	})
	return status
}
