package utils

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the uniform error body: {"detail": "..."}.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// RespondWithError sends a JSON error response.
func RespondWithError(w http.ResponseWriter, code int, message string) {
	RespondWithJSON(w, code, ErrorResponse{Detail: message})
}

// RespondWithJSON sends a JSON response. The payload is marshaled
// before the header is written, so an unencodable payload yields a
// clean 500 instead of a truncated body.
func RespondWithJSON(w http.ResponseWriter, code int, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "Failed to encode response: "+err.Error(), http.StatusInternalServerError)
		return err
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, err = w.Write(body)
	return err
}
