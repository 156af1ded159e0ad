package api

import (
	"encoding/json"
	"net/http"
)

// envelope is the body of every JSON response.
type envelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Error   string      `json:"error,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Details []string    `json:"details,omitempty"`
}

// respondJSON writes a JSON response with the given status code and data.
// If data is nil, only the status code and Content-Type header are written.
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data) //nolint:errcheck
	}
}

func respondData(w http.ResponseWriter, status int, data interface{}) {
	respondJSON(w, status, envelope{Success: true, Data: data})
}

// respondError writes {success:false, message}.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, envelope{Message: message})
}

// respondErrorCause is respondError plus the underlying cause.
func respondErrorCause(w http.ResponseWriter, status int, message string, cause error) {
	env := envelope{Message: message}
	if cause != nil {
		env.Error = cause.Error()
	}
	respondJSON(w, status, env)
}

// respondValidationErrors writes a 400 response with a list of validation error details.
func respondValidationErrors(w http.ResponseWriter, errors []string) {
	respondJSON(w, http.StatusBadRequest, envelope{
		Message: "validation failed",
		Details: errors,
	})
}
