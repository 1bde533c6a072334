package http

import (
	"encoding/json"
	"net/http"
)

const msgInternalError = "Internal server error"

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// SuccessResponse represents a successful response
type SuccessResponse struct {
	Data    any    `json:"data"`
	Message string `json:"message,omitempty"`
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	// Headers are already sent, nothing useful to do on failure
	_ = json.NewEncoder(w).Encode(data)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}

// respondSuccess sends a success response
func respondSuccess(w http.ResponseWriter, statusCode int, data any, message string) {
	respondJSON(w, statusCode, SuccessResponse{
		Data:    data,
		Message: message,
	})
}
