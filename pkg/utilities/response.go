package utilities

import (
	"encoding/json"
	"net/http"
)

// APIError is the JSON body of every failed request.
type APIError struct {
	Code    string `json:"error_code"`
	Message string `json:"error_message"`
	Details any    `json:"details,omitempty"`
}

// WriteJSON writes v with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes a structured error body.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	WriteJSON(w, status, APIError{Code: code, Message: message})
}
