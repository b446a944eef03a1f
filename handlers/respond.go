package handlers

import (
	"encoding/json"
	"net/http"
)

// errorResponse is the JSON error envelope returned on every non-2xx response
type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	Hint    string `json:"hint,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message, details, hint string) {
	writeJSON(w, status, errorResponse{Error: message, Details: details, Hint: hint})
}
