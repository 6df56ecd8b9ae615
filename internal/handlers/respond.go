package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/athiyenarivalagan/hft-market-making/internal/models"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// The status line is already out; an encode failure can only be a broken connection.
	_ = json.NewEncoder(w).Encode(v)
}

// sendError writes the standard JSON error body.
func sendError(w http.ResponseWriter, statusCode int, errorCode string, message string) {
	writeJSON(w, statusCode, models.ErrorResponse{
		Error:   errorCode,
		Message: message,
	})
}
