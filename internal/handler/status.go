package handler

import (
	"encoding/json"
	"net/http"

	"camsync/internal/dto"
	"camsync/internal/logger"
)

// StatusProvider reports on the running session.
type StatusProvider interface {
	Status() dto.Status
}

// StatusHandler serves GET /api/status.
func StatusHandler(provider StatusProvider, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache")
		if err := json.NewEncoder(w).Encode(provider.Status()); err != nil {
			logger.Error("Error encoding JSON response: %v", err)
		}
	}
}
