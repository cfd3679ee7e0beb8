package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"camsync/internal/config"
	"camsync/internal/logger"
)

const maxSessionSize = 64 << 10

// SessionHandler serves the session file on GET and replaces it on POST or
// PUT. Saving the file restarts the synchronizer with the new cameras.
func SessionHandler(cfg *config.Config, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			session, err := config.LoadSession(cfg.SessionFile)
			if err != nil {
				logger.Error("Error loading session: %v", err)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(session)

		case http.MethodPost, http.MethodPut:
			data, err := io.ReadAll(io.LimitReader(r.Body, maxSessionSize))
			if err != nil {
				http.Error(w, "Unable to read body", http.StatusBadRequest)
				return
			}
			session, err := config.ParseSession(data)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			if err := config.SaveSession(cfg.SessionFile, session); err != nil {
				logger.Error("Error saving session: %v", err)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}

			logger.Info("Session saved with %d cameras", len(session.Cameras))
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(session)

		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	}
}
