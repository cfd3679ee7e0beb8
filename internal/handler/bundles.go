package handler

import (
	"encoding/json"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"camsync/internal/config"
	"camsync/internal/dto"
	"camsync/internal/logger"
	"camsync/internal/repository"
)

// GetBundlesHandler returns a filtered, paginated list of recorded bundles.
func GetBundlesHandler(cfg *config.Config, logger *logger.Logger,
	bundleRepo repository.BundleRepository, frameRepo repository.FrameRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		page := atoiDefault(q.Get("page"), 1)
		limit := atoiDefault(q.Get("limit"), 24)

		filter := &dto.BundleFilter{
			Session: q.Get("session"),
			After:   parseTimestamp(q.Get("after")),
			Before:  parseTimestamp(q.Get("before")),
			Limit:   limit,
			Offset:  (page - 1) * limit,
		}
		if v := q.Get("port"); v != "" {
			port, err := strconv.Atoi(v)
			if err != nil || port < 0 {
				http.Error(w, "Invalid port", http.StatusBadRequest)
				return
			}
			filter.Port = &port
		}

		bundles, err := bundleRepo.GetAll(filter)
		if err != nil {
			logger.Error("Error querying bundles from database: %v", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		totalCount, err := bundleRepo.GetTotalCount(filter)
		if err != nil {
			logger.Error("Error counting bundles: %v", err)
			totalCount = len(bundles)
		}

		sessions, err := bundleRepo.GetSessions()
		if err != nil {
			logger.Error("Error listing sessions: %v", err)
		}

		totalSize, err := frameRepo.GetDirectorySize()
		if err != nil {
			logger.Error("Error getting recording directory size: %v", err)
			totalSize = 0
		}

		data := dto.BundlesData{
			Bundles:      bundles,
			Sessions:     sessions,
			RecordingDir: cfg.RecordingDir,
			Size:         totalSize,
			Length:       totalCount,
			TotalPages:   (totalCount + limit - 1) / limit,
			CurrentPage:  page,
			Limit:        limit,
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(data); err != nil {
			logger.Error("Error encoding JSON response: %v", err)
		}
	}
}

// GetBundleFramesHandler returns one bundle with its stored frames.
func GetBundleFramesHandler(logger *logger.Logger,
	bundleRepo repository.BundleRepository, frameRepo repository.FrameRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.URL.Query().Get("id"), 10, 64)
		if err != nil {
			http.Error(w, "Bundle id required", http.StatusBadRequest)
			return
		}

		bundle, err := bundleRepo.GetByID(id)
		if err != nil {
			logger.Error("Error loading bundle %d: %v", id, err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if bundle == nil {
			http.Error(w, "Bundle not found", http.StatusNotFound)
			return
		}

		frames, err := frameRepo.GetByBundleID(id)
		if err != nil {
			logger.Error("Error loading frames of bundle %d: %v", id, err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		data := dto.BundleFrames{Bundle: *bundle, Frames: []dto.FrameInfo{}}
		for _, f := range frames {
			data.Frames = append(data.Frames, dto.FrameInfo{
				Frame: f,
				URL:   "/api/frames/view?frame=" + url.QueryEscape(f.Filename),
			})
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(data); err != nil {
			logger.Error("Error encoding JSON response: %v", err)
		}
	}
}

// ViewFrameHandler serves a single recorded frame named by the "frame" query parameter.
func ViewFrameHandler(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		frame := r.URL.Query().Get("frame")
		if frame == "" {
			http.Error(w, "Frame parameter is required", http.StatusBadRequest)
			return
		}
		if filepath.IsAbs(frame) || strings.Contains(frame, "..") {
			http.Error(w, "Invalid frame name", http.StatusBadRequest)
			return
		}
		http.ServeFile(w, r, filepath.Join(cfg.RecordingDir, filepath.FromSlash(frame)))
	}
}

// DeleteBundleHandler removes a bundle's frames from disk and the bundle from the database.
func DeleteBundleHandler(cfg *config.Config, logger *logger.Logger,
	bundleRepo repository.BundleRepository, frameRepo repository.FrameRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.URL.Query().Get("id"), 10, 64)
		if err != nil {
			http.Error(w, "Bundle id required", http.StatusBadRequest)
			return
		}

		frames, err := frameRepo.GetByBundleID(id)
		if err != nil {
			logger.Error("Error loading frames of bundle %d: %v", id, err)
		}
		for _, f := range frames {
			filePath := filepath.Join(cfg.RecordingDir, filepath.FromSlash(f.Filename))
			if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
				logger.Error("Failed to delete file %s: %v", filePath, err)
			}
		}

		if err := bundleRepo.Delete(id); err != nil {
			logger.Error("Failed to delete bundle %d from database: %v", id, err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		logger.Info("Deleted bundle %d with %d frames", id, len(frames))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"status": "deleted", "id": id})
	}
}

// ClearBundlesHandler deletes every recording and clears the database.
func ClearBundlesHandler(cfg *config.Config, logger *logger.Logger,
	bundleRepo repository.BundleRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := os.ReadDir(cfg.RecordingDir)
		if err != nil && !os.IsNotExist(err) {
			logger.Error("Error reading recording directory: %v", err)
			http.Error(w, "Unable to read recording directory", http.StatusInternalServerError)
			return
		}

		for _, entry := range entries {
			path := filepath.Join(cfg.RecordingDir, entry.Name())
			if err := os.RemoveAll(path); err != nil {
				logger.Error("Error deleting %s: %v", path, err)
			}
		}

		if err := bundleRepo.DeleteAll(); err != nil {
			logger.Error("Error clearing database: %v", err)
		}

		logger.Info("All recordings cleared from directory: %s", cfg.RecordingDir)
		w.WriteHeader(http.StatusNoContent)
	}
}

// atoiDefault converts string to int or returns a default when conversion fails or value <= 0.
func atoiDefault(s string, def int) int {
	if v, err := strconv.Atoi(s); err == nil && v > 0 {
		return v
	}
	return def
}

// parseTimestamp accepts RFC 3339 or a plain "2006-01-02" date.
func parseTimestamp(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02", v); err == nil {
		return t
	}
	return time.Time{}
}
