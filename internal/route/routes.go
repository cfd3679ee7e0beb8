package route

import (
	"net/http"
	"os"
	"path/filepath"

	"camsync/internal/config"
	"camsync/internal/handler"
	"camsync/internal/logger"
	"camsync/internal/middleware"
	"camsync/internal/repository"
)

// dynamicHTMLHandler serves /path as /static/path.html if the file exists; otherwise 404.
func dynamicHTMLHandler(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	if path == "/" {
		path = "/index"
	}

	filePath := filepath.Join("static", path+".html")

	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		http.NotFound(w, r)
		return
	}

	http.ServeFile(w, r, filePath)
}

// SetupRoutes registers HTTP routes, static file serving, API endpoints,
// and wraps the mux with the authentication middleware.
func SetupRoutes(cfg *config.Config, logger *logger.Logger, hub handler.ViewerHub, status handler.StatusProvider,
	bundleRepo repository.BundleRepository, frameRepo repository.FrameRepository) http.Handler {
	mux := http.NewServeMux()

	// Static files
	mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.Dir("static"))))

	// API endpoints
	mux.HandleFunc("/api/view", handler.ViewWebsocketHandler(hub, logger))
	mux.HandleFunc("/api/status", handler.StatusHandler(status, logger))
	mux.HandleFunc("/api/session", handler.SessionHandler(cfg, logger))

	// Recordings
	mux.HandleFunc("/api/bundles", handler.GetBundlesHandler(cfg, logger, bundleRepo, frameRepo))
	mux.HandleFunc("/api/bundles/frames", handler.GetBundleFramesHandler(logger, bundleRepo, frameRepo))
	mux.HandleFunc("/api/bundles/delete", handler.DeleteBundleHandler(cfg, logger, bundleRepo, frameRepo))
	mux.HandleFunc("/api/bundles/clear", handler.ClearBundlesHandler(cfg, logger, bundleRepo))
	mux.HandleFunc("/api/frames/view", handler.ViewFrameHandler(cfg))

	// Log endpoints
	for level, filename := range handler.LogFiles {
		mux.HandleFunc("/logs/"+level, handler.ShowLogsHandler(cfg, filename))
		mux.HandleFunc("/logs/"+level+"/clear", handler.ClearLogsHandler(logger, filename))
	}

	// Auth endpoints
	mux.HandleFunc("/auth/login", handler.LoginHandler(cfg, logger))
	mux.HandleFunc("/auth/logout", handler.LogoutHandler)

	// Automatic HTML handler mapping for example: /settings -> /static/settings.html
	mux.HandleFunc("/", dynamicHTMLHandler)

	// Apply middleware
	return middleware.AuthMiddleware(mux)
}
