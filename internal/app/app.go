package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"camsync/internal/config"
	"camsync/internal/dto"
	"camsync/internal/logger"
	"camsync/internal/repository/sqlite"
	"camsync/internal/route"
	"camsync/internal/service"
	"camsync/internal/service/detect"
	"camsync/internal/service/storage"
	"camsync/internal/service/websocket"
	"camsync/internal/source"
	"camsync/internal/source/webcam"
	"camsync/internal/synchronizer"

	"github.com/fsnotify/fsnotify"
)

const (
	reloadDelay     = 200 * time.Millisecond
	shutdownTimeout = 5 * time.Second
)

// capturer is a source adapter with its own capture loop.
type capturer interface {
	synchronizer.Source
	Run(ctx context.Context) error
	Close() error
	FPS() float64
	Captured() uint64
}

type App struct {
	config     *config.Config
	logger     *logger.Logger
	db         *sqlite.DB
	bundleRepo *sqlite.BundleRepository
	frameRepo  *sqlite.FrameRepository
	hubService *websocket.HubService
	features   *detect.FeatureDetector
	motion     *detect.MotionDetector

	mu          sync.Mutex
	run         *run
	lastSession string
	sessionSeq  int
}

// NewApp loads the configuration from the environment and builds the App.
func NewApp() (*App, error) {
	cfg := config.Load()
	return New(cfg, logger.NewLogger(cfg))
}

func New(cfg *config.Config, logger *logger.Logger) (*App, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	db, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}

	a := &App{
		config:     cfg,
		logger:     logger,
		db:         db,
		bundleRepo: sqlite.NewBundleRepository(db),
		frameRepo:  sqlite.NewFrameRepository(db),
		hubService: websocket.NewHubService(logger),
	}
	if cfg.DetectFeatures {
		a.features = detect.NewFeatureDetector(cfg.MaxFeatures)
	}
	if cfg.MotionThreshold > 0 {
		a.motion = detect.NewMotionDetector(cfg.MotionThreshold, logger)
	}
	return a, nil
}

// Run serves until SIGINT/SIGTERM or ctx is done.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer a.close()

	go a.hubService.Run(ctx)

	session, err := config.LoadSession(a.config.SessionFile)
	if err != nil {
		return err
	}
	if err := a.StartSession(ctx, session); err != nil {
		return err
	}
	defer a.StopSession()

	watcher, err := a.watchSession(ctx)
	if err != nil {
		a.logger.Warning("Session file will not be reloaded: %v", err)
	} else {
		defer watcher.Close()
	}

	router := route.SetupRoutes(a.config, a.logger, a.hubService, a, a.bundleRepo, a.frameRepo)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", a.config.Port),
		Handler: router,
	}

	fmt.Printf("🚀 Camera Synchronizer\n")
	fmt.Printf("📍 URL: http://localhost:%d\n", a.config.Port)
	fmt.Printf("🔑 Password: %s\n", a.config.Password)
	fmt.Printf("📁 Recordings: %s\n", a.config.RecordingDir)
	fmt.Printf("🎯 Target: %.1f fps\n", a.config.TargetFPS)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func (a *App) close() {
	if a.motion != nil {
		a.motion.Close()
	}
	if err := a.db.Close(); err != nil {
		a.logger.Error("Error closing database: %v", err)
	}
}

// StartSession builds the sources of session, a synchronizer over them and
// the pipeline draining it. A running session is stopped first.
func (a *App) StartSession(ctx context.Context, session *config.Session) error {
	a.StopSession()

	r, err := a.newRun(session)
	if err != nil {
		return err
	}
	if err := r.start(ctx); err != nil {
		r.closeSources()
		return err
	}

	a.mu.Lock()
	a.run = r
	a.mu.Unlock()
	a.logger.Info("Session %s started with %d cameras", r.name, len(r.cameras))
	return nil
}

// StopSession stops the running session, if any, and flushes its recordings.
func (a *App) StopSession() {
	a.mu.Lock()
	r := a.run
	a.run = nil
	a.mu.Unlock()

	if r == nil {
		return
	}
	r.stop()
	a.logger.Info("Session %s stopped", r.name)
}

// Status implements handler.StatusProvider.
func (a *App) Status() dto.Status {
	a.mu.Lock()
	r := a.run
	a.mu.Unlock()

	status := dto.Status{Viewers: a.hubService.GetClientCount()}
	if r == nil {
		return status
	}

	status.Session = r.name
	status.Running = r.running()
	for i, src := range r.sources {
		cam := r.cameras[i]
		status.Sources = append(status.Sources, dto.SourceStatus{
			Port:     cam.Port,
			Kind:     cam.Kind,
			Device:   cam.Device,
			FPS:      src.FPS(),
			Captured: src.Captured(),
		})
	}
	status.Synchronizer = r.sync.Stats()
	status.Pipeline = r.pipeline.Status()
	return status
}

// sessionName returns a recording session name that differs from the
// previous one even when two sessions start within the same second.
func (a *App) sessionName() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	name := storage.SessionName(time.Now())
	if name == a.lastSession {
		a.sessionSeq++
		return fmt.Sprintf("%s-%d", name, a.sessionSeq)
	}
	a.lastSession = name
	a.sessionSeq = 0
	return name
}

func (a *App) newRun(session *config.Session) (*run, error) {
	r := &run{
		name:    a.sessionName(),
		cameras: session.Cameras,
		logger:  a.logger,
	}

	for _, cam := range session.Cameras {
		src, err := a.openSource(cam)
		if err != nil {
			r.closeSources()
			return nil, err
		}
		r.sources = append(r.sources, src)
	}

	sources := make([]synchronizer.Source, len(r.sources))
	for i, src := range r.sources {
		sources[i] = src
	}
	syncConfig := synchronizer.Config{
		TargetFPS:      a.config.TargetFPS,
		ThrottleStep:   a.config.ThrottleStep,
		ThrottleWindow: a.config.ThrottleWindow,
		ThrottleSlack:  a.config.ThrottleSlack,
		StallTimeout:   a.config.StallTimeout,
		ShutterLead:    a.config.ShutterLead,
	}
	s, err := synchronizer.New(sources, syncConfig, a.logger)
	if err != nil {
		r.closeSources()
		return nil, err
	}
	r.sync = s

	r.recorder = storage.NewRecorder(a.config, r.name, a.logger, a.bundleRepo, a.frameRepo)

	var motion service.MotionDetector
	if a.motion != nil {
		motion = a.motion
	}
	r.pipeline = service.NewPipeline(s.Bundles(), a.hubService, r.recorder, motion, a.config, a.logger)
	return r, nil
}

func (a *App) openSource(cam config.CameraConfig) (capturer, error) {
	port := synchronizer.Port(cam.Port)
	switch cam.Kind {
	case config.SourceSynthetic:
		src, err := source.NewSynthetic(port, cam.FPS, a.logger)
		if err != nil {
			return nil, err
		}
		a.annotate(src.Base)
		return src, nil
	case config.SourceUDP:
		src, err := source.NewUDP(port, cam.Device, a.logger)
		if err != nil {
			return nil, err
		}
		a.annotate(src.Base)
		return src, nil
	case config.SourceWebcam:
		var detector webcam.FeatureDetector
		if a.features != nil {
			detector = a.features
		}
		return webcam.Open(port, cam.Device, detector, a.logger)
	}
	return nil, fmt.Errorf("camera at port %d: unknown kind %q", cam.Port, cam.Kind)
}

// annotate runs feature detection on the encoded frames of b when enabled.
// Webcams detect on the decoded frame instead.
func (a *App) annotate(b *source.Base) {
	if a.features != nil {
		b.SetDetector(a.features)
	}
}

// watchSession restarts the session whenever the session file is written.
// The directory is watched so editors that replace the file are noticed.
func (a *App) watchSession(ctx context.Context) (*fsnotify.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	path := filepath.Clean(a.config.SessionFile)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		watcher.Close()
		return nil, err
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}

	go func() {
		// Writes arrive in bursts; reload once they settle.
		reload := time.NewTimer(time.Hour)
		reload.Stop()
		defer reload.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != path {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					reload.Reset(reloadDelay)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				a.logger.Error("Session watcher error: %v", err)
			case <-reload.C:
				a.reloadSession(ctx)
			}
		}
	}()

	a.logger.Info("Watching %s for session changes", path)
	return watcher, nil
}

func (a *App) reloadSession(ctx context.Context) {
	session, err := config.LoadSession(a.config.SessionFile)
	if err != nil {
		a.logger.Error("Keeping the current session, new one is invalid: %v", err)
		return
	}

	a.logger.Info("Session file changed, restarting with %d cameras", len(session.Cameras))
	if err := a.StartSession(ctx, session); err != nil {
		a.logger.Error("Failed to start the new session: %v", err)
	}
}
