package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"camsync/internal/config"
	"camsync/internal/dto"
	"camsync/internal/logger"
	"camsync/internal/model"
	"camsync/internal/repository"
	"camsync/internal/synchronizer"
)

// SessionName names a recording session after its start time.
func SessionName(t time.Time) string {
	return t.Format("20060102-150405")
}

// Recorder buffers bundles in memory and periodically flushes them to disk,
// one JPEG per present frame, indexed in the database.
type Recorder struct {
	recordingDir  string
	session       string
	bufferLimit   int
	flushInterval time.Duration
	bundles       []dto.BufferedBundle
	dropped       int
	mu            sync.Mutex
	logger        *logger.Logger
	bundleRepo    repository.BundleRepository
	frameRepo     repository.FrameRepository
}

// NewRecorder creates a Recorder writing under RecordingDir/session.
// The repositories may be nil, in which case only files are written.
func NewRecorder(config *config.Config, session string, logger *logger.Logger, bundleRepo repository.BundleRepository, frameRepo repository.FrameRepository) *Recorder {
	interval := time.Duration(config.RecordFlushInterval) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Recorder{
		recordingDir:  config.RecordingDir,
		session:       session,
		bufferLimit:   config.RecordBufferLimit,
		flushInterval: interval,
		bundles:       make([]dto.BufferedBundle, 0),
		logger:        logger,
		bundleRepo:    bundleRepo,
		frameRepo:     frameRepo,
	}
}

func (s *Recorder) Session() string {
	return s.session
}

// Dir is the directory the current session is written to.
func (s *Recorder) Dir() string {
	return filepath.Join(s.recordingDir, s.session)
}

// Run flushes on a ticker until ctx is done, then flushes once more.
func (s *Recorder) Run(ctx context.Context) {
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.FlushBundles()
			return
		case <-ticker.C:
			s.FlushBundles()
		}
	}
}

// AddBundle copies a bundle into the buffer. It returns false when the
// buffer is full and the bundle was dropped.
func (s *Recorder) AddBundle(b *synchronizer.Bundle) bool {
	buffered := dto.BufferedBundle{
		Session:  s.session,
		Index:    b.Index,
		Cutoff:   b.Cutoff,
		MeanTime: b.MeanTime,
		Ports:    len(b.Frames),
	}
	for _, port := range b.Ports() {
		rec, ok := b.Frame(port)
		if !ok {
			continue
		}
		buffered.Frames = append(buffered.Frames, dto.BufferedFrame{
			Port:      int(port),
			Sequence:  rec.Sequence,
			Timestamp: rec.Time,
			Features:  len(rec.Features),
			Data:      rec.Payload,
		})
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.bufferLimit > 0 && len(s.bundles) >= s.bufferLimit {
		s.dropped++
		if s.dropped == 1 || s.dropped%100 == 0 {
			s.logger.Warning("Recording buffer full (%d bundles), %d bundles dropped", s.bufferLimit, s.dropped)
		}
		return false
	}
	s.bundles = append(s.bundles, buffered)
	return true
}

// FrameFilename is the name of a recorded frame relative to the recording directory.
func FrameFilename(session string, bundle uint64, port int, sequence uint64) string {
	return path.Join(session, fmt.Sprintf("b%d_p%d_s%d.jpg", bundle, port, sequence))
}

// FlushBundles writes the buffered bundles to disk and returns how many were saved.
func (s *Recorder) FlushBundles() int {
	s.mu.Lock()
	pending := s.bundles
	s.bundles = make([]dto.BufferedBundle, 0, len(pending))
	s.mu.Unlock()

	if len(pending) == 0 {
		return 0
	}

	if err := os.MkdirAll(s.Dir(), 0755); err != nil {
		s.logger.Error("Error creating directory: %v", err)
		return 0
	}

	savedCount := 0
	for _, bundle := range pending {
		frames := make([]model.Frame, 0, len(bundle.Frames))
		for _, frame := range bundle.Frames {
			filename := FrameFilename(bundle.Session, bundle.Index, frame.Port, frame.Sequence)
			fullpath := filepath.Join(s.recordingDir, filepath.FromSlash(filename))

			if err := os.WriteFile(fullpath, frame.Data, 0644); err != nil {
				s.logger.Error("Error saving frame %s: %v", filename, err)
				continue
			}

			frames = append(frames, model.Frame{
				Port:      frame.Port,
				Sequence:  int64(frame.Sequence),
				Timestamp: frame.Timestamp.UTC(),
				Filename:  filename,
				FilePath:  fullpath,
				FileSize:  int64(len(frame.Data)),
				Features:  frame.Features,
			})
		}

		// Save to database if repositories are available
		if s.bundleRepo != nil {
			bundleID, err := s.bundleRepo.Insert(&model.Bundle{
				Session:  bundle.Session,
				Index:    int64(bundle.Index),
				Cutoff:   bundle.Cutoff.UTC(),
				MeanTime: bundle.MeanTime.UTC(),
				Ports:    bundle.Ports,
				Present:  len(frames),
			})
			if err != nil {
				s.logger.Error("Error saving bundle %d to database: %v", bundle.Index, err)
				continue
			}

			if s.frameRepo != nil && len(frames) > 0 {
				for i := range frames {
					frames[i].BundleID = bundleID
				}
				if err := s.frameRepo.InsertBatch(frames); err != nil {
					s.logger.Error("Error saving frames of bundle %d to database: %v", bundle.Index, err)
				}
			}
		}

		savedCount++
	}

	s.logger.Info("Flushed %d bundles to %s", savedCount, s.Dir())
	return savedCount
}
