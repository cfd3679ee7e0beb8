// Package source holds the frame source adapters attached to a synchronizer.
// Every adapter runs its own capture loop: wait for a fire token, capture one
// frame, publish it on the reel.
package source

import (
	"context"
	"sync"
	"time"

	"camsync/internal/logger"
	"camsync/internal/synchronizer"
)

const reelBuffer = 8

// Detector annotates an encoded frame with its features.
type Detector interface {
	Detect(image []byte) ([]synchronizer.Feature, error)
}

// Base implements the synchronizer.Source plumbing shared by the adapters.
type Base struct {
	port     synchronizer.Port
	reel     chan synchronizer.Capture
	signal   <-chan struct{}
	detector Detector
	logger   *logger.Logger

	mu       sync.Mutex
	lastTime time.Time
	fps      float64
	captured uint64
}

func NewBase(port synchronizer.Port, logger *logger.Logger) *Base {
	return &Base{
		port:   port,
		reel:   make(chan synchronizer.Capture, reelBuffer),
		logger: logger,
	}
}

func (b *Base) Port() synchronizer.Port              { return b.port }
func (b *Base) Reel() <-chan synchronizer.Capture    { return b.reel }
func (b *Base) AssignShutter(signal <-chan struct{}) { b.signal = signal }

// SetDetector makes Publish annotate captures that carry no features yet.
// It must be called before the capture loop starts.
func (b *Base) SetDetector(d Detector) {
	b.detector = d
}

// Await blocks until the next fire token. It returns ctx.Err() on shutdown.
func (b *Base) Await(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-b.signal:
		return nil
	}
}

// Publish hands a capture to the harvester and updates the frame rate
// estimate.
func (b *Base) Publish(ctx context.Context, c synchronizer.Capture) error {
	if b.detector != nil && c.Features == nil {
		features, err := b.detector.Detect(c.Payload)
		if err != nil {
			b.logger.Warning("Feature detection failed at port %d: %v", b.port, err)
		} else {
			c.Features = features
		}
	}

	b.mu.Lock()
	if !b.lastTime.IsZero() {
		if dt := c.Time.Sub(b.lastTime).Seconds(); dt > 0 {
			// Smoothed like a camera's reported frame rate
			b.fps = 0.9*b.fps + 0.1*(1/dt)
		}
	}
	b.lastTime = c.Time
	b.captured++
	b.mu.Unlock()

	select {
	case b.reel <- c:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Finish closes the reel; the harvester stops once it has drained it.
func (b *Base) Finish() {
	close(b.reel)
}

// FPS is the smoothed rate at which frames were actually captured.
func (b *Base) FPS() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fps
}

// Captured is the number of frames published so far.
func (b *Base) Captured() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.captured
}

func (b *Base) Logger() *logger.Logger {
	return b.logger
}

// Midpoint is the timestamp of a capture call that ran from start to end.
func Midpoint(start, end time.Time) time.Time {
	return start.Add(end.Sub(start) / 2)
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
