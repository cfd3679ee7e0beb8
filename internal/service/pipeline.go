// Package service consumes published bundles: it streams them to viewers and
// hands a subset to the recorder.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"camsync/internal/config"
	"camsync/internal/dto"
	"camsync/internal/logger"
	"camsync/internal/synchronizer"
)

// Broadcaster delivers viewer messages.
type Broadcaster interface {
	Broadcast(message []byte)
	GetClientCount() int
}

// BundleRecorder stores bundles; AddBundle returns false if it dropped one.
type BundleRecorder interface {
	AddBundle(b *synchronizer.Bundle) bool
}

// MotionDetector reports whether image differs from the port's previous one.
type MotionDetector interface {
	DetectMotion(image []byte, port synchronizer.Port) (bool, error)
}

type Pipeline struct {
	bundles  *synchronizer.BundleQueue
	hub      Broadcaster
	recorder BundleRecorder
	motion   MotionDetector
	logger   *logger.Logger

	processingQueue chan *synchronizer.Bundle
	recordEveryNth  int
	numWorkers      int
	bundleCounter   int

	statsMu   sync.Mutex
	consumed  uint64
	broadcast uint64
	recorded  uint64
	present   map[synchronizer.Port]uint64
	absent    map[synchronizer.Port]uint64

	wg sync.WaitGroup
}

// NewPipeline wires a bundle queue to its consumers. hub, recorder and motion
// may each be nil.
func NewPipeline(bundles *synchronizer.BundleQueue, hub Broadcaster, recorder BundleRecorder, motion MotionDetector, config *config.Config, logger *logger.Logger) *Pipeline {
	everyNth := config.RecordEveryNth
	if everyNth <= 0 {
		everyNth = 1
	}
	workers := config.RecordWorkers
	if workers <= 0 {
		workers = 1
	}

	return &Pipeline{
		bundles:         bundles,
		hub:             hub,
		recorder:        recorder,
		motion:          motion,
		logger:          logger,
		processingQueue: make(chan *synchronizer.Bundle, 100),
		recordEveryNth:  everyNth,
		numWorkers:      workers,
		present:         make(map[synchronizer.Port]uint64),
		absent:          make(map[synchronizer.Port]uint64),
	}
}

// Run consumes bundles until the queue is closed and drained or ctx is done,
// then waits for the recording workers.
func (p *Pipeline) Run(ctx context.Context) error {
	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.processingWorker(i)
	}
	defer func() {
		close(p.processingQueue)
		p.wg.Wait()
	}()

	p.logger.Info("Pipeline started - recording every %d bundle(s)", p.recordEveryNth)
	for {
		b, err := p.bundles.Get(ctx)
		if errors.Is(err, synchronizer.ErrClosed) {
			p.logger.Info("Bundle queue closed, pipeline stopping")
			return nil
		}
		if err != nil {
			return nil
		}
		p.HandleBundle(b)
	}
}

// HandleBundle counts b, sends it to the viewers and queues every Nth bundle
// for recording. It must only be called from Run's goroutine.
func (p *Pipeline) HandleBundle(b *synchronizer.Bundle) {
	p.statsMu.Lock()
	p.consumed++
	for port, rec := range b.Frames {
		if rec != nil {
			p.present[port]++
		} else {
			p.absent[port]++
		}
	}
	p.statsMu.Unlock()

	p.SendToViewers(b)

	if p.recorder == nil {
		return
	}

	p.bundleCounter++
	if p.bundleCounter%p.recordEveryNth != 0 {
		return
	}
	p.bundleCounter = 0

	select {
	case p.processingQueue <- b:
	default:
		p.logger.Warning("Processing queue full - skipping bundle %d", b.Index)
	}
}

// SendToViewers broadcasts b unless nobody is watching.
func (p *Pipeline) SendToViewers(b *synchronizer.Bundle) {
	if p.hub == nil || p.hub.GetClientCount() == 0 {
		return
	}

	msg, err := EncodeBundle(b)
	if err != nil {
		p.logger.Error("Failed to encode bundle %d: %v", b.Index, err)
		return
	}
	p.hub.Broadcast(msg)

	p.statsMu.Lock()
	p.broadcast++
	p.statsMu.Unlock()
}

func (p *Pipeline) processingWorker(workerID int) {
	defer p.wg.Done()

	p.logger.Debug("Recording worker %d started", workerID)
	for b := range p.processingQueue {
		p.record(b)
	}
	p.logger.Debug("Recording worker %d stopped", workerID)
}

func (p *Pipeline) record(b *synchronizer.Bundle) {
	if p.motion != nil && !p.hasMotion(b) {
		return
	}
	if p.recorder.AddBundle(b) {
		p.statsMu.Lock()
		p.recorded++
		p.statsMu.Unlock()
	}
}

// hasMotion runs the detector on every present frame so each port's
// reference frame stays current.
func (p *Pipeline) hasMotion(b *synchronizer.Bundle) bool {
	motion := false
	for _, port := range b.Ports() {
		rec, ok := b.Frame(port)
		if !ok {
			continue
		}
		detected, err := p.motion.DetectMotion(rec.Payload, port)
		if err != nil {
			p.logger.Error("Error detecting motion at port %d: %v", port, err)
			continue
		}
		motion = motion || detected
	}
	return motion
}

// Status returns the pipeline counters.
func (p *Pipeline) Status() dto.PipelineStatus {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()

	status := dto.PipelineStatus{
		Consumed:  p.consumed,
		Broadcast: p.broadcast,
		Recorded:  p.recorded,
		Present:   make(map[int]uint64, len(p.present)),
		Absent:    make(map[int]uint64, len(p.absent)),
	}
	for port, n := range p.present {
		status.Present[int(port)] = n
	}
	for port, n := range p.absent {
		status.Absent[int(port)] = n
	}
	return status
}

type frameMessage struct {
	Port     int                    `json:"port"`
	Sequence *uint64                `json:"sequence,omitempty"`
	Time     *time.Time             `json:"time,omitempty"`
	Image    []byte                 `json:"image,omitempty"`
	Features []synchronizer.Feature `json:"features,omitempty"`
	Absent   bool                   `json:"absent,omitempty"`
}

type bundleMessage struct {
	Bundle uint64         `json:"bundle"`
	Cutoff time.Time      `json:"cutoff"`
	Frames []frameMessage `json:"frames"`
}

// EncodeBundle renders the viewer message for b. Images are base64 encoded;
// absent ports are listed with "absent": true.
func EncodeBundle(b *synchronizer.Bundle) ([]byte, error) {
	msg := bundleMessage{
		Bundle: b.Index,
		Cutoff: b.Cutoff,
		Frames: make([]frameMessage, 0, len(b.Frames)),
	}
	for _, port := range b.Ports() {
		rec, ok := b.Frame(port)
		if !ok {
			msg.Frames = append(msg.Frames, frameMessage{Port: int(port), Absent: true})
			continue
		}
		ts, seq := rec.Time, rec.Sequence
		msg.Frames = append(msg.Frames, frameMessage{
			Port:     int(port),
			Sequence: &seq,
			Time:     &ts,
			Image:    rec.Payload,
			Features: rec.Features,
		})
	}
	return json.Marshal(msg)
}
