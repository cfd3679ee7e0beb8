// Package synchronizer aligns frames from independently running camera
// sources into time-aligned bundles.
//
// Topology:
//   - 1 harvester goroutine per source, draining its reel into the FrameTable
//   - 1 shutter relay goroutine per source, delivering fire tokens
//   - 1 bundler goroutine, firing the shutters, claiming frames and
//     publishing Bundles on the BundleQueue
//
// Sources own their capture loops; the synchronizer only reads their reels
// and hands them a signal channel.
package synchronizer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"camsync/internal/logger"
)

var (
	ErrNoSources      = errors.New("synchronizer needs at least one source")
	ErrAlreadyStarted = errors.New("synchronizer already started")
	ErrUnknownPort    = errors.New("unknown port")
	ErrMissingRecord  = errors.New("frame record missing from table")
	ErrOutOfOrder     = errors.New("frame sequence out of order")
	ErrClosed         = errors.New("bundle queue closed")
)

// Source is a frame source adapter. Its capture loop reads one frame per
// token received on the channel passed to AssignShutter and publishes it on
// Reel.
type Source interface {
	Port() Port
	Reel() <-chan Capture
	AssignShutter(signal <-chan struct{})
}

// Config holds the tunables of the bundling loop.
type Config struct {
	TargetFPS      float64
	ThrottleStep   time.Duration
	ThrottleWindow int
	// ThrottleSlack disables throttling while the smallest port backlog is at
	// or above this value, so working off a backlog is not slowed down.
	ThrottleSlack int
	// StallTimeout, when positive, degrades ports that keep a wait blocked
	// for longer than this. Zero waits forever.
	StallTimeout time.Duration
	// ShutterLead is how many frames a source may capture ahead of the
	// shutter fires.
	ShutterLead int
}

func DefaultConfig() Config {
	return Config{
		TargetFPS:      30,
		ThrottleStep:   100 * time.Microsecond,
		ThrottleWindow: 10,
		ThrottleSlack:  3,
		ShutterLead:    4,
	}
}

// PortStats is a snapshot of one port's bookkeeping.
type PortStats struct {
	Port         Port   `json:"port"`
	Harvested    uint64 `json:"harvested"`
	Cursor       uint64 `json:"cursor"`
	Slack        uint64 `json:"slack"`
	PendingFires int    `json:"pending_fires"`
	Lead         int    `json:"lead"`
	Degraded     bool   `json:"degraded"`
}

// Stats is a snapshot of the whole synchronizer.
type Stats struct {
	Ports        []PortStats   `json:"ports"`
	Published    uint64        `json:"published"`
	Queued       int           `json:"queued"`
	Unclaimed    int           `json:"unclaimed"`
	FPS          float64       `json:"fps"`
	ThrottleWait time.Duration `json:"throttle_wait"`
}

type Synchronizer struct {
	cfg      Config
	ports    []Port
	sources  map[Port]Source
	table    *FrameTable
	shutter  *ShutterDispatcher
	throttle *Throttle
	bundles  *BundleQueue
	logger   *logger.Logger

	// Written by the bundler only; the lock is for Stats readers.
	stateMu    sync.Mutex
	cursor     map[Port]uint64
	degraded   map[Port]bool
	published  uint64
	lastCutoff time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	startedMu sync.Mutex
	started   bool

	errMu sync.Mutex
	err   error
}

// New wires the sources to a fresh frame table and shutter dispatcher. The
// port set is fixed for the lifetime of the Synchronizer.
func New(sources []Source, cfg Config, logger *logger.Logger) (*Synchronizer, error) {
	if len(sources) == 0 {
		return nil, ErrNoSources
	}
	if cfg.TargetFPS <= 0 {
		return nil, fmt.Errorf("target fps must be positive, got %v", cfg.TargetFPS)
	}
	if cfg.ThrottleSlack <= 0 {
		cfg.ThrottleSlack = DefaultConfig().ThrottleSlack
	}
	if cfg.ThrottleWindow <= 0 {
		cfg.ThrottleWindow = DefaultConfig().ThrottleWindow
	}
	if cfg.ShutterLead <= 0 {
		cfg.ShutterLead = DefaultConfig().ShutterLead
	}

	s := &Synchronizer{
		cfg:      cfg,
		sources:  make(map[Port]Source, len(sources)),
		cursor:   make(map[Port]uint64, len(sources)),
		degraded: make(map[Port]bool),
		throttle: NewThrottle(cfg.TargetFPS, cfg.ThrottleStep, cfg.ThrottleWindow),
		bundles:  NewBundleQueue(),
		logger:   logger,
	}

	for _, src := range sources {
		p := src.Port()
		if _, dup := s.sources[p]; dup {
			return nil, fmt.Errorf("port %d attached twice", p)
		}
		s.sources[p] = src
		s.ports = append(s.ports, p)
	}
	sort.Slice(s.ports, func(i, j int) bool { return s.ports[i] < s.ports[j] })

	s.table = NewFrameTable(s.ports)
	s.shutter = NewShutterDispatcher(s.ports, cfg.ShutterLead)
	for p, src := range s.sources {
		src.AssignShutter(s.shutter.Signal(p))
	}

	return s, nil
}

// Ports returns the attached ports in ascending order.
func (s *Synchronizer) Ports() []Port {
	return append([]Port(nil), s.ports...)
}

// Bundles is the output queue. It is closed when the bundler exits.
func (s *Synchronizer) Bundles() *BundleQueue {
	return s.bundles
}

// Start launches the harvesters, the shutter relays and the bundler, and
// primes every source with its first fire token. It returns immediately.
func (s *Synchronizer) Start(ctx context.Context) error {
	s.startedMu.Lock()
	defer s.startedMu.Unlock()

	if s.started {
		return ErrAlreadyStarted
	}
	s.started = true
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.shutter.Start(s.ctx)

	s.logger.Info("About to start %d frame harvesters", len(s.ports))
	for _, p := range s.ports {
		h := newHarvester(p, s.sources[p].Reel(), s.table, s.logger)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := h.run(s.ctx); err != nil {
				s.fail(err)
			}
		}()
	}

	s.shutter.Fire()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.bundles.Close()
		if err := s.bundle(s.ctx); err != nil && s.ctx.Err() == nil {
			s.fail(err)
		}
	}()

	return nil
}

// Stop cancels all goroutines and waits for them. It returns the error that
// aborted the bundler, if any.
func (s *Synchronizer) Stop() error {
	s.startedMu.Lock()
	if !s.started {
		s.startedMu.Unlock()
		return nil
	}
	s.startedMu.Unlock()

	s.cancel()
	return s.Wait()
}

// Wait blocks until the synchronizer has shut down.
func (s *Synchronizer) Wait() error {
	s.wg.Wait()
	s.shutter.Wait()
	return s.Err()
}

// Err returns the first fatal error, or nil.
func (s *Synchronizer) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// fail records err and tears the synchronizer down.
func (s *Synchronizer) fail(err error) {
	s.errMu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.errMu.Unlock()

	s.logger.Error("Synchronizer aborted: %v", err)
	s.cancel()
}

// Stats returns a consistent-enough snapshot for monitoring.
func (s *Synchronizer) Stats() Stats {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	stats := Stats{
		Ports:        make([]PortStats, 0, len(s.ports)),
		Published:    s.published,
		Queued:       s.bundles.Len(),
		Unclaimed:    s.table.Len(),
		FPS:          s.throttle.Rate(),
		ThrottleWait: s.throttle.Wait(),
	}
	for _, p := range s.ports {
		harvested := s.table.Harvested(p)
		ps := PortStats{
			Port:         p,
			Harvested:    harvested,
			Cursor:       s.cursor[p],
			PendingFires: s.shutter.Pending(p),
			Lead:         s.shutter.Lead(p),
			Degraded:     s.degraded[p],
		}
		if harvested > ps.Cursor {
			ps.Slack = harvested - ps.Cursor
		}
		stats.Ports = append(stats.Ports, ps)
	}
	return stats
}
