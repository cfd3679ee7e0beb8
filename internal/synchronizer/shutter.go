package synchronizer

import (
	"context"
	"sync"
)

// shutter holds one port's token credit and relays it, one token at a time,
// to the port's signal channel. Credit never exceeds one: a token the source
// did not collect before the next fire is dropped, so a stalled source costs
// nothing and does not burst when it comes back.
type shutter struct {
	mu     sync.Mutex
	credit int
	wake   chan struct{}
	out    chan struct{}
}

// ShutterDispatcher paces capture by handing out fire tokens to every port.
// Fire never blocks and collects no acknowledgment.
//
// A port may take up to lead tokens ahead of the fires issued so far. An idle
// source thus keeps its own cadence while a round waits on a slower one, and
// never runs more than lead frames ahead of the bundler.
type ShutterDispatcher struct {
	lead     int
	ports    []Port
	shutters map[Port]*shutter
	wg       sync.WaitGroup
}

// NewShutterDispatcher creates one signal channel per port.
func NewShutterDispatcher(ports []Port, lead int) *ShutterDispatcher {
	if lead < 0 {
		lead = 0
	}
	d := &ShutterDispatcher{
		lead:     lead,
		ports:    ports,
		shutters: make(map[Port]*shutter, len(ports)),
	}
	for _, p := range ports {
		d.shutters[p] = &shutter{
			wake: make(chan struct{}, 1),
			out:  make(chan struct{}),
		}
	}
	return d
}

// Signal returns the channel a port's capture loop waits on before reading a frame.
func (d *ShutterDispatcher) Signal(port Port) <-chan struct{} {
	s, ok := d.shutters[port]
	if !ok {
		return nil
	}
	return s.out
}

// Start runs one relay goroutine per port until ctx is cancelled.
func (d *ShutterDispatcher) Start(ctx context.Context) {
	for _, p := range d.ports {
		d.wg.Add(1)
		go d.relay(ctx, d.shutters[p])
	}
}

// Wait blocks until every relay has exited.
func (d *ShutterDispatcher) Wait() {
	d.wg.Wait()
}

// Fire grants one token to every port.
func (d *ShutterDispatcher) Fire() {
	for _, p := range d.ports {
		s := d.shutters[p]
		s.mu.Lock()
		if s.credit < 1 {
			s.credit++
		}
		s.mu.Unlock()

		select {
		case s.wake <- struct{}{}:
		default:
		}
	}
}

// Pending returns 1 if port has not picked up its token for the last fire.
func (d *ShutterDispatcher) Pending(port Port) int {
	s, ok := d.shutters[port]
	if !ok {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.credit < 0 {
		return 0
	}
	return s.credit
}

// Lead returns how many tokens port has taken ahead of the fires.
func (d *ShutterDispatcher) Lead(port Port) int {
	s, ok := d.shutters[port]
	if !ok {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.credit > 0 {
		return 0
	}
	return -s.credit
}

func (d *ShutterDispatcher) relay(ctx context.Context, s *shutter) {
	defer d.wg.Done()

	for {
		s.mu.Lock()
		credit := s.credit
		s.mu.Unlock()

		if credit <= -d.lead {
			select {
			case <-s.wake:
				continue
			case <-ctx.Done():
				return
			}
		}

		select {
		case s.out <- struct{}{}:
			s.mu.Lock()
			s.credit--
			s.mu.Unlock()
		case <-ctx.Done():
			return
		}
	}
}
