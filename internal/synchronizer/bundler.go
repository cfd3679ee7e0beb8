package synchronizer

import (
	"context"
	"fmt"
	"time"
)

// bundle is the bundler's main loop. It runs until ctx is cancelled or an
// invariant is broken.
func (s *Synchronizer) bundle(ctx context.Context) error {
	s.logger.Info("Waiting for all ports to begin harvesting frames...")
	if err := s.waitForSlack(ctx, 1); err != nil {
		return err
	}

	// A second frame per port bounds the first cutoff.
	s.shutter.Fire()

	s.logger.Info("About to start bundling frames from ports %v", s.ports)
	for {
		s.shutter.Fire()

		if err := s.waitForSlack(ctx, 2); err != nil {
			return err
		}

		b, err := s.assemble()
		if err != nil {
			return fmt.Errorf("bundle %d: %w", s.published, err)
		}
		s.logger.Debug("Bundle %d: %d/%d ports present, unassigned frames: %d",
			b.Index, b.Present(), len(s.ports), s.table.Len())

		// Only throttle when nearly current, so a backlog is not slowed down further.
		s.throttle.Observe(b.MeanTime)
		if s.frameSlack() < uint64(s.cfg.ThrottleSlack) {
			if err := sleepContext(ctx, s.throttle.Adjust()); err != nil {
				return err
			}
		}

		if err := s.bundles.Put(b); err != nil {
			return err
		}
		s.stateMu.Lock()
		s.published++
		s.stateMu.Unlock()
	}
}

// assemble computes the cutoff and claims every port's current record that
// precedes it. Cursors move only after every port has been resolved.
func (s *Synchronizer) assemble() (*Bundle, error) {
	active := s.activePorts()

	// A frame joins the bundle only if it precedes every port's next frame.
	var cutoff time.Time
	for i, p := range active {
		t, err := s.table.Time(FrameKey{Port: p, Sequence: s.cursor[p] + 1})
		if err != nil {
			return nil, err
		}
		if i == 0 || t.Before(cutoff) {
			cutoff = t
		}
	}

	b := &Bundle{
		Index:  s.published,
		Cutoff: cutoff,
		Frames: make(map[Port]*FrameRecord, len(s.ports)),
	}
	times := make([]time.Time, 0, len(active))
	for _, p := range s.ports {
		b.Frames[p] = nil
		if s.degraded[p] {
			continue
		}

		rec, err := s.table.ClaimBefore(FrameKey{Port: p, Sequence: s.cursor[p]}, cutoff)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			b.Frames[p] = rec
			times = append(times, rec.Time)
		}
	}
	b.MeanTime = meanTime(times)

	s.stateMu.Lock()
	for p, rec := range b.Frames {
		if rec != nil {
			s.cursor[p]++
		}
	}
	s.lastCutoff = cutoff
	s.stateMu.Unlock()

	return b, nil
}

// frameSlack is the smallest backlog among ports that are not degraded.
func (s *Synchronizer) frameSlack() uint64 {
	var slack uint64
	first := true
	for _, p := range s.ports {
		if s.degraded[p] {
			continue
		}
		n := s.table.Harvested(p) - s.cursor[p]
		if first || n < slack {
			slack = n
			first = false
		}
	}
	return slack
}

func (s *Synchronizer) activePorts() []Port {
	active := make([]Port, 0, len(s.ports))
	for _, p := range s.ports {
		if !s.degraded[p] {
			active = append(active, p)
		}
	}
	return active
}

// waitForSlack blocks until every active port has at least need unclaimed
// records. Wake-ups come from the table's insert signal.
func (s *Synchronizer) waitForSlack(ctx context.Context, need uint64) error {
	var timer *time.Timer
	var stall <-chan time.Time
	if s.cfg.StallTimeout > 0 {
		timer = time.NewTimer(s.cfg.StallTimeout)
		defer timer.Stop()
		stall = timer.C
	}

	for {
		s.restoreRecovered()
		if len(s.activePorts()) > 0 && s.frameSlack() >= need {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.table.Updated():
		case <-stall:
			s.degradeStalled(need)
			timer.Reset(s.cfg.StallTimeout)
		}
	}
}

// degradeStalled marks every active port short of need as degraded, unless
// no port at all is ready, in which case waiting continues.
func (s *Synchronizer) degradeStalled(need uint64) {
	var stalled []Port
	ready := 0
	for _, p := range s.activePorts() {
		if s.table.Harvested(p)-s.cursor[p] >= need {
			ready++
		} else {
			stalled = append(stalled, p)
		}
	}
	if ready == 0 {
		s.logger.Warning("No port produced a frame in %v, still waiting", s.cfg.StallTimeout)
		return
	}

	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	for _, p := range stalled {
		harvested := s.table.Harvested(p)
		dropped := s.table.Discard(p, s.cursor[p], harvested)
		s.cursor[p] = harvested
		s.degraded[p] = true
		s.logger.Warning("Port %d stalled for %v, marking degraded (%d frames discarded)", p, s.cfg.StallTimeout, dropped)
	}
}

// restoreRecovered brings a degraded port back once it has two fresh
// records. Records older than the last published cutoff are discarded first
// so cutoffs keep increasing.
func (s *Synchronizer) restoreRecovered() {
	for _, p := range s.ports {
		if !s.degraded[p] {
			continue
		}

		harvested := s.table.Harvested(p)
		cursor := s.cursor[p]
		for cursor < harvested && !s.lastCutoff.IsZero() {
			t, err := s.table.Time(FrameKey{Port: p, Sequence: cursor})
			if err != nil || !t.Before(s.lastCutoff) {
				break
			}
			s.table.Discard(p, cursor, cursor+1)
			cursor++
		}

		s.stateMu.Lock()
		s.cursor[p] = cursor
		if harvested-cursor >= 2 {
			s.degraded[p] = false
			s.logger.Info("Port %d recovered, resuming bundling", p)
		}
		s.stateMu.Unlock()
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
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
