package synchronizer

import (
	"sync"
	"time"
)

// Throttle is an integral controller on the delay between fire rounds. It
// nudges the wait by a fixed step towards the target bundle rate measured
// over a trailing window of bundle mean timestamps. Oscillation around the
// target is expected.
//
// The first time the window is full the wait is corrected once by the whole
// gap between the target and the measured frame interval, since the initial
// wait does not account for the work a round takes.
type Throttle struct {
	mu         sync.Mutex
	target     float64
	step       time.Duration
	window     int
	times      []time.Time
	wait       time.Duration
	rate       float64
	calibrated bool
}

// NewThrottle starts with a wait of one target frame interval.
func NewThrottle(targetFPS float64, step time.Duration, window int) *Throttle {
	if window < 2 {
		window = 2
	}
	return &Throttle{
		target: targetFPS,
		step:   step,
		window: window,
		times:  make([]time.Time, 0, window+1),
		wait:   time.Duration(float64(time.Second) / targetFPS),
	}
}

// Observe records the mean timestamp of a published bundle.
func (t *Throttle) Observe(mean time.Time) {
	if mean.IsZero() {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.times = append(t.times, mean)
	if len(t.times) > t.window {
		copy(t.times, t.times[len(t.times)-t.window:])
		t.times = t.times[:t.window]
	}
}

// measure computes 1 / mean(diff(window)); needs the lock held.
func (t *Throttle) measure() (float64, bool) {
	n := len(t.times)
	if n < 2 {
		return 0, false
	}
	span := t.times[n-1].Sub(t.times[0])
	if span <= 0 {
		return 0, false
	}
	return float64(n-1) / span.Seconds(), true
}

// Adjust moves the wait one step, or calibrates it on the first full window,
// and returns it. With fewer than two samples the wait is left unchanged.
func (t *Throttle) Adjust() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	rate, ok := t.measure()
	if !ok {
		return t.wait
	}
	t.rate = rate

	if !t.calibrated && len(t.times) >= t.window {
		t.calibrated = true
		gap := time.Duration(float64(time.Second)/t.target - float64(time.Second)/rate)
		t.wait += gap
		if t.wait < 0 {
			t.wait = 0
		}
		return t.wait
	}

	if rate > t.target {
		t.wait += t.step
	} else {
		t.wait -= t.step
		if t.wait < 0 {
			t.wait = 0
		}
	}
	return t.wait
}

// Wait is the current fire-to-fire delay.
func (t *Throttle) Wait() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.wait
}

// Rate is the last measured bundle rate, or 0 before the window fills.
func (t *Throttle) Rate() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rate
}
