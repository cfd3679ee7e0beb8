package synchronizer

import (
	"math"
	"testing"
	"time"
)

func TestThrottle_InitialWait(t *testing.T) {
	th := NewThrottle(25, time.Millisecond, 10)
	if got := th.Wait(); got != 40*time.Millisecond {
		t.Errorf("Expected 40ms initial wait, got %v", got)
	}

	// Fewer than two samples leave the wait alone.
	if got := th.Adjust(); got != 40*time.Millisecond {
		t.Errorf("Expected unchanged wait, got %v", got)
	}
	th.Observe(ms(0))
	if got := th.Adjust(); got != 40*time.Millisecond {
		t.Errorf("Expected unchanged wait with one sample, got %v", got)
	}

	th.Observe(time.Time{})
	th.Observe(ms(0))
	if got := th.Adjust(); got != 40*time.Millisecond {
		t.Errorf("Expected unchanged wait with a zero span, got %v", got)
	}
	if th.Rate() != 0 {
		t.Errorf("Expected no measured rate yet, got %v", th.Rate())
	}
}

func TestThrottle_StepsTowardsTarget(t *testing.T) {
	th := NewThrottle(10, time.Millisecond, 4)
	start := th.Wait()

	// 20 fps, too fast
	th.Observe(ms(0))
	th.Observe(ms(50))
	if got := th.Adjust(); got != start+time.Millisecond {
		t.Errorf("Expected wait to grow by one step, got %v", got)
	}
	if math.Abs(th.Rate()-20) > 1e-6 {
		t.Errorf("Expected measured rate 20, got %v", th.Rate())
	}

	// 0, 50, 550 -> 2 frames in 550ms, too slow
	th.Observe(ms(550))
	if got := th.Adjust(); got != start {
		t.Errorf("Expected wait to shrink by one step, got %v", got)
	}
	if math.Abs(th.Rate()-2/0.55) > 1e-6 {
		t.Errorf("Expected measured rate %.3f, got %v", 2/0.55, th.Rate())
	}
}

func TestThrottle_CalibratesOnFirstFullWindow(t *testing.T) {
	th := NewThrottle(10, time.Millisecond, 4)

	// 40ms apart against a 100ms target: the whole 60ms gap is added at once.
	for _, v := range []float64{0, 40, 80, 120} {
		th.Observe(ms(v))
	}
	if got := th.Adjust(); got != 160*time.Millisecond {
		t.Errorf("Expected calibrated wait 160ms, got %v", got)
	}

	// Afterwards only single steps.
	th.Observe(ms(200))
	if got := th.Adjust(); got != 161*time.Millisecond {
		t.Errorf("Expected one step after calibration, got %v", got)
	}
}

// simulateRounds drives the throttle with a fake clock where every round
// costs work plus the current wait.
func simulateRounds(th *Throttle, work time.Duration, rounds int) []time.Time {
	now := epoch
	times := make([]time.Time, 0, rounds)
	for i := 0; i < rounds; i++ {
		now = now.Add(work + th.Wait())
		times = append(times, now)
		th.Observe(now)
		th.Adjust()
	}
	return times
}

func TestThrottle_ConvergesOnTarget(t *testing.T) {
	th := NewThrottle(30, 500*time.Microsecond, 10)
	times := simulateRounds(th, 10*time.Millisecond, 300)

	tail := times[len(times)-101:]
	rate := 100 / tail[100].Sub(tail[0]).Seconds()
	if math.Abs(rate-30)/30 > 0.1 {
		t.Errorf("Expected rate within 10%% of 30 fps, got %.2f", rate)
	}

	ideal := time.Second/30 - 10*time.Millisecond
	if diff := th.Wait() - ideal; diff < -5*time.Millisecond || diff > 5*time.Millisecond {
		t.Errorf("Expected wait near %v, got %v", ideal, th.Wait())
	}
}

func TestThrottle_ConvergesWithDefaultStep(t *testing.T) {
	tests := []struct {
		name   string
		target float64
		work   time.Duration
	}{
		{"30 fps, 10ms work", 30, 10 * time.Millisecond},
		{"30 fps, 20ms work", 30, 20 * time.Millisecond},
		{"20 fps, 10ms work", 20, 10 * time.Millisecond},
		{"10 fps, 50ms work", 10, 50 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			th := NewThrottle(tt.target, DefaultConfig().ThrottleStep, DefaultConfig().ThrottleWindow)
			times := simulateRounds(th, tt.work, 100)

			last := times[len(times)-10:]
			rate := 9 / last[9].Sub(last[0]).Seconds()
			if math.Abs(rate-tt.target)/tt.target > 0.1 {
				t.Errorf("Expected rate within 10%% of %v fps by round 100, got %.2f", tt.target, rate)
			}
		})
	}
}

func TestThrottle_FloorsAtZero(t *testing.T) {
	// 50ms of work caps the loop at 20 fps, below target.
	th := NewThrottle(30, time.Millisecond, 10)
	simulateRounds(th, 50*time.Millisecond, 200)

	if got := th.Wait(); got != 0 {
		t.Errorf("Expected wait to floor at zero, got %v", got)
	}
}
