package synchronizer_test

import (
	"context"
	"math"
	"testing"
	"time"

	"camsync/internal/logger"
	"camsync/internal/source"
	"camsync/internal/synchronizer"
)

func TestSynchronizer_BacklogStaysBoundedWithRealSources(t *testing.T) {
	if testing.Short() {
		t.Skip("runs on the wall clock")
	}

	rates := map[synchronizer.Port]float64{0: 60, 1: 60, 2: 30}
	var sources []synchronizer.Source
	var synthetic []*source.Synthetic
	for port, fps := range rates {
		src, err := source.NewSynthetic(port, fps, logger.NewNop())
		if err != nil {
			t.Fatalf("NewSynthetic failed: %v", err)
		}
		sources = append(sources, src)
		synthetic = append(synthetic, src)
	}

	cfg := synchronizer.DefaultConfig()
	cfg.TargetFPS = 60
	s, err := synchronizer.New(sources, cfg, logger.NewNop())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 1500*time.Millisecond)
	defer cancel()
	for _, src := range synthetic {
		go src.Run(ctx)
	}
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	present := make(map[synchronizer.Port]int)
	bundles := 0
	var maxSlack uint64

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			b, err := s.Bundles().Get(context.Background())
			if err != nil {
				return
			}
			bundles++
			for _, p := range b.Ports() {
				if _, ok := b.Frame(p); ok {
					present[p]++
				}
			}
		}
	}()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
sample:
	for {
		select {
		case <-ctx.Done():
			break sample
		case <-ticker.C:
			for _, ps := range s.Stats().Ports {
				if ps.Slack > maxSlack {
					maxSlack = ps.Slack
				}
			}
		}
	}

	if err := s.Wait(); err != nil {
		t.Fatalf("Synchronizer failed: %v", err)
	}
	<-done

	if bundles < 30 {
		t.Errorf("Expected at least 30 bundles in 1.5s, got %d", bundles)
	}
	for port := range rates {
		if present[port] == 0 {
			t.Errorf("Port %d never appeared in a bundle", port)
		}
	}
	if present[2] >= present[0] {
		t.Errorf("The 30 fps port should be absent from some bundles (%d vs %d)", present[2], present[0])
	}
	if maxSlack > 12 {
		t.Errorf("Backlog grew to %d frames", maxSlack)
	}
}

func TestSynchronizer_FollowsFasterSourceOnRateMismatch(t *testing.T) {
	if testing.Short() {
		t.Skip("runs on the wall clock")
	}

	fast, err := source.NewSynthetic(0, 30, logger.NewNop())
	if err != nil {
		t.Fatalf("NewSynthetic failed: %v", err)
	}
	slow, err := source.NewSynthetic(1, 15, logger.NewNop())
	if err != nil {
		t.Fatalf("NewSynthetic failed: %v", err)
	}

	cfg := synchronizer.DefaultConfig()
	cfg.TargetFPS = 30
	s, err := synchronizer.New([]synchronizer.Source{fast, slow}, cfg, logger.NewNop())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go fast.Run(ctx)
	go slow.Run(ctx)
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Skip the first two seconds while the throttle settles.
	settled := time.Now().Add(2 * time.Second)
	var first, last time.Time
	var bundles, slowPresent int
	for {
		b, err := s.Bundles().Get(context.Background())
		if err != nil {
			break
		}
		now := time.Now()
		if now.Before(settled) {
			continue
		}
		if first.IsZero() {
			first = now
		}
		last = now
		bundles++
		if _, ok := b.Frame(1); ok {
			slowPresent++
		}
	}
	if err := s.Wait(); err != nil {
		t.Fatalf("Synchronizer failed: %v", err)
	}

	if bundles < 30 {
		t.Fatalf("Expected a steady stream of bundles, got %d", bundles)
	}
	rate := float64(bundles-1) / last.Sub(first).Seconds()
	if math.Abs(rate-30)/30 > 0.15 {
		t.Errorf("Expected about 30 bundles/s, got %.1f", rate)
	}
	ratio := float64(slowPresent) / float64(bundles)
	if ratio < 0.35 || ratio > 0.65 {
		t.Errorf("Expected the 15 fps port in about half the bundles, got %.0f%%", 100*ratio)
	}
}
