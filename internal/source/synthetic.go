package source

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"time"

	"camsync/internal/logger"
	"camsync/internal/synchronizer"
)

const (
	patternWidth    = 64
	patternHeight   = 48
	patternVariants = 8
)

// Synthetic produces a moving test pattern, never faster than its frame rate.
// A token that arrives early waits out the rest of the frame interval, like a
// camera blocking in its read call.
type Synthetic struct {
	*Base
	interval time.Duration
	frames   [][]byte
	last     time.Time
}

func NewSynthetic(port synchronizer.Port, fps float64, logger *logger.Logger) (*Synthetic, error) {
	if fps <= 0 {
		return nil, fmt.Errorf("synthetic source at port %d: fps must be positive, got %v", port, fps)
	}

	frames := make([][]byte, patternVariants)
	for i := range frames {
		data, err := encodePattern(int(port), i)
		if err != nil {
			return nil, fmt.Errorf("synthetic source at port %d: %w", port, err)
		}
		frames[i] = data
	}

	return &Synthetic{
		Base:     NewBase(port, logger),
		interval: time.Duration(float64(time.Second) / fps),
		frames:   frames,
	}, nil
}

// Run is the capture loop. It closes the reel when ctx is done.
func (s *Synthetic) Run(ctx context.Context) error {
	defer s.Finish()

	var n int
	for {
		if err := s.Await(ctx); err != nil {
			return nil
		}

		start := time.Now()
		if !s.last.IsZero() {
			if err := Sleep(ctx, s.interval-start.Sub(s.last)); err != nil {
				return nil
			}
		}
		s.last = time.Now()

		capture := synchronizer.Capture{
			Time:    Midpoint(start, s.last),
			Payload: s.frames[n%len(s.frames)],
		}
		n++

		if err := s.Publish(ctx, capture); err != nil {
			return nil
		}
	}
}

func (s *Synthetic) Close() error {
	return nil
}

// encodePattern draws a port-coloured frame with a bar whose position
// depends on variant.
func encodePattern(port, variant int) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, patternWidth, patternHeight))
	bg := color.RGBA{R: uint8(40 * (port % 6)), G: uint8(255 - 30*(port%8)), B: 128, A: 255}
	bar := color.RGBA{R: 255, G: 255, B: 255, A: 255}

	barWidth := patternWidth / patternVariants
	for y := 0; y < patternHeight; y++ {
		for x := 0; x < patternWidth; x++ {
			if x/barWidth == variant {
				img.Set(x, y, bar)
			} else {
				img.Set(x, y, bg)
			}
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 75}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
