package detect

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"testing"

	"camsync/internal/logger"
)

func squareJPEG(t *testing.T, x, y int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 120, 90))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.Black}, image.Point{}, draw.Src)
	draw.Draw(img, image.Rect(x, y, x+40, y+40), &image.Uniform{C: color.White}, image.Point{}, draw.Src)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}); err != nil {
		t.Fatalf("Failed to encode test image: %v", err)
	}
	return buf.Bytes()
}

func TestFeatureDetector_FindsSquareCorners(t *testing.T) {
	d := NewFeatureDetector(20)

	features, err := d.Detect(squareJPEG(t, 30, 20))
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(features) < 4 {
		t.Fatalf("Expected at least the 4 square corners, got %d features", len(features))
	}
	for _, f := range features {
		if f.X < 20 || f.X > 80 || f.Y < 10 || f.Y > 70 {
			t.Errorf("Feature (%.1f, %.1f) is far from the square", f.X, f.Y)
		}
	}
}

func TestFeatureDetector_RejectsGarbage(t *testing.T) {
	if _, err := NewFeatureDetector(0).Detect([]byte("not an image")); err == nil {
		t.Error("Expected error for undecodable input")
	}
}

func TestMotionDetector(t *testing.T) {
	m := NewMotionDetector(200, logger.NewNop())
	defer m.Close()

	still := squareJPEG(t, 30, 20)
	moved := squareJPEG(t, 70, 40)

	tests := []struct {
		name     string
		image    []byte
		expected bool
	}{
		{"first frame", still, false},
		{"same frame", still, false},
		{"square moved", moved, true},
		{"moved frame again", moved, false},
	}

	for _, tt := range tests {
		motion, err := m.DetectMotion(tt.image, 0)
		if err != nil {
			t.Fatalf("%s: DetectMotion failed: %v", tt.name, err)
		}
		if motion != tt.expected {
			t.Errorf("%s: expected motion=%v, got %v", tt.name, tt.expected, motion)
		}
	}

	// Ports keep separate history.
	if motion, _ := m.DetectMotion(still, 1); motion {
		t.Error("First frame on a new port should not report motion")
	}
}
