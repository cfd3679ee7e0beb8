// Package webcam captures frames from a gocv VideoCapture device or stream.
package webcam

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"camsync/internal/logger"
	"camsync/internal/source"
	"camsync/internal/synchronizer"

	"gocv.io/x/gocv"
)

const retryDelay = 10 * time.Millisecond

// FeatureDetector annotates a decoded frame before it is published.
type FeatureDetector interface {
	DetectMat(mat gocv.Mat) ([]synchronizer.Feature, error)
}

type Camera struct {
	*source.Base
	device   string
	capture  *gocv.VideoCapture
	detector FeatureDetector
}

// Open opens device, which is either a device index ("0") or a file or stream URL.
// detector may be nil.
func Open(port synchronizer.Port, device string, detector FeatureDetector, logger *logger.Logger) (*Camera, error) {
	var (
		capture *gocv.VideoCapture
		err     error
	)
	if id, convErr := strconv.Atoi(device); convErr == nil {
		capture, err = gocv.OpenVideoCapture(id)
	} else {
		capture, err = gocv.OpenVideoCapture(device)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open capture device %q for port %d: %w", device, port, err)
	}

	logger.Info("Camera at port %d opened %q (reported %.1f fps)", port, device, capture.Get(gocv.VideoCaptureFPS))
	return &Camera{
		Base:     source.NewBase(port, logger),
		device:   device,
		capture:  capture,
		detector: detector,
	}, nil
}

// Run is the capture loop: one read per fire token. A failed read or encode
// is retried on the same token.
func (c *Camera) Run(ctx context.Context) error {
	defer c.Finish()

	img := gocv.NewMat()
	defer img.Close()

	failures := 0
	for {
		if err := c.Await(ctx); err != nil {
			return nil
		}

		var (
			start, end time.Time
			capture    synchronizer.Capture
		)
		for {
			start = time.Now()
			ok := c.capture.Read(&img)
			end = time.Now()
			if ok && !img.Empty() {
				var err error
				if capture, err = c.encode(img); err == nil {
					break
				}
				c.Logger().Error("Camera at port %d: %v", c.Port(), err)
			}

			failures++
			if failures == 1 || failures%100 == 0 {
				c.Logger().Warning("Camera at port %d failed to read a frame (%d failures)", c.Port(), failures)
			}
			if err := source.Sleep(ctx, retryDelay); err != nil {
				return nil
			}
		}
		capture.Time = source.Midpoint(start, end)

		if err := c.Publish(ctx, capture); err != nil {
			return nil
		}
	}
}

func (c *Camera) encode(img gocv.Mat) (synchronizer.Capture, error) {
	buf, err := gocv.IMEncode(".jpg", img)
	if err != nil {
		return synchronizer.Capture{}, fmt.Errorf("failed to encode frame: %v", err)
	}
	defer buf.Close()

	payload := make([]byte, len(buf.GetBytes()))
	copy(payload, buf.GetBytes())

	capture := synchronizer.Capture{Payload: payload}
	if c.detector != nil {
		features, err := c.detector.DetectMat(img)
		if err != nil {
			c.Logger().Warning("Feature detection failed at port %d: %v", c.Port(), err)
		}
		capture.Features = features
	}
	return capture, nil
}

// Close releases the capture device. Call it after Run has returned.
func (c *Camera) Close() error {
	return c.capture.Close()
}
