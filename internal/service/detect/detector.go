// Package detect annotates frames with gocv: corner features for the capture
// loop and frame-difference motion for the recorder.
package detect

import (
	"fmt"
	"sync"

	"camsync/internal/logger"
	"camsync/internal/synchronizer"

	"gocv.io/x/gocv"
)

const (
	// DefaultQuality is the minimal accepted corner quality, relative to the best corner.
	DefaultQuality = 0.01
	// DefaultMinDistance is the minimal distance in pixels between returned corners.
	DefaultMinDistance = 10

	diffThreshold = 30
)

// FeatureDetector finds strong corners (Shi-Tomasi) in a frame.
type FeatureDetector struct {
	maxFeatures int
	quality     float64
	minDistance float64
}

func NewFeatureDetector(maxFeatures int) *FeatureDetector {
	if maxFeatures <= 0 {
		maxFeatures = 50
	}
	return &FeatureDetector{
		maxFeatures: maxFeatures,
		quality:     DefaultQuality,
		minDistance: DefaultMinDistance,
	}
}

// DetectMat runs on an already decoded BGR frame.
func (d *FeatureDetector) DetectMat(mat gocv.Mat) ([]synchronizer.Feature, error) {
	if mat.Empty() {
		return nil, fmt.Errorf("frame is empty")
	}

	gray := gocv.NewMat()
	defer gray.Close()
	if err := gocv.CvtColor(mat, &gray, gocv.ColorBGRToGray); err != nil {
		return nil, fmt.Errorf("failed to convert image to grayscale: %v", err)
	}

	corners := gocv.NewMat()
	defer corners.Close()
	gocv.GoodFeaturesToTrack(gray, &corners, d.maxFeatures, d.quality, d.minDistance)

	features := make([]synchronizer.Feature, 0, corners.Rows())
	for i := 0; i < corners.Rows(); i++ {
		pt := corners.GetVecfAt(i, 0)
		if len(pt) < 2 {
			continue
		}
		features = append(features, synchronizer.Feature{X: pt[0], Y: pt[1]})
	}
	return features, nil
}

// Detect decodes an encoded image and runs DetectMat on it.
func (d *FeatureDetector) Detect(image []byte) ([]synchronizer.Feature, error) {
	mat, err := gocv.IMDecode(image, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %v", err)
	}
	defer mat.Close()

	return d.DetectMat(mat)
}

// portState holds the previous frame of a single port.
type portState struct {
	previousMat gocv.Mat
	hasPrevious bool
	mutex       sync.Mutex
}

// MotionDetector compares each port's frame against that port's previous one.
type MotionDetector struct {
	threshold   int
	states      map[synchronizer.Port]*portState
	statesMutex sync.RWMutex
	logger      *logger.Logger
}

// NewMotionDetector reports motion when more than threshold pixels change.
func NewMotionDetector(threshold int, logger *logger.Logger) *MotionDetector {
	return &MotionDetector{
		threshold: threshold,
		states:    make(map[synchronizer.Port]*portState),
		logger:    logger,
	}
}

// DetectMotion computes the frame difference against the port's previous frame.
// The first frame of a port never reports motion.
func (m *MotionDetector) DetectMotion(image []byte, port synchronizer.Port) (bool, error) {
	state := m.state(port)
	state.mutex.Lock()
	defer state.mutex.Unlock()

	mat, err := gocv.IMDecode(image, gocv.IMReadColor)
	if err != nil {
		return false, fmt.Errorf("failed to decode image: %v", err)
	}
	defer mat.Close()

	if mat.Empty() {
		return false, fmt.Errorf("decoded image is empty")
	}

	if !state.hasPrevious || state.previousMat.Rows() != mat.Rows() || state.previousMat.Cols() != mat.Cols() {
		if state.hasPrevious {
			state.previousMat.Close()
		}
		state.previousMat = mat.Clone()
		state.hasPrevious = true
		return false, nil
	}

	diff := gocv.NewMat()
	defer diff.Close()
	if err := gocv.AbsDiff(state.previousMat, mat, &diff); err != nil {
		return false, fmt.Errorf("failed to compute absolute difference: %v", err)
	}

	gray := gocv.NewMat()
	defer gray.Close()
	if err := gocv.CvtColor(diff, &gray, gocv.ColorBGRToGray); err != nil {
		return false, fmt.Errorf("failed to convert image to grayscale: %v", err)
	}

	thresh := gocv.NewMat()
	defer thresh.Close()
	gocv.Threshold(gray, &thresh, diffThreshold, 255, gocv.ThresholdBinary)

	changed := gocv.CountNonZero(thresh)

	state.previousMat.Close()
	state.previousMat = mat.Clone()

	if changed > m.threshold {
		m.logger.Debug("Motion at port %d: %d pixels changed", port, changed)
		return true, nil
	}
	return false, nil
}

// Close releases the stored frames.
func (m *MotionDetector) Close() {
	m.statesMutex.Lock()
	defer m.statesMutex.Unlock()
	for port, state := range m.states {
		state.mutex.Lock()
		if state.hasPrevious {
			state.previousMat.Close()
			state.hasPrevious = false
		}
		state.mutex.Unlock()
		delete(m.states, port)
	}
}

func (m *MotionDetector) state(port synchronizer.Port) *portState {
	m.statesMutex.RLock()
	state, exists := m.states[port]
	m.statesMutex.RUnlock()

	if exists {
		return state
	}

	m.statesMutex.Lock()
	defer m.statesMutex.Unlock()
	if state, exists := m.states[port]; exists {
		return state
	}

	state = &portState{}
	m.states[port] = state
	m.logger.Info("Created motion detection state for port %d", port)
	return state
}
