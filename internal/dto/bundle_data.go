// BundlesData is a paginated response payload for the recorded bundles.
package dto

import "camsync/internal/model"

type BundlesData struct {
	Bundles      []model.Bundle `json:"bundles"`
	Sessions     []string       `json:"sessions"`
	RecordingDir string         `json:"recordingDir"`
	Size         int64          `json:"size"`
	Length       int            `json:"length"`
	TotalPages   int            `json:"totalPages"`
	CurrentPage  int            `json:"currentPage"`
	Limit        int            `json:"pageSize"`
}

// BundleFrames lists the stored frames of one bundle.
type BundleFrames struct {
	Bundle model.Bundle `json:"bundle"`
	Frames []FrameInfo  `json:"frames"`
}

type FrameInfo struct {
	model.Frame
	URL string `json:"url"`
}
