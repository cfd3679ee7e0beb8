package dto

import "camsync/internal/synchronizer"

// SourceStatus reports a source's measured capture rate.
type SourceStatus struct {
	Port     int     `json:"port"`
	Kind     string  `json:"kind"`
	Device   string  `json:"device,omitempty"`
	FPS      float64 `json:"fps"`
	Captured uint64  `json:"captured"`
}

// PipelineStatus counts what the pipeline did with the bundles it consumed.
type PipelineStatus struct {
	Consumed  uint64         `json:"consumed"`
	Broadcast uint64         `json:"broadcast"`
	Recorded  uint64         `json:"recorded"`
	Present   map[int]uint64 `json:"present"`
	Absent    map[int]uint64 `json:"absent"`
}

// Status is the payload of /api/status.
type Status struct {
	Session      string             `json:"session"`
	Running      bool               `json:"running"`
	Sources      []SourceStatus     `json:"sources"`
	Synchronizer synchronizer.Stats `json:"synchronizer"`
	Pipeline     PipelineStatus     `json:"pipeline"`
	Viewers      int                `json:"viewers"`
}
