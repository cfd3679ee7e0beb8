package model

import "time"

// Frame represents one recorded frame of a bundle.
type Frame struct {
	ID        int64     `json:"id"`
	BundleID  int64     `json:"bundle_id"`
	Port      int       `json:"port"`
	Sequence  int64     `json:"sequence"`
	Timestamp time.Time `json:"timestamp"`
	Filename  string    `json:"filename"`
	FilePath  string    `json:"filepath"`
	FileSize  int64     `json:"filesize"`
	Features  int       `json:"features"`
}
