package dto

import "time"

// BufferedBundle holds a bundle's frames before flushing to disk.
type BufferedBundle struct {
	Session  string
	Index    uint64
	Cutoff   time.Time
	MeanTime time.Time
	Ports    int
	Frames   []BufferedFrame
}

type BufferedFrame struct {
	Port      int
	Sequence  uint64
	Timestamp time.Time
	Features  int
	Data      []byte
}
