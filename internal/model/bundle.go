package model

import "time"

// Bundle represents a recorded bundle.
type Bundle struct {
	ID        int64     `json:"id"`
	Session   string    `json:"session"`
	Index     int64     `json:"index"`
	Cutoff    time.Time `json:"cutoff"`
	MeanTime  time.Time `json:"mean_time"`
	Ports     int       `json:"ports"`
	Present   int       `json:"present"`
	CreatedAt time.Time `json:"created_at"`
}
