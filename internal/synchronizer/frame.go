package synchronizer

import (
	"fmt"
	"sort"
	"time"
)

// Port identifies one source within a Synchronizer.
type Port int

// FrameKey addresses one record in the FrameTable.
type FrameKey struct {
	Port     Port
	Sequence uint64
}

func (k FrameKey) String() string {
	return fmt.Sprintf("%d_%d", k.Port, k.Sequence)
}

// Feature is a detected point in image coordinates.
type Feature struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
}

// Capture is what a source publishes on its reel for every frame it reads.
type Capture struct {
	Time     time.Time // midpoint of the read call
	Payload  []byte
	Features []Feature
}

// FrameRecord is one harvested frame. It is owned by exactly one of the
// FrameTable or a Bundle at any time.
type FrameRecord struct {
	Port     Port
	Sequence uint64
	Time     time.Time
	Payload  []byte
	Features []Feature
}

func (r *FrameRecord) Key() FrameKey {
	return FrameKey{Port: r.Port, Sequence: r.Sequence}
}

// Bundle is one row of aligned output. Frames holds an entry for every port
// of the Synchronizer; a nil entry means no frame for that port this round.
// A published Bundle must not be mutated.
type Bundle struct {
	Index    uint64
	Cutoff   time.Time
	MeanTime time.Time
	Frames   map[Port]*FrameRecord
}

// Ports returns the bundle's ports in ascending order.
func (b *Bundle) Ports() []Port {
	ports := make([]Port, 0, len(b.Frames))
	for p := range b.Frames {
		ports = append(ports, p)
	}
	sort.Slice(ports, func(i, j int) bool { return ports[i] < ports[j] })
	return ports
}

// Frame returns the record for port, or false when the port is absent.
func (b *Bundle) Frame(port Port) (*FrameRecord, bool) {
	rec := b.Frames[port]
	return rec, rec != nil
}

// Present counts the ports that have a frame in this bundle.
func (b *Bundle) Present() int {
	n := 0
	for _, rec := range b.Frames {
		if rec != nil {
			n++
		}
	}
	return n
}

// meanTime averages timestamps without converting them to floats.
func meanTime(times []time.Time) time.Time {
	if len(times) == 0 {
		return time.Time{}
	}
	base := times[0]
	var sum time.Duration
	for _, t := range times[1:] {
		sum += t.Sub(base)
	}
	return base.Add(sum / time.Duration(len(times)))
}
