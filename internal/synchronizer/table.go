package synchronizer

import (
	"fmt"
	"sync"
	"time"
)

// shard holds the records of a single port. Ports never share a lock, so a
// slow port cannot stall ingestion on another.
type shard struct {
	mu        sync.Mutex
	records   map[uint64]*FrameRecord
	harvested uint64
}

// FrameTable is the store shared by the harvesters (insert) and the bundler
// (read, claim, discard). The shard map is built once and never modified, so
// lookups need no lock of their own.
type FrameTable struct {
	shards  map[Port]*shard
	updated chan struct{}
}

// NewFrameTable creates an empty table for a fixed set of ports.
func NewFrameTable(ports []Port) *FrameTable {
	t := &FrameTable{
		shards:  make(map[Port]*shard, len(ports)),
		updated: make(chan struct{}, 1),
	}
	for _, p := range ports {
		t.shards[p] = &shard{records: make(map[uint64]*FrameRecord)}
	}
	return t
}

func (t *FrameTable) shard(port Port) (*shard, error) {
	s, ok := t.shards[port]
	if !ok {
		return nil, fmt.Errorf("port %d: %w", port, ErrUnknownPort)
	}
	return s, nil
}

// Insert stores rec under (rec.Port, rec.Sequence). Sequences must arrive
// gapless and in order for each port.
func (t *FrameTable) Insert(rec *FrameRecord) error {
	s, err := t.shard(rec.Port)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if rec.Sequence != s.harvested {
		s.mu.Unlock()
		return fmt.Errorf("insert %s, expected sequence %d: %w", rec.Key(), s.harvested, ErrOutOfOrder)
	}
	s.records[rec.Sequence] = rec
	s.harvested++
	s.mu.Unlock()

	select {
	case t.updated <- struct{}{}:
	default:
	}
	return nil
}

// Time returns the timestamp of the record stored under key.
func (t *FrameTable) Time(key FrameKey) (time.Time, error) {
	s, err := t.shard(key.Port)
	if err != nil {
		return time.Time{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key.Sequence]
	if !ok {
		return time.Time{}, fmt.Errorf("record %s: %w", key, ErrMissingRecord)
	}
	return rec.Time, nil
}

// ClaimBefore removes and returns the record under key if its timestamp is
// strictly before cutoff. The check and the removal happen under one lock.
func (t *FrameTable) ClaimBefore(key FrameKey, cutoff time.Time) (*FrameRecord, error) {
	s, err := t.shard(key.Port)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key.Sequence]
	if !ok {
		return nil, fmt.Errorf("record %s: %w", key, ErrMissingRecord)
	}
	if !rec.Time.Before(cutoff) {
		return nil, nil
	}
	delete(s.records, key.Sequence)
	return rec, nil
}

// Discard drops the records of port with sequences in [from, to) and
// returns how many were removed.
func (t *FrameTable) Discard(port Port, from, to uint64) int {
	s, err := t.shard(port)
	if err != nil {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for seq := from; seq < to; seq++ {
		if _, ok := s.records[seq]; ok {
			delete(s.records, seq)
			n++
		}
	}
	return n
}

// Harvested is the number of records ever inserted for port.
func (t *FrameTable) Harvested(port Port) uint64 {
	s, err := t.shard(port)
	if err != nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.harvested
}

// Len is the number of records currently stored across all ports.
func (t *FrameTable) Len() int {
	n := 0
	for _, s := range t.shards {
		s.mu.Lock()
		n += len(s.records)
		s.mu.Unlock()
	}
	return n
}

// Updated fires (coalesced) after every insert.
func (t *FrameTable) Updated() <-chan struct{} {
	return t.updated
}
