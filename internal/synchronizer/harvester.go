package synchronizer

import (
	"context"
	"fmt"

	"camsync/internal/logger"
)

// harvester drains one source's reel into the FrameTable. It is the only
// writer for its port, so sequence assignment needs no locking.
type harvester struct {
	port   Port
	reel   <-chan Capture
	table  *FrameTable
	logger *logger.Logger
	next   uint64
}

func newHarvester(port Port, reel <-chan Capture, table *FrameTable, logger *logger.Logger) *harvester {
	return &harvester{
		port:   port,
		reel:   reel,
		table:  table,
		logger: logger,
	}
}

// run returns nil when the reel is closed or ctx is done.
func (h *harvester) run(ctx context.Context) error {
	h.logger.Info("Beginning to collect frames generated at port %d", h.port)

	for {
		var capture Capture
		var ok bool

		select {
		case <-ctx.Done():
			return nil
		case capture, ok = <-h.reel:
		}

		if !ok {
			h.logger.Info("Reel closed at port %d after %d frames", h.port, h.next)
			return nil
		}

		rec := &FrameRecord{
			Port:     h.port,
			Sequence: h.next,
			Time:     capture.Time,
			Payload:  capture.Payload,
			Features: capture.Features,
		}
		if err := h.table.Insert(rec); err != nil {
			return fmt.Errorf("harvester at port %d: %w", h.port, err)
		}
		h.next++
	}
}
