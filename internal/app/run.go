package app

import (
	"context"
	"sync"

	"camsync/internal/config"
	"camsync/internal/logger"
	"camsync/internal/service"
	"camsync/internal/service/storage"
	"camsync/internal/synchronizer"
)

// run is one session: its sources, the synchronizer over them and the
// consumers of its bundles.
type run struct {
	name     string
	cameras  []config.CameraConfig
	sources  []capturer
	sync     *synchronizer.Synchronizer
	pipeline *service.Pipeline
	recorder *storage.Recorder
	logger   *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// start launches the capture loops, the synchronizer, the pipeline and the
// recorder. Stopping the synchronizer closes its bundle queue; the pipeline
// drains it and the recorder flushes once the pipeline is done.
func (r *run) start(parent context.Context) error {
	r.ctx, r.cancel = context.WithCancel(parent)

	if err := r.sync.Start(r.ctx); err != nil {
		r.cancel()
		return err
	}

	for _, src := range r.sources {
		src := src
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			if err := src.Run(r.ctx); err != nil {
				r.logger.Error("Camera at port %d stopped: %v", src.Port(), err)
			}
		}()
	}

	// A failed synchronizer takes the whole session down.
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.sync.Wait(); err != nil {
			r.logger.Error("Session %s aborted: %v", r.name, err)
		}
		r.cancel()
	}()

	recorderCtx, stopRecorder := context.WithCancel(context.Background())
	r.wg.Add(2)
	go func() {
		defer r.wg.Done()
		r.recorder.Run(recorderCtx)
	}()
	go func() {
		defer r.wg.Done()
		defer stopRecorder()
		if err := r.pipeline.Run(context.Background()); err != nil {
			r.logger.Error("Pipeline stopped: %v", err)
		}
	}()

	return nil
}

func (r *run) running() bool {
	return r.ctx.Err() == nil && r.sync.Err() == nil
}

func (r *run) stop() {
	r.cancel()
	r.wg.Wait()
	r.closeSources()
}

func (r *run) closeSources() {
	for _, src := range r.sources {
		src.Close()
	}
}
