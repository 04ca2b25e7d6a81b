package shutdown

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// BackgroundWorker runs one long-lived loop (the refresh scheduler) and stops it on shutdown
type BackgroundWorker struct {
	name     string
	logger   *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	startOne sync.Once
}

// NewBackgroundWorker creates a new background worker derived from parent
func NewBackgroundWorker(parent context.Context, name string, logger *zap.Logger) *BackgroundWorker {
	ctx, cancel := context.WithCancel(parent)

	return &BackgroundWorker{
		name:   name,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Start begins the background worker. Only the first call starts work.
// The work function should return once ctx is done.
func (bw *BackgroundWorker) Start(work func(ctx context.Context)) {
	bw.startOne.Do(func() {
		go func() {
			defer close(bw.done)

			bw.logger.Info("Background worker started", zap.String("worker", bw.name))
			work(bw.ctx)
			bw.logger.Info("Background worker stopped", zap.String("worker", bw.name))
		}()
	})
}

// Done is closed once the work function has returned
func (bw *BackgroundWorker) Done() <-chan struct{} {
	return bw.done
}

// Shutdown cancels the worker and waits for it to return or ctx to expire
func (bw *BackgroundWorker) Shutdown(ctx context.Context) error {
	bw.logger.Info("Stopping background worker", zap.String("worker", bw.name))
	bw.cancel()

	// Never started: nothing to wait for
	bw.startOne.Do(func() { close(bw.done) })

	select {
	case <-bw.done:
		return nil
	case <-ctx.Done():
		bw.logger.Warn("Background worker shutdown timeout", zap.String("worker", bw.name))
		return ctx.Err()
	}
}
