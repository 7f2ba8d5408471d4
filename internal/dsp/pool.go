package dsp

import (
	"context"
	"runtime"

	"github.com/sirupsen/logrus"

	"github.com/srg/lxb/internal/groutine"
)

// Pool is a bounded worker pool DSP tasks off-load compute-heavy
// numerics onto. All other work stays on the caller's goroutine.
type Pool struct {
	sem chan struct{}
}

// NewPool creates a Pool with size workers. size<=0 defaults to
// GOMAXPROCS.
func NewPool(size int) *Pool {
	if size <= 0 {
		size = runtime.GOMAXPROCS(0)
	}
	return &Pool{sem: make(chan struct{}, size)}
}

// Submit runs fn on a pool slot, blocking the caller until a slot is free
// and fn has returned, or until ctx is done. Named goroutines (via internal/groutine) make each
// in-flight task visible in pprof labels under the given name.
func (p *Pool) Submit(ctx context.Context, logger *logrus.Logger, name string, fn func()) {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return
	}

	done := make(chan struct{})
	groutine.Go(ctx, name, func(ctx context.Context) {
		defer close(done)
		defer func() {
			if r := recover(); r != nil {
				if logger != nil {
					logger.WithField("worker", name).WithField("panic", r).Error("dsp: worker panicked, frame dropped")
				}
			}
		}()
		fn()
	})

	select {
	case <-done:
	case <-ctx.Done():
	}
	<-p.sem
}
