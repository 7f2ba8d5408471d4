// Package groutine starts named goroutines. The name is attached as a
// pprof label so every long-lived task in the pipeline (emitters, DSP
// workers, the PTY pump) is identifiable in goroutine profiles.
package groutine

import (
	"context"
	"runtime/pprof"
)

// Go starts fn on a new goroutine labeled name. A nil parentCtx is
// treated as context.Background().
func Go(parentCtx context.Context, name string, fn func(ctx context.Context)) {
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	go pprof.Do(parentCtx, pprof.Labels("goroutine_name", name), fn)
}
