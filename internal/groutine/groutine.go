package groutine

import (
	"context"
	"runtime/pprof"
)

type ctxKey string

const workerNameKey ctxKey = "worker_name"

// Go runs fn on a new goroutine labelled with name for pprof and returns a
// channel that is closed once fn has returned.
//
//	done := groutine.Go(ctx, "scan-worker", func(ctx context.Context) {
//	    // work
//	})
//	<-done
//
// If parent is nil, context.Background() is used.
func Go(parent context.Context, name string, fn func(ctx context.Context)) <-chan struct{} {
	if parent == nil {
		parent = context.Background()
	}

	done := make(chan struct{})
	labels := pprof.Labels("worker", name)

	go pprof.Do(parent, labels, func(ctx context.Context) {
		defer close(done)
		fn(context.WithValue(ctx, workerNameKey, name))
	})

	return done
}

// Name returns the worker name attached by Go, or "" outside a worker.
func Name(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if s, ok := ctx.Value(workerNameKey).(string); ok {
		return s
	}
	return ""
}
