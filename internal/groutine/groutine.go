// Package groutine starts goroutines that carry a name, both as a pprof label
// (visible in goroutine profiles of a hung bridge) and in their context.
package groutine

import (
	"context"
	"runtime/pprof"
)

type nameKey struct{}

// Label is the pprof label key holding the goroutine name.
const Label = "goroutine_name"

// Go runs fn in a new goroutine named name. The context passed to fn derives
// from parent (context.Background() when nil) and reports name via Name.
//
//	groutine.Go(ctx, "rfcomm-read-loop", func(ctx context.Context) {
//	    pump(ctx, conn)
//	})
func Go(parent context.Context, name string, fn func(ctx context.Context)) {
	if parent == nil {
		parent = context.Background()
	}

	go pprof.Do(parent, pprof.Labels(Label, name), func(ctx context.Context) {
		fn(context.WithValue(ctx, nameKey{}, name))
	})
}

// Name returns the name given to Go, or "" outside a named goroutine.
func Name(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	name, _ := ctx.Value(nameKey{}).(string)
	return name
}
