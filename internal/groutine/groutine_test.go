package groutine

import (
	"context"
	"runtime/pprof"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGoNamesTheGoroutine(t *testing.T) {
	type result struct {
		name  string
		label string
	}
	done := make(chan result, 1)

	Go(nil, "pty-read-loop", func(ctx context.Context) {
		label, _ := pprof.Label(ctx, Label)
		done <- result{name: Name(ctx), label: label}
	})

	got := <-done
	assert.Equal(t, "pty-read-loop", got.name)
	assert.Equal(t, "pty-read-loop", got.label)
}

func TestGoInheritsParent(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})

	Go(parent, "worker", func(ctx context.Context) {
		<-ctx.Done()
		close(stopped)
	})

	cancel()
	<-stopped
}

func TestNameOutsideGo(t *testing.T) {
	assert.Empty(t, Name(context.Background()))
	assert.Empty(t, Name(nil)) //nolint:staticcheck
}
