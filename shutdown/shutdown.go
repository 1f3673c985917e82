// Package shutdown turns interrupt signals into context cancellation.
package shutdown

import (
	"context"
	"os"
	"os/signal"
)

// ExitInterrupted is the conventional status for a process stopped by ^C.
const ExitInterrupted = 130

// Context is cancelled by the first interrupt so sessions can wind down.
// A second interrupt exits immediately.
func Context(parent context.Context) (context.Context, context.CancelFunc) {
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, signals...)
	ctx, cancel := watch(parent, ch, os.Exit)
	return ctx, func() {
		signal.Stop(ch)
		cancel()
	}
}

func watch(parent context.Context, sig <-chan os.Signal, exit func(int)) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		select {
		case <-sig:
			cancel()
		case <-ctx.Done():
			return
		}
		if _, ok := <-sig; ok {
			exit(ExitInterrupted)
		}
	}()
	return ctx, cancel
}
