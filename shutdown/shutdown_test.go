package shutdown

import (
	"context"
	"os"
	"testing"
	"time"
)

func TestFirstSignalCancels(t *testing.T) {
	sig := make(chan os.Signal, 2)
	exited := make(chan int, 1)
	ctx, cancel := watch(context.Background(), sig, func(code int) { exited <- code })
	defer cancel()

	sig <- os.Interrupt
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context not cancelled by the first signal")
	}
	select {
	case code := <-exited:
		t.Fatalf("exited with %d after one signal", code)
	case <-time.After(20 * time.Millisecond):
	}

	sig <- os.Interrupt
	select {
	case code := <-exited:
		if code != ExitInterrupted {
			t.Errorf("exit code %d, want %d", code, ExitInterrupted)
		}
	case <-time.After(time.Second):
		t.Fatal("second signal did not exit")
	}
}

func TestCancelStopsWatcher(t *testing.T) {
	sig := make(chan os.Signal, 2)
	exited := make(chan int, 1)
	ctx, cancel := watch(context.Background(), sig, func(code int) { exited <- code })
	cancel()
	<-ctx.Done()

	sig <- os.Interrupt
	sig <- os.Interrupt
	select {
	case code := <-exited:
		t.Fatalf("exited with %d after cancel", code)
	case <-time.After(20 * time.Millisecond):
	}
}
