// ABOUTME: Timed goroutine join used when tearing a stage down
// ABOUTME: Waits for a done channel and abandons the goroutine on timeout
package pipeline

import (
	"context"
	"log"
	"time"
)

// DefaultJoinTimeout bounds how long teardown waits for a stage goroutine
const DefaultJoinTimeout = 2 * time.Second

// worker is a stage goroutine that can be joined
type worker struct {
	name   string
	cancel context.CancelFunc
	done   chan struct{}
}

// spawn runs fn on a new goroutine with a cancellable context
func spawn(name string, fn func(ctx context.Context)) *worker {
	ctx, cancel := context.WithCancel(context.Background())
	w := &worker{name: name, cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(w.done)
		fn(ctx)
	}()
	return w
}

// join waits up to timeout. On timeout the context is cancelled, the
// goroutine is left to exit on its own, and false is returned.
func (w *worker) join(timeout time.Duration) bool {
	if timeout <= 0 {
		timeout = DefaultJoinTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-w.done:
		w.cancel()
		return true
	case <-timer.C:
		log.Printf("[%s] stop: timed out after %v, abandoning goroutine", w.name, timeout)
		w.cancel()
		return false
	}
}
