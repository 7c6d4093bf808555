package comconnector

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	appext "github.com/masegraye/appext-go"
)

var errWorkerStopped = fmt.Errorf("comconnector: session worker stopped: %w", appext.ErrClosed)

// worker runs calls one at a time on a dedicated, locked OS thread.
// COM objects are bound to the apartment of the thread that created them.
type worker struct {
	calls chan func()
	stop  chan struct{}
	done  chan struct{}
	once  sync.Once
}

// startWorker locks a new goroutine to its thread and runs init there. The
// worker is returned only when init succeeds; teardown runs on the same
// thread after stop.
func startWorker(init func() error, teardown func()) (*worker, error) {
	w := &worker{
		calls: make(chan func()),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	ready := make(chan error, 1)

	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		defer close(w.done)

		if err := init(); err != nil {
			ready <- err
			return
		}
		ready <- nil
		defer teardown()

		for {
			select {
			case fn := <-w.calls:
				fn()
			case <-w.stop:
				return
			}
		}
	}()

	if err := <-ready; err != nil {
		return nil, err
	}
	return w, nil
}

// do runs fn on the worker thread and waits for it. A cancelled ctx stops
// the wait before fn starts; a running call is never interrupted.
func (w *worker) do(ctx context.Context, fn func() error) error {
	errCh := make(chan error, 1)
	call := func() { errCh <- fn() }

	select {
	case w.calls <- call:
	case <-w.stop:
		return errWorkerStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	return <-errCh
}

// close runs fn on the worker thread, then stops the worker and waits for
// teardown. Later calls are no-ops.
func (w *worker) close(fn func()) {
	w.once.Do(func() {
		select {
		case w.calls <- fn:
		case <-w.done:
		}
		close(w.stop)
		<-w.done
	})
}
