// Package loop serialises access to a msgbus.Bus onto a single goroutine.
//
// The bus itself is not safe for concurrent use. Code running outside the
// loop goroutine hands closures to Do or Post; handlers invoked by the bus
// already run on the loop goroutine and use the *msgbus.Bus they were given
// directly. Calling Do from the loop goroutine deadlocks.
package loop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ccheshirecat/msgbus/internal/msgbus"
)

const defaultQueueSize = 128

// ErrClosed is returned once the loop has stopped accepting work.
var ErrClosed = errors.New("loop: closed")

// PanicError reports a task that panicked.
type PanicError struct{ Value any }

func (e PanicError) Error() string { return fmt.Sprintf("loop: task panicked: %v", e.Value) }

type task struct {
	fn   func(*msgbus.Bus)
	done chan error
}

// Loop owns a bus and executes tasks against it one at a time.
type Loop struct {
	bus    *msgbus.Bus
	logger *slog.Logger
	tasks  chan task

	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	runOnce   sync.Once
}

// New creates a loop for bus. Run must be called for queued work to execute.
func New(bus *msgbus.Bus, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Loop{
		bus:    bus,
		logger: logger,
		tasks:  make(chan task, defaultQueueSize),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Run executes tasks until ctx is canceled or Close is called, then closes
// the bus. It returns ctx.Err() on cancellation and nil after Close.
func (l *Loop) Run(ctx context.Context) error {
	err := errors.New("loop: already running")
	l.runOnce.Do(func() { err = l.run(ctx) })
	return err
}

func (l *Loop) run(ctx context.Context) error {
	defer close(l.done)
	defer l.bus.Close()

	for {
		select {
		case <-ctx.Done():
			l.Close()
			return ctx.Err()
		case <-l.quit:
			return nil
		case t := <-l.tasks:
			l.exec(t)
		}
	}
}

func (l *Loop) exec(t task) {
	var err error
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("bus task panicked", "panic", r)
			err = PanicError{Value: r}
		}
		if t.done != nil {
			t.done <- err
		}
	}()
	t.fn(l.bus)
}

// Do runs fn on the loop goroutine and waits for it to finish.
func (l *Loop) Do(ctx context.Context, fn func(*msgbus.Bus)) error {
	t := task{fn: fn, done: make(chan error, 1)}
	if err := l.enqueue(ctx, t); err != nil {
		return err
	}
	select {
	case err := <-t.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		select {
		case err := <-t.done:
			return err
		default:
			return ErrClosed
		}
	}
}

// Post queues fn without waiting for it to run.
func (l *Loop) Post(ctx context.Context, fn func(*msgbus.Bus)) error {
	return l.enqueue(ctx, task{fn: fn})
}

func (l *Loop) enqueue(ctx context.Context, t task) error {
	if t.fn == nil {
		return errors.New("loop: nil task")
	}
	select {
	case <-l.quit:
		return ErrClosed
	default:
	}
	select {
	case l.tasks <- t:
		return nil
	case <-l.quit:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the loop. Queued tasks that have not started are dropped.
func (l *Loop) Close() {
	l.closeOnce.Do(func() { close(l.quit) })
}

// Done is closed once Run has returned.
func (l *Loop) Done() <-chan struct{} { return l.done }
