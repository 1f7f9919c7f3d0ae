// Package eventloop runs every state mutation of a widget instance on one
// goroutine. Callers post closures; periodic sources post their ticks onto
// the same queue so timer ticks, settings notifications and menu clicks are
// strictly serialized.
package eventloop

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrLoopClosed is returned when posting to a loop that has stopped.
var ErrLoopClosed = errors.New("event loop closed")

// Loop is a single-goroutine executor.
type Loop struct {
	queue   chan func()
	closing chan struct{}
	done    chan struct{}

	closeOnce sync.Once
	runOnce   sync.Once
}

// New creates a loop with the given queue capacity.
func New(buffer int) *Loop {
	if buffer <= 0 {
		buffer = 64
	}
	return &Loop{
		queue:   make(chan func(), buffer),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Run executes posted closures until ctx is cancelled or Close is called.
// It must be called once; later calls return immediately.
func (loop *Loop) Run(ctx context.Context) error {
	started := false
	loop.runOnce.Do(func() { started = true })
	if !started {
		return fmt.Errorf("run event loop: already running")
	}
	defer close(loop.done)

	for {
		select {
		case <-ctx.Done():
			loop.Close()
			return ctx.Err()
		case <-loop.closing:
			return nil
		case fn := <-loop.queue:
			fn()
		}
	}
}

// Post enqueues fn. It blocks while the queue is full and fails once the
// loop is closing.
func (loop *Loop) Post(fn func()) error {
	select {
	case <-loop.closing:
		return ErrLoopClosed
	default:
	}
	select {
	case loop.queue <- fn:
		return nil
	case <-loop.closing:
		return ErrLoopClosed
	}
}

// Do posts fn and waits until it has run on the loop.
func (loop *Loop) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if err := loop.Post(func() {
		defer close(finished)
		fn()
	}); err != nil {
		return err
	}
	select {
	case <-finished:
		return nil
	case <-loop.closing:
		return ErrLoopClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the loop. Closures still queued are discarded.
func (loop *Loop) Close() {
	loop.closeOnce.Do(func() {
		close(loop.closing)
	})
}

// Done is closed once Run has returned.
func (loop *Loop) Done() <-chan struct{} {
	return loop.done
}

// Every registers fn to run on the loop once per interval. A tick that finds
// the source cancelled is dropped, so no fn call happens after Cancel
// returns when Cancel is itself called on the loop. When fn returns false
// the source cancels itself.
func (loop *Loop) Every(interval time.Duration, fn func() bool) (Source, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("register tick source: non-positive interval %s", interval)
	}
	select {
	case <-loop.closing:
		return nil, fmt.Errorf("register tick source: %w", ErrLoopClosed)
	default:
	}

	source := &tickerSource{stop: make(chan struct{})}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-source.stop:
				return
			case <-loop.closing:
				return
			case <-ticker.C:
				err := loop.Post(func() {
					if source.isCancelled() {
						return
					}
					if !fn() {
						_ = source.Cancel()
					}
				})
				if err != nil {
					return
				}
			}
		}
	}()
	return source, nil
}

// Source is a cancellable periodic registration.
type Source interface {
	Cancel() error
}

type tickerSource struct {
	mu        sync.Mutex
	cancelled bool
	stop      chan struct{}
}

func (source *tickerSource) Cancel() error {
	source.mu.Lock()
	defer source.mu.Unlock()
	if source.cancelled {
		return nil
	}
	source.cancelled = true
	close(source.stop)
	return nil
}

func (source *tickerSource) isCancelled() bool {
	source.mu.Lock()
	defer source.mu.Unlock()
	return source.cancelled
}
