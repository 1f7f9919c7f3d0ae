// Package shuffletimer implements the shuffle countdown: a Stopped/Running
// state machine ticked once per second that fires an expiry action and
// rearms itself.
package shuffletimer

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"wallshuffle/internal/core/eventloop"
	"wallshuffle/internal/log"
)

var (
	// ErrInvalidInterval indicates a non-positive shuffle interval.
	ErrInvalidInterval = errors.New("shuffle interval must be positive")
	// ErrScheduler indicates the tick source could not be registered or cancelled.
	ErrScheduler = errors.New("tick scheduler failure")
	// ErrInvariant indicates the countdown state was found inconsistent.
	ErrInvariant = errors.New("timer state invariant violated")
)

// Scheduler registers recurring ticks. Implementations must not invoke fn
// synchronously from Every, and must stop calling fn once it returns false
// or the returned source is cancelled.
type Scheduler interface {
	Every(interval time.Duration, fn func() bool) (eventloop.Source, error)
}

// Config contains runtime options for Timer.
type Config struct {
	Scheduler Scheduler
	// TickInterval is the wall-clock length of one countdown second.
	TickInterval time.Duration
	// IntervalMinutes is the initial shuffle interval.
	IntervalMinutes int
	// OnExpire runs once per elapsed interval.
	OnExpire func() error
	Logger   *log.Logger
}

// Timer is the shuffle countdown state machine.
type Timer struct {
	mu              sync.Mutex
	scheduler       Scheduler
	tickInterval    time.Duration
	onExpire        func() error
	logger          *log.Logger
	running         bool
	remaining       int
	intervalMinutes int
	source          eventloop.Source
	generation      uint64
	events          []chan Event
}

// New creates a stopped Timer.
func New(config Config) *Timer {
	if config.TickInterval <= 0 {
		config.TickInterval = time.Second
	}
	if config.IntervalMinutes <= 0 {
		config.IntervalMinutes = 5
	}
	return &Timer{
		scheduler:       config.Scheduler,
		tickInterval:    config.TickInterval,
		onExpire:        config.OnExpire,
		logger:          log.Or(config.Logger),
		intervalMinutes: config.IntervalMinutes,
	}
}

// Subscribe registers a new observer channel.
func (timer *Timer) Subscribe(buffer int) <-chan Event {
	if buffer <= 0 {
		buffer = 1
	}
	ch := make(chan Event, buffer)
	timer.mu.Lock()
	timer.events = append(timer.events, ch)
	timer.mu.Unlock()
	return ch
}

// Start (re)arms the countdown with the given interval. A running timer is
// fully stopped first, so at most one tick source is ever alive.
func (timer *Timer) Start(intervalMinutes int) error {
	if intervalMinutes <= 0 {
		return fmt.Errorf("start timer with %d minutes: %w", intervalMinutes, ErrInvalidInterval)
	}

	timer.mu.Lock()
	defer timer.mu.Unlock()

	if timer.running || timer.source != nil {
		if err := timer.stopLocked(); err != nil {
			return err
		}
	}
	if timer.scheduler == nil {
		err := fmt.Errorf("start timer: %w: no scheduler configured", ErrScheduler)
		timer.faultLocked(err)
		return err
	}

	timer.generation++
	generation := timer.generation
	source, err := timer.scheduler.Every(timer.tickInterval, func() bool {
		return timer.tick(generation)
	})
	if err != nil {
		err = fmt.Errorf("start timer: %w: %v", ErrScheduler, err)
		timer.faultLocked(err)
		return err
	}

	timer.source = source
	timer.intervalMinutes = intervalMinutes
	timer.remaining = intervalMinutes * 60
	timer.running = true
	timer.logger.Debug("shuffle timer started", "interval_minutes", intervalMinutes)
	timer.emitLocked(Event{
		Type:    EventStateChange,
		State:   StateRunning,
		Message: "Timer started",
	})
	return nil
}

// Stop cancels the tick source. Stopping a stopped timer is a no-op.
func (timer *Timer) Stop() error {
	timer.mu.Lock()
	defer timer.mu.Unlock()
	if !timer.running && timer.source == nil {
		return nil
	}
	return timer.stopLocked()
}

// Toggle stops a running timer or starts a stopped one with the last known interval.
func (timer *Timer) Toggle() error {
	timer.mu.Lock()
	running := timer.running
	interval := timer.intervalMinutes
	timer.mu.Unlock()

	if running {
		return timer.Stop()
	}
	return timer.Start(interval)
}

// SetInterval records a new shuffle interval. A running countdown restarts
// with it; a stopped timer only remembers it for the next Start.
func (timer *Timer) SetInterval(intervalMinutes int) error {
	if intervalMinutes <= 0 {
		return fmt.Errorf("set interval to %d minutes: %w", intervalMinutes, ErrInvalidInterval)
	}
	timer.mu.Lock()
	if timer.intervalMinutes == intervalMinutes {
		timer.mu.Unlock()
		return nil
	}
	timer.intervalMinutes = intervalMinutes
	running := timer.running
	timer.mu.Unlock()

	if running {
		return timer.Start(intervalMinutes)
	}
	return nil
}

// Snapshot returns the current state.
func (timer *Timer) Snapshot() Snapshot {
	timer.mu.Lock()
	defer timer.mu.Unlock()
	return Snapshot{
		Running:          timer.running,
		RemainingSeconds: timer.remaining,
		IntervalMinutes:  timer.intervalMinutes,
	}
}

// Tooltip renders the status line shown next to the tray icon.
func (timer *Timer) Tooltip(extra string) string {
	return FormatTooltip(timer.Snapshot(), extra)
}

// Close stops the timer and closes all observer channels.
func (timer *Timer) Close() error {
	timer.mu.Lock()
	var err error
	if timer.running || timer.source != nil {
		err = timer.stopLocked()
	}
	events := timer.events
	timer.events = nil
	timer.mu.Unlock()

	for _, ch := range events {
		close(ch)
	}
	return err
}

func (timer *Timer) tick(generation uint64) bool {
	timer.mu.Lock()
	if !timer.running || generation != timer.generation {
		timer.mu.Unlock()
		return false
	}

	full := timer.intervalMinutes * 60
	if full <= 0 || timer.remaining <= 0 || timer.remaining > full {
		err := fmt.Errorf("tick: %w: remaining=%d interval=%d", ErrInvariant, timer.remaining, timer.intervalMinutes)
		if stopErr := timer.stopLocked(); stopErr != nil {
			err = errors.Join(err, stopErr)
		}
		timer.faultLocked(err)
		timer.mu.Unlock()
		return false
	}

	timer.remaining--
	if timer.remaining > 0 {
		timer.emitLocked(Event{
			Type:  EventProgress,
			State: StateRunning,
		})
		timer.mu.Unlock()
		return true
	}

	timer.remaining = full
	onExpire := timer.onExpire
	timer.mu.Unlock()

	message := "Timer reset"
	if err := timer.invokeExpire(onExpire); err != nil {
		timer.logger.Error("shuffle expiry action failed", "err", err)
		message = fmt.Sprintf("Timer reset (%v)", err)
	}

	timer.mu.Lock()
	if timer.running && generation == timer.generation {
		timer.emitLocked(Event{
			Type:    EventExpired,
			State:   StateRunning,
			Message: message,
		})
	}
	timer.mu.Unlock()
	return true
}

func (timer *Timer) invokeExpire(onExpire func() error) (err error) {
	if onExpire == nil {
		return nil
	}
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("expiry action panicked: %v", recovered)
		}
	}()
	return onExpire()
}

// stopLocked always leaves the timer Stopped, even when cancelling the
// source fails; the failure is reported as a fault and returned.
func (timer *Timer) stopLocked() error {
	var err error
	if timer.source != nil {
		if cancelErr := timer.source.Cancel(); cancelErr != nil {
			err = fmt.Errorf("stop timer: %w: %v", ErrScheduler, cancelErr)
		}
	}
	timer.source = nil
	timer.generation++
	wasRunning := timer.running
	timer.running = false
	timer.remaining = 0

	if err != nil {
		timer.faultLocked(err)
		return err
	}
	if wasRunning {
		timer.logger.Debug("shuffle timer stopped")
		timer.emitLocked(Event{
			Type:    EventStateChange,
			State:   StateStopped,
			Message: "Timer stopped",
		})
	}
	return nil
}

func (timer *Timer) faultLocked(err error) {
	timer.logger.Error("shuffle timer fault", "err", err)
	timer.emitLocked(Event{
		Type:    EventFault,
		State:   StateStopped,
		Message: err.Error(),
	})
}

func (timer *Timer) emitLocked(event Event) {
	if event.At.IsZero() {
		event.At = time.Now()
	}
	event.Remaining = time.Duration(timer.remaining) * time.Second
	event.Interval = time.Duration(timer.intervalMinutes) * time.Minute
	events := append([]chan Event(nil), timer.events...)
	for _, ch := range events {
		select {
		case ch <- event:
		default:
		}
	}
}
