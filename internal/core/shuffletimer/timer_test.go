package shuffletimer

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wallshuffle/internal/core/eventloop"
	"wallshuffle/internal/log"
)

// manualScheduler hands tick callbacks to the test instead of a clock.
type manualScheduler struct {
	mu         sync.Mutex
	sources    []*manualSource
	failEvery  error
	failCancel error
}

type manualSource struct {
	scheduler *manualScheduler
	fn        func() bool
	cancelled bool
}

func (source *manualSource) Cancel() error {
	source.scheduler.mu.Lock()
	defer source.scheduler.mu.Unlock()
	if source.scheduler.failCancel != nil {
		return source.scheduler.failCancel
	}
	source.cancelled = true
	return nil
}

func (scheduler *manualScheduler) Every(_ time.Duration, fn func() bool) (eventloop.Source, error) {
	scheduler.mu.Lock()
	defer scheduler.mu.Unlock()
	if scheduler.failEvery != nil {
		return nil, scheduler.failEvery
	}
	source := &manualSource{scheduler: scheduler, fn: fn}
	scheduler.sources = append(scheduler.sources, source)
	return source, nil
}

// Fire delivers n ticks to every live source.
func (scheduler *manualScheduler) Fire(n int) {
	for i := 0; i < n; i++ {
		for _, source := range scheduler.live() {
			if !source.fn() {
				scheduler.mu.Lock()
				source.cancelled = true
				scheduler.mu.Unlock()
			}
		}
	}
}

func (scheduler *manualScheduler) live() []*manualSource {
	scheduler.mu.Lock()
	defer scheduler.mu.Unlock()
	var live []*manualSource
	for _, source := range scheduler.sources {
		if !source.cancelled {
			live = append(live, source)
		}
	}
	return live
}

func newTestTimer(t *testing.T, onExpire func() error) (*Timer, *manualScheduler) {
	t.Helper()
	scheduler := &manualScheduler{}
	timer := New(Config{
		Scheduler:       scheduler,
		IntervalMinutes: 1,
		OnExpire:        onExpire,
		Logger:          log.New(&bytes.Buffer{}, "test"),
	})
	t.Cleanup(func() { _ = timer.Close() })
	return timer, scheduler
}

func TestStopWhenStoppedIsNoop(t *testing.T) {
	expired := 0
	timer, scheduler := newTestTimer(t, func() error {
		expired++
		return nil
	})
	events := timer.Subscribe(4)

	require.NoError(t, timer.Stop())
	require.NoError(t, timer.Stop())

	assert.Equal(t, Snapshot{Running: false, RemainingSeconds: 0, IntervalMinutes: 1}, timer.Snapshot())
	assert.Empty(t, scheduler.sources)
	assert.Zero(t, expired)
	assert.Empty(t, events)
}

func TestCountdownFiresOncePerInterval(t *testing.T) {
	expired := 0
	timer, scheduler := newTestTimer(t, func() error {
		expired++
		return nil
	})

	require.NoError(t, timer.Start(1))
	assert.Equal(t, 60, timer.Snapshot().RemainingSeconds)

	scheduler.Fire(59)
	assert.Equal(t, 1, timer.Snapshot().RemainingSeconds)
	assert.Zero(t, expired)

	scheduler.Fire(1)
	assert.Equal(t, 60, timer.Snapshot().RemainingSeconds)
	assert.Equal(t, 1, expired)
	assert.True(t, timer.Snapshot().Running)
}

func TestDoubleStartKeepsOneTickSource(t *testing.T) {
	expired := 0
	timer, scheduler := newTestTimer(t, func() error {
		expired++
		return nil
	})

	require.NoError(t, timer.Start(1))
	require.NoError(t, timer.Start(1))
	require.Len(t, scheduler.live(), 1)

	scheduler.Fire(300)
	assert.Equal(t, 5, expired)
}

func TestStaleSourceStopsItself(t *testing.T) {
	timer, scheduler := newTestTimer(t, nil)
	require.NoError(t, timer.Start(1))
	stale := scheduler.sources[0]

	require.NoError(t, timer.Start(2))
	assert.False(t, stale.fn(), "an old generation must ask its source to stop")
	assert.Equal(t, 120, timer.Snapshot().RemainingSeconds)
}

func TestToggle(t *testing.T) {
	timer, scheduler := newTestTimer(t, nil)

	require.NoError(t, timer.Toggle())
	assert.True(t, timer.Snapshot().Running)
	assert.Len(t, scheduler.live(), 1)

	require.NoError(t, timer.Toggle())
	assert.Equal(t, Snapshot{IntervalMinutes: 1}, timer.Snapshot())
	assert.Empty(t, scheduler.live())

	scheduler.Fire(120)
	assert.Zero(t, timer.Snapshot().RemainingSeconds)
}

func TestStartRejectsInvalidInterval(t *testing.T) {
	timer, scheduler := newTestTimer(t, nil)
	assert.ErrorIs(t, timer.Start(0), ErrInvalidInterval)
	assert.ErrorIs(t, timer.SetInterval(-1), ErrInvalidInterval)
	assert.Empty(t, scheduler.sources)
	assert.False(t, timer.Snapshot().Running)
}

func TestExpiryFailureKeepsTicking(t *testing.T) {
	calls := 0
	timer, scheduler := newTestTimer(t, func() error {
		calls++
		if calls == 1 {
			panic("boom")
		}
		return errors.New("manager missing")
	})
	events := timer.Subscribe(512)

	require.NoError(t, timer.Start(1))
	scheduler.Fire(120)

	assert.Equal(t, 2, calls)
	assert.True(t, timer.Snapshot().Running)

	var expiredMessages []string
	for len(events) > 0 {
		event := <-events
		if event.Type == EventExpired {
			expiredMessages = append(expiredMessages, event.Message)
		}
	}
	require.Len(t, expiredMessages, 2)
	assert.Contains(t, expiredMessages[0], "panicked")
	assert.Contains(t, expiredMessages[1], "manager missing")
}

func TestSchedulerRegistrationFailureIsFatal(t *testing.T) {
	timer, scheduler := newTestTimer(t, nil)
	scheduler.failEvery = errors.New("no main loop")
	events := timer.Subscribe(4)

	err := timer.Start(1)
	assert.ErrorIs(t, err, ErrScheduler)
	assert.False(t, timer.Snapshot().Running)

	event := <-events
	assert.Equal(t, EventFault, event.Type)
}

func TestCancelFailureStillStops(t *testing.T) {
	timer, scheduler := newTestTimer(t, nil)
	require.NoError(t, timer.Start(1))
	scheduler.failCancel = errors.New("source vanished")

	err := timer.Stop()
	assert.ErrorIs(t, err, ErrScheduler)
	assert.Equal(t, Snapshot{IntervalMinutes: 1}, timer.Snapshot())

	scheduler.failCancel = nil
	scheduler.Fire(61)
	assert.False(t, timer.Snapshot().Running)
}

func TestSetIntervalRestartsRunningTimer(t *testing.T) {
	timer, scheduler := newTestTimer(t, nil)

	require.NoError(t, timer.SetInterval(3))
	assert.False(t, timer.Snapshot().Running)

	require.NoError(t, timer.Start(3))
	scheduler.Fire(10)
	require.NoError(t, timer.SetInterval(2))

	assert.Equal(t, Snapshot{Running: true, RemainingSeconds: 120, IntervalMinutes: 2}, timer.Snapshot())
	assert.Len(t, scheduler.live(), 1)
}

func TestCloseClosesObservers(t *testing.T) {
	timer, _ := newTestTimer(t, nil)
	events := timer.Subscribe(8)
	require.NoError(t, timer.Start(1))
	require.NoError(t, timer.Close())

	var last Event
	for event := range events {
		last = event
	}
	assert.Equal(t, StateStopped, last.State)
}

func TestFormatTooltip(t *testing.T) {
	assert.Equal(t, "Timer stopped", FormatTooltip(Snapshot{}, ""))
	assert.Equal(t, "Timer stopped Timer stopped", FormatTooltip(Snapshot{}, "Timer stopped"))
	assert.Equal(t, "(04:05 | 05:00) Timer started", FormatTooltip(Snapshot{Running: true, RemainingSeconds: 245, IntervalMinutes: 5}, "Timer started"))
	assert.Equal(t, "(1440:00 | 1440:00)", FormatTooltip(Snapshot{Running: true, RemainingSeconds: 86400, IntervalMinutes: 1440}, ""))
}
