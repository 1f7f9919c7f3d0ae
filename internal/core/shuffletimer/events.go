package shuffletimer

import "time"

// State represents the current timer mode.
type State string

const (
	StateStopped State = "stopped"
	StateRunning State = "running"
)

// EventType defines the type of timer event.
type EventType string

const (
	EventStateChange EventType = "state_change"
	EventProgress    EventType = "progress"
	EventExpired     EventType = "expired"
	EventFault       EventType = "fault"
)

// Event represents a timer update for observers.
type Event struct {
	Type      EventType
	State     State
	Remaining time.Duration
	Interval  time.Duration
	// Message carries the status text extra ("Timer started", a fault, ...).
	Message string
	At      time.Time
}

// Snapshot is a consistent copy of the timer state.
type Snapshot struct {
	Running          bool
	RemainingSeconds int
	IntervalMinutes  int
}
