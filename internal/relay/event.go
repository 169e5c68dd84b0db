package relay

import (
	"time"

	"github.com/google/uuid"
)

// Event is a single log record. It is created per call and never mutated
// after it is handed to the Router.
type Event struct {
	ID       string
	Severity Severity
	Logger   string
	Message  string
	Time     time.Time
	// Failure holds captured stack/trace text. Empty unless the event
	// originates from a caught failure.
	Failure string
}

// NewEvent stamps a new event with an ID and the current time.
func NewEvent(sev Severity, logger, msg string) Event {
	return Event{
		ID:       uuid.NewString(),
		Severity: sev,
		Logger:   logger,
		Message:  msg,
		Time:     time.Now(),
	}
}

// HasFailure reports whether the event carries failure context.
func (e Event) HasFailure() bool { return e.Failure != "" }

// OutcomeKind describes what a sink did with an event.
type OutcomeKind string

const (
	OutcomeForwarded  OutcomeKind = "forwarded"
	OutcomeSuppressed OutcomeKind = "suppressed"
	OutcomeNotice     OutcomeKind = "notice"
	OutcomeFailed     OutcomeKind = "failed"
)

// EventType returns the eventbus type used when publishing this outcome.
func (k OutcomeKind) EventType() string { return "relay." + string(k) }

// Outcome is published on the event bus for every notification decision.
type Outcome struct {
	Kind     OutcomeKind `json:"kind"`
	Sink     string      `json:"sink"`
	EventID  string      `json:"event_id,omitempty"`
	Logger   string      `json:"logger,omitempty"`
	Severity string      `json:"severity,omitempty"`
	At       time.Time   `json:"at"`
	// InWindow is the number of spent slots after the decision.
	InWindow int `json:"in_window"`
	// Notice is set when the outcome concerns the rate limit notice itself.
	Notice bool   `json:"notice,omitempty"`
	Error  string `json:"error,omitempty"`
}
