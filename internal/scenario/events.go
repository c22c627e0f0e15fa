package scenario

import (
	"sync"
	"time"
)

// Status is the outcome of a scenario or step.
type Status string

const (
	StatusPassed    Status = "PASSED"
	StatusFailed    Status = "FAILED"
	StatusSkipped   Status = "SKIPPED"
	StatusUndefined Status = "UNDEFINED"
	StatusPending   Status = "PENDING"
)

// EventKind identifies what an Event reports.
type EventKind string

const (
	ScenarioStarted  EventKind = "scenario_started"
	StepFinished     EventKind = "step_finished"
	ScenarioFinished EventKind = "scenario_finished"
)

// Attachment is a payload added to a scenario report.
type Attachment struct {
	Name      string
	MediaType string
	Body      []byte
}

// Event is emitted to report writers while scenarios run.
type Event struct {
	Kind     EventKind
	Time     time.Time
	Scenario Info
	// Step is the step text for StepFinished events.
	Step     string
	Status   Status
	Err      error
	Duration time.Duration
	// Attachments is set on ScenarioFinished events.
	Attachments []Attachment
}

// Sink receives events. Implementations must be safe for concurrent use;
// scenarios may run in parallel.
type Sink interface {
	Publish(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

func (f SinkFunc) Publish(e Event) { f(e) }

// MultiSink fans an event out to every sink in order.
type MultiSink []Sink

func (m MultiSink) Publish(e Event) {
	for _, s := range m {
		if s != nil {
			s.Publish(e)
		}
	}
}

// Recorder is a Sink that keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}
