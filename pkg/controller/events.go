package controller

import "errors"

// EventKind identifies an operator input event.
type EventKind int

const (
	// EventMark requests an attendance commit for the next recognized face.
	EventMark EventKind = iota
	// EventEnroll starts an enrollment session for the carried name.
	EventEnroll
	// EventStop asks the loop to finish the current frame and shut down.
	EventStop
)

// Event is one operator input event. The concrete input mechanism
// (keyboard, button, API call) is an external collaborator's concern.
type Event struct {
	Kind EventKind
	// Name carries the user name for EventEnroll.
	Name string
}

// ErrQueueFull is returned when the event queue is at capacity.
var ErrQueueFull = errors.New("event queue full")

// EventQueue is a bounded queue of operator events, consumed one event
// per frame cycle. It decouples input device polling from the decision
// logic so the state machine is testable without a real input source.
type EventQueue struct {
	ch chan Event
}

// NewEventQueue creates a queue with the given capacity.
func NewEventQueue(size int) *EventQueue {
	if size < 1 {
		size = 1
	}
	return &EventQueue{ch: make(chan Event, size)}
}

// Push enqueues an event without blocking.
func (q *EventQueue) Push(ev Event) error {
	select {
	case q.ch <- ev:
		return nil
	default:
		return ErrQueueFull
	}
}

// poll dequeues one event if available.
func (q *EventQueue) poll() (Event, bool) {
	select {
	case ev := <-q.ch:
		return ev, true
	default:
		return Event{}, false
	}
}
