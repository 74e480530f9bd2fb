package session

import (
	"errors"
	"fmt"
)

// State is the controller's position in the capture/query cycle.
type State int

const (
	Idle State = iota
	Capturing
	AwaitingInput
	Querying
	Displaying
	Error
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Capturing:
		return "Capturing"
	case AwaitingInput:
		return "AwaitingInput"
	case Querying:
		return "Querying"
	case Displaying:
		return "Displaying"
	case Error:
		return "Error"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// ErrBusy is returned by RunCycle when a cycle is already in flight.
var ErrBusy = errors.New("a capture cycle is already in progress")

// InputError reports missing or unusable question text.
type InputError struct {
	Reason string
	Err    error
}

func (e *InputError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *InputError) Unwrap() error { return e.Err }
