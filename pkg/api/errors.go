package api

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors surfaced by persistence adapters.
var (
	// ErrNotFound is returned when a workflow record does not exist.
	ErrNotFound = errors.New("workflow not found")

	// ErrConflict is returned when an optimistic-lock check fails during a
	// persistent update. Callers may reload and retry.
	ErrConflict = errors.New("workflow was updated concurrently")
)

// NoTransitionError indicates that no handler for the event exists anywhere
// along the parent chain of the originating state.
type NoTransitionError struct {
	From  string
	Event Event
}

func (e *NoTransitionError) Error() string {
	return fmt.Sprintf("no transition from %q on event %s", e.From, e.Event)
}

// NoStateError indicates a transition target that is not a state of the
// chart. After builder validation this points at a malformed chart.
type NoStateError struct {
	Target string
}

func (e *NoStateError) Error() string {
	return fmt.Sprintf("no such state: %q", e.Target)
}

// GuardRejectedError wraps the error a host guard returned to veto a
// transition.
type GuardRejectedError struct {
	Reason error
}

func (e *GuardRejectedError) Error() string {
	return "guard rejected transition: " + e.Reason.Error()
}

func (e *GuardRejectedError) Unwrap() error { return e.Reason }

// StepOutOfOrderError indicates a completion attempt for a non-repeatable
// step outside the next-step set.
type StepOutOfOrderError struct {
	NextSteps []string
}

func (e *StepOutOfOrderError) Error() string {
	if len(e.NextSteps) == 1 {
		return "next step is: " + e.NextSteps[0]
	}
	return "next steps are: " + strings.Join(e.NextSteps, ", ")
}

// UnknownStepError indicates a completion attempt for a step the current
// state does not have.
type UnknownStepError struct {
	Name string
}

func (e *UnknownStepError) Error() string {
	return fmt.Sprintf("unknown step: %q", e.Name)
}

// UnknownActionError indicates that action execution hit a tag the host
// callbacks do not implement.
type UnknownActionError struct {
	Tag string
}

func (e *UnknownActionError) Error() string {
	return fmt.Sprintf("unknown action: %q", e.Tag)
}

// InvalidChartError is returned by the builder when a chart declaration
// cannot be compiled.
type InvalidChartError struct {
	Reason string
}

func (e *InvalidChartError) Error() string {
	return "invalid chart: " + e.Reason
}

// IsNoTransition reports whether err is a NoTransitionError.
func IsNoTransition(err error) bool {
	var nt *NoTransitionError
	return errors.As(err, &nt)
}
