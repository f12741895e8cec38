package api

import "strings"

// StateKind classifies a node in the state hierarchy.
type StateKind uint8

const (
	// Atomic states are leaves and may carry steps.
	Atomic StateKind = iota
	// Compound states have children and an initial child; they carry no
	// steps of their own.
	Compound
	// Final states are terminal leaves. Entering one raises FinalEvent and
	// marks the execution complete.
	Final
)

func (k StateKind) String() string {
	switch k {
	case Atomic:
		return "atomic"
	case Compound:
		return "compound"
	case Final:
		return "final"
	default:
		return "unknown"
	}
}

// State is a node in the statechart hierarchy, keyed by its dot-separated
// path within the chart.
type State struct {
	Name string
	Kind StateKind

	// InitialChild is the dotted path of the descendant entered when this
	// compound state is entered. Empty for atomic and final states.
	InitialChild string

	// Steps is the ordered checklist of the state. Inside an Execution the
	// slice carries completion status; the chart's copy is pristine.
	Steps []Step

	// IgnoredSteps holds steps hidden by the host's UseStep filter at entry
	// time. Always empty on chart-owned states.
	IgnoredSteps []Step

	// RepeatableSteps names steps that may be re-completed idempotently.
	RepeatableSteps map[string]bool

	Transitions map[Event]Transition

	EntryActions []string
	ExitActions  []string
}

// Step returns the step with the given name from Steps or IgnoredSteps.
func (s *State) Step(name string) (Step, bool) {
	if st := findStep(s.Steps, name); st != nil {
		return *st, true
	}
	if st := findStep(s.IgnoredSteps, name); st != nil {
		return *st, true
	}
	return Step{}, false
}

// Repeatable reports whether the named step may be re-completed.
func (s *State) Repeatable(name string) bool {
	return s.RepeatableSteps[name]
}

// clone produces a deep copy suitable for use as the mutable current state
// of an Execution. Transition and action maps are shared: they are never
// mutated after compilation.
func (s *State) clone() *State {
	c := *s
	c.Steps = stepsClone(s.Steps)
	c.IgnoredSteps = stepsClone(s.IgnoredSteps)
	return &c
}

// parentPath returns the dotted path of the parent state, or "" for a
// top-level state.
func parentPath(name string) string {
	i := strings.LastIndex(name, ".")
	if i < 0 {
		return ""
	}
	return name[:i]
}

// isDescendant reports whether name lies strictly below ancestor in the
// hierarchy.
func isDescendant(name, ancestor string) bool {
	return strings.HasPrefix(name, ancestor+".")
}

// isSibling reports whether two distinct states share a parent.
func isSibling(a, b string) bool {
	return a != b && parentPath(a) == parentPath(b)
}
