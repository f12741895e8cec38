package api

import "slices"

// Execution is the mutable interpreter over a shared, immutable Chart.
//
// An Execution is owned by a single caller and is not safe for concurrent
// use. Every public operation either succeeds atomically or leaves the
// Execution unchanged and returns the error, so callers may amend the
// context and retry.
type Execution struct {
	chart *Chart

	// state is the current state, an owned copy of the chart's node with
	// step completion overlaid.
	state *State

	// history holds prior state snapshots, most recent first. Snapshots are
	// owned by the execution and never alias chart data.
	history []*State

	// transitions is the log of taken transitions, most recent first.
	transitions []*Transition

	// actions is the FIFO queue drained by ExecuteActions.
	actions []string

	callbacks Callbacks
	context   Context
	meta      map[string]any
}

// NewExecution creates a fresh execution and enters the chart's initial
// state, which may cascade through compound descent and synthetic
// final/null/no-steps routing before returning.
func NewExecution(chart *Chart, cbs Callbacks, ctx Context) (*Execution, error) {
	initial, ok := chart.States[chart.InitialState]
	if !ok {
		return nil, &NoStateError{Target: chart.InitialState}
	}
	e := &Execution{
		chart:     chart,
		callbacks: cbs,
		context:   ctx,
		meta:      make(map[string]any),
	}
	e.enter(initial, false)
	return e, nil
}

// Restore rebuilds an execution from a persisted snapshot without firing
// entry actions or synthetic events. Step completions are overlaid onto the
// chart's pristine states; the host's step filter is re-applied so the
// kept/ignored partition matches the current context.
func Restore(chart *Chart, cbs Callbacks, ctx Context, snap Snapshot) (*Execution, error) {
	cur, ok := chart.States[snap.State]
	if !ok {
		return nil, &NoStateError{Target: snap.State}
	}
	e := &Execution{
		chart:     chart,
		callbacks: cbs,
		context:   ctx,
		meta:      make(map[string]any),
	}

	byState := make(map[string][]DumpedStep)
	for _, s := range snap.Steps {
		byState[s.State] = append(byState[s.State], s)
	}

	e.state = e.materialize(cur, byState[snap.State])
	for _, name := range chart.StateNames() {
		if name == snap.State {
			continue
		}
		if !anyStepComplete(byState[name]) {
			continue
		}
		e.history = append(e.history, e.materialize(chart.States[name], byState[name]))
	}
	return e, nil
}

// Chart returns the shared chart.
func (e *Execution) Chart() *Chart { return e.chart }

// State returns the current state. Callers must treat it as read-only.
func (e *Execution) State() *State { return e.state }

// StateName returns the dotted path of the current state.
func (e *Execution) StateName() string { return e.state.Name }

// Complete reports whether the execution has reached a final state.
func (e *Execution) Complete() bool { return e.state.Kind == Final }

// History returns prior state snapshots, most recent first.
func (e *Execution) History() []*State { return e.history }

// TakenTransitions returns the log of taken transitions, most recent first.
func (e *Execution) TakenTransitions() []*Transition { return e.transitions }

// PendingActions returns the queued action tags in execution order.
func (e *Execution) PendingActions() []string {
	return append([]string(nil), e.actions...)
}

// Context returns the host-managed context mapping.
func (e *Execution) Context() Context { return e.context }

// Meta returns the adapter scratch mapping. The interpreter never touches
// it; persistence adapters use it to stash loaded records.
func (e *Execution) Meta() map[string]any { return e.meta }

// Transition dispatches a named event against the current state, bubbling
// up the parent chain until a handler is found.
func (e *Execution) Transition(ev Event) error {
	w := e.working()
	if err := w.dispatch(ev); err != nil {
		return err
	}
	e.commit(w)
	return nil
}

// CompleteStep marks the named step complete and dispatches the
// corresponding Completed event. A missing handler is not an error: the
// completion stands and the state is unchanged.
func (e *Execution) CompleteStep(step string) error {
	return e.complete(step, "", false)
}

// Decide marks the named step complete with the given decision choice and
// dispatches the corresponding Decision event. Unlike CompleteStep, a
// missing handler surfaces as NoTransitionError and the completion is
// rolled back.
func (e *Execution) Decide(step, choice string) error {
	return e.complete(step, choice, true)
}

// ExecuteActions drains the action queue in FIFO order, invoking the host
// callback for each tag. On error the drain stops: the failed action is
// consumed, the remaining queue is retained, and the results accumulated so
// far are returned alongside the error.
func (e *Execution) ExecuteActions() (map[string]any, error) {
	results := make(map[string]any)
	for len(e.actions) > 0 {
		tag := e.actions[0]
		e.actions = e.actions[1:]
		res, err := e.callbacks.Action(tag, e.context)
		if err != nil {
			return results, err
		}
		switch res.kind {
		case actionOK:
		case actionValue:
			results[tag] = res.value
		case actionReplaceContext:
			e.context = res.newCtx
		case actionSetContext:
			if e.context == nil {
				e.context = make(Context)
			}
			e.context[res.key] = res.value
		}
	}
	return results, nil
}

// working returns a copy that can be mutated freely and either committed or
// discarded, giving every public operation atomic-or-unchanged semantics.
func (e *Execution) working() *Execution {
	w := *e
	w.state = e.state.clone()
	w.history = append([]*State(nil), e.history...)
	w.transitions = append([]*Transition(nil), e.transitions...)
	w.actions = append([]string(nil), e.actions...)
	return &w
}

func (e *Execution) commit(w *Execution) { *e = *w }

func (e *Execution) queue(tags ...string) {
	e.actions = append(e.actions, tags...)
}

// enter performs state entry per the fixed order: history push, step
// filtering, action queueing (exit, transition, entry), compound descent,
// then the synthetic final/null/no-steps raises on the leaf.
func (e *Execution) enter(s *State, withTransitionActions bool) {
	var prev *State
	if e.state != nil {
		prev = e.state
		e.history = append([]*State{prev}, e.history...)
	}
	e.state = s.clone()
	e.filterSteps(e.state)

	// Exit actions for the state we left. Descending into a child (or
	// surfacing into an ancestor) queues none; moving to a sibling queues the
	// previous state's exit; any other move, including a resetting
	// self-transition, queues the previous state's exit followed by its
	// parent's.
	switch {
	case prev == nil:
	case isDescendant(e.state.Name, prev.Name):
	case isDescendant(prev.Name, e.state.Name):
	case isSibling(prev.Name, e.state.Name):
		e.queue(prev.ExitActions...)
	default:
		e.queue(prev.ExitActions...)
		if parent, ok := e.chart.Parent(prev.Name); ok {
			e.queue(parent.ExitActions...)
		}
	}

	if withTransitionActions && len(e.transitions) > 0 {
		e.queue(e.transitions[0].Actions...)
	}
	e.queue(e.state.EntryActions...)

	if e.state.Kind == Compound && e.state.InitialChild != "" {
		if child, ok := e.chart.States[e.state.InitialChild]; ok {
			e.enter(child, false)
		}
		return
	}

	// Synthetic raises on the entered leaf, in fixed order. Each is a
	// no-op when unhandled, and any raise that moves the execution stops
	// the remaining ones from firing against the new state.
	leaf := e.state.Name
	if e.state.Kind == Final {
		e.raise(FinalEvent)
	}
	if e.state.Name == leaf {
		e.raise(NullEvent)
	}
	if e.state.Name == leaf && e.state.Kind == Atomic && len(e.state.Steps) == 0 {
		e.raise(NoStepsEvent)
	}
}

// filterSteps partitions a freshly entered state's steps through the
// host's UseStep filter, if supplied.
func (e *Execution) filterSteps(s *State) {
	f, ok := e.callbacks.(StepFilter)
	if !ok || len(s.Steps) == 0 {
		return
	}
	var kept, ignored []Step
	for _, st := range s.Steps {
		if f.UseStep(st.Name, e.context) {
			kept = append(kept, st)
		} else {
			ignored = append(ignored, st)
		}
	}
	s.Steps = kept
	s.IgnoredSteps = ignored
}

// raise dispatches a synthetic event, ignoring resolution failures.
func (e *Execution) raise(ev Event) {
	_ = e.dispatch(ev)
}

// dispatch resolves an event starting at the current state. Resolution
// fails without mutating the execution; once a target is admitted the
// transition always completes.
func (e *Execution) dispatch(ev Event) error {
	return e.resolveFrom(e.state, ev)
}

// resolveFrom looks up the event on view, bubbling to the parent when
// absent. Errors are reported relative to the originating current state,
// not the ancestor that happened to hold (or miss) the handler.
func (e *Execution) resolveFrom(view *State, ev Event) error {
	t, ok := view.Transitions[ev]
	if !ok {
		if parent, found := e.chart.Parent(view.Name); found {
			return e.resolveFrom(parent, ev)
		}
		return &NoTransitionError{From: e.state.Name, Event: ev}
	}

	if len(t.Targets) == 1 && t.Targets[0] == view.Name && !t.Reset {
		e.queue(t.Actions...)
		return nil
	}

	if len(t.Targets) > 1 {
		for _, candidate := range t.Targets {
			if err := e.useTarget(view, &t, candidate); err == nil {
				return nil
			}
		}
		return &NoTransitionError{From: e.state.Name, Event: ev}
	}

	return e.useTarget(view, &t, t.Targets[0])
}

// useTarget admits a single transition target: the state must exist and the
// host guard (if any) must not veto it. On admission the transition is
// logged and the target entered.
func (e *Execution) useTarget(view *State, t *Transition, target string) error {
	s, ok := e.chart.States[target]
	if !ok {
		return &NoStateError{Target: target}
	}
	if g, ok := e.callbacks.(Guarded); ok {
		if err := g.Guard(view.Name, s.Name, e.context); err != nil {
			return &GuardRejectedError{Reason: err}
		}
	}
	e.transitions = append([]*Transition{t.clone()}, e.transitions...)
	e.enter(s, true)
	return nil
}

func (e *Execution) complete(name, choice string, decision bool) error {
	cur := e.state
	st, ok := cur.Step(name)
	if !ok {
		return &UnknownStepError{Name: name}
	}

	next := nextSteps(cur.Steps)
	if !slices.Contains(next, name) {
		if cur.Repeatable(name) && (st.Complete || len(next) == 0) {
			// Idempotent re-complete of a repeatable step.
			return nil
		}
		return &StepOutOfOrderError{NextSteps: next}
	}

	w := e.working()
	target := findStep(w.state.Steps, name)
	target.Complete = true
	ev := Completed(name)
	if decision {
		target.Decision = choice
		ev = Decision(name, choice)
	}

	if err := w.dispatch(ev); err != nil {
		if decision || !IsNoTransition(err) {
			return err
		}
		// Plain completion with no handler: the step stays completed and
		// the state is unchanged.
	}
	e.commit(w)
	return nil
}

// materialize builds an owned copy of a chart state with dumped completions
// overlaid and the step filter re-applied.
func (e *Execution) materialize(s *State, dumped []DumpedStep) *State {
	c := s.clone()
	for _, d := range dumped {
		if st := findStep(c.Steps, d.Name); st != nil {
			st.Complete = d.Complete
			st.Decision = d.Decision
		}
	}
	e.filterSteps(c)
	return c
}

func anyStepComplete(dumped []DumpedStep) bool {
	for _, d := range dumped {
		if d.Complete {
			return true
		}
	}
	return false
}
