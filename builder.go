package chartflow

import (
	"fmt"
	"strings"

	"github.com/petrijr/chartflow/pkg/api"
)

// ChartBuilder compiles a programmatic chart declaration into an immutable
// api.Chart:
//
//	chart, err := chartflow.NewChart("sale").
//	    InitialState("pending").
//	    State("pending", func(s *chartflow.StateBuilder) {
//	        s.On(api.On("send"), "sent")
//	    }).
//	    State("sent", func(s *chartflow.StateBuilder) {
//	        s.Step("close")
//	        s.OnCompleted("close", "closed")
//	    }).
//	    State("closed", func(s *chartflow.StateBuilder) {
//	        s.Final()
//	    }).
//	    Build()
//
// Relative transition targets are resolved against the declaring state:
// "_" is the state itself, "x" a sibling, "^x" a sibling of the parent, and
// a dotted path is taken as absolute. Build fails with api.InvalidChartError
// when a declaration cannot be compiled.
type ChartBuilder struct {
	name        string
	subjectKey  string
	subjectType string

	participants []string
	initial      string

	virtuals map[string]func(*StateBuilder)
	states   []*StateBuilder

	errs []string
}

// NewChart creates a builder for a chart with the given name.
func NewChart(name string) *ChartBuilder {
	return &ChartBuilder{
		name:     name,
		virtuals: make(map[string]func(*StateBuilder)),
	}
}

// Subject binds the chart to a host entity, identified by a context key and
// a host type tag.
func (b *ChartBuilder) Subject(key, typ string) *ChartBuilder {
	b.subjectKey = key
	b.subjectType = typ
	return b
}

// Participant declares one or more role tags. Order is preserved,
// duplicates are dropped.
func (b *ChartBuilder) Participant(tags ...string) *ChartBuilder {
	for _, tag := range tags {
		seen := false
		for _, p := range b.participants {
			if p == tag {
				seen = true
				break
			}
		}
		if !seen {
			b.participants = append(b.participants, tag)
		}
	}
	return b
}

// InitialState declares the state entered by a fresh execution.
func (b *ChartBuilder) InitialState(id string) *ChartBuilder {
	b.initial = id
	return b
}

// Virtual registers a named template body that states can inject with
// Using. Templates must be declared before use.
func (b *ChartBuilder) Virtual(name string, body func(*StateBuilder)) *ChartBuilder {
	if body == nil {
		panic("chartflow: nil virtual body for " + name)
	}
	b.virtuals[name] = body
	return b
}

// State declares a top-level state.
func (b *ChartBuilder) State(id string, body func(*StateBuilder)) *ChartBuilder {
	b.addState(id, "", body)
	return b
}

func (b *ChartBuilder) addState(id, parent string, body func(*StateBuilder)) {
	if id == "" {
		b.errorf("state id must not be empty")
		return
	}
	if strings.Contains(id, ".") {
		b.errorf("state id %q must not contain '.'", id)
		return
	}
	name := id
	if parent != "" {
		name = parent + "." + id
	}
	sb := &StateBuilder{chart: b, name: name, nextOrder: 1}
	b.states = append(b.states, sb)
	if body != nil {
		body(sb)
	}
}

func (b *ChartBuilder) errorf(format string, args ...any) {
	b.errs = append(b.errs, fmt.Sprintf(format, args...))
}

// Build compiles and validates the declaration.
func (b *ChartBuilder) Build() (*api.Chart, error) {
	if len(b.errs) > 0 {
		return nil, &api.InvalidChartError{Reason: b.errs[0]}
	}
	if b.initial == "" {
		return nil, &api.InvalidChartError{Reason: "no initial state declared"}
	}

	states := make(map[string]*api.State, len(b.states))
	children := make(map[string]int)
	for _, sb := range b.states {
		if _, dup := states[sb.name]; dup {
			return nil, &api.InvalidChartError{
				Reason: fmt.Sprintf("state %q declared twice", sb.name),
			}
		}
		states[sb.name] = &api.State{Name: sb.name}
		if p := parentOf(sb.name); p != "" {
			children[p]++
		}
	}

	for _, sb := range b.states {
		st := states[sb.name]
		if err := b.compileState(sb, st, states, children[sb.name] > 0); err != nil {
			return nil, err
		}
	}

	if _, ok := states[b.initial]; !ok {
		return nil, &api.InvalidChartError{
			Reason: fmt.Sprintf("initial state %q does not exist", b.initial),
		}
	}

	return &api.Chart{
		Name:         b.name,
		SubjectKey:   b.subjectKey,
		SubjectType:  b.subjectType,
		InitialState: b.initial,
		States:       states,
		Participants: append([]string(nil), b.participants...),
	}, nil
}

// MustBuild is like Build but panics on error. Useful for charts declared
// in package init.
func (b *ChartBuilder) MustBuild() *api.Chart {
	chart, err := b.Build()
	if err != nil {
		panic(err)
	}
	return chart
}

func (b *ChartBuilder) compileState(sb *StateBuilder, st *api.State, states map[string]*api.State, hasChildren bool) error {
	switch {
	case sb.final && hasChildren:
		return &api.InvalidChartError{
			Reason: fmt.Sprintf("final state %q has substates", sb.name),
		}
	case sb.final && len(sb.steps) > 0:
		return &api.InvalidChartError{
			Reason: fmt.Sprintf("final state %q has steps", sb.name),
		}
	case hasChildren && len(sb.steps) > 0:
		return &api.InvalidChartError{
			Reason: fmt.Sprintf("state %q has both substates and steps", sb.name),
		}
	}

	switch {
	case sb.final:
		st.Kind = api.Final
	case hasChildren:
		st.Kind = api.Compound
	default:
		st.Kind = api.Atomic
	}

	if st.Kind == api.Compound {
		if sb.initialChild == "" {
			return &api.InvalidChartError{
				Reason: fmt.Sprintf("compound state %q has no initial state", sb.name),
			}
		}
		resolved := sb.name + "." + sb.initialChild
		if _, ok := states[resolved]; !ok {
			return &api.InvalidChartError{
				Reason: fmt.Sprintf("initial state %q of %q does not exist", sb.initialChild, sb.name),
			}
		}
		st.InitialChild = resolved
	} else if sb.initialChild != "" {
		return &api.InvalidChartError{
			Reason: fmt.Sprintf("state %q has an initial state but no substates", sb.name),
		}
	}

	seen := make(map[string]bool, len(sb.steps))
	for _, step := range sb.steps {
		if seen[step.Name] {
			return &api.InvalidChartError{
				Reason: fmt.Sprintf("step %q declared twice in state %q", step.Name, sb.name),
			}
		}
		seen[step.Name] = true
	}
	st.Steps = append([]api.Step(nil), sb.steps...)

	if len(sb.repeatable) > 0 {
		st.RepeatableSteps = make(map[string]bool, len(sb.repeatable))
		for name := range sb.repeatable {
			if !seen[name] {
				return &api.InvalidChartError{
					Reason: fmt.Sprintf("repeatable step %q not declared in state %q", name, sb.name),
				}
			}
			st.RepeatableSteps[name] = true
		}
	}

	st.EntryActions = append([]string(nil), sb.entry...)
	st.ExitActions = append([]string(nil), sb.exit...)

	st.Transitions = make(map[api.Event]api.Transition, len(sb.transitions))
	for _, td := range sb.transitions {
		if st.Kind == api.Final && td.event.Kind != api.EventFinal {
			return &api.InvalidChartError{
				Reason: fmt.Sprintf("final state %q has an outgoing transition on %s", sb.name, td.event),
			}
		}
		targets := make([]string, 0, len(td.targets))
		for _, raw := range td.targets {
			resolved, err := resolveTarget(sb.name, raw)
			if err != nil {
				return err
			}
			if _, ok := states[resolved]; !ok {
				return &api.InvalidChartError{
					Reason: fmt.Sprintf("transition target %q in state %q does not exist", raw, sb.name),
				}
			}
			targets = append(targets, resolved)
		}
		st.Transitions[td.event] = api.Transition{
			Event:   td.event,
			Targets: targets,
			Reset:   !td.noReset,
			Actions: append([]string(nil), td.actions...),
		}
	}
	return nil
}

// resolveTarget maps a relative target to an absolute dotted path against
// the declaring state.
func resolveTarget(state, raw string) (string, error) {
	switch {
	case raw == "":
		return "", &api.InvalidChartError{
			Reason: fmt.Sprintf("empty transition target in state %q", state),
		}
	case raw == "_":
		return state, nil
	case strings.HasPrefix(raw, "^"):
		rest := raw[1:]
		segments := strings.Split(state, ".")
		if len(segments) < 2 {
			return "", &api.InvalidChartError{
				Reason: fmt.Sprintf("cannot resolve target %q from top-level state %q", raw, state),
			}
		}
		prefix := segments[:len(segments)-2]
		if len(prefix) == 0 {
			return rest, nil
		}
		return strings.Join(prefix, ".") + "." + rest, nil
	case strings.Contains(raw, "."):
		return raw, nil
	default:
		if p := parentOf(state); p != "" {
			return p + "." + raw, nil
		}
		return raw, nil
	}
}

func parentOf(name string) string {
	i := strings.LastIndex(name, ".")
	if i < 0 {
		return ""
	}
	return name[:i]
}

// StateBuilder accumulates the body of one state declaration.
type StateBuilder struct {
	chart *ChartBuilder
	name  string

	final        bool
	initialChild string

	steps      []api.Step
	nextOrder  int
	repeatable map[string]bool

	entry []string
	exit  []string

	transitions []transitionDecl
}

type transitionDecl struct {
	event   api.Event
	targets []string
	noReset bool
	actions []string
}

// StepOption customizes a step declaration.
type StepOption func(*StateBuilder, *api.Step)

// WithParticipant tags the step with a participant role.
func WithParticipant(role string) StepOption {
	return func(_ *StateBuilder, s *api.Step) {
		s.Participant = role
	}
}

// Repeatable marks the step as idempotently re-completable. Shorthand for a
// separate StateBuilder.Repeatable call.
func Repeatable() StepOption {
	return func(sb *StateBuilder, s *api.Step) {
		if sb.repeatable == nil {
			sb.repeatable = make(map[string]bool)
		}
		sb.repeatable[s.Name] = true
	}
}

// TransitionOption customizes a transition declaration.
type TransitionOption func(*transitionDecl)

// NoReset keeps a self-targeted transition from re-entering the state; only
// the transition actions are queued.
func NoReset() TransitionOption {
	return func(td *transitionDecl) { td.noReset = true }
}

// WithActions queues the given action tags when the transition is taken.
func WithActions(tags ...string) TransitionOption {
	return func(td *transitionDecl) {
		td.actions = append(td.actions, tags...)
	}
}

// InitialState declares which child is entered when this compound state is
// entered. The id is relative to this state and may be dotted for a deeper
// descendant.
func (s *StateBuilder) InitialState(childID string) *StateBuilder {
	s.initialChild = childID
	return s
}

// Final marks this state as a terminal leaf.
func (s *StateBuilder) Final() *StateBuilder {
	s.final = true
	return s
}

// State declares a child state.
func (s *StateBuilder) State(id string, body func(*StateBuilder)) *StateBuilder {
	s.chart.addState(id, s.name, body)
	return s
}

// Step appends a sequential step. Each call receives the next order number.
func (s *StateBuilder) Step(id string, opts ...StepOption) *StateBuilder {
	s.addStep(id, s.nextOrder, opts)
	s.nextOrder++
	return s
}

// Parallel declares a group of steps sharing a single order number, so they
// may be completed in any order relative to each other.
func (s *StateBuilder) Parallel(body func(*StepGroup)) *StateBuilder {
	if body == nil {
		panic("chartflow: nil parallel body in state " + s.name)
	}
	g := &StepGroup{state: s, order: s.nextOrder}
	body(g)
	if g.declared {
		s.nextOrder++
	}
	return s
}

// Repeatable marks a declared step as idempotently re-completable.
func (s *StateBuilder) Repeatable(id string) *StateBuilder {
	if s.repeatable == nil {
		s.repeatable = make(map[string]bool)
	}
	s.repeatable[id] = true
	return s
}

// OnEntry queues the given actions whenever the state is entered.
func (s *StateBuilder) OnEntry(tags ...string) *StateBuilder {
	s.entry = append(s.entry, tags...)
	return s
}

// OnExit queues the given actions whenever the state is left sideways.
func (s *StateBuilder) OnExit(tags ...string) *StateBuilder {
	s.exit = append(s.exit, tags...)
	return s
}

// On declares a transition from this state to a single target.
func (s *StateBuilder) On(event api.Event, target string, opts ...TransitionOption) *StateBuilder {
	return s.addTransition(event, []string{target}, opts)
}

// OnFirst declares a fallthrough transition: the first target that exists
// and passes the guard wins.
func (s *StateBuilder) OnFirst(event api.Event, targets []string, opts ...TransitionOption) *StateBuilder {
	return s.addTransition(event, targets, opts)
}

// OnCompleted declares a transition taken when the given step is completed.
func (s *StateBuilder) OnCompleted(step, target string, opts ...TransitionOption) *StateBuilder {
	return s.addTransition(api.Completed(step), []string{target}, opts)
}

// OnDecision declares a transition taken when the given step is completed
// with the given decision choice.
func (s *StateBuilder) OnDecision(step, choice, target string, opts ...TransitionOption) *StateBuilder {
	return s.addTransition(api.Decision(step, choice), []string{target}, opts)
}

// OnNull declares the immediate transition raised on entry, used for
// dynamic initial routing through guards.
func (s *StateBuilder) OnNull(targets ...string) *StateBuilder {
	return s.addTransition(api.NullEvent, targets, nil)
}

// OnFinal declares a transition taken when a final descendant is entered.
func (s *StateBuilder) OnFinal(target string, opts ...TransitionOption) *StateBuilder {
	return s.addTransition(api.FinalEvent, []string{target}, opts)
}

// OnNoSteps declares a transition taken when the state is entered and no
// steps survive the host's step filter.
func (s *StateBuilder) OnNoSteps(target string, opts ...TransitionOption) *StateBuilder {
	return s.addTransition(api.NoStepsEvent, []string{target}, opts)
}

// Using injects a previously declared virtual template into this state.
func (s *StateBuilder) Using(name string) *StateBuilder {
	body, ok := s.chart.virtuals[name]
	if !ok {
		s.chart.errorf("unknown virtual template %q used in state %q", name, s.name)
		return s
	}
	body(s)
	return s
}

func (s *StateBuilder) addStep(id string, order int, opts []StepOption) {
	if id == "" {
		s.chart.errorf("empty step name in state %q", s.name)
		return
	}
	step := api.Step{Name: id, Order: order}
	for _, opt := range opts {
		opt(s, &step)
	}
	s.steps = append(s.steps, step)
}

func (s *StateBuilder) addTransition(event api.Event, targets []string, opts []TransitionOption) *StateBuilder {
	td := transitionDecl{event: event, targets: append([]string(nil), targets...)}
	for _, opt := range opts {
		opt(&td)
	}
	if len(td.targets) == 0 {
		s.chart.errorf("transition on %s in state %q has no targets", event, s.name)
		return s
	}
	s.transitions = append(s.transitions, td)
	return s
}

// StepGroup collects the steps of a Parallel block.
type StepGroup struct {
	state    *StateBuilder
	order    int
	declared bool
}

// Step declares one step of the parallel group.
func (g *StepGroup) Step(id string, opts ...StepOption) *StepGroup {
	g.state.addStep(id, g.order, opts)
	g.declared = true
	return g
}
