package api

import "sort"

// ChartDescription is the serializable metadata of a compiled chart, used
// by diagram export and by adapters that present workflow structure to
// hosts.
type ChartDescription struct {
	Name         string
	InitialState string
	SubjectKey   string
	SubjectType  string
	Participants []string
	States       []StateDescription
}

// StateDescription describes one compiled state.
type StateDescription struct {
	Name            string
	Kind            string
	InitialChild    string
	Steps           []StepDescription
	RepeatableSteps []string
	EntryActions    []string
	ExitActions     []string
	Transitions     []TransitionDescription
}

// StepDescription describes one declared step.
type StepDescription struct {
	Name        string
	Order       int
	Participant string
}

// TransitionDescription describes one compiled transition.
type TransitionDescription struct {
	Event   string
	Targets []string
	Reset   bool
	Actions []string
}

// Describe returns the chart's metadata with states and transitions in
// deterministic order.
func Describe(chart *Chart) ChartDescription {
	d := ChartDescription{
		Name:         chart.Name,
		InitialState: chart.InitialState,
		SubjectKey:   chart.SubjectKey,
		SubjectType:  chart.SubjectType,
		Participants: append([]string(nil), chart.Participants...),
	}
	for _, name := range chart.StateNames() {
		d.States = append(d.States, describeState(chart.States[name]))
	}
	return d
}

func describeState(s *State) StateDescription {
	sd := StateDescription{
		Name:         s.Name,
		Kind:         s.Kind.String(),
		InitialChild: s.InitialChild,
		EntryActions: append([]string(nil), s.EntryActions...),
		ExitActions:  append([]string(nil), s.ExitActions...),
	}
	for _, st := range s.Steps {
		sd.Steps = append(sd.Steps, StepDescription{
			Name:        st.Name,
			Order:       st.Order,
			Participant: st.Participant,
		})
	}
	for name := range s.RepeatableSteps {
		sd.RepeatableSteps = append(sd.RepeatableSteps, name)
	}
	sort.Strings(sd.RepeatableSteps)

	for _, t := range s.Transitions {
		sd.Transitions = append(sd.Transitions, TransitionDescription{
			Event:   t.Event.String(),
			Targets: append([]string(nil), t.Targets...),
			Reset:   t.Reset,
			Actions: append([]string(nil), t.Actions...),
		})
	}
	sort.Slice(sd.Transitions, func(i, j int) bool {
		return sd.Transitions[i].Event < sd.Transitions[j].Event
	})
	return sd
}
