package api

// DumpedStep is one step entry in a Snapshot, qualified by the dotted path
// of the state that owns it.
type DumpedStep struct {
	State       string
	Order       int
	Name        string
	Complete    bool
	Decision    string
	Participant string
}

// Snapshot is a serializable view of an execution, suitable for handing to
// a persistence adapter and for rebuilding an execution via Restore.
type Snapshot struct {
	Name     string
	State    string
	Complete bool

	Participants []string

	// ParticipantIDs maps role tags to host identities when the callbacks
	// implement ParticipantResolver.
	ParticipantIDs map[string]any

	SubjectKey string

	// Steps is the flat step list across all states. For each state the
	// source is the current state when equal, else the most recent history
	// snapshot, else the pristine chart state. Both kept and ignored steps
	// are included so completions survive a change of step filter.
	Steps []DumpedStep
}

// Dump captures the execution as a Snapshot.
func (e *Execution) Dump() Snapshot {
	snap := Snapshot{
		Name:         e.chart.Name,
		State:        e.state.Name,
		Complete:     e.state.Kind == Final,
		Participants: append([]string(nil), e.chart.Participants...),
		SubjectKey:   e.chart.SubjectKey,
	}

	if r, ok := e.callbacks.(ParticipantResolver); ok && len(e.chart.Participants) > 0 {
		snap.ParticipantIDs = make(map[string]any, len(e.chart.Participants))
		for _, role := range e.chart.Participants {
			snap.ParticipantIDs[role] = r.ParticipantID(e.context, role)
		}
	}

	for _, name := range e.chart.StateNames() {
		src := e.snapshotSource(name)
		for _, st := range src.Steps {
			snap.Steps = append(snap.Steps, dumpStep(name, st))
		}
		for _, st := range src.IgnoredSteps {
			snap.Steps = append(snap.Steps, dumpStep(name, st))
		}
	}
	return snap
}

// snapshotSource picks the step-completion source for a state: the current
// state when equal, else the latest history snapshot, else the pristine
// chart state.
func (e *Execution) snapshotSource(name string) *State {
	if e.state.Name == name {
		return e.state
	}
	for _, h := range e.history {
		if h.Name == name {
			return h
		}
	}
	return e.chart.States[name]
}

func dumpStep(state string, st Step) DumpedStep {
	return DumpedStep{
		State:       state,
		Order:       st.Order,
		Name:        st.Name,
		Complete:    st.Complete,
		Decision:    st.Decision,
		Participant: st.Participant,
	}
}
