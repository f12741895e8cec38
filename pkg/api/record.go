package api

import "time"

// WorkflowRecord is the persisted form of a workflow execution. Stores load
// and save records; the durable engine converts between records and
// Snapshots.
type WorkflowRecord struct {
	ID          string
	Name        string
	State       string
	Complete    bool
	LockVersion int64
	CreatedAt   time.Time
	UpdatedAt   time.Time

	Steps []StepRecord
}

// StepRecord is one persisted step row.
type StepRecord struct {
	ID          string
	WorkflowID  string
	State       string
	Name        string
	Order       int
	Participant string
	Decision    string
	Complete    bool

	// CompletedAt is stamped when the step first transitions to complete.
	CompletedAt *time.Time

	// CompletedMetadata carries host-supplied metadata attached to the
	// completing call.
	CompletedMetadata map[string]any

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Snapshot converts the record into the interpreter's snapshot form.
func (r *WorkflowRecord) Snapshot() Snapshot {
	snap := Snapshot{
		Name:     r.Name,
		State:    r.State,
		Complete: r.Complete,
	}
	for _, s := range r.Steps {
		snap.Steps = append(snap.Steps, DumpedStep{
			State:       s.State,
			Order:       s.Order,
			Name:        s.Name,
			Complete:    s.Complete,
			Decision:    s.Decision,
			Participant: s.Participant,
		})
	}
	return snap
}

// StepNamed returns the step record for (state, name).
func (r *WorkflowRecord) StepNamed(state, name string) (*StepRecord, bool) {
	for i := range r.Steps {
		if r.Steps[i].State == state && r.Steps[i].Name == name {
			return &r.Steps[i], true
		}
	}
	return nil, false
}
