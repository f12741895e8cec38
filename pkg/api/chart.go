package api

import "sort"

// Chart is an immutable compiled statechart. A Chart is built once (see the
// root package builder), treated as read-only, and may be shared by any
// number of executions.
type Chart struct {
	Name string

	// SubjectKey and SubjectType describe the host entity the workflow is
	// bound to, when bound.
	SubjectKey  string
	SubjectType string

	// InitialState is the dotted path entered by a fresh execution.
	InitialState string

	// States maps dotted paths to compiled states. All transition targets
	// resolve to keys of this map.
	States map[string]*State

	// Participants is the ordered set of role tags declared by the chart.
	Participants []string
}

// State returns the compiled state with the given dotted path.
func (c *Chart) State(name string) (*State, bool) {
	s, ok := c.States[name]
	return s, ok
}

// Parent returns the parent state of the given path, if any. Intermediate
// path segments always name declared states in a valid chart.
func (c *Chart) Parent(name string) (*State, bool) {
	p := parentPath(name)
	if p == "" {
		return nil, false
	}
	s, ok := c.States[p]
	return s, ok
}

// StateNames returns all state paths in sorted order.
func (c *Chart) StateNames() []string {
	names := make([]string, 0, len(c.States))
	for name := range c.States {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
