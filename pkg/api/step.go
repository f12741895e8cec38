package api

// Step is a checklist item inside an atomic state. Steps are ordered by
// Order; steps sharing an Order value are parallel and may be completed in
// any order relative to each other.
type Step struct {
	Name        string
	Participant string
	Order       int
	Complete    bool

	// Decision holds the choice recorded when the step was completed via a
	// decision event. Empty for plain completions.
	Decision string
}

// stepsClone copies a step slice so an Execution never aliases chart-owned
// step data.
func stepsClone(steps []Step) []Step {
	if steps == nil {
		return nil
	}
	out := make([]Step, len(steps))
	copy(out, steps)
	return out
}

// findStep returns a pointer into steps for the step with the given name.
func findStep(steps []Step, name string) *Step {
	for i := range steps {
		if steps[i].Name == name {
			return &steps[i]
		}
	}
	return nil
}

// nextSteps returns the names of the lowest-order group among incomplete
// steps. An empty result means every step is complete.
func nextSteps(steps []Step) []string {
	minOrder := 0
	found := false
	for i := range steps {
		if steps[i].Complete {
			continue
		}
		if !found || steps[i].Order < minOrder {
			minOrder = steps[i].Order
			found = true
		}
	}
	if !found {
		return nil
	}
	var names []string
	for i := range steps {
		if !steps[i].Complete && steps[i].Order == minOrder {
			names = append(names, steps[i].Name)
		}
	}
	return names
}
