package api

import (
	"context"

	"github.com/petrijr/chartflow/pkg/query"
)

// Engine is the durable envelope: it binds registered charts and their host
// callbacks to a persistent store, serializing concurrent updates to one
// workflow through the store's optimistic lock.
//
// Dispatch, CompleteStep and Decide load the record, restore an execution,
// run the interpreter, write the resulting snapshot back with a lock-version
// check, and then drain the action queue. A concurrent update surfaces as
// ErrConflict; callers may retry.
type Engine interface {
	// RegisterChart registers a compiled chart together with the host
	// callbacks used by its executions. Charts are keyed by name;
	// re-registering a name is an error.
	RegisterChart(chart *Chart, cbs Callbacks) error

	// Start creates a persistent workflow for the named chart, runs the
	// initial entry (including any dynamic initial routing), persists the
	// fresh snapshot, and then executes the queued actions.
	Start(ctx context.Context, chart string, wctx Context) (*WorkflowRecord, error)

	// Dispatch delivers an event to the workflow with the given ID.
	Dispatch(ctx context.Context, id string, event Event, wctx Context) (*WorkflowRecord, error)

	// CompleteStep completes a step on the workflow's current state. The
	// metadata is stamped onto the step row as completed_metadata.
	CompleteStep(ctx context.Context, id, step string, meta map[string]any, wctx Context) (*WorkflowRecord, error)

	// Decide completes a step with a decision choice.
	Decide(ctx context.Context, id, step, choice string, meta map[string]any, wctx Context) (*WorkflowRecord, error)

	// Get loads the workflow record with the given ID.
	Get(ctx context.Context, id string) (*WorkflowRecord, error)

	// Find returns records matching all predicates.
	Find(ctx context.Context, preds ...query.Predicate) ([]*WorkflowRecord, error)
}
