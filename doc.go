// Package chartflow is a hierarchical-statechart workflow engine for
// long-lived business processes attached to domain entities.
//
// A chart is compiled once from a programmatic builder (or the chartfile
// YAML front-end) and shared read-only by any number of executions. Each
// execution tracks a current state, a per-state ordered checklist of steps,
// a history of prior states, and a queue of pending side-effect actions.
// Clients drive the workflow by dispatching events, completing steps, and
// recording decisions; the interpreter resolves transitions against the
// chart, bubbling events up the state hierarchy and honoring host guards.
//
// The durable engine binds charts and host callbacks to a persistent store
// (in-memory, SQLite, or Postgres via the postgres submodule) and
// serializes concurrent updates to one workflow with an optimistic lock.
//
//	chart := chartflow.NewChart("sale").
//	    InitialState("pending").
//	    State("pending", func(s *chartflow.StateBuilder) {
//	        s.On(chartflow.On("send"), "sent")
//	    }).
//	    State("sent", func(s *chartflow.StateBuilder) {
//	        s.Step("close")
//	        s.OnCompleted("close", "closed")
//	    }).
//	    State("closed", func(s *chartflow.StateBuilder) { s.Final() }).
//	    MustBuild()
//
//	eng := chartflow.NewInMemoryEngine()
//	_ = eng.RegisterChart(chart, callbacks)
//	rec, _ := eng.Start(ctx, "sale", nil)
//	rec, _ = eng.Dispatch(ctx, rec.ID, chartflow.On("send"), nil)
//	rec, _ = eng.CompleteStep(ctx, rec.ID, "close", nil, nil)
package chartflow
