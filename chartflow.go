package chartflow

import (
	"context"
	"database/sql"

	"github.com/petrijr/chartflow/internal/engine"
	"github.com/petrijr/chartflow/internal/persistence"
	"github.com/petrijr/chartflow/pkg/api"
	"github.com/petrijr/chartflow/pkg/query"
)

// Re-export key types so users don't need to dig into pkg/api.

type (
	Chart                = api.Chart
	State                = api.State
	Step                 = api.Step
	Transition           = api.Transition
	Event                = api.Event
	Execution            = api.Execution
	Context              = api.Context
	Callbacks            = api.Callbacks
	ActionResult         = api.ActionResult
	ActionFunc           = api.ActionFunc
	ActionMux            = api.ActionMux
	Snapshot             = api.Snapshot
	WorkflowRecord       = api.WorkflowRecord
	StepRecord           = api.StepRecord
	Engine               = api.Engine
	Observer             = api.Observer
	LoggingObserver      = api.LoggingObserver
	BasicMetrics         = api.BasicMetrics
	BasicMetricsSnapshot = api.BasicMetricsSnapshot
	CompositeObserver    = api.CompositeObserver
	NoopObserver         = api.NoopObserver
)

// Re-export event constructors and the reserved synthetic events.

var (
	On        = api.On
	Completed = api.Completed
	Decision  = api.Decision

	NullEvent    = api.NullEvent
	FinalEvent   = api.FinalEvent
	NoStepsEvent = api.NoStepsEvent
)

// Re-export action result constructors and common helpers.

var (
	OK             = api.OK
	OKValue        = api.OKValue
	ReplaceContext = api.ReplaceContext
	SetContext     = api.SetContext

	NewActionMux         = api.NewActionMux
	NewExecution         = api.NewExecution
	Restore              = api.Restore
	Describe             = api.Describe
	NewLoggingObserver   = api.NewLoggingObserver
	NewCompositeObserver = api.NewCompositeObserver
)

// Engine constructors
// These wrap the internal/engine package so external callers never need to
// import internal packages.

// NewInMemoryEngine returns an Engine backed by an in-memory store.
func NewInMemoryEngine() Engine {
	return engine.NewEngine(persistence.NewMemoryStore())
}

// NewInMemoryEngineWithObserver returns an in-memory Engine with the given
// Observer.
func NewInMemoryEngineWithObserver(obs Observer) Engine {
	return engine.NewEngineWithConfig(engine.Config{
		Store:    persistence.NewMemoryStore(),
		Observer: obs,
	})
}

// NewSQLiteEngine returns an Engine that persists workflows in a SQLite
// database. Chart registrations are kept in-memory.
func NewSQLiteEngine(db *sql.DB) (Engine, error) {
	store, err := persistence.NewSQLiteStore(db)
	if err != nil {
		return nil, err
	}
	return engine.NewEngine(store), nil
}

// NewSQLiteEngineWithObserver returns a SQLite-backed Engine with the given
// Observer.
func NewSQLiteEngineWithObserver(db *sql.DB, obs Observer) (Engine, error) {
	store, err := persistence.NewSQLiteStore(db)
	if err != nil {
		return nil, err
	}
	return engine.NewEngineWithConfig(engine.Config{
		Store:    store,
		Observer: obs,
	}), nil
}

// Convenience helpers that just forward to the underlying Engine.

// Start creates a persistent workflow for the named chart.
func Start(ctx context.Context, eng Engine, chart string, wctx Context) (*WorkflowRecord, error) {
	return eng.Start(ctx, chart, wctx)
}

// Dispatch delivers an event to a workflow.
func Dispatch(ctx context.Context, eng Engine, id string, event Event, wctx Context) (*WorkflowRecord, error) {
	return eng.Dispatch(ctx, id, event, wctx)
}

// CompleteStep completes a step on a workflow.
func CompleteStep(ctx context.Context, eng Engine, id, step string, meta map[string]any, wctx Context) (*WorkflowRecord, error) {
	return eng.CompleteStep(ctx, id, step, meta, wctx)
}

// Decide completes a step with a decision choice.
func Decide(ctx context.Context, eng Engine, id, step, choice string, meta map[string]any, wctx Context) (*WorkflowRecord, error) {
	return eng.Decide(ctx, id, step, choice, meta, wctx)
}

// Find returns workflow records matching all predicates.
func Find(ctx context.Context, eng Engine, preds ...query.Predicate) ([]*WorkflowRecord, error) {
	return eng.Find(ctx, preds...)
}
