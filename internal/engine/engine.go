package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/petrijr/chartflow/internal/persistence"
	"github.com/petrijr/chartflow/pkg/api"
	"github.com/petrijr/chartflow/pkg/query"
)

// engineImpl is a synchronous, in-process durable engine. It keeps the
// chart registry in memory and delegates record durability to the store;
// concurrent updates to one workflow are serialized by the store's
// optimistic lock.
type engineImpl struct {
	store    persistence.Store
	observer api.Observer

	mu     sync.RWMutex
	charts map[string]registration
}

type registration struct {
	chart *api.Chart
	cbs   api.Callbacks
}

var _ api.Engine = (*engineImpl)(nil)

// Config describes how to construct an engineImpl. It is filled in by the
// root package and postgres submodule constructors, which are what external
// callers use.
type Config struct {
	Store    persistence.Store
	Observer api.Observer
}

// NewEngineWithConfig creates a new Engine using the given configuration.
func NewEngineWithConfig(cfg Config) api.Engine {
	obs := cfg.Observer
	if obs == nil {
		obs = api.NoopObserver{}
	}
	return &engineImpl{
		store:    cfg.Store,
		observer: obs,
		charts:   make(map[string]registration),
	}
}

// NewEngine returns an Engine over the given store with no observer.
func NewEngine(store persistence.Store) api.Engine {
	return NewEngineWithConfig(Config{Store: store})
}

func (e *engineImpl) RegisterChart(chart *api.Chart, cbs api.Callbacks) error {
	if chart == nil {
		return errors.New("chart is required")
	}
	if chart.Name == "" {
		return errors.New("chart name is required")
	}
	if cbs == nil {
		return errors.New("callbacks are required")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, dup := e.charts[chart.Name]; dup {
		return fmt.Errorf("chart already registered: %s", chart.Name)
	}
	e.charts[chart.Name] = registration{chart: chart, cbs: cbs}
	return nil
}

func (e *engineImpl) registration(name string) (registration, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	reg, ok := e.charts[name]
	if !ok {
		return registration{}, fmt.Errorf("unknown chart: %s", name)
	}
	return reg, nil
}

func (e *engineImpl) Start(ctx context.Context, chart string, wctx api.Context) (*api.WorkflowRecord, error) {
	reg, err := e.registration(chart)
	if err != nil {
		return nil, err
	}

	exec, err := api.NewExecution(reg.chart, reg.cbs, wctx)
	if err != nil {
		return nil, err
	}

	rec, err := e.store.Create(ctx, exec.Dump())
	if err != nil {
		return nil, err
	}
	e.observer.OnStart(ctx, rec.ID, chart, rec.State)

	if err := e.drainActions(ctx, rec.ID, chart, exec); err != nil {
		return rec, err
	}
	return rec, nil
}

func (e *engineImpl) Dispatch(ctx context.Context, id string, event api.Event, wctx api.Context) (*api.WorkflowRecord, error) {
	return e.run(ctx, id, wctx, nil, func(exec *api.Execution) error {
		from := exec.StateName()
		if err := exec.Transition(event); err != nil {
			return err
		}
		e.observer.OnTransition(ctx, id, exec.Chart().Name, event, from, exec.StateName())
		return nil
	})
}

func (e *engineImpl) CompleteStep(ctx context.Context, id, step string, meta map[string]any, wctx api.Context) (*api.WorkflowRecord, error) {
	return e.run(ctx, id, wctx, meta, func(exec *api.Execution) error {
		err := exec.CompleteStep(step)
		e.observer.OnStepCompleted(ctx, id, exec.Chart().Name, step, err)
		return err
	})
}

func (e *engineImpl) Decide(ctx context.Context, id, step, choice string, meta map[string]any, wctx api.Context) (*api.WorkflowRecord, error) {
	return e.run(ctx, id, wctx, meta, func(exec *api.Execution) error {
		err := exec.Decide(step, choice)
		e.observer.OnStepCompleted(ctx, id, exec.Chart().Name, step, err)
		return err
	})
}

func (e *engineImpl) Get(ctx context.Context, id string) (*api.WorkflowRecord, error) {
	return e.store.Load(ctx, id)
}

func (e *engineImpl) Find(ctx context.Context, preds ...query.Predicate) ([]*api.WorkflowRecord, error) {
	return e.store.Find(ctx, preds)
}

// run is the shared load / restore / mutate / write-back / drain cycle.
func (e *engineImpl) run(ctx context.Context, id string, wctx api.Context, meta map[string]any, op func(*api.Execution) error) (*api.WorkflowRecord, error) {
	rec, err := e.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}

	reg, err := e.registration(rec.Name)
	if err != nil {
		return nil, err
	}

	exec, err := api.Restore(reg.chart, reg.cbs, wctx, rec.Snapshot())
	if err != nil {
		return nil, err
	}
	exec.Meta()["record"] = rec

	if err := op(exec); err != nil {
		return rec, err
	}

	updated, err := e.store.Update(ctx, rec, exec.Dump(), persistence.UpdateOptions{
		CompletedMetadata: meta,
	})
	if err != nil {
		return rec, err
	}

	if err := e.drainActions(ctx, id, rec.Name, exec); err != nil {
		return updated, err
	}
	return updated, nil
}

// drainActions executes the queued actions and reports each executed tag to
// the observer. On failure the error is attributed to the last executed tag.
func (e *engineImpl) drainActions(ctx context.Context, id, chart string, exec *api.Execution) error {
	pending := exec.PendingActions()
	if len(pending) == 0 {
		return nil
	}
	start := time.Now()
	_, err := exec.ExecuteActions()
	elapsed := time.Since(start)

	executed := len(pending) - len(exec.PendingActions())
	for i := 0; i < executed; i++ {
		var actErr error
		if err != nil && i == executed-1 {
			actErr = err
		}
		e.observer.OnActionExecuted(ctx, id, chart, pending[i], actErr, elapsed)
	}
	return err
}
