package api

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Observer receives callbacks from the durable engine for logging and
// metrics.
//
// Implementations should be fast and non-blocking; heavy work should be
// done asynchronously so as not to delay workflow execution. The bare
// interpreter never calls an observer.
type Observer interface {
	// OnStart is called once when a workflow is started, after the initial
	// entry has settled.
	OnStart(ctx context.Context, id, chart, state string)

	// OnTransition is called after a successful event dispatch.
	OnTransition(ctx context.Context, id, chart string, event Event, from, to string)

	// OnStepCompleted is called after a completion attempt, for both
	// successes and failures (err != nil).
	OnStepCompleted(ctx context.Context, id, chart, step string, err error)

	// OnActionExecuted is called after each drained action.
	OnActionExecuted(ctx context.Context, id, chart, tag string, err error, duration time.Duration)
}

// NoopObserver is an Observer that does nothing. It is the default when no
// observer is configured.
type NoopObserver struct{}

func (NoopObserver) OnStart(ctx context.Context, id, chart, state string) {}
func (NoopObserver) OnTransition(ctx context.Context, id, chart string, event Event, from, to string) {
}
func (NoopObserver) OnStepCompleted(ctx context.Context, id, chart, step string, err error) {}
func (NoopObserver) OnActionExecuted(ctx context.Context, id, chart, tag string, err error, d time.Duration) {
}

// CompositeObserver fans out events to multiple observers.
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an Observer that forwards events to each
// non-nil observer in obs.
func NewCompositeObserver(obs ...Observer) Observer {
	filtered := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	if len(filtered) == 0 {
		return NoopObserver{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeObserver{observers: filtered}
}

func (c *CompositeObserver) OnStart(ctx context.Context, id, chart, state string) {
	for _, o := range c.observers {
		o.OnStart(ctx, id, chart, state)
	}
}

func (c *CompositeObserver) OnTransition(ctx context.Context, id, chart string, event Event, from, to string) {
	for _, o := range c.observers {
		o.OnTransition(ctx, id, chart, event, from, to)
	}
}

func (c *CompositeObserver) OnStepCompleted(ctx context.Context, id, chart, step string, err error) {
	for _, o := range c.observers {
		o.OnStepCompleted(ctx, id, chart, step, err)
	}
}

func (c *CompositeObserver) OnActionExecuted(ctx context.Context, id, chart, tag string, err error, d time.Duration) {
	for _, o := range c.observers {
		o.OnActionExecuted(ctx, id, chart, tag, err, d)
	}
}

// LoggingObserver writes structured logs using log/slog.
type LoggingObserver struct {
	Logger *slog.Logger
}

// NewLoggingObserver creates an Observer that logs workflow lifecycle
// events using the provided slog.Logger. If logger is nil, slog.Default()
// is used.
func NewLoggingObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{Logger: logger}
}

func (o *LoggingObserver) OnStart(ctx context.Context, id, chart, state string) {
	o.Logger.InfoContext(ctx, "workflow_start",
		slog.String("chart", chart),
		slog.String("workflow_id", id),
		slog.String("state", state),
	)
}

func (o *LoggingObserver) OnTransition(ctx context.Context, id, chart string, event Event, from, to string) {
	o.Logger.InfoContext(ctx, "workflow_transition",
		slog.String("chart", chart),
		slog.String("workflow_id", id),
		slog.String("event", event.String()),
		slog.String("from", from),
		slog.String("to", to),
	)
}

func (o *LoggingObserver) OnStepCompleted(ctx context.Context, id, chart, step string, err error) {
	level := slog.LevelInfo
	if err != nil {
		level = slog.LevelWarn
	}
	o.Logger.Log(ctx, level, "step_completed",
		slog.String("chart", chart),
		slog.String("workflow_id", id),
		slog.String("step", step),
		slog.Any("error", err),
	)
}

func (o *LoggingObserver) OnActionExecuted(ctx context.Context, id, chart, tag string, err error, d time.Duration) {
	level := slog.LevelDebug
	if err != nil {
		level = slog.LevelError
	}
	o.Logger.Log(ctx, level, "action_executed",
		slog.String("chart", chart),
		slog.String("workflow_id", id),
		slog.String("action", tag),
		slog.Duration("duration", d),
		slog.Any("error", err),
	)
}

// BasicMetrics collects simple counters and aggregate action durations. It
// implements Observer and can be combined with LoggingObserver via
// NewCompositeObserver.
type BasicMetrics struct {
	NoopObserver

	workflowsStarted    atomic.Int64
	transitions         atomic.Int64
	stepsCompleted      atomic.Int64
	stepsRejected       atomic.Int64
	actionsExecuted     atomic.Int64
	actionsFailed       atomic.Int64
	totalActionDuration atomic.Int64 // nanoseconds
}

// BasicMetricsSnapshot is an immutable snapshot of BasicMetrics.
type BasicMetricsSnapshot struct {
	WorkflowsStarted int64
	Transitions      int64
	StepsCompleted   int64
	StepsRejected    int64
	ActionsExecuted  int64
	ActionsFailed    int64
	AvgActionTime    time.Duration
}

func (m *BasicMetrics) OnStart(ctx context.Context, id, chart, state string) {
	m.workflowsStarted.Add(1)
}

func (m *BasicMetrics) OnTransition(ctx context.Context, id, chart string, event Event, from, to string) {
	m.transitions.Add(1)
}

func (m *BasicMetrics) OnStepCompleted(ctx context.Context, id, chart, step string, err error) {
	if err != nil {
		m.stepsRejected.Add(1)
		return
	}
	m.stepsCompleted.Add(1)
}

func (m *BasicMetrics) OnActionExecuted(ctx context.Context, id, chart, tag string, err error, d time.Duration) {
	if err != nil {
		m.actionsFailed.Add(1)
		return
	}
	m.actionsExecuted.Add(1)
	m.totalActionDuration.Add(d.Nanoseconds())
}

// Snapshot returns a snapshot of the current metrics.
func (m *BasicMetrics) Snapshot() BasicMetricsSnapshot {
	executed := m.actionsExecuted.Load()
	totalNs := m.totalActionDuration.Load()

	var avg time.Duration
	if executed > 0 {
		avg = time.Duration(totalNs / executed)
	}

	return BasicMetricsSnapshot{
		WorkflowsStarted: m.workflowsStarted.Load(),
		Transitions:      m.transitions.Load(),
		StepsCompleted:   m.stepsCompleted.Load(),
		StepsRejected:    m.stepsRejected.Load(),
		ActionsExecuted:  m.actionsExecuted.Load(),
		ActionsFailed:    m.actionsFailed.Load(),
		AvgActionTime:    avg,
	}
}
