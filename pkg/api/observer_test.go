package api

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

type countingObserver struct {
	NoopObserver
	starts int
}

func (c *countingObserver) OnStart(ctx context.Context, id, chart, state string) {
	c.starts++
}

func TestCompositeObserverFansOut(t *testing.T) {
	a := &countingObserver{}
	b := &countingObserver{}

	obs := NewCompositeObserver(a, nil, b)
	obs.OnStart(context.Background(), "wf-1", "sale", "pending")

	if a.starts != 1 || b.starts != 1 {
		t.Fatalf("expected both observers called, got %d / %d", a.starts, b.starts)
	}
}

func TestCompositeObserverCollapses(t *testing.T) {
	if _, ok := NewCompositeObserver().(NoopObserver); !ok {
		t.Fatalf("empty composite should collapse to noop")
	}

	single := &countingObserver{}
	if NewCompositeObserver(single) != single {
		t.Fatalf("single composite should collapse to the observer itself")
	}
}

func TestLoggingObserverWritesEvents(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	obs := NewLoggingObserver(logger)

	ctx := context.Background()
	obs.OnStart(ctx, "wf-1", "sale", "pending")
	obs.OnTransition(ctx, "wf-1", "sale", On("send"), "pending", "sent")
	obs.OnStepCompleted(ctx, "wf-1", "sale", "close", nil)
	obs.OnActionExecuted(ctx, "wf-1", "sale", "notify", errors.New("boom"), time.Millisecond)

	out := buf.String()
	for _, want := range []string{"workflow_start", "workflow_transition", "step_completed", "action_executed", "boom"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
}

func TestBasicMetricsSnapshot(t *testing.T) {
	m := &BasicMetrics{}
	ctx := context.Background()

	m.OnStart(ctx, "wf-1", "sale", "pending")
	m.OnTransition(ctx, "wf-1", "sale", On("send"), "pending", "sent")
	m.OnStepCompleted(ctx, "wf-1", "sale", "close", nil)
	m.OnStepCompleted(ctx, "wf-1", "sale", "close", errors.New("out of order"))
	m.OnActionExecuted(ctx, "wf-1", "sale", "notify", nil, 10*time.Millisecond)
	m.OnActionExecuted(ctx, "wf-1", "sale", "notify", nil, 30*time.Millisecond)
	m.OnActionExecuted(ctx, "wf-1", "sale", "notify", errors.New("boom"), time.Millisecond)

	snap := m.Snapshot()
	if snap.WorkflowsStarted != 1 || snap.Transitions != 1 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if snap.StepsCompleted != 1 || snap.StepsRejected != 1 {
		t.Fatalf("unexpected step counters: %+v", snap)
	}
	if snap.ActionsExecuted != 2 || snap.ActionsFailed != 1 {
		t.Fatalf("unexpected action counters: %+v", snap)
	}
	if snap.AvgActionTime != 20*time.Millisecond {
		t.Fatalf("unexpected avg action time: %v", snap.AvgActionTime)
	}
}
