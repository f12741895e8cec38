package engine_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/petrijr/chartflow"
	"github.com/petrijr/chartflow/pkg/api"
	"github.com/petrijr/chartflow/pkg/query"
)

func saleChart(t *testing.T) *chartflow.Chart {
	t.Helper()
	chart, err := chartflow.NewChart("sale").
		Subject("sale", "Sale").
		Participant("seller").
		InitialState("pending").
		State("pending", func(s *chartflow.StateBuilder) {
			s.On(chartflow.On("send"), "sent", chartflow.WithActions("notify"))
		}).
		State("sent", func(s *chartflow.StateBuilder) {
			s.Step("close", chartflow.WithParticipant("seller"))
			s.OnCompleted("close", "closed")
		}).
		State("closed", func(s *chartflow.StateBuilder) {
			s.Final()
		}).
		Build()
	require.NoError(t, err)
	return chart
}

func saleCallbacks() *chartflow.ActionMux {
	mux := chartflow.NewActionMux()
	mux.Handle("notify", func(ctx chartflow.Context) (chartflow.ActionResult, error) {
		return chartflow.SetContext("notified", true), nil
	})
	return mux
}

func newEngines(t *testing.T) map[string]chartflow.Engine {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	sqliteEng, err := chartflow.NewSQLiteEngine(db)
	require.NoError(t, err)

	return map[string]chartflow.Engine{
		"memory": chartflow.NewInMemoryEngine(),
		"sqlite": sqliteEng,
	}
}

func TestEngineLifecycle(t *testing.T) {
	for name, eng := range newEngines(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, eng.RegisterChart(saleChart(t), saleCallbacks()))

			rec, err := eng.Start(ctx, "sale", nil)
			require.NoError(t, err)
			assert.Equal(t, "pending", rec.State)
			assert.False(t, rec.Complete)
			assert.EqualValues(t, 0, rec.LockVersion)

			rec, err = eng.Dispatch(ctx, rec.ID, chartflow.On("send"), chartflow.Context{})
			require.NoError(t, err)
			assert.Equal(t, "sent", rec.State)
			assert.EqualValues(t, 1, rec.LockVersion)

			rec, err = eng.CompleteStep(ctx, rec.ID, "close", map[string]any{"actor": "alice"}, nil)
			require.NoError(t, err)
			assert.Equal(t, "closed", rec.State)
			assert.True(t, rec.Complete)

			st, ok := rec.StepNamed("sent", "close")
			require.True(t, ok)
			assert.True(t, st.Complete)
			require.NotNil(t, st.CompletedAt)
			assert.Equal(t, "alice", st.CompletedMetadata["actor"])

			got, err := eng.Get(ctx, rec.ID)
			require.NoError(t, err)
			assert.Equal(t, rec.State, got.State)
		})
	}
}

func TestEngineFind(t *testing.T) {
	for name, eng := range newEngines(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, eng.RegisterChart(saleChart(t), saleCallbacks()))

			recA, err := eng.Start(ctx, "sale", nil)
			require.NoError(t, err)
			recB, err := eng.Start(ctx, "sale", nil)
			require.NoError(t, err)

			_, err = eng.Dispatch(ctx, recB.ID, chartflow.On("send"), nil)
			require.NoError(t, err)
			_, err = eng.CompleteStep(ctx, recB.ID, "close", nil, nil)
			require.NoError(t, err)

			pending, err := eng.Find(ctx, query.StateEquals("pending"))
			require.NoError(t, err)
			require.Len(t, pending, 1)
			assert.Equal(t, recA.ID, pending[0].ID)

			closed, err := eng.Find(ctx, query.StepComplete("close"))
			require.NoError(t, err)
			require.Len(t, closed, 1)
			assert.Equal(t, recB.ID, closed[0].ID)
		})
	}
}

func TestEngineRejectsDuplicateChart(t *testing.T) {
	eng := chartflow.NewInMemoryEngine()
	require.NoError(t, eng.RegisterChart(saleChart(t), saleCallbacks()))

	err := eng.RegisterChart(saleChart(t), saleCallbacks())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestEngineUnknownChartAndWorkflow(t *testing.T) {
	eng := chartflow.NewInMemoryEngine()

	_, err := eng.Start(context.Background(), "ghost", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown chart")

	require.NoError(t, eng.RegisterChart(saleChart(t), saleCallbacks()))
	_, err = eng.Get(context.Background(), "nope")
	require.ErrorIs(t, err, api.ErrNotFound)
}

func TestEngineErrorLeavesRecordUnchanged(t *testing.T) {
	ctx := context.Background()
	eng := chartflow.NewInMemoryEngine()
	require.NoError(t, eng.RegisterChart(saleChart(t), saleCallbacks()))

	rec, err := eng.Start(ctx, "sale", nil)
	require.NoError(t, err)

	_, err = eng.Dispatch(ctx, rec.ID, chartflow.On("bogus"), nil)
	require.Error(t, err)
	assert.True(t, api.IsNoTransition(err))

	got, err := eng.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "pending", got.State)
	assert.EqualValues(t, 0, got.LockVersion)
}

type recordingObserver struct {
	api.NoopObserver
	events []string
}

func (r *recordingObserver) OnStart(ctx context.Context, id, chart, state string) {
	r.events = append(r.events, "start:"+state)
}

func (r *recordingObserver) OnTransition(ctx context.Context, id, chart string, event api.Event, from, to string) {
	r.events = append(r.events, "transition:"+from+">"+to)
}

func (r *recordingObserver) OnStepCompleted(ctx context.Context, id, chart, step string, err error) {
	r.events = append(r.events, "step:"+step)
}

func TestEngineObserverHooks(t *testing.T) {
	obs := &recordingObserver{}
	eng := chartflow.NewInMemoryEngineWithObserver(obs)
	require.NoError(t, eng.RegisterChart(saleChart(t), saleCallbacks()))

	ctx := context.Background()
	rec, err := eng.Start(ctx, "sale", nil)
	require.NoError(t, err)
	_, err = eng.Dispatch(ctx, rec.ID, chartflow.On("send"), nil)
	require.NoError(t, err)
	_, err = eng.CompleteStep(ctx, rec.ID, "close", nil, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"start:pending",
		"transition:pending>sent",
		"step:close",
	}, obs.events)
}
