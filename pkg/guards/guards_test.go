package guards

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petrijr/chartflow/pkg/api"
)

func TestExprGuardAdmitsAndRejects(t *testing.T) {
	g, err := NewExpr(map[string]string{
		Key("calculating", "paid"): "total >= 100",
	})
	require.NoError(t, err)

	assert.NoError(t, g.Guard("calculating", "paid", api.Context{"total": 150}))

	err = g.Guard("calculating", "paid", api.Context{"total": 95})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "total >= 100")

	// No rule means admit.
	assert.NoError(t, g.Guard("calculating", "paying", api.Context{}))
}

func TestExprGuardCompileError(t *testing.T) {
	_, err := NewExpr(map[string]string{
		Key("a", "b"): "total >=",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "compile guard")
}

func TestStepExprFilters(t *testing.T) {
	f, err := NewStepExpr(map[string]string{
		"tax_form": "needs_tax == true",
	})
	require.NoError(t, err)

	assert.True(t, f.UseStep("tax_form", api.Context{"needs_tax": true}))
	assert.False(t, f.UseStep("tax_form", api.Context{"needs_tax": false}))
	assert.True(t, f.UseStep("basics", api.Context{}))
}

type baseCallbacks struct {
	guarded   bool
	lastGuard string
}

func (b *baseCallbacks) Action(tag string, ctx api.Context) (api.ActionResult, error) {
	return api.OKValue(tag), nil
}

func (b *baseCallbacks) Guard(from, to string, ctx api.Context) error {
	b.guarded = true
	b.lastGuard = Key(from, to)
	return nil
}

func (b *baseCallbacks) ParticipantID(ctx api.Context, role string) any {
	return "id-" + role
}

func TestWrapLayersGuards(t *testing.T) {
	g, err := NewExpr(map[string]string{
		Key("a", "b"): "ok == true",
	})
	require.NoError(t, err)

	base := &baseCallbacks{}
	cbs := Wrap(base, WithGuards(g))

	guarded, ok := cbs.(api.Guarded)
	require.True(t, ok)

	// Expression rejects before the base guard runs.
	require.Error(t, guarded.Guard("a", "b", api.Context{"ok": false}))
	assert.False(t, base.guarded)

	// Expression admits, then the base guard is consulted.
	require.NoError(t, guarded.Guard("a", "b", api.Context{"ok": true}))
	assert.True(t, base.guarded)

	// Actions pass through to the base.
	_, err = cbs.Action("ship", nil)
	require.NoError(t, err)
}

func TestWrapPreservesParticipantResolver(t *testing.T) {
	base := &baseCallbacks{}
	cbs := Wrap(base)

	resolver, ok := cbs.(api.ParticipantResolver)
	require.True(t, ok)
	assert.Equal(t, "id-seller", resolver.ParticipantID(nil, "seller"))
}

func TestWrapStepFilter(t *testing.T) {
	f, err := NewStepExpr(map[string]string{"extra": "false"})
	require.NoError(t, err)

	cbs := Wrap(&baseCallbacks{}, WithStepFilter(f))
	filter, ok := cbs.(api.StepFilter)
	require.True(t, ok)
	assert.False(t, filter.UseStep("extra", nil))
	assert.True(t, filter.UseStep("basics", nil))
}
