package chartfile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petrijr/chartflow/pkg/api"
)

const saleYAML = `
name: sale
subject: {key: sale, type: Sale}
participants: [seller, buyer]
initial: pending
templates:
  cancellable:
    on:
      - event: cancel
        to: cancelled
states:
  pending:
    use: [cancellable]
    initial: preparing
    states:
      preparing:
        on:
          - event: prepared
            to: [reviewing, sending]
      reviewing:
        steps:
          - name: review
            participant: buyer
        on:
          - completed: review
            to: sending
      sending:
        steps:
          - parallel:
              - name: pack
              - name: label
          - name: hand_over
            repeatable: true
        entry: [notify_carrier]
        on:
          - completed: hand_over
            to: ^sent
  sent:
    use: [cancellable]
    steps:
      - name: close
    on:
      - decision: close
        choice: accept
        to: closed
      - event: ping
        to: _
        reset: false
        actions: [record_ping]
  closed:
    final: true
  cancelled:
    final: true
`

func TestParseFullChart(t *testing.T) {
	chart, err := Parse([]byte(saleYAML))
	require.NoError(t, err)

	assert.Equal(t, "sale", chart.Name)
	assert.Equal(t, "sale", chart.SubjectKey)
	assert.Equal(t, "Sale", chart.SubjectType)
	assert.Equal(t, []string{"seller", "buyer"}, chart.Participants)
	assert.Equal(t, "pending", chart.InitialState)

	pending := chart.States["pending"]
	require.NotNil(t, pending)
	assert.Equal(t, api.Compound, pending.Kind)
	assert.Equal(t, "pending.preparing", pending.InitialChild)

	// Template applied to both using states.
	for _, name := range []string{"pending", "sent"} {
		tr, ok := chart.States[name].Transitions[api.On("cancel")]
		require.True(t, ok, "state %s missing cancel", name)
		assert.Equal(t, []string{"cancelled"}, tr.Targets)
	}

	preparing := chart.States["pending.preparing"]
	require.NotNil(t, preparing)
	tr := preparing.Transitions[api.On("prepared")]
	assert.Equal(t, []string{"pending.reviewing", "pending.sending"}, tr.Targets)

	sending := chart.States["pending.sending"]
	require.NotNil(t, sending)
	require.Len(t, sending.Steps, 3)
	assert.Equal(t, sending.Steps[0].Order, sending.Steps[1].Order)
	assert.Greater(t, sending.Steps[2].Order, sending.Steps[1].Order)
	assert.True(t, sending.Repeatable("hand_over"))
	assert.Equal(t, []string{"notify_carrier"}, sending.EntryActions)
	assert.Equal(t, []string{"sent"}, sending.Transitions[api.Completed("hand_over")].Targets)

	sent := chart.States["sent"]
	tr = sent.Transitions[api.Decision("close", "accept")]
	assert.Equal(t, []string{"closed"}, tr.Targets)

	ping := sent.Transitions[api.On("ping")]
	assert.False(t, ping.Reset)
	assert.Equal(t, []string{"record_ping"}, ping.Actions)
	assert.Equal(t, []string{"sent"}, ping.Targets)

	assert.Equal(t, api.Final, chart.States["closed"].Kind)
}

func TestParseScalarAndListTargets(t *testing.T) {
	chart, err := Parse([]byte(`
name: tiny
initial: a
states:
  a:
    on:
      - event: one
        to: b
      - event: many
        to: [b, c]
  b: {}
  c: {}
`))
	require.NoError(t, err)

	a := chart.States["a"]
	assert.Equal(t, []string{"b"}, a.Transitions[api.On("one")].Targets)
	assert.Equal(t, []string{"b", "c"}, a.Transitions[api.On("many")].Targets)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "missing name",
			yaml: "initial: a\nstates: {a: {}}",
			want: "chart name",
		},
		{
			name: "transition without event",
			yaml: "name: x\ninitial: a\nstates:\n  a:\n    on:\n      - to: a",
			want: "needs one of",
		},
		{
			name: "transition without target",
			yaml: "name: x\ninitial: a\nstates:\n  a:\n    on:\n      - event: go",
			want: "no target",
		},
		{
			name: "bad yaml",
			yaml: "name: [",
			want: "yaml",
		},
		{
			name: "unknown target state",
			yaml: "name: x\ninitial: a\nstates:\n  a:\n    on:\n      - event: go\n        to: nowhere",
			want: "does not exist",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			var invalid *api.InvalidChartError
			require.ErrorAs(t, err, &invalid)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
