package diagram_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petrijr/chartflow"
	"github.com/petrijr/chartflow/pkg/diagram"
)

func testChart(t *testing.T) *chartflow.Chart {
	t.Helper()
	chart, err := chartflow.NewChart("sale").
		InitialState("pending").
		State("pending", func(s *chartflow.StateBuilder) {
			s.InitialState("preparing")
			s.State("preparing", func(c *chartflow.StateBuilder) {
				c.OnFirst(chartflow.On("prepared"), []string{"reviewing", "sending"})
			})
			s.State("reviewing", nil)
			s.State("sending", nil)
		}).
		State("closed", func(s *chartflow.StateBuilder) {
			s.Final()
		}).
		Build()
	require.NoError(t, err)
	return chart
}

func TestDOTContainsStatesAndTransitions(t *testing.T) {
	dot, err := diagram.DOT(testChart(t))
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(strings.TrimSpace(dot), "digraph"))
	assert.Contains(t, dot, `"pending.preparing"`)
	assert.Contains(t, dot, `"closed"`)
	assert.Contains(t, dot, "doublecircle")

	// Fallthrough targets expand to one numbered edge per candidate.
	assert.Contains(t, dot, `"prepared [1]"`)
	assert.Contains(t, dot, `"prepared [2]"`)

	// Hierarchy containment edges are dotted.
	assert.Contains(t, dot, "dotted")
}

func TestDOTMarksInitialState(t *testing.T) {
	dot, err := diagram.DOT(testChart(t))
	require.NoError(t, err)
	assert.Contains(t, dot, "start")
	assert.Contains(t, dot, "point")
}
