// Package diagram renders a compiled chart as a Graphviz digraph, useful
// for documenting workflows and debugging transition wiring.
package diagram

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/awalterschulze/gographviz"

	"github.com/petrijr/chartflow/pkg/api"
)

const graphName = "chart"

// DOT renders the chart in Graphviz dot syntax. States become nodes (final
// states double-circled, compound states boxed), hierarchy containment
// becomes dotted unlabeled edges, and transitions become labeled edges.
// Fallthrough targets are expanded one edge per candidate, numbered in
// resolution order.
func DOT(chart *api.Chart) (string, error) {
	g := gographviz.NewGraph()
	if err := g.SetName(graphName); err != nil {
		return "", err
	}
	if err := g.SetDir(true); err != nil {
		return "", err
	}
	if err := g.AddAttr(graphName, "rankdir", "LR"); err != nil {
		return "", err
	}
	if err := g.AddAttr(graphName, "label", strconv.Quote(chart.Name)); err != nil {
		return "", err
	}

	for _, name := range chart.StateNames() {
		st := chart.States[name]
		attrs := map[string]string{"shape": "box", "style": "rounded"}
		switch st.Kind {
		case api.Final:
			attrs = map[string]string{"shape": "doublecircle"}
		case api.Compound:
			attrs = map[string]string{"shape": "box", "style": "bold"}
		}
		if err := g.AddNode(graphName, nodeID(name), attrs); err != nil {
			return "", err
		}
	}

	// Initial marker.
	if err := g.AddNode(graphName, "start", map[string]string{"shape": "point"}); err != nil {
		return "", err
	}
	if err := g.AddEdge("start", nodeID(chart.InitialState), true, nil); err != nil {
		return "", err
	}

	for _, name := range chart.StateNames() {
		st := chart.States[name]

		if parent, ok := chart.Parent(name); ok {
			err := g.AddEdge(nodeID(parent.Name), nodeID(name), true, map[string]string{
				"style":     "dotted",
				"arrowhead": "none",
			})
			if err != nil {
				return "", err
			}
		}

		for _, t := range sortedTransitions(st) {
			for i, target := range t.Targets {
				label := t.Event.String()
				if len(t.Targets) > 1 {
					label = fmt.Sprintf("%s [%d]", label, i+1)
				}
				err := g.AddEdge(nodeID(name), nodeID(target), true, map[string]string{
					"label": strconv.Quote(label),
				})
				if err != nil {
					return "", err
				}
			}
		}
	}

	return g.String(), nil
}

func nodeID(name string) string {
	return strconv.Quote(name)
}

func sortedTransitions(st *api.State) []api.Transition {
	out := make([]api.Transition, 0, len(st.Transitions))
	for _, t := range st.Transitions {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Event.String() < out[j].Event.String()
	})
	return out
}
