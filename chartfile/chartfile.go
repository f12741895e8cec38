// Package chartfile loads chart declarations from YAML and compiles them
// through the programmatic builder. It covers the full builder surface:
//
//	name: sale
//	subject: {key: sale, type: Sale}
//	participants: [seller, buyer]
//	initial: pending
//	templates:
//	  cancellable:
//	    on:
//	      - event: cancel
//	        to: cancelled
//	states:
//	  pending:
//	    use: [cancellable]
//	    on:
//	      - event: send
//	        to: sent
//	  sent:
//	    steps:
//	      - name: close
//	    on:
//	      - completed: close
//	        to: closed
//	  closed:
//	    final: true
//	  cancelled:
//	    final: true
package chartfile

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/petrijr/chartflow"
	"github.com/petrijr/chartflow/pkg/api"
)

type chartDecl struct {
	Name         string                `yaml:"name"`
	Subject      *subjectDecl          `yaml:"subject"`
	Participants []string              `yaml:"participants"`
	Initial      string                `yaml:"initial"`
	Templates    map[string]*stateDecl `yaml:"templates"`
	States       map[string]*stateDecl `yaml:"states"`
}

type subjectDecl struct {
	Key  string `yaml:"key"`
	Type string `yaml:"type"`
}

type stateDecl struct {
	Use     []string              `yaml:"use"`
	Initial string                `yaml:"initial"`
	Final   bool                  `yaml:"final"`
	Steps   []stepDecl            `yaml:"steps"`
	Entry   []string              `yaml:"entry"`
	Exit    []string              `yaml:"exit"`
	On      []transitionDecl      `yaml:"on"`
	States  map[string]*stateDecl `yaml:"states"`
}

type stepDecl struct {
	Name        string     `yaml:"name"`
	Participant string     `yaml:"participant"`
	Repeatable  bool       `yaml:"repeatable"`
	Parallel    []stepDecl `yaml:"parallel"`
}

type transitionDecl struct {
	Event     string  `yaml:"event"`
	Completed string  `yaml:"completed"`
	Decision  string  `yaml:"decision"`
	Choice    string  `yaml:"choice"`
	Null      bool    `yaml:"null"`
	Final     bool    `yaml:"final"`
	NoSteps   bool    `yaml:"no_steps"`
	To        targets `yaml:"to"`
	Reset     *bool   `yaml:"reset"`
	Actions   []string `yaml:"actions"`
}

// targets accepts either a scalar or a sequence.
type targets []string

func (t *targets) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		*t = targets{s}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := node.Decode(&list); err != nil {
			return err
		}
		*t = targets(list)
		return nil
	default:
		return fmt.Errorf("line %d: transition target must be a string or a list", node.Line)
	}
}

// Load reads a YAML chart declaration and compiles it.
func Load(r io.Reader) (*api.Chart, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// LoadFile reads and compiles the chart declared in the given file.
func LoadFile(path string) (*api.Chart, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f)
}

// Parse compiles a YAML chart declaration.
func Parse(data []byte) (*api.Chart, error) {
	var decl chartDecl
	if err := yaml.Unmarshal(data, &decl); err != nil {
		return nil, &api.InvalidChartError{Reason: "yaml: " + err.Error()}
	}
	if decl.Name == "" {
		return nil, &api.InvalidChartError{Reason: "chart name is required"}
	}
	if err := validateDecl(&decl); err != nil {
		return nil, err
	}

	b := chartflow.NewChart(decl.Name)
	if decl.Subject != nil {
		b.Subject(decl.Subject.Key, decl.Subject.Type)
	}
	b.Participant(decl.Participants...)
	b.InitialState(decl.Initial)

	for name, tmpl := range decl.Templates {
		tmpl := tmpl
		b.Virtual(name, func(s *chartflow.StateBuilder) {
			applyState(s, tmpl)
		})
	}

	for name, sd := range decl.States {
		sd := sd
		b.State(name, func(s *chartflow.StateBuilder) {
			applyState(s, sd)
		})
	}

	return b.Build()
}

func applyState(s *chartflow.StateBuilder, sd *stateDecl) {
	for _, name := range sd.Use {
		s.Using(name)
	}
	if sd.Final {
		s.Final()
	}
	if sd.Initial != "" {
		s.InitialState(sd.Initial)
	}
	for _, step := range sd.Steps {
		applyStep(s, step)
	}
	s.OnEntry(sd.Entry...)
	s.OnExit(sd.Exit...)
	for _, td := range sd.On {
		applyTransition(s, td)
	}
	for name, child := range sd.States {
		child := child
		s.State(name, func(cs *chartflow.StateBuilder) {
			applyState(cs, child)
		})
	}
}

func applyStep(s *chartflow.StateBuilder, step stepDecl) {
	if len(step.Parallel) > 0 {
		s.Parallel(func(g *chartflow.StepGroup) {
			for _, p := range step.Parallel {
				g.Step(p.Name, stepOptions(p)...)
			}
		})
		return
	}
	s.Step(step.Name, stepOptions(step)...)
}

func stepOptions(step stepDecl) []chartflow.StepOption {
	var opts []chartflow.StepOption
	if step.Participant != "" {
		opts = append(opts, chartflow.WithParticipant(step.Participant))
	}
	if step.Repeatable {
		opts = append(opts, chartflow.Repeatable())
	}
	return opts
}

func validateDecl(decl *chartDecl) error {
	var walk func(name string, sd *stateDecl) error
	walk = func(name string, sd *stateDecl) error {
		for _, td := range sd.On {
			if _, ok := declEvent(td); !ok {
				return &api.InvalidChartError{
					Reason: fmt.Sprintf("state %q: transition needs one of event, completed, decision, null, final, no_steps", name),
				}
			}
			if len(td.To) == 0 {
				return &api.InvalidChartError{
					Reason: fmt.Sprintf("state %q: transition has no target", name),
				}
			}
		}
		for child, cd := range sd.States {
			if err := walk(name+"."+child, cd); err != nil {
				return err
			}
		}
		return nil
	}
	for name, sd := range decl.Templates {
		if err := walk("template "+name, sd); err != nil {
			return err
		}
	}
	for name, sd := range decl.States {
		if err := walk(name, sd); err != nil {
			return err
		}
	}
	return nil
}

func applyTransition(s *chartflow.StateBuilder, td transitionDecl) {
	event, _ := declEvent(td)

	var opts []chartflow.TransitionOption
	if td.Reset != nil && !*td.Reset {
		opts = append(opts, chartflow.NoReset())
	}
	if len(td.Actions) > 0 {
		opts = append(opts, chartflow.WithActions(td.Actions...))
	}
	s.OnFirst(event, []string(td.To), opts...)
}

func declEvent(td transitionDecl) (api.Event, bool) {
	switch {
	case td.Event != "":
		return api.On(td.Event), true
	case td.Completed != "":
		return api.Completed(td.Completed), true
	case td.Decision != "":
		return api.Decision(td.Decision, td.Choice), true
	case td.Null:
		return api.NullEvent, true
	case td.Final:
		return api.FinalEvent, true
	case td.NoSteps:
		return api.NoStepsEvent, true
	default:
		return api.Event{}, false
	}
}
