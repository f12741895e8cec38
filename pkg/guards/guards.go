// Package guards provides expression-based guard and step-filter helpers
// compiled with expr-lang. Hosts declare boolean expressions over the
// execution context instead of writing guard code by hand:
//
//	g, err := guards.NewExpr(map[string]string{
//	    guards.Key("calculating", "paid"): "sum(coins) >= 100",
//	})
//	cbs := guards.Wrap(mux, guards.WithGuards(g))
package guards

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/petrijr/chartflow/pkg/api"
)

// Key builds the rule key for a from → to transition pair.
func Key(from, to string) string {
	return from + " -> " + to
}

// Expr evaluates guard rules keyed by transition pair. Transitions without
// a rule are admitted.
type Expr struct {
	programs map[string]*vm.Program
	sources  map[string]string
}

// NewExpr compiles the given rules. Every expression must evaluate to a
// boolean; compilation failures are reported eagerly.
func NewExpr(rules map[string]string) (*Expr, error) {
	g := &Expr{
		programs: make(map[string]*vm.Program, len(rules)),
		sources:  make(map[string]string, len(rules)),
	}
	for key, src := range rules {
		program, err := expr.Compile(src, expr.AsBool(), expr.AllowUndefinedVariables())
		if err != nil {
			return nil, fmt.Errorf("compile guard %q: %w", key, err)
		}
		g.programs[key] = program
		g.sources[key] = src
	}
	return g, nil
}

// Guard evaluates the rule for the from → to pair against the context.
func (g *Expr) Guard(from, to string, ctx api.Context) error {
	key := Key(from, to)
	program, ok := g.programs[key]
	if !ok {
		return nil
	}
	out, err := expr.Run(program, map[string]any(ctx))
	if err != nil {
		return fmt.Errorf("guard %q: %w", key, err)
	}
	if out.(bool) {
		return nil
	}
	return fmt.Errorf("guard expression not satisfied: %s", g.sources[key])
}

// StepExpr evaluates step-filter rules keyed by step name. Steps without a
// rule are kept, as are steps whose rule fails to evaluate.
type StepExpr struct {
	programs map[string]*vm.Program
}

// NewStepExpr compiles the given use-step rules.
func NewStepExpr(rules map[string]string) (*StepExpr, error) {
	f := &StepExpr{programs: make(map[string]*vm.Program, len(rules))}
	for step, src := range rules {
		program, err := expr.Compile(src, expr.AsBool(), expr.AllowUndefinedVariables())
		if err != nil {
			return nil, fmt.Errorf("compile step filter %q: %w", step, err)
		}
		f.programs[step] = program
	}
	return f, nil
}

// UseStep evaluates the rule for the given step against the context.
func (f *StepExpr) UseStep(step string, ctx api.Context) bool {
	program, ok := f.programs[step]
	if !ok {
		return true
	}
	out, err := expr.Run(program, map[string]any(ctx))
	if err != nil {
		return true
	}
	return out.(bool)
}

// Option configures Wrap.
type Option func(*wrapped)

// WithGuards attaches expression guards to the wrapped callbacks.
func WithGuards(g *Expr) Option {
	return func(w *wrapped) { w.guards = g }
}

// WithStepFilter attaches an expression step filter to the wrapped
// callbacks.
func WithStepFilter(f *StepExpr) Option {
	return func(w *wrapped) { w.steps = f }
}

// Wrap layers expression guards and step filters over a host's callbacks.
// Capabilities the expressions do not cover fall through to the base
// callbacks when they implement the corresponding interface.
func Wrap(base api.Callbacks, opts ...Option) api.Callbacks {
	w := &wrapped{base: base}
	for _, opt := range opts {
		opt(w)
	}
	if r, ok := base.(api.ParticipantResolver); ok {
		return &wrappedResolver{wrapped: w, resolver: r}
	}
	return w
}

type wrapped struct {
	base   api.Callbacks
	guards *Expr
	steps  *StepExpr
}

func (w *wrapped) Action(tag string, ctx api.Context) (api.ActionResult, error) {
	return w.base.Action(tag, ctx)
}

func (w *wrapped) Guard(from, to string, ctx api.Context) error {
	if w.guards != nil {
		if err := w.guards.Guard(from, to, ctx); err != nil {
			return err
		}
	}
	if g, ok := w.base.(api.Guarded); ok {
		return g.Guard(from, to, ctx)
	}
	return nil
}

func (w *wrapped) UseStep(step string, ctx api.Context) bool {
	if w.steps != nil && !w.steps.UseStep(step, ctx) {
		return false
	}
	if f, ok := w.base.(api.StepFilter); ok {
		return f.UseStep(step, ctx)
	}
	return true
}

type wrappedResolver struct {
	*wrapped
	resolver api.ParticipantResolver
}

func (w *wrappedResolver) ParticipantID(ctx api.Context, role string) any {
	return w.resolver.ParticipantID(ctx, role)
}
