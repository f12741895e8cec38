package api

// Context is the free-form, host-managed mapping passed to guards, step
// filters and actions. The interpreter never persists it.
type Context map[string]any

// Clone returns a shallow copy of the context.
func (c Context) Clone() Context {
	if c == nil {
		return nil
	}
	out := make(Context, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Callbacks is the capability set a host supplies to an execution. Action is
// the only required method; the remaining capabilities are discovered by
// type assertion against the optional interfaces below.
type Callbacks interface {
	// Action performs the side effect registered under tag. Unknown tags
	// must return an UnknownActionError rather than being skipped.
	Action(tag string, ctx Context) (ActionResult, error)
}

// Guarded is implemented by callbacks that veto transitions. Returning nil
// admits the transition; any error rejects it and, inside a fallthrough
// list, skips to the next candidate.
type Guarded interface {
	Guard(from, to string, ctx Context) error
}

// StepFilter is implemented by callbacks that hide steps at state entry.
// Filtered-out steps are kept on the state as ignored steps.
type StepFilter interface {
	UseStep(step string, ctx Context) bool
}

// ParticipantResolver is implemented by callbacks that can resolve a
// participant role tag to a host identity. Used only by Dump.
type ParticipantResolver interface {
	ParticipantID(ctx Context, role string) any
}

// ActionResult describes the outcome of a successful action. The zero value
// means "done, no effect".
type ActionResult struct {
	kind   actionResultKind
	value  any
	newCtx Context
	key    string
}

type actionResultKind uint8

const (
	actionOK actionResultKind = iota
	actionValue
	actionReplaceContext
	actionSetContext
)

// OK reports success with no effect on the execution.
func OK() ActionResult { return ActionResult{} }

// OKValue reports success and records value in the per-drain result map
// under the action's tag.
func OKValue(v any) ActionResult {
	return ActionResult{kind: actionValue, value: v}
}

// ReplaceContext reports success and replaces the execution context.
func ReplaceContext(ctx Context) ActionResult {
	return ActionResult{kind: actionReplaceContext, newCtx: ctx}
}

// SetContext reports success and sets a single context key.
func SetContext(key string, v any) ActionResult {
	return ActionResult{kind: actionSetContext, key: key, value: v}
}

// ActionFunc is a single action implementation registered on an ActionMux.
type ActionFunc func(ctx Context) (ActionResult, error)

// ActionMux dispatches action tags to registered ActionFuncs. It implements
// Callbacks and is the simplest way to supply actions without writing a
// dispatch switch by hand:
//
//	mux := api.NewActionMux()
//	mux.Handle("send_invoice", func(ctx api.Context) (api.ActionResult, error) {
//	    return api.OK(), invoices.Send(ctx["sale"])
//	})
//
// Guards and step filters can be layered on top with guards.Wrap.
type ActionMux struct {
	handlers map[string]ActionFunc
}

// NewActionMux returns an empty mux.
func NewActionMux() *ActionMux {
	return &ActionMux{handlers: make(map[string]ActionFunc)}
}

// Handle registers fn under tag, replacing any previous registration.
func (m *ActionMux) Handle(tag string, fn ActionFunc) *ActionMux {
	if fn == nil {
		panic("chartflow: nil ActionFunc for tag " + tag)
	}
	m.handlers[tag] = fn
	return m
}

// Action dispatches to the registered handler, or fails with
// UnknownActionError.
func (m *ActionMux) Action(tag string, ctx Context) (ActionResult, error) {
	fn, ok := m.handlers[tag]
	if !ok {
		return ActionResult{}, &UnknownActionError{Tag: tag}
	}
	return fn(ctx)
}
