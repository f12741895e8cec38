// Package query provides predicates over persisted workflow state. Stores
// compile predicates to parameterized SQL; the in-memory store evaluates
// them directly.
package query

import (
	"strconv"
	"strings"
)

// Dialect selects the SQL flavor a predicate compiles to.
type Dialect int

const (
	SQLite Dialect = iota
	Postgres
)

type kind int

const (
	kindStateEquals kind = iota
	kindStateIn
	kindStatePrefix
	kindStepComplete
)

// Predicate is one condition over a persisted workflow. Predicates compose
// with AND; stores apply them to the `workflows w` / `workflow_steps s`
// layout.
type Predicate struct {
	kind   kind
	values []string
}

// StateEquals matches workflows whose current state is exactly id.
func StateEquals(id string) Predicate {
	return Predicate{kind: kindStateEquals, values: []string{id}}
}

// StateIn matches workflows whose current state is any of ids.
func StateIn(ids ...string) Predicate {
	return Predicate{kind: kindStateIn, values: append([]string(nil), ids...)}
}

// StateHasPrefix matches workflows in the given state or any of its
// descendants: `x` matches `x` and `x.anything`.
func StateHasPrefix(prefix string) Predicate {
	return Predicate{kind: kindStatePrefix, values: []string{prefix}}
}

// StepComplete matches workflows where a step with the given name has been
// completed in any state.
func StepComplete(name string) Predicate {
	return Predicate{kind: kindStepComplete, values: []string{name}}
}

// SQL compiles the predicate to a parameterized clause using `?`
// placeholders. Use Rebind to convert placeholders for Postgres.
func (p Predicate) SQL(d Dialect) (string, []any) {
	switch p.kind {
	case kindStateEquals:
		return "w.state = ?", []any{p.values[0]}
	case kindStateIn:
		if len(p.values) == 0 {
			return "1 = 0", nil
		}
		marks := strings.Repeat("?, ", len(p.values))
		args := make([]any, len(p.values))
		for i, v := range p.values {
			args[i] = v
		}
		return "w.state IN (" + marks[:len(marks)-2] + ")", args
	case kindStatePrefix:
		prefix := p.values[0]
		return `(w.state = ? OR w.state LIKE ? ESCAPE '\')`,
			[]any{prefix, escapeLike(prefix) + ".%"}
	case kindStepComplete:
		complete := "s.is_complete <> 0"
		if d == Postgres {
			complete = "s.is_complete"
		}
		return "EXISTS (SELECT 1 FROM workflow_steps s WHERE s.workflow_id = w.id AND s.name = ? AND " + complete + ")",
			[]any{p.values[0]}
	default:
		return "1 = 0", nil
	}
}

// Match evaluates the predicate in memory against a workflow's current
// state and the set of completed step names.
func (p Predicate) Match(state string, completedSteps map[string]bool) bool {
	switch p.kind {
	case kindStateEquals:
		return state == p.values[0]
	case kindStateIn:
		for _, v := range p.values {
			if state == v {
				return true
			}
		}
		return false
	case kindStatePrefix:
		return state == p.values[0] || strings.HasPrefix(state, p.values[0]+".")
	case kindStepComplete:
		return completedSteps[p.values[0]]
	default:
		return false
	}
}

// Where joins the predicates into a single WHERE clause body plus its
// argument list. An empty predicate list yields an empty clause.
func Where(d Dialect, preds []Predicate) (string, []any) {
	if len(preds) == 0 {
		return "", nil
	}
	clauses := make([]string, 0, len(preds))
	var args []any
	for _, p := range preds {
		c, a := p.SQL(d)
		clauses = append(clauses, c)
		args = append(args, a...)
	}
	return strings.Join(clauses, " AND "), args
}

// Rebind rewrites `?` placeholders to `$1..$n` for Postgres. SQLite input
// is returned unchanged.
func Rebind(d Dialect, sql string) string {
	if d != Postgres {
		return sql
	}
	var b strings.Builder
	n := 0
	for _, r := range sql {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
