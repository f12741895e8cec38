package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPredicateSQL(t *testing.T) {
	sql, args := StateEquals("sent").SQL(SQLite)
	assert.Equal(t, "w.state = ?", sql)
	assert.Equal(t, []any{"sent"}, args)

	sql, args = StateIn("a", "b").SQL(SQLite)
	assert.Equal(t, "w.state IN (?, ?)", sql)
	assert.Equal(t, []any{"a", "b"}, args)

	sql, args = StateHasPrefix("pending").SQL(SQLite)
	assert.Equal(t, `(w.state = ? OR w.state LIKE ? ESCAPE '\')`, sql)
	assert.Equal(t, []any{"pending", `pending.%`}, args)

	sql, args = StepComplete("close").SQL(SQLite)
	assert.Contains(t, sql, "EXISTS")
	assert.Contains(t, sql, "s.is_complete <> 0")
	assert.Equal(t, []any{"close"}, args)

	sql, _ = StepComplete("close").SQL(Postgres)
	assert.Contains(t, sql, "s.is_complete)")
}

func TestStateInEmpty(t *testing.T) {
	sql, args := StateIn().SQL(SQLite)
	assert.Equal(t, "1 = 0", sql)
	assert.Empty(t, args)
}

func TestPrefixEscapesLikeMetacharacters(t *testing.T) {
	_, args := StateHasPrefix("odd_state").SQL(SQLite)
	require.Len(t, args, 2)
	assert.Equal(t, `odd\_state.%`, args[1])
}

func TestPredicateMatch(t *testing.T) {
	completed := map[string]bool{"close": true}

	assert.True(t, StateEquals("sent").Match("sent", nil))
	assert.False(t, StateEquals("sent").Match("pending", nil))

	assert.True(t, StateIn("a", "sent").Match("sent", nil))
	assert.False(t, StateIn().Match("sent", nil))

	assert.True(t, StateHasPrefix("pending").Match("pending", nil))
	assert.True(t, StateHasPrefix("pending").Match("pending.sending", nil))
	assert.False(t, StateHasPrefix("pending").Match("pendingish", nil))

	assert.True(t, StepComplete("close").Match("sent", completed))
	assert.False(t, StepComplete("open").Match("sent", completed))
}

func TestWhereJoinsWithAnd(t *testing.T) {
	where, args := Where(SQLite, []Predicate{StateEquals("a"), StepComplete("x")})
	assert.Contains(t, where, " AND ")
	assert.Len(t, args, 2)

	where, args = Where(SQLite, nil)
	assert.Empty(t, where)
	assert.Empty(t, args)
}

func TestRebind(t *testing.T) {
	assert.Equal(t, "a = ? AND b = ?", Rebind(SQLite, "a = ? AND b = ?"))
	assert.Equal(t, "a = $1 AND b = $2", Rebind(Postgres, "a = ? AND b = ?"))
}
