package sqlstore

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDialectRebind(t *testing.T) {
	numbered := Dialect{Placeholder: func(n int) string { return "$" + strconv.Itoa(n) }}

	assert.Equal(t,
		"SELECT id FROM leave_balances WHERE employee_id = $1 AND year = $2",
		numbered.Rebind("SELECT id FROM leave_balances WHERE employee_id = ? AND year = ?"))
	assert.Equal(t, "SELECT 1", numbered.Rebind("SELECT 1"))

	positional := Dialect{}
	assert.Equal(t, "WHERE id = ?", positional.Rebind("WHERE id = ?"))
}

func TestWhereBuilder(t *testing.T) {
	var w where
	w.eq("employee_id", "emp-1", false)
	w.eq("leave_type_id", "", true)
	whereIn(&w, "status", []string{"PENDING", "APPROVED"})

	assert.Equal(t, " WHERE employee_id = ? AND status IN (?, ?)", w.String())
	assert.Equal(t, []any{"emp-1", "PENDING", "APPROVED"}, w.args)

	var empty where
	assert.Empty(t, empty.String())
}
