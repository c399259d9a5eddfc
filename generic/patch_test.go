package generic_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-ledger/generic"
)

type patchBody struct {
	Remarks generic.Field[string]            `json:"remarks"`
	Expiry  generic.Field[generic.TimePoint] `json:"expiry_date"`
	Types   generic.Field[[]string]          `json:"types"`
}

func TestField_JSONAbsentNullAndValue(t *testing.T) {
	var body patchBody
	require.NoError(t, json.Unmarshal([]byte(`{"remarks":"hello","expiry_date":null}`), &body))

	assert.True(t, body.Remarks.IsSet())
	assert.True(t, body.Expiry.IsClear())
	assert.True(t, body.Types.IsKeep(), "absent keys stay unchanged")

	v, ok := body.Remarks.Value()
	assert.True(t, ok)
	assert.Equal(t, "hello", v)
}

func TestField_Apply(t *testing.T) {
	remarks := "old"
	generic.Keep[string]().Apply(&remarks)
	assert.Equal(t, "old", remarks)

	generic.Set("new").Apply(&remarks)
	assert.Equal(t, "new", remarks)

	generic.Clear[string]().Apply(&remarks)
	assert.Equal(t, "", remarks)
}

func TestField_ApplyPtr(t *testing.T) {
	var expiry *generic.TimePoint

	generic.Set(generic.MustParseDate("2025-12-31")).ApplyPtr(&expiry)
	require.NotNil(t, expiry)
	assert.Equal(t, "2025-12-31", expiry.String())

	generic.Keep[generic.TimePoint]().ApplyPtr(&expiry)
	assert.NotNil(t, expiry)

	generic.Clear[generic.TimePoint]().ApplyPtr(&expiry)
	assert.Nil(t, expiry)
}

func TestDiff_ListsChangedFieldsSorted(t *testing.T) {
	before := generic.Snapshot{"status": "DRAFT", "remarks": "a", "version": "1"}
	after := generic.Snapshot{"status": "ACTIVE", "remarks": "a", "version": "2"}

	changes := generic.Diff(before, after)
	require.Len(t, changes, 2)
	assert.Equal(t, generic.FieldChange{Field: "status", Before: "DRAFT", After: "ACTIVE"}, changes[0])
	assert.Equal(t, "version", changes[1].Field)

	created := generic.Diff(nil, generic.Snapshot{"status": "DRAFT"})
	assert.Equal(t, []generic.FieldChange{{Field: "status", After: "DRAFT"}}, created)
}

func TestAuditFilter_Matches(t *testing.T) {
	e := generic.AuditEntry{Entity: "leave_policy", EntityID: "p-1", ActorID: "hr-1", Action: generic.AuditActivated}

	assert.True(t, generic.AuditFilter{}.Matches(e))
	assert.True(t, generic.AuditFilter{Entity: "leave_policy", ActorID: "hr-1"}.Matches(e))
	assert.True(t, generic.AuditFilter{Actions: []generic.AuditAction{generic.AuditCreated, generic.AuditActivated}}.Matches(e))
	assert.False(t, generic.AuditFilter{EntityID: "p-2"}.Matches(e))
	assert.False(t, generic.AuditFilter{Actions: []generic.AuditAction{generic.AuditRetired}}.Matches(e))
}
