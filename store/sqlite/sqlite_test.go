package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-ledger/generic"
	"github.com/warp/leave-ledger/leave"
	"github.com/warp/leave-ledger/store/storetest"
)

var now = time.Date(2025, time.March, 1, 9, 0, 0, 0, time.UTC)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "leave.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func days(n float64) generic.Amount { return generic.Days(n) }

func date(s string) generic.TimePoint { return generic.MustParseDate(s) }

func TestSQLiteStore_ServiceRoundTrip(t *testing.T) {
	s := newStore(t)
	ctx := leave.WithActor(context.Background(), "hr-admin")
	svc := leave.NewService(s, leave.WithClock(generic.FixedClock{At: now}))

	_, err := svc.CreateLeaveType(ctx, "annual", "Annual leave")
	require.NoError(t, err)

	p, err := svc.CreatePolicy(ctx, leave.PolicyInput{
		LeaveTypeID:       "annual",
		AnnualEntitlement: days(20),
		CarryLimit:        days(5),
		CarriedOverYears:  1,
		Eligibility:       leave.Eligibility{EmploymentTypes: []string{"FULL_TIME"}, ExcludedWeekdays: []int{0, 6}},
	})
	require.NoError(t, err)
	p, err = svc.ActivatePolicy(ctx, p.ID)
	require.NoError(t, err)

	stored, err := s.GetPolicy(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, leave.PolicyActive, stored.Status)
	assert.True(t, stored.AnnualEntitlement.Equal(days(20)))
	assert.Equal(t, []int{0, 6}, stored.Eligibility.ExcludedWeekdays)

	b, err := svc.OpenBalance(ctx, leave.OpenBalanceInput{
		Employee:    leave.EmployeeProfile{ID: "emp-1", HireDate: date("2020-01-06"), EmploymentType: "FULL_TIME", Status: "ACTIVE"},
		LeaveTypeID: "annual",
		Year:        2025,
	})
	require.NoError(t, err)
	assert.True(t, b.Remaining.Equal(days(20)))

	// Mon 2025-03-10 .. Fri 2025-03-14
	r, err := svc.SubmitRequest(ctx, leave.RequestInput{
		EmployeeID: "emp-1",
		BalanceID:  b.ID,
		StartDate:  date("2025-03-10"),
		EndDate:    date("2025-03-14"),
	})
	require.NoError(t, err)
	_, err = svc.ApproveRequest(ctx, r.ID, "enjoy")
	require.NoError(t, err)

	got, err := svc.GetBalance(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, got.Used.Equal(days(5)))
	assert.True(t, got.Remaining.Equal(days(15)))
	assert.True(t, got.IsConsistent())

	res, err := svc.ReplayBalance(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, res.Consistent(), "drift: %v", res.Drift)

	_, err = svc.SubmitRequest(ctx, leave.RequestInput{
		EmployeeID: "emp-1",
		BalanceID:  b.ID,
		StartDate:  date("2025-03-14"),
		EndDate:    date("2025-03-17"),
	})
	assert.ErrorIs(t, err, generic.ErrOverlappingRequest)

	entries, err := svc.ListAudit(ctx, generic.AuditFilter{Entity: leave.EntityRequest, EntityID: string(r.ID)})
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, "hr-admin", entries[0].ActorID)
}

func TestSQLiteStore_DuplicateBalanceIsConflict(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateLeaveType(ctx, &leave.LeaveType{ID: "annual", Name: "Annual leave"}))
	p, err := leave.NewPolicy(leave.PolicyInput{LeaveTypeID: "annual", AnnualEntitlement: days(20)}, now)
	require.NoError(t, err)
	require.NoError(t, s.CreatePolicy(ctx, p))

	in := leave.BalanceInput{EmployeeID: "emp-1", LeaveTypeID: "annual", PolicyID: p.ID, Year: 2025}
	b, err := leave.NewBalance(in, now)
	require.NoError(t, err)
	require.NoError(t, s.CreateBalance(ctx, b))

	dup, err := leave.NewBalance(in, now)
	require.NoError(t, err)
	assert.ErrorIs(t, s.CreateBalance(ctx, dup), generic.ErrConflict)
}

func TestSQLiteStore_SecondActivePolicyIsConflict(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateLeaveType(ctx, &leave.LeaveType{ID: "annual", Name: "Annual leave"}))

	first, err := leave.NewPolicy(leave.PolicyInput{LeaveTypeID: "annual", AnnualEntitlement: days(20)}, now)
	require.NoError(t, err)
	require.NoError(t, first.Activate(now))
	require.NoError(t, s.CreatePolicy(ctx, first))

	second, err := leave.NewPolicy(leave.PolicyInput{LeaveTypeID: "annual", AnnualEntitlement: days(22)}, now)
	require.NoError(t, err)
	require.NoError(t, s.CreatePolicy(ctx, second))
	require.NoError(t, second.Activate(now))

	_, err = s.UpdatePolicy(ctx, second)
	assert.ErrorIs(t, err, generic.ErrConflict)
}

func TestSQLiteStore_GetMissingIsNotFound(t *testing.T) {
	s := newStore(t)

	_, err := s.GetBalance(context.Background(), "missing")
	assert.ErrorIs(t, err, generic.ErrNotFound)
}

func TestRunInTransaction_RollbackLeavesNoRows(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.RunInTransaction(ctx, "test", func(st leave.Store) error {
		if err := st.CreateLeaveType(ctx, &leave.LeaveType{ID: "annual", Name: "Annual leave"}); err != nil {
			return err
		}
		if err := st.AppendAudit(ctx, generic.AuditEntry{ID: "a-1", Timestamp: now, Entity: "leave_type", EntityID: "annual"}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	types, err := s.ListLeaveTypes(ctx)
	require.NoError(t, err)
	assert.Empty(t, types)

	entries, err := s.QueryAudit(ctx, generic.AuditFilter{})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestQueryAudit_NewestWithLimit(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	for i, id := range []string{"a-1", "a-2", "a-3"} {
		require.NoError(t, s.AppendAudit(ctx, generic.AuditEntry{
			ID:        id,
			Timestamp: now.Add(time.Duration(i) * time.Minute),
			Action:    generic.AuditCreated,
			Entity:    leave.EntityPolicy,
			Changes:   []generic.FieldChange{{Field: "status", After: "DRAFT"}},
		}))
	}

	got, err := s.QueryAudit(ctx, generic.AuditFilter{Entity: leave.EntityPolicy, Limit: 2})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a-2", got[0].ID)
	assert.Equal(t, "a-3", got[1].ID)
	assert.Equal(t, "DRAFT", got[1].Changes[0].After)
}

func TestSQLiteStore_ConcurrentServiceCalls(t *testing.T) {
	storetest.RunConcurrency(t, newStore(t), 8)
}
