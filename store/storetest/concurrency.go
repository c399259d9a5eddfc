/*
Package storetest holds behaviour every leave.TxStore must show. The store
packages run it from their own tests against a fresh store.

CONCURRENCY:
  RunConcurrency starts conflicting service calls together and checks the
  outcome the transaction boundary has to guarantee:
  - approvals against one balance never take more days than remain
  - overlapping submissions for one employee admit exactly one request
  - activations for one leave type leave exactly one ACTIVE policy
*/
package storetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/warp/leave-ledger/generic"
	"github.com/warp/leave-ledger/leave"
)

// Now is the clock every suite service runs at.
var Now = time.Date(2025, time.March, 1, 9, 0, 0, 0, time.UTC)

const requestDays = 3

// RunConcurrency runs the concurrency suite with the given fan-out against
// st, which must be empty.
func RunConcurrency(t *testing.T, st leave.TxStore, workers int) {
	t.Helper()
	require.GreaterOrEqual(t, workers, 2)

	svc := leave.NewService(st,
		leave.WithClock(generic.FixedClock{At: Now}),
		leave.WithLogger(zaptest.NewLogger(t)))
	ctx := leave.WithActor(context.Background(), "hr-admin")

	for _, id := range []leave.LeaveTypeID{"annual", "sick"} {
		_, err := svc.CreateLeaveType(ctx, id, string(id))
		require.NoError(t, err)
	}
	// Two days a worker: the approvals below ask for three each.
	p, err := svc.CreatePolicy(ctx, leave.PolicyInput{
		LeaveTypeID:       "annual",
		AnnualEntitlement: generic.Days(float64(2 * workers)),
		CarriedOverYears:  1,
	})
	require.NoError(t, err)
	_, err = svc.ActivatePolicy(ctx, p.ID)
	require.NoError(t, err)

	t.Run("approvals never overdraw", func(t *testing.T) {
		approveConcurrently(t, ctx, svc, workers)
	})
	t.Run("overlapping submissions admit one", func(t *testing.T) {
		submitConcurrently(t, ctx, svc, workers)
	})
	t.Run("activations leave one active policy", func(t *testing.T) {
		activateConcurrently(t, ctx, svc, workers)
	})
}

func approveConcurrently(t *testing.T, ctx context.Context, svc *leave.Service, workers int) {
	b := openBalance(t, ctx, svc, "emp-a")
	entitlement := 2 * workers

	ids := make([]leave.RequestID, workers)
	monday := generic.MustParseDate("2025-03-03")
	for i := range ids {
		start := monday.AddDays(7 * i)
		r, err := svc.SubmitRequest(ctx, leave.RequestInput{
			EmployeeID: "emp-a",
			BalanceID:  b.ID,
			StartDate:  start,
			EndDate:    start.AddDays(requestDays - 1),
		})
		require.NoError(t, err)
		ids[i] = r.ID
	}

	errs := fanOut(workers, func(i int) error {
		_, err := svc.ApproveRequest(ctx, ids[i], "")
		return err
	})

	approved := 0
	for _, err := range errs {
		if err == nil {
			approved++
			continue
		}
		assert.ErrorIs(t, err, generic.ErrInsufficientBalance)
	}
	assert.Equal(t, entitlement/requestDays, approved)

	got, err := svc.GetBalance(ctx, b.ID)
	require.NoError(t, err)
	assert.False(t, got.Remaining.IsNegative())
	assert.True(t, got.Remaining.Equal(generic.Days(float64(entitlement-requestDays*approved))), "remaining %s", got.Remaining)

	res, err := svc.ReplayBalance(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, res.Consistent(), "drift: %v", res.Drift)
}

func submitConcurrently(t *testing.T, ctx context.Context, svc *leave.Service, workers int) {
	b := openBalance(t, ctx, svc, "emp-b")

	errs := fanOut(workers, func(int) error {
		_, err := svc.SubmitRequest(ctx, leave.RequestInput{
			EmployeeID: "emp-b",
			BalanceID:  b.ID,
			StartDate:  generic.MustParseDate("2025-06-02"),
			EndDate:    generic.MustParseDate("2025-06-03"),
		})
		return err
	})

	admitted := 0
	for _, err := range errs {
		if err == nil {
			admitted++
			continue
		}
		assert.ErrorIs(t, err, generic.ErrOverlappingRequest)
	}
	assert.Equal(t, 1, admitted)

	reqs, err := svc.ListRequests(ctx, leave.RequestFilter{EmployeeID: "emp-b"})
	require.NoError(t, err)
	assert.Len(t, reqs, 1)
}

func activateConcurrently(t *testing.T, ctx context.Context, svc *leave.Service, workers int) {
	ids := make([]leave.PolicyID, workers)
	for i := range ids {
		p, err := svc.CreatePolicy(ctx, leave.PolicyInput{LeaveTypeID: "sick", AnnualEntitlement: generic.Days(10)})
		require.NoError(t, err)
		ids[i] = p.ID
	}

	errs := fanOut(workers, func(i int) error {
		_, err := svc.ActivatePolicy(ctx, ids[i])
		return err
	})
	for _, err := range errs {
		assert.NoError(t, err)
	}

	active, err := svc.ListPolicies(ctx, leave.PolicyFilter{LeaveTypeID: "sick", Statuses: []leave.PolicyStatus{leave.PolicyActive}})
	require.NoError(t, err)
	assert.Len(t, active, 1)

	retired, err := svc.ListPolicies(ctx, leave.PolicyFilter{LeaveTypeID: "sick", Statuses: []leave.PolicyStatus{leave.PolicyRetired}})
	require.NoError(t, err)
	assert.Len(t, retired, workers-1)
}

func openBalance(t *testing.T, ctx context.Context, svc *leave.Service, employee leave.EmployeeID) *leave.Balance {
	t.Helper()
	b, err := svc.OpenBalance(ctx, leave.OpenBalanceInput{
		Employee:    leave.EmployeeProfile{ID: employee, HireDate: generic.MustParseDate("2020-01-06")},
		LeaveTypeID: "annual",
		Year:        2025,
	})
	require.NoError(t, err)
	return b
}

// fanOut calls fn from n goroutines released together and returns each error
// at its index.
func fanOut(n int, fn func(i int) error) []error {
	errs := make([]error, n)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			errs[i] = fn(i)
		}()
	}
	close(start)
	wg.Wait()
	return errs
}
