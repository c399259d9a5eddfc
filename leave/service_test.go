package leave_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/warp/leave-ledger/generic"
	"github.com/warp/leave-ledger/leave"
	"github.com/warp/leave-ledger/store/memory"
)

// =============================================================================
// FIXTURE
// =============================================================================

type fixture struct {
	t       *testing.T
	ctx     context.Context
	store   *memory.Store
	metrics *leave.Metrics
	svc     *leave.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := memory.New()
	m := leave.NewMetrics(prometheus.NewRegistry())
	f := &fixture{
		t:       t,
		ctx:     leave.WithActor(context.Background(), "hr-admin"),
		store:   st,
		metrics: m,
		svc:     serviceAt(t, st, m, testNow),
	}
	_, err := f.svc.CreateLeaveType(f.ctx, "annual", "Annual leave")
	require.NoError(t, err)
	return f
}

func serviceAt(t *testing.T, st *memory.Store, m *leave.Metrics, at time.Time) *leave.Service {
	return leave.NewService(st,
		leave.WithClock(generic.FixedClock{At: at}),
		leave.WithLogger(zaptest.NewLogger(t)),
		leave.WithMetrics(m))
}

// policy creates and activates an annual policy: 20 days, carry 5, encash 10.
func (f *fixture) policy(mutate func(*leave.PolicyInput)) *leave.Policy {
	f.t.Helper()
	in := leave.PolicyInput{
		LeaveTypeID:       "annual",
		AnnualEntitlement: days(20),
		CarryLimit:        days(5),
		EncashLimit:       days(10),
		CarriedOverYears:  1,
	}
	if mutate != nil {
		mutate(&in)
	}
	p, err := f.svc.CreatePolicy(f.ctx, in)
	require.NoError(f.t, err)
	p, err = f.svc.ActivatePolicy(f.ctx, p.ID)
	require.NoError(f.t, err)
	return p
}

func employee(id leave.EmployeeID) leave.EmployeeProfile {
	return leave.EmployeeProfile{ID: id, HireDate: date("2020-01-06"), EmploymentType: "FULL_TIME", Status: "ACTIVE"}
}

func (f *fixture) balance(emp leave.EmployeeID, year int) *leave.Balance {
	f.t.Helper()
	b, err := f.svc.OpenBalance(f.ctx, leave.OpenBalanceInput{Employee: employee(emp), LeaveTypeID: "annual", Year: year})
	require.NoError(f.t, err)
	return b
}

func (f *fixture) submit(b *leave.Balance, start, end string) (*leave.Request, error) {
	return f.svc.SubmitRequest(f.ctx, leave.RequestInput{
		EmployeeID: b.EmployeeID,
		BalanceID:  b.ID,
		StartDate:  date(start),
		EndDate:    date(end),
	})
}

func (f *fixture) reload(b *leave.Balance) *leave.Balance {
	f.t.Helper()
	got, err := f.svc.GetBalance(f.ctx, b.ID)
	require.NoError(f.t, err)
	return got
}

func (f *fixture) assertReplayConsistent(b *leave.Balance) {
	f.t.Helper()
	res, err := f.svc.ReplayBalance(f.ctx, b.ID)
	require.NoError(f.t, err)
	assert.True(f.t, res.Consistent(), "drift: %v", res.Drift)
}

// =============================================================================
// POLICY LIFECYCLE
// =============================================================================

func TestActivatePolicy_RetiresPredecessorInSameTransaction(t *testing.T) {
	f := newFixture(t)
	first := f.policy(nil)

	draft, err := f.svc.CreatePolicy(f.ctx, leave.PolicyInput{
		LeaveTypeID:       "annual",
		AnnualEntitlement: days(22),
		EffectiveDate:     datePtr("2025-04-01"),
	})
	require.NoError(t, err)

	second, err := f.svc.ActivatePolicy(f.ctx, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, leave.PolicyActive, second.Status)

	retired, err := f.svc.GetPolicy(f.ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, leave.PolicyRetired, retired.Status)
	assert.Equal(t, date("2025-03-31"), *retired.ExpiryDate)

	active, err := f.svc.ListPolicies(f.ctx, leave.PolicyFilter{LeaveTypeID: "annual", Statuses: []leave.PolicyStatus{leave.PolicyActive}})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, second.ID, active[0].ID)

	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.PolicyActivations))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.PolicyRetirements.WithLabelValues("replaced")))
}

func TestActivatePolicy_RefusalLeavesBothPoliciesUntouched(t *testing.T) {
	f := newFixture(t)
	current := f.policy(func(in *leave.PolicyInput) { in.EffectiveDate = datePtr("2025-01-01") })

	early, err := f.svc.CreatePolicy(f.ctx, leave.PolicyInput{
		LeaveTypeID:       "annual",
		AnnualEntitlement: days(22),
		EffectiveDate:     datePtr("2024-12-01"),
	})
	require.NoError(t, err)

	_, err = f.svc.ActivatePolicy(f.ctx, early.ID)
	assert.ErrorIs(t, err, generic.ErrConflict)

	got, err := f.svc.GetPolicy(f.ctx, current.ID)
	require.NoError(t, err)
	assert.Equal(t, leave.PolicyActive, got.Status)
	assert.Nil(t, got.ExpiryDate)

	got, err = f.svc.GetPolicy(f.ctx, early.ID)
	require.NoError(t, err)
	assert.Equal(t, leave.PolicyDraft, got.Status)
}

// Whatever order drafts are activated in, a leave type never ends up with
// more than one ACTIVE policy.
func TestActivatePolicy_NeverTwoActive(t *testing.T) {
	f := newFixture(t)
	effective := []string{"2025-03-01", "2025-05-01", "2025-04-01", "2025-07-01", "2025-06-01"}

	for _, eff := range effective {
		p, err := f.svc.CreatePolicy(f.ctx, leave.PolicyInput{
			LeaveTypeID:       "annual",
			AnnualEntitlement: days(20),
			EffectiveDate:     datePtr(eff),
		})
		require.NoError(t, err)
		_, _ = f.svc.ActivatePolicy(f.ctx, p.ID)

		active, err := f.svc.ListPolicies(f.ctx, leave.PolicyFilter{LeaveTypeID: "annual", Statuses: []leave.PolicyStatus{leave.PolicyActive}})
		require.NoError(t, err)
		assert.LessOrEqual(t, len(active), 1, "after activating policy effective %s", eff)
	}
}

func TestCreatePolicy_UnknownLeaveType(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreatePolicy(f.ctx, leave.PolicyInput{LeaveTypeID: "sabbatical", AnnualEntitlement: days(5)})
	assert.ErrorIs(t, err, generic.ErrNotFound)
}

func TestUpdatePolicy_EffectivePolicyIsFrozen(t *testing.T) {
	f := newFixture(t)
	p := f.policy(nil)

	_, err := f.svc.UpdatePolicy(f.ctx, p.ID, leave.PolicyPatch{AnnualEntitlement: generic.Set(days(30))})
	assert.ErrorIs(t, err, generic.ErrConflict)

	got, err := f.svc.GetPolicy(f.ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, got.AnnualEntitlement.Equal(days(20)))
}

func TestRetireExpiredPolicies(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateLeaveType(f.ctx, "sick", "Sick leave")
	require.NoError(t, err)

	// Activated in January, before either expiry had passed.
	january := serviceAt(t, f.store, f.metrics, time.Date(2025, time.January, 15, 9, 0, 0, 0, time.UTC))
	expired, err := january.CreatePolicy(f.ctx, leave.PolicyInput{LeaveTypeID: "annual", AnnualEntitlement: days(20), ExpiryDate: datePtr("2025-02-28")})
	require.NoError(t, err)
	_, err = january.ActivatePolicy(f.ctx, expired.ID)
	require.NoError(t, err)
	endsToday, err := january.CreatePolicy(f.ctx, leave.PolicyInput{LeaveTypeID: "sick", AnnualEntitlement: days(10), ExpiryDate: datePtr("2025-03-01")})
	require.NoError(t, err)
	_, err = january.ActivatePolicy(f.ctx, endsToday.ID)
	require.NoError(t, err)

	retired, err := f.svc.RetireExpiredPolicies(f.ctx)
	require.NoError(t, err)
	require.Len(t, retired, 1)
	assert.Equal(t, expired.ID, retired[0].ID)
	assert.Equal(t, date("2025-02-28"), *retired[0].ExpiryDate)

	still, err := f.svc.GetPolicy(f.ctx, endsToday.ID)
	require.NoError(t, err)
	assert.Equal(t, leave.PolicyActive, still.Status, "expiry today is not yet expired")

	again, err := f.svc.RetireExpiredPolicies(f.ctx)
	require.NoError(t, err)
	assert.Empty(t, again)
}

// =============================================================================
// BALANCES
// =============================================================================

func TestOpenBalance_PostsGrantAndCarry(t *testing.T) {
	f := newFixture(t)
	p := f.policy(nil)

	b, err := f.svc.OpenBalance(f.ctx, leave.OpenBalanceInput{
		Employee:    employee("emp-1"),
		LeaveTypeID: "annual",
		Year:        2025,
		CarriedOver: days(3),
	})
	require.NoError(t, err)

	assert.Equal(t, p.ID, b.PolicyID)
	assert.True(t, b.Earned.Equal(days(20)))
	assert.True(t, b.CarriedOver.Equal(days(3)))
	assert.True(t, b.Remaining.Equal(days(23)))

	txs, err := f.svc.ListTransactions(f.ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, leave.TxAdjustment, txs[0].Type)
	assert.Equal(t, "annual entitlement", txs[0].Remarks)
	assert.Equal(t, string(p.ID), txs[0].ReferenceID)
	assert.Equal(t, date("2025-01-01"), txs[0].EffectiveAt)
	assert.Equal(t, leave.TxCarry, txs[1].Type)

	f.assertReplayConsistent(b)
}

func TestOpenBalance_Refusals(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.OpenBalance(f.ctx, leave.OpenBalanceInput{Employee: employee("emp-1"), LeaveTypeID: "annual", Year: 2025})
	assert.ErrorIs(t, err, generic.ErrConflict, "no ACTIVE policy")

	f.policy(func(in *leave.PolicyInput) { in.Eligibility.MinimumServiceMonths = 12 })
	f.balance("emp-1", 2025)

	_, err = f.svc.OpenBalance(f.ctx, leave.OpenBalanceInput{Employee: employee("emp-1"), LeaveTypeID: "annual", Year: 2025})
	assert.ErrorIs(t, err, generic.ErrConflict, "duplicate balance")

	newHire := employee("emp-2")
	newHire.HireDate = date("2025-01-06")
	_, err = f.svc.OpenBalance(f.ctx, leave.OpenBalanceInput{Employee: newHire, LeaveTypeID: "annual", Year: 2025})
	assert.ErrorIs(t, err, generic.ErrConflict, "ineligible employee")

	_, err = f.svc.OpenBalance(f.ctx, leave.OpenBalanceInput{Employee: employee("emp-3"), LeaveTypeID: "sabbatical", Year: 2025})
	assert.ErrorIs(t, err, generic.ErrNotFound)

	bs, err := f.svc.ListBalances(f.ctx, leave.BalanceFilter{LeaveTypeID: "annual"})
	require.NoError(t, err)
	assert.Len(t, bs, 1)
}

func TestPostAdjustment_AndArchiveRestoresBalance(t *testing.T) {
	f := newFixture(t)
	f.policy(nil)
	b := f.balance("emp-1", 2025)

	_, err := f.svc.PostAdjustment(f.ctx, b.ID, days(2), "  ")
	assert.ErrorIs(t, err, generic.ErrInvalidArgument)

	tx, err := f.svc.PostAdjustment(f.ctx, b.ID, days(2.5), "overtime compensation")
	require.NoError(t, err)
	assert.True(t, f.reload(b).Remaining.Equal(days(22.5)))

	_, err = f.svc.ArchiveTransaction(f.ctx, tx.ID)
	require.NoError(t, err)
	assert.True(t, f.reload(b).Remaining.Equal(days(20)))

	_, err = f.svc.ArchiveTransaction(f.ctx, tx.ID)
	assert.ErrorIs(t, err, generic.ErrConflict)

	_, err = f.svc.UpdateTransactionRemarks(f.ctx, tx.ID, "too late")
	assert.ErrorIs(t, err, generic.ErrConflict)

	f.assertReplayConsistent(b)
}

func TestArchiveTransaction_RequestDebitsAreRefused(t *testing.T) {
	f := newFixture(t)
	f.policy(nil)
	b := f.balance("emp-1", 2025)
	r, err := f.submit(b, "2025-03-10", "2025-03-11")
	require.NoError(t, err)
	_, err = f.svc.ApproveRequest(f.ctx, r.ID, "")
	require.NoError(t, err)

	txs, err := f.svc.ListTransactions(f.ctx, b.ID)
	require.NoError(t, err)
	debit := txs[len(txs)-1]
	require.Equal(t, leave.TxRequest, debit.Type)

	_, err = f.svc.ArchiveTransaction(f.ctx, debit.ID)
	assert.ErrorIs(t, err, generic.ErrConflict)
}

func TestCloseAndReopenBalance(t *testing.T) {
	f := newFixture(t)
	f.policy(nil)
	b := f.balance("emp-1", 2025)

	_, err := f.svc.CloseBalance(f.ctx, b.ID)
	require.NoError(t, err)

	_, err = f.svc.PostAdjustment(f.ctx, b.ID, days(1), "correction")
	assert.ErrorIs(t, err, generic.ErrConflict)
	_, err = f.submit(b, "2025-03-10", "2025-03-10")
	assert.ErrorIs(t, err, generic.ErrConflict)

	reopened, err := f.svc.ReopenBalance(f.ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, leave.BalanceReopened, reopened.Status)

	_, err = f.svc.PostAdjustment(f.ctx, b.ID, days(1), "correction")
	assert.NoError(t, err)
}

// =============================================================================
// REQUESTS
// =============================================================================

func TestRequestLifecycle_ApproveThenCancel(t *testing.T) {
	f := newFixture(t)
	f.policy(nil)
	b := f.balance("emp-1", 2025)

	r, err := f.submit(b, "2025-03-10", "2025-03-14")
	require.NoError(t, err)
	assert.Equal(t, leave.RequestPending, r.Status)
	assert.True(t, f.reload(b).Remaining.Equal(days(20)), "submitting does not debit")

	_, err = f.svc.ApproveRequest(f.ctx, r.ID, "approved by manager")
	require.NoError(t, err)
	after := f.reload(b)
	assert.True(t, after.Used.Equal(days(5)))
	assert.True(t, after.Remaining.Equal(days(15)))
	assert.Equal(t, date("2025-03-10"), *after.LastTransactionDate)

	cancelled, err := f.svc.CancelRequest(f.ctx, r.ID, "trip postponed")
	require.NoError(t, err)
	assert.Equal(t, leave.RequestCancelled, cancelled.Status)

	restored := f.reload(b)
	assert.True(t, restored.Remaining.Equal(days(20)))
	assert.True(t, restored.Used.Equal(days(5)), "the original debit stays in the journal")
	assert.True(t, restored.Earned.Equal(days(25)))

	txs, err := f.svc.ListTransactions(f.ctx, b.ID)
	require.NoError(t, err)
	last := txs[len(txs)-1]
	assert.Equal(t, leave.TxAdjustment, last.Type)
	assert.True(t, last.Days.Equal(days(5)))
	assert.Equal(t, string(r.ID), last.ReferenceID)

	f.assertReplayConsistent(b)
}

func TestSubmitRequest_OverlapIsRejectedAtomically(t *testing.T) {
	f := newFixture(t)
	f.policy(nil)
	b := f.balance("emp-1", 2025)

	first, err := f.submit(b, "2025-03-10", "2025-03-12")
	require.NoError(t, err)

	_, err = f.submit(b, "2025-03-12", "2025-03-13")
	var overlap *generic.OverlappingRequestError
	require.ErrorAs(t, err, &overlap)
	assert.Equal(t, string(first.ID), overlap.ExistingRequestID)
	assert.True(t, leave.IsAdmissionRejection(err))

	_, err = f.submit(b, "2025-03-13", "2025-03-14")
	assert.NoError(t, err, "adjacent windows do not overlap")

	rs, err := f.svc.ListRequests(f.ctx, leave.RequestFilter{EmployeeID: "emp-1"})
	require.NoError(t, err)
	assert.Len(t, rs, 2)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Admissions.WithLabelValues(string(generic.KindOverlappingRequest))))
}

func TestSubmitRequest_RejectedRequestFreesItsWindow(t *testing.T) {
	f := newFixture(t)
	f.policy(nil)
	b := f.balance("emp-1", 2025)

	first, err := f.submit(b, "2025-03-10", "2025-03-12")
	require.NoError(t, err)
	_, err = f.svc.RejectRequest(f.ctx, first.ID, "peak season")
	require.NoError(t, err)

	_, err = f.submit(b, "2025-03-10", "2025-03-12")
	assert.NoError(t, err)

	_, err = f.svc.ApproveRequest(f.ctx, first.ID, "")
	assert.ErrorIs(t, err, generic.ErrConflict, "REJECTED cannot be approved")
}

func TestSubmitRequest_InsufficientBalance(t *testing.T) {
	f := newFixture(t)
	f.policy(nil)
	b := f.balance("emp-1", 2025)

	_, err := f.submit(b, "2025-03-01", "2025-03-31")

	var insufficient *generic.InsufficientBalanceError
	require.ErrorAs(t, err, &insufficient)
	assert.True(t, insufficient.Shortfall().Equal(days(11)))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Admissions.WithLabelValues(string(generic.KindInsufficientBalance))))
}

func TestApproveRequest_RechecksSufficiency(t *testing.T) {
	f := newFixture(t)
	f.policy(nil)
	b := f.balance("emp-1", 2025)

	first, err := f.submit(b, "2025-04-01", "2025-04-12")
	require.NoError(t, err)
	second, err := f.submit(b, "2025-05-01", "2025-05-12")
	require.NoError(t, err)

	_, err = f.svc.ApproveRequest(f.ctx, first.ID, "")
	require.NoError(t, err)

	_, err = f.svc.ApproveRequest(f.ctx, second.ID, "")
	assert.ErrorIs(t, err, generic.ErrInsufficientBalance)

	got, err := f.svc.GetRequest(f.ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, leave.RequestPending, got.Status)
	assert.True(t, f.reload(b).Remaining.Equal(days(8)))
}

func TestSubmitRequest_WindowMustStayInsideConfiguredYear(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateYearConfiguration(f.ctx, leave.YearConfigInput{
		Year:        2025,
		CutoffStart: date("2025-01-01"),
		CutoffEnd:   date("2025-12-31"),
	})
	require.NoError(t, err)
	f.policy(nil)
	b := f.balance("emp-1", 2025)

	_, err = f.submit(b, "2025-12-30", "2026-01-02")
	assert.ErrorIs(t, err, generic.ErrInvalidArgument)
}

func TestSubmitRequest_UnconfiguredYearFallsBackToCalendarYear(t *testing.T) {
	f := newFixture(t)
	f.policy(func(in *leave.PolicyInput) { in.Eligibility.ExcludedWeekdays = []int{0, 6} })
	b := f.balance("emp-1", 2025)

	_, err := f.submit(b, "2025-12-30", "2026-01-02")
	assert.ErrorIs(t, err, generic.ErrInvalidArgument)

	_, err = f.submit(b, "0001-01-02", "9999-12-31")
	assert.ErrorIs(t, err, generic.ErrInvalidArgument)

	r, err := f.submit(b, "2025-12-29", "2025-12-31")
	require.NoError(t, err)
	assert.True(t, r.TotalDays.Equal(days(3)))
}

func TestSubmitRequest_UsesPolicyExcludedWeekdays(t *testing.T) {
	f := newFixture(t)
	f.policy(func(in *leave.PolicyInput) { in.Eligibility.ExcludedWeekdays = []int{0, 6} })
	b := f.balance("emp-1", 2025)

	// Mon 2025-03-10 .. Mon 2025-03-17
	r, err := f.submit(b, "2025-03-10", "2025-03-17")
	require.NoError(t, err)
	assert.True(t, r.TotalDays.Equal(days(6)))
}

// =============================================================================
// ENCASHMENTS
// =============================================================================

func (f *fixture) encash(b *leave.Balance, n float64, debitNow bool) (*leave.Encashment, error) {
	return f.svc.CreateEncashment(f.ctx, leave.EncashmentInput{
		EmployeeID:    b.EmployeeID,
		BalanceID:     b.ID,
		TotalDays:     days(n),
		Amount:        generic.NewAmount(n*150, generic.UnitMoney),
		DebitOnCreate: debitNow,
	})
}

func TestEncashment_DebitPostedWhenPaid(t *testing.T) {
	f := newFixture(t)
	f.policy(nil)
	b := f.balance("emp-1", 2025)

	e, err := f.encash(b, 4, false)
	require.NoError(t, err)
	assert.False(t, e.DebitPosted)
	assert.True(t, f.reload(b).Remaining.Equal(days(20)))

	paid, err := f.svc.MarkEncashmentPaid(f.ctx, e.ID, "PR-2025-03")
	require.NoError(t, err)
	assert.Equal(t, leave.EncashmentPaid, paid.Status)
	assert.True(t, paid.DebitPosted)

	after := f.reload(b)
	assert.True(t, after.Encashed.Equal(days(4)))
	assert.True(t, after.Remaining.Equal(days(16)))

	_, err = f.svc.MarkEncashmentPaid(f.ctx, e.ID, "PR-2025-04")
	assert.ErrorIs(t, err, generic.ErrConflict)
	assert.True(t, f.reload(b).Encashed.Equal(days(4)), "paying twice never debits twice")
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.EncashmentsPaid))

	f.assertReplayConsistent(b)
}

func TestEncashment_LimitCountsPendingReservations(t *testing.T) {
	f := newFixture(t)
	f.policy(nil)
	b := f.balance("emp-1", 2025)

	_, err := f.encash(b, 11, false)
	assert.ErrorIs(t, err, generic.ErrInvalidArgument, "above the encash limit")

	_, err = f.encash(b, 6, false)
	require.NoError(t, err)
	_, err = f.encash(b, 5, false)
	assert.ErrorIs(t, err, generic.ErrInvalidArgument, "6 pending + 5 exceeds 10")

	_, err = f.encash(b, 4, false)
	assert.NoError(t, err)
}

func TestEncashment_UnlimitedPolicyStillChecksSufficiency(t *testing.T) {
	f := newFixture(t)
	f.policy(func(in *leave.PolicyInput) { in.EncashLimit = days(0) })
	b := f.balance("emp-1", 2025)

	_, err := f.encash(b, 21, false)
	assert.ErrorIs(t, err, generic.ErrInsufficientBalance)
}

func TestEncashment_ArchiveReversesEarlyDebit(t *testing.T) {
	f := newFixture(t)
	f.policy(nil)
	b := f.balance("emp-1", 2025)

	e, err := f.encash(b, 3, true)
	require.NoError(t, err)
	assert.True(t, e.DebitPosted)
	assert.True(t, f.reload(b).Remaining.Equal(days(17)))

	_, err = f.svc.UpdateEncashment(f.ctx, e.ID, leave.EncashmentPatch{TotalDays: generic.Set(days(2))})
	assert.ErrorIs(t, err, generic.ErrConflict)

	archived, err := f.svc.ArchiveEncashment(f.ctx, e.ID)
	require.NoError(t, err)
	assert.True(t, archived.Lifecycle.IsArchived())
	assert.False(t, archived.DebitPosted)

	after := f.reload(b)
	assert.True(t, after.Remaining.Equal(days(20)))
	assert.True(t, after.Encashed.IsZero())
	f.assertReplayConsistent(b)
}

func TestEncashment_ForeignBalanceIsInvalid(t *testing.T) {
	f := newFixture(t)
	f.policy(nil)
	b := f.balance("emp-1", 2025)

	_, err := f.svc.CreateEncashment(f.ctx, leave.EncashmentInput{EmployeeID: "emp-2", BalanceID: b.ID, TotalDays: days(1)})
	assert.ErrorIs(t, err, generic.ErrInvalidArgument)
}

// =============================================================================
// CYCLES
// =============================================================================

func TestCloseCycle_CarriesClampedRemainderIntoNextYear(t *testing.T) {
	f := newFixture(t)
	f.policy(nil)
	b := f.balance("emp-1", 2025)
	r, err := f.submit(b, "2025-03-10", "2025-03-14")
	require.NoError(t, err)
	_, err = f.svc.ApproveRequest(f.ctx, r.ID, "")
	require.NoError(t, err)

	c, err := f.svc.OpenCycle(f.ctx, leave.CycleInput{EmployeeID: "emp-1", LeaveTypeID: "annual", StartYear: 2025, EndYear: 2025})
	require.NoError(t, err)

	res, err := f.svc.CloseCycle(f.ctx, c.ID)
	require.NoError(t, err)

	assert.True(t, res.Carried.Equal(days(5)), "15 remaining clamped to the carry limit")
	assert.Equal(t, leave.CycleClosed, res.Cycle.Status)
	assert.Equal(t, leave.BalanceClosed, f.reload(b).Status)

	require.NotNil(t, res.Next)
	assert.Equal(t, 2026, res.Next.Year)
	assert.True(t, res.Next.CarriedOver.Equal(days(5)))
	assert.True(t, res.Next.Remaining.Equal(days(25)))
	f.assertReplayConsistent(res.Next)

	_, err = f.svc.GetActiveCycle(f.ctx, "emp-1", "annual")
	assert.ErrorIs(t, err, generic.ErrNotFound)

	_, err = f.svc.CloseCycle(f.ctx, c.ID)
	assert.ErrorIs(t, err, generic.ErrConflict)
}

func TestCloseCycle_PostsIntoExistingNextBalance(t *testing.T) {
	f := newFixture(t)
	f.policy(nil)
	f.balance("emp-1", 2025)
	next := f.balance("emp-1", 2026)

	c, err := f.svc.OpenCycle(f.ctx, leave.CycleInput{EmployeeID: "emp-1", LeaveTypeID: "annual", StartYear: 2025, EndYear: 2025})
	require.NoError(t, err)
	res, err := f.svc.CloseCycle(f.ctx, c.ID)
	require.NoError(t, err)

	assert.Equal(t, next.ID, res.Next.ID)
	assert.True(t, f.reload(next).Remaining.Equal(days(25)))
}

func TestCloseCycle_FailureRollsBackEverything(t *testing.T) {
	f := newFixture(t)
	p := f.policy(nil)
	b := f.balance("emp-1", 2025)
	c, err := f.svc.OpenCycle(f.ctx, leave.CycleInput{EmployeeID: "emp-1", LeaveTypeID: "annual", StartYear: 2025, EndYear: 2025})
	require.NoError(t, err)

	// With no ACTIVE policy, next year's balance cannot be opened.
	_, err = f.svc.RetirePolicy(f.ctx, p.ID)
	require.NoError(t, err)
	auditBefore := len(f.store.AuditEntries())

	_, err = f.svc.CloseCycle(f.ctx, c.ID)
	require.ErrorIs(t, err, generic.ErrConflict)

	assert.Equal(t, leave.BalanceOpen, f.reload(b).Status, "closing the ending balance was rolled back")
	active, err := f.svc.GetActiveCycle(f.ctx, "emp-1", "annual")
	require.NoError(t, err)
	assert.Equal(t, c.ID, active.ID)
	assert.Len(t, f.store.AuditEntries(), auditBefore)
}

func TestOpenCycle_SecondOpenCycleIsConflict(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.OpenCycle(f.ctx, leave.CycleInput{EmployeeID: "emp-1", LeaveTypeID: "annual", StartYear: 2025, EndYear: 2025})
	require.NoError(t, err)
	_, err = f.svc.OpenCycle(f.ctx, leave.CycleInput{EmployeeID: "emp-1", LeaveTypeID: "annual", StartYear: 2026, EndYear: 2026})
	assert.ErrorIs(t, err, generic.ErrConflict)
}

// =============================================================================
// LEAVE YEARS
// =============================================================================

func TestLeaveYears(t *testing.T) {
	f := newFixture(t)

	fy, err := f.svc.CreateYearConfiguration(f.ctx, leave.YearConfigInput{Year: 2025, CutoffStart: date("2025-04-01"), CutoffEnd: date("2026-03-31")})
	require.NoError(t, err)

	_, err = f.svc.CreateYearConfiguration(f.ctx, leave.YearConfigInput{Year: 2026, CutoffStart: date("2026-03-01"), CutoffEnd: date("2027-02-28")})
	assert.ErrorIs(t, err, generic.ErrConflict)

	got, err := f.svc.ResolveLeaveYear(f.ctx, date("2026-01-15"))
	require.NoError(t, err)
	assert.Equal(t, fy.ID, got.ID)

	_, err = f.svc.UpdateYearConfiguration(f.ctx, fy.ID, leave.YearConfigPatch{Remarks: generic.Set("fiscal year")})
	require.NoError(t, err)

	_, err = f.svc.ArchiveYearConfiguration(f.ctx, fy.ID)
	require.NoError(t, err)
	_, err = f.svc.ResolveLeaveYear(f.ctx, date("2026-01-15"))
	assert.ErrorIs(t, err, generic.ErrNotFound)
}

func TestOpenBalance_GrantEffectiveAtConfiguredYearStart(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateYearConfiguration(f.ctx, leave.YearConfigInput{Year: 2025, CutoffStart: date("2025-04-01"), CutoffEnd: date("2026-03-31")})
	require.NoError(t, err)
	f.policy(nil)
	b := f.balance("emp-1", 2025)

	txs, err := f.svc.ListTransactions(f.ctx, b.ID)
	require.NoError(t, err)
	require.NotEmpty(t, txs)
	assert.Equal(t, date("2025-04-01"), txs[0].EffectiveAt)
}

// =============================================================================
// AUDIT
// =============================================================================

func TestAudit_RecordsActorAndChanges(t *testing.T) {
	f := newFixture(t)
	p := f.policy(nil)

	entries, err := f.svc.ListAudit(f.ctx, generic.AuditFilter{
		Entity:   leave.EntityPolicy,
		EntityID: string(p.ID),
		Actions:  []generic.AuditAction{generic.AuditActivated},
	})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "hr-admin", entries[0].ActorID)
	assert.Equal(t, testNow, entries[0].Timestamp)

	changed := map[string]generic.FieldChange{}
	for _, c := range entries[0].Changes {
		changed[c.Field] = c
	}
	assert.Equal(t, generic.FieldChange{Field: "status", Before: "DRAFT", After: "ACTIVE"}, changed["status"])
}

func TestAudit_DefaultsToSystemActor(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateLeaveType(context.Background(), "sick", "Sick leave")
	require.NoError(t, err)

	entries, err := f.svc.ListAudit(f.ctx, generic.AuditFilter{Entity: leave.EntityLeaveType, EntityID: "sick"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, leave.SystemActor, entries[0].ActorID)
}

func TestAudit_RejectedOperationLeavesNoTrace(t *testing.T) {
	f := newFixture(t)
	f.policy(nil)
	b := f.balance("emp-1", 2025)
	before := len(f.store.AuditEntries())

	_, err := f.submit(b, "2025-03-01", "2025-03-31")
	require.Error(t, err)

	assert.Len(t, f.store.AuditEntries(), before)
}

// =============================================================================
// METRICS UNDER RETRY
// =============================================================================

var errSerialization = errors.New("could not serialize access")

// retryingStore runs every transaction twice: the first attempt is rolled
// back the way a serialization failure would be, the second commits.
type retryingStore struct {
	*memory.Store
}

func (r retryingStore) RunInTransaction(ctx context.Context, action string, fn func(leave.Store) error) error {
	err := r.Store.RunInTransaction(ctx, action, func(st leave.Store) error {
		if err := fn(st); err != nil {
			return err
		}
		return errSerialization
	})
	if !errors.Is(err, errSerialization) {
		return err
	}
	return r.Store.RunInTransaction(ctx, action, fn)
}

func TestMetrics_CountOnlyTheLastAttempt(t *testing.T) {
	st := retryingStore{memory.New()}
	m := leave.NewMetrics(prometheus.NewRegistry())
	svc := leave.NewService(st,
		leave.WithClock(generic.FixedClock{At: testNow}),
		leave.WithLogger(zaptest.NewLogger(t)),
		leave.WithMetrics(m))
	ctx := leave.WithActor(context.Background(), "hr-admin")

	_, err := svc.CreateLeaveType(ctx, "annual", "Annual leave")
	require.NoError(t, err)
	p, err := svc.CreatePolicy(ctx, leave.PolicyInput{LeaveTypeID: "annual", AnnualEntitlement: days(20), CarriedOverYears: 1})
	require.NoError(t, err)
	_, err = svc.ActivatePolicy(ctx, p.ID)
	require.NoError(t, err)
	b, err := svc.OpenBalance(ctx, leave.OpenBalanceInput{Employee: employee("emp-1"), LeaveTypeID: "annual", Year: 2025})
	require.NoError(t, err)

	in := leave.RequestInput{EmployeeID: "emp-1", BalanceID: b.ID, StartDate: date("2025-03-10"), EndDate: date("2025-03-12")}
	r, err := svc.SubmitRequest(ctx, in)
	require.NoError(t, err)
	_, err = svc.ApproveRequest(ctx, r.ID, "")
	require.NoError(t, err)
	_, err = svc.SubmitRequest(ctx, in)
	require.ErrorIs(t, err, generic.ErrOverlappingRequest)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Postings.WithLabelValues(string(leave.TxAdjustment))), "entitlement grant")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Postings.WithLabelValues(string(leave.TxRequest))))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Admissions.WithLabelValues("admitted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Admissions.WithLabelValues(string(generic.KindOverlappingRequest))))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PolicyActivations))

	got, err := svc.GetBalance(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, got.Remaining.Equal(days(17)))
}
