/*
scenarios_test.go - Tests for demo scenario loading

Tests for:
- Every scenario loads against an empty and a dirty store
- Year-end rollover carries the capped figure into the new year
- Policy change leaves exactly one ACTIVE policy
- Scenario routes are absent without a Resetter
- A failing reset leaves no scenario selected
*/
package api

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/warp/leave-ledger/generic"
	"github.com/warp/leave-ledger/leave"
	"github.com/warp/leave-ledger/store/memory"
)

func newScenarioServer(t *testing.T) *testServer {
	t.Helper()
	st := memory.New()
	svc := leave.NewService(st,
		leave.WithClock(generic.FixedClock{At: testNow}),
		leave.WithLogger(zaptest.NewLogger(t)))
	h := NewHandler(svc, zaptest.NewLogger(t))
	h.Resetter = st
	return &testServer{
		t:      t,
		store:  st,
		svc:    svc,
		router: NewRouter(h, RouterOptions{Gatherer: prometheus.NewRegistry()}),
	}
}

func (ts *testServer) loadScenario(id string) {
	ts.t.Helper()
	rec := ts.do(http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: id})
	require.Equal(ts.t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestScenario_AllScenariosLoadWithoutError(t *testing.T) {
	ts := newScenarioServer(t)

	rec := ts.do(http.MethodGet, "/api/scenarios", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	listed := decode[[]ScenarioDTO](t, rec)
	require.Len(t, listed, len(scenarioLoaders))

	for _, s := range listed {
		t.Run(s.ID, func(t *testing.T) {
			// Loading twice proves the reset clears the previous run.
			ts.loadScenario(s.ID)
			ts.loadScenario(s.ID)

			current := decode[ScenarioDTO](t, ts.do(http.MethodGet, "/api/scenarios/current", nil))
			assert.Equal(t, s.ID, current.ID)

			balances, err := ts.svc.ListBalances(context.Background(), leave.BalanceFilter{})
			require.NoError(t, err)
			require.NotEmpty(t, balances)
			for _, b := range balances {
				res, err := ts.svc.ReplayBalance(context.Background(), b.ID)
				require.NoError(t, err)
				assert.True(t, res.Consistent(), "balance %s drift: %v", b.ID, res.Drift)
			}

			entries, err := ts.svc.ListAudit(context.Background(), generic.AuditFilter{ActorID: ScenarioActor})
			require.NoError(t, err)
			assert.NotEmpty(t, entries)
		})
	}
}

func TestScenario_NewEmployee(t *testing.T) {
	ts := newScenarioServer(t)
	ts.loadScenario("new-employee")

	balances, err := ts.svc.ListBalances(context.Background(), leave.BalanceFilter{EmployeeID: "emp-001"})
	require.NoError(t, err)
	require.Len(t, balances, 1)
	assert.True(t, balances[0].Used.Equal(generic.Days(5)), "one working week, weekends excluded")
	assert.True(t, balances[0].Remaining.Equal(generic.Days(15)))

	reqs, err := ts.svc.ListRequests(context.Background(), leave.RequestFilter{EmployeeID: "emp-001"})
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	assert.Equal(t, leave.RequestApproved, reqs[0].Status)
}

func TestScenario_YearEndRollover(t *testing.T) {
	ts := newScenarioServer(t)
	ts.loadScenario("year-end-rollover")
	ctx := context.Background()

	last, err := ts.svc.ListBalances(ctx, leave.BalanceFilter{EmployeeID: "emp-001", Year: 2024})
	require.NoError(t, err)
	require.Len(t, last, 1)
	assert.Equal(t, leave.BalanceClosed, last[0].Status)
	assert.True(t, last[0].Remaining.Equal(generic.Days(8)))

	current, err := ts.svc.ListBalances(ctx, leave.BalanceFilter{EmployeeID: "emp-001", Year: 2025})
	require.NoError(t, err)
	require.Len(t, current, 1)
	assert.True(t, current[0].CarriedOver.Equal(generic.Days(5)), "8 left, capped at 5")
	assert.True(t, current[0].Remaining.Equal(generic.Days(25)))

	cycles, err := ts.svc.ListCycles(ctx, leave.CycleFilter{EmployeeID: "emp-001"})
	require.NoError(t, err)
	require.Len(t, cycles, 1)
	assert.Equal(t, leave.CycleClosed, cycles[0].Status)
}

func TestScenario_PolicyChange(t *testing.T) {
	ts := newScenarioServer(t)
	ts.loadScenario("policy-change")

	policies, err := ts.svc.ListPolicies(context.Background(), leave.PolicyFilter{LeaveTypeID: "annual"})
	require.NoError(t, err)
	require.Len(t, policies, 2)

	statuses := map[leave.PolicyStatus]*leave.Policy{}
	for _, p := range policies {
		statuses[p.Status] = p
	}
	require.Contains(t, statuses, leave.PolicyRetired)
	require.Contains(t, statuses, leave.PolicyActive)
	assert.Equal(t, generic.MustParseDate("2025-03-31"), *statuses[leave.PolicyRetired].ExpiryDate)
	assert.Equal(t, generic.MustParseDate("2025-04-01"), *statuses[leave.PolicyActive].EffectiveDate)
}

func TestScenario_Encashment(t *testing.T) {
	ts := newScenarioServer(t)
	ts.loadScenario("encashment")

	es, err := ts.svc.ListEncashments(context.Background(), leave.EncashmentFilter{EmployeeID: "emp-001"})
	require.NoError(t, err)
	require.Len(t, es, 2)

	balances, err := ts.svc.ListBalances(context.Background(), leave.BalanceFilter{EmployeeID: "emp-001"})
	require.NoError(t, err)
	require.Len(t, balances, 1)
	assert.True(t, balances[0].Encashed.Equal(generic.Days(5)), "paid 3 plus 2 debited early")
	assert.True(t, balances[0].Remaining.Equal(generic.Days(15)))
}

func TestScenario_UnknownAndDisabled(t *testing.T) {
	ts := newScenarioServer(t)
	rec := ts.do(http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	plain := newTestServer(t)
	rec = plain.do(http.MethodGet, "/api/scenarios", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "routes are not mounted without a Resetter")
}

type mockResetter struct {
	mock.Mock
}

func (m *mockResetter) Reset(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func TestScenario_ResetFailureIsServerError(t *testing.T) {
	ts := newScenarioServer(t)
	ts.loadScenario("multi-type")

	h := NewHandler(ts.svc, zaptest.NewLogger(t))
	resetter := &mockResetter{}
	resetter.On("Reset", mock.Anything).Return(errors.New("disk full")).Once()
	h.Resetter = resetter
	router := NewRouter(h, RouterOptions{Gatherer: prometheus.NewRegistry()})
	failing := &testServer{t: t, store: ts.store, svc: ts.svc, router: router}

	rec := failing.do(http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "encashment"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	resetter.AssertExpectations(t)

	current := decode[ScenarioDTO](t, failing.do(http.MethodGet, "/api/scenarios/current", nil))
	assert.Empty(t, current.ID)

	// Nothing from the encashment scenario was written.
	es, err := ts.svc.ListEncashments(context.Background(), leave.EncashmentFilter{})
	require.NoError(t, err)
	assert.Empty(t, es)
}
