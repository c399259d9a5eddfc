/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the store with realistic
	leave data for demos and frontend work. Every scenario goes through
	leave.Service, so the data carries the same audit trail and journal
	as data entered through the API.

AVAILABLE SCENARIOS:

	new-employee:      Recent hire with one approved week off
	year-end-rollover: Prior-year balance closed by a cycle, carry capped
	policy-change:     Mid-year policy revision retiring the old version
	encashment:        One paid encashment and one pending with early debit
	multi-type:        Annual and sick leave, a pending and a rejected request

HOW SCENARIOS WORK:
 1. Reset the store (clear all data)
 2. Create leave types and policies via the factory
 3. Open balances for demo employees
 4. Submit and decide requests, encashments and cycles

Dates are relative to the service clock, so a scenario loaded today shows
the current and previous leave years.

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "year-end-rollover"}

NOTE:

	Scenarios reset the store. The routes only exist when the handler has
	a Resetter, which cmd/server sets from ENABLE_SCENARIOS.

SEE ALSO:
  - server.go: Scenario routes
  - factory/policy.go: Policy JSON definitions
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/warp/leave-ledger/generic"
	"github.com/warp/leave-ledger/leave"
)

// Resetter clears a store before a scenario loads.
type Resetter interface {
	Reset(ctx context.Context) error
}

// ScenarioActor is recorded in the audit trail of scenario data.
const ScenarioActor = "scenario"

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "new-employee",
		Name:        "New Employee",
		Description: "Recent hire under a weekday-only annual policy with one approved week off",
		Category:    "requests",
	},
	{
		ID:          "year-end-rollover",
		Name:        "Year-End Rollover",
		Description: "Last year's balance closed by a cycle, carry-over capped at the policy limit",
		Category:    "cycles",
	},
	{
		ID:          "policy-change",
		Name:        "Mid-Year Policy Change",
		Description: "A revised policy activated for next month retires the current version",
		Category:    "policies",
	},
	{
		ID:          "encashment",
		Name:        "Encashment",
		Description: "Unused days paid out through payroll, plus a pending encashment debited early",
		Category:    "encashments",
	},
	{
		ID:          "multi-type",
		Name:        "Annual and Sick Leave",
		Description: "Two leave types side by side with a pending and a rejected request",
		Category:    "requests",
	},
}

var scenarioLoaders = map[string]func(h *Handler, ctx context.Context) error{
	"new-employee":      (*Handler).loadNewEmployeeScenario,
	"year-end-rollover": (*Handler).loadYearEndRolloverScenario,
	"policy-change":     (*Handler).loadPolicyChangeScenario,
	"encashment":        (*Handler).loadEncashmentScenario,
	"multi-type":        (*Handler).loadMultiTypeScenario,
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets the store and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !decodeBody(w, r, &req) {
		return
	}
	load, ok := scenarioLoaders[req.ScenarioID]
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", fmt.Errorf("scenario %q does not exist", req.ScenarioID))
		return
	}
	if h.Resetter == nil {
		writeError(w, http.StatusConflict, "Scenarios are disabled", nil)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ctx := leave.WithActor(r.Context(), ScenarioActor)
	if err := h.Resetter.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset store", err)
		return
	}
	h.currentScenario = ""

	if err := load(h, ctx); err != nil {
		h.Log.Error("scenario failed", zap.String("scenario", req.ScenarioID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to load scenario", err)
		return
	}
	h.currentScenario = req.ScenarioID
	h.Log.Info("scenario loaded", zap.String("scenario", req.ScenarioID))

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadNewEmployeeScenario(ctx context.Context) error {
	today := h.Service.Today()
	if err := h.createLeaveTypes(ctx, "annual", "Annual Leave"); err != nil {
		return err
	}
	if _, err := h.createPolicyFromJSON(ctx, `{
		"leave_type_id": "annual",
		"annual_entitlement": 20,
		"carry_limit": 5,
		"encash_limit": 10,
		"carried_over_years": 1,
		"remarks": "standard annual leave",
		"eligibility": {
			"minimum_service_months": 3,
			"allowed_employment_types": ["FULL_TIME", "PART_TIME"],
			"excluded_weekdays": ["saturday", "sunday"]
		}
	}`, true); err != nil {
		return err
	}

	b, err := h.openDemoBalance(ctx, "emp-001", today.AddMonths(-8), "annual", today.Year())
	if err != nil {
		return err
	}

	// A full working week in June, approved by the manager.
	start := nextMonday(generic.NewTimePoint(today.Year(), time.June, 1))
	_, err = h.submitAndDecide(ctx, b, start, start.AddDays(4), h.Service.ApproveRequest, "summer holiday")
	return err
}

func (h *Handler) loadYearEndRolloverScenario(ctx context.Context) error {
	year := h.Service.Today().Year()
	if err := h.createLeaveTypes(ctx, "annual", "Annual Leave"); err != nil {
		return err
	}
	for _, y := range []int{year - 1, year} {
		if _, err := h.Service.CreateYearConfiguration(ctx, leave.YearConfigInput{
			Year:        y,
			CutoffStart: generic.StartOfYear(y),
			CutoffEnd:   generic.EndOfYear(y),
			Remarks:     "calendar year",
		}); err != nil {
			return err
		}
	}
	if _, err := h.createPolicyFromJSON(ctx, `{
		"leave_type_id": "annual",
		"annual_entitlement": 20,
		"carry_limit": 5,
		"carried_over_years": 1
	}`, true); err != nil {
		return err
	}

	// Last year: 20 granted, 12 used, 8 left of which only 5 may carry.
	last, err := h.openDemoBalance(ctx, "emp-001", generic.StartOfYear(year-3), "annual", year-1)
	if err != nil {
		return err
	}
	start := generic.NewTimePoint(year-1, time.August, 1)
	if _, err := h.submitAndDecide(ctx, last, start, start.AddDays(11), h.Service.ApproveRequest, "two weeks away"); err != nil {
		return err
	}

	c, err := h.Service.OpenCycle(ctx, leave.CycleInput{
		EmployeeID:  "emp-001",
		LeaveTypeID: "annual",
		StartYear:   year - 1,
		EndYear:     year - 1,
	})
	if err != nil {
		return err
	}
	_, err = h.Service.CloseCycle(ctx, c.ID)
	return err
}

func (h *Handler) loadPolicyChangeScenario(ctx context.Context) error {
	today := h.Service.Today()
	if err := h.createLeaveTypes(ctx, "annual", "Annual Leave"); err != nil {
		return err
	}
	if _, err := h.createPolicyFromJSON(ctx, `{
		"leave_type_id": "annual",
		"annual_entitlement": 20,
		"carry_limit": 5,
		"carried_over_years": 1,
		"remarks": "original entitlement"
	}`, true); err != nil {
		return err
	}
	if _, err := h.openDemoBalance(ctx, "emp-001", generic.StartOfYear(today.Year()-2), "annual", today.Year()); err != nil {
		return err
	}

	// The revision starts on the first of next month; activating it now
	// retires the original the day before.
	nextMonth := generic.NewTimePoint(today.Year(), today.Month(), 1).AddMonths(1)
	_, err := h.createPolicyFromJSON(ctx, fmt.Sprintf(`{
		"leave_type_id": "annual",
		"annual_entitlement": 24,
		"carry_limit": 8,
		"encash_limit": 5,
		"carried_over_years": 2,
		"effective_date": %q,
		"remarks": "revised after the compensation review"
	}`, nextMonth.String()), true)
	return err
}

func (h *Handler) loadEncashmentScenario(ctx context.Context) error {
	today := h.Service.Today()
	if err := h.createLeaveTypes(ctx, "annual", "Annual Leave"); err != nil {
		return err
	}
	if _, err := h.createPolicyFromJSON(ctx, `{
		"leave_type_id": "annual",
		"annual_entitlement": 20,
		"encash_limit": 10
	}`, true); err != nil {
		return err
	}
	b, err := h.openDemoBalance(ctx, "emp-001", generic.StartOfYear(today.Year()-2), "annual", today.Year())
	if err != nil {
		return err
	}

	paid, err := h.Service.CreateEncashment(ctx, leave.EncashmentInput{
		EmployeeID: b.EmployeeID,
		BalanceID:  b.ID,
		TotalDays:  generic.Days(3),
		Amount:     generic.NewAmount(450, generic.UnitMoney),
		Remarks:    "quarterly payout",
	})
	if err != nil {
		return err
	}
	if _, err := h.Service.MarkEncashmentPaid(ctx, paid.ID, fmt.Sprintf("PR-%d-001", today.Year())); err != nil {
		return err
	}

	_, err = h.Service.CreateEncashment(ctx, leave.EncashmentInput{
		EmployeeID:    b.EmployeeID,
		BalanceID:     b.ID,
		TotalDays:     generic.Days(2),
		Amount:        generic.NewAmount(300, generic.UnitMoney),
		Remarks:       "awaiting payroll run",
		DebitOnCreate: true,
	})
	return err
}

func (h *Handler) loadMultiTypeScenario(ctx context.Context) error {
	today := h.Service.Today()
	if err := h.createLeaveTypes(ctx, "annual", "Annual Leave", "sick", "Sick Leave"); err != nil {
		return err
	}
	if _, err := h.createPolicyFromJSON(ctx, `{
		"leave_type_id": "annual",
		"annual_entitlement": 20,
		"carry_limit": 5,
		"carried_over_years": 1,
		"eligibility": {"excluded_weekdays": ["saturday", "sunday"]}
	}`, true); err != nil {
		return err
	}
	if _, err := h.createPolicyFromJSON(ctx, `{
		"leave_type_id": "sick",
		"annual_entitlement": 10,
		"eligibility": {"allowed_employee_statuses": ["ACTIVE"]}
	}`, true); err != nil {
		return err
	}

	hired := generic.StartOfYear(today.Year() - 1)
	annual, err := h.openDemoBalance(ctx, "emp-001", hired, "annual", today.Year())
	if err != nil {
		return err
	}
	sick, err := h.openDemoBalance(ctx, "emp-001", hired, "sick", today.Year())
	if err != nil {
		return err
	}

	start := nextMonday(generic.NewTimePoint(today.Year(), time.September, 1))
	if _, err := h.Service.SubmitRequest(ctx, leave.RequestInput{
		EmployeeID: annual.EmployeeID,
		BalanceID:  annual.ID,
		StartDate:  start,
		EndDate:    start.AddDays(4),
		Reason:     "family visit",
	}); err != nil {
		return err
	}

	sickDay := nextMonday(generic.NewTimePoint(today.Year(), time.October, 1))
	_, err = h.submitAndDecide(ctx, sick, sickDay, sickDay, h.Service.RejectRequest, "no medical certificate")
	return err
}

// =============================================================================
// HELPERS
// =============================================================================

// createLeaveTypes takes id, name pairs.
func (h *Handler) createLeaveTypes(ctx context.Context, idNames ...string) error {
	for i := 0; i+1 < len(idNames); i += 2 {
		if _, err := h.Service.CreateLeaveType(ctx, leave.LeaveTypeID(idNames[i]), idNames[i+1]); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) createPolicyFromJSON(ctx context.Context, jsonStr string, activate bool) (*leave.Policy, error) {
	in, err := h.PolicyFactory.ParsePolicy(jsonStr)
	if err != nil {
		return nil, err
	}
	p, err := h.Service.CreatePolicy(ctx, in)
	if err != nil {
		return nil, err
	}
	if activate {
		return h.Service.ActivatePolicy(ctx, p.ID)
	}
	return p, nil
}

func (h *Handler) openDemoBalance(ctx context.Context, employee leave.EmployeeID, hired generic.TimePoint,
	leaveType leave.LeaveTypeID, year int) (*leave.Balance, error) {
	return h.Service.OpenBalance(ctx, leave.OpenBalanceInput{
		Employee: leave.EmployeeProfile{
			ID:             employee,
			HireDate:       hired,
			EmploymentType: "FULL_TIME",
			Status:         "ACTIVE",
		},
		LeaveTypeID: leaveType,
		Year:        year,
	})
}

func (h *Handler) submitAndDecide(ctx context.Context, b *leave.Balance, start, end generic.TimePoint,
	decide requestDecision, remarks string) (*leave.Request, error) {
	r, err := h.Service.SubmitRequest(ctx, leave.RequestInput{
		EmployeeID: b.EmployeeID,
		BalanceID:  b.ID,
		StartDate:  start,
		EndDate:    end,
	})
	if err != nil {
		return nil, err
	}
	return decide(ctx, r.ID, remarks)
}

func nextMonday(tp generic.TimePoint) generic.TimePoint {
	for tp.Weekday() != time.Monday {
		tp = tp.AddDays(1)
	}
	return tp
}
