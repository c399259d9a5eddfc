package leave_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-ledger/generic"
	"github.com/warp/leave-ledger/leave"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var testNow = time.Date(2025, time.March, 1, 9, 0, 0, 0, time.UTC)

func date(s string) generic.TimePoint { return generic.MustParseDate(s) }

func datePtr(s string) *generic.TimePoint {
	d := date(s)
	return &d
}

func days(n float64) generic.Amount { return generic.Days(n) }

func draftPolicy(t *testing.T, mutate func(*leave.PolicyInput)) *leave.Policy {
	t.Helper()
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
	p, err := leave.NewPolicy(in, testNow)
	require.NoError(t, err)
	return p
}

func activePolicy(t *testing.T, mutate func(*leave.PolicyInput)) *leave.Policy {
	t.Helper()
	p := draftPolicy(t, mutate)
	require.NoError(t, p.Activate(testNow))
	return p
}

// =============================================================================
// PARAMETER VALIDATION
// =============================================================================

func TestValidatePolicyParameters(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*leave.PolicyInput)
		valid  bool
	}{
		{"defaults", nil, true},
		{"negative entitlement", func(in *leave.PolicyInput) { in.AnnualEntitlement = days(-1) }, false},
		{"negative carry limit", func(in *leave.PolicyInput) { in.CarryLimit = days(-1) }, false},
		{"negative encash limit", func(in *leave.PolicyInput) { in.EncashLimit = days(-1) }, false},
		{"negative carried years", func(in *leave.PolicyInput) { in.CarriedOverYears = -1 }, false},
		{"carry limit at bound", func(in *leave.PolicyInput) { in.CarryLimit = days(20) }, true},
		{"carry limit above bound", func(in *leave.PolicyInput) { in.CarryLimit = days(21) }, false},
		{"carry bound scales with years", func(in *leave.PolicyInput) {
			in.CarriedOverYears = 2
			in.CarryLimit = days(40)
		}, true},
		{"zero years bound by one year", func(in *leave.PolicyInput) {
			in.CarriedOverYears = 0
			in.CarryLimit = days(20)
		}, true},
		{"expiry equals effective", func(in *leave.PolicyInput) {
			in.EffectiveDate = datePtr("2025-01-01")
			in.ExpiryDate = datePtr("2025-01-01")
		}, false},
		{"expiry after effective", func(in *leave.PolicyInput) {
			in.EffectiveDate = datePtr("2025-01-01")
			in.ExpiryDate = datePtr("2025-12-31")
		}, true},
		{"empty employment types", func(in *leave.PolicyInput) {
			in.Eligibility.EmploymentTypes = []string{}
		}, false},
		{"duplicate employee status", func(in *leave.PolicyInput) {
			in.Eligibility.EmployeeStatuses = []string{"ACTIVE", "ACTIVE"}
		}, false},
		{"weekday out of range", func(in *leave.PolicyInput) {
			in.Eligibility.ExcludedWeekdays = []int{7}
		}, false},
		{"every weekday excluded", func(in *leave.PolicyInput) {
			in.Eligibility.ExcludedWeekdays = []int{0, 1, 2, 3, 4, 5, 6}
		}, false},
	}

	svc := leave.PolicyActivationService{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := leave.PolicyInput{
				LeaveTypeID:       "annual",
				AnnualEntitlement: days(20),
				CarryLimit:        days(5),
				EncashLimit:       days(10),
				CarriedOverYears:  1,
			}
			if tt.mutate != nil {
				tt.mutate(&in)
			}
			p := &leave.Policy{
				LeaveTypeID:       in.LeaveTypeID,
				AnnualEntitlement: in.AnnualEntitlement,
				CarryLimit:        in.CarryLimit,
				EncashLimit:       in.EncashLimit,
				CarriedOverYears:  in.CarriedOverYears,
				EffectiveDate:     in.EffectiveDate,
				ExpiryDate:        in.ExpiryDate,
				Eligibility:       in.Eligibility,
			}
			res := svc.ValidatePolicyParameters(p)
			assert.Equal(t, tt.valid, res.IsValid, res.Reason)
			if !tt.valid {
				assert.NotEmpty(t, res.Reason)
			}
		})
	}
}

func TestNewPolicy_InvalidParametersAreInvalidArgument(t *testing.T) {
	_, err := leave.NewPolicy(leave.PolicyInput{LeaveTypeID: "annual", AnnualEntitlement: days(-5)}, testNow)
	assert.ErrorIs(t, err, generic.ErrInvalidArgument)

	_, err = leave.NewPolicy(leave.PolicyInput{AnnualEntitlement: days(5)}, testNow)
	assert.ErrorIs(t, err, generic.ErrInvalidArgument)
}

// =============================================================================
// UPDATE RULES
// =============================================================================

func TestCanUpdatePolicy(t *testing.T) {
	svc := leave.PolicyActivationService{}
	today := date("2025-03-01")

	draft := draftPolicy(t, nil)
	assert.True(t, svc.CanUpdatePolicy(draft, today).CanUpdate)

	future := activePolicy(t, func(in *leave.PolicyInput) { in.EffectiveDate = datePtr("2025-06-01") })
	assert.True(t, svc.CanUpdatePolicy(future, today).CanUpdate, "active but not yet effective")

	effective := activePolicy(t, func(in *leave.PolicyInput) { in.EffectiveDate = datePtr("2025-01-01") })
	d := svc.CanUpdatePolicy(effective, today)
	assert.False(t, d.CanUpdate)
	assert.Equal(t, "cannot update effective policy", d.Reason)

	noDate := activePolicy(t, nil)
	assert.False(t, svc.CanUpdatePolicy(noDate, today).CanUpdate, "no effective date means effective on activation")

	retired := activePolicy(t, nil)
	require.NoError(t, retired.Retire(today, testNow))
	d = svc.CanUpdatePolicy(retired, today)
	assert.False(t, d.CanUpdate)
	assert.Equal(t, "cannot update retired policy", d.Reason)
}

func TestPolicyUpdate_BumpsVersionAndRevalidates(t *testing.T) {
	p := draftPolicy(t, nil)

	err := p.Update(leave.PolicyPatch{AnnualEntitlement: generic.Set(days(25))}, testNow)
	require.NoError(t, err)
	assert.Equal(t, 2, p.Version)
	assert.True(t, p.AnnualEntitlement.Equal(days(25)))

	err = p.Update(leave.PolicyPatch{CarryLimit: generic.Set(days(100))}, testNow)
	assert.ErrorIs(t, err, generic.ErrInvalidArgument)
	assert.True(t, p.CarryLimit.Equal(days(5)), "failed update leaves the policy untouched")
	assert.Equal(t, 2, p.Version)
}

func TestPolicyUpdate_RequiredFiguresCannotBeCleared(t *testing.T) {
	tests := []struct {
		name  string
		patch leave.PolicyPatch
	}{
		{"annual entitlement", leave.PolicyPatch{AnnualEntitlement: generic.Clear[generic.Amount]()}},
		{"carry limit", leave.PolicyPatch{CarryLimit: generic.Clear[generic.Amount]()}},
		{"encash limit", leave.PolicyPatch{EncashLimit: generic.Clear[generic.Amount]()}},
		{"carried over years", leave.PolicyPatch{CarriedOverYears: generic.Clear[int]()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := draftPolicy(t, nil)
			err := p.Update(tt.patch, testNow)
			assert.ErrorIs(t, err, generic.ErrInvalidArgument)
			assert.True(t, p.AnnualEntitlement.Equal(days(20)))
			assert.True(t, p.CarryLimit.Equal(days(5)))
			assert.Equal(t, 1, p.Version)
		})
	}

	// Optional fields may still be cleared.
	p := draftPolicy(t, func(in *leave.PolicyInput) { in.ExpiryDate = datePtr("2025-12-31") })
	require.NoError(t, p.Update(leave.PolicyPatch{ExpiryDate: generic.Clear[generic.TimePoint]()}, testNow))
	assert.Nil(t, p.ExpiryDate)
}

func TestPolicyUpdate_ActiveEffectiveDateIsFrozen(t *testing.T) {
	p := activePolicy(t, func(in *leave.PolicyInput) { in.EffectiveDate = datePtr("2025-06-01") })

	err := p.Update(leave.PolicyPatch{EffectiveDate: generic.Set(date("2025-07-01"))}, testNow)
	assert.ErrorIs(t, err, generic.ErrConflict)

	err = p.Update(leave.PolicyPatch{Remarks: generic.Set("clarified")}, testNow)
	assert.NoError(t, err)
}

// =============================================================================
// ACTIVATION DECISIONS
// =============================================================================

func TestCanActivatePolicy_NoExisting(t *testing.T) {
	svc := leave.PolicyActivationService{}
	candidate := draftPolicy(t, nil)

	d := svc.CanActivatePolicy(candidate, nil, date("2025-03-01"))
	assert.True(t, d.CanActivate)
	assert.False(t, d.ShouldRetireExisting)
}

func TestCanActivatePolicy_RetiresPredecessorDayBeforeEffective(t *testing.T) {
	svc := leave.PolicyActivationService{}
	existing := activePolicy(t, func(in *leave.PolicyInput) { in.EffectiveDate = datePtr("2024-01-01") })
	candidate := draftPolicy(t, func(in *leave.PolicyInput) { in.EffectiveDate = datePtr("2025-04-01") })

	d := svc.CanActivatePolicy(candidate, existing, date("2025-03-01"))
	require.True(t, d.CanActivate, d.Reason)
	assert.True(t, d.ShouldRetireExisting)
	assert.Equal(t, existing.ID, d.ExistingPolicyID)
	assert.Equal(t, date("2025-03-31"), d.RetireExpiry)
}

func TestCanActivatePolicy_WithoutEffectiveDateRetiresToday(t *testing.T) {
	svc := leave.PolicyActivationService{}
	existing := activePolicy(t, nil)
	candidate := draftPolicy(t, nil)

	d := svc.CanActivatePolicy(candidate, existing, date("2025-03-01"))
	require.True(t, d.CanActivate)
	assert.Equal(t, date("2025-03-01"), d.RetireExpiry)
}

func TestCanActivatePolicy_Rejections(t *testing.T) {
	svc := leave.PolicyActivationService{}
	today := date("2025-03-01")

	active := activePolicy(t, nil)
	d := svc.CanActivatePolicy(active, nil, today)
	assert.False(t, d.CanActivate, "only DRAFT can be activated")

	expired := draftPolicy(t, func(in *leave.PolicyInput) { in.ExpiryDate = datePtr("2025-02-01") })
	d = svc.CanActivatePolicy(expired, nil, today)
	assert.False(t, d.CanActivate)
	assert.Contains(t, d.Reason, "expired")

	existing := activePolicy(t, func(in *leave.PolicyInput) { in.EffectiveDate = datePtr("2025-06-01") })
	early := draftPolicy(t, func(in *leave.PolicyInput) { in.EffectiveDate = datePtr("2025-05-01") })
	d = svc.CanActivatePolicy(early, existing, today)
	assert.False(t, d.CanActivate, "candidate cannot start before the active policy does")

	other := activePolicy(t, func(in *leave.PolicyInput) { in.LeaveTypeID = "sick" })
	d = svc.CanActivatePolicy(draftPolicy(t, nil), other, today)
	assert.False(t, d.CanActivate)
}

func TestCanActivatePolicy_IsPure(t *testing.T) {
	svc := leave.PolicyActivationService{}
	existing := activePolicy(t, nil)
	candidate := draftPolicy(t, func(in *leave.PolicyInput) { in.EffectiveDate = datePtr("2025-04-01") })
	existingBefore, candidateBefore := *existing, *candidate

	first := svc.CanActivatePolicy(candidate, existing, date("2025-03-01"))
	second := svc.CanActivatePolicy(candidate, existing, date("2025-03-01"))

	assert.Equal(t, first, second)
	assert.Equal(t, existingBefore, *existing)
	assert.Equal(t, candidateBefore, *candidate)
}

func TestPolicyLifecycle_Transitions(t *testing.T) {
	p := draftPolicy(t, nil)

	assert.ErrorIs(t, p.Retire(date("2025-03-01"), testNow), generic.ErrConflict, "DRAFT cannot retire")
	require.NoError(t, p.Activate(testNow))
	assert.ErrorIs(t, p.Activate(testNow), generic.ErrConflict)

	require.NoError(t, p.Retire(date("2025-03-01"), testNow))
	assert.Equal(t, leave.PolicyRetired, p.Status)
	assert.Equal(t, date("2025-03-01"), *p.ExpiryDate)
	assert.ErrorIs(t, p.Retire(date("2025-03-02"), testNow), generic.ErrConflict)
	assert.Equal(t, 3, p.Version)
}
