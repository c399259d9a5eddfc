package leave

import (
	"strconv"
	"strings"
	"time"

	"github.com/warp/leave-ledger/generic"
)

// =============================================================================
// POLICY - Versioned entitlement rules for one leave type
// =============================================================================

// Policy is the rule-set a balance is opened under.
//
// LIFECYCLE:
//
//	DRAFT --activate--> ACTIVE --retire--> RETIRED
//
// At most one policy per leave type is ACTIVE. Policies are never deleted;
// a RETIRED policy stays readable for historical balances.
type Policy struct {
	ID                PolicyID
	LeaveTypeID       LeaveTypeID
	AnnualEntitlement generic.Amount
	CarryLimit        generic.Amount
	EncashLimit       generic.Amount
	CarriedOverYears  int
	EffectiveDate     *generic.TimePoint
	ExpiryDate        *generic.TimePoint
	Status            PolicyStatus
	Remarks           string
	Eligibility       Eligibility
	Version           int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// PolicyInput carries the fields of a new policy.
type PolicyInput struct {
	LeaveTypeID       LeaveTypeID
	AnnualEntitlement generic.Amount
	CarryLimit        generic.Amount
	EncashLimit       generic.Amount
	CarriedOverYears  int
	EffectiveDate     *generic.TimePoint
	ExpiryDate        *generic.TimePoint
	Remarks           string
	Eligibility       Eligibility
}

// NewPolicy creates a DRAFT policy after validating its parameters.
func NewPolicy(in PolicyInput, now time.Time) (*Policy, error) {
	if strings.TrimSpace(string(in.LeaveTypeID)) == "" {
		return nil, generic.Invalid("leave_type_id", "is required")
	}
	p := &Policy{
		ID:                NewID[PolicyID](),
		LeaveTypeID:       in.LeaveTypeID,
		AnnualEntitlement: days(in.AnnualEntitlement),
		CarryLimit:        days(in.CarryLimit),
		EncashLimit:       days(in.EncashLimit),
		CarriedOverYears:  in.CarriedOverYears,
		EffectiveDate:     in.EffectiveDate,
		ExpiryDate:        in.ExpiryDate,
		Status:            PolicyDraft,
		Remarks:           in.Remarks,
		Eligibility:       in.Eligibility,
		Version:           1,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if res := (PolicyActivationService{}).ValidatePolicyParameters(p); !res.IsValid {
		return nil, generic.Invalid(EntityPolicy, res.Reason)
	}
	return p, nil
}

// PolicyPatch is a partial update. Untouched fields stay as they are.
type PolicyPatch struct {
	AnnualEntitlement    generic.Field[generic.Amount]
	CarryLimit           generic.Field[generic.Amount]
	EncashLimit          generic.Field[generic.Amount]
	CarriedOverYears     generic.Field[int]
	EffectiveDate        generic.Field[generic.TimePoint]
	ExpiryDate           generic.Field[generic.TimePoint]
	Remarks              generic.Field[string]
	MinimumServiceMonths generic.Field[int]
	EmploymentTypes      generic.Field[[]string]
	EmployeeStatuses     generic.Field[[]string]
	ExcludedWeekdays     generic.Field[[]int]
}

// Update applies a patch. Only a DRAFT policy, or an ACTIVE one that is not
// yet effective, may change.
func (p *Policy) Update(patch PolicyPatch, now time.Time) error {
	svc := PolicyActivationService{}
	if d := svc.CanUpdatePolicy(p, generic.DateOf(now)); !d.CanUpdate {
		return generic.Conflict(EntityPolicy, d.Reason)
	}
	// The predecessor's expiry was derived from this date at activation.
	if p.Status == PolicyActive && !patch.EffectiveDate.IsKeep() {
		return generic.Conflict(EntityPolicy, "effective_date of an ACTIVE policy cannot change")
	}
	for field, cleared := range map[string]bool{
		"annual_entitlement": patch.AnnualEntitlement.IsClear(),
		"carry_limit":        patch.CarryLimit.IsClear(),
		"encash_limit":       patch.EncashLimit.IsClear(),
		"carried_over_years": patch.CarriedOverYears.IsClear(),
	} {
		if cleared {
			return generic.Invalid(field, "is required and cannot be null")
		}
	}

	next := *p
	patch.AnnualEntitlement.Apply(&next.AnnualEntitlement)
	patch.CarryLimit.Apply(&next.CarryLimit)
	patch.EncashLimit.Apply(&next.EncashLimit)
	patch.CarriedOverYears.Apply(&next.CarriedOverYears)
	patch.EffectiveDate.ApplyPtr(&next.EffectiveDate)
	patch.ExpiryDate.ApplyPtr(&next.ExpiryDate)
	patch.Remarks.Apply(&next.Remarks)
	patch.MinimumServiceMonths.Apply(&next.Eligibility.MinimumServiceMonths)
	patch.EmploymentTypes.Apply(&next.Eligibility.EmploymentTypes)
	patch.EmployeeStatuses.Apply(&next.Eligibility.EmployeeStatuses)
	patch.ExcludedWeekdays.Apply(&next.Eligibility.ExcludedWeekdays)
	next.AnnualEntitlement = days(next.AnnualEntitlement)
	next.CarryLimit = days(next.CarryLimit)
	next.EncashLimit = days(next.EncashLimit)

	if res := svc.ValidatePolicyParameters(&next); !res.IsValid {
		return generic.Invalid(EntityPolicy, res.Reason)
	}
	next.Version++
	next.UpdatedAt = now
	*p = next
	return nil
}

// Activate moves a DRAFT policy to ACTIVE. Retiring the predecessor is the
// caller's job (see CanActivatePolicy).
func (p *Policy) Activate(now time.Time) error {
	if p.Status != PolicyDraft {
		return generic.Conflict(EntityPolicy, "only a DRAFT policy can be activated, policy is "+string(p.Status))
	}
	p.Status = PolicyActive
	p.Version++
	p.UpdatedAt = now
	return nil
}

// Retire moves an ACTIVE policy to RETIRED with the given last governed day.
func (p *Policy) Retire(expiry generic.TimePoint, now time.Time) error {
	if p.Status != PolicyActive {
		return generic.Conflict(EntityPolicy, "only an ACTIVE policy can be retired, policy is "+string(p.Status))
	}
	p.Status = PolicyRetired
	p.ExpiryDate = &expiry
	p.Version++
	p.UpdatedAt = now
	return nil
}

// IsEffective reports whether an ACTIVE policy already governs today. A
// policy without an effective date is effective as soon as it is active.
func (p *Policy) IsEffective(today generic.TimePoint) bool {
	if p.Status != PolicyActive {
		return false
	}
	return p.EffectiveDate == nil || !p.EffectiveDate.After(today)
}

// IsExpired reports whether the policy's expiry date is strictly before today.
func (p *Policy) IsExpired(today generic.TimePoint) bool {
	return p.ExpiryDate != nil && p.ExpiryDate.Before(today)
}

// Snapshot renders the audited fields.
func (p *Policy) Snapshot() generic.Snapshot {
	return generic.Snapshot{
		"leave_type_id":          string(p.LeaveTypeID),
		"annual_entitlement":     p.AnnualEntitlement.Value.String(),
		"carry_limit":            p.CarryLimit.Value.String(),
		"encash_limit":           p.EncashLimit.Value.String(),
		"carried_over_years":     strconv.Itoa(p.CarriedOverYears),
		"effective_date":         datePtr(p.EffectiveDate),
		"expiry_date":            datePtr(p.ExpiryDate),
		"status":                 string(p.Status),
		"remarks":                p.Remarks,
		"minimum_service_months": strconv.Itoa(p.Eligibility.MinimumServiceMonths),
		"employment_types":       strings.Join(p.Eligibility.EmploymentTypes, ","),
		"employee_statuses":      strings.Join(p.Eligibility.EmployeeStatuses, ","),
		"excluded_weekdays":      joinInts(p.Eligibility.ExcludedWeekdays),
	}
}

// =============================================================================
// HELPERS
// =============================================================================

func days(a generic.Amount) generic.Amount {
	if a.Unit == "" {
		a.Unit = generic.UnitDays
	}
	return a
}

func datePtr(tp *generic.TimePoint) string {
	if tp == nil {
		return ""
	}
	return tp.String()
}

func joinInts(xs []int) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = strconv.Itoa(x)
	}
	return strings.Join(parts, ",")
}
