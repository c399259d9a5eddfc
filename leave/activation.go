package leave

import (
	"github.com/shopspring/decimal"
	"github.com/warp/leave-ledger/generic"
)

// =============================================================================
// POLICY ACTIVATION SERVICE - Pure decisions, no side effects
// =============================================================================

// PolicyActivationService decides whether a policy may be validated, updated
// or activated. It reads nothing and writes nothing: the caller enacts the
// returned decision inside its own transaction, so calling it twice with the
// same inputs yields the same answer.
type PolicyActivationService struct{}

type ValidationResult struct {
	IsValid bool
	Reason  string
}

type UpdateDecision struct {
	CanUpdate bool
	Reason    string
}

// ActivationDecision tells the caller what to write. When
// ShouldRetireExisting is set, ExistingPolicyID must be retired with
// RetireExpiry as its last governed day in the same transaction that
// activates the candidate.
type ActivationDecision struct {
	CanActivate          bool
	Reason               string
	ShouldRetireExisting bool
	ExistingPolicyID     PolicyID
	RetireExpiry         generic.TimePoint
}

func invalid(reason string) ValidationResult { return ValidationResult{Reason: reason} }

// ValidatePolicyParameters checks numeric bounds, the date window and the
// eligibility filter.
func (PolicyActivationService) ValidatePolicyParameters(p *Policy) ValidationResult {
	switch {
	case p.AnnualEntitlement.IsNegative():
		return invalid("annual_entitlement must not be negative")
	case p.CarryLimit.IsNegative():
		return invalid("carry_limit must not be negative")
	case p.EncashLimit.IsNegative():
		return invalid("encash_limit must not be negative")
	case p.CarriedOverYears < 0:
		return invalid("carried_over_years must not be negative")
	}

	years := p.CarriedOverYears
	if years < 1 {
		years = 1
	}
	carryBound := p.AnnualEntitlement.Mul(decimal.NewFromInt(int64(years)))
	if p.CarryLimit.GreaterThan(carryBound) {
		return invalid("carry_limit " + p.CarryLimit.Value.String() +
			" exceeds annual_entitlement x carried_over_years (" + carryBound.Value.String() + ")")
	}

	if p.EffectiveDate != nil && p.ExpiryDate != nil && !p.ExpiryDate.After(*p.EffectiveDate) {
		return invalid("expiry_date must be after effective_date")
	}

	if reason, ok := p.Eligibility.validate(); !ok {
		return invalid(reason)
	}
	return ValidationResult{IsValid: true}
}

// CanUpdatePolicy permits changes while DRAFT, or while ACTIVE but not yet
// effective. Once employees accrue against a policy its rules are frozen.
func (PolicyActivationService) CanUpdatePolicy(p *Policy, today generic.TimePoint) UpdateDecision {
	switch p.Status {
	case PolicyDraft:
		return UpdateDecision{CanUpdate: true}
	case PolicyActive:
		if p.IsEffective(today) {
			return UpdateDecision{Reason: "cannot update effective policy"}
		}
		return UpdateDecision{CanUpdate: true}
	case PolicyRetired:
		return UpdateDecision{Reason: "cannot update retired policy"}
	default:
		return UpdateDecision{Reason: "unknown policy status " + string(p.Status)}
	}
}

// CanActivatePolicy decides whether candidate may become ACTIVE given the
// currently ACTIVE policy for the same leave type (nil when there is none).
//
// The predecessor's last governed day is the day before the candidate's
// effective date, or today when the candidate has none, so no date is
// governed by two policies and none is left ungoverned.
func (s PolicyActivationService) CanActivatePolicy(candidate, existing *Policy, today generic.TimePoint) ActivationDecision {
	if candidate.Status != PolicyDraft {
		return ActivationDecision{Reason: "only a DRAFT policy can be activated, policy is " + string(candidate.Status)}
	}
	if res := s.ValidatePolicyParameters(candidate); !res.IsValid {
		return ActivationDecision{Reason: res.Reason}
	}
	if candidate.ExpiryDate != nil && candidate.ExpiryDate.Before(today) {
		return ActivationDecision{Reason: "policy expired on " + candidate.ExpiryDate.String()}
	}

	if existing == nil || existing.ID == candidate.ID {
		return ActivationDecision{CanActivate: true}
	}
	if existing.LeaveTypeID != candidate.LeaveTypeID {
		return ActivationDecision{Reason: "existing policy " + string(existing.ID) + " belongs to another leave type"}
	}
	if existing.Status != PolicyActive {
		return ActivationDecision{CanActivate: true}
	}

	expiry := today
	if candidate.EffectiveDate != nil {
		expiry = candidate.EffectiveDate.AddDays(-1)
	}
	if existing.EffectiveDate != nil && expiry.Before(*existing.EffectiveDate) {
		return ActivationDecision{Reason: "candidate takes effect before the active policy " +
			string(existing.ID) + " does (" + existing.EffectiveDate.String() + ")"}
	}

	return ActivationDecision{
		CanActivate:          true,
		ShouldRetireExisting: true,
		ExistingPolicyID:     existing.ID,
		RetireExpiry:         expiry,
	}
}
