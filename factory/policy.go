/*
Package factory provides JSON to Go policy conversion.

PURPOSE:
  Converts JSON policy definitions into leave.PolicyInput values. HR can
  keep entitlement rules in a seed file or post them to the API, and the
  factory turns them into the structs the leave service validates.

JSON SCHEMA:
  {
    "leave_type_id": "annual",
    "annual_entitlement": 20,
    "carry_limit": 5,
    "encash_limit": 10,
    "carried_over_years": 1,
    "effective_date": "2024-01-01",
    "expiry_date": "2024-12-31",
    "remarks": "standard annual leave",
    "eligibility": {
      "minimum_service_months": 3,
      "allowed_employment_types": ["FULL_TIME"],
      "allowed_employee_statuses": ["ACTIVE"],
      "excluded_weekdays": ["saturday", "sunday"]
    }
  }

SEED FILE:
  {
    "leave_types": [{"id": "annual", "name": "Annual Leave"}],
    "leave_years": [{"year": 2024, "cutoff_start_date": "2024-01-01", "cutoff_end_date": "2024-12-31"}],
    "policies": [{ ...policy..., "activate": true }]
  }

  Seeding is idempotent: existing leave types and leave years are kept,
  and policies are only created for leave types that have none yet.

USAGE:
  f := factory.NewPolicyFactory()
  in, err := f.ParsePolicy(jsonString)
  policy, err := svc.CreatePolicy(ctx, in)

SEE ALSO:
  - leave/policy.go: Policy aggregate and validation
  - api/handlers.go: Policy endpoints decode through FromJSON
*/
package factory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/warp/leave-ledger/generic"
	"github.com/warp/leave-ledger/leave"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// PolicyJSON is the JSON representation of a policy. ID, Status and
// Version are output only.
type PolicyJSON struct {
	ID                string             `json:"id,omitempty"`
	LeaveTypeID       string             `json:"leave_type_id"`
	AnnualEntitlement generic.Amount     `json:"annual_entitlement"`
	CarryLimit        generic.Amount     `json:"carry_limit"`
	EncashLimit       generic.Amount     `json:"encash_limit"`
	CarriedOverYears  int                `json:"carried_over_years"`
	EffectiveDate     *generic.TimePoint `json:"effective_date,omitempty"`
	ExpiryDate        *generic.TimePoint `json:"expiry_date,omitempty"`
	Remarks           string             `json:"remarks,omitempty"`
	Eligibility       *EligibilityJSON   `json:"eligibility,omitempty"`
	Status            string             `json:"status,omitempty"`
	Version           int                `json:"version,omitempty"`

	// Activate is only read from seed files.
	Activate bool `json:"activate,omitempty"`
}

// EligibilityJSON represents who a policy covers.
type EligibilityJSON struct {
	MinimumServiceMonths    int      `json:"minimum_service_months,omitempty"`
	AllowedEmploymentTypes  []string `json:"allowed_employment_types,omitempty"`
	AllowedEmployeeStatuses []string `json:"allowed_employee_statuses,omitempty"`
	ExcludedWeekdays        []string `json:"excluded_weekdays,omitempty"` // "saturday" or "6"
}

type LeaveTypeJSON struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type LeaveYearJSON struct {
	Year        int               `json:"year"`
	CutoffStart generic.TimePoint `json:"cutoff_start_date"`
	CutoffEnd   generic.TimePoint `json:"cutoff_end_date"`
	Remarks     string            `json:"remarks,omitempty"`
}

// SeedJSON is the content of a policy seed file.
type SeedJSON struct {
	LeaveTypes []LeaveTypeJSON `json:"leave_types"`
	LeaveYears []LeaveYearJSON `json:"leave_years,omitempty"`
	Policies   []PolicyJSON    `json:"policies"`
}

// =============================================================================
// POLICY FACTORY
// =============================================================================

// PolicyFactory converts JSON policies to Go structs.
type PolicyFactory struct{}

// NewPolicyFactory creates a new policy factory.
func NewPolicyFactory() *PolicyFactory {
	return &PolicyFactory{}
}

// ParsePolicy parses a JSON string into a PolicyInput.
func (f *PolicyFactory) ParsePolicy(jsonStr string) (leave.PolicyInput, error) {
	var pj PolicyJSON
	if err := json.Unmarshal([]byte(jsonStr), &pj); err != nil {
		return leave.PolicyInput{}, fmt.Errorf("failed to parse policy JSON: %w", err)
	}
	return f.FromJSON(pj)
}

// FromJSON converts PolicyJSON to a PolicyInput. Parameter rules are left
// to leave.NewPolicy; only the JSON-level encoding is checked here.
func (f *PolicyFactory) FromJSON(pj PolicyJSON) (leave.PolicyInput, error) {
	in := leave.PolicyInput{
		LeaveTypeID:       leave.LeaveTypeID(pj.LeaveTypeID),
		AnnualEntitlement: pj.AnnualEntitlement,
		CarryLimit:        pj.CarryLimit,
		EncashLimit:       pj.EncashLimit,
		CarriedOverYears:  pj.CarriedOverYears,
		EffectiveDate:     pj.EffectiveDate,
		ExpiryDate:        pj.ExpiryDate,
		Remarks:           pj.Remarks,
	}
	if pj.Eligibility != nil {
		el, err := parseEligibility(*pj.Eligibility)
		if err != nil {
			return leave.PolicyInput{}, err
		}
		in.Eligibility = el
	}
	return in, nil
}

// ToJSON converts a Policy to PolicyJSON.
func (f *PolicyFactory) ToJSON(p *leave.Policy) PolicyJSON {
	pj := PolicyJSON{
		ID:                string(p.ID),
		LeaveTypeID:       string(p.LeaveTypeID),
		AnnualEntitlement: p.AnnualEntitlement,
		CarryLimit:        p.CarryLimit,
		EncashLimit:       p.EncashLimit,
		CarriedOverYears:  p.CarriedOverYears,
		EffectiveDate:     p.EffectiveDate,
		ExpiryDate:        p.ExpiryDate,
		Remarks:           p.Remarks,
		Status:            string(p.Status),
		Version:           p.Version,
	}

	el := p.Eligibility
	if el.MinimumServiceMonths > 0 || el.EmploymentTypes != nil || el.EmployeeStatuses != nil || el.ExcludedWeekdays != nil {
		ej := &EligibilityJSON{
			MinimumServiceMonths:    el.MinimumServiceMonths,
			AllowedEmploymentTypes:  el.EmploymentTypes,
			AllowedEmployeeStatuses: el.EmployeeStatuses,
		}
		for _, d := range el.ExcludedWeekdays {
			ej.ExcludedWeekdays = append(ej.ExcludedWeekdays, strings.ToLower(time.Weekday(d).String()))
		}
		pj.Eligibility = ej
	}
	return pj
}

// ParseSeed parses the content of a seed file.
func (f *PolicyFactory) ParseSeed(data []byte) (SeedJSON, error) {
	var seed SeedJSON
	if err := json.Unmarshal(data, &seed); err != nil {
		return SeedJSON{}, fmt.Errorf("failed to parse seed JSON: %w", err)
	}
	for i, pj := range seed.Policies {
		if _, err := f.FromJSON(pj); err != nil {
			return SeedJSON{}, fmt.Errorf("policy %d: %w", i, err)
		}
	}
	return seed, nil
}

// LoadSeedFile reads and parses a seed file.
func (f *PolicyFactory) LoadSeedFile(path string) (SeedJSON, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return SeedJSON{}, fmt.Errorf("failed to read seed file: %w", err)
	}
	return f.ParseSeed(data)
}

// Seed applies seed to the service. It can run on every start.
func (f *PolicyFactory) Seed(ctx context.Context, svc *leave.Service, seed SeedJSON, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	ctx = leave.WithActor(ctx, "seed")

	for _, lt := range seed.LeaveTypes {
		_, err := svc.CreateLeaveType(ctx, leave.LeaveTypeID(lt.ID), lt.Name)
		if err != nil && !errors.Is(err, generic.ErrConflict) {
			return fmt.Errorf("seed leave type %s: %w", lt.ID, err)
		}
	}

	for _, ly := range seed.LeaveYears {
		_, err := svc.CreateYearConfiguration(ctx, leave.YearConfigInput{
			Year:        ly.Year,
			CutoffStart: ly.CutoffStart,
			CutoffEnd:   ly.CutoffEnd,
			Remarks:     ly.Remarks,
		})
		if err != nil && !errors.Is(err, generic.ErrConflict) {
			return fmt.Errorf("seed leave year %d: %w", ly.Year, err)
		}
	}

	seeded := map[string]bool{}
	for _, pj := range seed.Policies {
		if seeded[pj.LeaveTypeID] {
			continue
		}
		existing, err := svc.ListPolicies(ctx, leave.PolicyFilter{LeaveTypeID: leave.LeaveTypeID(pj.LeaveTypeID)})
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			log.Debug("leave type already has policies, skipping seed", zap.String("leave_type_id", pj.LeaveTypeID))
			continue
		}
		for _, same := range seed.Policies {
			if same.LeaveTypeID != pj.LeaveTypeID {
				continue
			}
			if err := f.seedPolicy(ctx, svc, same, log); err != nil {
				return err
			}
		}
		seeded[pj.LeaveTypeID] = true
	}
	return nil
}

func (f *PolicyFactory) seedPolicy(ctx context.Context, svc *leave.Service, pj PolicyJSON, log *zap.Logger) error {
	in, err := f.FromJSON(pj)
	if err != nil {
		return err
	}
	p, err := svc.CreatePolicy(ctx, in)
	if err != nil {
		return fmt.Errorf("seed policy for %s: %w", pj.LeaveTypeID, err)
	}
	if pj.Activate {
		if _, err := svc.ActivatePolicy(ctx, p.ID); err != nil {
			return fmt.Errorf("activate seeded policy %s: %w", p.ID, err)
		}
	}
	log.Info("policy seeded",
		zap.String("policy_id", string(p.ID)),
		zap.String("leave_type_id", pj.LeaveTypeID),
		zap.Bool("activated", pj.Activate))
	return nil
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

func parseEligibility(ej EligibilityJSON) (leave.Eligibility, error) {
	el := leave.Eligibility{
		MinimumServiceMonths: ej.MinimumServiceMonths,
		EmploymentTypes:      ej.AllowedEmploymentTypes,
		EmployeeStatuses:     ej.AllowedEmployeeStatuses,
	}
	for _, s := range ej.ExcludedWeekdays {
		d, err := ParseWeekday(s)
		if err != nil {
			return leave.Eligibility{}, err
		}
		el.ExcludedWeekdays = append(el.ExcludedWeekdays, d)
	}
	return el, nil
}

// ParseWeekday accepts an English day name, its three-letter form, or a
// number 0 (Sunday) to 6 (Saturday).
func ParseWeekday(s string) (int, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if n, err := strconv.Atoi(s); err == nil {
		if n < 0 || n > 6 {
			return 0, generic.Invalid("excluded_weekdays", "weekday "+s+" is out of range 0-6")
		}
		return n, nil
	}
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if s == name || s == name[:3] {
			return int(d), nil
		}
	}
	return 0, generic.Invalid("excluded_weekdays", "unknown weekday "+strconv.Quote(s))
}
