package leave

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/warp/leave-ledger/generic"
)

// Eligibility filters which employees a policy applies to and which
// weekdays never count as leave days. A nil set means "no restriction";
// a non-nil set must not be empty.
type Eligibility struct {
	MinimumServiceMonths int
	EmploymentTypes      []string
	EmployeeStatuses     []string
	ExcludedWeekdays     []int // 0 = Sunday ... 6 = Saturday
}

// EmployeeProfile is what the core needs to know about an employee. It is
// supplied by the caller from the employee directory.
type EmployeeProfile struct {
	ID             EmployeeID
	HireDate       generic.TimePoint
	EmploymentType string
	Status         string
}

func (e Eligibility) validate() (string, bool) {
	if e.MinimumServiceMonths < 0 {
		return "minimum_service_months must not be negative", false
	}
	if reason, ok := validSet("allowed_employment_types", e.EmploymentTypes); !ok {
		return reason, false
	}
	if reason, ok := validSet("allowed_employee_statuses", e.EmployeeStatuses); !ok {
		return reason, false
	}
	if e.ExcludedWeekdays != nil {
		if len(e.ExcludedWeekdays) == 0 {
			return "excluded_weekdays must not be empty when provided", false
		}
		seen := make(map[int]bool, len(e.ExcludedWeekdays))
		for _, wd := range e.ExcludedWeekdays {
			if wd < 0 || wd > 6 {
				return fmt.Sprintf("excluded_weekdays: %d is not a weekday code (0-6)", wd), false
			}
			if seen[wd] {
				return fmt.Sprintf("excluded_weekdays: %d listed twice", wd), false
			}
			seen[wd] = true
		}
		if len(seen) == 7 {
			return "excluded_weekdays must leave at least one countable day", false
		}
	}
	return "", true
}

func validSet(name string, values []string) (string, bool) {
	if values == nil {
		return "", true
	}
	if len(values) == 0 {
		return name + " must not be empty when provided", false
	}
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			return name + " contains an empty value", false
		}
		if seen[v] {
			return name + ": " + v + " listed twice", false
		}
		seen[v] = true
	}
	return "", true
}

// Check returns a Conflict when the employee does not satisfy the filter on asOf.
func (e Eligibility) Check(emp EmployeeProfile, asOf generic.TimePoint) error {
	if e.MinimumServiceMonths > 0 {
		if emp.HireDate.IsZero() {
			return generic.Conflict(EntityPolicy, "employee hire date is unknown, service months cannot be checked")
		}
		if served := generic.CompletedMonths(emp.HireDate, asOf); served < e.MinimumServiceMonths {
			return generic.Conflict(EntityPolicy, fmt.Sprintf(
				"employee has %d months of service, policy requires %d", served, e.MinimumServiceMonths))
		}
	}
	if e.EmploymentTypes != nil && !slices.Contains(e.EmploymentTypes, emp.EmploymentType) {
		return generic.Conflict(EntityPolicy, "employment type "+emp.EmploymentType+" is not covered by the policy")
	}
	if e.EmployeeStatuses != nil && !slices.Contains(e.EmployeeStatuses, emp.Status) {
		return generic.Conflict(EntityPolicy, "employee status "+emp.Status+" is not covered by the policy")
	}
	return nil
}

// Weekdays converts ExcludedWeekdays to time.Weekday values.
func (e Eligibility) Weekdays() []time.Weekday {
	out := make([]time.Weekday, len(e.ExcludedWeekdays))
	for i, wd := range e.ExcludedWeekdays {
		out[i] = time.Weekday(wd)
	}
	return out
}

// CountLeaveDays is the number of chargeable days in window under the policy.
func CountLeaveDays(window generic.Period, p *Policy) generic.Amount {
	var excluded []time.Weekday
	if p != nil {
		excluded = p.Eligibility.Weekdays()
	}
	return generic.Days(float64(window.CountExcluding(excluded)))
}
