package leave

import (
	"fmt"
	"strconv"
	"time"

	"github.com/warp/leave-ledger/generic"
)

// Cycle is the carry-over bookkeeping window of one employee and leave type.
// At most one cycle per (employee, leave type) is OPEN, and the year ranges
// of a pair's cycles never overlap.
type Cycle struct {
	ID           CycleID
	EmployeeID   EmployeeID
	LeaveTypeID  LeaveTypeID
	Years        generic.YearRange
	TotalCarried generic.Amount
	Status       CycleStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type CycleInput struct {
	EmployeeID  EmployeeID
	LeaveTypeID LeaveTypeID
	StartYear   int
	EndYear     int
}

// NewCycle builds an OPEN cycle. Overlap with existing cycles is checked by
// CheckCycleOverlap.
func NewCycle(in CycleInput, now time.Time) (*Cycle, error) {
	switch {
	case in.EmployeeID == "":
		return nil, generic.Invalid("employee_id", "is required")
	case in.LeaveTypeID == "":
		return nil, generic.Invalid("leave_type_id", "is required")
	case in.StartYear < 1:
		return nil, generic.Invalid("cycle_start_year", "must be a positive year")
	case in.EndYear < in.StartYear:
		return nil, generic.Invalid("cycle_end_year", "must not be before cycle_start_year")
	}
	return &Cycle{
		ID:           NewID[CycleID](),
		EmployeeID:   in.EmployeeID,
		LeaveTypeID:  in.LeaveTypeID,
		Years:        generic.YearRange{From: in.StartYear, To: in.EndYear},
		TotalCarried: generic.ZeroDays(),
		Status:       CycleOpen,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// CheckCycleOverlap rejects c when the pair already has an OPEN cycle or a
// cycle whose years overlap c's.
func CheckCycleOverlap(c *Cycle, existing []*Cycle) error {
	for _, other := range existing {
		if other.ID == c.ID || other.EmployeeID != c.EmployeeID || other.LeaveTypeID != c.LeaveTypeID {
			continue
		}
		if other.Status == CycleOpen {
			return generic.Conflict(EntityCycle, "cycle "+string(other.ID)+" is still OPEN")
		}
		if other.Years.Overlaps(c.Years) {
			return generic.Conflict(EntityCycle, fmt.Sprintf(
				"years %d-%d overlap cycle %s (%d-%d)",
				c.Years.From, c.Years.To, other.ID, other.Years.From, other.Years.To))
		}
	}
	return nil
}

// Close records the carried figure and moves the cycle to CLOSED.
func (c *Cycle) Close(carried generic.Amount, now time.Time) error {
	if c.Status != CycleOpen {
		return generic.Conflict(EntityCycle, "cycle "+string(c.ID)+" is already CLOSED")
	}
	if carried.IsNegative() {
		return generic.Invalid("total_carried", "must not be negative")
	}
	c.TotalCarried = days(carried).Round()
	c.Status = CycleClosed
	c.UpdatedAt = now
	return nil
}

// ComputeCarryOver is how many of remaining days roll into the next year:
// clamped to [0, carry_limit], and nothing once the cycle has run longer
// than the policy lets a carry-over persist.
func ComputeCarryOver(remaining generic.Amount, policy *Policy, span int) generic.Amount {
	zero := generic.ZeroDays()
	if policy == nil {
		return zero
	}
	if policy.CarriedOverYears > 0 && span > policy.CarriedOverYears {
		return zero
	}
	return days(remaining).Clamp(zero, policy.CarryLimit).Round()
}

func (c *Cycle) Snapshot() generic.Snapshot {
	return generic.Snapshot{
		"employee_id":      string(c.EmployeeID),
		"leave_type_id":    string(c.LeaveTypeID),
		"cycle_start_year": strconv.Itoa(c.Years.From),
		"cycle_end_year":   strconv.Itoa(c.Years.To),
		"total_carried":    c.TotalCarried.Value.String(),
		"status":           string(c.Status),
	}
}
