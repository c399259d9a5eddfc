package leave

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/warp/leave-ledger/generic"
)

// =============================================================================
// CYCLE USE CASES
// =============================================================================

func (s *Service) OpenCycle(ctx context.Context, in CycleInput) (*Cycle, error) {
	var c *Cycle
	err := s.run(ctx, "cycle.open", func(st Store, now time.Time) error {
		if err := requireLeaveType(ctx, st, in.LeaveTypeID); err != nil {
			return err
		}
		var err error
		if c, err = NewCycle(in, now); err != nil {
			return err
		}
		existing, err := st.ListCycles(ctx, CycleFilter{EmployeeID: c.EmployeeID, LeaveTypeID: c.LeaveTypeID})
		if err != nil {
			return storeErr("list cycles", err)
		}
		if err := CheckCycleOverlap(c, existing); err != nil {
			return err
		}
		if err := st.CreateCycle(ctx, c); err != nil {
			return storeErr("create cycle", err)
		}
		return s.audit(ctx, st, now, generic.AuditOpened, EntityCycle, string(c.ID), nil, c.Snapshot())
	})
	if err != nil {
		return nil, err
	}
	s.logger(ctx).Info("cycle opened",
		zap.String("cycle_id", string(c.ID)),
		zap.String("employee_id", string(c.EmployeeID)),
		zap.Int("from", c.Years.From),
		zap.Int("to", c.Years.To))
	return c, nil
}

// GetActiveCycle returns the OPEN cycle of the pair or NotFound.
func (s *Service) GetActiveCycle(ctx context.Context, employee EmployeeID, leaveType LeaveTypeID) (*Cycle, error) {
	open, err := s.store.ListCycles(ctx, CycleFilter{
		EmployeeID:  employee,
		LeaveTypeID: leaveType,
		Statuses:    []CycleStatus{CycleOpen},
	})
	if err != nil {
		return nil, storeErr("list cycles", err)
	}
	if len(open) == 0 {
		return nil, generic.NotFound(EntityCycle, fmt.Sprintf("%s/%s", employee, leaveType))
	}
	return open[0], nil
}

func (s *Service) ListCycles(ctx context.Context, f CycleFilter) ([]*Cycle, error) {
	cs, err := s.store.ListCycles(ctx, f)
	return cs, storeErr("list cycles", err)
}

// CloseCycleResult reports what a cycle close changed.
type CloseCycleResult struct {
	Cycle   *Cycle
	Closed  *Balance // balance of the cycle's last year, nil if none existed
	Next    *Balance // balance of the following year that received the carry
	Carried generic.Amount
}

// CloseCycle closes an OPEN cycle and rolls the balance of its last year
// into the next one:
//  1. carry = remaining of the ending balance, bounded by the governing
//     policy's carry_limit and carried_over_years
//  2. the ending balance is closed
//  3. next year's balance is opened (or reused) and receives a CARRY posting
func (s *Service) CloseCycle(ctx context.Context, id CycleID) (*CloseCycleResult, error) {
	var res *CloseCycleResult
	err := s.run(ctx, "cycle.close", func(st Store, now time.Time) error {
		c, err := st.GetCycle(ctx, id)
		if err != nil {
			return storeErr("get cycle", err)
		}
		if c.Status != CycleOpen {
			return generic.Conflict(EntityCycle, "cycle "+string(c.ID)+" is already CLOSED")
		}
		res = &CloseCycleResult{Cycle: c, Carried: generic.ZeroDays()}

		ending, err := findBalance(ctx, st, c.EmployeeID, c.LeaveTypeID, c.Years.To)
		if err != nil {
			return err
		}
		if ending != nil {
			policy, err := st.GetPolicy(ctx, ending.PolicyID)
			if err != nil {
				return storeErr("get policy", err)
			}
			res.Carried = ComputeCarryOver(ending.Remaining, policy, c.Years.Span())

			if ending.Status != BalanceClosed {
				before := ending.Snapshot()
				if err := ending.Close(now); err != nil {
					return err
				}
				if err := rows(st.UpdateBalance(ctx, ending)).check("update balance"); err != nil {
					return err
				}
				if err := s.audit(ctx, st, now, generic.AuditClosed, EntityBalance, string(ending.ID), before, ending.Snapshot()); err != nil {
					return err
				}
			}
			res.Closed = ending
		}

		if res.Carried.IsPositive() {
			if res.Next, err = s.carryInto(ctx, st, c, res.Carried, now); err != nil {
				return err
			}
		}

		before := c.Snapshot()
		if err := c.Close(res.Carried, now); err != nil {
			return err
		}
		if err := rows(st.UpdateCycle(ctx, c)).check("update cycle"); err != nil {
			return err
		}
		return s.audit(ctx, st, now, generic.AuditClosed, EntityCycle, string(c.ID), before, c.Snapshot())
	})
	if err != nil {
		return nil, err
	}
	s.logger(ctx).Info("cycle closed",
		zap.String("cycle_id", string(id)),
		zap.Stringer("carried", res.Carried))
	return res, nil
}

// carryInto posts carried days to the balance of the year after the cycle,
// opening it under the current ACTIVE policy when it does not exist yet.
func (s *Service) carryInto(ctx context.Context, st Store, c *Cycle, carried generic.Amount, now time.Time) (*Balance, error) {
	year := c.Years.To + 1
	next, err := findBalance(ctx, st, c.EmployeeID, c.LeaveTypeID, year)
	if err != nil {
		return nil, err
	}
	if next == nil {
		return s.openBalance(ctx, st, nil, c.EmployeeID, c.LeaveTypeID, year, carried, now)
	}

	carry, err := NewTransaction(TransactionInput{
		BalanceID:   next.ID,
		Type:        TxCarry,
		Days:        carried,
		Remarks:     fmt.Sprintf("carried over from cycle %d-%d", c.Years.From, c.Years.To),
		ReferenceID: string(c.ID),
		EffectiveAt: yearStart(ctx, st, year),
	}, now)
	if err != nil {
		return nil, err
	}
	before := next.Snapshot()
	if err := s.post(ctx, st, next, carry, now); err != nil {
		return nil, err
	}
	if err := s.saveBalance(ctx, st, next, before, now); err != nil {
		return nil, err
	}
	return next, nil
}

// findBalance returns the pair's balance for year, or nil.
func findBalance(ctx context.Context, st Store, employee EmployeeID, leaveType LeaveTypeID, year int) (*Balance, error) {
	bs, err := st.ListBalances(ctx, BalanceFilter{EmployeeID: employee, LeaveTypeID: leaveType, Year: year})
	if err != nil {
		return nil, storeErr("list balances", err)
	}
	if len(bs) == 0 {
		return nil, nil
	}
	return bs[0], nil
}

// =============================================================================
// LEAVE YEAR USE CASES
// =============================================================================

func (s *Service) CreateYearConfiguration(ctx context.Context, in YearConfigInput) (*YearConfiguration, error) {
	var y *YearConfiguration
	err := s.run(ctx, "leave_year.create", func(st Store, now time.Time) error {
		var err error
		if y, err = NewYearConfiguration(in, now); err != nil {
			return err
		}
		existing, err := st.ListYearConfigs(ctx)
		if err != nil {
			return storeErr("list year configurations", err)
		}
		if err := CheckYearOverlap(y, existing); err != nil {
			return err
		}
		if err := st.CreateYearConfig(ctx, y); err != nil {
			return storeErr("create year configuration", err)
		}
		return s.audit(ctx, st, now, generic.AuditCreated, EntityYearConfig, string(y.ID), nil, y.Snapshot())
	})
	if err != nil {
		return nil, err
	}
	s.logger(ctx).Info("leave year configured", zap.Int("year", y.Year), zap.Stringer("window", y.Window))
	return y, nil
}

func (s *Service) UpdateYearConfiguration(ctx context.Context, id YearConfigID, patch YearConfigPatch) (*YearConfiguration, error) {
	var y *YearConfiguration
	err := s.run(ctx, "leave_year.update", func(st Store, now time.Time) error {
		var err error
		if y, err = st.GetYearConfig(ctx, id); err != nil {
			return storeErr("get year configuration", err)
		}
		before := y.Snapshot()
		if err := y.Update(patch, now); err != nil {
			return err
		}
		existing, err := st.ListYearConfigs(ctx)
		if err != nil {
			return storeErr("list year configurations", err)
		}
		if err := CheckYearOverlap(y, existing); err != nil {
			return err
		}
		if err := rows(st.UpdateYearConfig(ctx, y)).check("update year configuration"); err != nil {
			return err
		}
		return s.audit(ctx, st, now, generic.AuditUpdated, EntityYearConfig, string(y.ID), before, y.Snapshot())
	})
	if err != nil {
		return nil, err
	}
	return y, nil
}

func (s *Service) ArchiveYearConfiguration(ctx context.Context, id YearConfigID) (*YearConfiguration, error) {
	var y *YearConfiguration
	err := s.run(ctx, "leave_year.archive", func(st Store, now time.Time) error {
		var err error
		if y, err = st.GetYearConfig(ctx, id); err != nil {
			return storeErr("get year configuration", err)
		}
		before := y.Snapshot()
		if err := y.Archive(now); err != nil {
			return err
		}
		if err := rows(st.UpdateYearConfig(ctx, y)).check("update year configuration"); err != nil {
			return err
		}
		return s.audit(ctx, st, now, generic.AuditArchived, EntityYearConfig, string(y.ID), before, y.Snapshot())
	})
	if err != nil {
		return nil, err
	}
	return y, nil
}

func (s *Service) ListYearConfigurations(ctx context.Context) ([]*YearConfiguration, error) {
	ys, err := s.store.ListYearConfigs(ctx)
	return ys, storeErr("list year configurations", err)
}

// ResolveLeaveYear returns the leave year containing date.
func (s *Service) ResolveLeaveYear(ctx context.Context, date generic.TimePoint) (*YearConfiguration, error) {
	configs, err := s.store.ListYearConfigs(ctx)
	if err != nil {
		return nil, storeErr("list year configurations", err)
	}
	return ResolveYear(date, configs)
}
