package leave

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/warp/leave-ledger/generic"
)

// =============================================================================
// BALANCE USE CASES
// =============================================================================

// OpenBalanceInput opens an employee's balance for one leave year.
type OpenBalanceInput struct {
	Employee    EmployeeProfile
	LeaveTypeID LeaveTypeID
	Year        int
	CarriedOver generic.Amount // optional, posted as CARRY
}

// OpenBalance opens a balance under the leave type's ACTIVE policy. The
// policy's annual entitlement is posted as an ADJUSTMENT (booked into
// earned) and any carried figure as CARRY, so ReplayBalance can rebuild
// the balance from its journal.
func (s *Service) OpenBalance(ctx context.Context, in OpenBalanceInput) (*Balance, error) {
	var b *Balance
	err := s.run(ctx, "balance.open", func(st Store, now time.Time) error {
		var err error
		b, err = s.openBalance(ctx, st, &in.Employee, in.Employee.ID, in.LeaveTypeID, in.Year, in.CarriedOver, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger(ctx).Info("balance opened",
		zap.String("balance_id", string(b.ID)),
		zap.String("employee_id", string(b.EmployeeID)),
		zap.Int("year", b.Year),
		zap.Stringer("remaining", b.Remaining))
	return b, nil
}

// openBalance runs inside a transaction. A nil profile skips the
// eligibility check (rollover of an employee who already holds a balance).
func (s *Service) openBalance(ctx context.Context, st Store, emp *EmployeeProfile, employeeID EmployeeID,
	leaveType LeaveTypeID, year int, carried generic.Amount, now time.Time) (*Balance, error) {
	if err := requireLeaveType(ctx, st, leaveType); err != nil {
		return nil, err
	}
	policy, err := activePolicy(ctx, st, leaveType)
	if err != nil {
		return nil, err
	}
	if policy == nil {
		return nil, generic.Conflict(EntityBalance, "leave type "+string(leaveType)+" has no ACTIVE policy")
	}

	if emp != nil {
		asOf := generic.DateOf(now)
		if start := yearStart(ctx, st, year); start.After(asOf) {
			asOf = start
		}
		if err := policy.Eligibility.Check(*emp, asOf); err != nil {
			return nil, err
		}
	}

	existing, err := st.ListBalances(ctx, BalanceFilter{EmployeeID: employeeID, LeaveTypeID: leaveType, Year: year})
	if err != nil {
		return nil, storeErr("list balances", err)
	}
	if len(existing) > 0 {
		return nil, generic.Conflict(EntityBalance, "balance "+string(existing[0].ID)+" already covers this employee, leave type and year")
	}

	b, err := NewBalance(BalanceInput{
		EmployeeID:  employeeID,
		LeaveTypeID: leaveType,
		PolicyID:    policy.ID,
		Year:        year,
	}, now)
	if err != nil {
		return nil, err
	}
	if err := st.CreateBalance(ctx, b); err != nil {
		return nil, storeErr("create balance", err)
	}
	if err := s.audit(ctx, st, now, generic.AuditOpened, EntityBalance, string(b.ID), nil, b.Snapshot()); err != nil {
		return nil, err
	}

	before := b.Snapshot()
	effective := yearStart(ctx, st, year)
	if policy.AnnualEntitlement.IsPositive() {
		grant, err := NewTransaction(TransactionInput{
			BalanceID:   b.ID,
			Type:        TxAdjustment,
			Days:        policy.AnnualEntitlement,
			Remarks:     "annual entitlement",
			ReferenceID: string(policy.ID),
			EffectiveAt: effective,
		}, now)
		if err != nil {
			return nil, err
		}
		if err := s.post(ctx, st, b, grant, now); err != nil {
			return nil, err
		}
	}
	if carried.IsPositive() {
		carry, err := NewTransaction(TransactionInput{
			BalanceID:   b.ID,
			Type:        TxCarry,
			Days:        carried,
			Remarks:     "carried over",
			EffectiveAt: effective,
		}, now)
		if err != nil {
			return nil, err
		}
		if err := s.post(ctx, st, b, carry, now); err != nil {
			return nil, err
		}
	}
	if err := s.saveBalance(ctx, st, b, before, now); err != nil {
		return nil, err
	}
	return b, nil
}

// yearStart is the first day of the configured leave year, or January 1st
// when the year is not configured.
func yearStart(ctx context.Context, st Store, year int) generic.TimePoint {
	configs, err := st.ListYearConfigs(ctx)
	if err == nil {
		for _, c := range configs {
			if c.Year == year && !c.Lifecycle.IsArchived() {
				return c.Window.Start
			}
		}
	}
	return generic.StartOfYear(year)
}

// post books tx into b and inserts it. The caller saves b.
func (s *Service) post(ctx context.Context, st Store, b *Balance, tx *Transaction, now time.Time) error {
	if err := b.Post(tx, now); err != nil {
		return err
	}
	if err := st.CreateTransaction(ctx, tx); err != nil {
		return storeErr("create transaction", err)
	}
	scopeOf(st).recordPosting(tx.Type)
	return s.audit(ctx, st, now, generic.AuditPosted, EntityTransaction, string(tx.ID), nil, tx.Snapshot())
}

// saveBalance writes b back and audits the bucket changes since before.
func (s *Service) saveBalance(ctx context.Context, st Store, b *Balance, before generic.Snapshot, now time.Time) error {
	if !b.IsConsistent() {
		return generic.PersistenceFailure("update balance", errDrift(b))
	}
	if err := rows(st.UpdateBalance(ctx, b)).check("update balance"); err != nil {
		return err
	}
	return s.audit(ctx, st, now, generic.AuditUpdated, EntityBalance, string(b.ID), before, b.Snapshot())
}

func errDrift(b *Balance) error {
	return fmt.Errorf("balance %s: remaining %s does not match buckets %s", b.ID, b.Remaining, b.Derived())
}

func (s *Service) GetBalance(ctx context.Context, id BalanceID) (*Balance, error) {
	b, err := s.store.GetBalance(ctx, id)
	return b, storeErr("get balance", err)
}

func (s *Service) ListBalances(ctx context.Context, f BalanceFilter) ([]*Balance, error) {
	bs, err := s.store.ListBalances(ctx, f)
	return bs, storeErr("list balances", err)
}

// CloseBalance freezes a balance. Closing is normally done by CloseCycle.
func (s *Service) CloseBalance(ctx context.Context, id BalanceID) (*Balance, error) {
	return s.transitionBalance(ctx, "balance.close", id, generic.AuditClosed, (*Balance).Close)
}

// ReopenBalance is the administrative escape hatch for corrections on a
// closed balance.
func (s *Service) ReopenBalance(ctx context.Context, id BalanceID) (*Balance, error) {
	return s.transitionBalance(ctx, "balance.reopen", id, generic.AuditReopened, (*Balance).Reopen)
}

func (s *Service) transitionBalance(ctx context.Context, action string, id BalanceID,
	audit generic.AuditAction, transition func(*Balance, time.Time) error) (*Balance, error) {
	var b *Balance
	err := s.run(ctx, action, func(st Store, now time.Time) error {
		var err error
		if b, err = st.GetBalance(ctx, id); err != nil {
			return storeErr("get balance", err)
		}
		before := b.Snapshot()
		if err := transition(b, now); err != nil {
			return err
		}
		if err := rows(st.UpdateBalance(ctx, b)).check("update balance"); err != nil {
			return err
		}
		return s.audit(ctx, st, now, audit, EntityBalance, string(b.ID), before, b.Snapshot())
	})
	if err != nil {
		return nil, err
	}
	s.logger(ctx).Info("balance "+string(audit), zap.String("balance_id", string(b.ID)), zap.String("status", string(b.Status)))
	return b, nil
}

// ReplayBalance rebuilds a balance from its journal and reports any drift
// between the stored buckets and the rebuilt ones.
func (s *Service) ReplayBalance(ctx context.Context, id BalanceID) (ReplayResult, error) {
	var res ReplayResult
	err := s.run(ctx, "balance.replay", func(st Store, _ time.Time) error {
		b, err := st.GetBalance(ctx, id)
		if err != nil {
			return storeErr("get balance", err)
		}
		txs, err := st.ListTransactions(ctx, id)
		if err != nil {
			return storeErr("list transactions", err)
		}
		res = ReplayBalance(b, txs)
		return nil
	})
	if err != nil {
		return ReplayResult{}, err
	}
	if !res.Consistent() {
		s.log.Warn("balance drift detected", zap.String("balance_id", string(id)), zap.Int("fields", len(res.Drift)))
	}
	return res, nil
}

// =============================================================================
// TRANSACTION USE CASES
// =============================================================================

// PostAdjustment books an administrative correction of either sign. A
// negative adjustment may take remaining below zero; only the request and
// encashment gates enforce sufficiency.
func (s *Service) PostAdjustment(ctx context.Context, id BalanceID, days generic.Amount, remarks string) (*Transaction, error) {
	if strings.TrimSpace(remarks) == "" {
		return nil, generic.Invalid("remarks", "an adjustment needs a reason")
	}
	var tx *Transaction
	err := s.run(ctx, "transaction.adjust", func(st Store, now time.Time) error {
		b, err := st.GetBalance(ctx, id)
		if err != nil {
			return storeErr("get balance", err)
		}
		if tx, err = NewTransaction(TransactionInput{
			BalanceID: b.ID,
			Type:      TxAdjustment,
			Days:      days,
			Remarks:   remarks,
		}, now); err != nil {
			return err
		}
		before := b.Snapshot()
		if err := s.post(ctx, st, b, tx, now); err != nil {
			return err
		}
		return s.saveBalance(ctx, st, b, before, now)
	})
	if err != nil {
		return nil, err
	}
	s.logger(ctx).Info("adjustment posted",
		zap.String("balance_id", string(id)),
		zap.String("transaction_id", string(tx.ID)),
		zap.Stringer("days", tx.Days))
	return tx, nil
}

func (s *Service) UpdateTransactionRemarks(ctx context.Context, id TransactionID, remarks string) (*Transaction, error) {
	var tx *Transaction
	err := s.run(ctx, "transaction.update", func(st Store, now time.Time) error {
		var err error
		if tx, err = st.GetTransaction(ctx, id); err != nil {
			return storeErr("get transaction", err)
		}
		before := tx.Snapshot()
		if err := tx.UpdateRemarks(remarks); err != nil {
			return err
		}
		if err := rows(st.UpdateTransaction(ctx, tx)).check("update transaction"); err != nil {
			return err
		}
		return s.audit(ctx, st, now, generic.AuditUpdated, EntityTransaction, string(tx.ID), before, tx.Snapshot())
	})
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// ArchiveTransaction soft-deletes an ADJUSTMENT or CARRY posting and
// reverts its effect on the balance. REQUEST and ENCASHMENT debits belong
// to their request or encashment and are reversed through those.
func (s *Service) ArchiveTransaction(ctx context.Context, id TransactionID) (*Transaction, error) {
	var tx *Transaction
	err := s.run(ctx, "transaction.archive", func(st Store, now time.Time) error {
		var err error
		if tx, err = st.GetTransaction(ctx, id); err != nil {
			return storeErr("get transaction", err)
		}
		if tx.Type == TxRequest || tx.Type == TxEncashment {
			return generic.Conflict(EntityTransaction, string(tx.Type)+" postings are reversed through their "+
				strings.ToLower(string(tx.Type)))
		}
		b, err := st.GetBalance(ctx, tx.BalanceID)
		if err != nil {
			return storeErr("get balance", err)
		}
		return s.archiveTransaction(ctx, st, b, tx, now)
	})
	if err != nil {
		return nil, err
	}
	s.logger(ctx).Info("transaction archived", zap.String("transaction_id", string(id)))
	return tx, nil
}

func (s *Service) archiveTransaction(ctx context.Context, st Store, b *Balance, tx *Transaction, now time.Time) error {
	if tx.Lifecycle.IsArchived() {
		return generic.Conflict(EntityTransaction, "already archived")
	}
	balBefore, txBefore := b.Snapshot(), tx.Snapshot()
	if err := b.Revert(tx, now); err != nil {
		return err
	}
	if err := tx.Lifecycle.Archive(EntityTransaction, now); err != nil {
		return err
	}
	if err := rows(st.UpdateTransaction(ctx, tx)).check("update transaction"); err != nil {
		return err
	}
	if err := s.audit(ctx, st, now, generic.AuditArchived, EntityTransaction, string(tx.ID), txBefore, tx.Snapshot()); err != nil {
		return err
	}
	return s.saveBalance(ctx, st, b, balBefore, now)
}

func (s *Service) ListTransactions(ctx context.Context, id BalanceID) ([]*Transaction, error) {
	if _, err := s.store.GetBalance(ctx, id); err != nil {
		return nil, storeErr("get balance", err)
	}
	txs, err := s.store.ListTransactions(ctx, id)
	return txs, storeErr("list transactions", err)
}
