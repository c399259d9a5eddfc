package leave

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/warp/leave-ledger/generic"
)

// =============================================================================
// ENCASHMENT USE CASES
// =============================================================================

func (s *Service) CreateEncashment(ctx context.Context, in EncashmentInput) (*Encashment, error) {
	var e *Encashment
	err := s.run(ctx, "encashment.create", func(st Store, now time.Time) error {
		var err error
		if e, err = NewEncashment(in, now); err != nil {
			return err
		}
		b, err := st.GetBalance(ctx, e.BalanceID)
		if err != nil {
			return storeErr("get balance", err)
		}
		if b.EmployeeID != e.EmployeeID {
			return generic.Invalid("balance_id", "balance "+string(b.ID)+" belongs to another employee")
		}
		if !b.Writable() {
			return generic.Conflict(EntityBalance, "balance "+string(b.ID)+" is closed")
		}
		if err := s.checkEncashable(ctx, st, e, b); err != nil {
			return err
		}
		if in.DebitOnCreate {
			if err := s.postEncashmentDebit(ctx, st, e, b, now); err != nil {
				return err
			}
		}
		if err := st.CreateEncashment(ctx, e); err != nil {
			return storeErr("create encashment", err)
		}
		return s.audit(ctx, st, now, generic.AuditCreated, EntityEncashment, string(e.ID), nil, e.Snapshot())
	})
	if err != nil {
		return nil, err
	}
	s.logger(ctx).Info("encashment created",
		zap.String("encashment_id", string(e.ID)),
		zap.Stringer("days", e.TotalDays),
		zap.Bool("debit_posted", e.DebitPosted))
	return e, nil
}

func (s *Service) UpdateEncashment(ctx context.Context, id EncashmentID, patch EncashmentPatch) (*Encashment, error) {
	var e *Encashment
	err := s.run(ctx, "encashment.update", func(st Store, now time.Time) error {
		var err error
		if e, err = st.GetEncashment(ctx, id); err != nil {
			return storeErr("get encashment", err)
		}
		before := e.Snapshot()
		if err := e.Update(patch, now); err != nil {
			return err
		}
		if patch.TotalDays.IsSet() {
			b, err := st.GetBalance(ctx, e.BalanceID)
			if err != nil {
				return storeErr("get balance", err)
			}
			if err := s.checkEncashable(ctx, st, e, b); err != nil {
				return err
			}
		}
		if err := rows(st.UpdateEncashment(ctx, e)).check("update encashment"); err != nil {
			return err
		}
		return s.audit(ctx, st, now, generic.AuditUpdated, EntityEncashment, string(e.ID), before, e.Snapshot())
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}

// ArchiveEncashment soft-deletes a PENDING encashment. A debit posted at
// creation is archived with it, which restores the days.
func (s *Service) ArchiveEncashment(ctx context.Context, id EncashmentID) (*Encashment, error) {
	var e *Encashment
	err := s.run(ctx, "encashment.archive", func(st Store, now time.Time) error {
		var err error
		if e, err = st.GetEncashment(ctx, id); err != nil {
			return storeErr("get encashment", err)
		}
		before := e.Snapshot()
		if err := e.Archive(now); err != nil {
			return err
		}
		if e.DebitPosted {
			if err := s.reverseEncashmentDebit(ctx, st, e, now); err != nil {
				return err
			}
		}
		if err := rows(st.UpdateEncashment(ctx, e)).check("update encashment"); err != nil {
			return err
		}
		return s.audit(ctx, st, now, generic.AuditArchived, EntityEncashment, string(e.ID), before, e.Snapshot())
	})
	if err != nil {
		return nil, err
	}
	s.logger(ctx).Info("encashment archived", zap.String("encashment_id", string(e.ID)))
	return e, nil
}

// MarkEncashmentPaid settles a PENDING encashment. When the debit was not
// posted at creation it is posted now, behind the same sufficiency check
// as a request.
func (s *Service) MarkEncashmentPaid(ctx context.Context, id EncashmentID, payrollReference string) (*Encashment, error) {
	var e *Encashment
	err := s.run(ctx, "encashment.mark_paid", func(st Store, now time.Time) error {
		var err error
		if e, err = st.GetEncashment(ctx, id); err != nil {
			return storeErr("get encashment", err)
		}
		before := e.Snapshot()
		if err := e.MarkAsPaid(payrollReference, now); err != nil {
			return err
		}
		if !e.DebitPosted {
			b, err := st.GetBalance(ctx, e.BalanceID)
			if err != nil {
				return storeErr("get balance", err)
			}
			if err := s.postEncashmentDebit(ctx, st, e, b, now); err != nil {
				return err
			}
		}
		if err := rows(st.UpdateEncashment(ctx, e)).check("update encashment"); err != nil {
			return err
		}
		return s.audit(ctx, st, now, generic.AuditPaid, EntityEncashment, string(e.ID), before, e.Snapshot())
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncrementEncashmentPaid()
	s.logger(ctx).Info("encashment paid",
		zap.String("encashment_id", string(e.ID)),
		zap.String("payroll_reference", e.PayrollReference))
	return e, nil
}

func (s *Service) GetEncashment(ctx context.Context, id EncashmentID) (*Encashment, error) {
	e, err := s.store.GetEncashment(ctx, id)
	return e, storeErr("get encashment", err)
}

func (s *Service) ListEncashments(ctx context.Context, f EncashmentFilter) ([]*Encashment, error) {
	es, err := s.store.ListEncashments(ctx, f)
	return es, storeErr("list encashments", err)
}

// checkEncashable verifies e against the balance and the encash limit of
// the balance's policy. Days reserved by other PENDING encashments whose
// debit is not yet posted count against both.
func (s *Service) checkEncashable(ctx context.Context, st Store, e *Encashment, b *Balance) error {
	others, err := st.ListEncashments(ctx, EncashmentFilter{
		BalanceID: b.ID,
		Statuses:  []EncashmentStatus{EncashmentPending},
	})
	if err != nil {
		return storeErr("list encashments", err)
	}
	reserved := generic.ZeroDays()
	for _, o := range others {
		if o.ID == e.ID || o.DebitPosted || o.Lifecycle.IsArchived() {
			continue
		}
		reserved = reserved.Add(o.TotalDays)
	}

	policy, err := st.GetPolicy(ctx, b.PolicyID)
	if err != nil {
		return storeErr("get policy", err)
	}
	if policy.EncashLimit.IsPositive() {
		total := b.Encashed.Add(reserved).Add(e.TotalDays)
		if total.GreaterThan(policy.EncashLimit) {
			return generic.Invalid("total_days", "encashing "+e.TotalDays.String()+
				" days would exceed the policy encash limit of "+policy.EncashLimit.String())
		}
	}
	if e.DebitPosted {
		return nil
	}
	return b.AssertSufficient(reserved.Add(e.TotalDays))
}

func (s *Service) postEncashmentDebit(ctx context.Context, st Store, e *Encashment, b *Balance, now time.Time) error {
	debit, err := e.Debit(now)
	if err != nil {
		return err
	}
	before := b.Snapshot()
	if err := s.post(ctx, st, b, debit, now); err != nil {
		return err
	}
	if err := s.saveBalance(ctx, st, b, before, now); err != nil {
		return err
	}
	e.DebitPosted = true
	return nil
}

func (s *Service) reverseEncashmentDebit(ctx context.Context, st Store, e *Encashment, now time.Time) error {
	b, err := st.GetBalance(ctx, e.BalanceID)
	if err != nil {
		return storeErr("get balance", err)
	}
	txs, err := st.ListTransactions(ctx, b.ID)
	if err != nil {
		return storeErr("list transactions", err)
	}
	for _, tx := range txs {
		if tx.Type == TxEncashment && tx.ReferenceID == string(e.ID) && tx.Counts() {
			if err := s.archiveTransaction(ctx, st, b, tx, now); err != nil {
				return err
			}
		}
	}
	e.DebitPosted = false
	return nil
}
