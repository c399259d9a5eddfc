package leave

import (
	"context"
	"errors"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/warp/leave-ledger/generic"
)

// =============================================================================
// REQUEST USE CASES
// =============================================================================

// SubmitRequest creates a PENDING request after the admission gate. The
// balance, the employee's blocking requests and the insert all share one
// transaction, so two overlapping submissions cannot both be admitted.
func (s *Service) SubmitRequest(ctx context.Context, in RequestInput) (*Request, error) {
	var r *Request
	err := s.run(ctx, "request.submit", func(st Store, now time.Time) error {
		b, err := st.GetBalance(ctx, in.BalanceID)
		if err != nil {
			return storeErr("get balance", err)
		}
		if !b.Writable() {
			return generic.Conflict(EntityBalance, "balance "+string(b.ID)+" is closed")
		}
		policy, err := st.GetPolicy(ctx, b.PolicyID)
		if err != nil {
			return storeErr("get policy", err)
		}
		if r, err = NewRequest(in, b, policy, now); err != nil {
			return err
		}
		if err := checkWithinYear(ctx, st, r, b.Year); err != nil {
			return err
		}
		if err := s.admit(ctx, st, r, b); err != nil {
			return err
		}
		if err := st.CreateRequest(ctx, r); err != nil {
			return storeErr("create request", err)
		}
		return s.audit(ctx, st, now, generic.AuditCreated, EntityRequest, string(r.ID), nil, r.Snapshot())
	})
	if err != nil {
		return nil, err
	}
	s.logger(ctx).Info("request submitted",
		zap.String("request_id", string(r.ID)),
		zap.String("employee_id", string(r.EmployeeID)),
		zap.Stringer("window", r.Window),
		zap.Stringer("days", r.TotalDays))
	return r, nil
}

// ApproveRequest re-runs the admission gate against the current balance and
// posts the REQUEST debit of -total_days.
func (s *Service) ApproveRequest(ctx context.Context, id RequestID, remarks string) (*Request, error) {
	var r *Request
	err := s.run(ctx, "request.approve", func(st Store, now time.Time) error {
		var err error
		if r, err = st.GetRequest(ctx, id); err != nil {
			return storeErr("get request", err)
		}
		if r.Lifecycle.IsArchived() {
			return generic.NotFound(EntityRequest, id)
		}
		b, err := st.GetBalance(ctx, r.BalanceID)
		if err != nil {
			return storeErr("get balance", err)
		}
		if r.Status != RequestPending {
			return generic.Conflict(EntityRequest, "only a PENDING request can be approved, request is "+string(r.Status))
		}
		if err := s.admit(ctx, st, r, b); err != nil {
			return err
		}

		before := r.Snapshot()
		if err := r.Approve(remarks, now); err != nil {
			return err
		}
		debit, err := NewTransaction(TransactionInput{
			BalanceID:   b.ID,
			Type:        TxRequest,
			Days:        r.TotalDays.Neg(),
			Remarks:     "leave " + r.Window.String(),
			ReferenceID: string(r.ID),
			EffectiveAt: r.Window.Start,
		}, now)
		if err != nil {
			return err
		}
		balBefore := b.Snapshot()
		if err := s.post(ctx, st, b, debit, now); err != nil {
			return err
		}
		if err := s.saveBalance(ctx, st, b, balBefore, now); err != nil {
			return err
		}
		if err := rows(st.UpdateRequest(ctx, r)).check("update request"); err != nil {
			return err
		}
		return s.audit(ctx, st, now, generic.AuditApproved, EntityRequest, string(r.ID), before, r.Snapshot())
	})
	if err != nil {
		return nil, err
	}
	s.logger(ctx).Info("request approved", zap.String("request_id", string(r.ID)))
	return r, nil
}

func (s *Service) RejectRequest(ctx context.Context, id RequestID, remarks string) (*Request, error) {
	var r *Request
	err := s.run(ctx, "request.reject", func(st Store, now time.Time) error {
		var err error
		if r, err = st.GetRequest(ctx, id); err != nil {
			return storeErr("get request", err)
		}
		if r.Lifecycle.IsArchived() {
			return generic.NotFound(EntityRequest, id)
		}
		before := r.Snapshot()
		if err := r.Reject(remarks, now); err != nil {
			return err
		}
		if err := rows(st.UpdateRequest(ctx, r)).check("update request"); err != nil {
			return err
		}
		return s.audit(ctx, st, now, generic.AuditRejected, EntityRequest, string(r.ID), before, r.Snapshot())
	})
	if err != nil {
		return nil, err
	}
	s.logger(ctx).Info("request rejected", zap.String("request_id", string(r.ID)))
	return r, nil
}

// CancelRequest withdraws a request. An APPROVED request's debit is
// reversed by a positive ADJUSTMENT; the original posting stays in the
// journal.
func (s *Service) CancelRequest(ctx context.Context, id RequestID, remarks string) (*Request, error) {
	var r *Request
	err := s.run(ctx, "request.cancel", func(st Store, now time.Time) error {
		var err error
		if r, err = st.GetRequest(ctx, id); err != nil {
			return storeErr("get request", err)
		}
		if r.Lifecycle.IsArchived() {
			return generic.NotFound(EntityRequest, id)
		}
		before := r.Snapshot()
		wasApproved, err := r.Cancel(remarks, now)
		if err != nil {
			return err
		}
		if wasApproved {
			b, err := st.GetBalance(ctx, r.BalanceID)
			if err != nil {
				return storeErr("get balance", err)
			}
			reversal, err := NewTransaction(TransactionInput{
				BalanceID:   b.ID,
				Type:        TxAdjustment,
				Days:        r.TotalDays,
				Remarks:     "cancellation of request " + string(r.ID),
				ReferenceID: string(r.ID),
				EffectiveAt: generic.DateOf(now),
			}, now)
			if err != nil {
				return err
			}
			balBefore := b.Snapshot()
			if err := s.post(ctx, st, b, reversal, now); err != nil {
				return err
			}
			if err := s.saveBalance(ctx, st, b, balBefore, now); err != nil {
				return err
			}
		}
		if err := rows(st.UpdateRequest(ctx, r)).check("update request"); err != nil {
			return err
		}
		return s.audit(ctx, st, now, generic.AuditCancelled, EntityRequest, string(r.ID), before, r.Snapshot())
	})
	if err != nil {
		return nil, err
	}
	s.logger(ctx).Info("request cancelled", zap.String("request_id", string(r.ID)))
	return r, nil
}

func (s *Service) GetRequest(ctx context.Context, id RequestID) (*Request, error) {
	r, err := s.store.GetRequest(ctx, id)
	return r, storeErr("get request", err)
}

func (s *Service) ListRequests(ctx context.Context, f RequestFilter) ([]*Request, error) {
	rs, err := s.store.ListRequests(ctx, f)
	return rs, storeErr("list requests", err)
}

// admit loads the employee's blocking requests and runs the gate.
func (s *Service) admit(ctx context.Context, st Store, r *Request, b *Balance) error {
	existing, err := st.ListRequests(ctx, RequestFilter{
		EmployeeID: r.EmployeeID,
		Statuses:   []RequestStatus{RequestPending, RequestApproved},
	})
	if err != nil {
		return storeErr("list requests", err)
	}
	err = s.gate.Admit(r, b, existing)
	scopeOf(st).recordAdmission(err)
	return err
}

func admissionOutcome(err error) string {
	if err == nil {
		return "admitted"
	}
	return string(generic.KindOf(err))
}

// checkWithinYear rejects a window that leaves the balance's leave year: the
// configured window when one exists, otherwise the calendar year.
func checkWithinYear(ctx context.Context, st Store, r *Request, year int) error {
	configs, err := st.ListYearConfigs(ctx)
	if err != nil {
		return storeErr("list year configurations", err)
	}
	window := generic.Period{Start: generic.StartOfYear(year), End: generic.EndOfYear(year)}
	for _, c := range configs {
		if c.Year == year && !c.Lifecycle.IsArchived() {
			window = c.Window
			break
		}
	}
	if !window.Contains(r.Window.Start) || !window.Contains(r.Window.End) {
		return generic.Invalid("start_date", "window "+r.Window.String()+
			" falls outside leave year "+strconv.Itoa(year)+" "+window.String())
	}
	return nil
}

// IsAdmissionRejection reports whether err came from the admission gate.
func IsAdmissionRejection(err error) bool {
	return errors.Is(err, generic.ErrInsufficientBalance) || errors.Is(err, generic.ErrOverlappingRequest)
}
