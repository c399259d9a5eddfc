package leave

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/warp/leave-ledger/generic"
)

// =============================================================================
// POLICY USE CASES
// =============================================================================

func (s *Service) CreatePolicy(ctx context.Context, in PolicyInput) (*Policy, error) {
	var p *Policy
	err := s.run(ctx, "policy.create", func(st Store, now time.Time) error {
		if err := requireLeaveType(ctx, st, in.LeaveTypeID); err != nil {
			return err
		}
		var err error
		if p, err = NewPolicy(in, now); err != nil {
			return err
		}
		if err := st.CreatePolicy(ctx, p); err != nil {
			return storeErr("create policy", err)
		}
		return s.audit(ctx, st, now, generic.AuditCreated, EntityPolicy, string(p.ID), nil, p.Snapshot())
	})
	if err != nil {
		return nil, err
	}
	s.logger(ctx).Info("policy created",
		zap.String("policy_id", string(p.ID)),
		zap.String("leave_type_id", string(p.LeaveTypeID)))
	return p, nil
}

func (s *Service) UpdatePolicy(ctx context.Context, id PolicyID, patch PolicyPatch) (*Policy, error) {
	var p *Policy
	err := s.run(ctx, "policy.update", func(st Store, now time.Time) error {
		var err error
		if p, err = st.GetPolicy(ctx, id); err != nil {
			return storeErr("get policy", err)
		}
		before := p.Snapshot()
		if err := p.Update(patch, now); err != nil {
			return err
		}
		if err := rows(st.UpdatePolicy(ctx, p)).check("update policy"); err != nil {
			return err
		}
		return s.audit(ctx, st, now, generic.AuditUpdated, EntityPolicy, string(p.ID), before, p.Snapshot())
	})
	if err != nil {
		return nil, err
	}
	s.logger(ctx).Info("policy updated", zap.String("policy_id", string(p.ID)), zap.Int("version", p.Version))
	return p, nil
}

// ActivatePolicy makes a DRAFT policy the single ACTIVE policy of its leave
// type. The current ACTIVE policy, if any, is retired in the same
// transaction with its expiry set by CanActivatePolicy.
func (s *Service) ActivatePolicy(ctx context.Context, id PolicyID) (*Policy, error) {
	var (
		p       *Policy
		retired *Policy
	)
	err := s.run(ctx, "policy.activate", func(st Store, now time.Time) error {
		var err error
		if p, err = st.GetPolicy(ctx, id); err != nil {
			return storeErr("get policy", err)
		}
		if err := requireLeaveType(ctx, st, p.LeaveTypeID); err != nil {
			return err
		}
		existing, err := activePolicy(ctx, st, p.LeaveTypeID)
		if err != nil {
			return err
		}

		decision := s.rules.CanActivatePolicy(p, existing, generic.DateOf(now))
		if !decision.CanActivate {
			return generic.Conflict(EntityPolicy, decision.Reason)
		}

		// Retire first so the store never holds two ACTIVE rows.
		if decision.ShouldRetireExisting {
			if err := s.retire(ctx, st, existing, decision.RetireExpiry, now); err != nil {
				return err
			}
			retired = existing
		}

		before := p.Snapshot()
		if err := p.Activate(now); err != nil {
			return err
		}
		if err := rows(st.UpdatePolicy(ctx, p)).check("update policy"); err != nil {
			return err
		}
		return s.audit(ctx, st, now, generic.AuditActivated, EntityPolicy, string(p.ID), before, p.Snapshot())
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncrementActivation()
	log := s.logger(ctx).With(zap.String("policy_id", string(p.ID)))
	if retired != nil {
		s.metrics.IncrementRetirement("replaced")
		log.Info("policy activated",
			zap.String("retired_policy_id", string(retired.ID)),
			zap.String("retired_expiry", retired.ExpiryDate.String()))
	} else {
		log.Info("policy activated")
	}
	return p, nil
}

// RetirePolicy retires an ACTIVE policy explicitly. Its expiry becomes
// today unless an earlier expiry was already set.
func (s *Service) RetirePolicy(ctx context.Context, id PolicyID) (*Policy, error) {
	var p *Policy
	err := s.run(ctx, "policy.retire", func(st Store, now time.Time) error {
		var err error
		if p, err = st.GetPolicy(ctx, id); err != nil {
			return storeErr("get policy", err)
		}
		expiry := generic.DateOf(now)
		if p.ExpiryDate != nil && p.ExpiryDate.Before(expiry) {
			expiry = *p.ExpiryDate
		}
		return s.retire(ctx, st, p, expiry, now)
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncrementRetirement("explicit")
	s.logger(ctx).Info("policy retired", zap.String("policy_id", string(p.ID)))
	return p, nil
}

// RetireExpiredPolicies retires every ACTIVE policy whose expiry date has
// passed. It returns the retired policies.
func (s *Service) RetireExpiredPolicies(ctx context.Context) ([]*Policy, error) {
	var retired []*Policy
	err := s.run(ctx, "policy.retire_expired", func(st Store, now time.Time) error {
		retired = nil
		active, err := st.ListPolicies(ctx, PolicyFilter{Statuses: []PolicyStatus{PolicyActive}})
		if err != nil {
			return storeErr("list policies", err)
		}
		today := generic.DateOf(now)
		for _, p := range active {
			if !p.IsExpired(today) {
				continue
			}
			if err := s.retire(ctx, st, p, *p.ExpiryDate, now); err != nil {
				return err
			}
			retired = append(retired, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, p := range retired {
		s.metrics.IncrementRetirement("expired")
		s.log.Info("policy expired", zap.String("policy_id", string(p.ID)), zap.String("expiry", p.ExpiryDate.String()))
	}
	return retired, nil
}

func (s *Service) retire(ctx context.Context, st Store, p *Policy, expiry generic.TimePoint, now time.Time) error {
	before := p.Snapshot()
	if err := p.Retire(expiry, now); err != nil {
		return err
	}
	if err := rows(st.UpdatePolicy(ctx, p)).check("update policy"); err != nil {
		return err
	}
	return s.audit(ctx, st, now, generic.AuditRetired, EntityPolicy, string(p.ID), before, p.Snapshot())
}

func (s *Service) GetPolicy(ctx context.Context, id PolicyID) (*Policy, error) {
	p, err := s.store.GetPolicy(ctx, id)
	return p, storeErr("get policy", err)
}

func (s *Service) ListPolicies(ctx context.Context, f PolicyFilter) ([]*Policy, error) {
	ps, err := s.store.ListPolicies(ctx, f)
	return ps, storeErr("list policies", err)
}

// activePolicy returns the ACTIVE policy of a leave type, or nil.
func activePolicy(ctx context.Context, st Store, leaveType LeaveTypeID) (*Policy, error) {
	active, err := st.ListPolicies(ctx, PolicyFilter{
		LeaveTypeID: leaveType,
		Statuses:    []PolicyStatus{PolicyActive},
	})
	if err != nil {
		return nil, storeErr("list policies", err)
	}
	switch len(active) {
	case 0:
		return nil, nil
	case 1:
		return active[0], nil
	default:
		return nil, generic.PersistenceFailure("list policies",
			errors.New("leave type "+string(leaveType)+" has more than one ACTIVE policy"))
	}
}
