package leave

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warp/leave-ledger/generic"
)

// =============================================================================
// SERVICE - Transactional orchestration of the leave aggregates
// =============================================================================

// Service is the entry point for every leave use case. Each mutating method
// runs one store transaction that:
//   - reads the aggregates it needs through the transaction handle
//   - lets the aggregates decide (they return taxonomy errors)
//   - writes them back, failing on zero affected rows
//   - appends one audit entry per changed record
//
// If ANY step fails, ALL changes are rolled back.
type Service struct {
	store   TxStore
	clock   generic.Clock
	log     *zap.Logger
	metrics *Metrics
	rules   PolicyActivationService
	gate    AdmissionGate
}

type Option func(*Service)

func WithClock(c generic.Clock) Option { return func(s *Service) { s.clock = c } }

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

func WithMetrics(m *Metrics) Option { return func(s *Service) { s.metrics = m } }

func NewService(store TxStore, opts ...Option) *Service {
	s := &Service{
		store: store,
		clock: generic.SystemClock{},
		log:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Today is the organization-local calendar date.
func (s *Service) Today() generic.TimePoint { return generic.Today(s.clock) }

// =============================================================================
// ACTOR - Who performs a mutation
// =============================================================================

type actorKey struct{}

// SystemActor is recorded when no actor is attached to the context.
const SystemActor = "system"

// WithActor attaches the acting user's identity to ctx for the audit trail.
func WithActor(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, actorKey{}, actorID)
}

func ActorFrom(ctx context.Context) string {
	if id, ok := ctx.Value(actorKey{}).(string); ok && id != "" {
		return id
	}
	return SystemActor
}

// =============================================================================
// PLUMBING
// =============================================================================

// run executes fn in one store transaction and records its outcome.
func (s *Service) run(ctx context.Context, action string, fn func(st Store, now time.Time) error) error {
	start := time.Now()
	now := s.clock.Now()
	var scope *txScope
	err := s.store.RunInTransaction(ctx, action, func(st Store) error {
		// A retried attempt starts from an empty scope.
		scope = &txScope{Store: st}
		return fn(scope, now)
	})
	s.flush(scope, err)

	outcome := "committed"
	if err != nil {
		outcome = string(generic.KindOf(err))
	}
	s.metrics.ObserveTx(action, outcome, time.Since(start))

	if err != nil {
		fields := []zap.Field{
			zap.String("action", action),
			zap.String("actor", ActorFrom(ctx)),
			zap.String("kind", outcome),
			zap.Error(err),
		}
		if generic.IsClientError(err) {
			s.log.Debug("leave operation rejected", fields...)
		} else {
			s.log.Error("leave operation failed", fields...)
		}
	}
	return err
}

// txScope is the Store handle passed to a use case. Counters for postings
// and admissions are buffered on it and emitted by run once the outcome of
// the last attempt is known, so rolled-back or retried work is not counted.
type txScope struct {
	Store
	postings  []TransactionType
	gated     bool
	rejection error
}

func scopeOf(st Store) *txScope {
	sc, _ := st.(*txScope)
	return sc
}

func (sc *txScope) recordPosting(t TransactionType) {
	if sc != nil {
		sc.postings = append(sc.postings, t)
	}
}

func (sc *txScope) recordAdmission(err error) {
	if sc != nil {
		sc.gated = true
		sc.rejection = err
	}
}

// flush emits the counters of the last attempt. Postings count only once
// committed; a gate rejection counts even though it rolls the attempt back.
func (s *Service) flush(sc *txScope, err error) {
	if sc == nil {
		return
	}
	if sc.gated {
		switch {
		case sc.rejection != nil:
			s.metrics.IncrementAdmission(admissionOutcome(sc.rejection))
		case err == nil:
			s.metrics.IncrementAdmission(admissionOutcome(nil))
		}
	}
	if err != nil {
		return
	}
	for _, t := range sc.postings {
		s.metrics.IncrementPosting(t)
	}
}

func (s *Service) logger(ctx context.Context) *zap.Logger {
	return s.log.With(zap.String("actor", ActorFrom(ctx)))
}

// storeErr keeps taxonomy errors from the store (NotFound, Conflict on a
// duplicate key) and classifies everything else as a persistence failure.
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var ge *generic.Error
	if errors.As(err, &ge) {
		return err
	}
	return generic.PersistenceFailure(op, err)
}

// writeResult is the outcome of an Update* call.
type writeResult struct {
	n   int64
	err error
}

func rows(n int64, err error) writeResult { return writeResult{n: n, err: err} }

// check turns the result into an error. Zero rows after a successful read
// means the row changed underneath the transaction.
func (r writeResult) check(op string) error {
	if r.err != nil {
		return storeErr(op, r.err)
	}
	if r.n == 0 {
		return generic.PersistenceFailure(op, errors.New("no rows affected"))
	}
	return nil
}

func (s *Service) audit(ctx context.Context, st Store, now time.Time, action generic.AuditAction,
	entity, id string, before, after generic.Snapshot) error {
	entry := generic.AuditEntry{
		ID:        uuid.NewString(),
		Timestamp: now,
		ActorID:   ActorFrom(ctx),
		Action:    action,
		Entity:    entity,
		EntityID:  id,
		Changes:   generic.Diff(before, after),
	}
	return storeErr("append audit", st.AppendAudit(ctx, entry))
}

// ListAudit returns audit entries matching filter, newest last.
func (s *Service) ListAudit(ctx context.Context, filter generic.AuditFilter) ([]generic.AuditEntry, error) {
	entries, err := s.store.QueryAudit(ctx, filter)
	return entries, storeErr("query audit", err)
}

// =============================================================================
// LEAVE TYPES - Reference data
// =============================================================================

// CreateLeaveType registers a leave type. Used by seeding and tests; leave
// type administration otherwise lives outside the core.
func (s *Service) CreateLeaveType(ctx context.Context, id LeaveTypeID, name string) (*LeaveType, error) {
	if id == "" {
		return nil, generic.Invalid("leave_type_id", "is required")
	}
	lt := &LeaveType{ID: id, Name: name}
	err := s.run(ctx, "leave_type.create", func(st Store, now time.Time) error {
		if err := st.CreateLeaveType(ctx, lt); err != nil {
			return storeErr("create leave type", err)
		}
		return s.audit(ctx, st, now, generic.AuditCreated, EntityLeaveType, string(lt.ID), nil,
			generic.Snapshot{"name": lt.Name})
	})
	if err != nil {
		return nil, err
	}
	return lt, nil
}

func (s *Service) ListLeaveTypes(ctx context.Context) ([]*LeaveType, error) {
	types, err := s.store.ListLeaveTypes(ctx)
	return types, storeErr("list leave types", err)
}

// requireLeaveType fails with NotFound when the type is missing or archived.
func requireLeaveType(ctx context.Context, st Store, id LeaveTypeID) error {
	lt, err := st.GetLeaveType(ctx, id)
	if err != nil {
		return storeErr("get leave type", err)
	}
	if lt.Archived {
		return generic.NotFound(EntityLeaveType, id)
	}
	return nil
}
