// Package memory provides an in-memory leave.TxStore for tests and local runs.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/warp/leave-ledger/generic"
	"github.com/warp/leave-ledger/leave"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Store keeps every aggregate as a value copy, so a caller mutating a
// returned pointer changes nothing until it calls Update*.
type Store struct {
	*view
}

func New() *Store {
	return &Store{view: &view{d: newData(), mu: &sync.Mutex{}}}
}

// RunInTransaction executes fn within a transaction.
// For the memory store this is a global lock plus snapshot and rollback on
// error, which makes every transaction serializable.
func (s *Store) RunInTransaction(ctx context.Context, _ string, fn func(leave.Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.d.clone()
	tx := &view{d: s.d, inTx: true}
	if err := fn(tx); err != nil {
		*s.d = snapshot
		return err
	}
	return nil
}

func (s *Store) Close() error { return nil }

// Reset drops every row, audit entries included.
func (s *Store) Reset(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	*s.d = *newData()
	return nil
}

// AuditEntries returns every audit entry in append order.
func (s *Store) AuditEntries() []generic.AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.d.audit)
}

// =============================================================================
// DATA
// =============================================================================

type data struct {
	leaveTypes   table[leave.LeaveTypeID, leave.LeaveType]
	policies     table[leave.PolicyID, leave.Policy]
	balances     table[leave.BalanceID, leave.Balance]
	transactions table[leave.TransactionID, leave.Transaction]
	requests     table[leave.RequestID, leave.Request]
	encashments  table[leave.EncashmentID, leave.Encashment]
	cycles       table[leave.CycleID, leave.Cycle]
	yearConfigs  table[leave.YearConfigID, leave.YearConfiguration]
	audit        []generic.AuditEntry
}

func newData() *data {
	return &data{
		leaveTypes:   newTable[leave.LeaveTypeID, leave.LeaveType](leave.EntityLeaveType),
		policies:     newTable[leave.PolicyID, leave.Policy](leave.EntityPolicy),
		balances:     newTable[leave.BalanceID, leave.Balance](leave.EntityBalance),
		transactions: newTable[leave.TransactionID, leave.Transaction](leave.EntityTransaction),
		requests:     newTable[leave.RequestID, leave.Request](leave.EntityRequest),
		encashments:  newTable[leave.EncashmentID, leave.Encashment](leave.EntityEncashment),
		cycles:       newTable[leave.CycleID, leave.Cycle](leave.EntityCycle),
		yearConfigs:  newTable[leave.YearConfigID, leave.YearConfiguration](leave.EntityYearConfig),
	}
}

func (d *data) clone() data {
	return data{
		leaveTypes:   d.leaveTypes.clone(),
		policies:     d.policies.clone(),
		balances:     d.balances.clone(),
		transactions: d.transactions.clone(),
		requests:     d.requests.clone(),
		encashments:  d.encashments.clone(),
		cycles:       d.cycles.clone(),
		yearConfigs:  d.yearConfigs.clone(),
		audit:        slices.Clone(d.audit),
	}
}

// table is one entity's rows in insertion order.
type table[K comparable, V any] struct {
	entity string
	rows   map[K]V
	order  []K
}

func newTable[K comparable, V any](entity string) table[K, V] {
	return table[K, V]{entity: entity, rows: make(map[K]V)}
}

func (t *table[K, V]) insert(id K, v V) error {
	if _, ok := t.rows[id]; ok {
		return generic.Conflict(t.entity, "duplicate id")
	}
	t.rows[id] = v
	t.order = append(t.order, id)
	return nil
}

func (t *table[K, V]) get(id K) (*V, error) {
	v, ok := t.rows[id]
	if !ok {
		return nil, generic.NotFound(t.entity, id)
	}
	return &v, nil
}

func (t *table[K, V]) update(id K, v V) int64 {
	if _, ok := t.rows[id]; !ok {
		return 0
	}
	t.rows[id] = v
	return 1
}

func (t *table[K, V]) list(keep func(*V) bool) []*V {
	var out []*V
	for _, id := range t.order {
		v := t.rows[id]
		if keep == nil || keep(&v) {
			out = append(out, &v)
		}
	}
	return out
}

func (t *table[K, V]) clone() table[K, V] {
	rows := make(map[K]V, len(t.rows))
	for k, v := range t.rows {
		rows[k] = v
	}
	return table[K, V]{entity: t.entity, rows: rows, order: slices.Clone(t.order)}
}

// =============================================================================
// VIEW - leave.Store over data
// =============================================================================

// view locks per call unless it is the handle of a running transaction,
// which already holds the lock.
type view struct {
	d    *data
	mu   *sync.Mutex
	inTx bool
}

func (v *view) guard() func() {
	if v.inTx {
		return func() {}
	}
	v.mu.Lock()
	return v.mu.Unlock
}

func statusIn[S comparable](s S, set []S) bool {
	return len(set) == 0 || slices.Contains(set, s)
}

// Leave types

func (v *view) CreateLeaveType(_ context.Context, lt *leave.LeaveType) error {
	defer v.guard()()
	return v.d.leaveTypes.insert(lt.ID, *lt)
}

func (v *view) GetLeaveType(_ context.Context, id leave.LeaveTypeID) (*leave.LeaveType, error) {
	defer v.guard()()
	return v.d.leaveTypes.get(id)
}

func (v *view) ListLeaveTypes(_ context.Context) ([]*leave.LeaveType, error) {
	defer v.guard()()
	return v.d.leaveTypes.list(nil), nil
}

// Policies

func (v *view) CreatePolicy(_ context.Context, p *leave.Policy) error {
	defer v.guard()()
	if err := v.checkSingleActive(p); err != nil {
		return err
	}
	return v.d.policies.insert(p.ID, *p)
}

func (v *view) GetPolicy(_ context.Context, id leave.PolicyID) (*leave.Policy, error) {
	defer v.guard()()
	return v.d.policies.get(id)
}

func (v *view) UpdatePolicy(_ context.Context, p *leave.Policy) (int64, error) {
	defer v.guard()()
	if err := v.checkSingleActive(p); err != nil {
		return 0, err
	}
	return v.d.policies.update(p.ID, *p), nil
}

// checkSingleActive mirrors the partial unique index of the SQL stores.
func (v *view) checkSingleActive(p *leave.Policy) error {
	if p.Status != leave.PolicyActive {
		return nil
	}
	for _, other := range v.d.policies.rows {
		if other.ID != p.ID && other.LeaveTypeID == p.LeaveTypeID && other.Status == leave.PolicyActive {
			return generic.Conflict(leave.EntityPolicy, "leave type "+string(p.LeaveTypeID)+" already has an ACTIVE policy")
		}
	}
	return nil
}

func (v *view) ListPolicies(_ context.Context, f leave.PolicyFilter) ([]*leave.Policy, error) {
	defer v.guard()()
	return v.d.policies.list(func(p *leave.Policy) bool {
		return (f.LeaveTypeID == "" || p.LeaveTypeID == f.LeaveTypeID) && statusIn(p.Status, f.Statuses)
	}), nil
}

// Balances

func (v *view) CreateBalance(_ context.Context, b *leave.Balance) error {
	defer v.guard()()
	for _, other := range v.d.balances.rows {
		if other.EmployeeID == b.EmployeeID && other.LeaveTypeID == b.LeaveTypeID && other.Year == b.Year {
			return generic.Conflict(leave.EntityBalance, "duplicate employee, leave type and year")
		}
	}
	return v.d.balances.insert(b.ID, *b)
}

func (v *view) GetBalance(_ context.Context, id leave.BalanceID) (*leave.Balance, error) {
	defer v.guard()()
	return v.d.balances.get(id)
}

func (v *view) UpdateBalance(_ context.Context, b *leave.Balance) (int64, error) {
	defer v.guard()()
	return v.d.balances.update(b.ID, *b), nil
}

func (v *view) ListBalances(_ context.Context, f leave.BalanceFilter) ([]*leave.Balance, error) {
	defer v.guard()()
	return v.d.balances.list(func(b *leave.Balance) bool {
		return (f.EmployeeID == "" || b.EmployeeID == f.EmployeeID) &&
			(f.LeaveTypeID == "" || b.LeaveTypeID == f.LeaveTypeID) &&
			(f.Year == 0 || b.Year == f.Year) &&
			statusIn(b.Status, f.Statuses)
	}), nil
}

// Transactions

func (v *view) CreateTransaction(_ context.Context, t *leave.Transaction) error {
	defer v.guard()()
	if _, ok := v.d.balances.rows[t.BalanceID]; !ok {
		return generic.NotFound(leave.EntityBalance, t.BalanceID)
	}
	return v.d.transactions.insert(t.ID, *t)
}

func (v *view) GetTransaction(_ context.Context, id leave.TransactionID) (*leave.Transaction, error) {
	defer v.guard()()
	return v.d.transactions.get(id)
}

func (v *view) UpdateTransaction(_ context.Context, t *leave.Transaction) (int64, error) {
	defer v.guard()()
	return v.d.transactions.update(t.ID, *t), nil
}

func (v *view) ListTransactions(_ context.Context, balanceID leave.BalanceID) ([]*leave.Transaction, error) {
	defer v.guard()()
	return v.d.transactions.list(func(t *leave.Transaction) bool { return t.BalanceID == balanceID }), nil
}

// Requests

func (v *view) CreateRequest(_ context.Context, r *leave.Request) error {
	defer v.guard()()
	return v.d.requests.insert(r.ID, *r)
}

func (v *view) GetRequest(_ context.Context, id leave.RequestID) (*leave.Request, error) {
	defer v.guard()()
	return v.d.requests.get(id)
}

func (v *view) UpdateRequest(_ context.Context, r *leave.Request) (int64, error) {
	defer v.guard()()
	return v.d.requests.update(r.ID, *r), nil
}

func (v *view) ListRequests(_ context.Context, f leave.RequestFilter) ([]*leave.Request, error) {
	defer v.guard()()
	return v.d.requests.list(func(r *leave.Request) bool {
		return (f.EmployeeID == "" || r.EmployeeID == f.EmployeeID) &&
			(f.BalanceID == "" || r.BalanceID == f.BalanceID) &&
			statusIn(r.Status, f.Statuses)
	}), nil
}

// Encashments

func (v *view) CreateEncashment(_ context.Context, e *leave.Encashment) error {
	defer v.guard()()
	return v.d.encashments.insert(e.ID, *e)
}

func (v *view) GetEncashment(_ context.Context, id leave.EncashmentID) (*leave.Encashment, error) {
	defer v.guard()()
	return v.d.encashments.get(id)
}

func (v *view) UpdateEncashment(_ context.Context, e *leave.Encashment) (int64, error) {
	defer v.guard()()
	return v.d.encashments.update(e.ID, *e), nil
}

func (v *view) ListEncashments(_ context.Context, f leave.EncashmentFilter) ([]*leave.Encashment, error) {
	defer v.guard()()
	return v.d.encashments.list(func(e *leave.Encashment) bool {
		return (f.EmployeeID == "" || e.EmployeeID == f.EmployeeID) &&
			(f.BalanceID == "" || e.BalanceID == f.BalanceID) &&
			statusIn(e.Status, f.Statuses)
	}), nil
}

// Cycles

func (v *view) CreateCycle(_ context.Context, c *leave.Cycle) error {
	defer v.guard()()
	return v.d.cycles.insert(c.ID, *c)
}

func (v *view) GetCycle(_ context.Context, id leave.CycleID) (*leave.Cycle, error) {
	defer v.guard()()
	return v.d.cycles.get(id)
}

func (v *view) UpdateCycle(_ context.Context, c *leave.Cycle) (int64, error) {
	defer v.guard()()
	return v.d.cycles.update(c.ID, *c), nil
}

func (v *view) ListCycles(_ context.Context, f leave.CycleFilter) ([]*leave.Cycle, error) {
	defer v.guard()()
	return v.d.cycles.list(func(c *leave.Cycle) bool {
		return (f.EmployeeID == "" || c.EmployeeID == f.EmployeeID) &&
			(f.LeaveTypeID == "" || c.LeaveTypeID == f.LeaveTypeID) &&
			statusIn(c.Status, f.Statuses)
	}), nil
}

// Leave years

func (v *view) CreateYearConfig(_ context.Context, y *leave.YearConfiguration) error {
	defer v.guard()()
	return v.d.yearConfigs.insert(y.ID, *y)
}

func (v *view) GetYearConfig(_ context.Context, id leave.YearConfigID) (*leave.YearConfiguration, error) {
	defer v.guard()()
	return v.d.yearConfigs.get(id)
}

func (v *view) UpdateYearConfig(_ context.Context, y *leave.YearConfiguration) (int64, error) {
	defer v.guard()()
	return v.d.yearConfigs.update(y.ID, *y), nil
}

func (v *view) ListYearConfigs(_ context.Context) ([]*leave.YearConfiguration, error) {
	defer v.guard()()
	return v.d.yearConfigs.list(nil), nil
}

// Audit

func (v *view) AppendAudit(_ context.Context, e generic.AuditEntry) error {
	defer v.guard()()
	v.d.audit = append(v.d.audit, e)
	return nil
}

func (v *view) QueryAudit(_ context.Context, f generic.AuditFilter) ([]generic.AuditEntry, error) {
	defer v.guard()()
	var out []generic.AuditEntry
	for _, e := range v.d.audit {
		if f.Matches(e) {
			out = append(out, e)
		}
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[len(out)-f.Limit:]
	}
	return out, nil
}

var _ leave.TxStore = (*Store)(nil)
