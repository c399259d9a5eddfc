/*
store.go - Persistence contract for the leave core

PURPOSE:
  Defines the interface between the leave Service and the database. The
  Service never talks SQL; it reads aggregates, lets them enforce their
  rules, and writes them back through these repositories.

KEY INTERFACES:
  Store:   Repository lookups and writes for every aggregate, plus audit
  TxStore: Store + RunInTransaction (atomic, serialized read-check-write)

WRITE CONTRACT:
  Create* inserts and fails on a duplicate key.
  Update* returns the number of rows affected. Zero affected rows after a
  successful read means the row vanished or changed underneath us; the
  Service turns that into a PersistenceFailure.
  Get* returns a generic NotFound error when the row does not exist.

ISOLATION:
  Every mutation the Service performs runs inside RunInTransaction. The
  implementation must make the reads inside fn consistent with its writes:
  the SQLite store serializes transactions, the PostgreSQL store uses
  SERIALIZABLE isolation and locks balance and policy rows it reads.

IMPLEMENTATIONS:
  - store/memory:   In-memory, snapshot rollback (tests, local runs)
  - store/sqlite:   Embedded SQLite
  - store/postgres: PostgreSQL via pgx

SEE ALSO:
  - service.go: The only caller
  - generic/store.go: Audit contract
*/
package leave

import (
	"context"

	"github.com/warp/leave-ledger/generic"
)

// =============================================================================
// FILTERS
// =============================================================================

type PolicyFilter struct {
	LeaveTypeID LeaveTypeID
	Statuses    []PolicyStatus
}

type BalanceFilter struct {
	EmployeeID  EmployeeID
	LeaveTypeID LeaveTypeID
	Year        int
	Statuses    []BalanceStatus
}

type RequestFilter struct {
	EmployeeID EmployeeID
	BalanceID  BalanceID
	Statuses   []RequestStatus
}

type EncashmentFilter struct {
	EmployeeID EmployeeID
	BalanceID  BalanceID
	Statuses   []EncashmentStatus
}

type CycleFilter struct {
	EmployeeID  EmployeeID
	LeaveTypeID LeaveTypeID
	Statuses    []CycleStatus
}

// =============================================================================
// STORE
// =============================================================================

// Store gives transaction-scoped access to every aggregate.
type Store interface {
	generic.AuditLog

	CreateLeaveType(ctx context.Context, lt *LeaveType) error
	GetLeaveType(ctx context.Context, id LeaveTypeID) (*LeaveType, error)
	ListLeaveTypes(ctx context.Context) ([]*LeaveType, error)

	CreatePolicy(ctx context.Context, p *Policy) error
	GetPolicy(ctx context.Context, id PolicyID) (*Policy, error)
	UpdatePolicy(ctx context.Context, p *Policy) (int64, error)
	ListPolicies(ctx context.Context, f PolicyFilter) ([]*Policy, error)

	CreateBalance(ctx context.Context, b *Balance) error
	GetBalance(ctx context.Context, id BalanceID) (*Balance, error)
	UpdateBalance(ctx context.Context, b *Balance) (int64, error)
	ListBalances(ctx context.Context, f BalanceFilter) ([]*Balance, error)

	CreateTransaction(ctx context.Context, t *Transaction) error
	GetTransaction(ctx context.Context, id TransactionID) (*Transaction, error)
	UpdateTransaction(ctx context.Context, t *Transaction) (int64, error)
	// ListTransactions returns every posting of a balance, archived ones
	// included, in posting order.
	ListTransactions(ctx context.Context, balanceID BalanceID) ([]*Transaction, error)

	CreateRequest(ctx context.Context, r *Request) error
	GetRequest(ctx context.Context, id RequestID) (*Request, error)
	UpdateRequest(ctx context.Context, r *Request) (int64, error)
	ListRequests(ctx context.Context, f RequestFilter) ([]*Request, error)

	CreateEncashment(ctx context.Context, e *Encashment) error
	GetEncashment(ctx context.Context, id EncashmentID) (*Encashment, error)
	UpdateEncashment(ctx context.Context, e *Encashment) (int64, error)
	ListEncashments(ctx context.Context, f EncashmentFilter) ([]*Encashment, error)

	CreateCycle(ctx context.Context, c *Cycle) error
	GetCycle(ctx context.Context, id CycleID) (*Cycle, error)
	UpdateCycle(ctx context.Context, c *Cycle) (int64, error)
	ListCycles(ctx context.Context, f CycleFilter) ([]*Cycle, error)

	CreateYearConfig(ctx context.Context, y *YearConfiguration) error
	GetYearConfig(ctx context.Context, id YearConfigID) (*YearConfiguration, error)
	UpdateYearConfig(ctx context.Context, y *YearConfiguration) (int64, error)
	ListYearConfigs(ctx context.Context) ([]*YearConfiguration, error)
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// RunInTransaction executes fn within one atomic transaction. action
	// labels the transaction for logs and metrics. If fn returns an error
	// the transaction is rolled back; otherwise it is committed.
	RunInTransaction(ctx context.Context, action string, fn func(Store) error) error

	Close() error
}
