/*
Package sqlite provides a SQLite-backed implementation of leave.TxStore.

PURPOSE:
  Single-file (or in-memory) persistence for the leave ledger. Queries
  live in store/sqlstore; this package owns the connection, the schema
  and the transaction boundary.

KEY TABLES:
  leave_types:               Reference data policies and balances point at
  leave_policies:            Versioned entitlement rules
  leave_balances:            One row per (employee, leave type, year)
  leave_transactions:        Journal of postings against balances
  leave_requests:            Time-off requests and their decisions
  leave_encashments:         Unused days converted to money
  leave_cycles:              Multi-year carry-over windows
  leave_year_configurations: Organisation leave-year cutoffs
  audit_log:                 Append-only who/what/when trail

INDEXES:
  - idx_single_active_policy: At most one ACTIVE policy per leave type
  - leave_balances UNIQUE(employee_id, leave_type_id, year)
  - idx_transactions_balance: Journal reads (hot path)
  - idx_requests_employee: Overlap checks at admission

CONCURRENCY:
  Transactions are serialised by a mutex and the pool is limited to one
  connection, so every read-check-write in RunInTransaction sees a stable
  snapshot. This also keeps ":memory:" databases on a single connection.

WAL MODE:
  File databases are opened with WAL (Write-Ahead Logging):
  - Readers don't block the writer
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/leave.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  svc := leave.NewService(store)

MIGRATION:
  Schema is auto-migrated on New().

SEE ALSO:
  - leave/store.go: Interface definitions
  - store/sqlstore: Shared queries
  - store/memory: In-memory implementation for tests
  - store/postgres: PostgreSQL implementation
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/mattn/go-sqlite3"

	"github.com/warp/leave-ledger/leave"
	"github.com/warp/leave-ledger/store/sqlstore"
)

// Dialect is the SQLite flavour of the shared queries.
var Dialect = sqlstore.Dialect{
	Name: "sqlite",
	IsNoRows: func(err error) bool {
		return errors.Is(err, sql.ErrNoRows)
	},
	IsUniqueViolation: isUniqueConstraintError,
}

// Store implements leave.TxStore using SQLite.
type Store struct {
	*sqlstore.Repo
	db *sql.DB
	mu sync.Mutex
}

var _ leave.TxStore = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db, Repo: sqlstore.New(conn{db}, Dialect)}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// RunInTransaction executes fn within a database transaction.
func (s *Store) RunInTransaction(ctx context.Context, action string, fn func(leave.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction %s: %w", action, err)
	}
	defer sqlTx.Rollback()

	if err := fn(sqlstore.NewTx(conn{sqlTx}, Dialect)); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction %s: %w", action, err)
	}
	return nil
}

// Reset deletes every row. Used by the demo scenario loader.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"audit_log", "leave_encashments", "leave_requests", "leave_transactions",
		"leave_cycles", "leave_balances", "leave_year_configurations", "leave_policies", "leave_types"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("reset %s: %w", table, err)
		}
	}
	return nil
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS leave_types (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		archived INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS leave_policies (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		leave_type_id TEXT NOT NULL REFERENCES leave_types(id),
		annual_entitlement TEXT NOT NULL,
		carry_limit TEXT NOT NULL,
		encash_limit TEXT NOT NULL,
		carried_over_years INTEGER NOT NULL DEFAULT 0,
		effective_date TEXT,
		expiry_date TEXT,
		status TEXT NOT NULL,
		remarks TEXT NOT NULL DEFAULT '',
		min_service_months INTEGER NOT NULL DEFAULT 0,
		employment_types TEXT,
		employee_statuses TEXT,
		excluded_weekdays TEXT,
		version INTEGER NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- CRITICAL: a leave type has at most one ACTIVE policy
	CREATE UNIQUE INDEX IF NOT EXISTS idx_single_active_policy
		ON leave_policies(leave_type_id) WHERE status = 'ACTIVE';

	CREATE TABLE IF NOT EXISTS leave_balances (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		employee_id TEXT NOT NULL,
		leave_type_id TEXT NOT NULL REFERENCES leave_types(id),
		policy_id TEXT NOT NULL REFERENCES leave_policies(id),
		year INTEGER NOT NULL,
		beginning_balance TEXT NOT NULL,
		earned TEXT NOT NULL,
		used TEXT NOT NULL,
		carried_over TEXT NOT NULL,
		encashed TEXT NOT NULL,
		remaining TEXT NOT NULL,
		last_transaction_date TEXT,
		status TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE (employee_id, leave_type_id, year)
	);

	CREATE TABLE IF NOT EXISTS leave_transactions (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		balance_id TEXT NOT NULL REFERENCES leave_balances(id),
		transaction_type TEXT NOT NULL,
		days TEXT NOT NULL,
		remarks TEXT NOT NULL DEFAULT '',
		reference_id TEXT NOT NULL DEFAULT '',
		effective_at TEXT NOT NULL,
		created_at TEXT NOT NULL,
		archived_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_balance
		ON leave_transactions(balance_id);
	CREATE INDEX IF NOT EXISTS idx_transactions_reference
		ON leave_transactions(reference_id) WHERE reference_id <> '';

	CREATE TABLE IF NOT EXISTS leave_requests (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		employee_id TEXT NOT NULL,
		leave_type_id TEXT NOT NULL,
		balance_id TEXT NOT NULL REFERENCES leave_balances(id),
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		total_days TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		remarks TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		archived_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_requests_employee
		ON leave_requests(employee_id, status);

	CREATE TABLE IF NOT EXISTS leave_encashments (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		employee_id TEXT NOT NULL,
		balance_id TEXT NOT NULL REFERENCES leave_balances(id),
		total_days TEXT NOT NULL,
		amount TEXT NOT NULL,
		status TEXT NOT NULL,
		remarks TEXT NOT NULL DEFAULT '',
		payroll_reference TEXT NOT NULL DEFAULT '',
		paid_at TEXT,
		debit_posted INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		archived_at TEXT
	);

	CREATE TABLE IF NOT EXISTS leave_cycles (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		employee_id TEXT NOT NULL,
		leave_type_id TEXT NOT NULL,
		cycle_start_year INTEGER NOT NULL,
		cycle_end_year INTEGER NOT NULL,
		total_carried TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS leave_year_configurations (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		year INTEGER NOT NULL,
		cutoff_start_date TEXT NOT NULL,
		cutoff_end_date TEXT NOT NULL,
		remarks TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		archived_at TEXT
	);

	-- Audit log (append-only)
	CREATE TABLE IF NOT EXISTS audit_log (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		occurred_at TEXT NOT NULL,
		actor_id TEXT NOT NULL,
		action TEXT NOT NULL,
		entity TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		changes TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_audit_entity
		ON audit_log(entity, entity_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// DRIVER ADAPTER
// =============================================================================

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// conn adapts database/sql to sqlstore.Querier.
type conn struct{ db execer }

func (c conn) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := c.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (c conn) Query(ctx context.Context, query string, args ...any) (sqlstore.Rows, error) {
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return sqlRows{rows}, nil
}

func (c conn) QueryRow(ctx context.Context, query string, args ...any) sqlstore.Row {
	return c.db.QueryRowContext(ctx, query, args...)
}

type sqlRows struct{ *sql.Rows }

func (r sqlRows) Close() { _ = r.Rows.Close() }

func isUniqueConstraintError(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}
