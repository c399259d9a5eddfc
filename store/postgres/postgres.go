/*
Package postgres provides a PostgreSQL-backed implementation of leave.TxStore.

PURPOSE:
  Production persistence for the leave ledger over a pgx connection pool.
  Queries live in store/sqlstore; this package owns the pool, the schema
  and the transaction boundary.

CONCURRENCY:
  Every RunInTransaction runs at SERIALIZABLE isolation and single-row
  reads inside it take FOR UPDATE locks. A transaction aborted by a
  serialization failure or deadlock is retried from the start, up to
  maxAttempts times; fn must therefore be safe to re-run, which holds for
  the leave service because it only touches the store it is given.

CONSTRAINTS:
  The same uniqueness rules as SQLite are enforced by the database:
  - idx_single_active_policy: at most one ACTIVE policy per leave type
  - leave_balances UNIQUE(employee_id, leave_type_id, year)

MIGRATION:
  Schema is created on New() with CREATE ... IF NOT EXISTS.

SEE ALSO:
  - store/sqlstore: Shared queries
  - store/sqlite: SQLite implementation
*/
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/warp/leave-ledger/leave"
	"github.com/warp/leave-ledger/store/sqlstore"
)

const (
	maxAttempts  = 10
	retryBackoff = 5 * time.Millisecond
)

// Dialect is the PostgreSQL flavour of the shared queries.
var Dialect = sqlstore.Dialect{
	Name:        "postgres",
	Placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
	LockClause:  "FOR UPDATE",
	IsNoRows: func(err error) bool {
		return errors.Is(err, pgx.ErrNoRows)
	},
	IsUniqueViolation: func(err error) bool {
		var pgErr *pgconn.PgError
		return errors.As(err, &pgErr) && pgErr.Code == "23505" // unique_violation
	},
}

// Store implements leave.TxStore using PostgreSQL.
type Store struct {
	*sqlstore.Repo
	pool *pgxpool.Pool
}

var _ leave.TxStore = (*Store)(nil)

// New connects to databaseURL and migrates the schema.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &Store{pool: pool, Repo: sqlstore.New(conn{pool}, Dialect)}
	if err := store.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Reset truncates every table. Used by the demo scenario loader.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `TRUNCATE audit_log, leave_encashments, leave_requests, leave_transactions,
		leave_cycles, leave_balances, leave_year_configurations, leave_policies, leave_types CASCADE`)
	if err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	return nil
}

// RunInTransaction executes fn within a SERIALIZABLE transaction,
// retrying serialization failures.
func (s *Store) RunInTransaction(ctx context.Context, action string, fn func(leave.Store) error) error {
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = s.runOnce(ctx, action, fn)
		if !isRetryable(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * retryBackoff):
		}
	}
	return fmt.Errorf("transaction %s gave up after %d attempts: %w", action, maxAttempts, err)
}

func (s *Store) runOnce(ctx context.Context, action string, fn func(leave.Store) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction %s: %w", action, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(sqlstore.NewTx(conn{tx}, Dialect)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction %s: %w", action, err)
	}
	return nil
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01" // serialization_failure, deadlock_detected
}

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schema)
	return err
}

const schema = `
CREATE TABLE IF NOT EXISTS leave_types (
	seq BIGSERIAL PRIMARY KEY,
	id TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	archived INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS leave_policies (
	seq BIGSERIAL PRIMARY KEY,
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

CREATE UNIQUE INDEX IF NOT EXISTS idx_single_active_policy
	ON leave_policies(leave_type_id) WHERE status = 'ACTIVE';

CREATE TABLE IF NOT EXISTS leave_balances (
	seq BIGSERIAL PRIMARY KEY,
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
	seq BIGSERIAL PRIMARY KEY,
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

CREATE INDEX IF NOT EXISTS idx_transactions_balance ON leave_transactions(balance_id);

CREATE TABLE IF NOT EXISTS leave_requests (
	seq BIGSERIAL PRIMARY KEY,
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

CREATE INDEX IF NOT EXISTS idx_requests_employee ON leave_requests(employee_id, status);

CREATE TABLE IF NOT EXISTS leave_encashments (
	seq BIGSERIAL PRIMARY KEY,
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
	seq BIGSERIAL PRIMARY KEY,
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
	seq BIGSERIAL PRIMARY KEY,
	id TEXT NOT NULL UNIQUE,
	year INTEGER NOT NULL,
	cutoff_start_date TEXT NOT NULL,
	cutoff_end_date TEXT NOT NULL,
	remarks TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	archived_at TEXT
);

CREATE TABLE IF NOT EXISTS audit_log (
	seq BIGSERIAL PRIMARY KEY,
	id TEXT NOT NULL UNIQUE,
	occurred_at TEXT NOT NULL,
	actor_id TEXT NOT NULL,
	action TEXT NOT NULL,
	entity TEXT NOT NULL,
	entity_id TEXT NOT NULL,
	changes TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_entity ON audit_log(entity, entity_id);
`

// =============================================================================
// DRIVER ADAPTER
// =============================================================================

// execer is satisfied by both *pgxpool.Pool and pgx.Tx.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// conn adapts pgx to sqlstore.Querier.
type conn struct{ db execer }

func (c conn) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	tag, err := c.db.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (c conn) Query(ctx context.Context, query string, args ...any) (sqlstore.Rows, error) {
	rows, err := c.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (c conn) QueryRow(ctx context.Context, query string, args ...any) sqlstore.Row {
	return c.db.QueryRow(ctx, query, args...)
}
