/*
Package sqlstore implements leave.Store on top of a SQL connection.

PURPOSE:
  Holds every query of the leave core once. The driver packages
  (store/sqlite, store/postgres) own the connection, the schema and the
  transaction boundary; this package only needs a Querier and a Dialect.

PORTABILITY:
  Queries are written with ? placeholders and rebound per dialect.
  Dates are stored as TEXT (YYYY-MM-DD), day counts and money as decimal
  TEXT, timestamps as RFC 3339 TEXT in UTC, booleans as INTEGER 0/1 and
  string/int sets as JSON TEXT. Both SQLite and PostgreSQL read and write
  these without driver-specific types.

LOCKING:
  A Repo created for a transaction appends the dialect's lock clause to
  single-row reads of balances, policies, requests, encashments and
  cycles, so read-check-write sequences hold row locks on PostgreSQL.

SEE ALSO:
  - leave/store.go: The contract implemented here
  - store/sqlite/sqlite.go: SQLite schema and transactions
  - store/postgres/postgres.go: PostgreSQL schema and transactions
*/
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/leave-ledger/generic"
	"github.com/warp/leave-ledger/leave"
)

// =============================================================================
// DRIVER CONTRACT
// =============================================================================

// Querier is the subset of a connection or transaction the repository uses.
type Querier interface {
	Exec(ctx context.Context, query string, args ...any) (int64, error)
	Query(ctx context.Context, query string, args ...any) (Rows, error)
	QueryRow(ctx context.Context, query string, args ...any) Row
}

type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
}

type Row interface {
	Scan(dest ...any) error
}

// Dialect captures what differs between databases.
type Dialect struct {
	Name string

	// Placeholder renders the n-th (1-based) bind parameter.
	Placeholder func(n int) string

	// LockClause is appended to row reads inside a transaction.
	LockClause string

	IsNoRows          func(error) bool
	IsUniqueViolation func(error) bool
}

// Rebind rewrites ? placeholders for the dialect.
func (d Dialect) Rebind(query string) string {
	if d.Placeholder == nil {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString(d.Placeholder(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// =============================================================================
// REPO
// =============================================================================

// Repo implements leave.Store.
type Repo struct {
	q    Querier
	d    Dialect
	lock bool
}

// New returns a Repo for plain (non-transactional) reads and writes.
func New(q Querier, d Dialect) *Repo { return &Repo{q: q, d: d} }

// NewTx returns a Repo bound to a running transaction.
func NewTx(q Querier, d Dialect) *Repo { return &Repo{q: q, d: d, lock: true} }

var _ leave.Store = (*Repo)(nil)

func (r *Repo) exec(ctx context.Context, query string, args ...any) (int64, error) {
	return r.q.Exec(ctx, r.d.Rebind(query), args...)
}

func (r *Repo) query(ctx context.Context, query string, args ...any) (Rows, error) {
	return r.q.Query(ctx, r.d.Rebind(query), args...)
}

func (r *Repo) row(ctx context.Context, query string, args ...any) Row {
	return r.q.QueryRow(ctx, r.d.Rebind(query), args...)
}

// forUpdate appends the lock clause when running inside a transaction.
func (r *Repo) forUpdate(query string) string {
	if r.lock && r.d.LockClause != "" {
		return query + " " + r.d.LockClause
	}
	return query
}

func (r *Repo) insertErr(entity string, err error) error {
	if err == nil {
		return nil
	}
	if r.d.IsUniqueViolation != nil && r.d.IsUniqueViolation(err) {
		return generic.Conflict(entity, "violates a uniqueness rule")
	}
	return fmt.Errorf("insert %s: %w", entity, err)
}

func (r *Repo) getErr(entity string, id any, err error) error {
	if r.d.IsNoRows != nil && r.d.IsNoRows(err) {
		return generic.NotFound(entity, id)
	}
	return fmt.Errorf("get %s: %w", entity, err)
}

// where accumulates filter clauses.
type where struct {
	clauses []string
	args    []any
}

func (w *where) eq(column string, value any, skip bool) {
	if skip {
		return
	}
	w.clauses = append(w.clauses, column+" = ?")
	w.args = append(w.args, value)
}

func whereIn[S ~string](w *where, column string, values []S) {
	if len(values) == 0 {
		return
	}
	marks := make([]string, len(values))
	for i, v := range values {
		marks[i] = "?"
		w.args = append(w.args, string(v))
	}
	w.clauses = append(w.clauses, column+" IN ("+strings.Join(marks, ", ")+")")
}

func (w *where) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

// collect drains rows through scan.
func collect[T any](rows Rows, scan func(Row) (*T, error)) ([]*T, error) {
	defer rows.Close()
	var out []*T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// =============================================================================
// ENCODING
// =============================================================================

func fmtTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return fmtTime(*t)
}

func nullDate(tp *generic.TimePoint) any {
	if tp == nil {
		return nil
	}
	return tp.String()
}

func nullJSON[T any](v []T) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// decoder keeps the first parse error so a scan can decode every column
// and check once.
type decoder struct{ err error }

func (d *decoder) fail(column string, err error) {
	if d.err == nil {
		d.err = fmt.Errorf("decode %s: %w", column, err)
	}
}

func (d *decoder) amount(column, s string, unit generic.Unit) generic.Amount {
	v, err := decimal.NewFromString(s)
	if err != nil {
		d.fail(column, err)
		return generic.Amount{Unit: unit}
	}
	return generic.NewAmountFromDecimal(v, unit)
}

func (d *decoder) days(column, s string) generic.Amount { return d.amount(column, s, generic.UnitDays) }

func (d *decoder) date(column, s string) generic.TimePoint {
	tp, err := generic.ParseDate(s)
	if err != nil {
		d.fail(column, err)
	}
	return tp
}

func (d *decoder) datePtr(column string, ns sql.NullString) *generic.TimePoint {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	tp := d.date(column, ns.String)
	return &tp
}

func (d *decoder) time(column, s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		d.fail(column, err)
	}
	return t
}

func (d *decoder) timePtr(column string, ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t := d.time(column, ns.String)
	return &t
}

func decodeJSON[T any](d *decoder, column string, ns sql.NullString) []T {
	if !ns.Valid {
		return nil
	}
	out := []T{}
	if err := json.Unmarshal([]byte(ns.String), &out); err != nil {
		d.fail(column, err)
	}
	return out
}
