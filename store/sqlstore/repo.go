package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/warp/leave-ledger/generic"
	"github.com/warp/leave-ledger/leave"
)

// Every table carries a seq column assigned by the database on insert;
// lists are returned in seq order, which is insertion order.

// =============================================================================
// LEAVE TYPES
// =============================================================================

func (r *Repo) CreateLeaveType(ctx context.Context, lt *leave.LeaveType) error {
	_, err := r.exec(ctx, `INSERT INTO leave_types (id, name, archived) VALUES (?, ?, ?)`,
		string(lt.ID), lt.Name, boolInt(lt.Archived))
	return r.insertErr(leave.EntityLeaveType, err)
}

func (r *Repo) GetLeaveType(ctx context.Context, id leave.LeaveTypeID) (*leave.LeaveType, error) {
	lt, err := scanLeaveType(r.row(ctx, `SELECT id, name, archived FROM leave_types WHERE id = ?`, string(id)))
	if err != nil {
		return nil, r.getErr(leave.EntityLeaveType, id, err)
	}
	return lt, nil
}

func (r *Repo) ListLeaveTypes(ctx context.Context) ([]*leave.LeaveType, error) {
	rows, err := r.query(ctx, `SELECT id, name, archived FROM leave_types ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("list leave types: %w", err)
	}
	return collect(rows, scanLeaveType)
}

func scanLeaveType(row Row) (*leave.LeaveType, error) {
	var (
		lt       leave.LeaveType
		id       string
		archived int64
	)
	if err := row.Scan(&id, &lt.Name, &archived); err != nil {
		return nil, err
	}
	lt.ID = leave.LeaveTypeID(id)
	lt.Archived = archived != 0
	return &lt, nil
}

// =============================================================================
// POLICIES
// =============================================================================

const policyColumns = `id, leave_type_id, annual_entitlement, carry_limit, encash_limit,
	carried_over_years, effective_date, expiry_date, status, remarks,
	min_service_months, employment_types, employee_statuses, excluded_weekdays,
	version, created_at, updated_at`

func policyArgs(p *leave.Policy) ([]any, error) {
	types, err := nullJSON(p.Eligibility.EmploymentTypes)
	if err != nil {
		return nil, err
	}
	statuses, err := nullJSON(p.Eligibility.EmployeeStatuses)
	if err != nil {
		return nil, err
	}
	weekdays, err := nullJSON(p.Eligibility.ExcludedWeekdays)
	if err != nil {
		return nil, err
	}
	return []any{
		string(p.LeaveTypeID), p.AnnualEntitlement.Value.String(), p.CarryLimit.Value.String(), p.EncashLimit.Value.String(),
		int64(p.CarriedOverYears), nullDate(p.EffectiveDate), nullDate(p.ExpiryDate), string(p.Status), p.Remarks,
		int64(p.Eligibility.MinimumServiceMonths), types, statuses, weekdays,
		int64(p.Version), fmtTime(p.CreatedAt), fmtTime(p.UpdatedAt),
	}, nil
}

func (r *Repo) CreatePolicy(ctx context.Context, p *leave.Policy) error {
	args, err := policyArgs(p)
	if err != nil {
		return fmt.Errorf("encode policy: %w", err)
	}
	_, err = r.exec(ctx, `INSERT INTO leave_policies (`+policyColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		append([]any{string(p.ID)}, args...)...)
	return r.insertErr(leave.EntityPolicy, err)
}

func (r *Repo) GetPolicy(ctx context.Context, id leave.PolicyID) (*leave.Policy, error) {
	p, err := scanPolicy(r.row(ctx, r.forUpdate(`SELECT `+policyColumns+` FROM leave_policies WHERE id = ?`), string(id)))
	if err != nil {
		return nil, r.getErr(leave.EntityPolicy, id, err)
	}
	return p, nil
}

func (r *Repo) UpdatePolicy(ctx context.Context, p *leave.Policy) (int64, error) {
	args, err := policyArgs(p)
	if err != nil {
		return 0, fmt.Errorf("encode policy: %w", err)
	}
	n, err := r.exec(ctx, `UPDATE leave_policies SET
		leave_type_id = ?, annual_entitlement = ?, carry_limit = ?, encash_limit = ?,
		carried_over_years = ?, effective_date = ?, expiry_date = ?, status = ?, remarks = ?,
		min_service_months = ?, employment_types = ?, employee_statuses = ?, excluded_weekdays = ?,
		version = ?, created_at = ?, updated_at = ?
		WHERE id = ?`, append(args, string(p.ID))...)
	if err != nil {
		if r.d.IsUniqueViolation != nil && r.d.IsUniqueViolation(err) {
			return 0, generic.Conflict(leave.EntityPolicy, "leave type "+string(p.LeaveTypeID)+" already has an ACTIVE policy")
		}
		return 0, fmt.Errorf("update policy: %w", err)
	}
	return n, nil
}

func (r *Repo) ListPolicies(ctx context.Context, f leave.PolicyFilter) ([]*leave.Policy, error) {
	var w where
	w.eq("leave_type_id", string(f.LeaveTypeID), f.LeaveTypeID == "")
	whereIn(&w, "status", f.Statuses)
	rows, err := r.query(ctx, `SELECT `+policyColumns+` FROM leave_policies`+w.String()+` ORDER BY seq`, w.args...)
	if err != nil {
		return nil, fmt.Errorf("list policies: %w", err)
	}
	return collect(rows, scanPolicy)
}

func scanPolicy(row Row) (*leave.Policy, error) {
	var (
		p                                  leave.Policy
		id, leaveType, status              string
		entitlement, carryLimit, encashLim string
		carriedYears, minService, version  int64
		effective, expiry                  sql.NullString
		types, statuses, weekdays          sql.NullString
		created, updated                   string
	)
	if err := row.Scan(&id, &leaveType, &entitlement, &carryLimit, &encashLim,
		&carriedYears, &effective, &expiry, &status, &p.Remarks,
		&minService, &types, &statuses, &weekdays,
		&version, &created, &updated); err != nil {
		return nil, err
	}
	var d decoder
	p.ID = leave.PolicyID(id)
	p.LeaveTypeID = leave.LeaveTypeID(leaveType)
	p.AnnualEntitlement = d.days("annual_entitlement", entitlement)
	p.CarryLimit = d.days("carry_limit", carryLimit)
	p.EncashLimit = d.days("encash_limit", encashLim)
	p.CarriedOverYears = int(carriedYears)
	p.EffectiveDate = d.datePtr("effective_date", effective)
	p.ExpiryDate = d.datePtr("expiry_date", expiry)
	p.Status = leave.PolicyStatus(status)
	p.Eligibility = leave.Eligibility{
		MinimumServiceMonths: int(minService),
		EmploymentTypes:      decodeJSON[string](&d, "employment_types", types),
		EmployeeStatuses:     decodeJSON[string](&d, "employee_statuses", statuses),
		ExcludedWeekdays:     decodeJSON[int](&d, "excluded_weekdays", weekdays),
	}
	p.Version = int(version)
	p.CreatedAt = d.time("created_at", created)
	p.UpdatedAt = d.time("updated_at", updated)
	if d.err != nil {
		return nil, d.err
	}
	return &p, nil
}

// =============================================================================
// BALANCES
// =============================================================================

const balanceColumns = `id, employee_id, leave_type_id, policy_id, year,
	beginning_balance, earned, used, carried_over, encashed, remaining,
	last_transaction_date, status, created_at, updated_at`

func balanceArgs(b *leave.Balance) []any {
	return []any{
		string(b.EmployeeID), string(b.LeaveTypeID), string(b.PolicyID), int64(b.Year),
		b.BeginningBalance.Value.String(), b.Earned.Value.String(), b.Used.Value.String(), b.CarriedOver.Value.String(),
		b.Encashed.Value.String(), b.Remaining.Value.String(),
		nullDate(b.LastTransactionDate), string(b.Status), fmtTime(b.CreatedAt), fmtTime(b.UpdatedAt),
	}
}

func (r *Repo) CreateBalance(ctx context.Context, b *leave.Balance) error {
	_, err := r.exec(ctx, `INSERT INTO leave_balances (`+balanceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		append([]any{string(b.ID)}, balanceArgs(b)...)...)
	return r.insertErr(leave.EntityBalance, err)
}

func (r *Repo) GetBalance(ctx context.Context, id leave.BalanceID) (*leave.Balance, error) {
	b, err := scanBalance(r.row(ctx, r.forUpdate(`SELECT `+balanceColumns+` FROM leave_balances WHERE id = ?`), string(id)))
	if err != nil {
		return nil, r.getErr(leave.EntityBalance, id, err)
	}
	return b, nil
}

func (r *Repo) UpdateBalance(ctx context.Context, b *leave.Balance) (int64, error) {
	n, err := r.exec(ctx, `UPDATE leave_balances SET
		employee_id = ?, leave_type_id = ?, policy_id = ?, year = ?,
		beginning_balance = ?, earned = ?, used = ?, carried_over = ?, encashed = ?, remaining = ?,
		last_transaction_date = ?, status = ?, created_at = ?, updated_at = ?
		WHERE id = ?`, append(balanceArgs(b), string(b.ID))...)
	if err != nil {
		return 0, fmt.Errorf("update balance: %w", err)
	}
	return n, nil
}

func (r *Repo) ListBalances(ctx context.Context, f leave.BalanceFilter) ([]*leave.Balance, error) {
	var w where
	w.eq("employee_id", string(f.EmployeeID), f.EmployeeID == "")
	w.eq("leave_type_id", string(f.LeaveTypeID), f.LeaveTypeID == "")
	w.eq("year", int64(f.Year), f.Year == 0)
	whereIn(&w, "status", f.Statuses)
	rows, err := r.query(ctx, `SELECT `+balanceColumns+` FROM leave_balances`+w.String()+` ORDER BY seq`, w.args...)
	if err != nil {
		return nil, fmt.Errorf("list balances: %w", err)
	}
	return collect(rows, scanBalance)
}

func scanBalance(row Row) (*leave.Balance, error) {
	var (
		b                                                  leave.Balance
		id, employee, leaveType, policy, status            string
		year                                               int64
		beginning, earned, used, carried, encashed, remain string
		lastTx                                             sql.NullString
		created, updated                                   string
	)
	if err := row.Scan(&id, &employee, &leaveType, &policy, &year,
		&beginning, &earned, &used, &carried, &encashed, &remain,
		&lastTx, &status, &created, &updated); err != nil {
		return nil, err
	}
	var d decoder
	b.ID = leave.BalanceID(id)
	b.EmployeeID = leave.EmployeeID(employee)
	b.LeaveTypeID = leave.LeaveTypeID(leaveType)
	b.PolicyID = leave.PolicyID(policy)
	b.Year = int(year)
	b.BeginningBalance = d.days("beginning_balance", beginning)
	b.Earned = d.days("earned", earned)
	b.Used = d.days("used", used)
	b.CarriedOver = d.days("carried_over", carried)
	b.Encashed = d.days("encashed", encashed)
	b.Remaining = d.days("remaining", remain)
	b.LastTransactionDate = d.datePtr("last_transaction_date", lastTx)
	b.Status = leave.BalanceStatus(status)
	b.CreatedAt = d.time("created_at", created)
	b.UpdatedAt = d.time("updated_at", updated)
	if d.err != nil {
		return nil, d.err
	}
	return &b, nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

const transactionColumns = `id, balance_id, transaction_type, days, remarks,
	reference_id, effective_at, created_at, archived_at`

func (r *Repo) CreateTransaction(ctx context.Context, t *leave.Transaction) error {
	_, err := r.exec(ctx, `INSERT INTO leave_transactions (`+transactionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(t.ID), string(t.BalanceID), string(t.Type), t.Days.Value.String(), t.Remarks,
		t.ReferenceID, t.EffectiveAt.String(), fmtTime(t.CreatedAt), nullTime(t.Lifecycle.ArchivedAt()))
	return r.insertErr(leave.EntityTransaction, err)
}

func (r *Repo) GetTransaction(ctx context.Context, id leave.TransactionID) (*leave.Transaction, error) {
	t, err := scanTransaction(r.row(ctx, `SELECT `+transactionColumns+` FROM leave_transactions WHERE id = ?`, string(id)))
	if err != nil {
		return nil, r.getErr(leave.EntityTransaction, id, err)
	}
	return t, nil
}

// UpdateTransaction only touches the mutable columns; postings are
// otherwise immutable.
func (r *Repo) UpdateTransaction(ctx context.Context, t *leave.Transaction) (int64, error) {
	n, err := r.exec(ctx, `UPDATE leave_transactions SET remarks = ?, archived_at = ? WHERE id = ?`,
		t.Remarks, nullTime(t.Lifecycle.ArchivedAt()), string(t.ID))
	if err != nil {
		return 0, fmt.Errorf("update transaction: %w", err)
	}
	return n, nil
}

func (r *Repo) ListTransactions(ctx context.Context, balanceID leave.BalanceID) ([]*leave.Transaction, error) {
	rows, err := r.query(ctx, `SELECT `+transactionColumns+` FROM leave_transactions
		WHERE balance_id = ? ORDER BY seq`, string(balanceID))
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return collect(rows, scanTransaction)
}

func scanTransaction(row Row) (*leave.Transaction, error) {
	var (
		t                                          leave.Transaction
		id, balance, typ, days, effective, created string
		archived                                   sql.NullString
	)
	if err := row.Scan(&id, &balance, &typ, &days, &t.Remarks,
		&t.ReferenceID, &effective, &created, &archived); err != nil {
		return nil, err
	}
	var d decoder
	t.ID = leave.TransactionID(id)
	t.BalanceID = leave.BalanceID(balance)
	t.Type = leave.TransactionType(typ)
	t.Days = d.days("days", days)
	t.EffectiveAt = d.date("effective_at", effective)
	t.CreatedAt = d.time("created_at", created)
	t.Lifecycle = generic.LoadLifecycle(d.timePtr("archived_at", archived))
	if d.err != nil {
		return nil, d.err
	}
	return &t, nil
}

// =============================================================================
// REQUESTS
// =============================================================================

const requestColumns = `id, employee_id, leave_type_id, balance_id, start_date, end_date,
	total_days, reason, status, remarks, created_at, updated_at, archived_at`

func requestArgs(q *leave.Request) []any {
	return []any{
		string(q.EmployeeID), string(q.LeaveTypeID), string(q.BalanceID),
		q.Window.Start.String(), q.Window.End.String(), q.TotalDays.Value.String(),
		q.Reason, string(q.Status), q.Remarks, fmtTime(q.CreatedAt), fmtTime(q.UpdatedAt),
		nullTime(q.Lifecycle.ArchivedAt()),
	}
}

func (r *Repo) CreateRequest(ctx context.Context, q *leave.Request) error {
	_, err := r.exec(ctx, `INSERT INTO leave_requests (`+requestColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		append([]any{string(q.ID)}, requestArgs(q)...)...)
	return r.insertErr(leave.EntityRequest, err)
}

func (r *Repo) GetRequest(ctx context.Context, id leave.RequestID) (*leave.Request, error) {
	q, err := scanRequest(r.row(ctx, r.forUpdate(`SELECT `+requestColumns+` FROM leave_requests WHERE id = ?`), string(id)))
	if err != nil {
		return nil, r.getErr(leave.EntityRequest, id, err)
	}
	return q, nil
}

func (r *Repo) UpdateRequest(ctx context.Context, q *leave.Request) (int64, error) {
	n, err := r.exec(ctx, `UPDATE leave_requests SET
		employee_id = ?, leave_type_id = ?, balance_id = ?, start_date = ?, end_date = ?,
		total_days = ?, reason = ?, status = ?, remarks = ?, created_at = ?, updated_at = ?, archived_at = ?
		WHERE id = ?`, append(requestArgs(q), string(q.ID))...)
	if err != nil {
		return 0, fmt.Errorf("update request: %w", err)
	}
	return n, nil
}

func (r *Repo) ListRequests(ctx context.Context, f leave.RequestFilter) ([]*leave.Request, error) {
	var w where
	w.eq("employee_id", string(f.EmployeeID), f.EmployeeID == "")
	w.eq("balance_id", string(f.BalanceID), f.BalanceID == "")
	whereIn(&w, "status", f.Statuses)
	rows, err := r.query(ctx, `SELECT `+requestColumns+` FROM leave_requests`+w.String()+` ORDER BY seq`, w.args...)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	return collect(rows, scanRequest)
}

func scanRequest(row Row) (*leave.Request, error) {
	var (
		q                                        leave.Request
		id, employee, leaveType, balance, status string
		start, end, total, created, updated      string
		archived                                 sql.NullString
	)
	if err := row.Scan(&id, &employee, &leaveType, &balance, &start, &end,
		&total, &q.Reason, &status, &q.Remarks, &created, &updated, &archived); err != nil {
		return nil, err
	}
	var d decoder
	q.ID = leave.RequestID(id)
	q.EmployeeID = leave.EmployeeID(employee)
	q.LeaveTypeID = leave.LeaveTypeID(leaveType)
	q.BalanceID = leave.BalanceID(balance)
	q.Window = generic.Period{Start: d.date("start_date", start), End: d.date("end_date", end)}
	q.TotalDays = d.days("total_days", total)
	q.Status = leave.RequestStatus(status)
	q.CreatedAt = d.time("created_at", created)
	q.UpdatedAt = d.time("updated_at", updated)
	q.Lifecycle = generic.LoadLifecycle(d.timePtr("archived_at", archived))
	if d.err != nil {
		return nil, d.err
	}
	return &q, nil
}

// =============================================================================
// ENCASHMENTS
// =============================================================================

const encashmentColumns = `id, employee_id, balance_id, total_days, amount, status, remarks,
	payroll_reference, paid_at, debit_posted, created_at, updated_at, archived_at`

func encashmentArgs(e *leave.Encashment) []any {
	return []any{
		string(e.EmployeeID), string(e.BalanceID), e.TotalDays.Value.String(), e.Amount.Value.String(),
		string(e.Status), e.Remarks, e.PayrollReference, nullTime(e.PaidAt), boolInt(e.DebitPosted),
		fmtTime(e.CreatedAt), fmtTime(e.UpdatedAt), nullTime(e.Lifecycle.ArchivedAt()),
	}
}

func (r *Repo) CreateEncashment(ctx context.Context, e *leave.Encashment) error {
	_, err := r.exec(ctx, `INSERT INTO leave_encashments (`+encashmentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		append([]any{string(e.ID)}, encashmentArgs(e)...)...)
	return r.insertErr(leave.EntityEncashment, err)
}

func (r *Repo) GetEncashment(ctx context.Context, id leave.EncashmentID) (*leave.Encashment, error) {
	e, err := scanEncashment(r.row(ctx, r.forUpdate(`SELECT `+encashmentColumns+` FROM leave_encashments WHERE id = ?`), string(id)))
	if err != nil {
		return nil, r.getErr(leave.EntityEncashment, id, err)
	}
	return e, nil
}

func (r *Repo) UpdateEncashment(ctx context.Context, e *leave.Encashment) (int64, error) {
	n, err := r.exec(ctx, `UPDATE leave_encashments SET
		employee_id = ?, balance_id = ?, total_days = ?, amount = ?, status = ?, remarks = ?,
		payroll_reference = ?, paid_at = ?, debit_posted = ?, created_at = ?, updated_at = ?, archived_at = ?
		WHERE id = ?`, append(encashmentArgs(e), string(e.ID))...)
	if err != nil {
		return 0, fmt.Errorf("update encashment: %w", err)
	}
	return n, nil
}

func (r *Repo) ListEncashments(ctx context.Context, f leave.EncashmentFilter) ([]*leave.Encashment, error) {
	var w where
	w.eq("employee_id", string(f.EmployeeID), f.EmployeeID == "")
	w.eq("balance_id", string(f.BalanceID), f.BalanceID == "")
	whereIn(&w, "status", f.Statuses)
	rows, err := r.query(ctx, `SELECT `+encashmentColumns+` FROM leave_encashments`+w.String()+` ORDER BY seq`, w.args...)
	if err != nil {
		return nil, fmt.Errorf("list encashments: %w", err)
	}
	return collect(rows, scanEncashment)
}

func scanEncashment(row Row) (*leave.Encashment, error) {
	var (
		e                                   leave.Encashment
		id, employee, balance, days, amount string
		status, created, updated            string
		paid, archived                      sql.NullString
		debit                               int64
	)
	if err := row.Scan(&id, &employee, &balance, &days, &amount, &status, &e.Remarks,
		&e.PayrollReference, &paid, &debit, &created, &updated, &archived); err != nil {
		return nil, err
	}
	var d decoder
	e.ID = leave.EncashmentID(id)
	e.EmployeeID = leave.EmployeeID(employee)
	e.BalanceID = leave.BalanceID(balance)
	e.TotalDays = d.days("total_days", days)
	e.Amount = d.amount("amount", amount, generic.UnitMoney)
	e.Status = leave.EncashmentStatus(status)
	e.PaidAt = d.timePtr("paid_at", paid)
	e.DebitPosted = debit != 0
	e.CreatedAt = d.time("created_at", created)
	e.UpdatedAt = d.time("updated_at", updated)
	e.Lifecycle = generic.LoadLifecycle(d.timePtr("archived_at", archived))
	if d.err != nil {
		return nil, d.err
	}
	return &e, nil
}

// =============================================================================
// CYCLES
// =============================================================================

const cycleColumns = `id, employee_id, leave_type_id, cycle_start_year, cycle_end_year,
	total_carried, status, created_at, updated_at`

func cycleArgs(c *leave.Cycle) []any {
	return []any{
		string(c.EmployeeID), string(c.LeaveTypeID), int64(c.Years.From), int64(c.Years.To),
		c.TotalCarried.Value.String(), string(c.Status), fmtTime(c.CreatedAt), fmtTime(c.UpdatedAt),
	}
}

func (r *Repo) CreateCycle(ctx context.Context, c *leave.Cycle) error {
	_, err := r.exec(ctx, `INSERT INTO leave_cycles (`+cycleColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		append([]any{string(c.ID)}, cycleArgs(c)...)...)
	return r.insertErr(leave.EntityCycle, err)
}

func (r *Repo) GetCycle(ctx context.Context, id leave.CycleID) (*leave.Cycle, error) {
	c, err := scanCycle(r.row(ctx, r.forUpdate(`SELECT `+cycleColumns+` FROM leave_cycles WHERE id = ?`), string(id)))
	if err != nil {
		return nil, r.getErr(leave.EntityCycle, id, err)
	}
	return c, nil
}

func (r *Repo) UpdateCycle(ctx context.Context, c *leave.Cycle) (int64, error) {
	n, err := r.exec(ctx, `UPDATE leave_cycles SET
		employee_id = ?, leave_type_id = ?, cycle_start_year = ?, cycle_end_year = ?,
		total_carried = ?, status = ?, created_at = ?, updated_at = ?
		WHERE id = ?`, append(cycleArgs(c), string(c.ID))...)
	if err != nil {
		return 0, fmt.Errorf("update cycle: %w", err)
	}
	return n, nil
}

func (r *Repo) ListCycles(ctx context.Context, f leave.CycleFilter) ([]*leave.Cycle, error) {
	var w where
	w.eq("employee_id", string(f.EmployeeID), f.EmployeeID == "")
	w.eq("leave_type_id", string(f.LeaveTypeID), f.LeaveTypeID == "")
	whereIn(&w, "status", f.Statuses)
	rows, err := r.query(ctx, `SELECT `+cycleColumns+` FROM leave_cycles`+w.String()+` ORDER BY seq`, w.args...)
	if err != nil {
		return nil, fmt.Errorf("list cycles: %w", err)
	}
	return collect(rows, scanCycle)
}

func scanCycle(row Row) (*leave.Cycle, error) {
	var (
		c                                        leave.Cycle
		id, employee, leaveType, carried, status string
		from, to                                 int64
		created, updated                         string
	)
	if err := row.Scan(&id, &employee, &leaveType, &from, &to,
		&carried, &status, &created, &updated); err != nil {
		return nil, err
	}
	var d decoder
	c.ID = leave.CycleID(id)
	c.EmployeeID = leave.EmployeeID(employee)
	c.LeaveTypeID = leave.LeaveTypeID(leaveType)
	c.Years = generic.YearRange{From: int(from), To: int(to)}
	c.TotalCarried = d.days("total_carried", carried)
	c.Status = leave.CycleStatus(status)
	c.CreatedAt = d.time("created_at", created)
	c.UpdatedAt = d.time("updated_at", updated)
	if d.err != nil {
		return nil, d.err
	}
	return &c, nil
}

// =============================================================================
// LEAVE YEAR CONFIGURATION
// =============================================================================

const yearConfigColumns = `id, year, cutoff_start_date, cutoff_end_date, remarks,
	created_at, updated_at, archived_at`

func yearConfigArgs(y *leave.YearConfiguration) []any {
	return []any{
		int64(y.Year), y.Window.Start.String(), y.Window.End.String(), y.Remarks,
		fmtTime(y.CreatedAt), fmtTime(y.UpdatedAt), nullTime(y.Lifecycle.ArchivedAt()),
	}
}

func (r *Repo) CreateYearConfig(ctx context.Context, y *leave.YearConfiguration) error {
	_, err := r.exec(ctx, `INSERT INTO leave_year_configurations (`+yearConfigColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		append([]any{string(y.ID)}, yearConfigArgs(y)...)...)
	return r.insertErr(leave.EntityYearConfig, err)
}

func (r *Repo) GetYearConfig(ctx context.Context, id leave.YearConfigID) (*leave.YearConfiguration, error) {
	y, err := scanYearConfig(r.row(ctx, `SELECT `+yearConfigColumns+` FROM leave_year_configurations WHERE id = ?`, string(id)))
	if err != nil {
		return nil, r.getErr(leave.EntityYearConfig, id, err)
	}
	return y, nil
}

func (r *Repo) UpdateYearConfig(ctx context.Context, y *leave.YearConfiguration) (int64, error) {
	n, err := r.exec(ctx, `UPDATE leave_year_configurations SET
		year = ?, cutoff_start_date = ?, cutoff_end_date = ?, remarks = ?,
		created_at = ?, updated_at = ?, archived_at = ?
		WHERE id = ?`, append(yearConfigArgs(y), string(y.ID))...)
	if err != nil {
		return 0, fmt.Errorf("update year configuration: %w", err)
	}
	return n, nil
}

func (r *Repo) ListYearConfigs(ctx context.Context) ([]*leave.YearConfiguration, error) {
	rows, err := r.query(ctx, `SELECT `+yearConfigColumns+` FROM leave_year_configurations ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("list year configurations: %w", err)
	}
	return collect(rows, scanYearConfig)
}

func scanYearConfig(row Row) (*leave.YearConfiguration, error) {
	var (
		y                                leave.YearConfiguration
		id, start, end, created, updated string
		year                             int64
		archived                         sql.NullString
	)
	if err := row.Scan(&id, &year, &start, &end, &y.Remarks, &created, &updated, &archived); err != nil {
		return nil, err
	}
	var d decoder
	y.ID = leave.YearConfigID(id)
	y.Year = int(year)
	y.Window = generic.Period{Start: d.date("cutoff_start_date", start), End: d.date("cutoff_end_date", end)}
	y.CreatedAt = d.time("created_at", created)
	y.UpdatedAt = d.time("updated_at", updated)
	y.Lifecycle = generic.LoadLifecycle(d.timePtr("archived_at", archived))
	if d.err != nil {
		return nil, d.err
	}
	return &y, nil
}

// =============================================================================
// AUDIT LOG
// =============================================================================

func (r *Repo) AppendAudit(ctx context.Context, e generic.AuditEntry) error {
	changes, err := json.Marshal(e.Changes)
	if err != nil {
		return fmt.Errorf("encode audit changes: %w", err)
	}
	_, err = r.exec(ctx, `INSERT INTO audit_log (id, occurred_at, actor_id, action, entity, entity_id, changes)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, fmtTime(e.Timestamp), e.ActorID, string(e.Action), e.Entity, e.EntityID, string(changes))
	return r.insertErr("audit_entry", err)
}

// QueryAudit returns matching entries oldest first. With a Limit only the
// newest Limit entries are returned.
func (r *Repo) QueryAudit(ctx context.Context, f generic.AuditFilter) ([]generic.AuditEntry, error) {
	var w where
	w.eq("entity", f.Entity, f.Entity == "")
	w.eq("entity_id", f.EntityID, f.EntityID == "")
	w.eq("actor_id", f.ActorID, f.ActorID == "")
	whereIn(&w, "action", f.Actions)
	q := `SELECT id, occurred_at, actor_id, action, entity, entity_id, changes FROM audit_log` + w.String() + ` ORDER BY seq DESC`
	if f.Limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", f.Limit)
	}
	rows, err := r.query(ctx, q, w.args...)
	if err != nil {
		return nil, fmt.Errorf("query audit: %w", err)
	}
	entries, err := collect(rows, scanAudit)
	if err != nil {
		return nil, err
	}
	out := make([]generic.AuditEntry, len(entries))
	for i, e := range entries {
		out[len(entries)-1-i] = *e
	}
	return out, nil
}

func scanAudit(row Row) (*generic.AuditEntry, error) {
	var (
		e                generic.AuditEntry
		at, action, blob string
	)
	if err := row.Scan(&e.ID, &at, &e.ActorID, &action, &e.Entity, &e.EntityID, &blob); err != nil {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339Nano, at)
	if err != nil {
		return nil, fmt.Errorf("decode occurred_at: %w", err)
	}
	e.Timestamp = t
	e.Action = generic.AuditAction(action)
	if err := json.Unmarshal([]byte(blob), &e.Changes); err != nil {
		return nil, fmt.Errorf("decode audit changes: %w", err)
	}
	return &e, nil
}
