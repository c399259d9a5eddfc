package leave

import (
	"strconv"
	"time"

	"github.com/warp/leave-ledger/generic"
)

// =============================================================================
// BALANCE - Per employee, leave type and year
// =============================================================================

// Balance is the running total of one employee's entitlement for one leave
// type and leave year. Every field except Remaining is a bucket fed by
// transactions; Remaining is always derived:
//
//	Remaining = BeginningBalance + Earned + CarriedOver - Used - Encashed
//
// Buckets only move through Post and Revert, so the identity holds after
// every operation.
type Balance struct {
	ID                  BalanceID
	EmployeeID          EmployeeID
	LeaveTypeID         LeaveTypeID
	PolicyID            PolicyID
	Year                int
	BeginningBalance    generic.Amount
	Earned              generic.Amount
	Used                generic.Amount
	CarriedOver         generic.Amount
	Encashed            generic.Amount
	Remaining           generic.Amount
	LastTransactionDate *generic.TimePoint
	Status              BalanceStatus
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// BalanceInput carries the fields of a new balance.
type BalanceInput struct {
	EmployeeID       EmployeeID
	LeaveTypeID      LeaveTypeID
	PolicyID         PolicyID
	Year             int
	BeginningBalance generic.Amount
}

// NewBalance creates an OPEN balance with empty buckets. The annual grant
// and any carried days arrive as postings so the journal alone can rebuild
// the balance.
func NewBalance(in BalanceInput, now time.Time) (*Balance, error) {
	switch {
	case in.EmployeeID == "":
		return nil, generic.Invalid("employee_id", "is required")
	case in.LeaveTypeID == "":
		return nil, generic.Invalid("leave_type_id", "is required")
	case in.Year < 1:
		return nil, generic.Invalid("year", "must be a positive year")
	case in.BeginningBalance.IsNegative():
		return nil, generic.Invalid("beginning_balance", "must not be negative")
	}
	zero := generic.ZeroDays()
	b := &Balance{
		ID:               NewID[BalanceID](),
		EmployeeID:       in.EmployeeID,
		LeaveTypeID:      in.LeaveTypeID,
		PolicyID:         in.PolicyID,
		Year:             in.Year,
		BeginningBalance: days(in.BeginningBalance).Round(),
		Earned:           zero,
		Used:             zero,
		CarriedOver:      zero,
		Encashed:         zero,
		Status:           BalanceOpen,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	b.recompute()
	return b, nil
}

// Derived is the remaining amount implied by the five buckets.
func (b *Balance) Derived() generic.Amount {
	return b.BeginningBalance.
		Add(b.Earned).
		Add(b.CarriedOver).
		Sub(b.Used).
		Sub(b.Encashed)
}

func (b *Balance) recompute() { b.Remaining = b.Derived() }

// IsConsistent reports whether the stored Remaining matches the buckets.
func (b *Balance) IsConsistent() bool { return b.Remaining.Equal(b.Derived()) }

// Writable reports whether new postings may land on the balance.
func (b *Balance) Writable() bool { return b.Status != BalanceClosed }

// AssertSufficient returns an InsufficientBalanceError when remaining cannot
// cover the requested days.
func (b *Balance) AssertSufficient(requested generic.Amount) error {
	if requested.GreaterThan(b.Remaining) {
		return &generic.InsufficientBalanceError{
			BalanceID: string(b.ID),
			Available: b.Remaining,
			Requested: days(requested),
		}
	}
	return nil
}

// Post books a transaction into its bucket. Debits are checked for
// sufficiency first, so a rejected post leaves the balance untouched.
func (b *Balance) Post(tx *Transaction, now time.Time) error {
	if err := b.checkPostable(tx); err != nil {
		return err
	}
	if tx.Type == TxRequest || tx.Type == TxEncashment {
		if err := b.AssertSufficient(tx.Days.Abs()); err != nil {
			return err
		}
	}
	b.apply(tx.Type, tx.Days)
	b.touch(tx.EffectiveAt, now)
	return nil
}

// Revert removes a previously posted transaction's effect. Used when a
// transaction is archived.
func (b *Balance) Revert(tx *Transaction, now time.Time) error {
	if err := b.checkPostable(tx); err != nil {
		return err
	}
	b.apply(tx.Type, tx.Days.Neg())
	if b.Remaining.IsNegative() {
		b.apply(tx.Type, tx.Days)
		return generic.Conflict(EntityBalance, "reverting the transaction would make remaining negative")
	}
	b.UpdatedAt = now
	return nil
}

func (b *Balance) checkPostable(tx *Transaction) error {
	if tx.BalanceID != b.ID {
		return generic.Invalid("balance_id", "transaction "+string(tx.ID)+" does not belong to balance "+string(b.ID))
	}
	if !b.Writable() {
		return generic.Conflict(EntityBalance, "balance "+string(b.ID)+" is closed")
	}
	return nil
}

// apply moves signed days into the bucket for the type. Debit types store
// their magnitude in Used / Encashed, so a negative posting grows the bucket.
func (b *Balance) apply(t TransactionType, d generic.Amount) {
	switch t {
	case TxRequest:
		b.Used = b.Used.Sub(d)
	case TxEncashment:
		b.Encashed = b.Encashed.Sub(d)
	case TxCarry:
		b.CarriedOver = b.CarriedOver.Add(d)
	case TxAdjustment:
		b.Earned = b.Earned.Add(d)
	}
	b.recompute()
}

func (b *Balance) touch(effective generic.TimePoint, now time.Time) {
	if b.LastTransactionDate == nil || effective.After(*b.LastTransactionDate) {
		d := effective
		b.LastTransactionDate = &d
	}
	b.UpdatedAt = now
}

// Close freezes the balance at the end of its cycle.
func (b *Balance) Close(now time.Time) error {
	if b.Status == BalanceClosed {
		return generic.Conflict(EntityBalance, "balance "+string(b.ID)+" is already closed")
	}
	b.Status = BalanceClosed
	b.UpdatedAt = now
	return nil
}

// Reopen allows corrections on a closed balance.
func (b *Balance) Reopen(now time.Time) error {
	if b.Status != BalanceClosed {
		return generic.Conflict(EntityBalance, "only a CLOSED balance can be reopened, balance is "+string(b.Status))
	}
	b.Status = BalanceReopened
	b.UpdatedAt = now
	return nil
}

func (b *Balance) Snapshot() generic.Snapshot {
	return generic.Snapshot{
		"employee_id":           string(b.EmployeeID),
		"leave_type_id":         string(b.LeaveTypeID),
		"policy_id":             string(b.PolicyID),
		"year":                  strconv.Itoa(b.Year),
		"beginning_balance":     b.BeginningBalance.Value.String(),
		"earned":                b.Earned.Value.String(),
		"used":                  b.Used.Value.String(),
		"carried_over":          b.CarriedOver.Value.String(),
		"encashed":              b.Encashed.Value.String(),
		"remaining":             b.Remaining.Value.String(),
		"last_transaction_date": datePtr(b.LastTransactionDate),
		"status":                string(b.Status),
	}
}

// =============================================================================
// REPLAY - Rebuild a balance from its journal
// =============================================================================

// ReplayResult compares the stored balance against one rebuilt from its
// transactions.
type ReplayResult struct {
	Stored  *Balance
	Rebuilt *Balance
	Drift   []generic.FieldChange
}

// Consistent is true when replay reproduced the stored buckets exactly.
func (r ReplayResult) Consistent() bool { return len(r.Drift) == 0 }

// ReplayBalance rebuilds the buckets of stored from its beginning balance and
// the non-archived transactions, in order. Sufficiency is not re-checked:
// the journal is the record of what was admitted.
func ReplayBalance(stored *Balance, txs []*Transaction) ReplayResult {
	rebuilt := *stored
	zero := generic.ZeroDays()
	rebuilt.Earned, rebuilt.Used, rebuilt.CarriedOver, rebuilt.Encashed = zero, zero, zero, zero
	rebuilt.LastTransactionDate = nil
	for _, tx := range txs {
		if tx.BalanceID != stored.ID || !tx.Counts() {
			continue
		}
		rebuilt.apply(tx.Type, tx.Days)
		if rebuilt.LastTransactionDate == nil || tx.EffectiveAt.After(*rebuilt.LastTransactionDate) {
			d := tx.EffectiveAt
			rebuilt.LastTransactionDate = &d
		}
	}
	rebuilt.recompute()

	before := stored.Snapshot()
	after := rebuilt.Snapshot()
	delete(before, "last_transaction_date")
	delete(after, "last_transaction_date")
	return ReplayResult{Stored: stored, Rebuilt: &rebuilt, Drift: generic.Diff(before, after)}
}
