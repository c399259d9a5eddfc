package leave

import (
	"strings"
	"time"

	"github.com/warp/leave-ledger/generic"
)

// =============================================================================
// TRANSACTION - Signed ledger line posted against one balance
// =============================================================================

// Transaction is an immutable journal entry. Its only mutable parts are the
// remarks and the archive flag, and both change only through methods.
//
// SIGN DISCIPLINE:
//
//	REQUEST     < 0  (days taken)
//	ENCASHMENT  < 0  (days converted to money)
//	CARRY       > 0  (days brought forward)
//	ADJUSTMENT  != 0 (administrative correction, either sign)
type Transaction struct {
	ID          TransactionID
	BalanceID   BalanceID
	Type        TransactionType
	Days        generic.Amount
	Remarks     string
	ReferenceID string // request or encashment that caused the posting
	EffectiveAt generic.TimePoint
	CreatedAt   time.Time
	Lifecycle   generic.Lifecycle
}

// TransactionInput carries the fields of a new posting.
type TransactionInput struct {
	BalanceID   BalanceID
	Type        TransactionType
	Days        generic.Amount
	Remarks     string
	ReferenceID string
	EffectiveAt generic.TimePoint
}

// NewTransaction builds a posting and enforces the sign discipline.
func NewTransaction(in TransactionInput, now time.Time) (*Transaction, error) {
	if strings.TrimSpace(string(in.BalanceID)) == "" {
		return nil, generic.Invalid("balance_id", "is required")
	}
	tx := &Transaction{
		ID:          NewID[TransactionID](),
		BalanceID:   in.BalanceID,
		Type:        in.Type,
		Days:        days(in.Days).Round(),
		Remarks:     in.Remarks,
		ReferenceID: in.ReferenceID,
		EffectiveAt: in.EffectiveAt,
		CreatedAt:   now,
	}
	if tx.EffectiveAt.IsZero() {
		tx.EffectiveAt = generic.DateOf(now)
	}
	if err := tx.validate(); err != nil {
		return nil, err
	}
	return tx, nil
}

func (t *Transaction) validate() error {
	switch t.Type {
	case TxRequest, TxEncashment:
		if !t.Days.IsNegative() {
			return generic.Invalid("days", string(t.Type)+" transactions must be negative")
		}
	case TxCarry:
		if t.Days.IsNegative() {
			return generic.Invalid("days", "CARRY transactions must not be negative")
		}
	// ADJUSTMENT may carry either sign.
	case TxAdjustment:
	default:
		return generic.Invalid("transaction_type", "unknown type "+string(t.Type))
	}
	if t.Days.IsZero() {
		return generic.Invalid("days", "must not be zero")
	}
	return nil
}

// UpdateRemarks changes the free-text note of an active transaction.
func (t *Transaction) UpdateRemarks(remarks string) error {
	if t.Lifecycle.IsArchived() {
		return generic.Conflict(EntityTransaction, "archived transactions cannot be updated")
	}
	t.Remarks = remarks
	return nil
}

// Counts reports whether the posting still contributes to its balance.
func (t *Transaction) Counts() bool { return !t.Lifecycle.IsArchived() }

func (t *Transaction) Snapshot() generic.Snapshot {
	return generic.Snapshot{
		"balance_id":       string(t.BalanceID),
		"transaction_type": string(t.Type),
		"days":             t.Days.Value.String(),
		"remarks":          t.Remarks,
		"reference_id":     t.ReferenceID,
		"effective_at":     t.EffectiveAt.String(),
		"state":            string(t.Lifecycle.State()),
	}
}
