package leave

import (
	"strconv"
	"strings"
	"time"

	"github.com/warp/leave-ledger/generic"
)

// =============================================================================
// ENCASHMENT - Unused days converted to money
// =============================================================================

// Encashment converts days of one balance into a payroll amount.
//
// LIFECYCLE:
//
//	PENDING --mark paid--> PAID (terminal)
//
// A PAID encashment is a settled financial record: it cannot be updated,
// archived, or paid again. The ENCASHMENT debit is posted when the
// encashment is paid unless DebitPosted says it already was.
type Encashment struct {
	ID               EncashmentID
	EmployeeID       EmployeeID
	BalanceID        BalanceID
	TotalDays        generic.Amount
	Amount           generic.Amount
	Status           EncashmentStatus
	Remarks          string
	PayrollReference string
	PaidAt           *time.Time
	DebitPosted      bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
	Lifecycle        generic.Lifecycle
}

type EncashmentInput struct {
	EmployeeID EmployeeID
	BalanceID  BalanceID
	TotalDays  generic.Amount
	Amount     generic.Amount
	Remarks    string

	// DebitOnCreate posts the ENCASHMENT debit immediately instead of at
	// payment time.
	DebitOnCreate bool
}

// NewEncashment builds a PENDING encashment.
func NewEncashment(in EncashmentInput, now time.Time) (*Encashment, error) {
	if strings.TrimSpace(string(in.EmployeeID)) == "" {
		return nil, generic.Invalid("employee_id", "is required")
	}
	if strings.TrimSpace(string(in.BalanceID)) == "" {
		return nil, generic.Invalid("balance_id", "is required")
	}
	e := &Encashment{
		ID:         NewID[EncashmentID](),
		EmployeeID: in.EmployeeID,
		BalanceID:  in.BalanceID,
		TotalDays:  days(in.TotalDays).Round(),
		Amount:     money(in.Amount),
		Status:     EncashmentPending,
		Remarks:    in.Remarks,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := e.validate(); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Encashment) validate() error {
	if !e.TotalDays.IsPositive() {
		return generic.Invalid("total_days", "must be greater than zero")
	}
	if e.Amount.IsNegative() {
		return generic.Invalid("amount", "must not be negative")
	}
	return nil
}

// EncashmentPatch is a partial update of a PENDING encashment.
type EncashmentPatch struct {
	TotalDays generic.Field[generic.Amount]
	Amount    generic.Field[generic.Amount]
	Remarks   generic.Field[string]
}

func (e *Encashment) checkMutable() error {
	if e.Status == EncashmentPaid {
		return generic.Conflict(EntityEncashment, "encashment "+string(e.ID)+" is PAID and cannot change")
	}
	if e.Lifecycle.IsArchived() {
		return generic.Conflict(EntityEncashment, "encashment "+string(e.ID)+" is archived")
	}
	return nil
}

// Update applies a patch. Days cannot change once the debit is posted.
func (e *Encashment) Update(patch EncashmentPatch, now time.Time) error {
	if err := e.checkMutable(); err != nil {
		return err
	}
	if e.DebitPosted && patch.TotalDays.IsSet() {
		return generic.Conflict(EntityEncashment, "total_days cannot change after the debit is posted")
	}
	next := *e
	patch.TotalDays.Apply(&next.TotalDays)
	patch.Amount.Apply(&next.Amount)
	patch.Remarks.Apply(&next.Remarks)
	next.TotalDays = days(next.TotalDays).Round()
	next.Amount = money(next.Amount)
	if err := next.validate(); err != nil {
		return err
	}
	next.UpdatedAt = now
	*e = next
	return nil
}

// Archive soft-deletes a PENDING encashment.
func (e *Encashment) Archive(now time.Time) error {
	if e.Status == EncashmentPaid {
		return generic.Conflict(EntityEncashment, "encashment "+string(e.ID)+" is PAID and cannot be archived")
	}
	if err := e.Lifecycle.Archive(EntityEncashment, now); err != nil {
		return err
	}
	e.UpdatedAt = now
	return nil
}

// MarkAsPaid is the only path to PAID. A second call fails because the
// encashment is no longer PENDING.
func (e *Encashment) MarkAsPaid(payrollReference string, now time.Time) error {
	if err := e.checkMutable(); err != nil {
		return err
	}
	if strings.TrimSpace(payrollReference) == "" {
		return generic.Invalid("payroll_reference", "is required")
	}
	e.Status = EncashmentPaid
	e.PayrollReference = payrollReference
	paid := now
	e.PaidAt = &paid
	e.UpdatedAt = now
	return nil
}

// Debit is the ENCASHMENT posting that settles this encashment.
func (e *Encashment) Debit(now time.Time) (*Transaction, error) {
	return NewTransaction(TransactionInput{
		BalanceID:   e.BalanceID,
		Type:        TxEncashment,
		Days:        e.TotalDays.Neg(),
		Remarks:     "encashment " + string(e.ID),
		ReferenceID: string(e.ID),
		EffectiveAt: generic.DateOf(now),
	}, now)
}

func (e *Encashment) Snapshot() generic.Snapshot {
	paidAt := ""
	if e.PaidAt != nil {
		paidAt = e.PaidAt.UTC().Format(time.RFC3339)
	}
	return generic.Snapshot{
		"employee_id":       string(e.EmployeeID),
		"balance_id":        string(e.BalanceID),
		"total_days":        e.TotalDays.Value.String(),
		"amount":            e.Amount.Value.String(),
		"status":            string(e.Status),
		"remarks":           e.Remarks,
		"payroll_reference": e.PayrollReference,
		"paid_at":           paidAt,
		"debit_posted":      strconv.FormatBool(e.DebitPosted),
		"state":             string(e.Lifecycle.State()),
	}
}

func money(a generic.Amount) generic.Amount {
	return generic.NewAmountFromDecimal(a.Value.Round(2), generic.UnitMoney)
}
