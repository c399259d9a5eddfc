// Package leave implements the leave entitlement ledger and policy lifecycle.
//
// Aggregates (Policy, Balance, Transaction, Request, Encashment, Cycle,
// YearConfiguration) enforce their own invariants and change state only
// through named methods. Service orchestrates them inside a store
// transaction and writes the audit trail.
package leave

import (
	"github.com/google/uuid"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type EmployeeID string
type LeaveTypeID string
type PolicyID string
type BalanceID string
type TransactionID string
type RequestID string
type EncashmentID string
type CycleID string
type YearConfigID string

// NewID returns a random identifier for any aggregate.
func NewID[T ~string]() T {
	return T(uuid.NewString())
}

// =============================================================================
// STATUSES
// =============================================================================

type PolicyStatus string

const (
	PolicyDraft   PolicyStatus = "DRAFT"
	PolicyActive  PolicyStatus = "ACTIVE"
	PolicyRetired PolicyStatus = "RETIRED"
)

type BalanceStatus string

const (
	BalanceOpen     BalanceStatus = "OPEN"
	BalanceClosed   BalanceStatus = "CLOSED"
	BalanceReopened BalanceStatus = "REOPENED"
)

type TransactionType string

const (
	TxRequest    TransactionType = "REQUEST"
	TxEncashment TransactionType = "ENCASHMENT"
	TxCarry      TransactionType = "CARRY"
	TxAdjustment TransactionType = "ADJUSTMENT"
)

type RequestStatus string

const (
	RequestPending   RequestStatus = "PENDING"
	RequestApproved  RequestStatus = "APPROVED"
	RequestRejected  RequestStatus = "REJECTED"
	RequestCancelled RequestStatus = "CANCELLED"
)

type EncashmentStatus string

const (
	EncashmentPending EncashmentStatus = "PENDING"
	EncashmentPaid    EncashmentStatus = "PAID"
)

type CycleStatus string

const (
	CycleOpen   CycleStatus = "OPEN"
	CycleClosed CycleStatus = "CLOSED"
)

// Entity names used in errors and audit entries.
const (
	EntityPolicy      = "leave_policy"
	EntityBalance     = "leave_balance"
	EntityTransaction = "leave_transaction"
	EntityRequest     = "leave_request"
	EntityEncashment  = "leave_encashment"
	EntityCycle       = "leave_cycle"
	EntityYearConfig  = "leave_year_configuration"
	EntityLeaveType   = "leave_type"
)

// LeaveType is the reference record policies and balances point at. It is
// owned by the reference-data layer; the core only checks existence.
type LeaveType struct {
	ID       LeaveTypeID
	Name     string
	Archived bool
}
