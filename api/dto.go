/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the leave aggregates from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

PATCH BODIES:
  Update requests use generic.Field: an absent key leaves the field
  unchanged, null clears it, a value sets it.

VALIDATION:
  Validation is done by the leave aggregates, not in DTOs. DTOs are pure
  data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/policy.go: PolicyJSON type
*/
package api

import (
	"time"

	"github.com/warp/leave-ledger/factory"
	"github.com/warp/leave-ledger/generic"
	"github.com/warp/leave-ledger/leave"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

type CreateLeaveTypeRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// UpdatePolicyRequest patches a DRAFT or ACTIVE policy.
type UpdatePolicyRequest struct {
	AnnualEntitlement       generic.Field[generic.Amount]    `json:"annual_entitlement"`
	CarryLimit              generic.Field[generic.Amount]    `json:"carry_limit"`
	EncashLimit             generic.Field[generic.Amount]    `json:"encash_limit"`
	CarriedOverYears        generic.Field[int]               `json:"carried_over_years"`
	EffectiveDate           generic.Field[generic.TimePoint] `json:"effective_date"`
	ExpiryDate              generic.Field[generic.TimePoint] `json:"expiry_date"`
	Remarks                 generic.Field[string]            `json:"remarks"`
	MinimumServiceMonths    generic.Field[int]               `json:"minimum_service_months"`
	AllowedEmploymentTypes  generic.Field[[]string]          `json:"allowed_employment_types"`
	AllowedEmployeeStatuses generic.Field[[]string]          `json:"allowed_employee_statuses"`
	ExcludedWeekdays        generic.Field[[]string]          `json:"excluded_weekdays"`
}

// OpenBalanceRequest carries the employee profile from the directory.
type OpenBalanceRequest struct {
	EmployeeID     string            `json:"employee_id"`
	HireDate       generic.TimePoint `json:"hire_date"`
	EmploymentType string            `json:"employment_type"`
	EmployeeStatus string            `json:"employee_status"`
	LeaveTypeID    string            `json:"leave_type_id"`
	Year           int               `json:"year"`
	CarriedOver    generic.Amount    `json:"carried_over"`
}

type AdjustmentRequest struct {
	Days    generic.Amount `json:"days"`
	Remarks string         `json:"remarks"`
}

type RemarksRequest struct {
	Remarks string `json:"remarks"`
}

// SubmitLeaveRequest omits total_days to have it computed from the window.
type SubmitLeaveRequest struct {
	EmployeeID string            `json:"employee_id"`
	BalanceID  string            `json:"balance_id"`
	StartDate  generic.TimePoint `json:"start_date"`
	EndDate    generic.TimePoint `json:"end_date"`
	TotalDays  generic.Amount    `json:"total_days"`
	Reason     string            `json:"reason"`
}

type CreateEncashmentRequest struct {
	EmployeeID    string         `json:"employee_id"`
	BalanceID     string         `json:"balance_id"`
	TotalDays     generic.Amount `json:"total_days"`
	Amount        generic.Amount `json:"amount"`
	Remarks       string         `json:"remarks"`
	DebitOnCreate bool           `json:"debit_on_create"`
}

type UpdateEncashmentRequest struct {
	TotalDays generic.Field[generic.Amount] `json:"total_days"`
	Amount    generic.Field[generic.Amount] `json:"amount"`
	Remarks   generic.Field[string]         `json:"remarks"`
}

type MarkPaidRequest struct {
	PayrollReference string `json:"payroll_reference"`
}

type OpenCycleRequest struct {
	EmployeeID  string `json:"employee_id"`
	LeaveTypeID string `json:"leave_type_id"`
	StartYear   int    `json:"cycle_start_year"`
	EndYear     int    `json:"cycle_end_year"`
}

type CreateLeaveYearRequest struct {
	Year        int               `json:"year"`
	CutoffStart generic.TimePoint `json:"cutoff_start_date"`
	CutoffEnd   generic.TimePoint `json:"cutoff_end_date"`
	Remarks     string            `json:"remarks"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

type UpdateLeaveYearRequest struct {
	CutoffStart generic.Field[generic.TimePoint] `json:"cutoff_start_date"`
	CutoffEnd   generic.Field[generic.TimePoint] `json:"cutoff_end_date"`
	Remarks     generic.Field[string]            `json:"remarks"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category,omitempty"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Kind    string `json:"kind,omitempty"`
	Details string `json:"details,omitempty"`
}

type LeaveTypeDTO struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Archived bool   `json:"archived"`
}

// PolicyDTO wraps factory.PolicyJSON with timestamps.
type PolicyDTO struct {
	factory.PolicyJSON
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

type BalanceDTO struct {
	ID                  string             `json:"id"`
	EmployeeID          string             `json:"employee_id"`
	LeaveTypeID         string             `json:"leave_type_id"`
	PolicyID            string             `json:"policy_id"`
	Year                int                `json:"year"`
	BeginningBalance    generic.Amount     `json:"beginning_balance"`
	Earned              generic.Amount     `json:"earned"`
	Used                generic.Amount     `json:"used"`
	CarriedOver         generic.Amount     `json:"carried_over"`
	Encashed            generic.Amount     `json:"encashed"`
	Remaining           generic.Amount     `json:"remaining"`
	LastTransactionDate *generic.TimePoint `json:"last_transaction_date,omitempty"`
	Status              string             `json:"status"`
	UpdatedAt           string             `json:"updated_at"`
}

type TransactionDTO struct {
	ID          string            `json:"id"`
	BalanceID   string            `json:"balance_id"`
	Type        string            `json:"transaction_type"`
	Days        generic.Amount    `json:"days"`
	Remarks     string            `json:"remarks,omitempty"`
	ReferenceID string            `json:"reference_id,omitempty"`
	EffectiveAt generic.TimePoint `json:"effective_at"`
	CreatedAt   string            `json:"created_at"`
	ArchivedAt  *string           `json:"archived_at,omitempty"`
}

type ReplayDTO struct {
	Consistent bool                  `json:"consistent"`
	Stored     BalanceDTO            `json:"stored"`
	Rebuilt    BalanceDTO            `json:"rebuilt"`
	Drift      []generic.FieldChange `json:"drift,omitempty"`
}

type RequestDTO struct {
	ID          string            `json:"id"`
	EmployeeID  string            `json:"employee_id"`
	LeaveTypeID string            `json:"leave_type_id"`
	BalanceID   string            `json:"balance_id"`
	StartDate   generic.TimePoint `json:"start_date"`
	EndDate     generic.TimePoint `json:"end_date"`
	TotalDays   generic.Amount    `json:"total_days"`
	Reason      string            `json:"reason,omitempty"`
	Status      string            `json:"status"`
	Remarks     string            `json:"remarks,omitempty"`
	CreatedAt   string            `json:"created_at"`
	UpdatedAt   string            `json:"updated_at"`
}

type EncashmentDTO struct {
	ID               string         `json:"id"`
	EmployeeID       string         `json:"employee_id"`
	BalanceID        string         `json:"balance_id"`
	TotalDays        generic.Amount `json:"total_days"`
	Amount           generic.Amount `json:"amount"`
	Status           string         `json:"status"`
	Remarks          string         `json:"remarks,omitempty"`
	PayrollReference string         `json:"payroll_reference,omitempty"`
	PaidAt           *string        `json:"paid_at,omitempty"`
	DebitPosted      bool           `json:"debit_posted"`
	Archived         bool           `json:"archived"`
}

type CycleDTO struct {
	ID           string         `json:"id"`
	EmployeeID   string         `json:"employee_id"`
	LeaveTypeID  string         `json:"leave_type_id"`
	StartYear    int            `json:"cycle_start_year"`
	EndYear      int            `json:"cycle_end_year"`
	TotalCarried generic.Amount `json:"total_carried"`
	Status       string         `json:"status"`
}

type CloseCycleDTO struct {
	Cycle   CycleDTO       `json:"cycle"`
	Carried generic.Amount `json:"carried"`
	Closed  *BalanceDTO    `json:"closed_balance,omitempty"`
	Next    *BalanceDTO    `json:"next_balance,omitempty"`
}

type LeaveYearDTO struct {
	ID          string            `json:"id"`
	Year        int               `json:"year"`
	CutoffStart generic.TimePoint `json:"cutoff_start_date"`
	CutoffEnd   generic.TimePoint `json:"cutoff_end_date"`
	Remarks     string            `json:"remarks,omitempty"`
	Archived    bool              `json:"archived"`
}

type AuditEntryDTO struct {
	ID        string                `json:"id"`
	Timestamp string                `json:"timestamp"`
	ActorID   string                `json:"actor_id"`
	Action    string                `json:"action"`
	Entity    string                `json:"entity"`
	EntityID  string                `json:"entity_id"`
	Changes   []generic.FieldChange `json:"changes"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func formatTime(t time.Time) string { return t.Format(time.RFC3339) }

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

func toBalanceDTO(b *leave.Balance) BalanceDTO {
	return BalanceDTO{
		ID:                  string(b.ID),
		EmployeeID:          string(b.EmployeeID),
		LeaveTypeID:         string(b.LeaveTypeID),
		PolicyID:            string(b.PolicyID),
		Year:                b.Year,
		BeginningBalance:    b.BeginningBalance,
		Earned:              b.Earned,
		Used:                b.Used,
		CarriedOver:         b.CarriedOver,
		Encashed:            b.Encashed,
		Remaining:           b.Remaining,
		LastTransactionDate: b.LastTransactionDate,
		Status:              string(b.Status),
		UpdatedAt:           formatTime(b.UpdatedAt),
	}
}

func toTransactionDTO(t *leave.Transaction) TransactionDTO {
	return TransactionDTO{
		ID:          string(t.ID),
		BalanceID:   string(t.BalanceID),
		Type:        string(t.Type),
		Days:        t.Days,
		Remarks:     t.Remarks,
		ReferenceID: t.ReferenceID,
		EffectiveAt: t.EffectiveAt,
		CreatedAt:   formatTime(t.CreatedAt),
		ArchivedAt:  formatTimePtr(t.Lifecycle.ArchivedAt()),
	}
}

func toRequestDTO(r *leave.Request) RequestDTO {
	return RequestDTO{
		ID:          string(r.ID),
		EmployeeID:  string(r.EmployeeID),
		LeaveTypeID: string(r.LeaveTypeID),
		BalanceID:   string(r.BalanceID),
		StartDate:   r.Window.Start,
		EndDate:     r.Window.End,
		TotalDays:   r.TotalDays,
		Reason:      r.Reason,
		Status:      string(r.Status),
		Remarks:     r.Remarks,
		CreatedAt:   formatTime(r.CreatedAt),
		UpdatedAt:   formatTime(r.UpdatedAt),
	}
}

func toEncashmentDTO(e *leave.Encashment) EncashmentDTO {
	return EncashmentDTO{
		ID:               string(e.ID),
		EmployeeID:       string(e.EmployeeID),
		BalanceID:        string(e.BalanceID),
		TotalDays:        e.TotalDays,
		Amount:           e.Amount,
		Status:           string(e.Status),
		Remarks:          e.Remarks,
		PayrollReference: e.PayrollReference,
		PaidAt:           formatTimePtr(e.PaidAt),
		DebitPosted:      e.DebitPosted,
		Archived:         e.Lifecycle.IsArchived(),
	}
}

func toCycleDTO(c *leave.Cycle) CycleDTO {
	return CycleDTO{
		ID:           string(c.ID),
		EmployeeID:   string(c.EmployeeID),
		LeaveTypeID:  string(c.LeaveTypeID),
		StartYear:    c.Years.From,
		EndYear:      c.Years.To,
		TotalCarried: c.TotalCarried,
		Status:       string(c.Status),
	}
}

func toLeaveYearDTO(y *leave.YearConfiguration) LeaveYearDTO {
	return LeaveYearDTO{
		ID:          string(y.ID),
		Year:        y.Year,
		CutoffStart: y.Window.Start,
		CutoffEnd:   y.Window.End,
		Remarks:     y.Remarks,
		Archived:    y.Lifecycle.IsArchived(),
	}
}

func toAuditEntryDTO(e generic.AuditEntry) AuditEntryDTO {
	changes := e.Changes
	if changes == nil {
		changes = []generic.FieldChange{}
	}
	return AuditEntryDTO{
		ID:        e.ID,
		Timestamp: formatTime(e.Timestamp),
		ActorID:   e.ActorID,
		Action:    string(e.Action),
		Entity:    e.Entity,
		EntityID:  e.EntityID,
		Changes:   changes,
	}
}

// mapSlice converts every element with fn, never returning nil.
func mapSlice[T, D any](in []*T, fn func(*T) D) []D {
	out := make([]D, len(in))
	for i, v := range in {
		out[i] = fn(v)
	}
	return out
}
