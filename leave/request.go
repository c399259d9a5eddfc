package leave

import (
	"strings"
	"time"

	"github.com/warp/leave-ledger/generic"
)

// =============================================================================
// REQUEST - An employee's ask to use days
// =============================================================================

// Request is a leave request against one balance.
//
// LIFECYCLE:
//
//	PENDING --approve--> APPROVED --cancel--> CANCELLED
//	   |                                         ^
//	   +--reject--> REJECTED                     |
//	   +--cancel---------------------------------+
//
// Only PENDING and APPROVED requests hold their window; the admission gate
// ignores the rest.
type Request struct {
	ID          RequestID
	EmployeeID  EmployeeID
	LeaveTypeID LeaveTypeID
	BalanceID   BalanceID
	Window      generic.Period
	TotalDays   generic.Amount
	Reason      string
	Status      RequestStatus
	Remarks     string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Lifecycle   generic.Lifecycle
}

// RequestInput carries the fields of a new request. A zero TotalDays is
// computed from the window and the governing policy's excluded weekdays.
type RequestInput struct {
	EmployeeID EmployeeID
	BalanceID  BalanceID
	StartDate  generic.TimePoint
	EndDate    generic.TimePoint
	TotalDays  generic.Amount
	Reason     string
}

// NewRequest builds a PENDING request. It does not run the admission gate.
func NewRequest(in RequestInput, bal *Balance, policy *Policy, now time.Time) (*Request, error) {
	if strings.TrimSpace(string(in.EmployeeID)) == "" {
		return nil, generic.Invalid("employee_id", "is required")
	}
	if bal.EmployeeID != in.EmployeeID {
		return nil, generic.Invalid("balance_id", "balance "+string(bal.ID)+" belongs to another employee")
	}
	window, err := generic.NewPeriod(in.StartDate, in.EndDate)
	if err != nil {
		return nil, err
	}
	total := days(in.TotalDays).Round()
	if total.IsZero() {
		total = CountLeaveDays(window, policy)
	}
	if !total.IsPositive() {
		return nil, generic.Invalid("total_days", "must be greater than zero")
	}
	if total.GreaterThan(generic.Days(float64(window.Length()))) {
		return nil, generic.Invalid("total_days", "exceeds the number of days in the window")
	}
	return &Request{
		ID:          NewID[RequestID](),
		EmployeeID:  in.EmployeeID,
		LeaveTypeID: bal.LeaveTypeID,
		BalanceID:   bal.ID,
		Window:      window,
		TotalDays:   total,
		Reason:      in.Reason,
		Status:      RequestPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// IsBlocking reports whether the request holds its window against others.
func (r *Request) IsBlocking() bool {
	return !r.Lifecycle.IsArchived() && (r.Status == RequestPending || r.Status == RequestApproved)
}

func (r *Request) Approve(remarks string, now time.Time) error {
	if r.Status != RequestPending {
		return generic.Conflict(EntityRequest, "only a PENDING request can be approved, request is "+string(r.Status))
	}
	r.Status = RequestApproved
	r.setRemarks(remarks, now)
	return nil
}

func (r *Request) Reject(remarks string, now time.Time) error {
	if r.Status != RequestPending {
		return generic.Conflict(EntityRequest, "only a PENDING request can be rejected, request is "+string(r.Status))
	}
	r.Status = RequestRejected
	r.setRemarks(remarks, now)
	return nil
}

// Cancel withdraws a PENDING or APPROVED request. It returns true when the
// request had been approved, in which case the caller must reverse the debit.
func (r *Request) Cancel(remarks string, now time.Time) (wasApproved bool, err error) {
	switch r.Status {
	case RequestPending, RequestApproved:
	default:
		return false, generic.Conflict(EntityRequest, "request is already "+string(r.Status))
	}
	wasApproved = r.Status == RequestApproved
	r.Status = RequestCancelled
	r.setRemarks(remarks, now)
	return wasApproved, nil
}

func (r *Request) setRemarks(remarks string, now time.Time) {
	if remarks != "" {
		r.Remarks = remarks
	}
	r.UpdatedAt = now
}

func (r *Request) Snapshot() generic.Snapshot {
	return generic.Snapshot{
		"employee_id":   string(r.EmployeeID),
		"leave_type_id": string(r.LeaveTypeID),
		"balance_id":    string(r.BalanceID),
		"start_date":    r.Window.Start.String(),
		"end_date":      r.Window.End.String(),
		"total_days":    r.TotalDays.Value.String(),
		"reason":        r.Reason,
		"status":        string(r.Status),
		"remarks":       r.Remarks,
	}
}

// =============================================================================
// ADMISSION GATE
// =============================================================================

// AdmissionGate runs the two checks a request must pass before it is
// created or approved: sufficiency against the balance, then overlap against
// the employee's blocking requests. Both inputs must come from the same
// store transaction as the write that follows.
type AdmissionGate struct{}

// Admit returns nil when req may proceed. existing may include req itself
// (on approval); it is skipped by ID.
func (AdmissionGate) Admit(req *Request, bal *Balance, existing []*Request) error {
	if err := bal.AssertSufficient(req.TotalDays); err != nil {
		return err
	}
	if other := FindOverlap(req, existing); other != nil {
		return &generic.OverlappingRequestError{
			EmployeeID:        string(req.EmployeeID),
			ExistingRequestID: string(other.ID),
			Existing:          other.Window,
			Requested:         req.Window,
		}
	}
	return nil
}

// FindOverlap returns the first blocking request of the same employee whose
// window shares a calendar day with req, or nil.
func FindOverlap(req *Request, existing []*Request) *Request {
	for _, other := range existing {
		if other.ID == req.ID || other.EmployeeID != req.EmployeeID || !other.IsBlocking() {
			continue
		}
		if req.Window.Overlaps(other.Window) {
			return other
		}
	}
	return nil
}
