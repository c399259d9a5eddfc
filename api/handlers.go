/*
handlers.go - HTTP API handlers for the leave ledger

PURPOSE:
  Exposes the leave service via REST API. Handles HTTP request/response,
  JSON serialization, and delegates every decision to leave.Service.

ENDPOINTS:
  Leave types:
    GET    /api/leave-types                  List leave types
    POST   /api/leave-types                  Register a leave type

  Policies:
    GET    /api/policies                     List (?leave_type_id, ?status)
    POST   /api/policies                     Create DRAFT policy from JSON
    GET    /api/policies/{id}                Get policy
    PATCH  /api/policies/{id}                Update DRAFT/ACTIVE policy
    POST   /api/policies/{id}/activate       DRAFT -> ACTIVE
    POST   /api/policies/{id}/retire         ACTIVE -> RETIRED
    POST   /api/policies/retire-expired      Natural retirement sweep

  Balances:
    GET    /api/balances                     List (?employee_id, ?leave_type_id, ?year, ?status)
    POST   /api/balances                     Open a balance
    GET    /api/balances/{id}                Get balance
    GET    /api/balances/{id}/transactions   Journal
    GET    /api/balances/{id}/replay         Rebuild from journal and report drift
    POST   /api/balances/{id}/adjustments    Post an ADJUSTMENT
    POST   /api/balances/{id}/close          Close
    POST   /api/balances/{id}/reopen         Reopen

  Transactions:
    PATCH  /api/transactions/{id}            Update remarks
    DELETE /api/transactions/{id}            Archive (reverts its effect)

  Requests:
    GET    /api/requests                     List (?employee_id, ?balance_id, ?status)
    POST   /api/requests                     Submit
    GET    /api/requests/{id}                Get
    POST   /api/requests/{id}/approve        Approve (posts the debit)
    POST   /api/requests/{id}/reject         Reject
    POST   /api/requests/{id}/cancel         Cancel

  Encashments:
    GET    /api/encashments                  List (?employee_id, ?balance_id, ?status)
    POST   /api/encashments                  Create
    GET    /api/encashments/{id}             Get
    PATCH  /api/encashments/{id}             Update
    DELETE /api/encashments/{id}             Archive
    POST   /api/encashments/{id}/pay         Mark as paid

  Cycles:
    GET    /api/cycles                       List (?employee_id, ?leave_type_id, ?status)
    POST   /api/cycles                       Open
    GET    /api/cycles/active                Active cycle (?employee_id, ?leave_type_id)
    POST   /api/cycles/{id}/close            Close and roll over

  Leave years:
    GET    /api/leave-years                  List
    POST   /api/leave-years                  Create
    GET    /api/leave-years/resolve          Year containing ?date
    PATCH  /api/leave-years/{id}             Update
    DELETE /api/leave-years/{id}             Archive

  Audit:
    GET    /api/audit                        Query (?entity, ?entity_id, ?actor_id, ?limit)

ERROR HANDLING:
  Errors are returned as JSON with the status of their kind:
  - 400: invalid_argument, malformed body
  - 404: not_found
  - 409: conflict, overlapping_request
  - 422: insufficient_balance
  - 500: persistence_failure

ACTOR:
  The X-Actor-ID header names who performs a mutation; it is recorded in
  the audit trail. There is no authentication.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/warp/leave-ledger/factory"
	"github.com/warp/leave-ledger/generic"
	"github.com/warp/leave-ledger/leave"
)

// ActorHeader carries the acting user's identity.
const ActorHeader = "X-Actor-ID"

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service       *leave.Service
	PolicyFactory *factory.PolicyFactory
	Log           *zap.Logger

	// Resetter enables the demo scenario routes. Leave nil in production.
	Resetter Resetter

	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a new handler over svc.
func NewHandler(svc *leave.Service, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		Service:       svc,
		PolicyFactory: factory.NewPolicyFactory(),
		Log:           log,
	}
}

// =============================================================================
// LEAVE TYPE HANDLERS
// =============================================================================

func (h *Handler) ListLeaveTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.Service.ListLeaveTypes(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(types, func(lt *leave.LeaveType) LeaveTypeDTO {
		return LeaveTypeDTO{ID: string(lt.ID), Name: lt.Name, Archived: lt.Archived}
	}))
}

func (h *Handler) CreateLeaveType(w http.ResponseWriter, r *http.Request) {
	var req CreateLeaveTypeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	lt, err := h.Service.CreateLeaveType(r.Context(), leave.LeaveTypeID(req.ID), req.Name)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, LeaveTypeDTO{ID: string(lt.ID), Name: lt.Name})
}

// =============================================================================
// POLICY HANDLERS
// =============================================================================

func (h *Handler) policyDTO(p *leave.Policy) PolicyDTO {
	return PolicyDTO{
		PolicyJSON: h.PolicyFactory.ToJSON(p),
		CreatedAt:  formatTime(p.CreatedAt),
		UpdatedAt:  formatTime(p.UpdatedAt),
	}
}

func (h *Handler) ListPolicies(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	policies, err := h.Service.ListPolicies(r.Context(), leave.PolicyFilter{
		LeaveTypeID: leave.LeaveTypeID(q.Get("leave_type_id")),
		Statuses:    splitQuery[leave.PolicyStatus](q.Get("status"), strings.ToUpper),
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(policies, h.policyDTO))
}

// CreatePolicy creates a DRAFT policy from a factory.PolicyJSON body.
func (h *Handler) CreatePolicy(w http.ResponseWriter, r *http.Request) {
	var pj factory.PolicyJSON
	if !decodeBody(w, r, &pj) {
		return
	}
	in, err := h.PolicyFactory.FromJSON(pj)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	p, err := h.Service.CreatePolicy(r.Context(), in)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.policyDTO(p))
}

func (h *Handler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	p, err := h.Service.GetPolicy(r.Context(), leave.PolicyID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.policyDTO(p))
}

func (h *Handler) UpdatePolicy(w http.ResponseWriter, r *http.Request) {
	var req UpdatePolicyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	patch := leave.PolicyPatch{
		AnnualEntitlement:    req.AnnualEntitlement,
		CarryLimit:           req.CarryLimit,
		EncashLimit:          req.EncashLimit,
		CarriedOverYears:     req.CarriedOverYears,
		EffectiveDate:        req.EffectiveDate,
		ExpiryDate:           req.ExpiryDate,
		Remarks:              req.Remarks,
		MinimumServiceMonths: req.MinimumServiceMonths,
		EmploymentTypes:      req.AllowedEmploymentTypes,
		EmployeeStatuses:     req.AllowedEmployeeStatuses,
	}
	switch {
	case req.ExcludedWeekdays.IsClear():
		patch.ExcludedWeekdays = generic.Clear[[]int]()
	case req.ExcludedWeekdays.IsSet():
		names, _ := req.ExcludedWeekdays.Value()
		days := []int{}
		for _, n := range names {
			d, err := factory.ParseWeekday(n)
			if err != nil {
				h.writeServiceError(w, r, err)
				return
			}
			days = append(days, d)
		}
		patch.ExcludedWeekdays = generic.Set(days)
	}

	p, err := h.Service.UpdatePolicy(r.Context(), leave.PolicyID(chi.URLParam(r, "id")), patch)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.policyDTO(p))
}

func (h *Handler) ActivatePolicy(w http.ResponseWriter, r *http.Request) {
	p, err := h.Service.ActivatePolicy(r.Context(), leave.PolicyID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.policyDTO(p))
}

func (h *Handler) RetirePolicy(w http.ResponseWriter, r *http.Request) {
	p, err := h.Service.RetirePolicy(r.Context(), leave.PolicyID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.policyDTO(p))
}

func (h *Handler) RetireExpiredPolicies(w http.ResponseWriter, r *http.Request) {
	retired, err := h.Service.RetireExpiredPolicies(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(retired, h.policyDTO))
}

// =============================================================================
// BALANCE HANDLERS
// =============================================================================

func (h *Handler) ListBalances(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	year, err := optionalInt(q.Get("year"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid year", err)
		return
	}
	balances, err := h.Service.ListBalances(r.Context(), leave.BalanceFilter{
		EmployeeID:  leave.EmployeeID(q.Get("employee_id")),
		LeaveTypeID: leave.LeaveTypeID(q.Get("leave_type_id")),
		Year:        year,
		Statuses:    splitQuery[leave.BalanceStatus](q.Get("status"), strings.ToUpper),
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(balances, toBalanceDTO))
}

func (h *Handler) OpenBalance(w http.ResponseWriter, r *http.Request) {
	var req OpenBalanceRequest
	if !decodeBody(w, r, &req) {
		return
	}
	b, err := h.Service.OpenBalance(r.Context(), leave.OpenBalanceInput{
		Employee: leave.EmployeeProfile{
			ID:             leave.EmployeeID(req.EmployeeID),
			HireDate:       req.HireDate,
			EmploymentType: req.EmploymentType,
			Status:         req.EmployeeStatus,
		},
		LeaveTypeID: leave.LeaveTypeID(req.LeaveTypeID),
		Year:        req.Year,
		CarriedOver: req.CarriedOver,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBalanceDTO(b))
}

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	b, err := h.Service.GetBalance(r.Context(), leave.BalanceID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTO(b))
}

func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := h.Service.ListTransactions(r.Context(), leave.BalanceID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(txs, toTransactionDTO))
}

func (h *Handler) ReplayBalance(w http.ResponseWriter, r *http.Request) {
	res, err := h.Service.ReplayBalance(r.Context(), leave.BalanceID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ReplayDTO{
		Consistent: res.Consistent(),
		Stored:     toBalanceDTO(res.Stored),
		Rebuilt:    toBalanceDTO(res.Rebuilt),
		Drift:      res.Drift,
	})
}

func (h *Handler) CreateAdjustment(w http.ResponseWriter, r *http.Request) {
	var req AdjustmentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	tx, err := h.Service.PostAdjustment(r.Context(), leave.BalanceID(chi.URLParam(r, "id")), req.Days, req.Remarks)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionDTO(tx))
}

func (h *Handler) CloseBalance(w http.ResponseWriter, r *http.Request) {
	b, err := h.Service.CloseBalance(r.Context(), leave.BalanceID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTO(b))
}

func (h *Handler) ReopenBalance(w http.ResponseWriter, r *http.Request) {
	b, err := h.Service.ReopenBalance(r.Context(), leave.BalanceID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTO(b))
}

// =============================================================================
// TRANSACTION HANDLERS
// =============================================================================

func (h *Handler) UpdateTransaction(w http.ResponseWriter, r *http.Request) {
	var req RemarksRequest
	if !decodeBody(w, r, &req) {
		return
	}
	tx, err := h.Service.UpdateTransactionRemarks(r.Context(), leave.TransactionID(chi.URLParam(r, "id")), req.Remarks)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTO(tx))
}

func (h *Handler) ArchiveTransaction(w http.ResponseWriter, r *http.Request) {
	tx, err := h.Service.ArchiveTransaction(r.Context(), leave.TransactionID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTO(tx))
}

// =============================================================================
// REQUEST HANDLERS
// =============================================================================

func (h *Handler) ListRequests(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	reqs, err := h.Service.ListRequests(r.Context(), leave.RequestFilter{
		EmployeeID: leave.EmployeeID(q.Get("employee_id")),
		BalanceID:  leave.BalanceID(q.Get("balance_id")),
		Statuses:   splitQuery[leave.RequestStatus](q.Get("status"), strings.ToUpper),
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(reqs, toRequestDTO))
}

func (h *Handler) SubmitRequest(w http.ResponseWriter, r *http.Request) {
	var req SubmitLeaveRequest
	if !decodeBody(w, r, &req) {
		return
	}
	lr, err := h.Service.SubmitRequest(r.Context(), leave.RequestInput{
		EmployeeID: leave.EmployeeID(req.EmployeeID),
		BalanceID:  leave.BalanceID(req.BalanceID),
		StartDate:  req.StartDate,
		EndDate:    req.EndDate,
		TotalDays:  req.TotalDays,
		Reason:     req.Reason,
	})
	if leave.IsAdmissionRejection(err) {
		h.Log.Info("leave request rejected at admission",
			zap.String("employee_id", req.EmployeeID),
			zap.String("balance_id", req.BalanceID),
			zap.String("reason", string(generic.KindOf(err))))
	}
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRequestDTO(lr))
}

func (h *Handler) GetRequest(w http.ResponseWriter, r *http.Request) {
	lr, err := h.Service.GetRequest(r.Context(), leave.RequestID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(lr))
}

func (h *Handler) ApproveRequest(w http.ResponseWriter, r *http.Request) {
	h.decideRequest(w, r, h.Service.ApproveRequest)
}

func (h *Handler) RejectRequest(w http.ResponseWriter, r *http.Request) {
	h.decideRequest(w, r, h.Service.RejectRequest)
}

func (h *Handler) CancelRequest(w http.ResponseWriter, r *http.Request) {
	h.decideRequest(w, r, h.Service.CancelRequest)
}

type requestDecision func(ctx context.Context, id leave.RequestID, remarks string) (*leave.Request, error)

// decideRequest handles the approve/reject/cancel family. The body is
// optional.
func (h *Handler) decideRequest(w http.ResponseWriter, r *http.Request, decide requestDecision) {
	var req RemarksRequest
	if r.ContentLength != 0 && !decodeBody(w, r, &req) {
		return
	}
	lr, err := decide(r.Context(), leave.RequestID(chi.URLParam(r, "id")), req.Remarks)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(lr))
}

// =============================================================================
// ENCASHMENT HANDLERS
// =============================================================================

func (h *Handler) ListEncashments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	es, err := h.Service.ListEncashments(r.Context(), leave.EncashmentFilter{
		EmployeeID: leave.EmployeeID(q.Get("employee_id")),
		BalanceID:  leave.BalanceID(q.Get("balance_id")),
		Statuses:   splitQuery[leave.EncashmentStatus](q.Get("status"), strings.ToUpper),
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(es, toEncashmentDTO))
}

func (h *Handler) CreateEncashment(w http.ResponseWriter, r *http.Request) {
	var req CreateEncashmentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	e, err := h.Service.CreateEncashment(r.Context(), leave.EncashmentInput{
		EmployeeID:    leave.EmployeeID(req.EmployeeID),
		BalanceID:     leave.BalanceID(req.BalanceID),
		TotalDays:     req.TotalDays,
		Amount:        generic.NewAmountFromDecimal(req.Amount.Value, generic.UnitMoney),
		Remarks:       req.Remarks,
		DebitOnCreate: req.DebitOnCreate,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEncashmentDTO(e))
}

func (h *Handler) GetEncashment(w http.ResponseWriter, r *http.Request) {
	e, err := h.Service.GetEncashment(r.Context(), leave.EncashmentID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEncashmentDTO(e))
}

func (h *Handler) UpdateEncashment(w http.ResponseWriter, r *http.Request) {
	var req UpdateEncashmentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	patch := leave.EncashmentPatch{
		TotalDays: req.TotalDays,
		Amount:    req.Amount,
		Remarks:   req.Remarks,
	}
	if v, ok := req.Amount.Value(); ok {
		patch.Amount = generic.Set(generic.NewAmountFromDecimal(v.Value, generic.UnitMoney))
	}
	e, err := h.Service.UpdateEncashment(r.Context(), leave.EncashmentID(chi.URLParam(r, "id")), patch)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEncashmentDTO(e))
}

func (h *Handler) ArchiveEncashment(w http.ResponseWriter, r *http.Request) {
	e, err := h.Service.ArchiveEncashment(r.Context(), leave.EncashmentID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEncashmentDTO(e))
}

func (h *Handler) MarkEncashmentPaid(w http.ResponseWriter, r *http.Request) {
	var req MarkPaidRequest
	if !decodeBody(w, r, &req) {
		return
	}
	e, err := h.Service.MarkEncashmentPaid(r.Context(), leave.EncashmentID(chi.URLParam(r, "id")), req.PayrollReference)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEncashmentDTO(e))
}

// =============================================================================
// CYCLE HANDLERS
// =============================================================================

func (h *Handler) ListCycles(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	cs, err := h.Service.ListCycles(r.Context(), leave.CycleFilter{
		EmployeeID:  leave.EmployeeID(q.Get("employee_id")),
		LeaveTypeID: leave.LeaveTypeID(q.Get("leave_type_id")),
		Statuses:    splitQuery[leave.CycleStatus](q.Get("status"), strings.ToUpper),
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(cs, toCycleDTO))
}

func (h *Handler) OpenCycle(w http.ResponseWriter, r *http.Request) {
	var req OpenCycleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	c, err := h.Service.OpenCycle(r.Context(), leave.CycleInput{
		EmployeeID:  leave.EmployeeID(req.EmployeeID),
		LeaveTypeID: leave.LeaveTypeID(req.LeaveTypeID),
		StartYear:   req.StartYear,
		EndYear:     req.EndYear,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCycleDTO(c))
}

func (h *Handler) GetActiveCycle(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	c, err := h.Service.GetActiveCycle(r.Context(),
		leave.EmployeeID(q.Get("employee_id")), leave.LeaveTypeID(q.Get("leave_type_id")))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCycleDTO(c))
}

func (h *Handler) CloseCycle(w http.ResponseWriter, r *http.Request) {
	res, err := h.Service.CloseCycle(r.Context(), leave.CycleID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	dto := CloseCycleDTO{Cycle: toCycleDTO(res.Cycle), Carried: res.Carried}
	if res.Closed != nil {
		b := toBalanceDTO(res.Closed)
		dto.Closed = &b
	}
	if res.Next != nil {
		b := toBalanceDTO(res.Next)
		dto.Next = &b
	}
	writeJSON(w, http.StatusOK, dto)
}

// =============================================================================
// LEAVE YEAR HANDLERS
// =============================================================================

func (h *Handler) ListLeaveYears(w http.ResponseWriter, r *http.Request) {
	ys, err := h.Service.ListYearConfigurations(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(ys, toLeaveYearDTO))
}

func (h *Handler) CreateLeaveYear(w http.ResponseWriter, r *http.Request) {
	var req CreateLeaveYearRequest
	if !decodeBody(w, r, &req) {
		return
	}
	y, err := h.Service.CreateYearConfiguration(r.Context(), leave.YearConfigInput{
		Year:        req.Year,
		CutoffStart: req.CutoffStart,
		CutoffEnd:   req.CutoffEnd,
		Remarks:     req.Remarks,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toLeaveYearDTO(y))
}

func (h *Handler) UpdateLeaveYear(w http.ResponseWriter, r *http.Request) {
	var req UpdateLeaveYearRequest
	if !decodeBody(w, r, &req) {
		return
	}
	y, err := h.Service.UpdateYearConfiguration(r.Context(), leave.YearConfigID(chi.URLParam(r, "id")), leave.YearConfigPatch{
		CutoffStart: req.CutoffStart,
		CutoffEnd:   req.CutoffEnd,
		Remarks:     req.Remarks,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveYearDTO(y))
}

func (h *Handler) ArchiveLeaveYear(w http.ResponseWriter, r *http.Request) {
	y, err := h.Service.ArchiveYearConfiguration(r.Context(), leave.YearConfigID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveYearDTO(y))
}

func (h *Handler) ResolveLeaveYear(w http.ResponseWriter, r *http.Request) {
	date, err := generic.ParseDate(r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date", err)
		return
	}
	y, err := h.Service.ResolveLeaveYear(r.Context(), date)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveYearDTO(y))
}

// =============================================================================
// AUDIT HANDLERS
// =============================================================================

func (h *Handler) ListAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := optionalInt(q.Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid limit", err)
		return
	}
	entries, err := h.Service.ListAudit(r.Context(), generic.AuditFilter{
		Entity:   q.Get("entity"),
		EntityID: q.Get("entity_id"),
		ActorID:  q.Get("actor_id"),
		Actions:  splitQuery[generic.AuditAction](q.Get("action"), strings.ToLower),
		Limit:    limit,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	out := make([]AuditEntryDTO, len(entries))
	for i, e := range entries {
		out[i] = toAuditEntryDTO(e)
	}
	writeJSON(w, http.StatusOK, out)
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// statusFor maps an error kind to its HTTP status.
func statusFor(kind generic.Kind) int {
	switch kind {
	case generic.KindNotFound:
		return http.StatusNotFound
	case generic.KindConflict, generic.KindOverlappingRequest:
		return http.StatusConflict
	case generic.KindInvalidArgument:
		return http.StatusBadRequest
	case generic.KindInsufficientBalance:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError renders a leave service error. Internal failures are
// logged and their details withheld from the client.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	kind := generic.KindOf(err)
	resp := ErrorResponse{Error: generic.Reason(err), Kind: string(kind)}

	var insufficient *generic.InsufficientBalanceError
	var overlap *generic.OverlappingRequestError
	switch {
	case errors.As(err, &insufficient):
		resp.Error = insufficient.Error()
		resp.Details = "shortfall " + insufficient.Shortfall().Value.String() + " days"
	case errors.As(err, &overlap):
		resp.Error = overlap.Error()
		resp.Details = "existing request " + overlap.ExistingRequestID
	}

	if !generic.IsClientError(err) {
		h.Log.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		resp.Error = "internal error"
	}
	writeJSON(w, statusFor(kind), resp)
}

// decodeBody decodes the JSON body into dst, writing a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

// splitQuery splits a comma-separated query value, normalising each part.
func splitQuery[S ~string](raw string, norm func(string) string) []S {
	if raw == "" {
		return nil
	}
	var out []S
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, S(norm(part)))
		}
	}
	return out
}

func optionalInt(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", raw)
	}
	return n, nil
}
