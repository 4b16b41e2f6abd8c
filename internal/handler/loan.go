package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/segyhp/peer-lending/internal/domain"
	"github.com/segyhp/peer-lending/internal/middleware"
	"github.com/segyhp/peer-lending/internal/service"
	customError "github.com/segyhp/peer-lending/pkg/errors"
	"github.com/segyhp/peer-lending/pkg/response"
)

// LoanManager drives the loan lifecycle.
type LoanManager interface {
	RequestLoan(ctx context.Context, caller domain.Caller, req domain.LoanRequest) (*domain.Loan, error)
	ApproveLoan(ctx context.Context, caller domain.Caller, loanID uuid.UUID) (*domain.Loan, error)
	DeclineLoan(ctx context.Context, caller domain.Caller, loanID uuid.UUID) (*domain.Loan, error)
	ListLoans(ctx context.Context, caller domain.Caller, status domain.LoanStatus) ([]*domain.Loan, error)
	ListAllPending(ctx context.Context, caller domain.Caller) ([]*domain.Loan, error)
}

// RepaymentLedger books installment payments.
type RepaymentLedger interface {
	PayTerm(ctx context.Context, caller domain.Caller, loanID uuid.UUID, termNumber int) (*domain.Loan, error)
	GetSchedule(ctx context.Context, caller domain.Caller, loanID uuid.UUID) (domain.Schedule, error)
}

type LoanHandler struct {
	loans      LoanManager
	repayments RepaymentLedger
	validator  *validator.Validate
}

func NewLoanHandler(loans LoanManager, repayments RepaymentLedger) *LoanHandler {
	return &LoanHandler{
		loans:      loans,
		repayments: repayments,
		validator:  newValidator(),
	}
}

// caller returns the identity placed in the context by the auth gate and
// checks it may perform action before the body is looked at.
func (h *LoanHandler) caller(w http.ResponseWriter, r *http.Request, action service.Action) (domain.Caller, bool) {
	caller, ok := middleware.CallerFromContext(r.Context())
	if !ok {
		response.BadRequest(w, "No authorization token is provided")
		return domain.Caller{}, false
	}
	if err := service.Authorize(action, caller.Role); err != nil {
		writeError(w, r, err)
		return domain.Caller{}, false
	}
	return caller, true
}

// RequestLoan handles POST /loan/request
func (h *LoanHandler) RequestLoan(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r, service.ActionRequestLoan)
	if !ok {
		return
	}

	var req domain.LoanRequest
	if err := decodeAndValidate(r, h.validator, &req); err != nil {
		writeError(w, r, err)
		return
	}

	loan, err := h.loans.RequestLoan(r.Context(), caller, req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	response.Created(w, "Loan request created", response.Payload{"loan": loan})
}

// ApproveLoan handles PUT /loan/approve
func (h *LoanHandler) ApproveLoan(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, service.ActionApproveLoan, h.loans.ApproveLoan, "Loan APPROVED Successfully")
}

// DeclineLoan handles PUT /loan/decline
func (h *LoanHandler) DeclineLoan(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, service.ActionDeclineLoan, h.loans.DeclineLoan, "Loan DECLINED Successfully")
}

func (h *LoanHandler) decide(
	w http.ResponseWriter,
	r *http.Request,
	action service.Action,
	apply func(context.Context, domain.Caller, uuid.UUID) (*domain.Loan, error),
	message string,
) {
	caller, ok := h.caller(w, r, action)
	if !ok {
		return
	}

	var req domain.LoanActionRequest
	if err := decodeAndValidate(r, h.validator, &req); err != nil {
		writeError(w, r, err)
		return
	}
	loanID, err := parseLoanID(req.LoanID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	loan, err := apply(r.Context(), caller, loanID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	response.Success(w, message, response.Payload{"loan": loan})
}

// PayTerm handles PUT /loan/repayment
func (h *LoanHandler) PayTerm(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r, service.ActionPayTerm)
	if !ok {
		return
	}

	var req domain.RepaymentRequest
	if err := decodeAndValidate(r, h.validator, &req); err != nil {
		writeError(w, r, err)
		return
	}
	loanID, err := parseLoanID(req.LoanID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	loan, err := h.repayments.PayTerm(r.Context(), caller, loanID, req.RepaymentTerm)
	if err != nil {
		writeError(w, r, err)
		return
	}

	response.Success(w, fmt.Sprintf("Repayment done for term number %d", req.RepaymentTerm), response.Payload{"loan": loan})
}

// ListPending handles GET /loan/pending
func (h *LoanHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	h.listOwn(w, r, domain.LoanStatusPending, "pending")
}

// ListApproved handles GET /loan/approved
func (h *LoanHandler) ListApproved(w http.ResponseWriter, r *http.Request) {
	h.listOwn(w, r, domain.LoanStatusApproved, "approved")
}

// ListDeclined handles GET /loan/declined
func (h *LoanHandler) ListDeclined(w http.ResponseWriter, r *http.Request) {
	h.listOwn(w, r, domain.LoanStatusDeclined, "declined")
}

// ListPaid handles GET /loan/paid
func (h *LoanHandler) ListPaid(w http.ResponseWriter, r *http.Request) {
	h.listOwn(w, r, domain.LoanStatusPaid, "paid")
}

func (h *LoanHandler) listOwn(w http.ResponseWriter, r *http.Request, status domain.LoanStatus, key string) {
	caller, ok := h.caller(w, r, service.ActionListOwnLoans)
	if !ok {
		return
	}

	loans, err := h.loans.ListLoans(r.Context(), caller, status)
	if err != nil {
		writeError(w, r, err)
		return
	}

	response.Success(w, "", response.Payload{key: nonNil(loans)})
}

// ListAllPending handles GET /loan/allPending
func (h *LoanHandler) ListAllPending(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r, service.ActionListAllPending)
	if !ok {
		return
	}

	loans, err := h.loans.ListAllPending(r.Context(), caller)
	if err != nil {
		writeError(w, r, err)
		return
	}

	response.Success(w, "", response.Payload{"pending": nonNil(loans)})
}

// GetSchedule handles GET /loan/repayment/{loanId}
func (h *LoanHandler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r, service.ActionViewSchedule)
	if !ok {
		return
	}

	loanID, err := parseLoanID(mux.Vars(r)["loanId"])
	if err != nil {
		writeError(w, r, err)
		return
	}

	schedule, err := h.repayments.GetSchedule(r.Context(), caller, loanID)
	if hasCode(err, customError.ErrCodeScheduleNotFound) {
		response.NotFound(w, customError.PublicMessage(err))
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	response.Success(w, "", response.Payload{"repayments": schedule})
}

// nonNil keeps empty lists encoded as [] rather than null.
func nonNil(loans []*domain.Loan) []*domain.Loan {
	if loans == nil {
		return []*domain.Loan{}
	}
	return loans
}
