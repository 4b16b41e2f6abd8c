package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MaxAmount is the exclusive ceiling on a loan principal. amount is stored
// as NUMERIC(18,2), which holds at most 16 integer digits.
var MaxAmount = decimal.New(1, 16)

// LoanStatus is the lifecycle state of a loan.
type LoanStatus string

const (
	LoanStatusPending  LoanStatus = "PENDING"
	LoanStatusApproved LoanStatus = "APPROVED"
	LoanStatusDeclined LoanStatus = "DECLINED"
	LoanStatusPaid     LoanStatus = "PAID"
)

// ErrInvalidTransition is returned when a loan is asked to move to a state
// that is not reachable from its current one.
var ErrInvalidTransition = errors.New("invalid loan status transition")

var loanTransitions = map[LoanStatus][]LoanStatus{
	LoanStatusPending:  {LoanStatusApproved, LoanStatusDeclined},
	LoanStatusApproved: {LoanStatusPaid},
}

// Valid reports whether s is one of the known statuses.
func (s LoanStatus) Valid() bool {
	switch s {
	case LoanStatusPending, LoanStatusApproved, LoanStatusDeclined, LoanStatusPaid:
		return true
	}
	return false
}

// CanTransitionTo reports whether a loan in status s may move to next.
func (s LoanStatus) CanTransitionTo(next LoanStatus) bool {
	for _, allowed := range loanTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is possible from s.
func (s LoanStatus) Terminal() bool {
	return len(loanTransitions[s]) == 0
}

// Loan represents a loan entity
type Loan struct {
	ID            uuid.UUID       `json:"id" db:"id"`
	UserID        uuid.UUID       `json:"userId" db:"user_id"`
	Name          string          `json:"name" db:"name"`
	Amount        decimal.Decimal `json:"amount" db:"amount"`
	Term          int             `json:"term" db:"term"`
	RemainingTerm int             `json:"remainingTerm" db:"remaining_term"`
	Status        LoanStatus      `json:"status" db:"status"`
	Version       int             `json:"-" db:"version"`
	CreatedAt     time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt     time.Time       `json:"updatedAt" db:"updated_at"`
}

// NewLoan builds a PENDING loan owned by caller.
func NewLoan(caller Caller, amount decimal.Decimal, term int, now time.Time) *Loan {
	return &Loan{
		ID:            uuid.New(),
		UserID:        caller.ID,
		Name:          caller.Name,
		Amount:        amount,
		Term:          term,
		RemainingTerm: term,
		Status:        LoanStatusPending,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func (l *Loan) transition(next LoanStatus) error {
	if !l.Status.CanTransitionTo(next) {
		return ErrInvalidTransition
	}
	l.Status = next
	return nil
}

// Approve moves a PENDING loan to APPROVED.
func (l *Loan) Approve() error {
	return l.transition(LoanStatusApproved)
}

// Decline moves a PENDING loan to DECLINED.
func (l *Loan) Decline() error {
	return l.transition(LoanStatusDeclined)
}

// RecordRepayment decrements the remaining term after one installment has
// been paid. Paying the last outstanding installment settles the loan.
func (l *Loan) RecordRepayment() error {
	if l.Status != LoanStatusApproved || l.RemainingTerm <= 0 {
		return ErrInvalidTransition
	}
	if l.RemainingTerm == 1 {
		if err := l.transition(LoanStatusPaid); err != nil {
			return err
		}
	}
	l.RemainingTerm--
	return nil
}

// Resync resets the remaining term of an APPROVED loan to the number of
// unpaid installments, settling the loan when none are left.
func (l *Loan) Resync(outstanding int) error {
	if l.Status != LoanStatusApproved || outstanding < 0 || outstanding > l.Term {
		return ErrInvalidTransition
	}
	l.RemainingTerm = outstanding
	if outstanding == 0 {
		return l.transition(LoanStatusPaid)
	}
	return nil
}

// OwnedBy reports whether the loan belongs to userID.
func (l *Loan) OwnedBy(userID uuid.UUID) bool {
	return l.UserID == userID
}

// DTOs for requests and responses

type LoanRequest struct {
	Amount decimal.Decimal `json:"amount" validate:"required,gt=0"`
	Term   int             `json:"term" validate:"required,gt=0"`
}

type LoanActionRequest struct {
	LoanID string `json:"loanId" validate:"required,uuid"`
}

type RepaymentRequest struct {
	LoanID        string `json:"loanId" validate:"required,uuid"`
	RepaymentTerm int    `json:"repaymentTerm" validate:"required"`
}
