package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	// RepaymentPeriodDays is the fixed spacing between two installments.
	RepaymentPeriodDays = 7

	// MaxTerm caps a loan at ten years of weekly installments.
	MaxTerm = 520
)

type InstallmentStatus string

const (
	InstallmentStatusPay  InstallmentStatus = "PAY"
	InstallmentStatusPaid InstallmentStatus = "PAID"
)

// Installment represents one entry of a loan's repayment schedule
type Installment struct {
	ID              uuid.UUID         `json:"id" db:"id"`
	LoanID          uuid.UUID         `json:"loanId" db:"loan_id"`
	TermNumber      int               `json:"term" db:"term_number"`
	DueDate         time.Time         `json:"dueDate" db:"due_date"`
	RepaymentAmount decimal.Decimal   `json:"repaymentAmount" db:"repayment_amount"`
	Status          InstallmentStatus `json:"status" db:"status"`
	PaidAt          *time.Time        `json:"paidAt,omitempty" db:"paid_at"`
	CreatedAt       time.Time         `json:"-" db:"created_at"`
}

// Payable reports whether the installment is still outstanding.
func (i *Installment) Payable() bool {
	return i.Status == InstallmentStatusPay
}

// Schedule is the ordered list of installments of one loan.
type Schedule []*Installment

// Total sums every installment amount.
func (s Schedule) Total() decimal.Decimal {
	total := decimal.Zero
	for _, in := range s {
		total = total.Add(in.RepaymentAmount)
	}
	return total
}

// Outstanding counts installments not paid yet.
func (s Schedule) Outstanding() int {
	n := 0
	for _, in := range s {
		if in.Payable() {
			n++
		}
	}
	return n
}

// Term returns the installment with the given 1-based number.
func (s Schedule) Term(number int) (*Installment, bool) {
	if number < 1 || number > len(s) {
		return nil, false
	}
	return s[number-1], true
}

type ScheduleResponse struct {
	LoanID     uuid.UUID `json:"loanId"`
	Repayments Schedule  `json:"repayments"`
}
