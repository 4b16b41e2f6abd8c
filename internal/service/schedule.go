package service

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segyhp/peer-lending/internal/domain"
	customError "github.com/segyhp/peer-lending/pkg/errors"
	"github.com/segyhp/peer-lending/pkg/utils"

	"github.com/shopspring/decimal"
)

// GenerateSchedule splits amount into term weekly installments anchored at
// anchor. Every installment carries amount/term rounded to cents except the
// last, which absorbs the rounding residual so the schedule sums to amount.
func GenerateSchedule(loanID uuid.UUID, amount decimal.Decimal, term int, anchor time.Time) (domain.Schedule, error) {
	if !amount.IsPositive() {
		return nil, customError.NewValidationError("amount must be a positive number")
	}
	if term <= 0 {
		return nil, customError.NewValidationError("term must be a positive integer")
	}

	anchor = anchor.UTC()
	installment := utils.CalculateInstallmentAmount(amount, term)
	createdAt := time.Now().UTC()

	schedule := make(domain.Schedule, 0, term)
	allocated := decimal.Zero
	for n := 1; n <= term; n++ {
		due := installment
		if n == term {
			due = amount.Sub(allocated).Round(utils.CurrencyPlaces)
		}
		if !due.IsPositive() {
			return nil, customError.NewValidationError(
				fmt.Sprintf("amount %s is too small to split over %d terms", amount.StringFixed(utils.CurrencyPlaces), term))
		}
		allocated = allocated.Add(due)

		schedule = append(schedule, &domain.Installment{
			ID:              uuid.New(),
			LoanID:          loanID,
			TermNumber:      n,
			DueDate:         utils.CalculateDueDate(anchor, n, domain.RepaymentPeriodDays),
			RepaymentAmount: due,
			Status:          domain.InstallmentStatusPay,
			CreatedAt:       createdAt,
		})
	}

	return schedule, nil
}
