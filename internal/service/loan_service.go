package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segyhp/peer-lending/internal/domain"
	"github.com/segyhp/peer-lending/internal/repository"
	customError "github.com/segyhp/peer-lending/pkg/errors"
	"github.com/segyhp/peer-lending/pkg/utils"

	log "github.com/sirupsen/logrus"
)

// ScheduleCache is the read-through cache for repayment schedules. Entries
// are scoped to the loan version they were read at.
type ScheduleCache interface {
	Get(ctx context.Context, loanID uuid.UUID, version int) (domain.Schedule, bool, error)
	Set(ctx context.Context, loanID uuid.UUID, version int, schedule domain.Schedule) error
	Delete(ctx context.Context, loanID uuid.UUID, version int) error
}

type LoanService struct {
	loans repository.LoanRepository
	uow   repository.UnitOfWork
	now   func() time.Time
}

func NewLoanService(loans repository.LoanRepository, uow repository.UnitOfWork) *LoanService {
	return &LoanService{
		loans: loans,
		uow:   uow,
		now:   time.Now,
	}
}

// storeError passes business errors through and wraps anything else as a
// database failure.
func storeError(err error) error {
	var be *customError.BusinessError
	if errors.As(err, &be) {
		return err
	}
	return customError.WrapDatabaseError(err)
}

// RequestLoan creates a PENDING loan for the calling user
func (s *LoanService) RequestLoan(ctx context.Context, caller domain.Caller, req domain.LoanRequest) (*domain.Loan, error) {
	if err := Authorize(ActionRequestLoan, caller.Role); err != nil {
		return nil, err
	}

	if !req.Amount.IsPositive() {
		return nil, customError.NewValidationError("amount must be a positive number")
	}
	if !utils.HasCurrencyPrecision(req.Amount) {
		return nil, customError.NewValidationError("amount must have at most two decimal places")
	}
	if req.Amount.GreaterThanOrEqual(domain.MaxAmount) {
		return nil, customError.NewValidationError(fmt.Sprintf("amount must be less than %s", domain.MaxAmount.String()))
	}
	if req.Term <= 0 {
		return nil, customError.NewValidationError("term must be a positive integer")
	}
	if req.Term > domain.MaxTerm {
		return nil, customError.NewValidationError(fmt.Sprintf("term must not exceed %d", domain.MaxTerm))
	}

	now := s.now().UTC()
	// Reject now what approval would not be able to schedule
	if _, err := GenerateSchedule(uuid.Nil, req.Amount, req.Term, now); err != nil {
		return nil, err
	}

	loan := domain.NewLoan(caller, req.Amount, req.Term, now)
	if err := s.loans.Create(ctx, loan); err != nil {
		return nil, customError.WrapDatabaseError(err)
	}

	log.WithFields(log.Fields{
		"loan_id": loan.ID,
		"user_id": caller.ID,
		"amount":  loan.Amount.StringFixed(utils.CurrencyPlaces),
		"term":    loan.Term,
	}).Info("loan requested")

	return loan, nil
}

// ApproveLoan generates the repayment schedule and approves the loan in one
// transaction.
func (s *LoanService) ApproveLoan(ctx context.Context, caller domain.Caller, loanID uuid.UUID) (*domain.Loan, error) {
	if err := Authorize(ActionApproveLoan, caller.Role); err != nil {
		return nil, err
	}

	var approved *domain.Loan
	err := s.uow.WithinTx(ctx, func(r repository.Repos) error {
		loan, err := lockPendingLoan(ctx, r.Loans, loanID)
		if err != nil {
			return err
		}

		schedule, err := GenerateSchedule(loan.ID, loan.Amount, loan.Term, loan.CreatedAt)
		if err != nil {
			return err
		}

		if err := r.Schedules.Create(ctx, schedule); err != nil {
			if errors.Is(err, repository.ErrScheduleExists) {
				return customError.WrapLoanNotPending(loanID.String())
			}
			return err
		}

		if err := loan.Approve(); err != nil {
			return customError.WrapLoanNotPending(loanID.String())
		}

		if err := saveLoan(ctx, r.Loans, loan, s.now()); err != nil {
			return err
		}

		approved = loan
		return nil
	})
	if err != nil {
		return nil, storeError(err)
	}

	log.WithFields(log.Fields{
		"loan_id":  approved.ID,
		"admin_id": caller.ID,
		"term":     approved.Term,
	}).Info("loan approved")

	return approved, nil
}

// DeclineLoan moves a PENDING loan to DECLINED
func (s *LoanService) DeclineLoan(ctx context.Context, caller domain.Caller, loanID uuid.UUID) (*domain.Loan, error) {
	if err := Authorize(ActionDeclineLoan, caller.Role); err != nil {
		return nil, err
	}

	var declined *domain.Loan
	err := s.uow.WithinTx(ctx, func(r repository.Repos) error {
		loan, err := lockPendingLoan(ctx, r.Loans, loanID)
		if err != nil {
			return err
		}

		if err := loan.Decline(); err != nil {
			return customError.WrapLoanNotPending(loanID.String())
		}

		if err := saveLoan(ctx, r.Loans, loan, s.now()); err != nil {
			return err
		}

		declined = loan
		return nil
	})
	if err != nil {
		return nil, storeError(err)
	}

	log.WithFields(log.Fields{
		"loan_id":  declined.ID,
		"admin_id": caller.ID,
	}).Info("loan declined")

	return declined, nil
}

// ListLoans returns the caller's own loans in the given status
func (s *LoanService) ListLoans(ctx context.Context, caller domain.Caller, status domain.LoanStatus) ([]*domain.Loan, error) {
	if err := Authorize(ActionListOwnLoans, caller.Role); err != nil {
		return nil, err
	}
	if !status.Valid() {
		return nil, customError.NewValidationError("unknown loan status")
	}

	loans, err := s.loans.ListByUserAndStatus(ctx, caller.ID, status)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}

	return loans, nil
}

// ListAllPending returns every PENDING loan in the system
func (s *LoanService) ListAllPending(ctx context.Context, caller domain.Caller) ([]*domain.Loan, error) {
	if err := Authorize(ActionListAllPending, caller.Role); err != nil {
		return nil, err
	}

	loans, err := s.loans.ListByStatus(ctx, domain.LoanStatusPending)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}

	return loans, nil
}

func lockLoan(ctx context.Context, loans repository.LoanRepository, loanID uuid.UUID) (*domain.Loan, error) {
	loan, err := loans.GetByIDForUpdate(ctx, loanID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, customError.WrapLoanNotFound(loanID.String())
	}
	if err != nil {
		return nil, err
	}
	return loan, nil
}

func lockPendingLoan(ctx context.Context, loans repository.LoanRepository, loanID uuid.UUID) (*domain.Loan, error) {
	loan, err := lockLoan(ctx, loans, loanID)
	if err != nil {
		return nil, err
	}
	if loan.Status != domain.LoanStatusPending {
		return nil, customError.WrapLoanNotPending(loanID.String())
	}
	return loan, nil
}

func saveLoan(ctx context.Context, loans repository.LoanRepository, loan *domain.Loan, now time.Time) error {
	loan.UpdatedAt = now.UTC()
	err := loans.Update(ctx, loan)
	if errors.Is(err, repository.ErrVersionConflict) {
		return customError.WrapConcurrentUpdate(loan.ID.String())
	}
	return err
}
