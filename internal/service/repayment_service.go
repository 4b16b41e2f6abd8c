package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/segyhp/peer-lending/internal/domain"
	"github.com/segyhp/peer-lending/internal/repository"
	customError "github.com/segyhp/peer-lending/pkg/errors"

	log "github.com/sirupsen/logrus"
)

type RepaymentService struct {
	loans     repository.LoanRepository
	schedules repository.ScheduleRepository
	uow       repository.UnitOfWork
	cache     ScheduleCache
	now       func() time.Time
}

// NewRepaymentService builds the ledger. cache may be nil.
func NewRepaymentService(
	loans repository.LoanRepository,
	schedules repository.ScheduleRepository,
	uow repository.UnitOfWork,
	cache ScheduleCache,
) *RepaymentService {
	return &RepaymentService{
		loans:     loans,
		schedules: schedules,
		uow:       uow,
		cache:     cache,
		now:       time.Now,
	}
}

// PayTerm marks one installment as PAID and books it against the loan
func (s *RepaymentService) PayTerm(ctx context.Context, caller domain.Caller, loanID uuid.UUID, termNumber int) (*domain.Loan, error) {
	if err := Authorize(ActionPayTerm, caller.Role); err != nil {
		return nil, err
	}

	var (
		paid        *domain.Loan
		prevVersion int
	)
	err := s.uow.WithinTx(ctx, func(r repository.Repos) error {
		loan, err := lockLoan(ctx, r.Loans, loanID)
		if err != nil {
			return err
		}
		if !loan.OwnedBy(caller.ID) {
			return customError.NewAuthorizationError("You can only repay your own loans")
		}

		schedule, err := r.Schedules.GetByLoanID(ctx, loanID)
		if err != nil {
			return err
		}
		if len(schedule) == 0 {
			return customError.WrapScheduleNotFound(loanID.String())
		}

		installment, ok := schedule.Term(termNumber)
		if !ok {
			return customError.WrapTermOutOfRange(termNumber, len(schedule))
		}
		if !installment.Payable() {
			return customError.WrapInstallmentAlreadyPaid(termNumber)
		}

		now := s.now().UTC()
		marked, err := r.Schedules.MarkPaid(ctx, loanID, termNumber, now)
		if err != nil {
			return err
		}
		if !marked {
			return customError.WrapInstallmentAlreadyPaid(termNumber)
		}

		if err := loan.RecordRepayment(); err != nil {
			return customError.NewInvalidStateError("The loan is not open for repayment")
		}

		prevVersion = loan.Version
		if err := saveLoan(ctx, r.Loans, loan, now); err != nil {
			return err
		}

		paid = loan
		return nil
	})
	if err != nil {
		return nil, storeError(err)
	}

	s.invalidate(ctx, loanID, prevVersion)

	entry := log.WithFields(log.Fields{
		"loan_id":        paid.ID,
		"user_id":        caller.ID,
		"term":           termNumber,
		"remaining_term": paid.RemainingTerm,
	})
	entry.Info("installment paid")
	if paid.Status == domain.LoanStatusPaid {
		entry.Info("loan paid off")
	}

	return paid, nil
}

// GetSchedule returns the caller's repayment schedule for a loan
func (s *RepaymentService) GetSchedule(ctx context.Context, caller domain.Caller, loanID uuid.UUID) (domain.Schedule, error) {
	if err := Authorize(ActionViewSchedule, caller.Role); err != nil {
		return nil, err
	}

	loan, err := s.loans.GetByID(ctx, loanID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, customError.WrapLoanNotFound(loanID.String())
	}
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	if !loan.OwnedBy(caller.ID) {
		return nil, customError.NewAuthorizationError("You can only view your own repayments")
	}

	// loan.Version is read before the schedule, so a payment committed in
	// between bumps the version and orphans whatever is cached below.
	if schedule, ok := s.cached(ctx, loanID, loan.Version); ok {
		return schedule, nil
	}

	schedule, err := s.schedules.GetByLoanID(ctx, loanID)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	if len(schedule) == 0 {
		return nil, customError.WrapScheduleNotFound(loanID.String())
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, loanID, loan.Version, schedule); err != nil {
			log.WithError(customError.WrapCacheError(err)).WithField("loan_id", loanID).Warn("failed to cache schedule")
		}
	}

	return schedule, nil
}

func (s *RepaymentService) cached(ctx context.Context, loanID uuid.UUID, version int) (domain.Schedule, bool) {
	if s.cache == nil {
		return nil, false
	}

	schedule, ok, err := s.cache.Get(ctx, loanID, version)
	if err != nil {
		log.WithError(customError.WrapCacheError(err)).WithField("loan_id", loanID).Warn("failed to read cached schedule")
		return nil, false
	}

	return schedule, ok && len(schedule) > 0
}

// invalidate drops the entry cached under a superseded loan version.
func (s *RepaymentService) invalidate(ctx context.Context, loanID uuid.UUID, version int) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, loanID, version); err != nil {
		log.WithError(customError.WrapCacheError(err)).WithField("loan_id", loanID).Warn("failed to invalidate cached schedule")
	}
}
