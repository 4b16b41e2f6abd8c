package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/segyhp/peer-lending/internal/domain"
	"github.com/segyhp/peer-lending/internal/repository"
	"github.com/segyhp/peer-lending/pkg/utils"

	log "github.com/sirupsen/logrus"
)

// ReconcileReport counts the repairs made by one reconciliation run.
type ReconcileReport struct {
	Approved    int
	Rescheduled int
	Resynced    int
}

// ReminderReport counts the installments reported by one reminder run.
type ReminderReport struct {
	Upcoming int
	Overdue  int
}

// Reconciler re-derives loan state from the stored schedules. It repairs
// data written outside a transaction, such as bulk imports.
type Reconciler struct {
	loans     repository.LoanRepository
	schedules repository.ScheduleRepository
	uow       repository.UnitOfWork
	cache     ScheduleCache
	now       func() time.Time
}

func NewReconciler(
	loans repository.LoanRepository,
	schedules repository.ScheduleRepository,
	uow repository.UnitOfWork,
	cache ScheduleCache,
) *Reconciler {
	return &Reconciler{
		loans:     loans,
		schedules: schedules,
		uow:       uow,
		cache:     cache,
		now:       time.Now,
	}
}

// ReconcileLoans walks PENDING and APPROVED loans and repairs any whose
// status or remaining term disagrees with its schedule. A failure on one
// loan is logged and does not stop the run.
func (r *Reconciler) ReconcileLoans(ctx context.Context) (ReconcileReport, error) {
	var report ReconcileReport
	var errs []error

	pending, err := r.loans.ListByStatus(ctx, domain.LoanStatusPending)
	if err != nil {
		return report, err
	}
	for _, loan := range pending {
		schedule, err := r.schedules.GetByLoanID(ctx, loan.ID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if len(schedule) == 0 {
			continue
		}
		fixed, err := r.approveScheduled(ctx, loan.ID)
		if err != nil {
			log.WithError(err).WithField("loan_id", loan.ID).Error("failed to approve scheduled loan")
			errs = append(errs, err)
			continue
		}
		if fixed {
			report.Approved++
		}
	}

	approved, err := r.loans.ListByStatus(ctx, domain.LoanStatusApproved)
	if err != nil {
		return report, errors.Join(append(errs, err)...)
	}
	for _, loan := range approved {
		schedule, err := r.schedules.GetByLoanID(ctx, loan.ID)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		if len(schedule) == 0 {
			fixed, err := r.regenerate(ctx, loan.ID)
			if err != nil {
				log.WithError(err).WithField("loan_id", loan.ID).Error("failed to regenerate schedule")
				errs = append(errs, err)
				continue
			}
			if fixed {
				report.Rescheduled++
			}
			continue
		}

		if loan.RemainingTerm == schedule.Outstanding() {
			continue
		}
		fixed, err := r.resync(ctx, loan.ID, schedule.Outstanding())
		if err != nil {
			log.WithError(err).WithField("loan_id", loan.ID).Error("failed to resync remaining term")
			errs = append(errs, err)
			continue
		}
		if fixed {
			report.Resynced++
			r.invalidate(ctx, loan.ID, loan.Version)
		}
	}

	log.WithFields(log.Fields{
		"approved":    report.Approved,
		"rescheduled": report.Rescheduled,
		"resynced":    report.Resynced,
		"failures":    len(errs),
	}).Info("reconciliation finished")

	return report, errors.Join(errs...)
}

func (r *Reconciler) approveScheduled(ctx context.Context, loanID uuid.UUID) (bool, error) {
	fixed := false
	err := r.uow.WithinTx(ctx, func(repos repository.Repos) error {
		loan, err := lockLoan(ctx, repos.Loans, loanID)
		if err != nil {
			return err
		}
		if loan.Status != domain.LoanStatusPending {
			return nil
		}
		if err := loan.Approve(); err != nil {
			return err
		}
		if err := saveLoan(ctx, repos.Loans, loan, r.now()); err != nil {
			return err
		}
		fixed = true
		return nil
	})
	return fixed, err
}

func (r *Reconciler) regenerate(ctx context.Context, loanID uuid.UUID) (bool, error) {
	fixed := false
	err := r.uow.WithinTx(ctx, func(repos repository.Repos) error {
		loan, err := lockLoan(ctx, repos.Loans, loanID)
		if err != nil {
			return err
		}
		if loan.Status != domain.LoanStatusApproved {
			return nil
		}

		existing, err := repos.Schedules.GetByLoanID(ctx, loanID)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return nil
		}

		schedule, err := GenerateSchedule(loan.ID, loan.Amount, loan.Term, loan.CreatedAt)
		if err != nil {
			return err
		}
		if err := repos.Schedules.Create(ctx, schedule); err != nil {
			return err
		}
		fixed = true
		return nil
	})
	return fixed, err
}

func (r *Reconciler) resync(ctx context.Context, loanID uuid.UUID, outstanding int) (bool, error) {
	fixed := false
	err := r.uow.WithinTx(ctx, func(repos repository.Repos) error {
		loan, err := lockLoan(ctx, repos.Loans, loanID)
		if err != nil {
			return err
		}
		if loan.Status != domain.LoanStatusApproved || loan.RemainingTerm == outstanding {
			return nil
		}
		if err := loan.Resync(outstanding); err != nil {
			return err
		}
		if err := saveLoan(ctx, repos.Loans, loan, r.now()); err != nil {
			return err
		}
		fixed = true
		return nil
	})
	return fixed, err
}

func (r *Reconciler) invalidate(ctx context.Context, loanID uuid.UUID, version int) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Delete(ctx, loanID, version); err != nil {
		log.WithError(err).WithField("loan_id", loanID).Warn("failed to invalidate cached schedule")
	}
}

// RemindDue logs every unpaid installment due within window and every
// overdue one. The log is the notification sink.
func (r *Reconciler) RemindDue(ctx context.Context, window time.Duration) (ReminderReport, error) {
	var report ReminderReport
	now := r.now().UTC()

	upcoming, err := r.schedules.ListDueBetween(ctx, now, now.Add(window))
	if err != nil {
		return report, err
	}
	for _, in := range upcoming {
		log.WithFields(installmentFields(in)).Info("repayment due soon")
	}
	report.Upcoming = len(upcoming)

	overdue, err := r.schedules.ListOverdue(ctx, now)
	if err != nil {
		return report, err
	}
	for _, in := range overdue {
		log.WithFields(installmentFields(in)).
			WithField("days_overdue", int(now.Sub(in.DueDate).Hours()/24)).
			Warn("repayment overdue")
	}
	report.Overdue = len(overdue)

	return report, nil
}

func installmentFields(in *domain.Installment) log.Fields {
	return log.Fields{
		"loan_id":  in.LoanID,
		"term":     in.TermNumber,
		"due_date": in.DueDate.Format(time.DateOnly),
		"amount":   in.RepaymentAmount.StringFixed(utils.CurrencyPlaces),
	}
}
