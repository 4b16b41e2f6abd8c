package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/segyhp/peer-lending/internal/domain"
)

const (
	installmentColumns = `id, loan_id, term_number, due_date, repayment_amount, status, paid_at, created_at`

	insertInstallmentQuery = `
		INSERT INTO loan_schedule (id, loan_id, term_number, due_date, repayment_amount, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	selectScheduleQuery = `SELECT ` + installmentColumns + ` FROM loan_schedule WHERE loan_id = $1 ORDER BY term_number`

	markInstallmentPaidQuery = `
		UPDATE loan_schedule
		SET status = 'PAID', paid_at = $3
		WHERE loan_id = $1 AND term_number = $2 AND status = 'PAY'`

	listDueBetweenQuery = `SELECT ` + installmentColumns + ` FROM loan_schedule
		WHERE status = 'PAY' AND due_date >= $1 AND due_date < $2
		ORDER BY due_date, term_number`

	listOverdueQuery = `SELECT ` + installmentColumns + ` FROM loan_schedule
		WHERE status = 'PAY' AND due_date < $1
		ORDER BY due_date, term_number`
)

const pqUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation
}

type scheduleRepository struct {
	db sqlx.ExtContext
}

func NewScheduleRepository(db *sqlx.DB) ScheduleRepository {
	return &scheduleRepository{db: db}
}

// Create inserts the installments one by one. Callers that need the whole
// schedule to land atomically run it inside UnitOfWork.WithinTx.
func (r *scheduleRepository) Create(ctx context.Context, schedule domain.Schedule) error {
	for _, in := range schedule {
		_, err := r.db.ExecContext(ctx, insertInstallmentQuery,
			in.ID,
			in.LoanID,
			in.TermNumber,
			in.DueDate,
			in.RepaymentAmount,
			in.Status,
			in.CreatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrScheduleExists
			}
			return err
		}
	}

	return nil
}

func (r *scheduleRepository) GetByLoanID(ctx context.Context, loanID uuid.UUID) (domain.Schedule, error) {
	schedule := domain.Schedule{}
	if err := sqlx.SelectContext(ctx, r.db, &schedule, selectScheduleQuery, loanID); err != nil {
		return nil, err
	}

	return schedule, nil
}

func (r *scheduleRepository) MarkPaid(ctx context.Context, loanID uuid.UUID, termNumber int, paidAt time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, markInstallmentPaidQuery, loanID, termNumber, paidAt)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	return n == 1, nil
}

func (r *scheduleRepository) ListDueBetween(ctx context.Context, from, to time.Time) ([]*domain.Installment, error) {
	installments := []*domain.Installment{}
	if err := sqlx.SelectContext(ctx, r.db, &installments, listDueBetweenQuery, from, to); err != nil {
		return nil, err
	}

	return installments, nil
}

func (r *scheduleRepository) ListOverdue(ctx context.Context, now time.Time) ([]*domain.Installment, error) {
	installments := []*domain.Installment{}
	if err := sqlx.SelectContext(ctx, r.db, &installments, listOverdueQuery, now); err != nil {
		return nil, err
	}

	return installments, nil
}
