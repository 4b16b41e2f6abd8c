package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/segyhp/peer-lending/internal/domain"
)

const (
	loanColumns = `id, user_id, name, amount, term, remaining_term, status, version, created_at, updated_at`

	insertLoanQuery = `
		INSERT INTO loans (id, user_id, name, amount, term, remaining_term, status, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	selectLoanQuery = `SELECT ` + loanColumns + ` FROM loans WHERE id = $1`

	selectLoanForUpdateQuery = selectLoanQuery + ` FOR UPDATE`

	updateLoanQuery = `
		UPDATE loans
		SET remaining_term = $2, status = $3, version = version + 1, updated_at = $4
		WHERE id = $1 AND version = $5`

	listLoansByUserQuery = `SELECT ` + loanColumns + ` FROM loans WHERE user_id = $1 AND status = $2 ORDER BY created_at`

	listLoansByStatusQuery = `SELECT ` + loanColumns + ` FROM loans WHERE status = $1 ORDER BY created_at`
)

type loanRepository struct {
	db sqlx.ExtContext
}

func NewLoanRepository(db *sqlx.DB) LoanRepository {
	return &loanRepository{db: db}
}

func (r *loanRepository) Create(ctx context.Context, loan *domain.Loan) error {
	_, err := r.db.ExecContext(ctx, insertLoanQuery,
		loan.ID,
		loan.UserID,
		loan.Name,
		loan.Amount,
		loan.Term,
		loan.RemainingTerm,
		loan.Status,
		loan.Version,
		loan.CreatedAt,
		loan.UpdatedAt,
	)

	return err
}

func (r *loanRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Loan, error) {
	var loan domain.Loan
	if err := sqlx.GetContext(ctx, r.db, &loan, selectLoanQuery, id); err != nil {
		return nil, err
	}

	return &loan, nil
}

func (r *loanRepository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.Loan, error) {
	var loan domain.Loan
	if err := sqlx.GetContext(ctx, r.db, &loan, selectLoanForUpdateQuery, id); err != nil {
		return nil, err
	}

	return &loan, nil
}

func (r *loanRepository) Update(ctx context.Context, loan *domain.Loan) error {
	res, err := r.db.ExecContext(ctx, updateLoanQuery,
		loan.ID,
		loan.RemainingTerm,
		loan.Status,
		loan.UpdatedAt,
		loan.Version,
	)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrVersionConflict
	}

	loan.Version++
	return nil
}

func (r *loanRepository) ListByUserAndStatus(ctx context.Context, userID uuid.UUID, status domain.LoanStatus) ([]*domain.Loan, error) {
	loans := []*domain.Loan{}
	if err := sqlx.SelectContext(ctx, r.db, &loans, listLoansByUserQuery, userID, status); err != nil {
		return nil, err
	}

	return loans, nil
}

func (r *loanRepository) ListByStatus(ctx context.Context, status domain.LoanStatus) ([]*domain.Loan, error) {
	loans := []*domain.Loan{}
	if err := sqlx.SelectContext(ctx, r.db, &loans, listLoansByStatusQuery, status); err != nil {
		return nil, err
	}

	return loans, nil
}
