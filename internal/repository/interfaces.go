package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/segyhp/peer-lending/internal/domain"
)

var (
	// ErrVersionConflict is returned by LoanRepository.Update when the row
	// was changed since it was read.
	ErrVersionConflict = errors.New("loan version conflict")

	// ErrScheduleExists is returned when a schedule is written twice for one loan.
	ErrScheduleExists = errors.New("schedule already exists")

	// ErrDuplicateEmail is returned when an email is already registered.
	ErrDuplicateEmail = errors.New("email already registered")
)

// LoanRepository defines the interface for loan data operations
type LoanRepository interface {
	// Create creates a new loan
	Create(ctx context.Context, loan *domain.Loan) error

	// GetByID retrieves a loan by its id
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Loan, error)

	// GetByIDForUpdate retrieves a loan and locks its row until the
	// surrounding transaction ends
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.Loan, error)

	// Update saves status and remaining term, guarded by loan.Version
	Update(ctx context.Context, loan *domain.Loan) error

	// ListByUserAndStatus lists one user's loans in a given status
	ListByUserAndStatus(ctx context.Context, userID uuid.UUID, status domain.LoanStatus) ([]*domain.Loan, error)

	// ListByStatus lists every loan in a given status
	ListByStatus(ctx context.Context, status domain.LoanStatus) ([]*domain.Loan, error)
}

// ScheduleRepository defines the interface for repayment schedule operations
type ScheduleRepository interface {
	// Create writes every installment of a schedule
	Create(ctx context.Context, schedule domain.Schedule) error

	// GetByLoanID retrieves a loan's schedule ordered by term number
	GetByLoanID(ctx context.Context, loanID uuid.UUID) (domain.Schedule, error)

	// MarkPaid flips one PAY installment to PAID and reports whether a row changed
	MarkPaid(ctx context.Context, loanID uuid.UUID, termNumber int, paidAt time.Time) (bool, error)

	// ListDueBetween lists unpaid installments due in [from, to)
	ListDueBetween(ctx context.Context, from, to time.Time) ([]*domain.Installment, error)

	// ListOverdue lists unpaid installments due before now
	ListOverdue(ctx context.Context, now time.Time) ([]*domain.Installment, error)
}

// UserRepository defines the interface for user account operations
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
}

// Repos are repositories bound to one transaction.
type Repos struct {
	Loans     LoanRepository
	Schedules ScheduleRepository
}

// UnitOfWork runs fn inside a single database transaction. The transaction
// commits when fn returns nil and rolls back otherwise.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(r Repos) error) error
}
