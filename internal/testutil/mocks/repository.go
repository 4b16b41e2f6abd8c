package mocks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/segyhp/peer-lending/internal/domain"
	"github.com/segyhp/peer-lending/internal/repository"
	"github.com/stretchr/testify/mock"
)

var (
	_ repository.LoanRepository     = (*MockLoanRepository)(nil)
	_ repository.ScheduleRepository = (*MockScheduleRepository)(nil)
	_ repository.UserRepository     = (*MockUserRepository)(nil)
	_ repository.UnitOfWork         = (*UnitOfWork)(nil)
)

type MockLoanRepository struct {
	mock.Mock
}

func (m *MockLoanRepository) Create(ctx context.Context, loan *domain.Loan) error {
	args := m.Called(ctx, loan)
	return args.Error(0)
}

func (m *MockLoanRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Loan, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Loan), args.Error(1)
}

func (m *MockLoanRepository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.Loan, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Loan), args.Error(1)
}

func (m *MockLoanRepository) Update(ctx context.Context, loan *domain.Loan) error {
	args := m.Called(ctx, loan)
	return args.Error(0)
}

func (m *MockLoanRepository) ListByUserAndStatus(ctx context.Context, userID uuid.UUID, status domain.LoanStatus) ([]*domain.Loan, error) {
	args := m.Called(ctx, userID, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Loan), args.Error(1)
}

func (m *MockLoanRepository) ListByStatus(ctx context.Context, status domain.LoanStatus) ([]*domain.Loan, error) {
	args := m.Called(ctx, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Loan), args.Error(1)
}

type MockScheduleRepository struct {
	mock.Mock
}

func (m *MockScheduleRepository) Create(ctx context.Context, schedule domain.Schedule) error {
	args := m.Called(ctx, schedule)
	return args.Error(0)
}

func (m *MockScheduleRepository) GetByLoanID(ctx context.Context, loanID uuid.UUID) (domain.Schedule, error) {
	args := m.Called(ctx, loanID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(domain.Schedule), args.Error(1)
}

func (m *MockScheduleRepository) MarkPaid(ctx context.Context, loanID uuid.UUID, termNumber int, paidAt time.Time) (bool, error) {
	args := m.Called(ctx, loanID, termNumber, paidAt)
	return args.Bool(0), args.Error(1)
}

func (m *MockScheduleRepository) ListDueBetween(ctx context.Context, from, to time.Time) ([]*domain.Installment, error) {
	args := m.Called(ctx, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Installment), args.Error(1)
}

func (m *MockScheduleRepository) ListOverdue(ctx context.Context, now time.Time) ([]*domain.Installment, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Installment), args.Error(1)
}

type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) Create(ctx context.Context, user *domain.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

type MockScheduleCache struct {
	mock.Mock
}

func (m *MockScheduleCache) Get(ctx context.Context, loanID uuid.UUID, version int) (domain.Schedule, bool, error) {
	args := m.Called(ctx, loanID, version)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(domain.Schedule), args.Bool(1), args.Error(2)
}

func (m *MockScheduleCache) Set(ctx context.Context, loanID uuid.UUID, version int, schedule domain.Schedule) error {
	args := m.Called(ctx, loanID, version, schedule)
	return args.Error(0)
}

func (m *MockScheduleCache) Delete(ctx context.Context, loanID uuid.UUID, version int) error {
	args := m.Called(ctx, loanID, version)
	return args.Error(0)
}

// UnitOfWork hands Repos to fn without a real transaction and counts the
// outcome of every call.
type UnitOfWork struct {
	Repos     repository.Repos
	BeginErr  error
	CommitErr error

	Commits   int
	Rollbacks int
}

func (u *UnitOfWork) WithinTx(ctx context.Context, fn func(r repository.Repos) error) error {
	if u.BeginErr != nil {
		return u.BeginErr
	}
	if err := fn(u.Repos); err != nil {
		u.Rollbacks++
		return err
	}
	if u.CommitErr != nil {
		u.Rollbacks++
		return u.CommitErr
	}
	u.Commits++
	return nil
}
